package config

import (
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	// Transcription backend. An empty endpoint falls back to the
	// on-device recognizer when available.
	Endpoint       string        `env:"DICTATE_ENDPOINT"`
	Credential     string        `env:"DICTATE_CREDENTIAL"`
	RequestTimeout time.Duration `env:"DICTATE_REQUEST_TIMEOUT" envDefault:"30s"`
	Language       string        `env:"DICTATE_LANGUAGE" envDefault:"en"`

	// On-device recognizer.
	WhisperBin   string `env:"DICTATE_WHISPER_BIN" envDefault:"whisper-cli"`
	WhisperModel string `env:"DICTATE_WHISPER_MODEL"`

	// Capture format.
	SampleRate    int           `env:"DICTATE_SAMPLE_RATE" envDefault:"16000"`
	Channels      int           `env:"DICTATE_CHANNELS" envDefault:"1"`
	ChunkInterval time.Duration `env:"DICTATE_CHUNK_INTERVAL" envDefault:"250ms"`

	// Optional status/control HTTP server; empty addr disables it.
	HTTPAddr     string        `env:"DICTATE_HTTP_ADDR"`
	AuthToken    string        `env:"DICTATE_AUTH_TOKEN"`
	ReadTimeout  time.Duration `env:"DICTATE_HTTP_READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout time.Duration `env:"DICTATE_HTTP_WRITE_TIMEOUT" envDefault:"30s"`

	// UI.
	Notify            bool   `env:"DICTATE_NOTIFY" envDefault:"false"`
	ColorIdle         string `env:"DICTATE_COLOR_IDLE"`
	ColorActive       string `env:"DICTATE_COLOR_ACTIVE"`
	ColorDisabled     string `env:"DICTATE_COLOR_DISABLED"`
	ColorTranscribing string `env:"DICTATE_COLOR_TRANSCRIBING"`
	ColorRipple       string `env:"DICTATE_COLOR_RIPPLE"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// Overrides holds CLI flag values that take priority over env vars.
type Overrides struct {
	EnvFile      string
	Endpoint     string
	Credential   string
	WhisperModel string
	HTTPAddr     string
	LogLevel     string
}

// Load reads configuration from .env file, environment variables, and
// CLI overrides. Priority: CLI flags > environment variables > .env
// file > struct defaults.
func Load(overrides Overrides) (*Config, error) {
	envFile := overrides.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		_ = godotenv.Load(envFile)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	if overrides.Endpoint != "" {
		cfg.Endpoint = overrides.Endpoint
	}
	if overrides.Credential != "" {
		cfg.Credential = overrides.Credential
	}
	if overrides.WhisperModel != "" {
		cfg.WhisperModel = overrides.WhisperModel
	}
	if overrides.HTTPAddr != "" {
		cfg.HTTPAddr = overrides.HTTPAddr
	}
	if overrides.LogLevel != "" {
		cfg.LogLevel = overrides.LogLevel
	}

	return cfg, nil
}
