package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestLoad(t *testing.T) {
	cleanup := setEnvs(t, map[string]string{
		"DICTATE_ENDPOINT": "https://api.test",
	})
	defer cleanup()

	t.Run("defaults", func(t *testing.T) {
		cfg, err := Load(Overrides{EnvFile: "nonexistent.env"})
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cfg.RequestTimeout != 30*time.Second {
			t.Errorf("RequestTimeout = %v, want 30s", cfg.RequestTimeout)
		}
		if cfg.SampleRate != 16000 {
			t.Errorf("SampleRate = %d, want 16000", cfg.SampleRate)
		}
		if cfg.Channels != 1 {
			t.Errorf("Channels = %d, want 1", cfg.Channels)
		}
		if cfg.ChunkInterval != 250*time.Millisecond {
			t.Errorf("ChunkInterval = %v, want 250ms", cfg.ChunkInterval)
		}
		if cfg.WhisperBin != "whisper-cli" {
			t.Errorf("WhisperBin = %q, want whisper-cli", cfg.WhisperBin)
		}
		if cfg.LogLevel != "info" {
			t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
		}
	})

	t.Run("env_vars_read", func(t *testing.T) {
		cfg, err := Load(Overrides{EnvFile: "nonexistent.env"})
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cfg.Endpoint != "https://api.test" {
			t.Errorf("Endpoint = %q, want https://api.test", cfg.Endpoint)
		}
	})

	t.Run("cli_overrides_take_priority", func(t *testing.T) {
		cfg, err := Load(Overrides{
			EnvFile:  "nonexistent.env",
			Endpoint: "https://override.test",
			LogLevel: "debug",
			HTTPAddr: ":9090",
		})
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cfg.Endpoint != "https://override.test" {
			t.Errorf("Endpoint = %q, want override", cfg.Endpoint)
		}
		if cfg.LogLevel != "debug" {
			t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
		}
		if cfg.HTTPAddr != ":9090" {
			t.Errorf("HTTPAddr = %q, want :9090", cfg.HTTPAddr)
		}
	})

	t.Run("empty_overrides_use_env", func(t *testing.T) {
		cfg, err := Load(Overrides{EnvFile: "nonexistent.env"})
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cfg.Endpoint != "https://api.test" {
			t.Errorf("Endpoint = %q, want env value", cfg.Endpoint)
		}
	})
}

func TestLoadNoEndpointIsNotAnError(t *testing.T) {
	cleanup := setEnvs(t, map[string]string{"DICTATE_ENDPOINT": ""})
	defer cleanup()
	os.Unsetenv("DICTATE_ENDPOINT")

	cfg, err := Load(Overrides{EnvFile: "nonexistent.env"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Endpoint != "" {
		t.Errorf("Endpoint = %q, want empty", cfg.Endpoint)
	}
}

func TestWatcherEmitsEndpointChanges(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("DICTATE_ENDPOINT=https://a.test\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	w, err := Watch(path, "https://a.test", "", zerolog.Nop())
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	defer w.Close()

	if err := os.WriteFile(path, []byte("DICTATE_ENDPOINT=https://b.test\nDICTATE_CREDENTIAL=tok\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case ch := <-w.Changes():
		if ch.Endpoint != "https://b.test" {
			t.Errorf("Endpoint = %q, want https://b.test", ch.Endpoint)
		}
		if ch.Credential != "tok" {
			t.Errorf("Credential = %q, want tok", ch.Credential)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no change event within 3s")
	}
}

func TestWatcherLatestChangeWins(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")

	// No loop goroutine: drive reload directly so two changes land
	// before anyone reads the channel.
	w := &Watcher{
		path:         path,
		changes:      make(chan Change, 1),
		log:          zerolog.Nop(),
		lastEndpoint: "https://a.test",
	}

	if err := os.WriteFile(path, []byte("DICTATE_ENDPOINT=https://b.test\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	w.reload()
	if err := os.WriteFile(path, []byte("DICTATE_ENDPOINT=https://c.test\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	w.reload()

	select {
	case ch := <-w.changes:
		if ch.Endpoint != "https://c.test" {
			t.Errorf("Endpoint = %q, want latest https://c.test", ch.Endpoint)
		}
	default:
		t.Fatal("no change queued")
	}
}

func TestWatcherIgnoresUnrelatedFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("DICTATE_ENDPOINT=https://a.test\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	w, err := Watch(path, "https://a.test", "", zerolog.Nop())
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	defer w.Close()

	if err := os.WriteFile(filepath.Join(dir, "other.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case ch := <-w.Changes():
		t.Errorf("unexpected change event: %+v", ch)
	case <-time.After(200 * time.Millisecond):
	}
}

// setEnvs sets environment variables and returns a cleanup function.
func setEnvs(t *testing.T, envs map[string]string) func() {
	t.Helper()
	originals := make(map[string]string)
	unset := make([]string, 0)

	for k, v := range envs {
		if orig, ok := os.LookupEnv(k); ok {
			originals[k] = orig
		} else {
			unset = append(unset, k)
		}
		os.Setenv(k, v)
	}

	return func() {
		for k, v := range originals {
			os.Setenv(k, v)
		}
		for _, k := range unset {
			os.Unsetenv(k)
		}
	}
}
