package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gen2brain/beeep"
	"github.com/rs/zerolog"

	"github.com/ashpool/dictate/internal/api"
	"github.com/ashpool/dictate/internal/capture"
	"github.com/ashpool/dictate/internal/config"
	"github.com/ashpool/dictate/internal/control"
	"github.com/ashpool/dictate/internal/theme"
	"github.com/ashpool/dictate/internal/transcribe"
)

var version = "dev"

func main() {
	startTime := time.Now()

	var overrides config.Overrides
	flag.StringVar(&overrides.EnvFile, "env-file", "", "path to .env file (default .env)")
	flag.StringVar(&overrides.Endpoint, "endpoint", "", "transcription service base URL")
	flag.StringVar(&overrides.Credential, "credential", "", "bearer credential for the transcription service")
	flag.StringVar(&overrides.WhisperModel, "whisper-model", "", "model path for the on-device recognizer")
	flag.StringVar(&overrides.HTTPAddr, "http-addr", "", "status server listen address (empty disables)")
	flag.StringVar(&overrides.LogLevel, "log-level", "", "log level (debug, info, warn, error)")
	flag.Parse()

	// Config
	cfg, err := config.Load(overrides)
	if err != nil {
		early := zerolog.New(os.Stderr).With().Timestamp().Logger()
		early.Fatal().Err(err).Msg("failed to load config")
	}

	// Logger. Stdout carries transcription results, so logs go to stderr.
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger().Level(level)
	log.Info().Str("version", version).Msg("dictate starting")

	// Context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Capture
	capLog := log.With().Str("component", "capture").Logger()
	rec := capture.New(capture.Options{
		SampleRate:    cfg.SampleRate,
		Channels:      cfg.Channels,
		ChunkInterval: cfg.ChunkInterval,
		Open:          capture.OpenDefaultSource,
		Log:           capLog,
	})

	// Transcription backend. Resolution failure is not fatal: the control
	// starts unconfigured and reports the problem through its callbacks.
	trLog := log.With().Str("component", "transcribe").Logger()
	backend, err := transcribe.Resolve(transcribe.ResolveOptions{
		Endpoint:     cfg.Endpoint,
		Credential:   cfg.Credential,
		Timeout:      cfg.RequestTimeout,
		Language:     cfg.Language,
		WhisperBin:   cfg.WhisperBin,
		WhisperModel: cfg.WhisperModel,
		Log:          trLog,
	})
	if err != nil {
		if errors.Is(err, transcribe.ErrNoBackend) {
			log.Warn().Msg("no transcription backend: set DICTATE_ENDPOINT or DICTATE_WHISPER_MODEL")
		} else {
			log.Error().Err(err).Msg("backend resolution failed")
		}
		backend = nil
	}

	th := theme.New(theme.Colors{
		Idle:         cfg.ColorIdle,
		Active:       cfg.ColorActive,
		Disabled:     cfg.ColorDisabled,
		Transcribing: cfg.ColorTranscribing,
		Ripple:       cfg.ColorRipple,
	})

	ctrlLog := log.With().Str("component", "control").Logger()
	ctrl := control.New(control.Options{
		Backend: backend,
		Capture: rec,
		Callbacks: control.Callbacks{
			OnResult: func(text string) {
				fmt.Println(text)
				if cfg.Notify {
					_ = beeep.Notify("dictate", text, "")
				}
			},
			OnError: func(kind control.ErrorKind, msg string) {
				fmt.Fprintf(os.Stderr, "%s %s\n", th.Disabled.Render("["+kind.String()+"]"), msg)
				if cfg.Notify {
					_ = beeep.Alert("dictate", msg, "")
				}
			},
			OnState: func(s control.State) {
				fmt.Fprintln(os.Stderr, renderState(th, s))
			},
		},
		Log: ctrlLog,
	})
	ctrl.Start(ctx)

	// Endpoint changes in the env file take effect without a restart.
	envFile := overrides.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		watchLog := log.With().Str("component", "config").Logger()
		watcher, err := config.Watch(envFile, cfg.Endpoint, cfg.Credential, watchLog)
		if err != nil {
			log.Warn().Err(err).Msg("config watcher unavailable")
		} else {
			defer watcher.Close()
			go func() {
				for ch := range watcher.Changes() {
					ctrl.UpdateBackend(rebuildBackend(ch, cfg, trLog))
				}
			}()
		}
	}

	// Optional status/control HTTP server
	errCh := make(chan error, 1)
	var srv *api.Server
	if cfg.HTTPAddr != "" {
		httpLog := log.With().Str("component", "http").Logger()
		srv = api.NewServer(cfg, ctrl, version, startTime, httpLog)
		go func() {
			errCh <- srv.Start()
		}()
	}

	// Keyboard loop: Enter toggles, r resets, q quits.
	fmt.Fprintln(os.Stderr, th.Ripple.Render("press Enter to toggle recording, r to reset, q to quit"))
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			switch scanner.Text() {
			case "":
				ctrl.Toggle()
			case "r":
				ctrl.Reset()
			case "q":
				stop()
				return
			}
		}
		stop()
	}()

	// Wait for shutdown signal or server error
	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("http server error")
		}
	}

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("http server shutdown error")
		}
	}

	ctrl.Reset()
	log.Info().Msg("dictate stopped")
}

// rebuildBackend resolves a fresh backend after an endpoint change. A
// cleared endpoint falls back to the on-device recognizer when one is
// configured.
func rebuildBackend(ch config.Change, cfg *config.Config, log zerolog.Logger) transcribe.Backend {
	backend, err := transcribe.Resolve(transcribe.ResolveOptions{
		Endpoint:     ch.Endpoint,
		Credential:   ch.Credential,
		Timeout:      cfg.RequestTimeout,
		Language:     cfg.Language,
		WhisperBin:   cfg.WhisperBin,
		WhisperModel: cfg.WhisperModel,
		Log:          log,
	})
	if err != nil {
		log.Warn().Err(err).Msg("no backend after endpoint change")
		return nil
	}
	return backend
}

func renderState(th theme.Theme, s control.State) string {
	label := s.String()
	switch s {
	case control.StateRecording:
		return th.Active.Render("● " + label)
	case control.StateTranscribing:
		return th.Transcribing.Render("… " + label)
	case control.StateIdle:
		return th.Idle.Render("○ " + label)
	case control.StateDisabled, control.StateUnconfigured:
		return th.Disabled.Render("○ " + label)
	default:
		return th.Ripple.Render("○ " + label)
	}
}
