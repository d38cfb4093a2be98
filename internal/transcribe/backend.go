// Package transcribe provides speech-to-text backends: a remote HTTP
// transcription service and an on-device whisper.cpp recognizer.
package transcribe

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
)

// ErrNoBackend is returned by Resolve when neither a remote endpoint is
// configured nor an on-device recognizer is available.
var ErrNoBackend = errors.New("no transcription backend available")

// Outcome is the uniform result of one transcription attempt. A failed
// attempt carries a human-readable reason instead of an error value; a
// backend never panics and never reports failure any other way.
type Outcome struct {
	Text          string
	Succeeded     bool
	FailureReason string
}

// Backend converts a finalized audio blob (WAV bytes) to text.
type Backend interface {
	Transcribe(ctx context.Context, audio []byte) Outcome
	Name() string // "remote", "ondevice"
}

// ResolveOptions carries everything backend selection needs. Explicit
// endpoint configuration always wins over the on-device recognizer.
type ResolveOptions struct {
	Endpoint     string
	Credential   string // optional bearer token
	Timeout      time.Duration
	Language     string
	WhisperBin   string
	WhisperModel string
	Log          zerolog.Logger
}

// Resolve picks the transcription backend once, at configuration time.
// Returns ErrNoBackend when nothing usable is configured.
func Resolve(opts ResolveOptions) (Backend, error) {
	if opts.Endpoint != "" {
		return NewRemote(opts.Endpoint, opts.Credential, opts.Timeout, opts.Log), nil
	}

	od := NewOnDevice(opts.WhisperBin, opts.WhisperModel, opts.Language, opts.Log)
	if od.Available() {
		return od, nil
	}
	return nil, ErrNoBackend
}
