// Package capture owns the microphone: permission state and the
// start/stop/reset lifecycle of one recording session at a time.
package capture

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrPermissionDenied means the platform refused access to the capture
// device. It is sticky until Reset clears the permission state.
var ErrPermissionDenied = errors.New("microphone access denied")

// ErrSessionActive means Start was called while a session is recording.
var ErrSessionActive = errors.New("a capture session is already active")

// PermissionState tracks microphone access: unknown until first probed.
type PermissionState int

const (
	PermissionUnknown PermissionState = iota
	PermissionGranted
	PermissionDenied
)

func (p PermissionState) String() string {
	switch p {
	case PermissionGranted:
		return "granted"
	case PermissionDenied:
		return "denied"
	default:
		return "unknown"
	}
}

// Source is one open capture stream. Implementations own the hardware
// handle; Close must release it.
type Source interface {
	Start() error
	Read() ([]int16, error) // one chunk of interleaved PCM samples
	Stop() error
	Close() error
}

// SourceOpener opens a capture stream for the given format.
type SourceOpener func(sampleRate, channels int) (Source, error)

// Options configures a Recorder.
type Options struct {
	SampleRate    int           // default 16000
	Channels      int           // default 1
	ChunkInterval time.Duration // capture tick, default 250ms
	Open          SourceOpener  // default OpenDefaultSource
	Log           zerolog.Logger
}

// Recorder assembles a finished WAV blob from a microphone session.
// At most one session is active at a time; the hardware stream is
// released exactly once per session, on Stop or Reset.
type Recorder struct {
	opts Options

	mu        sync.Mutex
	perm      PermissionState
	recording bool
	sessionID string
	startedAt time.Time
	chunks    [][]int16
	blob      []byte
	lastErr   string

	src  Source
	stop chan struct{}
	done chan struct{}
}

// New creates a Recorder. Zero-value options get defaults.
func New(opts Options) *Recorder {
	if opts.SampleRate <= 0 {
		opts.SampleRate = 16000
	}
	if opts.Channels <= 0 {
		opts.Channels = 1
	}
	if opts.ChunkInterval <= 0 {
		opts.ChunkInterval = 250 * time.Millisecond
	}
	if opts.Open == nil {
		opts.Open = OpenDefaultSource
	}
	return &Recorder{opts: opts}
}

// RequestPermission probes microphone access by opening and immediately
// releasing the default input device. Never panics; denial becomes state.
func (r *Recorder) RequestPermission() PermissionState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.requestPermissionLocked()
}

func (r *Recorder) requestPermissionLocked() PermissionState {
	if r.perm != PermissionUnknown {
		return r.perm
	}
	src, err := r.opts.Open(r.opts.SampleRate, r.opts.Channels)
	if err != nil {
		r.perm = PermissionDenied
		r.lastErr = err.Error()
		r.opts.Log.Warn().Err(err).Msg("microphone permission denied")
		return r.perm
	}
	src.Close()
	r.perm = PermissionGranted
	return r.perm
}

// Start opens a capture stream and begins appending PCM chunks at the
// configured interval. Requests permission first if undetermined.
func (r *Recorder) Start() error {
	r.mu.Lock()
	if r.recording {
		r.mu.Unlock()
		return ErrSessionActive
	}
	if r.requestPermissionLocked() == PermissionDenied {
		r.mu.Unlock()
		return ErrPermissionDenied
	}

	src, err := r.opts.Open(r.opts.SampleRate, r.opts.Channels)
	if err != nil {
		r.lastErr = err.Error()
		r.mu.Unlock()
		return fmt.Errorf("open capture device: %w", err)
	}
	if err := src.Start(); err != nil {
		src.Close()
		r.lastErr = err.Error()
		r.mu.Unlock()
		return fmt.Errorf("start capture stream: %w", err)
	}

	r.recording = true
	r.sessionID = uuid.NewString()
	r.startedAt = time.Now()
	r.chunks = nil
	r.blob = nil
	r.lastErr = ""
	r.src = src
	r.stop = make(chan struct{})
	r.done = make(chan struct{})

	log := r.opts.Log.With().Str("session", r.sessionID).Logger()
	go r.captureLoop(src, r.stop, r.done, log)

	log.Debug().Int("sample_rate", r.opts.SampleRate).Int("channels", r.opts.Channels).Msg("capture session started")
	r.mu.Unlock()
	return nil
}

func (r *Recorder) captureLoop(src Source, stop <-chan struct{}, done chan<- struct{}, log zerolog.Logger) {
	defer close(done)

	ticker := time.NewTicker(r.opts.ChunkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			samples, err := src.Read()
			if err != nil {
				log.Debug().Err(err).Msg("capture read error")
				continue
			}
			r.mu.Lock()
			r.chunks = append(r.chunks, samples)
			r.mu.Unlock()
		}
	}
}

// Stop finalizes the chunk sequence into one WAV blob and releases the
// hardware stream. Calling Stop when not recording is a no-op; the blob
// from the last finished session (if any) is returned unchanged.
func (r *Recorder) Stop() ([]byte, error) {
	return r.finish(false)
}

// Reset force-stops an in-flight session, discards the blob and clears
// error state. A denied permission is cleared so the next Start can
// re-probe the device; a granted one survives, so consuming a blob via
// Reset does not cost an extra device open.
func (r *Recorder) Reset() {
	r.finish(true)
}

func (r *Recorder) finish(discard bool) ([]byte, error) {
	r.mu.Lock()
	if !r.recording {
		if discard {
			r.blob = nil
			r.lastErr = ""
			if r.perm == PermissionDenied {
				r.perm = PermissionUnknown
			}
		}
		blob := r.blob
		r.mu.Unlock()
		return blob, nil
	}

	r.recording = false
	stop, done, src := r.stop, r.done, r.src
	r.stop, r.done, r.src = nil, nil, nil
	sessionID := r.sessionID
	elapsed := time.Since(r.startedAt)
	r.startedAt = time.Time{}
	r.mu.Unlock()

	close(stop)
	<-done

	// Release the hardware stream unconditionally; this is the only
	// place a live session's source is stopped and closed.
	if err := src.Stop(); err != nil {
		r.opts.Log.Debug().Err(err).Msg("stop capture stream")
	}
	if err := src.Close(); err != nil {
		r.opts.Log.Debug().Err(err).Msg("close capture stream")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	samples := flatten(r.chunks)
	r.chunks = nil

	if discard {
		r.blob = nil
		r.lastErr = ""
		if r.perm == PermissionDenied {
			r.perm = PermissionUnknown
		}
		r.opts.Log.Debug().Str("session", sessionID).Msg("capture session discarded")
		return nil, nil
	}

	if len(samples) == 0 {
		r.blob = nil
		r.opts.Log.Debug().Str("session", sessionID).Msg("capture session produced no audio")
		return nil, nil
	}

	blob, err := encodeWAV(samples, r.opts.SampleRate, r.opts.Channels)
	if err != nil {
		r.lastErr = err.Error()
		return nil, fmt.Errorf("finalize recording: %w", err)
	}
	r.blob = blob

	r.opts.Log.Debug().
		Str("session", sessionID).
		Dur("elapsed", elapsed).
		Int("samples", len(samples)).
		Int("bytes", len(blob)).
		Msg("capture session finalized")
	return blob, nil
}

// Recording reports whether a session is active.
func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recording
}

// Elapsed returns how long the active session has been recording, or
// zero when idle.
func (r *Recorder) Elapsed() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.recording {
		return 0
	}
	return time.Since(r.startedAt)
}

// Blob returns the finalized WAV bytes of the last stopped session, or
// nil if none exists.
func (r *Recorder) Blob() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.blob
}

// Err returns the last capture error string, empty when none.
func (r *Recorder) Err() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastErr
}

// Permission returns the current permission state.
func (r *Recorder) Permission() PermissionState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.perm
}

func flatten(chunks [][]int16) []int16 {
	n := 0
	for _, c := range chunks {
		n += len(c)
	}
	out := make([]int16, 0, n)
	for _, c := range chunks {
		out = append(out, c...)
	}
	return out
}
