// Package control implements the recorder state machine: it composes
// the capture session and the transcription backend, gates interaction
// by state, and reports results and failures through callbacks.
package control

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ashpool/dictate/internal/capture"
	"github.com/ashpool/dictate/internal/metrics"
	"github.com/ashpool/dictate/internal/transcribe"
)

// State is the externally visible control state.
type State int

const (
	StateUnconfigured State = iota
	StateChecking
	StateIdle
	StateRecording
	StateTranscribing
	StateDisabled
)

func (s State) String() string {
	switch s {
	case StateChecking:
		return "checking"
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StateTranscribing:
		return "transcribing"
	case StateDisabled:
		return "disabled"
	default:
		return "unconfigured"
	}
}

// Connectivity is the remote endpoint reachability status. On-device
// backends are always ConnConnected.
type Connectivity int

const (
	ConnChecking Connectivity = iota
	ConnConnected
	ConnError
)

func (c Connectivity) String() string {
	switch c {
	case ConnConnected:
		return "connected"
	case ConnError:
		return "error"
	default:
		return "checking"
	}
}

// ErrorKind classifies failures surfaced through the error callback.
type ErrorKind int

const (
	ErrConfiguration ErrorKind = iota // no usable backend
	ErrPermission                     // capture device access denied / unavailable
	ErrConnectivity                   // remote endpoint unreachable
	ErrTranscription                  // attempt completed but failed
)

func (k ErrorKind) String() string {
	switch k {
	case ErrPermission:
		return "permission"
	case ErrConnectivity:
		return "connectivity"
	case ErrTranscription:
		return "transcription"
	default:
		return "configuration"
	}
}

// Callbacks receive control events. Nil fields are skipped. Callbacks
// run outside the controller lock and may call back into the controller.
type Callbacks struct {
	OnResult func(text string)
	OnError  func(kind ErrorKind, msg string)
	OnState  func(s State)
}

// Capturer is the slice of the capture recorder the controller needs;
// tests substitute fakes.
type Capturer interface {
	Start() error
	Stop() ([]byte, error)
	Reset()
	Recording() bool
	Elapsed() time.Duration
}

// Prober is implemented by backends with a reachability check
// (transcribe.Remote). On-device backends don't have one.
type Prober interface {
	Probe(ctx context.Context) bool
}

// Options configures a Controller.
type Options struct {
	Backend   transcribe.Backend // nil means unconfigured
	Capture   Capturer
	Callbacks Callbacks
	Log       zerolog.Logger
}

// Controller drives idle → recording → transcribing transitions and
// enforces the gating rules: one active session, one transcription per
// finalized blob, interaction rejected while disabled or transcribing.
type Controller struct {
	log zerolog.Logger
	cb  Callbacks
	cap Capturer

	// runCtx outlives individual interactions: an in-flight
	// transcription is never cancelled, it completes or times out on
	// its own schedule.
	runCtx context.Context

	mu      sync.Mutex
	state   State
	conn    Connectivity
	backend transcribe.Backend
	prober  Prober
}

// New creates a Controller. The backend is resolved once by the caller
// (explicit endpoint beats on-device, per transcribe.Resolve); a nil
// backend leaves the control unconfigured.
func New(opts Options) *Controller {
	c := &Controller{
		log:     opts.Log,
		cb:      opts.Callbacks,
		cap:     opts.Capture,
		runCtx:  context.Background(),
		backend: opts.Backend,
	}
	if c.backend == nil {
		c.state = StateUnconfigured
		c.conn = ConnError
		return c
	}
	if p, ok := c.backend.(Prober); ok {
		c.prober = p
		c.state = StateChecking
		c.conn = ConnChecking
	} else {
		c.state = StateIdle
		c.conn = ConnConnected
	}
	return c
}

// Start reports the configuration error (if any) and kicks off the
// initial connectivity probe for remote backends. ctx bounds all
// background work started by the controller.
func (c *Controller) Start(ctx context.Context) {
	c.mu.Lock()
	c.runCtx = ctx
	backend := c.backend
	prober := c.prober
	c.mu.Unlock()

	if backend == nil {
		c.log.Error().Msg("no transcription backend configured")
		c.emitError(ErrConfiguration, "no transcription backend available")
		return
	}
	if prober != nil {
		go c.runProbe()
	}
}

// State returns the current control state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connectivity returns the current endpoint reachability status.
func (c *Controller) Connectivity() Connectivity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

// BackendName returns the resolved backend name, or empty when
// unconfigured.
func (c *Controller) BackendName() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.backend == nil {
		return ""
	}
	return c.backend.Name()
}

// Elapsed returns the active session duration, zero when not recording.
func (c *Controller) Elapsed() time.Duration {
	return c.cap.Elapsed()
}

// Toggle is the primary control interaction: idle starts a capture
// session, recording stops and finalizes it. In every other state the
// call is a rejected no-op — state and callbacks stay untouched.
func (c *Controller) Toggle() {
	c.mu.Lock()
	switch c.state {
	case StateIdle:
		c.startLocked()
	case StateRecording:
		c.stopLocked()
	default:
		c.log.Debug().Stringer("state", c.state).Msg("toggle ignored")
		c.mu.Unlock()
	}
}

// startLocked begins a capture session. Called with mu held; releases it.
func (c *Controller) startLocked() {
	if err := c.cap.Start(); err != nil {
		denied := errors.Is(err, capture.ErrPermissionDenied)
		if denied {
			c.state = StateDisabled
		}
		st := c.state
		c.mu.Unlock()

		c.log.Warn().Err(err).Msg("capture start failed")
		c.emitError(ErrPermission, err.Error())
		if denied {
			c.emitState(st)
		}
		return
	}

	metrics.SessionsStartedTotal.Inc()
	c.state = StateRecording
	c.mu.Unlock()
	c.emitState(StateRecording)
}

// stopLocked finalizes the session and triggers at most one
// transcription for the fresh blob. Called with mu held; releases it.
func (c *Controller) stopLocked() {
	blob, err := c.cap.Stop()
	metrics.SessionsCompletedTotal.Inc()

	if err != nil {
		c.state = StateIdle
		c.mu.Unlock()
		c.emitError(ErrTranscription, err.Error())
		c.emitState(StateIdle)
		return
	}
	if len(blob) == 0 {
		c.state = StateIdle
		c.mu.Unlock()
		c.log.Debug().Msg("empty capture session, nothing to transcribe")
		c.emitState(StateIdle)
		return
	}

	// Remote mode requires connectivity before an attempt is initiated.
	if c.prober != nil && c.conn != ConnConnected {
		c.state = StateIdle
		c.cap.Reset()
		c.mu.Unlock()
		c.emitError(ErrConnectivity, "transcription service not connected")
		c.emitState(StateIdle)
		return
	}

	backend := c.backend
	c.state = StateTranscribing
	// Consume the blob reference so no second attempt can see it.
	c.cap.Reset()
	c.mu.Unlock()

	c.emitState(StateTranscribing)
	go c.transcribeOnce(backend, blob)
}

// transcribeOnce performs exactly one transcription attempt and routes
// its outcome to the callbacks. State returns to idle only after the
// callback has fired, so no second attempt can start in between.
func (c *Controller) transcribeOnce(backend transcribe.Backend, blob []byte) {
	start := time.Now()
	out := backend.Transcribe(c.runCtx, blob)
	metrics.ObserveTranscription(backend.Name(), out.Succeeded, time.Since(start))

	if out.Succeeded {
		c.log.Info().Str("backend", backend.Name()).Int("chars", len(out.Text)).Msg("transcription complete")
		if c.cb.OnResult != nil {
			c.cb.OnResult(out.Text)
		}
	} else {
		c.log.Warn().Str("backend", backend.Name()).Str("reason", out.FailureReason).Msg("transcription failed")
		c.emitError(ErrTranscription, out.FailureReason)
	}

	c.mu.Lock()
	if c.state == StateTranscribing {
		c.state = StateIdle
	}
	st := c.state
	c.mu.Unlock()
	c.emitState(st)
}

// Reset clears the current session and blob. Rejected while
// transcribing, like any other interaction.
func (c *Controller) Reset() {
	c.mu.Lock()
	if c.state == StateTranscribing {
		c.mu.Unlock()
		c.log.Debug().Msg("reset ignored while transcribing")
		return
	}
	wasRecording := c.state == StateRecording
	if wasRecording {
		c.state = StateIdle
	}
	c.mu.Unlock()

	c.cap.Reset()
	if wasRecording {
		c.emitState(StateIdle)
	}
}

// UpdateBackend swaps the transcription backend after an endpoint or
// credential change and re-runs the connectivity probe. The current
// session, if any, keeps recording; only the idle-side state moves.
func (c *Controller) UpdateBackend(b transcribe.Backend) {
	c.mu.Lock()
	prev := c.state
	c.backend = b
	c.prober = nil

	settled := c.state == StateIdle || c.state == StateDisabled ||
		c.state == StateChecking || c.state == StateUnconfigured

	var next State
	switch {
	case b == nil:
		c.conn = ConnError
		if settled {
			c.state = StateUnconfigured
		}
		next = c.state
	default:
		if p, ok := b.(Prober); ok {
			c.prober = p
			c.conn = ConnChecking
			if settled {
				c.state = StateChecking
			}
		} else {
			c.conn = ConnConnected
			if settled {
				c.state = StateIdle
			}
		}
		next = c.state
	}
	prober := c.prober
	c.mu.Unlock()

	if next != prev {
		c.emitState(next)
	}
	if b == nil {
		c.emitError(ErrConfiguration, "no transcription backend available")
		return
	}
	c.log.Info().Str("backend", b.Name()).Msg("transcription backend updated")
	if prober != nil {
		go c.runProbe()
	}
}

// runProbe checks endpoint reachability and settles checking → idle or
// disabled. A probe never interrupts an active or transcribing session;
// it only updates the connectivity status underneath it.
func (c *Controller) runProbe() {
	c.mu.Lock()
	prober := c.prober
	ctx := c.runCtx
	c.mu.Unlock()
	if prober == nil {
		return
	}

	reachable := prober.Probe(ctx)
	metrics.ObserveProbe(reachable)

	c.mu.Lock()
	if c.prober != prober {
		// Superseded by a newer backend; discard.
		c.mu.Unlock()
		return
	}
	prev := c.state
	settled := c.state == StateChecking || c.state == StateIdle || c.state == StateDisabled
	if reachable {
		c.conn = ConnConnected
		if settled {
			c.state = StateIdle
		}
	} else {
		c.conn = ConnError
		if settled {
			c.state = StateDisabled
		}
	}
	st := c.state
	c.mu.Unlock()

	if reachable {
		c.log.Info().Msg("transcription service reachable")
	} else {
		c.emitError(ErrConnectivity, "transcription service unreachable")
	}
	if st != prev {
		c.emitState(st)
	}
}

func (c *Controller) emitState(s State) {
	if c.cb.OnState != nil {
		c.cb.OnState(s)
	}
}

func (c *Controller) emitError(kind ErrorKind, msg string) {
	if c.cb.OnError != nil {
		c.cb.OnError(kind, msg)
	}
}
