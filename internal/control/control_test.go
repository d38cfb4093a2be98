package control

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ashpool/dictate/internal/capture"
	"github.com/ashpool/dictate/internal/transcribe"
)

type fakeCapture struct {
	mu        sync.Mutex
	recording bool
	startErr  error
	blob      []byte
	starts    int
	stops     int
	resets    int
}

func (f *fakeCapture) Start() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	f.starts++
	f.recording = true
	return nil
}

func (f *fakeCapture) Stop() ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	f.recording = false
	return f.blob, nil
}

func (f *fakeCapture) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets++
	f.recording = false
}

func (f *fakeCapture) Recording() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.recording
}

func (f *fakeCapture) Elapsed() time.Duration { return 0 }

func (f *fakeCapture) counts() (starts, stops, resets int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts, f.stops, f.resets
}

// fakeBackend is an on-device-style backend: no Probe method.
type fakeBackend struct {
	mu    sync.Mutex
	out   transcribe.Outcome
	calls int
	block chan struct{} // when non-nil, Transcribe waits on it
}

func (f *fakeBackend) Name() string { return "fake" }

func (f *fakeBackend) Transcribe(ctx context.Context, audio []byte) transcribe.Outcome {
	f.mu.Lock()
	f.calls++
	block := f.block
	out := f.out
	f.mu.Unlock()
	if block != nil {
		<-block
	}
	return out
}

func (f *fakeBackend) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeRemote adds a Probe method, making the controller treat it as a
// remote backend.
type fakeRemote struct {
	fakeBackend
	reachable bool
}

func (f *fakeRemote) Name() string { return "remote" }

func (f *fakeRemote) Probe(ctx context.Context) bool { return f.reachable }

type recorded struct {
	mu      sync.Mutex
	results []string
	errors  []string
	kinds   []ErrorKind
	states  []State
}

func (r *recorded) callbacks() Callbacks {
	return Callbacks{
		OnResult: func(text string) {
			r.mu.Lock()
			r.results = append(r.results, text)
			r.mu.Unlock()
		},
		OnError: func(kind ErrorKind, msg string) {
			r.mu.Lock()
			r.kinds = append(r.kinds, kind)
			r.errors = append(r.errors, msg)
			r.mu.Unlock()
		},
		OnState: func(s State) {
			r.mu.Lock()
			r.states = append(r.states, s)
			r.mu.Unlock()
		},
	}
}

func (r *recorded) stateCount(s State) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, st := range r.states {
		if st == s {
			n++
		}
	}
	return n
}

func (r *recorded) resultCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.results)
}

func (r *recorded) lastError() (ErrorKind, string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.errors) == 0 {
		return 0, ""
	}
	return r.kinds[len(r.kinds)-1], r.errors[len(r.errors)-1]
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestUnconfigured(t *testing.T) {
	cap := &fakeCapture{}
	rec := &recorded{}
	c := New(Options{Capture: cap, Callbacks: rec.callbacks(), Log: zerolog.Nop()})

	if c.State() != StateUnconfigured {
		t.Errorf("state = %v, want unconfigured", c.State())
	}
	c.Start(context.Background())

	kind, msg := rec.lastError()
	if kind != ErrConfiguration {
		t.Errorf("error kind = %v, want configuration", kind)
	}
	if msg != "no transcription backend available" {
		t.Errorf("error msg = %q", msg)
	}

	// Interaction stays rejected.
	c.Toggle()
	if starts, _, _ := cap.counts(); starts != 0 {
		t.Errorf("capture started %d times while unconfigured", starts)
	}
}

func TestRemoteHappyPath(t *testing.T) {
	cap := &fakeCapture{blob: []byte("RIFFwav")}
	rec := &recorded{}
	backend := &fakeRemote{reachable: true}
	backend.out = transcribe.Outcome{Text: "hello world", Succeeded: true}

	c := New(Options{Backend: backend, Capture: cap, Callbacks: rec.callbacks(), Log: zerolog.Nop()})
	if c.State() != StateChecking {
		t.Fatalf("initial state = %v, want checking", c.State())
	}
	c.Start(context.Background())
	waitFor(t, "probe to settle", func() bool { return c.State() == StateIdle })

	c.Toggle()
	if c.State() != StateRecording {
		t.Fatalf("state after toggle = %v, want recording", c.State())
	}

	c.Toggle()
	waitFor(t, "transcription result", func() bool { return rec.resultCount() == 1 })
	waitFor(t, "return to idle", func() bool { return c.State() == StateIdle })

	rec.mu.Lock()
	got := rec.results[0]
	rec.mu.Unlock()
	if got != "hello world" {
		t.Errorf("result = %q, want hello world", got)
	}
	if backend.callCount() != 1 {
		t.Errorf("Transcribe called %d times, want 1", backend.callCount())
	}

	// Exactly one outcome per finalized blob: nothing else arrives.
	time.Sleep(20 * time.Millisecond)
	if rec.resultCount() != 1 {
		t.Errorf("results = %d, want exactly 1", rec.resultCount())
	}
}

func TestRemoteFailureRoutesToErrorCallback(t *testing.T) {
	cap := &fakeCapture{blob: []byte("RIFFwav")}
	rec := &recorded{}
	backend := &fakeRemote{reachable: true}
	backend.out = transcribe.Outcome{Succeeded: false, FailureReason: "overloaded"}

	c := New(Options{Backend: backend, Capture: cap, Callbacks: rec.callbacks(), Log: zerolog.Nop()})
	c.Start(context.Background())
	waitFor(t, "probe to settle", func() bool { return c.State() == StateIdle })

	c.Toggle()
	c.Toggle()
	waitFor(t, "error delivery", func() bool { _, msg := rec.lastError(); return msg != "" })
	waitFor(t, "return to idle", func() bool { return c.State() == StateIdle })

	kind, msg := rec.lastError()
	if kind != ErrTranscription {
		t.Errorf("error kind = %v, want transcription", kind)
	}
	if msg != "overloaded" {
		t.Errorf("error msg = %q, want overloaded", msg)
	}
	if rec.resultCount() != 0 {
		t.Errorf("results = %d for a failed attempt, want 0", rec.resultCount())
	}
}

func TestUnreachableEndpointDisablesControl(t *testing.T) {
	cap := &fakeCapture{blob: []byte("RIFFwav")}
	rec := &recorded{}
	backend := &fakeRemote{reachable: false}

	c := New(Options{Backend: backend, Capture: cap, Callbacks: rec.callbacks(), Log: zerolog.Nop()})
	c.Start(context.Background())
	waitFor(t, "probe to settle", func() bool { return c.State() == StateDisabled })

	kind, _ := rec.lastError()
	if kind != ErrConnectivity {
		t.Errorf("error kind = %v, want connectivity", kind)
	}

	// Toggle while disabled is a no-op.
	c.Toggle()
	if starts, _, _ := cap.counts(); starts != 0 {
		t.Errorf("capture started %d times while disabled", starts)
	}
	if rec.resultCount() != 0 {
		t.Error("result delivered while disabled")
	}
}

func TestToggleWhileTranscribingIsNoOp(t *testing.T) {
	cap := &fakeCapture{blob: []byte("RIFFwav")}
	rec := &recorded{}
	backend := &fakeRemote{reachable: true}
	backend.out = transcribe.Outcome{Text: "late", Succeeded: true}
	backend.block = make(chan struct{})

	c := New(Options{Backend: backend, Capture: cap, Callbacks: rec.callbacks(), Log: zerolog.Nop()})
	c.Start(context.Background())
	waitFor(t, "probe to settle", func() bool { return c.State() == StateIdle })

	c.Toggle() // start
	c.Toggle() // stop, transcription blocks
	waitFor(t, "transcribing state", func() bool { return c.State() == StateTranscribing })

	c.Toggle() // must be rejected
	if starts, _, _ := cap.counts(); starts != 1 {
		t.Errorf("capture started %d times, want 1", starts)
	}

	close(backend.block)
	waitFor(t, "return to idle", func() bool { return c.State() == StateIdle })
	if backend.callCount() != 1 {
		t.Errorf("Transcribe called %d times, want 1", backend.callCount())
	}
}

func TestOnDeviceSkipsConnectivityGate(t *testing.T) {
	cap := &fakeCapture{blob: []byte("RIFFwav")}
	rec := &recorded{}
	backend := &fakeBackend{out: transcribe.Outcome{Text: "local", Succeeded: true}}

	c := New(Options{Backend: backend, Capture: cap, Callbacks: rec.callbacks(), Log: zerolog.Nop()})
	// No probe: straight to idle.
	if c.State() != StateIdle {
		t.Fatalf("initial state = %v, want idle", c.State())
	}
	c.Start(context.Background())

	c.Toggle()
	c.Toggle()
	waitFor(t, "result", func() bool { return rec.resultCount() == 1 })

	rec.mu.Lock()
	got := rec.results[0]
	rec.mu.Unlock()
	if got != "local" {
		t.Errorf("result = %q, want local", got)
	}
}

func TestPermissionDeniedDisables(t *testing.T) {
	cap := &fakeCapture{startErr: capture.ErrPermissionDenied}
	rec := &recorded{}
	backend := &fakeBackend{}

	c := New(Options{Backend: backend, Capture: cap, Callbacks: rec.callbacks(), Log: zerolog.Nop()})
	c.Start(context.Background())

	c.Toggle()
	if c.State() != StateDisabled {
		t.Errorf("state = %v after denial, want disabled", c.State())
	}
	kind, _ := rec.lastError()
	if kind != ErrPermission {
		t.Errorf("error kind = %v, want permission", kind)
	}
}

func TestEmptySessionReturnsToIdle(t *testing.T) {
	cap := &fakeCapture{blob: nil}
	rec := &recorded{}
	backend := &fakeBackend{}

	c := New(Options{Backend: backend, Capture: cap, Callbacks: rec.callbacks(), Log: zerolog.Nop()})
	c.Start(context.Background())

	c.Toggle()
	c.Toggle()
	if c.State() != StateIdle {
		t.Errorf("state = %v, want idle", c.State())
	}
	if backend.callCount() != 0 {
		t.Errorf("Transcribe called %d times for empty session", backend.callCount())
	}
}

func TestResetWhileRecording(t *testing.T) {
	cap := &fakeCapture{blob: []byte("RIFFwav")}
	backend := &fakeBackend{}

	c := New(Options{Backend: backend, Capture: cap, Log: zerolog.Nop()})
	c.Start(context.Background())

	c.Toggle()
	c.Reset()
	if c.State() != StateIdle {
		t.Errorf("state = %v after reset, want idle", c.State())
	}
	if _, _, resets := cap.counts(); resets != 1 {
		t.Errorf("capture reset %d times, want 1", resets)
	}
}

func TestBackendUpdateWhileRecordingEmitsNoDuplicateState(t *testing.T) {
	cap := &fakeCapture{blob: []byte("RIFFwav")}
	rec := &recorded{}
	backend := &fakeRemote{reachable: true}

	c := New(Options{Backend: backend, Capture: cap, Callbacks: rec.callbacks(), Log: zerolog.Nop()})
	c.Start(context.Background())
	waitFor(t, "probe to settle", func() bool { return c.State() == StateIdle })

	c.Toggle()
	waitFor(t, "recording state", func() bool { return c.State() == StateRecording })

	// A backend swap mid-session re-probes underneath the session but
	// must not announce the unchanged recording state again.
	c.UpdateBackend(&fakeRemote{reachable: true})
	waitFor(t, "reprobe to settle", func() bool { return c.Connectivity() == ConnConnected })

	if c.State() != StateRecording {
		t.Fatalf("state = %v, want recording", c.State())
	}
	if got := rec.stateCount(StateRecording); got != 1 {
		t.Errorf("recording state emitted %d times, want 1", got)
	}
}

func TestUpdateBackendReprobes(t *testing.T) {
	cap := &fakeCapture{}
	rec := &recorded{}
	down := &fakeRemote{reachable: false}

	c := New(Options{Backend: down, Capture: cap, Callbacks: rec.callbacks(), Log: zerolog.Nop()})
	c.Start(context.Background())
	waitFor(t, "disabled after failed probe", func() bool { return c.State() == StateDisabled })

	up := &fakeRemote{reachable: true}
	c.UpdateBackend(up)
	waitFor(t, "idle after endpoint change", func() bool { return c.State() == StateIdle })

	if c.Connectivity() != ConnConnected {
		t.Errorf("connectivity = %v, want connected", c.Connectivity())
	}
}
