package transcribe

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/rs/zerolog"
)

// OnDevice transcribes audio locally with a whisper.cpp CLI binary.
// No network involved; availability depends on the binary being on PATH
// and the model file existing.
type OnDevice struct {
	bin      string
	model    string
	language string
	log      zerolog.Logger
}

// NewOnDevice creates the on-device recognizer. bin defaults to
// "whisper-cli" when empty.
func NewOnDevice(bin, model, language string, log zerolog.Logger) *OnDevice {
	if bin == "" {
		bin = "whisper-cli"
	}
	return &OnDevice{bin: bin, model: model, language: language, log: log}
}

// Name returns the backend name.
func (o *OnDevice) Name() string { return "ondevice" }

// Available reports whether the recognizer can run: binary resolvable
// and model file present.
func (o *OnDevice) Available() bool {
	if o.model == "" {
		return false
	}
	if _, err := exec.LookPath(o.bin); err != nil {
		return false
	}
	if _, err := os.Stat(o.model); err != nil {
		return false
	}
	return true
}

// Transcribe writes the blob to a temporary WAV file and runs the
// recognizer over it. The temp file is always removed; nothing is
// persisted. Recognizer failures become a failed Outcome, never a panic.
func (o *OnDevice) Transcribe(ctx context.Context, audio []byte) Outcome {
	f, err := os.CreateTemp("", "dictate-*.wav")
	if err != nil {
		return failure(fmt.Sprintf("write temp audio: %v", err))
	}
	path := f.Name()
	defer os.Remove(path)

	if _, err := f.Write(audio); err != nil {
		f.Close()
		return failure(fmt.Sprintf("write temp audio: %v", err))
	}
	f.Close()

	args := []string{"-m", o.model, "-f", path, "--no-prints", "--no-timestamps"}
	if o.language != "" {
		args = append(args, "-l", o.language)
	}

	cmd := exec.CommandContext(ctx, o.bin, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		reason := firstLine(stderr.String())
		if reason == "" {
			reason = err.Error()
		}
		o.log.Warn().Err(err).Str("bin", o.bin).Msg("on-device recognizer failed")
		return failure("recognizer error: " + reason)
	}

	return Outcome{Text: strings.TrimSpace(stdout.String()), Succeeded: true}
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
