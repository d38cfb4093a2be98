package capture

import (
	"fmt"
	"io"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// encodeWAV packs int16 PCM samples into a 16-bit WAV container. The
// wav encoder needs an io.WriteSeeker to patch the header, so the bytes
// go through a temp file that is removed before returning; recordings
// are never persisted.
func encodeWAV(samples []int16, sampleRate, channels int) ([]byte, error) {
	f, err := os.CreateTemp("", "dictate-capture-*.wav")
	if err != nil {
		return nil, fmt.Errorf("create temp wav: %w", err)
	}
	path := f.Name()
	defer os.Remove(path)

	enc := wav.NewEncoder(f, sampleRate, 16, channels, 1)
	buf := &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: channels,
			SampleRate:  sampleRate,
		},
		Data:           make([]int, len(samples)),
		SourceBitDepth: 16,
	}
	for i, s := range samples {
		buf.Data[i] = int(s)
	}

	if err := enc.Write(buf); err != nil {
		enc.Close()
		f.Close()
		return nil, fmt.Errorf("encode wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		f.Close()
		return nil, fmt.Errorf("close wav encoder: %w", err)
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		return nil, err
	}
	blob, err := io.ReadAll(f)
	f.Close()
	if err != nil {
		return nil, fmt.Errorf("read back wav: %w", err)
	}
	return blob, nil
}
