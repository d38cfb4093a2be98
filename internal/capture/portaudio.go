package capture

import (
	"fmt"

	"github.com/gordonklaus/portaudio"
)

const framesPerChunk = 1024

// OpenDefaultSource opens the system default input device via PortAudio.
// The library is initialized per source and terminated on Close, the
// same pairing the capture session lifecycle guarantees.
func OpenDefaultSource(sampleRate, channels int) (Source, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio init: %w", err)
	}

	buf := make([]int16, framesPerChunk*channels)
	stream, err := portaudio.OpenDefaultStream(channels, 0, float64(sampleRate), framesPerChunk, buf)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("open default input stream: %w", err)
	}
	return &portaudioSource{stream: stream, buf: buf}, nil
}

type portaudioSource struct {
	stream *portaudio.Stream
	buf    []int16
}

func (s *portaudioSource) Start() error { return s.stream.Start() }

func (s *portaudioSource) Read() ([]int16, error) {
	if err := s.stream.Read(); err != nil {
		return nil, err
	}
	out := make([]int16, len(s.buf))
	copy(out, s.buf)
	return out, nil
}

func (s *portaudioSource) Stop() error { return s.stream.Stop() }

func (s *portaudioSource) Close() error {
	err := s.stream.Close()
	portaudio.Terminate()
	return err
}
