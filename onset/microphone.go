package onset

import (
	"errors"
	"fmt"

	"clap-trainer/clock"
	"clap-trainer/debug"
)

// Constraints are the processing options requested from the input
// device. Clap detection wants the raw signal: echo cancellation clips
// transients, noise suppression eats claps and auto-gain moves the
// threshold.
type Constraints struct {
	EchoCancellation bool
	NoiseSuppression bool
	AutoGainControl  bool
}

// RawConstraints disables all processing
func RawConstraints() Constraints {
	return Constraints{}
}

// ErrUnsupportedConstraints is returned by a source that cannot honour the
// requested processing
var ErrUnsupportedConstraints = errors.New("input processing not supported")

// Source opens the physical input
type Source interface {
	Open(c Constraints) (Stream, error)
}

// Microphone is an Input that opens Source per attempt and analyzes it
// with a Detector
type Microphone struct {
	Source      Source
	Constraints Constraints
	Config      Config
	Timeline    clock.Now
	Clock       clock.TimeSource
}

// Acquire opens the input. Every failure wraps ErrInputUnavailable.
func (m *Microphone) Acquire() (Listener, error) {
	if m.Source == nil {
		return nil, fmt.Errorf("acquire microphone: no source: %w", ErrInputUnavailable)
	}
	stream, err := m.Source.Open(m.Constraints)
	if err != nil {
		debug.Log("onset", "open input failed: %v", err)
		if errors.Is(err, ErrInputUnavailable) {
			return nil, fmt.Errorf("acquire microphone: %w", err)
		}
		return nil, fmt.Errorf("acquire microphone: %w: %v", ErrInputUnavailable, err)
	}
	return NewDetector(stream, m.Timeline, m.Clock, m.Config), nil
}

// StreamSource opens a fixed stream, for tests and replays
type StreamSource struct {
	Stream Stream
	Err    error
	Opens  int
}

func (s *StreamSource) Open(Constraints) (Stream, error) {
	s.Opens++
	if s.Err != nil {
		return nil, s.Err
	}
	return s.Stream, nil
}
