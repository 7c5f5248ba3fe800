package quiz

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"clap-trainer/debug"
	"clap-trainer/onset"
	"clap-trainer/position"
)

// ErrAlreadyRecording is returned by Begin while a session is active
var ErrAlreadyRecording = errors.New("already recording")

// CapturedOnset is one clap placed on the recording grid
type CapturedOnset struct {
	DetectedAt time.Duration `json:"detectedAt"` // transport time
	Slot       int           `json:"slot"`       // rounded, RecordingOffset based
	Exact      float64       `json:"exact"`      // unrounded slot position
}

// Capture converts a detection time into a captured onset relative to
// the recording origin
func Capture(at, origin time.Duration, bpm float64) CapturedOnset {
	rel := at - origin
	return CapturedOnset{
		DetectedAt: at,
		Slot:       position.RecordedSlot(rel, bpm),
		Exact:      position.ExactSlot(rel, bpm) + position.RecordingOffset,
	}
}

// Recording collects onsets for one recording window. It owns the
// listener and releases it in End.
type Recording struct {
	listener onset.Listener
	bpm      float64
	onOnset  func(CapturedOnset)

	mu       sync.Mutex
	active   bool
	released bool
	origin   time.Duration
	onsets   []CapturedOnset
}

// NewRecording wraps an acquired listener. onOnset, if set, sees every
// captured onset as it arrives.
func NewRecording(l onset.Listener, bpm float64, onOnset func(CapturedOnset)) *Recording {
	return &Recording{listener: l, bpm: bpm, onOnset: onOnset}
}

// Begin clears the buffer and starts listening with origin as slot
// RecordingOffset
func (r *Recording) Begin(origin time.Duration) error {
	r.mu.Lock()
	if r.active {
		r.mu.Unlock()
		return debug.Misuse("quiz", fmt.Errorf("begin recording: %w", ErrAlreadyRecording))
	}
	if r.released {
		r.mu.Unlock()
		return fmt.Errorf("begin recording: %w", onset.ErrInputUnavailable)
	}
	r.active = true
	r.origin = origin
	r.onsets = nil
	r.mu.Unlock()

	if err := r.listener.Start(r.capture); err != nil {
		r.mu.Lock()
		r.active = false
		r.mu.Unlock()
		r.release()
		return fmt.Errorf("begin recording: %w", err)
	}
	debug.Log("quiz", "recording origin=%v bpm=%.0f", origin, r.bpm)
	return nil
}

func (r *Recording) capture(o onset.Onset) {
	r.mu.Lock()
	if !r.active {
		r.mu.Unlock()
		return
	}
	c := Capture(o.At, r.origin, r.bpm)
	r.onsets = append(r.onsets, c)
	fn := r.onOnset
	r.mu.Unlock()

	debug.Log("quiz", "onset slot=%d exact=%.2f rms=%.3f", c.Slot, c.Exact, o.RMS)
	if fn != nil {
		fn(c)
	}
}

// End stops listening, releases the input and returns the buffer. End
// is safe to call more than once and before Begin.
func (r *Recording) End() []CapturedOnset {
	r.listener.Stop()

	r.mu.Lock()
	r.active = false
	out := append([]CapturedOnset(nil), r.onsets...)
	r.mu.Unlock()

	r.release()
	return out
}

func (r *Recording) release() {
	r.mu.Lock()
	if r.released {
		r.mu.Unlock()
		return
	}
	r.released = true
	r.mu.Unlock()

	if err := r.listener.Close(); err != nil {
		debug.Log("quiz", "release input: %v", err)
	}
}

// Active reports whether the window is open
func (r *Recording) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// Onsets returns a copy of what has been captured so far
func (r *Recording) Onsets() []CapturedOnset {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]CapturedOnset(nil), r.onsets...)
}
