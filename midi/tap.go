package midi

import (
	"fmt"
	"sync"

	"clap-trainer/clock"
	"clap-trainer/debug"
	"clap-trainer/onset"
)

// Tap turns a pad controller into an onset input: every hit counts as a
// clap, stamped with the timeline time it arrived
type Tap struct {
	Controller Controller
	Timeline   clock.Now

	mu sync.Mutex
}

// SetController swaps the pad controller as devices come and go. nil
// makes the input unavailable.
func (t *Tap) SetController(c Controller) {
	t.mu.Lock()
	t.Controller = c
	t.mu.Unlock()
}

// Release drops the controller if it is the one with id
func (t *Tap) Release(id string) {
	t.mu.Lock()
	if t.Controller != nil && t.Controller.ID() == id {
		t.Controller = nil
	}
	t.mu.Unlock()
}

// Acquire returns a listener over the controller's note events
func (t *Tap) Acquire() (onset.Listener, error) {
	t.mu.Lock()
	c := t.Controller
	t.mu.Unlock()
	if c == nil {
		return nil, fmt.Errorf("acquire tap pads: no controller: %w", onset.ErrInputUnavailable)
	}
	return &tapListener{notes: c.NoteEvents(), timeline: t.Timeline}, nil
}

type tapListener struct {
	notes    <-chan NoteEvent
	timeline clock.Now

	mu      sync.Mutex
	running bool
	closed  bool
	stop    chan struct{}
	done    chan struct{}
}

func (l *tapListener) Start(fn func(onset.Onset)) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return fmt.Errorf("start tap: %w", onset.ErrInputUnavailable)
	}
	if l.running {
		return debug.Misuse("midi", fmt.Errorf("start tap: %w", onset.ErrRunning))
	}

	// hits from before the window do not count
	for drained := false; !drained; {
		select {
		case <-l.notes:
		default:
			drained = true
		}
	}

	l.running = true
	l.stop = make(chan struct{})
	l.done = make(chan struct{})
	go l.loop(fn, l.stop, l.done)
	return nil
}

func (l *tapListener) loop(fn func(onset.Onset), stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-stop:
			return
		case ev, ok := <-l.notes:
			if !ok {
				return
			}
			o := onset.Onset{At: l.timeline.Now(), RMS: float64(ev.Velocity) / 127}
			debug.Log("midi", "tap note=%d vel=%d at=%v", ev.Note, ev.Velocity, o.At)
			fn(o)
		}
	}
}

func (l *tapListener) Stop() {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	l.running = false
	close(l.stop)
	done := l.done
	l.mu.Unlock()
	<-done
}

// Close ends the listener. The controller stays open; the device
// manager owns it.
func (l *tapListener) Close() error {
	l.Stop()
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	return nil
}
