package clock

import (
	"container/heap"
	"errors"
	"fmt"
	"sync"
	"time"

	"clap-trainer/debug"
	"clap-trainer/position"
	"clap-trainer/sequence"
)

var (
	// ErrRunning is returned when an operation needs a stopped transport
	ErrRunning = errors.New("transport is running")
	// ErrBPMLocked is returned by SetBPM while an attempt is playing
	ErrBPMLocked = errors.New("tempo is locked while the transport runs")
	// ErrBPMRange is returned for tempos outside [MinBPM, MaxBPM]
	ErrBPMRange = fmt.Errorf("tempo must be between %d and %d", position.MinBPM, position.MaxBPM)
)

// Callback receives the transport time the callback was scheduled for.
// Work meant to be heard should be scheduled at that time, not run now.
type Callback func(at time.Duration)

// Loop is a repeat region. Events inside [Start, End) recur every
// End-Start while the transport runs.
type Loop struct {
	Start position.Position
	End   position.Position
}

// PatternLoop repeats the 8-beat grid
var PatternLoop = Loop{Start: position.LoopStart, End: position.LoopEnd}

type pending struct {
	at    position.Position
	fn    Callback
	loop  *Loop
	ahead bool // fires lookahead early
}

type entry struct {
	at     time.Duration // scheduled time, passed to fn
	due    time.Duration // when the loop runs fn
	seq    uint64
	period time.Duration
	fn     Callback
}

type entryHeap []*entry

func (h entryHeap) Len() int { return len(h) }
func (h entryHeap) Less(i, j int) bool {
	if h[i].due != h[j].due {
		return h[i].due < h[j].due
	}
	return h[i].seq < h[j].seq
}
func (h entryHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *entryHeap) Push(x any)   { *h = append(*h, x.(*entry)) }
func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}

// Transport is the musical clock. Callbacks are scheduled by position
// while stopped and fire in time order on the transport goroutine once
// started. Callbacks must not call Stop; hand the request to another
// goroutine instead.
type Transport struct {
	src       TimeSource
	lookahead time.Duration

	mu      sync.Mutex
	bpm     float64
	running bool
	origin  time.Duration
	seq     uint64
	pending []pending
	queue   entryHeap
	wake    chan struct{}
	stop    chan struct{}
	done    chan struct{}
}

// Option configures a Transport
type Option func(*Transport)

// WithLookahead fires sound callbacks (SchedulePart, ScheduleSound) d
// before their scheduled time so audio can be queued ahead of the output
// buffer. Schedule callbacks always fire on time.
func WithLookahead(d time.Duration) Option {
	return func(t *Transport) { t.lookahead = d }
}

// WithBPM sets the initial tempo
func WithBPM(bpm float64) Option {
	return func(t *Transport) { t.bpm = bpm }
}

// NewTransport returns a stopped transport at 120 BPM
func NewTransport(src TimeSource, opts ...Option) *Transport {
	if src == nil {
		src = System()
	}
	t := &Transport{
		src:  src,
		bpm:  120,
		wake: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Source returns the time source the transport runs on
func (t *Transport) Source() TimeSource { return t.src }

// BPM returns the current tempo
func (t *Transport) BPM() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.bpm
}

// SetBPM changes the tempo. The tempo is fixed for the duration of a run.
func (t *Transport) SetBPM(bpm float64) error {
	if !position.ValidBPM(bpm) {
		return ErrBPMRange
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return ErrBPMLocked
	}
	t.bpm = bpm
	return nil
}

// Running reports whether the transport is started
func (t *Transport) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

// Now returns the time since the last Start, or zero while stopped
func (t *Transport) Now() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.running {
		return 0
	}
	return t.src.Now() - t.origin
}

// Position returns the current musical position, rounded down
func (t *Transport) Position() position.Position {
	now := t.Now()
	t.mu.Lock()
	bpm := t.bpm
	t.mu.Unlock()
	return position.FromSixteenths(int(now / position.SixteenthDuration(bpm)))
}

// Schedule fires fn once at the given position
func (t *Transport) Schedule(at position.Position, fn Callback) error {
	return t.schedule(at, fn, false)
}

// ScheduleSound fires fn once, lookahead before the given position
func (t *Transport) ScheduleSound(at position.Position, fn Callback) error {
	return t.schedule(at, fn, true)
}

func (t *Transport) schedule(at position.Position, fn Callback, ahead bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return debug.Misuse("clock", fmt.Errorf("schedule at %s: %w", at, ErrRunning))
	}
	t.pending = append(t.pending, pending{at: at, fn: fn, ahead: ahead})
	return nil
}

// SchedulePart fires fire for every event, lookahead early. With a loop
// region, events inside the region repeat for as long as the transport
// runs.
func (t *Transport) SchedulePart(events []sequence.Event, fire func(slot int, at time.Duration), loop *Loop) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return debug.Misuse("clock", fmt.Errorf("schedule part: %w", ErrRunning))
	}
	for _, ev := range events {
		slot := ev.Slot
		t.pending = append(t.pending, pending{
			at:    ev.At,
			fn:    func(at time.Duration) { fire(slot, at) },
			loop:  loop,
			ahead: true,
		})
	}
	return nil
}

// CancelAll drops every scheduled callback, queued or pending
func (t *Transport) CancelAll() {
	t.mu.Lock()
	t.pending = nil
	t.queue = nil
	t.mu.Unlock()
	t.poke()
}

// Start begins a run from position zero
func (t *Transport) Start() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return debug.Misuse("clock", fmt.Errorf("start: %w", ErrRunning))
	}

	t.queue = t.queue[:0]
	for _, p := range t.pending {
		at := p.at.Duration(t.bpm)
		e := &entry{at: at, due: at, seq: t.seq, fn: p.fn}
		if p.ahead {
			e.due -= t.lookahead
		}
		t.seq++
		if p.loop != nil && !p.at.Less(p.loop.Start) && p.at.Less(p.loop.End) {
			e.period = p.loop.End.Duration(t.bpm) - p.loop.Start.Duration(t.bpm)
		}
		heap.Push(&t.queue, e)
	}
	t.pending = nil

	t.running = true
	t.origin = t.src.Now()
	t.stop = make(chan struct{})
	t.done = make(chan struct{})
	debug.Log("clock", "start bpm=%.0f events=%d", t.bpm, len(t.queue))
	go t.run(t.stop, t.done)
	return nil
}

// Stop halts the run and discards every scheduled callback. No callback
// fires once Stop has returned.
func (t *Transport) Stop() {
	t.mu.Lock()
	if !t.running {
		t.pending = nil
		t.mu.Unlock()
		return
	}
	t.running = false
	t.pending = nil
	t.queue = nil
	close(t.stop)
	done := t.done
	t.mu.Unlock()

	<-done
	debug.Log("clock", "stop")
}

func (t *Transport) poke() {
	select {
	case t.wake <- struct{}{}:
	default:
	}
}

func (t *Transport) run(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	for {
		t.mu.Lock()
		if len(t.queue) == 0 {
			t.mu.Unlock()
			select {
			case <-stop:
				return
			case <-t.wake:
				continue
			}
		}
		next := t.queue[0]
		wait := t.origin + next.due - t.src.Now()
		t.mu.Unlock()

		if wait > 0 {
			timer := t.src.NewTimer(wait)
			select {
			case <-stop:
				timer.Stop()
				return
			case <-t.wake:
				timer.Stop()
				continue
			case <-timer.C():
			}
		}

		t.mu.Lock()
		select {
		case <-stop:
			t.mu.Unlock()
			return
		default:
		}
		if len(t.queue) == 0 || t.queue[0] != next {
			// cancelled or preempted while waiting
			t.mu.Unlock()
			continue
		}
		heap.Pop(&t.queue)
		if next.period > 0 {
			heap.Push(&t.queue, &entry{
				at:     next.at + next.period,
				due:    next.due + next.period,
				seq:    t.seq,
				period: next.period,
				fn:     next.fn,
			})
			t.seq++
		}
		t.mu.Unlock()

		next.fn(next.at)
	}
}
