package clock

import (
	"sort"
	"sync"
	"time"
)

// FrameRate is how often Draw flushes due callbacks
const FrameRate = 60

// Now is anything that reports the current time on a shared timeline
type Now interface {
	Now() time.Duration
}

type drawItem struct {
	at        time.Duration
	seq       uint64
	immediate bool
	fn        func()
}

// Draw defers visual updates until the audio they describe is due, then
// runs them together on a single frame goroutine. A callback scheduled
// for time T never runs before the timeline reaches T.
type Draw struct {
	timeline Now
	src      TimeSource
	interval time.Duration

	mu    sync.Mutex
	items []drawItem
	seq   uint64
	gen   uint64

	frameMu sync.Mutex // held while a frame runs

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewDraw starts a frame loop on src that releases callbacks once
// timeline reaches their time
func NewDraw(timeline Now, src TimeSource) *Draw {
	if src == nil {
		src = System()
	}
	d := &Draw{
		timeline: timeline,
		src:      src,
		interval: time.Second / FrameRate,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go d.loop()
	return d
}

// Schedule runs fn on the first frame at or after timeline time at
func (d *Draw) Schedule(at time.Duration, fn func()) {
	d.mu.Lock()
	d.items = append(d.items, drawItem{at: at, seq: d.seq, fn: fn})
	d.seq++
	d.mu.Unlock()
}

// Post runs fn on the next frame regardless of the timeline
func (d *Draw) Post(fn func()) {
	d.mu.Lock()
	d.items = append(d.items, drawItem{seq: d.seq, immediate: true, fn: fn})
	d.seq++
	d.mu.Unlock()
}

// Cancel drops every queued callback. A frame already running finishes
// before Cancel returns, so nothing queued earlier runs afterwards.
// Cancel must not be called from a draw callback.
func (d *Draw) Cancel() {
	d.mu.Lock()
	d.items = nil
	d.gen++
	d.mu.Unlock()

	d.frameMu.Lock()
	d.frameMu.Unlock()
}

// Pending returns the number of queued callbacks
func (d *Draw) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.items)
}

// Close stops the frame loop. Queued callbacks are dropped.
func (d *Draw) Close() {
	d.stopOnce.Do(func() { close(d.stop) })
	<-d.done
}

func (d *Draw) loop() {
	defer close(d.done)
	for {
		timer := d.src.NewTimer(d.interval)
		select {
		case <-d.stop:
			timer.Stop()
			return
		case <-timer.C():
			d.flush()
		}
	}
}

func (d *Draw) flush() {
	d.frameMu.Lock()
	defer d.frameMu.Unlock()

	now := d.timeline.Now()

	d.mu.Lock()
	gen := d.gen
	var due []drawItem
	kept := d.items[:0]
	for _, it := range d.items {
		if it.immediate || it.at <= now {
			due = append(due, it)
			continue
		}
		kept = append(kept, it)
	}
	d.items = kept
	d.mu.Unlock()

	if len(due) == 0 {
		return
	}
	sort.SliceStable(due, func(i, j int) bool {
		if due[i].at != due[j].at {
			return due[i].at < due[j].at
		}
		return due[i].seq < due[j].seq
	})
	for _, it := range due {
		d.mu.Lock()
		stale := d.gen != gen
		d.mu.Unlock()
		if stale {
			return
		}
		it.fn()
	}
}
