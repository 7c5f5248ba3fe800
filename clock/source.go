package clock

import (
	"sort"
	"sync"
	"time"
)

// TimeSource is a monotonic clock. Transport and Draw read time and wait
// through it so tests can drive them deterministically.
type TimeSource interface {
	Now() time.Duration
	NewTimer(d time.Duration) Timer
}

// Timer is the subset of time.Timer the clock needs
type Timer interface {
	C() <-chan time.Time
	Stop() bool
}

type systemSource struct {
	start time.Time
}

// System returns a TimeSource backed by the runtime's monotonic clock
func System() TimeSource {
	return &systemSource{start: time.Now()}
}

func (s *systemSource) Now() time.Duration { return time.Since(s.start) }

func (s *systemSource) NewTimer(d time.Duration) Timer {
	return systemTimer{time.NewTimer(d)}
}

type systemTimer struct{ t *time.Timer }

func (t systemTimer) C() <-chan time.Time { return t.t.C }
func (t systemTimer) Stop() bool          { return t.t.Stop() }

// Manual is a TimeSource that only moves when Advance is called
type Manual struct {
	mu     sync.Mutex
	now    time.Duration
	timers []*manualTimer
}

// NewManual returns a Manual source at time zero
func NewManual() *Manual {
	return &Manual{}
}

func (m *Manual) Now() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Manual) NewTimer(d time.Duration) Timer {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &manualTimer{deadline: m.now + d, c: make(chan time.Time, 1), owner: m}
	if d <= 0 {
		t.fire()
		return t
	}
	m.timers = append(m.timers, t)
	return t
}

// Advance moves time forward and fires every timer that came due
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now += d
	sort.SliceStable(m.timers, func(i, j int) bool {
		return m.timers[i].deadline < m.timers[j].deadline
	})
	kept := m.timers[:0]
	for _, t := range m.timers {
		if t.deadline <= m.now {
			t.fire()
			continue
		}
		kept = append(kept, t)
	}
	m.timers = kept
}

// Pending returns the number of armed timers
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.timers)
}

type manualTimer struct {
	deadline time.Duration
	c        chan time.Time
	owner    *Manual
	fired    bool
}

// fire expects owner.mu held
func (t *manualTimer) fire() {
	if t.fired {
		return
	}
	t.fired = true
	t.c <- time.Time{}.Add(t.deadline)
}

func (t *manualTimer) C() <-chan time.Time { return t.c }

func (t *manualTimer) Stop() bool {
	m := t.owner
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.fired {
		return false
	}
	t.fired = true
	for i, other := range m.timers {
		if other == t {
			m.timers = append(m.timers[:i], m.timers[i+1:]...)
			break
		}
	}
	return true
}
