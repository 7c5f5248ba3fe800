package clock

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedTimeline struct{ now atomic.Int64 }

func (f *fixedTimeline) Now() time.Duration  { return time.Duration(f.now.Load()) }
func (f *fixedTimeline) set(d time.Duration) { f.now.Store(int64(d)) }

type calls struct {
	mu  sync.Mutex
	got []string
}

func (c *calls) add(s string) func() {
	return func() {
		c.mu.Lock()
		c.got = append(c.got, s)
		c.mu.Unlock()
	}
}

func (c *calls) list() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.got...)
}

func frames(src *Manual, n int) {
	for i := 0; i < n; i++ {
		src.Advance(time.Second / FrameRate)
		time.Sleep(time.Millisecond)
	}
}

func TestDrawNeverRunsEarly(t *testing.T) {
	src := NewManual()
	tl := &fixedTimeline{}
	d := NewDraw(tl, src)
	defer d.Close()
	c := &calls{}

	d.Schedule(100*time.Millisecond, c.add("beat"))
	tl.set(99 * time.Millisecond)
	frames(src, 10)
	assert.Empty(t, c.list())

	tl.set(100 * time.Millisecond)
	drive(t, src, func() bool { return len(c.list()) == 1 })
}

func TestDrawCoalescesInTimeOrder(t *testing.T) {
	src := NewManual()
	tl := &fixedTimeline{}
	d := NewDraw(tl, src)
	defer d.Close()
	c := &calls{}

	d.Schedule(30*time.Millisecond, c.add("c"))
	d.Schedule(10*time.Millisecond, c.add("a"))
	d.Schedule(20*time.Millisecond, c.add("b"))
	d.Schedule(20*time.Millisecond, c.add("b2"))
	tl.set(time.Second)

	drive(t, src, func() bool { return len(c.list()) == 4 })
	assert.Equal(t, []string{"a", "b", "b2", "c"}, c.list())
}

func TestDrawCancel(t *testing.T) {
	src := NewManual()
	tl := &fixedTimeline{}
	d := NewDraw(tl, src)
	defer d.Close()
	c := &calls{}

	d.Schedule(50*time.Millisecond, c.add("late"))
	require.Equal(t, 1, d.Pending())
	d.Cancel()
	tl.set(time.Second)
	frames(src, 10)

	assert.Empty(t, c.list())
	assert.Zero(t, d.Pending())
}

func TestDrawPostIgnoresTimeline(t *testing.T) {
	src := NewManual()
	d := NewDraw(&fixedTimeline{}, src)
	defer d.Close()
	c := &calls{}

	d.Post(c.add("phase"))
	drive(t, src, func() bool { return len(c.list()) == 1 })
}
