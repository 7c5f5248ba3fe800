package quiz

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clap-trainer/clock"
	"clap-trainer/debug"
	"clap-trainer/onset"
	"clap-trainer/pattern"
	"clap-trainer/position"
	"clap-trainer/sequencer"
)

type nopVoice struct{}

func (nopVoice) SetVolume(float64, time.Duration)                 {}
func (nopVoice) TriggerAttackRelease(time.Duration, time.Duration) {}
func (nopVoice) Cancel()                                           {}
func (nopVoice) Dispose()                                          {}

type fakeCue struct {
	mu    sync.Mutex
	notes []string
}

func (c *fakeCue) Tick(note string, dur time.Duration) error {
	c.mu.Lock()
	c.notes = append(c.notes, note)
	c.mu.Unlock()
	return nil
}

func (c *fakeCue) list() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.notes...)
}

type fakeListener struct {
	mu      sync.Mutex
	fn      func(onset.Onset)
	started bool
	stopped bool
	closed  bool
}

func (l *fakeListener) Start(fn func(onset.Onset)) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return onset.ErrInputUnavailable
	}
	l.fn = fn
	l.started = true
	return nil
}

func (l *fakeListener) Stop() {
	l.mu.Lock()
	if l.started {
		l.stopped = true
	}
	l.fn = nil
	l.mu.Unlock()
}

func (l *fakeListener) Close() error {
	l.Stop()
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	return nil
}

func (l *fakeListener) emit(at time.Duration) {
	l.mu.Lock()
	fn := l.fn
	l.mu.Unlock()
	if fn != nil {
		fn(onset.Onset{At: at, RMS: 0.5})
	}
}

func (l *fakeListener) state() (started, closed bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.started, l.closed
}

type fakeInput struct {
	mu        sync.Mutex
	err       error
	listeners []*fakeListener
}

func (in *fakeInput) Acquire() (onset.Listener, error) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.err != nil {
		return nil, fmt.Errorf("open: %w", in.err)
	}
	l := &fakeListener{}
	in.listeners = append(in.listeners, l)
	return l, nil
}

func (in *fakeInput) last() *fakeListener {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.listeners[len(in.listeners)-1]
}

type memHistory struct {
	mu      sync.Mutex
	records []Record
	err     error
}

func (h *memHistory) Append(r Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.err != nil {
		return h.err
	}
	h.records = append([]Record{r}, h.records...)
	return nil
}

func (h *memHistory) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.records)
}

type events struct {
	mu      sync.Mutex
	phases  []Phase
	results []Record
	onsets  []CapturedOnset
	counts  []int
	errs    []error
}

func (e *events) callbacks() Callbacks {
	return Callbacks{
		OnPhaseChange: func(p Phase) { e.mu.Lock(); e.phases = append(e.phases, p); e.mu.Unlock() },
		OnQuizResult:  func(r Record) { e.mu.Lock(); e.results = append(e.results, r); e.mu.Unlock() },
		OnOnset:       func(c CapturedOnset) { e.mu.Lock(); e.onsets = append(e.onsets, c); e.mu.Unlock() },
		OnCountdown:   func(n int) { e.mu.Lock(); e.counts = append(e.counts, n); e.mu.Unlock() },
		OnError:       func(err error) { e.mu.Lock(); e.errs = append(e.errs, err); e.mu.Unlock() },
	}
}

func (e *events) phaseList() []Phase {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Phase(nil), e.phases...)
}

type rig struct {
	m       *Machine
	src     *clock.Manual
	ctx     *sequencer.Context
	cue     *fakeCue
	input   *fakeInput
	history *memHistory
	ev      *events
}

func newRig(t *testing.T, opts Options, clockOpts ...clock.Option) *rig {
	src := clock.NewManual()
	cue := &fakeCue{}
	ctx := sequencer.NewContext(src, nopVoice{}, cue, clockOpts...)
	r := &rig{
		src:     src,
		ctx:     ctx,
		cue:     cue,
		input:   &fakeInput{},
		history: &memHistory{},
		ev:      &events{},
	}
	opts.Now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	r.m = New(sequencer.New(ctx), r.input, r.history, opts, r.ev.callbacks())
	t.Cleanup(func() {
		r.m.Close()
		ctx.Close()
	})
	return r
}

// drive advances the clock in small steps until cond holds
func (r *rig) drive(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, func() bool {
		r.src.Advance(10 * time.Millisecond)
		return cond()
	}, 10*time.Second, time.Millisecond)
}

func (r *rig) inPhase(p Phase) func() bool {
	return func() bool { return r.m.Phase() == p }
}

// idle advances well past any attempt without expecting progress
func (r *rig) idle() {
	for i := 0; i < 20; i++ {
		r.src.Advance(time.Second)
		time.Sleep(time.Millisecond)
	}
}

func TestQuizAttemptEndToEnd(t *testing.T) {
	r := newRig(t, Options{})
	require.NoError(t, r.m.SetPattern(quarters(), "Quarters"))

	require.NoError(t, r.m.Start())
	assert.Equal(t, PhasePlaying, r.m.Phase())

	r.drive(t, r.inPhase(PhaseRecording))
	l := r.input.last()
	origin := position.RecordStart.Duration(120)
	for _, slot := range quarters().Enabled() {
		l.emit(origin + time.Duration(slot)*position.SixteenthDuration(120))
	}

	r.drive(t, r.inPhase(PhaseResult))
	res, ok := r.m.Result()
	require.True(t, ok)
	assert.Equal(t, "Quarters", res.PatternName)
	assert.Equal(t, 120.0, res.BPM)
	assert.NotEmpty(t, res.ID)
	assert.Equal(t, 100.0, res.Evaluation.Accuracy)
	assert.Equal(t, 8, res.Evaluation.CorrectCount)
	assert.Equal(t, 1, r.history.count())

	started, closed := l.state()
	assert.True(t, started)
	assert.True(t, closed, "input released after recording")
	assert.False(t, r.ctx.Transport.Running())

	r.drive(t, func() bool { return len(r.ev.phaseList()) == 4 })
	assert.Equal(t, []Phase{PhasePlaying, PhaseRecording, PhaseEvaluating, PhaseResult}, r.ev.phaseList())
	r.ev.mu.Lock()
	assert.Len(t, r.ev.results, 1)
	assert.Len(t, r.ev.onsets, 8)
	r.ev.mu.Unlock()
}

func TestLookaheadKeepsRecordingWindowOnTime(t *testing.T) {
	r := newRig(t, Options{}, clock.WithLookahead(50*time.Millisecond))
	require.NoError(t, r.m.SetPattern(pattern.FromIndices(31), "Last"))
	require.NoError(t, r.m.Start())

	r.drive(t, r.inPhase(PhaseRecording))
	origin := position.RecordStart.Duration(120)
	late := origin + 31*position.SixteenthDuration(120) + 80*time.Millisecond
	require.Equal(t, 8455*time.Millisecond, late)

	r.drive(t, func() bool { return r.ctx.Transport.Now() >= late })
	require.Equal(t, PhaseRecording, r.m.Phase(), "the window stays open until the end of the pass")
	r.input.last().emit(late)

	r.drive(t, r.inPhase(PhaseResult))
	res, ok := r.m.Result()
	require.True(t, ok)
	assert.Equal(t, StatusCorrect, res.Evaluation.Beats[31].Status)
	assert.Equal(t, 100.0, res.Evaluation.Accuracy)
}

func TestQuizCountdown(t *testing.T) {
	r := newRig(t, Options{Countdown: true})
	require.NoError(t, r.m.Start())
	assert.Equal(t, PhaseCountdown, r.m.Phase())
	assert.Equal(t, []string{CountdownNote}, r.cue.list())

	r.drive(t, r.inPhase(PhasePlaying))
	assert.Equal(t, []string{CountdownNote, CountdownNote, CountdownLastNote}, r.cue.list())
	assert.True(t, r.src.Now() >= 3*time.Second)

	r.ev.mu.Lock()
	assert.Equal(t, []int{3, 2, 1}, r.ev.counts)
	r.ev.mu.Unlock()
}

func TestQuizAbortDuringCountdown(t *testing.T) {
	r := newRig(t, Options{Countdown: true})
	require.NoError(t, r.m.Start())
	require.NoError(t, r.m.Abort())
	assert.Equal(t, PhaseIdle, r.m.Phase())

	_, closed := r.input.last().state()
	assert.True(t, closed)

	r.idle()
	assert.Equal(t, PhaseIdle, r.m.Phase())
	assert.Len(t, r.cue.list(), 1)
}

func TestQuizAbortDuringRecording(t *testing.T) {
	r := newRig(t, Options{})
	require.NoError(t, r.m.SetPattern(quarters(), ""))
	require.NoError(t, r.m.Start())
	r.drive(t, r.inPhase(PhaseRecording))

	require.NoError(t, r.m.Abort())
	assert.Equal(t, PhaseIdle, r.m.Phase())
	assert.False(t, r.ctx.Transport.Running())
	_, closed := r.input.last().state()
	assert.True(t, closed)

	r.idle()
	assert.Equal(t, PhaseIdle, r.m.Phase())
	assert.Zero(t, r.history.count())
	_, ok := r.m.Result()
	assert.False(t, ok)
}

func TestQuizInputUnavailable(t *testing.T) {
	r := newRig(t, Options{})
	r.input.err = onset.ErrInputUnavailable

	err := r.m.Start()
	assert.ErrorIs(t, err, onset.ErrInputUnavailable)
	assert.Equal(t, PhaseIdle, r.m.Phase())
	assert.False(t, r.ctx.Transport.Running())
	r.drive(t, func() bool {
		r.ev.mu.Lock()
		defer r.ev.mu.Unlock()
		return len(r.ev.errs) == 1
	})
}

func TestQuizOneAttemptAtATime(t *testing.T) {
	r := newRig(t, Options{})
	require.NoError(t, r.m.Start())

	assert.ErrorIs(t, r.m.Start(), ErrBusy)
	assert.ErrorIs(t, r.m.StartPractice(false), ErrBusy)
	assert.ErrorIs(t, r.m.SetPattern(quarters(), ""), ErrBusy)
	assert.ErrorIs(t, r.m.SetBPM(90), clock.ErrBPMLocked)
	assert.Equal(t, 120.0, r.m.BPM())
}

func TestQuizResultRetryAndEdit(t *testing.T) {
	r := newRig(t, Options{})
	require.NoError(t, r.m.SetBPM(200))
	require.NoError(t, r.m.Start())
	r.drive(t, r.inPhase(PhaseResult))

	res, ok := r.m.Result()
	require.True(t, ok)
	assert.Equal(t, CustomName, res.PatternName)
	assert.Equal(t, 100.0, res.Evaluation.Accuracy, "empty pattern is trivially perfect")

	require.NoError(t, r.m.Retry())
	assert.Equal(t, PhasePlaying, r.m.Phase())
	_, ok = r.m.Result()
	assert.False(t, ok, "retry drops the old result")
	r.drive(t, r.inPhase(PhaseResult))
	assert.Equal(t, 2, r.history.count())

	require.NoError(t, r.m.SetPattern(pattern.FromIndices(3), ""))
	assert.Equal(t, PhaseIdle, r.m.Phase())
	_, ok = r.m.Result()
	assert.False(t, ok)
	assert.Error(t, r.m.Retry())
}

func TestQuizHistoryFailureStillShowsResult(t *testing.T) {
	r := newRig(t, Options{})
	r.history.err = errors.New("disk full")
	require.NoError(t, r.m.Start())
	r.drive(t, r.inPhase(PhaseResult))

	_, ok := r.m.Result()
	assert.True(t, ok)
	r.drive(t, func() bool {
		r.ev.mu.Lock()
		defer r.ev.mu.Unlock()
		return len(r.ev.errs) == 1
	})
}

func TestPractice(t *testing.T) {
	r := newRig(t, Options{})
	require.NoError(t, r.m.SetPattern(quarters(), ""))

	require.NoError(t, r.m.StartPractice(false))
	assert.Equal(t, PhasePlaying, r.m.Phase())
	assert.True(t, r.m.Practicing())
	assert.ErrorIs(t, r.m.Start(), ErrBusy)
	assert.ErrorIs(t, r.m.SetBPM(100), clock.ErrBPMLocked)
	r.drive(t, r.inPhase(PhaseIdle))
	assert.False(t, r.m.Practicing())
	assert.Empty(t, r.input.listeners, "practice never opens the input")

	require.NoError(t, r.m.StartPractice(true))
	require.NoError(t, r.m.SetPattern(pattern.FromIndices(1), ""))
	assert.True(t, r.m.Practicing(), "edits keep practice running")
	r.idle()
	assert.Equal(t, PhasePlaying, r.m.Phase(), "looping practice runs until stopped")

	require.NoError(t, r.m.StopPractice())
	assert.Equal(t, PhaseIdle, r.m.Phase())
	assert.False(t, r.ctx.Transport.Running())
}

func TestRecordingBeginTwice(t *testing.T) {
	l := &fakeListener{}
	rec := NewRecording(l, 120, nil)
	require.NoError(t, rec.Begin(0))
	assert.ErrorIs(t, rec.Begin(0), ErrAlreadyRecording)

	debug.SetStrict(true)
	defer debug.SetStrict(false)
	assert.Panics(t, func() { rec.Begin(0) })
}

func TestRecordingConvertsRelativeToOrigin(t *testing.T) {
	l := &fakeListener{}
	var seen []CapturedOnset
	rec := NewRecording(l, 120, func(c CapturedOnset) { seen = append(seen, c) })

	origin := 4500 * time.Millisecond
	require.NoError(t, rec.Begin(origin))
	l.emit(origin)
	l.emit(origin + 260*time.Millisecond)
	l.emit(origin - 130*time.Millisecond)
	l.emit(origin + 9*time.Second) // far past the window, still kept

	got := rec.End()
	require.Len(t, got, 4)
	assert.Equal(t, []int{32, 34, 31, 104}, []int{got[0].Slot, got[1].Slot, got[2].Slot, got[3].Slot})
	assert.InDelta(t, 34.08, got[1].Exact, 1e-9)
	assert.Equal(t, got, seen)

	_, closed := l.state()
	assert.True(t, closed)
	l.emit(origin)
	assert.Len(t, rec.Onsets(), 4, "nothing captured after end")
	assert.ErrorIs(t, rec.Begin(origin), onset.ErrInputUnavailable)
}
