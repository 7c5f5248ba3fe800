package quiz

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"clap-trainer/clock"
	"clap-trainer/debug"
	"clap-trainer/onset"
	"clap-trainer/pattern"
	"clap-trainer/position"
	"clap-trainer/sequencer"
)

var (
	// ErrBusy is returned when an attempt is already in flight
	ErrBusy = errors.New("attempt in progress")
	// ErrClosed is returned by operations on a closed machine
	ErrClosed = errors.New("quiz closed")
)

// Phase is where the machine is in an attempt
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseCountdown  Phase = "countdown"
	PhasePlaying    Phase = "playing"
	PhaseRecording  Phase = "recording"
	PhaseEvaluating Phase = "evaluating"
	PhaseResult     Phase = "result"
)

// Countdown cue
const (
	CountdownBeats    = 3
	CountdownNote     = "C5"
	CountdownLastNote = "C6"
	CountdownTick     = 100 * time.Millisecond
)

// History receives finished attempts
type History interface {
	Append(Record) error
}

// Callbacks run on the draw channel. They must not call back into the
// machine; hand requests to another goroutine.
type Callbacks struct {
	OnBeatSounding func(slot int)
	OnTimeMarker   func(slot int)
	OnPhaseChange  func(Phase)
	OnQuizResult   func(Record)
	OnOnset        func(CapturedOnset)
	OnCountdown    func(remaining int) // 3, 2, 1
	OnError        func(error)
}

// Options tune attempts
type Options struct {
	Countdown         bool
	CountdownInterval time.Duration // one second when zero
	Pickup            bool
	Volume            float64       // dB
	Tolerance         time.Duration // DefaultTolerance when zero
	Now               func() time.Time
}

// Machine runs quiz attempts and practice playback on one sequencer.
// Every transition runs on the machine's own goroutine so no transport
// callback ever stops the transport that invoked it.
type Machine struct {
	seq     *sequencer.Sequencer
	input   onset.Input
	history History
	opts    Options
	cb      Callbacks

	inbox chan func()
	done  chan struct{}
	once  sync.Once

	// touched only on the machine goroutine
	attempt      uint64
	rec          *Recording
	practice     bool
	practiceLoop bool
	timers       chan struct{}
	name         string

	mu         sync.Mutex
	phase      Phase
	pat        pattern.Pattern
	result     *Record
	practicing bool // mirrors practice for other goroutines
}

// New starts a machine. input supplies the microphone (or tap pads) and
// must stamp onsets on the sequencer's transport timeline.
func New(seq *sequencer.Sequencer, input onset.Input, history History, opts Options, cb Callbacks) *Machine {
	if opts.CountdownInterval == 0 {
		opts.CountdownInterval = time.Second
	}
	if opts.Tolerance == 0 {
		opts.Tolerance = DefaultTolerance
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	m := &Machine{
		seq:     seq,
		input:   input,
		history: history,
		opts:    opts,
		cb:      cb,
		inbox:   make(chan func(), 16),
		done:    make(chan struct{}),
		phase:   PhaseIdle,
		pat:     pattern.New(),
	}
	go m.run()
	return m
}

func (m *Machine) run() {
	for {
		select {
		case <-m.done:
			return
		case fn := <-m.inbox:
			fn()
		}
	}
}

// do runs fn on the machine goroutine and waits for it
func (m *Machine) do(fn func() error) error {
	reply := make(chan error, 1)
	select {
	case m.inbox <- func() { reply <- fn() }:
	case <-m.done:
		return ErrClosed
	}
	select {
	case err := <-reply:
		return err
	case <-m.done:
		return ErrClosed
	}
}

// post queues fn without blocking the caller
func (m *Machine) post(fn func()) {
	go func() {
		select {
		case m.inbox <- fn:
		case <-m.done:
		}
	}()
}

// Phase returns the current phase
func (m *Machine) Phase() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

// Practicing reports whether practice playback is running
func (m *Machine) Practicing() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.practicing
}

// Pattern returns the pattern attempts are played from
func (m *Machine) Pattern() pattern.Pattern {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pat
}

// Result returns the last finished attempt while in the result phase
func (m *Machine) Result() (Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.result == nil {
		return Record{}, false
	}
	return *m.result, true
}

// SetPattern replaces the pattern and clears any shown result. name is
// the preset name, empty for a custom pattern. Practice playback picks
// up the new pattern; a quiz attempt in flight rejects the edit.
func (m *Machine) SetPattern(p pattern.Pattern, name string) error {
	return m.do(func() error {
		if m.inFlight() {
			return fmt.Errorf("edit pattern: %w", ErrBusy)
		}
		m.mu.Lock()
		m.pat = p
		m.mu.Unlock()
		m.name = name
		m.clearResult()
		if m.practice {
			return m.startPractice(m.practiceLoop)
		}
		return nil
	})
}

// SetPickup turns the pickup cue on or off. A quiz attempt in flight
// rejects the change.
func (m *Machine) SetPickup(on bool) error {
	return m.do(func() error {
		if m.inFlight() {
			return fmt.Errorf("set pickup: %w", ErrBusy)
		}
		m.opts.Pickup = on
		if m.practice {
			return m.startPractice(m.practiceLoop)
		}
		return nil
	})
}

// SetBPM changes the tempo. The tempo is locked while anything plays.
func (m *Machine) SetBPM(bpm float64) error {
	return m.do(func() error {
		if m.inFlight() || m.practice {
			return fmt.Errorf("set bpm: %w", clock.ErrBPMLocked)
		}
		return m.seq.Context().Transport.SetBPM(bpm)
	})
}

// BPM returns the tempo
func (m *Machine) BPM() float64 { return m.seq.Context().Transport.BPM() }

// Position is the transport position, for progress displays
func (m *Machine) Position() position.Position { return m.seq.Context().Transport.Position() }

// Start begins a quiz attempt from idle or result. The input is acquired
// up front; failure leaves the machine idle.
func (m *Machine) Start() error {
	return m.do(func() error {
		if m.inFlight() || m.practice {
			return fmt.Errorf("start quiz: %w", ErrBusy)
		}
		m.attempt++
		attempt := m.attempt
		m.clearResult()

		if m.input == nil {
			return m.fail(fmt.Errorf("start quiz: %w", onset.ErrInputUnavailable))
		}
		l, err := m.input.Acquire()
		if err != nil {
			return m.fail(fmt.Errorf("start quiz: %w", err))
		}
		m.rec = NewRecording(l, m.BPM(), m.onOnset)
		m.timers = make(chan struct{})
		debug.Log("quiz", "attempt %d start bpm=%.0f countdown=%v", attempt, m.BPM(), m.opts.Countdown)

		if m.opts.Countdown {
			m.setPhase(PhaseCountdown)
			m.countdown(attempt, CountdownBeats)
			return nil
		}
		return m.play(attempt)
	})
}

// Retry starts a new attempt from the result phase
func (m *Machine) Retry() error {
	if m.Phase() != PhaseResult {
		return fmt.Errorf("retry: no result")
	}
	return m.Start()
}

// Abort stops whatever is running and returns to idle. Scheduled
// callbacks and the input are released before Abort returns.
func (m *Machine) Abort() error {
	return m.do(func() error {
		m.teardown()
		m.clearResult()
		m.setPhase(PhaseIdle)
		return nil
	})
}

// ClearResult leaves the result phase
func (m *Machine) ClearResult() error {
	return m.do(func() error {
		m.clearResult()
		return nil
	})
}

// StartPractice plays the pattern without recording. A one-shot run
// returns to idle by itself.
func (m *Machine) StartPractice(loop bool) error {
	return m.do(func() error {
		if m.inFlight() {
			return fmt.Errorf("start practice: %w", ErrBusy)
		}
		m.clearResult()
		return m.startPractice(loop)
	})
}

// StopPractice halts practice playback
func (m *Machine) StopPractice() error {
	return m.do(func() error {
		if !m.practice {
			return nil
		}
		m.teardown()
		m.setPhase(PhaseIdle)
		return nil
	})
}

// Close aborts and stops the machine goroutine
func (m *Machine) Close() {
	m.Abort()
	m.once.Do(func() { close(m.done) })
}

// inFlight reports a quiz attempt between start and result
func (m *Machine) inFlight() bool {
	switch m.Phase() {
	case PhaseIdle, PhaseResult:
		return false
	}
	return !m.practice
}

func (m *Machine) setPhase(p Phase) {
	m.mu.Lock()
	prev := m.phase
	m.phase = p
	m.mu.Unlock()
	if prev == p {
		return
	}
	debug.Log("quiz", "phase %s -> %s", prev, p)
	if m.cb.OnPhaseChange != nil {
		m.seq.Context().Draw.Post(func() { m.cb.OnPhaseChange(p) })
	}
}

func (m *Machine) setPractice(on bool) {
	m.practice = on
	m.mu.Lock()
	m.practicing = on
	m.mu.Unlock()
}

func (m *Machine) clearResult() {
	m.mu.Lock()
	had := m.result != nil
	m.result = nil
	m.mu.Unlock()
	if had && m.Phase() == PhaseResult {
		m.setPhase(PhaseIdle)
	}
}

// fail releases everything, reports err and returns to idle
func (m *Machine) fail(err error) error {
	m.teardown()
	debug.Log("quiz", "attempt failed: %v", err)
	if m.cb.OnError != nil {
		m.seq.Context().Draw.Post(func() { m.cb.OnError(err) })
	}
	m.setPhase(PhaseIdle)
	return err
}

// teardown invalidates the attempt and releases the transport, timers
// and input
func (m *Machine) teardown() {
	m.attempt++
	if m.timers != nil {
		close(m.timers)
		m.timers = nil
	}
	m.seq.Stop()
	if m.rec != nil {
		m.rec.End()
		m.rec = nil
	}
	m.setPractice(false)
}

// after runs fn on the machine goroutine once d has passed on the
// transport's time source, unless the attempt is torn down first
func (m *Machine) after(d time.Duration, fn func()) {
	cancel := m.timers
	timer := m.seq.Context().Transport.Source().NewTimer(d)
	go func() {
		select {
		case <-timer.C():
			m.post(fn)
		case <-cancel:
			timer.Stop()
		case <-m.done:
			timer.Stop()
		}
	}()
}

func (m *Machine) countdown(attempt uint64, remaining int) {
	if attempt != m.attempt {
		return
	}
	if remaining == 0 {
		if err := m.play(attempt); err != nil {
			debug.Log("quiz", "attempt %d: %v", attempt, err)
		}
		return
	}

	note := CountdownNote
	if remaining == 1 {
		note = CountdownLastNote
	}
	if cue := m.seq.Context().Cue; cue != nil {
		if err := cue.Tick(note, CountdownTick); err != nil {
			debug.Log("quiz", "countdown cue: %v", err)
		}
	}
	if m.cb.OnCountdown != nil {
		m.seq.Context().Draw.Post(func() { m.cb.OnCountdown(remaining) })
	}
	m.after(m.opts.CountdownInterval, func() { m.countdown(attempt, remaining-1) })
}

func (m *Machine) seqCallbacks() sequencer.Callbacks {
	return sequencer.Callbacks{
		OnBeatSounding: m.cb.OnBeatSounding,
		OnTimeMarker:   m.cb.OnTimeMarker,
	}
}

// play schedules the demonstration pass and the recording window
func (m *Machine) play(attempt uint64) error {
	p := m.Pattern()
	opts := sequencer.PlayOptions{Pickup: m.opts.Pickup, Volume: m.opts.Volume, Hold: true}
	if err := m.seq.Load(p, opts, m.seqCallbacks()); err != nil {
		return m.fail(fmt.Errorf("play attempt: %w", err))
	}

	t := m.seq.Context().Transport
	err := t.Schedule(position.RecordStart, func(at time.Duration) {
		m.post(func() { m.beginRecording(attempt, at) })
	})
	if err == nil {
		err = t.Schedule(position.RecordEnd, func(time.Duration) {
			m.post(func() { m.finish(attempt) })
		})
	}
	if err == nil {
		err = m.seq.Start()
	}
	if err != nil {
		return m.fail(fmt.Errorf("play attempt: %w", err))
	}
	m.setPhase(PhasePlaying)
	return nil
}

func (m *Machine) beginRecording(attempt uint64, origin time.Duration) {
	if attempt != m.attempt || m.Phase() != PhasePlaying {
		return
	}
	if err := m.rec.Begin(origin); err != nil {
		m.fail(err)
		return
	}
	m.setPhase(PhaseRecording)
}

func (m *Machine) finish(attempt uint64) {
	if attempt != m.attempt || m.Phase() != PhaseRecording {
		return
	}
	onsets := m.rec.End()
	m.rec = nil
	m.seq.Stop()
	if m.timers != nil {
		close(m.timers)
		m.timers = nil
	}
	m.setPhase(PhaseEvaluating)

	bpm := m.BPM()
	p := m.Pattern()
	ev := NewEvaluator(m.opts.Tolerance).Evaluate(p, onsets, bpm)
	rec := NewRecord(m.name, bpm, m.opts.Pickup, p, ev, m.opts.Now())
	debug.Log("quiz", "attempt %d accuracy=%.1f correct=%d missed=%d extra=%d", attempt, ev.Accuracy, ev.CorrectCount, ev.MissedCount, ev.ExtraCount)

	if m.history != nil {
		if err := m.history.Append(rec); err != nil && m.cb.OnError != nil {
			err = fmt.Errorf("save result: %w", err)
			m.seq.Context().Draw.Post(func() { m.cb.OnError(err) })
		}
	}

	m.mu.Lock()
	m.result = &rec
	m.mu.Unlock()
	m.setPhase(PhaseResult)
	if m.cb.OnQuizResult != nil {
		m.seq.Context().Draw.Post(func() { m.cb.OnQuizResult(rec) })
	}
}

func (m *Machine) onOnset(c CapturedOnset) {
	if m.cb.OnOnset != nil {
		m.seq.Context().Draw.Post(func() { m.cb.OnOnset(c) })
	}
}

func (m *Machine) startPractice(loop bool) error {
	m.teardown()
	m.attempt++
	attempt := m.attempt
	cb := m.seqCallbacks()
	cb.OnEnd = func() {
		m.post(func() {
			if attempt == m.attempt && m.practice {
				m.setPractice(false)
				m.setPhase(PhaseIdle)
			}
		})
	}
	opts := sequencer.PlayOptions{Loop: loop, Pickup: m.opts.Pickup, Volume: m.opts.Volume}
	if err := m.seq.Play(m.Pattern(), opts, cb); err != nil {
		return fmt.Errorf("start practice: %w", err)
	}
	m.setPractice(true)
	m.practiceLoop = loop
	m.setPhase(PhasePlaying)
	return nil
}
