package tui

import (
	"sync"

	"clap-trainer/midi"
	"clap-trainer/position"
	"clap-trainer/quiz"
	"clap-trainer/theme"
)

// Frame is a snapshot of what the draw channel has reported
type Frame struct {
	Phase     quiz.Phase
	Playhead  int
	Countdown int
	Heard     map[int]bool
	Err       error
}

// Live collects draw-channel callbacks for the view. Callbacks only
// touch Live's own state and never call back into the machine.
type Live struct {
	th *theme.Theme

	mu        sync.Mutex
	phase     quiz.Phase
	playhead  int
	countdown int
	heard     map[int]bool
	err       error
	grid      *midi.Grid

	updates chan struct{}
}

func NewLive(th *theme.Theme) *Live {
	return &Live{
		th:       th,
		phase:    quiz.PhaseIdle,
		playhead: -1,
		heard:    make(map[int]bool),
		updates:  make(chan struct{}, 1),
	}
}

// Updates signals that a new frame is ready
func (l *Live) Updates() <-chan struct{} { return l.updates }

func (l *Live) notify() {
	select {
	case l.updates <- struct{}{}:
	default:
	}
}

// SetGrid mirrors playhead and results on a Launchpad, nil to detach
func (l *Live) SetGrid(g *midi.Grid) {
	l.mu.Lock()
	l.grid = g
	l.mu.Unlock()
}

func (l *Live) Snapshot() Frame {
	l.mu.Lock()
	defer l.mu.Unlock()
	heard := make(map[int]bool, len(l.heard))
	for k, v := range l.heard {
		heard[k] = v
	}
	return Frame{
		Phase:     l.phase,
		Playhead:  l.playhead,
		Countdown: l.countdown,
		Heard:     heard,
		Err:       l.err,
	}
}

// Clear drops claps and outcome marks, for a new pattern or attempt
func (l *Live) Clear() {
	l.mu.Lock()
	l.heard = make(map[int]bool)
	grid := l.grid
	l.mu.Unlock()
	if grid != nil {
		grid.ClearMarks()
	}
	l.notify()
}

func (l *Live) ClearError() {
	l.mu.Lock()
	l.err = nil
	l.mu.Unlock()
}

// Callbacks returns the machine callbacks feeding this Live
func (l *Live) Callbacks() quiz.Callbacks {
	return quiz.Callbacks{
		OnTimeMarker:  l.onTimeMarker,
		OnPhaseChange: l.onPhase,
		OnQuizResult:  l.onResult,
		OnOnset:       l.onOnset,
		OnCountdown:   l.onCountdown,
		OnError:       l.onError,
	}
}

func (l *Live) onTimeMarker(slot int) {
	l.mu.Lock()
	l.playhead = slot
	grid := l.grid
	l.mu.Unlock()
	if grid != nil {
		grid.SetPlayhead(slot)
	}
	l.notify()
}

func (l *Live) onPhase(p quiz.Phase) {
	l.mu.Lock()
	prev := l.phase
	l.phase = p
	if p != quiz.PhasePlaying {
		l.playhead = -1
	}
	if p != quiz.PhaseCountdown {
		l.countdown = 0
	}
	fresh := prev == quiz.PhaseIdle || prev == quiz.PhaseResult
	if fresh && (p == quiz.PhaseCountdown || p == quiz.PhasePlaying) {
		l.heard = make(map[int]bool)
	}
	grid := l.grid
	l.mu.Unlock()

	if grid != nil {
		if p != quiz.PhasePlaying {
			grid.SetPlayhead(-1)
		}
		if fresh && p != quiz.PhaseIdle {
			grid.ClearMarks()
		}
	}
	l.notify()
}

func (l *Live) onCountdown(n int) {
	l.mu.Lock()
	l.countdown = n
	l.mu.Unlock()
	l.notify()
}

func (l *Live) onOnset(c quiz.CapturedOnset) {
	slot := c.Slot - position.RecordingOffset
	if slot < 0 || slot >= position.TotalSlots {
		return
	}
	l.mu.Lock()
	l.heard[slot] = true
	l.mu.Unlock()
	l.notify()
}

func (l *Live) onResult(rec quiz.Record) {
	l.mu.Lock()
	grid := l.grid
	l.mu.Unlock()
	if grid != nil {
		for _, b := range rec.Evaluation.Beats {
			if c, ok := l.markColor(b.Status); ok {
				grid.SetMark(b.Index, c)
			}
		}
	}
	l.notify()
}

func (l *Live) markColor(s quiz.Status) ([3]uint8, bool) {
	switch s {
	case quiz.StatusCorrect:
		return l.th.RGB(theme.RoleSuccess), true
	case quiz.StatusMissed:
		return l.th.RGB(theme.RoleWarning), true
	case quiz.StatusExtra:
		return l.th.RGB(theme.RoleActive), true
	}
	return [3]uint8{}, false
}

func (l *Live) onError(err error) {
	l.mu.Lock()
	l.err = err
	l.mu.Unlock()
	l.notify()
}
