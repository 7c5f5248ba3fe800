package quiz

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clap-trainer/pattern"
	"clap-trainer/position"
)

// onsetsAt captures onsets at the given recorded slots, each shifted by
// shift in time
func onsetsAt(bpm float64, shift time.Duration, slots ...int) []CapturedOnset {
	origin := position.RecordStart.Duration(bpm)
	var out []CapturedOnset
	for _, s := range slots {
		rel := time.Duration(s-position.RecordingOffset) * position.SixteenthDuration(bpm)
		out = append(out, Capture(origin+rel+shift, origin, bpm))
	}
	return out
}

func quarters() pattern.Pattern {
	return pattern.FromIndices(0, 4, 8, 12, 16, 20, 24, 28)
}

func TestEvaluateEmptyPatternIsPerfect(t *testing.T) {
	ev := Evaluate(pattern.New(), nil, 120)
	assert.Equal(t, 100.0, ev.Accuracy)
	require.Len(t, ev.Beats, position.TotalSlots)
	for _, b := range ev.Beats {
		assert.Equal(t, StatusCorrectSilent, b.Status)
		assert.Nil(t, b.TimingErrorMs)
	}
}

func TestEvaluateExactOnsetsAtEveryTempo(t *testing.T) {
	p := pattern.FromIndices(0, 3, 6, 9, 14, 22, 31)
	for bpm := float64(position.MinBPM); bpm <= position.MaxBPM; bpm += 10 {
		var slots []int
		for _, i := range p.Enabled() {
			slots = append(slots, i+position.RecordingOffset)
		}
		ev := Evaluate(p, onsetsAt(bpm, 0, slots...), bpm)
		assert.Equal(t, 100.0, ev.Accuracy, "bpm %v", bpm)
		assert.Equal(t, p.EnabledCount(), ev.CorrectCount, "bpm %v", bpm)
		assert.Zero(t, ev.AverageTimingError, "bpm %v", bpm)
		assert.Zero(t, ev.ExtraCount+ev.MissedCount+ev.UnmatchedOnsets, "bpm %v", bpm)
	}
}

func TestEvaluateToleranceBoundary(t *testing.T) {
	// at 60 BPM a sixteenth is 250ms, so nothing else is near slot 0
	p := pattern.FromIndices(0)
	for _, tc := range []struct {
		shift  time.Duration
		status Status
	}{
		{99 * time.Millisecond, StatusCorrect},
		{100 * time.Millisecond, StatusCorrect},
		{-100 * time.Millisecond, StatusCorrect},
		{101 * time.Millisecond, StatusMissed},
		{-101 * time.Millisecond, StatusMissed},
	} {
		ev := Evaluate(p, onsetsAt(60, tc.shift, 32), 60)
		assert.Equal(t, tc.status, ev.Beats[0].Status, "shift %v", tc.shift)
		assert.Equal(t, StatusCorrectSilent, ev.Beats[1].Status, "shift %v", tc.shift)
		if tc.status == StatusMissed {
			assert.Equal(t, 1, ev.UnmatchedOnsets)
		}
	}

	// the same offsets on silence give extra or nothing
	silent := pattern.FromIndices(8)
	ev := Evaluate(silent, onsetsAt(60, 100*time.Millisecond, 32), 60)
	assert.Equal(t, StatusExtra, ev.Beats[0].Status)
	ev = Evaluate(silent, onsetsAt(60, 101*time.Millisecond, 32), 60)
	assert.Equal(t, StatusCorrectSilent, ev.Beats[0].Status)
}

func TestEvaluateToleranceIsTimeNotSlots(t *testing.T) {
	p := pattern.FromIndices(0)
	shift := 90 * time.Millisecond
	assert.Equal(t, StatusCorrect, Evaluate(p, onsetsAt(60, shift, 32), 60).Beats[0].Status)
	assert.Equal(t, StatusCorrect, Evaluate(p, onsetsAt(200, shift, 32), 200).Beats[0].Status)
	assert.InDelta(t, 0.8, position.ToleranceSlots(DefaultTolerance, 120), 1e-9)
	assert.InDelta(t, 0.4, position.ToleranceSlots(DefaultTolerance, 60), 1e-9)
}

func TestEvaluateQuarterNotes(t *testing.T) {
	ev := Evaluate(quarters(), onsetsAt(120, 0, 32, 36, 40, 44, 48, 52, 56, 60), 120)
	assert.Equal(t, 8, ev.CorrectCount)
	assert.Zero(t, ev.MissedCount)
	assert.Zero(t, ev.ExtraCount)
	assert.Equal(t, 100.0, ev.Accuracy)
}

func TestEvaluateHalfTheClaps(t *testing.T) {
	ev := Evaluate(quarters(), onsetsAt(120, 0, 32, 36, 40, 44), 120)
	assert.Equal(t, 4, ev.CorrectCount)
	assert.Equal(t, 4, ev.MissedCount)
	assert.Equal(t, 50.0, ev.Accuracy)
}

func TestEvaluateLateClapIsExtraOnNearestSlot(t *testing.T) {
	ev := Evaluate(pattern.FromIndices(0), onsetsAt(120, 0, 34), 120)
	assert.Equal(t, StatusMissed, ev.Beats[0].Status)
	assert.Equal(t, StatusExtra, ev.Beats[2].Status)
	assert.Equal(t, 1, ev.ExtraCount)
	assert.Zero(t, ev.UnmatchedOnsets)
	assert.Zero(t, ev.Accuracy)
	require.NotNil(t, ev.Beats[2].TimingErrorMs)
	assert.InDelta(t, 0, *ev.Beats[2].TimingErrorMs, 1e-6)
}

func TestEvaluateOnsetCountsOnce(t *testing.T) {
	// windows of slots 0 and 1 overlap at 120 BPM; the onset goes to the nearer
	one := onsetsAt(120, 50*time.Millisecond, 32)
	ev := Evaluate(pattern.FromIndices(0, 1), one, 120)
	assert.Equal(t, StatusCorrect, ev.Beats[0].Status)
	assert.Equal(t, StatusMissed, ev.Beats[1].Status)
	assert.Equal(t, 1, ev.CorrectCount)

	// two claps on one slot: the second has nowhere to go
	two := append(onsetsAt(120, 0, 32), onsetsAt(120, 10*time.Millisecond, 32)...)
	ev = Evaluate(pattern.FromIndices(0), two, 120)
	assert.Equal(t, 1, ev.CorrectCount)
	assert.Zero(t, ev.ExtraCount)
	assert.Equal(t, 1, ev.UnmatchedOnsets)
	require.NotNil(t, ev.Beats[0].OnsetSlot)
	assert.InDelta(t, 32, *ev.Beats[0].OnsetSlot, 1e-9)
}

func TestEvaluateOutOfWindowOnsetsAreUnmatched(t *testing.T) {
	ev := Evaluate(pattern.FromIndices(0), onsetsAt(120, 0, 32, 70, 10), 120)
	assert.Equal(t, 1, ev.CorrectCount)
	assert.Equal(t, 2, ev.UnmatchedOnsets)
	assert.Zero(t, ev.ExtraCount)
}

func TestEvaluateTimingErrors(t *testing.T) {
	onsets := append(onsetsAt(120, 50*time.Millisecond, 32), onsetsAt(120, -30*time.Millisecond, 36)...)
	ev := Evaluate(pattern.FromIndices(0, 4), onsets, 120)
	require.NotNil(t, ev.Beats[0].TimingErrorMs)
	require.NotNil(t, ev.Beats[4].TimingErrorMs)
	assert.InDelta(t, 50, *ev.Beats[0].TimingErrorMs, 1e-6)
	assert.InDelta(t, -30, *ev.Beats[4].TimingErrorMs, 1e-6)
	assert.Equal(t, 40.0, ev.AverageTimingError)
}

func TestEvaluateAccuracyRounding(t *testing.T) {
	ev := Evaluate(pattern.FromIndices(0, 4, 8), onsetsAt(120, 0, 32), 120)
	assert.Equal(t, 33.3, ev.Accuracy)
}

func TestEvaluateIsDeterministic(t *testing.T) {
	onsets := append(onsetsAt(120, 20*time.Millisecond, 32, 37, 41), onsetsAt(120, -40*time.Millisecond, 50)...)
	reversed := make([]CapturedOnset, len(onsets))
	for i, o := range onsets {
		reversed[len(onsets)-1-i] = o
	}
	p := pattern.FromIndices(0, 5, 8, 9)
	first := Evaluate(p, onsets, 120)
	assert.Equal(t, first, Evaluate(p, onsets, 120))
	assert.Equal(t, first, Evaluate(p, reversed, 120))
}

func TestEvaluatorCustomTolerance(t *testing.T) {
	onsets := onsetsAt(120, 60*time.Millisecond, 32)
	ev := NewEvaluator(50*time.Millisecond).Evaluate(pattern.FromIndices(0), onsets, 120)
	assert.Equal(t, StatusMissed, ev.Beats[0].Status)
}

func TestEvaluatorZeroOffset(t *testing.T) {
	onsets := onsetsAt(120, 0, 0, 4)
	p := pattern.FromIndices(0, 4)

	ev := Evaluator{Offset: 0}.Evaluate(p, onsets, 120)
	assert.Equal(t, StatusCorrect, ev.Beats[0].Status, "offset 0 scores the first pass")
	assert.Equal(t, StatusCorrect, ev.Beats[4].Status)
	assert.Equal(t, 100.0, ev.Accuracy)

	ev = Evaluate(p, onsets, 120)
	assert.Equal(t, StatusMissed, ev.Beats[0].Status, "the default scores the second pass")
	assert.Equal(t, 2, ev.UnmatchedOnsets)
}

func TestGrade(t *testing.T) {
	assert.Equal(t, GradePerfect, GradeFor(100))
	assert.Equal(t, GradePerfect, GradeFor(95))
	assert.Equal(t, GradeExcellent, GradeFor(94.9))
	assert.Equal(t, GradeGood, GradeFor(70))
	assert.Equal(t, GradePass, GradeFor(50))
	assert.Equal(t, GradeNeedsWork, GradeFor(49.9))
}

func TestSummary(t *testing.T) {
	onsets := append(onsetsAt(120, 40*time.Millisecond, 32), onsetsAt(120, 0, 70)...)
	s := Summary(Evaluate(pattern.FromIndices(0, 4), onsets, 120))
	assert.Contains(t, s, "Accuracy: 50% (pass)")
	assert.Contains(t, s, "Correct: 1, missed: 1, extra: 0, stray: 1")
	assert.Contains(t, s, "Average timing error: 40ms")
}
