package quiz

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"clap-trainer/pattern"
	"clap-trainer/position"
)

// DefaultTolerance is how far an onset may sit from its slot and still count
const DefaultTolerance = 100 * time.Millisecond

// slack absorbs float error so an onset exactly on the boundary counts
const slack = 1e-9

// Status is the outcome for one slot
type Status string

const (
	StatusCorrect       Status = "correct"        // expected and clapped
	StatusMissed        Status = "missed"         // expected, nothing clapped
	StatusExtra         Status = "extra"          // clapped where silence was expected
	StatusCorrectSilent Status = "correct-silent" // silence kept
)

// BeatEvaluation is the result for one slot
type BeatEvaluation struct {
	Index         int      `json:"index"`
	Expected      bool     `json:"expected"`
	Detected      bool     `json:"detected"`
	Status        Status   `json:"status"`
	TimingErrorMs *float64 `json:"timingErrorMs,omitempty"` // positive when late
	OnsetSlot     *float64 `json:"onsetSlot,omitempty"`     // exact slot of the matched onset
}

// Evaluation is the scored attempt
type Evaluation struct {
	Beats              []BeatEvaluation `json:"beats"`
	Accuracy           float64          `json:"accuracy"` // percent, one decimal
	CorrectCount       int              `json:"correctCount"`
	MissedCount        int              `json:"missedCount"`
	ExtraCount         int              `json:"extraCount"`
	UnmatchedOnsets    int              `json:"unmatchedOnsets"`
	AverageTimingError float64          `json:"averageTimingError"` // ms, rounded
}

// Evaluator scores captured onsets against a pattern
type Evaluator struct {
	Tolerance time.Duration // DefaultTolerance when zero
	Offset    int           // slot of the first recorded slot
}

// NewEvaluator scores the second pass with tolerance, or DefaultTolerance
// when it is zero
func NewEvaluator(tolerance time.Duration) Evaluator {
	if tolerance == 0 {
		tolerance = DefaultTolerance
	}
	return Evaluator{Tolerance: tolerance, Offset: position.RecordingOffset}
}

// Evaluate scores onsets with the default tolerance and offset
func Evaluate(p pattern.Pattern, onsets []CapturedOnset, bpm float64) Evaluation {
	return NewEvaluator(0).Evaluate(p, onsets, bpm)
}

type pair struct {
	slot  int
	onset int
	dist  float64
}

// match pairs slots with onsets one-to-one, nearest first. taken marks
// onsets already used and is updated.
func match(slots []int, offset int, onsets []CapturedOnset, taken []bool, tol float64) map[int]int {
	var pairs []pair
	for _, slot := range slots {
		target := float64(slot + offset)
		for j, o := range onsets {
			if taken[j] {
				continue
			}
			if d := math.Abs(o.Exact - target); d <= tol+slack {
				pairs = append(pairs, pair{slot: slot, onset: j, dist: d})
			}
		}
	}
	sort.SliceStable(pairs, func(a, b int) bool {
		if pairs[a].dist != pairs[b].dist {
			return pairs[a].dist < pairs[b].dist
		}
		if pairs[a].slot != pairs[b].slot {
			return pairs[a].slot < pairs[b].slot
		}
		return pairs[a].onset < pairs[b].onset
	})

	matched := make(map[int]int)
	for _, pr := range pairs {
		if _, ok := matched[pr.slot]; ok || taken[pr.onset] {
			continue
		}
		matched[pr.slot] = pr.onset
		taken[pr.onset] = true
	}
	return matched
}

// Evaluate is pure: the same inputs always give the same result. Expected
// slots claim their nearest onsets first; leftover onsets then mark the
// nearest silent slot as extra. Each onset counts once.
func (e Evaluator) Evaluate(p pattern.Pattern, onsets []CapturedOnset, bpm float64) Evaluation {
	tolerance := e.Tolerance
	if tolerance == 0 {
		tolerance = DefaultTolerance
	}
	offset := e.Offset
	tol := position.ToleranceSlots(tolerance, bpm)

	var expected, silent []int
	for i, s := range p {
		if s.Enabled {
			expected = append(expected, i)
		} else {
			silent = append(silent, i)
		}
	}

	taken := make([]bool, len(onsets))
	hits := match(expected, offset, onsets, taken, tol)
	extras := match(silent, offset, onsets, taken, tol)

	ev := Evaluation{Beats: make([]BeatEvaluation, position.TotalSlots)}
	var errSum float64
	for i, s := range p {
		b := BeatEvaluation{Index: i, Expected: s.Enabled}
		j, ok := hits[i]
		if !ok {
			j, ok = extras[i]
		}
		if ok {
			exact := onsets[j].Exact
			timing := position.TimingErrorMs(exact, float64(i+offset), bpm)
			b.Detected = true
			b.OnsetSlot = &exact
			b.TimingErrorMs = &timing
		}

		switch {
		case b.Expected && b.Detected:
			b.Status = StatusCorrect
			ev.CorrectCount++
			errSum += math.Abs(*b.TimingErrorMs)
		case b.Expected:
			b.Status = StatusMissed
			ev.MissedCount++
		case b.Detected:
			b.Status = StatusExtra
			ev.ExtraCount++
		default:
			b.Status = StatusCorrectSilent
		}
		ev.Beats[i] = b
	}

	for _, used := range taken {
		if !used {
			ev.UnmatchedOnsets++
		}
	}

	ev.Accuracy = 100
	if len(expected) > 0 {
		acc := float64(ev.CorrectCount) / float64(len(expected)) * 100
		ev.Accuracy = math.Round(acc*10) / 10
	}
	if ev.CorrectCount > 0 {
		ev.AverageTimingError = math.Round(errSum / float64(ev.CorrectCount))
	}
	return ev
}

// Grade buckets an accuracy percentage
type Grade string

const (
	GradePerfect   Grade = "perfect"
	GradeExcellent Grade = "excellent"
	GradeGood      Grade = "good"
	GradePass      Grade = "pass"
	GradeNeedsWork Grade = "needs work"
)

// GradeFor returns the grade for accuracy
func GradeFor(accuracy float64) Grade {
	switch {
	case accuracy >= 95:
		return GradePerfect
	case accuracy >= 85:
		return GradeExcellent
	case accuracy >= 70:
		return GradeGood
	case accuracy >= 50:
		return GradePass
	default:
		return GradeNeedsWork
	}
}

// Summary is a short text report of an evaluation
func Summary(ev Evaluation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Accuracy: %g%% (%s)\n", ev.Accuracy, GradeFor(ev.Accuracy))
	fmt.Fprintf(&b, "Correct: %d, missed: %d, extra: %d", ev.CorrectCount, ev.MissedCount, ev.ExtraCount)
	if ev.UnmatchedOnsets > 0 {
		fmt.Fprintf(&b, ", stray: %d", ev.UnmatchedOnsets)
	}
	if ev.AverageTimingError > 0 {
		fmt.Fprintf(&b, "\nAverage timing error: %gms", ev.AverageTimingError)
	}
	return b.String()
}
