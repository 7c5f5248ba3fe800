package widgets

import (
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clap-trainer/pattern"
	"clap-trainer/position"
	"clap-trainer/quiz"
	"clap-trainer/theme"
)

func plain(t *testing.T) *theme.Theme {
	t.Helper()
	prev := lipgloss.ColorProfile()
	lipgloss.SetColorProfile(termenv.Ascii)
	t.Cleanup(func() { lipgloss.SetColorProfile(prev) })
	return theme.New(theme.Default())
}

func TestRenderPatternRows(t *testing.T) {
	th := plain(t)
	p := pattern.FromIndices(0, 2, 4)
	out := RenderPattern(th, p, GridState{Cursor: -1, Playhead: -1})

	rows := strings.Split(out, "\n")
	require.Len(t, rows, 2)
	assert.True(t, strings.HasPrefix(rows[0], "1 e & a  2 e & a  3"))
	assert.True(t, strings.HasPrefix(rows[1], "● · • ·  ● · · ·  ·"))
}

func TestRenderPatternCursorAndPlayhead(t *testing.T) {
	th := plain(t)
	out := RenderPattern(th, pattern.New(), GridState{Cursor: 1, Playhead: 5})
	row := []rune(strings.Split(out, "\n")[1])
	assert.Equal(t, th.Symbols.Cursor, row[SlotColumn(1)])
	assert.Equal(t, th.Symbols.Playhead, row[SlotColumn(5)])
}

func TestRenderPatternResultAndHeard(t *testing.T) {
	th := plain(t)
	p := pattern.FromIndices(0, 4)
	onsets := []quiz.CapturedOnset{
		quiz.Capture(0, 0, 120),
		quiz.Capture(2*position.SixteenthDuration(120), 0, 120),
	}
	ev := quiz.Evaluate(p, onsets, 120)
	out := RenderPattern(th, p, GridState{Cursor: -1, Playhead: -1, Heard: map[int]bool{0: true, 2: true}, Result: &ev})

	rows := strings.Split(out, "\n")
	require.Len(t, rows, 4)
	heard := []rune(rows[2])
	assert.Equal(t, '|', heard[SlotColumn(0)])
	assert.Equal(t, '|', heard[SlotColumn(2)])

	marks := []rune(rows[3])
	assert.Equal(t, th.Symbols.Correct, marks[SlotColumn(0)])
	assert.Equal(t, th.Symbols.Extra, marks[SlotColumn(2)])
	assert.Equal(t, th.Symbols.Missed, marks[SlotColumn(4)])
	assert.Equal(t, th.Symbols.Silent, marks[SlotColumn(1)])
}

func TestSlotColumnRoundTrip(t *testing.T) {
	for i := 0; i < position.TotalSlots; i++ {
		assert.Equal(t, i, SlotAt(SlotColumn(i)), "slot %d", i)
	}
	assert.Equal(t, -1, SlotAt(1))
	assert.Equal(t, -1, SlotAt(7))
	assert.Equal(t, -1, SlotAt(-2))
	assert.Equal(t, -1, SlotAt(SlotColumn(31)+10))
}

func TestRenderResultAndHistory(t *testing.T) {
	th := plain(t)
	ev := quiz.Evaluation{Accuracy: 87.5, CorrectCount: 7, MissedCount: 1}
	rec := quiz.NewRecord("Step-Step (×4)", 120, false, pattern.New(), ev, time.UnixMilli(0))

	out := RenderResult(th, rec)
	assert.Contains(t, out, "Step-Step (×4) @ 120bpm")
	assert.Contains(t, out, "Accuracy: 87.5% (excellent)")
	assert.Contains(t, out, "Correct: 7, missed: 1, extra: 0")

	assert.Contains(t, RenderHistory(th, nil), "no attempts yet")
	hist := RenderHistory(th, []quiz.Record{rec, rec})
	assert.Len(t, strings.Split(hist, "\n"), 2)
	assert.Contains(t, hist, " 87.5% excellent")
}

func TestRenderKeyLine(t *testing.T) {
	assert.Equal(t, "p:play  q:quit", RenderKeyLine([]KeyBinding{{"p", "play"}, {"q", "quit"}}))
	help := RenderKeyHelp([]KeySection{{Title: "Quiz", Keys: []KeyBinding{{"r", "start"}}}})
	assert.Equal(t, "Quiz\n  r            start", help)
}
