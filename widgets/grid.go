package widgets

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"clap-trainer/pattern"
	"clap-trainer/position"
	"clap-trainer/quiz"
	"clap-trainer/theme"
)

// GridState is what the pattern grid shows besides the pattern itself
type GridState struct {
	Cursor   int              // -1 hides the cursor
	Playhead int              // -1 when nothing sounds
	Heard    map[int]bool     // slots with a clap during recording
	Result   *quiz.Evaluation // outcome row after an attempt
}

const beatGap = "  "

// RenderPattern draws the 32 slots as eight beat groups: a label row,
// the pattern row, and optional clap and outcome rows underneath
func RenderPattern(th *theme.Theme, p pattern.Pattern, st GridState) string {
	dim := th.Style(theme.RoleMuted)
	main := th.Style(theme.RoleFG)
	on := th.Style(theme.RoleSuccess)
	sub := th.Style(theme.RoleActive)
	cursor := lipgloss.NewStyle().Background(th.Surface())
	head := th.Style(theme.RoleAccent).Bold(true)

	labels := make([]string, position.TotalSlots)
	cells := make([]string, position.TotalSlots)
	for i, s := range p {
		if position.IsMain(i) {
			labels[i] = main.Render(s.Label)
		} else {
			labels[i] = dim.Render(s.Label)
		}

		char := th.Symbols.SlotOff
		style := dim
		switch {
		case s.Enabled && s.Role == pattern.RoleMain:
			char, style = th.Symbols.SlotMain, on
		case s.Enabled:
			char, style = th.Symbols.SlotSub, sub
		case i == st.Cursor:
			char = th.Symbols.Cursor
		}
		if i == st.Playhead {
			if s.Enabled {
				style = style.Reverse(true)
			} else {
				char, style = th.Symbols.Playhead, head
			}
		}
		if i == st.Cursor {
			style = style.Inherit(cursor)
		}
		cells[i] = style.Render(string(char))
	}

	rows := []string{joinBeats(labels), joinBeats(cells)}

	if st.Heard != nil {
		heard := make([]string, position.TotalSlots)
		for i := range heard {
			if st.Heard[i] {
				heard[i] = head.Render("|")
			} else {
				heard[i] = " "
			}
		}
		rows = append(rows, joinBeats(heard))
	}

	if st.Result != nil {
		rows = append(rows, joinBeats(outcomeCells(th, st.Result)))
	}
	return strings.Join(rows, "\n")
}

func outcomeCells(th *theme.Theme, ev *quiz.Evaluation) []string {
	cells := make([]string, position.TotalSlots)
	for i := range cells {
		cells[i] = " "
	}
	for _, b := range ev.Beats {
		if b.Index < 0 || b.Index >= position.TotalSlots {
			continue
		}
		cells[b.Index] = StatusStyle(th, b.Status).Render(string(StatusSymbol(th, b.Status)))
	}
	return cells
}

// StatusSymbol is the outcome mark for one slot
func StatusSymbol(th *theme.Theme, s quiz.Status) rune {
	switch s {
	case quiz.StatusCorrect:
		return th.Symbols.Correct
	case quiz.StatusMissed:
		return th.Symbols.Missed
	case quiz.StatusExtra:
		return th.Symbols.Extra
	default:
		return th.Symbols.Silent
	}
}

func StatusStyle(th *theme.Theme, s quiz.Status) lipgloss.Style {
	switch s {
	case quiz.StatusCorrect:
		return th.Style(theme.RoleSuccess)
	case quiz.StatusMissed:
		return th.Style(theme.RoleWarning)
	case quiz.StatusExtra:
		return th.Style(theme.RoleActive)
	default:
		return th.Style(theme.RoleMuted)
	}
}

// joinBeats spaces cells within a beat and separates beats with a gap
func joinBeats(cells []string) string {
	var out strings.Builder
	for i, c := range cells {
		if i > 0 {
			if position.IsMain(i) {
				out.WriteString(beatGap)
			} else {
				out.WriteString(" ")
			}
		}
		out.WriteString(c)
	}
	return out.String()
}

// SlotColumn is the display column of slot i in a RenderPattern row
func SlotColumn(i int) int {
	beat := position.Quarter(i)
	sub := position.Subdivision(i)
	return beat*(2*position.SlotsPerBeat-1+len(beatGap)) + 2*sub
}

// SlotAt maps a display column back to a slot, -1 between cells
func SlotAt(col int) int {
	width := 2*position.SlotsPerBeat - 1 + len(beatGap)
	beat, rem := col/width, col%width
	if col < 0 || beat >= position.PatternBeats || rem%2 == 1 || rem/2 >= position.SlotsPerBeat {
		return -1
	}
	return beat*position.SlotsPerBeat + rem/2
}
