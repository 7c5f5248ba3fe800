package widgets

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"clap-trainer/quiz"
	"clap-trainer/theme"
)

// GradeStyle colors a grade from warning up to success
func GradeStyle(th *theme.Theme, g quiz.Grade) lipgloss.Style {
	switch g {
	case quiz.GradePerfect:
		return th.Style(theme.RoleSuccess).Bold(true)
	case quiz.GradeExcellent:
		return th.Style(theme.RoleSuccess)
	case quiz.GradeGood:
		return th.Style(theme.RoleActive)
	case quiz.GradePass:
		return th.Style(theme.RoleCursor)
	default:
		return th.Style(theme.RoleWarning)
	}
}

// RenderResult is the panel shown after an attempt
func RenderResult(th *theme.Theme, rec quiz.Record) string {
	ev := rec.Evaluation
	title := th.Style(theme.RoleAccent).Render(fmt.Sprintf("%s @ %.0fbpm", rec.PatternName, rec.BPM))
	grade := GradeStyle(th, quiz.GradeFor(ev.Accuracy))

	lines := strings.Split(quiz.Summary(ev), "\n")
	lines[0] = grade.Render(lines[0])
	return title + "\n" + strings.Join(lines, "\n")
}

// RenderHistory lists records one per line, newest first
func RenderHistory(th *theme.Theme, records []quiz.Record) string {
	if len(records) == 0 {
		return th.Style(theme.RoleMuted).Render("no attempts yet")
	}
	dim := th.Style(theme.RoleMuted)
	lines := make([]string, 0, len(records))
	for _, r := range records {
		ev := r.Evaluation
		g := quiz.GradeFor(ev.Accuracy)
		lines = append(lines, fmt.Sprintf("%s  %-24s %3.0fbpm  %s",
			dim.Render(r.Timestamp.Local().Format("2006-01-02 15:04")),
			r.PatternName,
			r.BPM,
			GradeStyle(th, g).Render(fmt.Sprintf("%5.1f%% %s", ev.Accuracy, g)),
		))
	}
	return strings.Join(lines, "\n")
}
