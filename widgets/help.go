package widgets

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"clap-trainer/theme"
)

// KeySection groups related key bindings
type KeySection struct {
	Title string
	Keys  []KeyBinding
}

// KeyBinding is a single key and its description
type KeyBinding struct {
	Key  string
	Desc string
}

// RenderPad renders a single colored square
func RenderPad(color theme.RGB) string {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(color.Hex())).Render("■")
}

// RenderLegendItem renders a single legend item: "● name"
func RenderLegendItem(style lipgloss.Style, symbol rune, name string) string {
	return fmt.Sprintf("%s %s", style.Render(string(symbol)), name)
}

// RenderLegend explains the grid symbols on one line
func RenderLegend(th *theme.Theme) string {
	items := []string{
		RenderLegendItem(th.Style(theme.RoleSuccess), th.Symbols.SlotMain, "beat"),
		RenderLegendItem(th.Style(theme.RoleActive), th.Symbols.SlotSub, "e/&/a"),
		RenderLegendItem(th.Style(theme.RoleMuted), th.Symbols.SlotOff, "rest"),
		RenderLegendItem(th.Style(theme.RoleSuccess), th.Symbols.Correct, "correct"),
		RenderLegendItem(th.Style(theme.RoleWarning), th.Symbols.Missed, "missed"),
		RenderLegendItem(th.Style(theme.RoleActive), th.Symbols.Extra, "extra"),
	}
	return "  " + strings.Join(items, "   ")
}

// RenderKeyHelp formats key bindings in a friendly way
func RenderKeyHelp(sections []KeySection) string {
	var lines []string
	for _, sec := range sections {
		if sec.Title != "" {
			lines = append(lines, sec.Title)
		}
		for _, k := range sec.Keys {
			lines = append(lines, fmt.Sprintf("  %-12s %s", k.Key, k.Desc))
		}
	}
	return strings.Join(lines, "\n")
}

// RenderKeyLine is the one-line form of RenderKeyHelp
func RenderKeyLine(keys []KeyBinding) string {
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k.Key + ":" + k.Desc
	}
	return strings.Join(parts, "  ")
}
