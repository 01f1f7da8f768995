// Package report renders command results as styled terminal cards.
package report

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Field is one labeled line of a card.
type Field struct {
	Label string
	Value string
}

// theme groups reusable styles for report cards.
type theme struct {
	okTitle    lipgloss.Style
	okBox      lipgloss.Style
	errorTitle lipgloss.Style
	errorBox   lipgloss.Style
	label      lipgloss.Style
	value      lipgloss.Style
	empty      lipgloss.Style
}

func defaultTheme() theme {
	return theme{
		okTitle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("16")).
			Background(lipgloss.Color("44")).
			Padding(0, 1),
		okBox: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("44")).
			Padding(0, 1),
		errorTitle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("16")).
			Background(lipgloss.Color("203")).
			Padding(0, 1),
		errorBox: lipgloss.NewStyle().
			Border(lipgloss.DoubleBorder()).
			BorderForeground(lipgloss.Color("203")).
			Foreground(lipgloss.Color("203")).
			Padding(0, 1),
		label: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("214")),
		value: lipgloss.NewStyle().
			Foreground(lipgloss.Color("252")),
		empty: lipgloss.NewStyle().
			Italic(true).
			Foreground(lipgloss.Color("244")),
	}
}

var styles = defaultTheme()

// Card renders title above a box of aligned fields. Empty values are shown
// as "none".
func Card(title string, fields []Field) string {
	width := 0
	for _, f := range fields {
		width = max(width, lipgloss.Width(f.Label))
	}

	lines := make([]string, 0, len(fields))
	for _, f := range fields {
		label := styles.label.Render(f.Label + strings.Repeat(" ", width-lipgloss.Width(f.Label)))
		value := styles.value.Render(f.Value)
		if strings.TrimSpace(f.Value) == "" {
			value = styles.empty.Render("none")
		}
		lines = append(lines, label+"  "+value)
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		styles.okTitle.Render(title),
		styles.okBox.Render(strings.Join(lines, "\n")),
	)
}

// Error renders a failure card.
func Error(title string, message string) string {
	return lipgloss.JoinVertical(lipgloss.Left,
		styles.errorTitle.Render(title),
		styles.errorBox.Render(strings.TrimSpace(message)),
	)
}
