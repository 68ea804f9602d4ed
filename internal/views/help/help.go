// Package help renders the key reference overlay from markdown.
package help

import (
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/heaven-console/tui/internal/theme"
)

const markdown = `# heaven console

## Dashboard

| Key | Action |
|-----|--------|
| j / k | select port |
| enter | open port page |
| a | abort the selected port's job |

## Port page

| Key | Action |
|-----|--------|
| i | type into the serial console (esc leaves) |
| x | abort the job; the terminal clears on success |
| pgup / pgdn | scroll the terminal |
| esc | back to the dashboard |

## Everywhere

| Key | Action |
|-----|--------|
| d | event log |
| ? | this help |
| q | quit |
`

// Render returns the help text wrapped to width. If markdown rendering
// fails the raw text is returned.
func Render(width int) string {
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dark"),
		glamour.WithWordWrap(max(width-8, 20)),
	)
	if err != nil {
		return markdown
	}
	out, err := r.Render(markdown)
	if err != nil {
		return markdown
	}
	return strings.TrimRight(out, "\n")
}

// View renders the overlay panel.
func View(width int) string {
	return lipgloss.NewStyle().
		Padding(0, 1).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(theme.ColorBorder).
		Render(Render(width) + "\n" + theme.StyleDimmed.Render("esc:close"))
}
