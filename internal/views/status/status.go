package status

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/heaven-console/tui/internal/theme"
)

// Model holds the status bar state.
type Model struct {
	Target  string // "dashboard" or the port label
	State   string // serial bridge state, empty on the dashboard
	Attempt uint64
	RetryIn string
	Spinner string
	Input   bool
	LastErr string
	Notice  string
	Width   int
}

// New creates a status bar model.
func New() Model {
	return Model{Target: "dashboard"}
}

// View renders the status bar.
func (m Model) View() string {
	width := m.Width
	if width < 40 {
		width = 40
	}

	sep := lipgloss.NewStyle().Foreground(theme.ColorBorder).Render(" | ")
	content := theme.StyleHeader.Render(m.Target)

	if m.State != "" {
		glyph := theme.StateGlyph(m.State)
		if m.State == "connecting" && m.Spinner != "" {
			glyph = m.Spinner
		}
		conn := lipgloss.NewStyle().Foreground(theme.StateColor(m.State)).
			Render(fmt.Sprintf("%s %s", glyph, m.State))
		content += sep + conn
		if m.Attempt > 0 {
			content += sep + theme.StyleDimmed.Render(fmt.Sprintf("attempt %d", m.Attempt))
		}
		if m.RetryIn != "" && m.State == "disconnected" {
			content += sep + theme.StyleDimmed.Render("retry in "+m.RetryIn)
		}
	}
	if m.Input {
		content += sep + theme.StyleInput.Render(" INPUT ")
	}
	if m.Notice != "" {
		content += sep + lipgloss.NewStyle().Foreground(theme.ColorAttached).Render(m.Notice)
	}
	if m.LastErr != "" {
		content += sep + lipgloss.NewStyle().Foreground(theme.ColorDanger).Render(m.LastErr)
	}

	bar := lipgloss.NewStyle().
		Width(width).
		Padding(0, 1).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(theme.ColorBorder).
		Render(content)

	return bar
}
