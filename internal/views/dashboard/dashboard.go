// Package dashboard renders heaven's port status grid with a port
// selection row underneath.
package dashboard

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/heaven-console/tui/internal/fragment"
	"github.com/heaven-console/tui/internal/theme"
)

// Model holds the dashboard state.
type Model struct {
	Width    int
	Selected int

	grid   string
	labels []string
	loaded bool
}

// New creates a dashboard model.
func New() Model {
	return Model{}
}

// SetPortStatus replaces the port status fragment. The selection follows
// the selected label when it is still present.
func (m *Model) SetPortStatus(html string) {
	prev := m.SelectedLabel()
	m.grid = html
	m.labels = fragment.Links(html)
	m.loaded = true

	m.Selected = 0
	for i, l := range m.labels {
		if l == prev {
			m.Selected = i
			break
		}
	}
}

// Labels returns the ports on the dashboard in document order.
func (m Model) Labels() []string {
	return m.labels
}

// SelectedLabel returns the selected port, or "" when there are none.
func (m Model) SelectedLabel() string {
	if m.Selected < 0 || m.Selected >= len(m.labels) {
		return ""
	}
	return m.labels[m.Selected]
}

// Next selects the following port, wrapping around.
func (m *Model) Next() {
	if len(m.labels) > 0 {
		m.Selected = (m.Selected + 1) % len(m.labels)
	}
}

// Prev selects the preceding port, wrapping around.
func (m *Model) Prev() {
	if len(m.labels) > 0 {
		m.Selected = (m.Selected - 1 + len(m.labels)) % len(m.labels)
	}
}

// View renders the grid and the selection row.
func (m Model) View() string {
	width := max(m.Width, 40)

	header := theme.StyleHeader.Render("  Port status")
	if !m.loaded {
		return lipgloss.JoinVertical(lipgloss.Left, header, theme.StyleDimmed.Render("  Loading..."))
	}
	if len(m.labels) == 0 {
		return lipgloss.JoinVertical(lipgloss.Left, header, theme.StyleDimmed.Render("  No ports"))
	}

	grid := fragment.Render(m.grid, width-2)

	var picks []string
	for i, l := range m.labels {
		if i == m.Selected {
			picks = append(picks, theme.StyleSelected.Render(" "+l+" "))
		} else {
			picks = append(picks, " "+l+" ")
		}
	}
	selection := lipgloss.NewStyle().Width(width).Render(
		fmt.Sprintf("  %s %s", theme.StyleDimmed.Render("ports:"), strings.Join(picks, " ")))

	return lipgloss.JoinVertical(lipgloss.Left, header, grid, selection, legend(width))
}

// legend maps heaven's tile colours to status names.
func legend(width int) string {
	items := make([]string, 0, len(theme.Statuses))
	for _, s := range theme.Statuses {
		swatch := lipgloss.NewStyle().Foreground(theme.StatusColor(s)).Render("■")
		items = append(items, swatch+" "+theme.StyleDimmed.Render(s))
	}
	return lipgloss.NewStyle().Width(width).Render("  " + strings.Join(items, "  "))
}
