// Package detail renders the port page: job header, serial terminal and
// device information.
package detail

import (
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/heaven-console/tui/internal/fragment"
	"github.com/heaven-console/tui/internal/theme"
)

var (
	stylePanel = theme.StyleBorder.Padding(0, 1)

	styleTerminal = lipgloss.NewStyle().
			BorderStyle(lipgloss.NormalBorder()).
			BorderForeground(theme.ColorBorder)

	styleTitle = lipgloss.NewStyle().
			Bold(true).
			Foreground(theme.ColorBright)
)

// Model holds the port page state.
type Model struct {
	Label    string
	Terminal viewport.Model

	header  string
	devinfo string
	width   int
	height  int
	lines   int
}

// New creates a port page for label.
func New(label string) Model {
	return Model{Label: label, Terminal: viewport.New(0, 0)}
}

// SetHeader replaces the job header fragment.
func (m *Model) SetHeader(html string) {
	m.header = html
	m.layout()
}

// SetDevInfo replaces the device information fragment.
func (m *Model) SetDevInfo(html string) {
	m.devinfo = html
	m.layout()
}

// SetSize sets the space the page may fill.
func (m *Model) SetSize(width, height int) {
	m.width, m.height = width, height
	m.layout()
}

// SetLines replaces the terminal contents. The view stays pinned to the
// bottom unless the user has scrolled up.
func (m *Model) SetLines(lines []string) {
	follow := m.Terminal.AtBottom() || m.lines == 0
	m.lines = len(lines)
	m.Terminal.SetContent(strings.Join(lines, "\n"))
	if follow {
		m.Terminal.GotoBottom()
	}
}

// Update forwards scrolling keys to the terminal viewport.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	var cmd tea.Cmd
	m.Terminal, cmd = m.Terminal.Update(msg)
	return m, cmd
}

func (m *Model) headerView() string {
	title := styleTitle.Render("Port " + m.Label)
	if m.header == "" {
		return stylePanel.Width(max(m.width-2, 20)).Render(title + "\n" + theme.StyleDimmed.Render("Loading..."))
	}
	return stylePanel.Width(max(m.width-2, 20)).Render(fragment.Render(m.header, max(m.width-6, 20)))
}

func (m *Model) devinfoView() string {
	if m.devinfo == "" {
		return ""
	}
	return stylePanel.Width(max(m.width-2, 20)).Render(fragment.Render(m.devinfo, max(m.width-6, 20)))
}

// layout gives the terminal whatever height the panels leave.
func (m *Model) layout() {
	used := lipgloss.Height(m.headerView()) + 2
	if d := m.devinfoView(); d != "" {
		used += lipgloss.Height(d)
	}
	m.Terminal.Width = max(m.width-2, 10)
	m.Terminal.Height = max(m.height-used, 3)
}

// View renders the page.
func (m Model) View() string {
	sections := []string{
		m.headerView(),
		styleTerminal.Render(m.Terminal.View()),
	}
	if d := m.devinfoView(); d != "" {
		sections = append(sections, d)
	}
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}
