package detail

import (
	"fmt"
	"strings"
	"testing"
)

func TestViewShowsPanels(t *testing.T) {
	m := New("sw1")
	m.SetSize(100, 40)
	if !strings.Contains(m.View(), "Loading") {
		t.Error("page without header should show loading")
	}

	m.SetHeader(`<table><tr><td><b>sw1</b></td></tr><tr><td>Current stage:</td><td>JunosInstall</td></tr></table>`)
	m.SetDevInfo(`<h3>Device Information:</h3><ul><li>EX2300</li></ul>`)
	m.SetLines([]string{"U-Boot 2016.01", "login:"})

	v := m.View()
	for _, want := range []string{"JunosInstall", "• EX2300", "U-Boot 2016.01", "login:"} {
		if !strings.Contains(v, want) {
			t.Errorf("view missing %q:\n%s", want, v)
		}
	}
}

func TestTerminalFollowsOutput(t *testing.T) {
	m := New("sw1")
	m.SetSize(80, 20)

	var lines []string
	for i := 0; i < 100; i++ {
		lines = append(lines, fmt.Sprintf("line %d", i))
	}
	m.SetLines(lines)
	if !m.Terminal.AtBottom() {
		t.Fatal("terminal should start pinned to the bottom")
	}

	m.Terminal.ScrollUp(10)
	m.SetLines(append(lines, "line 100"))
	if m.Terminal.AtBottom() {
		t.Error("scrolled-up terminal should not jump to the bottom")
	}

	m.Terminal.GotoBottom()
	m.SetLines(append(lines, "line 100", "line 101"))
	if !m.Terminal.AtBottom() {
		t.Error("terminal at the bottom should follow new output")
	}
}

func TestLayoutLeavesRoomForTerminal(t *testing.T) {
	m := New("sw1")
	m.SetSize(80, 10)
	if m.Terminal.Height < 3 {
		t.Errorf("terminal height = %d", m.Terminal.Height)
	}
}
