package app

import (
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
)

// KeyMap defines all keyboard bindings for the TUI.
type KeyMap struct {
	Up     key.Binding
	Down   key.Binding
	Enter  key.Binding
	Abort  key.Binding
	Input  key.Binding
	Escape key.Binding
	Debug  key.Binding
	Help   key.Binding
	Quit   key.Binding
}

// DefaultKeyMap returns the default key bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Up: key.NewBinding(
			key.WithKeys("k", "up"),
			key.WithHelp("k/↑", "prev port"),
		),
		Down: key.NewBinding(
			key.WithKeys("j", "down"),
			key.WithHelp("j/↓", "next port"),
		),
		Enter: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "open port"),
		),
		Abort: key.NewBinding(
			key.WithKeys("a", "x"),
			key.WithHelp("a/x", "abort job"),
		),
		Input: key.NewBinding(
			key.WithKeys("i"),
			key.WithHelp("i", "type to console"),
		),
		Escape: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "back"),
		),
		Debug: key.NewBinding(
			key.WithKeys("d"),
			key.WithHelp("d", "event log"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "help"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

// escapeSequences are the VT100 sequences for keys that have no control
// code of their own.
var escapeSequences = map[tea.KeyType]string{
	tea.KeyUp:       "\x1b[A",
	tea.KeyDown:     "\x1b[B",
	tea.KeyRight:    "\x1b[C",
	tea.KeyLeft:     "\x1b[D",
	tea.KeyHome:     "\x1b[H",
	tea.KeyEnd:      "\x1b[F",
	tea.KeyDelete:   "\x1b[3~",
	tea.KeyPgUp:     "\x1b[5~",
	tea.KeyPgDown:   "\x1b[6~",
	tea.KeyShiftTab: "\x1b[Z",
}

// inputBytes maps a key press to the bytes a terminal would send for it.
func inputBytes(msg tea.KeyMsg) []byte {
	var out []byte
	switch {
	case msg.Type == tea.KeyRunes:
		out = []byte(string(msg.Runes))
	case msg.Type == tea.KeySpace:
		out = []byte{' '}
	case msg.Type >= 0 && msg.Type < 32, msg.Type == tea.KeyBackspace:
		// Control keys carry their ASCII code as the key type.
		out = []byte{byte(msg.Type)}
	default:
		seq, ok := escapeSequences[msg.Type]
		if !ok {
			return nil
		}
		out = []byte(seq)
	}
	if msg.Alt {
		out = append([]byte{0x1b}, out...)
	}
	return out
}
