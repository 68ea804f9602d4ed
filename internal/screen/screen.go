// Package screen provides the terminal display surfaces the serial bridge
// writes into: an in-memory scrollback for the TUI and a raw passthrough
// onto the user's own terminal.
package screen

import (
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/x/ansi"
)

// Surface is a terminal display: it renders every byte written to it and
// can be wiped.
type Surface interface {
	io.Writer
	Clear()
}

// DefaultCapacity is the scrollback size used when none is given.
const DefaultCapacity = 256 * 1024

// Buffer is a thread-safe, capacity-bounded scrollback. When full, the
// oldest bytes are discarded.
type Buffer struct {
	mu       sync.RWMutex
	data     []byte
	capacity int
	changed  chan struct{}
}

// NewBuffer creates a Buffer holding at most capacity bytes.
func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{
		data:     make([]byte, 0, min(capacity, 4096)),
		capacity: capacity,
		changed:  make(chan struct{}, 1),
	}
}

// Write appends p, dropping the oldest bytes past capacity.
func (b *Buffer) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	b.mu.Lock()
	if len(p) >= b.capacity {
		b.data = append(b.data[:0], p[len(p)-b.capacity:]...)
	} else {
		if overflow := len(b.data) + len(p) - b.capacity; overflow > 0 {
			b.data = append(b.data[:0], b.data[overflow:]...)
		}
		b.data = append(b.data, p...)
	}
	b.mu.Unlock()

	b.notify()
	return len(p), nil
}

// Clear empties the scrollback.
func (b *Buffer) Clear() {
	b.mu.Lock()
	b.data = b.data[:0]
	b.mu.Unlock()
	b.notify()
}

// Len returns the number of buffered bytes.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.data)
}

// Bytes returns a copy of the buffered bytes.
func (b *Buffer) Bytes() []byte {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]byte, len(b.data))
	copy(out, b.data)
	return out
}

// Changed is signalled after every Write or Clear. Signals coalesce.
func (b *Buffer) Changed() <-chan struct{} {
	return b.changed
}

// Lines renders the scrollback as printable lines. Escape sequences are
// stripped and a carriage return inside a line keeps only the text after it.
func (b *Buffer) Lines() []string {
	return RenderLines(b.Bytes())
}

func (b *Buffer) notify() {
	select {
	case b.changed <- struct{}{}:
	default:
	}
}

// RenderLines turns raw terminal output into printable lines.
func RenderLines(data []byte) []string {
	if len(data) == 0 {
		return nil
	}
	raw := strings.Split(string(data), "\n")
	lines := make([]string, 0, len(raw))
	for _, l := range raw {
		l = strings.TrimSuffix(l, "\r")
		if i := strings.LastIndexByte(l, '\r'); i >= 0 {
			l = l[i+1:]
		}
		lines = append(lines, ansi.Strip(l))
	}
	return lines
}

// clearSequence homes the cursor and wipes the screen and its scrollback.
const clearSequence = "\x1b[H\x1b[2J\x1b[3J"

// Raw passes bytes straight through to w, typically os.Stdout in raw mode.
type Raw struct {
	mu sync.Mutex
	w  io.Writer
}

// NewRaw wraps w.
func NewRaw(w io.Writer) *Raw {
	return &Raw{w: w}
}

func (r *Raw) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.w.Write(p)
}

// Clear wipes the terminal.
func (r *Raw) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	io.WriteString(r.w, clearSequence)
}
