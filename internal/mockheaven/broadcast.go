package mockheaven

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	sendBuffer   = 256
	writeTimeout = 10 * time.Second
)

type subscriber struct {
	label string
	conn  *websocket.Conn
	send  chan []byte
}

func newSubscriber(label string, conn *websocket.Conn) *subscriber {
	c := &subscriber{
		label: label,
		conn:  conn,
		send:  make(chan []byte, sendBuffer),
	}
	go c.writePump()
	return c
}

func (c *subscriber) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteMessage(websocket.BinaryMessage, msg); err != nil {
			return
		}
	}
}

// Hub fans serial output out to the sockets watching each port.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*subscriber]bool
}

// NewHub creates a hub with no subscribers.
func NewHub() *Hub {
	return &Hub{clients: make(map[string]map[*subscriber]bool)}
}

// add registers conn for label and queues first as its initial frame.
func (h *Hub) add(label string, conn *websocket.Conn, first []byte) *subscriber {
	c := newSubscriber(label, conn)
	if len(first) > 0 {
		c.send <- first
	}

	h.mu.Lock()
	if h.clients[label] == nil {
		h.clients[label] = make(map[*subscriber]bool)
	}
	h.clients[label][c] = true
	h.mu.Unlock()
	return c
}

func (h *Hub) remove(c *subscriber) {
	h.mu.Lock()
	if set, ok := h.clients[c.label]; ok && set[c] {
		delete(set, c)
		if len(set) == 0 {
			delete(h.clients, c.label)
		}
		close(c.send)
	}
	h.mu.Unlock()
}

// Publish sends data to every socket on label. Slow sockets miss frames.
func (h *Hub) Publish(label string, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients[label] {
		select {
		case c.send <- data:
		default:
		}
	}
}

// Count returns how many sockets watch label.
func (h *Hub) Count(label string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[label])
}

// Disconnect force-closes every socket on label, as a server restart would.
func (h *Hub) Disconnect(label string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients[label] {
		c.conn.Close()
	}
}
