package serial

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/gorilla/websocket"
)

const (
	defaultWriteTimeout = 10 * time.Second
	defaultPongTimeout  = 60 * time.Second
	defaultPingInterval = 30 * time.Second
)

// Transport is one live bidirectional byte stream to the remote terminal.
// A Transport is never reused once closed.
type Transport interface {
	// Read blocks until the next chunk of terminal output arrives.
	Read() ([]byte, error)
	// Write sends typed input.
	Write(p []byte) error
	Close() error
}

// Dialer opens a fresh Transport.
type Dialer interface {
	Dial(ctx context.Context) (Transport, error)
}

// WebSocketDialer dials the heaven serial endpoint.
type WebSocketDialer struct {
	URL    string
	Header http.Header
	Dialer *websocket.Dialer

	PingInterval time.Duration
	PongTimeout  time.Duration
	WriteTimeout time.Duration
}

// Dial opens the WebSocket and starts its keepalive.
func (d *WebSocketDialer) Dial(ctx context.Context) (Transport, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, resp, err := dialer.DialContext(ctx, d.URL, d.Header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %s: %w", d.URL, resp.Status, err)
		}
		return nil, fmt.Errorf("dial %s: %w", d.URL, err)
	}

	t := &wsTransport{
		conn:         conn,
		done:         make(chan struct{}),
		pingInterval: orDefault(d.PingInterval, defaultPingInterval),
		pongTimeout:  orDefault(d.PongTimeout, defaultPongTimeout),
		writeTimeout: orDefault(d.WriteTimeout, defaultWriteTimeout),
	}
	// The read deadline is armed by the first pong. heaven's serial endpoint
	// never reads, so it never answers pings and must not time out.
	conn.SetPongHandler(func(string) error {
		t.pongSeen.Store(true)
		return conn.SetReadDeadline(time.Now().Add(t.pongTimeout))
	})
	go t.pingLoop()
	return t, nil
}

type wsTransport struct {
	conn    *websocket.Conn
	writeMu sync.Mutex // serialises all conn writes (ping, input, close)

	done      chan struct{}
	closeOnce sync.Once
	pongSeen  atomic.Bool

	pingInterval time.Duration
	pongTimeout  time.Duration
	writeTimeout time.Duration
}

func (t *wsTransport) Read() ([]byte, error) {
	_, data, err := t.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	if t.pongSeen.Load() {
		t.conn.SetReadDeadline(time.Now().Add(t.pongTimeout))
	}
	return data, nil
}

func (t *wsTransport) Write(p []byte) error {
	mt := websocket.TextMessage
	if !utf8.Valid(p) {
		mt = websocket.BinaryMessage
	}
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout))
	return t.conn.WriteMessage(mt, p)
}

func (t *wsTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.done)
		t.writeMu.Lock()
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		t.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		t.writeMu.Unlock()
		err = t.conn.Close()
	})
	return err
}

// pingLoop sends periodic pings until the transport is closed.
func (t *wsTransport) pingLoop() {
	ticker := time.NewTicker(t.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
			t.writeMu.Lock()
			err := t.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(t.writeTimeout))
			t.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
