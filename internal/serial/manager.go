// Package serial bridges a remote serial console onto a local terminal
// surface and keeps the bridge up across disconnects.
//
// The ConnectionManager moves through three states:
//
//	Disconnected --Connect--> Connecting --open--> Attached
//	     ^                        |                   |
//	     +------ error -----------+---- close/error --+
//
// Every return to Disconnected from Run schedules exactly one new attempt
// after a fixed delay. There is no backoff and no retry cap; the loop ends
// only when the context passed to Run is cancelled.
package serial

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// DefaultReconnectDelay is the pause between a drop and the next attempt.
const DefaultReconnectDelay = time.Second

var (
	// ErrNotAttached is returned by Send when no transport is attached.
	ErrNotAttached = errors.New("serial: not attached")
	// ErrAlreadyRunning is returned when a second driver or a duplicate
	// connect would create another live transport.
	ErrAlreadyRunning = errors.New("serial: connection already active")
)

// State is the bridge's position in its lifecycle.
type State int

const (
	Disconnected State = iota
	Connecting
	Attached
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Attached:
		return "attached"
	default:
		return "unknown"
	}
}

// Event describes one state transition.
type Event struct {
	State   State
	Attempt uint64
	// ConnID identifies the transport attempt in logs.
	ConnID string
	// Err is set when the transition was caused by a failure or a close.
	Err error
	// RetryIn is the scheduled delay when State is Disconnected and a
	// reconnect is pending.
	RetryIn time.Duration
}

// Option configures a ConnectionManager.
type Option func(*ConnectionManager)

// WithReconnectDelay sets the fixed reconnect delay. Zero reconnects
// immediately.
func WithReconnectDelay(d time.Duration) Option {
	return func(m *ConnectionManager) {
		if d >= 0 {
			m.delay = d
		}
	}
}

// WithLogger sets the logger used for connection diagnostics.
func WithLogger(l zerolog.Logger) Option {
	return func(m *ConnectionManager) { m.logger = l }
}

// WithEventHook registers fn to receive every state transition. fn is
// called synchronously from the bridge goroutine and must not block.
func WithEventHook(fn func(Event)) Option {
	return func(m *ConnectionManager) { m.onEvent = fn }
}

// ConnectionManager owns the single live transport of a session and pipes
// it onto the surface.
type ConnectionManager struct {
	dialer  Dialer
	surface io.Writer
	delay   time.Duration
	logger  zerolog.Logger
	onEvent func(Event)
	after   func(time.Duration) <-chan time.Time

	// surfaceMu orders surface writes; mu is never held across them.
	surfaceMu sync.Mutex

	mu        sync.Mutex
	state     State
	transport Transport
	gen       uint64 // bumped for every transport attempt
	attempt   uint64
	running   bool
}

// NewConnectionManager creates a bridge that dials through d and renders
// inbound bytes on surface.
func NewConnectionManager(d Dialer, surface io.Writer, opts ...Option) *ConnectionManager {
	m := &ConnectionManager{
		dialer:  d,
		surface: surface,
		delay:   DefaultReconnectDelay,
		logger:  zerolog.Nop(),
		after:   time.After,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State returns the current state.
func (m *ConnectionManager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Attempts returns how many transport attempts have been made.
func (m *ConnectionManager) Attempts() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempt
}

// Run connects and keeps reconnecting until ctx is cancelled. It returns
// ctx.Err() on cancellation, or ErrAlreadyRunning if another Run is active.
func (m *ConnectionManager) Run(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return ErrAlreadyRunning
	}
	m.running = true
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.running = false
		m.mu.Unlock()
	}()

	for {
		err := m.Connect(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		m.logger.Info().
			Err(err).
			Dur("retry_in", m.delay).
			Msg("serial socket closed, reconnect scheduled")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.after(m.delay):
		}
	}
}

// Connect makes one transport attempt and, once attached, pumps inbound
// bytes onto the surface until the transport closes or fails. It always
// returns with the bridge Disconnected; the returned error says why.
// Connect refuses to run while another transport is live.
func (m *ConnectionManager) Connect(ctx context.Context) error {
	gen, attempt, ok := m.beginConnect()
	if !ok {
		return ErrAlreadyRunning
	}
	connID := uuid.NewString()
	log := m.logger.With().Uint64("attempt", attempt).Str("conn", connID).Logger()

	log.Debug().Msg("connecting to serial socket")
	m.emit(Event{State: Connecting, Attempt: attempt, ConnID: connID})

	t, err := m.dialer.Dial(ctx)
	if err != nil {
		if ctx.Err() == nil {
			log.Error().Err(err).Msg("serial socket error")
		}
		m.detach(gen, nil)
		m.emitDisconnected(ctx, attempt, connID, err)
		return err
	}

	if !m.attach(gen, t) {
		m.detach(gen, t)
		return ErrAlreadyRunning
	}
	log.Info().Msg("serial socket attached")
	m.emit(Event{State: Attached, Attempt: attempt, ConnID: connID})

	stop := context.AfterFunc(ctx, func() { t.Close() })
	defer stop()

	err = m.pump(gen, t)
	switch {
	case ctx.Err() != nil:
		log.Debug().Msg("serial socket closed on shutdown")
	case isNormalClose(err):
		log.Info().Err(err).Msg("serial socket closed by peer")
	default:
		log.Error().Err(err).Msg("serial socket error, closing")
	}
	m.detach(gen, t)
	m.emitDisconnected(ctx, attempt, connID, err)
	return err
}

// Send forwards typed input to the attached transport.
func (m *ConnectionManager) Send(p []byte) error {
	m.mu.Lock()
	t := m.transport
	attached := m.state == Attached
	m.mu.Unlock()
	if !attached || t == nil {
		return ErrNotAttached
	}
	return t.Write(p)
}

func (m *ConnectionManager) beginConnect() (gen, attempt uint64, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != Disconnected || m.transport != nil {
		return 0, 0, false
	}
	m.gen++
	m.attempt++
	m.state = Connecting
	return m.gen, m.attempt, true
}

func (m *ConnectionManager) attach(gen uint64, t Transport) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.gen || m.state != Connecting {
		return false
	}
	m.transport = t
	m.state = Attached
	return true
}

// detach closes the tracked transport of generation gen, if it is still the
// current one, and returns the bridge to Disconnected.
func (m *ConnectionManager) detach(gen uint64, t Transport) {
	m.mu.Lock()
	if gen == m.gen {
		if m.transport != nil {
			t = m.transport
		}
		m.transport = nil
		m.state = Disconnected
	}
	m.mu.Unlock()
	if t != nil {
		t.Close()
	}
}

// pump copies inbound chunks onto the surface until Read fails. Chunks
// from a superseded generation are dropped.
func (m *ConnectionManager) pump(gen uint64, t Transport) error {
	for {
		data, err := t.Read()
		if err != nil {
			return err
		}
		if len(data) == 0 {
			continue
		}

		m.surfaceMu.Lock()
		if !m.current(gen, t) {
			m.surfaceMu.Unlock()
			return ErrAlreadyRunning
		}
		_, werr := m.surface.Write(data)
		m.surfaceMu.Unlock()
		if werr != nil {
			m.logger.Warn().Err(werr).Msg("surface write failed")
		}
	}
}

func (m *ConnectionManager) current(gen uint64, t Transport) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return gen == m.gen && m.transport == t
}

func (m *ConnectionManager) emitDisconnected(ctx context.Context, attempt uint64, connID string, err error) {
	ev := Event{State: Disconnected, Attempt: attempt, ConnID: connID, Err: err}
	m.mu.Lock()
	if m.running && ctx.Err() == nil {
		ev.RetryIn = m.delay
	}
	m.mu.Unlock()
	m.emit(ev)
}

func (m *ConnectionManager) emit(ev Event) {
	if m.onEvent != nil {
		m.onEvent(ev)
	}
}

func isNormalClose(err error) bool {
	return err == nil ||
		errors.Is(err, io.EOF) ||
		websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}
