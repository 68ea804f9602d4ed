package serial

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"
)

var errDropped = errors.New("connection reset by peer")

type fakeTransport struct {
	chunks  chan []byte
	readErr error

	closed    chan struct{}
	closeOnce sync.Once

	mu      sync.Mutex
	written [][]byte
}

func newFakeTransport(readErr error, chunks ...string) *fakeTransport {
	t := &fakeTransport{
		chunks:  make(chan []byte, len(chunks)),
		readErr: readErr,
		closed:  make(chan struct{}),
	}
	for _, c := range chunks {
		t.chunks <- []byte(c)
	}
	close(t.chunks)
	return t
}

// newHeldTransport delivers chunks and then blocks until closed.
func newHeldTransport(chunks ...string) *fakeTransport {
	t := &fakeTransport{
		chunks: make(chan []byte, len(chunks)),
		closed: make(chan struct{}),
	}
	for _, c := range chunks {
		t.chunks <- []byte(c)
	}
	return t
}

func (t *fakeTransport) Read() ([]byte, error) {
	select {
	case c, ok := <-t.chunks:
		if !ok {
			return nil, t.readErr
		}
		return c, nil
	case <-t.closed:
		return nil, io.EOF
	}
}

func (t *fakeTransport) Write(p []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.written = append(t.written, append([]byte(nil), p...))
	return nil
}

func (t *fakeTransport) Close() error {
	t.closeOnce.Do(func() { close(t.closed) })
	return nil
}

func (t *fakeTransport) isClosed() bool {
	select {
	case <-t.closed:
		return true
	default:
		return false
	}
}

// scriptDialer hands out scripted results in order and tracks how many
// transports it has open at once.
type scriptDialer struct {
	mu      sync.Mutex
	script  []any // *fakeTransport or error
	dials   int
	live    []*fakeTransport
	maxLive int
	exhaust func()
}

func (d *scriptDialer) Dial(ctx context.Context) (Transport, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	open := 0
	for _, t := range d.live {
		if !t.isClosed() {
			open++
		}
	}
	if open+1 > d.maxLive {
		d.maxLive = open + 1
	}

	idx := d.dials
	d.dials++
	if idx >= len(d.script) {
		if d.exhaust != nil {
			d.exhaust()
		}
		return nil, context.Canceled
	}
	switch v := d.script[idx].(type) {
	case *fakeTransport:
		d.live = append(d.live, v)
		return v, nil
	case error:
		return nil, v
	}
	panic("bad script entry")
}

type recordingClock struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (c *recordingClock) after(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	c.delays = append(c.delays, d)
	c.mu.Unlock()
	ch := make(chan time.Time, 1)
	ch <- time.Now()
	return ch
}

func TestRunSchedulesOneReconnectPerDrop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d := &scriptDialer{
		script: []any{
			newFakeTransport(errDropped, "a"),
			errors.New("dial refused"),
			newFakeTransport(io.EOF, "b"),
			newFakeTransport(errDropped),
		},
		exhaust: cancel,
	}
	var surface bytes.Buffer
	clock := &recordingClock{}
	m := NewConnectionManager(d, &surface, WithReconnectDelay(750*time.Millisecond))
	m.after = clock.after

	err := m.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run returned %v, want context.Canceled", err)
	}

	// Four drop/error events, then the fifth dial cancels the context.
	if len(clock.delays) != 4 {
		t.Fatalf("expected 4 scheduled reconnects, got %d", len(clock.delays))
	}
	for i, got := range clock.delays {
		if got != 750*time.Millisecond {
			t.Errorf("reconnect %d scheduled after %v, want 750ms", i, got)
		}
	}
	if d.maxLive > 1 {
		t.Errorf("observed %d live transports at once", d.maxLive)
	}
	if surface.String() != "ab" {
		t.Errorf("surface = %q, want %q", surface.String(), "ab")
	}
	if m.State() != Disconnected {
		t.Errorf("final state = %v", m.State())
	}
}

func TestRunWaitsTheReconnectDelay(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var stamps []time.Time
	d := &scriptDialer{
		script:  []any{newFakeTransport(errDropped), newFakeTransport(errDropped)},
		exhaust: cancel,
	}
	delay := 40 * time.Millisecond
	m := NewConnectionManager(d, io.Discard,
		WithReconnectDelay(delay),
		WithEventHook(func(ev Event) {
			if ev.State == Connecting {
				stamps = append(stamps, time.Now())
			}
		}),
	)
	m.Run(ctx)

	if len(stamps) != 3 {
		t.Fatalf("expected 3 attempts, got %d", len(stamps))
	}
	for i := 1; i < len(stamps); i++ {
		if gap := stamps[i].Sub(stamps[i-1]); gap < delay {
			t.Errorf("attempt %d started %v after the previous one, want >= %v", i+1, gap, delay)
		}
	}
}

func TestErrorClosesTheTrackedTransport(t *testing.T) {
	tr := newFakeTransport(errDropped, "boot")
	d := &scriptDialer{script: []any{tr}}
	m := NewConnectionManager(d, io.Discard)

	err := m.Connect(context.Background())
	if !errors.Is(err, errDropped) {
		t.Fatalf("Connect returned %v", err)
	}
	if !tr.isClosed() {
		t.Error("transport must be closed after an error")
	}
	if m.State() != Disconnected {
		t.Errorf("state = %v, want disconnected", m.State())
	}
}

func TestConnectRefusesDuplicateTransport(t *testing.T) {
	held := newHeldTransport("login: ")
	d := &scriptDialer{script: []any{held}}
	attached := make(chan struct{})
	m := NewConnectionManager(d, io.Discard, WithEventHook(func(ev Event) {
		if ev.State == Attached {
			close(attached)
		}
	}))

	done := make(chan error, 1)
	go func() { done <- m.Connect(context.Background()) }()
	<-attached

	err := m.Connect(context.Background())
	if !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Connect = %v, want ErrAlreadyRunning", err)
	}
	if d.dials != 1 {
		t.Errorf("expected 1 dial, got %d", d.dials)
	}

	held.Close()
	<-done
}

func TestRunRejectsSecondDriver(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	held := newHeldTransport()
	attached := make(chan struct{})
	m := NewConnectionManager(&scriptDialer{script: []any{held}}, io.Discard,
		WithEventHook(func(ev Event) {
			if ev.State == Attached {
				close(attached)
			}
		}))

	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()
	<-attached

	if err := m.Run(ctx); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Run = %v, want ErrAlreadyRunning", err)
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Run = %v after cancel", err)
	}
	if !held.isClosed() {
		t.Error("cancelling Run must close the attached transport")
	}
}

func TestSend(t *testing.T) {
	m := NewConnectionManager(&scriptDialer{}, io.Discard)
	if err := m.Send([]byte("ls\r")); !errors.Is(err, ErrNotAttached) {
		t.Fatalf("Send while disconnected = %v", err)
	}

	held := newHeldTransport()
	attached := make(chan struct{})
	m = NewConnectionManager(&scriptDialer{script: []any{held}}, io.Discard,
		WithEventHook(func(ev Event) {
			if ev.State == Attached {
				close(attached)
			}
		}))
	done := make(chan error, 1)
	go func() { done <- m.Connect(context.Background()) }()
	<-attached

	if err := m.Send([]byte("ls\r")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	held.mu.Lock()
	got := held.written
	held.mu.Unlock()
	if len(got) != 1 || string(got[0]) != "ls\r" {
		t.Errorf("written = %q", got)
	}

	held.Close()
	<-done
	if err := m.Send([]byte("x")); !errors.Is(err, ErrNotAttached) {
		t.Errorf("Send after close = %v", err)
	}
}

func TestPumpDropsSupersededGeneration(t *testing.T) {
	var surface bytes.Buffer
	m := NewConnectionManager(&scriptDialer{}, &surface)

	stale := newFakeTransport(nil, "stale output")
	current := newHeldTransport()
	m.gen = 2
	m.transport = current
	m.state = Attached

	if err := m.pump(1, stale); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("pump on stale generation = %v", err)
	}
	if surface.Len() != 0 {
		t.Errorf("stale transport wrote %q to the surface", surface.String())
	}
}

func TestEventsFollowStateMachine(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d := &scriptDialer{
		script:  []any{newFakeTransport(errDropped, "x"), errors.New("refused")},
		exhaust: cancel,
	}
	var states []State
	var retries []time.Duration
	m := NewConnectionManager(d, io.Discard,
		WithReconnectDelay(0),
		WithEventHook(func(ev Event) {
			states = append(states, ev.State)
			if ev.State == Disconnected && ev.Err != nil && !errors.Is(ev.Err, context.Canceled) {
				retries = append(retries, ev.RetryIn)
			}
		}))
	m.after = (&recordingClock{}).after
	m.Run(ctx)

	want := []State{
		Connecting, Attached, Disconnected,
		Connecting, Disconnected,
		Connecting, Disconnected,
	}
	if len(states) != len(want) {
		t.Fatalf("states = %v, want %v", states, want)
	}
	for i := range want {
		if states[i] != want[i] {
			t.Fatalf("states = %v, want %v", states, want)
		}
	}
	if len(retries) != 2 {
		t.Errorf("expected 2 disconnect events with a retry, got %d", len(retries))
	}
}

// stalledWriter blocks every Write until release is closed.
type stalledWriter struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (w *stalledWriter) Write(p []byte) (int, error) {
	w.once.Do(func() { close(w.entered) })
	<-w.release
	return len(p), nil
}

func TestStalledSurfaceDoesNotBlockStateOrSend(t *testing.T) {
	surface := &stalledWriter{entered: make(chan struct{}), release: make(chan struct{})}
	held := newHeldTransport("output")
	m := NewConnectionManager(&scriptDialer{script: []any{held}}, surface)

	done := make(chan error, 1)
	go func() { done <- m.Connect(context.Background()) }()
	<-surface.entered

	result := make(chan error, 1)
	go func() {
		if s := m.State(); s != Attached {
			result <- errors.New("state is " + s.String())
			return
		}
		result <- m.Send([]byte("ls\r"))
	}()
	select {
	case err := <-result:
		if err != nil {
			t.Errorf("Send during a stalled surface write: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("State/Send blocked behind a surface write")
	}

	close(surface.release)
	held.Close()
	<-done
}

func TestAttachRefusalLeavesBridgeDisconnected(t *testing.T) {
	m := NewConnectionManager(&scriptDialer{}, io.Discard)
	gen, _, ok := m.beginConnect()
	if !ok {
		t.Fatal("beginConnect refused on a fresh bridge")
	}
	m.mu.Lock()
	m.gen++
	m.mu.Unlock()

	tr := newHeldTransport()
	if m.attach(gen, tr) {
		t.Fatal("attach accepted a superseded generation")
	}
	m.detach(gen, tr)
	if !tr.isClosed() {
		t.Error("refused transport left open")
	}

	m = NewConnectionManager(&scriptDialer{}, io.Discard)
	gen, _, _ = m.beginConnect()
	m.mu.Lock()
	m.state = Disconnected
	m.mu.Unlock()
	tr = newHeldTransport()
	if m.attach(gen, tr) {
		t.Fatal("attach accepted outside Connecting")
	}
	m.detach(gen, tr)
	if s := m.State(); s != Disconnected {
		t.Errorf("state = %v after refused attach", s)
	}
	if !tr.isClosed() {
		t.Error("refused transport left open")
	}
}
