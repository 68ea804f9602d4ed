package mockheaven

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/heaven-console/tui/internal/screen"
)

const defaultLogCapacity = 64 * 1024

type portEntry struct {
	port Port
	log  *screen.Buffer
}

// Store holds the mock ports.
type Store struct {
	mu     sync.RWMutex
	ports  map[string]*portEntry
	hub    *Hub
	logCap int
}

func NewStore(hub *Hub, logCapacity int) *Store {
	if logCapacity <= 0 {
		logCapacity = defaultLogCapacity
	}
	return &Store{
		ports:  make(map[string]*portEntry),
		hub:    hub,
		logCap: logCapacity,
	}
}

// Add creates an idle port. Adding an existing label is a no-op.
func (s *Store) Add(label string, info ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ports[label]; ok {
		return
	}
	s.ports[label] = &portEntry{
		port: Port{Label: label, JobID: uuid.NewString(), Status: Idle, Info: info},
		log:  screen.NewBuffer(s.logCap),
	}
}

func (s *Store) Get(label string) (Port, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.ports[label]
	if !ok {
		return Port{}, false
	}
	return e.snapshot(), true
}

// All returns every port sorted by label.
func (s *Store) All() []Port {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Port, 0, len(s.ports))
	for _, e := range s.ports {
		out = append(out, e.snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	return out
}

// Labels returns the sorted port labels.
func (s *Store) Labels() []string {
	ports := s.All()
	out := make([]string, len(ports))
	for i, p := range ports {
		out[i] = p.Label
	}
	return out
}

// AppendSerial records serial output for label and streams it to watchers.
func (s *Store) AppendSerial(label string, data []byte) bool {
	s.mu.Lock()
	e, ok := s.ports[label]
	if ok {
		e.log.Write(data)
		e.port.LastUpdated = time.Now()
		// Publish under the lock so a concurrent Attach sees either the
		// log with this chunk or the live frame, never neither.
		s.hub.Publish(label, data)
	}
	s.mu.Unlock()
	return ok
}

// SetStage moves label to stage with the given status.
func (s *Store) SetStage(label, stage string, status Status) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.ports[label]
	if !ok {
		return false
	}
	now := time.Now()
	if e.port.JobStarted.IsZero() {
		e.port.JobStarted = now
	}
	if stage != e.port.Stage {
		e.port.History = append(e.port.History, StageEntry{At: now, Stage: stage})
	}
	e.port.Stage = stage
	e.port.Status = status
	e.port.LastUpdated = now
	return true
}

// Abort ends the running job on label and readies the port for a new one.
func (s *Store) Abort(label string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.ports[label]
	if !ok {
		return false
	}
	e.port = Port{
		Label:       label,
		JobID:       uuid.NewString(),
		Status:      Idle,
		Info:        e.port.Info,
		LastUpdated: time.Now(),
	}
	e.log.Clear()
	return true
}

// Attach subscribes conn to label, sending the buffered log first.
func (s *Store) Attach(label string, conn *websocket.Conn) (*subscriber, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.ports[label]
	if !ok {
		return nil, false
	}
	return s.hub.add(label, conn, e.log.Bytes()), true
}

func (e *portEntry) snapshot() Port {
	p := e.port
	p.History = append([]StageEntry(nil), e.port.History...)
	p.Info = append([]string(nil), e.port.Info...)
	p.Log = e.log.Bytes()
	return p
}
