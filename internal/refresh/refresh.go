// Package refresh keeps named document regions in sync with server-rendered
// fragments by polling them on a fixed interval.
package refresh

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultInterval is the polling period of every task.
const DefaultInterval = time.Second

// Fetcher retrieves a fragment as text.
type Fetcher interface {
	FetchFragment(ctx context.Context, ref string) (string, error)
}

// Document holds the regions tasks write into.
type Document interface {
	Replace(targetID, content string)
}

// Option configures a Refresher.
type Option func(*Refresher)

// WithInterval sets the polling period.
func WithInterval(d time.Duration) Option {
	return func(r *Refresher) {
		if d > 0 {
			r.interval = d
		}
	}
}

// WithLogger sets the logger for fetch failures.
func WithLogger(l zerolog.Logger) Option {
	return func(r *Refresher) { r.logger = l }
}

// WithErrorHook registers fn to receive every failed tick. It may be called
// from several goroutines at once.
func WithErrorHook(fn func(targetID, source string, err error)) Option {
	return func(r *Refresher) { r.onError = fn }
}

type task struct {
	target string
	source string
	cancel context.CancelFunc
	ctx    context.Context
}

// Refresher owns an ordered set of periodic fetch-and-replace tasks.
type Refresher struct {
	fetcher  Fetcher
	doc      Document
	interval time.Duration
	logger   zerolog.Logger
	onError  func(targetID, source string, err error)

	// mu is held for reading around every region write and for writing by
	// StopAll, so no write can land once StopAll has returned.
	mu    sync.RWMutex
	tasks []*task
	loops sync.WaitGroup
}

// New creates a Refresher with no tasks.
func New(f Fetcher, doc Document, opts ...Option) *Refresher {
	r := &Refresher{
		fetcher:  f,
		doc:      doc,
		interval: DefaultInterval,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register starts a task that replaces region targetID with the body of
// source every interval. Registering the same target twice runs two
// independent tasks.
func (r *Refresher) Register(targetID, source string) {
	ctx, cancel := context.WithCancel(context.Background())
	t := &task{target: targetID, source: source, cancel: cancel, ctx: ctx}

	r.mu.Lock()
	r.tasks = append(r.tasks, t)
	r.mu.Unlock()

	r.logger.Debug().Str("target", targetID).Str("source", source).Msg("reloader registered")

	r.loops.Add(1)
	go r.loop(t)
}

// StopAll cancels every task and empties the task list. It is safe to call
// with no tasks registered.
func (r *Refresher) StopAll() {
	r.mu.Lock()
	for _, t := range r.tasks {
		r.logger.Debug().Str("target", t.target).Msg("stopping reloader")
		t.cancel()
	}
	r.tasks = nil
	r.mu.Unlock()

	r.loops.Wait()
}

// Len returns the number of tracked tasks.
func (r *Refresher) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tasks)
}

// loop fires a refresh every interval whether or not the previous one has
// finished; overlapping fetches race and the last to complete wins.
func (r *Refresher) loop(t *task) {
	defer r.loops.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-t.ctx.Done():
			return
		case <-ticker.C:
			go r.refresh(t)
		}
	}
}

func (r *Refresher) refresh(t *task) {
	body, err := r.fetcher.FetchFragment(t.ctx, t.source)
	if err != nil {
		if t.ctx.Err() != nil || errors.Is(err, context.Canceled) {
			return
		}
		r.logger.Warn().Err(err).Str("target", t.target).Str("source", t.source).Msg("fragment refresh failed")
		if r.onError != nil {
			r.onError(t.target, t.source, err)
		}
		return
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if t.ctx.Err() != nil {
		return
	}
	r.doc.Replace(t.target, body)
}
