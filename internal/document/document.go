// Package document stores the named regions a page is made of. Regions are
// replaced whole, never patched.
package document

import "sync"

type region struct {
	content string
	version uint64
}

// Regions is a thread-safe set of named regions.
type Regions struct {
	mu      sync.RWMutex
	regions map[string]region
	changed chan struct{}
}

// New creates an empty region set.
func New() *Regions {
	return &Regions{
		regions: make(map[string]region),
		changed: make(chan struct{}, 1),
	}
}

// Replace sets the full content of region id, creating it if needed.
func (r *Regions) Replace(id, content string) {
	r.mu.Lock()
	cur := r.regions[id]
	r.regions[id] = region{content: content, version: cur.version + 1}
	r.mu.Unlock()

	select {
	case r.changed <- struct{}{}:
	default:
	}
}

// Get returns the content of region id.
func (r *Regions) Get(id string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.regions[id]
	return reg.content, ok
}

// Version counts the replacements of region id.
func (r *Regions) Version(id string) uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.regions[id].version
}

// Changed is signalled after every Replace. Signals coalesce.
func (r *Regions) Changed() <-chan struct{} {
	return r.changed
}
