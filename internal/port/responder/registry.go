package responder

import (
	"sort"
	"sync"
)

// Registry holds the responders available for routing, keyed by ID.
type Registry struct {
	mu         sync.RWMutex
	responders map[string]Responder
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{responders: make(map[string]Responder)}
}

// Register adds a responder. Later registrations with the same ID
// replace earlier ones.
func (r *Registry) Register(resp Responder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.responders[resp.ID()] = resp
}

// Get returns the responder with the given ID, or false if none is
// registered under it.
func (r *Registry) Get(id string) (Responder, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	resp, ok := r.responders[id]
	return resp, ok
}

// IDs returns the registered responder IDs in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.responders))
	for id := range r.responders {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
