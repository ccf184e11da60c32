package bot

import "sync"

// ActiveRegistry tracks which actors have an in-flight request. It is the
// pipeline's only backpressure mechanism: a second concurrent request from
// the same actor is rejected outright, never queued.
type ActiveRegistry struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

// NewActiveRegistry creates an empty registry.
func NewActiveRegistry() *ActiveRegistry {
	return &ActiveRegistry{ids: make(map[string]struct{})}
}

// Acquire marks the actor busy. It returns false if the actor already has
// an in-flight request, in which case the caller must not proceed.
func (r *ActiveRegistry) Acquire(actorID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, busy := r.ids[actorID]; busy {
		return false
	}
	r.ids[actorID] = struct{}{}
	return true
}

// Release clears the actor's busy mark. Safe to call when not held.
func (r *ActiveRegistry) Release(actorID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.ids, actorID)
}

// Busy reports whether the actor has an in-flight request.
func (r *ActiveRegistry) Busy(actorID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, busy := r.ids[actorID]
	return busy
}

// Len returns the number of busy actors.
func (r *ActiveRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ids)
}
