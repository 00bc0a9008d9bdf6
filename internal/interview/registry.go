package interview

import (
	"sync"

	"github.com/pavelanni/interviewer/internal/metrics"
)

// Registry maps connection ids to sessions. Entries must be removed when the
// owning connection closes.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Create stores s under connID and returns the session it replaced, if any.
func (r *Registry) Create(connID string, s *Session) (replaced *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	replaced = r.sessions[connID]
	r.sessions[connID] = s
	metrics.ActiveSessions.Set(float64(len(r.sessions)))
	return replaced
}

// Get returns the session for connID.
func (r *Registry) Get(connID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[connID]
	return s, ok
}

// Remove deletes and returns the session for connID. It is idempotent.
func (r *Registry) Remove(connID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[connID]
	if !ok {
		return nil, false
	}
	delete(r.sessions, connID)
	metrics.ActiveSessions.Set(float64(len(r.sessions)))
	return s, true
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
