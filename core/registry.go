package orchestration

import (
	"sync"

	"github.com/google/uuid"
	"github.com/team-rrr/voice-multi-agent-accelerator/internal/metrics"
)

// Registry owns the live sessions, keyed by session id. It is the only
// holder of session references; there is no ambient global session state.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry creates an empty session registry.
func NewRegistry() *Registry {
	return &Registry{sessions: map[string]*Session{}}
}

// Create mints a session with a fresh id and registers it.
func (r *Registry) Create(opts ...SessionOption) *Session {
	session := NewSession(uuid.NewString(), opts...)

	r.mu.Lock()
	r.sessions[session.ID] = session
	r.mu.Unlock()

	metrics.SessionsActive.Inc()
	logger.Info("session created", "session_id", session.ID)
	return session
}

// Get returns the session with the given id, if registered.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	session, ok := r.sessions[id]
	return session, ok
}

// Remove closes the session and drops it from the registry.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	session, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()

	if !ok {
		return
	}
	session.Close()
	session.AwaitCompletion()
	metrics.SessionsActive.Dec()
	logger.Info("session removed", "session_id", id)
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// CloseAll tears down every registered session.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, session := range r.sessions {
		sessions = append(sessions, session)
	}
	r.sessions = map[string]*Session{}
	r.mu.Unlock()

	for _, session := range sessions {
		session.Close()
		session.AwaitCompletion()
		metrics.SessionsActive.Dec()
	}
}
