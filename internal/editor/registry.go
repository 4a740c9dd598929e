package editor

import "sync"

// Registry keeps one edit session per user id.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	factory  func() *Session
}

func NewRegistry(factory func() *Session) *Registry {
	return &Registry{sessions: map[string]*Session{}, factory: factory}
}

// Session returns the user's session, creating a fresh one on first use.
func (r *Registry) Session(userID string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[userID]
	if !ok {
		s = r.factory()
		r.sessions[userID] = s
	}
	return s
}

// Drop forgets the user's session, e.g. on sign-out.
func (r *Registry) Drop(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, userID)
}
