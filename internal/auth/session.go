package auth

import "sync"

// Session holds at most one authenticated identity for the lifetime of a
// process run. Ledger and recurrence operations require the identity from
// Current; without a login they fail with ErrUnauthenticated.
type Session struct {
	mu      sync.Mutex
	current *Identity
}

func NewSession() *Session {
	return &Session{}
}

// Login sets the active identity, replacing any previous one.
func (s *Session) Login(id Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = &id
}

// Logout clears the active identity. Safe to call when nobody is logged in.
func (s *Session) Logout() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = nil
}

// Current returns the active identity or ErrUnauthenticated.
func (s *Session) Current() (Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return Identity{}, ErrUnauthenticated
	}
	return *s.current, nil
}
