// Package session holds the server-side session table: an opaque token set
// in the "id" cookie maps to the logged-in user's email and role. Sessions
// live for the life of the process; there is no expiry or persistence.
package session

import "sync"

// User is the identity a session token resolves to.
type User struct {
	Email string
	Role  string
}

type Store struct {
	mu       sync.RWMutex
	sessions map[string]User
}

func NewStore() *Store {
	return &Store{sessions: make(map[string]User)}
}

func (s *Store) Set(token string, u User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[token] = u
}

func (s *Store) Get(token string) (User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.sessions[token]
	return u, ok
}

func (s *Store) Remove(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, token)
}

// Clear drops every session. Called at shutdown and in test teardown.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = make(map[string]User)
}
