package chat

import (
	"errors"
	"sort"
	"sync"
)

// ErrConflict is returned by Registry.Register when the username is already bound.
var ErrConflict = errors.New("registry: username already bound")

// Registry maps online usernames to their live Session.
//
// A username is present iff its account is online; at most one Session is
// bound per username.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Register binds username to s. It fails with ErrConflict if already bound.
func (r *Registry) Register(username string, s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[username]; ok {
		return ErrConflict
	}
	r.sessions[username] = s
	return nil
}

// Replace binds username to s and returns the session it displaced, if any.
func (r *Registry) Replace(username string, s *Session) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev := r.sessions[username]
	r.sessions[username] = s
	if prev == s {
		return nil
	}
	return prev
}

// Unregister removes username. No-op if absent.
func (r *Registry) Unregister(username string) {
	r.mu.Lock()
	delete(r.sessions, username)
	r.mu.Unlock()
}

// UnregisterIf removes username only while it is still bound to s.
// A session replaced by a newer login therefore never unbinds its successor.
func (r *Registry) UnregisterIf(username string, s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.sessions[username]; !ok || cur != s {
		return false
	}
	delete(r.sessions, username)
	return true
}

// Lookup returns the session bound to username.
func (r *Registry) Lookup(username string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[username]
	return s, ok
}

// Snapshot returns the bound sessions at a point in time.
func (r *Registry) Snapshot() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// SnapshotUsernames returns the online usernames, sorted.
func (r *Registry) SnapshotUsernames() []string {
	r.mu.RLock()
	out := make([]string, 0, len(r.sessions))
	for name := range r.sessions {
		out = append(out, name)
	}
	r.mu.RUnlock()

	sort.Strings(out)
	return out
}

// Len returns the number of online usernames.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
