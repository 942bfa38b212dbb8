package permission

import (
	"context"
	"sync"
	"time"
)

// Store is an append-only rule store. Lookup returns the most recently
// appended rule for a signature.
type Store interface {
	Lookup(ctx context.Context, signature string) (Rule, bool, error)
	Append(ctx context.Context, rule Rule) error
}

// SessionStore keeps rules in memory for the lifetime of one session.
type SessionStore struct {
	mu    sync.RWMutex
	rules map[string]Rule
}

// NewSessionStore creates an empty session store.
func NewSessionStore() *SessionStore {
	return &SessionStore{rules: make(map[string]Rule)}
}

// Lookup returns the current rule for the signature, if any.
func (s *SessionStore) Lookup(_ context.Context, signature string) (Rule, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rule, ok := s.rules[signature]
	return rule, ok, nil
}

// Append records a rule. A later rule for the same signature replaces the
// earlier one.
func (s *SessionStore) Append(_ context.Context, rule Rule) error {
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules[rule.Signature] = rule
	return nil
}

// Len returns the number of distinct signatures with a rule.
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rules)
}
