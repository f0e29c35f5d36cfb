// Package memory provides a process-local raid session store with the same
// optimistic-concurrency contract as the PostgreSQL store. It backs unit
// tests and the dev configuration; it is not durable.
package memory

import (
	"context"
	"sync"

	"github.com/cory-johannsen/raidcore/internal/game/raid"
)

// Store is an in-memory raid.Store. Safe for concurrent use.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*raid.Session
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{sessions: make(map[string]*raid.Session)}
}

// Create inserts a new session.
//
// Postcondition: Returns raid.ErrSessionExists if the ID is taken; otherwise
// a clone of s is stored.
func (st *Store) Create(_ context.Context, s *raid.Session) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if _, ok := st.sessions[s.ID]; ok {
		return raid.ErrSessionExists
	}
	st.sessions[s.ID] = s.Clone()
	return nil
}

// Get returns a clone of the stored session.
func (st *Store) Get(_ context.Context, id string) (*raid.Session, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.sessions[id]
	if !ok {
		return nil, raid.ErrNotFound
	}
	return s.Clone(), nil
}

// Update conditionally writes s. The stored version must equal s.Version;
// on success both the stored record and s advance to Version+1.
func (st *Store) Update(_ context.Context, s *raid.Session) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	current, ok := st.sessions[s.ID]
	if !ok {
		return raid.ErrNotFound
	}
	if current.Version != s.Version {
		return raid.ErrVersionConflict
	}
	s.Version++
	st.sessions[s.ID] = s.Clone()
	return nil
}

// ListActive returns clones of all sessions with StatusActive.
func (st *Store) ListActive(_ context.Context) ([]*raid.Session, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	var out []*raid.Session
	for _, s := range st.sessions {
		if s.Status == raid.StatusActive {
			out = append(out, s.Clone())
		}
	}
	return out, nil
}
