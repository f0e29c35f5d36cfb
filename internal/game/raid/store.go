package raid

import "context"

// Store persists raid sessions with optimistic concurrency. Implementations
// must be safe for concurrent use from independent request contexts and the
// skip scheduler.
type Store interface {
	// Create inserts a new session at its initial version.
	// Returns ErrSessionExists if the ID is already taken.
	Create(ctx context.Context, s *Session) error

	// Get returns a copy of the session; mutating the result does not affect
	// the stored record. Returns ErrNotFound when absent.
	Get(ctx context.Context, id string) (*Session, error)

	// Update conditionally writes s: the write succeeds only if the stored
	// version equals s.Version, and on success s.Version is advanced by
	// exactly 1 (in the store and on s). Returns ErrVersionConflict when the
	// stored version moved, ErrNotFound when the session is gone.
	Update(ctx context.Context, s *Session) error

	// ListActive returns copies of every session with StatusActive, for the
	// expiration sweeper.
	ListActive(ctx context.Context) ([]*Session, error)
}
