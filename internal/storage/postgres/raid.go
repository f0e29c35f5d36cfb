package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cory-johannsen/raidcore/internal/game/raid"
)

// RaidRepository persists raid sessions with an optimistic version column.
// The full session document lives in a jsonb column; id, status, kind,
// version, and the deadline are promoted to columns for indexing and the
// conditional write.
type RaidRepository struct {
	db *pgxpool.Pool
}

// NewRaidRepository creates a RaidRepository backed by the given pool.
//
// Precondition: db must be a valid, open connection pool.
func NewRaidRepository(db *pgxpool.Pool) *RaidRepository {
	return &RaidRepository{db: db}
}

// Create inserts a new session at its current version.
//
// Precondition: s.ID must be non-empty and unused; s.Version must be >= 1.
// Postcondition: Returns raid.ErrSessionExists on a duplicate ID.
func (r *RaidRepository) Create(ctx context.Context, s *raid.Session) error {
	doc, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encoding session %s: %w", s.ID, err)
	}
	_, err = r.db.Exec(ctx, `
		INSERT INTO raid_sessions (id, location_key, status, kind, version, expires_at, doc)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		s.ID, s.LocationKey, string(s.Status), string(s.Kind), s.Version, nullableTime(s.ExpiresAt), doc,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return raid.ErrSessionExists
		}
		return fmt.Errorf("inserting session %s: %w", s.ID, err)
	}
	return nil
}

// Get loads a session by ID.
//
// Postcondition: Returns a session the caller owns, or raid.ErrNotFound.
func (r *RaidRepository) Get(ctx context.Context, id string) (*raid.Session, error) {
	var doc []byte
	err := r.db.QueryRow(ctx,
		`SELECT doc FROM raid_sessions WHERE id = $1`, id,
	).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, raid.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading session %s: %w", id, err)
	}
	return decodeSession(id, doc)
}

// Update writes the session conditionally: the row's stored version must
// still equal the version the caller loaded. On success both the row and s
// advance by exactly one version.
//
// Postcondition: Returns raid.ErrVersionConflict when another writer got
// there first, raid.ErrNotFound when the row is gone; s.Version is
// incremented only on success.
func (r *RaidRepository) Update(ctx context.Context, s *raid.Session) error {
	expected := s.Version
	s.Version = expected + 1
	doc, err := json.Marshal(s)
	if err != nil {
		s.Version = expected
		return fmt.Errorf("encoding session %s: %w", s.ID, err)
	}

	tag, err := r.db.Exec(ctx, `
		UPDATE raid_sessions
		SET location_key = $2, status = $3, kind = $4, version = version + 1,
		    expires_at = $5, doc = $6, updated_at = now()
		WHERE id = $1 AND version = $7`,
		s.ID, s.LocationKey, string(s.Status), string(s.Kind), nullableTime(s.ExpiresAt), doc, expected,
	)
	if err != nil {
		s.Version = expected
		return fmt.Errorf("updating session %s: %w", s.ID, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	s.Version = expected
	// No row matched: either the session is gone or the version moved.
	var exists bool
	if err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM raid_sessions WHERE id = $1)`, s.ID,
	).Scan(&exists); err != nil {
		return fmt.Errorf("distinguishing conflict for session %s: %w", s.ID, err)
	}
	if !exists {
		return raid.ErrNotFound
	}
	return raid.ErrVersionConflict
}

// ListActive returns all sessions currently marked active, oldest first.
func (r *RaidRepository) ListActive(ctx context.Context) ([]*raid.Session, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, doc FROM raid_sessions
		WHERE status = $1 ORDER BY created_at ASC`,
		string(raid.StatusActive),
	)
	if err != nil {
		return nil, fmt.Errorf("listing active sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]*raid.Session, 0)
	for rows.Next() {
		var (
			id  string
			doc []byte
		)
		if err := rows.Scan(&id, &doc); err != nil {
			return nil, fmt.Errorf("scanning session row: %w", err)
		}
		s, err := decodeSession(id, doc)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// Delete removes a session row. Used by retention jobs, not by gameplay.
func (r *RaidRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM raid_sessions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting session %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return raid.ErrNotFound
	}
	return nil
}

func decodeSession(id string, doc []byte) (*raid.Session, error) {
	var s raid.Session
	if err := json.Unmarshal(doc, &s); err != nil {
		return nil, fmt.Errorf("decoding session %s: %w", id, err)
	}
	return &s, nil
}

// nullableTime maps the zero time to NULL so sessions without a deadline
// store cleanly.
func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	// pgx wraps PostgreSQL errors; check for SQLSTATE 23505 (unique_violation)
	var pgErr interface{ SQLState() string }
	if errors.As(err, &pgErr) {
		return pgErr.SQLState() == "23505"
	}
	return false
}

var _ raid.Store = (*RaidRepository)(nil)
