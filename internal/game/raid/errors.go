package raid

import "errors"

// Rule violations: the request was well-formed but the session's rules reject
// it. No mutation is performed.
var (
	// ErrAlreadyParticipating is returned when a joining actor is already in
	// the session.
	ErrAlreadyParticipating = errors.New("actor already participating")
	// ErrSessionFull is returned when a non-privileged actor joins a session
	// at capacity.
	ErrSessionFull = errors.New("session is full")
	// ErrLocationMismatch is returned when the joining actor's location does
	// not match the session's location key.
	ErrLocationMismatch = errors.New("actor location does not match session")
	// ErrSessionNotActive is returned for any mutation against a completed or
	// expired session.
	ErrSessionNotActive = errors.New("session is not active")
	// ErrNotYourTurn is returned when an actor other than the current holder
	// attempts a turn.
	ErrNotYourTurn = errors.New("not your turn")
	// ErrNotParticipating is returned when the acting actor is not in the
	// session at all.
	ErrNotParticipating = errors.New("actor not participating")
	// ErrActorIncapacitated is returned when a KO'd holder attempts a plain
	// attack. Recovery and leaving remain legal.
	ErrActorIncapacitated = errors.New("actor is incapacitated")
	// ErrCannotLeaveExpedition is returned when a participant tries to leave
	// an expedition session; expedition parties retreat as a unit.
	ErrCannotLeaveExpedition = errors.New("cannot leave an expedition raid")
)

// Concurrency outcomes.
var (
	// ErrTurnAlreadyAdvanced is returned when a turn claim loses the write
	// race and the pointer has moved on; the submitted roll was not applied.
	ErrTurnAlreadyAdvanced = errors.New("turn already advanced")
	// ErrSessionChanged is returned when retries are exhausted because the
	// session kept changing under the writer.
	ErrSessionChanged = errors.New("session changed concurrently")
)

// Store-level sentinels shared by every Store implementation.
var (
	// ErrNotFound is returned when no session exists for the given ID.
	ErrNotFound = errors.New("session not found")
	// ErrSessionExists is returned by Create when the ID is already taken.
	ErrSessionExists = errors.New("session already exists")
	// ErrVersionConflict is returned by Update when the stored version does
	// not match the caller's read. The caller must reload and re-validate;
	// silently overwriting is never permitted.
	ErrVersionConflict = errors.New("session version conflict")
)

// IsRuleViolation reports whether err is a rule rejection that left the
// session untouched, as opposed to a concurrency or storage failure.
func IsRuleViolation(err error) bool {
	for _, sentinel := range []error{
		ErrAlreadyParticipating,
		ErrSessionFull,
		ErrLocationMismatch,
		ErrSessionNotActive,
		ErrNotYourTurn,
		ErrNotParticipating,
		ErrActorIncapacitated,
		ErrCannotLeaveExpedition,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}
