// Package raid implements the turn-coordination engine for multi-party raid
// encounters: the session state machine, the claim-and-advance turn protocol,
// forced-skip scheduling, and loot hand-off on victory.
package raid

import (
	"time"

	"github.com/cory-johannsen/raidcore/internal/game/loot"
)

// Status is the lifecycle state of a raid session.
type Status string

const (
	// StatusActive means the encounter is in progress and accepts mutations.
	StatusActive Status = "active"
	// StatusCompleted means the monster was defeated. Terminal.
	StatusCompleted Status = "completed"
	// StatusExpired means the deadline elapsed or all participants left. Terminal.
	StatusExpired Status = "expired"
)

// Kind selects the timer and leave semantics for a session.
type Kind string

const (
	// KindStandalone sessions have a skip timer and an overall deadline.
	KindStandalone Kind = "standalone"
	// KindExpedition sessions are embedded in a party activity: no skip
	// timer, and participants cannot leave individually.
	KindExpedition Kind = "expedition"
	// KindGrottoTrial sessions keep the skip timer but have no overall
	// deadline; the enclosing trial bounds their lifetime.
	KindGrottoTrial Kind = "grotto_trial"
)

// Monster is the single hostile entity a session is fought against.
type Monster struct {
	Name          string `json:"name"`
	Tier          int    `json:"tier"`
	CurrentHearts int    `json:"current_hearts"`
	MaxHearts     int    `json:"max_hearts"`
}

// Participant is one combatant in a session's turn order.
type Participant struct {
	ActorID            string `json:"actor_id"`
	DisplayName        string `json:"display_name"`
	OwnerID            string `json:"owner_id"`
	DamageDealt        int    `json:"damage_dealt"`
	RoundsParticipated int    `json:"rounds_participated"`
	Privileged         bool   `json:"privileged,omitempty"`
}

// Analytics tracks aggregate encounter statistics.
type Analytics struct {
	TotalDamage int       `json:"total_damage"`
	StartedAt   time.Time `json:"started_at"`
	EndedAt     time.Time `json:"ended_at,omitempty"`
}

// Session is the durable record of one raid encounter. All mutation goes
// through the Coordinator's optimistic-write protocol; Version increases by
// exactly 1 per accepted write.
//
// Invariant: CurrentTurn indexes a non-empty Participants slice whenever
// Status is StatusActive.
// Invariant: each ActorID appears at most once in Participants.
// Invariant: Monster.CurrentHearts never increases while StatusActive.
type Session struct {
	ID          string `json:"id"`
	LocationKey string `json:"location_key"`

	Monster      Monster       `json:"monster"`
	Participants []Participant `json:"participants"`
	CurrentTurn  int           `json:"current_turn"`

	Status Status `json:"status"`
	Kind   Kind   `json:"kind"`

	// ExpiresAt is the whole-encounter deadline. Zero for kinds without one.
	ExpiresAt time.Time `json:"expires_at,omitempty"`

	// Version is the optimistic-concurrency counter. The store compares it
	// on every write and increments it on success.
	Version int64 `json:"version"`

	Analytics Analytics `json:"analytics"`

	// LootEligibleRemoved holds participants who left after earning loot
	// eligibility; they still receive awards on completion.
	LootEligibleRemoved []Participant `json:"loot_eligible_removed,omitempty"`

	// Awards is written exactly once, in the same write that sets
	// StatusCompleted.
	Awards []loot.Award `json:"awards,omitempty"`
}

// Clone returns a deep copy of the session. Stores hand out clones so callers
// never alias the stored record.
func (s *Session) Clone() *Session {
	cp := *s
	cp.Participants = append([]Participant(nil), s.Participants...)
	cp.LootEligibleRemoved = append([]Participant(nil), s.LootEligibleRemoved...)
	cp.Awards = append([]loot.Award(nil), s.Awards...)
	return &cp
}

// Terminal reports whether the session has reached a final status.
func (s *Session) Terminal() bool {
	return s.Status == StatusCompleted || s.Status == StatusExpired
}

// DeadlinePassed reports whether the session's deadline (if any) is behind now.
func (s *Session) DeadlinePassed(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}

// Participant returns a pointer to the participant with the given actor ID,
// or nil if they are not in the session.
func (s *Session) Participant(actorID string) *Participant {
	for i := range s.Participants {
		if s.Participants[i].ActorID == actorID {
			return &s.Participants[i]
		}
	}
	return nil
}

// CurrentHolder returns the participant whose turn it is, or nil when the
// session has no valid holder (terminal or empty).
func (s *Session) CurrentHolder() *Participant {
	if s.Terminal() || len(s.Participants) == 0 {
		return nil
	}
	if s.CurrentTurn < 0 || s.CurrentTurn >= len(s.Participants) {
		return nil
	}
	return &s.Participants[s.CurrentTurn]
}

// advanceTurn moves the pointer to the next participant modulo length.
// KO'd participants stay in rotation; only the skip timer ever passes over a
// holder without their own action.
func (s *Session) advanceTurn() {
	if len(s.Participants) == 0 {
		return
	}
	s.CurrentTurn = (s.CurrentTurn + 1) % len(s.Participants)
}

// addParticipant appends p to the turn order. Arrival order is turn order.
func (s *Session) addParticipant(p Participant) {
	s.Participants = append(s.Participants, p)
}

// removeParticipant removes the participant with the given actor ID and
// normalizes the turn pointer. Returns the removed participant and true, or
// a zero Participant and false when absent.
//
// Postcondition: when participants remain, CurrentTurn is a valid index and
// points at the next actor in order if the departing actor held the turn.
func (s *Session) removeParticipant(actorID string) (Participant, bool) {
	idx := -1
	for i := range s.Participants {
		if s.Participants[i].ActorID == actorID {
			idx = i
			break
		}
	}
	if idx == -1 {
		return Participant{}, false
	}

	removed := s.Participants[idx]
	s.Participants = append(s.Participants[:idx:idx], s.Participants[idx+1:]...)

	if len(s.Participants) == 0 {
		s.CurrentTurn = 0
		return removed, true
	}
	if idx < s.CurrentTurn {
		s.CurrentTurn--
	}
	// Removing the holder leaves the pointer on the next actor; wrap if the
	// holder was last in order.
	s.CurrentTurn %= len(s.Participants)
	return removed, true
}

// applyMonsterDamage reduces the monster's hearts, flooring at zero, and
// reports whether the monster was defeated by this hit.
func (s *Session) applyMonsterDamage(amount int) bool {
	s.Monster.CurrentHearts -= amount
	if s.Monster.CurrentHearts < 0 {
		s.Monster.CurrentHearts = 0
	}
	return s.Monster.CurrentHearts <= 0
}

// complete marks the session defeated at the given instant.
func (s *Session) complete(now time.Time) {
	s.Status = StatusCompleted
	s.Analytics.EndedAt = now
}

// expire marks the session expired at the given instant.
func (s *Session) expire(now time.Time) {
	s.Status = StatusExpired
	s.Analytics.EndedAt = now
}

// contributions converts the ledger (present participants plus eligible
// departures) into loot contributions.
func (s *Session) contributions() []loot.Contribution {
	out := make([]loot.Contribution, 0, len(s.Participants)+len(s.LootEligibleRemoved))
	for _, p := range s.Participants {
		out = append(out, loot.Contribution{
			ActorID:     p.ActorID,
			OwnerID:     p.OwnerID,
			DisplayName: p.DisplayName,
			Damage:      p.DamageDealt,
			Rounds:      p.RoundsParticipated,
		})
	}
	for _, p := range s.LootEligibleRemoved {
		out = append(out, loot.Contribution{
			ActorID:     p.ActorID,
			OwnerID:     p.OwnerID,
			DisplayName: p.DisplayName,
			Damage:      p.DamageDealt,
			Rounds:      p.RoundsParticipated,
		})
	}
	return out
}
