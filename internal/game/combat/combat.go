// Package combat implements the pure raid combat resolver.
// It has no persistence and no randomness of its own; callers supply the roll.
package combat

// Outcome classifies a single resolved exchange from the actor's point of view.
type Outcome int

const (
	// OutcomeCritical is the top band: maximum damage to the monster, none taken.
	OutcomeCritical Outcome = iota
	// OutcomeStrongHit damages the monster above the baseline, none taken.
	OutcomeStrongHit
	// OutcomeHit damages the monster, none taken.
	OutcomeHit
	// OutcomeExchange trades one heart each way (low-tier monsters only).
	OutcomeExchange
	// OutcomeGrazed deals no monster damage; the actor loses one heart.
	OutcomeGrazed
	// OutcomeWounded deals no monster damage; the actor loses two hearts.
	OutcomeWounded
	// OutcomeMauled is the bottom band: the actor loses three hearts.
	OutcomeMauled
)

// String returns a human-readable outcome label.
func (o Outcome) String() string {
	switch o {
	case OutcomeCritical:
		return "critical"
	case OutcomeStrongHit:
		return "strong hit"
	case OutcomeHit:
		return "hit"
	case OutcomeExchange:
		return "exchange"
	case OutcomeGrazed:
		return "grazed"
	case OutcomeWounded:
		return "wounded"
	case OutcomeMauled:
		return "mauled"
	default:
		return "unknown"
	}
}

// ActorStats is the snapshot of an acting participant's combat-relevant state.
type ActorStats struct {
	Hearts    int
	MaxHearts int
	// Defense reduces incoming damage by 1 per 10 points, floored at 0.
	Defense int
	// Incapacitated is true when the actor has no hearts remaining.
	Incapacitated bool
}

// Result is the outcome of a single resolved turn.
type Result struct {
	// DamageToMonster is the hearts removed from the monster this turn.
	DamageToMonster int
	// DamageToActor is the hearts removed from the actor this turn,
	// after the defense reduction.
	DamageToActor int
	// Outcome is the band the roll landed in.
	Outcome Outcome
}
