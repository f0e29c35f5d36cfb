package combat

// lowTierCeiling is the highest monster tier that uses the forgiving band table.
const lowTierCeiling = 4

// band maps an inclusive roll range to a damage exchange.
type band struct {
	min, max int
	monster  int
	actor    int
	outcome  Outcome
}

// lowTierBands cover monster tiers 1-4. Actor damage is non-increasing in the
// roll, and every roll above 61 deals monster damage with none taken back.
var lowTierBands = []band{
	{1, 9, 0, 3, OutcomeMauled},
	{10, 24, 0, 2, OutcomeWounded},
	{25, 41, 0, 1, OutcomeGrazed},
	{42, 61, 1, 1, OutcomeExchange},
	{62, 80, 1, 0, OutcomeHit},
	{81, 95, 2, 0, OutcomeStrongHit},
	{96, 100, 3, 0, OutcomeCritical},
}

// highTierBands cover monster tiers 5-10. Only the top bands damage the
// monster; everywhere else the actor takes the hit.
var highTierBands = []band{
	{1, 39, 0, 3, OutcomeMauled},
	{40, 69, 0, 2, OutcomeWounded},
	{70, 84, 0, 1, OutcomeGrazed},
	{85, 94, 1, 0, OutcomeHit},
	{95, 100, 2, 0, OutcomeCritical},
}

// Resolve maps an actor's stats, the monster's tier, and a percentile roll to
// the damage exchanged in both directions. It is deterministic: identical
// inputs always produce identical results, and it never touches shared state.
//
// Precondition: monsterTier must be in [1, 10]; roll must be in [1, 100].
// Rolls outside the range are clamped rather than rejected so a misbehaving
// roll source degrades to the nearest band instead of panicking mid-turn.
// Postcondition: Returns a Result with DamageToMonster >= 0 and DamageToActor >= 0.
func Resolve(stats ActorStats, monsterTier, roll int) Result {
	if roll < 1 {
		roll = 1
	}
	if roll > 100 {
		roll = 100
	}

	bands := highTierBands
	if monsterTier <= lowTierCeiling {
		bands = lowTierBands
	}

	for _, b := range bands {
		if roll >= b.min && roll <= b.max {
			return Result{
				DamageToMonster: b.monster,
				DamageToActor:   reduceByDefense(b.actor, stats.Defense),
				Outcome:         b.outcome,
			}
		}
	}
	// Unreachable: the band tables cover 1-100 with no gaps.
	return Result{Outcome: OutcomeGrazed}
}

// reduceByDefense applies the flat defense reduction: 1 less damage per 10
// points of defense, never below zero.
func reduceByDefense(damage, defense int) int {
	reduced := damage - defense/10
	if reduced < 0 {
		return 0
	}
	return reduced
}
