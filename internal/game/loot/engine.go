// Package loot computes post-victory reward eligibility and rarity-weighted
// item selection for raid participants.
package loot

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/cory-johannsen/raidcore/internal/game/dice"
)

// Eligibility thresholds: a participant qualifies for loot by dealing any
// damage or by surviving three rounds.
const (
	minDamageForLoot = 1
	minRoundsForLoot = 3
)

// rarityRelaxStep is how far the target tier drops when no item meets it.
const rarityRelaxStep = 2

// Entry is one item in a monster's loot table.
type Entry struct {
	Name   string
	Rarity int
}

// Contribution is a participant's ledger line as seen by the loot engine.
type Contribution struct {
	ActorID     string
	OwnerID     string
	DisplayName string
	Damage      int
	Rounds      int
}

// Award is the reward assigned to one eligible participant. None is true when
// the monster's loot table was empty; that is a recorded outcome, not an error.
type Award struct {
	ActorID     string `json:"actor_id"`
	OwnerID     string `json:"owner_id"`
	DisplayName string `json:"display_name"`
	Item        string `json:"item,omitempty"`
	Rarity      int    `json:"rarity,omitempty"`
	None        bool   `json:"none,omitempty"`
}

// Provider supplies the loot table for a defeated monster.
type Provider interface {
	ItemsFor(ctx context.Context, monsterName string) ([]Entry, error)
}

// Hook adjusts the target rarity tier for a participant before selection.
// Implementations are advisory: errors are logged by the engine and the
// unmodified tier is used.
type Hook interface {
	ModifyRarity(monsterName string, damage, tier int) (int, error)
}

// Eligible reports whether a participant's contribution qualifies for loot.
func Eligible(damage, rounds int) bool {
	return damage >= minDamageForLoot || rounds >= minRoundsForLoot
}

// TargetTier maps cumulative damage to the minimum item rarity a participant
// should receive. Zero means the unrestricted pool.
func TargetTier(damage int) int {
	switch {
	case damage >= 8:
		return 10
	case damage >= 6:
		return 8
	case damage >= 4:
		return 6
	case damage >= 2:
		return 4
	default:
		return 0
	}
}

// Engine selects awards for eligible participants.
type Engine struct {
	provider Provider
	src      dice.Source
	hook     Hook
	logger   *zap.Logger
}

// NewEngine creates a loot Engine. hook may be nil when no loot scripts are
// configured.
//
// Precondition: provider, src, and logger must be non-nil.
func NewEngine(provider Provider, src dice.Source, hook Hook, logger *zap.Logger) *Engine {
	return &Engine{provider: provider, src: src, hook: hook, logger: logger}
}

// Distribute computes awards for every eligible contribution against the
// monster's loot table. Callers must invoke it exactly once per session,
// inside the write that marks the session completed.
//
// Postcondition: Returns one Award per eligible contribution, in contribution
// order. An empty loot table yields Awards with None set.
func (e *Engine) Distribute(ctx context.Context, monsterName string, contribs []Contribution) ([]Award, error) {
	table, err := e.provider.ItemsFor(ctx, monsterName)
	if err != nil {
		return nil, fmt.Errorf("loading loot table for %q: %w", monsterName, err)
	}

	var awards []Award
	for _, c := range contribs {
		if !Eligible(c.Damage, c.Rounds) {
			continue
		}
		tier := TargetTier(c.Damage)
		if e.hook != nil {
			adjusted, hookErr := e.hook.ModifyRarity(monsterName, c.Damage, tier)
			if hookErr != nil {
				e.logger.Warn("loot hook failed, using unmodified tier",
					zap.String("monster", monsterName),
					zap.String("actor_id", c.ActorID),
					zap.Error(hookErr),
				)
			} else {
				tier = adjusted
			}
		}

		award := Award{
			ActorID:     c.ActorID,
			OwnerID:     c.OwnerID,
			DisplayName: c.DisplayName,
		}
		if entry, ok := e.pick(table, tier); ok {
			award.Item = entry.Name
			award.Rarity = entry.Rarity
		} else {
			award.None = true
		}
		awards = append(awards, award)
	}
	return awards, nil
}

// pick selects uniformly from the entries meeting the target tier, relaxing
// the threshold once, then falling back to the full table. Returns false only
// when the table itself is empty.
func (e *Engine) pick(table []Entry, tier int) (Entry, bool) {
	if len(table) == 0 {
		return Entry{}, false
	}

	pool := filterByRarity(table, tier)
	if len(pool) == 0 {
		relaxed := tier - rarityRelaxStep
		if relaxed < 0 {
			relaxed = 0
		}
		pool = filterByRarity(table, relaxed)
	}
	if len(pool) == 0 {
		pool = table
	}
	return pool[e.src.Intn(len(pool))], true
}

// filterByRarity returns the entries with Rarity >= tier. A zero tier matches
// everything.
func filterByRarity(table []Entry, tier int) []Entry {
	if tier <= 0 {
		return table
	}
	var out []Entry
	for _, entry := range table {
		if entry.Rarity >= tier {
			out = append(out, entry)
		}
	}
	return out
}
