package content

import (
	"fmt"

	"github.com/cory-johannsen/raidcore/internal/game/loot"
)

// ScriptRunner is the catalog's view of the Lua runtime.
type ScriptRunner interface {
	Has(name string) bool
	ModifyRarity(script, monsterName string, damage, tier int) (int, error)
}

// ScriptedHooks routes loot rarity adjustments to the Lua script each
// monster definition names. Monsters without a loot_script pass through
// unchanged. It satisfies the loot engine's advisory Hook contract: every
// error it returns leaves the tier unmodified.
type ScriptedHooks struct {
	catalog *Catalog
	runner  ScriptRunner
}

// NewScriptedHooks creates the hook adapter.
//
// Precondition: catalog and runner must be non-nil.
func NewScriptedHooks(catalog *Catalog, runner ScriptRunner) *ScriptedHooks {
	return &ScriptedHooks{catalog: catalog, runner: runner}
}

// ModifyRarity runs the monster's loot script hook, if any.
func (h *ScriptedHooks) ModifyRarity(monsterName string, damage, tier int) (int, error) {
	m := h.catalog.Monster(monsterName)
	if m == nil || m.LootScript == "" {
		return tier, nil
	}
	if !h.runner.Has(m.LootScript) {
		return tier, fmt.Errorf("loot script %q for monster %q not loaded", m.LootScript, monsterName)
	}
	return h.runner.ModifyRarity(m.LootScript, monsterName, damage, tier)
}

var _ loot.Hook = (*ScriptedHooks)(nil)
