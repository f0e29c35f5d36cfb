// Package content loads monster definitions and their loot tables from YAML.
package content

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cory-johannsen/raidcore/internal/game/loot"
	"github.com/cory-johannsen/raidcore/internal/game/raid"
)

// LootEntry is one item a monster can drop, with its rarity rank.
type LootEntry struct {
	Name   string `yaml:"name"`
	Rarity int    `yaml:"rarity"`
}

// Monster defines a raidable monster archetype loaded from YAML.
type Monster struct {
	ID     string      `yaml:"id"`
	Name   string      `yaml:"name"`
	Tier   int         `yaml:"tier"`
	Hearts int         `yaml:"hearts"`
	Loot   []LootEntry `yaml:"loot"`
	// LootScript names a Lua script (relative to the scripts directory) whose
	// modify_rarity hook can adjust award rarity. Empty means no hook.
	LootScript string `yaml:"loot_script"`
}

// Validate checks that the monster satisfies basic invariants.
//
// Precondition: m must not be nil.
// Postcondition: Returns nil iff ID and Name are non-empty, Tier is 1-10,
// Hearts >= 1, and every loot entry has a name and rarity 1-10.
func (m *Monster) Validate() error {
	if m.ID == "" {
		return fmt.Errorf("monster: id must not be empty")
	}
	if m.Name == "" {
		return fmt.Errorf("monster %q: name must not be empty", m.ID)
	}
	if m.Tier < 1 || m.Tier > 10 {
		return fmt.Errorf("monster %q: tier must be 1-10, got %d", m.ID, m.Tier)
	}
	if m.Hearts < 1 {
		return fmt.Errorf("monster %q: hearts must be >= 1, got %d", m.ID, m.Hearts)
	}
	for i, e := range m.Loot {
		if e.Name == "" {
			return fmt.Errorf("monster %q: loot[%d]: name must not be empty", m.ID, i)
		}
		if e.Rarity < 1 || e.Rarity > 10 {
			return fmt.Errorf("monster %q: loot[%d] %q: rarity must be 1-10, got %d", m.ID, i, e.Name, e.Rarity)
		}
	}
	return nil
}

// Spawn builds the session-embedded monster state at full hearts.
func (m *Monster) Spawn() raid.Monster {
	return raid.Monster{
		Name:          m.Name,
		Tier:          m.Tier,
		CurrentHearts: m.Hearts,
		MaxHearts:     m.Hearts,
	}
}

// LoadMonsterFromBytes parses and validates a single monster from YAML bytes.
//
// Precondition: data must be valid YAML conforming to the monster schema.
// Postcondition: Returns a validated *Monster or a non-nil error.
func LoadMonsterFromBytes(data []byte) (*Monster, error) {
	var m Monster
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing monster YAML: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// LoadMonsterFromFile reads and validates a single monster YAML file.
func LoadMonsterFromFile(path string) (*Monster, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading monster file %s: %w", path, err)
	}
	return LoadMonsterFromBytes(data)
}

// Catalog holds the loaded monster definitions, indexed by name. It serves
// loot tables to the distribution engine.
type Catalog struct {
	byName map[string]*Monster
}

// LoadCatalogFromDir loads all YAML files in dir as monster definitions.
//
// Precondition: dir must be a valid directory path.
// Postcondition: Returns a catalog of all validated monsters, or the first
// error encountered. Duplicate monster names are an error.
func LoadCatalogFromDir(dir string) (*Catalog, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading monster directory %s: %w", dir, err)
	}

	catalog := &Catalog{byName: make(map[string]*Monster)}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml") {
			continue
		}
		m, err := LoadMonsterFromFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("loading monster from %s: %w", name, err)
		}
		if _, exists := catalog.byName[m.Name]; exists {
			return nil, fmt.Errorf("duplicate monster name %q in %s", m.Name, name)
		}
		catalog.byName[m.Name] = m
	}

	if len(catalog.byName) == 0 {
		return nil, fmt.Errorf("no monster files found in %s", dir)
	}
	return catalog, nil
}

// Monster returns the definition for the given name, or nil if unknown.
func (c *Catalog) Monster(name string) *Monster {
	return c.byName[name]
}

// Names returns all monster names in the catalog.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.byName))
	for name := range c.byName {
		names = append(names, name)
	}
	return names
}

// ItemsFor returns the loot table for the named monster. An unknown monster
// is an error; a known monster with no loot yields an empty table.
func (c *Catalog) ItemsFor(_ context.Context, monsterName string) ([]loot.Entry, error) {
	m := c.byName[monsterName]
	if m == nil {
		return nil, fmt.Errorf("monster %q not in catalog", monsterName)
	}
	items := make([]loot.Entry, 0, len(m.Loot))
	for _, e := range m.Loot {
		items = append(items, loot.Entry{Name: e.Name, Rarity: e.Rarity})
	}
	return items, nil
}

var _ loot.Provider = (*Catalog)(nil)
