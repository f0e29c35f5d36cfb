package content

import (
	"context"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/cory-johannsen/raidcore/internal/game/combat"
	"github.com/cory-johannsen/raidcore/internal/game/raid"
)

// yamlRosterFile is the top-level YAML structure for the actor roster.
type yamlRosterFile struct {
	Actors []yamlActor `yaml:"actors"`
}

// yamlActor is the YAML representation of one actor.
type yamlActor struct {
	ID          string `yaml:"id"`
	DisplayName string `yaml:"display_name"`
	OwnerID     string `yaml:"owner_id"`
	Privileged  bool   `yaml:"privileged"`
	Hearts      int    `yaml:"hearts"`
	Defense     int    `yaml:"defense"`
	Location    string `yaml:"location"`
}

// rosterEntry is the live state for one roster actor.
type rosterEntry struct {
	displayName string
	ownerID     string
	privileged  bool
	maxHearts   int
	hearts      int
	defense     int
	location    string
}

// Roster is an in-process actor directory loaded from YAML. It serves the
// coordinator's actor and location lookups and tracks hearts for damage
// taken during raids. Safe for concurrent use.
type Roster struct {
	mu     sync.Mutex
	actors map[string]*rosterEntry
}

// LoadRosterFromBytes parses and validates a roster from YAML bytes.
//
// Precondition: data must be valid YAML conforming to the roster schema.
// Postcondition: Returns a validated Roster or a non-nil error. Duplicate
// actor IDs are an error.
func LoadRosterFromBytes(data []byte) (*Roster, error) {
	var file yamlRosterFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing roster YAML: %w", err)
	}

	roster := &Roster{actors: make(map[string]*rosterEntry, len(file.Actors))}
	for i, a := range file.Actors {
		if a.ID == "" {
			return nil, fmt.Errorf("roster: actors[%d]: id must not be empty", i)
		}
		if a.Hearts < 1 {
			return nil, fmt.Errorf("roster: actor %q: hearts must be >= 1, got %d", a.ID, a.Hearts)
		}
		if a.Defense < 0 {
			return nil, fmt.Errorf("roster: actor %q: defense must be >= 0, got %d", a.ID, a.Defense)
		}
		if a.Location == "" {
			return nil, fmt.Errorf("roster: actor %q: location must not be empty", a.ID)
		}
		if _, exists := roster.actors[a.ID]; exists {
			return nil, fmt.Errorf("roster: duplicate actor id %q", a.ID)
		}
		displayName := a.DisplayName
		if displayName == "" {
			displayName = a.ID
		}
		roster.actors[a.ID] = &rosterEntry{
			displayName: displayName,
			ownerID:     a.OwnerID,
			privileged:  a.Privileged,
			maxHearts:   a.Hearts,
			hearts:      a.Hearts,
			defense:     a.Defense,
			location:    a.Location,
		}
	}
	if len(roster.actors) == 0 {
		return nil, fmt.Errorf("roster: no actors defined")
	}
	return roster, nil
}

// LoadRosterFromFile reads and validates a roster YAML file.
func LoadRosterFromFile(path string) (*Roster, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading roster file %s: %w", path, err)
	}
	return LoadRosterFromBytes(data)
}

// GetActor returns the actor's current snapshot.
func (r *Roster) GetActor(_ context.Context, actorID string) (raid.ActorInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.actors[actorID]
	if !ok {
		return raid.ActorInfo{}, fmt.Errorf("actor %q not in roster", actorID)
	}
	return raid.ActorInfo{
		DisplayName: e.displayName,
		OwnerID:     e.ownerID,
		Privileged:  e.privileged,
		Stats: combat.ActorStats{
			Hearts:        e.hearts,
			MaxHearts:     e.maxHearts,
			Defense:       e.defense,
			Incapacitated: e.hearts == 0,
		},
	}, nil
}

// ApplyDamage subtracts hearts from the actor, flooring at zero.
func (r *Roster) ApplyDamage(_ context.Context, actorID string, hearts int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.actors[actorID]
	if !ok {
		return fmt.Errorf("actor %q not in roster", actorID)
	}
	e.hearts -= hearts
	if e.hearts < 0 {
		e.hearts = 0
	}
	return nil
}

// Heal restores hearts up to the actor's maximum.
func (r *Roster) Heal(_ context.Context, actorID string, hearts int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.actors[actorID]
	if !ok {
		return fmt.Errorf("actor %q not in roster", actorID)
	}
	e.hearts += hearts
	if e.hearts > e.maxHearts {
		e.hearts = e.maxHearts
	}
	return nil
}

// IsIncapacitated reports whether the actor is at zero hearts.
func (r *Roster) IsIncapacitated(_ context.Context, actorID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.actors[actorID]
	if !ok {
		return false, fmt.Errorf("actor %q not in roster", actorID)
	}
	return e.hearts == 0, nil
}

// CurrentLocation returns the actor's location key.
func (r *Roster) CurrentLocation(_ context.Context, actorID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.actors[actorID]
	if !ok {
		return "", fmt.Errorf("actor %q not in roster", actorID)
	}
	return e.location, nil
}

// MoveTo updates the actor's location key.
func (r *Roster) MoveTo(_ context.Context, actorID, locationKey string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.actors[actorID]
	if !ok {
		return fmt.Errorf("actor %q not in roster", actorID)
	}
	e.location = locationKey
	return nil
}

var (
	_ raid.ActorProvider    = (*Roster)(nil)
	_ raid.LocationProvider = (*Roster)(nil)
)
