package raid

import (
	"context"

	"github.com/cory-johannsen/raidcore/internal/game/combat"
	"github.com/cory-johannsen/raidcore/internal/game/loot"
)

// ActorInfo is the character-state snapshot the coordinator needs about an
// acting participant.
type ActorInfo struct {
	DisplayName string
	OwnerID     string
	Privileged  bool
	Stats       combat.ActorStats
}

// ActorProvider supplies character state from the external character system.
// The coordinator reads stats before resolving a turn and pushes damage back
// after the session write succeeds.
type ActorProvider interface {
	GetActor(ctx context.Context, actorID string) (ActorInfo, error)
	ApplyDamage(ctx context.Context, actorID string, hearts int) error
	IsIncapacitated(ctx context.Context, actorID string) (bool, error)
}

// LocationProvider reports where an actor currently is; joins must match the
// session's location key.
type LocationProvider interface {
	CurrentLocation(ctx context.Context, actorID string) (string, error)
}

// TurnEvent describes one resolved turn for presentation layers.
type TurnEvent struct {
	SessionID string
	ActorID   string
	Result    combat.Result
	Monster   Monster
	Defeated  bool
}

// CompletionEvent describes a victorious session and its loot awards.
type CompletionEvent struct {
	SessionID string
	Monster   Monster
	Awards    []loot.Award
}

// SkipEvent describes a timer-forced turn advance.
type SkipEvent struct {
	SessionID      string
	SkippedActorID string
	NextActorID    string
}

// Notifier receives engine events for human-readable presentation. All
// methods are fire-and-forget; the engine never blocks on delivery outcomes.
type Notifier interface {
	TurnResolved(ev TurnEvent)
	SessionCompleted(ev CompletionEvent)
	ForcedSkip(ev SkipEvent)
}

// NopNotifier discards all events.
type NopNotifier struct{}

func (NopNotifier) TurnResolved(TurnEvent)           {}
func (NopNotifier) SessionCompleted(CompletionEvent) {}
func (NopNotifier) ForcedSkip(SkipEvent)             {}
