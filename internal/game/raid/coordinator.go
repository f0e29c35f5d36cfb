package raid

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cory-johannsen/raidcore/internal/game/combat"
	"github.com/cory-johannsen/raidcore/internal/game/loot"
)

// Settings holds the coordinator tunables, sourced from config.RaidConfig.
// The skip window lives on the SkipScheduler; the coordinator never needs it.
type Settings struct {
	SessionTTL      time.Duration
	MaxParticipants int
	MaxWriteRetries int
}

// TurnTimers is the coordinator's view of the skip scheduler. Every event
// that sets a new turn holder resets the session's timer; terminal sessions
// cancel it.
type TurnTimers interface {
	Reset(sessionID string)
	Cancel(sessionID string)
}

// nopTimers is the default before a scheduler is attached.
type nopTimers struct{}

func (nopTimers) Reset(string)  {}
func (nopTimers) Cancel(string) {}

// TurnOutcome is the result of one accepted TakeTurn call.
type TurnOutcome struct {
	Result   combat.Result
	Defeated bool
	// Awards is populated only when this turn completed the session.
	Awards []loot.Award
}

// errNoWrite signals mutate that the loaded state requires no persistence.
var errNoWrite = errors.New("no write needed")

// backoffBase is the first retry delay after an optimistic-write conflict.
const backoffBase = 25 * time.Millisecond

// Coordinator owns the claim-and-advance protocol for raid sessions. Every
// mutation flows through a single audited path (mutate) that enforces the
// compare-and-swap contract, so concurrent callers and the skip scheduler can
// never double-apply a turn.
type Coordinator struct {
	store     Store
	actors    ActorProvider
	locations LocationProvider
	loot      *loot.Engine
	notifier  Notifier
	timers    TurnTimers
	settings  Settings
	logger    *zap.Logger
}

// NewCoordinator creates a Coordinator. notifier may be nil (events are
// dropped); a scheduler is attached separately via AttachTimers because the
// scheduler needs the coordinator to fire skips.
//
// Precondition: store, actors, locations, lootEngine, and logger must be
// non-nil; settings must have positive MaxParticipants and MaxWriteRetries.
func NewCoordinator(store Store, actors ActorProvider, locations LocationProvider, lootEngine *loot.Engine, notifier Notifier, settings Settings, logger *zap.Logger) *Coordinator {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Coordinator{
		store:     store,
		actors:    actors,
		locations: locations,
		loot:      lootEngine,
		notifier:  notifier,
		timers:    nopTimers{},
		settings:  settings,
		logger:    logger,
	}
}

// AttachTimers connects the skip scheduler. Call once during wiring, before
// the coordinator handles traffic.
func (c *Coordinator) AttachTimers(t TurnTimers) {
	c.timers = t
}

// CreateSession creates and persists a new active session for the given
// monster. Standalone sessions get a deadline of now + SessionTTL; expedition
// and grotto-trial sessions are bounded by their enclosing activity instead.
//
// Postcondition: the session is stored with Version 1 and StatusActive.
func (c *Coordinator) CreateSession(ctx context.Context, locationKey string, monster Monster, kind Kind) (*Session, error) {
	if locationKey == "" {
		return nil, errors.New("location key must not be empty")
	}
	if monster.Tier < 1 || monster.Tier > 10 {
		return nil, fmt.Errorf("monster tier must be 1-10, got %d", monster.Tier)
	}
	if monster.MaxHearts < 1 {
		return nil, fmt.Errorf("monster max hearts must be >= 1, got %d", monster.MaxHearts)
	}
	if monster.CurrentHearts <= 0 || monster.CurrentHearts > monster.MaxHearts {
		monster.CurrentHearts = monster.MaxHearts
	}
	switch kind {
	case KindStandalone, KindExpedition, KindGrottoTrial:
	default:
		return nil, fmt.Errorf("unknown session kind %q", kind)
	}

	now := time.Now().UTC()
	s := &Session{
		ID:          uuid.New().String(),
		LocationKey: locationKey,
		Monster:     monster,
		Status:      StatusActive,
		Kind:        kind,
		Version:     1,
		Analytics:   Analytics{StartedAt: now},
	}
	if kind == KindStandalone {
		s.ExpiresAt = now.Add(c.settings.SessionTTL)
	}

	if err := c.store.Create(ctx, s); err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}
	c.logger.Info("raid session created",
		zap.String("session_id", s.ID),
		zap.String("location", locationKey),
		zap.String("monster", monster.Name),
		zap.Int("tier", monster.Tier),
		zap.String("kind", string(kind)),
	)
	return s, nil
}

// Join adds an actor to the session's turn order (arrival order = turn
// order). The skip timer is reset for the incumbent holder so a new joiner
// never causes them to be unfairly skipped.
func (c *Coordinator) Join(ctx context.Context, sessionID, actorID string) (*Session, error) {
	if _, err := c.CheckExpiration(ctx, sessionID); err != nil {
		return nil, err
	}

	info, err := c.actors.GetActor(ctx, actorID)
	if err != nil {
		return nil, fmt.Errorf("loading actor %s: %w", actorID, err)
	}
	location, err := c.locations.CurrentLocation(ctx, actorID)
	if err != nil {
		return nil, fmt.Errorf("resolving location for %s: %w", actorID, err)
	}

	s, err := c.mutate(ctx, sessionID, func(s *Session, _ int) error {
		if s.Status != StatusActive {
			return ErrSessionNotActive
		}
		if s.Participant(actorID) != nil {
			return ErrAlreadyParticipating
		}
		if location != s.LocationKey {
			return ErrLocationMismatch
		}
		if len(s.Participants) >= c.settings.MaxParticipants && !info.Privileged {
			return ErrSessionFull
		}
		s.addParticipant(Participant{
			ActorID:     actorID,
			DisplayName: info.DisplayName,
			OwnerID:     info.OwnerID,
			Privileged:  info.Privileged,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.resetTimer(s)
	return s, nil
}

// TakeTurn resolves one turn for the given actor: validates the claim,
// resolves combat with the supplied roll, applies damage to the ledger and
// the monster, and persists with a conditional write. A claim that loses the
// write race to another turn surfaces ErrTurnAlreadyAdvanced; the roll is
// never applied twice.
func (c *Coordinator) TakeTurn(ctx context.Context, sessionID, actorID string, roll int) (*Session, *TurnOutcome, error) {
	if _, err := c.CheckExpiration(ctx, sessionID); err != nil {
		return nil, nil, err
	}

	info, err := c.actors.GetActor(ctx, actorID)
	if err != nil {
		return nil, nil, fmt.Errorf("loading actor %s: %w", actorID, err)
	}
	incapacitated, err := c.actors.IsIncapacitated(ctx, actorID)
	if err != nil {
		return nil, nil, fmt.Errorf("checking incapacitation for %s: %w", actorID, err)
	}

	var outcome TurnOutcome
	heldOnFirstRead := false
	s, err := c.mutate(ctx, sessionID, func(s *Session, attempt int) error {
		outcome = TurnOutcome{}
		if s.Status != StatusActive {
			return ErrSessionNotActive
		}
		actor := s.Participant(actorID)
		if actor == nil {
			return ErrNotParticipating
		}
		holder := s.CurrentHolder()
		if holder == nil {
			return ErrSessionNotActive
		}
		holderActs := holder.ActorID == actorID
		if attempt == 0 {
			heldOnFirstRead = holderActs
		}
		if !holderActs && !actor.Privileged {
			if attempt > 0 && heldOnFirstRead {
				// The turn was ours when the roll was submitted; a concurrent
				// writer advanced it first. The losing roll is discarded.
				return ErrTurnAlreadyAdvanced
			}
			return ErrNotYourTurn
		}
		// A KO'd holder may only use a recovery item (external) or leave; a
		// plain attack is rejected.
		if incapacitated {
			return ErrActorIncapacitated
		}

		result := combat.Resolve(info.Stats, s.Monster.Tier, roll)
		defeated := s.applyMonsterDamage(result.DamageToMonster)
		actor.DamageDealt += result.DamageToMonster
		actor.RoundsParticipated++
		s.Analytics.TotalDamage += result.DamageToMonster
		outcome.Result = result

		if defeated {
			s.complete(time.Now().UTC())
			awards, lootErr := c.loot.Distribute(ctx, s.Monster.Name, s.contributions())
			if lootErr != nil {
				return fmt.Errorf("distributing loot: %w", lootErr)
			}
			s.Awards = awards
			outcome.Defeated = true
			outcome.Awards = awards
			return nil
		}

		// A privileged out-of-turn action leaves the pointer alone so the
		// incumbent still gets their turn.
		if holderActs {
			s.advanceTurn()
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	// The session write alone determines correctness; actor-state damage is
	// best effort and reconciled on the next character read if it fails.
	if outcome.Result.DamageToActor > 0 {
		if dmgErr := c.actors.ApplyDamage(ctx, actorID, outcome.Result.DamageToActor); dmgErr != nil {
			c.logger.Error("applying actor damage after session write",
				zap.String("session_id", s.ID),
				zap.String("actor_id", actorID),
				zap.Int("hearts", outcome.Result.DamageToActor),
				zap.Error(dmgErr),
			)
		}
	}

	c.notifier.TurnResolved(TurnEvent{
		SessionID: s.ID,
		ActorID:   actorID,
		Result:    outcome.Result,
		Monster:   s.Monster,
		Defeated:  outcome.Defeated,
	})
	if outcome.Defeated {
		c.notifier.SessionCompleted(CompletionEvent{
			SessionID: s.ID,
			Monster:   s.Monster,
			Awards:    outcome.Awards,
		})
	}

	c.resetTimer(s)
	return s, &outcome, nil
}

// Leave removes an actor from the session. Eligible departures keep their
// loot claim via LootEligibleRemoved; an emptied session expires.
func (c *Coordinator) Leave(ctx context.Context, sessionID, actorID string) (*Session, error) {
	if _, err := c.CheckExpiration(ctx, sessionID); err != nil {
		return nil, err
	}

	s, err := c.mutate(ctx, sessionID, func(s *Session, _ int) error {
		if s.Kind == KindExpedition {
			return ErrCannotLeaveExpedition
		}
		if s.Status != StatusActive {
			return ErrSessionNotActive
		}
		removed, ok := s.removeParticipant(actorID)
		if !ok {
			return ErrNotParticipating
		}
		if loot.Eligible(removed.DamageDealt, removed.RoundsParticipated) {
			s.LootEligibleRemoved = append(s.LootEligibleRemoved, removed)
		}
		if len(s.Participants) == 0 {
			s.expire(time.Now().UTC())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.resetTimer(s)
	return s, nil
}

// CheckExpiration transitions a deadline-passed active session to expired.
// Idempotent and safe from any context: read path, sweeper, or timer fire.
func (c *Coordinator) CheckExpiration(ctx context.Context, sessionID string) (*Session, error) {
	s, err := c.mutate(ctx, sessionID, func(s *Session, _ int) error {
		if s.Status != StatusActive || !s.DeadlinePassed(time.Now().UTC()) {
			return errNoWrite
		}
		s.expire(time.Now().UTC())
		return nil
	})
	if err != nil {
		return nil, err
	}
	if s.Terminal() {
		c.timers.Cancel(sessionID)
	}
	return s, nil
}

// Inspect returns the session read-only, running the expiration check as a
// side effect.
func (c *Coordinator) Inspect(ctx context.Context, sessionID string) (*Session, error) {
	return c.CheckExpiration(ctx, sessionID)
}

// ForceSkip advances the turn with zero damage exchanged, on behalf of the
// skip scheduler. It only ever skips the holder it first observed: a retry
// that finds a different holder means a legitimate turn won the write race,
// and the skip becomes a no-op so the new holder keeps their full window.
// The skipped holder's round count is not incremented; they did not act.
func (c *Coordinator) ForceSkip(ctx context.Context, sessionID string) (*Session, error) {
	var skipped, next, firstHolder string
	advanced := false
	s, err := c.mutate(ctx, sessionID, func(s *Session, attempt int) error {
		advanced = false
		if s.Status != StatusActive {
			return errNoWrite
		}
		now := time.Now().UTC()
		if s.DeadlinePassed(now) {
			s.expire(now)
			return nil
		}
		holder := s.CurrentHolder()
		if holder == nil {
			return errNoWrite
		}
		if attempt == 0 {
			firstHolder = holder.ActorID
		} else if holder.ActorID != firstHolder {
			return errNoWrite
		}
		skipped = holder.ActorID
		s.advanceTurn()
		next = s.CurrentHolder().ActorID
		advanced = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if advanced {
		c.logger.Info("forced turn skip",
			zap.String("session_id", s.ID),
			zap.String("skipped", skipped),
			zap.String("next", next),
		)
		c.notifier.ForcedSkip(SkipEvent{
			SessionID:      s.ID,
			SkippedActorID: skipped,
			NextActorID:    next,
		})
	}
	if s.Terminal() {
		c.timers.Cancel(sessionID)
	}
	return s, nil
}

// mutate is the single audited write path: load, apply fn, conditionally
// write. On version conflict it reloads and re-runs fn (so every retry
// re-validates from scratch) with jittered backoff, up to MaxWriteRetries
// attempts, then surfaces ErrSessionChanged. fn returning errNoWrite skips
// the write and returns the loaded state.
func (c *Coordinator) mutate(ctx context.Context, id string, fn func(s *Session, attempt int) error) (*Session, error) {
	for attempt := 0; attempt < c.settings.MaxWriteRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoffDelay(attempt)):
			}
		}

		s, err := c.store.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := fn(s, attempt); err != nil {
			if errors.Is(err, errNoWrite) {
				return s, nil
			}
			return nil, err
		}
		err = c.store.Update(ctx, s)
		if err == nil {
			return s, nil
		}
		if !errors.Is(err, ErrVersionConflict) {
			return nil, fmt.Errorf("writing session %s: %w", id, err)
		}
		c.logger.Debug("optimistic write conflict, retrying",
			zap.String("session_id", id),
			zap.Int("attempt", attempt+1),
		)
	}
	return nil, fmt.Errorf("session %s: %d attempts: %w", id, c.settings.MaxWriteRetries, ErrSessionChanged)
}

// backoffDelay returns the exponential delay for the given retry attempt with
// up to one base interval of jitter.
func backoffDelay(attempt int) time.Duration {
	base := backoffBase << (attempt - 1)
	return base + time.Duration(rand.Int63n(int64(backoffBase)))
}

// resetTimer re-arms or cancels the session's skip timer to match its state.
// Expeditions never carry a timer.
func (c *Coordinator) resetTimer(s *Session) {
	if s.Terminal() || s.Kind == KindExpedition {
		c.timers.Cancel(s.ID)
		return
	}
	c.timers.Reset(s.ID)
}
