package raid_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/raidcore/internal/game/loot"
	"github.com/cory-johannsen/raidcore/internal/game/raid"
	"github.com/cory-johannsen/raidcore/internal/storage/memory"
)

// fakeActors is an in-memory ActorProvider.
type fakeActors struct {
	mu     sync.Mutex
	infos  map[string]raid.ActorInfo
	down   map[string]bool
	damage map[string]int
}

func newFakeActors() *fakeActors {
	return &fakeActors{
		infos:  make(map[string]raid.ActorInfo),
		down:   make(map[string]bool),
		damage: make(map[string]int),
	}
}

func (f *fakeActors) add(id string, privileged bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.infos[id] = raid.ActorInfo{
		DisplayName: id,
		OwnerID:     "owner-" + id,
		Privileged:  privileged,
	}
}

func (f *fakeActors) GetActor(_ context.Context, id string) (raid.ActorInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	info, ok := f.infos[id]
	if !ok {
		return raid.ActorInfo{}, fmt.Errorf("actor %q unknown", id)
	}
	return info, nil
}

func (f *fakeActors) ApplyDamage(_ context.Context, id string, hearts int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.damage[id] += hearts
	return nil
}

func (f *fakeActors) IsIncapacitated(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.down[id], nil
}

// fakeLocations places every actor in the same region unless overridden.
type fakeLocations struct {
	mu        sync.Mutex
	locations map[string]string
	fallback  string
}

func (f *fakeLocations) CurrentLocation(_ context.Context, id string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if loc, ok := f.locations[id]; ok {
		return loc, nil
	}
	return f.fallback, nil
}

// recordingNotifier captures events for assertions.
type recordingNotifier struct {
	mu          sync.Mutex
	turns       []raid.TurnEvent
	completions []raid.CompletionEvent
	skips       []raid.SkipEvent
}

func (n *recordingNotifier) TurnResolved(ev raid.TurnEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.turns = append(n.turns, ev)
}

func (n *recordingNotifier) SessionCompleted(ev raid.CompletionEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.completions = append(n.completions, ev)
}

func (n *recordingNotifier) ForcedSkip(ev raid.SkipEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.skips = append(n.skips, ev)
}

func (n *recordingNotifier) completionCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.completions)
}

// recordingTimers counts scheduler interactions.
type recordingTimers struct {
	mu      sync.Mutex
	resets  map[string]int
	cancels map[string]int
}

func newRecordingTimers() *recordingTimers {
	return &recordingTimers{resets: make(map[string]int), cancels: make(map[string]int)}
}

func (rt *recordingTimers) Reset(id string) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.resets[id]++
}

func (rt *recordingTimers) Cancel(id string) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.cancels[id]++
}

// fixedSrc returns the same value for every Intn call.
type fixedSrc struct{ val int }

func (f fixedSrc) Intn(n int) int { return f.val % n }

type tableProvider struct{ entries []loot.Entry }

func (p tableProvider) ItemsFor(_ context.Context, _ string) ([]loot.Entry, error) {
	return p.entries, nil
}

type fixture struct {
	store     raid.Store
	coord     *raid.Coordinator
	actors    *fakeActors
	locations *fakeLocations
	notifier  *recordingNotifier
	timers    *recordingTimers
}

func newFixture(t *testing.T, store raid.Store) *fixture {
	t.Helper()
	if store == nil {
		store = memory.NewStore()
	}
	actors := newFakeActors()
	locations := &fakeLocations{locations: make(map[string]string), fallback: "akkala"}
	notifier := &recordingNotifier{}
	timers := newRecordingTimers()

	table := []loot.Entry{
		{Name: "boko club", Rarity: 1},
		{Name: "knight's shield", Rarity: 6},
		{Name: "ancient core", Rarity: 10},
	}
	lootEngine := loot.NewEngine(tableProvider{entries: table}, fixedSrc{val: 0}, nil, zap.NewNop())

	coord := raid.NewCoordinator(store, actors, locations, lootEngine, notifier, raid.Settings{
		SessionTTL:      30 * time.Minute,
		MaxParticipants: 10,
		MaxWriteRetries: 3,
	}, zap.NewNop())
	coord.AttachTimers(timers)

	return &fixture{store: store, coord: coord, actors: actors, locations: locations, notifier: notifier, timers: timers}
}

func (fx *fixture) createSession(t *testing.T, kind raid.Kind, hearts int) *raid.Session {
	t.Helper()
	s, err := fx.coord.CreateSession(context.Background(), "akkala", raid.Monster{
		Name: "hinox", Tier: 3, CurrentHearts: hearts, MaxHearts: 10,
	}, kind)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	return s
}

func (fx *fixture) join(t *testing.T, sessionID string, actors ...string) {
	t.Helper()
	for _, a := range actors {
		fx.actors.add(a, false)
		if _, err := fx.coord.Join(context.Background(), sessionID, a); err != nil {
			t.Fatalf("Join %s: %v", a, err)
		}
	}
}

func TestCreateSessionValidation(t *testing.T) {
	fx := newFixture(t, nil)
	ctx := context.Background()

	if _, err := fx.coord.CreateSession(ctx, "", raid.Monster{Tier: 3, MaxHearts: 10}, raid.KindStandalone); err == nil {
		t.Error("empty location accepted")
	}
	if _, err := fx.coord.CreateSession(ctx, "akkala", raid.Monster{Tier: 0, MaxHearts: 10}, raid.KindStandalone); err == nil {
		t.Error("tier 0 accepted")
	}
	if _, err := fx.coord.CreateSession(ctx, "akkala", raid.Monster{Tier: 3, MaxHearts: 10}, raid.Kind("dungeon")); err == nil {
		t.Error("unknown kind accepted")
	}
}

func TestCreateSessionDeadlineByKind(t *testing.T) {
	fx := newFixture(t, nil)

	standalone := fx.createSession(t, raid.KindStandalone, 10)
	if standalone.ExpiresAt.IsZero() {
		t.Error("standalone session missing deadline")
	}
	for _, kind := range []raid.Kind{raid.KindExpedition, raid.KindGrottoTrial} {
		s, err := fx.coord.CreateSession(context.Background(), "akkala", raid.Monster{
			Name: "hinox", Tier: 3, CurrentHearts: 10, MaxHearts: 10,
		}, kind)
		if err != nil {
			t.Fatalf("CreateSession %s: %v", kind, err)
		}
		if !s.ExpiresAt.IsZero() {
			t.Errorf("%s session has a deadline", kind)
		}
	}
}

func TestJoinArrivalOrderIsTurnOrder(t *testing.T) {
	fx := newFixture(t, nil)
	s := fx.createSession(t, raid.KindStandalone, 10)
	fx.join(t, s.ID, "a", "b", "c")

	got, err := fx.store.Get(context.Background(), s.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	for i, want := range []string{"a", "b", "c"} {
		if got.Participants[i].ActorID != want {
			t.Fatalf("participant[%d] = %s, want %s", i, got.Participants[i].ActorID, want)
		}
	}
	// Create is version 1; each join adds exactly 1.
	if got.Version != 4 {
		t.Fatalf("Version = %d, want 4", got.Version)
	}
}

func TestJoinDuplicate(t *testing.T) {
	fx := newFixture(t, nil)
	s := fx.createSession(t, raid.KindStandalone, 10)
	fx.join(t, s.ID, "a")

	if _, err := fx.coord.Join(context.Background(), s.ID, "a"); !errors.Is(err, raid.ErrAlreadyParticipating) {
		t.Fatalf("Join = %v, want ErrAlreadyParticipating", err)
	}
}

func TestJoinLocationMismatch(t *testing.T) {
	fx := newFixture(t, nil)
	s := fx.createSession(t, raid.KindStandalone, 10)
	fx.actors.add("wanderer", false)
	fx.locations.locations["wanderer"] = "gerudo"

	if _, err := fx.coord.Join(context.Background(), s.ID, "wanderer"); !errors.Is(err, raid.ErrLocationMismatch) {
		t.Fatalf("Join = %v, want ErrLocationMismatch", err)
	}
}

func TestJoinCapacityAndPrivilegedBypass(t *testing.T) {
	fx := newFixture(t, nil)
	s := fx.createSession(t, raid.KindStandalone, 10)
	for i := 0; i < 10; i++ {
		fx.join(t, s.ID, fmt.Sprintf("p%d", i))
	}

	fx.actors.add("latecomer", false)
	if _, err := fx.coord.Join(context.Background(), s.ID, "latecomer"); !errors.Is(err, raid.ErrSessionFull) {
		t.Fatalf("Join = %v, want ErrSessionFull", err)
	}

	fx.actors.add("warden", true)
	if _, err := fx.coord.Join(context.Background(), s.ID, "warden"); err != nil {
		t.Fatalf("privileged Join: %v", err)
	}
}

func TestJoinResetsTimerForIncumbent(t *testing.T) {
	fx := newFixture(t, nil)
	s := fx.createSession(t, raid.KindStandalone, 10)
	fx.join(t, s.ID, "a", "b")

	fx.timers.mu.Lock()
	defer fx.timers.mu.Unlock()
	if fx.timers.resets[s.ID] != 2 {
		t.Fatalf("timer resets = %d, want 2", fx.timers.resets[s.ID])
	}
}

func TestJoinExpeditionNeverSchedules(t *testing.T) {
	fx := newFixture(t, nil)
	s := fx.createSession(t, raid.KindExpedition, 10)
	fx.join(t, s.ID, "a")

	fx.timers.mu.Lock()
	defer fx.timers.mu.Unlock()
	if fx.timers.resets[s.ID] != 0 {
		t.Fatalf("expedition timer resets = %d, want 0", fx.timers.resets[s.ID])
	}
	if fx.timers.cancels[s.ID] == 0 {
		t.Fatal("expedition join should cancel any timer")
	}
}

func TestTakeTurnNotYourTurnLeavesStateUntouched(t *testing.T) {
	fx := newFixture(t, nil)
	s := fx.createSession(t, raid.KindStandalone, 10)
	fx.join(t, s.ID, "a", "b", "c")

	before, _ := fx.store.Get(context.Background(), s.ID)

	_, _, err := fx.coord.TakeTurn(context.Background(), s.ID, "b", 70)
	if !errors.Is(err, raid.ErrNotYourTurn) {
		t.Fatalf("TakeTurn = %v, want ErrNotYourTurn", err)
	}

	after, _ := fx.store.Get(context.Background(), s.ID)
	if after.Version != before.Version {
		t.Fatalf("Version changed: %d -> %d", before.Version, after.Version)
	}
	if after.CurrentTurn != before.CurrentTurn || after.Monster.CurrentHearts != before.Monster.CurrentHearts {
		t.Fatal("rejected turn mutated session state")
	}
}

func TestTakeTurnAppliesDamageAndAdvances(t *testing.T) {
	fx := newFixture(t, nil)
	s := fx.createSession(t, raid.KindStandalone, 10)
	fx.join(t, s.ID, "a", "b")

	// Roll 100 on a low-tier monster: 3 hearts to the monster, none back.
	updated, outcome, err := fx.coord.TakeTurn(context.Background(), s.ID, "a", 100)
	if err != nil {
		t.Fatalf("TakeTurn: %v", err)
	}
	if outcome.Result.DamageToMonster != 3 || outcome.Result.DamageToActor != 0 {
		t.Fatalf("unexpected result: %+v", outcome.Result)
	}
	if updated.Monster.CurrentHearts != 7 {
		t.Fatalf("hearts = %d, want 7", updated.Monster.CurrentHearts)
	}
	p := updated.Participant("a")
	if p.DamageDealt != 3 || p.RoundsParticipated != 1 {
		t.Fatalf("ledger = %+v", p)
	}
	if updated.CurrentHolder().ActorID != "b" {
		t.Fatalf("holder = %s, want b", updated.CurrentHolder().ActorID)
	}
	if updated.Analytics.TotalDamage != 3 {
		t.Fatalf("TotalDamage = %d, want 3", updated.Analytics.TotalDamage)
	}
}

func TestTakeTurnAppliesActorDamageBestEffort(t *testing.T) {
	fx := newFixture(t, nil)
	s := fx.createSession(t, raid.KindStandalone, 10)
	fx.join(t, s.ID, "a", "b")

	// Roll 1 on a low-tier monster: no monster damage, 3 hearts to the actor.
	updated, outcome, err := fx.coord.TakeTurn(context.Background(), s.ID, "a", 1)
	if err != nil {
		t.Fatalf("TakeTurn: %v", err)
	}
	if outcome.Result.DamageToActor != 3 {
		t.Fatalf("DamageToActor = %d, want 3", outcome.Result.DamageToActor)
	}
	fx.actors.mu.Lock()
	applied := fx.actors.damage["a"]
	fx.actors.mu.Unlock()
	if applied != 3 {
		t.Fatalf("applied actor damage = %d, want 3", applied)
	}
	if updated.Monster.CurrentHearts != 10 {
		t.Fatalf("monster hearts = %d, want 10", updated.Monster.CurrentHearts)
	}
	// A turn with no monster damage still advances the pointer.
	if updated.CurrentHolder().ActorID != "b" {
		t.Fatalf("holder = %s, want b", updated.CurrentHolder().ActorID)
	}
}

func TestTakeTurnIncapacitated(t *testing.T) {
	fx := newFixture(t, nil)
	s := fx.createSession(t, raid.KindStandalone, 10)
	fx.join(t, s.ID, "a", "b")
	fx.actors.mu.Lock()
	fx.actors.down["a"] = true
	fx.actors.mu.Unlock()

	if _, _, err := fx.coord.TakeTurn(context.Background(), s.ID, "a", 70); !errors.Is(err, raid.ErrActorIncapacitated) {
		t.Fatalf("TakeTurn = %v, want ErrActorIncapacitated", err)
	}
	// KO'd holders stay in rotation; the pointer must not have moved.
	got, _ := fx.store.Get(context.Background(), s.ID)
	if got.CurrentHolder().ActorID != "a" {
		t.Fatalf("holder = %s, want a", got.CurrentHolder().ActorID)
	}
}

func TestTakeTurnNotParticipating(t *testing.T) {
	fx := newFixture(t, nil)
	s := fx.createSession(t, raid.KindStandalone, 10)
	fx.join(t, s.ID, "a")
	fx.actors.add("stranger", false)

	if _, _, err := fx.coord.TakeTurn(context.Background(), s.ID, "stranger", 70); !errors.Is(err, raid.ErrNotParticipating) {
		t.Fatalf("TakeTurn = %v, want ErrNotParticipating", err)
	}
}

func TestTakeTurnDefeatCompletesExactlyOnce(t *testing.T) {
	fx := newFixture(t, nil)
	s := fx.createSession(t, raid.KindStandalone, 1)
	fx.join(t, s.ID, "a", "b")

	updated, outcome, err := fx.coord.TakeTurn(context.Background(), s.ID, "a", 70)
	if err != nil {
		t.Fatalf("TakeTurn: %v", err)
	}
	if !outcome.Defeated {
		t.Fatal("expected defeat")
	}
	if updated.Status != raid.StatusCompleted {
		t.Fatalf("Status = %s, want completed", updated.Status)
	}
	if updated.Analytics.EndedAt.IsZero() {
		t.Fatal("EndedAt not set")
	}
	if len(updated.Awards) != 1 || updated.Awards[0].ActorID != "a" {
		t.Fatalf("Awards = %+v, want one for a", updated.Awards)
	}
	if fx.notifier.completionCount() != 1 {
		t.Fatalf("completions = %d, want 1", fx.notifier.completionCount())
	}

	if _, _, err := fx.coord.TakeTurn(context.Background(), s.ID, "b", 70); !errors.Is(err, raid.ErrSessionNotActive) {
		t.Fatalf("TakeTurn on completed session = %v, want ErrSessionNotActive", err)
	}
	if fx.notifier.completionCount() != 1 {
		t.Fatal("completion delivered more than once")
	}
}

func TestPrivilegedOutOfTurnDoesNotMovePointer(t *testing.T) {
	fx := newFixture(t, nil)
	s := fx.createSession(t, raid.KindStandalone, 10)
	fx.join(t, s.ID, "a")
	fx.actors.add("warden", true)
	if _, err := fx.coord.Join(context.Background(), s.ID, "warden"); err != nil {
		t.Fatalf("Join warden: %v", err)
	}

	updated, _, err := fx.coord.TakeTurn(context.Background(), s.ID, "warden", 100)
	if err != nil {
		t.Fatalf("privileged TakeTurn: %v", err)
	}
	if updated.CurrentHolder().ActorID != "a" {
		t.Fatalf("holder = %s, want a (incumbent keeps turn)", updated.CurrentHolder().ActorID)
	}
	if updated.Participant("warden").DamageDealt != 3 {
		t.Fatalf("warden damage = %d, want 3", updated.Participant("warden").DamageDealt)
	}
}

// conflictStore injects a single out-of-band write before the next Update
// after arm() is called, simulating a concurrent writer winning the race.
type conflictStore struct {
	raid.Store
	interfere func(*raid.Session)
	mu        sync.Mutex
	armed     bool
}

func (cs *conflictStore) arm() {
	cs.mu.Lock()
	cs.armed = true
	cs.mu.Unlock()
}

func (cs *conflictStore) Update(ctx context.Context, s *raid.Session) error {
	cs.mu.Lock()
	fire := cs.armed
	cs.armed = false
	cs.mu.Unlock()
	if fire {
		if other, err := cs.Store.Get(ctx, s.ID); err == nil {
			cs.interfere(other)
			_ = cs.Store.Update(ctx, other)
		}
	}
	return cs.Store.Update(ctx, s)
}

func TestTakeTurnLostRaceSurfacesTurnAlreadyAdvanced(t *testing.T) {
	inner := memory.NewStore()
	cs := &conflictStore{Store: inner, interfere: func(s *raid.Session) {
		s.CurrentTurn = (s.CurrentTurn + 1) % len(s.Participants)
	}}
	fx := newFixture(t, cs)
	s := fx.createSession(t, raid.KindStandalone, 10)
	fx.join(t, s.ID, "a", "b")
	cs.arm()

	_, _, err := fx.coord.TakeTurn(context.Background(), s.ID, "a", 100)
	if !errors.Is(err, raid.ErrTurnAlreadyAdvanced) {
		t.Fatalf("TakeTurn = %v, want ErrTurnAlreadyAdvanced", err)
	}

	// The losing roll must not have been applied.
	got, _ := inner.Get(context.Background(), s.ID)
	if got.Monster.CurrentHearts != 10 {
		t.Fatalf("hearts = %d, want 10 (roll must not apply)", got.Monster.CurrentHearts)
	}
	if got.Participant("a").DamageDealt != 0 {
		t.Fatal("losing roll credited damage")
	}
}

func TestTakeTurnRetriesWhenConflictKeepsHolder(t *testing.T) {
	inner := memory.NewStore()
	cs := &conflictStore{Store: inner, interfere: func(s *raid.Session) {
		// A join bumps the version without moving the turn.
		s.Participants = append(s.Participants, raid.Participant{ActorID: "late", DisplayName: "late"})
	}}
	fx := newFixture(t, cs)
	s := fx.createSession(t, raid.KindStandalone, 10)
	fx.join(t, s.ID, "a", "b")
	cs.arm()

	updated, _, err := fx.coord.TakeTurn(context.Background(), s.ID, "a", 70)
	if err != nil {
		t.Fatalf("TakeTurn after benign conflict: %v", err)
	}
	if updated.Monster.CurrentHearts != 9 {
		t.Fatalf("hearts = %d, want 9 (applied exactly once)", updated.Monster.CurrentHearts)
	}
	if updated.Participant("a").DamageDealt != 1 {
		t.Fatalf("damage = %d, want 1", updated.Participant("a").DamageDealt)
	}
}

func TestConcurrentTakeTurnSingleWinner(t *testing.T) {
	fx := newFixture(t, nil)
	s := fx.createSession(t, raid.KindStandalone, 10)
	fx.join(t, s.ID, "a", "b")

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, results[i] = fx.coord.TakeTurn(context.Background(), s.ID, "a", 70)
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range results {
		if err == nil {
			successes++
			continue
		}
		if !errors.Is(err, raid.ErrTurnAlreadyAdvanced) && !errors.Is(err, raid.ErrNotYourTurn) {
			t.Fatalf("unexpected loser error: %v", err)
		}
	}
	if successes != 1 {
		t.Fatalf("successes = %d, want exactly 1", successes)
	}

	got, _ := fx.store.Get(context.Background(), s.ID)
	if got.Monster.CurrentHearts != 9 {
		t.Fatalf("hearts = %d, want 9 (one applied turn)", got.Monster.CurrentHearts)
	}
	if got.Participant("a").RoundsParticipated != 1 {
		t.Fatalf("rounds = %d, want 1", got.Participant("a").RoundsParticipated)
	}
}

func TestLeaveRemovesAndRecordsEligibility(t *testing.T) {
	fx := newFixture(t, nil)
	s := fx.createSession(t, raid.KindStandalone, 10)
	fx.join(t, s.ID, "a", "b")

	// a deals damage, becoming loot-eligible, then leaves.
	if _, _, err := fx.coord.TakeTurn(context.Background(), s.ID, "a", 70); err != nil {
		t.Fatalf("TakeTurn: %v", err)
	}
	updated, err := fx.coord.Leave(context.Background(), s.ID, "a")
	if err != nil {
		t.Fatalf("Leave: %v", err)
	}
	if updated.Participant("a") != nil {
		t.Fatal("a still participating after Leave")
	}
	if len(updated.LootEligibleRemoved) != 1 || updated.LootEligibleRemoved[0].ActorID != "a" {
		t.Fatalf("LootEligibleRemoved = %+v", updated.LootEligibleRemoved)
	}

	// b finishes the monster; the departed a still receives an award.
	for {
		got, _, err := fx.coord.TakeTurn(context.Background(), s.ID, "b", 100)
		if err != nil {
			t.Fatalf("TakeTurn b: %v", err)
		}
		if got.Status == raid.StatusCompleted {
			found := false
			for _, aw := range got.Awards {
				if aw.ActorID == "a" {
					found = true
				}
			}
			if !found {
				t.Fatalf("departed eligible participant missing from awards: %+v", got.Awards)
			}
			return
		}
	}
}

func TestLeaveIneligibleNotRecorded(t *testing.T) {
	fx := newFixture(t, nil)
	s := fx.createSession(t, raid.KindStandalone, 10)
	fx.join(t, s.ID, "a", "b")

	updated, err := fx.coord.Leave(context.Background(), s.ID, "a")
	if err != nil {
		t.Fatalf("Leave: %v", err)
	}
	if len(updated.LootEligibleRemoved) != 0 {
		t.Fatalf("ineligible departure recorded: %+v", updated.LootEligibleRemoved)
	}
}

func TestLeaveExpeditionRejected(t *testing.T) {
	fx := newFixture(t, nil)
	s := fx.createSession(t, raid.KindExpedition, 10)
	fx.join(t, s.ID, "a", "b")

	if _, err := fx.coord.Leave(context.Background(), s.ID, "a"); !errors.Is(err, raid.ErrCannotLeaveExpedition) {
		t.Fatalf("Leave = %v, want ErrCannotLeaveExpedition", err)
	}
	got, _ := fx.store.Get(context.Background(), s.ID)
	if len(got.Participants) != 2 {
		t.Fatalf("participants = %d, want 2 (unchanged)", len(got.Participants))
	}
}

func TestLeaveByHolderMovesPointer(t *testing.T) {
	fx := newFixture(t, nil)
	s := fx.createSession(t, raid.KindStandalone, 10)
	fx.join(t, s.ID, "a", "b", "c")

	updated, err := fx.coord.Leave(context.Background(), s.ID, "a")
	if err != nil {
		t.Fatalf("Leave: %v", err)
	}
	if updated.CurrentHolder().ActorID != "b" {
		t.Fatalf("holder = %s, want b", updated.CurrentHolder().ActorID)
	}
}

func TestLeaveLastParticipantExpiresSession(t *testing.T) {
	fx := newFixture(t, nil)
	s := fx.createSession(t, raid.KindStandalone, 10)
	fx.join(t, s.ID, "a")

	updated, err := fx.coord.Leave(context.Background(), s.ID, "a")
	if err != nil {
		t.Fatalf("Leave: %v", err)
	}
	if updated.Status != raid.StatusExpired {
		t.Fatalf("Status = %s, want expired", updated.Status)
	}
	fx.timers.mu.Lock()
	defer fx.timers.mu.Unlock()
	if fx.timers.cancels[s.ID] == 0 {
		t.Fatal("expired session timer not cancelled")
	}
}

func TestCheckExpirationIdempotent(t *testing.T) {
	fx := newFixture(t, nil)
	past := &raid.Session{
		ID:          "old",
		LocationKey: "akkala",
		Monster:     raid.Monster{Name: "hinox", Tier: 3, CurrentHearts: 10, MaxHearts: 10},
		Participants: []raid.Participant{
			{ActorID: "a", DisplayName: "a"},
		},
		Status:    raid.StatusActive,
		Kind:      raid.KindStandalone,
		ExpiresAt: time.Now().UTC().Add(-time.Hour),
		Version:   1,
	}
	if err := fx.store.Create(context.Background(), past); err != nil {
		t.Fatalf("Create: %v", err)
	}

	first, err := fx.coord.CheckExpiration(context.Background(), "old")
	if err != nil {
		t.Fatalf("CheckExpiration: %v", err)
	}
	if first.Status != raid.StatusExpired {
		t.Fatalf("Status = %s, want expired", first.Status)
	}
	if first.Version != 2 {
		t.Fatalf("Version = %d, want 2", first.Version)
	}

	second, err := fx.coord.CheckExpiration(context.Background(), "old")
	if err != nil {
		t.Fatalf("second CheckExpiration: %v", err)
	}
	if second.Version != 2 {
		t.Fatalf("idempotent call changed version: %d", second.Version)
	}
}

func TestInspectRunsExpirationCheck(t *testing.T) {
	fx := newFixture(t, nil)
	s := fx.createSession(t, raid.KindStandalone, 10)
	fx.join(t, s.ID, "a")

	got, err := fx.coord.Inspect(context.Background(), s.ID)
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if got.Status != raid.StatusActive {
		t.Fatalf("Status = %s, want active", got.Status)
	}
}

func TestForceSkipAdvancesWithZeroDamage(t *testing.T) {
	fx := newFixture(t, nil)
	s := fx.createSession(t, raid.KindStandalone, 10)
	fx.join(t, s.ID, "a", "b")

	before, _ := fx.store.Get(context.Background(), s.ID)

	updated, err := fx.coord.ForceSkip(context.Background(), s.ID)
	if err != nil {
		t.Fatalf("ForceSkip: %v", err)
	}
	if updated.CurrentHolder().ActorID != "b" {
		t.Fatalf("holder = %s, want b", updated.CurrentHolder().ActorID)
	}
	if updated.Version != before.Version+1 {
		t.Fatalf("Version = %d, want %d", updated.Version, before.Version+1)
	}
	if updated.Monster.CurrentHearts != 10 {
		t.Fatal("forced skip exchanged damage")
	}
	// The skipped holder did not act; no round credit.
	if updated.Participant("a").RoundsParticipated != 0 {
		t.Fatal("forced skip incremented rounds")
	}
	fx.notifier.mu.Lock()
	skips := len(fx.notifier.skips)
	fx.notifier.mu.Unlock()
	if skips != 1 {
		t.Fatalf("skip events = %d, want 1", skips)
	}
}

func TestForceSkipLostRaceIsNoOp(t *testing.T) {
	inner := memory.NewStore()
	cs := &conflictStore{Store: inner, interfere: func(s *raid.Session) {
		// A legitimate turn lands first: the holder acts and the pointer
		// moves to the next participant.
		s.Participant("a").DamageDealt++
		s.Participant("a").RoundsParticipated++
		s.Monster.CurrentHearts--
		s.CurrentTurn = (s.CurrentTurn + 1) % len(s.Participants)
	}}
	fx := newFixture(t, cs)
	s := fx.createSession(t, raid.KindStandalone, 10)
	fx.join(t, s.ID, "a", "b", "c")
	cs.arm()

	updated, err := fx.coord.ForceSkip(context.Background(), s.ID)
	if err != nil {
		t.Fatalf("ForceSkip after lost race: %v", err)
	}
	// The new holder keeps their full window; the skip applied to nobody.
	if updated.CurrentHolder().ActorID != "b" {
		t.Fatalf("holder = %s, want b (lost-race skip must not advance)", updated.CurrentHolder().ActorID)
	}
	got, _ := inner.Get(context.Background(), s.ID)
	if got.CurrentHolder().ActorID != "b" {
		t.Fatalf("stored holder = %s, want b", got.CurrentHolder().ActorID)
	}
	fx.notifier.mu.Lock()
	skips := len(fx.notifier.skips)
	fx.notifier.mu.Unlock()
	if skips != 0 {
		t.Fatalf("skip events = %d, want 0 for a lost race", skips)
	}
}

func TestForceSkipTerminalIsNoOp(t *testing.T) {
	fx := newFixture(t, nil)
	s := fx.createSession(t, raid.KindStandalone, 1)
	fx.join(t, s.ID, "a")
	if _, _, err := fx.coord.TakeTurn(context.Background(), s.ID, "a", 70); err != nil {
		t.Fatalf("TakeTurn: %v", err)
	}

	completed, _ := fx.store.Get(context.Background(), s.ID)
	got, err := fx.coord.ForceSkip(context.Background(), s.ID)
	if err != nil {
		t.Fatalf("ForceSkip: %v", err)
	}
	if got.Version != completed.Version {
		t.Fatal("no-op skip wrote the session")
	}
}

func TestForceSkipExpiresPastDeadline(t *testing.T) {
	fx := newFixture(t, nil)
	past := &raid.Session{
		ID:           "stale",
		LocationKey:  "akkala",
		Monster:      raid.Monster{Name: "hinox", Tier: 3, CurrentHearts: 10, MaxHearts: 10},
		Participants: []raid.Participant{{ActorID: "a"}},
		Status:       raid.StatusActive,
		Kind:         raid.KindStandalone,
		ExpiresAt:    time.Now().UTC().Add(-time.Minute),
		Version:      1,
	}
	if err := fx.store.Create(context.Background(), past); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := fx.coord.ForceSkip(context.Background(), "stale")
	if err != nil {
		t.Fatalf("ForceSkip: %v", err)
	}
	if got.Status != raid.StatusExpired {
		t.Fatalf("Status = %s, want expired", got.Status)
	}
}
