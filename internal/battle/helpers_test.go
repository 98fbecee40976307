package battle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"idle-arena/internal/combat"
	"idle-arena/internal/event"
)

// fakeStore is an in-memory Storage with switchable failures
type fakeStore struct {
	mu           sync.Mutex
	battles      map[string]Battle
	participants map[string]map[string]Participant
	order        map[string][]string
	events       []LogEntry
	results      map[string]Result
	failWrites   bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		battles:      make(map[string]Battle),
		participants: make(map[string]map[string]Participant),
		order:        make(map[string][]string),
		results:      make(map[string]Result),
	}
}

var errDiskFull = errors.New("disk full")

func (s *fakeStore) GetBattle(_ context.Context, id string) (Battle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.battles[id]
	if !ok {
		return Battle{}, fmt.Errorf("battle %s: %w", id, ErrNotFound)
	}
	return b, nil
}

func (s *fakeStore) SaveBattle(_ context.Context, b Battle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWrites {
		return errDiskFull
	}
	s.battles[b.ID] = b
	return nil
}

func (s *fakeStore) SaveParticipant(_ context.Context, p Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWrites {
		return errDiskFull
	}
	ps, ok := s.participants[p.BattleID]
	if !ok {
		ps = make(map[string]Participant)
		s.participants[p.BattleID] = ps
	}
	if _, exists := ps[p.ID]; !exists {
		s.order[p.BattleID] = append(s.order[p.BattleID], p.ID)
	}
	ps[p.ID] = p
	return nil
}

func (s *fakeStore) GetParticipants(_ context.Context, battleID string) ([]Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Participant, 0, len(s.order[battleID]))
	for _, id := range s.order[battleID] {
		out = append(out, s.participants[battleID][id])
	}
	return out, nil
}

func (s *fakeStore) SaveEvent(_ context.Context, e LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWrites {
		return errDiskFull
	}
	s.events = append(s.events, e)
	return nil
}

func (s *fakeStore) SaveResult(_ context.Context, r Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWrites {
		return errDiskFull
	}
	s.results[r.BattleID] = r
	return nil
}

func (s *fakeStore) GetResult(_ context.Context, battleID string) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.results[battleID]
	if !ok {
		return Result{}, fmt.Errorf("result %s: %w", battleID, ErrNotFound)
	}
	return r, nil
}

func (s *fakeStore) setFailWrites(v bool) {
	s.mu.Lock()
	s.failWrites = v
	s.mu.Unlock()
}

// fakeRoster serves fixed profiles
type fakeRoster struct {
	characters map[string]Profile
	enemies    map[string]Profile
	skills     map[string]Skill
}

func (r fakeRoster) Character(_ context.Context, id string) (Profile, error) {
	if p, ok := r.characters[id]; ok {
		return p, nil
	}
	return Profile{}, fmt.Errorf("character %s: %w", id, ErrNotFound)
}

func (r fakeRoster) Enemy(_ context.Context, id string) (Profile, error) {
	if p, ok := r.enemies[id]; ok {
		return p, nil
	}
	return Profile{}, fmt.Errorf("enemy %s: %w", id, ErrNotFound)
}

func (r fakeRoster) Skill(_ context.Context, id string) (Skill, error) {
	if s, ok := r.skills[id]; ok {
		return s, nil
	}
	return Skill{}, fmt.Errorf("skill %s: %w", id, ErrNotFound)
}

func testRoster() fakeRoster {
	return fakeRoster{
		characters: map[string]Profile{
			"hero": {ID: "hero", Name: "Hero", Level: 5, MaxHealth: 100,
				Stats: combat.Stats{AttackPower: 20, AttacksPerSecond: 1, CriticalMultiplier: 1}},
			"weakling": {ID: "weakling", Name: "Weakling", Level: 1, MaxHealth: 10,
				Stats: combat.Stats{AttackPower: 1, AttacksPerSecond: 1, CriticalMultiplier: 1}},
		},
		enemies: map[string]Profile{
			"slime": {ID: "slime", Name: "Slime", Level: 3, MaxHealth: 80,
				Stats: combat.Stats{AttackPower: 5, AttacksPerSecond: 1, CriticalMultiplier: 1}},
			"ogre": {ID: "ogre", Name: "Ogre", Level: 10, MaxHealth: 5000,
				Stats: combat.Stats{AttackPower: 50, AttacksPerSecond: 2, CriticalMultiplier: 1}},
			"dragon": {ID: "dragon", Name: "Dragon", Level: 8, MaxHealth: 40, Loot: []string{"scale", "fang"},
				Stats: combat.Stats{AttackPower: 1, AttacksPerSecond: 1, CriticalMultiplier: 1}},
		},
		skills: map[string]Skill{
			"smite": {ID: "smite", Name: "Smite", Power: 2},
			"mend":  {ID: "mend", Name: "Mend", Heal: 30},
		},
	}
}

// manualScheduler holds scheduled work until the test runs it
type manualScheduler struct {
	mu      sync.Mutex
	pending map[string]func(ctx context.Context)
	cancels int
}

func newManualScheduler() *manualScheduler {
	return &manualScheduler{pending: make(map[string]func(ctx context.Context))}
}

func (s *manualScheduler) Schedule(battleID string, _ time.Duration, fn func(ctx context.Context)) {
	s.mu.Lock()
	s.pending[battleID] = fn
	s.mu.Unlock()
}

func (s *manualScheduler) Cancel(battleID string) {
	s.mu.Lock()
	delete(s.pending, battleID)
	s.cancels++
	s.mu.Unlock()
}

// run executes the pending work for a battle. Returns false if none.
func (s *manualScheduler) run(battleID string) bool {
	s.mu.Lock()
	fn, ok := s.pending[battleID]
	delete(s.pending, battleID)
	s.mu.Unlock()
	if !ok {
		return false
	}
	fn(context.Background())
	return true
}

func (s *manualScheduler) has(battleID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pending[battleID]
	return ok
}

// fakeClock is a settable time source
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// recordingQueue keeps every enqueued record
type recordingQueue struct {
	mu      sync.Mutex
	records []event.Record
}

func (q *recordingQueue) Enqueue(rec event.Record) bool {
	q.mu.Lock()
	q.records = append(q.records, rec)
	q.mu.Unlock()
	return true
}

func (q *recordingQueue) count(t event.EventType) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, r := range q.records {
		if r.Type == t {
			n++
		}
	}
	return n
}

// recordingNotifier keeps every notification
type recordingNotifier struct {
	mu    sync.Mutex
	notes []Notification
}

func (n *recordingNotifier) Publish(note Notification) {
	n.mu.Lock()
	n.notes = append(n.notes, note)
	n.mu.Unlock()
}

func (n *recordingNotifier) count(typ string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, note := range n.notes {
		if note.Type == typ {
			c++
		}
	}
	return c
}

type harness struct {
	engine   *Engine
	store    *fakeStore
	sched    *manualScheduler
	clock    *fakeClock
	queue    *recordingQueue
	notifier *recordingNotifier
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store:    newFakeStore(),
		sched:    newManualScheduler(),
		clock:    &fakeClock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)},
		queue:    &recordingQueue{},
		notifier: &recordingNotifier{},
	}
	h.engine = h.newEngine()
	return h
}

// newEngine builds another engine over the same collaborators, as after a restart
func (h *harness) newEngine() *Engine {
	opts := DefaultOptions()
	opts.Now = h.clock.Now
	return NewEngine(Deps{
		Storage:   h.store,
		Roster:    testRoster(),
		Notifier:  h.notifier,
		Scheduler: h.sched,
		Queue:     h.queue,
	}, opts)
}

// runUntilDone advances 100ms and runs the next tick until nothing is scheduled
func (h *harness) runUntilDone(t *testing.T, battleID string, maxTicks int) int {
	t.Helper()
	ticks := 0
	for h.sched.has(battleID) {
		if ticks >= maxTicks {
			t.Fatalf("battle %s still running after %d ticks", battleID, maxTicks)
		}
		h.clock.Advance(100 * time.Millisecond)
		h.sched.run(battleID)
		ticks++
	}
	return ticks
}

func (h *harness) createAndStart(t *testing.T, p CreateParams) string {
	t.Helper()
	ctx := context.Background()
	id, err := h.engine.CreateBattle(ctx, p)
	if err != nil {
		t.Fatalf("CreateBattle failed: %v", err)
	}
	if err := h.engine.StartBattle(ctx, id); err != nil {
		t.Fatalf("StartBattle failed: %v", err)
	}
	return id
}
