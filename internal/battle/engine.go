// Package battle runs the battle lifecycle: creation, start, the
// self-rescheduling tick loop, skills, end-of-battle results, and
// cancellation. Live state is held in memory by a Registry and synced to
// Storage at checkpoints (battle start, end of each tick, battle end).
package battle

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"idle-arena/internal/combat"
	"idle-arena/internal/cooldown"
	"idle-arena/internal/event"
	"idle-arena/internal/metrics"
)

// Options tunes the engine
type Options struct {
	TickInterval    time.Duration // Delay between ticks of one battle
	MaxTurns        int           // Default turn limit, 0 = unbounded
	ReviveOnWipe    bool          // Default for CreateParams.ReviveOnWipe
	ReviveTurnLimit int           // Turn limit forced on revive battles with no MaxTurns
	DefaultPolicy   string        // Target policy when CreateParams.Policy is empty
	SkillRate       float64       // Skill uses per second per caster
	SkillBurst      int
	Rewards         RewardTable
	Now             func() time.Time
}

// DefaultOptions returns the standard engine tuning
func DefaultOptions() Options {
	return Options{
		TickInterval:    100 * time.Millisecond,
		ReviveTurnLimit: 3000,
		DefaultPolicy:   combat.PolicyLowestHealth,
		SkillRate:       2,
		SkillBurst:      2,
		Rewards:         DefaultRewardTable(),
		Now:             time.Now,
	}
}

// Deps are the collaborators the engine drives
type Deps struct {
	Storage   Storage
	Roster    Roster
	Notifier  Notifier // Optional
	Scheduler Scheduler
	Queue     event.Enqueuer
	Cooldowns *cooldown.Manager // Optional, a fresh manager is created when nil
}

// Engine owns live battles and runs their ticks
type Engine struct {
	store     Storage
	roster    Roster
	notifier  Notifier
	scheduler Scheduler
	queue     event.Enqueuer
	cooldowns *cooldown.Manager
	registry  *Registry
	opts      Options

	// Per-caster skill limiters, keyed by battleID + "/" + casterID
	skillLimiters sync.Map
}

// NewEngine creates an engine. Zero-valued options fall back to DefaultOptions.
func NewEngine(deps Deps, opts Options) *Engine {
	def := DefaultOptions()
	if opts.TickInterval <= 0 {
		opts.TickInterval = def.TickInterval
	}
	if opts.ReviveTurnLimit <= 0 {
		opts.ReviveTurnLimit = def.ReviveTurnLimit
	}
	if opts.DefaultPolicy == "" {
		opts.DefaultPolicy = def.DefaultPolicy
	}
	if opts.SkillRate <= 0 {
		opts.SkillRate = def.SkillRate
	}
	if opts.SkillBurst <= 0 {
		opts.SkillBurst = def.SkillBurst
	}
	if opts.Rewards.KindMultipliers == nil {
		opts.Rewards = def.Rewards
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	notifier := deps.Notifier
	if notifier == nil {
		notifier = nopNotifier{}
	}
	cooldowns := deps.Cooldowns
	if cooldowns == nil {
		cooldowns = cooldown.NewManager()
	}

	return &Engine{
		store:     deps.Storage,
		roster:    deps.Roster,
		notifier:  notifier,
		scheduler: deps.Scheduler,
		queue:     deps.Queue,
		cooldowns: cooldowns,
		registry:  NewRegistry(),
		opts:      opts,
	}
}

// CreateParams describes a new battle
type CreateParams struct {
	CharacterID string
	EnemyID     string
	Kind        Kind
	RegionID    string   // Optional
	Adds        []string // Extra enemy ids fighting alongside EnemyID
	Policy      string   // Target policy name, empty = engine default
	// ReviveOnWipe revives team 0 instead of ending the battle when it is
	// wiped out. nil = engine default. Such battles always have a turn limit.
	ReviveOnWipe *bool
	MaxTurns     int // 0 = engine default
}

// CreateBattle builds a battle in Preparing with the character on team 0 and
// the enemies on team 1. Returns the new battle id.
func (e *Engine) CreateBattle(ctx context.Context, p CreateParams) (string, error) {
	if p.Kind > KindRaid {
		return "", fmt.Errorf("create battle: unknown kind %d", p.Kind)
	}
	policyName := p.Policy
	if policyName == "" {
		policyName = e.opts.DefaultPolicy
	}
	targeter, ok := combat.PolicyByName(policyName)
	if !ok {
		return "", fmt.Errorf("create battle: unknown target policy %q", policyName)
	}

	character, err := e.roster.Character(ctx, p.CharacterID)
	if err != nil {
		return "", fmt.Errorf("create battle: character %s: %w", p.CharacterID, err)
	}
	enemyIDs := append([]string{p.EnemyID}, p.Adds...)
	enemies := make([]Profile, 0, len(enemyIDs))
	for _, id := range enemyIDs {
		enemy, err := e.roster.Enemy(ctx, id)
		if err != nil {
			return "", fmt.Errorf("create battle: enemy %s: %w", id, err)
		}
		enemies = append(enemies, enemy)
	}

	revive := e.opts.ReviveOnWipe
	if p.ReviveOnWipe != nil {
		revive = *p.ReviveOnWipe
	}
	maxTurns := p.MaxTurns
	if maxTurns <= 0 {
		maxTurns = e.opts.MaxTurns
	}
	if revive && maxTurns <= 0 {
		maxTurns = e.opts.ReviveTurnLimit
	}

	b := Battle{
		ID:           uuid.NewString(),
		CharacterID:  p.CharacterID,
		EnemyID:      p.EnemyID,
		RegionID:     p.RegionID,
		Kind:         p.Kind,
		Status:       StatusPreparing,
		Policy:       targeter.Name(),
		ReviveOnWipe: revive,
		MaxTurns:     maxTurns,
		CreatedAt:    e.opts.Now(),
	}

	participants := make([]*Participant, 0, 1+len(enemies))
	participants = append(participants, newParticipant(b.ID, character, combat.TeamPlayers, true))
	for _, enemy := range enemies {
		participants = append(participants, newParticipant(b.ID, enemy, combat.TeamEnemies, false))
	}

	lb := newLiveBattle(b, participants, targeter)
	for _, part := range participants {
		lb.dirty[part.ID] = true
	}
	e.registry.add(lb)
	metrics.SetActiveBattles(e.registry.Len())

	lb.mu.Lock()
	e.checkpoint(ctx, lb)
	lb.mu.Unlock()

	log.Printf("🆕 Battle %s created: %s vs %s (%s, %d enemies)", b.ID, character.Name, enemies[0].Name, b.Kind, len(enemies))
	return b.ID, nil
}

func newParticipant(battleID string, prof Profile, team int, isPlayer bool) *Participant {
	return &Participant{
		Fighter:  combat.NewFighter(uuid.NewString(), prof.Name, team, prof.Level, prof.MaxHealth, prof.Stats),
		BattleID: battleID,
		SourceID: prof.ID,
		IsPlayer: isPlayer,
	}
}

// StartBattle moves a Preparing battle to Active and schedules its first tick
func (e *Engine) StartBattle(ctx context.Context, battleID string) error {
	lb := e.registry.get(battleID)
	if lb == nil {
		return e.notLive(ctx, battleID, "start")
	}

	lb.mu.Lock()
	defer lb.mu.Unlock()

	b := &lb.battle
	if b.Status != StatusPreparing {
		return fmt.Errorf("start battle %s (%s): %w", battleID, b.Status, ErrInvalidState)
	}
	team0, team1 := lb.teamSizes()
	if team0 == 0 || team1 == 0 {
		return fmt.Errorf("start battle %s: %w", battleID, ErrUnbalancedTeams)
	}

	b.Status = StatusActive
	b.StartedAt = e.opts.Now()
	for _, p := range lb.participants {
		lb.dirty[p.ID] = true
	}
	e.checkpoint(ctx, lb)

	e.emit(lb, event.New(event.EventTypeBattleStarted, lb.key, 0, event.BattleStartedPayload{
		Battle:       lb.key,
		Kind:         uint8(b.Kind),
		Policy:       combat.PolicyCode(b.Policy),
		Participants: uint16(len(lb.participants)),
	}.Encode()))
	e.notifier.Publish(Notification{Type: NotifyBattleStarted, BattleID: b.ID, At: b.StartedAt})

	e.scheduleTick(b.ID)
	log.Printf("⚔️ Battle %s started (%d vs %d, policy %s)", b.ID, team0, team1, b.Policy)
	return nil
}

// StopBattle cancels a battle that hasn't ended. No rewards are computed.
// A tick already in flight finishes first; no further tick runs.
func (e *Engine) StopBattle(ctx context.Context, battleID string) error {
	lb := e.registry.get(battleID)
	if lb == nil {
		return e.cancelStored(ctx, battleID)
	}

	lb.mu.Lock()
	defer lb.mu.Unlock()

	b := &lb.battle
	if b.Status.Terminal() {
		return fmt.Errorf("stop battle %s (%s): %w", battleID, b.Status, ErrInvalidState)
	}

	e.scheduler.Cancel(battleID)
	b.Status = StatusCancelled
	b.EndedAt = e.opts.Now()
	e.checkpoint(context.WithoutCancel(ctx), lb)
	e.release(b.ID)

	alive0, alive1 := lb.alive()
	e.emit(lb, event.New(event.EventTypeBattleCancelled, lb.key, 0, event.TickPayload{
		Battle:     lb.key,
		Turn:       uint32(b.Turn),
		AliveTeam0: uint16(alive0),
		AliveTeam1: uint16(alive1),
		ElapsedMs:  elapsedMs(b.StartedAt, b.EndedAt),
	}.Encode()))
	e.notifier.Publish(Notification{Type: NotifyBattleCancelled, BattleID: b.ID, Turn: b.Turn, At: b.EndedAt})
	metrics.RecordBattleEnded("cancelled")
	log.Printf("🛑 Battle %s cancelled at turn %d", b.ID, b.Turn)
	return nil
}

// cancelStored cancels a battle that only exists in storage, e.g. one that
// was Active when the process stopped and was never resumed.
func (e *Engine) cancelStored(ctx context.Context, battleID string) error {
	b, err := e.store.GetBattle(ctx, battleID)
	if err != nil {
		return fmt.Errorf("stop battle %s: %w", battleID, err)
	}
	if b.Status.Terminal() {
		return fmt.Errorf("stop battle %s (%s): %w", battleID, b.Status, ErrInvalidState)
	}
	b.Status = StatusCancelled
	b.EndedAt = e.opts.Now()
	if err := e.store.SaveBattle(ctx, b); err != nil {
		return fmt.Errorf("stop battle %s: %w", battleID, err)
	}
	metrics.RecordBattleEnded("cancelled")
	log.Printf("🛑 Stored battle %s cancelled", battleID)
	return nil
}

// ResumeBattle reloads an Active battle from storage into the registry and
// schedules its next tick. Used after a restart.
func (e *Engine) ResumeBattle(ctx context.Context, battleID string) error {
	if e.registry.get(battleID) != nil {
		return fmt.Errorf("resume battle %s: already live: %w", battleID, ErrInvalidState)
	}

	b, err := e.store.GetBattle(ctx, battleID)
	if err != nil {
		return fmt.Errorf("resume battle %s: %w", battleID, err)
	}
	if b.Status != StatusActive {
		return fmt.Errorf("resume battle %s (%s): %w", battleID, b.Status, ErrInvalidState)
	}
	stored, err := e.store.GetParticipants(ctx, battleID)
	if err != nil {
		return fmt.Errorf("resume battle %s: participants: %w", battleID, err)
	}

	targeter, ok := combat.PolicyByName(b.Policy)
	if !ok {
		log.Printf("⚠️ Battle %s has unknown policy %q, using %s", battleID, b.Policy, e.opts.DefaultPolicy)
		targeter, _ = combat.PolicyByName(e.opts.DefaultPolicy)
		b.Policy = targeter.Name()
	}

	participants := make([]*Participant, len(stored))
	for i := range stored {
		participants[i] = &stored[i]
	}
	lb := newLiveBattle(b, participants, targeter)
	team0, team1 := lb.teamSizes()
	if team0 == 0 || team1 == 0 {
		return fmt.Errorf("resume battle %s: %w", battleID, ErrUnbalancedTeams)
	}
	if !e.registry.add(lb) {
		return fmt.Errorf("resume battle %s: already live: %w", battleID, ErrInvalidState)
	}
	metrics.SetActiveBattles(e.registry.Len())

	e.scheduleTick(battleID)
	log.Printf("🔁 Battle %s resumed at turn %d", battleID, b.Turn)
	return nil
}

// ResumeAll resumes every Active battle the store knows about.
// Battles that can't be resumed are logged and skipped.
func (e *Engine) ResumeAll(ctx context.Context, browser Browser) (int, error) {
	battles, err := browser.ListBattles(ctx, StatusActive)
	if err != nil {
		return 0, fmt.Errorf("resume battles: %w", err)
	}
	resumed := 0
	for _, b := range battles {
		if err := e.ResumeBattle(ctx, b.ID); err != nil {
			log.Printf("⚠️ %v", err)
			continue
		}
		resumed++
	}
	return resumed, nil
}

// GetStatus returns a snapshot of a live battle, or of a stored one with its
// result when it has ended.
func (e *Engine) GetStatus(ctx context.Context, battleID string) (Snapshot, error) {
	if lb := e.registry.get(battleID); lb != nil {
		lb.mu.Lock()
		defer lb.mu.Unlock()
		return lb.snapshot(), nil
	}

	b, err := e.store.GetBattle(ctx, battleID)
	if err != nil {
		return Snapshot{}, fmt.Errorf("battle status %s: %w", battleID, err)
	}
	participants, err := e.store.GetParticipants(ctx, battleID)
	if err != nil {
		return Snapshot{}, fmt.Errorf("battle status %s: participants: %w", battleID, err)
	}
	snap := Snapshot{Battle: b, Participants: participants}
	if b.Status == StatusCompleted {
		result, err := e.store.GetResult(ctx, battleID)
		switch {
		case err == nil:
			snap.Result = &result
		case !errors.Is(err, ErrNotFound):
			return Snapshot{}, fmt.Errorf("battle status %s: result: %w", battleID, err)
		}
	}
	return snap, nil
}

// ActiveBattles returns the ids of live battles
func (e *Engine) ActiveBattles() []string {
	return e.registry.IDs()
}

// notLive builds the error for a lifecycle call on a battle that isn't in
// the registry: invalid state if storage knows it, not found otherwise.
func (e *Engine) notLive(ctx context.Context, battleID, op string) error {
	b, err := e.store.GetBattle(ctx, battleID)
	if err != nil {
		return fmt.Errorf("%s battle %s: %w", op, battleID, err)
	}
	return fmt.Errorf("%s battle %s (%s, not live): %w", op, battleID, b.Status, ErrInvalidState)
}

// release drops all live state of a battle that reached a terminal state
func (e *Engine) release(battleID string) {
	e.registry.remove(battleID)
	e.scheduler.Cancel(battleID)
	e.cooldowns.ClearBattleRecords(battleID)
	e.forgetLimiters(battleID)
	metrics.SetActiveBattles(e.registry.Len())
}

func (e *Engine) scheduleTick(battleID string) {
	e.scheduler.Schedule(battleID, e.opts.TickInterval, func(ctx context.Context) {
		e.ProcessTick(ctx, battleID)
	})
}

// emit enqueues a record. A full lane drops the record.
func (e *Engine) emit(lb *liveBattle, rec event.Record) {
	if !e.queue.Enqueue(rec) {
		log.Printf("⚠️ Event queue full, dropped %s for battle %s", rec.Type, lb.battle.ID)
	}
}

// checkpoint saves the battle row, changed participants, and pending log
// entries. Failures are logged; changed participants stay marked for the
// next checkpoint. Caller holds lb.mu.
func (e *Engine) checkpoint(ctx context.Context, lb *liveBattle) {
	if err := e.store.SaveBattle(ctx, lb.battle); err != nil {
		log.Printf("⚠️ Failed to save battle %s: %v", lb.battle.ID, err)
		metrics.RecordPersistFailure("battle")
	}

	for _, p := range lb.participants {
		if !lb.dirty[p.ID] {
			continue
		}
		if err := e.store.SaveParticipant(ctx, *p); err != nil {
			log.Printf("⚠️ Failed to save participant %s of battle %s: %v", p.ID, lb.battle.ID, err)
			metrics.RecordPersistFailure("participant")
			continue
		}
		delete(lb.dirty, p.ID)
	}

	for _, entry := range lb.log {
		if err := e.store.SaveEvent(ctx, entry); err != nil {
			log.Printf("⚠️ Failed to save %s log entry for battle %s: %v", entry.Type, lb.battle.ID, err)
			metrics.RecordPersistFailure("event")
			break
		}
	}
	lb.log = lb.log[:0]
}
