package battle

import (
	"context"
	"log"
	"time"

	"idle-arena/internal/combat"
	"idle-arena/internal/event"
	"idle-arena/internal/metrics"
)

// DetermineOutcome evaluates the end condition from living counts per team.
// ended is false while both teams have someone standing. winningTeam is -1
// for a draw. The outcome is from team 0's side.
func DetermineOutcome(aliveTeam0, aliveTeam1 int) (outcome Outcome, winningTeam int, ended bool) {
	switch {
	case aliveTeam0 == 0 && aliveTeam1 == 0:
		return OutcomeDraw, -1, true
	case aliveTeam0 == 0:
		return OutcomeDefeat, combat.TeamEnemies, true
	case aliveTeam1 == 0:
		return OutcomeVictory, combat.TeamPlayers, true
	default:
		return 0, 0, false
	}
}

// ProcessTick runs one tick of a battle. Unknown or non-Active battles are
// logged and skipped; nothing here returns an error to the scheduler.
func (e *Engine) ProcessTick(ctx context.Context, battleID string) {
	lb := e.registry.get(battleID)
	if lb == nil {
		log.Printf("⚠️ Tick skipped: battle %s not found", battleID)
		return
	}

	lb.mu.Lock()
	defer lb.mu.Unlock()

	b := &lb.battle
	if b.Status != StatusActive {
		log.Printf("⚠️ Tick skipped: battle %s is %s", battleID, b.Status)
		return
	}
	if ctx.Err() != nil {
		return
	}

	started := time.Now()
	now := e.opts.Now()
	turn := b.Turn

	fighters := lb.fighters()
	actions := 0
	for _, p := range lb.participants {
		if !p.Alive {
			continue
		}
		if e.act(lb, p, fighters, turn, now) {
			actions++
		}
	}

	alive0, alive1 := lb.alive()
	outcome, winner, ended := DetermineOutcome(alive0, alive1)
	if ended && outcome == OutcomeDefeat && b.ReviveOnWipe {
		e.reviveTeam(lb, combat.TeamPlayers, turn, now)
		alive0, alive1 = lb.alive()
		ended = false
	}

	b.Turn++
	if !ended && b.MaxTurns > 0 && b.Turn >= b.MaxTurns {
		log.Printf("⏱️ Battle %s hit its turn limit (%d)", b.ID, b.MaxTurns)
		outcome, winner, ended = OutcomeDraw, -1, true
	}

	e.emit(lb, event.New(event.EventTypeTick, lb.key, 0, event.TickPayload{
		Battle:     lb.key,
		Turn:       uint32(turn),
		AliveTeam0: uint16(alive0),
		AliveTeam1: uint16(alive1),
		ElapsedMs:  elapsedMs(b.StartedAt, now),
	}.Encode()))

	if ended {
		e.complete(ctx, lb, outcome, winner, now)
	} else {
		e.checkpoint(ctx, lb)
		e.scheduleTick(b.ID)
	}

	elapsed := time.Since(started)
	e.emit(lb, event.New(event.EventTypeTickTiming, lb.key, 0, event.TimingPayload{
		Battle:         lb.key,
		DurationMicros: uint32(elapsed.Microseconds()),
		Actions:        uint16(actions),
		Turn:           uint32(turn),
	}.Encode()))
	metrics.RecordTick(elapsed)
}

// act performs one participant's auto-attack if its cooldown allows.
// Returns true when an attack was resolved.
func (e *Engine) act(lb *liveBattle, p *Participant, fighters []*combat.Fighter, turn int, now time.Time) bool {
	battleID := lb.battle.ID
	if !e.cooldowns.CanAttack(battleID, p.ID, p.Stats.AttacksPerSecond, now) {
		return false
	}

	target := lb.byFighter(lb.targeter.Select(&p.Fighter, fighters, lb.rng))
	if target == nil {
		return false
	}
	if !e.cooldowns.TryAttack(battleID, p.ID, p.Stats.AttacksPerSecond, now) {
		return false
	}

	e.emit(lb, event.New(event.EventTypeTargetSelected, event.ID(p.ID), event.ID(target.ID), event.TargetSelectedPayload{
		Battle:       lb.key,
		Policy:       combat.PolicyCode(lb.targeter.Name()),
		TargetHealth: int32(target.Health),
		Turn:         uint32(turn),
	}.Encode()))

	strike := lb.resolver.Strike(&p.Fighter, &target.Fighter, now, 1)
	e.applyStrike(lb, p, target, strike, event.EventTypeAttack, turn, now)
	return true
}

// applyStrike records the effects of a resolved strike: events, log
// entries, notifications, and the participant checkpoint mark.
// hitType is Attack for auto-attacks and SkillUsed for skills.
func (e *Engine) applyStrike(lb *liveBattle, actor, target *Participant, s combat.Strike, hitType event.EventType, turn int, now time.Time) {
	actorKey, targetKey := event.ID(actor.ID), event.ID(target.ID)
	payload := event.AttackPayload{
		Battle:    lb.key,
		Damage:    int32(s.Damage),
		Remaining: int32(s.Remaining),
		Turn:      uint32(turn),
		Critical:  s.Critical,
		Killed:    s.Killed,
	}.Encode()

	entry := LogEntry{BattleID: lb.battle.ID, Turn: turn, ActorID: actor.ID, TargetID: target.ID, At: now}
	note := Notification{BattleID: lb.battle.ID, Turn: turn, ActorID: actor.ID, TargetID: target.ID, At: now}

	if !s.Hit {
		e.emit(lb, event.New(event.EventTypeMiss, actorKey, targetKey, payload))
		entry.Type, note.Type = NotifyMiss, NotifyMiss
		lb.log = append(lb.log, entry)
		e.notifier.Publish(note)
		return
	}

	lb.dirty[target.ID] = true
	if hitType == event.EventTypeAttack {
		e.emit(lb, event.New(event.EventTypeAttack, actorKey, targetKey, payload))
		entry.Type, note.Type = NotifyAttack, NotifyAttack
	} else {
		entry.Type, note.Type = NotifySkill, NotifySkill
	}
	entry.Amount, entry.Critical = s.Damage, s.Critical
	note.Amount, note.Critical = s.Damage, s.Critical
	lb.log = append(lb.log, entry)
	e.notifier.Publish(note)

	if s.Killed {
		e.emit(lb, event.New(event.EventTypeDeath, targetKey, actorKey, event.DeathPayload{Battle: lb.key, Turn: uint32(turn)}.Encode()))
		lb.log = append(lb.log, LogEntry{BattleID: lb.battle.ID, Turn: turn, Type: NotifyDeath, ActorID: target.ID, TargetID: actor.ID, At: now})
		e.notifier.Publish(Notification{Type: NotifyDeath, BattleID: lb.battle.ID, Turn: turn, ActorID: target.ID, TargetID: actor.ID, At: now})
		log.Printf("💀 %s killed by %s in battle %s (turn %d)", target.Name, actor.Name, lb.battle.ID, turn)
	}
}

// reviveTeam brings every dead member of team back at full health
func (e *Engine) reviveTeam(lb *liveBattle, team, turn int, now time.Time) {
	for _, p := range lb.participants {
		if p.Team != team || !p.Revive() {
			continue
		}
		lb.dirty[p.ID] = true
		e.emit(lb, event.New(event.EventTypeHeal, event.ID(p.ID), event.ID(p.ID), event.HealPayload{
			Battle:    lb.key,
			Amount:    int32(p.MaxHealth),
			Remaining: int32(p.Health),
			Turn:      uint32(turn),
		}.Encode()))
		lb.log = append(lb.log, LogEntry{BattleID: lb.battle.ID, Turn: turn, Type: NotifyRevive, ActorID: p.ID, Amount: p.MaxHealth, At: now})
		e.notifier.Publish(Notification{Type: NotifyRevive, BattleID: lb.battle.ID, Turn: turn, ActorID: p.ID, Amount: p.MaxHealth, At: now})
	}
	log.Printf("✨ Team %d revived in battle %s (turn %d)", team, lb.battle.ID, turn)
}

// complete ends a battle: result, rewards, final checkpoint, release.
// Persistence ignores ctx cancellation so a shutdown mid-tick still records the end.
func (e *Engine) complete(ctx context.Context, lb *liveBattle, outcome Outcome, winner int, now time.Time) {
	ctx = context.WithoutCancel(ctx)
	b := &lb.battle
	b.Status = StatusCompleted
	b.EndedAt = now

	var loot []string
	if outcome == OutcomeVictory && b.Kind.DropsLoot() {
		enemy, err := e.roster.Enemy(ctx, b.EnemyID)
		if err != nil {
			log.Printf("⚠️ Loot table for %s unavailable: %v", b.EnemyID, err)
		} else {
			loot = enemy.Loot
		}
	}

	survivors := make([]string, 0, len(lb.participants))
	for _, p := range lb.participants {
		if p.Alive {
			survivors = append(survivors, p.ID)
		}
	}

	result := Result{
		BattleID:    b.ID,
		Outcome:     outcome,
		WinningTeam: winner,
		Duration:    b.EndedAt.Sub(b.StartedAt),
		Turns:       b.Turn,
		Survivors:   survivors,
		Rewards:     e.opts.Rewards.Compute(b.Kind, outcome, lb.participants, loot),
		CreatedAt:   now,
	}

	e.checkpoint(ctx, lb)
	if err := e.store.SaveResult(ctx, result); err != nil {
		log.Printf("⚠️ Failed to save result of battle %s: %v", b.ID, err)
		metrics.RecordPersistFailure("result")
	}
	e.release(b.ID)

	characterKey := event.ID(b.CharacterID)
	e.emit(lb, event.New(event.EventTypeRewardGranted, characterKey, lb.key, event.RewardPayload{
		Battle:     lb.key,
		Experience: uint32(result.Rewards.Experience),
		Gold:       uint32(result.Rewards.Gold),
		Items:      uint16(len(result.Rewards.Items)),
	}.Encode()))
	e.emit(lb, event.New(event.EventTypeBattleEnded, lb.key, characterKey, event.BattleEndedPayload{
		Battle:      lb.key,
		Outcome:     uint8(outcome),
		WinningTeam: int8(winner),
		Turns:       uint32(result.Turns),
		DurationMs:  uint32(result.Duration.Milliseconds()),
		Experience:  uint32(result.Rewards.Experience),
		Gold:        uint32(result.Rewards.Gold),
	}.Encode()))
	e.notifier.Publish(Notification{Type: NotifyBattleEnded, BattleID: b.ID, Turn: b.Turn, Outcome: outcome.String(), At: now})

	metrics.RecordBattleEnded(outcome.String())
	log.Printf("🏆 Battle %s ended: %s after %d turns (+%d xp, +%d gold, %d items)",
		b.ID, outcome, result.Turns, result.Rewards.Experience, result.Rewards.Gold, len(result.Rewards.Items))
}

func elapsedMs(from, to time.Time) uint32 {
	if from.IsZero() || to.Before(from) {
		return 0
	}
	return uint32(to.Sub(from).Milliseconds())
}
