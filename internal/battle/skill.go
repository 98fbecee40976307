package battle

import (
	"context"
	"fmt"
	"log"
	"strings"

	"golang.org/x/time/rate"

	"idle-arena/internal/event"
	"idle-arena/internal/metrics"
)

// SkillResult describes what a skill use did
type SkillResult struct {
	TargetID string `json:"targetId,omitempty"`
	Skipped  bool   `json:"skipped"` // Target was dead or missing
	Hit      bool   `json:"hit"`
	Critical bool   `json:"critical"`
	Killed   bool   `json:"killed"`
	Amount   int    `json:"amount"` // Damage dealt or health restored
}

// skillLimiter returns or creates the rate limiter for a caster
func (e *Engine) skillLimiter(battleID, casterID string) *rate.Limiter {
	key := battleID + "/" + casterID
	if l, ok := e.skillLimiters.Load(key); ok {
		return l.(*rate.Limiter)
	}
	l := rate.NewLimiter(rate.Limit(e.opts.SkillRate), e.opts.SkillBurst)
	actual, _ := e.skillLimiters.LoadOrStore(key, l)
	return actual.(*rate.Limiter)
}

// forgetLimiters drops the skill limiters of a finished battle
func (e *Engine) forgetLimiters(battleID string) {
	prefix := battleID + "/"
	e.skillLimiters.Range(func(key, _ any) bool {
		if strings.HasPrefix(key.(string), prefix) {
			e.skillLimiters.Delete(key)
		}
		return true
	})
}

// UseSkill has a participant use a skill in an Active battle.
// Damage skills strike an opponent (targetID, or the battle's target policy
// when empty); heal skills restore an ally (targetID, or the caster).
// A dead or missing target skips the effect without an error. Resource
// costs are checked by the caller before this is invoked.
func (e *Engine) UseSkill(ctx context.Context, battleID, casterID, skillID, targetID string) (SkillResult, error) {
	lb := e.registry.get(battleID)
	if lb == nil {
		return SkillResult{}, e.notLive(ctx, battleID, "use skill in")
	}
	skill, err := e.roster.Skill(ctx, skillID)
	if err != nil {
		return SkillResult{}, fmt.Errorf("skill %s: %w", skillID, err)
	}

	lb.mu.Lock()
	defer lb.mu.Unlock()

	b := &lb.battle
	if b.Status != StatusActive {
		metrics.RecordSkillRejected("state")
		return SkillResult{}, fmt.Errorf("skill in battle %s (%s): %w", battleID, b.Status, ErrInvalidState)
	}
	caster := lb.participant(casterID)
	if caster == nil {
		return SkillResult{}, fmt.Errorf("caster %s in battle %s: %w", casterID, battleID, ErrNotFound)
	}
	if !caster.Alive {
		metrics.RecordSkillRejected("state")
		return SkillResult{}, fmt.Errorf("caster %s is dead: %w", casterID, ErrInvalidState)
	}

	now := e.opts.Now()
	turn := b.Turn

	var target *Participant
	switch {
	case targetID != "":
		target = lb.participant(targetID)
	case skill.Heal > 0:
		target = caster
	default:
		target = lb.byFighter(lb.targeter.Select(&caster.Fighter, lb.fighters(), lb.rng))
	}

	res := SkillResult{}
	if target != nil {
		res.TargetID = target.ID
		// Heals go to allies, everything else to opponents
		friendly := target.Team == caster.Team
		if (skill.Heal > 0) != friendly {
			metrics.RecordSkillRejected("target")
			return SkillResult{}, fmt.Errorf("skill %s on %s: %w", skillID, target.ID, ErrInvalidTarget)
		}
	}

	// Only a use that would go through spends a token
	if !e.skillLimiter(battleID, casterID).Allow() {
		metrics.RecordSkillRejected("rate_limit")
		return SkillResult{}, fmt.Errorf("skill %s by %s: %w", skillID, casterID, ErrRateLimited)
	}

	switch {
	case target == nil || !target.Alive:
		res.Skipped = true
	case skill.Heal > 0:
		res.Hit = true
		res.Amount = target.Heal(skill.Heal)
		lb.dirty[target.ID] = true
		e.emit(lb, event.New(event.EventTypeHeal, event.ID(caster.ID), event.ID(target.ID), event.HealPayload{
			Battle:    lb.key,
			Amount:    int32(res.Amount),
			Remaining: int32(target.Health),
			Turn:      uint32(turn),
		}.Encode()))
		lb.log = append(lb.log, LogEntry{BattleID: b.ID, Turn: turn, Type: NotifySkill, ActorID: caster.ID, TargetID: target.ID, Amount: res.Amount, At: now})
		e.notifier.Publish(Notification{Type: NotifySkill, BattleID: b.ID, Turn: turn, ActorID: caster.ID, TargetID: target.ID, Amount: res.Amount, At: now})
	default:
		power := skill.Power
		if power <= 0 {
			power = 1
		}
		strike := lb.resolver.Strike(&caster.Fighter, &target.Fighter, now, power)
		res.Hit, res.Critical, res.Killed, res.Amount = strike.Hit, strike.Critical, strike.Killed, strike.Damage
		e.applyStrike(lb, caster, target, strike, event.EventTypeSkillUsed, turn, now)
	}

	var targetKey uint64
	if target != nil {
		targetKey = event.ID(target.ID)
	}
	e.emit(lb, event.New(event.EventTypeSkillUsed, event.ID(caster.ID), targetKey, event.SkillPayload{
		Battle: lb.key,
		Skill:  event.ID(skill.ID),
		Amount: int32(res.Amount),
		Turn:   uint32(turn),
	}.Encode()))

	if res.Skipped {
		log.Printf("🎯 %s used %s in battle %s but the target is gone", caster.Name, skill.Name, b.ID)
	} else {
		log.Printf("✨ %s used %s in battle %s (%d)", caster.Name, skill.Name, b.ID, res.Amount)
	}
	return res, nil
}

