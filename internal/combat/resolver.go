// Package combat resolves strikes between fighters: hit/dodge, critical
// hits, armor mitigation, and the health/death bookkeeping of the target.
// All randomness comes from a caller-supplied source, so a battle seeded
// the same way resolves the same way.
package combat

import (
	"math"
	"time"
)

// Rand is the random source used for rolls. *math/rand/v2.Rand satisfies it.
type Rand interface {
	Float64() float64
}

// Strike is the outcome of one attack.
type Strike struct {
	Hit       bool
	Critical  bool
	Killed    bool
	RawDamage float64 // Before mitigation
	Damage    int     // Health actually removed
	Remaining int     // Target health afterwards
}

// Resolver computes strikes. Not safe for concurrent use; each battle owns one.
type Resolver struct {
	rng Rand
}

// NewResolver creates a resolver drawing from rng.
func NewResolver(rng Rand) *Resolver {
	return &Resolver{rng: rng}
}

// Mitigate applies the armor curve: damage * 100 / (100 + armor).
func Mitigate(damage, armor float64) float64 {
	if armor <= 0 {
		return damage
	}
	return damage * 100 / (100 + armor)
}

// Strike resolves attacker hitting target at now. multiplier scales the base
// damage (1 for auto-attacks, skill power otherwise).
//
// Roll order is fixed: dodge first, then critical only on a hit.
func (r *Resolver) Strike(attacker, target *Fighter, now time.Time, multiplier float64) Strike {
	target.clampHealth()
	if !attacker.Alive || !target.Alive {
		return Strike{Remaining: target.Health}
	}

	if r.rng.Float64() < target.Stats.DodgeChance {
		return Strike{Remaining: target.Health}
	}

	s := Strike{Hit: true}
	base := attacker.Stats.AttackPower * multiplier
	if r.rng.Float64() < attacker.Stats.CriticalChance {
		s.Critical = true
		base *= attacker.Stats.CriticalMultiplier
	}
	s.RawDamage = base

	final := int(math.Round(Mitigate(base, target.Stats.Armor)))
	if final < 1 {
		final = 1
	}

	s.Damage, s.Killed = target.TakeDamage(final, now)
	s.Remaining = target.Health
	return s
}
