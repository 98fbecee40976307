package combat

import "time"

// Team identifiers. Team 0 is the character's side.
const (
	TeamPlayers = 0
	TeamEnemies = 1
)

// Fighter is the combat-relevant state of one participant.
//
// Health stays within [0, MaxHealth]. Alive flips to false exactly once,
// when health reaches 0, and DeathTime is stamped at that moment.
type Fighter struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Team      int       `json:"team"`
	Level     int       `json:"level"`
	Health    int       `json:"health"`
	MaxHealth int       `json:"maxHealth"`
	Alive     bool      `json:"alive"`
	DeathTime time.Time `json:"deathTime,omitzero"`
	Revives   int       `json:"revives,omitempty"`
	Stats     Stats     `json:"stats"`
}

// NewFighter creates a living fighter at full health.
func NewFighter(id, name string, team, level, maxHealth int, stats Stats) Fighter {
	if maxHealth < 1 {
		maxHealth = 1
	}
	return Fighter{
		ID:        id,
		Name:      name,
		Team:      team,
		Level:     level,
		Health:    maxHealth,
		MaxHealth: maxHealth,
		Alive:     true,
		Stats:     stats.Normalize(),
	}
}

// TakeDamage applies damage at time now.
// Returns the health actually removed and whether this hit killed the fighter.
// Dead fighters and non-positive amounts are ignored.
func (f *Fighter) TakeDamage(amount int, now time.Time) (dealt int, killed bool) {
	if !f.Alive || amount <= 0 {
		return 0, false
	}

	before := f.Health
	f.Health -= amount
	if f.Health < 0 {
		f.Health = 0
	}
	dealt = before - f.Health

	if f.Health == 0 {
		f.Alive = false
		f.DeathTime = now
		killed = true
	}
	return dealt, killed
}

// Heal restores health up to MaxHealth. Returns the amount restored.
// Dead fighters can't be healed.
func (f *Fighter) Heal(amount int) int {
	if !f.Alive || amount <= 0 {
		return 0
	}

	before := f.Health
	f.Health += amount
	if f.Health > f.MaxHealth {
		f.Health = f.MaxHealth
	}
	return f.Health - before
}

// Revive brings a dead fighter back at full health. Only battles created
// with revive-on-wipe call this; it is the one path where Alive returns to true.
func (f *Fighter) Revive() bool {
	if f.Alive {
		return false
	}
	f.Alive = true
	f.Health = f.MaxHealth
	f.DeathTime = time.Time{}
	f.Revives++
	return true
}

// HealthFraction returns Health/MaxHealth.
func (f *Fighter) HealthFraction() float64 {
	if f.MaxHealth <= 0 {
		return 0
	}
	return float64(f.Health) / float64(f.MaxHealth)
}

// clampHealth restores the [0, MaxHealth] invariant after external edits.
func (f *Fighter) clampHealth() {
	if f.Health < 0 {
		f.Health = 0
	}
	if f.Health > f.MaxHealth {
		f.Health = f.MaxHealth
	}
}
