package battle

import (
	"context"
	"time"

	"idle-arena/internal/combat"
)

// Storage is the durable CRUD boundary for battle state.
// Get methods return an error wrapping ErrNotFound for missing rows.
type Storage interface {
	GetBattle(ctx context.Context, id string) (Battle, error)
	SaveBattle(ctx context.Context, b Battle) error
	SaveParticipant(ctx context.Context, p Participant) error
	GetParticipants(ctx context.Context, battleID string) ([]Participant, error)
	SaveEvent(ctx context.Context, e LogEntry) error
	SaveResult(ctx context.Context, r Result) error
	GetResult(ctx context.Context, battleID string) (Result, error)
}

// Profile is a combatant template: a character or an enemy
type Profile struct {
	ID        string       `yaml:"id" json:"id"`
	Name      string       `yaml:"name" json:"name"`
	Level     int          `yaml:"level" json:"level"`
	MaxHealth int          `yaml:"max_health" json:"maxHealth"`
	Stats     combat.Stats `yaml:"stats" json:"stats"`
	Loot      []string     `yaml:"loot,omitempty" json:"loot,omitempty"` // Enemies only
}

// Skill is an active ability. Power > 0 deals Power x attack damage to an
// opponent; Heal > 0 restores health to an ally.
type Skill struct {
	ID    string  `yaml:"id" json:"id"`
	Name  string  `yaml:"name" json:"name"`
	Power float64 `yaml:"power" json:"power"`
	Heal  int     `yaml:"heal" json:"heal"`
}

// Roster resolves characters, enemies, and skills by id
type Roster interface {
	Character(ctx context.Context, id string) (Profile, error)
	Enemy(ctx context.Context, id string) (Profile, error)
	Skill(ctx context.Context, id string) (Skill, error)
}

// Notifier announces battle events to observers. Publish must not block.
type Notifier interface {
	Publish(n Notification)
}

// Scheduler runs deferred per-battle work. Cancel prevents any pending
// work for the battle from running and cancels the context handed to it.
type Scheduler interface {
	Schedule(battleID string, delay time.Duration, fn func(ctx context.Context))
	Cancel(battleID string)
}

type nopNotifier struct{}

func (nopNotifier) Publish(Notification) {}

// Browser is implemented by stores that can list battles and read back the
// combat log. The server uses it to resume active battles and serve logs.
type Browser interface {
	ListBattles(ctx context.Context, status Status) ([]Battle, error)
	GetEvents(ctx context.Context, battleID string) ([]LogEntry, error)
}
