package battle

import (
	"fmt"
	"strings"
	"time"

	"idle-arena/internal/combat"
)

// Kind is the encounter type. It scales rewards and enables loot drops.
type Kind uint8

const (
	KindNormal Kind = iota
	KindElite
	KindBoss
	KindDungeon
	KindRaid
)

var kindNames = [...]string{"normal", "elite", "boss", "dungeon", "raid"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// DropsLoot reports whether defeating this kind of encounter awards items
func (k Kind) DropsLoot() bool {
	return k == KindBoss || k == KindDungeon || k == KindRaid
}

// ParseKind resolves a kind by name. Empty means normal.
func ParseKind(s string) (Kind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return KindNormal, nil
	}
	for i, name := range kindNames {
		if name == s {
			return Kind(i), nil
		}
	}
	return 0, fmt.Errorf("unknown battle kind %q", s)
}

// Status is the battle lifecycle state.
// Preparing -> Active -> Completed | Cancelled. Terminal states never change.
type Status uint8

const (
	StatusPreparing Status = iota
	StatusActive
	StatusCompleted
	StatusCancelled
)

var statusNames = [...]string{"preparing", "active", "completed", "cancelled"}

func (s Status) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("status(%d)", uint8(s))
}

// Terminal reports whether no further transition is allowed
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *Kind) UnmarshalText(b []byte) error {
	v, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = v
	return nil
}

// ParseStatus resolves a stored status name
func ParseStatus(s string) (Status, error) {
	for i, name := range statusNames {
		if name == s {
			return Status(i), nil
		}
	}
	return 0, fmt.Errorf("unknown battle status %q", s)
}

func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Status) UnmarshalText(b []byte) error {
	v, err := ParseStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Outcome is the result from the character's side (team 0)
type Outcome uint8

const (
	OutcomeVictory Outcome = iota
	OutcomeDefeat
	OutcomeDraw
)

var outcomeNames = [...]string{"victory", "defeat", "draw"}

func (o Outcome) String() string {
	if int(o) < len(outcomeNames) {
		return outcomeNames[o]
	}
	return fmt.Sprintf("outcome(%d)", uint8(o))
}

// ParseOutcome resolves a stored outcome name
func ParseOutcome(s string) (Outcome, error) {
	for i, name := range outcomeNames {
		if name == s {
			return Outcome(i), nil
		}
	}
	return 0, fmt.Errorf("unknown outcome %q", s)
}

func (o Outcome) MarshalText() ([]byte, error) { return []byte(o.String()), nil }

func (o *Outcome) UnmarshalText(b []byte) error {
	v, err := ParseOutcome(string(b))
	if err != nil {
		return err
	}
	*o = v
	return nil
}

// Battle is one combat encounter
type Battle struct {
	ID           string    `json:"id"`
	CharacterID  string    `json:"characterId"`
	EnemyID      string    `json:"enemyId"`
	RegionID     string    `json:"regionId,omitempty"`
	Kind         Kind      `json:"kind"`
	Status       Status    `json:"status"`
	Policy       string    `json:"policy"`
	ReviveOnWipe bool      `json:"reviveOnWipe"`
	MaxTurns     int       `json:"maxTurns,omitempty"` // 0 = unbounded
	Turn         int       `json:"turn"`               // Ticks processed
	CreatedAt    time.Time `json:"createdAt"`
	StartedAt    time.Time `json:"startedAt,omitzero"`
	EndedAt      time.Time `json:"endedAt,omitzero"`
}

// Participant is a fighter bound to one battle
type Participant struct {
	combat.Fighter
	BattleID string `json:"battleId"`
	SourceID string `json:"sourceId"` // Character or enemy template id
	IsPlayer bool   `json:"isPlayer"`
}

// Rewards granted at the end of a battle
type Rewards struct {
	Experience int      `json:"experience"`
	Gold       int      `json:"gold"`
	Items      []string `json:"items,omitempty"`
}

// Result is produced once per battle when it completes. Immutable.
type Result struct {
	BattleID    string        `json:"battleId"`
	Outcome     Outcome       `json:"outcome"`
	WinningTeam int           `json:"winningTeam"` // -1 for a draw
	Duration    time.Duration `json:"duration"`
	Turns       int           `json:"turns"`
	Survivors   []string      `json:"survivors"`
	Rewards     Rewards       `json:"rewards"`
	CreatedAt   time.Time     `json:"createdAt"`
}

// OutcomeFor returns the outcome as seen by the given team
func (r Result) OutcomeFor(team int) Outcome {
	switch r.WinningTeam {
	case -1:
		return OutcomeDraw
	case team:
		return OutcomeVictory
	default:
		return OutcomeDefeat
	}
}

// LogEntry is one human-readable combat log line kept by storage
type LogEntry struct {
	BattleID string    `json:"battleId"`
	Turn     int       `json:"turn"`
	Type     string    `json:"type"`
	ActorID  string    `json:"actorId,omitempty"`
	TargetID string    `json:"targetId,omitempty"`
	Amount   int       `json:"amount,omitempty"`
	Critical bool      `json:"critical,omitempty"`
	At       time.Time `json:"at"`
}

// Snapshot is a read-only projection of a battle for observers
type Snapshot struct {
	Battle       Battle        `json:"battle"`
	Participants []Participant `json:"participants"`
	Result       *Result       `json:"result,omitempty"`
	Live         bool          `json:"live"`
}

// Notification types published to the Notifier
const (
	NotifyBattleStarted   = "battle_started"
	NotifyAttack          = "attack"
	NotifyMiss            = "miss"
	NotifyDeath           = "death"
	NotifySkill           = "skill"
	NotifyRevive          = "revive"
	NotifyBattleEnded     = "battle_ended"
	NotifyBattleCancelled = "battle_cancelled"
)

// Notification is an outbound message for external observers
type Notification struct {
	Type     string    `json:"type"`
	BattleID string    `json:"battleId"`
	Turn     int       `json:"turn"`
	ActorID  string    `json:"actorId,omitempty"`
	TargetID string    `json:"targetId,omitempty"`
	Amount   int       `json:"amount,omitempty"`
	Critical bool      `json:"critical,omitempty"`
	Outcome  string    `json:"outcome,omitempty"`
	At       time.Time `json:"at"`
}
