package battle

import (
	"math"

	"idle-arena/internal/combat"
)

// RewardTable converts defeated opponents into experience and gold
type RewardTable struct {
	ExperiencePerLevel int
	GoldPerLevel       int
	KindMultipliers    map[Kind]float64
}

// DefaultRewardTable returns the baseline reward rates
func DefaultRewardTable() RewardTable {
	return RewardTable{
		ExperiencePerLevel: 10,
		GoldPerLevel:       5,
		KindMultipliers: map[Kind]float64{
			KindNormal:  1.0,
			KindElite:   1.5,
			KindBoss:    3.0,
			KindDungeon: 2.0,
			KindRaid:    5.0,
		},
	}
}

func (t RewardTable) multiplier(k Kind) float64 {
	if m, ok := t.KindMultipliers[k]; ok && m > 0 {
		return m
	}
	return 1
}

// Compute derives rewards for team 0 from the opponents it defeated.
// loot is the item table of the encounter's enemy; items drop only on a
// victory in a kind that awards loot.
func (t RewardTable) Compute(kind Kind, outcome Outcome, participants []*Participant, loot []string) Rewards {
	levels := 0
	for _, p := range participants {
		if p.Team != combat.TeamPlayers && !p.Alive {
			level := p.Level
			if level < 1 {
				level = 1
			}
			levels += level
		}
	}

	mult := t.multiplier(kind)
	r := Rewards{
		Experience: int(math.Round(float64(levels*t.ExperiencePerLevel) * mult)),
		Gold:       int(math.Round(float64(levels*t.GoldPerLevel) * mult)),
	}
	if outcome == OutcomeVictory && kind.DropsLoot() && len(loot) > 0 {
		r.Items = append([]string(nil), loot...)
	}
	return r
}
