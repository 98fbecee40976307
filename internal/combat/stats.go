package combat

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"math"
)

// Stats are the combat attributes a participant fights with.
type Stats struct {
	AttackPower        float64 `json:"attackPower" yaml:"attack_power"`
	AttacksPerSecond   float64 `json:"attacksPerSecond" yaml:"attacks_per_second"`
	CriticalChance     float64 `json:"criticalChance" yaml:"critical_chance"`         // 0..1
	CriticalMultiplier float64 `json:"criticalMultiplier" yaml:"critical_multiplier"` // >= 1
	DodgeChance        float64 `json:"dodgeChance" yaml:"dodge_chance"`               // 0..1
	Armor              float64 `json:"armor" yaml:"armor"`
}

// DefaultStats returns the baseline used when stored stats can't be read.
func DefaultStats() Stats {
	return Stats{
		AttackPower:        10,
		AttacksPerSecond:   1.0,
		CriticalChance:     0.05,
		CriticalMultiplier: 1.5,
		DodgeChance:        0.05,
		Armor:              0,
	}
}

// Normalize clamps chances to [0,1], the crit multiplier to >= 1, and
// negative or non-finite values to 0.
func (s Stats) Normalize() Stats {
	s.AttackPower = nonNegative(s.AttackPower)
	s.AttacksPerSecond = nonNegative(s.AttacksPerSecond)
	s.CriticalChance = clamp01(s.CriticalChance)
	s.DodgeChance = clamp01(s.DodgeChance)
	s.Armor = nonNegative(s.Armor)
	if math.IsNaN(s.CriticalMultiplier) || s.CriticalMultiplier < 1 {
		s.CriticalMultiplier = 1
	}
	return s
}

// Validate reports stats that can't be used as-is.
func (s Stats) Validate() error {
	for name, v := range map[string]float64{
		"attackPower":        s.AttackPower,
		"attacksPerSecond":   s.AttacksPerSecond,
		"criticalChance":     s.CriticalChance,
		"criticalMultiplier": s.CriticalMultiplier,
		"dodgeChance":        s.DodgeChance,
		"armor":              s.Armor,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%s is not finite", name)
		}
		if v < 0 {
			return fmt.Errorf("%s is negative", name)
		}
	}
	if s.CriticalChance > 1 || s.DodgeChance > 1 {
		return fmt.Errorf("chance above 1")
	}
	if s.AttacksPerSecond == 0 {
		return fmt.Errorf("attacksPerSecond must be positive")
	}
	if s.CriticalMultiplier < 1 {
		return fmt.Errorf("criticalMultiplier below 1")
	}
	return nil
}

// DecodeStats parses a stored stats blob strictly: unknown fields are
// rejected and the result must pass Validate.
func DecodeStats(raw []byte) (Stats, error) {
	if len(raw) == 0 {
		return Stats{}, fmt.Errorf("empty stats payload")
	}
	var s Stats
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&s); err != nil {
		return Stats{}, fmt.Errorf("decode stats: %w", err)
	}
	if dec.More() {
		return Stats{}, fmt.Errorf("decode stats: trailing data")
	}
	if err := s.Validate(); err != nil {
		return Stats{}, fmt.Errorf("invalid stats: %w", err)
	}
	return s, nil
}

// ParseStats decodes a stored stats blob, falling back to DefaultStats on any
// error. The fallback is logged with the owner id so bad records can be found.
func ParseStats(raw []byte, owner string) Stats {
	s, err := DecodeStats(raw)
	if err != nil {
		log.Printf("⚠️ Combat stats for %s unreadable, using defaults: %v", owner, err)
		return DefaultStats()
	}
	return s
}

// EncodeStats serializes stats for storage.
func EncodeStats(s Stats) []byte {
	data, err := json.Marshal(s)
	if err != nil {
		return nil
	}
	return data
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func nonNegative(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}
