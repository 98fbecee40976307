package config

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"idle-arena/internal/battle"
	"idle-arena/internal/combat"
)

// Catalog is the content the engine draws combatants and skills from.
// It implements battle.Roster.
type Catalog struct {
	Characters []battle.Profile `yaml:"characters"`
	Enemies    []battle.Profile `yaml:"enemies"`
	Skills     []battle.Skill   `yaml:"skills"`

	characters map[string]battle.Profile
	enemies    map[string]battle.Profile
	skills     map[string]battle.Skill
}

// LoadCatalog reads a YAML catalog. An empty path returns DefaultCatalog.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return ParseCatalog(b)
}

// ParseCatalog decodes and indexes a YAML catalog.
// Missing levels default to 1; missing stats fields keep DefaultStats values.
func ParseCatalog(data []byte) (*Catalog, error) {
	var raw struct {
		Characters []profileYAML  `yaml:"characters"`
		Enemies    []profileYAML  `yaml:"enemies"`
		Skills     []battle.Skill `yaml:"skills"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	c := &Catalog{Skills: raw.Skills}
	for _, p := range raw.Characters {
		c.Characters = append(c.Characters, p.profile())
	}
	for _, p := range raw.Enemies {
		c.Enemies = append(c.Enemies, p.profile())
	}
	if err := c.index(); err != nil {
		return nil, err
	}
	return c, nil
}

// profileYAML decodes stats over the defaults so partial stat blocks work
type profileYAML struct {
	ID        string       `yaml:"id"`
	Name      string       `yaml:"name"`
	Level     int          `yaml:"level"`
	MaxHealth int          `yaml:"max_health"`
	Stats     combat.Stats `yaml:"stats"`
	Loot      []string     `yaml:"loot"`
}

func (p *profileYAML) UnmarshalYAML(node *yaml.Node) error {
	type plain profileYAML
	decoded := plain{Stats: combat.DefaultStats()}
	if err := node.Decode(&decoded); err != nil {
		return err
	}
	*p = profileYAML(decoded)
	return nil
}

func (p profileYAML) profile() battle.Profile {
	level := p.Level
	if level < 1 {
		level = 1
	}
	return battle.Profile{
		ID:        p.ID,
		Name:      p.Name,
		Level:     level,
		MaxHealth: p.MaxHealth,
		Stats:     p.Stats,
		Loot:      p.Loot,
	}
}

func (c *Catalog) index() error {
	c.characters = make(map[string]battle.Profile, len(c.Characters))
	c.enemies = make(map[string]battle.Profile, len(c.Enemies))
	c.skills = make(map[string]battle.Skill, len(c.Skills))

	for _, p := range c.Characters {
		if err := validateProfile("character", p, c.characters); err != nil {
			return err
		}
		c.characters[p.ID] = p
	}
	for _, p := range c.Enemies {
		if err := validateProfile("enemy", p, c.enemies); err != nil {
			return err
		}
		c.enemies[p.ID] = p
	}
	for _, s := range c.Skills {
		if s.ID == "" {
			return fmt.Errorf("catalog: skill without id")
		}
		if _, dup := c.skills[s.ID]; dup {
			return fmt.Errorf("catalog: duplicate skill %q", s.ID)
		}
		if s.Power < 0 || s.Heal < 0 || (s.Power == 0 && s.Heal == 0) {
			return fmt.Errorf("catalog: skill %q needs a positive power or heal", s.ID)
		}
		c.skills[s.ID] = s
	}
	return nil
}

func validateProfile(kind string, p battle.Profile, seen map[string]battle.Profile) error {
	if p.ID == "" {
		return fmt.Errorf("catalog: %s without id", kind)
	}
	if _, dup := seen[p.ID]; dup {
		return fmt.Errorf("catalog: duplicate %s %q", kind, p.ID)
	}
	if p.MaxHealth < 1 {
		return fmt.Errorf("catalog: %s %q needs max_health >= 1", kind, p.ID)
	}
	if err := p.Stats.Validate(); err != nil {
		return fmt.Errorf("catalog: %s %q: %w", kind, p.ID, err)
	}
	return nil
}

func (c *Catalog) Character(_ context.Context, id string) (battle.Profile, error) {
	p, ok := c.characters[id]
	if !ok {
		return battle.Profile{}, fmt.Errorf("character %s: %w", id, battle.ErrNotFound)
	}
	return p, nil
}

func (c *Catalog) Enemy(_ context.Context, id string) (battle.Profile, error) {
	p, ok := c.enemies[id]
	if !ok {
		return battle.Profile{}, fmt.Errorf("enemy %s: %w", id, battle.ErrNotFound)
	}
	return p, nil
}

func (c *Catalog) Skill(_ context.Context, id string) (battle.Skill, error) {
	s, ok := c.skills[id]
	if !ok {
		return battle.Skill{}, fmt.Errorf("skill %s: %w", id, battle.ErrNotFound)
	}
	return s, nil
}

// defaultCatalogYAML is the built-in content
const defaultCatalogYAML = `
characters:
  - id: knight
    name: Knight
    level: 5
    max_health: 120
    stats: {attack_power: 18, attacks_per_second: 1.0, critical_chance: 0.1, critical_multiplier: 1.8, dodge_chance: 0.05, armor: 20}
  - id: ranger
    name: Ranger
    level: 5
    max_health: 90
    stats: {attack_power: 14, attacks_per_second: 1.6, critical_chance: 0.2, critical_multiplier: 1.6, dodge_chance: 0.15, armor: 5}
enemies:
  - id: slime
    name: Slime
    level: 2
    max_health: 60
    stats: {attack_power: 6, attacks_per_second: 0.8}
  - id: wolf
    name: Dire Wolf
    level: 4
    max_health: 80
    stats: {attack_power: 11, attacks_per_second: 1.4, dodge_chance: 0.1}
  - id: dragon
    name: Ember Dragon
    level: 12
    max_health: 900
    stats: {attack_power: 35, attacks_per_second: 0.7, critical_chance: 0.15, critical_multiplier: 2.0, armor: 60}
    loot: [dragon_scale, ember_core]
skills:
  - id: power_strike
    name: Power Strike
    power: 2.5
  - id: second_wind
    name: Second Wind
    heal: 40
`

// DefaultCatalog returns the built-in catalog
func DefaultCatalog() *Catalog {
	c, err := ParseCatalog([]byte(defaultCatalogYAML))
	if err != nil {
		panic(fmt.Sprintf("built-in catalog: %v", err))
	}
	return c
}
