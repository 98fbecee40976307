package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"idle-arena/internal/battle"
	"idle-arena/internal/combat"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 3000 || cfg.Queue.FrameInterval != 100*time.Millisecond {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if cfg.Storage.Backend != "memory" || cfg.Journal.Backend != "memory" {
		t.Errorf("unexpected backends: %+v / %+v", cfg.Storage, cfg.Journal)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "8088")
	t.Setenv("ARENA_TICK_INTERVAL", "250ms")
	t.Setenv("ARENA_REVIVE_ON_WIPE", "true")
	t.Setenv("ARENA_TARGET_POLICY", "random")
	t.Setenv("ARENA_JOURNAL", "redis")
	t.Setenv("ARENA_REDIS_TTL", "1h")
	t.Setenv("ARENA_CORS_ORIGINS", "https://a.example,https://b.example")
	t.Setenv("ARENA_KIND_MULTIPLIERS", "boss:4,raid:10")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 8088 {
		t.Errorf("Port = %d", cfg.Server.Port)
	}
	if cfg.Battle.TickInterval != 250*time.Millisecond || !cfg.Battle.ReviveOnWipe || cfg.Battle.TargetPolicy != "random" {
		t.Errorf("Battle = %+v", cfg.Battle)
	}
	if cfg.Journal.Backend != "redis" || cfg.Journal.RedisTTL != time.Hour || cfg.Journal.RedisPrefix != "arena:" {
		t.Errorf("Journal = %+v", cfg.Journal)
	}
	if len(cfg.Server.CORSOrigins) != 2 {
		t.Errorf("CORSOrigins = %v", cfg.Server.CORSOrigins)
	}
	// Untouched sections keep defaults
	if cfg.Battle.SkillRate != 2 || cfg.Queue.LaneCapacity != 4096 {
		t.Errorf("defaults lost: %+v %+v", cfg.Battle, cfg.Queue)
	}

	opts, err := cfg.EngineOptions()
	if err != nil {
		t.Fatal(err)
	}
	if opts.Rewards.KindMultipliers[battle.KindBoss] != 4 || opts.Rewards.KindMultipliers[battle.KindRaid] != 10 {
		t.Errorf("multipliers = %v", opts.Rewards.KindMultipliers)
	}
	if opts.Rewards.KindMultipliers[battle.KindElite] != 1.5 {
		t.Errorf("elite multiplier should keep its default, got %v", opts.Rewards.KindMultipliers[battle.KindElite])
	}
	if opts.TickInterval != 250*time.Millisecond || opts.DefaultPolicy != "random" {
		t.Errorf("opts = %+v", opts)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*AppConfig)
	}{
		{"storage backend", func(c *AppConfig) { c.Storage.Backend = "postgres" }},
		{"journal backend", func(c *AppConfig) { c.Journal.Backend = "kafka" }},
		{"frame interval", func(c *AppConfig) { c.Queue.FrameInterval = 0 }},
		{"policy", func(c *AppConfig) { c.Battle.TargetPolicy = "closest" }},
		{"autoplay count", func(c *AppConfig) { c.Battle.Autoplay = -1 }},
		{"autoplay interval", func(c *AppConfig) { c.Battle.Autoplay = 2; c.Battle.AutoplayInterval = 0 }},
		{"multiplier kind", func(c *AppConfig) { c.Rewards.KindMultipliers = map[string]float64{"legendary": 2} }},
		{"multiplier value", func(c *AppConfig) { c.Rewards.KindMultipliers = map[string]float64{"boss": 0} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
	if err := Default().Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestDefaultCatalog(t *testing.T) {
	ctx := context.Background()
	c := DefaultCatalog()

	knight, err := c.Character(ctx, "knight")
	if err != nil {
		t.Fatal(err)
	}
	if knight.Level != 5 || knight.MaxHealth != 120 || knight.Stats.Armor != 20 {
		t.Errorf("knight = %+v", knight)
	}
	dragon, err := c.Enemy(ctx, "dragon")
	if err != nil {
		t.Fatal(err)
	}
	if len(dragon.Loot) != 2 {
		t.Errorf("dragon loot = %v", dragon.Loot)
	}
	if s, err := c.Skill(ctx, "second_wind"); err != nil || s.Heal != 40 {
		t.Errorf("second_wind = %+v, %v", s, err)
	}

	if _, err := c.Character(ctx, "slime"); !errors.Is(err, battle.ErrNotFound) {
		t.Errorf("enemies aren't characters: %v", err)
	}
	if _, err := c.Skill(ctx, "fireball"); !errors.Is(err, battle.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestCatalogPartialStats(t *testing.T) {
	c, err := ParseCatalog([]byte(`
enemies:
  - id: rat
    name: Rat
    max_health: 5
    stats: {attack_power: 2}
`))
	if err != nil {
		t.Fatal(err)
	}
	rat, _ := c.Enemy(context.Background(), "rat")
	want := combat.DefaultStats()
	want.AttackPower = 2
	if rat.Stats != want {
		t.Errorf("stats = %+v, want %+v", rat.Stats, want)
	}
	if rat.Level != 1 {
		t.Errorf("level = %d, want 1", rat.Level)
	}
}

func TestCatalogRejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"duplicate enemy", "enemies: [{id: a, max_health: 1}, {id: a, max_health: 1}]"},
		{"missing id", "characters: [{name: x, max_health: 1}]"},
		{"no health", "characters: [{id: x}]"},
		{"bad chance", "enemies: [{id: a, max_health: 1, stats: {dodge_chance: 2}}]"},
		{"empty skill", "skills: [{id: nothing}]"},
		{"malformed", "characters: {"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseCatalog([]byte(tt.yaml)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLoadCatalogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	data := "characters: [{id: solo, name: Solo, level: 3, max_health: 50}]\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := LoadCatalog(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Character(context.Background(), "solo"); err != nil {
		t.Error(err)
	}
	if _, err := LoadCatalog(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("missing file should fail")
	}
	if def, err := LoadCatalog(""); err != nil || len(def.Enemies) == 0 {
		t.Errorf("empty path should give the built-in catalog: %v", err)
	}
}
