// Package config provides centralized configuration management.
// Every tunable of the server lives here with its default; the environment
// overrides defaults and nothing else reads environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"idle-arena/internal/battle"
	"idle-arena/internal/combat"
)

// =============================================================================
// EVENT QUEUE & FRAME PUMP
// =============================================================================

// QueueConfig sizes the event queue and sets the frame cadence
type QueueConfig struct {
	LaneCapacity  int           `env:"ARENA_LANE_CAPACITY"`  // Slots per lane, rounded to a power of 2
	DrainBatch    int           `env:"ARENA_DRAIN_BATCH"`    // Records pulled per drain call
	FrameInterval time.Duration `env:"ARENA_FRAME_INTERVAL"` // Frame close cadence
}

// DefaultQueue returns the default queue configuration
func DefaultQueue() QueueConfig {
	return QueueConfig{
		LaneCapacity:  4096,
		DrainBatch:    1024,
		FrameInterval: 100 * time.Millisecond,
	}
}

// =============================================================================
// BATTLE ENGINE
// =============================================================================

// BattleConfig tunes the battle engine
type BattleConfig struct {
	TickInterval    time.Duration `env:"ARENA_TICK_INTERVAL"`
	MaxTurns        int           `env:"ARENA_MAX_TURNS"` // 0 = unbounded
	ReviveOnWipe    bool          `env:"ARENA_REVIVE_ON_WIPE"`
	ReviveTurnLimit int           `env:"ARENA_REVIVE_TURN_LIMIT"`
	TargetPolicy    string        `env:"ARENA_TARGET_POLICY"`
	SkillRate       float64       `env:"ARENA_SKILL_RATE"` // Skill uses per second per caster
	SkillBurst      int           `env:"ARENA_SKILL_BURST"`

	// Autoplay keeps this many battles running from the catalog, 0 = off
	Autoplay         int           `env:"ARENA_AUTOPLAY"`
	AutoplayInterval time.Duration `env:"ARENA_AUTOPLAY_INTERVAL"`
}

// DefaultBattle returns the default engine tuning
func DefaultBattle() BattleConfig {
	return BattleConfig{
		TickInterval:     100 * time.Millisecond,
		ReviveTurnLimit:  3000,
		TargetPolicy:     combat.PolicyLowestHealth,
		SkillRate:        2,
		SkillBurst:       2,
		AutoplayInterval: 2 * time.Second,
	}
}

// =============================================================================
// REWARDS
// =============================================================================

// RewardsConfig sets reward rates. KindMultipliers is keyed by kind name
// (ARENA_KIND_MULTIPLIERS="boss:3,raid:5"); unnamed kinds keep their default.
type RewardsConfig struct {
	ExperiencePerLevel int                `env:"ARENA_XP_PER_LEVEL"`
	GoldPerLevel       int                `env:"ARENA_GOLD_PER_LEVEL"`
	KindMultipliers    map[string]float64 `env:"ARENA_KIND_MULTIPLIERS"`
}

// DefaultRewards returns the baseline reward rates
func DefaultRewards() RewardsConfig {
	table := battle.DefaultRewardTable()
	return RewardsConfig{
		ExperiencePerLevel: table.ExperiencePerLevel,
		GoldPerLevel:       table.GoldPerLevel,
	}
}

// Table converts the config into the engine's reward table
func (c RewardsConfig) Table() (battle.RewardTable, error) {
	table := battle.DefaultRewardTable()
	if c.ExperiencePerLevel > 0 {
		table.ExperiencePerLevel = c.ExperiencePerLevel
	}
	if c.GoldPerLevel > 0 {
		table.GoldPerLevel = c.GoldPerLevel
	}
	for name, m := range c.KindMultipliers {
		kind, err := battle.ParseKind(name)
		if err != nil {
			return battle.RewardTable{}, fmt.Errorf("reward multipliers: %w", err)
		}
		if m <= 0 {
			return battle.RewardTable{}, fmt.Errorf("reward multiplier for %s must be positive", kind)
		}
		table.KindMultipliers[kind] = m
	}
	return table, nil
}

// =============================================================================
// STORAGE
// =============================================================================

// StorageConfig selects the battle store and the content catalog
type StorageConfig struct {
	Backend     string `env:"ARENA_STORAGE"` // "memory" or "sqlite"
	SQLitePath  string `env:"ARENA_SQLITE_PATH"`
	CatalogPath string `env:"ARENA_CATALOG"` // YAML catalog, empty = built-in
}

// DefaultStorage returns the default storage configuration
func DefaultStorage() StorageConfig {
	return StorageConfig{
		Backend:    "memory",
		SQLitePath: "arena.db",
	}
}

// JournalConfig selects the frame store and the journal's writer mode
type JournalConfig struct {
	Backend       string        `env:"ARENA_JOURNAL"` // "memory", "sqlite", or "redis"
	Async         bool          `env:"ARENA_JOURNAL_ASYNC"`
	AsyncBuffer   int           `env:"ARENA_JOURNAL_BUFFER"`
	RedisAddr     string        `env:"ARENA_REDIS_ADDR"`
	RedisPassword string        `env:"ARENA_REDIS_PASSWORD"`
	RedisDB       int           `env:"ARENA_REDIS_DB"`
	RedisPrefix   string        `env:"ARENA_REDIS_PREFIX"`
	RedisTTL      time.Duration `env:"ARENA_REDIS_TTL"` // 0 = frames never expire
}

// DefaultJournal returns the default journal configuration
func DefaultJournal() JournalConfig {
	return JournalConfig{
		Backend:     "memory",
		Async:       true,
		AsyncBuffer: 256,
		RedisAddr:   "localhost:6379",
		RedisPrefix: "arena:",
	}
}

// =============================================================================
// SERVER CONFIGURATION
// =============================================================================

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port        int      `env:"PORT"`
	CORSOrigins []string `env:"ARENA_CORS_ORIGINS"`
	RateLimit   float64  `env:"ARENA_API_RATE"` // Requests per second per IP
	RateBurst   int      `env:"ARENA_API_BURST"`
}

// DefaultServer returns the default server configuration
func DefaultServer() ServerConfig {
	return ServerConfig{
		Port:        3000,
		CORSOrigins: []string{"http://localhost:3000"},
		RateLimit:   10,
		RateBurst:   20,
	}
}

// DebugConfig configures the pprof/metrics listener
type DebugConfig struct {
	Enabled    bool   `env:"ARENA_DEBUG_ENABLED"`
	ListenAddr string `env:"ARENA_DEBUG_ADDR"`
	User       string `env:"ARENA_DEBUG_USER"`
	Password   string `env:"ARENA_DEBUG_PASSWORD"`
}

// DefaultDebug returns safe defaults
func DefaultDebug() DebugConfig {
	return DebugConfig{
		Enabled:    true,
		ListenAddr: "127.0.0.1:6060", // Localhost only
	}
}

// =============================================================================
// COMPLETE APP CONFIGURATION
// =============================================================================

// AppConfig holds the complete application configuration
type AppConfig struct {
	Queue   QueueConfig
	Battle  BattleConfig
	Rewards RewardsConfig
	Storage StorageConfig
	Journal JournalConfig
	Server  ServerConfig
	Debug   DebugConfig
}

// Default returns the configuration with no overrides
func Default() AppConfig {
	return AppConfig{
		Queue:   DefaultQueue(),
		Battle:  DefaultBattle(),
		Rewards: DefaultRewards(),
		Storage: DefaultStorage(),
		Journal: DefaultJournal(),
		Server:  DefaultServer(),
		Debug:   DefaultDebug(),
	}
}

// Load returns the configuration with environment overrides applied.
// Unset variables keep their defaults.
func Load() (AppConfig, error) {
	cfg := Default()
	if err := env.Parse(&cfg); err != nil {
		return AppConfig{}, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

// Validate rejects settings the server can't start with
func (c AppConfig) Validate() error {
	switch strings.ToLower(c.Storage.Backend) {
	case "memory", "sqlite":
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	switch strings.ToLower(c.Journal.Backend) {
	case "memory", "sqlite", "redis":
	default:
		return fmt.Errorf("unknown journal backend %q", c.Journal.Backend)
	}
	if c.Queue.FrameInterval <= 0 || c.Battle.TickInterval <= 0 {
		return fmt.Errorf("frame and tick intervals must be positive")
	}
	if c.Battle.Autoplay < 0 || (c.Battle.Autoplay > 0 && c.Battle.AutoplayInterval <= 0) {
		return fmt.Errorf("autoplay needs a non-negative count and a positive interval")
	}
	if _, ok := combat.PolicyByName(c.Battle.TargetPolicy); !ok {
		return fmt.Errorf("unknown target policy %q", c.Battle.TargetPolicy)
	}
	if _, err := c.Rewards.Table(); err != nil {
		return err
	}
	return nil
}

// EngineOptions converts the battle and reward sections into engine options
func (c AppConfig) EngineOptions() (battle.Options, error) {
	table, err := c.Rewards.Table()
	if err != nil {
		return battle.Options{}, err
	}
	opts := battle.DefaultOptions()
	opts.TickInterval = c.Battle.TickInterval
	opts.MaxTurns = c.Battle.MaxTurns
	opts.ReviveOnWipe = c.Battle.ReviveOnWipe
	opts.ReviveTurnLimit = c.Battle.ReviveTurnLimit
	opts.DefaultPolicy = c.Battle.TargetPolicy
	opts.SkillRate = c.Battle.SkillRate
	opts.SkillBurst = c.Battle.SkillBurst
	opts.Rewards = table
	return opts, nil
}
