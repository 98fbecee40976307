package api

import (
	"context"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"idle-arena/internal/battle"
	"idle-arena/internal/event"
	"idle-arena/internal/eventlog"
)

// BattleReader is what the API reads from the battle engine
type BattleReader interface {
	GetStatus(ctx context.Context, battleID string) (battle.Snapshot, error)
	ActiveBattles() []string
}

// FrameReader is what the API reads from the frame journal
type FrameReader interface {
	LoadFrame(ctx context.Context, frame uint32) ([]event.Record, error)
	ValidateFrameIntegrity(ctx context.Context, from, to uint32) (eventlog.Integrity, error)
	LastFrame(ctx context.Context) (uint32, error)
	Stats() eventlog.JournalStats
}

// RouterConfig wires the observer API. Engine and Journal are required.
type RouterConfig struct {
	Engine  BattleReader
	Journal FrameReader

	// Browser backs /battles?status= and /battles/{id}/log; those answer
	// 501 when it is nil.
	Browser battle.Browser

	// Hub serves /ws when set
	Hub *Hub

	// RateLimiter wins over RateLimitConfig; with neither the defaults apply
	RateLimiter     *IPRateLimiter
	RateLimitConfig *RateLimitConfig

	// Allowed CORS origins, localhost when nil
	CORSOrigins []string

	DisableLogging bool
}

type routerHandlers struct {
	engine  BattleReader
	journal FrameReader
	browser battle.Browser
	hub     *Hub
}

// NewRouter builds the read-only observer API. The only goroutine it may
// start is the eviction loop of a rate limiter it creates itself.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	if !cfg.DisableLogging {
		r.Use(middleware.Logger)
	}
	r.Use(middleware.Recoverer)
	r.Use(metricsMiddleware)

	// Throttle before CORS
	r.Use(rateLimiterFor(cfg).Middleware)

	origins := cfg.CORSOrigins
	if origins == nil {
		origins = []string{"http://localhost:*", "http://127.0.0.1:*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"*"},
		MaxAge:         300,
	}))

	h := &routerHandlers{
		engine:  cfg.Engine,
		journal: cfg.Journal,
		browser: cfg.Browser,
		hub:     cfg.Hub,
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.handleHealth)

		r.Route("/battles", func(r chi.Router) {
			r.Get("/", h.handleListBattles)
			r.Get("/{id}", h.handleGetBattle)
			r.Get("/{id}/result", h.handleGetResult)
			r.Get("/{id}/log", h.handleGetLog)
		})

		r.Route("/frames", func(r chi.Router) {
			r.Get("/stats", h.handleFrameStats)
			r.Get("/{frame}", h.handleGetFrame)
			r.Get("/{from}/{to}/integrity", h.handleIntegrity)
		})
	})

	if cfg.Hub != nil {
		r.Get("/ws", cfg.Hub.HandleWebSocket)
	}

	return r
}

func rateLimiterFor(cfg RouterConfig) *IPRateLimiter {
	if cfg.RateLimiter != nil {
		return cfg.RateLimiter
	}
	limits := DefaultRateLimitConfig()
	if cfg.RateLimitConfig != nil {
		limits = *cfg.RateLimitConfig
	}
	return NewIPRateLimiter(limits)
}
