package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"idle-arena/internal/api"
	"idle-arena/internal/battle"
	"idle-arena/internal/config"
	"idle-arena/internal/event"
	"idle-arena/internal/eventlog"
	"idle-arena/internal/storage/memory"
	"idle-arena/internal/storage/redisstore"
	"idle-arena/internal/storage/sqlite"
)

// battleStore is what the server needs from the battle store
type battleStore interface {
	battle.Storage
	battle.Browser
}

func main() {
	if err := godotenv.Load(".env"); err != nil {
		log.Println("💡 No .env file found, using environment variables only")
	} else {
		log.Println("✅ Loaded environment from .env")
	}

	log.Println("⚔️ ================================")
	log.Println("⚔️  IDLE ARENA - COMBAT ENGINE")
	log.Println("⚔️ ================================")

	if err := run(); err != nil {
		log.Fatalf("❌ %v", err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	catalog, err := config.LoadCatalog(cfg.Storage.CatalogPath)
	if err != nil {
		return err
	}
	log.Printf("📚 Catalog: %d characters, %d enemies, %d skills",
		len(catalog.Characters), len(catalog.Enemies), len(catalog.Skills))

	var closers []io.Closer
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i].Close(); err != nil {
				log.Printf("⚠️ Close: %v", err)
			}
		}
	}()

	store, sqlStore, err := openBattleStore(cfg.Storage)
	if err != nil {
		return err
	}
	if c, ok := store.(io.Closer); ok {
		closers = append(closers, c)
	}

	frames, frameCloser, err := openFrameStore(cfg, sqlStore)
	if err != nil {
		return err
	}
	if frameCloser != nil {
		closers = append(closers, frameCloser)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	last, err := frames.LastFrame(ctx)
	if err != nil {
		return fmt.Errorf("read last frame: %w", err)
	}
	queue := event.NewQueue(event.QueueConfig{
		LaneCapacity: cfg.Queue.LaneCapacity,
		StartFrame:   last + 1,
	})
	log.Printf("📦 Event queue: %d slots per lane, resuming at frame %d", queue.Capacity(), queue.Frame())

	journal := eventlog.NewJournal(frames, eventlog.JournalConfig{AsyncBuffer: cfg.Journal.AsyncBuffer})
	if cfg.Journal.Async {
		journal.Start()
	}
	defer journal.Stop()

	hub := api.NewHub(api.HubConfig{Origins: cfg.Server.CORSOrigins})

	opts, err := cfg.EngineOptions()
	if err != nil {
		return err
	}
	scheduler := battle.NewTimerScheduler(context.WithoutCancel(ctx))
	engine := battle.NewEngine(battle.Deps{
		Storage:   store,
		Roster:    catalog,
		Notifier:  hub,
		Scheduler: scheduler,
		Queue:     queue,
	}, opts)

	server := api.NewServer(api.ServerConfig{
		Addr:        ":" + strconv.Itoa(cfg.Server.Port),
		CORSOrigins: cfg.Server.CORSOrigins,
		RateLimit: api.RateLimitConfig{
			RequestsPerSecond: cfg.Server.RateLimit,
			Burst:             cfg.Server.RateBurst,
		},
	}, hub, engine, journal, store)

	pump := eventlog.NewPump(queue, journal, eventlog.PumpConfig{
		Interval:  cfg.Queue.FrameInterval,
		DrainSize: cfg.Queue.DrainBatch,
		Async:     cfg.Journal.Async,
	})
	pump.OnFrame(hub.ObserveFrame)

	resumed, err := engine.ResumeAll(ctx, store)
	if err != nil {
		return err
	}
	if resumed > 0 {
		log.Printf("♻️ Resumed %d active battles", resumed)
	}

	// The pump outlives the signal context: ticks stop and drain first,
	// then the pump closes one final frame.
	pumpCtx, stopPump := context.WithCancel(context.WithoutCancel(ctx))
	defer stopPump()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return pump.Run(pumpCtx)
	})
	g.Go(func() error {
		<-gctx.Done()
		scheduler.Close() // Waits for in-flight ticks
		stopPump()
		return nil
	})
	g.Go(func() error {
		return server.Run(gctx)
	})
	g.Go(func() error {
		return api.RunDebugServer(gctx, api.ObservabilityConfig{
			Enabled:       cfg.Debug.Enabled,
			ListenAddr:    cfg.Debug.ListenAddr,
			BasicAuthUser: cfg.Debug.User,
			BasicAuthPass: cfg.Debug.Password,
		})
	})
	g.Go(func() error {
		return newAutoplayer(engine, catalog, cfg.Battle.Autoplay, cfg.Battle.AutoplayInterval).Run(gctx)
	})

	err = g.Wait()
	log.Printf("👋 Shutting down (%d battles still live)", len(engine.ActiveBattles()))
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func openBattleStore(cfg config.StorageConfig) (battleStore, *sqlite.Store, error) {
	switch strings.ToLower(cfg.Backend) {
	case "sqlite":
		s, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		log.Printf("💾 Battle store: sqlite (%s)", cfg.SQLitePath)
		return s, s, nil
	default:
		log.Println("💾 Battle store: memory")
		return memory.New(), nil, nil
	}
}

// openFrameStore picks the journal backend. A sqlite journal shares the
// battle store's database when the battle store is sqlite too.
func openFrameStore(cfg config.AppConfig, shared *sqlite.Store) (eventlog.FrameStore, io.Closer, error) {
	switch strings.ToLower(cfg.Journal.Backend) {
	case "sqlite":
		if shared != nil {
			log.Println("📼 Frame journal: sqlite (shared database)")
			return shared, nil, nil
		}
		s, err := sqlite.Open(cfg.Storage.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		log.Printf("📼 Frame journal: sqlite (%s)", cfg.Storage.SQLitePath)
		return s, s, nil
	case "redis":
		rcfg := redisstore.DefaultConfig(cfg.Journal.RedisAddr)
		rcfg.Password = cfg.Journal.RedisPassword
		rcfg.Database = cfg.Journal.RedisDB
		rcfg.Prefix = cfg.Journal.RedisPrefix
		rcfg.TTL = cfg.Journal.RedisTTL
		s, err := redisstore.NewFrameStore(rcfg)
		if err != nil {
			return nil, nil, err
		}
		log.Printf("📼 Frame journal: redis (%s, prefix %q)", cfg.Journal.RedisAddr, rcfg.Prefix)
		return s, s, nil
	default:
		log.Println("📼 Frame journal: memory")
		return eventlog.NewMemoryStore(), nil, nil
	}
}
