package main

import (
	"context"
	"log"
	"math/rand/v2"
	"time"

	"idle-arena/internal/battle"
	"idle-arena/internal/config"
)

// autoplayer keeps a fixed number of catalog battles running so observers
// always have something to watch.
type autoplayer struct {
	engine   *battle.Engine
	catalog  *config.Catalog
	target   int
	interval time.Duration
	rng      *rand.Rand
}

func newAutoplayer(engine *battle.Engine, catalog *config.Catalog, target int, interval time.Duration) *autoplayer {
	return &autoplayer{
		engine:   engine,
		catalog:  catalog,
		target:   target,
		interval: interval,
		rng:      rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x41524e41)),
	}
}

func (a *autoplayer) Run(ctx context.Context) error {
	if a.target <= 0 || len(a.catalog.Characters) == 0 || len(a.catalog.Enemies) == 0 {
		return nil
	}
	log.Printf("🎲 Autoplay keeping %d battles running", a.target)

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()
	for {
		a.fill(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// fill starts battles until the target is reached. Stops at the first failure.
func (a *autoplayer) fill(ctx context.Context) {
	for n := len(a.engine.ActiveBattles()); n < a.target; n++ {
		character := a.catalog.Characters[a.rng.IntN(len(a.catalog.Characters))]
		enemy := a.catalog.Enemies[a.rng.IntN(len(a.catalog.Enemies))]

		kind := battle.KindNormal
		if len(enemy.Loot) > 0 {
			kind = battle.KindBoss
		}
		id, err := a.engine.CreateBattle(ctx, battle.CreateParams{
			CharacterID: character.ID,
			EnemyID:     enemy.ID,
			Kind:        kind,
		})
		if err != nil {
			log.Printf("⚠️ Autoplay create: %v", err)
			return
		}
		if err := a.engine.StartBattle(ctx, id); err != nil {
			log.Printf("⚠️ Autoplay start %s: %v", id, err)
			return
		}
	}
}
