package sqlite

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"idle-arena/internal/battle"
	"idle-arena/internal/combat"
	"idle-arena/internal/event"
	"idle-arena/internal/eventlog"
	"idle-arena/internal/storage/storagetest"
)

func openTempStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "arena.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close store: %v", err)
		}
	})
	return store
}

func TestStore(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storagetest.Store { return openTempStore(t) })
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open("  "); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "arena.db")

	store, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.SaveBattle(ctx, battle.Battle{ID: "b1", CharacterID: "hero", EnemyID: "slime", Policy: "random"}); err != nil {
		t.Fatal(err)
	}
	if err := store.SaveFrame(ctx, 4, nil); err != nil {
		t.Fatal(err)
	}
	store.Close()

	// Migrations must be skipped the second time
	store, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer store.Close()
	if _, err := store.GetBattle(ctx, "b1"); err != nil {
		t.Errorf("battle lost after reopen: %v", err)
	}
	if last, _ := store.LastFrame(ctx); last != 4 {
		t.Errorf("LastFrame = %d, want 4", last)
	}
}

func TestUnreadableStatsFallBack(t *testing.T) {
	ctx := context.Background()
	store := openTempStore(t)

	blobs := []string{`{not json`, `{}`, `{"attack_power":20,"attacks_per_second":1}`}
	for i, blob := range blobs {
		if _, err := store.sqlDB.Exec(`
INSERT INTO participants (battle_id, id, source_id, name, team, level, health, max_health, alive, stats)
VALUES ('b1', ?, 'hero', 'Hero', 0, 1, 10, 10, 1, ?)`, fmt.Sprintf("p%d", i), blob); err != nil {
			t.Fatal(err)
		}
	}
	got, err := store.GetParticipants(ctx, "b1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(blobs) {
		t.Fatalf("Expected %d participants, got %d", len(blobs), len(got))
	}
	for _, p := range got {
		if p.Stats != combat.DefaultStats() {
			t.Errorf("%s: expected default stats, got %+v", p.ID, p.Stats)
		}
	}
}

func TestFrameStore(t *testing.T) {
	ctx := context.Background()
	store := openTempStore(t)
	j := eventlog.NewJournal(store, eventlog.JournalConfig{})

	rec := func(actor uint64, frame uint32) event.Record {
		r := event.New(event.EventTypeAttack, actor, 9, event.AttackPayload{Battle: 1, Damage: 7, Remaining: 3, Turn: 2}.Encode())
		r.Frame = frame
		return r
	}

	if err := j.PersistFrame(ctx, 1, []event.Record{rec(1, 1), rec(2, 1)}); err != nil {
		t.Fatal(err)
	}
	if err := j.PersistFrame(ctx, 2, nil); err != nil {
		t.Fatal(err)
	}
	if err := j.PersistFrame(ctx, 4, []event.Record{rec(3, 4)}); err != nil {
		t.Fatal(err)
	}

	got, err := j.LoadFrame(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0] != rec(1, 1) || got[1] != rec(2, 1) {
		t.Errorf("frame 1 = %+v", got)
	}
	if empty, err := j.LoadFrame(ctx, 2); err != nil || len(empty) != 0 {
		t.Errorf("empty frame = %v, %v", empty, err)
	}

	ranged, err := j.LoadFrameRange(ctx, 1, 4)
	if err != nil {
		t.Fatal(err)
	}
	if len(ranged) != 3 || ranged[2].Actor != 3 {
		t.Errorf("range = %+v", ranged)
	}

	integrity, err := j.ValidateFrameIntegrity(ctx, 1, 4)
	if err != nil {
		t.Fatal(err)
	}
	if integrity.Complete || integrity.ValidFrames != 3 || len(integrity.Missing) != 1 || integrity.Missing[0] != 3 {
		t.Errorf("integrity = %+v", integrity)
	}

	// Overwrite
	if err := j.PersistFrame(ctx, 1, []event.Record{rec(5, 1)}); err != nil {
		t.Fatal(err)
	}
	got, _ = j.LoadFrame(ctx, 1)
	if len(got) != 1 || got[0].Actor != 5 {
		t.Errorf("overwrite failed: %+v", got)
	}
	if last, _ := j.LastFrame(ctx); last != 4 {
		t.Errorf("LastFrame = %d, want 4", last)
	}
}
