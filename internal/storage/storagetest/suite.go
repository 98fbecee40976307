// Package storagetest holds behaviour checks shared by every battle store
package storagetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"idle-arena/internal/battle"
	"idle-arena/internal/combat"
)

// Store is what the suite exercises
type Store interface {
	battle.Storage
	battle.Browser
}

var epoch = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func sampleBattle(id string, status battle.Status, created time.Time) battle.Battle {
	return battle.Battle{
		ID:           id,
		CharacterID:  "hero",
		EnemyID:      "slime",
		RegionID:     "meadow",
		Kind:         battle.KindElite,
		Status:       status,
		Policy:       "lowest_health",
		ReviveOnWipe: true,
		MaxTurns:     3000,
		Turn:         4,
		CreatedAt:    created,
		StartedAt:    created.Add(time.Second),
	}
}

func sampleParticipant(battleID, id string, team int) battle.Participant {
	stats := combat.DefaultStats()
	stats.AttackPower = 17
	stats.CriticalChance = 0.25
	f := combat.NewFighter(id, "Fighter "+id, team, 6, 90, stats)
	return battle.Participant{Fighter: f, BattleID: battleID, SourceID: "tmpl-" + id, IsPlayer: team == combat.TeamPlayers}
}

// Run executes the suite against fresh stores from newStore
func Run(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("battle round trip", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		want := sampleBattle("b1", battle.StatusActive, epoch)
		if err := s.SaveBattle(ctx, want); err != nil {
			t.Fatalf("SaveBattle: %v", err)
		}
		got, err := s.GetBattle(ctx, "b1")
		if err != nil {
			t.Fatalf("GetBattle: %v", err)
		}
		if got.ID != want.ID || got.Kind != want.Kind || got.Status != want.Status ||
			got.Policy != want.Policy || got.ReviveOnWipe != want.ReviveOnWipe ||
			got.MaxTurns != want.MaxTurns || got.Turn != want.Turn || got.RegionID != want.RegionID {
			t.Errorf("got %+v, want %+v", got, want)
		}
		if !got.CreatedAt.Equal(want.CreatedAt) || !got.StartedAt.Equal(want.StartedAt) || !got.EndedAt.IsZero() {
			t.Errorf("timestamps: got %+v", got)
		}

		want.Status = battle.StatusCompleted
		want.Turn = 9
		want.EndedAt = epoch.Add(time.Minute)
		if err := s.SaveBattle(ctx, want); err != nil {
			t.Fatalf("SaveBattle update: %v", err)
		}
		got, _ = s.GetBattle(ctx, "b1")
		if got.Status != battle.StatusCompleted || got.Turn != 9 || !got.EndedAt.Equal(want.EndedAt) {
			t.Errorf("update not applied: %+v", got)
		}
	})

	t.Run("missing battle", func(t *testing.T) {
		s := newStore(t)
		if _, err := s.GetBattle(context.Background(), "nope"); !errors.Is(err, battle.ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
		if _, err := s.GetResult(context.Background(), "nope"); !errors.Is(err, battle.ErrNotFound) {
			t.Errorf("Expected ErrNotFound for result, got %v", err)
		}
	})

	t.Run("participants keep order and upsert", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		for _, p := range []battle.Participant{
			sampleParticipant("b1", "p1", 0),
			sampleParticipant("b1", "p2", 1),
			sampleParticipant("b2", "p3", 0),
		} {
			if err := s.SaveParticipant(ctx, p); err != nil {
				t.Fatalf("SaveParticipant: %v", err)
			}
		}

		hurt := sampleParticipant("b1", "p1", 0)
		hurt.TakeDamage(90, epoch)
		if err := s.SaveParticipant(ctx, hurt); err != nil {
			t.Fatal(err)
		}

		got, err := s.GetParticipants(ctx, "b1")
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 2 || got[0].ID != "p1" || got[1].ID != "p2" {
			t.Fatalf("participants = %+v", got)
		}
		if got[0].Alive || got[0].Health != 0 || !got[0].DeathTime.Equal(epoch) {
			t.Errorf("update lost: %+v", got[0].Fighter)
		}
		if got[1].Stats.AttackPower != 17 || got[1].Stats.CriticalChance != 0.25 || got[1].Team != 1 || got[1].IsPlayer {
			t.Errorf("fields lost: %+v", got[1])
		}
		if got[0].SourceID != "tmpl-p1" || !got[0].IsPlayer {
			t.Errorf("binding lost: %+v", got[0])
		}

		none, err := s.GetParticipants(ctx, "b9")
		if err != nil || len(none) != 0 {
			t.Errorf("unknown battle: %v, %v", none, err)
		}
	})

	t.Run("combat log", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		entries := []battle.LogEntry{
			{BattleID: "b1", Turn: 1, Type: "attack", ActorID: "p1", TargetID: "p2", Amount: 12, At: epoch},
			{BattleID: "b1", Turn: 1, Type: "miss", ActorID: "p2", TargetID: "p1", At: epoch},
			{BattleID: "b1", Turn: 2, Type: "death", ActorID: "p1", TargetID: "p2", Amount: 30, Critical: true, At: epoch.Add(time.Second)},
			{BattleID: "b2", Turn: 1, Type: "attack", At: epoch},
		}
		for _, e := range entries {
			if err := s.SaveEvent(ctx, e); err != nil {
				t.Fatalf("SaveEvent: %v", err)
			}
		}
		got, err := s.GetEvents(ctx, "b1")
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 3 {
			t.Fatalf("Expected 3 entries, got %d", len(got))
		}
		if got[2].Type != "death" || !got[2].Critical || got[2].Amount != 30 || got[0].TargetID != "p2" {
			t.Errorf("entries = %+v", got)
		}
	})

	t.Run("result written once", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		want := battle.Result{
			BattleID:    "b1",
			Outcome:     battle.OutcomeVictory,
			WinningTeam: 0,
			Duration:    3200 * time.Millisecond,
			Turns:       32,
			Survivors:   []string{"p1"},
			Rewards:     battle.Rewards{Experience: 45, Gold: 22, Items: []string{"scale"}},
			CreatedAt:   epoch,
		}
		if err := s.SaveResult(ctx, want); err != nil {
			t.Fatalf("SaveResult: %v", err)
		}
		got, err := s.GetResult(ctx, "b1")
		if err != nil {
			t.Fatal(err)
		}
		if got.Outcome != want.Outcome || got.Duration != want.Duration || got.Turns != 32 ||
			len(got.Survivors) != 1 || got.Rewards.Experience != 45 || len(got.Rewards.Items) != 1 {
			t.Errorf("got %+v, want %+v", got, want)
		}

		again := want
		again.Outcome = battle.OutcomeDefeat
		if err := s.SaveResult(ctx, again); err == nil {
			t.Error("second result should be rejected")
		}
		got, _ = s.GetResult(ctx, "b1")
		if got.Outcome != battle.OutcomeVictory {
			t.Error("result was overwritten")
		}
	})

	t.Run("list by status", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		battles := []battle.Battle{
			sampleBattle("late", battle.StatusActive, epoch.Add(time.Hour)),
			sampleBattle("done", battle.StatusCompleted, epoch),
			sampleBattle("early", battle.StatusActive, epoch),
		}
		for _, b := range battles {
			if err := s.SaveBattle(ctx, b); err != nil {
				t.Fatal(err)
			}
		}
		got, err := s.ListBattles(ctx, battle.StatusActive)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 2 || got[0].ID != "early" || got[1].ID != "late" {
			t.Errorf("active = %+v", got)
		}
	})
}
