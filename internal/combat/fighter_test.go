package combat

import (
	"math/rand/v2"
	"testing"
	"time"
)

// TestHealthBoundsAndDeathOnce applies random damage/heal sequences and checks
// health stays in [0, max] and Alive flips at most once
func TestHealthBoundsAndDeathOnce(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 0))

	for round := 0; round < 200; round++ {
		f := NewFighter("p", "P", TeamPlayers, 1, 50+rng.IntN(100), DefaultStats())
		flips := 0
		var deathAt time.Time

		for step := 0; step < 40; step++ {
			at := now.Add(time.Duration(step) * time.Second)
			wasAlive := f.Alive

			if rng.IntN(3) == 0 {
				f.Heal(rng.IntN(40) - 5)
			} else {
				f.TakeDamage(rng.IntN(60)-5, at)
			}

			if f.Health < 0 || f.Health > f.MaxHealth {
				t.Fatalf("health %d outside [0,%d]", f.Health, f.MaxHealth)
			}
			if wasAlive && !f.Alive {
				flips++
				deathAt = at
				if f.Health != 0 {
					t.Fatalf("died with health %d", f.Health)
				}
				if !f.DeathTime.Equal(at) {
					t.Fatalf("DeathTime %v, want %v", f.DeathTime, at)
				}
			}
			if !wasAlive && f.Alive {
				t.Fatal("fighter came back to life without Revive")
			}
		}

		if flips > 1 {
			t.Fatalf("Alive flipped %d times", flips)
		}
		if flips == 1 && !f.DeathTime.Equal(deathAt) {
			t.Fatalf("DeathTime moved after death: %v vs %v", f.DeathTime, deathAt)
		}
	}
}

// TestHealClamp verifies heals stop at max and don't affect the dead
func TestHealClamp(t *testing.T) {
	f := NewFighter("p", "P", TeamPlayers, 1, 100, DefaultStats())
	f.TakeDamage(30, now)

	if got := f.Heal(50); got != 30 {
		t.Errorf("Expected 30 restored, got %d", got)
	}
	if f.Health != 100 {
		t.Errorf("Expected health 100, got %d", f.Health)
	}

	f.TakeDamage(500, now)
	if got := f.Heal(10); got != 0 || f.Alive {
		t.Errorf("dead fighter healed (%d) or revived", got)
	}
}

// TestRevive verifies revival resets death state and counts
func TestRevive(t *testing.T) {
	f := NewFighter("p", "P", TeamPlayers, 1, 40, DefaultStats())
	if f.Revive() {
		t.Error("Revive on a living fighter should be a no-op")
	}

	f.TakeDamage(40, now)
	if !f.Revive() {
		t.Fatal("Revive should succeed on a dead fighter")
	}
	if !f.Alive || f.Health != 40 || !f.DeathTime.IsZero() || f.Revives != 1 {
		t.Errorf("unexpected state after revive: %+v", f)
	}
}

// TestNewFighterMinimumHealth verifies zero max health is coerced to 1
func TestNewFighterMinimumHealth(t *testing.T) {
	f := NewFighter("p", "P", TeamPlayers, 1, 0, DefaultStats())
	if f.MaxHealth != 1 || f.Health != 1 || !f.Alive {
		t.Errorf("unexpected fighter %+v", f)
	}
}
