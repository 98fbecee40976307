package combat

import "testing"

func roster() (*Fighter, []*Fighter) {
	actor := fighter("hero", TeamPlayers, 100, DefaultStats())
	ally := fighter("ally", TeamPlayers, 5, DefaultStats())
	a := fighter("a", TeamEnemies, 60, DefaultStats())
	b := fighter("b", TeamEnemies, 60, DefaultStats())
	c := fighter("c", TeamEnemies, 60, DefaultStats())
	a.Health, b.Health, c.Health = 40, 20, 20
	dead := fighter("dead", TeamEnemies, 60, DefaultStats())
	dead.TakeDamage(60, now)
	return actor, []*Fighter{actor, ally, dead, a, b, c}
}

// TestTargetPolicies verifies each built-in policy and its tie-break
func TestTargetPolicies(t *testing.T) {
	tests := []struct {
		policy string
		want   string
	}{
		{PolicyLowestHealth, "b"},  // b and c tie at 20, b first
		{PolicyHighestHealth, "a"}, // a at 40
		{PolicyFirstAlive, "a"},    // dead skipped
	}
	for _, tt := range tests {
		t.Run(tt.policy, func(t *testing.T) {
			p, ok := PolicyByName(tt.policy)
			if !ok {
				t.Fatalf("policy %q not found", tt.policy)
			}
			actor, all := roster()
			got := p.Select(actor, all, &seqRand{})
			if got == nil || got.ID != tt.want {
				t.Errorf("Select = %v, want %s", got, tt.want)
			}
		})
	}
}

// TestRandomTargetOnlyOpponents verifies random picks stay within living opponents
func TestRandomTargetOnlyOpponents(t *testing.T) {
	actor, all := roster()
	for _, roll := range []float64{0, 0.34, 0.67, 0.999999} {
		got := RandomTarget{}.Select(actor, all, &seqRand{rolls: []float64{roll}})
		if got == nil || got.Team == actor.Team || !got.Alive {
			t.Errorf("roll %v picked %+v", roll, got)
		}
	}
}

// TestNoOpponents verifies policies return nil when nobody is left
func TestNoOpponents(t *testing.T) {
	actor := fighter("hero", TeamPlayers, 100, DefaultStats())
	ally := fighter("ally", TeamPlayers, 100, DefaultStats())
	for _, name := range []string{PolicyLowestHealth, PolicyHighestHealth, PolicyFirstAlive, PolicyRandom} {
		p, _ := PolicyByName(name)
		if got := p.Select(actor, []*Fighter{actor, ally}, &seqRand{}); got != nil {
			t.Errorf("%s selected %s with no opponents", name, got.ID)
		}
	}
}

// TestPolicyByNameUnknown verifies unknown names are reported and empty means default
func TestPolicyByNameUnknown(t *testing.T) {
	if _, ok := PolicyByName("closest"); ok {
		t.Error("unknown policy should not resolve")
	}
	if p, ok := PolicyByName(""); !ok || p.Name() != PolicyLowestHealth {
		t.Error("empty policy should resolve to lowest health")
	}
	if PolicyCode("closest") != 255 || PolicyCode(PolicyRandom) != 3 {
		t.Error("unexpected policy codes")
	}
}
