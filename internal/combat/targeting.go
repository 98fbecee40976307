package combat

import "strings"

// Targeter picks who a fighter attacks. Implementations must only return a
// living fighter from the opposing team, or nil when there is none.
type Targeter interface {
	Name() string
	Select(actor *Fighter, candidates []*Fighter, rng Rand) *Fighter
}

// Built-in policy names.
const (
	PolicyLowestHealth  = "lowest_health"
	PolicyHighestHealth = "highest_health"
	PolicyFirstAlive    = "first_alive"
	PolicyRandom        = "random"
)

// PolicyCode maps a policy name to a compact code for event payloads.
// Unknown names map to 255.
func PolicyCode(name string) uint8 {
	switch name {
	case PolicyLowestHealth:
		return 0
	case PolicyHighestHealth:
		return 1
	case PolicyFirstAlive:
		return 2
	case PolicyRandom:
		return 3
	default:
		return 255
	}
}

// PolicyByName returns a built-in targeter.
func PolicyByName(name string) (Targeter, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case PolicyLowestHealth, "":
		return LowestHealth{}, true
	case PolicyHighestHealth:
		return HighestHealth{}, true
	case PolicyFirstAlive:
		return FirstAlive{}, true
	case PolicyRandom:
		return RandomTarget{}, true
	default:
		return nil, false
	}
}

// opponents returns living fighters not on actor's team, in iteration order.
func opponents(actor *Fighter, candidates []*Fighter) []*Fighter {
	out := make([]*Fighter, 0, len(candidates))
	for _, c := range candidates {
		if c == nil || c == actor || !c.Alive || c.Team == actor.Team {
			continue
		}
		out = append(out, c)
	}
	return out
}

// LowestHealth focuses the weakest opponent. Ties go to the first encountered.
type LowestHealth struct{}

func (LowestHealth) Name() string { return PolicyLowestHealth }

func (LowestHealth) Select(actor *Fighter, candidates []*Fighter, _ Rand) *Fighter {
	var best *Fighter
	for _, c := range opponents(actor, candidates) {
		if best == nil || c.Health < best.Health {
			best = c
		}
	}
	return best
}

// HighestHealth focuses the healthiest opponent. Ties go to the first encountered.
type HighestHealth struct{}

func (HighestHealth) Name() string { return PolicyHighestHealth }

func (HighestHealth) Select(actor *Fighter, candidates []*Fighter, _ Rand) *Fighter {
	var best *Fighter
	for _, c := range opponents(actor, candidates) {
		if best == nil || c.Health > best.Health {
			best = c
		}
	}
	return best
}

// FirstAlive attacks the first living opponent in iteration order.
type FirstAlive struct{}

func (FirstAlive) Name() string { return PolicyFirstAlive }

func (FirstAlive) Select(actor *Fighter, candidates []*Fighter, _ Rand) *Fighter {
	if opp := opponents(actor, candidates); len(opp) > 0 {
		return opp[0]
	}
	return nil
}

// RandomTarget picks a uniformly random living opponent.
type RandomTarget struct{}

func (RandomTarget) Name() string { return PolicyRandom }

func (RandomTarget) Select(actor *Fighter, candidates []*Fighter, rng Rand) *Fighter {
	opp := opponents(actor, candidates)
	if len(opp) == 0 {
		return nil
	}
	idx := int(rng.Float64() * float64(len(opp)))
	if idx >= len(opp) {
		idx = len(opp) - 1
	}
	return opp[idx]
}
