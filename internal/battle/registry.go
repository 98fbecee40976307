package battle

import (
	"math/rand/v2"
	"sort"
	"sync"

	"idle-arena/internal/combat"
	"idle-arena/internal/event"
)

// liveBattle is the in-memory state of a battle held by the registry.
// mu serializes ticks, skills, and lifecycle changes for this battle.
type liveBattle struct {
	mu sync.Mutex

	battle       Battle
	participants []*Participant
	key          uint64 // event.ID(battle.ID)

	rng      *rand.Rand
	resolver *combat.Resolver
	targeter combat.Targeter

	dirty map[string]bool // Participants changed since the last checkpoint
	log   []LogEntry      // Entries not yet saved
}

func newLiveBattle(b Battle, participants []*Participant, targeter combat.Targeter) *liveBattle {
	key := event.ID(b.ID)
	// Seed from the id and turn so a resumed battle doesn't replay the same rolls
	rng := rand.New(rand.NewPCG(key, uint64(b.Turn)))
	return &liveBattle{
		battle:       b,
		participants: participants,
		key:          key,
		rng:          rng,
		resolver:     combat.NewResolver(rng),
		targeter:     targeter,
		dirty:        make(map[string]bool),
	}
}

// fighters returns the combat view of all participants in iteration order
func (lb *liveBattle) fighters() []*combat.Fighter {
	out := make([]*combat.Fighter, len(lb.participants))
	for i, p := range lb.participants {
		out[i] = &p.Fighter
	}
	return out
}

func (lb *liveBattle) participant(id string) *Participant {
	for _, p := range lb.participants {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func (lb *liveBattle) byFighter(f *combat.Fighter) *Participant {
	if f == nil {
		return nil
	}
	return lb.participant(f.ID)
}

// alive counts living participants per team
func (lb *liveBattle) alive() (team0, team1 int) {
	for _, p := range lb.participants {
		if !p.Alive {
			continue
		}
		if p.Team == combat.TeamPlayers {
			team0++
		} else {
			team1++
		}
	}
	return team0, team1
}

// teamSizes counts all participants per team
func (lb *liveBattle) teamSizes() (team0, team1 int) {
	for _, p := range lb.participants {
		if p.Team == combat.TeamPlayers {
			team0++
		} else {
			team1++
		}
	}
	return team0, team1
}

func (lb *liveBattle) snapshot() Snapshot {
	ps := make([]Participant, len(lb.participants))
	for i, p := range lb.participants {
		ps[i] = *p
	}
	return Snapshot{Battle: lb.battle, Participants: ps, Live: true}
}

// Registry is the set of live battles, keyed by battle id.
// The registry lock only guards the map; battle state is guarded per battle.
type Registry struct {
	mu      sync.RWMutex
	battles map[string]*liveBattle
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{battles: make(map[string]*liveBattle)}
}

func (r *Registry) get(id string) *liveBattle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.battles[id]
}

// add stores lb unless a battle with the same id is already live
func (r *Registry) add(lb *liveBattle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.battles[lb.battle.ID]; exists {
		return false
	}
	r.battles[lb.battle.ID] = lb
	return true
}

func (r *Registry) remove(id string) {
	r.mu.Lock()
	delete(r.battles, id)
	r.mu.Unlock()
}

// IDs returns live battle ids, sorted
func (r *Registry) IDs() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.battles))
	for id := range r.battles {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// Len returns the number of live battles
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.battles)
}
