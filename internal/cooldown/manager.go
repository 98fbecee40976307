// Package cooldown tracks per-participant attack timing.
//
// Entries are scoped by battle id, so a participant id reused by another
// battle never inherits a stale cooldown.
package cooldown

import (
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

const shardCount = 32

// shard guards the cooldown entries of the battles hashed to it.
type shard struct {
	mu      sync.Mutex
	battles map[string]map[string]time.Time // battle id -> participant id -> last attack
}

// Manager is safe for concurrent use. Battles hash to independent shards, so
// ticks of different battles rarely contend.
type Manager struct {
	shards [shardCount]shard
}

// NewManager creates an empty cooldown manager.
func NewManager() *Manager {
	m := &Manager{}
	for i := range m.shards {
		m.shards[i].battles = make(map[string]map[string]time.Time)
	}
	return m
}

func (m *Manager) shardFor(battleID string) *shard {
	return &m.shards[xxhash.Sum64String(battleID)%shardCount]
}

// Interval returns the cooldown window for an attack rate.
func Interval(attacksPerSecond float64) time.Duration {
	if attacksPerSecond <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / attacksPerSecond)
}

// eligible reports whether an attack at now is allowed given the last attack.
func eligible(last time.Time, found bool, attacksPerSecond float64, now time.Time) bool {
	if attacksPerSecond <= 0 {
		return false
	}
	if !found {
		return true
	}
	return !now.Before(last.Add(Interval(attacksPerSecond)))
}

// CanAttack reports whether the participant may attack at now.
// No recorded attack means eligible immediately; a non-positive rate never is.
func (m *Manager) CanAttack(battleID, participantID string, attacksPerSecond float64, now time.Time) bool {
	s := m.shardFor(battleID)
	s.mu.Lock()
	defer s.mu.Unlock()

	last, found := s.battles[battleID][participantID]
	return eligible(last, found, attacksPerSecond, now)
}

// RecordAttack stores now as the participant's last attack, overwriting any prior value.
func (m *Manager) RecordAttack(battleID, participantID string, now time.Time) {
	s := m.shardFor(battleID)
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, ok := s.battles[battleID]
	if !ok {
		entries = make(map[string]time.Time)
		s.battles[battleID] = entries
	}
	entries[participantID] = now
}

// TryAttack checks eligibility and records the attack in one step.
// Two concurrent callers for the same participant never both succeed.
func (m *Manager) TryAttack(battleID, participantID string, attacksPerSecond float64, now time.Time) bool {
	s := m.shardFor(battleID)
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, ok := s.battles[battleID]
	last, found := entries[participantID]
	if !eligible(last, found, attacksPerSecond, now) {
		return false
	}
	if !ok {
		entries = make(map[string]time.Time)
		s.battles[battleID] = entries
	}
	entries[participantID] = now
	return true
}

// LastAttack returns the recorded last attack time, if any.
func (m *Manager) LastAttack(battleID, participantID string) (time.Time, bool) {
	s := m.shardFor(battleID)
	s.mu.Lock()
	defer s.mu.Unlock()

	last, found := s.battles[battleID][participantID]
	return last, found
}

// ClearBattleRecords removes every entry of a finished battle.
// Returns the number of entries removed.
func (m *Manager) ClearBattleRecords(battleID string) int {
	s := m.shardFor(battleID)
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.battles[battleID])
	delete(s.battles, battleID)
	return n
}

// Len returns the total number of tracked entries.
func (m *Manager) Len() int {
	total := 0
	for i := range m.shards {
		s := &m.shards[i]
		s.mu.Lock()
		for _, entries := range s.battles {
			total += len(entries)
		}
		s.mu.Unlock()
	}
	return total
}
