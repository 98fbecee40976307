// Package memory is a process-local battle store, used when no database is
// configured and in tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"idle-arena/internal/battle"
)

// Store keeps battles, participants, the combat log, and results in maps
type Store struct {
	mu           sync.RWMutex
	battles      map[string]battle.Battle
	participants map[string][]battle.Participant // Insertion order per battle
	events       map[string][]battle.LogEntry
	results      map[string]battle.Result
}

// New creates an empty store
func New() *Store {
	return &Store{
		battles:      make(map[string]battle.Battle),
		participants: make(map[string][]battle.Participant),
		events:       make(map[string][]battle.LogEntry),
		results:      make(map[string]battle.Result),
	}
}

func (s *Store) GetBattle(ctx context.Context, id string) (battle.Battle, error) {
	if err := ctx.Err(); err != nil {
		return battle.Battle{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.battles[id]
	if !ok {
		return battle.Battle{}, fmt.Errorf("battle %s: %w", id, battle.ErrNotFound)
	}
	return b, nil
}

func (s *Store) SaveBattle(ctx context.Context, b battle.Battle) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	s.battles[b.ID] = b
	s.mu.Unlock()
	return nil
}

// SaveParticipant inserts or replaces a participant by id within its battle
func (s *Store) SaveParticipant(ctx context.Context, p battle.Participant) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.participants[p.BattleID]
	for i := range list {
		if list[i].ID == p.ID {
			list[i] = p
			return nil
		}
	}
	s.participants[p.BattleID] = append(list, p)
	return nil
}

func (s *Store) GetParticipants(ctx context.Context, battleID string) ([]battle.Participant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]battle.Participant(nil), s.participants[battleID]...), nil
}

func (s *Store) SaveEvent(ctx context.Context, e battle.LogEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	s.events[e.BattleID] = append(s.events[e.BattleID], e)
	s.mu.Unlock()
	return nil
}

// SaveResult stores the result of a battle. A result is written once.
func (s *Store) SaveResult(ctx context.Context, r battle.Result) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.results[r.BattleID]; exists {
		return fmt.Errorf("result for battle %s already stored", r.BattleID)
	}
	s.results[r.BattleID] = r
	return nil
}

func (s *Store) GetResult(ctx context.Context, battleID string) (battle.Result, error) {
	if err := ctx.Err(); err != nil {
		return battle.Result{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.results[battleID]
	if !ok {
		return battle.Result{}, fmt.Errorf("result %s: %w", battleID, battle.ErrNotFound)
	}
	return r, nil
}

// ListBattles returns battles with the given status, oldest first
func (s *Store) ListBattles(ctx context.Context, status battle.Status) ([]battle.Battle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	out := make([]battle.Battle, 0)
	for _, b := range s.battles {
		if b.Status == status {
			out = append(out, b)
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// GetEvents returns the combat log of a battle in write order
func (s *Store) GetEvents(ctx context.Context, battleID string) ([]battle.LogEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]battle.LogEntry(nil), s.events[battleID]...), nil
}
