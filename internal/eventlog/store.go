// Package eventlog persists drained frames and reads them back for replay
// and audit. A frame is stored as one unit, keyed by its number; saving a
// frame again replaces it, so re-persisting a replayed frame never
// duplicates records.
package eventlog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"idle-arena/internal/event"
)

// ErrFrameNotFound is returned when a frame was never persisted
var ErrFrameNotFound = errors.New("frame not found")

// FrameStore is the durable backend for frames.
// Records must come back with every field as saved, in saved order.
type FrameStore interface {
	// SaveFrame stores records as the full content of frame, replacing any previous content
	SaveFrame(ctx context.Context, frame uint32, records []event.Record) error
	// LoadFrame returns the records of frame; found is false if it was never saved
	LoadFrame(ctx context.Context, frame uint32) (records []event.Record, found bool, err error)
	// LoadRange returns the records of frames from..to inclusive, in frame order
	LoadRange(ctx context.Context, from, to uint32) ([]event.Record, error)
	// Frames returns the persisted frame numbers within from..to inclusive, ascending
	Frames(ctx context.Context, from, to uint32) ([]uint32, error)
	// LastFrame returns the highest persisted frame, 0 if none
	LastFrame(ctx context.Context) (uint32, error)
}

// MemoryStore is a FrameStore kept in process memory. Frames are held in
// their binary encoding so reads return copies.
type MemoryStore struct {
	mu     sync.RWMutex
	frames map[uint32][]byte
}

// NewMemoryStore creates an empty in-memory frame store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{frames: make(map[uint32][]byte)}
}

func (s *MemoryStore) SaveFrame(ctx context.Context, frame uint32, records []event.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data := event.EncodeRecords(records)
	s.mu.Lock()
	s.frames[frame] = data
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) LoadFrame(ctx context.Context, frame uint32) ([]event.Record, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	s.mu.RLock()
	data, ok := s.frames[frame]
	s.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	records, err := event.DecodeRecords(data)
	if err != nil {
		return nil, true, fmt.Errorf("decode frame %d: %w", frame, err)
	}
	return records, true, nil
}

func (s *MemoryStore) LoadRange(ctx context.Context, from, to uint32) ([]event.Record, error) {
	frames, err := s.Frames(ctx, from, to)
	if err != nil {
		return nil, err
	}
	var out []event.Record
	for _, f := range frames {
		records, _, err := s.LoadFrame(ctx, f)
		if err != nil {
			return nil, err
		}
		out = append(out, records...)
	}
	return out, nil
}

func (s *MemoryStore) Frames(ctx context.Context, from, to uint32) ([]uint32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	out := make([]uint32, 0)
	for f := range s.frames {
		if f >= from && f <= to {
			out = append(out, f)
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (s *MemoryStore) LastFrame(ctx context.Context) (uint32, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var last uint32
	for f := range s.frames {
		if f > last {
			last = f
		}
	}
	return last, nil
}

// Len returns the number of stored frames
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.frames)
}
