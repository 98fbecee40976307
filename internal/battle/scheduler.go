package battle

import (
	"context"
	"sync"
	"time"
)

// timerEntry is the pending work for one battle
type timerEntry struct {
	ctx    context.Context
	cancel context.CancelFunc
	timer  *time.Timer
}

// TimerScheduler schedules battle ticks with time.AfterFunc.
// Each battle gets a context that lives until Cancel or Close, so work
// already in flight can observe cancellation.
type TimerScheduler struct {
	mu      sync.Mutex
	base    context.Context
	entries map[string]*timerEntry
	closed  bool
	running sync.WaitGroup // Callbacks currently executing
}

// NewTimerScheduler creates a scheduler whose battle contexts derive from base
func NewTimerScheduler(base context.Context) *TimerScheduler {
	return &TimerScheduler{
		base:    base,
		entries: make(map[string]*timerEntry),
	}
}

// Schedule runs fn after delay. A later Schedule for the same battle
// replaces a pending one.
func (s *TimerScheduler) Schedule(battleID string, delay time.Duration, fn func(ctx context.Context)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	entry, ok := s.entries[battleID]
	if !ok {
		ctx, cancel := context.WithCancel(s.base)
		entry = &timerEntry{ctx: ctx, cancel: cancel}
		s.entries[battleID] = entry
	}
	if entry.timer != nil {
		entry.timer.Stop()
	}

	ctx := entry.ctx
	entry.timer = time.AfterFunc(delay, func() {
		if !s.begin(ctx) {
			return
		}
		defer s.running.Done()
		fn(ctx)
	})
}

// begin registers a callback about to run. Close flips closed under the
// same lock, so nothing is added once Close has started waiting.
func (s *TimerScheduler) begin(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || ctx.Err() != nil {
		return false
	}
	s.running.Add(1)
	return true
}

// Cancel stops pending work for a battle and cancels its context
func (s *TimerScheduler) Cancel(battleID string) {
	s.mu.Lock()
	entry, ok := s.entries[battleID]
	delete(s.entries, battleID)
	s.mu.Unlock()

	if !ok {
		return
	}
	if entry.timer != nil {
		entry.timer.Stop()
	}
	entry.cancel()
}

// Pending returns the number of battles with scheduled work
func (s *TimerScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Close cancels everything, rejects further scheduling, and returns once
// callbacks already running have finished. Must not be called from a
// scheduled callback.
func (s *TimerScheduler) Close() {
	s.mu.Lock()
	entries := s.entries
	s.entries = make(map[string]*timerEntry)
	s.closed = true
	s.mu.Unlock()

	for _, entry := range entries {
		if entry.timer != nil {
			entry.timer.Stop()
		}
		entry.cancel()
	}
	s.running.Wait()
}
