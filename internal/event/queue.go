// Package event implements the fixed-size event record and the unified,
// frame-bucketed priority queue that carries records from producers
// (ticks, skills, AI decisions, telemetry) to the frame pump.
//
// Ordering: within one closed frame every Gameplay record drains before any
// AI record, AI before Analytics, Analytics before Telemetry. Inside a lane
// records keep enqueue order.
package event

import (
	"sync"
	"sync/atomic"
)

// DefaultLaneCapacity is the per-lane slot count when none is configured.
const DefaultLaneCapacity = 4096

// QueueConfig configures a Queue.
type QueueConfig struct {
	LaneCapacity int    // Slots per lane, rounded up to a power of 2
	StartFrame   uint32 // First open frame; 0 means 1
}

// Enqueuer accepts records. Implemented by *Queue.
type Enqueuer interface {
	Enqueue(rec Record) bool
}

// LaneStats is a point-in-time view of one lane.
type LaneStats struct {
	Priority Priority
	Capacity int
	Pending  int
	Enqueued uint64
	Dropped  uint64
	Drained  uint64
}

// Queue is the unified event queue: four bounded lanes bucketed by frame.
//
// Producers call Enqueue concurrently. A single consumer calls AdvanceFrame
// and CollectFrameEvents.
type Queue struct {
	// frameMu orders frame stamping against AdvanceFrame: producers hold the
	// read side while stamping and pushing, so once AdvanceFrame returns every
	// record of the closed frame is visible to the consumer.
	frameMu sync.RWMutex
	frame   atomic.Uint32 // Open frame
	closed  atomic.Uint32 // Last closed frame (0 = none)

	lanes [LaneCount]*lane
}

// NewQueue creates a queue with fixed per-lane capacity.
func NewQueue(cfg QueueConfig) *Queue {
	capacity := cfg.LaneCapacity
	if capacity <= 0 {
		capacity = DefaultLaneCapacity
	}
	start := cfg.StartFrame
	if start == 0 {
		start = 1
	}

	q := &Queue{}
	q.frame.Store(start)
	q.closed.Store(start - 1)
	for i := range q.lanes {
		q.lanes[i] = newLane(capacity)
	}
	return q
}

// Enqueue adds a record to its priority lane. A record with Frame 0 is stamped
// with the open frame; a non-zero frame (replay) is kept as is.
// Returns false if the lane is full; the record is dropped (backpressure).
func (q *Queue) Enqueue(rec Record) bool {
	if rec.Priority >= LaneCount {
		return false
	}

	q.frameMu.RLock()
	if rec.Frame == 0 {
		rec.Frame = q.frame.Load()
	}
	ok := q.lanes[rec.Priority].push(rec)
	q.frameMu.RUnlock()

	return ok
}

// AdvanceFrame closes the open frame and opens the next one.
// Returns the frame that was closed.
func (q *Queue) AdvanceFrame() uint32 {
	q.frameMu.Lock()
	defer q.frameMu.Unlock()

	closed := q.frame.Load()
	q.closed.Store(closed)
	q.frame.Store(closed + 1)
	return closed
}

// CollectFrameEvents drains records of closed frames into buf in strict lane
// order, writing at most min(maxCount, len(buf)) records. Returns the count.
// Records stamped with the still-open frame stay queued.
func (q *Queue) CollectFrameEvents(buf []Record, maxCount int) int {
	limit := maxCount
	if limit > len(buf) {
		limit = len(buf)
	}
	closed := q.closed.Load()

	n := 0
	for _, l := range q.lanes {
		for n < limit {
			rec, ok := l.peek()
			if !ok || rec.Frame > closed {
				break
			}
			buf[n] = *rec
			l.advance()
			n++
		}
		if n >= limit {
			break
		}
	}
	return n
}

// Frame returns the open frame.
func (q *Queue) Frame() uint32 {
	return q.frame.Load()
}

// LastClosed returns the most recently closed frame (0 if none).
func (q *Queue) LastClosed() uint32 {
	return q.closed.Load()
}

// Len returns the approximate number of queued records across all lanes.
func (q *Queue) Len() int {
	total := 0
	for _, l := range q.lanes {
		total += l.len()
	}
	return total
}

// LaneLen returns the approximate number of records queued in one lane.
func (q *Queue) LaneLen(p Priority) int {
	if p >= LaneCount {
		return 0
	}
	return q.lanes[p].len()
}

// Capacity returns the total slot count across lanes.
func (q *Queue) Capacity() int {
	total := 0
	for _, l := range q.lanes {
		total += l.cap()
	}
	return total
}

// Stats returns per-lane counters, Gameplay first.
func (q *Queue) Stats() [LaneCount]LaneStats {
	var out [LaneCount]LaneStats
	for i, l := range q.lanes {
		out[i] = LaneStats{
			Priority: Priority(i),
			Capacity: l.cap(),
			Pending:  l.len(),
			Enqueued: l.enqueued.Load(),
			Dropped:  l.dropped.Load(),
			Drained:  l.drained.Load(),
		}
	}
	return out
}
