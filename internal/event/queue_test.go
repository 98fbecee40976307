package event

import (
	"sync"
	"testing"
)

func rec(t EventType, p Priority, actor uint64) Record {
	r := New(t, actor, 0, [PayloadSize]byte{})
	r.Priority = p
	return r
}

// TestCollectFrameEventsPriorityOrder verifies lanes drain Gameplay, AI, Analytics, Telemetry
// regardless of enqueue order
func TestCollectFrameEventsPriorityOrder(t *testing.T) {
	q := NewQueue(QueueConfig{LaneCapacity: 16})

	order := []Priority{
		PriorityTelemetry, PriorityAnalytics, PriorityGameplay, PriorityAI,
		PriorityTelemetry, PriorityGameplay, PriorityAI, PriorityAnalytics,
	}
	for i, p := range order {
		if !q.Enqueue(rec(EventTypeAttack, p, uint64(i))) {
			t.Fatalf("enqueue %d rejected", i)
		}
	}

	q.AdvanceFrame()
	buf := make([]Record, 32)
	n := q.CollectFrameEvents(buf, len(buf))
	if n != len(order) {
		t.Fatalf("Expected %d records, got %d", len(order), n)
	}

	for i := 1; i < n; i++ {
		if buf[i].Priority < buf[i-1].Priority {
			t.Fatalf("record %d (%s) drained after %s", i, buf[i].Priority, buf[i-1].Priority)
		}
	}

	// FIFO inside a lane
	if buf[0].Actor != 2 || buf[1].Actor != 5 {
		t.Errorf("Gameplay lane order = %d,%d, want 2,5", buf[0].Actor, buf[1].Actor)
	}
}

// TestEnqueueBackpressure verifies a full lane rejects without affecting other lanes
func TestEnqueueBackpressure(t *testing.T) {
	q := NewQueue(QueueConfig{LaneCapacity: 4})

	for i := 0; i < 4; i++ {
		if !q.Enqueue(rec(EventTypeAttack, PriorityGameplay, uint64(i))) {
			t.Fatalf("enqueue %d should fit", i)
		}
	}
	if q.Enqueue(rec(EventTypeAttack, PriorityGameplay, 99)) {
		t.Error("Enqueue on a full lane should return false")
	}
	if !q.Enqueue(rec(EventTypeTickTiming, PriorityTelemetry, 1)) {
		t.Error("Telemetry lane should be unaffected by a full Gameplay lane")
	}

	stats := q.Stats()
	if stats[PriorityGameplay].Dropped != 1 {
		t.Errorf("Expected 1 dropped, got %d", stats[PriorityGameplay].Dropped)
	}

	// Draining frees capacity again
	q.AdvanceFrame()
	buf := make([]Record, 8)
	q.CollectFrameEvents(buf, len(buf))
	if !q.Enqueue(rec(EventTypeAttack, PriorityGameplay, 5)) {
		t.Error("Enqueue should succeed after drain")
	}
}

// TestCapacityRoundsUp verifies lane capacity is a power of 2
func TestCapacityRoundsUp(t *testing.T) {
	q := NewQueue(QueueConfig{LaneCapacity: 5})
	if got := q.Capacity(); got != 8*LaneCount {
		t.Errorf("Expected capacity %d, got %d", 8*LaneCount, got)
	}
}

// TestFrameBucketing verifies records enqueued after AdvanceFrame wait for the next frame
func TestFrameBucketing(t *testing.T) {
	q := NewQueue(QueueConfig{LaneCapacity: 16})

	q.Enqueue(rec(EventTypeAttack, PriorityGameplay, 1))
	closed := q.AdvanceFrame()
	if closed != 1 {
		t.Fatalf("Expected first closed frame 1, got %d", closed)
	}
	q.Enqueue(rec(EventTypeAttack, PriorityGameplay, 2))

	buf := make([]Record, 8)
	n := q.CollectFrameEvents(buf, len(buf))
	if n != 1 || buf[0].Actor != 1 || buf[0].Frame != 1 {
		t.Fatalf("Expected only frame-1 record, got n=%d first=%+v", n, buf[0])
	}

	if n := q.CollectFrameEvents(buf, len(buf)); n != 0 {
		t.Errorf("open-frame record drained early (%d)", n)
	}

	q.AdvanceFrame()
	n = q.CollectFrameEvents(buf, len(buf))
	if n != 1 || buf[0].Actor != 2 || buf[0].Frame != 2 {
		t.Errorf("Expected frame-2 record after advancing, got n=%d first=%+v", n, buf[0])
	}
}

// TestReplayedFrameKept verifies pre-stamped records keep their frame
func TestReplayedFrameKept(t *testing.T) {
	q := NewQueue(QueueConfig{LaneCapacity: 16, StartFrame: 500})

	old := rec(EventTypeAttack, PriorityGameplay, 7)
	old.Frame = 100
	q.Enqueue(old)

	// Frame 100 is already closed, so it drains without advancing
	buf := make([]Record, 4)
	n := q.CollectFrameEvents(buf, len(buf))
	if n != 1 || buf[0].Frame != 100 {
		t.Fatalf("Expected replayed record with frame 100, got n=%d %+v", n, buf[0])
	}
}

// TestCollectRespectsMaxCount verifies the drain limit and that leftovers stay queued
func TestCollectRespectsMaxCount(t *testing.T) {
	q := NewQueue(QueueConfig{LaneCapacity: 16})
	for i := 0; i < 3; i++ {
		q.Enqueue(rec(EventTypeAttack, PriorityGameplay, uint64(i)))
		q.Enqueue(rec(EventTypeTargetSelected, PriorityAI, uint64(i)))
	}
	q.AdvanceFrame()

	buf := make([]Record, 16)
	if n := q.CollectFrameEvents(buf, 4); n != 4 {
		t.Fatalf("Expected 4, got %d", n)
	}
	if buf[3].Priority != PriorityAI {
		t.Errorf("Expected 4th record from AI lane, got %s", buf[3].Priority)
	}
	if n := q.CollectFrameEvents(buf, 16); n != 2 {
		t.Errorf("Expected 2 leftovers, got %d", n)
	}

	// Buffer length also bounds the drain
	q.Enqueue(rec(EventTypeAttack, PriorityGameplay, 9))
	q.Enqueue(rec(EventTypeAttack, PriorityGameplay, 10))
	q.AdvanceFrame()
	if n := q.CollectFrameEvents(buf[:1], 10); n != 1 {
		t.Errorf("Expected drain bounded by len(buf), got %d", n)
	}
}

// TestConcurrentProducers verifies no record is lost or duplicated under contention
func TestConcurrentProducers(t *testing.T) {
	const producers = 8
	const perProducer = 500

	q := NewQueue(QueueConfig{LaneCapacity: producers * perProducer})

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				r := rec(EventTypeAttack, Priority(i%LaneCount), uint64(p*perProducer+i))
				if !q.Enqueue(r) {
					t.Errorf("unexpected backpressure")
					return
				}
			}
		}(p)
	}
	wg.Wait()
	q.AdvanceFrame()

	buf := make([]Record, producers*perProducer)
	n := q.CollectFrameEvents(buf, len(buf))
	if n != producers*perProducer {
		t.Fatalf("Expected %d records, got %d", producers*perProducer, n)
	}

	seen := make(map[uint64]bool, n)
	for _, r := range buf[:n] {
		if seen[r.Actor] {
			t.Fatalf("duplicate record %d", r.Actor)
		}
		seen[r.Actor] = true
	}
}

// TestInvalidPriorityRejected verifies out-of-range lanes are refused
func TestInvalidPriorityRejected(t *testing.T) {
	q := NewQueue(QueueConfig{LaneCapacity: 4})
	r := rec(EventTypeAttack, PriorityGameplay, 1)
	r.Priority = LaneCount
	if q.Enqueue(r) {
		t.Error("Enqueue should reject an unknown lane")
	}
}
