package event

import (
	"runtime"
	"sync/atomic"
)

// CacheLineSize is the typical CPU cache line size (64 bytes on x86-64)
const CacheLineSize = 64

// padding ensures hot counters don't share cache lines (prevents false sharing)
type padding [CacheLineSize]byte

// slot pairs a record with a sequence number. The sequence tells the consumer
// whether the producer finished writing (Vyukov bounded queue).
type slot struct {
	seq atomic.Uint64
	rec Record
}

// lane is a bounded MPSC ring buffer of records.
//
// Memory Layout (prevents false sharing):
// [padding][head][padding][tail][padding][slots...]
type lane struct {
	_pad0 padding

	head atomic.Uint64 // Next write position (producers)
	_pad1 padding

	tail atomic.Uint64 // Next read position (single consumer)
	_pad2 padding

	mask  uint64 // capacity-1 for fast modulo
	slots []slot

	enqueued atomic.Uint64
	dropped  atomic.Uint64
	drained  atomic.Uint64
}

// newLane creates a lane. capacity is rounded up to a power of 2.
func newLane(capacity int) *lane {
	size := 1
	for size < capacity {
		size <<= 1
	}

	l := &lane{
		mask:  uint64(size - 1),
		slots: make([]slot, size),
	}
	for i := range l.slots {
		l.slots[i].seq.Store(uint64(i))
	}
	return l
}

// push claims a slot and writes rec. Returns false if the lane is full.
// Lock-free, safe for multiple concurrent producers.
func (l *lane) push(rec Record) bool {
	for {
		pos := l.head.Load()
		s := &l.slots[pos&l.mask]
		seq := s.seq.Load()

		switch diff := int64(seq) - int64(pos); {
		case diff == 0:
			if l.head.CompareAndSwap(pos, pos+1) {
				s.rec = rec
				s.seq.Store(pos + 1) // publish, MUST be after write
				l.enqueued.Add(1)
				return true
			}
		case diff < 0:
			// Slot still holds an unread record from the previous lap
			l.dropped.Add(1)
			return false
		}

		// Another producer won the slot, retry
		runtime.Gosched()
	}
}

// peek returns the oldest published record without consuming it.
// Consumer only.
func (l *lane) peek() (*Record, bool) {
	pos := l.tail.Load()
	s := &l.slots[pos&l.mask]
	if s.seq.Load() != pos+1 {
		return nil, false // Empty, or producer still writing
	}
	return &s.rec, true
}

// advance releases the slot returned by the last successful peek.
// Consumer only.
func (l *lane) advance() {
	pos := l.tail.Load()
	s := &l.slots[pos&l.mask]
	s.seq.Store(pos + l.mask + 1)
	l.tail.Store(pos + 1)
	l.drained.Add(1)
}

// len returns the approximate number of records in the lane.
// Note: This is a snapshot and may be stale immediately
func (l *lane) len() int {
	head := l.head.Load()
	tail := l.tail.Load()
	if head < tail {
		return 0
	}
	return int(head - tail)
}

func (l *lane) cap() int {
	return int(l.mask + 1)
}
