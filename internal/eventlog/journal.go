package eventlog

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"idle-arena/internal/event"
	"idle-arena/internal/metrics"
)

const (
	DefaultAsyncBuffer  = 256              // Frames waiting for the async writer
	DefaultWriteTimeout = 5 * time.Second  // Per-frame deadline for async writes
	maxReportedMissing  = 1024             // Missing frames listed in an Integrity report
)

// JournalConfig configures a Journal
type JournalConfig struct {
	AsyncBuffer  int
	WriteTimeout time.Duration
}

// frameBatch is one frame waiting for the async writer
type frameBatch struct {
	frame   uint32
	records []event.Record
}

// Integrity is the result of a range check
type Integrity struct {
	From         uint32   `json:"from"`
	To           uint32   `json:"to"`
	Complete     bool     `json:"complete"`
	ValidFrames  int      `json:"validFrames"`
	MissingCount int      `json:"missingCount"`
	Missing      []uint32 `json:"missing,omitempty"` // First missing frames, capped
}

// JournalStats are the journal's counters
type JournalStats struct {
	Persisted uint64 `json:"persisted"`
	Failed    uint64 `json:"failed"`
	Dropped   uint64 `json:"dropped"`
	Pending   int    `json:"pending"`
	Running   bool   `json:"running"`
}

// Journal persists frames to a FrameStore, synchronously or through a
// bounded background writer, and serves loads, replay, and integrity checks.
type Journal struct {
	store FrameStore
	cfg   JournalConfig

	// Async writer
	pending  chan frameBatch
	writerWg sync.WaitGroup
	stopChan chan struct{}
	stopOnce sync.Once
	running  atomic.Bool

	persisted atomic.Uint64
	failed    atomic.Uint64
	dropped   atomic.Uint64
}

// NewJournal creates a journal over store
func NewJournal(store FrameStore, cfg JournalConfig) *Journal {
	if cfg.AsyncBuffer <= 0 {
		cfg.AsyncBuffer = DefaultAsyncBuffer
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
	return &Journal{
		store:    store,
		cfg:      cfg,
		pending:  make(chan frameBatch, cfg.AsyncBuffer),
		stopChan: make(chan struct{}),
	}
}

// Start begins the async writer goroutine
func (j *Journal) Start() {
	if !j.running.CompareAndSwap(false, true) {
		return
	}
	j.writerWg.Add(1)
	go j.writerLoop()
	log.Printf("📼 Frame journal started (buffer %d)", j.cfg.AsyncBuffer)
}

// Stop flushes queued frames and stops the writer
func (j *Journal) Stop() {
	j.stopOnce.Do(func() {
		j.running.Store(false)
		close(j.stopChan)
		j.writerWg.Wait()
		log.Printf("📼 Frame journal stopped (%d persisted, %d failed, %d dropped)",
			j.persisted.Load(), j.failed.Load(), j.dropped.Load())
	})
}

// PersistFrame stores records as frame, replacing earlier content
func (j *Journal) PersistFrame(ctx context.Context, frame uint32, records []event.Record) error {
	start := time.Now()
	if err := j.store.SaveFrame(ctx, frame, records); err != nil {
		j.failed.Add(1)
		metrics.RecordPersistFailure("frame")
		return fmt.Errorf("persist frame %d: %w", frame, err)
	}
	j.persisted.Add(1)
	metrics.RecordPersist(time.Since(start))
	return nil
}

// PersistFrameAsync copies records and queues them for the background
// writer. Returns false if the journal isn't running or its buffer is
// full; the frame is dropped and counted.
func (j *Journal) PersistFrameAsync(frame uint32, records []event.Record) bool {
	if !j.running.Load() {
		return false
	}
	batch := frameBatch{frame: frame, records: append([]event.Record(nil), records...)}
	select {
	case j.pending <- batch:
		return true
	default:
		j.dropped.Add(1)
		metrics.RecordJournalDrop()
		log.Printf("⚠️ Journal buffer full, frame %d dropped (%d records)", frame, len(records))
		return false
	}
}

// writerLoop persists queued frames until Stop, then drains what's left
func (j *Journal) writerLoop() {
	defer j.writerWg.Done()

	for {
		select {
		case batch := <-j.pending:
			j.write(batch)
		case <-j.stopChan:
			// Final flush
			for {
				select {
				case batch := <-j.pending:
					j.write(batch)
				default:
					return
				}
			}
		}
	}
}

func (j *Journal) write(batch frameBatch) {
	ctx, cancel := context.WithTimeout(context.Background(), j.cfg.WriteTimeout)
	defer cancel()
	if err := j.PersistFrame(ctx, batch.frame, batch.records); err != nil {
		log.Printf("⚠️ Async %v", err)
	}
}

// LoadFrame returns the records of one frame, or ErrFrameNotFound
func (j *Journal) LoadFrame(ctx context.Context, frame uint32) ([]event.Record, error) {
	records, found, err := j.store.LoadFrame(ctx, frame)
	if err != nil {
		return nil, fmt.Errorf("load frame %d: %w", frame, err)
	}
	if !found {
		return nil, fmt.Errorf("load frame %d: %w", frame, ErrFrameNotFound)
	}
	return records, nil
}

// LoadFrameRange returns the records of frames from..to inclusive, in frame
// order and drain order inside each frame. Missing frames contribute nothing.
func (j *Journal) LoadFrameRange(ctx context.Context, from, to uint32) ([]event.Record, error) {
	if from > to {
		return nil, fmt.Errorf("load frames %d..%d: empty range", from, to)
	}
	records, err := j.store.LoadRange(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("load frames %d..%d: %w", from, to, err)
	}
	return records, nil
}

// ReplayFrame re-enqueues a persisted frame's records with their original
// field values, frame number included. Returns how many were accepted;
// records rejected by a full lane are logged and skipped.
func (j *Journal) ReplayFrame(ctx context.Context, frame uint32, q event.Enqueuer) (int, error) {
	records, err := j.LoadFrame(ctx, frame)
	if err != nil {
		return 0, err
	}

	replayed := 0
	for _, rec := range records {
		if q.Enqueue(rec) {
			replayed++
		}
	}
	if replayed < len(records) {
		log.Printf("⚠️ Replay of frame %d: %d of %d records dropped by backpressure", frame, len(records)-replayed, len(records))
	}
	return replayed, nil
}

// ValidateFrameIntegrity reports whether every frame in from..to inclusive
// has been persisted. A missing frame is reported, not returned as an error.
func (j *Journal) ValidateFrameIntegrity(ctx context.Context, from, to uint32) (Integrity, error) {
	if from > to {
		return Integrity{}, fmt.Errorf("validate frames %d..%d: empty range", from, to)
	}
	frames, err := j.store.Frames(ctx, from, to)
	if err != nil {
		return Integrity{}, fmt.Errorf("validate frames %d..%d: %w", from, to, err)
	}

	result := Integrity{From: from, To: to, ValidFrames: len(frames)}
	next := uint64(from)
	addMissing := func(upTo uint64) {
		if upTo <= next {
			return
		}
		result.MissingCount += int(upTo - next)
		for f := next; f < upTo && len(result.Missing) < maxReportedMissing; f++ {
			result.Missing = append(result.Missing, uint32(f))
		}
		next = upTo
	}
	for _, f := range frames {
		addMissing(uint64(f))
		next = uint64(f) + 1
	}
	addMissing(uint64(to) + 1)
	result.Complete = result.MissingCount == 0
	return result, nil
}

// LastFrame returns the highest persisted frame, 0 if none
func (j *Journal) LastFrame(ctx context.Context) (uint32, error) {
	return j.store.LastFrame(ctx)
}

// Stats returns the journal counters
func (j *Journal) Stats() JournalStats {
	return JournalStats{
		Persisted: j.persisted.Load(),
		Failed:    j.failed.Load(),
		Dropped:   j.dropped.Load(),
		Pending:   len(j.pending),
		Running:   j.running.Load(),
	}
}
