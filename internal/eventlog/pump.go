package eventlog

import (
	"context"
	"errors"
	"log"
	"time"

	"idle-arena/internal/event"
	"idle-arena/internal/metrics"
)

const (
	DefaultFrameInterval = 100 * time.Millisecond
	DefaultDrainBatch    = 1024
)

// PumpConfig configures a Pump
type PumpConfig struct {
	Interval  time.Duration // Frame cadence
	DrainSize int           // Records pulled per CollectFrameEvents call
	Async     bool          // Persist through the journal's background writer
}

// FrameObserver receives every closed frame after it was handed to the journal.
// Replayed records are not passed to it.
// records is only valid during the call.
type FrameObserver func(frame uint32, records []event.Record)

// Pump is the frame cadence: it closes the open frame, drains every record
// of closed frames, and persists them grouped by frame.
type Pump struct {
	queue    *event.Queue
	journal  *Journal
	cfg      PumpConfig
	observer FrameObserver

	buf       []event.Record
	lastStats [event.LaneCount]event.LaneStats
}

// NewPump creates a pump; it is driven by Run or Step from one goroutine
func NewPump(queue *event.Queue, journal *Journal, cfg PumpConfig) *Pump {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultFrameInterval
	}
	if cfg.DrainSize <= 0 {
		cfg.DrainSize = DefaultDrainBatch
	}
	return &Pump{
		queue:   queue,
		journal: journal,
		cfg:     cfg,
		buf:     make([]event.Record, cfg.DrainSize),
	}
}

// OnFrame sets the observer. Call before Run.
func (p *Pump) OnFrame(fn FrameObserver) {
	p.observer = fn
}

// Run steps once per interval until ctx is cancelled, then closes and
// persists one final frame so nothing enqueued before shutdown is lost.
func (p *Pump) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	log.Printf("🎞️ Frame pump started (every %v, starting at frame %d)", p.cfg.Interval, p.queue.Frame())
	for {
		select {
		case <-ctx.Done():
			frame, n := p.Step(context.WithoutCancel(ctx))
			log.Printf("🎞️ Frame pump stopped at frame %d (%d records in final frame)", frame, n)
			return nil
		case <-ticker.C:
			p.Step(ctx)
		}
	}
}

// Step closes the open frame, drains all closed records, and persists them.
// Returns the closed frame and the number of records drained.
//
// Only the frame just closed is persisted, empty or not, so integrity checks
// see no gaps. Drained records from older frames came from a replay; their
// frame is already durable, so they are checked against it and never written.
// Persistence failures are logged; the pump carries on.
func (p *Pump) Step(ctx context.Context) (uint32, int) {
	closed := p.queue.AdvanceFrame()
	metrics.RecordFrameClosed()

	var current []event.Record
	var replayed map[uint32][]event.Record
	var order []uint32
	drained := 0
	for {
		n := p.queue.CollectFrameEvents(p.buf, len(p.buf))
		if n == 0 {
			break
		}
		for _, rec := range p.buf[:n] {
			if rec.Frame == closed {
				current = append(current, rec)
				continue
			}
			if replayed == nil {
				replayed = make(map[uint32][]event.Record)
			}
			if _, ok := replayed[rec.Frame]; !ok {
				order = append(order, rec.Frame)
			}
			replayed[rec.Frame] = append(replayed[rec.Frame], rec)
		}
		drained += n
	}

	if p.cfg.Async {
		p.journal.PersistFrameAsync(closed, current)
	} else if err := p.journal.PersistFrame(ctx, closed, current); err != nil {
		log.Printf("⚠️ %v", err)
	}
	if p.observer != nil {
		p.observer(closed, current)
	}

	for _, frame := range order {
		p.checkReplayed(ctx, frame, replayed[frame])
	}

	p.recordLaneMetrics()
	return closed, drained
}

// checkReplayed compares replayed records with their stored frame. A replay
// may be partial, so missing records are fine; unknown ones are not.
func (p *Pump) checkReplayed(ctx context.Context, frame uint32, records []event.Record) {
	stored, err := p.journal.LoadFrame(ctx, frame)
	if errors.Is(err, ErrFrameNotFound) {
		log.Printf("⚠️ Replayed %d records for frame %d, which was never persisted", len(records), frame)
		metrics.RecordReplayMismatch(len(records))
		return
	}
	if err != nil {
		log.Printf("⚠️ Replay check: %v", err)
		return
	}

	check := compareFrame(frame, stored, records)
	if check.Unknown > 0 {
		log.Printf("⚠️ Replay of frame %d drained %d records not in the stored frame", frame, check.Unknown)
		metrics.RecordReplayMismatch(check.Unknown)
	}
}

// recordLaneMetrics exports lane counter deltas since the last step
func (p *Pump) recordLaneMetrics() {
	stats := p.queue.Stats()
	for i, s := range stats {
		prev := p.lastStats[i]
		lane := s.Priority.String()
		metrics.RecordLaneDelta(lane, s.Enqueued-prev.Enqueued, s.Dropped-prev.Dropped, s.Drained-prev.Drained)
		metrics.SetLaneDepth(lane, s.Pending)
	}
	p.lastStats = stats
}
