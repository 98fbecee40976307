// Package metrics holds the Prometheus collectors for the simulation core.
// Labels are bounded: lane names, outcomes, and fixed operation names only.
// No per-battle or per-participant labels.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Queue metrics
	enqueuedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arena_queue_enqueued_total",
		Help: "Records accepted into the event queue",
	}, []string{"lane"})

	droppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arena_queue_dropped_total",
		Help: "Records rejected because a lane was full",
	}, []string{"lane"})

	drainedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arena_queue_drained_total",
		Help: "Records drained from closed frames",
	}, []string{"lane"})

	laneDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "arena_queue_lane_depth",
		Help: "Records currently waiting in each lane",
	}, []string{"lane"})

	framesClosed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arena_frames_closed_total",
		Help: "Frames closed by the pump",
	})

	// Journal metrics
	persistFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arena_persist_failures_total",
		Help: "Persistence operations that failed and were skipped",
	}, []string{"operation"}) // Bounded: "frame", "battle", "participant", "event", "result"

	replayMismatches = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arena_replay_mismatch_total",
		Help: "Replayed records that matched nothing in their persisted frame",
	})

	journalDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arena_journal_async_dropped_total",
		Help: "Frames dropped because the async journal buffer was full",
	})

	persistDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "arena_frame_persist_duration_seconds",
		Help:    "Time spent persisting one frame",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
	})

	// Battle metrics
	tickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "arena_tick_duration_seconds",
		Help:    "Time spent processing one battle tick",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
	})

	activeBattles = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "arena_active_battles",
		Help: "Battles currently held in the live registry",
	})

	battlesEnded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arena_battles_ended_total",
		Help: "Battles that reached a terminal state",
	}, []string{"outcome"}) // Bounded: "victory", "defeat", "draw", "cancelled"

	skillsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arena_skills_rejected_total",
		Help: "Skill uses rejected before resolution",
	}, []string{"reason"}) // Bounded: "rate_limit", "state", "target"
)

// RecordLaneDelta adds counter deltas for one lane
func RecordLaneDelta(lane string, enqueued, dropped, drained uint64) {
	if enqueued > 0 {
		enqueuedTotal.WithLabelValues(lane).Add(float64(enqueued))
	}
	if dropped > 0 {
		droppedTotal.WithLabelValues(lane).Add(float64(dropped))
	}
	if drained > 0 {
		drainedTotal.WithLabelValues(lane).Add(float64(drained))
	}
}

// SetLaneDepth updates the backlog gauge for one lane
func SetLaneDepth(lane string, depth int) {
	laneDepth.WithLabelValues(lane).Set(float64(depth))
}

// RecordFrameClosed increments the closed frame counter
func RecordFrameClosed() {
	framesClosed.Inc()
}

// RecordPersistFailure counts a swallowed persistence error.
// operation must be one of: "frame", "battle", "participant", "event", "result"
func RecordPersistFailure(operation string) {
	persistFailures.WithLabelValues(operation).Inc()
}

// RecordJournalDrop counts a frame dropped by the async journal
func RecordJournalDrop() {
	journalDropped.Inc()
}

// RecordReplayMismatch counts replayed records unknown to their stored frame
func RecordReplayMismatch(n int) {
	replayMismatches.Add(float64(n))
}

// RecordPersist records frame persistence timing
func RecordPersist(duration time.Duration) {
	persistDuration.Observe(duration.Seconds())
}

// RecordTick records tick timing
func RecordTick(duration time.Duration) {
	tickDuration.Observe(duration.Seconds())
}

// SetActiveBattles updates the live battle gauge
func SetActiveBattles(count int) {
	activeBattles.Set(float64(count))
}

// RecordBattleEnded counts a terminal battle by outcome
func RecordBattleEnded(outcome string) {
	battlesEnded.WithLabelValues(outcome).Inc()
}

// RecordSkillRejected counts a rejected skill use.
// reason must be one of: "rate_limit", "state", "target"
func RecordSkillRejected(reason string) {
	skillsRejected.WithLabelValues(reason).Inc()
}
