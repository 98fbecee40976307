package eventlog

import (
	"context"
	"fmt"

	"idle-arena/internal/event"
)

// FrameCheck compares a persisted frame with the records a replay drained for it
type FrameCheck struct {
	Frame    uint32 `json:"frame"`
	Stored   int    `json:"stored"`
	Replayed int    `json:"replayed"`
	Matched  int    `json:"matched"`
	Unknown  int    `json:"unknown"` // Drained but absent from the stored frame
	Missing  int    `json:"missing"` // Stored but never drained
	InOrder  bool   `json:"inOrder"` // Drain order equals stored order
}

// OK reports a full round trip: every record came back, nothing extra, same order
func (c FrameCheck) OK() bool {
	return c.Unknown == 0 && c.Missing == 0 && c.InOrder
}

// compareFrame matches replayed against stored as multisets
func compareFrame(frame uint32, stored, replayed []event.Record) FrameCheck {
	check := FrameCheck{
		Frame:    frame,
		Stored:   len(stored),
		Replayed: len(replayed),
		InOrder:  len(stored) == len(replayed),
	}

	counts := make(map[event.Record]int, len(stored))
	for i, rec := range stored {
		counts[rec]++
		if check.InOrder && replayed[i] != rec {
			check.InOrder = false
		}
	}
	for _, rec := range replayed {
		if counts[rec] > 0 {
			counts[rec]--
			check.Matched++
		} else {
			check.Unknown++
		}
	}
	check.Missing = check.Stored - check.Matched
	return check
}

// VerifyFrame replays a persisted frame into a private queue, drains it the
// way the pump does, and compares the result with the stored records.
// The journal and any live queue are left untouched.
func (j *Journal) VerifyFrame(ctx context.Context, frame uint32) (FrameCheck, error) {
	if frame == 0 {
		return FrameCheck{}, fmt.Errorf("verify frame 0: frames start at 1")
	}
	stored, err := j.LoadFrame(ctx, frame)
	if err != nil {
		return FrameCheck{}, fmt.Errorf("verify: %w", err)
	}

	// Every record may share one lane
	q := event.NewQueue(event.QueueConfig{LaneCapacity: len(stored) + 1, StartFrame: frame})
	if _, err := j.ReplayFrame(ctx, frame, q); err != nil {
		return FrameCheck{}, fmt.Errorf("verify: %w", err)
	}
	q.AdvanceFrame()

	drained := make([]event.Record, 0, len(stored))
	buf := make([]event.Record, DefaultDrainBatch)
	for {
		n := q.CollectFrameEvents(buf, len(buf))
		if n == 0 {
			break
		}
		drained = append(drained, buf[:n]...)
	}
	return compareFrame(frame, stored, drained), nil
}
