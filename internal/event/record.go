package event

import (
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// EventType enum for event classification
type EventType uint16

const (
	EventTypeUnknown EventType = iota
	EventTypeTick              // Battle tick boundary
	EventTypeBattleStarted
	EventTypeAttack
	EventTypeMiss
	EventTypeHeal
	EventTypeSkillUsed
	EventTypeDeath
	EventTypeBattleEnded
	EventTypeBattleCancelled
	EventTypeTargetSelected // AI decision
	EventTypeRewardGranted  // Analytics
	EventTypeTickTiming     // Telemetry
)

// String returns human-readable event type
func (t EventType) String() string {
	switch t {
	case EventTypeTick:
		return "tick"
	case EventTypeBattleStarted:
		return "battle_started"
	case EventTypeAttack:
		return "attack"
	case EventTypeMiss:
		return "miss"
	case EventTypeHeal:
		return "heal"
	case EventTypeSkillUsed:
		return "skill_used"
	case EventTypeDeath:
		return "death"
	case EventTypeBattleEnded:
		return "battle_ended"
	case EventTypeBattleCancelled:
		return "battle_cancelled"
	case EventTypeTargetSelected:
		return "target_selected"
	case EventTypeRewardGranted:
		return "reward_granted"
	case EventTypeTickTiming:
		return "tick_timing"
	default:
		return "unknown"
	}
}

// Priority selects the lane a record travels in. Lower values drain first.
type Priority uint8

const (
	PriorityGameplay Priority = iota
	PriorityAI
	PriorityAnalytics
	PriorityTelemetry

	// LaneCount is the number of priority lanes in a Queue.
	LaneCount = 4
)

func (p Priority) String() string {
	switch p {
	case PriorityGameplay:
		return "gameplay"
	case PriorityAI:
		return "ai"
	case PriorityAnalytics:
		return "analytics"
	case PriorityTelemetry:
		return "telemetry"
	default:
		return fmt.Sprintf("priority(%d)", uint8(p))
	}
}

// DefaultPriority returns the lane an event type is published on.
func DefaultPriority(t EventType) Priority {
	switch t {
	case EventTypeTargetSelected:
		return PriorityAI
	case EventTypeRewardGranted:
		return PriorityAnalytics
	case EventTypeTickTiming:
		return PriorityTelemetry
	default:
		return PriorityGameplay
	}
}

const (
	// PayloadSize is the inline payload budget. New event kinds must fit in it.
	PayloadSize = 28

	headerSize = 24

	// RecordSize is the encoded size of every record, in every lane.
	RecordSize = headerSize + PayloadSize
)

// Record is the fixed-size event value carried by the queue and the frame log.
// It is a plain value: copying a Record never shares payload memory.
type Record struct {
	Type     EventType
	Priority Priority
	Frame    uint32
	Actor    uint64
	Target   uint64
	Payload  [PayloadSize]byte
}

// ID derives the 64-bit opaque identifier used in records from a domain string id.
func ID(s string) uint64 {
	if s == "" {
		return 0
	}
	return xxhash.Sum64String(s)
}

// New builds a record on the event type's default lane. The frame is stamped at enqueue.
func New(t EventType, actor, target uint64, payload [PayloadSize]byte) Record {
	return Record{
		Type:     t,
		Priority: DefaultPriority(t),
		Actor:    actor,
		Target:   target,
		Payload:  payload,
	}
}

// AppendBinary appends the little-endian encoding of r to b.
func (r Record) AppendBinary(b []byte) []byte {
	b = binary.LittleEndian.AppendUint16(b, uint16(r.Type))
	b = append(b, byte(r.Priority), 0)
	b = binary.LittleEndian.AppendUint32(b, r.Frame)
	b = binary.LittleEndian.AppendUint64(b, r.Actor)
	b = binary.LittleEndian.AppendUint64(b, r.Target)
	return append(b, r.Payload[:]...)
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (r Record) MarshalBinary() ([]byte, error) {
	return r.AppendBinary(make([]byte, 0, RecordSize)), nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (r *Record) UnmarshalBinary(data []byte) error {
	if len(data) != RecordSize {
		return fmt.Errorf("record: want %d bytes, got %d", RecordSize, len(data))
	}
	r.Type = EventType(binary.LittleEndian.Uint16(data[0:2]))
	r.Priority = Priority(data[2])
	if r.Priority >= LaneCount {
		return fmt.Errorf("record: invalid priority %d", data[2])
	}
	r.Frame = binary.LittleEndian.Uint32(data[4:8])
	r.Actor = binary.LittleEndian.Uint64(data[8:16])
	r.Target = binary.LittleEndian.Uint64(data[16:24])
	copy(r.Payload[:], data[headerSize:])
	return nil
}

// EncodeRecords packs records back to back.
func EncodeRecords(records []Record) []byte {
	out := make([]byte, 0, len(records)*RecordSize)
	for _, r := range records {
		out = r.AppendBinary(out)
	}
	return out
}

// DecodeRecords unpacks a buffer produced by EncodeRecords.
func DecodeRecords(data []byte) ([]Record, error) {
	if len(data)%RecordSize != 0 {
		return nil, fmt.Errorf("record batch: length %d is not a multiple of %d", len(data), RecordSize)
	}
	out := make([]Record, len(data)/RecordSize)
	for i := range out {
		if err := out[i].UnmarshalBinary(data[i*RecordSize : (i+1)*RecordSize]); err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
	}
	return out, nil
}
