package event

import "encoding/binary"

// Typed payloads for different event types. Each encodes into the fixed
// PayloadSize budget; Battle is the event.ID of the owning battle.

// AttackPayload contains strike details (Attack and Miss events)
type AttackPayload struct {
	Battle    uint64
	Damage    int32
	Remaining int32 // Target health after the strike
	Turn      uint32
	Critical  bool
	Killed    bool
}

// HealPayload contains heal details
type HealPayload struct {
	Battle    uint64
	Amount    int32
	Remaining int32
	Turn      uint32
}

// SkillPayload contains skill activation details
type SkillPayload struct {
	Battle uint64
	Skill  uint64
	Amount int32 // Damage dealt or health restored
	Turn   uint32
}

// TickPayload contains tick boundary information for replay
type TickPayload struct {
	Battle     uint64
	Turn       uint32
	AliveTeam0 uint16
	AliveTeam1 uint16
	ElapsedMs  uint32
}

// DeathPayload marks a participant's death
type DeathPayload struct {
	Battle uint64
	Turn   uint32
}

// BattleStartedPayload contains battle start details
type BattleStartedPayload struct {
	Battle       uint64
	Kind         uint8
	Policy       uint8
	Participants uint16
}

// BattleEndedPayload contains the battle result summary
type BattleEndedPayload struct {
	Battle      uint64
	Outcome     uint8
	WinningTeam int8
	Turns       uint32
	DurationMs  uint32
	Experience  uint32
	Gold        uint32
}

// TargetSelectedPayload records a targeting decision
type TargetSelectedPayload struct {
	Battle       uint64
	Policy       uint8
	TargetHealth int32
	Turn         uint32
}

// RewardPayload records granted rewards
type RewardPayload struct {
	Battle     uint64
	Experience uint32
	Gold       uint32
	Items      uint16
}

// TimingPayload records how long a tick took
type TimingPayload struct {
	Battle         uint64
	DurationMicros uint32
	Actions        uint16
	Turn           uint32
}

// payloadWriter packs fields sequentially into a payload array.
type payloadWriter struct {
	buf [PayloadSize]byte
	off int
}

func (w *payloadWriter) u8(v uint8) {
	w.buf[w.off] = v
	w.off++
}

func (w *payloadWriter) u16(v uint16) {
	binary.LittleEndian.PutUint16(w.buf[w.off:], v)
	w.off += 2
}

func (w *payloadWriter) u32(v uint32) {
	binary.LittleEndian.PutUint32(w.buf[w.off:], v)
	w.off += 4
}

func (w *payloadWriter) u64(v uint64) {
	binary.LittleEndian.PutUint64(w.buf[w.off:], v)
	w.off += 8
}

func (w *payloadWriter) flag(v bool) {
	if v {
		w.u8(1)
		return
	}
	w.u8(0)
}

// payloadReader is the inverse of payloadWriter.
type payloadReader struct {
	buf [PayloadSize]byte
	off int
}

func (r *payloadReader) u8() uint8 {
	v := r.buf[r.off]
	r.off++
	return v
}

func (r *payloadReader) u16() uint16 {
	v := binary.LittleEndian.Uint16(r.buf[r.off:])
	r.off += 2
	return v
}

func (r *payloadReader) u32() uint32 {
	v := binary.LittleEndian.Uint32(r.buf[r.off:])
	r.off += 4
	return v
}

func (r *payloadReader) u64() uint64 {
	v := binary.LittleEndian.Uint64(r.buf[r.off:])
	r.off += 8
	return v
}

func (r *payloadReader) flag() bool { return r.u8() != 0 }

// Encode packs the payload.
func (p AttackPayload) Encode() [PayloadSize]byte {
	var w payloadWriter
	w.u64(p.Battle)
	w.u32(uint32(p.Damage))
	w.u32(uint32(p.Remaining))
	w.u32(p.Turn)
	w.flag(p.Critical)
	w.flag(p.Killed)
	return w.buf
}

// DecodeAttackPayload unpacks an Attack or Miss payload.
func DecodeAttackPayload(b [PayloadSize]byte) AttackPayload {
	r := payloadReader{buf: b}
	return AttackPayload{
		Battle:    r.u64(),
		Damage:    int32(r.u32()),
		Remaining: int32(r.u32()),
		Turn:      r.u32(),
		Critical:  r.flag(),
		Killed:    r.flag(),
	}
}

// Encode packs the payload.
func (p HealPayload) Encode() [PayloadSize]byte {
	var w payloadWriter
	w.u64(p.Battle)
	w.u32(uint32(p.Amount))
	w.u32(uint32(p.Remaining))
	w.u32(p.Turn)
	return w.buf
}

// DecodeHealPayload unpacks a Heal payload.
func DecodeHealPayload(b [PayloadSize]byte) HealPayload {
	r := payloadReader{buf: b}
	return HealPayload{
		Battle:    r.u64(),
		Amount:    int32(r.u32()),
		Remaining: int32(r.u32()),
		Turn:      r.u32(),
	}
}

// Encode packs the payload.
func (p SkillPayload) Encode() [PayloadSize]byte {
	var w payloadWriter
	w.u64(p.Battle)
	w.u64(p.Skill)
	w.u32(uint32(p.Amount))
	w.u32(p.Turn)
	return w.buf
}

// DecodeSkillPayload unpacks a SkillUsed payload.
func DecodeSkillPayload(b [PayloadSize]byte) SkillPayload {
	r := payloadReader{buf: b}
	return SkillPayload{
		Battle: r.u64(),
		Skill:  r.u64(),
		Amount: int32(r.u32()),
		Turn:   r.u32(),
	}
}

// Encode packs the payload.
func (p TickPayload) Encode() [PayloadSize]byte {
	var w payloadWriter
	w.u64(p.Battle)
	w.u32(p.Turn)
	w.u16(p.AliveTeam0)
	w.u16(p.AliveTeam1)
	w.u32(p.ElapsedMs)
	return w.buf
}

// DecodeTickPayload unpacks a Tick payload.
func DecodeTickPayload(b [PayloadSize]byte) TickPayload {
	r := payloadReader{buf: b}
	return TickPayload{
		Battle:     r.u64(),
		Turn:       r.u32(),
		AliveTeam0: r.u16(),
		AliveTeam1: r.u16(),
		ElapsedMs:  r.u32(),
	}
}

// Encode packs the payload.
func (p DeathPayload) Encode() [PayloadSize]byte {
	var w payloadWriter
	w.u64(p.Battle)
	w.u32(p.Turn)
	return w.buf
}

// DecodeDeathPayload unpacks a Death payload.
func DecodeDeathPayload(b [PayloadSize]byte) DeathPayload {
	r := payloadReader{buf: b}
	return DeathPayload{Battle: r.u64(), Turn: r.u32()}
}

// Encode packs the payload.
func (p BattleStartedPayload) Encode() [PayloadSize]byte {
	var w payloadWriter
	w.u64(p.Battle)
	w.u8(p.Kind)
	w.u8(p.Policy)
	w.u16(p.Participants)
	return w.buf
}

// DecodeBattleStartedPayload unpacks a BattleStarted payload.
func DecodeBattleStartedPayload(b [PayloadSize]byte) BattleStartedPayload {
	r := payloadReader{buf: b}
	return BattleStartedPayload{
		Battle:       r.u64(),
		Kind:         r.u8(),
		Policy:       r.u8(),
		Participants: r.u16(),
	}
}

// Encode packs the payload.
func (p BattleEndedPayload) Encode() [PayloadSize]byte {
	var w payloadWriter
	w.u64(p.Battle)
	w.u8(p.Outcome)
	w.u8(uint8(p.WinningTeam))
	w.u32(p.Turns)
	w.u32(p.DurationMs)
	w.u32(p.Experience)
	w.u32(p.Gold)
	return w.buf
}

// DecodeBattleEndedPayload unpacks a BattleEnded payload.
func DecodeBattleEndedPayload(b [PayloadSize]byte) BattleEndedPayload {
	r := payloadReader{buf: b}
	return BattleEndedPayload{
		Battle:      r.u64(),
		Outcome:     r.u8(),
		WinningTeam: int8(r.u8()),
		Turns:       r.u32(),
		DurationMs:  r.u32(),
		Experience:  r.u32(),
		Gold:        r.u32(),
	}
}

// Encode packs the payload.
func (p TargetSelectedPayload) Encode() [PayloadSize]byte {
	var w payloadWriter
	w.u64(p.Battle)
	w.u8(p.Policy)
	w.u32(uint32(p.TargetHealth))
	w.u32(p.Turn)
	return w.buf
}

// DecodeTargetSelectedPayload unpacks a TargetSelected payload.
func DecodeTargetSelectedPayload(b [PayloadSize]byte) TargetSelectedPayload {
	r := payloadReader{buf: b}
	return TargetSelectedPayload{
		Battle:       r.u64(),
		Policy:       r.u8(),
		TargetHealth: int32(r.u32()),
		Turn:         r.u32(),
	}
}

// Encode packs the payload.
func (p RewardPayload) Encode() [PayloadSize]byte {
	var w payloadWriter
	w.u64(p.Battle)
	w.u32(p.Experience)
	w.u32(p.Gold)
	w.u16(p.Items)
	return w.buf
}

// DecodeRewardPayload unpacks a RewardGranted payload.
func DecodeRewardPayload(b [PayloadSize]byte) RewardPayload {
	r := payloadReader{buf: b}
	return RewardPayload{
		Battle:     r.u64(),
		Experience: r.u32(),
		Gold:       r.u32(),
		Items:      r.u16(),
	}
}

// Encode packs the payload.
func (p TimingPayload) Encode() [PayloadSize]byte {
	var w payloadWriter
	w.u64(p.Battle)
	w.u32(p.DurationMicros)
	w.u16(p.Actions)
	w.u32(p.Turn)
	return w.buf
}

// DecodeTimingPayload unpacks a TickTiming payload.
func DecodeTimingPayload(b [PayloadSize]byte) TimingPayload {
	r := payloadReader{buf: b}
	return TimingPayload{
		Battle:         r.u64(),
		DurationMicros: r.u32(),
		Actions:        r.u16(),
		Turn:           r.u32(),
	}
}

// DecodePayload unpacks a record's payload into the typed payload of its
// event type. Returns nil for unknown types.
func DecodePayload(r Record) any {
	switch r.Type {
	case EventTypeTick, EventTypeBattleCancelled:
		return DecodeTickPayload(r.Payload)
	case EventTypeBattleStarted:
		return DecodeBattleStartedPayload(r.Payload)
	case EventTypeAttack, EventTypeMiss:
		return DecodeAttackPayload(r.Payload)
	case EventTypeHeal:
		return DecodeHealPayload(r.Payload)
	case EventTypeSkillUsed:
		return DecodeSkillPayload(r.Payload)
	case EventTypeDeath:
		return DecodeDeathPayload(r.Payload)
	case EventTypeBattleEnded:
		return DecodeBattleEndedPayload(r.Payload)
	case EventTypeTargetSelected:
		return DecodeTargetSelectedPayload(r.Payload)
	case EventTypeRewardGranted:
		return DecodeRewardPayload(r.Payload)
	case EventTypeTickTiming:
		return DecodeTimingPayload(r.Payload)
	default:
		return nil
	}
}
