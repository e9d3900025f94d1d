package packets

import (
	"fmt"
	"math"

	"github.com/tilewire-project/tilewire/internal/protocol"
)

// ItemDrop spawns or updates a world item. NetID may be negative.
type ItemDrop struct {
	protocol.Dirty
	Item     protocol.Value[int16]
	Position protocol.Value[protocol.Vector2]
	Velocity protocol.Value[protocol.Vector2]
	Stack    protocol.Value[int16]
	Prefix   protocol.Value[uint8]
	NoDelay  protocol.Value[uint8]
	NetID    protocol.Value[int16]
}

func NewItemDrop() *ItemDrop {
	m := &ItemDrop{}
	m.Track(&m.Item, &m.Position, &m.Velocity, &m.Stack, &m.Prefix, &m.NoDelay, &m.NetID)
	return m
}

func (m *ItemDrop) Type() protocol.MessageType { return TypeItemDrop }

func (m *ItemDrop) ReadBody(r *protocol.Reader, _ protocol.Context) error {
	m.Item.Set(r.Int16())
	m.Position.Set(r.Vector2())
	m.Velocity.Set(r.Vector2())
	m.Stack.Set(r.Int16())
	m.Prefix.Set(r.Uint8())
	m.NoDelay.Set(r.Uint8())
	m.NetID.Set(r.Int16())
	return r.Err()
}

func (m *ItemDrop) WriteBody(w *protocol.Writer, _ protocol.Context) error {
	w.Int16(m.Item.Get())
	w.Vector2(m.Position.Get())
	w.Vector2(m.Velocity.Get())
	w.Int16(m.Stack.Get())
	w.Uint8(m.Prefix.Get())
	w.Uint8(m.NoDelay.Get())
	w.Int16(m.NetID.Get())
	return nil
}

// ItemOwner transfers ownership of a world item.
type ItemOwner struct {
	protocol.Dirty
	Item  protocol.Value[int16]
	Owner protocol.Value[uint8]
}

func NewItemOwner() *ItemOwner {
	m := &ItemOwner{}
	m.Track(&m.Item, &m.Owner)
	return m
}

func (m *ItemOwner) Type() protocol.MessageType { return TypeItemOwner }

func (m *ItemOwner) ReadBody(r *protocol.Reader, _ protocol.Context) error {
	m.Item.Set(r.Int16())
	m.Owner.Set(r.Uint8())
	return r.Err()
}

func (m *ItemOwner) WriteBody(w *protocol.Writer, _ protocol.Context) error {
	w.Int16(m.Item.Get())
	w.Uint8(m.Owner.Get())
	return nil
}

// NPCUpdate first flag byte. Bits 2-5 flag the ai slots and bit 7 means the
// life value is omitted; those are computed on write.
const (
	NPCDirection       protocol.FlagBit = 0
	NPCDirectionY      protocol.FlagBit = 1
	NPCSpriteDirection protocol.FlagBit = 6

	npcFirstAI  uint8 = 2
	npcFullLife uint8 = 7
)

// NPCUpdate second flag byte. Bits 0 and 2 are presence bits.
const (
	NPCSpawnedFromStatue protocol.FlagBit = 1

	npcHasScale    uint8 = 0
	npcHasStrength uint8 = 2
)

// NPCAISlots is the number of ai values an NPCUpdate may carry.
const NPCAISlots = 4

// NPCUpdate is the per-tick state of one NPC. Each ai slot is sent only
// when non-zero; Life only when FullLife is false, using the narrowest of
// 1, 2 or 4 bytes that holds it.
type NPCUpdate struct {
	protocol.Dirty
	NPC         protocol.Value[int16]
	Position    protocol.Value[protocol.Vector2]
	Velocity    protocol.Value[protocol.Vector2]
	Target      protocol.Value[uint16]
	Flags1      *protocol.Flags
	Flags2      *protocol.Flags
	AI          *protocol.Array[float32]
	NetID       protocol.Value[int16]
	PlayerScale protocol.Value[uint8]
	Strength    protocol.Value[float32]
	FullLife    protocol.Value[bool]
	Life        protocol.Value[int32]
}

func NewNPCUpdate() *NPCUpdate {
	m := &NPCUpdate{
		Flags1: protocol.NewFlags(1),
		Flags2: protocol.NewFlags(1),
		AI:     protocol.NewArray[float32](NPCAISlots),
	}
	m.Track(&m.NPC, &m.Position, &m.Velocity, &m.Target, m.Flags1, m.Flags2, m.AI,
		&m.NetID, &m.PlayerScale, &m.Strength, &m.FullLife, &m.Life)
	return m
}

func (m *NPCUpdate) Type() protocol.MessageType { return TypeNPCUpdate }

func (m *NPCUpdate) ReadBody(r *protocol.Reader, _ protocol.Context) error {
	m.NPC.Set(r.Int16())
	m.Position.Set(r.Vector2())
	m.Velocity.Set(r.Vector2())
	m.Target.Set(r.Uint16())
	f1 := r.Uint8()
	f2 := r.Uint8()

	stored := f1
	for i := uint8(0); i < NPCAISlots; i++ {
		stored = protocol.SetBit(stored, npcFirstAI+i, false)
	}
	m.Flags1.SetByte(0, protocol.SetBit(stored, npcFullLife, false))
	m.Flags2.SetByte(0, protocol.SetBit(protocol.SetBit(f2, npcHasScale, false), npcHasStrength, false))

	for i := uint8(0); i < NPCAISlots; i++ {
		var v float32
		if protocol.Bit(f1, npcFirstAI+i) {
			v = r.Float32()
		}
		m.AI.Set(int(i), v)
	}

	m.NetID.Set(r.Int16())

	var scale uint8
	if protocol.Bit(f2, npcHasScale) {
		scale = r.Uint8()
	}
	m.PlayerScale.Set(scale)

	var strength float32
	if protocol.Bit(f2, npcHasStrength) {
		strength = r.Float32()
	}
	m.Strength.Set(strength)

	full := protocol.Bit(f1, npcFullLife)
	m.FullLife.Set(full)

	var life int32
	if !full {
		switch n := r.Uint8(); n {
		case 1:
			life = int32(r.Int8())
		case 2:
			life = int32(r.Int16())
		case 4:
			life = r.Int32()
		default:
			r.Fail(fmt.Errorf("%w: npc life width %d", protocol.ErrMalformedField, n))
		}
	}
	m.Life.Set(life)

	return r.Err()
}

func (m *NPCUpdate) WriteBody(w *protocol.Writer, _ protocol.Context) error {
	f1 := m.Flags1.Byte(0)
	for i := 0; i < NPCAISlots; i++ {
		f1 = protocol.SetBit(f1, npcFirstAI+uint8(i), m.AI.At(i) != 0)
	}
	f1 = protocol.SetBit(f1, npcFullLife, m.FullLife.Get())

	f2 := m.Flags2.Byte(0)
	f2 = protocol.SetBit(f2, npcHasScale, m.PlayerScale.Get() != 0)
	f2 = protocol.SetBit(f2, npcHasStrength, m.Strength.Get() != 0)

	w.Int16(m.NPC.Get())
	w.Vector2(m.Position.Get())
	w.Vector2(m.Velocity.Get())
	w.Uint16(m.Target.Get())
	w.Uint8(f1)
	w.Uint8(f2)
	for i := 0; i < NPCAISlots; i++ {
		if v := m.AI.At(i); v != 0 {
			w.Float32(v)
		}
	}
	w.Int16(m.NetID.Get())
	if v := m.PlayerScale.Get(); v != 0 {
		w.Uint8(v)
	}
	if v := m.Strength.Get(); v != 0 {
		w.Float32(v)
	}
	if !m.FullLife.Get() {
		life := m.Life.Get()
		switch {
		case life >= math.MinInt8 && life <= math.MaxInt8:
			w.Uint8(1)
			w.Int8(int8(life))
		case life >= math.MinInt16 && life <= math.MaxInt16:
			w.Uint8(2)
			w.Int16(int16(life))
		default:
			w.Uint8(4)
			w.Int32(life)
		}
	}
	return nil
}

// ProjectileUpdate flag byte. Every bit is a presence bit.
const (
	projHasAI0            uint8 = 0
	projHasAI1            uint8 = 1
	projHasDamage         uint8 = 4
	projHasKnockback      uint8 = 5
	projHasOriginalDamage uint8 = 6
	projHasUUID           uint8 = 7
)

// noProjectileUUID is the UUID of a projectile that has none.
const noProjectileUUID int16 = -1

// ProjectileUpdate is the state of one projectile. The optional fields are
// sent only when non-zero, UUID only when not -1.
type ProjectileUpdate struct {
	protocol.Dirty
	ID             protocol.Value[int16]
	Position       protocol.Value[protocol.Vector2]
	Velocity       protocol.Value[protocol.Vector2]
	Owner          protocol.Value[uint8]
	ProjType       protocol.Value[int16]
	AI0            protocol.Value[float32]
	AI1            protocol.Value[float32]
	Damage         protocol.Value[int16]
	Knockback      protocol.Value[float32]
	OriginalDamage protocol.Value[int16]
	UUID           protocol.Value[int16]
}

func NewProjectileUpdate() *ProjectileUpdate {
	m := &ProjectileUpdate{UUID: protocol.NewValue(noProjectileUUID)}
	m.Track(&m.ID, &m.Position, &m.Velocity, &m.Owner, &m.ProjType, &m.AI0, &m.AI1,
		&m.Damage, &m.Knockback, &m.OriginalDamage, &m.UUID)
	return m
}

func (m *ProjectileUpdate) Type() protocol.MessageType { return TypeProjectileUpdate }

func (m *ProjectileUpdate) ReadBody(r *protocol.Reader, _ protocol.Context) error {
	m.ID.Set(r.Int16())
	m.Position.Set(r.Vector2())
	m.Velocity.Set(r.Vector2())
	m.Owner.Set(r.Uint8())
	m.ProjType.Set(r.Int16())
	f := r.Uint8()

	var ai0, ai1, knockback float32
	var damage, origDamage int16
	uuid := noProjectileUUID

	if protocol.Bit(f, projHasAI0) {
		ai0 = r.Float32()
	}
	if protocol.Bit(f, projHasAI1) {
		ai1 = r.Float32()
	}
	if protocol.Bit(f, projHasDamage) {
		damage = r.Int16()
	}
	if protocol.Bit(f, projHasKnockback) {
		knockback = r.Float32()
	}
	if protocol.Bit(f, projHasOriginalDamage) {
		origDamage = r.Int16()
	}
	if protocol.Bit(f, projHasUUID) {
		uuid = r.Int16()
	}

	m.AI0.Set(ai0)
	m.AI1.Set(ai1)
	m.Damage.Set(damage)
	m.Knockback.Set(knockback)
	m.OriginalDamage.Set(origDamage)
	m.UUID.Set(uuid)
	return r.Err()
}

func (m *ProjectileUpdate) WriteBody(w *protocol.Writer, _ protocol.Context) error {
	var f byte
	f = protocol.SetBit(f, projHasAI0, m.AI0.Get() != 0)
	f = protocol.SetBit(f, projHasAI1, m.AI1.Get() != 0)
	f = protocol.SetBit(f, projHasDamage, m.Damage.Get() != 0)
	f = protocol.SetBit(f, projHasKnockback, m.Knockback.Get() != 0)
	f = protocol.SetBit(f, projHasOriginalDamage, m.OriginalDamage.Get() != 0)
	f = protocol.SetBit(f, projHasUUID, m.UUID.Get() != noProjectileUUID)

	w.Int16(m.ID.Get())
	w.Vector2(m.Position.Get())
	w.Vector2(m.Velocity.Get())
	w.Uint8(m.Owner.Get())
	w.Int16(m.ProjType.Get())
	w.Uint8(f)
	if protocol.Bit(f, projHasAI0) {
		w.Float32(m.AI0.Get())
	}
	if protocol.Bit(f, projHasAI1) {
		w.Float32(m.AI1.Get())
	}
	if protocol.Bit(f, projHasDamage) {
		w.Int16(m.Damage.Get())
	}
	if protocol.Bit(f, projHasKnockback) {
		w.Float32(m.Knockback.Get())
	}
	if protocol.Bit(f, projHasOriginalDamage) {
		w.Int16(m.OriginalDamage.Get())
	}
	if protocol.Bit(f, projHasUUID) {
		w.Int16(m.UUID.Get())
	}
	return nil
}

// NPCStrike reports a hit on an NPC. HitDirection is -1, 0 or 1.
type NPCStrike struct {
	protocol.Dirty
	NPC          protocol.Value[int16]
	Damage       protocol.Value[int16]
	Knockback    protocol.Value[float32]
	HitDirection protocol.Value[int8]
	Crit         protocol.Value[bool]
}

func NewNPCStrike() *NPCStrike {
	m := &NPCStrike{}
	m.Track(&m.NPC, &m.Damage, &m.Knockback, &m.HitDirection, &m.Crit)
	return m
}

func (m *NPCStrike) Type() protocol.MessageType { return TypeNPCStrike }

func (m *NPCStrike) ReadBody(r *protocol.Reader, _ protocol.Context) error {
	m.NPC.Set(r.Int16())
	m.Damage.Set(r.Int16())
	m.Knockback.Set(r.Float32())
	m.HitDirection.Set(hitDirectionFromWire(r.Uint8()))
	m.Crit.Set(r.Bool())
	return r.Err()
}

func (m *NPCStrike) WriteBody(w *protocol.Writer, _ protocol.Context) error {
	w.Int16(m.NPC.Get())
	w.Int16(m.Damage.Get())
	w.Float32(m.Knockback.Get())
	w.Uint8(hitDirectionToWire(m.HitDirection.Get()))
	w.Bool(m.Crit.Get())
	return nil
}
