package packets

import "github.com/tilewire-project/tilewire/internal/protocol"

// DeathReason presence bits.
const (
	reasonKillerPlayer uint8 = iota
	reasonKillerNPC
	reasonProjectileIndex
	reasonOtherIndex
	reasonProjectileType
	reasonItemType
	reasonItemPrefix
	reasonCustom
)

// noSource marks an absent index in DeathReason.
const noSource int16 = -1

// DeathReason explains what killed a player. Every field is optional on the
// wire; the index fields are absent when -1, the type fields when 0 and
// CustomReason when empty. A present field carrying the absent value
// decodes the same as a missing one and is omitted when re-encoded.
type DeathReason struct {
	protocol.Dirty
	KillerPlayer    protocol.Value[int16]
	KillerNPC       protocol.Value[int16]
	ProjectileIndex protocol.Value[int16]
	OtherIndex      protocol.Value[int16]
	ProjectileType  protocol.Value[int16]
	ItemType        protocol.Value[int16]
	ItemPrefix      protocol.Value[uint8]
	CustomReason    protocol.Value[string]
}

func NewDeathReason() *DeathReason {
	d := &DeathReason{
		KillerPlayer:    protocol.NewValue(noSource),
		KillerNPC:       protocol.NewValue(noSource),
		ProjectileIndex: protocol.NewValue(noSource),
		OtherIndex:      protocol.NewValue(noSource),
	}
	d.Track(&d.KillerPlayer, &d.KillerNPC, &d.ProjectileIndex, &d.OtherIndex,
		&d.ProjectileType, &d.ItemType, &d.ItemPrefix, &d.CustomReason)
	return d
}

func (d *DeathReason) read(r *protocol.Reader) {
	flags := r.Uint8()

	readIndex := func(bit uint8, wide bool) int16 {
		if !protocol.Bit(flags, bit) {
			return noSource
		}
		if wide {
			return r.Int16()
		}
		return int16(r.Uint8())
	}
	readType := func(bit uint8) int16 {
		if !protocol.Bit(flags, bit) {
			return 0
		}
		return r.Int16()
	}

	d.KillerPlayer.Set(readIndex(reasonKillerPlayer, true))
	d.KillerNPC.Set(readIndex(reasonKillerNPC, true))
	d.ProjectileIndex.Set(readIndex(reasonProjectileIndex, true))
	d.OtherIndex.Set(readIndex(reasonOtherIndex, false))
	d.ProjectileType.Set(readType(reasonProjectileType))
	d.ItemType.Set(readType(reasonItemType))

	var prefix uint8
	if protocol.Bit(flags, reasonItemPrefix) {
		prefix = r.Uint8()
	}
	d.ItemPrefix.Set(prefix)

	var custom string
	if protocol.Bit(flags, reasonCustom) {
		custom = r.Text()
	}
	d.CustomReason.Set(custom)
}

func (d *DeathReason) write(w *protocol.Writer) {
	var flags byte
	flags = protocol.SetBit(flags, reasonKillerPlayer, d.KillerPlayer.Get() != noSource)
	flags = protocol.SetBit(flags, reasonKillerNPC, d.KillerNPC.Get() != noSource)
	flags = protocol.SetBit(flags, reasonProjectileIndex, d.ProjectileIndex.Get() != noSource)
	flags = protocol.SetBit(flags, reasonOtherIndex, d.OtherIndex.Get() != noSource)
	flags = protocol.SetBit(flags, reasonProjectileType, d.ProjectileType.Get() != 0)
	flags = protocol.SetBit(flags, reasonItemType, d.ItemType.Get() != 0)
	flags = protocol.SetBit(flags, reasonItemPrefix, d.ItemPrefix.Get() != 0)
	flags = protocol.SetBit(flags, reasonCustom, d.CustomReason.Get() != "")
	w.Uint8(flags)

	if protocol.Bit(flags, reasonKillerPlayer) {
		w.Int16(d.KillerPlayer.Get())
	}
	if protocol.Bit(flags, reasonKillerNPC) {
		w.Int16(d.KillerNPC.Get())
	}
	if protocol.Bit(flags, reasonProjectileIndex) {
		w.Int16(d.ProjectileIndex.Get())
	}
	if protocol.Bit(flags, reasonOtherIndex) {
		w.Uint8(uint8(d.OtherIndex.Get()))
	}
	if protocol.Bit(flags, reasonProjectileType) {
		w.Int16(d.ProjectileType.Get())
	}
	if protocol.Bit(flags, reasonItemType) {
		w.Int16(d.ItemType.Get())
	}
	if protocol.Bit(flags, reasonItemPrefix) {
		w.Uint8(d.ItemPrefix.Get())
	}
	if protocol.Bit(flags, reasonCustom) {
		w.Text(d.CustomReason.Get())
	}
}

// PlayerDeath flag byte.
const (
	deathPvP uint8 = 0
)

// PlayerDeath announces that a player died.
type PlayerDeath struct {
	protocol.Dirty
	Player       protocol.Value[uint8]
	Reason       *DeathReason
	Damage       protocol.Value[int16]
	HitDirection protocol.Value[int8]
	PvP          protocol.Value[bool]
}

func NewPlayerDeath() *PlayerDeath {
	m := &PlayerDeath{Reason: NewDeathReason()}
	m.Track(&m.Player, m.Reason, &m.Damage, &m.HitDirection, &m.PvP)
	return m
}

func (m *PlayerDeath) Type() protocol.MessageType { return TypePlayerDeath }
func (m *PlayerDeath) PlayerIndex() uint8         { return m.Player.Get() }

func (m *PlayerDeath) ReadBody(r *protocol.Reader, _ protocol.Context) error {
	m.Player.Set(r.Uint8())
	m.Reason.read(r)
	m.Damage.Set(r.Int16())
	m.HitDirection.Set(hitDirectionFromWire(r.Uint8()))
	m.PvP.Set(protocol.Bit(r.Uint8(), deathPvP))
	return r.Err()
}

func (m *PlayerDeath) WriteBody(w *protocol.Writer, _ protocol.Context) error {
	w.Uint8(m.Player.Get())
	m.Reason.write(w)
	w.Int16(m.Damage.Get())
	w.Uint8(hitDirectionToWire(m.HitDirection.Get()))
	w.Uint8(protocol.SetBit(0, deathPvP, m.PvP.Get()))
	return nil
}

// Hit directions travel as direction+1 so that -1 fits in a byte.
func hitDirectionFromWire(b uint8) int8 {
	return int8(b) - 1
}

func hitDirectionToWire(d int8) uint8 {
	return uint8(d + 1)
}
