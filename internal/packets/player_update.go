package packets

import "github.com/tilewire-project/tilewire/internal/protocol"

// PlayerUpdate control byte.
const (
	ControlUp protocol.FlagBit = iota
	ControlDown
	ControlLeft
	ControlRight
	ControlJump
	ControlUseItem
	ControlDirection
)

// PlayerUpdate pulley byte. Bit 2 is the velocity presence bit and is
// computed on write.
const (
	PulleyEnabled          protocol.FlagBit = 0
	PulleyDirection        protocol.FlagBit = 1
	PulleyVortexStealth    protocol.FlagBit = 3
	PulleyGravityDirection protocol.FlagBit = 4
	PulleyShieldRaised     protocol.FlagBit = 5
	PulleyGhost            protocol.FlagBit = 6

	pulleyHasVelocity uint8 = 2
)

// PlayerUpdate misc byte. Bit 6 is the return-potion presence bit and is
// computed on write.
const (
	MiscHoveringUp         protocol.FlagBit = 0
	MiscVoidVault          protocol.FlagBit = 1
	MiscSitting            protocol.FlagBit = 2
	MiscDownedDD2Event     protocol.FlagBit = 3
	MiscPettingAnimal      protocol.FlagBit = 4
	MiscPettingSmallAnimal protocol.FlagBit = 5
	MiscHoveringDown       protocol.FlagBit = 7

	miscHasReturnPotion uint8 = 6
)

// PlayerUpdate sleep byte.
const (
	SleepSleeping protocol.FlagBit = 0
)

// PlayerUpdate is the per-tick player movement state. Velocity is only sent
// when non-zero; OriginalPosition and HomePosition only when either is
// non-zero.
type PlayerUpdate struct {
	protocol.Dirty
	Player           protocol.Value[uint8]
	Control          *protocol.Flags
	Pulley           *protocol.Flags
	Misc             *protocol.Flags
	Sleep            *protocol.Flags
	SelectedItem     protocol.Value[uint8]
	Position         protocol.Value[protocol.Vector2]
	Velocity         protocol.Value[protocol.Vector2]
	OriginalPosition protocol.Value[protocol.Vector2]
	HomePosition     protocol.Value[protocol.Vector2]
}

func NewPlayerUpdate() *PlayerUpdate {
	m := &PlayerUpdate{
		Control: protocol.NewFlags(1),
		Pulley:  protocol.NewFlags(1),
		Misc:    protocol.NewFlags(1),
		Sleep:   protocol.NewFlags(1),
	}
	m.Track(&m.Player, m.Control, m.Pulley, m.Misc, m.Sleep, &m.SelectedItem,
		&m.Position, &m.Velocity, &m.OriginalPosition, &m.HomePosition)
	return m
}

func (m *PlayerUpdate) Type() protocol.MessageType { return TypePlayerUpdate }
func (m *PlayerUpdate) PlayerIndex() uint8         { return m.Player.Get() }

func (m *PlayerUpdate) ReadBody(r *protocol.Reader, _ protocol.Context) error {
	m.Player.Set(r.Uint8())
	m.Control.SetByte(0, r.Uint8())
	pulley := r.Uint8()
	misc := r.Uint8()
	m.Sleep.SetByte(0, r.Uint8())
	m.SelectedItem.Set(r.Uint8())
	m.Position.Set(r.Vector2())

	// presence bits are not kept in the stored headers
	m.Pulley.SetByte(0, protocol.SetBit(pulley, pulleyHasVelocity, false))
	m.Misc.SetByte(0, protocol.SetBit(misc, miscHasReturnPotion, false))

	var vel protocol.Vector2
	if protocol.Bit(pulley, pulleyHasVelocity) {
		vel = r.Vector2()
	}
	m.Velocity.Set(vel)

	var orig, home protocol.Vector2
	if protocol.Bit(misc, miscHasReturnPotion) {
		orig = r.Vector2()
		home = r.Vector2()
	}
	m.OriginalPosition.Set(orig)
	m.HomePosition.Set(home)

	return r.Err()
}

func (m *PlayerUpdate) WriteBody(w *protocol.Writer, _ protocol.Context) error {
	hasVelocity := !m.Velocity.Get().IsZero()
	hasReturn := !m.OriginalPosition.Get().IsZero() || !m.HomePosition.Get().IsZero()

	w.Uint8(m.Player.Get())
	w.Uint8(m.Control.Byte(0))
	w.Uint8(protocol.SetBit(m.Pulley.Byte(0), pulleyHasVelocity, hasVelocity))
	w.Uint8(protocol.SetBit(m.Misc.Byte(0), miscHasReturnPotion, hasReturn))
	w.Uint8(m.Sleep.Byte(0))
	w.Uint8(m.SelectedItem.Get())
	w.Vector2(m.Position.Get())
	if hasVelocity {
		w.Vector2(m.Velocity.Get())
	}
	if hasReturn {
		w.Vector2(m.OriginalPosition.Get())
		w.Vector2(m.HomePosition.Get())
	}
	return nil
}
