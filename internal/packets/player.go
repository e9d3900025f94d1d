package packets

import "github.com/tilewire-project/tilewire/internal/protocol"

// HideVisualSlots is the number of accessory visibility toggles in PlayerInfo.
const HideVisualSlots = 10

// Difficulty is the character difficulty carried by PlayerInfo.
type Difficulty uint8

const (
	DifficultyClassic Difficulty = iota
	DifficultyMediumcore
	DifficultyHardcore
	DifficultyJourney
)

func (d Difficulty) String() string {
	switch d {
	case DifficultyClassic:
		return "classic"
	case DifficultyMediumcore:
		return "mediumcore"
	case DifficultyHardcore:
		return "hardcore"
	case DifficultyJourney:
		return "journey"
	default:
		return "unknown"
	}
}

// PlayerInfo difficulty byte. Bits 4-7 carry no meaning here and are kept
// as-is in DifficultyBits. Setting more than one of the mediumcore,
// hardcore and journey bits decodes to the highest and re-encodes with
// that bit alone.
const (
	difficultyMediumcoreBit     uint8 = 0
	difficultyHardcoreBit       uint8 = 1
	difficultyExtraAccessoryBit uint8 = 2
	difficultyJourneyBit        uint8 = 3

	difficultyUnmappedMask byte = 0xF0
)

// PlayerInfo torch byte.
const (
	TorchUsingBiome    protocol.FlagBit = 0
	TorchHappyFunTime  protocol.FlagBit = 1
	TorchUnlockedBiome protocol.FlagBit = 2
)

// PlayerInfo describes a character's appearance and difficulty.
type PlayerInfo struct {
	protocol.Dirty
	Player          protocol.Value[uint8]
	SkinVariant     protocol.Value[uint8]
	Hair            protocol.Value[uint8]
	Name            protocol.Value[string]
	HairDye         protocol.Value[uint8]
	HideVisuals     *protocol.Array[bool]
	HideMisc        protocol.Value[uint8]
	HairColor       protocol.Value[protocol.Color]
	SkinColor       protocol.Value[protocol.Color]
	EyeColor        protocol.Value[protocol.Color]
	ShirtColor      protocol.Value[protocol.Color]
	UndershirtColor protocol.Value[protocol.Color]
	PantsColor      protocol.Value[protocol.Color]
	ShoeColor       protocol.Value[protocol.Color]
	Difficulty      protocol.Value[Difficulty]
	ExtraAccessory  protocol.Value[bool]
	DifficultyBits  protocol.Value[uint8]
	Torches         *protocol.Flags
}

func NewPlayerInfo() *PlayerInfo {
	m := &PlayerInfo{
		HideVisuals: protocol.NewArray[bool](HideVisualSlots),
		Torches:     protocol.NewFlags(1),
	}
	m.Track(&m.Player, &m.SkinVariant, &m.Hair, &m.Name, &m.HairDye, m.HideVisuals, &m.HideMisc,
		&m.HairColor, &m.SkinColor, &m.EyeColor, &m.ShirtColor, &m.UndershirtColor, &m.PantsColor, &m.ShoeColor,
		&m.Difficulty, &m.ExtraAccessory, &m.DifficultyBits, m.Torches)
	return m
}

func (m *PlayerInfo) Type() protocol.MessageType { return TypePlayerInfo }
func (m *PlayerInfo) PlayerIndex() uint8         { return m.Player.Get() }

func (m *PlayerInfo) ReadBody(r *protocol.Reader, _ protocol.Context) error {
	m.Player.Set(r.Uint8())
	m.SkinVariant.Set(r.Uint8())
	m.Hair.Set(r.Uint8())
	m.Name.Set(r.Text())
	m.HairDye.Set(r.Uint8())

	hidden := protocol.UnpackBools(r.Bytes((HideVisualSlots+7)/8), HideVisualSlots)
	for i, v := range hidden {
		m.HideVisuals.Set(i, v)
	}

	m.HideMisc.Set(r.Uint8())
	m.HairColor.Set(r.Color())
	m.SkinColor.Set(r.Color())
	m.EyeColor.Set(r.Color())
	m.ShirtColor.Set(r.Color())
	m.UndershirtColor.Set(r.Color())
	m.PantsColor.Set(r.Color())
	m.ShoeColor.Set(r.Color())

	d := r.Uint8()
	difficulty := DifficultyClassic
	if protocol.Bit(d, difficultyMediumcoreBit) {
		difficulty = DifficultyMediumcore
	}
	if protocol.Bit(d, difficultyHardcoreBit) {
		difficulty = DifficultyHardcore
	}
	if protocol.Bit(d, difficultyJourneyBit) {
		difficulty = DifficultyJourney
	}
	m.Difficulty.Set(difficulty)
	m.ExtraAccessory.Set(protocol.Bit(d, difficultyExtraAccessoryBit))
	m.DifficultyBits.Set(d & difficultyUnmappedMask)

	m.Torches.SetByte(0, r.Uint8())
	return r.Err()
}

func (m *PlayerInfo) WriteBody(w *protocol.Writer, _ protocol.Context) error {
	w.Uint8(m.Player.Get())
	w.Uint8(m.SkinVariant.Get())
	w.Uint8(m.Hair.Get())
	w.Text(m.Name.Get())
	w.Uint8(m.HairDye.Get())
	w.Raw(protocol.PackBools(m.HideVisuals.Values()))
	w.Uint8(m.HideMisc.Get())
	w.Color(m.HairColor.Get())
	w.Color(m.SkinColor.Get())
	w.Color(m.EyeColor.Get())
	w.Color(m.ShirtColor.Get())
	w.Color(m.UndershirtColor.Get())
	w.Color(m.PantsColor.Get())
	w.Color(m.ShoeColor.Get())

	d := m.DifficultyBits.Get() & difficultyUnmappedMask
	switch m.Difficulty.Get() {
	case DifficultyMediumcore:
		d = protocol.SetBit(d, difficultyMediumcoreBit, true)
	case DifficultyHardcore:
		d = protocol.SetBit(d, difficultyHardcoreBit, true)
	case DifficultyJourney:
		d = protocol.SetBit(d, difficultyJourneyBit, true)
	}
	d = protocol.SetBit(d, difficultyExtraAccessoryBit, m.ExtraAccessory.Get())
	w.Uint8(d)

	w.Uint8(m.Torches.Byte(0))
	return nil
}

// PlayerSlot carries one inventory slot.
type PlayerSlot struct {
	protocol.Dirty
	Player protocol.Value[uint8]
	Slot   protocol.Value[int16]
	Stack  protocol.Value[int16]
	Prefix protocol.Value[uint8]
	NetID  protocol.Value[int16]
}

func NewPlayerSlot() *PlayerSlot {
	m := &PlayerSlot{}
	m.Track(&m.Player, &m.Slot, &m.Stack, &m.Prefix, &m.NetID)
	return m
}

func (m *PlayerSlot) Type() protocol.MessageType { return TypePlayerSlot }
func (m *PlayerSlot) PlayerIndex() uint8         { return m.Player.Get() }

func (m *PlayerSlot) ReadBody(r *protocol.Reader, _ protocol.Context) error {
	m.Player.Set(r.Uint8())
	m.Slot.Set(r.Int16())
	m.Stack.Set(r.Int16())
	m.Prefix.Set(r.Uint8())
	m.NetID.Set(r.Int16())
	return r.Err()
}

func (m *PlayerSlot) WriteBody(w *protocol.Writer, _ protocol.Context) error {
	w.Uint8(m.Player.Get())
	w.Int16(m.Slot.Get())
	w.Int16(m.Stack.Get())
	w.Uint8(m.Prefix.Get())
	w.Int16(m.NetID.Get())
	return nil
}

// worldSpawnWire is the on-wire spawn coordinate meaning "use the world
// spawn point". The logical fields carry 0 instead.
const worldSpawnWire int16 = -1

// SpawnPlayer places a player in the world. A zero SpawnX and SpawnY mean
// the world spawn point.
type SpawnPlayer struct {
	protocol.Dirty
	Player protocol.Value[uint8]
	SpawnX protocol.Value[int16]
	SpawnY protocol.Value[int16]
}

func NewSpawnPlayer() *SpawnPlayer {
	m := &SpawnPlayer{}
	m.Track(&m.Player, &m.SpawnX, &m.SpawnY)
	return m
}

func (m *SpawnPlayer) Type() protocol.MessageType { return TypeSpawnPlayer }
func (m *SpawnPlayer) PlayerIndex() uint8         { return m.Player.Get() }

// AtWorldSpawn reports whether the player spawns at the world spawn point.
func (m *SpawnPlayer) AtWorldSpawn() bool {
	return m.SpawnX.Get() == 0 && m.SpawnY.Get() == 0
}

func (m *SpawnPlayer) ReadBody(r *protocol.Reader, _ protocol.Context) error {
	m.Player.Set(r.Uint8())
	m.SpawnX.Set(spawnFromWire(r.Int16()))
	m.SpawnY.Set(spawnFromWire(r.Int16()))
	return r.Err()
}

func (m *SpawnPlayer) WriteBody(w *protocol.Writer, _ protocol.Context) error {
	w.Uint8(m.Player.Get())
	w.Int16(spawnToWire(m.SpawnX.Get()))
	w.Int16(spawnToWire(m.SpawnY.Get()))
	return nil
}

func spawnFromWire(v int16) int16 {
	if v == worldSpawnWire {
		return 0
	}
	return v
}

func spawnToWire(v int16) int16 {
	if v == 0 {
		return worldSpawnWire
	}
	return v
}

// PlayerActive announces that a player slot became active or inactive.
type PlayerActive struct {
	protocol.Dirty
	Player protocol.Value[uint8]
	Active protocol.Value[bool]
}

func NewPlayerActive() *PlayerActive {
	m := &PlayerActive{}
	m.Track(&m.Player, &m.Active)
	return m
}

func (m *PlayerActive) Type() protocol.MessageType { return TypePlayerActive }
func (m *PlayerActive) PlayerIndex() uint8         { return m.Player.Get() }

func (m *PlayerActive) ReadBody(r *protocol.Reader, _ protocol.Context) error {
	m.Player.Set(r.Uint8())
	m.Active.Set(r.Bool())
	return r.Err()
}

func (m *PlayerActive) WriteBody(w *protocol.Writer, _ protocol.Context) error {
	w.Uint8(m.Player.Get())
	w.Bool(m.Active.Get())
	return nil
}

// PlayerHealth carries current and maximum life.
type PlayerHealth struct {
	protocol.Dirty
	Player    protocol.Value[uint8]
	Health    protocol.Value[int16]
	MaxHealth protocol.Value[int16]
}

func NewPlayerHealth() *PlayerHealth {
	m := &PlayerHealth{}
	m.Track(&m.Player, &m.Health, &m.MaxHealth)
	return m
}

func (m *PlayerHealth) Type() protocol.MessageType { return TypePlayerHealth }
func (m *PlayerHealth) PlayerIndex() uint8         { return m.Player.Get() }

func (m *PlayerHealth) ReadBody(r *protocol.Reader, _ protocol.Context) error {
	m.Player.Set(r.Uint8())
	m.Health.Set(r.Int16())
	m.MaxHealth.Set(r.Int16())
	return r.Err()
}

func (m *PlayerHealth) WriteBody(w *protocol.Writer, _ protocol.Context) error {
	w.Uint8(m.Player.Get())
	w.Int16(m.Health.Get())
	w.Int16(m.MaxHealth.Get())
	return nil
}

// PlayerMana carries current and maximum mana.
type PlayerMana struct {
	protocol.Dirty
	Player  protocol.Value[uint8]
	Mana    protocol.Value[int16]
	MaxMana protocol.Value[int16]
}

func NewPlayerMana() *PlayerMana {
	m := &PlayerMana{}
	m.Track(&m.Player, &m.Mana, &m.MaxMana)
	return m
}

func (m *PlayerMana) Type() protocol.MessageType { return TypePlayerMana }
func (m *PlayerMana) PlayerIndex() uint8         { return m.Player.Get() }

func (m *PlayerMana) ReadBody(r *protocol.Reader, _ protocol.Context) error {
	m.Player.Set(r.Uint8())
	m.Mana.Set(r.Int16())
	m.MaxMana.Set(r.Int16())
	return r.Err()
}

func (m *PlayerMana) WriteBody(w *protocol.Writer, _ protocol.Context) error {
	w.Uint8(m.Player.Get())
	w.Int16(m.Mana.Get())
	w.Int16(m.MaxMana.Get())
	return nil
}

// TogglePvp switches a player's hostility.
type TogglePvp struct {
	protocol.Dirty
	Player  protocol.Value[uint8]
	Enabled protocol.Value[bool]
}

func NewTogglePvp() *TogglePvp {
	m := &TogglePvp{}
	m.Track(&m.Player, &m.Enabled)
	return m
}

func (m *TogglePvp) Type() protocol.MessageType { return TypeTogglePvp }
func (m *TogglePvp) PlayerIndex() uint8         { return m.Player.Get() }

func (m *TogglePvp) ReadBody(r *protocol.Reader, _ protocol.Context) error {
	m.Player.Set(r.Uint8())
	m.Enabled.Set(r.Bool())
	return r.Err()
}

func (m *TogglePvp) WriteBody(w *protocol.Writer, _ protocol.Context) error {
	w.Uint8(m.Player.Get())
	w.Bool(m.Enabled.Get())
	return nil
}

// Team is a pvp team.
type Team uint8

const (
	TeamNone Team = iota
	TeamRed
	TeamGreen
	TeamBlue
	TeamYellow
	TeamPink
)

func (t Team) String() string {
	switch t {
	case TeamNone:
		return "none"
	case TeamRed:
		return "red"
	case TeamGreen:
		return "green"
	case TeamBlue:
		return "blue"
	case TeamYellow:
		return "yellow"
	case TeamPink:
		return "pink"
	default:
		return "unknown"
	}
}

// PlayerTeam assigns a player to a team.
type PlayerTeam struct {
	protocol.Dirty
	Player protocol.Value[uint8]
	Team   protocol.Value[Team]
}

func NewPlayerTeam() *PlayerTeam {
	m := &PlayerTeam{}
	m.Track(&m.Player, &m.Team)
	return m
}

func (m *PlayerTeam) Type() protocol.MessageType { return TypePlayerTeam }
func (m *PlayerTeam) PlayerIndex() uint8         { return m.Player.Get() }

func (m *PlayerTeam) ReadBody(r *protocol.Reader, _ protocol.Context) error {
	m.Player.Set(r.Uint8())
	m.Team.Set(Team(r.Uint8()))
	return r.Err()
}

func (m *PlayerTeam) WriteBody(w *protocol.Writer, _ protocol.Context) error {
	w.Uint8(m.Player.Get())
	w.Uint8(uint8(m.Team.Get()))
	return nil
}

// BuffSlots is the fixed number of buff slots in PlayerBuffs.
const BuffSlots = 22

// PlayerBuffs carries every buff slot of a player. All slots are always
// sent; an empty slot holds 0.
type PlayerBuffs struct {
	protocol.Dirty
	Player protocol.Value[uint8]
	Buffs  *protocol.Array[uint16]
}

func NewPlayerBuffs() *PlayerBuffs {
	m := &PlayerBuffs{Buffs: protocol.NewArray[uint16](BuffSlots)}
	m.Track(&m.Player, m.Buffs)
	return m
}

func (m *PlayerBuffs) Type() protocol.MessageType { return TypePlayerBuffs }
func (m *PlayerBuffs) PlayerIndex() uint8         { return m.Player.Get() }

func (m *PlayerBuffs) ReadBody(r *protocol.Reader, _ protocol.Context) error {
	m.Player.Set(r.Uint8())
	for i := 0; i < BuffSlots; i++ {
		m.Buffs.Set(i, r.Uint16())
	}
	return r.Err()
}

func (m *PlayerBuffs) WriteBody(w *protocol.Writer, _ protocol.Context) error {
	w.Uint8(m.Player.Get())
	for i := 0; i < BuffSlots; i++ {
		w.Uint16(m.Buffs.At(i))
	}
	return nil
}

// PlayerZone bits, four bytes wide.
const (
	ZoneDungeon protocol.FlagBit = iota
	ZoneCorrupt
	ZoneHallow
	ZoneMeteor
	ZoneJungle
	ZoneSnow
	ZoneCrimson
	ZoneWaterCandle
	ZonePeaceCandle
	ZoneTowerSolar
	ZoneTowerVortex
	ZoneTowerNebula
	ZoneTowerStardust
	ZoneDesert
	ZoneGlowshroom
	ZoneUndergroundDesert
	ZoneSkyHeight
	ZoneOverworldHeight
	ZoneDirtLayerHeight
	ZoneRockLayerHeight
	ZoneUnderworldHeight
	ZoneBeach
	ZoneRain
	ZoneSandstorm
	ZoneOldOneArmy
	ZoneGranite
	ZoneMarble
	ZoneHive
	ZoneGemCave
	ZoneLihzhardTemple
	ZoneGraveyard
)

// zoneBytes is the width of the PlayerZone header.
const zoneBytes = 4

// PlayerZone reports which biomes a player is standing in.
type PlayerZone struct {
	protocol.Dirty
	Player protocol.Value[uint8]
	Zones  *protocol.Flags
}

func NewPlayerZone() *PlayerZone {
	m := &PlayerZone{Zones: protocol.NewFlags(zoneBytes)}
	m.Track(&m.Player, m.Zones)
	return m
}

func (m *PlayerZone) Type() protocol.MessageType { return TypePlayerZone }
func (m *PlayerZone) PlayerIndex() uint8         { return m.Player.Get() }

func (m *PlayerZone) ReadBody(r *protocol.Reader, _ protocol.Context) error {
	m.Player.Set(r.Uint8())
	for i := 0; i < zoneBytes; i++ {
		m.Zones.SetByte(i, r.Uint8())
	}
	return r.Err()
}

func (m *PlayerZone) WriteBody(w *protocol.Writer, _ protocol.Context) error {
	w.Uint8(m.Player.Get())
	for i := 0; i < zoneBytes; i++ {
		w.Uint8(m.Zones.Byte(i))
	}
	return nil
}
