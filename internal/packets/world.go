package packets

import (
	"fmt"

	"github.com/tilewire-project/tilewire/internal/protocol"
)

// WorldInfo day byte.
const (
	DayTime   protocol.FlagBit = 0
	BloodMoon protocol.FlagBit = 1
	Eclipse   protocol.FlagBit = 2
)

// WorldInfo event bits, four bytes wide.
const (
	EventShadowOrbSmashed protocol.FlagBit = iota
	EventDownedBoss1
	EventDownedBoss2
	EventDownedBoss3
	EventHardMode
	EventDownedClown
	EventServerSideCharacter
	EventDownedPlantBoss
	EventDownedMechBoss1
	EventDownedMechBoss2
	EventDownedMechBoss3
	EventDownedMechBossAny
	EventCloudBackground
	EventCrimson
	EventPumpkinMoon
	EventSnowMoon
	EventExpertMode
	EventFastForwardTime
	EventSlimeRain
	EventDownedKingSlime
	EventDownedQueenBee
	EventDownedFishron
	EventDownedMartians
	EventDownedAncientCultist
	EventDownedMoonLord
	EventDownedHalloweenKing
	EventDownedHalloweenTree
	EventDownedChristmasIceQueen
	EventDownedChristmasSantank
	EventDownedChristmasTree
	EventDownedGolem
	EventBirthdayParty
)

const eventBytes = 4

// WorldInfo describes the world the client joined.
type WorldInfo struct {
	protocol.Dirty
	Time         protocol.Value[int32]
	Day          *protocol.Flags
	MoonPhase    protocol.Value[uint8]
	MaxTilesX    protocol.Value[int16]
	MaxTilesY    protocol.Value[int16]
	SpawnX       protocol.Value[int16]
	SpawnY       protocol.Value[int16]
	WorldSurface protocol.Value[int16]
	RockLayer    protocol.Value[int16]
	WorldID      protocol.Value[int32]
	WorldName    protocol.Value[string]
	GameMode     protocol.Value[uint8]
	WindSpeed    protocol.Value[float32]
	Events       *protocol.Flags
}

func NewWorldInfo() *WorldInfo {
	m := &WorldInfo{
		Day:    protocol.NewFlags(1),
		Events: protocol.NewFlags(eventBytes),
	}
	m.Track(&m.Time, m.Day, &m.MoonPhase, &m.MaxTilesX, &m.MaxTilesY, &m.SpawnX, &m.SpawnY,
		&m.WorldSurface, &m.RockLayer, &m.WorldID, &m.WorldName, &m.GameMode, &m.WindSpeed, m.Events)
	return m
}

func (m *WorldInfo) Type() protocol.MessageType { return TypeWorldInfo }

func (m *WorldInfo) ReadBody(r *protocol.Reader, _ protocol.Context) error {
	m.Time.Set(r.Int32())
	m.Day.SetByte(0, r.Uint8())
	m.MoonPhase.Set(r.Uint8())
	m.MaxTilesX.Set(r.Int16())
	m.MaxTilesY.Set(r.Int16())
	m.SpawnX.Set(r.Int16())
	m.SpawnY.Set(r.Int16())
	m.WorldSurface.Set(r.Int16())
	m.RockLayer.Set(r.Int16())
	m.WorldID.Set(r.Int32())
	m.WorldName.Set(r.Text())
	m.GameMode.Set(r.Uint8())
	m.WindSpeed.Set(r.Float32())
	for i := 0; i < eventBytes; i++ {
		m.Events.SetByte(i, r.Uint8())
	}
	return r.Err()
}

func (m *WorldInfo) WriteBody(w *protocol.Writer, _ protocol.Context) error {
	w.Int32(m.Time.Get())
	w.Uint8(m.Day.Byte(0))
	w.Uint8(m.MoonPhase.Get())
	w.Int16(m.MaxTilesX.Get())
	w.Int16(m.MaxTilesY.Get())
	w.Int16(m.SpawnX.Get())
	w.Int16(m.SpawnY.Get())
	w.Int16(m.WorldSurface.Get())
	w.Int16(m.RockLayer.Get())
	w.Int32(m.WorldID.Get())
	w.Text(m.WorldName.Get())
	w.Uint8(m.GameMode.Get())
	w.Float32(m.WindSpeed.Get())
	for i := 0; i < eventBytes; i++ {
		w.Uint8(m.Events.Byte(i))
	}
	return nil
}

// RequestSection asks the server for the world section around a tile.
// (-1, -1) asks for the spawn section.
type RequestSection struct {
	protocol.Dirty
	X protocol.Value[int32]
	Y protocol.Value[int32]
}

func NewRequestSection() *RequestSection {
	m := &RequestSection{}
	m.Track(&m.X, &m.Y)
	return m
}

func (m *RequestSection) Type() protocol.MessageType { return TypeRequestSection }

// SpawnSection reports whether the request is for the spawn section.
func (m *RequestSection) SpawnSection() bool {
	return m.X.Get() == -1 && m.Y.Get() == -1
}

func (m *RequestSection) ReadBody(r *protocol.Reader, _ protocol.Context) error {
	m.X.Set(r.Int32())
	m.Y.Set(r.Int32())
	return r.Err()
}

func (m *RequestSection) WriteBody(w *protocol.Writer, _ protocol.Context) error {
	w.Int32(m.X.Get())
	w.Int32(m.Y.Get())
	return nil
}

// Tile record first flag byte.
const (
	tileActive    uint8 = 0
	tileFramed    uint8 = 1
	tileWall      uint8 = 2
	tileLiquid    uint8 = 3
	tileWire      uint8 = 4
	tileHalfBrick uint8 = 5
	tileActuator  uint8 = 6
	tileInactive  uint8 = 7
)

// Tile record second flag byte. Bits 4-6 hold the slope.
const (
	tileWire2     uint8 = 0
	tileWire3     uint8 = 1
	tileHasColor  uint8 = 2
	tileWallColor uint8 = 3
	tileWire4     uint8 = 7

	tileSlopeShift = 4
	tileSlopeMask  = 0x07
)

// Tile is one cell of a TileSquare. Type is sent only when Active, the frame
// only when Framed, Wall and the colors only when non-zero, and the liquid
// pair only when Liquid is non-zero.
type Tile struct {
	Active     bool
	Framed     bool
	Wire       bool
	HalfBrick  bool
	Actuator   bool
	Inactive   bool
	Wire2      bool
	Wire3      bool
	Wire4      bool
	Slope      uint8
	TileColor  uint8
	WallColor  uint8
	Type       uint16
	FrameX     int16
	FrameY     int16
	Wall       uint16
	Liquid     uint8
	LiquidType uint8
}

// minTileSize is the smallest encoded tile record: both flag bytes.
const minTileSize = 2

func readTile(r *protocol.Reader) Tile {
	f1 := r.Uint8()
	f2 := r.Uint8()

	t := Tile{
		Active:    protocol.Bit(f1, tileActive),
		Framed:    protocol.Bit(f1, tileFramed),
		Wire:      protocol.Bit(f1, tileWire),
		HalfBrick: protocol.Bit(f1, tileHalfBrick),
		Actuator:  protocol.Bit(f1, tileActuator),
		Inactive:  protocol.Bit(f1, tileInactive),
		Wire2:     protocol.Bit(f2, tileWire2),
		Wire3:     protocol.Bit(f2, tileWire3),
		Wire4:     protocol.Bit(f2, tileWire4),
		Slope:     (f2 >> tileSlopeShift) & tileSlopeMask,
	}
	if protocol.Bit(f2, tileHasColor) {
		t.TileColor = r.Uint8()
	}
	if protocol.Bit(f2, tileWallColor) {
		t.WallColor = r.Uint8()
	}
	if t.Active {
		t.Type = r.Uint16()
	}
	if t.Framed {
		t.FrameX = r.Int16()
		t.FrameY = r.Int16()
	}
	if protocol.Bit(f1, tileWall) {
		t.Wall = r.Uint16()
	}
	if protocol.Bit(f1, tileLiquid) {
		t.Liquid = r.Uint8()
		t.LiquidType = r.Uint8()
	}
	return t
}

func writeTile(w *protocol.Writer, t Tile) {
	var f1, f2 byte
	f1 = protocol.SetBit(f1, tileActive, t.Active)
	f1 = protocol.SetBit(f1, tileFramed, t.Framed)
	f1 = protocol.SetBit(f1, tileWall, t.Wall != 0)
	f1 = protocol.SetBit(f1, tileLiquid, t.Liquid != 0)
	f1 = protocol.SetBit(f1, tileWire, t.Wire)
	f1 = protocol.SetBit(f1, tileHalfBrick, t.HalfBrick)
	f1 = protocol.SetBit(f1, tileActuator, t.Actuator)
	f1 = protocol.SetBit(f1, tileInactive, t.Inactive)

	f2 = protocol.SetBit(f2, tileWire2, t.Wire2)
	f2 = protocol.SetBit(f2, tileWire3, t.Wire3)
	f2 = protocol.SetBit(f2, tileHasColor, t.TileColor != 0)
	f2 = protocol.SetBit(f2, tileWallColor, t.WallColor != 0)
	f2 |= (t.Slope & tileSlopeMask) << tileSlopeShift
	f2 = protocol.SetBit(f2, tileWire4, t.Wire4)

	w.Uint8(f1)
	w.Uint8(f2)
	if t.TileColor != 0 {
		w.Uint8(t.TileColor)
	}
	if t.WallColor != 0 {
		w.Uint8(t.WallColor)
	}
	if t.Active {
		w.Uint16(t.Type)
	}
	if t.Framed {
		w.Int16(t.FrameX)
		w.Int16(t.FrameY)
	}
	if t.Wall != 0 {
		w.Uint16(t.Wall)
	}
	if t.Liquid != 0 {
		w.Uint8(t.Liquid)
		w.Uint8(t.LiquidType)
	}
}

// TileSquare size word.
const (
	squareHasChangeType = 0x8000
	maxSquareSize       = 0x7FFF
)

// TileSquare replaces a square block of tiles whose top-left corner is
// (X, Y). Tiles are sent column by column: x outer, y inner. ChangeType is
// sent only when non-zero.
type TileSquare struct {
	protocol.Dirty
	ChangeType protocol.Value[uint8]
	X          protocol.Value[int16]
	Y          protocol.Value[int16]
	Tiles      *protocol.Grid[Tile]
}

func NewTileSquare() *TileSquare {
	m := &TileSquare{Tiles: protocol.NewGrid[Tile](0, 0)}
	m.Track(&m.ChangeType, &m.X, &m.Y, m.Tiles)
	return m
}

func (m *TileSquare) Type() protocol.MessageType { return TypeTileSquare }

// Size returns the side length of the square.
func (m *TileSquare) Size() int {
	return m.Tiles.Width()
}

// Resize discards the tiles and makes the square size x size.
func (m *TileSquare) Resize(size int) {
	m.Tiles.Resize(size, size)
}

func (m *TileSquare) ReadBody(r *protocol.Reader, _ protocol.Context) error {
	raw := r.Uint16()
	size := int(raw & maxSquareSize)

	var change uint8
	if raw&squareHasChangeType != 0 {
		change = r.Uint8()
	}
	m.ChangeType.Set(change)
	m.X.Set(r.Int16())
	m.Y.Set(r.Int16())
	if err := r.Err(); err != nil {
		return err
	}

	if need := size * size * minTileSize; need > r.Remaining() {
		r.Fail(fmt.Errorf("%w: %dx%d tile square needs at least %d bytes, have %d",
			protocol.ErrFieldOverrun, size, size, need, r.Remaining()))
		return r.Err()
	}

	m.Tiles.Resize(size, size)
	for x := 0; x < size; x++ {
		for y := 0; y < size; y++ {
			m.Tiles.Set(x, y, readTile(r))
		}
	}
	return r.Err()
}

func (m *TileSquare) WriteBody(w *protocol.Writer, _ protocol.Context) error {
	size := m.Tiles.Width()
	if size != m.Tiles.Height() {
		return fmt.Errorf("%w: tile square is %dx%d", ErrInvalidField, size, m.Tiles.Height())
	}
	if size > maxSquareSize {
		return fmt.Errorf("%w: tile square size %d exceeds %d", ErrInvalidField, size, maxSquareSize)
	}

	raw := uint16(size)
	if m.ChangeType.Get() != 0 {
		raw |= squareHasChangeType
	}
	w.Uint16(raw)
	if m.ChangeType.Get() != 0 {
		w.Uint8(m.ChangeType.Get())
	}
	w.Int16(m.X.Get())
	w.Int16(m.Y.Get())

	for x := 0; x < size; x++ {
		for y := 0; y < size; y++ {
			writeTile(w, m.Tiles.At(x, y))
		}
	}
	return nil
}
