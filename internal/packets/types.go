// Package packets defines the concrete message layouts carried by the
// tilewire frame codec and the static catalog that registers them.
package packets

import (
	"errors"
	"fmt"

	"github.com/tilewire-project/tilewire/internal/protocol"
)

// Message type ids.
const (
	TypeConnectRequest     protocol.MessageType = 1
	TypeDisconnect         protocol.MessageType = 2
	TypeContinueConnecting protocol.MessageType = 3
	TypePlayerInfo         protocol.MessageType = 4
	TypePlayerSlot         protocol.MessageType = 5
	TypeWorldInfo          protocol.MessageType = 7
	TypeRequestSection     protocol.MessageType = 8
	TypeSpawnPlayer        protocol.MessageType = 12
	TypePlayerUpdate       protocol.MessageType = 13
	TypePlayerActive       protocol.MessageType = 14
	TypePlayerHealth       protocol.MessageType = 16
	TypeTileSquare         protocol.MessageType = 20
	TypeItemDrop           protocol.MessageType = 21
	TypeItemOwner          protocol.MessageType = 22
	TypeNPCUpdate          protocol.MessageType = 23
	TypeChatMessage        protocol.MessageType = 25
	TypeProjectileUpdate   protocol.MessageType = 27
	TypeNPCStrike          protocol.MessageType = 28
	TypeTogglePvp          protocol.MessageType = 30
	TypePlayerZone         protocol.MessageType = 36
	TypePasswordSend       protocol.MessageType = 38
	TypePlayerMana         protocol.MessageType = 42
	TypePlayerTeam         protocol.MessageType = 45
	TypePlayerBuffs        protocol.MessageType = 50
	TypePlayerDeath        protocol.MessageType = 118
)

// ErrInvalidField is returned by WriteBody when a field holds a value the
// wire layout cannot express. It rejects the one message only.
var ErrInvalidField = errors.New("packets: invalid field value")

// PlayerIndexed is implemented by messages that name the player they are
// about.
type PlayerIndexed interface {
	protocol.Message
	PlayerIndex() uint8
}

// Catalog returns the static, ordered list of every message this package
// defines.
func Catalog() []protocol.Entry {
	return []protocol.Entry{
		{Type: TypeConnectRequest, Name: "ConnectRequest", Direction: protocol.FromClient, New: func() protocol.Message { return NewConnectRequest() }},
		{Type: TypeDisconnect, Name: "Disconnect", Direction: protocol.FromServer, New: func() protocol.Message { return NewDisconnect() }},
		{Type: TypeContinueConnecting, Name: "ContinueConnecting", Direction: protocol.FromServer, New: func() protocol.Message { return NewContinueConnecting() }},
		{Type: TypePlayerInfo, Name: "PlayerInfo", Direction: protocol.Bidirectional, New: func() protocol.Message { return NewPlayerInfo() }},
		{Type: TypePlayerSlot, Name: "PlayerSlot", Direction: protocol.Bidirectional, New: func() protocol.Message { return NewPlayerSlot() }},
		{Type: TypeWorldInfo, Name: "WorldInfo", Direction: protocol.FromServer, New: func() protocol.Message { return NewWorldInfo() }},
		{Type: TypeRequestSection, Name: "RequestSection", Direction: protocol.FromClient, New: func() protocol.Message { return NewRequestSection() }},
		{Type: TypeSpawnPlayer, Name: "SpawnPlayer", Direction: protocol.Bidirectional, New: func() protocol.Message { return NewSpawnPlayer() }},
		{Type: TypePlayerUpdate, Name: "PlayerUpdate", Direction: protocol.Bidirectional, New: func() protocol.Message { return NewPlayerUpdate() }},
		{Type: TypePlayerActive, Name: "PlayerActive", Direction: protocol.FromServer, New: func() protocol.Message { return NewPlayerActive() }},
		{Type: TypePlayerHealth, Name: "PlayerHealth", Direction: protocol.Bidirectional, New: func() protocol.Message { return NewPlayerHealth() }},
		{Type: TypeTileSquare, Name: "TileSquare", Direction: protocol.Bidirectional, New: func() protocol.Message { return NewTileSquare() }},
		{Type: TypeItemDrop, Name: "ItemDrop", Direction: protocol.Bidirectional, New: func() protocol.Message { return NewItemDrop() }},
		{Type: TypeItemOwner, Name: "ItemOwner", Direction: protocol.Bidirectional, New: func() protocol.Message { return NewItemOwner() }},
		{Type: TypeNPCUpdate, Name: "NPCUpdate", Direction: protocol.FromServer, New: func() protocol.Message { return NewNPCUpdate() }},
		{Type: TypeChatMessage, Name: "ChatMessage", Direction: protocol.Bidirectional, New: func() protocol.Message { return NewChatMessage() }},
		{Type: TypeProjectileUpdate, Name: "ProjectileUpdate", Direction: protocol.Bidirectional, New: func() protocol.Message { return NewProjectileUpdate() }},
		{Type: TypeNPCStrike, Name: "NPCStrike", Direction: protocol.Bidirectional, New: func() protocol.Message { return NewNPCStrike() }},
		{Type: TypeTogglePvp, Name: "TogglePvp", Direction: protocol.Bidirectional, New: func() protocol.Message { return NewTogglePvp() }},
		{Type: TypePlayerZone, Name: "PlayerZone", Direction: protocol.Bidirectional, New: func() protocol.Message { return NewPlayerZone() }},
		{Type: TypePasswordSend, Name: "PasswordSend", Direction: protocol.FromClient, New: func() protocol.Message { return NewPasswordSend() }},
		{Type: TypePlayerMana, Name: "PlayerMana", Direction: protocol.Bidirectional, New: func() protocol.Message { return NewPlayerMana() }},
		{Type: TypePlayerTeam, Name: "PlayerTeam", Direction: protocol.Bidirectional, New: func() protocol.Message { return NewPlayerTeam() }},
		{Type: TypePlayerBuffs, Name: "PlayerBuffs", Direction: protocol.Bidirectional, New: func() protocol.Message { return NewPlayerBuffs() }},
		{Type: TypePlayerDeath, Name: "PlayerDeath", Direction: protocol.Bidirectional, New: func() protocol.Message { return NewPlayerDeath() }},
	}
}

// NewRegistry registers the catalog into a new registry and freezes it.
func NewRegistry() (*protocol.Registry, error) {
	reg := protocol.NewRegistry()
	if err := reg.RegisterAll(Catalog()...); err != nil {
		return nil, fmt.Errorf("failed to register message catalog: %w", err)
	}
	reg.Freeze()
	return reg, nil
}

// NewCodec returns a codec over the full catalog.
func NewCodec() (*protocol.Codec, error) {
	reg, err := NewRegistry()
	if err != nil {
		return nil, err
	}
	return protocol.NewCodec(reg), nil
}
