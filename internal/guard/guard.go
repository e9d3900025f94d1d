// Package guard provides the built-in packet hooks: a player index spoof
// check and stat clamps for client-reported health and mana.
package guard

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tilewire-project/tilewire/internal/config"
	"github.com/tilewire-project/tilewire/internal/events"
	"github.com/tilewire-project/tilewire/internal/packets"
	"github.com/tilewire-project/tilewire/internal/protocol"
)

// Hook names and priorities. The spoof check runs before the clamps so a
// spoofed frame is dropped instead of rewritten.
const (
	SpoofHookName = "guard.spoof"
	ClampHookName = "guard.clamp"

	SpoofPriority = 100
	ClampPriority = 50
)

// Guard tracks the player slot each session was assigned and enforces the
// configured rules.
type Guard struct {
	mu     sync.RWMutex
	cfg    config.GuardConfig
	slots  map[string]uint8
	logger zerolog.Logger
}

// New creates a guard with the given rules.
func New(cfg config.GuardConfig) *Guard {
	return &Guard{
		cfg:    cfg,
		slots:  make(map[string]uint8),
		logger: log.With().Str("component", "guard").Logger(),
	}
}

// Attach registers the guard hooks on chain and subscribes to session
// closes on bus so slot assignments do not outlive their session.
func (g *Guard) Attach(chain *events.HookChain, bus *events.EventBus) {
	chain.Register(SpoofHookName, SpoofPriority, g.spoofHook)
	chain.Register(ClampHookName, ClampPriority, g.clampHook)

	if bus != nil {
		bus.Subscribe(events.EventSessionClosed, "guard", func(_ context.Context, e events.Event) error {
			if p, ok := e.Payload.(events.SessionPayload); ok {
				g.Forget(p.SessionID)
			}
			return nil
		})
	}
}

// SetConfig swaps the rules at runtime.
func (g *Guard) SetConfig(cfg config.GuardConfig) {
	g.mu.Lock()
	g.cfg = cfg
	g.mu.Unlock()
}

// Config returns the active rules.
func (g *Guard) Config() config.GuardConfig {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.cfg
}

// Slot returns the player slot assigned to session.
func (g *Guard) Slot(session string) (uint8, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	idx, ok := g.slots[session]
	return idx, ok
}

// Forget drops what the guard knows about session.
func (g *Guard) Forget(session string) {
	g.mu.Lock()
	delete(g.slots, session)
	g.mu.Unlock()
}

// Tracked returns the number of sessions with a known slot.
func (g *Guard) Tracked() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.slots)
}

func (g *Guard) spoofHook(args *events.PacketArgs) {
	switch m := args.Message.(type) {
	case *packets.ContinueConnecting:
		if args.Direction == protocol.FromServer {
			g.mu.Lock()
			g.slots[args.SessionID] = m.Player.Get()
			g.mu.Unlock()
		}
		return
	case packets.PlayerIndexed:
		if args.Direction != protocol.FromClient {
			return
		}

		g.mu.RLock()
		enabled := g.cfg.SpoofCheck
		slot, known := g.slots[args.SessionID]
		g.mu.RUnlock()

		// Before the server assigns a slot there is nothing to compare with.
		if !enabled || !known {
			return
		}
		if idx := m.PlayerIndex(); idx != slot {
			g.logger.Warn().
				Str("session", args.SessionID).
				Stringer("type", m.Type()).
				Uint8("claimed", idx).
				Uint8("assigned", slot).
				Msg("vetoed spoofed player index")
			args.Handled = true
		}
	}
}

func (g *Guard) clampHook(args *events.PacketArgs) {
	if args.Direction != protocol.FromClient {
		return
	}

	g.mu.RLock()
	maxHealth, maxMana := g.cfg.MaxHealthCap, g.cfg.MaxManaCap
	g.mu.RUnlock()

	switch m := args.Message.(type) {
	case *packets.PlayerHealth:
		if clamp(&m.Health, &m.MaxHealth, maxHealth) {
			g.logger.Info().
				Str("session", args.SessionID).
				Uint8("player", m.Player.Get()).
				Int16("cap", maxHealth).
				Msg("clamped max health")
		}
	case *packets.PlayerMana:
		if clamp(&m.Mana, &m.MaxMana, maxMana) {
			g.logger.Info().
				Str("session", args.SessionID).
				Uint8("player", m.Player.Get()).
				Int16("cap", maxMana).
				Msg("clamped max mana")
		}
	}
}

// clamp limits cur and maxVal to limit. A limit of 0 disables the clamp.
// Values are only written when they change so untouched messages stay clean.
func clamp(cur, maxVal *protocol.Value[int16], limit int16) bool {
	if limit <= 0 || maxVal.Get() <= limit {
		return false
	}
	maxVal.Set(limit)
	if cur.Get() > limit {
		cur.Set(limit)
	}
	return true
}
