package events

import (
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/tilewire-project/tilewire/internal/protocol"
)

// PacketArgs is handed to every hook for one decoded frame. A hook may
// mutate Message in place (the relay re-encodes dirty messages), replace it
// outright, or set Handled to drop the frame.
type PacketArgs struct {
	SessionID string
	Direction protocol.Direction
	Context   protocol.Context
	Message   protocol.Message
	Handled   bool
	HandledBy string
}

// PacketHook inspects one decoded frame.
type PacketHook func(args *PacketArgs)

type hookEntry struct {
	name     string
	priority int
	hook     PacketHook
}

// HookChain runs packet hooks in priority order, highest first. Hooks with
// equal priority run in registration order. The first hook to set Handled
// stops the chain.
type HookChain struct {
	mu    sync.RWMutex
	hooks []hookEntry
}

// NewHookChain creates an empty chain.
func NewHookChain() *HookChain {
	return &HookChain{}
}

// Register adds a named hook. Registering a name twice replaces the
// earlier hook.
func (c *HookChain) Register(name string, priority int, hook PacketHook) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.removeLocked(name)
	c.hooks = append(c.hooks, hookEntry{name: name, priority: priority, hook: hook})
	sort.SliceStable(c.hooks, func(i, j int) bool {
		return c.hooks[i].priority > c.hooks[j].priority
	})

	log.Debug().
		Str("hook", name).
		Int("priority", priority).
		Msg("registered packet hook")
}

// Unregister removes a named hook.
func (c *HookChain) Unregister(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeLocked(name)
}

func (c *HookChain) removeLocked(name string) {
	kept := c.hooks[:0]
	for _, h := range c.hooks {
		if h.name != name {
			kept = append(kept, h)
		}
	}
	c.hooks = kept
}

// Names returns the registered hook names in run order.
func (c *HookChain) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, len(c.hooks))
	for i, h := range c.hooks {
		names[i] = h.name
	}
	return names
}

// Run passes args through the chain and reports whether a hook handled the
// frame. A panicking hook is logged and skipped.
func (c *HookChain) Run(args *PacketArgs) bool {
	c.mu.RLock()
	hooks := make([]hookEntry, len(c.hooks))
	copy(hooks, c.hooks)
	c.mu.RUnlock()

	for _, h := range hooks {
		runHook(h, args)
		if args.Handled {
			if args.HandledBy == "" {
				args.HandledBy = h.name
			}
			return true
		}
	}
	return false
}

func runHook(h hookEntry, args *PacketArgs) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("hook", h.name).
				Str("session", args.SessionID).
				Interface("panic", r).
				Msg("packet hook panicked")
		}
	}()
	h.hook(args)
}
