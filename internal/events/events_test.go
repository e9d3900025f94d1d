package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tilewire-project/tilewire/internal/protocol"
)

func TestEmitSyncRunsAllHandlers(t *testing.T) {
	bus := NewEventBus()
	defer bus.Stop()

	var calls atomic.Int32
	bus.Subscribe(EventPacket, "a", func(ctx context.Context, e Event) error {
		calls.Add(1)
		return nil
	})
	bus.Subscribe(EventPacket, "b", func(ctx context.Context, e Event) error {
		calls.Add(1)
		return errors.New("boom")
	})
	bus.Subscribe(EventPacket, "c", func(ctx context.Context, e Event) error {
		panic("handler bug")
	})

	err := bus.EmitSync(context.Background(), Event{Type: EventPacket, Source: "test"})
	assert.EqualError(t, err, "boom")
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, uint64(1), bus.Published())
	assert.Equal(t, 3, bus.HandlerCount(EventPacket))
}

func TestEmitAsyncAndStop(t *testing.T) {
	bus := NewEventBus()

	done := make(chan Event, 1)
	bus.Subscribe(EventSessionOpened, "recv", func(ctx context.Context, e Event) error {
		done <- e
		return nil
	})

	bus.Emit(context.Background(), Event{Type: EventSessionOpened, Payload: SessionPayload{SessionID: "s1"}})
	e := <-done
	assert.Equal(t, "s1", e.Payload.(SessionPayload).SessionID)

	bus.Stop()
	bus.Stop()
	select {
	case <-bus.StopCh():
	default:
		t.Fatal("stop channel not closed")
	}

	// events after stop are dropped
	bus.Emit(context.Background(), Event{Type: EventSessionOpened})
	assert.NoError(t, bus.EmitSync(context.Background(), Event{Type: EventSessionOpened}))
	assert.Equal(t, uint64(1), bus.Published())
}

func TestUnsubscribe(t *testing.T) {
	bus := NewEventBus()
	defer bus.Stop()

	noop := func(ctx context.Context, e Event) error { return nil }
	bus.Subscribe(EventShutdown, "a", noop)
	bus.Subscribe(EventShutdown, "b", noop)
	bus.Unsubscribe(EventShutdown, "a")
	assert.Equal(t, 1, bus.HandlerCount(EventShutdown))
}

func TestSessionStateJSON(t *testing.T) {
	b, err := json.Marshal(map[string]SessionState{"state": SessionStateActive})
	require.NoError(t, err)
	assert.JSONEq(t, `{"state":"active"}`, string(b))
	assert.Equal(t, "unknown", SessionState(42).String())
}

func TestHookChainOrderAndVeto(t *testing.T) {
	chain := NewHookChain()

	var order []string
	chain.Register("low", 0, func(a *PacketArgs) { order = append(order, "low") })
	chain.Register("high", 10, func(a *PacketArgs) { order = append(order, "high") })
	chain.Register("mid", 5, func(a *PacketArgs) { order = append(order, "mid") })

	assert.Equal(t, []string{"high", "mid", "low"}, chain.Names())

	args := &PacketArgs{SessionID: "s", Direction: protocol.FromClient, Context: protocol.ServerSide}
	assert.False(t, chain.Run(args))
	assert.Equal(t, []string{"high", "mid", "low"}, order)

	order = nil
	chain.Register("veto", 7, func(a *PacketArgs) {
		order = append(order, "veto")
		a.Handled = true
	})
	args = &PacketArgs{}
	assert.True(t, chain.Run(args))
	assert.Equal(t, []string{"high", "veto"}, order)
	assert.Equal(t, "veto", args.HandledBy)
}

func TestHookChainReplaceAndPanic(t *testing.T) {
	chain := NewHookChain()

	chain.Register("x", 0, func(a *PacketArgs) { panic("bad hook") })
	chain.Register("y", 0, func(a *PacketArgs) { a.Handled = true })
	assert.True(t, chain.Run(&PacketArgs{}), "panicking hook is skipped")

	chain.Register("y", 0, func(a *PacketArgs) {})
	assert.Equal(t, []string{"x", "y"}, chain.Names())
	assert.False(t, chain.Run(&PacketArgs{}))

	chain.Unregister("x")
	chain.Unregister("y")
	assert.Empty(t, chain.Names())
}
