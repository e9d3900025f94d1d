package network

import (
	"context"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tilewire-project/tilewire/internal/capture"
	"github.com/tilewire-project/tilewire/internal/config"
	"github.com/tilewire-project/tilewire/internal/events"
	"github.com/tilewire-project/tilewire/internal/packets"
	"github.com/tilewire-project/tilewire/internal/protocol"
	"github.com/tilewire-project/tilewire/internal/stats"
)

type memRecorder struct {
	mu      sync.Mutex
	records []capture.Record
}

func (m *memRecorder) Save(_ context.Context, rec capture.Record) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return int64(len(m.records)), nil
}

func (m *memRecorder) all() []capture.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]capture.Record(nil), m.records...)
}

type harness struct {
	relay    *Relay
	codec    *protocol.Codec
	hooks    *events.HookChain
	bus      *events.EventBus
	stats    *stats.Collector
	recorder *memRecorder
	upstream net.Listener
	accepted chan net.Conn
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	codec, err := packets.NewCodec()
	require.NoError(t, err)

	up, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	accepted := make(chan net.Conn, 4)
	go func() {
		for {
			c, err := up.Accept()
			if err != nil {
				return
			}
			accepted <- c
		}
	}()

	h := &harness{
		codec:    codec,
		hooks:    events.NewHookChain(),
		bus:      events.NewEventBus(),
		stats:    stats.NewCollector(),
		recorder: &memRecorder{},
		upstream: up,
		accepted: accepted,
	}

	cfg := config.DefaultConfig().GetRelay()
	cfg.ListenAddr = "127.0.0.1"
	cfg.ListenPort = 0
	cfg.Upstream = up.Addr().String()
	cfg.MaxConnsPerIP = 0
	cfg.ReadTimeoutSec = 5

	h.relay = NewRelay(cfg, codec, Options{
		Hooks:    h.hooks,
		Bus:      h.bus,
		Stats:    h.stats,
		Recorder: h.recorder,
	})
	require.NoError(t, h.relay.Start(context.Background()))

	t.Cleanup(func() {
		h.relay.Stop()
		h.bus.Stop()
		up.Close()
	})
	return h
}

// connect dials the relay and returns the client conn and the upstream side
// of the same session.
func (h *harness) connect(t *testing.T) (net.Conn, net.Conn) {
	t.Helper()
	client, err := net.Dial("tcp", h.relay.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	select {
	case server := <-h.accepted:
		t.Cleanup(func() { server.Close() })
		return client, server
	case <-time.After(5 * time.Second):
		t.Fatal("relay never dialled upstream")
		return nil, nil
	}
}

func (h *harness) encode(t *testing.T, m protocol.Message, ctx protocol.Context) []byte {
	t.Helper()
	frame, err := h.codec.Encode(m, ctx)
	require.NoError(t, err)
	return frame
}

func readFrame(t *testing.T, c net.Conn) []byte {
	t.Helper()
	c.SetReadDeadline(time.Now().Add(5 * time.Second))
	frame, err := protocol.ReadFrame(c)
	require.NoError(t, err)
	return frame
}

func health(player uint8, hp, max int16) *packets.PlayerHealth {
	m := packets.NewPlayerHealth()
	m.Player.Set(player)
	m.Health.Set(hp)
	m.MaxHealth.Set(max)
	return m
}

func TestRelayForwardsUnchanged(t *testing.T) {
	h := newHarness(t)
	client, server := h.connect(t)

	frame := h.encode(t, health(5, 100, 500), protocol.ServerSide)
	_, err := client.Write(frame)
	require.NoError(t, err)
	assert.Equal(t, frame, readFrame(t, server))

	cc := packets.NewContinueConnecting()
	cc.Player.Set(5)
	reply := h.encode(t, cc, protocol.ClientSide)
	_, err = server.Write(reply)
	require.NoError(t, err)
	assert.Equal(t, reply, readFrame(t, client))

	require.Eventually(t, func() bool {
		all := h.relay.Sessions().GetAll()
		if len(all) != 1 {
			return false
		}
		p, ok := all[0].Player()
		return ok && p == 5
	}, 2*time.Second, 10*time.Millisecond)

	snap := h.stats.Snapshot()
	assert.Equal(t, uint64(1), snap.FramesIn)
	assert.Equal(t, uint64(1), snap.FramesOut)
	assert.Zero(t, snap.Reencoded)
}

func TestRelayReencodesDirtyMessage(t *testing.T) {
	h := newHarness(t)
	h.hooks.Register("clamp", 0, func(a *events.PacketArgs) {
		if m, ok := a.Message.(*packets.PlayerHealth); ok && m.MaxHealth.Get() > 400 {
			m.MaxHealth.Set(400)
		}
	})
	client, server := h.connect(t)

	_, err := client.Write(h.encode(t, health(1, 100, 500), protocol.ServerSide))
	require.NoError(t, err)

	assert.Equal(t, []byte{8, 0, 16, 1, 100, 0, 144, 1}, readFrame(t, server))
	assert.Equal(t, uint64(1), h.stats.Snapshot().Reencoded)
}

func TestRelayVetoDropsFrame(t *testing.T) {
	h := newHarness(t)
	h.hooks.Register("no-health", 0, func(a *events.PacketArgs) {
		if a.Message.Type() == packets.TypePlayerHealth {
			a.Handled = true
		}
	})

	vetoed := make(chan events.PacketPayload, 1)
	h.bus.Subscribe(events.EventPacketVetoed, "test", func(_ context.Context, e events.Event) error {
		vetoed <- e.Payload.(events.PacketPayload)
		return nil
	})

	client, server := h.connect(t)

	team := packets.NewPlayerTeam()
	team.Player.Set(5)
	team.Team.Set(packets.Team(1))

	_, err := client.Write(h.encode(t, health(5, 1, 1), protocol.ServerSide))
	require.NoError(t, err)
	teamFrame := h.encode(t, team, protocol.ServerSide)
	_, err = client.Write(teamFrame)
	require.NoError(t, err)

	assert.Equal(t, teamFrame, readFrame(t, server), "vetoed frame never reaches upstream")

	select {
	case p := <-vetoed:
		assert.Equal(t, "no-health", p.HookName)
		assert.Equal(t, uint8(16), p.TypeID)
	case <-time.After(2 * time.Second):
		t.Fatal("no veto event")
	}
	assert.Equal(t, uint64(1), h.stats.Snapshot().Vetoed)
}

func TestRelayForwardsAndCapturesUnknown(t *testing.T) {
	h := newHarness(t)
	client, server := h.connect(t)

	frame := []byte{7, 0, 200, 0xDE, 0xAD, 0xBE, 0xEF}
	_, err := client.Write(frame)
	require.NoError(t, err)
	assert.Equal(t, frame, readFrame(t, server))

	recs := h.recorder.all()
	require.Len(t, recs, 1)
	assert.Equal(t, capture.ReasonUnknown, recs[0].Reason)
	assert.Equal(t, uint8(200), recs[0].TypeID)
	assert.Equal(t, frame, recs[0].Payload)
	assert.Equal(t, "client>server", recs[0].Direction)
}

func TestRelayClosesSessionOnDesync(t *testing.T) {
	h := newHarness(t)

	closed := make(chan events.SessionPayload, 1)
	h.bus.Subscribe(events.EventSessionClosed, "test", func(_ context.Context, e events.Event) error {
		closed <- e.Payload.(events.SessionPayload)
		return nil
	})

	client, _ := h.connect(t)

	// PlayerHealth needs five body bytes, this frame carries one.
	_, err := client.Write([]byte{4, 0, 16, 5})
	require.NoError(t, err)

	select {
	case p := <-closed:
		assert.Equal(t, events.CloseDesync, p.Reason)
	case <-time.After(5 * time.Second):
		t.Fatal("session not closed")
	}

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err = client.Read(make([]byte, 1))
	assert.ErrorIs(t, err, io.EOF)

	recs := h.recorder.all()
	require.Len(t, recs, 1)
	assert.Equal(t, capture.ReasonDesync, recs[0].Reason)
	assert.NotEmpty(t, recs[0].Error)
	assert.Zero(t, h.relay.Sessions().Count())
	assert.Equal(t, uint64(1), h.stats.Snapshot().Errors[stats.ErrorDecode])
}

func TestRelayDropsFrameTooLargeAfterRewrite(t *testing.T) {
	h := newHarness(t)
	h.hooks.Register("grow", 0, func(a *events.PacketArgs) {
		if u, ok := a.Message.(*protocol.Unknown); ok && u.TypeID == 201 {
			u.SetPayload(make([]byte, protocol.MaxFrameSize))
		}
	})
	client, server := h.connect(t)

	_, err := client.Write([]byte{4, 0, 201, 1})
	require.NoError(t, err)
	ok := []byte{4, 0, 202, 2}
	_, err = client.Write(ok)
	require.NoError(t, err)

	assert.Equal(t, ok, readFrame(t, server), "session survives the oversized rewrite")
	assert.Equal(t, uint64(1), h.stats.Snapshot().Dropped)
}

func TestRelayStopClosesSessions(t *testing.T) {
	h := newHarness(t)
	client, _ := h.connect(t)

	require.Eventually(t, func() bool { return h.relay.Sessions().Count() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.True(t, h.relay.IsRunning())

	h.relay.Stop()
	assert.False(t, h.relay.IsRunning())
	assert.Zero(t, h.relay.Sessions().Count())

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err := client.Read(make([]byte, 1))
	assert.Error(t, err)
}
