package health

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tilewire-project/tilewire/internal/config"
	"github.com/tilewire-project/tilewire/internal/events"
	"github.com/tilewire-project/tilewire/internal/util"
)

type countSessions int

func (c countSessions) Count() int { return int(c) }

func newTestManager(t *testing.T) (*Manager, chan events.Event) {
	t.Helper()

	bus := events.NewEventBus()
	t.Cleanup(bus.Stop)

	got := make(chan events.Event, 8)
	record := func(ctx context.Context, e events.Event) error {
		got <- e
		return nil
	}
	bus.Subscribe(events.EventUpstreamStatus, "test", record)
	bus.Subscribe(events.EventDiskAlert, "test", record)
	bus.Subscribe(events.EventNotifyMQTT, "test", record)

	return NewManager(config.DefaultConfig(), bus, countSessions(3)), got
}

func next(t *testing.T, ch chan events.Event) events.Event {
	t.Helper()
	select {
	case e := <-ch:
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("no event")
		return events.Event{}
	}
}

func TestUpstreamTransitions(t *testing.T) {
	m, got := newTestManager(t)
	ctx := context.Background()

	up := true
	m.dial = func(ctx context.Context, network, addr string) (net.Conn, error) {
		if !up {
			return nil, errors.New("connection refused")
		}
		a, b := net.Pipe()
		b.Close()
		return a, nil
	}

	assert.True(t, m.Status().Healthy(), "healthy before the first probe")

	m.checkUpstream(ctx)
	e := next(t, got)
	p := e.Payload.(events.UpstreamStatusPayload)
	assert.True(t, p.Reachable)
	assert.Equal(t, config.DefaultUpstream, p.Upstream)

	// no change, no event
	m.checkUpstream(ctx)

	up = false
	m.checkUpstream(ctx)
	e = next(t, got)
	assert.False(t, e.Payload.(events.UpstreamStatusPayload).Reachable)

	m.checkUpstream(ctx)
	status := m.Status()
	require.NotNil(t, status.Upstream)
	assert.False(t, status.Healthy())
	assert.Equal(t, 2, status.Upstream.Failures)
	assert.Equal(t, "connection refused", status.Upstream.Error)

	select {
	case e := <-got:
		t.Fatalf("unexpected event %s", e.Type)
	default:
	}
}

func TestDiskLevels(t *testing.T) {
	tests := []struct {
		used float64
		want string
	}{
		{10, "ok"},
		{80, "info"},
		{92, "warning"},
		{96.5, "error"},
		{100, "critical"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, diskLevel(tt.used), "%.1f%%", tt.used)
	}
}

func TestDiskAlert(t *testing.T) {
	m, got := newTestManager(t)
	m.diskFn = func(path string) (*util.DiskUsage, error) {
		return &util.DiskUsage{Total: 100 << 30, Used: 93 << 30, Free: 7 << 30, UsedPercent: 93}, nil
	}

	m.checkDiskUtilization(context.Background())
	e := next(t, got)
	p := e.Payload.(events.DiskAlertPayload)
	assert.Equal(t, "warning", p.Level)
	assert.Equal(t, "data", p.Path)

	require.NotNil(t, m.Status().Disk)
	assert.Equal(t, uint64(7<<30), m.Status().Disk.Free)
}

func TestDiskSkippedWhenCaptureDisabled(t *testing.T) {
	m, _ := newTestManager(t)
	m.cfg.Capture.Enabled = false
	m.diskFn = func(path string) (*util.DiskUsage, error) {
		t.Fatal("disk checked with capture disabled")
		return nil, nil
	}
	m.checkDiskUtilization(context.Background())
	assert.Nil(t, m.Status().Disk)
}

func TestHeartbeat(t *testing.T) {
	m, got := newTestManager(t)

	m.heartbeat(context.Background())
	e := next(t, got)
	p := e.Payload.(events.NotifyMQTTPayload)
	assert.Equal(t, "heartbeat", p.Topic)
	body := p.Payload.(map[string]interface{})
	assert.Equal(t, 3, body["sessions"])
	assert.Equal(t, true, body["healthy"])
}

func TestStartStopsOnCancel(t *testing.T) {
	m, _ := newTestManager(t)
	m.cfg.Timers.UpstreamCheckInterval = 0
	m.cfg.Timers.DiskCheckInterval = 0

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Start(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("health manager did not stop")
	}
}
