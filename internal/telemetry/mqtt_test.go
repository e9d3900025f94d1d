package telemetry

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tilewire-project/tilewire/internal/config"
	"github.com/tilewire-project/tilewire/internal/events"
	"github.com/tilewire-project/tilewire/internal/stats"
)

type doneToken struct{}

func (doneToken) Wait() bool                     { return true }
func (doneToken) WaitTimeout(time.Duration) bool { return true }
func (doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (doneToken) Error() error { return nil }

type published struct {
	topic string
	body  map[string]interface{}
}

// fakeClient records publishes. Methods the handler does not call panic
// through the nil embedded interface.
type fakeClient struct {
	mqtt.Client
	mu        sync.Mutex
	connected bool
	msgs      []published
}

func (f *fakeClient) IsConnected() bool { return f.connected }

func (f *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	var body map[string]interface{}
	json.Unmarshal(payload.([]byte), &body)
	f.mu.Lock()
	f.msgs = append(f.msgs, published{topic: topic, body: body})
	f.mu.Unlock()
	return doneToken{}
}

func (f *fakeClient) all() []published {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]published(nil), f.msgs...)
}

func newTestHandler(connected bool) (*MQTTHandler, *fakeClient, *events.EventBus) {
	bus := events.NewEventBus()
	client := &fakeClient{connected: connected}
	cfg := config.MQTTConfig{Enabled: true, TopicPrefix: "tw"}
	return newHandler(cfg, bus, client, map[string]interface{}{"hostname": "box"}), client, bus
}

func TestPublishStats(t *testing.T) {
	h, client, bus := newTestHandler(true)
	defer bus.Stop()

	h.PublishStats(stats.Snapshot{FramesIn: 3, Errors: map[string]uint64{}})

	msgs := client.all()
	require.Len(t, msgs, 1)
	assert.Equal(t, "tw/stats", msgs[0].topic)
	assert.Equal(t, "box", msgs[0].body["hostname"])
	assert.NotEmpty(t, msgs[0].body["timestamp"])
	payload := msgs[0].body["payload"].(map[string]interface{})
	assert.Equal(t, float64(3), payload["frames_client_to_server"])
}

func TestPublishSkippedWhenDisconnected(t *testing.T) {
	h, client, bus := newTestHandler(false)
	defer bus.Stop()

	h.PublishShutdown()
	assert.Empty(t, client.all())
}

func TestEventsArePublished(t *testing.T) {
	h, client, bus := newTestHandler(true)
	defer bus.Stop()
	h.subscribeEvents()

	ctx := context.Background()
	require.NoError(t, bus.EmitSync(ctx, events.Event{
		Type:    events.EventSessionClosed,
		Payload: events.SessionPayload{SessionID: "s-1", Reason: events.CloseDesync},
	}))
	require.NoError(t, bus.EmitSync(ctx, events.Event{
		Type:    events.EventFrameDesync,
		Payload: events.DesyncPayload{SessionID: "s-1", TypeID: 16},
	}))
	require.NoError(t, bus.EmitSync(ctx, events.Event{
		Type:    events.EventNotifyMQTT,
		Payload: events.NotifyMQTTPayload{Topic: "custom", Payload: "hi"},
	}))
	assert.Error(t, bus.EmitSync(ctx, events.Event{Type: events.EventNotifyMQTT, Payload: 42}))

	var topics []string
	for _, m := range client.all() {
		topics = append(topics, m.topic)
	}
	assert.Equal(t, []string{"tw/sessions", "tw/desync", "tw/custom"}, topics)

	session := client.all()[0].body["payload"].(map[string]interface{})
	assert.Equal(t, "closed", session["event"])
}

func TestHealthEventsArePublished(t *testing.T) {
	h, client, bus := newTestHandler(true)
	defer bus.Stop()
	h.subscribeEvents()

	ctx := context.Background()
	require.NoError(t, bus.EmitSync(ctx, events.Event{
		Type:    events.EventUpstreamStatus,
		Payload: events.UpstreamStatusPayload{Upstream: "10.0.0.2:7778", Reachable: false, Error: "refused"},
	}))
	require.NoError(t, bus.EmitSync(ctx, events.Event{
		Type:    events.EventDiskAlert,
		Payload: events.DiskAlertPayload{Path: "data", Level: "warning", UsedPercent: 91},
	}))

	msgs := client.all()
	require.Len(t, msgs, 2)
	assert.Equal(t, "tw/upstream", msgs[0].topic)
	assert.Equal(t, false, msgs[0].body["payload"].(map[string]interface{})["Reachable"])
	assert.Equal(t, "tw/alerts", msgs[1].topic)
	assert.Equal(t, "disk", msgs[1].body["payload"].(map[string]interface{})["event"])
}

func TestNewMQTTHandlerDisabled(t *testing.T) {
	_, err := NewMQTTHandler(config.MQTTConfig{}, events.NewEventBus(), "test")
	assert.Error(t, err)
}

func TestBuildTLSConfigMissingCA(t *testing.T) {
	_, err := buildTLSConfig(config.MQTTConfig{UseTLS: true, CAFile: "/nonexistent/ca.pem"})
	assert.ErrorContains(t, err, "failed to read MQTT CA file")
}
