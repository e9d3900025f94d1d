// Package events defines event types and enumerations for the tilewire event system.
package events

import "time"

// EventType represents the type of event emitted through the EventBus.
type EventType string

const (
	// Session lifecycle events
	EventSessionOpened EventType = "session_opened"
	EventSessionClosed EventType = "session_closed"
	EventPlayerSlot    EventType = "player_slot_assigned"

	// Packet events
	EventPacket        EventType = "packet"
	EventPacketVetoed  EventType = "packet_vetoed"
	EventPacketRewrite EventType = "packet_rewritten"
	EventFrameCaptured EventType = "frame_captured"
	EventFrameDesync   EventType = "frame_desync"

	// Notification events
	EventNotifyMQTT EventType = "notify_mqtt"

	// System events
	EventConfigChanged  EventType = "config_changed"
	EventUpstreamStatus EventType = "upstream_status"
	EventDiskAlert      EventType = "disk_alert"
	EventShutdown       EventType = "shutdown"
)

// SessionState represents the lifecycle state of a relay session.
type SessionState int

const (
	SessionStateUnknown SessionState = iota
	SessionStateConnecting
	SessionStateActive
	SessionStateClosing
	SessionStateClosed
)

// sessionStateStrings maps SessionState values to their lowercase JSON string representation.
var sessionStateStrings = map[SessionState]string{
	SessionStateUnknown:    "unknown",
	SessionStateConnecting: "connecting",
	SessionStateActive:     "active",
	SessionStateClosing:    "closing",
	SessionStateClosed:     "closed",
}

// String returns the string representation of SessionState.
func (s SessionState) String() string {
	if str, ok := sessionStateStrings[s]; ok {
		return str
	}
	return "unknown"
}

// MarshalJSON serializes SessionState as a JSON string (e.g. "active").
func (s SessionState) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// CloseReason describes why a session ended.
type CloseReason string

const (
	CloseClientGone   CloseReason = "client_closed"
	CloseUpstreamGone CloseReason = "upstream_closed"
	CloseDesync       CloseReason = "desync"
	CloseShutdown     CloseReason = "shutdown"
	CloseStale        CloseReason = "stale"
	CloseKicked       CloseReason = "kicked"
)

// Event represents a single event in the system.
type Event struct {
	Type    EventType
	Source  string
	Payload interface{}
}

// SessionPayload is emitted when a session opens or closes.
type SessionPayload struct {
	SessionID  string
	RemoteAddr string
	Upstream   string
	Reason     CloseReason
	Duration   time.Duration
}

// PlayerSlotPayload is emitted when the server assigns a session its player slot.
type PlayerSlotPayload struct {
	SessionID string
	Player    uint8
}

// PacketPayload describes one relayed frame.
type PacketPayload struct {
	SessionID string
	Direction string // "client>server" or "server>client"
	TypeID    uint8
	TypeName  string
	Size      int
	Vetoed    bool
	Rewritten bool
	HookName  string
}

// CapturePayload is emitted when a frame is persisted to the capture store.
type CapturePayload struct {
	SessionID string
	Direction string
	TypeID    uint8
	Reason    string
	Size      int
}

// DesyncPayload is emitted when a frame cannot be decoded and the session
// is torn down.
type DesyncPayload struct {
	SessionID string
	Direction string
	TypeID    uint8
	Error     string
}

// NotifyMQTTPayload asks the telemetry publisher to send a message.
type NotifyMQTTPayload struct {
	Topic   string
	Payload interface{}
}

// ConfigChangedPayload is emitted when configuration changes occur.
type ConfigChangedPayload struct {
	Section string
	Key     string
	Value   interface{}
}

// UpstreamStatusPayload is emitted when the upstream server becomes
// reachable or unreachable.
type UpstreamStatusPayload struct {
	Upstream  string
	Reachable bool
	Latency   time.Duration
	Error     string
}

// DiskAlertPayload is emitted when the capture volume crosses a usage
// threshold.
type DiskAlertPayload struct {
	Path        string
	Level       string
	UsedPercent float64
	Free        uint64
}
