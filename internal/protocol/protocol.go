// Package protocol implements the binary frame codec shared by every
// tilewire message. All frames use little-endian byte order with a 2-byte
// length prefix that counts the whole frame, followed by a 1-byte type id:
//
//	[length:2][type:1][body:length-3]
//
// Concrete message layouts live in the packets package; this package owns
// framing, type dispatch, the field cursors, bit-flag helpers and dirty
// tracking.
package protocol

import "fmt"

// Frame layout constants.
const (
	// LengthSize is the width of the length prefix in bytes.
	LengthSize = 2

	// TypeSize is the width of the type id in bytes.
	TypeSize = 1

	// HeaderSize is the number of bytes preceding every message body.
	HeaderSize = LengthSize + TypeSize

	// MaxFrameSize is the largest total frame size the length prefix can express.
	MaxFrameSize = 65535

	// MaxBodySize is the largest body that still fits in one frame.
	MaxBodySize = MaxFrameSize - HeaderSize
)

// MessageType is the one-byte type id carried by every frame.
type MessageType uint8

// String returns the hex representation of the type id.
func (t MessageType) String() string {
	return fmt.Sprintf("0x%02X", uint8(t))
}

// Context is the viewpoint under which a message body is interpreted.
// Some messages lay out their body differently depending on which endpoint
// is decoding it.
type Context uint8

const (
	// ServerSide means the server is reading what a client sent.
	ServerSide Context = iota
	// ClientSide means a client is reading what the server sent.
	ClientSide
)

// String returns the string representation of the context.
func (c Context) String() string {
	switch c {
	case ServerSide:
		return "server"
	case ClientSide:
		return "client"
	default:
		return "unknown"
	}
}

// ParseContext converts "server" or "client" into a Context.
func ParseContext(s string) (Context, error) {
	switch s {
	case "server", "s":
		return ServerSide, nil
	case "client", "c":
		return ClientSide, nil
	default:
		return 0, fmt.Errorf("unknown context %q (want server or client)", s)
	}
}

// Direction describes which way a message may legally travel. It is
// informational only; the codec never enforces it.
type Direction uint8

const (
	FromClient    Direction = 1 << iota // client -> server
	FromServer                          // server -> client
	Bidirectional = FromClient | FromServer
)

// Allows reports whether d includes the given direction.
func (d Direction) Allows(other Direction) bool {
	return d&other == other
}

// String returns the string representation of the direction mask.
func (d Direction) String() string {
	switch d {
	case FromClient:
		return "client>server"
	case FromServer:
		return "server>client"
	case Bidirectional:
		return "both"
	default:
		return "none"
	}
}

// Message is one decoded wire record. ReadBody must consume exactly the
// body bytes it is given; WriteBody must produce bytes that ReadBody with
// the same Context turns back into an equal message.
type Message interface {
	Type() MessageType
	ReadBody(r *Reader, ctx Context) error
	WriteBody(w *Writer, ctx Context) error
	Tracker
}

// Color is a 3-byte RGB value.
type Color struct {
	R, G, B uint8
}

// Vector2 is a pair of float32 world coordinates.
type Vector2 struct {
	X, Y float32
}

// IsZero reports whether both components are zero.
func (v Vector2) IsZero() bool {
	return v.X == 0 && v.Y == 0
}
