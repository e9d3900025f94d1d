package protocol

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Inspection is a human-readable view of one decoded frame.
type Inspection struct {
	TypeID  uint8   `json:"type_id"`
	Type    string  `json:"type"`
	Name    string  `json:"name"`
	Known   bool    `json:"known"`
	Context string  `json:"context"`
	Size    int     `json:"size"`
	Message Message `json:"message"`
}

// Inspect decodes frame and labels it with its registry entry. Frames with
// unregistered ids decode to Unknown and are reported with Known false.
func (c *Codec) Inspect(frame []byte, ctx Context) (*Inspection, error) {
	m, err := c.Decode(frame, ctx)
	if err != nil {
		return nil, err
	}

	id := MessageType(frame[LengthSize])
	in := &Inspection{
		TypeID:  uint8(id),
		Type:    id.String(),
		Name:    "Unknown",
		Context: ctx.String(),
		Size:    len(frame),
		Message: m,
	}
	if e, ok := c.reg.Lookup(id); ok {
		in.Name = e.Name
		in.Known = true
	}
	return in, nil
}

// ParseHex turns a hex dump into frame bytes. Whitespace, colons and an
// optional 0x prefix are ignored, so "05 00 01 aa bb" and "0x050001aabb"
// both parse.
func ParseHex(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	s = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\n', '\r', ':':
			return -1
		}
		return r
	}, s)

	if s == "" {
		return nil, fmt.Errorf("empty frame")
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex frame: %w", err)
	}
	return b, nil
}
