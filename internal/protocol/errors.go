package protocol

import (
	"errors"
	"fmt"
)

// Codec errors.
var (
	// ErrFrameDesync means the declared frame length and the bytes the body
	// codec consumed disagree. The stream can no longer be trusted to be
	// framing-aligned.
	ErrFrameDesync = errors.New("protocol: frame desync")

	// ErrFieldOverrun means a field would read past the end of the frame.
	ErrFieldOverrun = errors.New("protocol: field overruns frame")

	// ErrMalformedField means a field's own encoding is invalid.
	ErrMalformedField = errors.New("protocol: malformed field")

	// ErrFrameTooLarge means an outbound message does not fit in one frame.
	ErrFrameTooLarge = errors.New("protocol: frame too large")

	// ErrDuplicateType means a type id was registered twice.
	ErrDuplicateType = errors.New("protocol: duplicate message type")

	// ErrTypeMismatch means a factory builds messages reporting another type id.
	ErrTypeMismatch = errors.New("protocol: factory type mismatch")

	// ErrUnregisteredType means a message was encoded without a registry entry.
	ErrUnregisteredType = errors.New("protocol: message type not registered")

	// ErrRegistryFrozen means Register was called after Freeze.
	ErrRegistryFrozen = errors.New("protocol: registry is frozen")
)

// FrameError describes a failure to decode or encode one frame.
type FrameError struct {
	Op   string // "decode" or "encode"
	Type MessageType
	Err  error
}

func (e *FrameError) Error() string {
	return fmt.Sprintf("protocol: %s frame %s: %v", e.Op, e.Type, e.Err)
}

func (e *FrameError) Unwrap() error {
	return e.Err
}

// IsFatal reports whether err leaves the connection unusable. Framing
// desync, malformed fields and unregistered types are fatal; an oversized
// outbound frame only rejects that one message.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrFrameDesync) ||
		errors.Is(err, ErrFieldOverrun) ||
		errors.Is(err, ErrMalformedField) ||
		errors.Is(err, ErrUnregisteredType)
}
