package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Codec turns frames into messages and back using a frozen Registry. It holds
// no per-call state and is safe for concurrent use.
type Codec struct {
	reg *Registry
}

// NewCodec freezes reg and returns a codec over it.
func NewCodec(reg *Registry) *Codec {
	reg.Freeze()
	return &Codec{reg: reg}
}

// Registry returns the registry the codec dispatches through.
func (c *Codec) Registry() *Registry {
	return c.reg
}

// Decode parses one complete frame. The declared length must equal
// len(frame) and the body codec must consume the body exactly; anything else
// is reported as ErrFrameDesync. The returned message is clean.
func (c *Codec) Decode(frame []byte, ctx Context) (Message, error) {
	if len(frame) < HeaderSize {
		return nil, &FrameError{Op: "decode", Err: fmt.Errorf("%w: %d bytes is shorter than the %d byte header", ErrFrameDesync, len(frame), HeaderSize)}
	}

	declared := int(binary.LittleEndian.Uint16(frame))
	id := MessageType(frame[LengthSize])

	if declared < HeaderSize || declared != len(frame) {
		return nil, &FrameError{Op: "decode", Type: id, Err: fmt.Errorf("%w: declared length %d, frame is %d bytes", ErrFrameDesync, declared, len(frame))}
	}

	m := c.reg.Resolve(id)()
	r := NewReader(frame[HeaderSize:])

	if err := m.ReadBody(r, ctx); err != nil {
		if errors.Is(err, ErrFieldOverrun) {
			err = fmt.Errorf("%w: %w", ErrFrameDesync, err)
		}
		return nil, &FrameError{Op: "decode", Type: id, Err: err}
	}
	if err := r.Err(); err != nil {
		return nil, &FrameError{Op: "decode", Type: id, Err: fmt.Errorf("%w: %w", ErrFrameDesync, err)}
	}
	if n := r.Remaining(); n != 0 {
		return nil, &FrameError{Op: "decode", Type: id, Err: fmt.Errorf("%w: %d body bytes left unread", ErrFrameDesync, n)}
	}

	m.Clean()
	return m, nil
}

// Encode serializes m into a new frame.
func (c *Codec) Encode(m Message, ctx Context) ([]byte, error) {
	return c.Append(nil, m, ctx)
}

// Append serializes m as one frame appended to dst. On failure dst is
// returned unchanged. A frame larger than MaxFrameSize fails with
// ErrFrameTooLarge; the length prefix is never truncated.
func (c *Codec) Append(dst []byte, m Message, ctx Context) ([]byte, error) {
	id, err := c.reg.TypeOf(m)
	if err != nil {
		return dst, &FrameError{Op: "encode", Err: err}
	}

	start := len(dst)
	w := NewWriter(dst)
	w.Uint16(0) // backfilled below
	w.Uint8(uint8(id))

	if err := m.WriteBody(w, ctx); err != nil {
		return dst, &FrameError{Op: "encode", Type: id, Err: err}
	}

	out := w.Bytes()
	size := len(out) - start
	if size > MaxFrameSize {
		return dst, &FrameError{Op: "encode", Type: id, Err: fmt.Errorf("%w: %d bytes (max %d)", ErrFrameTooLarge, size, MaxFrameSize)}
	}

	binary.LittleEndian.PutUint16(out[start:], uint16(size))
	return out, nil
}

// PeekType returns the type id of a frame without decoding its body.
func PeekType(frame []byte) (MessageType, error) {
	if len(frame) < HeaderSize {
		return 0, fmt.Errorf("%w: %d bytes is shorter than the %d byte header", ErrFrameDesync, len(frame), HeaderSize)
	}
	return MessageType(frame[LengthSize]), nil
}

// ReadFrame reads one complete frame, header included, from r.
func ReadFrame(r io.Reader) ([]byte, error) {
	var hdr [LengthSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, fmt.Errorf("failed to read frame length: %w", err)
	}

	length := int(binary.LittleEndian.Uint16(hdr[:]))
	if length < HeaderSize {
		return nil, fmt.Errorf("%w: declared length %d is shorter than the %d byte header", ErrFrameDesync, length, HeaderSize)
	}

	frame := make([]byte, length)
	copy(frame, hdr[:])
	if _, err := io.ReadFull(r, frame[LengthSize:]); err != nil {
		return nil, fmt.Errorf("failed to read frame body (%d bytes): %w", length-LengthSize, err)
	}

	return frame, nil
}

// WriteFrame writes an encoded frame to w.
func WriteFrame(w io.Writer, frame []byte) error {
	if _, err := w.Write(frame); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}
	return nil
}
