package protocol

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Writer appends little-endian fields to a byte slice. Writes never fail;
// size limits are enforced by the codec once the body is complete.
type Writer struct {
	buf []byte
}

// NewWriter returns a Writer that appends to buf.
func NewWriter(buf []byte) *Writer {
	return &Writer{buf: buf}
}

// Bytes returns the accumulated buffer.
func (w *Writer) Bytes() []byte {
	return w.buf
}

// Len returns the size of the accumulated buffer.
func (w *Writer) Len() int {
	return len(w.buf)
}

// Reset truncates the buffer for reuse.
func (w *Writer) Reset() {
	w.buf = w.buf[:0]
}

func (w *Writer) Uint8(v uint8) {
	w.buf = append(w.buf, v)
}

func (w *Writer) Int8(v int8) {
	w.buf = append(w.buf, byte(v))
}

func (w *Writer) Bool(v bool) {
	if v {
		w.buf = append(w.buf, 1)
	} else {
		w.buf = append(w.buf, 0)
	}
}

func (w *Writer) Uint16(v uint16) {
	w.buf = binary.LittleEndian.AppendUint16(w.buf, v)
}

func (w *Writer) Int16(v int16) {
	w.Uint16(uint16(v))
}

func (w *Writer) Uint32(v uint32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
}

func (w *Writer) Int32(v int32) {
	w.Uint32(uint32(v))
}

func (w *Writer) Uint64(v uint64) {
	w.buf = binary.LittleEndian.AppendUint64(w.buf, v)
}

func (w *Writer) Int64(v int64) {
	w.Uint64(uint64(v))
}

func (w *Writer) Float32(v float32) {
	w.Uint32(math.Float32bits(v))
}

// Raw appends b verbatim.
func (w *Writer) Raw(b []byte) {
	w.buf = append(w.buf, b...)
}

// Length appends n as a 7-bit encoded unsigned length.
func (w *Writer) Length(n int) {
	v := uint32(n)
	for v >= 0x80 {
		w.buf = append(w.buf, byte(v)|0x80)
		v >>= 7
	}
	w.buf = append(w.buf, byte(v))
}

// Text appends a 7-bit length-prefixed UTF-8 string.
func (w *Writer) Text(s string) {
	w.Length(len(s))
	w.buf = append(w.buf, s...)
}

func (w *Writer) Color(c Color) {
	w.buf = append(w.buf, c.R, c.G, c.B)
}

func (w *Writer) Vector2(v Vector2) {
	w.Float32(v.X)
	w.Float32(v.Y)
}

// GoString returns a hex dump of the buffer for debugging.
func (w *Writer) GoString() string {
	return fmt.Sprintf("Writer[%d bytes]: %x", len(w.buf), w.buf)
}
