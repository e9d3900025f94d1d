package protocol

import (
	"encoding/binary"
	"fmt"
	"math"
)

// maxVarintBytes bounds a 7-bit encoded 32-bit length.
const maxVarintBytes = 5

// Reader is a bounded little-endian cursor over one frame body. The first
// failure is sticky: once Err is set every further read returns the zero
// value and consumes nothing, so field codecs can read a whole layout and
// check Err once.
type Reader struct {
	buf []byte
	pos int
	err error
}

// NewReader returns a Reader over body.
func NewReader(body []byte) *Reader {
	return &Reader{buf: body}
}

// Err returns the first error encountered, if any.
func (r *Reader) Err() error {
	return r.err
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.buf) - r.pos
}

// Consumed returns the number of bytes read so far.
func (r *Reader) Consumed() int {
	return r.pos
}

// Fail records err as the reader's error unless one is already set. Field
// codecs use it to report invalid values.
func (r *Reader) Fail(err error) {
	if r.err == nil {
		r.err = err
	}
}

func (r *Reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || n > r.Remaining() {
		r.err = fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrFieldOverrun, n, r.pos, r.Remaining())
		return nil
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b
}

func (r *Reader) Uint8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *Reader) Int8() int8 {
	return int8(r.Uint8())
}

// Bool reads one byte; any non-zero value is true.
func (r *Reader) Bool() bool {
	return r.Uint8() != 0
}

func (r *Reader) Uint16() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

func (r *Reader) Int16() int16 {
	return int16(r.Uint16())
}

func (r *Reader) Uint32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (r *Reader) Int32() int32 {
	return int32(r.Uint32())
}

func (r *Reader) Uint64() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (r *Reader) Int64() int64 {
	return int64(r.Uint64())
}

func (r *Reader) Float32() float32 {
	return math.Float32frombits(r.Uint32())
}

// Bytes reads exactly n bytes into a new slice.
func (r *Reader) Bytes(n int) []byte {
	b := r.take(n)
	if b == nil {
		return nil
	}
	out := make([]byte, n)
	copy(out, b)
	return out
}

// Rest reads every remaining byte.
func (r *Reader) Rest() []byte {
	return r.Bytes(r.Remaining())
}

// Length reads a 7-bit encoded unsigned length: seven payload bits per
// byte, high bit set on every byte but the last.
func (r *Reader) Length() int {
	var n uint32
	for i := 0; i < maxVarintBytes; i++ {
		b := r.Uint8()
		if r.err != nil {
			return 0
		}
		if i == maxVarintBytes-1 && b > 0x0F {
			r.Fail(fmt.Errorf("%w: 7-bit length overflows 32 bits", ErrMalformedField))
			return 0
		}
		n |= uint32(b&0x7F) << (7 * i)
		if b&0x80 == 0 {
			if n > math.MaxInt32 {
				r.Fail(fmt.Errorf("%w: string length %d out of range", ErrMalformedField, n))
				return 0
			}
			return int(n)
		}
	}
	r.Fail(fmt.Errorf("%w: 7-bit length longer than %d bytes", ErrMalformedField, maxVarintBytes))
	return 0
}

// Text reads a 7-bit length-prefixed UTF-8 string.
func (r *Reader) Text() string {
	n := r.Length()
	b := r.take(n)
	if b == nil {
		return ""
	}
	return string(b)
}

func (r *Reader) Color() Color {
	b := r.take(3)
	if b == nil {
		return Color{}
	}
	return Color{R: b[0], G: b[1], B: b[2]}
}

func (r *Reader) Vector2() Vector2 {
	x := r.Float32()
	y := r.Float32()
	return Vector2{X: x, Y: y}
}
