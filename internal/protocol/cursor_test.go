package protocol

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriterLittleEndian(t *testing.T) {
	w := NewWriter(nil)
	w.Uint8(5)
	w.Int16(100)
	w.Int16(500)
	w.Uint32(0x01020304)
	w.Bool(true)
	w.Color(Color{R: 1, G: 2, B: 3})

	assert.Equal(t, []byte{5, 100, 0, 244, 1, 4, 3, 2, 1, 1, 1, 2, 3}, w.Bytes())
}

func TestCursorRoundTrip(t *testing.T) {
	w := NewWriter(nil)
	w.Uint8(0xAB)
	w.Int8(-2)
	w.Bool(false)
	w.Uint16(0xBEEF)
	w.Int16(-1)
	w.Uint32(0xDEADBEEF)
	w.Int32(-100000)
	w.Uint64(1 << 40)
	w.Int64(-1 << 40)
	w.Float32(1.5)
	w.Text("hello")
	w.Vector2(Vector2{X: -3.25, Y: 16})
	w.Raw([]byte{9, 9})

	r := NewReader(w.Bytes())
	assert.Equal(t, uint8(0xAB), r.Uint8())
	assert.Equal(t, int8(-2), r.Int8())
	assert.False(t, r.Bool())
	assert.Equal(t, uint16(0xBEEF), r.Uint16())
	assert.Equal(t, int16(-1), r.Int16())
	assert.Equal(t, uint32(0xDEADBEEF), r.Uint32())
	assert.Equal(t, int32(-100000), r.Int32())
	assert.Equal(t, uint64(1<<40), r.Uint64())
	assert.Equal(t, int64(-1<<40), r.Int64())
	assert.Equal(t, float32(1.5), r.Float32())
	assert.Equal(t, "hello", r.Text())
	assert.Equal(t, Vector2{X: -3.25, Y: 16}, r.Vector2())
	assert.Equal(t, []byte{9, 9}, r.Rest())
	require.NoError(t, r.Err())
	assert.Equal(t, 0, r.Remaining())
	assert.Equal(t, w.Len(), r.Consumed())
}

func TestSevenBitLength(t *testing.T) {
	tcs := []struct {
		n    int
		want []byte
	}{
		{0, []byte{0x00}},
		{127, []byte{0x7F}},
		{128, []byte{0x80, 0x01}},
		{300, []byte{0xAC, 0x02}},
		{16384, []byte{0x80, 0x80, 0x01}},
	}
	for _, tc := range tcs {
		w := NewWriter(nil)
		w.Length(tc.n)
		assert.Equal(t, tc.want, w.Bytes(), "length %d", tc.n)

		r := NewReader(w.Bytes())
		assert.Equal(t, tc.n, r.Length())
		require.NoError(t, r.Err())
	}
}

func TestLongString(t *testing.T) {
	s := strings.Repeat("x", 300)
	w := NewWriter(nil)
	w.Text(s)
	require.Equal(t, 302, w.Len())

	r := NewReader(w.Bytes())
	assert.Equal(t, s, r.Text())
	assert.NoError(t, r.Err())
}

func TestReaderOverrunIsSticky(t *testing.T) {
	r := NewReader([]byte{1, 2, 3})
	assert.Equal(t, uint16(0x0201), r.Uint16())
	assert.Equal(t, uint32(0), r.Uint32())
	require.ErrorIs(t, r.Err(), ErrFieldOverrun)

	// later reads stay zero even though one byte is left
	assert.Equal(t, uint8(0), r.Uint8())
	assert.Equal(t, 1, r.Remaining())
	assert.True(t, IsFatal(r.Err()))
}

func TestReaderStringOverrun(t *testing.T) {
	r := NewReader([]byte{10, 'a', 'b'})
	assert.Equal(t, "", r.Text())
	assert.ErrorIs(t, r.Err(), ErrFieldOverrun)
}

func TestReaderMalformedLength(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
	}{
		{"six bytes", []byte{0x80, 0x80, 0x80, 0x80, 0x80, 0x01}},
		{"fifth byte overflows", []byte{0x80, 0x80, 0x80, 0x80, 0x10}},
		{"fifth byte continues", []byte{0x80, 0x80, 0x80, 0x80, 0x80}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewReader(tt.in)
			assert.Equal(t, 0, r.Length())
			assert.ErrorIs(t, r.Err(), ErrMalformedField)
		})
	}

	r := NewReader([]byte{0x80, 0x80, 0x80, 0x80, 0x80, 0x01})
	assert.Equal(t, "", r.Text())
	assert.ErrorIs(t, r.Err(), ErrMalformedField)
}

func TestReaderLargestLength(t *testing.T) {
	// 0x07 in the fifth byte is the largest length that fits an int32.
	r := NewReader([]byte{0xFF, 0xFF, 0xFF, 0xFF, 0x07})
	assert.Equal(t, math.MaxInt32, r.Length())
	assert.NoError(t, r.Err())
	assert.Zero(t, r.Remaining())

	r = NewReader([]byte{0xFF, 0xFF, 0xFF, 0xFF, 0x0F})
	r.Length()
	assert.ErrorIs(t, r.Err(), ErrMalformedField)
}

func TestReaderFailKeepsFirst(t *testing.T) {
	r := NewReader(nil)
	r.Uint8()
	r.Fail(ErrMalformedField)
	assert.ErrorIs(t, r.Err(), ErrFieldOverrun)
	assert.NotErrorIs(t, r.Err(), ErrMalformedField)
}
