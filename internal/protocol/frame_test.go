package protocol

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	typeHealth MessageType = 16
	typeBlob   MessageType = 99
	typeChat   MessageType = 25
)

type health struct {
	Dirty
	Index  Value[uint8]
	Health Value[int16]
	Max    Value[int16]
}

func newHealth() *health {
	m := &health{}
	m.Track(&m.Index, &m.Health, &m.Max)
	return m
}

func (m *health) Type() MessageType { return typeHealth }

func (m *health) ReadBody(r *Reader, _ Context) error {
	m.Index.Set(r.Uint8())
	m.Health.Set(r.Int16())
	m.Max.Set(r.Int16())
	return r.Err()
}

func (m *health) WriteBody(w *Writer, _ Context) error {
	w.Uint8(m.Index.Get())
	w.Int16(m.Health.Get())
	w.Int16(m.Max.Get())
	return nil
}

// blob writes an arbitrary amount of data.
type blob struct {
	Dirty
	Data []byte
}

func (m *blob) Type() MessageType { return typeBlob }

func (m *blob) ReadBody(r *Reader, _ Context) error {
	m.Data = r.Rest()
	return r.Err()
}

func (m *blob) WriteBody(w *Writer, _ Context) error {
	w.Raw(m.Data)
	return nil
}

// chat has a context dependent layout.
type chat struct {
	Dirty
	Color Color
	Text  string
}

func (m *chat) Type() MessageType { return typeChat }

func (m *chat) ReadBody(r *Reader, ctx Context) error {
	if ctx == ClientSide {
		m.Color = r.Color()
	}
	m.Text = r.Text()
	return r.Err()
}

func (m *chat) WriteBody(w *Writer, ctx Context) error {
	if ctx == ClientSide {
		w.Color(m.Color)
	}
	w.Text(m.Text)
	return nil
}

func testCodec(t *testing.T) *Codec {
	t.Helper()
	reg := NewRegistry()
	require.NoError(t, reg.RegisterAll(
		Entry{Type: typeHealth, Name: "Health", Direction: Bidirectional, New: func() Message { return newHealth() }},
		Entry{Type: typeBlob, Name: "Blob", Direction: Bidirectional, New: func() Message { return &blob{} }},
		Entry{Type: typeChat, Name: "Chat", Direction: Bidirectional, New: func() Message { return &chat{} }},
	))
	return NewCodec(reg)
}

func TestEncodeHealth(t *testing.T) {
	c := testCodec(t)

	m := newHealth()
	m.Index.Set(5)
	m.Health.Set(100)
	m.Max.Set(500)

	frame, err := c.Encode(m, ServerSide)
	require.NoError(t, err)
	assert.Equal(t, []byte{8, 0, 16, 5, 100, 0, 244, 1}, frame)

	got, err := c.Decode(frame, ServerSide)
	require.NoError(t, err)
	assert.False(t, got.IsDirty(), "decoded messages start clean")

	m.Clean()
	assert.Equal(t, m, got)
}

func TestEncodeLengthInvariant(t *testing.T) {
	c := testCodec(t)
	for _, n := range []int{0, 1, 200, MaxBodySize} {
		frame, err := c.Encode(&blob{Data: make([]byte, n)}, ServerSide)
		require.NoError(t, err)
		require.Len(t, frame, HeaderSize+n)
		assert.Equal(t, len(frame), int(frame[0])|int(frame[1])<<8)
	}
}

func TestEncodeTooLarge(t *testing.T) {
	c := testCodec(t)

	dst := []byte{0xAA, 0xBB}
	out, err := c.Append(dst, &blob{Data: make([]byte, MaxBodySize+1)}, ServerSide)
	require.ErrorIs(t, err, ErrFrameTooLarge)
	assert.False(t, IsFatal(err))
	assert.Equal(t, []byte{0xAA, 0xBB}, out)

	var fe *FrameError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "encode", fe.Op)
	assert.Equal(t, typeBlob, fe.Type)
}

func TestAppendMultipleFrames(t *testing.T) {
	c := testCodec(t)

	var buf []byte
	var err error
	buf, err = c.Append(buf, &blob{Data: []byte{1}}, ServerSide)
	require.NoError(t, err)
	buf, err = c.Append(buf, &blob{Data: []byte{2, 3}}, ServerSide)
	require.NoError(t, err)

	assert.Equal(t, []byte{4, 0, 99, 1, 5, 0, 99, 2, 3}, buf)

	r := bytes.NewReader(buf)
	first, err := ReadFrame(r)
	require.NoError(t, err)
	second, err := ReadFrame(r)
	require.NoError(t, err)
	assert.Equal(t, []byte{4, 0, 99, 1}, first)
	assert.Equal(t, []byte{5, 0, 99, 2, 3}, second)

	_, err = ReadFrame(r)
	assert.ErrorIs(t, err, io.EOF)
}

func TestUnknownTransparency(t *testing.T) {
	c := testCodec(t)
	frame := []byte{7, 0, 0xC8, 1, 2, 3, 4}

	m, err := c.Decode(frame, ClientSide)
	require.NoError(t, err)

	u, ok := m.(*Unknown)
	require.True(t, ok, "got %T", m)
	assert.Equal(t, MessageType(0xC8), u.TypeID)
	assert.Equal(t, []byte{1, 2, 3, 4}, u.Payload)
	assert.False(t, u.IsDirty())

	out, err := c.Encode(u, ClientSide)
	require.NoError(t, err)
	assert.Equal(t, frame, out)

	u.SetPayload([]byte{9})
	assert.True(t, u.IsDirty())
	out, err = c.Encode(u, ClientSide)
	require.NoError(t, err)
	assert.Equal(t, []byte{4, 0, 0xC8, 9}, out)
}

func TestDecodeDesync(t *testing.T) {
	c := testCodec(t)

	tcs := []struct {
		name  string
		frame []byte
	}{
		{"short header", []byte{3, 0}},
		{"declared below header", []byte{2, 0, 16}},
		{"declared longer than buffer", []byte{9, 0, 16, 5, 100, 0, 244, 1}},
		{"declared shorter than buffer", []byte{7, 0, 16, 5, 100, 0, 244, 1}},
		{"body overrun", []byte{7, 0, 16, 5, 100, 0, 244}},
		{"body underrun", []byte{9, 0, 16, 5, 100, 0, 244, 1, 0}},
	}
	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			m, err := c.Decode(tc.frame, ServerSide)
			require.Error(t, err)
			assert.Nil(t, m)
			assert.ErrorIs(t, err, ErrFrameDesync)
			assert.True(t, IsFatal(err))
		})
	}
}

func TestContextDependentLayout(t *testing.T) {
	c := testCodec(t)
	m := &chat{Color: Color{R: 255}, Text: "hi"}

	server, err := c.Encode(m, ServerSide)
	require.NoError(t, err)
	client, err := c.Encode(m, ClientSide)
	require.NoError(t, err)

	assert.Equal(t, []byte{6, 0, 25, 2, 'h', 'i'}, server)
	assert.Equal(t, []byte{9, 0, 25, 255, 0, 0, 2, 'h', 'i'}, client)

	got, err := c.Decode(client, ClientSide)
	require.NoError(t, err)
	assert.Equal(t, m, got)

	// reading with the wrong context is a desync
	_, err = c.Decode(client, ServerSide)
	assert.ErrorIs(t, err, ErrFrameDesync)
}

func TestPeekType(t *testing.T) {
	id, err := PeekType([]byte{4, 0, 42, 0})
	require.NoError(t, err)
	assert.Equal(t, MessageType(42), id)

	_, err = PeekType([]byte{4})
	assert.ErrorIs(t, err, ErrFrameDesync)
}

func TestReadFrameErrors(t *testing.T) {
	_, err := ReadFrame(bytes.NewReader([]byte{1, 0}))
	assert.ErrorIs(t, err, ErrFrameDesync)

	_, err = ReadFrame(bytes.NewReader([]byte{10, 0, 1, 2}))
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestWriteFrame(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, []byte{3, 0, 1}))
	assert.Equal(t, []byte{3, 0, 1}, buf.Bytes())
}
