package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInspectKnownFrame(t *testing.T) {
	c := testCodec(t)

	in, err := c.Inspect([]byte{8, 0, 16, 5, 100, 0, 244, 1}, ServerSide)
	require.NoError(t, err)
	assert.True(t, in.Known)
	assert.Equal(t, "Health", in.Name)
	assert.Equal(t, "0x10", in.Type)
	assert.Equal(t, "server", in.Context)
	assert.Equal(t, 8, in.Size)

	b, err := json.Marshal(in.Message)
	require.NoError(t, err)
	assert.JSONEq(t, `{"Index":5,"Health":100,"Max":500}`, string(b))
}

func TestInspectUnknownFrame(t *testing.T) {
	c := testCodec(t)

	in, err := c.Inspect([]byte{5, 0, 200, 0xAA, 0xBB}, ClientSide)
	require.NoError(t, err)
	assert.False(t, in.Known)
	assert.Equal(t, "Unknown", in.Name)
	assert.Equal(t, uint8(200), in.TypeID)

	_, err = c.Inspect([]byte{9, 0, 16, 5}, ServerSide)
	assert.ErrorIs(t, err, ErrFrameDesync)
}

func TestParseHex(t *testing.T) {
	tests := []struct {
		in      string
		want    []byte
		wantErr bool
	}{
		{"050001aabb", []byte{5, 0, 1, 0xAA, 0xBB}, false},
		{"05 00 01 aa bb", []byte{5, 0, 1, 0xAA, 0xBB}, false},
		{"0x05:00:01", []byte{5, 0, 1}, false},
		{"  ", nil, true},
		{"zz", nil, true},
		{"123", nil, true},
	}

	for _, tt := range tests {
		got, err := ParseHex(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestContainersMarshalJSON(t *testing.T) {
	g := NewGrid[uint8](2, 3)
	g.Set(1, 2, 7)
	b, err := json.Marshal(g)
	require.NoError(t, err)
	assert.JSONEq(t, `{"width":2,"height":3,"cells":[[0,0,0],[0,0,7]]}`, string(b))

	f := NewFlags(2)
	f.SetByte(0, 0x81)
	b, err = json.Marshal(f)
	require.NoError(t, err)
	assert.Equal(t, `"8100"`, string(b))

	u := NewArray[uint8](3)
	u.Set(2, 9)
	b, err = json.Marshal(u)
	require.NoError(t, err)
	assert.JSONEq(t, `[0,0,9]`, string(b))

	a := NewArray[int16](2)
	a.Set(1, -3)
	b, err = json.Marshal(a)
	require.NoError(t, err)
	assert.Equal(t, `[0,-3]`, string(b))
}
