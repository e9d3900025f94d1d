package protocol

import (
	"testing"

	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func healthEntry() Entry {
	return Entry{Type: typeHealth, Name: "Health", Direction: Bidirectional, New: func() Message { return newHealth() }}
}

func TestRegisterDuplicate(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(healthEntry()))

	err := reg.Register(healthEntry())
	assert.ErrorIs(t, err, ErrDuplicateType)
	assert.Equal(t, 1, reg.Len())
}

func TestRegisterTypeMismatch(t *testing.T) {
	reg := NewRegistry()
	err := reg.Register(Entry{Type: 17, Name: "Wrong", New: func() Message { return newHealth() }})
	assert.ErrorIs(t, err, ErrTypeMismatch)
	assert.Equal(t, 0, reg.Len())
}

func TestRegisterNilFactory(t *testing.T) {
	reg := NewRegistry()
	assert.Error(t, reg.Register(Entry{Type: 1, Name: "Nil"}))
}

func TestRegisterAllCollectsErrors(t *testing.T) {
	reg := NewRegistry()
	err := reg.RegisterAll(
		healthEntry(),
		healthEntry(),
		Entry{Type: 17, Name: "Wrong", New: func() Message { return newHealth() }},
		Entry{Type: typeBlob, Name: "Blob", New: func() Message { return &blob{} }},
	)
	require.Error(t, err)

	merr, ok := err.(*multierror.Error)
	require.True(t, ok, "got %T", err)
	assert.Len(t, merr.Errors, 2)
	assert.ErrorIs(t, err, ErrDuplicateType)
	assert.ErrorIs(t, err, ErrTypeMismatch)
	assert.Equal(t, 2, reg.Len())
}

func TestRegistryFrozen(t *testing.T) {
	reg := NewRegistry()
	reg.Freeze()
	assert.True(t, reg.Frozen())
	assert.ErrorIs(t, reg.Register(healthEntry()), ErrRegistryFrozen)
}

func TestResolveNeverNil(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(healthEntry()))

	m := reg.Resolve(typeHealth)()
	assert.IsType(t, &health{}, m)

	f := reg.Resolve(200)
	require.NotNil(t, f)
	u, ok := f().(*Unknown)
	require.True(t, ok)
	assert.Equal(t, MessageType(200), u.Type())
	assert.Equal(t, "Unknown", reg.Name(200))
	assert.Equal(t, "Health", reg.Name(typeHealth))
}

func TestTypeOf(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(healthEntry()))

	id, err := reg.TypeOf(newHealth())
	require.NoError(t, err)
	assert.Equal(t, typeHealth, id)

	id, err = reg.TypeOf(NewUnknown(77))
	require.NoError(t, err)
	assert.Equal(t, MessageType(77), id)

	_, err = reg.TypeOf(&blob{})
	assert.ErrorIs(t, err, ErrUnregisteredType)
	assert.True(t, IsFatal(err))
}

func TestEncodeUnregistered(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(healthEntry()))
	c := NewCodec(reg)

	out, err := c.Append([]byte{1}, &blob{Data: []byte{1}}, ServerSide)
	assert.ErrorIs(t, err, ErrUnregisteredType)
	assert.Equal(t, []byte{1}, out)
}

func TestEntriesOrdered(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.RegisterAll(
		Entry{Type: typeBlob, Name: "Blob", New: func() Message { return &blob{} }},
		healthEntry(),
		Entry{Type: typeChat, Name: "Chat", New: func() Message { return &chat{} }},
	))

	var ids []MessageType
	for _, e := range reg.Entries() {
		ids = append(ids, e.Type)
	}
	assert.Equal(t, []MessageType{typeHealth, typeChat, typeBlob}, ids)

	e, ok := reg.Lookup(typeChat)
	require.True(t, ok)
	assert.Equal(t, "Chat", e.Name)
}
