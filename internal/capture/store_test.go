package capture

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, maxPayload int) *Store {
	t.Helper()
	s, err := NewStore(MemoryPath, maxPayload)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveAndGet(t *testing.T) {
	s := newTestStore(t, 0)
	ctx := context.Background()

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	id, err := s.Save(ctx, Record{
		CapturedAt: at,
		SessionID:  "s-1",
		Direction:  "client>server",
		TypeID:     200,
		Reason:     ReasonUnknown,
		Payload:    []byte{6, 0, 200, 1, 2, 3},
	})
	require.NoError(t, err)
	assert.Positive(t, id)

	rec, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "s-1", rec.SessionID)
	assert.Equal(t, uint8(200), rec.TypeID)
	assert.Equal(t, ReasonUnknown, rec.Reason)
	assert.Equal(t, 6, rec.Size)
	assert.Equal(t, []byte{6, 0, 200, 1, 2, 3}, rec.Payload)
	assert.True(t, at.Equal(rec.CapturedAt))
	assert.False(t, rec.Truncated())

	_, err = s.Get(ctx, id+100)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSaveTruncatesPayload(t *testing.T) {
	s := newTestStore(t, 4)
	ctx := context.Background()

	id, err := s.Save(ctx, Record{TypeID: 1, Reason: ReasonDesync, Payload: []byte{1, 2, 3, 4, 5, 6, 7, 8}})
	require.NoError(t, err)

	rec, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4}, rec.Payload)
	assert.Equal(t, 8, rec.Size)
	assert.True(t, rec.Truncated())
}

func TestListFilters(t *testing.T) {
	s := newTestStore(t, 0)
	ctx := context.Background()

	seed := []Record{
		{SessionID: "a", TypeID: 0, Reason: ReasonUnknown, Payload: []byte{3, 0, 0}},
		{SessionID: "a", TypeID: 16, Reason: ReasonDesync, Payload: []byte{4, 0, 16, 1}},
		{SessionID: "b", TypeID: 200, Reason: ReasonUnknown, Payload: []byte{3, 0, 200}},
	}
	for _, r := range seed {
		_, err := s.Save(ctx, r)
		require.NoError(t, err)
	}

	all, err := s.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, uint8(200), all[0].TypeID, "newest first")

	tests := []struct {
		name   string
		filter Filter
		want   int
	}{
		{"by reason", Filter{Reason: ReasonUnknown}, 2},
		{"by session", Filter{SessionID: "a"}, 2},
		{"type zero", Filter{TypeID: ForType(0)}, 1},
		{"combined", Filter{SessionID: "a", Reason: ReasonDesync, TypeID: ForType(16)}, 1},
		{"limit", Filter{Limit: 1}, 1},
		{"none", Filter{SessionID: "zzz"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.List(ctx, tt.filter)
			require.NoError(t, err)
			assert.Len(t, got, tt.want)
		})
	}

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	byReason, err := s.CountByReason(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[Reason]int{ReasonUnknown: 2, ReasonDesync: 1}, byReason)
}

func TestPrune(t *testing.T) {
	s := newTestStore(t, 0)
	ctx := context.Background()

	now := time.Now()
	_, err := s.Save(ctx, Record{CapturedAt: now.AddDate(0, 0, -10), Reason: ReasonUnknown, Payload: []byte{3, 0, 9}})
	require.NoError(t, err)
	_, err = s.Save(ctx, Record{CapturedAt: now, Reason: ReasonUnknown, Payload: []byte{3, 0, 9}})
	require.NoError(t, err)

	removed, err := s.PruneRetention(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	removed, err = s.PruneRetention(ctx, 0)
	require.NoError(t, err)
	assert.Zero(t, removed)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
