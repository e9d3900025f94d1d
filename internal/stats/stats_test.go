package stats

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tilewire-project/tilewire/internal/protocol"
)

func TestSnapshotCounts(t *testing.T) {
	c := NewCollector()

	c.SessionOpened()
	c.SessionOpened()
	c.SessionClosed()

	c.RecordFrame(protocol.FromClient, 16, "PlayerHealth", 8)
	c.RecordFrame(protocol.FromClient, 16, "PlayerHealth", 8)
	c.RecordFrame(protocol.FromServer, 3, "ContinueConnecting", 4)
	c.RecordVeto(protocol.FromClient, 16, "PlayerHealth", "guard.spoof")
	c.RecordReencode(protocol.FromClient, 16, "PlayerHealth")
	c.RecordDropped("too_large")
	c.RecordError(ErrorDecode)
	c.RecordError(ErrorDecode)
	c.RecordError(ErrorIO)
	c.RecordCapture("unknown")

	s := c.Snapshot()
	assert.Equal(t, uint64(2), s.FramesIn)
	assert.Equal(t, uint64(1), s.FramesOut)
	assert.Equal(t, uint64(16), s.BytesIn)
	assert.Equal(t, uint64(4), s.BytesOut)
	assert.Equal(t, uint64(3), s.TotalFrames())
	assert.Equal(t, uint64(1), s.Vetoed)
	assert.Equal(t, uint64(1), s.Reencoded)
	assert.Equal(t, uint64(1), s.Dropped)
	assert.Equal(t, uint64(1), s.Captured)
	assert.Equal(t, map[string]uint64{ErrorDecode: 2, ErrorIO: 1}, s.Errors)
	assert.Equal(t, uint64(3), s.TotalErrors())
	assert.Equal(t, int64(1), s.ActiveSessions)
	assert.Equal(t, uint64(2), s.TotalSessions)

	require.Len(t, s.Types, 2)
	assert.Equal(t, TypeStats{
		TypeID:    16,
		Name:      "PlayerHealth",
		Direction: "client>server",
		Frames:    2,
		Bytes:     16,
		Vetoed:    1,
		Reencoded: 1,
	}, s.Types[0])
	assert.Equal(t, "server>client", s.Types[1].Direction)
}

func TestGathererExposesMetrics(t *testing.T) {
	c := NewCollector()
	c.RecordFrame(protocol.FromServer, 7, "WorldInfo", 40)
	c.SessionOpened()

	families, err := c.Gatherer().Gather()
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["tilewire_frames_total"])
	assert.True(t, names["tilewire_bytes_total"])
	assert.True(t, names["tilewire_sessions_active"])
	assert.True(t, names["tilewire_frame_size_bytes"])
	assert.True(t, names["go_goroutines"])
}

func TestNilCollectorIsSafe(t *testing.T) {
	var c *Collector
	c.RecordFrame(protocol.FromClient, 1, "ConnectRequest", 10)
	c.RecordError(ErrorIO)
	c.SessionOpened()
	assert.Zero(t, c.Snapshot().TotalFrames())
}
