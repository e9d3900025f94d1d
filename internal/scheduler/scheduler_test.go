package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/tilewire-project/tilewire/internal/config"
	"github.com/tilewire-project/tilewire/internal/protocol"
	"github.com/tilewire-project/tilewire/internal/stats"
)

type fakePruner struct{ days []int }

func (f *fakePruner) PruneRetention(_ context.Context, days int) (int64, error) {
	f.days = append(f.days, days)
	return 2, nil
}

type fakeSweeper struct{ timeouts []time.Duration }

func (f *fakeSweeper) CleanStale(timeout time.Duration) int {
	f.timeouts = append(f.timeouts, timeout)
	return 1
}

type fakePublisher struct {
	mu    sync.Mutex
	snaps []stats.Snapshot
}

func (f *fakePublisher) PublishStats(s stats.Snapshot) {
	f.mu.Lock()
	f.snaps = append(f.snaps, s)
	f.mu.Unlock()
}

func TestTasksUseConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	pruner := &fakePruner{}
	sweeper := &fakeSweeper{}
	pub := &fakePublisher{}
	collector := stats.NewCollector()
	collector.RecordFrame(protocol.FromClient, 1, "ConnectRequest", 12)

	s := NewScheduler(cfg, Deps{Captures: pruner, Sessions: sweeper, Stats: collector, Publisher: pub})
	ctx := context.Background()

	s.pruneCaptures(ctx)
	assert.Equal(t, []int{cfg.Capture.RetentionDays}, pruner.days)

	s.sweepStale(ctx)
	assert.Equal(t, []time.Duration{time.Duration(cfg.Timers.StaleSessionTimeout) * time.Second}, sweeper.timeouts)

	s.publishStats(ctx)
	if assert.Len(t, pub.snaps, 1) {
		assert.Equal(t, uint64(1), pub.snaps[0].FramesIn)
	}
}

func TestEveryRunsUntilCancelled(t *testing.T) {
	s := NewScheduler(config.DefaultConfig(), Deps{})
	ctx, cancel := context.WithCancel(context.Background())

	var runs atomic.Int32
	s.every(ctx, "tick", 5*time.Millisecond, func(context.Context) { runs.Add(1) })
	s.every(ctx, "off", 0, func(context.Context) { t.Error("disabled task ran") })

	assert.Eventually(t, func() bool { return runs.Load() >= 2 }, time.Second, time.Millisecond)
	cancel()
	s.wg.Wait()
}

func TestStartReturnsOnCancel(t *testing.T) {
	s := NewScheduler(config.DefaultConfig(), Deps{Stats: stats.NewCollector()})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}
