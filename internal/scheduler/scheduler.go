// Package scheduler runs the relay's periodic maintenance: capture retention,
// the stale session sweep and statistics publishing.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog/log"

	"github.com/tilewire-project/tilewire/internal/config"
	"github.com/tilewire-project/tilewire/internal/stats"
)

// CapturePruner deletes captures older than a retention window.
type CapturePruner interface {
	PruneRetention(ctx context.Context, days int) (int64, error)
}

// SessionSweeper closes sessions idle for longer than a timeout.
type SessionSweeper interface {
	CleanStale(timeout time.Duration) int
}

// StatsPublisher ships a statistics snapshot somewhere, e.g. MQTT.
type StatsPublisher interface {
	PublishStats(s stats.Snapshot)
}

// Deps are the scheduler's collaborators. Nil fields disable their task.
type Deps struct {
	Captures  CapturePruner
	Sessions  SessionSweeper
	Stats     *stats.Collector
	Publisher StatsPublisher
}

// Scheduler manages periodic background tasks.
type Scheduler struct {
	cfg  *config.Config
	deps Deps
	wg   sync.WaitGroup
}

// NewScheduler creates a new task scheduler.
func NewScheduler(cfg *config.Config, deps Deps) *Scheduler {
	return &Scheduler{
		cfg:  cfg,
		deps: deps,
	}
}

// Start runs every enabled task and blocks until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	timers := s.cfg.GetTimers()
	log.Info().Msg("scheduler started")

	if s.deps.Captures != nil && s.cfg.GetCapture().Enabled {
		s.every(ctx, "capture_prune", config.Seconds(timers.CapturePruneInterval), s.pruneCaptures)
	}
	if s.deps.Sessions != nil && timers.StaleSessionTimeout > 0 {
		s.every(ctx, "stale_sweep", config.Seconds(timers.StaleSweepInterval), s.sweepStale)
	}
	if s.deps.Stats != nil {
		s.every(ctx, "stats_publish", config.Seconds(timers.StatsPublishInterval), s.publishStats)
	}

	<-ctx.Done()
	s.wg.Wait()
	log.Info().Msg("scheduler stopped")
}

// every runs fn on a ticker until ctx is cancelled.
func (s *Scheduler) every(ctx context.Context, name string, interval time.Duration, fn func(context.Context)) {
	if interval <= 0 {
		log.Warn().Str("task", name).Msg("task disabled, interval is not positive")
		return
	}

	log.Debug().Str("task", name).Dur("interval", interval).Msg("task scheduled")

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fn(ctx)
			}
		}
	}()
}

func (s *Scheduler) pruneCaptures(ctx context.Context) {
	days := s.cfg.GetCapture().RetentionDays
	removed, err := s.deps.Captures.PruneRetention(ctx, days)
	if err != nil {
		log.Warn().Err(err).Msg("capture prune failed")
		return
	}
	log.Debug().
		Int64("removed", removed).
		Int("retention_days", days).
		Msg("capture prune completed")
}

func (s *Scheduler) sweepStale(ctx context.Context) {
	timeout := config.Seconds(s.cfg.GetTimers().StaleSessionTimeout)
	if n := s.deps.Sessions.CleanStale(timeout); n > 0 {
		log.Info().Int("closed", n).Dur("timeout", timeout).Msg("stale sessions closed")
	}
}

func (s *Scheduler) publishStats(ctx context.Context) {
	snap := s.deps.Stats.Snapshot()

	log.Debug().
		Str("frames", humanize.Comma(int64(snap.TotalFrames()))).
		Str("in", humanize.Bytes(snap.BytesIn)).
		Str("out", humanize.Bytes(snap.BytesOut)).
		Int64("sessions", snap.ActiveSessions).
		Msg("relay stats")

	if s.deps.Publisher != nil {
		s.deps.Publisher.PublishStats(snap)
	}
}
