// Package health runs periodic checks on what the relay depends on: the
// upstream server and the volume holding the capture store. It also emits
// a heartbeat for telemetry.
package health

import (
	"context"
	"fmt"
	"net"
	"path/filepath"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog/log"

	"github.com/tilewire-project/tilewire/internal/config"
	"github.com/tilewire-project/tilewire/internal/events"
	"github.com/tilewire-project/tilewire/internal/util"
)

// SessionCounter reports the number of live sessions.
type SessionCounter interface {
	Count() int
}

// UpstreamStatus is the result of the last upstream probe.
type UpstreamStatus struct {
	Address   string        `json:"address"`
	Reachable bool          `json:"reachable"`
	Latency   time.Duration `json:"latency_ns"`
	Error     string        `json:"error,omitempty"`
	Failures  int           `json:"consecutive_failures"`
	CheckedAt time.Time     `json:"checked_at"`
}

// DiskStatus is the result of the last disk check.
type DiskStatus struct {
	Path        string    `json:"path"`
	UsedPercent float64   `json:"used_percent"`
	Free        uint64    `json:"free_bytes"`
	Level       string    `json:"level"`
	CheckedAt   time.Time `json:"checked_at"`
}

// Status is a snapshot of every check.
type Status struct {
	Upstream *UpstreamStatus `json:"upstream,omitempty"`
	Disk     *DiskStatus     `json:"disk,omitempty"`
}

// Healthy reports whether the upstream was reachable on the last probe.
// Before the first probe it reports true.
func (s Status) Healthy() bool {
	return s.Upstream == nil || s.Upstream.Reachable
}

type dialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// Manager runs periodic health checks.
type Manager struct {
	cfg      *config.Config
	eventBus *events.EventBus
	sessions SessionCounter
	dial     dialFunc
	diskFn   func(path string) (*util.DiskUsage, error)

	mu     sync.RWMutex
	status Status
}

// NewManager creates a new health check manager. sessions may be nil.
func NewManager(cfg *config.Config, eventBus *events.EventBus, sessions SessionCounter) *Manager {
	var d net.Dialer
	return &Manager{
		cfg:      cfg,
		eventBus: eventBus,
		sessions: sessions,
		dial:     d.DialContext,
		diskFn:   util.GetDiskUsage,
	}
}

// Status returns a copy of the latest check results.
func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := Status{}
	if m.status.Upstream != nil {
		u := *m.status.Upstream
		out.Upstream = &u
	}
	if m.status.Disk != nil {
		d := *m.status.Disk
		out.Disk = &d
	}
	return out
}

// Start launches all health check goroutines and blocks until ctx is
// cancelled.
func (m *Manager) Start(ctx context.Context) {
	timers := m.cfg.GetTimers()

	// Launch each health check as a separate goroutine with its own ticker
	checks := []struct {
		name     string
		interval int
		fn       func(context.Context)
	}{
		{"upstream", timers.UpstreamCheckInterval, m.checkUpstream},
		{"disk_utilization", timers.DiskCheckInterval, m.checkDiskUtilization},
		{"heartbeat", timers.HeartbeatInterval, m.heartbeat},
	}

	var wg sync.WaitGroup
	started := 0
	for _, check := range checks {
		if check.interval <= 0 {
			continue
		}
		started++

		check := check
		wg.Add(1)
		go func() {
			defer wg.Done()
			ticker := time.NewTicker(config.Seconds(check.interval))
			defer ticker.Stop()

			// Run immediately on startup
			log.Debug().Str("check", check.name).Msg("running initial health check")
			check.fn(ctx)

			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					check.fn(ctx)
				}
			}
		}()
	}

	log.Info().Int("checks", started).Msg("health check manager started")

	<-ctx.Done()
	wg.Wait()
	log.Info().Msg("health check manager stopped")
}

// checkUpstream opens and closes one TCP connection to the upstream server.
// A change in reachability is logged and emitted.
func (m *Manager) checkUpstream(ctx context.Context) {
	relay := m.cfg.GetRelay()

	dialCtx, cancel := context.WithTimeout(ctx, relay.DialTimeout())
	defer cancel()

	start := time.Now()
	conn, err := m.dial(dialCtx, "tcp", relay.Upstream)
	latency := time.Since(start)
	if err == nil {
		conn.Close()
	}
	if ctx.Err() != nil {
		return
	}

	m.mu.Lock()
	prev := m.status.Upstream
	cur := &UpstreamStatus{
		Address:   relay.Upstream,
		Reachable: err == nil,
		CheckedAt: time.Now(),
	}
	if err != nil {
		cur.Error = err.Error()
		cur.Failures = 1
		if prev != nil && !prev.Reachable {
			cur.Failures = prev.Failures + 1
		}
	} else {
		cur.Latency = latency
	}
	m.status.Upstream = cur
	m.mu.Unlock()

	changed := prev == nil || prev.Reachable != cur.Reachable
	if !changed {
		if err != nil {
			log.Debug().Err(err).Int("failures", cur.Failures).Msg("upstream still unreachable")
		}
		return
	}

	if err != nil {
		log.Warn().Err(err).Str("upstream", relay.Upstream).Msg("upstream unreachable")
	} else {
		log.Info().Str("upstream", relay.Upstream).Dur("latency", latency).Msg("upstream reachable")
	}

	m.emit(ctx, events.EventUpstreamStatus, events.UpstreamStatusPayload{
		Upstream:  relay.Upstream,
		Reachable: cur.Reachable,
		Latency:   cur.Latency,
		Error:     cur.Error,
	})
}

// checkDiskUtilization monitors the volume holding the capture store and
// alerts at thresholds.
func (m *Manager) checkDiskUtilization(ctx context.Context) {
	capCfg := m.cfg.GetCapture()
	if !capCfg.Enabled {
		return
	}
	path := filepath.Dir(capCfg.DBPath)

	usage, err := m.diskFn(path)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("disk utilization check failed")
		return
	}

	level := diskLevel(usage.UsedPercent)

	m.mu.Lock()
	m.status.Disk = &DiskStatus{
		Path:        path,
		UsedPercent: usage.UsedPercent,
		Free:        usage.Free,
		Level:       level,
		CheckedAt:   time.Now(),
	}
	m.mu.Unlock()

	log.Debug().
		Float64("used_percent", usage.UsedPercent).
		Str("free", humanize.Bytes(usage.Free)).
		Msg("disk utilization")

	if level == "ok" {
		return
	}

	log.Warn().
		Str("level", level).
		Msg(fmt.Sprintf("capture volume at %.1f%% (%s free of %s)",
			usage.UsedPercent, humanize.Bytes(usage.Free), humanize.Bytes(usage.Total)))

	m.emit(ctx, events.EventDiskAlert, events.DiskAlertPayload{
		Path:        path,
		Level:       level,
		UsedPercent: usage.UsedPercent,
		Free:        usage.Free,
	})
}

// diskLevel maps usage to an alert level. Thresholds: 80%, 90%, 95%, 100%.
func diskLevel(usedPercent float64) string {
	switch {
	case usedPercent >= 100:
		return "critical"
	case usedPercent >= 95:
		return "error"
	case usedPercent >= 90:
		return "warning"
	case usedPercent >= 80:
		return "info"
	default:
		return "ok"
	}
}

// heartbeat publishes a liveness message via MQTT.
func (m *Manager) heartbeat(ctx context.Context) {
	sessions := 0
	if m.sessions != nil {
		sessions = m.sessions.Count()
	}

	status := m.Status()
	m.emit(ctx, events.EventNotifyMQTT, events.NotifyMQTTPayload{
		Topic: "heartbeat",
		Payload: map[string]interface{}{
			"sessions":  sessions,
			"healthy":   status.Healthy(),
			"timestamp": time.Now().Unix(),
		},
	})
}

func (m *Manager) emit(ctx context.Context, t events.EventType, payload interface{}) {
	if m.eventBus == nil {
		return
	}
	m.eventBus.Emit(ctx, events.Event{
		Type:    t,
		Source:  "health_check",
		Payload: payload,
	})
}
