// Package stats counts relayed frames and exposes them both as Prometheus
// metrics and as a JSON-friendly snapshot.
package stats

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/tilewire-project/tilewire/internal/protocol"
)

const namespace = "tilewire"

// Error kinds passed to RecordError.
const (
	ErrorDecode = "decode"
	ErrorEncode = "encode"
	ErrorIO     = "io"
)

// Collector aggregates relay counters. All methods are safe for concurrent
// use and are no-ops on a nil Collector.
type Collector struct {
	registry *prometheus.Registry
	started  time.Time

	frames     *prometheus.CounterVec
	bytes      *prometheus.CounterVec
	vetoes     *prometheus.CounterVec
	reencodes  *prometheus.CounterVec
	dropped    *prometheus.CounterVec
	errors     *prometheus.CounterVec
	captures   *prometheus.CounterVec
	sessions   prometheus.Counter
	active     prometheus.Gauge
	frameSizes prometheus.Histogram

	mu       sync.Mutex
	types    map[typeKey]*TypeStats
	errCount map[string]uint64

	framesIn       atomic.Uint64
	framesOut      atomic.Uint64
	bytesIn        atomic.Uint64
	bytesOut       atomic.Uint64
	vetoed         atomic.Uint64
	reencoded      atomic.Uint64
	droppedTotal   atomic.Uint64
	capturedTotal  atomic.Uint64
	activeSessions atomic.Int64
	sessionsTotal  atomic.Uint64
}

type typeKey struct {
	dir protocol.Direction
	id  protocol.MessageType
}

// TypeStats is the per type and direction breakdown in a Snapshot.
type TypeStats struct {
	TypeID    uint8  `json:"type_id"`
	Name      string `json:"name"`
	Direction string `json:"direction"`
	Frames    uint64 `json:"frames"`
	Bytes     uint64 `json:"bytes"`
	Vetoed    uint64 `json:"vetoed"`
	Reencoded uint64 `json:"reencoded"`
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	Uptime         time.Duration     `json:"uptime_ns"`
	FramesIn       uint64            `json:"frames_client_to_server"`
	FramesOut      uint64            `json:"frames_server_to_client"`
	BytesIn        uint64            `json:"bytes_client_to_server"`
	BytesOut       uint64            `json:"bytes_server_to_client"`
	Vetoed         uint64            `json:"vetoed"`
	Reencoded      uint64            `json:"reencoded"`
	Dropped        uint64            `json:"dropped"`
	Captured       uint64            `json:"captured"`
	Errors         map[string]uint64 `json:"errors"`
	ActiveSessions int64             `json:"active_sessions"`
	TotalSessions  uint64            `json:"total_sessions"`
	Types          []TypeStats       `json:"types"`
}

// NewCollector creates a collector with its own Prometheus registry, so
// several relays (or tests) never collide on metric names.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,
		started:  time.Now(),
		types:    make(map[typeKey]*TypeStats),
		errCount: make(map[string]uint64),

		frames: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_total",
			Help:      "Frames relayed, by direction and message type",
		}, []string{"direction", "type"}),

		bytes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_total",
			Help:      "Frame bytes read, by direction",
		}, []string{"direction"}),

		vetoes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "vetoes_total",
			Help:      "Frames dropped by a packet hook, by hook name",
		}, []string{"hook"}),

		reencodes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reencodes_total",
			Help:      "Frames re-encoded after a hook modified them, by message type",
		}, []string{"type"}),

		dropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_total",
			Help:      "Frames dropped for reasons other than a veto",
		}, []string{"reason"}),

		errors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Relay errors by kind",
		}, []string{"kind"}),

		captures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "captures_total",
			Help:      "Frames written to the capture store, by reason",
		}, []string{"reason"}),

		sessions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Sessions accepted since start",
		}),

		active: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Sessions currently relaying",
		}),

		frameSizes: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "frame_size_bytes",
			Help:      "Size of relayed frames in bytes",
			Buckets:   []float64{8, 16, 32, 64, 128, 256, 1024, 4096, 16384, 65535},
		}),
	}
}

// Gatherer exposes the registry for a /metrics handler.
func (c *Collector) Gatherer() prometheus.Gatherer {
	return c.registry
}

func (c *Collector) typeStats(dir protocol.Direction, id protocol.MessageType, name string) *TypeStats {
	k := typeKey{dir: dir, id: id}
	ts, ok := c.types[k]
	if !ok {
		ts = &TypeStats{TypeID: uint8(id), Name: name, Direction: dir.String()}
		c.types[k] = ts
	}
	return ts
}

// RecordFrame counts one frame read from the wire.
func (c *Collector) RecordFrame(dir protocol.Direction, id protocol.MessageType, name string, size int) {
	if c == nil {
		return
	}
	c.frames.WithLabelValues(dir.String(), name).Inc()
	c.bytes.WithLabelValues(dir.String()).Add(float64(size))
	c.frameSizes.Observe(float64(size))

	if dir == protocol.FromClient {
		c.framesIn.Add(1)
		c.bytesIn.Add(uint64(size))
	} else {
		c.framesOut.Add(1)
		c.bytesOut.Add(uint64(size))
	}

	c.mu.Lock()
	ts := c.typeStats(dir, id, name)
	ts.Frames++
	ts.Bytes += uint64(size)
	c.mu.Unlock()
}

// RecordVeto counts a frame dropped by hook.
func (c *Collector) RecordVeto(dir protocol.Direction, id protocol.MessageType, name, hook string) {
	if c == nil {
		return
	}
	c.vetoes.WithLabelValues(hook).Inc()
	c.vetoed.Add(1)

	c.mu.Lock()
	c.typeStats(dir, id, name).Vetoed++
	c.mu.Unlock()
}

// RecordReencode counts a frame that was rebuilt from a dirty message.
func (c *Collector) RecordReencode(dir protocol.Direction, id protocol.MessageType, name string) {
	if c == nil {
		return
	}
	c.reencodes.WithLabelValues(name).Inc()
	c.reencoded.Add(1)

	c.mu.Lock()
	c.typeStats(dir, id, name).Reencoded++
	c.mu.Unlock()
}

// RecordDropped counts a frame dropped without a veto, e.g. one that grew
// past the frame size limit when re-encoded.
func (c *Collector) RecordDropped(reason string) {
	if c == nil {
		return
	}
	c.dropped.WithLabelValues(reason).Inc()
	c.droppedTotal.Add(1)
}

// RecordError counts an error of the given kind.
func (c *Collector) RecordError(kind string) {
	if c == nil {
		return
	}
	c.errors.WithLabelValues(kind).Inc()

	c.mu.Lock()
	c.errCount[kind]++
	c.mu.Unlock()
}

// RecordCapture counts a frame persisted to the capture store.
func (c *Collector) RecordCapture(reason string) {
	if c == nil {
		return
	}
	c.captures.WithLabelValues(reason).Inc()
	c.capturedTotal.Add(1)
}

// SessionOpened counts a new session.
func (c *Collector) SessionOpened() {
	if c == nil {
		return
	}
	c.sessions.Inc()
	c.active.Inc()
	c.sessionsTotal.Add(1)
	c.activeSessions.Add(1)
}

// SessionClosed decrements the active session gauge.
func (c *Collector) SessionClosed() {
	if c == nil {
		return
	}
	c.active.Dec()
	c.activeSessions.Add(-1)
}

// Snapshot copies the current counters. Types are ordered by frame count,
// busiest first.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{Errors: map[string]uint64{}}
	}

	s := Snapshot{
		Uptime:         time.Since(c.started),
		FramesIn:       c.framesIn.Load(),
		FramesOut:      c.framesOut.Load(),
		BytesIn:        c.bytesIn.Load(),
		BytesOut:       c.bytesOut.Load(),
		Vetoed:         c.vetoed.Load(),
		Reencoded:      c.reencoded.Load(),
		Dropped:        c.droppedTotal.Load(),
		Captured:       c.capturedTotal.Load(),
		ActiveSessions: c.activeSessions.Load(),
		TotalSessions:  c.sessionsTotal.Load(),
	}

	c.mu.Lock()
	s.Errors = make(map[string]uint64, len(c.errCount))
	for k, v := range c.errCount {
		s.Errors[k] = v
	}
	s.Types = make([]TypeStats, 0, len(c.types))
	for _, ts := range c.types {
		s.Types = append(s.Types, *ts)
	}
	c.mu.Unlock()

	sort.Slice(s.Types, func(i, j int) bool {
		a, b := s.Types[i], s.Types[j]
		if a.Frames != b.Frames {
			return a.Frames > b.Frames
		}
		if a.TypeID != b.TypeID {
			return a.TypeID < b.TypeID
		}
		return a.Direction < b.Direction
	})
	return s
}

// TotalFrames is the number of frames read in both directions.
func (s Snapshot) TotalFrames() uint64 {
	return s.FramesIn + s.FramesOut
}

// TotalErrors sums every error kind.
func (s Snapshot) TotalErrors() uint64 {
	var n uint64
	for _, v := range s.Errors {
		n += v
	}
	return n
}
