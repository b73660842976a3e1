// Package telemetry builds periodic status snapshots and publishes them
// at the configured cadences: broker data summaries every 5 minutes,
// retained status every 10 minutes, heartbeats every 30 minutes.
//
// The snapshot ticker is also the hub's good-performance tick: while the
// queues are healthy, per-client broadcast rates recover and the
// back-pressure interval stretch is released.
package telemetry

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"seismod/internal/clock"
	"seismod/internal/metrics"
)

// Default cadences.
const (
	DefaultSnapshotInterval  = 5 * time.Second
	DefaultDataInterval      = 5 * time.Minute
	DefaultStatusInterval    = 10 * time.Minute
	DefaultHeartbeatInterval = 30 * time.Minute
)

// Snapshot is the periodic status document, served on get_status,
// /api/status, and the broker status topic.
type Snapshot struct {
	Station      string `json:"station"`
	UptimeSec    int64  `json:"uptime_sec"`
	ClockTrusted bool   `json:"clock_trusted"`
	WallTime     string `json:"wall_time,omitempty"`

	TotalSamples         uint64 `json:"total_samples"`
	EventsDetected       uint64 `json:"events_detected"`
	SpikesFiltered       uint64 `json:"spikes_filtered"`
	EventsRejectedNoTime uint64 `json:"events_rejected_no_time"`
	SensorReadErrors     uint64 `json:"sensor_read_errors"`

	SampleQueueDepth int64  `json:"sample_queue_depth"`
	EventQueueDepth  int64  `json:"event_queue_depth"`
	SampleQueueDrops uint64 `json:"sample_queue_drops"`
	EventQueueDrops  uint64 `json:"event_queue_drops"`

	CalibrationValid bool    `json:"calibration_valid"`
	LastMagnitude    float64 `json:"last_magnitude"`
	BackgroundNoise  float64 `json:"background_noise"`
	TriggerRatio     float64 `json:"trigger_ratio"`

	ClientsConnected int64 `json:"clients_connected"`
}

// Publisher is the broker surface telemetry needs; nil disables broker
// publishing.
type Publisher interface {
	PublishData(payload []byte) bool
	PublishStatus(payload []byte) bool
	Connected() bool
}

// HubControl is the websocket hub surface telemetry needs; nil disables
// rate adaptation.
type HubControl interface {
	ClientCount() int
	AdaptTick()
	SetBackpressure(on bool)
}

// Config parameterizes the collector.
type Config struct {
	Station           string
	SnapshotInterval  time.Duration
	DataInterval      time.Duration
	StatusInterval    time.Duration
	HeartbeatInterval time.Duration

	// SampleQueueCap drives the queue-health heuristic for the good
	// performance tick.
	SampleQueueCap int
}

// Collector assembles and publishes snapshots.
type Collector struct {
	cfg Config
	clk clock.Clock
	m   *metrics.SeismodMetrics
	brk Publisher
	hub HubControl
	log *slog.Logger

	start time.Time
}

// New creates a Collector.
func New(cfg Config, clk clock.Clock, m *metrics.SeismodMetrics, brk Publisher, hub HubControl, log *slog.Logger) *Collector {
	if cfg.SnapshotInterval <= 0 {
		cfg.SnapshotInterval = DefaultSnapshotInterval
	}
	if cfg.DataInterval <= 0 {
		cfg.DataInterval = DefaultDataInterval
	}
	if cfg.StatusInterval <= 0 {
		cfg.StatusInterval = DefaultStatusInterval
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = DefaultHeartbeatInterval
	}
	return &Collector{
		cfg:   cfg,
		clk:   clk,
		m:     m,
		brk:   brk,
		hub:   hub,
		log:   log,
		start: time.Now(),
	}
}

// Status builds the current snapshot. Safe from any goroutine: every
// source is an atomic or a lock-guarded read.
func (c *Collector) Status() Snapshot {
	snap := Snapshot{
		Station:      c.cfg.Station,
		UptimeSec:    int64(time.Since(c.start).Seconds()),
		ClockTrusted: c.clk.Trusted(),

		TotalSamples:         c.m.TotalSamples.Value(),
		EventsDetected:       c.m.EventsDetected.Value(),
		SpikesFiltered:       c.m.SpikesFiltered.Value(),
		EventsRejectedNoTime: c.m.EventsRejectedNoTime.Value(),
		SensorReadErrors:     c.m.SensorReadErrors.Value(),

		SampleQueueDepth: c.m.SampleQueueDepth.Value(),
		EventQueueDepth:  c.m.EventQueueDepth.Value(),
		SampleQueueDrops: c.m.SampleQueueDrops.Value(),
		EventQueueDrops:  c.m.EventQueueDrops.Value(),

		CalibrationValid: c.m.CalibrationValid.Value() == 1,
		LastMagnitude:    c.m.LastMagnitude.Value(),
		BackgroundNoise:  c.m.BackgroundNoise.Value(),
		TriggerRatio:     c.m.TriggerRatio.Value(),
	}
	if c.hub != nil {
		snap.ClientsConnected = int64(c.hub.ClientCount())
	}
	if snap.ClockTrusted {
		snap.WallTime = clock.FormatISO(c.clk.NowWall())
	}
	return snap
}

// Run ticks until ctx ends.
func (c *Collector) Run(ctx context.Context) {
	snapshotT := time.NewTicker(c.cfg.SnapshotInterval)
	dataT := time.NewTicker(c.cfg.DataInterval)
	statusT := time.NewTicker(c.cfg.StatusInterval)
	heartbeatT := time.NewTicker(c.cfg.HeartbeatInterval)
	defer snapshotT.Stop()
	defer dataT.Stop()
	defer statusT.Stop()
	defer heartbeatT.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-snapshotT.C:
			c.snapshotTick()
		case <-dataT.C:
			c.publishData()
		case <-statusT.C:
			c.publishStatus()
		case <-heartbeatT.C:
			c.publishHeartbeat()
		}
	}
}

// snapshotTick updates derived gauges and applies the good-performance
// adaptation when the queues are healthy.
func (c *Collector) snapshotTick() {
	if c.clk.Trusted() {
		c.m.ClockTrusted.Set(1)
	} else {
		c.m.ClockTrusted.Set(0)
	}

	if c.hub == nil {
		return
	}
	if c.queuesHealthy() {
		c.hub.SetBackpressure(false)
		c.hub.AdaptTick()
	}
}

// queuesHealthy reports whether the sample queue has headroom.
func (c *Collector) queuesHealthy() bool {
	if c.cfg.SampleQueueCap <= 0 {
		return true
	}
	return c.m.SampleQueueDepth.Value() < int64(c.cfg.SampleQueueCap)/2
}

// PublishStatusNow pushes an immediate status document, used by the
// broker "status" command.
func (c *Collector) PublishStatusNow() {
	c.publishStatus()
}

func (c *Collector) publishData() {
	if c.brk == nil || !c.brk.Connected() {
		return
	}
	payload, err := json.Marshal(c.Status())
	if err != nil {
		return
	}
	c.brk.PublishData(payload)
}

func (c *Collector) publishStatus() {
	if c.brk == nil || !c.brk.Connected() {
		return
	}
	payload, err := json.Marshal(map[string]any{
		"status": "online",
		"state":  c.Status(),
	})
	if err != nil {
		return
	}
	c.brk.PublishStatus(payload)
}

func (c *Collector) publishHeartbeat() {
	if c.brk == nil || !c.brk.Connected() {
		return
	}
	payload, _ := json.Marshal(map[string]any{
		"status":     "heartbeat",
		"uptime_sec": int64(time.Since(c.start).Seconds()),
	})
	c.brk.PublishStatus(payload)
	c.log.Debug("heartbeat published")
}
