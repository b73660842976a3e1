// Package sink is the consumer side of the pipeline: it drains the
// sample and event queues and fans out to persistence, the broker, and
// the websocket hub.
//
// The sink runs on its own scheduling domain and may block briefly on
// I/O; the sampler never waits for it. Record validation happens here,
// at the last boundary before anything leaves the process.
package sink

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"seismod/internal/clock"
	"seismod/internal/metrics"
	"seismod/internal/pipeline"
	"seismod/internal/seismic"
	"seismod/internal/store"
	"seismod/internal/web"
)

// dequeueTimeout is the short wait on the sample queue per iteration.
const dequeueTimeout = 10 * time.Millisecond

// drainDeadline bounds the shutdown drain of both queues.
const drainDeadline = time.Second

// aggregateWindow is the sliding sample buffer for broadcasts.
const aggregateWindow = 10

// EventPublisher is the broker surface the sink needs.
type EventPublisher interface {
	PublishEvent(payload []byte) bool
}

// Broadcaster is the websocket surface the sink needs.
type Broadcaster interface {
	BroadcastSensor(web.SensorBroadcast)
	BroadcastEvent(web.EventBroadcast)
	BroadcastInterval() time.Duration
}

// Config parameterizes the sink.
type Config struct {
	// SummaryInterval throttles persisted sample summaries; default 1s.
	SummaryInterval time.Duration
}

// Sink consumes both queues.
type Sink struct {
	cfg Config

	sampleQ *pipeline.Queue[pipeline.SamplePacket]
	eventQ  *pipeline.Queue[pipeline.EventPacket]

	store *store.Store
	brk   EventPublisher
	hub   Broadcaster
	clk   clock.Clock
	m     *metrics.SeismodMetrics
	log   *slog.Logger

	// Sliding aggregate state.
	window [aggregateWindow]pipeline.SamplePacket
	pos    int
	filled int
	maxMag float64

	lastBroadcastMono int64
	lastSummaryMono   int64
}

// New creates a Sink. brk and hub may be nil when the corresponding
// transport is disabled.
func New(cfg Config,
	sampleQ *pipeline.Queue[pipeline.SamplePacket],
	eventQ *pipeline.Queue[pipeline.EventPacket],
	st *store.Store, brk EventPublisher, hub Broadcaster,
	clk clock.Clock, m *metrics.SeismodMetrics, log *slog.Logger,
) *Sink {
	if cfg.SummaryInterval <= 0 {
		cfg.SummaryInterval = time.Second
	}
	return &Sink{
		cfg:     cfg,
		sampleQ: sampleQ,
		eventQ:  eventQ,
		store:   st,
		brk:     brk,
		hub:     hub,
		clk:     clk,
		m:       m,
		log:     log,
	}
}

// Run consumes until ctx ends, then drains both queues with a deadline.
func (s *Sink) Run(ctx context.Context) {
	s.log.Info("sink started")
	for {
		select {
		case <-ctx.Done():
			s.drain()
			s.log.Info("sink stopped")
			return
		default:
		}

		if pkt, ok := s.sampleQ.Dequeue(dequeueTimeout); ok {
			s.handleSample(pkt)
		}
		if ev, ok := s.eventQ.Dequeue(0); ok {
			s.handleEvent(ev)
		}
	}
}

// drain empties both queues within the shutdown deadline so in-flight
// events are not lost.
func (s *Sink) drain() {
	deadline := time.Now().Add(drainDeadline)
	for time.Now().Before(deadline) {
		pkt, okSample := s.sampleQ.Dequeue(0)
		if okSample {
			s.handleSample(pkt)
		}
		ev, okEvent := s.eventQ.Dequeue(0)
		if okEvent {
			s.handleEvent(ev)
		}
		if !okSample && !okEvent {
			return
		}
	}
}

// handleSample feeds the aggregate and emits broadcast and summary at
// their cadences.
func (s *Sink) handleSample(pkt pipeline.SamplePacket) {
	s.window[s.pos] = pkt
	s.pos = (s.pos + 1) % aggregateWindow
	if s.filled < aggregateWindow {
		s.filled++
	}
	if pkt.Magnitude > s.maxMag {
		s.maxMag = pkt.Magnitude
	}

	if s.hub != nil {
		interval := s.hub.BroadcastInterval().Milliseconds()
		if pkt.TSMono-s.lastBroadcastMono >= interval {
			s.hub.BroadcastSensor(s.aggregate(pkt))
			s.lastBroadcastMono = pkt.TSMono
			s.maxMag = 0
		}
	}

	if s.store != nil && pkt.TSMono-s.lastSummaryMono >= s.cfg.SummaryInterval.Milliseconds() {
		s.lastSummaryMono = pkt.TSMono
		s.persistSummary()
	}
}

// aggregate builds the sliding-buffer broadcast message.
func (s *Sink) aggregate(latest pipeline.SamplePacket) web.SensorBroadcast {
	var ax, ay, az, mag float64
	for i := range s.filled {
		p := s.window[i]
		ax += p.AX
		ay += p.AY
		az += p.AZ
		mag += p.Magnitude
	}
	n := float64(s.filled)

	return web.SensorBroadcast{
		Timestamp:       s.clk.NowMono(),
		AccelX:          ax / n,
		AccelY:          ay / n,
		AccelZ:          az / n,
		Magnitude:       mag / n,
		MaxMagnitude:    s.maxMag,
		SensorTimestamp: latest.TSMono,
		SamplesAveraged: s.filled,
		Calibrated:      s.m.CalibrationValid.Value() == 1,
		EventsDetected:  s.m.EventsDetected.Value(),
	}
}

func (s *Sink) persistSummary() {
	if !s.clk.Trusted() {
		return
	}
	var ax, ay, az, mag float64
	for i := range s.filled {
		p := s.window[i]
		ax += p.AX
		ay += p.AY
		az += p.AZ
		mag += p.Magnitude
	}
	n := float64(s.filled)

	err := s.store.AppendSummary(store.SampleSummary{
		Timestamp:    s.clk.NowWall(),
		AccelX:       ax / n,
		AccelY:       ay / n,
		AccelZ:       az / n,
		Magnitude:    mag / n,
		MaxMagnitude: s.maxMag,
		Samples:      s.filled,
	})
	if err != nil {
		s.log.Warn("sample summary write failed", "error", err)
	}
}

// handleEvent validates and fans out one seismic event.
func (s *Sink) handleEvent(ev pipeline.EventPacket) {
	rec := ev.Record
	if rec == nil {
		return
	}

	payload, err := json.Marshal(rec)
	if err != nil {
		s.m.RecordsInvalid.Inc()
		s.log.Error("record encoding failed", "event_id", rec.EventID, "error", err)
		return
	}
	if err := seismic.ValidateJSON(payload); err != nil {
		s.m.RecordsInvalid.Inc()
		s.log.Error("record failed schema validation, not persisted",
			"event_id", rec.EventID, "error", err)
		return
	}

	if s.store != nil {
		if err := s.store.AppendSeismic(rec); err != nil {
			s.log.Error("record persistence failed", "event_id", rec.EventID, "error", err)
		} else {
			s.m.RecordsPersisted.Inc()
		}

		flat := store.FlatEvent{
			Timestamp:   rec.Detection.Timestamp,
			Type:        string(rec.Classification.Type),
			Description: "Seismic event detected",
			Magnitude:   rec.Measurements.PGAg,
			NTPValid:    true,
		}
		if err := s.store.AppendEvent(flat); err != nil {
			s.log.Warn("legacy event write failed", "error", err)
		}
	}

	if s.brk != nil {
		if !s.brk.PublishEvent(payload) {
			s.log.Warn("event publish dropped, broker disconnected", "event_id", rec.EventID)
		}
	}

	if s.hub != nil {
		s.hub.BroadcastEvent(web.EventBroadcast{
			EventType:    ev.Type,
			Magnitude:    ev.Magnitude,
			Level:        ev.Level,
			Timestamp:    s.clk.NowMono(),
			NTPTimestamp: rec.Detection.Timestamp,
		})
	}

	s.log.Info("seismic event processed",
		"event_id", rec.EventID,
		"type", ev.Type,
		"level", ev.Level,
		"pga_g", ev.Magnitude)
}
