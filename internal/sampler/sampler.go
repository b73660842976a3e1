// Package sampler runs the high-priority sampling loop: read, calibrate,
// spike-filter, trigger, assemble, enqueue.
//
// The loop owns every piece of detection state. Its only out-edges are
// non-blocking enqueues to the sample and event queues and atomic counter
// updates; it never performs I/O and never blocks on a consumer.
// Calibration is a mode of this loop, not a concurrent operation: while a
// calibration request is being served, sampling is suspended.
package sampler

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"sync/atomic"
	"time"

	"seismod/internal/calib"
	"seismod/internal/clock"
	"seismod/internal/detect"
	"seismod/internal/event"
	"seismod/internal/metrics"
	"seismod/internal/pipeline"
	"seismod/internal/seismic"
	"seismod/internal/sensor"
)

// ErrCalibrationPending is returned when a calibration request is already
// queued.
var ErrCalibrationPending = errors.New("sampler: calibration already requested")

// Config parameterizes the loop.
type Config struct {
	// RateHz is the sampling rate.
	RateHz int
}

// Deps are the sampler's collaborators, wired at startup.
type Deps struct {
	Driver    *DriverState
	Clock     clock.Clock
	Calib     *calib.Engine
	Drift     *calib.Monitor
	Spike     *detect.SpikeFilter
	Detector  *detect.STALTA
	Assembler *event.Assembler

	SampleQ *pipeline.Queue[pipeline.SamplePacket]
	EventQ  *pipeline.Queue[pipeline.EventPacket]

	Metrics *metrics.SeismodMetrics
	Log     *slog.Logger

	// OnBackpressure fires when the sample-queue drop rate exceeds the
	// back-pressure threshold. Called from the sampler goroutine; it must
	// not block.
	OnBackpressure func()
}

// DriverState wraps the sensor driver with the last-good-frame fallback
// for transient read failures.
type DriverState struct {
	drv  sensor.Driver
	last sensor.Frame
}

// NewDriverState wraps a driver.
func NewDriverState(drv sensor.Driver) *DriverState {
	return &DriverState{drv: drv}
}

// read returns the next frame. On a transient failure the previous
// frame's components are reused with magnitude forced to zero by the
// caller; the scheduler is never starved.
func (d *DriverState) read() (sensor.Frame, bool) {
	f, err := d.drv.Read()
	if err != nil {
		return d.last, false
	}
	d.last = f
	return f, true
}

// Loop is the sampler-domain loop.
type Loop struct {
	cfg  Config
	deps Deps

	backpressure *pipeline.DropRateWindow

	// progress is the monotonic ms of the last completed step, read by
	// the watchdog.
	progress atomic.Int64

	calibrateReq chan chan error
	simulateReq  chan simRequest
}

type simRequest struct {
	richter float64
	reply   chan simReply
}

type simReply struct {
	enqueued bool
	err      error
}

// New creates a Loop.
func New(cfg Config, deps Deps) *Loop {
	if cfg.RateHz <= 0 {
		cfg.RateHz = 500
	}
	return &Loop{
		cfg:          cfg,
		deps:         deps,
		backpressure: pipeline.NewDropRateWindow(10000, 0.01),
		calibrateReq: make(chan chan error, 1),
		simulateReq:  make(chan simRequest, 1),
	}
}

// LastProgressMono returns the monotonic time of the last completed step.
func (l *Loop) LastProgressMono() int64 {
	return l.progress.Load()
}

// RequestCalibration asks the loop to suspend sampling and recalibrate.
// The returned channel yields the calibration result.
func (l *Loop) RequestCalibration() <-chan error {
	reply := make(chan error, 1)
	select {
	case l.calibrateReq <- reply:
	default:
		reply <- ErrCalibrationPending
	}
	return reply
}

// RequestSimulation asks the loop to synthesize an event at the given
// Richter magnitude on its next tick, keeping all detection state in the
// sampler domain.
func (l *Loop) RequestSimulation(richter float64) (bool, error) {
	req := simRequest{richter: richter, reply: make(chan simReply, 1)}
	select {
	case l.simulateReq <- req:
	default:
		return false, event.ErrEventActive
	}
	r := <-req.reply
	return r.enqueued, r.err
}

// Run drives the loop until ctx is done. The goroutine is pinned to an OS
// thread and raised to the platform's high-priority band so consumers
// cannot starve it.
func (l *Loop) Run(ctx context.Context) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	if err := raisePriority(); err != nil {
		l.deps.Log.Warn("could not raise sampler priority", "error", err)
	}

	interval := time.Second / time.Duration(l.cfg.RateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	l.deps.Log.Info("sampler started", "rate_hz", l.cfg.RateHz, "interval", interval)

	for {
		select {
		case <-ctx.Done():
			l.deps.Log.Info("sampler stopped")
			return
		case reply := <-l.calibrateReq:
			// Calibration replaces sampling for its duration.
			_, err := l.deps.Calib.Calibrate()
			l.updateCalibrationGauge()
			reply <- err
		case req := <-l.simulateReq:
			req.reply <- l.simulate(req.richter)
		case <-ticker.C:
			l.step()
		}
	}
}

// step processes one sampling period.
func (l *Loop) step() {
	m := l.deps.Metrics
	nowMono := l.deps.Clock.NowMono()

	frame, ok := l.deps.Driver.read()
	var ax, ay, az, mag float64
	if ok {
		ax, ay, az, mag = l.deps.Calib.Apply(frame)
	} else {
		// Transient sensor failure: reuse the last components, zero
		// magnitude, keep the cadence.
		m.SensorReadErrors.Inc()
		ax, ay, az, _ = l.deps.Calib.Apply(frame)
		mag = 0
	}

	m.TotalSamples.Inc()
	m.LastMagnitude.Set(mag)

	l.process(ax, ay, az, mag, nowMono)

	dropped := !l.deps.SampleQ.TryEnqueue(pipeline.SamplePacket{
		AX: ax, AY: ay, AZ: az, Magnitude: mag, TSMono: nowMono,
	})
	if l.backpressure.Observe(nowMono, dropped) {
		l.deps.Log.Warn("sample queue drop rate above threshold, requesting broadcast slowdown")
		if l.deps.OnBackpressure != nil {
			l.deps.OnBackpressure()
		}
	}

	m.SampleQueueDepth.Set(int64(l.deps.SampleQ.Len()))
	m.EventQueueDepth.Set(int64(l.deps.EventQ.Len()))
	l.progress.Store(nowMono)
}

// process feeds one calibrated sample through the detection chain.
func (l *Loop) process(ax, ay, az, mag float64, nowMono int64) {
	m := l.deps.Metrics
	det := l.deps.Detector

	if l.deps.Spike.IsSpike(mag, det.Thresholds().Micro) {
		m.SpikesFiltered.Inc()
		return
	}
	l.deps.Spike.Observe(mag)

	det.Update(mag, nowMono)
	m.BackgroundNoise.Set(det.BackgroundNoise())
	m.TriggerRatio.Set(det.Ratio())

	rec := l.deps.Assembler.Step(event.Sample{
		AX: ax, AY: ay, AZ: az, Magnitude: mag, TSMono: nowMono,
	}, det.Triggered(), l.detectorState(), l.calibrationState(nowMono))
	if rec != nil {
		l.enqueueRecord(rec)
	}

	if det.Ready() {
		l.deps.Drift.Check(det.LTA(), nowMono)
		l.updateCalibrationGauge()
	}
}

// simulate services a simulation request inside the sampler domain.
func (l *Loop) simulate(richter float64) simReply {
	nowMono := l.deps.Clock.NowMono()
	rec, err := l.deps.Assembler.Simulate(richter, l.detectorState(), l.calibrationState(nowMono))
	if err != nil {
		return simReply{err: err}
	}
	if rec == nil {
		return simReply{}
	}
	return simReply{enqueued: l.enqueueRecord(rec)}
}

func (l *Loop) enqueueRecord(rec *seismic.Record) bool {
	ok := l.deps.EventQ.TryEnqueue(pipeline.EventPacket{
		Type:      string(rec.Classification.Type),
		Magnitude: rec.Measurements.PGAg,
		Level:     rec.Classification.IntensityLevel,
		TSWallMs:  rec.Detection.Timestamp * 1000,
		Record:    rec,
	})
	if !ok {
		// Drop-new: the sink cannot keep up with a very active period.
		l.deps.Log.Warn("event queue full, record dropped", "event_id", rec.EventID)
	}
	return ok
}

func (l *Loop) detectorState() event.DetectorState {
	det := l.deps.Detector
	sta, lta := det.Windows()
	return event.DetectorState{
		Ratio:           det.Ratio(),
		STAWindow:       sta,
		LTAWindow:       lta,
		BackgroundNoise: det.BackgroundNoise(),
	}
}

func (l *Loop) calibrationState(nowMono int64) event.CalibrationState {
	cal := l.deps.Calib.Current()
	return event.CalibrationState{
		Valid:    cal.Valid,
		AgeHours: cal.AgeHours(nowMono),
	}
}

func (l *Loop) updateCalibrationGauge() {
	if l.deps.Calib.Current().Valid {
		l.deps.Metrics.CalibrationValid.Set(1)
	} else {
		l.deps.Metrics.CalibrationValid.Set(0)
	}
}

// Step runs one sampling period synchronously. Test hook: the production
// path goes through Run.
func (l *Loop) Step() { l.step() }
