// Package calib produces and validates per-axis accelerometer offsets and
// monitors baseline drift.
//
// Calibration runs synchronously in the sampler's scheduling domain, in
// place of the sampling loop. The resulting Calibration is replaced
// atomically; readers in other domains always see a consistent snapshot.
//
// The Z offset is the raw Z mean, so a calibrated sensor at rest reads
// 0 g on every axis. The validation bounds still check that raw Z carried
// gravity, which is what distinguishes a level sensor from a misoriented
// one.
package calib

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"seismod/internal/clock"
	"seismod/internal/sensor"
)

// Calibration procedure constants.
const (
	StabilitySamples   = 50
	AcquisitionSamples = 200
	PostTestSamples    = 10

	stabilityInterval   = 20 * time.Millisecond
	acquisitionInterval = 10 * time.Millisecond

	// MaxStabilityStdDev rejects calibration on a vibrating surface.
	MaxStabilityStdDev = 0.01

	// MaxXYOffset bounds the X/Y offsets of a level sensor.
	MaxXYOffset = 0.5

	// MinZOffset and MaxZOffset bound the gravity reading on raw Z.
	MinZOffset = 0.8
	MaxZOffset = 1.5

	// MaxPostTestMagnitude bounds the mean calibrated magnitude of the
	// post-calibration test readings.
	MaxPostTestMagnitude = 0.1

	// DriftAdvisoryDelta flags offset movement between calibrations.
	DriftAdvisoryDelta = 0.1

	// MaxCalibrationAge is informational; old calibrations keep working.
	MaxCalibrationAge = 24 * time.Hour
)

// Rejection reasons. The previous calibration stays in force on any of
// these.
var (
	ErrUnstable     = errors.New("calib: sensor too unstable")
	ErrOffsetRange  = errors.New("calib: offsets out of range")
	ErrZReading     = errors.New("calib: raw Z reading implausible")
	ErrBaselineHigh = errors.New("calib: post-calibration magnitude too high")
)

// Calibration is an immutable offset snapshot.
type Calibration struct {
	OffX, OffY, OffZ float64

	// BaselineLTA is the post-calibration mean magnitude used as the
	// drift reference.
	BaselineLTA float64

	CreatedAtMono int64
	Valid         bool
}

// AgeHours returns the calibration age at the given monotonic time.
// Returns -1 for the zero calibration.
func (c *Calibration) AgeHours(nowMono int64) float64 {
	if c == nil || c.CreatedAtMono == 0 && !c.Valid {
		return -1
	}
	return float64(nowMono-c.CreatedAtMono) / float64(time.Hour.Milliseconds())
}

// Engine owns the current calibration.
type Engine struct {
	drv sensor.Driver
	clk clock.Clock
	log *slog.Logger

	// sleep paces the calibration reads; tests replace it.
	sleep func(time.Duration)

	cur atomic.Pointer[Calibration]
}

// NewEngine creates an Engine holding an invalid zero calibration, so
// detection can run uncalibrated when boot calibration fails.
func NewEngine(drv sensor.Driver, clk clock.Clock, log *slog.Logger) *Engine {
	e := &Engine{
		drv:   drv,
		clk:   clk,
		log:   log,
		sleep: time.Sleep,
	}
	e.cur.Store(&Calibration{})
	return e
}

// SetSleep replaces the pacing function. Test hook.
func (e *Engine) SetSleep(fn func(time.Duration)) {
	e.sleep = fn
}

// Current returns the active calibration snapshot.
func (e *Engine) Current() *Calibration {
	return e.cur.Load()
}

// Apply subtracts the active offsets from a raw frame and returns the
// calibrated components and magnitude. An invalid calibration still
// applies its offsets when present; the zero calibration passes frames
// through.
func (e *Engine) Apply(f sensor.Frame) (ax, ay, az, mag float64) {
	c := e.cur.Load()
	ax = f.AX - c.OffX
	ay = f.AY - c.OffY
	az = f.AZ - c.OffZ
	mag = math.Sqrt(ax*ax + ay*ay + az*az)
	return ax, ay, az, mag
}

// Calibrate runs the full procedure: stability check, offset acquisition,
// validation, drift advisory, and post-calibration test. On success the
// new calibration replaces the current one atomically; on failure the
// previous calibration stays in force and the error describes the
// rejection.
func (e *Engine) Calibrate() (*Calibration, error) {
	e.log.Info("starting sensor calibration",
		"stability_samples", StabilitySamples,
		"acquisition_samples", AcquisitionSamples)

	if err := e.checkStability(); err != nil {
		return nil, err
	}

	offX, offY, offZ, err := e.acquireOffsets()
	if err != nil {
		return nil, err
	}

	if err := validateOffsets(offX, offY, offZ); err != nil {
		e.log.Warn("calibration rejected", "off_x", offX, "off_y", offY, "off_z", offZ, "error", err)
		return nil, err
	}

	prev := e.cur.Load()
	e.driftAdvisory(prev, offX, offY, offZ)

	cal := &Calibration{
		OffX:          offX,
		OffY:          offY,
		OffZ:          offZ,
		CreatedAtMono: e.clk.NowMono(),
		Valid:         true,
	}

	baseline, err := e.postTest(cal)
	if err != nil {
		return nil, err
	}
	cal.BaselineLTA = baseline

	e.cur.Store(cal)
	e.log.Info("calibration successful",
		"off_x", offX, "off_y", offY, "off_z", offZ, "baseline_g", baseline)
	return cal, nil
}

// checkStability collects samples at ~50 Hz and rejects when any axis
// standard deviation exceeds the bound.
func (e *Engine) checkStability() error {
	var xs, ys, zs [StabilitySamples]float64
	for i := range StabilitySamples {
		f, err := e.drv.Read()
		if err != nil {
			return fmt.Errorf("calib: stability read: %w", err)
		}
		xs[i], ys[i], zs[i] = f.AX, f.AY, f.AZ
		e.sleep(stabilityInterval)
	}

	sx, sy, sz := stdDev(xs[:]), stdDev(ys[:]), stdDev(zs[:])
	if sx > MaxStabilityStdDev || sy > MaxStabilityStdDev || sz > MaxStabilityStdDev {
		e.log.Warn("calibration rejected: sensor unstable",
			"stddev_x", sx, "stddev_y", sy, "stddev_z", sz, "max", MaxStabilityStdDev)
		return fmt.Errorf("%w: stddev x=%.6f y=%.6f z=%.6f", ErrUnstable, sx, sy, sz)
	}
	return nil
}

// acquireOffsets collects samples at ~100 Hz; the per-axis means become
// the proposed offsets.
func (e *Engine) acquireOffsets() (offX, offY, offZ float64, err error) {
	var sumX, sumY, sumZ float64
	for range AcquisitionSamples {
		f, err := e.drv.Read()
		if err != nil {
			return 0, 0, 0, fmt.Errorf("calib: acquisition read: %w", err)
		}
		sumX += f.AX
		sumY += f.AY
		sumZ += f.AZ
		e.sleep(acquisitionInterval)
	}
	n := float64(AcquisitionSamples)
	return sumX / n, sumY / n, sumZ / n, nil
}

func validateOffsets(offX, offY, offZ float64) error {
	if math.Abs(offX) > MaxXYOffset || math.Abs(offY) > MaxXYOffset {
		return fmt.Errorf("%w: x=%.4f y=%.4f (max ±%.1f)", ErrOffsetRange, offX, offY, MaxXYOffset)
	}
	if math.Abs(offZ) < MinZOffset || math.Abs(offZ) > MaxZOffset {
		return fmt.Errorf("%w: z=%.4f (want %.1f..%.1f)", ErrOffsetRange, offZ, MinZOffset, MaxZOffset)
	}
	// The raw Z mean equals the proposed Z offset, so the reading check
	// shares its bounds.
	if offZ < MinZOffset || offZ > MaxZOffset {
		return fmt.Errorf("%w: raw z mean %.4f", ErrZReading, offZ)
	}
	return nil
}

// driftAdvisory compares proposed offsets against the previous
// calibration. Large movement is a warning, not a failure.
func (e *Engine) driftAdvisory(prev *Calibration, offX, offY, offZ float64) {
	if prev == nil || !prev.Valid {
		return
	}
	dx := math.Abs(offX - prev.OffX)
	dy := math.Abs(offY - prev.OffY)
	dz := math.Abs(offZ - prev.OffZ)
	if dx > DriftAdvisoryDelta || dy > DriftAdvisoryDelta || dz > DriftAdvisoryDelta {
		e.log.Warn("large offset movement since previous calibration",
			"delta_x", dx, "delta_y", dy, "delta_z", dz, "advisory_g", DriftAdvisoryDelta)
	}
}

// postTest reads calibrated samples against the proposed offsets and
// returns their mean magnitude, which becomes the drift baseline.
func (e *Engine) postTest(cal *Calibration) (float64, error) {
	var sum float64
	for range PostTestSamples {
		f, err := e.drv.Read()
		if err != nil {
			return 0, fmt.Errorf("calib: post-test read: %w", err)
		}
		x := f.AX - cal.OffX
		y := f.AY - cal.OffY
		z := f.AZ - cal.OffZ
		sum += math.Sqrt(x*x + y*y + z*z)
		e.sleep(acquisitionInterval)
	}
	mean := sum / PostTestSamples
	if mean > MaxPostTestMagnitude {
		e.log.Warn("calibration rejected: residual magnitude too high",
			"mean_g", mean, "max_g", MaxPostTestMagnitude)
		return 0, fmt.Errorf("%w: mean %.4f g", ErrBaselineHigh, mean)
	}
	return mean, nil
}

func stdDev(vals []float64) float64 {
	var mean float64
	for _, v := range vals {
		mean += v
	}
	mean /= float64(len(vals))

	var sq float64
	for _, v := range vals {
		d := v - mean
		sq += d * d
	}
	return math.Sqrt(sq / float64(len(vals)))
}
