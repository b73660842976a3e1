package calib

import (
	"errors"
	"log/slog"
	"math"
	"testing"
	"time"

	"seismod/internal/clock"
	"seismod/internal/sensor"
)

func noSleep(time.Duration) {}

func restDriver(sigma float64, seed int64) sensor.Driver {
	return sensor.NewNoiseDriver(sigma, seed)
}

func newEngine(t *testing.T, drv sensor.Driver) (*Engine, *clock.Manual) {
	t.Helper()
	clk := clock.NewManual(1760000000, true)
	e := NewEngine(drv, clk, slog.New(slog.DiscardHandler))
	e.SetSleep(noSleep)
	return e, clk
}

func TestCalibrateLevelSensor(t *testing.T) {
	e, _ := newEngine(t, restDriver(1e-4, 1))

	cal, err := e.Calibrate()
	if err != nil {
		t.Fatalf("Calibrate: %v", err)
	}
	if !cal.Valid {
		t.Fatal("calibration should be valid")
	}
	if math.Abs(cal.OffX) > 0.01 || math.Abs(cal.OffY) > 0.01 {
		t.Errorf("x/y offsets too large: %g, %g", cal.OffX, cal.OffY)
	}
	if math.Abs(cal.OffZ-1.0) > 0.01 {
		t.Errorf("z offset = %g, want ~1.0 (raw gravity mean)", cal.OffZ)
	}
	if cal.BaselineLTA > MaxPostTestMagnitude {
		t.Errorf("baseline = %g, want <= %g", cal.BaselineLTA, MaxPostTestMagnitude)
	}

	// Calibrated Z reads 0 g at rest: the Z offset policy.
	_, _, az, mag := e.Apply(sensor.Frame{AZ: 1.0})
	if math.Abs(az) > 0.01 {
		t.Errorf("calibrated resting Z = %g, want ~0", az)
	}
	if mag > 0.05 {
		t.Errorf("calibrated resting magnitude = %g", mag)
	}
}

func TestCalibrateIdempotent(t *testing.T) {
	// Two calibrations on the same stationary input differ by <= 1e-3 g
	// per axis.
	e, _ := newEngine(t, restDriver(1e-5, 7))

	first, err := e.Calibrate()
	if err != nil {
		t.Fatal(err)
	}
	second, err := e.Calibrate()
	if err != nil {
		t.Fatal(err)
	}

	if d := math.Abs(first.OffX - second.OffX); d > 1e-3 {
		t.Errorf("x offset moved by %g", d)
	}
	if d := math.Abs(first.OffY - second.OffY); d > 1e-3 {
		t.Errorf("y offset moved by %g", d)
	}
	if d := math.Abs(first.OffZ - second.OffZ); d > 1e-3 {
		t.Errorf("z offset moved by %g", d)
	}
}

func TestCalibrateRejectsUnstableSensor(t *testing.T) {
	e, _ := newEngine(t, restDriver(0.05, 3)) // heavy vibration

	_, err := e.Calibrate()
	if !errors.Is(err, ErrUnstable) {
		t.Fatalf("err = %v, want ErrUnstable", err)
	}
	if e.Current().Valid {
		t.Error("current calibration should remain invalid")
	}
}

func TestCalibrateRejectsTiltedSensor(t *testing.T) {
	// Gravity split across X and Z: X offset exceeds the 0.5 g bound.
	drv := sensor.NewScriptDriver(func() (sensor.Frame, error) {
		return sensor.Frame{AX: 0.7, AZ: 0.7}, nil
	})
	e, _ := newEngine(t, drv)

	_, err := e.Calibrate()
	if !errors.Is(err, ErrOffsetRange) {
		t.Fatalf("err = %v, want ErrOffsetRange", err)
	}
}

func TestCalibrateRejectsMissingGravity(t *testing.T) {
	// Free-fall-like Z reading: raw Z mean below 0.8 g.
	drv := sensor.NewScriptDriver(func() (sensor.Frame, error) {
		return sensor.Frame{AZ: 0.3}, nil
	})
	e, _ := newEngine(t, drv)

	_, err := e.Calibrate()
	if !errors.Is(err, ErrOffsetRange) {
		t.Fatalf("err = %v, want ErrOffsetRange", err)
	}
}

func TestFailedCalibrationKeepsPrevious(t *testing.T) {
	e, _ := newEngine(t, restDriver(1e-4, 5))
	first, err := e.Calibrate()
	if err != nil {
		t.Fatal(err)
	}

	// Swap in an unstable source; recalibration fails, previous stays.
	shaky := sensor.NewNoiseDriver(0.05, 9)
	e.drv = shaky
	if _, err := e.Calibrate(); err == nil {
		t.Fatal("expected rejection")
	}
	if got := e.Current(); got != first {
		t.Error("previous calibration not kept in force")
	}
}

func TestDriftMonitor(t *testing.T) {
	e, clk := newEngine(t, restDriver(1e-4, 11))
	if _, err := e.Calibrate(); err != nil {
		t.Fatal(err)
	}
	baseline := e.Current().BaselineLTA
	mon := NewMonitor(e, 20, 50, 1000)

	// First check inside the interval: skipped.
	if res := mon.Check(baseline, clk.NowMono()); res != nil {
		t.Fatal("check fired before the interval elapsed")
	}

	// +30% drift: warning, calibration stays valid.
	clk.Advance(2000)
	res := mon.Check(baseline*1.3, clk.NowMono())
	if res == nil || res.Level != DriftWarning {
		t.Fatalf("result = %+v, want warning", res)
	}
	if !e.Current().Valid {
		t.Fatal("warning must not invalidate calibration")
	}

	// +60% drift: critical, calibration invalidated.
	clk.Advance(2000)
	res = mon.Check(baseline*1.6, clk.NowMono())
	if res == nil || res.Level != DriftCritical {
		t.Fatalf("result = %+v, want critical", res)
	}
	if e.Current().Valid {
		t.Fatal("critical drift must invalidate calibration")
	}

	// Offsets keep applying after invalidation.
	cal := e.Current()
	if cal.OffZ == 0 {
		t.Error("offsets lost on invalidation")
	}
}

func TestDriftMonitorNegativeDrift(t *testing.T) {
	e, clk := newEngine(t, restDriver(1e-4, 13))
	if _, err := e.Calibrate(); err != nil {
		t.Fatal(err)
	}
	baseline := e.Current().BaselineLTA
	mon := NewMonitor(e, 20, 50, 1000)

	clk.Advance(2000)
	res := mon.Check(baseline*0.3, clk.NowMono()) // -70%
	if res == nil || res.Level != DriftCritical {
		t.Fatalf("result = %+v, want critical for negative drift", res)
	}
}
