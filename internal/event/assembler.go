// Package event turns trigger intervals into enriched seismic records.
//
// The assembler is a sampler-domain state machine: idle until the trigger
// raises, accumulating while it holds, and emitting a record once the
// trigger clears after the minimum duration. Records are stamped with
// wall-clock time at emit; when the clock is untrusted the event is
// dropped and counted, never persisted.
package event

import (
	"log/slog"
	"math"

	"seismod/internal/clock"
	"seismod/internal/magnitude"
	"seismod/internal/metrics"
	"seismod/internal/seismic"
)

// DefaultMinEventDurationMs is the minimum duration for an event to emit.
const DefaultMinEventDurationMs = 100

// detectionConfidence is stamped into detector-produced records.
const detectionConfidence = 0.95

// Sample is one admitted calibrated sample as the assembler sees it.
type Sample struct {
	AX, AY, AZ float64
	Magnitude  float64
	TSMono     int64
}

// DetectorState is the trigger snapshot copied into emitted records.
type DetectorState struct {
	Ratio           float64
	STAWindow       int
	LTAWindow       int
	BackgroundNoise float64
}

// CalibrationState is the calibration snapshot copied into records.
type CalibrationState struct {
	Valid    bool
	AgeHours float64
}

// Config parameterizes the assembler.
type Config struct {
	// MinEventDurationMs gates emission; shorter trigger intervals wait.
	MinEventDurationMs int64

	// SampleRateHz is stamped into record metadata.
	SampleRateHz int

	// Source is the record metadata source string.
	Source string
}

// Assembler owns the single active event. It is not safe for concurrent
// use; only the sampler domain touches it.
type Assembler struct {
	cfg Config
	clk clock.Clock
	log *slog.Logger

	active    bool
	startMono int64
	lastMono  int64
	maxMag    float64
	sumMag    float64
	count     int

	maxAX, maxAY, maxAZ float64

	eventsDetected *metrics.Counter
	rejectedNoTime *metrics.Counter
}

// New creates an Assembler. The counters are the sampler-domain event
// counters from the shared metric set.
func New(cfg Config, clk clock.Clock, log *slog.Logger, detected, rejected *metrics.Counter) *Assembler {
	if cfg.MinEventDurationMs <= 0 {
		cfg.MinEventDurationMs = DefaultMinEventDurationMs
	}
	if cfg.Source == "" {
		cfg.Source = "seismograph_detection"
	}
	return &Assembler{
		cfg:            cfg,
		clk:            clk,
		log:            log,
		eventsDetected: detected,
		rejectedNoTime: rejected,
	}
}

// Active reports whether an event is currently being accumulated.
func (a *Assembler) Active() bool { return a.active }

// Step advances the state machine with one admitted sample. It returns a
// record when an event ends and survives validation, nil otherwise.
func (a *Assembler) Step(s Sample, triggered bool, det DetectorState, cal CalibrationState) *seismic.Record {
	switch {
	case triggered && !a.active:
		a.start(s)
	case triggered && a.active:
		a.accumulate(s)
	case !triggered && a.active:
		duration := s.TSMono - a.startMono
		if duration >= a.cfg.MinEventDurationMs {
			return a.end(duration, det, cal)
		}
		// Below the minimum duration the event stays open until either
		// the trigger re-raises or enough time passes.
	}
	return nil
}

func (a *Assembler) start(s Sample) {
	a.active = true
	a.startMono = s.TSMono
	a.lastMono = s.TSMono
	a.maxMag = s.Magnitude
	a.sumMag = s.Magnitude
	a.count = 1
	a.maxAX = math.Abs(s.AX)
	a.maxAY = math.Abs(s.AY)
	a.maxAZ = math.Abs(s.AZ)

	a.log.Info("seismic event started",
		"magnitude", s.Magnitude,
		"level", seismic.LevelFromRichter(magnitude.Richter(s.Magnitude)))
}

func (a *Assembler) accumulate(s Sample) {
	if s.Magnitude > a.maxMag {
		a.maxMag = s.Magnitude
	}
	a.sumMag += s.Magnitude
	a.count++
	a.lastMono = s.TSMono
	a.maxAX = math.Max(a.maxAX, math.Abs(s.AX))
	a.maxAY = math.Max(a.maxAY, math.Abs(s.AY))
	a.maxAZ = math.Max(a.maxAZ, math.Abs(s.AZ))
}

// end closes the active event and builds the record. Returns nil when the
// wall clock is untrusted; the event is counted and logged locally.
func (a *Assembler) end(durationMs int64, det DetectorState, cal CalibrationState) *seismic.Record {
	a.active = false
	a.eventsDetected.Inc()

	avg := a.sumMag / float64(a.count)
	richter := magnitude.Richter(a.maxMag)
	a.log.Info("seismic event ended",
		"duration_ms", durationMs,
		"max_g", a.maxMag,
		"avg_g", avg,
		"richter", richter)

	if !a.clk.Trusted() {
		a.rejectedNoTime.Inc()
		a.log.Warn("seismic event dropped: wall clock not synchronized",
			"duration_ms", durationMs, "max_g", a.maxMag)
		return nil
	}

	return a.buildRecord(a.maxMag, durationMs, richter, detectionConfidence, a.cfg.Source, det, cal)
}

// buildRecord assembles the full record. The caller has already verified
// clock trust.
func (a *Assembler) buildRecord(pga float64, durationMs int64, richter, confidence float64, source string, det DetectorState, cal CalibrationState) *seismic.Record {
	tsWall := a.clk.NowWall()
	bootMs := a.clk.NowMono()
	typ := seismic.TypeFromRichter(richter)

	quality := "excellent"
	if !cal.Valid {
		quality = "good"
	}

	return &seismic.Record{
		EventID: seismic.EventID(tsWall, bootMs),
		Detection: seismic.Detection{
			Timestamp:    tsWall,
			DatetimeISO:  a.clk.FormatISO(tsWall),
			NTPValidated: true,
			BootTimeMs:   bootMs,
		},
		Classification: seismic.Classification{
			Type:           typ,
			IntensityLevel: seismic.LevelFromRichter(richter),
			RichterRange:   seismic.RichterRange(typ),
			Confidence:     confidence,
		},
		Measurements: seismic.Measurements{
			PGAg:             pga,
			RichterMagnitude: richter,
			LocalMagnitude:   magnitude.LocalMagnitude(pga),
			DurationMs:       durationMs,
			PeakFrequencyHz:  magnitude.PeakFrequency(pga),
			EnergyJoules:     magnitude.EnergyJoules(richter),
		},
		SensorData: seismic.SensorData{
			MaxAccelX:           a.maxAX,
			MaxAccelY:           a.maxAY,
			MaxAccelZ:           a.maxAZ,
			VectorMagnitude:     pga,
			CalibrationValid:    cal.Valid,
			CalibrationAgeHours: cal.AgeHours,
		},
		Algorithm: seismic.Algorithm{
			Method:           seismic.DetectionMethod,
			TriggerRatio:     det.Ratio,
			STAWindowSamples: det.STAWindow,
			LTAWindowSamples: det.LTAWindow,
			BackgroundNoise:  det.BackgroundNoise,
		},
		Metadata: seismic.Metadata{
			Source:            source,
			ProcessingVersion: seismic.ProcessingVersion,
			SampleRateHz:      a.cfg.SampleRateHz,
			FilterApplied:     "spike_median",
			DataQuality:       quality,
		},
	}
}
