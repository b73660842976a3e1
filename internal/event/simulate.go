package event

import (
	"errors"

	"seismod/internal/magnitude"
	"seismod/internal/seismic"
)

// ErrEventActive is returned when a simulation is requested while a real
// event is being accumulated.
var ErrEventActive = errors.New("event: detection in progress, simulation refused")

// Simulate synthesizes one event for the given Richter magnitude and runs
// it through the same emit gate as detected events. The PGA is derived by
// inverting the Richter formula and the duration comes from the empirical
// table, so a simulated record is indistinguishable from a detected one
// except for its metadata source. The caller supplies the live detector
// snapshot so the record carries the station's actual window sizes and
// background noise.
func (a *Assembler) Simulate(richter float64, det DetectorState, cal CalibrationState) (*seismic.Record, error) {
	if a.active {
		return nil, ErrEventActive
	}

	pga := magnitude.PGAFromRichter(richter)
	durationMs := magnitude.SyntheticDurationMs(richter)

	now := a.clk.NowMono()
	a.start(Sample{
		AX:        pga * 0.6,
		AY:        pga * 0.3,
		AZ:        pga * 0.1,
		Magnitude: pga * 0.8,
		TSMono:    now,
	})
	// A short burst of varied amplitudes approaching the peak.
	for i := 1; i < 10; i++ {
		a.accumulate(Sample{
			AX:        pga * 0.6,
			AY:        pga * 0.3,
			AZ:        pga * 0.1,
			Magnitude: pga * (0.8 + float64(i)*0.02),
			TSMono:    now + int64(i),
		})
	}
	a.accumulate(Sample{
		AX:        pga * 0.6,
		AY:        pga * 0.3,
		AZ:        pga * 0.1,
		Magnitude: pga,
		TSMono:    now + 10,
	})

	a.active = false
	a.eventsDetected.Inc()

	if !a.clk.Trusted() {
		a.rejectedNoTime.Inc()
		a.log.Warn("simulated event dropped: wall clock not synchronized", "richter", richter)
		return nil, nil
	}

	rec := a.buildRecord(pga, durationMs, magnitude.Richter(pga), detectionConfidence, "simulation", det, cal)
	a.log.Info("simulated seismic event",
		"richter", richter, "pga_g", pga, "duration_ms", durationMs)
	return rec, nil
}
