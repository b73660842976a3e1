// Package magnitude derives scalar seismic quantities from peak ground
// acceleration.
//
// These are single-station approximations: Richter from PGA via the
// log10(mm/s²) proxy, local magnitude from an assumed 5 Hz dominant
// frequency, and Gutenberg-Richter energy. The peak-frequency estimate is
// an empirical fit kept for record-field compatibility; it is not a
// spectral measurement.
package magnitude

import "math"

// GravityMMS2 converts g to mm/s².
const GravityMMS2 = 9806.65

// LocalMagnitudeOffset is the station calibration offset applied to the
// magnitude scales.
const LocalMagnitudeOffset = 0.0

// dominantFrequencyHz is the assumed dominant frequency for the velocity
// approximation in LocalMagnitude.
const dominantFrequencyHz = 5.0

// Richter returns the Richter-scale proxy for a PGA in g, clamped to
// [-2, 10]. Non-positive input yields the clamp floor.
func Richter(pgaG float64) float64 {
	if pgaG <= 0 {
		return -2
	}
	m := math.Log10(pgaG*GravityMMS2) - LocalMagnitudeOffset
	return clamp(m, -2, 10)
}

// LocalMagnitude returns the single-station ML approximation for a PGA in
// g, clamped to [-3, 8].
func LocalMagnitude(pgaG float64) float64 {
	if pgaG <= 0 {
		return -3
	}
	velocity := pgaG / (2 * math.Pi * dominantFrequencyHz)
	ml := math.Log10(velocity*1e6) - 2 - LocalMagnitudeOffset
	return clamp(ml, -3, 8)
}

// EnergyJoules returns the Gutenberg-Richter energy for a Richter
// magnitude: log10(E) = 11.8 + 1.5 M, clamped to [1, 1e20]. Magnitudes
// below -2 yield 0.
func EnergyJoules(richter float64) float64 {
	if richter < -2 {
		return 0
	}
	e := math.Pow(10, 11.8+1.5*richter)
	return clamp(e, 1, 1e20)
}

// PeakFrequency returns the empirical dominant-frequency estimate in Hz
// for a PGA in g, clamped to [1, 30].
func PeakFrequency(pgaG float64) float64 {
	return clamp(30-50*pgaG, 1, 30)
}

// PGAFromRichter inverts Richter, returning PGA in g clamped to
// [1e-4, 10]. Used by the simulation path.
func PGAFromRichter(richter float64) float64 {
	r := clamp(richter, -2, 10)
	pga := math.Pow(10, r+LocalMagnitudeOffset) / GravityMMS2
	return clamp(pga, 1e-4, 10)
}

// SyntheticDurationMs returns the empirical event duration in
// milliseconds for a Richter magnitude, clamped to [100, 300000].
func SyntheticDurationMs(richter float64) int64 {
	var d float64
	switch {
	case richter < 2:
		d = 100 + richter*200
	case richter < 4:
		d = 1000 + (richter-2)*2000
	case richter < 6:
		d = 5000 + (richter-4)*12500
	case richter < 7:
		d = 30000 + (richter-6)*90000
	default:
		d = 120000 + (richter-7)*180000
	}
	return int64(clamp(d, 100, 300000))
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
