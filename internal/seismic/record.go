// Package seismic defines the durable event record and its classification
// rules.
//
// A Record is only ever produced with an NTP-validated wall timestamp;
// the assembler enforces this before construction and the sink validates
// the encoded form against the embedded JSON schema before it leaves the
// process.
package seismic

import (
	"fmt"
	"time"
)

// ProcessingVersion tags records with the pipeline revision that produced
// them.
const ProcessingVersion = "v1.0"

// DetectionMethod is the algorithm name stamped into records.
const DetectionMethod = "STA_LTA"

// EventType classifies an event by its Richter-scale proxy.
type EventType string

// Event types, weakest first.
const (
	TypeMicro    EventType = "Micro"
	TypeMinor    EventType = "Minor"
	TypeLight    EventType = "Light"
	TypeModerate EventType = "Moderate"
	TypeStrong   EventType = "Strong"
	TypeMajor    EventType = "Major"
)

// Record is the durable seismic event record, one JSON object per line in
// the per-day seismic files.
type Record struct {
	EventID string `json:"event_id"`

	Detection      Detection      `json:"detection"`
	Classification Classification `json:"classification"`
	Measurements   Measurements   `json:"measurements"`
	SensorData     SensorData     `json:"sensor_data"`
	Algorithm      Algorithm      `json:"algorithm"`
	Metadata       Metadata       `json:"metadata"`
}

// Detection carries the event's validated timestamps.
type Detection struct {
	Timestamp    int64  `json:"timestamp"`
	DatetimeISO  string `json:"datetime_iso"`
	NTPValidated bool   `json:"ntp_validated"`
	BootTimeMs   int64  `json:"boot_time_ms"`
}

// Classification carries the Richter-based event class.
type Classification struct {
	Type           EventType `json:"type"`
	IntensityLevel int       `json:"intensity_level"`
	RichterRange   string    `json:"richter_range"`
	Confidence     float64   `json:"confidence"`
}

// Measurements carries the derived scalar quantities.
type Measurements struct {
	PGAg             float64 `json:"pga_g"`
	RichterMagnitude float64 `json:"richter_magnitude"`
	LocalMagnitude   float64 `json:"local_magnitude"`
	DurationMs       int64   `json:"duration_ms"`
	PeakFrequencyHz  float64 `json:"peak_frequency_hz"`
	EnergyJoules     float64 `json:"energy_joules"`
}

// SensorData carries per-axis extremes and calibration provenance.
type SensorData struct {
	MaxAccelX           float64 `json:"max_accel_x"`
	MaxAccelY           float64 `json:"max_accel_y"`
	MaxAccelZ           float64 `json:"max_accel_z"`
	VectorMagnitude     float64 `json:"vector_magnitude"`
	CalibrationValid    bool    `json:"calibration_valid"`
	CalibrationAgeHours float64 `json:"calibration_age_hours"`
}

// Algorithm carries the detector state at emit time.
type Algorithm struct {
	Method           string  `json:"method"`
	TriggerRatio     float64 `json:"trigger_ratio"`
	STAWindowSamples int     `json:"sta_window_samples"`
	LTAWindowSamples int     `json:"lta_window_samples"`
	BackgroundNoise  float64 `json:"background_noise"`
}

// Metadata carries record provenance.
type Metadata struct {
	Source            string `json:"source"`
	ProcessingVersion string `json:"processing_version"`
	SampleRateHz      int    `json:"sample_rate_hz"`
	FilterApplied     string `json:"filter_applied"`
	DataQuality       string `json:"data_quality"`
}

// TypeFromRichter maps a Richter magnitude to its event type.
func TypeFromRichter(richter float64) EventType {
	switch {
	case richter >= 7:
		return TypeMajor
	case richter >= 6:
		return TypeStrong
	case richter >= 5:
		return TypeModerate
	case richter >= 4:
		return TypeLight
	case richter >= 2:
		return TypeMinor
	default:
		return TypeMicro
	}
}

// LevelFromRichter maps a Richter magnitude to the 1..6 intensity level.
func LevelFromRichter(richter float64) int {
	switch {
	case richter >= 7:
		return 6
	case richter >= 6:
		return 5
	case richter >= 5:
		return 4
	case richter >= 4:
		return 3
	case richter >= 2:
		return 2
	default:
		return 1
	}
}

// RichterRange returns the display range for an event type.
func RichterRange(t EventType) string {
	switch t {
	case TypeMajor:
		return "≥7.0"
	case TypeStrong:
		return "6.0-7.0"
	case TypeModerate:
		return "5.0-6.0"
	case TypeLight:
		return "4.0-5.0"
	case TypeMinor:
		return "2.0-4.0"
	default:
		return "<2.0"
	}
}

// EventID builds the record identifier from the validated wall timestamp
// and the boot-time milliseconds, e.g. "seismic_20260305_120000_421".
func EventID(tsWall int64, bootTimeMs int64) string {
	t := time.Unix(tsWall, 0).UTC()
	return fmt.Sprintf("seismic_%s_%03d", t.Format("20060102_150405"), bootTimeMs%1000)
}
