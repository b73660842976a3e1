package seismic

import (
	"encoding/json"
	"testing"
)

func TestTypeAndLevelFromRichter(t *testing.T) {
	cases := []struct {
		richter float64
		typ     EventType
		level   int
	}{
		{-1, TypeMicro, 1},
		{1.99, TypeMicro, 1},
		{2.0, TypeMinor, 2},
		{3.99, TypeMinor, 2},
		{4.0, TypeLight, 3},
		{5.0, TypeModerate, 4},
		{6.0, TypeStrong, 5},
		{7.0, TypeMajor, 6},
		{9.5, TypeMajor, 6},
	}
	for _, tc := range cases {
		if got := TypeFromRichter(tc.richter); got != tc.typ {
			t.Errorf("TypeFromRichter(%g) = %s, want %s", tc.richter, got, tc.typ)
		}
		if got := LevelFromRichter(tc.richter); got != tc.level {
			t.Errorf("LevelFromRichter(%g) = %d, want %d", tc.richter, got, tc.level)
		}
	}
}

func TestRichterRange(t *testing.T) {
	cases := map[EventType]string{
		TypeMicro:    "<2.0",
		TypeMinor:    "2.0-4.0",
		TypeLight:    "4.0-5.0",
		TypeModerate: "5.0-6.0",
		TypeStrong:   "6.0-7.0",
		TypeMajor:    "≥7.0",
	}
	for typ, want := range cases {
		if got := RichterRange(typ); got != want {
			t.Errorf("RichterRange(%s) = %q, want %q", typ, got, want)
		}
	}
}

func TestEventID(t *testing.T) {
	// 2020-01-01T00:00:00Z, boot offset 61421 ms.
	got := EventID(1577836800, 61421)
	want := "seismic_20200101_000000_421"
	if got != want {
		t.Errorf("EventID = %q, want %q", got, want)
	}
}

func validRecord() Record {
	return Record{
		EventID: EventID(1577836800, 421),
		Detection: Detection{
			Timestamp:    1577836800,
			DatetimeISO:  "2020-01-01T00:00:00Z",
			NTPValidated: true,
			BootTimeMs:   421,
		},
		Classification: Classification{
			Type:           TypeLight,
			IntensityLevel: 3,
			RichterRange:   RichterRange(TypeLight),
			Confidence:     0.95,
		},
		Measurements: Measurements{
			PGAg:             0.03,
			RichterMagnitude: 4.1,
			LocalMagnitude:   2.2,
			DurationMs:       1500,
			PeakFrequencyHz:  28.5,
			EnergyJoules:     1e18,
		},
		SensorData: SensorData{
			MaxAccelX:           0.02,
			MaxAccelY:           0.01,
			MaxAccelZ:           0.015,
			VectorMagnitude:     0.03,
			CalibrationValid:    true,
			CalibrationAgeHours: 1.5,
		},
		Algorithm: Algorithm{
			Method:           DetectionMethod,
			TriggerRatio:     3.2,
			STAWindowSamples: 25,
			LTAWindowSamples: 2500,
			BackgroundNoise:  0.001,
		},
		Metadata: Metadata{
			Source:            "seismograph_detection",
			ProcessingVersion: ProcessingVersion,
			SampleRateHz:      500,
			FilterApplied:     "spike_median",
			DataQuality:       "excellent",
		},
	}
}

func TestSchemaAcceptsValidRecord(t *testing.T) {
	data, err := json.Marshal(validRecord())
	if err != nil {
		t.Fatal(err)
	}
	if err := ValidateJSON(data); err != nil {
		t.Fatalf("valid record rejected: %v", err)
	}
}

func TestSchemaRejectsBadRecords(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Record)
	}{
		{"unvalidated time", func(r *Record) { r.Detection.NTPValidated = false }},
		{"pre-2020 timestamp", func(r *Record) { r.Detection.Timestamp = 1000000000 }},
		{"short duration", func(r *Record) { r.Measurements.DurationMs = 50 }},
		{"unknown type", func(r *Record) { r.Classification.Type = "Apocalyptic" }},
		{"level out of range", func(r *Record) { r.Classification.IntensityLevel = 7 }},
		{"bad quality", func(r *Record) { r.Metadata.DataQuality = "poor" }},
		{"wrong method", func(r *Record) { r.Algorithm.Method = "CUSUM" }},
		{"zero pga", func(r *Record) { r.Measurements.PGAg = 0 }},
		{"malformed id", func(r *Record) { r.EventID = "evt-1" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := validRecord()
			tc.mutate(&rec)
			data, err := json.Marshal(rec)
			if err != nil {
				t.Fatal(err)
			}
			if err := ValidateJSON(data); err == nil {
				t.Error("expected schema rejection")
			}
		})
	}
}
