package seismic

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// recordSchema is the contract for everything leaving the process: the
// sink refuses to persist or publish a record that does not validate.
const recordSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["event_id", "detection", "classification", "measurements", "sensor_data", "algorithm", "metadata"],
  "properties": {
    "event_id": {"type": "string", "pattern": "^seismic_[0-9]{8}_[0-9]{6}_[0-9]{3}$"},
    "detection": {
      "type": "object",
      "required": ["timestamp", "datetime_iso", "ntp_validated", "boot_time_ms"],
      "properties": {
        "timestamp": {"type": "integer", "minimum": 1577836800},
        "datetime_iso": {"type": "string"},
        "ntp_validated": {"const": true},
        "boot_time_ms": {"type": "integer", "minimum": 0}
      }
    },
    "classification": {
      "type": "object",
      "required": ["type", "intensity_level", "richter_range", "confidence"],
      "properties": {
        "type": {"enum": ["Micro", "Minor", "Light", "Moderate", "Strong", "Major"]},
        "intensity_level": {"type": "integer", "minimum": 1, "maximum": 6},
        "richter_range": {"type": "string"},
        "confidence": {"type": "number", "minimum": 0, "maximum": 1}
      }
    },
    "measurements": {
      "type": "object",
      "required": ["pga_g", "richter_magnitude", "local_magnitude", "duration_ms", "peak_frequency_hz", "energy_joules"],
      "properties": {
        "pga_g": {"type": "number", "exclusiveMinimum": 0},
        "richter_magnitude": {"type": "number", "minimum": -2, "maximum": 10},
        "local_magnitude": {"type": "number", "minimum": -3, "maximum": 8},
        "duration_ms": {"type": "integer", "minimum": 100},
        "peak_frequency_hz": {"type": "number", "minimum": 1, "maximum": 30},
        "energy_joules": {"type": "number", "minimum": 0}
      }
    },
    "sensor_data": {
      "type": "object",
      "required": ["max_accel_x", "max_accel_y", "max_accel_z", "vector_magnitude", "calibration_valid", "calibration_age_hours"],
      "properties": {
        "max_accel_x": {"type": "number", "minimum": 0},
        "max_accel_y": {"type": "number", "minimum": 0},
        "max_accel_z": {"type": "number", "minimum": 0},
        "vector_magnitude": {"type": "number", "minimum": 0},
        "calibration_valid": {"type": "boolean"},
        "calibration_age_hours": {"type": "number"}
      }
    },
    "algorithm": {
      "type": "object",
      "required": ["method", "trigger_ratio", "sta_window_samples", "lta_window_samples", "background_noise"],
      "properties": {
        "method": {"const": "STA_LTA"},
        "trigger_ratio": {"type": "number", "minimum": 0},
        "sta_window_samples": {"type": "integer", "minimum": 1},
        "lta_window_samples": {"type": "integer", "minimum": 1},
        "background_noise": {"type": "number", "minimum": 0}
      }
    },
    "metadata": {
      "type": "object",
      "required": ["source", "processing_version", "sample_rate_hz", "filter_applied", "data_quality"],
      "properties": {
        "source": {"type": "string"},
        "processing_version": {"type": "string"},
        "sample_rate_hz": {"type": "integer", "minimum": 1},
        "filter_applied": {"type": "string"},
        "data_quality": {"enum": ["excellent", "good"]}
      }
    }
  }
}`

var compiledSchema = jsonschema.MustCompileString("seismic_record.json", recordSchema)

// ValidateJSON checks an encoded record against the schema.
func ValidateJSON(data []byte) error {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	var doc interface{}
	if err := decoder.Decode(&doc); err != nil {
		return fmt.Errorf("decode record: %w", err)
	}
	if err := compiledSchema.Validate(doc); err != nil {
		return fmt.Errorf("record schema: %w", err)
	}
	return nil
}
