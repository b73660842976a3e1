package config

import (
	"errors"
	"fmt"
)

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Station.Name == "" {
		errs = append(errs, errors.New("station.name must not be empty"))
	}

	switch c.Sensor.Driver {
	case "mpu6050", "noise":
	default:
		errs = append(errs, fmt.Errorf("sensor.driver %q unknown (want mpu6050 or noise)", c.Sensor.Driver))
	}

	if c.Sampling.RateHz < 1 || c.Sampling.RateHz > 2000 {
		errs = append(errs, fmt.Errorf("sampling.rate_hz %d out of range [1, 2000]", c.Sampling.RateHz))
	}
	if c.Sampling.SampleQueueSize < 1 {
		errs = append(errs, errors.New("sampling.sample_queue_size must be positive"))
	}
	if c.Sampling.EventQueueSize < 1 {
		errs = append(errs, errors.New("sampling.event_queue_size must be positive"))
	}

	if c.Detection.STAWindow < 2 {
		errs = append(errs, errors.New("detection.sta_window must be at least 2"))
	}
	if c.Detection.LTAWindow <= c.Detection.STAWindow {
		errs = append(errs, fmt.Errorf("detection.lta_window %d must exceed sta_window %d",
			c.Detection.LTAWindow, c.Detection.STAWindow))
	}
	if c.Detection.TriggerRatio <= 1 {
		errs = append(errs, fmt.Errorf("detection.trigger_ratio %g must exceed 1", c.Detection.TriggerRatio))
	}
	if c.Detection.ThresholdMicro <= 0 || c.Detection.ThresholdLight <= 0 || c.Detection.ThresholdStrong <= 0 {
		errs = append(errs, errors.New("detection thresholds must be positive"))
	}
	if c.Detection.MinEventDurationMs < 0 {
		errs = append(errs, errors.New("detection.min_event_duration_ms must not be negative"))
	}

	if c.Calibration.WarnDriftPercent <= 0 || c.Calibration.CritDriftPercent <= c.Calibration.WarnDriftPercent {
		errs = append(errs, errors.New("calibration drift thresholds must satisfy 0 < warn < crit"))
	}

	if c.Storage.RetentionDays < 1 {
		errs = append(errs, errors.New("storage.retention_days must be at least 1"))
	}

	if c.MQTT.Enabled {
		if c.MQTT.Server == "" {
			errs = append(errs, errors.New("mqtt.server must be set when mqtt is enabled"))
		}
		if c.MQTT.ReconnectMinSec < 5 {
			errs = append(errs, fmt.Errorf("mqtt.reconnect_min_sec %d must be at least 5", c.MQTT.ReconnectMinSec))
		}
	}

	if c.Web.Enabled && c.Web.Listen == "" {
		errs = append(errs, errors.New("web.listen must be set when web is enabled"))
	}

	if len(c.NTP.Servers) == 0 {
		errs = append(errs, errors.New("ntp.servers must not be empty"))
	}

	return errors.Join(errs...)
}
