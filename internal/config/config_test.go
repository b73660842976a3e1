package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg == nil {
		t.Fatal("DefaultConfig returned nil")
	}

	if cfg.Sampling.RateHz != 500 {
		t.Errorf("expected rate 500, got %d", cfg.Sampling.RateHz)
	}
	if cfg.Detection.STAWindow != 25 || cfg.Detection.LTAWindow != 2500 {
		t.Errorf("expected STA/LTA windows 25/2500, got %d/%d",
			cfg.Detection.STAWindow, cfg.Detection.LTAWindow)
	}
	if cfg.Detection.TriggerRatio != 2.5 {
		t.Errorf("expected trigger ratio 2.5, got %g", cfg.Detection.TriggerRatio)
	}
	if !cfg.Detection.AdaptiveThresholds {
		t.Error("adaptive thresholds should default to enabled")
	}
	if cfg.Storage.RetentionDays != 90 {
		t.Errorf("expected 90 retention days, got %d", cfg.Storage.RetentionDays)
	}
	if len(cfg.NTP.Servers) != 3 {
		t.Errorf("expected 3 NTP servers, got %d", len(cfg.NTP.Servers))
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestSamplingInterval(t *testing.T) {
	cfg := DefaultConfig()
	if got := cfg.SamplingInterval().Milliseconds(); got != 2 {
		t.Errorf("500 Hz interval = %d ms, want 2", got)
	}
}

func TestLoadNonexistent(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("Load should fall back to defaults: %v", err)
	}
	if cfg.Sampling.RateHz != 500 {
		t.Errorf("expected default rate, got %d", cfg.Sampling.RateHz)
	}
}

func TestLoadValidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
version = 1

[station]
name = "basement-pi"

[sampling]
rate_hz = 250

[detection]
sta_window = 50
lta_window = 5000
trigger_ratio = 3.0
threshold_micro = 0.002
adaptive_thresholds = false

[mqtt]
enabled = true
server = "mqtt://broker.local:1883"
reconnect_min_sec = 5
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Station.Name != "basement-pi" {
		t.Errorf("station name = %q", cfg.Station.Name)
	}
	if cfg.Sampling.RateHz != 250 {
		t.Errorf("rate = %d, want 250", cfg.Sampling.RateHz)
	}
	if cfg.Detection.STAWindow != 50 {
		t.Errorf("sta_window = %d, want 50", cfg.Detection.STAWindow)
	}
	if cfg.Detection.AdaptiveThresholds {
		t.Error("adaptive_thresholds should be disabled")
	}
	// Keys absent from the file keep their defaults.
	if cfg.Detection.ThresholdLight != 0.005 {
		t.Errorf("threshold_light = %g, want default 0.005", cfg.Detection.ThresholdLight)
	}
	if !cfg.MQTT.Enabled || cfg.MQTT.Server != "mqtt://broker.local:1883" {
		t.Errorf("mqtt config not applied: %+v", cfg.MQTT)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"zero rate", func(c *Config) { c.Sampling.RateHz = 0 }, "rate_hz"},
		{"lta below sta", func(c *Config) { c.Detection.LTAWindow = 10 }, "lta_window"},
		{"ratio below one", func(c *Config) { c.Detection.TriggerRatio = 0.5 }, "trigger_ratio"},
		{"negative threshold", func(c *Config) { c.Detection.ThresholdMicro = -1 }, "thresholds"},
		{"drift order", func(c *Config) { c.Calibration.CritDriftPercent = 10 }, "drift"},
		{"fast reconnect", func(c *Config) { c.MQTT.Enabled = true; c.MQTT.ReconnectMinSec = 1 }, "reconnect"},
		{"no station", func(c *Config) { c.Station.Name = "" }, "station.name"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SEISMOD_STATION_NAME", "attic")
	t.Setenv("SEISMOD_LOG_LEVEL", "debug")

	cfg := DefaultConfig()
	cfg.ApplyEnvOverrides()

	if cfg.Station.Name != "attic" {
		t.Errorf("station name = %q, want attic", cfg.Station.Name)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("log level = %q, want debug", cfg.Logging.Level)
	}
}
