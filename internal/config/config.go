// Package config handles configuration loading, validation, and management
// for seismod.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Version is the current configuration schema version.
const Version = 1

// Config holds the complete daemon configuration.
type Config struct {
	// Version is the configuration schema version.
	Version int `toml:"version"`

	// Station identifies this seismograph to the broker and in records.
	Station StationConfig `toml:"station"`

	// Sensor configuration for the accelerometer driver.
	Sensor SensorConfig `toml:"sensor"`

	// Sampling configuration for the sensor loop.
	Sampling SamplingConfig `toml:"sampling"`

	// Detection configuration for the STA/LTA trigger.
	Detection DetectionConfig `toml:"detection"`

	// Calibration configuration and drift thresholds.
	Calibration CalibrationConfig `toml:"calibration"`

	// Storage configuration for persistence.
	Storage StorageConfig `toml:"storage"`

	// MQTT broker configuration.
	MQTT MQTTConfig `toml:"mqtt"`

	// Web configuration for the push channel and HTTP endpoints.
	Web WebConfig `toml:"web"`

	// NTP configuration for wall-clock trust.
	NTP NTPConfig `toml:"ntp"`

	// Logging configuration.
	Logging LoggingConfig `toml:"logging"`

	// Telemetry configuration.
	Telemetry TelemetryConfig `toml:"telemetry"`
}

// StationConfig identifies the station.
type StationConfig struct {
	// Name is the station/client name used in broker topics.
	Name string `toml:"name"`

	// Source is the record metadata source string.
	Source string `toml:"source"`
}

// SensorConfig selects and parameterizes the accelerometer driver.
type SensorConfig struct {
	// Driver is "mpu6050" for hardware or "noise" for a synthetic
	// bench source.
	Driver string `toml:"driver"`

	// I2CDevice is the bus device node for the mpu6050 driver.
	I2CDevice string `toml:"i2c_device"`

	// I2CAddress is the device address on the bus.
	I2CAddress int `toml:"i2c_address"`

	// NoiseSigma is the per-axis sigma of the synthetic source in g.
	NoiseSigma float64 `toml:"noise_sigma"`
}

// SamplingConfig holds sensor loop configuration.
type SamplingConfig struct {
	// RateHz is the sampling rate in Hz.
	RateHz int `toml:"rate_hz"`

	// SampleQueueSize is the capacity of the sample queue.
	SampleQueueSize int `toml:"sample_queue_size"`

	// EventQueueSize is the capacity of the event queue.
	EventQueueSize int `toml:"event_queue_size"`

	// WatchdogTimeoutSec trips a fatal error after this many seconds
	// without sampler progress.
	WatchdogTimeoutSec int `toml:"watchdog_timeout_sec"`
}

// DetectionConfig holds STA/LTA trigger configuration.
type DetectionConfig struct {
	// STAWindow is the short-term average window in samples.
	STAWindow int `toml:"sta_window"`

	// LTAWindow is the long-term average window in samples.
	LTAWindow int `toml:"lta_window"`

	// TriggerRatio is the STA/LTA ratio that raises a trigger.
	TriggerRatio float64 `toml:"trigger_ratio"`

	// ThresholdMicro is the base micro threshold in g.
	ThresholdMicro float64 `toml:"threshold_micro"`

	// ThresholdLight is the base light threshold in g.
	ThresholdLight float64 `toml:"threshold_light"`

	// ThresholdStrong is the base strong threshold in g.
	ThresholdStrong float64 `toml:"threshold_strong"`

	// MinEventDurationMs is the minimum event duration to emit a record.
	MinEventDurationMs int `toml:"min_event_duration_ms"`

	// AdaptiveThresholds enables noise-adaptive threshold scaling.
	AdaptiveThresholds bool `toml:"adaptive_thresholds"`
}

// CalibrationConfig holds calibration and drift monitoring configuration.
type CalibrationConfig struct {
	// DriftCheckIntervalSec is the drift check cadence.
	DriftCheckIntervalSec int `toml:"drift_check_interval_sec"`

	// WarnDriftPercent emits a warning above this relative drift.
	WarnDriftPercent float64 `toml:"warn_drift_percent"`

	// CritDriftPercent invalidates calibration above this relative drift.
	CritDriftPercent float64 `toml:"crit_drift_percent"`
}

// StorageConfig holds persistence configuration.
type StorageConfig struct {
	// Dir is the root data directory (seismic/, events/, system/, data/).
	Dir string `toml:"dir"`

	// IndexPath is the sqlite event index path.
	IndexPath string `toml:"index_path"`

	// RetentionDays is how long day files are kept.
	RetentionDays int `toml:"retention_days"`

	// SummaryIntervalSec throttles rolling sample summaries.
	SummaryIntervalSec int `toml:"summary_interval_sec"`
}

// MQTTConfig holds broker configuration.
type MQTTConfig struct {
	// Enabled determines whether the broker adapter starts.
	Enabled bool `toml:"enabled"`

	// Server is the broker URL, e.g. "mqtt://192.168.0.10:1883".
	Server string `toml:"server"`

	// Username and Password authenticate against the broker.
	Username string `toml:"username"`
	Password string `toml:"password"`

	// DataIntervalSec is the tele/<name>/data cadence.
	DataIntervalSec int `toml:"data_interval_sec"`

	// StatusIntervalSec is the tele/<name>/status cadence.
	StatusIntervalSec int `toml:"status_interval_sec"`

	// HeartbeatIntervalSec is the heartbeat cadence.
	HeartbeatIntervalSec int `toml:"heartbeat_interval_sec"`

	// ReconnectMinSec is the minimum spacing between reconnect attempts.
	ReconnectMinSec int `toml:"reconnect_min_sec"`
}

// WebConfig holds push channel and HTTP configuration.
type WebConfig struct {
	// Enabled determines whether the web server starts.
	Enabled bool `toml:"enabled"`

	// Listen is the HTTP listen address.
	Listen string `toml:"listen"`

	// BroadcastIntervalMs is not read by the daemon; the hub's base sensor
	// broadcast interval is a fixed 100 ms.
	BroadcastIntervalMs int `toml:"broadcast_interval_ms"`

	// DefaultClientRateHz is the per-client starting broadcast rate.
	DefaultClientRateHz int `toml:"default_client_rate_hz"`
}

// NTPConfig holds wall-clock synchronization configuration.
type NTPConfig struct {
	// Servers are tried in order each sync cycle.
	Servers []string `toml:"servers"`

	// SyncIntervalSec is the sync cadence; trust lasts twice this.
	SyncIntervalSec int `toml:"sync_interval_sec"`

	// TimeoutSec bounds each per-server query.
	TimeoutSec int `toml:"timeout_sec"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `toml:"level"`

	// Format is the log format: "text" or "json".
	Format string `toml:"format"`

	// Output is the log output: "stdout", "stderr", or "file".
	Output string `toml:"output"`

	// FilePath is the log file path when Output is "file".
	FilePath string `toml:"file_path"`

	// MaxSizeMB is the maximum log file size before rotation.
	MaxSizeMB int64 `toml:"max_size_mb"`

	// MaxBackups is the number of rotated files to keep.
	MaxBackups int `toml:"max_backups"`
}

// TelemetryConfig holds status snapshot configuration.
type TelemetryConfig struct {
	// SnapshotIntervalSec is the health snapshot cadence.
	SnapshotIntervalSec int `toml:"snapshot_interval_sec"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	dir := SeismodDir()

	return &Config{
		Version: Version,
		Station: StationConfig{
			Name:   "seismograph",
			Source: "seismograph_detection",
		},
		Sensor: SensorConfig{
			Driver:     "mpu6050",
			I2CDevice:  "/dev/i2c-1",
			I2CAddress: 0x68,
			NoiseSigma: 1e-4,
		},
		Sampling: SamplingConfig{
			RateHz:             500,
			SampleQueueSize:    50,
			EventQueueSize:     20,
			WatchdogTimeoutSec: 30,
		},
		Detection: DetectionConfig{
			STAWindow:          25,
			LTAWindow:          2500,
			TriggerRatio:       2.5,
			ThresholdMicro:     0.001,
			ThresholdLight:     0.005,
			ThresholdStrong:    0.02,
			MinEventDurationMs: 100,
			AdaptiveThresholds: true,
		},
		Calibration: CalibrationConfig{
			DriftCheckIntervalSec: 300,
			WarnDriftPercent:      20,
			CritDriftPercent:      50,
		},
		Storage: StorageConfig{
			Dir:                filepath.Join(dir, "data"),
			IndexPath:          filepath.Join(dir, "events.db"),
			RetentionDays:      90,
			SummaryIntervalSec: 1,
		},
		MQTT: MQTTConfig{
			Enabled:              false,
			Server:               "mqtt://127.0.0.1:1883",
			DataIntervalSec:      300,
			StatusIntervalSec:    600,
			HeartbeatIntervalSec: 1800,
			ReconnectMinSec:      5,
		},
		Web: WebConfig{
			Enabled:             true,
			Listen:              ":8090",
			BroadcastIntervalMs: 100,
			DefaultClientRateHz: 10,
		},
		NTP: NTPConfig{
			Servers:         []string{"de.pool.ntp.org", "pool.ntp.org", "time.nist.gov"},
			SyncIntervalSec: 3600,
			TimeoutSec:      10,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "file",
			FilePath:   filepath.Join(dir, "seismod.log"),
			MaxSizeMB:  50,
			MaxBackups: 3,
		},
		Telemetry: TelemetryConfig{
			SnapshotIntervalSec: 5,
		},
	}
}

// SeismodDir returns the base seismod directory, honoring the
// SEISMOD_DATA_DIR override.
func SeismodDir() string {
	if envDir := os.Getenv("SEISMOD_DATA_DIR"); envDir != "" {
		return envDir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".seismod"
	}
	return filepath.Join(home, ".seismod")
}

// ConfigPath returns the default configuration file path.
func ConfigPath() string {
	return filepath.Join(SeismodDir(), "config.toml")
}

// Load reads configuration from the specified path. A missing file yields
// the defaults; an empty path selects ConfigPath().
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		path = ConfigPath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.ApplyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	if _, err := toml.Decode(string(data), cfg); err != nil {
		return nil, fmt.Errorf("decode TOML: %w", err)
	}

	cfg.ApplyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvOverrides applies SEISMOD_* environment overrides.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("SEISMOD_STATION_NAME"); v != "" {
		c.Station.Name = v
	}
	if v := os.Getenv("SEISMOD_STORAGE_DIR"); v != "" {
		c.Storage.Dir = v
	}
	if v := os.Getenv("SEISMOD_MQTT_SERVER"); v != "" {
		c.MQTT.Server = v
	}
	if v := os.Getenv("SEISMOD_MQTT_USERNAME"); v != "" {
		c.MQTT.Username = v
	}
	if v := os.Getenv("SEISMOD_MQTT_PASSWORD"); v != "" {
		c.MQTT.Password = v
	}
	if v := os.Getenv("SEISMOD_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("SEISMOD_WEB_LISTEN"); v != "" {
		c.Web.Listen = v
	}
}

// EnsureDirectories creates the directories the daemon writes to.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.Storage.Dir,
		filepath.Dir(c.Storage.IndexPath),
		filepath.Dir(c.Logging.FilePath),
	}
	for _, dir := range dirs {
		if dir == "" || dir == "." {
			continue
		}
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// Convenience duration accessors.

// SamplingInterval returns the period between samples.
func (c *Config) SamplingInterval() time.Duration {
	return time.Second / time.Duration(c.Sampling.RateHz)
}

// DriftCheckInterval returns the drift check cadence.
func (c *Config) DriftCheckInterval() time.Duration {
	return time.Duration(c.Calibration.DriftCheckIntervalSec) * time.Second
}

// NTPSyncInterval returns the NTP sync cadence.
func (c *Config) NTPSyncInterval() time.Duration {
	return time.Duration(c.NTP.SyncIntervalSec) * time.Second
}
