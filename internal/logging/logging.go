// Package logging provides structured logging with slog for seismod.
//
// Features:
//   - JSON and text output formats
//   - Log levels (debug, info, warn, error)
//   - Output to stdout, stderr, or a rotating file
//   - Runtime-toggleable debug level for the MQTT "debug" command
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

// Config holds the logging configuration.
type Config struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string

	// Format is the output format: "text" or "json".
	Format string

	// Output specifies where logs are written: "stdout", "stderr", "file".
	Output string

	// FilePath is the log file path when Output is "file".
	FilePath string

	// MaxSizeMB is the maximum log file size before rotation.
	MaxSizeMB int64

	// MaxBackups is the number of rotated files to keep.
	MaxBackups int
}

// DefaultConfig returns the default logging configuration.
func DefaultConfig() Config {
	return Config{
		Level:      "info",
		Format:     "text",
		Output:     "stderr",
		MaxSizeMB:  50,
		MaxBackups: 3,
	}
}

// ParseLevel converts a level string into a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// Logger wraps an slog.Logger with a runtime-adjustable level and the
// underlying closer for file output.
type Logger struct {
	*slog.Logger
	level  *slog.LevelVar
	base   slog.Level
	debug  atomic.Bool
	closer io.Closer
}

// New builds a Logger from the configuration.
func New(cfg Config) (*Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	var w io.Writer
	var closer io.Closer
	switch cfg.Output {
	case "", "stderr":
		w = os.Stderr
	case "stdout":
		w = os.Stdout
	case "file":
		r, err := newRotator(cfg.FilePath, cfg.MaxSizeMB*1024*1024, cfg.MaxBackups)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		w = r
		closer = r
	default:
		return nil, fmt.Errorf("unknown log output %q", cfg.Output)
	}

	lv := new(slog.LevelVar)
	lv.Set(level)

	opts := &slog.HandlerOptions{Level: lv}
	var handler slog.Handler
	if strings.ToLower(cfg.Format) == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return &Logger{
		Logger: slog.New(handler),
		level:  lv,
		base:   level,
		closer: closer,
	}, nil
}

// Component returns a child logger tagged with the component name.
func (l *Logger) Component(name string) *slog.Logger {
	return l.With("component", name)
}

// SetDebug toggles debug-level output at runtime. Disabling restores the
// configured base level.
func (l *Logger) SetDebug(on bool) {
	l.debug.Store(on)
	if on {
		l.level.Set(slog.LevelDebug)
	} else {
		l.level.Set(l.base)
	}
}

// DebugEnabled reports whether runtime debug mode is active.
func (l *Logger) DebugEnabled() bool {
	return l.debug.Load()
}

// Close releases the underlying file, if any.
func (l *Logger) Close() error {
	if l.closer != nil {
		return l.closer.Close()
	}
	return nil
}
