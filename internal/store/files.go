// Package store persists seismograph output: append-only per-day
// JSON-line files for records and summaries, plus a sqlite index over the
// seismic records for queries and retention.
//
// File layout under the data directory:
//
//	seismic/<day>.json   full seismic records, one per line
//	events/<day>.json    legacy flat events
//	system/<day>.json    system events (may carry boot-relative time)
//	data/<day>.json      rolling sample summaries
//
// The day index is ts_wall/86400 for wall-stamped lines and boot-days for
// system lines written before the clock is trusted.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"seismod/internal/seismic"
)

// Subdirectories of the data root.
const (
	seismicDir = "seismic"
	eventsDir  = "events"
	systemDir  = "system"
	dataDir    = "data"
)

// Store owns the data directory and the event index.
type Store struct {
	root  string
	index *Index
}

// Open prepares the directory layout and the sqlite index. indexPath may
// be empty to run without an index (tests, read-only tools).
func Open(root, indexPath string) (*Store, error) {
	for _, sub := range []string{seismicDir, eventsDir, systemDir, dataDir} {
		if err := os.MkdirAll(filepath.Join(root, sub), 0o750); err != nil {
			return nil, fmt.Errorf("store: create %s: %w", sub, err)
		}
	}

	s := &Store{root: root}
	if indexPath != "" {
		idx, err := OpenIndex(indexPath)
		if err != nil {
			return nil, err
		}
		s.index = idx
	}
	return s, nil
}

// Close releases the index.
func (s *Store) Close() error {
	if s.index != nil {
		return s.index.Close()
	}
	return nil
}

// Index returns the sqlite index, nil when opened without one.
func (s *Store) Index() *Index { return s.index }

// DayIndex converts a wall timestamp in seconds to its day number.
func DayIndex(tsWall int64) int64 {
	return tsWall / 86400
}

// AppendSeismic appends a full record to its day file and indexes it.
func (s *Store) AppendSeismic(rec *seismic.Record) error {
	day := DayIndex(rec.Detection.Timestamp)
	if err := s.appendLine(seismicDir, day, rec); err != nil {
		return err
	}
	if s.index != nil {
		if err := s.index.Insert(rec, day); err != nil {
			return fmt.Errorf("store: index record: %w", err)
		}
	}
	return nil
}

// FlatEvent is the legacy per-event line.
type FlatEvent struct {
	Timestamp   int64   `json:"timestamp"`
	Type        string  `json:"type"`
	Description string  `json:"description"`
	Magnitude   float64 `json:"magnitude"`
	NTPValid    bool    `json:"ntp_valid"`
}

// AppendEvent appends a legacy flat event keyed by its wall day.
func (s *Store) AppendEvent(ev FlatEvent) error {
	return s.appendLine(eventsDir, DayIndex(ev.Timestamp), ev)
}

// SystemEvent is one system log line. Timestamp may be boot-relative when
// the wall clock is untrusted, flagged by NTPValid.
type SystemEvent struct {
	Timestamp   int64   `json:"timestamp"`
	Type        string  `json:"type"`
	Description string  `json:"description"`
	Value       float64 `json:"value"`
	NTPValid    bool    `json:"ntp_valid"`
}

// AppendSystem appends a system event. day is the caller's day index:
// wall-based when trusted, boot-based otherwise.
func (s *Store) AppendSystem(ev SystemEvent, day int64) error {
	return s.appendLine(systemDir, day, ev)
}

// SampleSummary is one rolling sensor summary line.
type SampleSummary struct {
	Timestamp    int64   `json:"timestamp"`
	AccelX       float64 `json:"accel_x"`
	AccelY       float64 `json:"accel_y"`
	AccelZ       float64 `json:"accel_z"`
	Magnitude    float64 `json:"magnitude"`
	MaxMagnitude float64 `json:"max_magnitude"`
	Samples      int     `json:"samples"`
}

// AppendSummary appends a sample summary keyed by its wall day.
func (s *Store) AppendSummary(sum SampleSummary) error {
	return s.appendLine(dataDir, DayIndex(sum.Timestamp), sum)
}

func (s *Store) appendLine(sub string, day int64, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("store: encode: %w", err)
	}

	path := filepath.Join(s.root, sub, fmt.Sprintf("%d.json", day))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
	if err != nil {
		return fmt.Errorf("store: open %s: %w", path, err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("store: write %s: %w", path, err)
	}
	return nil
}

// ReadSeismicDay returns all records of one day file.
func (s *Store) ReadSeismicDay(day int64) ([]seismic.Record, error) {
	path := filepath.Join(s.root, seismicDir, fmt.Sprintf("%d.json", day))
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var out []seismic.Record
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		if line == "" {
			continue
		}
		var rec seismic.Record
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			return nil, fmt.Errorf("store: day %d: %w", day, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// Cleanup deletes day files older than retentionDays relative to the
// given current day, across all subdirectories, and prunes the index.
// Returns the number of files removed.
func (s *Store) Cleanup(currentDay int64, retentionDays int) (int, error) {
	cutoff := currentDay - int64(retentionDays)
	removed := 0

	for _, sub := range []string{seismicDir, eventsDir, systemDir, dataDir} {
		dir := filepath.Join(s.root, sub)
		entries, err := os.ReadDir(dir)
		if err != nil {
			return removed, err
		}
		for _, e := range entries {
			name := strings.TrimSuffix(e.Name(), ".json")
			day, err := strconv.ParseInt(name, 10, 64)
			if err != nil {
				continue
			}
			if day < cutoff {
				if err := os.Remove(filepath.Join(dir, e.Name())); err != nil {
					return removed, err
				}
				removed++
			}
		}
	}

	if s.index != nil {
		if err := s.index.DeleteOlderThan(cutoff); err != nil {
			return removed, err
		}
	}
	return removed, nil
}

// Usage reports total bytes under the data root.
func (s *Store) Usage() (int64, error) {
	var total int64
	err := filepath.Walk(s.root, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			total += info.Size()
		}
		return nil
	})
	return total, err
}
