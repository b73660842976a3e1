package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"seismod/internal/seismic"
)

// Schema for the seismic record index. The JSONL day files remain the
// source of truth; this index serves queries and retention.
const schema = `
CREATE TABLE IF NOT EXISTS records (
    event_id     TEXT PRIMARY KEY,
    day          INTEGER NOT NULL,
    ts_wall      INTEGER NOT NULL,
    event_type   TEXT NOT NULL,
    level        INTEGER NOT NULL,
    richter      REAL NOT NULL,
    pga_g        REAL NOT NULL,
    duration_ms  INTEGER NOT NULL,
    data_quality TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_records_day ON records(day);
CREATE INDEX IF NOT EXISTS idx_records_ts ON records(ts_wall);
CREATE INDEX IF NOT EXISTS idx_records_level ON records(level, ts_wall);
`

// IndexEntry is one indexed record summary.
type IndexEntry struct {
	EventID     string
	Day         int64
	TSWall      int64
	Type        string
	Level       int
	Richter     float64
	PGAg        float64
	DurationMs  int64
	DataQuality string
}

// Index is the sqlite record index.
type Index struct {
	db *sql.DB
}

// OpenIndex opens or creates the index database.
func OpenIndex(path string) (*Index, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("store: create index directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("store: open index: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}
	return &Index{db: db}, nil
}

// Close closes the database.
func (x *Index) Close() error { return x.db.Close() }

// Ping verifies the database answers. Health check hook.
func (x *Index) Ping() error { return x.db.Ping() }

// Insert indexes one record. Replays of the same event_id are idempotent.
func (x *Index) Insert(rec *seismic.Record, day int64) error {
	_, err := x.db.Exec(`
		INSERT OR REPLACE INTO records
		(event_id, day, ts_wall, event_type, level, richter, pga_g, duration_ms, data_quality)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.EventID,
		day,
		rec.Detection.Timestamp,
		string(rec.Classification.Type),
		rec.Classification.IntensityLevel,
		rec.Measurements.RichterMagnitude,
		rec.Measurements.PGAg,
		rec.Measurements.DurationMs,
		rec.Metadata.DataQuality,
	)
	return err
}

// Recent returns up to limit entries, newest first.
func (x *Index) Recent(limit int) ([]IndexEntry, error) {
	rows, err := x.db.Query(`
		SELECT event_id, day, ts_wall, event_type, level, richter, pga_g, duration_ms, data_quality
		FROM records ORDER BY ts_wall DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntries(rows)
}

// ByDay returns all entries of one day, oldest first.
func (x *Index) ByDay(day int64) ([]IndexEntry, error) {
	rows, err := x.db.Query(`
		SELECT event_id, day, ts_wall, event_type, level, richter, pga_g, duration_ms, data_quality
		FROM records WHERE day = ? ORDER BY ts_wall ASC`, day)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntries(rows)
}

// CountSince returns the number of events at or after tsWall.
func (x *Index) CountSince(tsWall int64) (int64, error) {
	var n int64
	err := x.db.QueryRow(`SELECT COUNT(*) FROM records WHERE ts_wall >= ?`, tsWall).Scan(&n)
	return n, err
}

// DeleteOlderThan removes index rows for days before cutoffDay.
func (x *Index) DeleteOlderThan(cutoffDay int64) error {
	_, err := x.db.Exec(`DELETE FROM records WHERE day < ?`, cutoffDay)
	return err
}

func scanEntries(rows *sql.Rows) ([]IndexEntry, error) {
	var out []IndexEntry
	for rows.Next() {
		var e IndexEntry
		if err := rows.Scan(&e.EventID, &e.Day, &e.TSWall, &e.Type, &e.Level,
			&e.Richter, &e.PGAg, &e.DurationMs, &e.DataQuality); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
