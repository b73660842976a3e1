// Package clock provides monotonic boot time and NTP-disciplined wall time
// for seismod.
//
// Event records carry wall-clock timestamps and are only valid when the
// wall clock is trusted: an external sync must have succeeded recently and
// the resulting time must be plausible. All components read time through
// this package; nothing else touches the system clock for event identity.
package clock

import (
	"sync"
	"time"
)

// minPlausibleWall is 2020-01-01T00:00:00Z. A wall-clock value at or below
// this is treated as an unset RTC regardless of sync state.
const minPlausibleWall = 1577836800

// DefaultSyncInterval is the expected cadence of external sync events.
// The wall clock stays trusted for twice this interval after a sync.
const DefaultSyncInterval = time.Hour

// Clock is the time source used by the detection pipeline and the sinks.
type Clock interface {
	// NowMono returns milliseconds since process start.
	NowMono() int64

	// NowWall returns seconds since the Unix epoch.
	NowWall() int64

	// Trusted reports whether NowWall may be used for event identity.
	Trusted() bool

	// FormatISO renders a wall timestamp as UTC ISO-8601.
	FormatISO(tsWall int64) string
}

// System is the production clock. Monotonic time comes from the runtime's
// monotonic reading relative to the clock's creation; wall time from the OS clock.
// Trust is granted by MarkSynced, typically called by the NTP Syncer.
type System struct {
	start time.Time

	mu           sync.RWMutex
	syncInterval time.Duration
	lastSyncMono int64 // ms; negative when never synced
}

// NewSystem creates a System clock with the given sync interval.
// A zero interval selects DefaultSyncInterval.
func NewSystem(syncInterval time.Duration) *System {
	if syncInterval <= 0 {
		syncInterval = DefaultSyncInterval
	}
	return &System{
		start:        time.Now(),
		syncInterval: syncInterval,
		lastSyncMono: -1,
	}
}

// NowMono returns milliseconds since the clock was created.
func (s *System) NowMono() int64 {
	return time.Since(s.start).Milliseconds()
}

// NowWall returns the current Unix time in seconds.
func (s *System) NowWall() int64 {
	return time.Now().Unix()
}

// MarkSynced records a successful external time synchronization.
func (s *System) MarkSynced() {
	now := s.NowMono()
	s.mu.Lock()
	s.lastSyncMono = now
	s.mu.Unlock()
}

// Trusted reports whether a sync succeeded within twice the sync interval
// and the wall clock reads a plausible value.
func (s *System) Trusted() bool {
	s.mu.RLock()
	last := s.lastSyncMono
	window := 2 * s.syncInterval.Milliseconds()
	s.mu.RUnlock()

	if last < 0 {
		return false
	}
	if s.NowMono()-last >= window {
		return false
	}
	return s.NowWall() > minPlausibleWall
}

// LastSyncMono returns the monotonic time of the last successful sync,
// or -1 when no sync has happened.
func (s *System) LastSyncMono() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSyncMono
}

// FormatISO renders tsWall as e.g. "2026-03-01T04:05:06Z".
func (s *System) FormatISO(tsWall int64) string {
	return FormatISO(tsWall)
}

// FormatISO renders a Unix-seconds timestamp as UTC ISO-8601.
func FormatISO(tsWall int64) string {
	return time.Unix(tsWall, 0).UTC().Format("2006-01-02T15:04:05Z")
}
