package calib

// Drift monitoring defaults, relative to the post-calibration baseline.
const (
	DefaultWarnDriftPercent = 20.0
	DefaultCritDriftPercent = 50.0
)

// DriftLevel classifies a drift check result.
type DriftLevel int

const (
	// DriftNone: drift within the warning threshold.
	DriftNone DriftLevel = iota
	// DriftWarning: drift beyond the warning threshold.
	DriftWarning
	// DriftCritical: drift beyond the critical threshold; calibration is
	// invalidated.
	DriftCritical
)

// DriftResult reports one drift check.
type DriftResult struct {
	Level        DriftLevel
	DriftPercent float64
	AgedOut      bool
}

// Monitor periodically compares the detector's long-term average against
// the calibration baseline. Invalidation does not stop detection; it is
// reflected in record quality.
type Monitor struct {
	engine *Engine

	warnPercent float64
	critPercent float64

	intervalMs    int64
	lastCheckMono int64
}

// NewMonitor creates a drift monitor with the given thresholds (percent)
// and check interval in milliseconds.
func NewMonitor(engine *Engine, warnPercent, critPercent float64, intervalMs int64) *Monitor {
	if warnPercent <= 0 {
		warnPercent = DefaultWarnDriftPercent
	}
	if critPercent <= warnPercent {
		critPercent = DefaultCritDriftPercent
	}
	if intervalMs <= 0 {
		intervalMs = 5 * 60 * 1000
	}
	return &Monitor{
		engine:      engine,
		warnPercent: warnPercent,
		critPercent: critPercent,
		intervalMs:  intervalMs,
	}
}

// Check runs a drift check when due. currentLTA is the detector's live
// long-term average; nowMono is the sampler's monotonic time. Returns nil
// between checks or when there is nothing to compare.
func (m *Monitor) Check(currentLTA float64, nowMono int64) *DriftResult {
	if nowMono-m.lastCheckMono < m.intervalMs {
		return nil
	}
	m.lastCheckMono = nowMono

	cal := m.engine.Current()
	if !cal.Valid || cal.BaselineLTA <= 0 {
		return nil
	}

	driftPercent := (currentLTA - cal.BaselineLTA) / cal.BaselineLTA * 100
	abs := driftPercent
	if abs < 0 {
		abs = -abs
	}

	res := &DriftResult{
		DriftPercent: driftPercent,
		AgedOut:      float64(nowMono-cal.CreatedAtMono) > float64(MaxCalibrationAge.Milliseconds()),
	}

	switch {
	case abs > m.critPercent:
		res.Level = DriftCritical
		m.invalidate(cal)
		m.engine.log.Warn("calibration invalidated: baseline drift critical",
			"drift_percent", driftPercent, "baseline_g", cal.BaselineLTA, "current_g", currentLTA)
	case abs > m.warnPercent:
		res.Level = DriftWarning
		m.engine.log.Warn("calibration baseline drifting",
			"drift_percent", driftPercent, "baseline_g", cal.BaselineLTA, "current_g", currentLTA)
	default:
		res.Level = DriftNone
	}

	if res.AgedOut {
		m.engine.log.Info("calibration older than 24h", "age_hours", cal.AgeHours(nowMono))
	}
	return res
}

// invalidate swaps in a copy of the calibration with Valid cleared. The
// offsets keep applying; only the quality flag changes.
func (m *Monitor) invalidate(cal *Calibration) {
	next := *cal
	next.Valid = false
	m.engine.cur.Store(&next)
}
