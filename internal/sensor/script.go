package sensor

import (
	"math/rand"
	"sync"
)

// ScriptDriver serves frames from a caller-provided function. Used by
// tests. A nil function yields resting frames (gravity on Z).
type ScriptDriver struct {
	mu   sync.Mutex
	next func() (Frame, error)
}

// NewScriptDriver creates a ScriptDriver.
func NewScriptDriver(next func() (Frame, error)) *ScriptDriver {
	return &ScriptDriver{next: next}
}

// Begin always succeeds.
func (s *ScriptDriver) Begin() error { return nil }

// Read returns the next scripted frame.
func (s *ScriptDriver) Read() (Frame, error) {
	s.mu.Lock()
	next := s.next
	s.mu.Unlock()
	if next == nil {
		return Frame{AZ: 1.0}, nil
	}
	return next()
}

// SetScript replaces the frame source.
func (s *ScriptDriver) SetScript(next func() (Frame, error)) {
	s.mu.Lock()
	s.next = next
	s.mu.Unlock()
}

// NoiseDriver produces resting frames with gaussian noise on each axis.
// It stands in for real hardware in bench setups.
type NoiseDriver struct {
	Sigma float64
	rng   *rand.Rand
	mu    sync.Mutex
}

// NewNoiseDriver creates a NoiseDriver with the given per-axis sigma.
func NewNoiseDriver(sigma float64, seed int64) *NoiseDriver {
	return &NoiseDriver{Sigma: sigma, rng: rand.New(rand.NewSource(seed))}
}

// Begin always succeeds.
func (n *NoiseDriver) Begin() error { return nil }

// Read returns a resting frame plus noise.
func (n *NoiseDriver) Read() (Frame, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return Frame{
		AX: n.rng.NormFloat64() * n.Sigma,
		AY: n.rng.NormFloat64() * n.Sigma,
		AZ: 1.0 + n.rng.NormFloat64()*n.Sigma,
	}, nil
}
