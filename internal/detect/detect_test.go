package detect

import (
	"math"
	"math/rand"
	"testing"
)

func TestRingSumFidelity(t *testing.T) {
	// Windowed-sum fidelity: the maintained sum equals the raw element
	// sum at every step.
	r := newRing(25)
	rng := rand.New(rand.NewSource(7))
	for i := range 10000 {
		r.push(rng.Float64() * 0.01)
		if diff := math.Abs(r.Sum() - r.rawSum()); diff > 1e-9 {
			t.Fatalf("sum drifted at step %d: %g", i, diff)
		}
	}
}

func TestRingFullLatches(t *testing.T) {
	r := newRing(4)
	for i := range 3 {
		r.push(1)
		if r.Full() {
			t.Fatalf("ring full after %d pushes", i+1)
		}
	}
	r.push(1)
	if !r.Full() {
		t.Fatal("ring should latch full on wrap")
	}
	if r.Len() != 4 {
		t.Errorf("len = %d, want 4", r.Len())
	}
}

func feed(d *STALTA, magnitude float64, n int, nowMono *int64) {
	for range n {
		d.Update(magnitude, *nowMono)
		*nowMono += 2
	}
}

func TestTriggerFiresOnStep(t *testing.T) {
	cfg := DefaultConfig()
	cfg.STAWindow = 25
	cfg.LTAWindow = 500 // smaller LTA keeps the test fast
	cfg.Adaptive = false
	d := NewSTALTA(cfg)

	var now int64
	// Steady background for a full LTA window: no trigger.
	feed(d, 0.001, 600, &now)
	if d.Triggered() {
		t.Fatal("steady input must not trigger")
	}

	// Raise the level tenfold: within a few samples the short average leads
	// the long one and the ratio crosses 2.5.
	triggered := false
	for range 50 {
		d.Update(0.01, now)
		now += 2
		if d.Triggered() {
			triggered = true
			break
		}
	}
	if !triggered {
		t.Fatalf("step input did not trigger; ratio=%g", d.Ratio())
	}
}

func TestNoTriggerWhileWarmingUp(t *testing.T) {
	d := NewSTALTA(DefaultConfig())
	var now int64
	// Big magnitudes before the LTA window fills must not trigger.
	feed(d, 1.0, 100, &now)
	if d.Triggered() {
		t.Fatal("trigger before windows are full")
	}
	if d.Ratio() != 0 {
		t.Errorf("ratio during warm-up = %g, want 0", d.Ratio())
	}
}

func TestZeroLTANoTrigger(t *testing.T) {
	cfg := DefaultConfig()
	cfg.STAWindow = 5
	cfg.LTAWindow = 10
	cfg.Adaptive = false
	d := NewSTALTA(cfg)
	var now int64
	feed(d, 0, 20, &now)
	if d.Triggered() {
		t.Fatal("zero LTA must not trigger")
	}
}

func TestQuietStreamNeverTriggers(t *testing.T) {
	// Scenario: 10000 magnitudes from N(0, 1e-4). Expect zero triggers
	// and a background noise estimate within 3x of the input scale.
	cfg := DefaultConfig()
	d := NewSTALTA(cfg)
	rng := rand.New(rand.NewSource(42))

	var now int64
	triggers := 0
	for range 10000 {
		m := math.Abs(rng.NormFloat64() * 1e-4)
		d.Update(m, now)
		now += 2
		if d.Triggered() {
			triggers++
		}
	}
	if triggers != 0 {
		t.Errorf("quiet stream produced %d triggers", triggers)
	}

	// The adaptive noise floor is 0.001; a quiet stream converges to it.
	if noise := d.BackgroundNoise(); noise > 3*noiseFloor {
		t.Errorf("background noise = %g, want <= %g", noise, 3*noiseFloor)
	}
}

func TestAdaptiveThresholdsScaleWithNoise(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LTAWindow = 100
	d := NewSTALTA(cfg)

	// Noisy background at 2x the micro threshold.
	var now int64
	for range 200 {
		d.Update(0.002, now)
		now += 500 // march time forward so adaptation ticks fire
	}

	th := d.Thresholds()
	if th.Micro <= cfg.ThresholdMicro {
		t.Errorf("micro threshold did not adapt upward: %g", th.Micro)
	}
	if th.Micro > cfg.ThresholdMicro*3 {
		t.Errorf("micro threshold exceeds 3x clamp: %g", th.Micro)
	}
	if th.Light > cfg.ThresholdLight*3 || th.Strong > cfg.ThresholdStrong*3 {
		t.Errorf("light/strong thresholds exceed clamp: %+v", th)
	}
}

func TestAdaptiveDisabledKeepsBases(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Adaptive = false
	cfg.LTAWindow = 100
	d := NewSTALTA(cfg)

	var now int64
	for range 200 {
		d.Update(0.05, now)
		now += 500
	}
	th := d.Thresholds()
	if th.Micro != cfg.ThresholdMicro || th.Light != cfg.ThresholdLight || th.Strong != cfg.ThresholdStrong {
		t.Errorf("thresholds changed while adaptation disabled: %+v", th)
	}
}

func TestSpikeFilterWarmup(t *testing.T) {
	f := NewSpikeFilter()
	// Nothing is filtered until five samples have been observed.
	if f.IsSpike(100, DefaultThresholdMicro) {
		t.Fatal("filter active before warm-up")
	}
	for range 4 {
		f.Observe(0.001)
	}
	if f.WarmedUp() {
		t.Fatal("warmed up after 4 samples")
	}
	f.Observe(0.001)
	if !f.WarmedUp() {
		t.Fatal("not warmed up after 5 samples")
	}
}

func TestSpikeFilterRejectsImpulse(t *testing.T) {
	// Scenario: quiet background, then one isolated 0.5 g impulse.
	f := NewSpikeFilter()
	for range 10 {
		f.Observe(1e-4)
	}
	if !f.IsSpike(0.5, DefaultThresholdMicro) {
		t.Fatal("isolated impulse not rejected")
	}
	// The quiet samples themselves pass.
	if f.IsSpike(1.2e-4, DefaultThresholdMicro) {
		t.Fatal("background sample rejected")
	}
}

func TestSpikeFilterNeedsBothCriteria(t *testing.T) {
	f := NewSpikeFilter()
	for range 5 {
		f.Observe(0.01)
	}
	// 0.03 is above 2x micro but only 3x the median: passes.
	if f.IsSpike(0.03, DefaultThresholdMicro) {
		t.Error("sample above threshold but within median bound was rejected")
	}

	// Above 5x median but below 2x micro threshold: passes.
	g := NewSpikeFilter()
	for range 5 {
		g.Observe(1e-5)
	}
	if g.IsSpike(1e-4, DefaultThresholdMicro) {
		t.Error("sub-threshold sample was rejected")
	}
}

func TestSustainedShakeIsNotSpike(t *testing.T) {
	// A sustained elevated level raises the median with it, so continued
	// shaking is admitted.
	f := NewSpikeFilter()
	for range 5 {
		f.Observe(1e-4)
	}
	if !f.IsSpike(0.03, DefaultThresholdMicro) {
		t.Fatal("first elevated sample should look like a spike")
	}
	// The assembler admits nothing here, but once elevated samples are
	// observed the median tracks them.
	for range 5 {
		f.Observe(0.03)
	}
	if f.IsSpike(0.035, DefaultThresholdMicro) {
		t.Error("sustained shake sample rejected")
	}
}
