package magnitude

import (
	"math"
	"testing"
)

func TestRichterClamps(t *testing.T) {
	if got := Richter(0); got != -2 {
		t.Errorf("Richter(0) = %g, want -2", got)
	}
	if got := Richter(-1); got != -2 {
		t.Errorf("Richter(-1) = %g, want -2", got)
	}
	if got := Richter(1e12); got != 10 {
		t.Errorf("Richter(huge) = %g, want 10", got)
	}
}

func TestRichterKnownValue(t *testing.T) {
	// 1 g -> log10(9806.65) ~ 3.9915
	got := Richter(1.0)
	want := math.Log10(GravityMMS2)
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("Richter(1) = %g, want %g", got, want)
	}
}

func TestRoundTrip(t *testing.T) {
	// richter(pga_from_richter(R)) ~ R within 1e-3 across [0, 8].
	for r := 0.0; r <= 8.0; r += 0.25 {
		back := Richter(PGAFromRichter(r))
		if math.Abs(back-r) > 1e-3 {
			t.Errorf("round trip R=%g -> %g", r, back)
		}
	}
}

func TestRoundTripClampedRegion(t *testing.T) {
	// Below the PGA floor the inversion saturates; the round trip must
	// still stay within the clamp bounds rather than diverge.
	back := Richter(PGAFromRichter(-2))
	if back < -2 || back > 10 {
		t.Errorf("clamped round trip out of range: %g", back)
	}
}

func TestEnergyJoules(t *testing.T) {
	if got := EnergyJoules(-3); got != 0 {
		t.Errorf("EnergyJoules(-3) = %g, want 0", got)
	}
	// M=0 -> 10^11.8
	got := EnergyJoules(0)
	want := math.Pow(10, 11.8)
	if math.Abs(got-want)/want > 1e-12 {
		t.Errorf("EnergyJoules(0) = %g, want %g", got, want)
	}
	// Energy grows by 10^1.5 per magnitude unit.
	ratio := EnergyJoules(5) / EnergyJoules(4)
	if math.Abs(ratio-math.Pow(10, 1.5)) > 1e-6 {
		t.Errorf("energy ratio per magnitude = %g", ratio)
	}
	if got := EnergyJoules(9); got != 1e20 {
		t.Errorf("EnergyJoules(9) = %g, want clamp 1e20", got)
	}
}

func TestPeakFrequency(t *testing.T) {
	cases := []struct {
		pga  float64
		want float64
	}{
		{0, 30},
		{0.1, 25},
		{0.58, 1}, // below floor
		{10, 1},
	}
	for _, tc := range cases {
		if got := PeakFrequency(tc.pga); math.Abs(got-tc.want) > 1e-9 {
			t.Errorf("PeakFrequency(%g) = %g, want %g", tc.pga, got, tc.want)
		}
	}
}

func TestSyntheticDurationTable(t *testing.T) {
	cases := []struct {
		richter float64
		want    int64
	}{
		{0, 100},
		{1, 300},
		{2, 1000},
		{3, 3000},
		{4, 5000},
		{5, 17500},
		{6, 30000},
		{6.5, 75000},
		{7, 120000},
		{8, 300000}, // clamped
	}
	for _, tc := range cases {
		if got := SyntheticDurationMs(tc.richter); got != tc.want {
			t.Errorf("SyntheticDurationMs(%g) = %d, want %d", tc.richter, got, tc.want)
		}
	}
}

func TestLocalMagnitudeMonotonic(t *testing.T) {
	prev := LocalMagnitude(1e-4)
	for _, pga := range []float64{1e-3, 1e-2, 1e-1, 1} {
		got := LocalMagnitude(pga)
		if got < prev {
			t.Errorf("LocalMagnitude not monotonic at %g: %g < %g", pga, got, prev)
		}
		prev = got
	}
	if got := LocalMagnitude(0); got != -3 {
		t.Errorf("LocalMagnitude(0) = %g, want -3", got)
	}
}
