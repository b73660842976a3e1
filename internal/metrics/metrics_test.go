package metrics

import (
	"strings"
	"testing"
)

func TestCounterAndGauge(t *testing.T) {
	r := NewRegistry("seismod")

	c := r.RegisterCounter("samples_total", "samples", nil)
	c.Inc()
	c.Add(4)
	if c.Value() != 5 {
		t.Errorf("counter = %d, want 5", c.Value())
	}

	g := r.RegisterGauge("queue_depth", "depth", nil)
	g.Set(10)
	g.Dec()
	if g.Value() != 9 {
		t.Errorf("gauge = %d, want 9", g.Value())
	}

	f := r.RegisterFloatGauge("noise_g", "noise", nil)
	f.Set(0.0015)
	if f.Value() != 0.0015 {
		t.Errorf("float gauge = %g, want 0.0015", f.Value())
	}
}

func TestRegisterDuplicateReturnsExisting(t *testing.T) {
	r := NewRegistry("seismod")
	a := r.RegisterCounter("events_total", "events", nil)
	a.Inc()
	b := r.RegisterCounter("events_total", "events", nil)
	if a != b {
		t.Fatal("duplicate registration should return the existing counter")
	}
	if b.Value() != 1 {
		t.Errorf("value = %d, want 1", b.Value())
	}
}

func TestWritePrometheus(t *testing.T) {
	r := NewRegistry("seismod")
	r.RegisterCounter("samples_total", "Total samples", nil).Add(42)
	r.RegisterGauge("clients_connected", "Clients", nil).Set(3)

	var sb strings.Builder
	if err := r.WritePrometheus(&sb); err != nil {
		t.Fatalf("WritePrometheus: %v", err)
	}
	out := sb.String()

	for _, want := range []string{
		"# TYPE seismod_samples_total counter",
		"seismod_samples_total 42",
		"# TYPE seismod_clients_connected gauge",
		"seismod_clients_connected 3",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestSeismodMetricsSnapshot(t *testing.T) {
	m := NewSeismodMetrics(nil)
	m.TotalSamples.Add(100)
	m.SpikesFiltered.Inc()
	m.LastMagnitude.Set(0.002)

	snap := m.Registry().Snapshot()
	if snap["seismod_samples_total"] != uint64(100) {
		t.Errorf("samples_total = %v, want 100", snap["seismod_samples_total"])
	}
	if snap["seismod_spikes_filtered_total"] != uint64(1) {
		t.Errorf("spikes_filtered_total = %v, want 1", snap["seismod_spikes_filtered_total"])
	}
}
