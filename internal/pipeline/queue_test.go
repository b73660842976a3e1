package pipeline

import (
	"testing"
	"time"

	"seismod/internal/metrics"
)

func TestQueueFIFO(t *testing.T) {
	q := NewQueue[SamplePacket](4, nil)
	for i := range 3 {
		if !q.TryEnqueue(SamplePacket{TSMono: int64(i)}) {
			t.Fatalf("enqueue %d failed", i)
		}
	}
	for i := range 3 {
		v, ok := q.Dequeue(time.Millisecond)
		if !ok {
			t.Fatalf("dequeue %d failed", i)
		}
		if v.TSMono != int64(i) {
			t.Errorf("order broken: got %d at position %d", v.TSMono, i)
		}
	}
}

func TestQueueDropsNewOnOverflow(t *testing.T) {
	reg := metrics.NewRegistry("test")
	drops := reg.RegisterCounter("drops", "drops", nil)
	q := NewQueue[SamplePacket](2, drops)

	q.TryEnqueue(SamplePacket{TSMono: 1})
	q.TryEnqueue(SamplePacket{TSMono: 2})
	if q.TryEnqueue(SamplePacket{TSMono: 3}) {
		t.Fatal("enqueue on a full queue should fail")
	}
	if drops.Value() != 1 {
		t.Errorf("drops = %d, want 1", drops.Value())
	}

	// The queued messages survive; the new one was dropped.
	v, _ := q.Dequeue(0)
	if v.TSMono != 1 {
		t.Errorf("head = %d, want 1 (drop-new semantics)", v.TSMono)
	}
}

func TestDequeueTimeout(t *testing.T) {
	q := NewQueue[EventPacket](1, nil)
	start := time.Now()
	_, ok := q.Dequeue(10 * time.Millisecond)
	if ok {
		t.Fatal("dequeue on empty queue should time out")
	}
	if elapsed := time.Since(start); elapsed < 5*time.Millisecond {
		t.Errorf("timed out too early: %v", elapsed)
	}
}

func TestDequeueNonBlocking(t *testing.T) {
	q := NewQueue[EventPacket](1, nil)
	if _, ok := q.Dequeue(0); ok {
		t.Fatal("non-blocking dequeue on empty queue returned a value")
	}
	q.TryEnqueue(EventPacket{Type: "Light"})
	v, ok := q.Dequeue(0)
	if !ok || v.Type != "Light" {
		t.Fatalf("non-blocking dequeue = %+v, %v", v, ok)
	}
}

func TestDropRateWindow(t *testing.T) {
	w := NewDropRateWindow(10000, 0.01)

	// 1000 clean enqueues across the window: no signal.
	now := int64(1)
	for range 1000 {
		if w.Observe(now, false) {
			t.Fatal("signal without drops")
		}
		now += 10
	}
	// Window rolls over at 10 s with 0 drops.
	if w.Observe(now+10001, false) {
		t.Fatal("signal on clean rollover")
	}

	// 5% drops: signal at window close.
	signaled := false
	now += 20000
	for i := range 1000 {
		dropped := i%20 == 0
		if w.Observe(now, dropped) {
			signaled = true
		}
		now += 11
	}
	if !signaled {
		t.Error("expected back-pressure signal at >1% drop rate")
	}
}
