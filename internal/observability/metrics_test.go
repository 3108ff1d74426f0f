package observability

import (
	"testing"
	"time"
)

func TestMetricsCounters(t *testing.T) {
	m := NewMetrics()
	m.Inc(ReloadsStarted)
	m.Inc(ReloadsStarted)
	m.Inc(SendsHTTP)
	m.RecordRequest("/tickets", "GET", 200, time.Millisecond)
	m.RecordError("/tickets", "GET", "NOT_FOUND")

	if got := m.Count(ReloadsStarted); got != 2 {
		t.Fatalf("reloads_started = %d, want 2", got)
	}
	snap := m.Snapshot()
	if snap["requests"]["/tickets|GET|200"] != 1 {
		t.Errorf("request counter missing: %v", snap["requests"])
	}
	if snap["errors"]["/tickets|GET|NOT_FOUND"] != 1 {
		t.Errorf("error counter missing: %v", snap["errors"])
	}
	names := m.Names()
	if len(names) != 2 || names[0] != ReloadsStarted || names[1] != SendsHTTP {
		t.Errorf("names = %v", names)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.Inc(EventsReceived)
	m.RecordRequest("/x", "GET", 200, 0)
	if m.Count(EventsReceived) != 0 {
		t.Fatal("nil metrics should report zero")
	}
	if len(m.Snapshot()["counters"]) != 0 {
		t.Fatal("nil metrics snapshot should be empty")
	}
}
