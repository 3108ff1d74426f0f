package observability

import (
	"sort"
	"strconv"
	"sync"
	"time"
)

// Counter names used by the sync client.
const (
	EventsReceived   = "events_received"
	EventsDropped    = "events_dropped"
	ReloadsStarted   = "reloads_started"
	ReloadsApplied   = "reloads_applied"
	ReloadsDiscarded = "reloads_discarded"
	ReloadsFailed    = "reloads_failed"
	SendsChannel     = "sends_channel"
	SendsHTTP        = "sends_http"
	SendsFailed      = "sends_failed"
	SendsRejected    = "sends_rejected"
	Reconnects       = "reconnects"
)

// Counter names used by the relay.
const (
	RelayConnections = "relay_connections"
	RelayMessages    = "relay_messages"
	RelayRejected    = "relay_rejected"
)

// Metrics provides basic in-memory counters. A nil *Metrics is a no-op.
type Metrics struct {
	mu           sync.Mutex
	counters     map[string]int64
	requestCount map[string]int64
	errorCount   map[string]int64
}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{
		counters:     make(map[string]int64),
		requestCount: make(map[string]int64),
		errorCount:   make(map[string]int64),
	}
}

// Inc increments a named counter.
func (m *Metrics) Inc(name string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[name]++
}

// Count returns the current value of a named counter.
func (m *Metrics) Count(name string) int64 {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters[name]
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	key := pathKey(path, method, status)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount[key]++
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	key := path + "|" + method + "|" + code
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorCount[key]++
}

// Snapshot copies every counter into a flat map, keyed by kind.
func (m *Metrics) Snapshot() map[string]map[string]int64 {
	out := map[string]map[string]int64{
		"counters": {},
		"requests": {},
		"errors":   {},
	}
	if m == nil {
		return out
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	copyInto(out["counters"], m.counters)
	copyInto(out["requests"], m.requestCount)
	copyInto(out["errors"], m.errorCount)
	return out
}

// Names lists counter names in sorted order.
func (m *Metrics) Names() []string {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.counters))
	for name := range m.counters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func copyInto(dst, src map[string]int64) {
	for k, v := range src {
		dst[k] = v
	}
}

func pathKey(path, method string, status int) string {
	return path + "|" + method + "|" + strconv.Itoa(status)
}
