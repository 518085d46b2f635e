package observability

import (
	"strconv"
	"sync"
	"time"
)

// Metrics provides basic in-memory counters.
type Metrics struct {
	mu           sync.Mutex
	requestCount map[string]int64
	errorCount   map[string]int64
	latencyTotal map[string]time.Duration
	domainCount  map[string]int64
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	Requests      map[string]int64   `json:"requests"`
	Errors        map[string]int64   `json:"errors"`
	AvgLatencyMs  map[string]float64 `json:"avg_latency_ms"`
	DomainCounter map[string]int64   `json:"domain"`
}

// Domain counter names.
const (
	CounterInboundProcessed = "inbound_processed"
	CounterInboundDuplicate = "inbound_duplicate"
	CounterInboundEdit      = "inbound_edit_rejected"
	CounterTicketsCreated   = "tickets_created"
	CounterLockConflicts    = "lock_conflicts"
	CounterTicketsClosed    = "tickets_closed"
	CounterNotifyFailures   = "notify_failures"
)

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{
		requestCount: make(map[string]int64),
		errorCount:   make(map[string]int64),
		latencyTotal: make(map[string]time.Duration),
		domainCount:  make(map[string]int64),
	}
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
	m.latencyTotal[key] += duration
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

// Inc bumps a named domain counter.
func (m *Metrics) Inc(name string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.domainCount[name]++
}

// Snapshot copies the current counters.
func (m *Metrics) Snapshot() Snapshot {
	snap := Snapshot{
		Requests:      map[string]int64{},
		Errors:        map[string]int64{},
		AvgLatencyMs:  map[string]float64{},
		DomainCounter: map[string]int64{},
	}
	if m == nil {
		return snap
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range m.requestCount {
		snap.Requests[k] = v
		if v > 0 {
			snap.AvgLatencyMs[k] = float64(m.latencyTotal[k].Microseconds()) / 1000 / float64(v)
		}
	}
	for k, v := range m.errorCount {
		snap.Errors[k] = v
	}
	for k, v := range m.domainCount {
		snap.DomainCounter[k] = v
	}
	return snap
}

func pathKey(path, method string, status int) string {
	return path + "|" + method + "|" + strconv.Itoa(status)
}
