package observability

import (
	"strconv"
	"sync"
	"time"
)

// Metrics provides basic in-memory counters.
type Metrics struct {
	mu              sync.Mutex
	requestCount    map[string]int64
	errorCount      map[string]int64
	transitionCount map[string]int64
	notifyDropped   int64
	scans           int64
	scanEscalated   int64
	lastScan        time.Time
	lastScanTook    time.Duration
}

// Snapshot is a point-in-time copy of all counters.
type Snapshot struct {
	Requests      map[string]int64 `json:"requests"`
	Errors        map[string]int64 `json:"errors"`
	Transitions   map[string]int64 `json:"transitions"`
	NotifyDropped int64            `json:"notifications_dropped"`
	Scans         int64            `json:"escalation_scans"`
	ScanEscalated int64            `json:"escalation_scan_escalated"`
	LastScanAt    *time.Time       `json:"last_scan_at,omitempty"`
	LastScanMS    int64            `json:"last_scan_ms"`
}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{
		requestCount:    make(map[string]int64),
		errorCount:      make(map[string]int64),
		transitionCount: make(map[string]int64),
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

// RecordTransition counts a committed ticket transition, keyed by action
// and resulting status.
func (m *Metrics) RecordTransition(action, status string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transitionCount[action+"|"+status]++
}

// RecordNotificationDropped counts notifications discarded on a full queue.
func (m *Metrics) RecordNotificationDropped() {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifyDropped++
}

// RecordScan records one escalation scan pass.
func (m *Metrics) RecordScan(at time.Time, took time.Duration, escalated int) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scans++
	m.scanEscalated += int64(escalated)
	m.lastScan = at
	m.lastScanTook = took
}

// Snapshot copies the counters.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := Snapshot{
		Requests:      copyCounts(m.requestCount),
		Errors:        copyCounts(m.errorCount),
		Transitions:   copyCounts(m.transitionCount),
		NotifyDropped: m.notifyDropped,
		Scans:         m.scans,
		ScanEscalated: m.scanEscalated,
		LastScanMS:    m.lastScanTook.Milliseconds(),
	}
	if !m.lastScan.IsZero() {
		last := m.lastScan
		snap.LastScanAt = &last
	}
	return snap
}

func copyCounts(src map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

func pathKey(path, method string, status int) string {
	return path + "|" + method + "|" + strconv.Itoa(status)
}
