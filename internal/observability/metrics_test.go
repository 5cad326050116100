package observability

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMetricsSnapshot(t *testing.T) {
	m := NewMetrics()
	m.RecordRequest("/tickets", "POST", 201, time.Millisecond)
	m.RecordRequest("/tickets", "POST", 201, time.Millisecond)
	m.RecordError("/tickets/:id/close", "POST", "INVALID_TRANSITION")
	m.RecordTransition("ESCALATED", "ESCALATED")
	m.RecordNotificationDropped()
	at := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	m.RecordScan(at, 1500*time.Millisecond, 3)

	snap := m.Snapshot()
	assert.Equal(t, int64(2), snap.Requests["/tickets|POST|201"])
	assert.Equal(t, int64(1), snap.Errors["/tickets/:id/close|POST|INVALID_TRANSITION"])
	assert.Equal(t, int64(1), snap.Transitions["ESCALATED|ESCALATED"])
	assert.Equal(t, int64(1), snap.NotifyDropped)
	assert.Equal(t, int64(1), snap.Scans)
	assert.Equal(t, int64(3), snap.ScanEscalated)
	assert.Equal(t, int64(1500), snap.LastScanMS)
	assert.Equal(t, at, *snap.LastScanAt)

	snap.Requests["/tickets|POST|201"] = 99
	assert.Equal(t, int64(2), m.Snapshot().Requests["/tickets|POST|201"])
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.RecordRequest("/", "GET", 200, 0)
	m.RecordTransition("CREATED", "OPEN")
	assert.Empty(t, m.Snapshot().Requests)
}
