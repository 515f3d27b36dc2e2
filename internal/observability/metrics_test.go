package observability

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMetricsCounters(t *testing.T) {
	m := NewMetrics()

	m.RecordRequest("/api/tickets/", "GET", 200, 5*time.Millisecond)
	m.RecordRequest("/api/tickets/", "GET", 200, 7*time.Millisecond)
	m.RecordError("/auth/login", "POST", "UNAUTHORIZED")

	assert.Equal(t, int64(2), m.RequestCount("/api/tickets/", "GET", 200))
	assert.Equal(t, int64(0), m.RequestCount("/api/tickets/", "GET", 404))
	assert.Equal(t, int64(1), m.ErrorCount("/auth/login", "POST", "UNAUTHORIZED"))
}

func TestMetricsNilReceiver(t *testing.T) {
	var m *Metrics
	m.RecordRequest("/x", "GET", 200, 0)
	m.RecordError("/x", "GET", "INTERNAL_ERROR")
	assert.Equal(t, int64(0), m.RequestCount("/x", "GET", 200))
}
