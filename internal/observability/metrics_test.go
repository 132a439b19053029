package observability

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordRequest("/x", "GET", 200, time.Millisecond)
		m.RecordError("/x", "GET", "NOT_FOUND")
		m.RecordScan(nil, time.Second)
		m.RecordEscalation("created")
		m.RecordDeadlineFallback()
		m.RecordStatusChange("created", 2)
	})
	assert.Nil(t, m.Registry())
	assert.NotNil(t, m.Handler())
}

func TestMetricsCount(t *testing.T) {
	m := NewMetrics()
	m.RecordScan(nil, time.Second)
	m.RecordScan(errors.New("db"), time.Second)
	m.RecordEscalation("created")
	m.RecordEscalation("created")
	m.RecordDeadlineFallback()
	m.RecordStatusChange("reached", 0)
	m.RecordStatusChange("reached", 3)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.scanRuns.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.scanRuns.WithLabelValues("error")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.escalations.WithLabelValues("created")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.deadlineFallbacks))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.statusChanges.WithLabelValues("reached")))
}
