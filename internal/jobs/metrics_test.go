package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestTrackerRecordsStatus(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	assert.NoError(t, m.Track("staff:role_change").End(nil))
	boom := errors.New("boom")
	assert.ErrorIs(t, m.Track("staff:role_change").End(boom), boom)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("staff:role_change", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("staff:role_change", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("staff:role_change")))
}

func TestNilMetricsTrackerPassesErrorThrough(t *testing.T) {
	var m *Metrics
	boom := errors.New("boom")
	assert.ErrorIs(t, m.Track("x").End(boom), boom)
	m.AddPurgedSessions(3)
}

func TestAddPurgedSessions(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.AddPurgedSessions(0)
	m.AddPurgedSessions(4)
	assert.Equal(t, 4.0, testutil.ToFloat64(m.purged))
}
