package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New()
	m.SyncRun("ok", 2, 5)
	m.SyncRun("rejected", 0, 0)
	m.Measurement(true)
	m.Measurement(false)
	m.Measurement(false)
	m.Denied("plan.assign")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.syncRuns.WithLabelValues("ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.versionsCreated))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.exercisesUpserted))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.measurements.WithLabelValues("amended")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.denials.WithLabelValues("plan.assign")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.SyncRun("ok", 1, 1)
		m.Assignment()
		m.ItemEdit()
		m.Execution()
		m.Measurement(true)
		m.Denied("x")
		m.AuditFailure()
		m.FeedArchive(false)
	})
	assert.Nil(t, m.Registry())
}

func TestHandler(t *testing.T) {
	m := New()
	m.Assignment()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "routines_routine_assignments_total 1")
}
