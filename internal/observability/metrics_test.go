package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsAreIndependentPerInstance(t *testing.T) {
	a := NewMetrics()
	b := NewMetrics()

	a.CyclesTotal.WithLabelValues("success").Inc()
	assert.Equal(t, 1.0, testutil.ToFloat64(a.CyclesTotal.WithLabelValues("success")))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.CyclesTotal.WithLabelValues("success")))
}

func TestHandlerExposesNamespace(t *testing.T) {
	m := NewMetrics()
	m.RecordsRejected.WithLabelValues("listing").Add(2)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `stx20sync_records_rejected_total{kind="listing"} 2`)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
