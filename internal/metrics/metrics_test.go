package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveGeneration(t *testing.T) {
	m := New()
	m.ObserveGeneration("cli", "ok", 20*time.Millisecond)
	m.ObserveGeneration("cli", "ok", 10*time.Millisecond)
	m.ObserveGeneration("cli", "ValidationFailed", 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.generations.WithLabelValues("cli", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.generations.WithLabelValues("cli", "ValidationFailed")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.duration))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveGeneration("cli", "ok", time.Second)
	m.ObserveRequest("/healthz", http.MethodGet, http.StatusOK)
}

func TestHandler(t *testing.T) {
	m := New()
	m.ObserveRequest("/generate/{target}/yaml", http.MethodPost, http.StatusOK)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `windci_http_requests_total{code="200",method="POST",route="/generate/{target}/yaml"} 1`)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
