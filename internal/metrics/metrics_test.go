package metrics_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentchattr/agentchattr/internal/metrics"
)

func getCounterValue(t *testing.T, counter *prometheus.CounterVec, labels ...string) float64 {
	t.Helper()
	m := &dto.Metric{}
	c, err := counter.GetMetricWithLabelValues(labels...)
	if err != nil {
		return 0
	}
	_ = c.(prometheus.Metric).Write(m)
	return m.GetCounter().GetValue()
}

func getGaugeValue(t *testing.T, gauge prometheus.Gauge) float64 {
	t.Helper()
	m := &dto.Metric{}
	_ = gauge.(prometheus.Metric).Write(m)
	return m.GetGauge().GetValue()
}

func getHistogramCount(t *testing.T, hist *prometheus.HistogramVec, labels ...string) uint64 {
	t.Helper()
	m := &dto.Metric{}
	o, err := hist.GetMetricWithLabelValues(labels...)
	if err != nil {
		return 0
	}
	_ = o.(prometheus.Metric).Write(m)
	return m.GetHistogram().GetSampleCount()
}

func TestHTTPMiddleware_RecordsRequestMetrics(t *testing.T) {
	handler := metrics.HTTPMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	server := httptest.NewServer(handler)
	defer server.Close()

	beforeCount := getCounterValue(t, metrics.HTTPRequestsTotal, "GET", "/static", "200")
	beforeHistCount := getHistogramCount(t, metrics.HTTPRequestDuration, "GET", "/static")

	resp, err := http.Get(server.URL + "/some/asset.js")
	require.NoError(t, err)
	_ = resp.Body.Close()

	afterCount := getCounterValue(t, metrics.HTTPRequestsTotal, "GET", "/static", "200")
	afterHistCount := getHistogramCount(t, metrics.HTTPRequestDuration, "GET", "/static")

	assert.Equal(t, float64(1), afterCount-beforeCount)
	assert.Equal(t, uint64(1), afterHistCount-beforeHistCount)
}

func TestHTTPMiddleware_NormalizesPaths(t *testing.T) {
	handler := metrics.HTTPMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	server := httptest.NewServer(handler)
	defer server.Close()

	beforeWS := getCounterValue(t, metrics.HTTPRequestsTotal, "GET", "/ws", "200")
	resp, err := http.Get(server.URL + "/ws")
	require.NoError(t, err)
	_ = resp.Body.Close()
	afterWS := getCounterValue(t, metrics.HTTPRequestsTotal, "GET", "/ws", "200")
	assert.Equal(t, float64(1), afterWS-beforeWS)

	beforeSession := getCounterValue(t, metrics.HTTPRequestsTotal, "POST", "/api/open-session/:agent", "200")
	req, _ := http.NewRequest("POST", server.URL+"/api/open-session/claude", nil)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	afterSession := getCounterValue(t, metrics.HTTPRequestsTotal, "POST", "/api/open-session/:agent", "200")
	assert.Equal(t, float64(1), afterSession-beforeSession)

	beforeStatic := getCounterValue(t, metrics.HTTPRequestsTotal, "GET", "/static", "200")
	resp, err = http.Get(server.URL + "/assets/bundle.js")
	require.NoError(t, err)
	_ = resp.Body.Close()
	afterStatic := getCounterValue(t, metrics.HTTPRequestsTotal, "GET", "/static", "200")
	assert.Equal(t, float64(1), afterStatic-beforeStatic)
}

func TestHTTPMiddleware_Records404(t *testing.T) {
	handler := metrics.HTTPMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	server := httptest.NewServer(handler)
	defer server.Close()

	beforeCount := getCounterValue(t, metrics.HTTPRequestsTotal, "GET", "/static", "404")

	resp, err := http.Get(server.URL + "/nonexistent")
	require.NoError(t, err)
	_ = resp.Body.Close()

	afterCount := getCounterValue(t, metrics.HTTPRequestsTotal, "GET", "/static", "404")
	assert.Equal(t, float64(1), afterCount-beforeCount)
}

func TestActiveAgentsGauge(t *testing.T) {
	before := getGaugeValue(t, metrics.ActiveAgents)
	metrics.ActiveAgents.Inc()
	after := getGaugeValue(t, metrics.ActiveAgents)
	assert.Equal(t, float64(1), after-before)

	metrics.ActiveAgents.Dec()
	afterDec := getGaugeValue(t, metrics.ActiveAgents)
	assert.Equal(t, before, afterDec)
}

func TestLoopGuardTripsCounter(t *testing.T) {
	before := getCounterValue(t, metrics.LoopGuardTrips, "dev")
	metrics.LoopGuardTrips.WithLabelValues("dev").Inc()
	after := getCounterValue(t, metrics.LoopGuardTrips, "dev")
	assert.Equal(t, float64(1), after-before)
}

func TestMetricsRegistered(t *testing.T) {
	count, err := testutil.GatherAndCount(prometheus.DefaultGatherer)
	require.NoError(t, err)
	assert.Greater(t, count, 0, "should have registered metrics")
}
