package metrics

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics_RegistersOnGivenRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.TFCandlesTotal.WithLabelValues("H1").Add(3)
	m.TradeTransitions.WithLabelValues("filled").Inc()
	m.OpenTrades.WithLabelValues("EURUSD").Set(2)

	assert.Equal(t, 3.0, testutil.ToFloat64(m.TFCandlesTotal.WithLabelValues("H1")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TradeTransitions.WithLabelValues("filled")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.OpenTrades.WithLabelValues("EURUSD")))

	// a second set on the same registry is a programming error
	assert.Panics(t, func() { NewMetrics(reg) })
}

func TestServer_ExposesMetricsAndHealth(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.BaseCandlesTotal.WithLabelValues("EURUSD").Add(42)

	health := NewHealthStatus()
	health.SetSQLiteOK(true)
	health.RunStarted("run-1", time.Unix(1_700_000_000, 0))

	srv := httptest.NewServer(NewServer(":0", health, reg).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `tradesim_base_candles_total{market="EURUSD"} 42`)

	hresp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer hresp.Body.Close()
	assert.Equal(t, http.StatusOK, hresp.StatusCode)

	var status map[string]any
	require.NoError(t, json.NewDecoder(hresp.Body).Decode(&status))
	assert.Equal(t, "healthy", status["status"])
	assert.Equal(t, "run-1", status["last_run_id"])
}

func TestHealthStatus_Degraded(t *testing.T) {
	cases := []struct {
		name     string
		sqlite   bool
		redisOn  bool
		redisUp  bool
		status   string
		httpCode int
	}{
		{"sqlite down", false, false, false, "unhealthy", http.StatusServiceUnavailable},
		{"redis down", true, true, false, "degraded", http.StatusServiceUnavailable},
		{"redis disabled", true, false, false, "healthy", http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := NewHealthStatus()
			h.SetSQLiteOK(tc.sqlite)
			h.SetRedisEnabled(tc.redisOn)
			h.RedisConnected = tc.redisUp

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
			assert.Equal(t, tc.httpCode, rec.Code)

			var status map[string]any
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
			assert.Equal(t, tc.status, status["status"])
		})
	}
}
