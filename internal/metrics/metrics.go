package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics of the simulator.
type Metrics struct {
	RunsTotal   *prometheus.CounterVec // labels: status=ok|error|cancelled
	RunDuration prometheus.Histogram
	RunsActive  prometheus.Gauge

	// Candle runner
	BaseCandlesTotal *prometheus.CounterVec // labels: market
	TFCandlesTotal   *prometheus.CounterVec // labels: tf

	// Indicator engine
	IndicatorComputeDur prometheus.Histogram

	// Strategies and trades
	SignalsTotal     *prometheus.CounterVec // labels: strategy
	TradeTransitions *prometheus.CounterVec // labels: kind
	OpenTrades       *prometheus.GaugeVec   // labels: market

	// Storage and publishing
	SQLiteCommitDur          prometheus.Histogram
	RedisCircuitBreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	RedisCircuitBreakerTrips prometheus.Counter
	RedisBufferedWrites      prometheus.Counter
	FeedClients              prometheus.Gauge
	FeedDropsTotal           prometheus.Counter
}

// NewMetrics creates all metrics and registers them with reg
// (prometheus.DefaultRegisterer when nil).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	fast := []float64{0.000001, 0.000005, 0.00001, 0.00005, 0.0001, 0.0005, 0.001}

	m := &Metrics{
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradesim_runs_total",
			Help: "Finished simulation runs by status",
		}, []string{"status"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tradesim_run_duration_seconds",
			Help:    "Wall-clock duration of one simulation run",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
		}),
		RunsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tradesim_runs_active",
			Help: "Simulation runs in progress",
		}),

		BaseCandlesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradesim_base_candles_total",
			Help: "Base candles consumed by the runner (by market)",
		}, []string{"market"}),
		TFCandlesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradesim_tf_candles_total",
			Help: "Complete candles emitted (by timeframe)",
		}, []string{"tf"}),

		IndicatorComputeDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tradesim_indicator_compute_duration_seconds",
			Help:    "Indicator engine compute latency per candle",
			Buckets: fast,
		}),

		SignalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradesim_signals_total",
			Help: "Strategy signals (by strategy)",
		}, []string{"strategy"}),
		TradeTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradesim_trade_transitions_total",
			Help: "Trade state changes (filled, exited, expired)",
		}, []string{"kind"}),
		OpenTrades: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tradesim_open_trades",
			Help: "Trades not yet closed (by market)",
		}, []string{"market"}),

		SQLiteCommitDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tradesim_sqlite_commit_duration_seconds",
			Help:    "SQLite batch commit latency",
			Buckets: prometheus.DefBuckets,
		}),
		RedisCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tradesim_redis_circuit_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		RedisCircuitBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tradesim_redis_circuit_breaker_trips_total",
			Help: "Times the Redis circuit breaker tripped open",
		}),
		RedisBufferedWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tradesim_redis_buffered_writes_total",
			Help: "Events buffered locally while Redis was unavailable",
		}),
		FeedClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tradesim_feed_clients",
			Help: "Connected chart feed WebSocket clients",
		}),
		FeedDropsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tradesim_feed_drops_total",
			Help: "Chart feed messages dropped for slow clients",
		}),
	}

	reg.MustRegister(
		m.RunsTotal,
		m.RunDuration,
		m.RunsActive,
		m.BaseCandlesTotal,
		m.TFCandlesTotal,
		m.IndicatorComputeDur,
		m.SignalsTotal,
		m.TradeTransitions,
		m.OpenTrades,
		m.SQLiteCommitDur,
		m.RedisCircuitBreakerState,
		m.RedisCircuitBreakerTrips,
		m.RedisBufferedWrites,
		m.FeedClients,
		m.FeedDropsTotal,
	)
	return m
}

// HealthStatus tracks dependency health for the /healthz endpoint.
type HealthStatus struct {
	mu sync.RWMutex

	RedisEnabled   bool
	RedisConnected bool
	SQLiteOK       bool
	LastRunID      string
	LastRunAt      time.Time

	RedisLatencyMs  float64
	SQLiteLatencyMs float64
	LastCheckAt     time.Time
	StartedAt       time.Time
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{StartedAt: time.Now()}
}

func (h *HealthStatus) SetRedisEnabled(v bool) {
	h.mu.Lock()
	h.RedisEnabled = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetSQLiteOK(v bool) {
	h.mu.Lock()
	h.SQLiteOK = v
	h.mu.Unlock()
}

// RunStarted records the most recent run.
func (h *HealthStatus) RunStarted(runID string, at time.Time) {
	h.mu.Lock()
	h.LastRunID = runID
	h.LastRunAt = at
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite pings the database and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks until ctx is done.
// Either client may be nil.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckRedis(probeCtx, rdb)
				}
				if sqlDB != nil {
					h.CheckSQLite(probeCtx, sqlDB)
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint. SQLite is required; Redis only
// counts when publishing is enabled.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK
	switch {
	case !h.SQLiteOK:
		overallStatus = "unhealthy"
		httpCode = http.StatusServiceUnavailable
	case h.RedisEnabled && !h.RedisConnected:
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}

	status := struct {
		Status          string  `json:"status"`
		Uptime          string  `json:"uptime"`
		RedisEnabled    bool    `json:"redis_enabled"`
		RedisConnected  bool    `json:"redis_connected"`
		RedisLatencyMs  float64 `json:"redis_latency_ms"`
		SQLiteOK        bool    `json:"sqlite_ok"`
		SQLiteLatencyMs float64 `json:"sqlite_latency_ms"`
		LastRunID       string  `json:"last_run_id,omitempty"`
		LastRunAt       string  `json:"last_run_at,omitempty"`
		LastCheckAt     string  `json:"last_check_at"`
	}{
		Status:          overallStatus,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		RedisEnabled:    h.RedisEnabled,
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		LastRunID:       h.LastRunID,
		LastCheckAt:     h.LastCheckAt.Format(time.RFC3339),
	}
	if !h.LastRunAt.IsZero() {
		status.LastRunAt = h.LastRunAt.Format(time.RFC3339)
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	addr string
	srv  *http.Server
}

// NewServer creates a metrics and health server. gatherer defaults to
// prometheus.DefaultGatherer when nil.
func NewServer(addr string, health *HealthStatus, gatherer prometheus.Gatherer) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.Handle("/healthz", health)

	return &Server{
		addr: addr,
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Handler returns the server's HTTP handler.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
