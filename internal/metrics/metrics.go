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

// Metrics holds all Prometheus metrics for the signal engine.
type Metrics struct {
	BarsTotal         prometheus.Counter
	DroppedBars       prometheus.Counter
	WSReconnects      prometheus.Counter
	EvaluationsTotal  prometheus.Counter
	SignalsTotal      *prometheus.CounterVec // labels: type=BUY|SELL
	SuppressionsTotal *prometheus.CounterVec // labels: reason

	ComputeDur      prometheus.Histogram
	SQLiteCommitDur prometheus.Histogram
	RedisPublishDur prometheus.Histogram

	// Notification dispatch
	NotifyFailures *prometheus.CounterVec // labels: channel

	// Redis publish path
	RedisPublishErrors prometheus.Counter
	RedisBreakerState  prometheus.Gauge // 0=closed, 1=open, 2=half-open
	RedisBreakerTrips  prometheus.Counter

	// Gateway fan-out
	WSClients     prometheus.Gauge
	FanoutDrops   prometheus.Counter
	BarLagSeconds prometheus.Gauge
}

// NewMetrics registers and returns all Prometheus metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		BarsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalengine_bars_total",
			Help: "Total closed bars consumed from the feed",
		}),
		DroppedBars: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalengine_dropped_bars_total",
			Help: "Bars dropped (duplicate, out of order, or channel full)",
		}),
		WSReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalengine_ws_reconnects_total",
			Help: "Total WebSocket feed reconnection attempts",
		}),
		EvaluationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalengine_evaluations_total",
			Help: "Total analyzer evaluations run",
		}),
		SignalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalengine_signals_total",
			Help: "Signals emitted by side",
		}, []string{"type"}),
		SuppressionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalengine_suppressions_total",
			Help: "Evaluations that produced no signal, by reason",
		}, []string{"reason"}),

		ComputeDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "signalengine_indicator_compute_duration_seconds",
			Help:    "Indicator compute latency per closed bar",
			Buckets: []float64{0.000001, 0.000005, 0.00001, 0.00005, 0.0001, 0.0005, 0.001},
		}),
		SQLiteCommitDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "signalengine_sqlite_commit_duration_seconds",
			Help:    "SQLite batch commit latency",
			Buckets: prometheus.DefBuckets,
		}),
		RedisPublishDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "signalengine_redis_publish_duration_seconds",
			Help:    "Redis publish latency",
			Buckets: prometheus.DefBuckets,
		}),

		NotifyFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalengine_notify_failures_total",
			Help: "Notification delivery failures per channel",
		}, []string{"channel"}),

		RedisPublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalengine_redis_publish_errors_total",
			Help: "Publishes that failed or were rejected by the open circuit breaker",
		}),
		RedisBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signalengine_redis_circuit_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		RedisBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalengine_redis_circuit_breaker_trips_total",
			Help: "Times the Redis circuit breaker tripped open",
		}),

		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signalengine_ws_clients",
			Help: "Currently connected gateway WebSocket clients",
		}),
		FanoutDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalengine_fanout_drops_total",
			Help: "Messages dropped by the gateway fan-out due to slow clients",
		}),
		BarLagSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signalengine_bar_lag_seconds",
			Help: "Lag between bar close timestamp and evaluation time",
		}),
	}

	prometheus.MustRegister(
		m.BarsTotal,
		m.DroppedBars,
		m.WSReconnects,
		m.EvaluationsTotal,
		m.SignalsTotal,
		m.SuppressionsTotal,
		m.ComputeDur,
		m.SQLiteCommitDur,
		m.RedisPublishDur,
		m.NotifyFailures,
		m.RedisPublishErrors,
		m.RedisBreakerState,
		m.RedisBreakerTrips,
		m.WSClients,
		m.FanoutDrops,
		m.BarLagSeconds,
	)

	return m
}

// HealthStatus represents the system health.
type HealthStatus struct {
	mu sync.RWMutex

	FeedConnected  bool      `json:"feed_connected"`
	LastBarTime    time.Time `json:"last_bar_time"`
	RedisConnected bool      `json:"redis_connected"`
	SQLiteOK       bool      `json:"sqlite_ok"`
	AnalyzerOn     bool      `json:"analyzer_on"`
	Simulated      bool      `json:"simulated"`
	Symbol         string    `json:"symbol"`
	Timeframe      int       `json:"timeframe"`

	// Liveness probe results
	RedisLatencyMs  float64   `json:"redis_latency_ms"`
	SQLiteLatencyMs float64   `json:"sqlite_latency_ms"`
	LastCheckAt     time.Time `json:"last_check_at"`
	StartedAt       time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		StartedAt: time.Now(),
	}
}

func (h *HealthStatus) SetFeedConnected(v bool) {
	h.mu.Lock()
	h.FeedConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastBarTime(t time.Time) {
	h.mu.Lock()
	h.LastBarTime = t
	h.mu.Unlock()
}

func (h *HealthStatus) SetRedisConnected(v bool) {
	h.mu.Lock()
	h.RedisConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetSQLiteOK(v bool) {
	h.mu.Lock()
	h.SQLiteOK = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetAnalyzerOn(v bool) {
	h.mu.Lock()
	h.AnalyzerOn = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetFeedInfo(symbol string, tf int, simulated bool) {
	h.mu.Lock()
	h.Symbol = symbol
	h.Timeframe = tf
	h.Simulated = simulated
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

// CheckSQLite runs a trivial query and records latency + health.
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

// StartLivenessChecker runs periodic dependency checks.
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

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	// Determine overall status
	overallStatus := "healthy"
	httpCode := http.StatusOK

	if !h.FeedConnected || !h.RedisConnected || !h.SQLiteOK {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}
	if !h.RedisConnected && !h.SQLiteOK {
		overallStatus = "unhealthy"
	}

	// Bar age
	barAge := ""
	if !h.LastBarTime.IsZero() {
		barAge = time.Since(h.LastBarTime).Round(time.Millisecond).String()
	}

	status := struct {
		Status          string  `json:"status"`
		Uptime          string  `json:"uptime"`
		FeedConnected   bool    `json:"feed_connected"`
		LastBarTime     string  `json:"last_bar_time"`
		BarAge          string  `json:"bar_age"`
		RedisConnected  bool    `json:"redis_connected"`
		RedisLatencyMs  float64 `json:"redis_latency_ms"`
		SQLiteOK        bool    `json:"sqlite_ok"`
		SQLiteLatencyMs float64 `json:"sqlite_latency_ms"`
		AnalyzerOn      bool    `json:"analyzer_on"`
		Simulated       bool    `json:"simulated"`
		Symbol          string  `json:"symbol"`
		Timeframe       int     `json:"timeframe"`
		LastCheckAt     string  `json:"last_check_at"`
	}{
		Status:          overallStatus,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		FeedConnected:   h.FeedConnected,
		LastBarTime:     h.LastBarTime.Format(time.RFC3339),
		BarAge:          barAge,
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		AnalyzerOn:      h.AnalyzerOn,
		Simulated:       h.Simulated,
		Symbol:          h.Symbol,
		Timeframe:       h.Timeframe,
		LastCheckAt:     h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	health *HealthStatus
	addr   string
	srv    *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		health: health,
		addr:   addr,
		srv: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

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
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
