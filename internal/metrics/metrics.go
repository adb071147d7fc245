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
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the chart service.
type Metrics struct {
	registry *prometheus.Registry

	// Load pipeline
	LoadsTotal    *prometheus.CounterVec // labels: result=ok|fetch_failure|superseded|uninitialized
	RowsTotal     prometheus.Counter
	RowsSkipped   prometheus.Counter
	SeriesPoints  prometheus.Gauge
	LoadDuration  prometheus.Histogram
	FetchDuration prometheus.Histogram

	// Overlay state machine
	OverlayOpsTotal *prometheus.CounterVec // labels: op=draw|update|remove|refresh, result=ok|rejected|error
	OverlayLive     prometheus.Gauge       // 0=Absent, 1=Active
	SMAComputeDur   prometheus.Histogram
	SMAPoints       prometheus.Gauge

	// Surface transport
	WSClients        prometheus.Gauge
	CommandsTotal    *prometheus.CounterVec // labels: op
	CommandDrops     prometheus.Counter
	ResizeTotal      prometheus.Counter
	RedisBreakerOpen prometheus.Gauge
}

// NewMetrics creates all metrics on a private registry, so several
// instances can coexist (tests, multiple sessions).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,

		LoadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "candleview_loads_total",
			Help: "Series loads by result",
		}, []string{"result"}),
		RowsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "candleview_rows_total",
			Help: "Data rows parsed from input documents",
		}),
		RowsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "candleview_rows_skipped_total",
			Help: "Malformed rows dropped by validation",
		}),
		SeriesPoints: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "candleview_series_points",
			Help: "Points in the current base series",
		}),
		LoadDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "candleview_load_duration_seconds",
			Help:    "End-to-end load latency (fetch, parse, validate, push)",
			Buckets: prometheus.DefBuckets,
		}),
		FetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "candleview_fetch_duration_seconds",
			Help:    "Input document fetch latency",
			Buckets: prometheus.DefBuckets,
		}),

		OverlayOpsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "candleview_overlay_ops_total",
			Help: "Overlay transitions by operation and result",
		}, []string{"op", "result"}),
		OverlayLive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "candleview_overlay_live",
			Help: "Live overlay handles (0 or 1)",
		}),
		SMAComputeDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "candleview_sma_compute_duration_seconds",
			Help:    "SMA computation latency per draw",
			Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
		}),
		SMAPoints: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "candleview_sma_points",
			Help: "Points pushed to the live overlay",
		}),

		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "candleview_ws_clients",
			Help: "Connected chart clients",
		}),
		CommandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "candleview_surface_commands_total",
			Help: "Surface commands broadcast by operation",
		}, []string{"op"}),
		CommandDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "candleview_surface_command_drops_total",
			Help: "Commands dropped because a client send buffer was full",
		}),
		ResizeTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "candleview_resize_total",
			Help: "Resize events forwarded to the surface",
		}),
		RedisBreakerOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "candleview_redis_circuit_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.LoadsTotal,
		m.RowsTotal,
		m.RowsSkipped,
		m.SeriesPoints,
		m.LoadDuration,
		m.FetchDuration,
		m.OverlayOpsTotal,
		m.OverlayLive,
		m.SMAComputeDur,
		m.SMAPoints,
		m.WSClients,
		m.CommandsTotal,
		m.CommandDrops,
		m.ResizeTotal,
		m.RedisBreakerOpen,
	)

	return m
}

// Registry exposes the private registry for scraping and tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// HealthStatus represents the service health.
type HealthStatus struct {
	mu sync.RWMutex

	SessionReady   bool      `json:"session_ready"`
	LastLoadAt     time.Time `json:"last_load_at"`
	LastLoadError  string    `json:"last_load_error"`
	SeriesPoints   int       `json:"series_points"`
	OverlayActive  bool      `json:"overlay_active"`
	RedisEnabled   bool      `json:"redis_enabled"`
	RedisConnected bool      `json:"redis_connected"`
	SQLiteEnabled  bool      `json:"sqlite_enabled"`
	SQLiteOK       bool      `json:"sqlite_ok"`

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

func (h *HealthStatus) SetSessionReady(v bool) {
	h.mu.Lock()
	h.SessionReady = v
	h.mu.Unlock()
}

// RecordLoad stores the outcome of the latest load attempt.
func (h *HealthStatus) RecordLoad(points int, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.LastLoadAt = time.Now()
	if err != nil {
		h.LastLoadError = err.Error()
		return
	}
	h.LastLoadError = ""
	h.SeriesPoints = points
}

func (h *HealthStatus) SetOverlayActive(v bool) {
	h.mu.Lock()
	h.OverlayActive = v
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisEnabled = true
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite runs a ping and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteEnabled = true
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks. Nil dependencies
// are skipped.
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

	overallStatus := "healthy"
	httpCode := http.StatusOK

	if (h.RedisEnabled && !h.RedisConnected) || (h.SQLiteEnabled && !h.SQLiteOK) || h.LastLoadError != "" {
		overallStatus = "degraded"
	}
	if !h.SessionReady {
		overallStatus = "unhealthy"
		httpCode = http.StatusServiceUnavailable
	}

	lastLoad := ""
	if !h.LastLoadAt.IsZero() {
		lastLoad = h.LastLoadAt.Format(time.RFC3339)
	}

	status := struct {
		Status          string  `json:"status"`
		Uptime          string  `json:"uptime"`
		SessionReady    bool    `json:"session_ready"`
		LastLoadAt      string  `json:"last_load_at"`
		LastLoadError   string  `json:"last_load_error,omitempty"`
		SeriesPoints    int     `json:"series_points"`
		OverlayActive   bool    `json:"overlay_active"`
		RedisConnected  bool    `json:"redis_connected"`
		RedisLatencyMs  float64 `json:"redis_latency_ms"`
		SQLiteOK        bool    `json:"sqlite_ok"`
		SQLiteLatencyMs float64 `json:"sqlite_latency_ms"`
	}{
		Status:          overallStatus,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		SessionReady:    h.SessionReady,
		LastLoadAt:      lastLoad,
		LastLoadError:   h.LastLoadError,
		SeriesPoints:    h.SeriesPoints,
		OverlayActive:   h.OverlayActive,
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs a standalone HTTP server exposing /metrics and /healthz.
type Server struct {
	addr string
	srv  *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, m *Metrics, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		addr: addr,
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
