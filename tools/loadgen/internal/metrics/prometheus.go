package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Exported metric names.
const (
	MetricRequestsTotal          = "loadgen_requests_total"
	MetricRequestDurationSeconds = "loadgen_request_duration_seconds"
	MetricRequestBytesTotal      = "loadgen_request_bytes_total"
	MetricCurrentQPS             = "loadgen_current_qps"
	MetricTargetQPS              = "loadgen_target_qps"
	MetricSuccessRate            = "loadgen_success_rate"
	MetricActiveWorkers          = "loadgen_active_workers"
	MetricPoolSize               = "loadgen_pool_size"
)

// ExporterConfig holds configuration for the Prometheus exporter.
type ExporterConfig struct {
	// Addr is the listen address. Default: ":9090".
	Addr string
	// Path is the scrape path. Default: "/metrics".
	Path string
	// Buckets are the duration histogram buckets. Default: prometheus.DefBuckets.
	Buckets []float64
}

// Exporter serves run metrics for Prometheus scraping. It registers into its
// own registry so the scrape surface carries only loadgen metrics.
// Safe for concurrent use.
type Exporter struct {
	mu       sync.RWMutex
	config   ExporterConfig
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	bytesTotal      prometheus.Counter
	currentQPS      prometheus.Gauge
	targetQPS       prometheus.Gauge
	successRate     prometheus.Gauge
	activeWorkers   prometheus.Gauge
	poolSize        prometheus.Gauge

	server  *http.Server
	ln      net.Listener
	running bool
	lastErr error
}

// NewExporter creates an exporter with all metrics registered.
func NewExporter(cfg ExporterConfig) *Exporter {
	if cfg.Addr == "" {
		cfg.Addr = ":9090"
	}
	if cfg.Path == "" {
		cfg.Path = "/metrics"
	}
	if len(cfg.Buckets) == 0 {
		cfg.Buckets = prometheus.DefBuckets
	}

	e := &Exporter{
		config:   cfg,
		registry: prometheus.NewRegistry(),
	}
	e.initMetrics()
	return e
}

func (e *Exporter) initMetrics() {
	e.requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "loadgen",
			Name:      "requests_total",
			Help:      "Total number of requests sent, by operation and status code.",
		},
		[]string{"operation", "status"},
	)
	e.requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "loadgen",
			Name:      "request_duration_seconds",
			Help:      "Request duration in seconds, by operation.",
			Buckets:   e.config.Buckets,
		},
		[]string{"operation"},
	)
	e.bytesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "loadgen",
			Name:      "request_bytes_total",
			Help:      "Total response bytes received.",
		},
	)
	e.currentQPS = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "loadgen",
			Name:      "current_qps",
			Help:      "Observed requests per second.",
		},
	)
	e.targetQPS = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "loadgen",
			Name:      "target_qps",
			Help:      "Configured requests per second.",
		},
	)
	e.successRate = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "loadgen",
			Name:      "success_rate",
			Help:      "Request success rate as a percentage.",
		},
	)
	e.activeWorkers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "loadgen",
			Name:      "active_workers",
			Help:      "Workers currently executing a request.",
		},
	)
	e.poolSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "loadgen",
			Name:      "pool_size",
			Help:      "Harvested plan IDs currently available for reads.",
		},
	)

	e.registry.MustRegister(
		e.requestsTotal,
		e.requestDuration,
		e.bytesTotal,
		e.currentQPS,
		e.targetQPS,
		e.successRate,
		e.activeWorkers,
		e.poolSize,
	)
}

// Start serves the scrape endpoint. Starting a running exporter is a no-op.
func (e *Exporter) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		return nil
	}

	ln, err := net.Listen("tcp", e.config.Addr)
	if err != nil {
		return err
	}
	e.ln = ln

	mux := http.NewServeMux()
	mux.Handle(e.config.Path, promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	e.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := e.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			e.mu.Lock()
			e.lastErr = err
			e.mu.Unlock()
		}
	}()

	e.running = true
	return nil
}

// Stop shuts the scrape endpoint down.
func (e *Exporter) Stop(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.running {
		return nil
	}
	e.running = false
	return e.server.Shutdown(ctx)
}

// RecordRequest records one request result.
func (e *Exporter) RecordRequest(result Result) {
	e.requestsTotal.WithLabelValues(result.Operation, strconv.Itoa(result.StatusCode)).Inc()
	e.requestDuration.WithLabelValues(result.Operation).Observe(result.Latency.Seconds())
	e.bytesTotal.Add(float64(result.Bytes))
}

// UpdateTargetQPS sets the configured rate gauge.
func (e *Exporter) UpdateTargetQPS(qps float64) {
	e.targetQPS.Set(qps)
}

// UpdateActiveWorkers sets the busy worker gauge.
func (e *Exporter) UpdateActiveWorkers(count int) {
	e.activeWorkers.Set(float64(count))
}

// UpdatePoolSize sets the harvested plan pool gauge.
func (e *Exporter) UpdatePoolSize(size int) {
	e.poolSize.Set(float64(size))
}

// UpdateFromSnapshot refreshes the gauges derived from collector state.
func (e *Exporter) UpdateFromSnapshot(snap Snapshot) {
	e.currentQPS.Set(snap.QPS)
	e.successRate.Set(snap.SuccessRate)
}

// Addr returns the bound listen address once started.
func (e *Exporter) Addr() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.ln == nil {
		return e.config.Addr
	}
	return e.ln.Addr().String()
}

// IsRunning reports whether the scrape endpoint is up.
func (e *Exporter) IsRunning() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.running
}

// LastError returns the last serve error, if any.
func (e *Exporter) LastError() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastErr
}

// Registry exposes the underlying registry. Used by tests.
func (e *Exporter) Registry() *prometheus.Registry {
	return e.registry
}
