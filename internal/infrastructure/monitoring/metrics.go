package monitoring

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "watchdog"

// latencyWindow is how many recent checks the latency summary covers.
const latencyWindow = 120

// Metrics holds all Prometheus metrics
type Metrics struct {
	registry *prometheus.Registry

	// Check metrics
	ChecksTotal   *prometheus.CounterVec
	CheckDuration prometheus.Histogram
	FreezeStreak  prometheus.Gauge
	FrozenTotal   prometheus.Counter

	// Remediation metrics
	RestartsTotal *prometheus.CounterVec

	// Session metrics
	SupervisorState prometheus.Gauge
	ReconnectsTotal *prometheus.CounterVec
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Status endpoint metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	startTime time.Time
	latency   *Window

	mu       sync.RWMutex
	snapshot Snapshot
}

// Snapshot holds current counter values for the JSON status endpoint
type Snapshot struct {
	Checks      int64   `json:"checks"`
	Unavailable int64   `json:"unavailable"`
	Frozen      int64   `json:"frozen"`
	Restarts    int64   `json:"restarts"`
	Reconnects  int64   `json:"reconnects"`
	Latency     Summary `json:"check_latency"`
}

// NewMetrics creates a collector on its own registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	m := &Metrics{
		registry:  reg,
		startTime: time.Now(),
		latency:   NewWindow(latencyWindow),

		ChecksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "checks_total",
				Help:      "Health checks by result",
			},
			[]string{"result"},
		),
		CheckDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "check_duration_seconds",
				Help:      "Health check duration in seconds",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
		),
		FreezeStreak: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "freeze_streak",
				Help:      "Consecutive unhealthy samples in the current run",
			},
		),
		FrozenTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "frozen_verdicts_total",
				Help:      "Checks that ended with a frozen verdict",
			},
		),
		RestartsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "restarts_total",
				Help:      "Restart attempts by outcome",
			},
			[]string{"outcome"},
		),
		SupervisorState: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "supervisor_state",
				Help:      "Supervisor state (0 disconnected, 1 connecting, 2 validating, 3 monitoring, 4 shutting down)",
			},
		),
		ReconnectsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reconnects_total",
				Help:      "Reconnect attempts by result",
			},
			[]string{"result"},
		),
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "obs_requests_total",
				Help:      "Control server requests by type and status",
			},
			[]string{"request_type", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "obs_request_duration_seconds",
				Help:      "Control server request duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"request_type"},
		),
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Status endpoint requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Status endpoint request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
	}

	factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uptime_seconds",
			Help:      "Watchdog uptime in seconds",
		},
		func() float64 { return time.Since(m.startTime).Seconds() },
	)

	return m
}

// Registry returns the registry the metrics are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordCheck records one health check. result is the observation kind or
// "unavailable".
func (m *Metrics) RecordCheck(result string, duration time.Duration) {
	m.ChecksTotal.WithLabelValues(result).Inc()
	m.CheckDuration.Observe(duration.Seconds())
	m.latency.Add(duration)

	m.mu.Lock()
	m.snapshot.Checks++
	if result == "unavailable" {
		m.snapshot.Unavailable++
	}
	m.mu.Unlock()
}

// SetStreak publishes the current freeze streak.
func (m *Metrics) SetStreak(streak int, frozen bool) {
	m.FreezeStreak.Set(float64(streak))
	if frozen {
		m.FrozenTotal.Inc()
		m.mu.Lock()
		m.snapshot.Frozen++
		m.mu.Unlock()
	}
}

// RecordRestart records a restart attempt by outcome.
func (m *Metrics) RecordRestart(outcome string) {
	m.RestartsTotal.WithLabelValues(outcome).Inc()
	if outcome == "restarted" {
		m.mu.Lock()
		m.snapshot.Restarts++
		m.mu.Unlock()
	}
}

// RecordReconnect records a reconnect attempt.
func (m *Metrics) RecordReconnect(result string) {
	m.ReconnectsTotal.WithLabelValues(result).Inc()
	if result == "success" {
		m.mu.Lock()
		m.snapshot.Reconnects++
		m.mu.Unlock()
	}
}

// SetSupervisorState publishes the supervisor state ordinal.
func (m *Metrics) SetSupervisorState(state int) {
	m.SupervisorState.Set(float64(state))
}

// RecordRequest records a control server request. It has the shape of an
// obsws request observer.
func (m *Metrics) RecordRequest(requestType string, duration time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.RequestsTotal.WithLabelValues(requestType, status).Inc()
	m.RequestDuration.WithLabelValues(requestType).Observe(duration.Seconds())
}

// RecordHTTPRequest records a status endpoint request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// Snapshot returns the current counters and check latency summary.
func (m *Metrics) Snapshot() Snapshot {
	m.mu.RLock()
	s := m.snapshot
	m.mu.RUnlock()

	s.Latency = m.latency.Summary()
	return s
}

// Uptime returns time since the collector was created.
func (m *Metrics) Uptime() time.Duration {
	return time.Since(m.startTime)
}
