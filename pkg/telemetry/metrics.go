package telemetry

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for forage. A nil *Metrics and a
// disabled one are both no-ops.
type Metrics struct {
	config MetricsConfig

	// Mutation metrics
	mutationsSubmitted *prometheus.CounterVec
	mutationsCompleted *prometheus.CounterVec
	mutationDuration   *prometheus.HistogramVec

	// Task scope metrics
	taskFailures *prometheus.CounterVec
	queuedTasks  prometheus.Gauge

	// Store metrics
	changesPublished *prometheus.CounterVec
	liveObservers    *prometheus.GaugeVec
	queryDuration    *prometheus.HistogramVec

	// Error metrics
	errorsByClass *prometheus.CounterVec

	registry *prometheus.Registry
	server   *http.Server
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		mutationsSubmitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "mutations_submitted_total",
				Help:      "Total number of mutations submitted to the task scope",
			},
			[]string{"operation"},
		),
		mutationsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "mutations_completed_total",
				Help:      "Total number of mutations that finished running",
			},
			[]string{"operation", "status"},
		),
		mutationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "mutation_duration_seconds",
				Help:      "Duration of mutation tasks in seconds",
				Buckets:   buckets,
			},
			[]string{"operation"},
		),

		taskFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "task_failures_total",
				Help:      "Total number of failed tasks by operation and error class",
			},
			[]string{"operation", "class"},
		),
		queuedTasks: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "queued_tasks",
				Help:      "Current number of tasks waiting for a worker",
			},
		),

		changesPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "changes_published_total",
				Help:      "Total number of change notifications published by the store",
			},
			[]string{"kind"},
		),
		liveObservers: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "live_observers",
				Help:      "Current number of live query observers",
			},
			[]string{"query"},
		),
		queryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "query_duration_seconds",
				Help:      "Duration of snapshot queries in seconds",
				Buckets:   buckets,
			},
			[]string{"query"},
		),

		errorsByClass: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_class_total",
				Help:      "Total number of errors by error class",
			},
			[]string{"class"},
		),
	}

	registry.MustRegister(
		m.mutationsSubmitted,
		m.mutationsCompleted,
		m.mutationDuration,
		m.taskFailures,
		m.queuedTasks,
		m.changesPublished,
		m.liveObservers,
		m.queryDuration,
		m.errorsByClass,
	)

	return m, nil
}

// Mutation Metrics

// RecordMutationSubmitted counts a mutation handed to the task scope.
func (m *Metrics) RecordMutationSubmitted(operation string) {
	if m == nil || m.mutationsSubmitted == nil {
		return
	}
	m.mutationsSubmitted.WithLabelValues(operation).Inc()
}

// RecordMutationCompleted records a finished mutation with its status and duration.
func (m *Metrics) RecordMutationCompleted(operation, status string, duration time.Duration) {
	if m == nil || m.mutationsCompleted == nil {
		return
	}
	m.mutationsCompleted.WithLabelValues(operation, status).Inc()
	m.mutationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// Task Metrics

// RecordTaskFailure counts a failed task.
func (m *Metrics) RecordTaskFailure(operation, class string) {
	if m == nil || m.taskFailures == nil {
		return
	}
	m.taskFailures.WithLabelValues(operation, class).Inc()
	m.errorsByClass.WithLabelValues(class).Inc()
}

// SetQueuedTasks sets the current number of queued tasks.
func (m *Metrics) SetQueuedTasks(count float64) {
	if m == nil || m.queuedTasks == nil {
		return
	}
	m.queuedTasks.Set(count)
}

// Store Metrics

// RecordChangePublished counts a change notification.
func (m *Metrics) RecordChangePublished(kind string) {
	if m == nil || m.changesPublished == nil {
		return
	}
	m.changesPublished.WithLabelValues(kind).Inc()
}

// AddLiveObservers adjusts the observer gauge for a query by delta.
func (m *Metrics) AddLiveObservers(query string, delta float64) {
	if m == nil || m.liveObservers == nil {
		return
	}
	m.liveObservers.WithLabelValues(query).Add(delta)
}

// RecordQuery records the duration of a snapshot query.
func (m *Metrics) RecordQuery(query string, duration time.Duration) {
	if m == nil || m.queryDuration == nil {
		return
	}
	m.queryDuration.WithLabelValues(query).Observe(duration.Seconds())
}

// Error Metrics

// RecordError records an error by class.
func (m *Metrics) RecordError(errorClass string) {
	if m == nil || m.errorsByClass == nil {
		return
	}
	m.errorsByClass.WithLabelValues(errorClass).Inc()
}

// Registry returns the private registry, nil when metrics are disabled.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Timer provides a convenient way to time operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// StartMetricsServer starts an HTTP server to expose metrics. Serve errors
// are reported through errFn, which may be nil.
func (m *Metrics) StartMetricsServer(errFn func(error)) error {
	if m == nil || !m.config.Enabled {
		return nil
	}

	path := m.config.Path
	if path == "" {
		path = "/metrics"
	}

	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())

	m.server = &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := m.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) && errFn != nil {
			errFn(err)
		}
	}()

	return nil
}

// Shutdown stops the metrics server if it was started.
func (m *Metrics) Shutdown(ctx context.Context) error {
	if m == nil || m.server == nil {
		return nil
	}
	return m.server.Shutdown(ctx)
}
