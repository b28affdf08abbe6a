package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/courier/pkg/config"
)

// BackendMetrics tracks calls to the chat completions backend and the
// cancellation registry.
type BackendMetrics struct {
	attempts        *prometheus.CounterVec
	attemptDuration prometheus.Histogram
	retries         prometheus.Counter
	health          prometheus.Gauge
	cancellations   *prometheus.CounterVec

	cfg        *config.MetricsConfig
	registry   *prometheus.Registry
	activeOnce sync.Once
}

// NewBackendMetrics creates and registers backend metrics.
func NewBackendMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *BackendMetrics {
	bm := &BackendMetrics{
		attempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "backend_attempts_total",
				Help:      "Backend call attempts by result (success or error kind)",
			},
			[]string{"result"},
		),
		attemptDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "backend_attempt_duration_seconds",
			Help:      "Latency of a single backend attempt in seconds",
			Buckets:   cfg.RequestDurationBuckets,
		}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "backend_retries_total",
			Help:      "Backend attempts after the first for the same request",
		}),
		health: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "backend_health",
			Help:      "Backend health status (1=healthy, 0=unhealthy)",
		}),
		cancellations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "cancellations_total",
				Help:      "Cancellation signals fired by source",
			},
			[]string{"source"},
		),
		cfg:      cfg,
		registry: registry,
	}

	registry.MustRegister(bm.attempts, bm.attemptDuration, bm.retries, bm.health, bm.cancellations)
	return bm
}

// RecordAttempt records one attempt. attempt is zero-based.
func (bm *BackendMetrics) RecordAttempt(attempt int, result string, latency time.Duration) {
	bm.attempts.WithLabelValues(result).Inc()
	bm.attemptDuration.Observe(latency.Seconds())
	if attempt > 0 {
		bm.retries.Inc()
	}
}

// UpdateHealth sets the health gauge.
func (bm *BackendMetrics) UpdateHealth(healthy bool) {
	if healthy {
		bm.health.Set(1)
	} else {
		bm.health.Set(0)
	}
}

// RecordCancellation counts one fired signal.
func (bm *BackendMetrics) RecordCancellation(source string) {
	bm.cancellations.WithLabelValues(source).Inc()
}

// TrackActive registers the active_requests gauge backed by fn. Later
// calls are ignored.
func (bm *BackendMetrics) TrackActive(fn func() int) {
	bm.activeOnce.Do(func() {
		bm.registry.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Namespace: bm.cfg.Namespace,
				Subsystem: bm.cfg.Subsystem,
				Name:      "active_requests",
				Help:      "Requests currently registered for cancellation",
			},
			func() float64 { return float64(fn()) },
		))
	})
}

// EventLogMetrics tracks client telemetry events.
type EventLogMetrics struct {
	events *prometheus.CounterVec
}

// NewEventLogMetrics creates and registers event-log metrics.
func NewEventLogMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *EventLogMetrics {
	em := &EventLogMetrics{
		events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "eventlog_events_total",
				Help:      "Client telemetry events by result (accepted, dropped)",
			},
			[]string{"result"},
		),
	}
	registry.MustRegister(em.events)
	return em
}

// Record counts n events.
func (em *EventLogMetrics) Record(n int, accepted bool) {
	result := "accepted"
	if !accepted {
		result = "dropped"
	}
	em.events.WithLabelValues(result).Add(float64(n))
}
