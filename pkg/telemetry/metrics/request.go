package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/courier/pkg/config"
)

// RequestMetrics tracks HTTP requests served by the proxy.
type RequestMetrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	tokensTotal     *prometheus.CounterVec
}

// NewRequestMetrics creates and registers request metrics.
func NewRequestMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *RequestMetrics {
	rm := &RequestMetrics{
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "requests_total",
				Help:      "Total number of proxied requests by endpoint, model and HTTP status",
			},
			[]string{"endpoint", "model", "status"},
		),

		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "request_duration_seconds",
				Help:      "End-to-end request duration in seconds",
				Buckets:   cfg.RequestDurationBuckets,
			},
			[]string{"endpoint", "stream"},
		),

		tokensTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "tokens_total",
				Help:      "Total number of tokens reported by the backend",
			},
			[]string{"model", "type"},
		),
	}

	registry.MustRegister(rm.requestsTotal, rm.requestDuration, rm.tokensTotal)
	return rm
}

// RecordRequest records one completed request.
func (rm *RequestMetrics) RecordRequest(endpoint, model, status string, stream bool, duration time.Duration) {
	rm.requestsTotal.WithLabelValues(endpoint, model, status).Inc()
	rm.requestDuration.WithLabelValues(endpoint, strconv.FormatBool(stream)).Observe(duration.Seconds())
}

// RecordTokens adds input and output token counts.
func (rm *RequestMetrics) RecordTokens(model string, inputTokens, outputTokens int) {
	if inputTokens > 0 {
		rm.tokensTotal.WithLabelValues(model, "input").Add(float64(inputTokens))
	}
	if outputTokens > 0 {
		rm.tokensTotal.WithLabelValues(model, "output").Add(float64(outputTokens))
	}
}

// StreamMetrics tracks streaming translations.
type StreamMetrics struct {
	outcomes    *prometheus.CounterVec
	discarded   prometheus.Counter
	synthesized prometheus.Counter
}

// NewStreamMetrics creates and registers stream metrics.
func NewStreamMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *StreamMetrics {
	sm := &StreamMetrics{
		outcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "stream_outcomes_total",
				Help:      "Streaming responses by outcome",
			},
			[]string{"outcome"},
		),
		discarded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "stream_discarded_fragments_total",
			Help:      "Backend fragments received after the finish reason and not forwarded",
		}),
		synthesized: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "stream_synthesized_endings_total",
			Help:      "Streams that ended without a finish reason and were closed by the proxy",
		}),
	}

	registry.MustRegister(sm.outcomes, sm.discarded, sm.synthesized)
	return sm
}

// Record records one finished stream.
func (sm *StreamMetrics) Record(outcome string, discarded int, synthesized bool) {
	sm.outcomes.WithLabelValues(outcome).Inc()
	if discarded > 0 {
		sm.discarded.Add(float64(discarded))
	}
	if synthesized {
		sm.synthesized.Inc()
	}
}
