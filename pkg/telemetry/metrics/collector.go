package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/courier/pkg/config"
	"mercator-hq/courier/pkg/providers"
)

// Collector owns every metric the proxy records. A disabled collector
// accepts all calls and records nothing.
type Collector struct {
	config   *config.MetricsConfig
	registry *prometheus.Registry

	requestMetrics *RequestMetrics
	streamMetrics  *StreamMetrics
	backendMetrics *BackendMetrics
	eventMetrics   *EventLogMetrics

	cardinalityLimiter *CardinalityLimiter
}

// NewCollector creates a collector registered on registry. A nil registry
// gets a fresh one.
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	if cfg.Namespace == "" {
		cfg.Namespace = "mercator"
	}
	if cfg.Subsystem == "" {
		cfg.Subsystem = "courier"
	}
	if len(cfg.RequestDurationBuckets) == 0 {
		// Streaming completions routinely run past 30s.
		cfg.RequestDurationBuckets = []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0, 90.0}
	}

	return &Collector{
		config:             cfg,
		registry:           registry,
		requestMetrics:     NewRequestMetrics(cfg, registry),
		streamMetrics:      NewStreamMetrics(cfg, registry),
		backendMetrics:     NewBackendMetrics(cfg, registry),
		eventMetrics:       NewEventLogMetrics(cfg, registry),
		cardinalityLimiter: NewCardinalityLimiter(1000),
	}
}

// RecordRequest records a completed HTTP request. status is the HTTP
// status code as text.
func (c *Collector) RecordRequest(endpoint, model, status string, stream bool, duration time.Duration) {
	if !c.config.Enabled {
		return
	}
	c.requestMetrics.RecordRequest(endpoint, c.limitModel(model), status, stream, duration)
}

// RecordTokens records token usage for a backend model.
func (c *Collector) RecordTokens(model string, inputTokens, outputTokens int) {
	if !c.config.Enabled {
		return
	}
	c.requestMetrics.RecordTokens(c.limitModel(model), inputTokens, outputTokens)
}

// RecordStream records how a streaming translation ended.
func (c *Collector) RecordStream(outcome string, discarded int, synthesized bool) {
	if !c.config.Enabled {
		return
	}
	c.streamMetrics.Record(outcome, discarded, synthesized)
}

// ObserveAttempt implements providers.Observer.
func (c *Collector) ObserveAttempt(attempt int, latency time.Duration, err error) {
	if !c.config.Enabled {
		return
	}
	result := "success"
	if err != nil {
		result = providers.AsError(err).Kind.String()
	}
	c.backendMetrics.RecordAttempt(attempt, result, latency)
}

// UpdateBackendHealth sets the backend health gauge.
func (c *Collector) UpdateBackendHealth(healthy bool) {
	if !c.config.Enabled {
		return
	}
	c.backendMetrics.UpdateHealth(healthy)
}

// RecordCancellation counts a fired cancellation signal. source is "api"
// or "disconnect".
func (c *Collector) RecordCancellation(source string) {
	if !c.config.Enabled {
		return
	}
	c.backendMetrics.RecordCancellation(source)
}

// TrackActiveRequests exports fn as the active_requests gauge. It may be
// called once.
func (c *Collector) TrackActiveRequests(fn func() int) {
	if !c.config.Enabled {
		return
	}
	c.backendMetrics.TrackActive(fn)
}

// RecordEvents counts event-log events. accepted is false for dropped
// batches.
func (c *Collector) RecordEvents(n int, accepted bool) {
	if !c.config.Enabled || n <= 0 {
		return
	}
	c.eventMetrics.Record(n, accepted)
}

// Registry returns the Prometheus registry used by this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) limitModel(model string) string {
	if model == "" {
		return "unknown"
	}
	if !c.cardinalityLimiter.Allow(model) {
		return "other"
	}
	return model
}

// CardinalityLimiter caps the number of distinct label values.
type CardinalityLimiter struct {
	maxCardinality int
	current        map[string]struct{}
	mu             sync.RWMutex
}

// NewCardinalityLimiter creates a limiter allowing maxCardinality values.
func NewCardinalityLimiter(maxCardinality int) *CardinalityLimiter {
	return &CardinalityLimiter{
		maxCardinality: maxCardinality,
		current:        make(map[string]struct{}),
	}
}

// Allow reports whether value is already known or there is room for it.
func (cl *CardinalityLimiter) Allow(value string) bool {
	cl.mu.RLock()
	if _, exists := cl.current[value]; exists {
		cl.mu.RUnlock()
		return true
	}
	cl.mu.RUnlock()

	cl.mu.Lock()
	defer cl.mu.Unlock()

	if _, exists := cl.current[value]; exists {
		return true
	}
	if len(cl.current) >= cl.maxCardinality {
		return false
	}
	cl.current[value] = struct{}{}
	return true
}

// Count returns the current cardinality.
func (cl *CardinalityLimiter) Count() int {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return len(cl.current)
}
