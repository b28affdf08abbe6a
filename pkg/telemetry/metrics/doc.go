// Package metrics exposes Prometheus metrics for the proxy.
//
// # Metrics
//
// All names are prefixed with <namespace>_<subsystem>_ (default
// mercator_courier_):
//
//	requests_total{endpoint,model,status}          completed HTTP requests
//	request_duration_seconds{endpoint,stream}      end-to-end latency
//	tokens_total{model,type}                       input/output tokens
//	stream_outcomes_total{outcome}                 completed|cancelled|error|client_gone
//	stream_discarded_fragments_total               fragments dropped after finish
//	stream_synthesized_endings_total               streams ended without a finish reason
//	backend_attempts_total{result}                 per-attempt result (success or error kind)
//	backend_attempt_duration_seconds               per-attempt latency
//	backend_health                                 1 when the last health check passed
//	cancellations_total{source}                    api|disconnect
//	active_requests                                registered cancellable requests
//	eventlog_events_total{result}                  accepted|dropped
//
// The model label passes through a CardinalityLimiter; label sets beyond
// the limit are folded into model="other".
//
// # Usage
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	provider.SetObserver(collector)
//	mux.Handle(cfg.Telemetry.Metrics.Path, collector.Handler())
package metrics
