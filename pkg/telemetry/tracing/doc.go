// Package tracing wires OpenTelemetry tracing into the proxy.
//
// When telemetry.tracing.enabled is set, New installs a global tracer
// provider that exports spans over OTLP gRPC and a W3C trace-context
// propagator. Otherwise a no-op tracer is used and every helper costs
// close to nothing.
//
// Spans:
//
//	HTTP <method> <route>        one per inbound request (Middleware)
//	courier.messages             conversion, backend call and response
//	courier.backend.complete     non-streaming backend call
//	courier.backend.stream       streaming backend call and translation
//
// Outgoing backend requests carry the traceparent header so the backend
// (or a gateway in front of it) can join the trace.
package tracing
