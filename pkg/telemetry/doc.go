// Package telemetry groups the proxy's observability packages.
//
//   - logging: slog setup with request-scoped fields and key redaction
//   - metrics: Prometheus collector for requests, streams, backend
//     attempts, cancellations and the event log
//   - tracing: OpenTelemetry spans exported over OTLP gRPC
//   - health: readiness checks behind /ready
package telemetry
