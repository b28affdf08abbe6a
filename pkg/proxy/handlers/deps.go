package handlers

import (
	"mercator-hq/courier/pkg/cancel"
	"mercator-hq/courier/pkg/config"
	"mercator-hq/courier/pkg/eventlog/recorder"
	"mercator-hq/courier/pkg/providers"
	"mercator-hq/courier/pkg/telemetry/metrics"
	"mercator-hq/courier/pkg/telemetry/tracing"
)

// Cancellation sources reported to metrics.
const (
	CancelSourceAPI        = "api"
	CancelSourceDisconnect = "client_disconnect"
)

// Deps holds the collaborators shared by the handlers.
type Deps struct {
	// Backend executes chat completion calls.
	Backend providers.Backend

	// Registry holds the cancellation signals of in-flight requests. It
	// must be the registry the backend registers with.
	Registry *cancel.Registry

	// Events receives client telemetry. Nil disables the event log.
	Events *recorder.Recorder

	Metrics *metrics.Collector
	Tracer  *tracing.Tracer

	// Config returns the current configuration. It is called once per
	// request so reloads apply to the next request.
	Config func() *config.Config

	// Version is reported by the root handler.
	Version string
}
