// Package server ties the proxy together: it builds the backend client,
// the cancellation registry, the event log and the telemetry providers
// from a configuration, mounts the handlers behind the middleware chain and
// manages the listener lifecycle.
//
// # Basic Usage
//
//	cfg, err := config.LoadConfigWithEnvOverrides("config.yaml")
//	if err != nil {
//	    return err
//	}
//
//	srv, err := server.New(cfg, version)
//	if err != nil {
//	    return err
//	}
//	return srv.Start(ctx) // blocks until ctx is done or SIGINT/SIGTERM
//
// # Routes
//
//	POST /v1/messages                 auth, body limit
//	POST /v1/messages/count_tokens    auth, body limit
//	POST /v1/requests/{id}/cancel     auth
//	POST /api/event_logging/batch     auth, body limit
//	GET  /health
//	GET  /ready                       required: backend, config; optional: event_log
//	GET  /test-connection
//	GET  /metrics                     when telemetry.metrics.enabled
//	GET  /
//
// # Middleware Chain
//
// Outermost first: recovery, request ID, tracing, logging, CORS.
//
// # Graceful Shutdown
//
// Shutdown stops the listener and waits up to proxy.shutdown_timeout for
// in-flight requests. Streams still open at the deadline are cancelled
// through the registry so their backend calls are released. The write
// timeout defaults to zero because SSE responses can run for minutes.
//
// # Configuration Reload
//
// UpdateConfig swaps the configuration used by the handlers. The command
// line wires it to config.Watcher so edits to the file apply to the next
// request without a restart.
package server
