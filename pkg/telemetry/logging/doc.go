// Package logging configures the process-wide slog logger.
//
// New builds a JSON or text handler and wraps it twice:
//
//   - contextHandler copies request-scoped fields (request_id, model,
//     backend_model) from the context into every record logged with a
//     *Context method.
//   - redactHandler masks API keys and bearer tokens, both by attribute
//     name (api_key, authorization, ...) and by value pattern (sk-...,
//     "Bearer ..."), when RedactKeys is set.
//
// The level is held in a slog.LevelVar so a config reload can change it
// without rebuilding the handler chain.
//
// # Usage
//
//	logger, err := logging.New(logging.FromConfig(cfg.Telemetry.Logging))
//	if err != nil {
//	    return err
//	}
//	slog.SetDefault(logger.Logger)
//
//	ctx = logging.WithRequestID(ctx, requestID)
//	slog.InfoContext(ctx, "forwarding request", "backend_model", model)
//	// {"level":"INFO","msg":"forwarding request","backend_model":"gpt-4o","request_id":"..."}
package logging
