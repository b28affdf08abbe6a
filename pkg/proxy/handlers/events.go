package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"mercator-hq/courier/pkg/eventlog"
	"mercator-hq/courier/pkg/proxy"
)

// EventLogHandler serves POST /api/event_logging/batch. Bodies are parsed
// leniently; one that cannot be parsed at all is acknowledged with zero
// events rather than rejected, since clients do not retry telemetry.
type EventLogHandler struct {
	deps *Deps
}

// NewEventLogHandler creates an event log handler.
func NewEventLogHandler(deps *Deps) *EventLogHandler {
	return &EventLogHandler{deps: deps}
}

// ServeHTTP implements http.Handler.
func (h *EventLogHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	timestamp := time.Now().UTC().Format(time.RFC3339)
	clientIP := clientIP(r)

	body, err := proxy.ReadBody(r, h.deps.Config().Proxy.MaxBodyBytes)
	if err != nil {
		proxy.WriteErrorResponse(w, err)
		return
	}

	batch, err := eventlog.ParseBatch(body)
	if err != nil {
		slog.WarnContext(ctx, "could not parse event batch", "client_ip", clientIP, "error", err)
		batch = &eventlog.Batch{}
	}
	if batch.Repaired {
		slog.InfoContext(ctx, "parsed event batch after quoting property names", "client_ip", clientIP)
	}

	if len(batch.Events) == 0 {
		slog.WarnContext(ctx, "no events in batch", "client_ip", clientIP)
		_ = proxy.WriteJSONResponse(w, http.StatusOK, map[string]interface{}{
			"status":        "success",
			"message":       "No valid events found in request",
			"timestamp":     timestamp,
			"events_logged": 0,
			"note":          "Request body may be malformed",
		})
		return
	}

	if h.deps.Events == nil {
		_ = proxy.WriteJSONResponse(w, http.StatusOK, map[string]interface{}{
			"status":        "success",
			"message":       fmt.Sprintf("Received %d events", len(batch.Events)),
			"timestamp":     timestamp,
			"events_logged": 0,
			"note":          "Event logging is disabled",
		})
		return
	}

	n, err := h.deps.Events.Record(ctx, clientIP, batch.Events)
	h.deps.Metrics.RecordEvents(len(batch.Events), err == nil)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, eventlog.ErrQueueFull) || errors.Is(err, eventlog.ErrRecorderClosed) {
			status = http.StatusServiceUnavailable
		}
		slog.ErrorContext(ctx, "failed to record events", "client_ip", clientIP, "events", len(batch.Events), "error", err)
		_ = proxy.WriteJSONResponse(w, status, map[string]interface{}{
			"status":    "error",
			"message":   err.Error(),
			"timestamp": timestamp,
		})
		return
	}

	slog.InfoContext(ctx, "processed event batch", "client_ip", clientIP, "events", n)
	_ = proxy.WriteJSONResponse(w, http.StatusOK, map[string]interface{}{
		"status":        "success",
		"message":       fmt.Sprintf("Processed %d events", n),
		"timestamp":     timestamp,
		"events_logged": n,
	})
}

// clientIP returns the host part of the peer address.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		if r.RemoteAddr == "" {
			return "unknown"
		}
		return r.RemoteAddr
	}
	return host
}
