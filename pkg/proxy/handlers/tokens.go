package handlers

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"mercator-hq/courier/pkg/processing/tokens"
	"mercator-hq/courier/pkg/proxy"
	"mercator-hq/courier/pkg/proxy/types"
)

const endpointCountTokens = "count_tokens"

// CountTokensHandler serves POST /v1/messages/count_tokens.
type CountTokensHandler struct {
	deps *Deps
}

// NewCountTokensHandler creates a token count handler.
func NewCountTokensHandler(deps *Deps) *CountTokensHandler {
	return &CountTokensHandler{deps: deps}
}

// ServeHTTP implements http.Handler.
func (h *CountTokensHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	req, err := proxy.ParseTokenCountRequest(r, h.deps.Config().Proxy.MaxBodyBytes)
	if err != nil {
		slog.WarnContext(ctx, "invalid count_tokens request", "error", err)
		status := proxy.WriteErrorResponse(w, err)
		h.deps.Metrics.RecordRequest(endpointCountTokens, "", strconv.Itoa(status), false, time.Since(startTime))
		return
	}

	count := tokens.CountInputTokens(req.System, req.Messages)
	slog.DebugContext(ctx, "counted input tokens", "model", req.Model, "input_tokens", count)

	if err := proxy.WriteJSONResponse(w, http.StatusOK, types.TokenCountResponse{InputTokens: count}); err != nil {
		slog.ErrorContext(ctx, "failed to write response", "error", err)
	}
	h.deps.Metrics.RecordRequest(endpointCountTokens, req.Model, strconv.Itoa(http.StatusOK), false, time.Since(startTime))
}
