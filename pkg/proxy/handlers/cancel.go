package handlers

import (
	"log/slog"
	"net/http"

	"mercator-hq/courier/pkg/proxy"
	"mercator-hq/courier/pkg/proxy/types"
)

// CancelHandler serves POST /v1/requests/{id}/cancel. The id is the
// X-Request-ID of the request to stop.
type CancelHandler struct {
	deps *Deps
}

// NewCancelHandler creates a cancel handler.
func NewCancelHandler(deps *Deps) *CancelHandler {
	return &CancelHandler{deps: deps}
}

// CancelResponse is the body of a successful cancel.
type CancelResponse struct {
	ID        string `json:"id"`
	Cancelled bool   `json:"cancelled"`
}

// ServeHTTP implements http.Handler.
func (h *CancelHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	id := r.PathValue("id")
	if id == "" {
		_ = proxy.WriteJSONResponse(w, http.StatusBadRequest, types.NewInvalidRequestError("request id is required"))
		return
	}

	if !h.deps.Registry.Cancel(id) {
		slog.InfoContext(ctx, "cancel for unknown or finished request", "target_request_id", id)
		_ = proxy.WriteJSONResponse(w, http.StatusNotFound,
			types.NewErrorResponse(types.ErrorTypeNotFound, "No active request with id "+id))
		return
	}

	h.deps.Metrics.RecordCancellation(CancelSourceAPI)
	_ = proxy.WriteJSONResponse(w, http.StatusOK, CancelResponse{ID: id, Cancelled: true})
}
