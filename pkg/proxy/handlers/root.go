package handlers

import (
	"net/http"

	"mercator-hq/courier/pkg/proxy"
	"mercator-hq/courier/pkg/proxy/types"
)

// RootHandler serves GET / with a banner, a configuration summary and the
// endpoint list. Other unmatched paths get a 404.
type RootHandler struct {
	deps *Deps
}

// NewRootHandler creates a root handler.
func NewRootHandler(deps *Deps) *RootHandler {
	return &RootHandler{deps: deps}
}

// ServeHTTP implements http.Handler.
func (h *RootHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		_ = proxy.WriteJSONResponse(w, http.StatusNotFound,
			types.NewErrorResponse(types.ErrorTypeNotFound, "Not found: "+r.URL.Path))
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}

	cfg := h.deps.Config()
	_ = proxy.WriteJSONResponse(w, http.StatusOK, map[string]interface{}{
		"message": "Claude-to-OpenAI API Proxy " + h.deps.Version,
		"status":  "running",
		"config": map[string]interface{}{
			"openai_base_url":           cfg.Backend.BaseURL,
			"max_tokens_limit":          cfg.Limits.MaxTokens,
			"api_key_configured":        cfg.Backend.APIKey != "",
			"client_api_key_validation": cfg.Auth.ClientKeyValidationEnabled(),
			"big_model":                 cfg.Models.Big,
			"middle_model":              cfg.Models.Middle,
			"small_model":               cfg.Models.Small,
			"vision_model":              cfg.Models.Vision,
		},
		"endpoints": map[string]string{
			"messages":            "/v1/messages",
			"count_tokens":        "/v1/messages/count_tokens",
			"cancel":              "/v1/requests/{id}/cancel",
			"health":              "/health",
			"ready":               "/ready",
			"test_connection":     "/test-connection",
			"event_logging_batch": "/api/event_logging/batch",
		},
	})
}
