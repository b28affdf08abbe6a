package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"mercator-hq/courier/pkg/providers"
	"mercator-hq/courier/pkg/proxy"
)

// testConnectionMaxTokens bounds the completion sent by /test-connection.
const testConnectionMaxTokens = 5

// connectionSuggestions are returned when the connection test fails.
var connectionSuggestions = []string{
	"Check your OPENAI_API_KEY is valid",
	"Verify your API key has the necessary permissions",
	"Check if you have reached rate limits",
}

// HealthHandler serves GET /health. It always answers 200 while the
// process is up and summarizes the configuration and backend state.
type HealthHandler struct {
	deps *Deps
}

// NewHealthHandler creates a health handler.
func NewHealthHandler(deps *Deps) *HealthHandler {
	return &HealthHandler{deps: deps}
}

// ServeHTTP implements http.Handler.
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}

	cfg := h.deps.Config()
	health := h.deps.Backend.GetHealth()

	backend := map[string]interface{}{
		"healthy":              health.IsHealthy,
		"consecutive_failures": health.ConsecutiveFailures,
		"total_requests":       health.TotalRequests,
		"failed_requests":      health.FailedRequests,
	}
	if !health.LastCheck.IsZero() {
		backend["last_check"] = health.LastCheck.UTC().Format(time.RFC3339)
	}
	if health.LastError != nil {
		backend["last_error"] = health.LastError.Error()
	}

	response := map[string]interface{}{
		"status":                    "healthy",
		"timestamp":                 time.Now().UTC().Format(time.RFC3339),
		"openai_api_configured":     cfg.Backend.APIKey != "",
		"api_key_valid":             cfg.Backend.APIKeyLooksValid(),
		"client_api_key_validation": cfg.Auth.ClientKeyValidationEnabled(),
		"active_requests":           h.deps.Registry.Len(),
		"backend":                   backend,
	}

	if err := proxy.WriteJSONResponse(w, http.StatusOK, response); err != nil {
		slog.ErrorContext(r.Context(), "failed to write health response", "error", err)
	}
}

// TestConnectionHandler serves GET /test-connection by sending a tiny
// completion to the small model.
type TestConnectionHandler struct {
	deps *Deps
}

// NewTestConnectionHandler creates a connection test handler.
func NewTestConnectionHandler(deps *Deps) *TestConnectionHandler {
	return &TestConnectionHandler{deps: deps}
}

// ServeHTTP implements http.Handler.
func (h *TestConnectionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}

	model := h.deps.Config().Models.Small
	resp, err := TestConnection(ctx, h.deps.Backend, model)
	timestamp := time.Now().UTC().Format(time.RFC3339)

	if err != nil {
		slog.ErrorContext(ctx, "API connectivity test failed", "model", model, "error", err)
		message := err.Error()
		if e := providers.AsError(err); e != nil {
			message = e.FriendlyMessage()
		}
		_ = proxy.WriteJSONResponse(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":      "failed",
			"error_type":  "API Error",
			"message":     message,
			"timestamp":   timestamp,
			"suggestions": connectionSuggestions,
		})
		return
	}

	responseID := resp.ID
	if responseID == "" {
		responseID = "unknown"
	}
	_ = proxy.WriteJSONResponse(w, http.StatusOK, map[string]interface{}{
		"status":      "success",
		"message":     "Successfully connected to OpenAI API",
		"model_used":  model,
		"timestamp":   timestamp,
		"response_id": responseID,
	})
}

// TestConnection sends a five token "Hello" completion to model. It is
// shared by the /test-connection endpoint and the check command.
func TestConnection(ctx context.Context, backend providers.Backend, model string) (*providers.ChatResponse, error) {
	return backend.Complete(ctx, &providers.ChatRequest{
		Model: model,
		Messages: []providers.Message{
			{Role: providers.RoleUser, Content: "Hello"},
		},
		MaxTokens: testConnectionMaxTokens,
	}, "")
}
