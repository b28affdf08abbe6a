package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/courier/internal/mockbackend"
	"mercator-hq/courier/pkg/cancel"
	"mercator-hq/courier/pkg/config"
	"mercator-hq/courier/pkg/eventlog/recorder"
	"mercator-hq/courier/pkg/providers/openai"
	"mercator-hq/courier/pkg/proxy/types"
	"mercator-hq/courier/pkg/telemetry/logging"
	"mercator-hq/courier/pkg/telemetry/metrics"
	"mercator-hq/courier/pkg/telemetry/tracing"
)

func newTestDeps(t *testing.T, mock *mockbackend.Server) *Deps {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Backend.BaseURL = mock.URL()
	cfg.Backend.APIKey = "sk-test-key-1234567890"
	cfg.Backend.MaxRetries = 0
	cfg.Backend.RetryBackoff = time.Millisecond
	cfg.Backend.Timeout = 5 * time.Second
	cfg.Models.Big = "big-model"
	cfg.Models.Middle = "middle-model"
	cfg.Models.Small = "small-model"

	registry := cancel.NewRegistry()
	client := openai.NewClient(openai.ProviderConfig(&cfg.Backend), registry)
	t.Cleanup(func() { client.Close() })

	tracer, err := tracing.New(&config.TracingConfig{}, "test")
	if err != nil {
		t.Fatalf("tracing.New: %v", err)
	}

	return &Deps{
		Backend:  client,
		Registry: registry,
		Metrics:  metrics.NewCollector(&cfg.Telemetry.Metrics, prometheus.NewRegistry()),
		Tracer:   tracer,
		Config:   func() *config.Config { return cfg },
		Version:  "test",
	}
}

func postJSON(path, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

const simpleRequest = `{
	"model": "claude-3-5-haiku-20241022",
	"max_tokens": 256,
	"messages": [{"role": "user", "content": "Hello, world!"}]
}`

const streamRequest = `{
	"model": "claude-3-5-sonnet-20241022",
	"max_tokens": 256,
	"stream": true,
	"messages": [{"role": "user", "content": "Hello"}]
}`

func TestMessagesHandler_NonStreaming(t *testing.T) {
	mock := mockbackend.NewServer()
	defer mock.Close()
	mock.SetResponse(mockbackend.CompletionsPath, mockbackend.Response{
		Body: mockbackend.CompletionBody("Hello there", "small-model"),
	})

	deps := newTestDeps(t, mock)
	w := httptest.NewRecorder()
	NewMessagesHandler(deps).ServeHTTP(w, postJSON("/v1/messages", simpleRequest))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var resp types.MessagesResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Type != "message" || resp.Role != types.RoleAssistant {
		t.Errorf("type/role = %q/%q", resp.Type, resp.Role)
	}
	if resp.Model != "claude-3-5-haiku-20241022" {
		t.Errorf("model = %q, want the requested model", resp.Model)
	}
	if len(resp.Content) != 1 || resp.Content[0].Text != "Hello there" {
		t.Errorf("content = %+v", resp.Content)
	}
	if resp.StopReason == nil || *resp.StopReason != types.StopReasonEndTurn {
		t.Errorf("stop_reason = %v", resp.StopReason)
	}
	if resp.Usage.InputTokens != 10 || resp.Usage.OutputTokens != 20 {
		t.Errorf("usage = %+v", resp.Usage)
	}

	last, ok := mock.LastRequest()
	if !ok {
		t.Fatal("backend received no request")
	}
	var sent struct {
		Model  string `json:"model"`
		Stream bool   `json:"stream"`
	}
	if err := json.Unmarshal(last.Body, &sent); err != nil {
		t.Fatalf("decode backend request: %v", err)
	}
	if sent.Model != "small-model" || sent.Stream {
		t.Errorf("backend request model=%q stream=%v", sent.Model, sent.Stream)
	}
	if got := last.Header.Get("Authorization"); got != "Bearer sk-test-key-1234567890" {
		t.Errorf("Authorization = %q", got)
	}
	if deps.Registry.Len() != 0 {
		t.Errorf("registry holds %d entries after the request", deps.Registry.Len())
	}
}

func TestMessagesHandler_Streaming(t *testing.T) {
	mock := mockbackend.NewServer()
	defer mock.Close()
	mock.SetResponse(mockbackend.CompletionsPath, mockbackend.Response{
		StreamChunks: []string{
			mockbackend.TextChunk("A"),
			mockbackend.FinishChunk("stop"),
			mockbackend.TextChunk("B"),
		},
	})

	deps := newTestDeps(t, mock)
	w := httptest.NewRecorder()
	NewMessagesHandler(deps).ServeHTTP(w, postJSON("/v1/messages", streamRequest))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}

	body := w.Body.String()
	if !strings.HasPrefix(body, "event: message_start\n") {
		t.Errorf("stream does not open with message_start: %q", body)
	}
	if n := strings.Count(body, "event: message_stop\n"); n != 1 {
		t.Errorf("message_stop count = %d", n)
	}
	if !strings.Contains(body, `"text":"A"`) {
		t.Error("text before finish missing")
	}
	if strings.Contains(body, `"text":"B"`) {
		t.Error("text after finish was emitted")
	}
	if !strings.Contains(body, `"stop_reason":"end_turn"`) {
		t.Error("message_delta without end_turn")
	}

	last, _ := mock.LastRequest()
	if !strings.Contains(string(last.Body), `"include_usage":true`) {
		t.Errorf("stream_options not forced: %s", last.Body)
	}
}

func TestMessagesHandler_Errors(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		body       string
		backend    *mockbackend.Response
		wantStatus int
		wantType   string
	}{
		{
			name:       "wrong method",
			method:     http.MethodGet,
			wantStatus: http.StatusMethodNotAllowed,
			wantType:   types.ErrorTypeInvalidRequest,
		},
		{
			name:       "invalid JSON",
			body:       `{"model":`,
			wantStatus: http.StatusBadRequest,
			wantType:   types.ErrorTypeInvalidRequest,
		},
		{
			name:       "missing messages",
			body:       `{"model":"claude-3-opus","max_tokens":10}`,
			wantStatus: http.StatusBadRequest,
			wantType:   types.ErrorTypeInvalidRequest,
		},
		{
			name:       "backend auth failure",
			body:       simpleRequest,
			backend:    ptr(mockbackend.AuthError()),
			wantStatus: http.StatusUnauthorized,
			wantType:   types.ErrorTypeAuthentication,
		},
		{
			name:       "backend rate limit",
			body:       simpleRequest,
			backend:    ptr(mockbackend.RateLimitError(1)),
			wantStatus: http.StatusTooManyRequests,
			wantType:   types.ErrorTypeRateLimit,
		},
		{
			name:       "streaming setup failure is plain JSON",
			body:       streamRequest,
			backend:    ptr(mockbackend.ServerError()),
			wantStatus: http.StatusInternalServerError,
			wantType:   types.ErrorTypeAPI,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := mockbackend.NewServer()
			defer mock.Close()
			if tt.backend != nil {
				mock.SetResponse(mockbackend.CompletionsPath, *tt.backend)
			}

			method := tt.method
			if method == "" {
				method = http.MethodPost
			}
			req := httptest.NewRequest(method, "/v1/messages", strings.NewReader(tt.body))

			w := httptest.NewRecorder()
			NewMessagesHandler(newTestDeps(t, mock)).ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d; body = %s", w.Code, tt.wantStatus, w.Body.String())
			}
			if ct := w.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q", ct)
			}

			var resp types.ErrorResponse
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode error: %v", err)
			}
			if resp.Type != "error" || resp.Error.Type != tt.wantType {
				t.Errorf("error = %+v, want type %q", resp, tt.wantType)
			}
			if resp.Error.Message == "" {
				t.Error("error message is empty")
			}
		})
	}
}

func TestMessagesHandler_CancelStream(t *testing.T) {
	mock := mockbackend.NewServer()
	defer mock.Close()
	mock.SetResponse(mockbackend.CompletionsPath, mockbackend.Response{
		StreamChunks: []string{mockbackend.TextChunk("partial")},
		Hang:         true,
	})

	deps := newTestDeps(t, mock)
	const requestID = "req-cancel-1"

	req := postJSON("/v1/messages", streamRequest)
	req = req.WithContext(logging.WithRequestID(req.Context(), requestID))
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		defer close(done)
		NewMessagesHandler(deps).ServeHTTP(w, req)
	}()

	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, ok := deps.Registry.Lookup(requestID); ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("request never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cw := httptest.NewRecorder()
	NewCancelHandler(deps).ServeHTTP(cw, cancelRequest(requestID))
	if cw.Code != http.StatusOK {
		t.Fatalf("cancel status = %d, body = %s", cw.Code, cw.Body.String())
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not end after cancel")
	}

	body := w.Body.String()
	if !strings.Contains(body, "event: error\n") || !strings.Contains(body, types.ErrorTypeCancelled) {
		t.Errorf("no cancellation error event: %s", body)
	}
	if strings.Contains(body, "event: message_stop") {
		t.Error("cancelled stream emitted message_stop")
	}
	if deps.Registry.Len() != 0 {
		t.Errorf("registry holds %d entries after cancel", deps.Registry.Len())
	}
}

func cancelRequest(id string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/v1/requests/"+id+"/cancel", nil)
	req.SetPathValue("id", id)
	return req
}

func TestCancelHandler_UnknownID(t *testing.T) {
	mock := mockbackend.NewServer()
	defer mock.Close()

	w := httptest.NewRecorder()
	NewCancelHandler(newTestDeps(t, mock)).ServeHTTP(w, cancelRequest("nobody"))

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d", w.Code)
	}
}

func TestCountTokensHandler(t *testing.T) {
	mock := mockbackend.NewServer()
	defer mock.Close()
	deps := newTestDeps(t, mock)

	body := `{
		"model": "claude-3-opus",
		"system": "abcdefgh",
		"messages": [{"role": "user", "content": [{"type": "text", "text": "abcdefgh"}]}]
	}`
	w := httptest.NewRecorder()
	NewCountTokensHandler(deps).ServeHTTP(w, postJSON("/v1/messages/count_tokens", body))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp types.TokenCountResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.InputTokens != 4 {
		t.Errorf("input_tokens = %d, want 4", resp.InputTokens)
	}
	if mock.RequestCount() != 0 {
		t.Error("count_tokens contacted the backend")
	}
}

func TestHealthHandler(t *testing.T) {
	mock := mockbackend.NewServer()
	defer mock.Close()
	deps := newTestDeps(t, mock)

	w := httptest.NewRecorder()
	NewHealthHandler(deps).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp["status"] != "healthy" || resp["openai_api_configured"] != true || resp["api_key_valid"] != true {
		t.Errorf("health = %v", resp)
	}
	if resp["client_api_key_validation"] != false {
		t.Errorf("client validation reported on by default: %v", resp)
	}
	if _, ok := resp["backend"].(map[string]interface{}); !ok {
		t.Errorf("backend section missing: %v", resp)
	}
}

func TestTestConnectionHandler(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		mock := mockbackend.NewServer()
		defer mock.Close()

		w := httptest.NewRecorder()
		NewTestConnectionHandler(newTestDeps(t, mock)).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test-connection", nil))

		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
		}
		var resp map[string]interface{}
		_ = json.Unmarshal(w.Body.Bytes(), &resp)
		if resp["status"] != "success" || resp["model_used"] != "small-model" || resp["response_id"] != "chatcmpl-mock" {
			t.Errorf("response = %v", resp)
		}

		last, _ := mock.LastRequest()
		if !strings.Contains(string(last.Body), `"max_tokens":5`) {
			t.Errorf("backend request = %s", last.Body)
		}
	})

	t.Run("failure", func(t *testing.T) {
		mock := mockbackend.NewServer()
		defer mock.Close()
		mock.SetResponse(mockbackend.CompletionsPath, mockbackend.AuthError())

		w := httptest.NewRecorder()
		NewTestConnectionHandler(newTestDeps(t, mock)).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test-connection", nil))

		if w.Code != http.StatusServiceUnavailable {
			t.Fatalf("status = %d", w.Code)
		}
		var resp struct {
			Status      string   `json:"status"`
			Suggestions []string `json:"suggestions"`
		}
		_ = json.Unmarshal(w.Body.Bytes(), &resp)
		if resp.Status != "failed" || len(resp.Suggestions) != 3 {
			t.Errorf("response = %+v", resp)
		}
	})
}

func TestEventLogHandler(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantLogged float64
		wantNote   bool
	}{
		{name: "array", body: `[{"event_type":"a"},{"event_type":"b"}]`, wantLogged: 2},
		{name: "single object", body: `{"event_type":"a"}`, wantLogged: 1},
		{name: "scalar", body: `"just a string"`, wantLogged: 1},
		{name: "unquoted keys", body: `{event_type: "a", seq: 1}`, wantLogged: 1},
		{name: "garbage", body: `not json at all`, wantLogged: 0, wantNote: true},
		{name: "empty", body: ``, wantLogged: 0, wantNote: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := mockbackend.NewServer()
			defer mock.Close()
			deps := newTestDeps(t, mock)

			rec, err := recorder.Open(context.Background(), config.EventLogConfig{
				Enabled:    true,
				Backend:    "memory",
				BufferSize: 10,
			})
			if err != nil {
				t.Fatalf("recorder.Open: %v", err)
			}
			t.Cleanup(func() { rec.Close() })
			deps.Events = rec

			w := httptest.NewRecorder()
			NewEventLogHandler(deps).ServeHTTP(w, postJSON("/api/event_logging/batch", tt.body))

			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
			}
			var resp map[string]interface{}
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatal(err)
			}
			if resp["events_logged"] != tt.wantLogged {
				t.Errorf("events_logged = %v, want %v", resp["events_logged"], tt.wantLogged)
			}
			if _, hasNote := resp["note"]; hasNote != tt.wantNote {
				t.Errorf("note present = %v, want %v", hasNote, tt.wantNote)
			}

			deadline := time.Now().Add(2 * time.Second)
			for {
				n, err := rec.Count(context.Background())
				if err != nil {
					t.Fatalf("Count: %v", err)
				}
				if float64(n) == tt.wantLogged {
					break
				}
				if time.Now().After(deadline) {
					t.Fatalf("stored %d events, want %v", n, tt.wantLogged)
				}
				time.Sleep(5 * time.Millisecond)
			}
		})
	}

	t.Run("disabled", func(t *testing.T) {
		mock := mockbackend.NewServer()
		defer mock.Close()

		w := httptest.NewRecorder()
		NewEventLogHandler(newTestDeps(t, mock)).ServeHTTP(w, postJSON("/api/event_logging/batch", `[{"a":1}]`))

		var resp map[string]interface{}
		_ = json.Unmarshal(w.Body.Bytes(), &resp)
		if w.Code != http.StatusOK || resp["events_logged"] != float64(0) || resp["note"] == nil {
			t.Errorf("status = %d, response = %v", w.Code, resp)
		}
	})
}

func TestRootHandler(t *testing.T) {
	mock := mockbackend.NewServer()
	defer mock.Close()
	handler := NewRootHandler(newTestDeps(t, mock))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"/v1/messages"`) {
		t.Errorf("status = %d, body = %s", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown path status = %d", w.Code)
	}
}

func ptr[T any](v T) *T {
	return &v
}
