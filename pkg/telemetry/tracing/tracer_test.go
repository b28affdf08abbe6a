package tracing

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"mercator-hq/courier/pkg/config"
)

func recordingTracer(t *testing.T) (*Tracer, *tracetest.SpanRecorder) {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })
	return newTracerWithProvider(provider), recorder
}

func TestNew_Disabled(t *testing.T) {
	tr, err := New(&config.TracingConfig{Enabled: false}, "test")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if tr.Enabled() {
		t.Error("Enabled() = true")
	}

	ctx, span := tr.Start(context.Background(), "noop")
	span.End()
	if TraceID(ctx) != "" {
		t.Error("no-op tracer produced a trace id")
	}
	if err := tr.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	if got := tr.Middleware(handler); got == nil {
		t.Error("Middleware() = nil")
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  *config.TracingConfig
	}{
		{name: "nil", cfg: nil},
		{name: "ratio too high", cfg: &config.TracingConfig{Enabled: true, SampleRatio: 1.5, Endpoint: "localhost:4317"}},
		{name: "no endpoint", cfg: &config.TracingConfig{Enabled: true, SampleRatio: 0.5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.cfg, "test"); err == nil {
				t.Error("New() succeeded")
			}
		})
	}
}

func TestNewSampler(t *testing.T) {
	for _, ratio := range []float64{0, 0.25, 1} {
		if _, err := newSampler(ratio); err != nil {
			t.Errorf("newSampler(%v) error = %v", ratio, err)
		}
	}
	if _, err := newSampler(-0.1); err == nil {
		t.Error("negative ratio accepted")
	}
}

func TestSpanAttributes(t *testing.T) {
	tr, recorder := recordingTracer(t)

	ctx, span := tr.Start(context.Background(), "courier.messages")
	SetRequestAttributes(span, "req-1", "claude-3-5-sonnet", true)
	SetBackendAttributes(span, "gpt-4o", "middle")
	SetResultAttributes(span, "end_turn", 10, 20)
	SetStreamAttributes(span, "completed", 1)
	SetStatus(span, nil)
	span.End()

	if TraceID(ctx) == "" {
		t.Error("TraceID() empty for a recording span")
	}

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("ended spans = %d", len(spans))
	}
	attrs := map[string]string{}
	for _, kv := range spans[0].Attributes() {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	want := map[string]string{
		AttrRequestID:    "req-1",
		AttrModel:        "claude-3-5-sonnet",
		AttrStream:       "true",
		AttrBackendModel: "gpt-4o",
		AttrModelRole:    "middle",
		AttrStopReason:   "end_turn",
		AttrInputTokens:  "10",
		AttrOutputTokens: "20",
		AttrOutcome:      "completed",
		AttrDiscarded:    "1",
	}
	for k, v := range want {
		if attrs[k] != v {
			t.Errorf("attribute %s = %q, want %q", k, attrs[k], v)
		}
	}
	if spans[0].Status().Code != codes.Ok {
		t.Errorf("status = %v", spans[0].Status())
	}
}

func TestSetStatus_Error(t *testing.T) {
	tr, recorder := recordingTracer(t)

	_, span := tr.Start(context.Background(), "courier.backend.complete")
	SetStatus(span, errors.New("upstream 503"))
	span.End()

	got := recorder.Ended()[0]
	if got.Status().Code != codes.Error || got.Status().Description != "upstream 503" {
		t.Errorf("status = %+v", got.Status())
	}
	if len(got.Events()) == 0 {
		t.Error("error not recorded as an event")
	}
}

func TestMiddleware_JoinsIncomingTrace(t *testing.T) {
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(prev) })

	tr, recorder := recordingTracer(t)

	var innerTraceID string
	handler := tr.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		innerTraceID = TraceID(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodPost, "/v1/messages", nil)
	req.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	const wantTrace = "4bf92f3577b34da6a3ce929d0e0e4736"
	if innerTraceID != wantTrace {
		t.Errorf("handler trace id = %q, want %q", innerTraceID, wantTrace)
	}
	if rec.Header().Get("X-Trace-ID") != wantTrace {
		t.Errorf("X-Trace-ID = %q", rec.Header().Get("X-Trace-ID"))
	}

	spans := recorder.Ended()
	if len(spans) != 1 || spans[0].Name() != "HTTP POST /v1/messages" {
		t.Fatalf("spans = %v", spans)
	}
	if spans[0].Parent().SpanID().String() != "00f067aa0ba902b7" {
		t.Errorf("parent span = %s", spans[0].Parent().SpanID())
	}
}
