package logging

import (
	"context"
	"log/slog"
)

type contextKey string

const (
	// RequestIDKey is the context key for request IDs.
	RequestIDKey contextKey = "request_id"

	// ModelKey is the context key for the frontend model name.
	ModelKey contextKey = "model"

	// BackendModelKey is the context key for the mapped backend model.
	BackendModelKey contextKey = "backend_model"
)

// contextKeys lists the keys copied into log records, in output order.
var contextKeys = []contextKey{RequestIDKey, ModelKey, BackendModelKey}

// WithRequestID adds a request ID to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) string {
	return stringValue(ctx, RequestIDKey)
}

// WithModel adds the frontend model name to the context.
func WithModel(ctx context.Context, model string) context.Context {
	return context.WithValue(ctx, ModelKey, model)
}

// GetModel retrieves the frontend model name from the context.
func GetModel(ctx context.Context) string {
	return stringValue(ctx, ModelKey)
}

// WithBackendModel adds the backend model name to the context.
func WithBackendModel(ctx context.Context, model string) context.Context {
	return context.WithValue(ctx, BackendModelKey, model)
}

// GetBackendModel retrieves the backend model name from the context.
func GetBackendModel(ctx context.Context) string {
	return stringValue(ctx, BackendModelKey)
}

func stringValue(ctx context.Context, key contextKey) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}

// contextHandler adds context fields to records that do not already carry
// an attribute with the same key.
type contextHandler struct {
	next slog.Handler
}

func (h *contextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *contextHandler) Handle(ctx context.Context, r slog.Record) error {
	var extra []slog.Attr
	for _, key := range contextKeys {
		v := stringValue(ctx, key)
		if v == "" || hasAttr(r, string(key)) {
			continue
		}
		extra = append(extra, slog.String(string(key), v))
	}
	if len(extra) > 0 {
		r = r.Clone()
		r.AddAttrs(extra...)
	}
	return h.next.Handle(ctx, r)
}

func (h *contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &contextHandler{next: h.next.WithAttrs(attrs)}
}

func (h *contextHandler) WithGroup(name string) slog.Handler {
	return &contextHandler{next: h.next.WithGroup(name)}
}

func hasAttr(r slog.Record, key string) bool {
	found := false
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == key {
			found = true
			return false
		}
		return true
	})
	return found
}
