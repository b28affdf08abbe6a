package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/trace"

	"mercator-hq/courier/pkg/config"
	"mercator-hq/courier/pkg/processing/tokens"
	"mercator-hq/courier/pkg/providers"
	"mercator-hq/courier/pkg/proxy"
	"mercator-hq/courier/pkg/proxy/middleware"
	"mercator-hq/courier/pkg/proxy/types"
	"mercator-hq/courier/pkg/telemetry/logging"
	"mercator-hq/courier/pkg/telemetry/tracing"
)

const endpointMessages = "messages"

// MessagesHandler serves POST /v1/messages.
type MessagesHandler struct {
	deps *Deps
}

// NewMessagesHandler creates a messages handler.
func NewMessagesHandler(deps *Deps) *MessagesHandler {
	return &MessagesHandler{deps: deps}
}

// ServeHTTP implements http.Handler.
func (h *MessagesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()
	requestID := middleware.GetRequestID(ctx)

	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	cfg := h.deps.Config()

	req, err := proxy.ParseMessagesRequest(r, cfg.Proxy.MaxBodyBytes)
	if err != nil {
		slog.WarnContext(ctx, "invalid messages request", "error", err)
		status := proxy.WriteErrorResponse(w, err)
		h.deps.Metrics.RecordRequest(endpointMessages, "", strconv.Itoa(status), false, time.Since(startTime))
		return
	}

	ctx = logging.WithModel(ctx, req.Model)
	ctx, span := h.deps.Tracer.Start(ctx, "messages")
	defer span.End()
	tracing.SetRequestAttributes(span, requestID, req.Model, req.Stream)

	converter := proxy.NewConverter(cfg)
	selection := converter.Route(req)
	backendReq, err := converter.Convert(ctx, req)
	if err != nil {
		slog.WarnContext(ctx, "request conversion failed", "error", err)
		tracing.SetStatus(span, err)
		status := proxy.WriteErrorResponse(w, err)
		h.deps.Metrics.RecordRequest(endpointMessages, req.Model, strconv.Itoa(status), req.Stream, time.Since(startTime))
		return
	}

	ctx = logging.WithBackendModel(ctx, backendReq.Model)
	tracing.SetBackendAttributes(span, backendReq.Model, string(selection.Role))

	meta := proxy.ExtractRequestMetadata(r, req, requestID)
	meta.BackendModel = backendReq.Model
	slog.InfoContext(ctx, "processing messages request", meta.LogAttrs()...)

	var result *proxy.ResponseMetadata
	if req.Stream {
		result = h.stream(ctx, w, span, cfg, req, backendReq, requestID)
	} else {
		result = h.complete(ctx, w, span, req, backendReq, requestID)
	}
	result.Latency = time.Since(startTime)

	h.deps.Metrics.RecordRequest(endpointMessages, req.Model, strconv.Itoa(result.StatusCode), req.Stream, result.Latency)
	if result.IsSuccess() {
		h.deps.Metrics.RecordTokens(req.Model, result.Usage.InputTokens, result.Usage.OutputTokens)
	}
	tracing.SetResultAttributes(span, result.StopReason, result.Usage.InputTokens, result.Usage.OutputTokens)
	tracing.SetStatus(span, result.Error)

	attrs := []any{
		"status", result.StatusCode,
		"outcome", result.Outcome,
		"stop_reason", result.StopReason,
		"input_tokens", result.Usage.InputTokens,
		"output_tokens", result.Usage.OutputTokens,
		"total_latency_ms", result.Latency.Milliseconds(),
	}
	if result.Error != nil {
		slog.WarnContext(ctx, "messages request failed", append(attrs, "error", result.Error)...)
		return
	}
	slog.InfoContext(ctx, "messages request completed", attrs...)
}

// complete handles a non-streaming request.
func (h *MessagesHandler) complete(ctx context.Context, w http.ResponseWriter, span trace.Span, req *types.MessagesRequest, backendReq *providers.ChatRequest, requestID string) *proxy.ResponseMetadata {
	result := &proxy.ResponseMetadata{RequestID: requestID}

	backendStart := time.Now()
	resp, err := h.deps.Backend.Complete(ctx, backendReq, requestID)
	if err != nil {
		result.Error = err
		result.Outcome = proxy.OutcomeError
		if providers.IsCancelled(err) {
			result.Outcome = proxy.OutcomeCancelled
		}
		if ctx.Err() != nil {
			h.noteDisconnect(ctx, requestID)
		}
		result.StatusCode = proxy.WriteErrorResponse(w, err)
		return result
	}

	out := proxy.AssembleResponse(resp, req)
	slog.DebugContext(ctx, "backend call finished",
		"backend_latency_ms", time.Since(backendStart).Milliseconds(),
		"blocks", len(out.Content),
	)

	result.StatusCode = http.StatusOK
	result.Outcome = proxy.OutcomeCompleted
	result.Usage = out.Usage
	if out.StopReason != nil {
		result.StopReason = *out.StopReason
	}

	if err := proxy.WriteJSONResponse(w, http.StatusOK, out); err != nil {
		slog.ErrorContext(ctx, "failed to write response", "error", err)
	}
	return result
}

// stream handles a streaming request. Setup failures are answered with a
// JSON error; after that every failure is reported in the stream.
func (h *MessagesHandler) stream(ctx context.Context, w http.ResponseWriter, span trace.Span, cfg *config.Config, req *types.MessagesRequest, backendReq *providers.ChatRequest, requestID string) *proxy.ResponseMetadata {
	result := &proxy.ResponseMetadata{RequestID: requestID}

	src, err := h.deps.Backend.Stream(ctx, backendReq, requestID)
	if err != nil {
		result.Error = err
		result.Outcome = proxy.OutcomeError
		result.StatusCode = proxy.WriteErrorResponse(w, err)
		return result
	}
	defer src.Close()

	sig, _ := h.deps.Registry.Lookup(requestID)
	sse := proxy.NewSSEWriter(w)

	var summary proxy.StreamSummary
	translator := &proxy.StreamTranslator{
		MessageID:           proxy.NewMessageID(),
		InputTokens:         tokens.CountInputTokens(req.System, req.Messages),
		AcceptTrailingUsage: cfg.Translation.AcceptTrailingUsage,
		Canceled: func() bool {
			return sig != nil && sig.IsSet()
		},
		OnComplete: func(s proxy.StreamSummary) {
			summary = s
		},
	}

	err = translator.Translate(ctx, src, req, sse.WriteEvent)

	result.StatusCode = http.StatusOK
	result.Outcome = summary.Outcome
	result.StopReason = summary.StopReason
	result.Usage = summary.Usage
	result.Error = err

	if summary.Outcome == proxy.OutcomeClientGone || ctx.Err() != nil {
		h.noteDisconnect(ctx, requestID)
	}

	h.deps.Metrics.RecordStream(summary.Outcome, summary.Discarded, summary.Synthesized)
	tracing.SetStreamAttributes(span, summary.Outcome, summary.Discarded)

	slog.DebugContext(ctx, "stream translated",
		"outcome", summary.Outcome,
		"blocks", summary.Blocks,
		"tool_calls", summary.ToolCalls,
		"fragments", summary.Fragments,
		"discarded", summary.Discarded,
		"synthesized_stop", summary.Synthesized,
	)
	return result
}

// noteDisconnect fires the request's signal after the client has gone away
// so the backend call is abandoned.
func (h *MessagesHandler) noteDisconnect(ctx context.Context, requestID string) {
	h.deps.Registry.Cancel(requestID)
	h.deps.Metrics.RecordCancellation(CancelSourceDisconnect)
	slog.InfoContext(ctx, "client disconnected, request abandoned")
}

// methodNotAllowed answers with 405 in the Anthropic error format.
func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed string) {
	w.Header().Set("Allow", allowed)
	_ = proxy.WriteJSONResponse(w, http.StatusMethodNotAllowed, types.NewInvalidRequestError(
		fmt.Sprintf("Method %s not allowed. Use %s instead.", r.Method, allowed),
	))
}
