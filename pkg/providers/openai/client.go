package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"mercator-hq/courier/pkg/cancel"
	"mercator-hq/courier/pkg/config"
	"mercator-hq/courier/pkg/providers"
)

const tracerName = "mercator-hq/courier/pkg/providers/openai"

// Client talks to an OpenAI-compatible chat completions endpoint. It
// implements providers.Backend.
type Client struct {
	*providers.HTTPProvider

	registry *cancel.Registry
	tracer   trace.Tracer
	azure    bool
}

// NewClient creates a client. registry may be nil, in which case request
// ids are ignored and calls cannot be cancelled externally.
func NewClient(cfg providers.ProviderConfig, registry *cancel.Registry) *Client {
	return &Client{
		HTTPProvider: providers.NewHTTPProvider(cfg),
		registry:     registry,
		tracer:       otel.Tracer(tracerName),
		azure:        cfg.APIVersion != "",
	}
}

// ProviderConfig converts the backend section of the configuration.
func ProviderConfig(cfg *config.BackendConfig) providers.ProviderConfig {
	return providers.ProviderConfig{
		Name:                "openai",
		BaseURL:             cfg.BaseURL,
		APIKey:              cfg.APIKey,
		APIVersion:          cfg.APIVersion,
		Timeout:             cfg.Timeout,
		MaxRetries:          cfg.MaxRetries,
		RetryBackoff:        cfg.RetryBackoff,
		HealthCheckInterval: cfg.HealthCheckInterval,
		CustomHeaders:       cfg.CustomHeaders,
	}
}

// StartHealthChecker probes the models endpoint in the background.
func (c *Client) StartHealthChecker(ctx context.Context) {
	c.HTTPProvider.StartHealthChecker(ctx, c.HealthCheck)
}

// HealthCheck sends one GET /models request.
func (c *Client) HealthCheck(ctx context.Context) error {
	return c.Probe(ctx, "/models", c.headers(false))
}

// Complete sends a non-streaming request.
func (c *Client) Complete(ctx context.Context, req *providers.ChatRequest, requestID string) (*providers.ChatResponse, error) {
	ctx, span := c.tracer.Start(ctx, "backend.complete", trace.WithAttributes(
		attribute.String("llm.model", req.Model),
		attribute.String("request.id", requestID),
	))
	defer span.End()

	body := *req
	body.Stream = false
	body.StreamOptions = nil

	payload, err := json.Marshal(&body)
	if err != nil {
		return nil, failSpan(span, &providers.Error{Kind: providers.KindInternal, Message: "failed to marshal request", Cause: err})
	}

	sig, release, perr := c.register(requestID)
	if perr != nil {
		return nil, failSpan(span, perr)
	}
	defer release()

	resp, err := c.DoRequest(ctx, &providers.Request{
		Method:  http.MethodPost,
		URL:     c.completionsURL(req.Model),
		Body:    payload,
		Headers: c.headers(false),
		Cancel:  signalDone(sig),
	})
	if err != nil {
		return nil, failSpan(span, err)
	}

	stop := closeOnSignal(sig, resp.Body)
	data, readErr := io.ReadAll(resp.Body)
	stop()
	resp.Body.Close()

	if sig != nil && sig.IsSet() {
		return nil, failSpan(span, providers.NewCancelledError("request cancelled"))
	}
	if readErr != nil {
		return nil, failSpan(span, providers.ClassifyTransportError(ctx, readErr))
	}

	var out providers.ChatResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, failSpan(span, &providers.Error{
			Kind:    providers.KindInternal,
			Message: fmt.Sprintf("failed to decode backend response: %v", err),
			Cause:   err,
		})
	}
	if len(out.Choices) == 0 {
		return nil, failSpan(span, &providers.Error{Kind: providers.KindInternal, Message: "backend response has no choices"})
	}

	if out.Usage != nil {
		span.SetAttributes(
			attribute.Int("llm.usage.prompt_tokens", out.Usage.PromptTokens),
			attribute.Int("llm.usage.completion_tokens", out.Usage.CompletionTokens),
		)
	}
	return &out, nil
}

// Stream opens a streaming request. The request is copied and always sent
// with stream=true and stream_options.include_usage=true. The returned
// reader must be closed; closing it releases the cancellation entry.
func (c *Client) Stream(ctx context.Context, req *providers.ChatRequest, requestID string) (providers.StreamReader, error) {
	ctx, span := c.tracer.Start(ctx, "backend.stream", trace.WithAttributes(
		attribute.String("llm.model", req.Model),
		attribute.String("request.id", requestID),
	))

	body := *req
	body.Stream = true
	body.StreamOptions = &providers.StreamOptions{IncludeUsage: true}

	payload, err := json.Marshal(&body)
	if err != nil {
		err = failSpan(span, &providers.Error{Kind: providers.KindInternal, Message: "failed to marshal request", Cause: err})
		span.End()
		return nil, err
	}

	sig, release, perr := c.register(requestID)
	if perr != nil {
		err := failSpan(span, perr)
		span.End()
		return nil, err
	}

	resp, err := c.DoRequest(ctx, &providers.Request{
		Method:  http.MethodPost,
		URL:     c.completionsURL(req.Model),
		Body:    payload,
		Headers: c.headers(true),
		Stream:  true,
		Cancel:  signalDone(sig),
	})
	if err != nil {
		release()
		err = failSpan(span, err)
		span.End()
		return nil, err
	}

	return newStreamReader(resp.Body, sig, func() {
		release()
		span.End()
	}), nil
}

// register creates the cancellation entry for requestID.
func (c *Client) register(requestID string) (*cancel.Signal, func(), *providers.Error) {
	if requestID == "" || c.registry == nil {
		return nil, func() {}, nil
	}
	sig, err := c.registry.Register(requestID)
	if err != nil {
		return nil, nil, &providers.Error{
			Kind:    providers.KindInternal,
			Message: fmt.Sprintf("cannot register request %q", requestID),
			Cause:   err,
		}
	}
	return sig, func() { c.registry.Release(requestID, sig) }, nil
}

// completionsURL returns the chat completions endpoint for model.
func (c *Client) completionsURL(model string) string {
	base := strings.TrimRight(c.GetConfig().BaseURL, "/")
	if !c.azure {
		return base + "/chat/completions"
	}
	return fmt.Sprintf("%s/openai/deployments/%s/chat/completions?api-version=%s",
		base, url.PathEscape(model), url.QueryEscape(c.GetConfig().APIVersion))
}

func (c *Client) headers(stream bool) map[string]string {
	h := make(map[string]string, 3)
	key := c.GetConfig().APIKey
	if c.azure {
		h["api-key"] = key
	} else if key != "" {
		h["Authorization"] = "Bearer " + key
	}
	if stream {
		h["Accept"] = "text/event-stream"
	}
	return h
}

func signalDone(sig *cancel.Signal) <-chan struct{} {
	if sig == nil {
		return nil
	}
	return sig.Done()
}

// closeOnSignal closes body if sig fires before the returned stop function
// is called.
func closeOnSignal(sig *cancel.Signal, body io.Closer) func() {
	if sig == nil {
		return func() {}
	}
	stop := make(chan struct{})
	go func() {
		select {
		case <-sig.Done():
			body.Close()
		case <-stop:
		}
	}()
	return func() { close(stop) }
}

func failSpan(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	if e := providers.AsError(err); e.Kind != providers.KindCancelled {
		slog.Debug("backend call failed", "kind", e.Kind.String(), "status", e.StatusCode, "error", e.Message)
	}
	return err
}
