package providers

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// Observer receives one call per backend attempt. Implementations must be
// safe for concurrent use.
type Observer interface {
	ObserveAttempt(attempt int, latency time.Duration, err error)
}

// Request describes one logical backend call. It may be sent several times.
type Request struct {
	Method  string
	URL     string
	Body    []byte
	Headers map[string]string

	// Stream selects the client without an overall timeout, so that long
	// streaming bodies are not cut off.
	Stream bool

	// Cancel, when closed, abandons the in-flight attempt and any pending
	// backoff wait.
	Cancel <-chan struct{}
}

// HTTPProvider sends requests to the backend with connection pooling,
// retries with exponential backoff, and health tracking.
type HTTPProvider struct {
	// config contains the provider configuration
	config ProviderConfig

	// client bounds each attempt by config.Timeout
	client *http.Client

	// streamClient has no overall timeout; the transport bounds the wait
	// for response headers instead
	streamClient *http.Client

	observer Observer

	// health tracks the provider's health status
	health ProviderHealth

	// healthMu protects concurrent access to health status
	healthMu sync.RWMutex

	// stopHealthCheck is closed to signal the health checker to stop
	stopHealthCheck chan struct{}

	// healthCheckStopped is closed when the health checker has stopped
	healthCheckStopped chan struct{}

	closeOnce sync.Once
}

// NewHTTPProvider creates a new base HTTP provider with connection pooling.
func NewHTTPProvider(config ProviderConfig) *HTTPProvider {
	if config.Name == "" {
		config.Name = DefaultProviderName
	}
	if config.RetryBackoff <= 0 {
		config.RetryBackoff = defaultRetryBackoff
	}
	if config.MaxIdleConns == 0 {
		config.MaxIdleConns = defaultMaxIdleConns
	}
	if config.MaxIdleConnsPerHost == 0 {
		config.MaxIdleConnsPerHost = defaultIdleConnsHost
	}
	if config.IdleConnTimeout == 0 {
		config.IdleConnTimeout = 90 * time.Second
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          config.MaxIdleConns,
		MaxIdleConnsPerHost:   config.MaxIdleConnsPerHost,
		IdleConnTimeout:       config.IdleConnTimeout,
		ResponseHeaderTimeout: config.Timeout,
		ForceAttemptHTTP2:     true,
	}

	return &HTTPProvider{
		config:       config,
		client:       &http.Client{Transport: transport, Timeout: config.Timeout},
		streamClient: &http.Client{Transport: transport},
		health: ProviderHealth{
			IsHealthy:             true, // Start optimistic
			LastCheck:             time.Now(),
			LastSuccessfulRequest: time.Now(),
		},
		stopHealthCheck:    make(chan struct{}),
		healthCheckStopped: make(chan struct{}),
	}
}

// SetObserver installs an attempt observer. It must be called before the
// provider is used.
func (p *HTTPProvider) SetObserver(o Observer) {
	p.observer = o
}

// GetName returns the provider's configured name.
func (p *HTTPProvider) GetName() string {
	return p.config.Name
}

// GetConfig returns the provider's configuration.
func (p *HTTPProvider) GetConfig() ProviderConfig {
	return p.config
}

// IsHealthy returns the current health status.
func (p *HTTPProvider) IsHealthy() bool {
	p.healthMu.RLock()
	defer p.healthMu.RUnlock()
	return p.health.IsHealthy
}

// GetHealth returns detailed health information.
func (p *HTTPProvider) GetHealth() ProviderHealth {
	p.healthMu.RLock()
	defer p.healthMu.RUnlock()
	return p.health
}

// updateHealth updates the provider's health status.
func (p *HTTPProvider) updateHealth(success bool, err error) {
	p.healthMu.Lock()
	defer p.healthMu.Unlock()

	p.health.LastCheck = time.Now()

	if success {
		p.health.IsHealthy = true
		p.health.ConsecutiveFailures = 0
		p.health.LastError = nil
		p.health.LastSuccessfulRequest = time.Now()
		return
	}

	p.health.ConsecutiveFailures++
	p.health.LastError = err

	// Mark unhealthy after 3 consecutive failures (circuit breaker)
	if p.health.ConsecutiveFailures >= 3 && p.health.IsHealthy {
		p.health.IsHealthy = false
		slog.Warn("backend marked unhealthy",
			"provider", p.config.Name,
			"consecutive_failures", p.health.ConsecutiveFailures,
			"error", err,
		)
	}
}

// recordRequest records request metrics.
func (p *HTTPProvider) recordRequest(success bool) {
	p.healthMu.Lock()
	defer p.healthMu.Unlock()

	p.health.TotalRequests++
	if !success {
		p.health.FailedRequests++
	}
}

// Backoff returns the wait before retry number attempt+1.
func (p *HTTPProvider) Backoff(attempt int) time.Duration {
	return time.Duration(float64(p.config.RetryBackoff) * math.Pow(2, float64(attempt)))
}

// DoRequest performs r with retry logic. Transient failures, timeouts and
// rate limits are retried up to MaxRetries times; authentication and
// validation failures return immediately. Every returned error is an *Error.
//
// On success the caller owns resp.Body and must close it.
func (p *HTTPProvider) DoRequest(ctx context.Context, r *Request) (*http.Response, error) {
	for attempt := 0; ; attempt++ {
		start := time.Now()
		resp, err := p.attempt(ctx, r)
		if p.observer != nil {
			var observed error
			if err != nil {
				observed = err
			}
			p.observer.ObserveAttempt(attempt, time.Since(start), observed)
		}

		if err == nil {
			p.recordRequest(true)
			p.updateHealth(true, nil)
			return resp, nil
		}

		p.recordRequest(false)
		if err.Kind == KindCancelled {
			return nil, err
		}
		if !err.Retryable() || attempt >= p.config.MaxRetries {
			p.updateHealth(false, err)
			return nil, err
		}

		backoff := p.Backoff(attempt)
		slog.WarnContext(ctx, "backend request failed, will retry",
			"provider", p.config.Name,
			"attempt", attempt+1,
			"max_retries", p.config.MaxRetries,
			"backoff", backoff,
			"error", err,
		)

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ClassifyTransportError(ctx, ctx.Err())
		case <-r.Cancel:
			timer.Stop()
			return nil, NewCancelledError("request cancelled")
		case <-timer.C:
		}
	}
}

// attempt sends r once, racing the round trip against r.Cancel.
func (p *HTTPProvider) attempt(ctx context.Context, r *Request) (*http.Response, *Error) {
	select {
	case <-r.Cancel:
		return nil, NewCancelledError("request cancelled")
	default:
	}

	attemptCtx, cancel := context.WithCancel(ctx)

	var body io.Reader
	if r.Body != nil {
		body = bytes.NewReader(r.Body)
	}
	req, err := http.NewRequestWithContext(attemptCtx, r.Method, r.URL, body)
	if err != nil {
		cancel()
		return nil, &Error{Kind: KindInternal, Message: "failed to create request", Cause: err}
	}

	for key, value := range p.config.CustomHeaders {
		req.Header.Set(key, value)
	}
	for key, value := range r.Headers {
		req.Header.Set(key, value)
	}
	if req.Header.Get("Content-Type") == "" && r.Body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	client := p.client
	if r.Stream {
		client = p.streamClient
	}

	type result struct {
		resp *http.Response
		err  error
	}
	done := make(chan result, 1)
	go func() {
		resp, err := client.Do(req)
		done <- result{resp, err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			cancel()
			return nil, ClassifyTransportError(ctx, res.err)
		}
		if res.resp.StatusCode >= 200 && res.resp.StatusCode < 300 {
			res.resp.Body = &cancelOnClose{ReadCloser: res.resp.Body, cancel: cancel}
			return res.resp, nil
		}

		errorBody, _ := io.ReadAll(io.LimitReader(res.resp.Body, 1<<20))
		res.resp.Body.Close()
		cancel()
		return nil, p.statusError(res.resp, errorBody)

	case <-r.Cancel:
		cancel()
		// The round trip returns promptly once its context is cancelled.
		go func() {
			if res := <-done; res.resp != nil {
				res.resp.Body.Close()
			}
		}()
		return nil, NewCancelledError("request cancelled")
	}
}

// statusError builds an Error from a non-2xx response, pulling the message
// and code out of an OpenAI-style error body when present.
func (p *HTTPProvider) statusError(resp *http.Response, body []byte) *Error {
	message := strings.TrimSpace(string(body))
	code := ""

	if gjson.ValidBytes(body) {
		parsed := gjson.ParseBytes(body)
		if m := parsed.Get("error.message"); m.Exists() && m.String() != "" {
			message = m.String()
		} else if m := parsed.Get("message"); m.Exists() && m.String() != "" {
			message = m.String()
		} else if e := parsed.Get("error"); e.Type == gjson.String {
			message = e.String()
		}
		if c := parsed.Get("error.code"); c.Exists() && c.Type != gjson.Null {
			code = c.String()
		} else if t := parsed.Get("error.type"); t.Exists() {
			code = t.String()
		}
	}

	e := NewStatusError(resp.StatusCode, code, message)
	if e.Kind == KindRateLimited {
		e.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))
	}
	return e
}

// Close closes the HTTP client and stops the health checker.
func (p *HTTPProvider) Close() error {
	p.closeOnce.Do(func() {
		close(p.stopHealthCheck)
		p.client.CloseIdleConnections()
		slog.Info("backend provider closed", "provider", p.config.Name)
	})
	return nil
}

// cancelOnClose releases the attempt context once the body is closed.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

// parseRetryAfter parses the Retry-After header value.
// It supports both delay-seconds and HTTP-date formats.
func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}

	if seconds, err := strconv.Atoi(strings.TrimSpace(header)); err == nil {
		return time.Duration(seconds) * time.Second
	}

	if t, err := http.ParseTime(header); err == nil {
		return time.Until(t)
	}

	return 0
}
