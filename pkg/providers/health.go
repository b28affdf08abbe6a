package providers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// StartHealthChecker starts a background goroutine that periodically probes
// the backend. It runs until the provider is closed or ctx is cancelled.
// When the backend is unhealthy the probe interval backs off.
func (p *HTTPProvider) StartHealthChecker(ctx context.Context, probe func(context.Context) error) {
	go p.runHealthChecker(ctx, probe)
}

// runHealthChecker is the main health checking loop.
func (p *HTTPProvider) runHealthChecker(ctx context.Context, probe func(context.Context) error) {
	defer close(p.healthCheckStopped)

	interval := p.config.HealthCheckInterval
	if interval == 0 {
		interval = 30 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	slog.Info("health checker started",
		"provider", p.config.Name,
		"interval", interval,
	)

	for {
		select {
		case <-ctx.Done():
			return

		case <-p.stopHealthCheck:
			return

		case <-ticker.C:
			p.performHealthCheck(ctx, probe)

			if !p.IsHealthy() {
				health := p.GetHealth()
				ticker.Reset(calculateBackoff(health.ConsecutiveFailures, interval))
			} else {
				ticker.Reset(interval)
			}
		}
	}
}

// performHealthCheck executes a single health check.
func (p *HTTPProvider) performHealthCheck(ctx context.Context, probe func(context.Context) error) {
	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	wasHealthy := p.IsHealthy()
	start := time.Now()
	err := probe(checkCtx)
	latency := time.Since(start)

	if err != nil {
		p.updateHealth(false, err)
		slog.Error("health check failed",
			"provider", p.config.Name,
			"error", err,
			"latency", latency,
		)
		return
	}

	p.updateHealth(true, nil)
	if !wasHealthy {
		slog.Info("backend marked healthy", "provider", p.config.Name)
	}
}

// Probe sends a single unretried GET to path under the base URL with the
// given headers and treats any non-5xx answer as reachable.
func (p *HTTPProvider) Probe(ctx context.Context, path string, headers map[string]string) error {
	url := strings.TrimRight(p.config.BaseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return &Error{Kind: KindInternal, Message: "failed to create request", Cause: err}
	}
	for key, value := range p.config.CustomHeaders {
		req.Header.Set(key, value)
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return ClassifyTransportError(ctx, err)
	}
	resp.Body.Close()

	if resp.StatusCode >= 500 {
		return NewStatusError(resp.StatusCode, "", "health probe failed")
	}
	return nil
}

// calculateBackoff calculates the backoff interval based on consecutive failures.
// It uses exponential backoff with a maximum interval of 5 minutes.
func calculateBackoff(consecutiveFailures int, baseInterval time.Duration) time.Duration {
	if consecutiveFailures <= 0 {
		return baseInterval
	}

	multiplier := 1 << uint(consecutiveFailures)
	if multiplier > 10 {
		multiplier = 10
	}

	backoff := baseInterval * time.Duration(multiplier)
	if backoff > 5*time.Minute {
		backoff = 5 * time.Minute
	}

	return backoff
}
