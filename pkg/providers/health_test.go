package providers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestCalculateBackoff(t *testing.T) {
	base := 10 * time.Second
	tests := []struct {
		failures int
		want     time.Duration
	}{
		{0, base},
		{1, 2 * base},
		{2, 4 * base},
		{3, 8 * base},
		{4, 10 * base},
		{10, 10 * base},
	}
	for _, tt := range tests {
		if got := calculateBackoff(tt.failures, base); got != tt.want {
			t.Errorf("calculateBackoff(%d) = %v, want %v", tt.failures, got, tt.want)
		}
	}

	if got := calculateBackoff(5, time.Minute); got != 5*time.Minute {
		t.Errorf("expected cap at 5m, got %v", got)
	}
}

func TestHTTPProvider_Probe(t *testing.T) {
	var gotPath, gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	provider := NewHTTPProvider(ProviderConfig{BaseURL: server.URL + "/v1/", Timeout: time.Second})
	if err := provider.Probe(context.Background(), "/models", map[string]string{"Authorization": "Bearer k"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotPath != "/v1/models" {
		t.Errorf("expected /v1/models, got %q", gotPath)
	}
	if gotAuth != "Bearer k" {
		t.Errorf("expected auth header, got %q", gotAuth)
	}
}

func TestHTTPProvider_ProbeServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	provider := NewHTTPProvider(ProviderConfig{BaseURL: server.URL, Timeout: time.Second})
	err := provider.Probe(context.Background(), "/models", nil)

	var perr *Error
	if !errors.As(err, &perr) || perr.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected 502 error, got %v", err)
	}
}

func TestHTTPProvider_HealthChecker(t *testing.T) {
	var calls int32
	provider := NewHTTPProvider(ProviderConfig{HealthCheckInterval: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	provider.StartHealthChecker(ctx, func(context.Context) error {
		atomic.AddInt32(&calls, 1)
		return errors.New("down")
	})

	deadline := time.After(2 * time.Second)
	for provider.IsHealthy() {
		select {
		case <-deadline:
			t.Fatal("expected provider to become unhealthy")
		case <-time.After(5 * time.Millisecond):
		}
	}

	_ = provider.Close()
	if atomic.LoadInt32(&calls) < 3 {
		t.Errorf("expected at least 3 probes, got %d", calls)
	}
}
