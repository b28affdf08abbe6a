package providers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func newTestProvider(url string, maxRetries int) *HTTPProvider {
	return NewHTTPProvider(ProviderConfig{
		Name:         "test-provider",
		BaseURL:      url,
		Timeout:      5 * time.Second,
		MaxRetries:   maxRetries,
		RetryBackoff: time.Millisecond,
	})
}

func TestHTTPProvider_RetryOn5xx(t *testing.T) {
	attemptCount := int32(0)

	// Fails twice with 500, then succeeds
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		count := atomic.AddInt32(&attemptCount, 1)
		if count <= 2 {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error": {"message": "internal server error"}}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"message": "success"}`))
	}))
	defer server.Close()

	provider := newTestProvider(server.URL, 3)

	resp, err := provider.DoRequest(context.Background(), &Request{Method: "POST", URL: server.URL + "/test", Body: []byte(`{}`)})
	if err != nil {
		t.Fatalf("expected request to succeed after retries, got error: %v", err)
	}
	defer resp.Body.Close()

	if got := atomic.LoadInt32(&attemptCount); got != 3 {
		t.Errorf("expected 3 attempts (2 retries), got %d", got)
	}
	if !provider.IsHealthy() {
		t.Error("expected provider to be healthy after successful retry")
	}
}

func TestHTTPProvider_RetryBound(t *testing.T) {
	for _, maxRetries := range []int{0, 1, 2, 4} {
		attemptCount := int32(0)
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&attemptCount, 1)
			w.WriteHeader(http.StatusServiceUnavailable)
		}))

		provider := newTestProvider(server.URL, maxRetries)
		_, err := provider.DoRequest(context.Background(), &Request{Method: "POST", URL: server.URL})
		server.Close()

		var perr *Error
		if !errors.As(err, &perr) || perr.Kind != KindTransient {
			t.Fatalf("max_retries=%d: expected transient error, got %v", maxRetries, err)
		}
		if perr.StatusCode != http.StatusServiceUnavailable {
			t.Errorf("max_retries=%d: expected last status 503, got %d", maxRetries, perr.StatusCode)
		}
		if got := atomic.LoadInt32(&attemptCount); got != int32(maxRetries+1) {
			t.Errorf("max_retries=%d: expected %d attempts, got %d", maxRetries, maxRetries+1, got)
		}
	}
}

func TestHTTPProvider_NoRetryOn4xx(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		wantKind   Kind
	}{
		{"400 bad request", http.StatusBadRequest, KindBadRequest},
		{"401 unauthorized", http.StatusUnauthorized, KindUnauthorized},
		{"403 forbidden", http.StatusForbidden, KindUnauthorized},
		{"404 not found", http.StatusNotFound, KindBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attemptCount := int32(0)
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&attemptCount, 1)
				w.WriteHeader(tt.statusCode)
				_, _ = w.Write([]byte(`{"error": {"message": "nope", "code": "some_code"}}`))
			}))
			defer server.Close()

			provider := newTestProvider(server.URL, 3)
			_, err := provider.DoRequest(context.Background(), &Request{Method: "POST", URL: server.URL})

			var perr *Error
			if !errors.As(err, &perr) {
				t.Fatalf("expected *Error, got %T", err)
			}
			if perr.Kind != tt.wantKind {
				t.Errorf("expected kind %s, got %s", tt.wantKind, perr.Kind)
			}
			if perr.Message != "nope" || perr.Code != "some_code" {
				t.Errorf("expected parsed message and code, got %q / %q", perr.Message, perr.Code)
			}
			if got := atomic.LoadInt32(&attemptCount); got != 1 {
				t.Errorf("expected 1 attempt (no retries), got %d", got)
			}
		})
	}
}

func TestHTTPProvider_RateLimitRetried(t *testing.T) {
	attemptCount := int32(0)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attemptCount, 1) == 1 {
			w.Header().Set("Retry-After", "7")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	provider := newTestProvider(server.URL, 2)
	resp, err := provider.DoRequest(context.Background(), &Request{Method: "POST", URL: server.URL})
	if err != nil {
		t.Fatalf("expected success after rate limit retry, got %v", err)
	}
	resp.Body.Close()
	if got := atomic.LoadInt32(&attemptCount); got != 2 {
		t.Errorf("expected 2 attempts, got %d", got)
	}
}

func TestHTTPProvider_RateLimitExhausted(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error": {"message": "Rate limit reached", "type": "rate_limit_error"}}`))
	}))
	defer server.Close()

	provider := newTestProvider(server.URL, 0)
	_, err := provider.DoRequest(context.Background(), &Request{Method: "POST", URL: server.URL})

	var perr *Error
	if !errors.As(err, &perr) || perr.Kind != KindRateLimited {
		t.Fatalf("expected rate limit error, got %v", err)
	}
	if perr.RetryAfter != 7*time.Second {
		t.Errorf("expected Retry-After 7s, got %v", perr.RetryAfter)
	}
	if perr.Code != "rate_limit_error" {
		t.Errorf("expected code from error.type, got %q", perr.Code)
	}
}

func TestHTTPProvider_CancelDuringAttempt(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	provider := newTestProvider(server.URL, 3)
	cancelCh := make(chan struct{})
	go func() {
		time.Sleep(20 * time.Millisecond)
		close(cancelCh)
	}()

	start := time.Now()
	_, err := provider.DoRequest(context.Background(), &Request{Method: "POST", URL: server.URL, Cancel: cancelCh})
	if !IsCancelled(err) {
		t.Fatalf("expected cancelled error, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("cancellation took too long: %v", elapsed)
	}
}

func TestHTTPProvider_CancelDuringBackoff(t *testing.T) {
	attemptCount := int32(0)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attemptCount, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	provider := NewHTTPProvider(ProviderConfig{
		BaseURL:      server.URL,
		Timeout:      time.Second,
		MaxRetries:   5,
		RetryBackoff: time.Hour,
	})

	cancelCh := make(chan struct{})
	go func() {
		time.Sleep(50 * time.Millisecond)
		close(cancelCh)
	}()

	_, err := provider.DoRequest(context.Background(), &Request{Method: "POST", URL: server.URL, Cancel: cancelCh})
	if !IsCancelled(err) {
		t.Fatalf("expected cancelled error, got %v", err)
	}
	if got := atomic.LoadInt32(&attemptCount); got != 1 {
		t.Errorf("expected a single attempt before cancellation, got %d", got)
	}
}

func TestHTTPProvider_AlreadyCancelled(t *testing.T) {
	called := int32(0)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&called, 1)
	}))
	defer server.Close()

	cancelCh := make(chan struct{})
	close(cancelCh)

	provider := newTestProvider(server.URL, 2)
	_, err := provider.DoRequest(context.Background(), &Request{Method: "POST", URL: server.URL, Cancel: cancelCh})
	if !IsCancelled(err) {
		t.Fatalf("expected cancelled error, got %v", err)
	}
	if atomic.LoadInt32(&called) != 0 {
		t.Error("expected no request to reach the backend")
	}
}

func TestHTTPProvider_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	provider := newTestProvider(server.URL, 3)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := provider.DoRequest(ctx, &Request{Method: "POST", URL: server.URL})
	if !IsCancelled(err) {
		t.Fatalf("expected cancelled error for client disconnect, got %v", err)
	}
}

func TestHTTPProvider_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(time.Second):
		case <-r.Context().Done():
		}
	}))
	defer server.Close()

	provider := NewHTTPProvider(ProviderConfig{
		BaseURL:      server.URL,
		Timeout:      30 * time.Millisecond,
		MaxRetries:   1,
		RetryBackoff: time.Millisecond,
	})

	_, err := provider.DoRequest(context.Background(), &Request{Method: "POST", URL: server.URL})
	var perr *Error
	if !errors.As(err, &perr) || perr.Kind != KindTransient {
		t.Fatalf("expected transient timeout error, got %v", err)
	}
	if health := provider.GetHealth(); health.TotalRequests != 2 || health.FailedRequests != 2 {
		t.Errorf("expected 2 failed attempts recorded, got %+v", health)
	}
}

func TestHTTPProvider_HeadersApplied(t *testing.T) {
	var got http.Header
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	provider := NewHTTPProvider(ProviderConfig{
		BaseURL:       server.URL,
		Timeout:       time.Second,
		CustomHeaders: map[string]string{"X-Team": "core", "Authorization": "overridden"},
	})

	resp, err := provider.DoRequest(context.Background(), &Request{
		Method:  "POST",
		URL:     server.URL,
		Body:    []byte(`{}`),
		Headers: map[string]string{"Authorization": "Bearer k"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()

	if got.Get("X-Team") != "core" {
		t.Errorf("expected custom header, got %q", got.Get("X-Team"))
	}
	if got.Get("Authorization") != "Bearer k" {
		t.Errorf("expected request header to win over custom header, got %q", got.Get("Authorization"))
	}
	if got.Get("Content-Type") != "application/json" {
		t.Errorf("expected default content type, got %q", got.Get("Content-Type"))
	}
}

func TestHTTPProvider_Backoff(t *testing.T) {
	provider := NewHTTPProvider(ProviderConfig{RetryBackoff: 500 * time.Millisecond})
	want := []time.Duration{500 * time.Millisecond, time.Second, 2 * time.Second, 4 * time.Second}
	for attempt, w := range want {
		if got := provider.Backoff(attempt); got != w {
			t.Errorf("Backoff(%d) = %v, want %v", attempt, got, w)
		}
	}
}

type recordingObserver struct {
	mu       sync.Mutex
	attempts []int
	errs     []error
}

func (o *recordingObserver) ObserveAttempt(attempt int, _ time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.attempts = append(o.attempts, attempt)
	o.errs = append(o.errs, err)
}

func TestHTTPProvider_Observer(t *testing.T) {
	count := int32(0)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&count, 1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = io.WriteString(w, "ok")
	}))
	defer server.Close()

	obs := &recordingObserver{}
	provider := newTestProvider(server.URL, 2)
	provider.SetObserver(obs)

	resp, err := provider.DoRequest(context.Background(), &Request{Method: "GET", URL: server.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()

	if len(obs.attempts) != 2 || obs.attempts[0] != 0 || obs.attempts[1] != 1 {
		t.Fatalf("unexpected attempts: %v", obs.attempts)
	}
	if obs.errs[0] == nil {
		t.Error("expected first attempt error to be observed")
	}
	if obs.errs[1] != nil {
		t.Errorf("expected nil error for successful attempt, got %v", obs.errs[1])
	}
}

func TestHTTPProvider_UnhealthyAfterConsecutiveFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	provider := newTestProvider(server.URL, 0)
	for i := 0; i < 3; i++ {
		_, _ = provider.DoRequest(context.Background(), &Request{Method: "GET", URL: server.URL})
	}
	if provider.IsHealthy() {
		t.Error("expected provider to be unhealthy after 3 consecutive failures")
	}
}

func TestParseRetryAfter(t *testing.T) {
	if got := parseRetryAfter("3"); got != 3*time.Second {
		t.Errorf("expected 3s, got %v", got)
	}
	if got := parseRetryAfter(""); got != 0 {
		t.Errorf("expected 0, got %v", got)
	}
	if got := parseRetryAfter("garbage"); got != 0 {
		t.Errorf("expected 0, got %v", got)
	}
}
