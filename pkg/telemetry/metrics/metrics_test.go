package metrics

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"mercator-hq/courier/pkg/config"
	"mercator-hq/courier/pkg/providers"
)

func newTestCollector(t *testing.T, enabled bool) *Collector {
	t.Helper()
	return NewCollector(&config.MetricsConfig{Enabled: enabled}, nil)
}

func TestNewCollector_Defaults(t *testing.T) {
	cfg := &config.MetricsConfig{Enabled: true}
	c := NewCollector(cfg, nil)

	if cfg.Namespace != "mercator" || cfg.Subsystem != "courier" {
		t.Errorf("defaults = %q/%q", cfg.Namespace, cfg.Subsystem)
	}
	if len(cfg.RequestDurationBuckets) == 0 {
		t.Error("no duration buckets")
	}
	if c.Registry() == nil {
		t.Error("Registry() = nil")
	}
}

func TestCollector_RecordRequest(t *testing.T) {
	c := newTestCollector(t, true)

	c.RecordRequest("/v1/messages", "claude-3-5-sonnet", "200", true, 1500*time.Millisecond)
	c.RecordRequest("/v1/messages", "claude-3-5-sonnet", "200", false, 200*time.Millisecond)
	c.RecordRequest("/v1/messages", "", "400", false, time.Millisecond)

	if got := testutil.ToFloat64(c.requestMetrics.requestsTotal.WithLabelValues("/v1/messages", "claude-3-5-sonnet", "200")); got != 2 {
		t.Errorf("requests_total = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.requestMetrics.requestsTotal.WithLabelValues("/v1/messages", "unknown", "400")); got != 1 {
		t.Errorf("requests_total{model=unknown} = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(c.requestMetrics.requestDuration); got != 2 {
		t.Errorf("duration series = %d, want 2 (stream true/false)", got)
	}
}

func TestCollector_RecordTokens(t *testing.T) {
	c := newTestCollector(t, true)
	c.RecordTokens("gpt-4o", 120, 30)
	c.RecordTokens("gpt-4o", 0, 10)

	if got := testutil.ToFloat64(c.requestMetrics.tokensTotal.WithLabelValues("gpt-4o", "input")); got != 120 {
		t.Errorf("input tokens = %v", got)
	}
	if got := testutil.ToFloat64(c.requestMetrics.tokensTotal.WithLabelValues("gpt-4o", "output")); got != 40 {
		t.Errorf("output tokens = %v", got)
	}
}

func TestCollector_RecordStream(t *testing.T) {
	c := newTestCollector(t, true)
	c.RecordStream("completed", 2, false)
	c.RecordStream("completed", 0, true)
	c.RecordStream("cancelled", 0, false)

	if got := testutil.ToFloat64(c.streamMetrics.outcomes.WithLabelValues("completed")); got != 2 {
		t.Errorf("completed = %v", got)
	}
	if got := testutil.ToFloat64(c.streamMetrics.discarded); got != 2 {
		t.Errorf("discarded = %v", got)
	}
	if got := testutil.ToFloat64(c.streamMetrics.synthesized); got != 1 {
		t.Errorf("synthesized = %v", got)
	}
}

func TestCollector_ObserveAttempt(t *testing.T) {
	c := newTestCollector(t, true)

	var _ providers.Observer = c

	c.ObserveAttempt(0, 10*time.Millisecond, providers.NewStatusError(503, "", "upstream down"))
	c.ObserveAttempt(1, 10*time.Millisecond, providers.NewStatusError(503, "", "upstream down"))
	c.ObserveAttempt(2, 10*time.Millisecond, nil)
	c.ObserveAttempt(0, time.Millisecond, errors.New("boom"))

	tests := map[string]float64{
		"transient": 2,
		"success":   1,
		"internal":  1,
	}
	for result, want := range tests {
		if got := testutil.ToFloat64(c.backendMetrics.attempts.WithLabelValues(result)); got != want {
			t.Errorf("attempts{result=%s} = %v, want %v", result, got, want)
		}
	}
	if got := testutil.ToFloat64(c.backendMetrics.retries); got != 2 {
		t.Errorf("retries = %v, want 2", got)
	}
}

func TestCollector_BackendHealthAndCancellations(t *testing.T) {
	c := newTestCollector(t, true)

	c.UpdateBackendHealth(true)
	if got := testutil.ToFloat64(c.backendMetrics.health); got != 1 {
		t.Errorf("health = %v", got)
	}
	c.UpdateBackendHealth(false)
	if got := testutil.ToFloat64(c.backendMetrics.health); got != 0 {
		t.Errorf("health = %v", got)
	}

	c.RecordCancellation("api")
	c.RecordCancellation("disconnect")
	c.RecordCancellation("disconnect")
	if got := testutil.ToFloat64(c.backendMetrics.cancellations.WithLabelValues("disconnect")); got != 2 {
		t.Errorf("cancellations{disconnect} = %v", got)
	}

	active := 3
	c.TrackActiveRequests(func() int { return active })
	c.TrackActiveRequests(func() int { return -1 })

	expected := `
# HELP mercator_courier_active_requests Requests currently registered for cancellation
# TYPE mercator_courier_active_requests gauge
mercator_courier_active_requests 3
`
	if err := testutil.GatherAndCompare(c.Registry(), strings.NewReader(expected), "mercator_courier_active_requests"); err != nil {
		t.Error(err)
	}
}

func TestCollector_RecordEvents(t *testing.T) {
	c := newTestCollector(t, true)
	c.RecordEvents(5, true)
	c.RecordEvents(2, false)
	c.RecordEvents(0, true)

	if got := testutil.ToFloat64(c.eventMetrics.events.WithLabelValues("accepted")); got != 5 {
		t.Errorf("accepted = %v", got)
	}
	if got := testutil.ToFloat64(c.eventMetrics.events.WithLabelValues("dropped")); got != 2 {
		t.Errorf("dropped = %v", got)
	}
}

func TestCollector_Disabled(t *testing.T) {
	c := newTestCollector(t, false)

	c.RecordRequest("/v1/messages", "m", "200", false, time.Second)
	c.RecordTokens("m", 1, 1)
	c.RecordStream("completed", 1, true)
	c.ObserveAttempt(0, time.Second, nil)
	c.UpdateBackendHealth(true)
	c.RecordCancellation("api")
	c.TrackActiveRequests(func() int { return 1 })
	c.RecordEvents(1, true)

	if got := testutil.CollectAndCount(c.requestMetrics.requestsTotal); got != 0 {
		t.Errorf("disabled collector recorded %d request series", got)
	}
	if got := testutil.CollectAndCount(c.backendMetrics.attempts); got != 0 {
		t.Errorf("disabled collector recorded %d attempt series", got)
	}
}

func TestCardinalityLimiter(t *testing.T) {
	cl := NewCardinalityLimiter(2)

	if !cl.Allow("a") || !cl.Allow("b") {
		t.Fatal("values under the limit rejected")
	}
	if cl.Allow("c") {
		t.Error("value over the limit allowed")
	}
	if !cl.Allow("a") {
		t.Error("known value rejected")
	}
	if cl.Count() != 2 {
		t.Errorf("Count() = %d", cl.Count())
	}
}

func TestCollector_ModelOverflow(t *testing.T) {
	c := newTestCollector(t, true)
	c.cardinalityLimiter = NewCardinalityLimiter(1)

	c.RecordRequest("/v1/messages", "first", "200", false, time.Millisecond)
	c.RecordRequest("/v1/messages", "second", "200", false, time.Millisecond)

	if got := testutil.ToFloat64(c.requestMetrics.requestsTotal.WithLabelValues("/v1/messages", "other", "200")); got != 1 {
		t.Errorf("other = %v, want 1", got)
	}
}

func TestCollector_Handler(t *testing.T) {
	c := newTestCollector(t, true)
	c.RecordRequest("/v1/messages", "claude-3-haiku", "200", false, 50*time.Millisecond)

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	want := fmt.Sprintf(`mercator_courier_requests_total{endpoint="/v1/messages",model="%s",status="200"} 1`, "claude-3-haiku")
	if !strings.Contains(string(body), want) {
		t.Errorf("metrics output missing %q:\n%s", want, body)
	}
}
