package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/arcbridge/toolgate/internal/core/domain"
)

func TestObserveInvokeExposesCounterAndHistogram(t *testing.T) {
	r := New()
	r.ObserveInvoke("srv-1", "weather/forecast", true, 120)
	r.ObserveInvoke("srv-1", "weather/forecast", false, 50)

	body := scrape(t, r)
	if !strings.Contains(body, `toolgate_tool_invocations_total{outcome="success",server="srv-1",tool="weather/forecast"} 1`) {
		t.Fatalf("missing success counter in exposition:\n%s", body)
	}
	if !strings.Contains(body, `toolgate_tool_invocations_total{outcome="failure",server="srv-1",tool="weather/forecast"} 1`) {
		t.Fatalf("missing failure counter in exposition:\n%s", body)
	}
	if !strings.Contains(body, "toolgate_tool_invocation_duration_seconds") {
		t.Fatalf("missing duration histogram in exposition:\n%s", body)
	}
}

func TestObserveCacheHitRateLimitAndCircuitOpen(t *testing.T) {
	r := New()
	r.ObserveCacheHit("srv-1", "weather/forecast")
	r.ObserveRateLimited("srv-1")
	r.ObserveCircuitOpen("srv-1")

	body := scrape(t, r)
	for _, want := range []string{
		`toolgate_cache_hits_total{server="srv-1",tool="weather/forecast"} 1`,
		`toolgate_rate_limited_total{server="srv-1"} 1`,
		`toolgate_circuit_open_rejections_total{server="srv-1"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected exposition to contain %q, got:\n%s", want, body)
		}
	}
}

func TestSetBreakerStateIsExclusive(t *testing.T) {
	r := New()
	r.SetBreakerState("srv-1", domain.BreakerOpen)

	body := scrape(t, r)
	if !strings.Contains(body, `toolgate_circuit_breaker_state{server="srv-1",state="open"} 1`) {
		t.Fatalf("expected open state to read 1:\n%s", body)
	}
	if !strings.Contains(body, `toolgate_circuit_breaker_state{server="srv-1",state="closed"} 0`) {
		t.Fatalf("expected closed state to read 0:\n%s", body)
	}
	if !strings.Contains(body, `toolgate_circuit_breaker_state{server="srv-1",state="half_open"} 0`) {
		t.Fatalf("expected half_open state to read 0:\n%s", body)
	}
}

func TestRegisterGaugeFuncIsScraped(t *testing.T) {
	r := New()
	r.RegisterGaugeFunc("sse_active_clients", "active SSE subscribers", func() float64 { return 3 })

	body := scrape(t, r)
	if !strings.Contains(body, "toolgate_sse_active_clients 3") {
		t.Fatalf("expected registered gauge to be scraped:\n%s", body)
	}
}

func scrape(t *testing.T, r *Recorder) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics handler returned status %d", rec.Code)
	}
	return rec.Body.String()
}
