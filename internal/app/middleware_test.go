package app

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/arcbridge/toolgate/internal/config"
)

func noopHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestControlRateLimiterAllowsWithinBurst(t *testing.T) {
	limits := config.ServerRateLimits{
		GlobalRequestsPerMinute: 100,
		PerIPRequestsPerMinute:  100,
		BurstSize:               5,
		HealthRequestsPerMinute: 100,
	}
	rl := newControlRateLimiter(limits, testLogger())
	defer rl.Stop()

	handler := rl.Middleware(false)(noopHandler())
	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodGet, "/tools/x/invoke", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200 within burst, got %d", i, rec.Code)
		}
	}
}

func TestControlRateLimiterRejectsOverBurst(t *testing.T) {
	limits := config.ServerRateLimits{
		GlobalRequestsPerMinute: 1000,
		PerIPRequestsPerMinute:  2,
		BurstSize:               2,
		HealthRequestsPerMinute: 1000,
	}
	rl := newControlRateLimiter(limits, testLogger())
	defer rl.Stop()

	handler := rl.Middleware(false)(noopHandler())
	var lastCode int
	for i := 0; i < 4; i++ {
		req := httptest.NewRequest(http.MethodGet, "/tools/x/invoke", nil)
		req.RemoteAddr = "203.0.113.5:1111"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		lastCode = rec.Code
	}
	if lastCode != http.StatusTooManyRequests {
		t.Fatalf("expected the 4th request against a burst of 2 to be rejected, got %d", lastCode)
	}
}

func TestSizeLimitMiddlewareRejectsOversizedBody(t *testing.T) {
	limits := config.ServerRequestLimits{MaxBodySize: 10, MaxHeaderSize: 1 << 16}
	handler := sizeLimitMiddleware(limits, testLogger())(noopHandler())

	req := httptest.NewRequest(http.MethodPost, "/tools/batch", nil)
	req.ContentLength = 1024
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413 for an oversized body, got %d", rec.Code)
	}
}

func TestSizeLimitMiddlewareAllowsWithinLimits(t *testing.T) {
	limits := config.ServerRequestLimits{MaxBodySize: 1 << 20, MaxHeaderSize: 1 << 16}
	handler := sizeLimitMiddleware(limits, testLogger())(noopHandler())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 within limits, got %d", rec.Code)
	}
}

func TestCorsMiddlewareAllowsConfiguredOrigin(t *testing.T) {
	cfg := config.CORSConfig{AllowedOrigins: []string{"https://example.com"}, AllowedMethods: []string{"GET"}, AllowedHeaders: []string{"Content-Type"}}
	handler := corsMiddleware(cfg)(noopHandler())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://example.com")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://example.com" {
		t.Fatalf("expected allow-origin to echo the configured origin, got %q", got)
	}
}

func TestCorsMiddlewareRejectsUnlistedOrigin(t *testing.T) {
	cfg := config.CORSConfig{AllowedOrigins: []string{"https://example.com"}}
	handler := corsMiddleware(cfg)(noopHandler())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("expected no allow-origin header for an unlisted origin, got %q", got)
	}
}

func TestCorsMiddlewareShortCircuitsPreflight(t *testing.T) {
	cfg := config.CORSConfig{AllowedOrigins: []string{"*"}}
	called := false
	handler := corsMiddleware(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodOptions, "/health", nil)
	req.Header.Set("Origin", "https://example.com")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for a preflight request, got %d", rec.Code)
	}
	if called {
		t.Fatal("expected the wrapped handler not to run for a preflight request")
	}
}

func TestChainAppliesMiddlewareInOrder(t *testing.T) {
	var order []string
	mw := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	handler := chain(noopHandler(), mw("outer"), mw("inner"))
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if len(order) != 2 || order[0] != "outer" || order[1] != "inner" {
		t.Fatalf("expected middleware to run outer-then-inner, got %v", order)
	}
}
