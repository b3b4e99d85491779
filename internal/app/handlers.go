package app

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/arcbridge/toolgate/internal/core/domain"
	"github.com/arcbridge/toolgate/internal/core/domain/gatewayerr"
	"github.com/arcbridge/toolgate/internal/core/ports"
	"github.com/arcbridge/toolgate/internal/router"
	"github.com/arcbridge/toolgate/internal/shutdown"
	"github.com/arcbridge/toolgate/internal/version"
	"github.com/arcbridge/toolgate/pkg/format"
	"github.com/arcbridge/toolgate/pkg/nerdstats"
)

// Server binds the constructed Container to an http.ServeMux via
// RouteRegistry, so every route is logged in the route table at startup.
type Server struct {
	c         *Container
	routes    *router.RouteRegistry
	startedAt time.Time
}

func NewServer(c *Container, routes *router.RouteRegistry) *Server {
	return &Server{c: c, routes: routes, startedAt: time.Now()}
}

// Mount registers every control-surface route with its middleware chain
// already applied, then wires the registry into mux.
func (s *Server) Mount(mux *http.ServeMux) {
	controlLimiter := newControlRateLimiter(s.c.cfg.Server.RateLimits, s.c.log)
	s.c.Shutdown.Register(shutdown.Handler{
		Name: "control-surface rate limiter", Priority: 5, Timeout: 5 * time.Second,
		Run: func(context.Context) error { controlLimiter.Stop(); return nil },
	})

	sizeMw := sizeLimitMiddleware(s.c.cfg.Server.RequestLimits, s.c.log)
	corsMw := corsMiddleware(s.c.cfg.Server.CORS)

	register := func(path, method, desc string, h http.HandlerFunc, isHealth bool) {
		wrapped := chain(h, corsMw, sizeMw, controlLimiter.Middleware(isHealth))
		s.routes.RegisterWithMethod(path, wrapped.ServeHTTP, desc, method)
	}

	register("GET /health", http.MethodGet, "Aggregate connection health", s.handleHealth, true)
	register("GET /health/ready", http.MethodGet, "Readiness probe", s.handleReady, true)
	register("POST /tools/", http.MethodPost, "Invoke a single tool or run a batch", s.handleTools, false)
	register("GET /sse/events", http.MethodGet, "Server-sent event fan-out", s.c.SSE.ServeHTTP, false)
	register("GET /internal/process", http.MethodGet, "Runtime/process stats", s.handleProcessStats, true)
	register("GET /version", http.MethodGet, "Build and version info", s.handleVersion, true)

	if s.c.cfg.Telemetry.MetricsEnabled {
		path := s.c.cfg.Telemetry.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		register("GET "+path, http.MethodGet, "Prometheus text exposition", s.c.Metrics.Handler().ServeHTTP, true)
	}

	s.routes.WireUp(mux)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	conns := s.c.Pool.GetAllConnections()
	connected, errored := 0, 0
	for _, c := range conns {
		switch c.Status {
		case domain.StatusConnected:
			connected++
		case domain.StatusError:
			errored++
		}
	}

	status := "unhealthy"
	code := http.StatusServiceUnavailable
	switch {
	case len(conns) > 0 && errored == 0 && connected == len(conns):
		status, code = "healthy", http.StatusOK
	case connected > 0:
		status, code = "degraded", http.StatusOK
	}

	writeJSON(w, code, map[string]any{
		"status":    status,
		"servers":   len(conns),
		"connected": connected,
		"errored":   errored,
		"uptime":    format.Duration(time.Since(s.startedAt)),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	conns := s.c.Pool.GetAllConnections()
	if len(conns) == 0 {
		writeJSON(w, http.StatusOK, map[string]any{"ready": true, "reason": "no servers configured"})
		return
	}
	for _, c := range conns {
		if c.Status == domain.StatusConnected {
			writeJSON(w, http.StatusOK, map[string]any{"ready": true})
			return
		}
	}
	writeJSON(w, http.StatusServiceUnavailable, map[string]any{"ready": false})
}

// handleTools dispatches POST /tools/{qualifiedName}/invoke and
// POST /tools/batch under one prefix registration, since qualifiedName
// itself contains a slash and can't be expressed as a single Go 1.22
// mux pattern alongside a literal /invoke suffix.
func (s *Server) handleTools(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/tools/")

	if path == "batch" {
		s.handleInvokeBatch(w, r)
		return
	}

	const suffix = "/invoke"
	if !strings.HasSuffix(path, suffix) {
		http.NotFound(w, r)
		return
	}
	qualifiedName := strings.TrimSuffix(path, suffix)
	if qualifiedName == "" {
		http.NotFound(w, r)
		return
	}
	s.handleInvokeOne(w, r, qualifiedName)
}

type invokeBody struct {
	Params map[string]any `json:"params"`
}

func (s *Server) handleInvokeOne(w http.ResponseWriter, r *http.Request, qualifiedName string) {
	var body invokeBody
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid JSON body"})
			return
		}
	}

	result := s.c.Router.Invoke(r.Context(), ports.InvokeRequest{
		ToolName: qualifiedName,
		Params:   body.Params,
		CallerID: callerID(r),
	})
	writeInvokeResult(w, result)
}

type batchBody struct {
	Invocations []struct {
		ToolName string         `json:"toolName"`
		Params   map[string]any `json:"params"`
	} `json:"invocations"`
}

func (s *Server) handleInvokeBatch(w http.ResponseWriter, r *http.Request) {
	var body batchBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid JSON body"})
		return
	}
	if len(body.Invocations) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invocations must be non-empty"})
		return
	}

	reqs := make([]ports.InvokeRequest, len(body.Invocations))
	caller := callerID(r)
	for i, inv := range body.Invocations {
		reqs[i] = ports.InvokeRequest{ToolName: inv.ToolName, Params: inv.Params, CallerID: caller}
	}

	results := s.c.Router.InvokeBatch(r.Context(), reqs)
	out := make([]map[string]any, len(results))
	for i, res := range results {
		out[i] = invokeResultBody(res)
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": out})
}

func callerID(r *http.Request) string {
	if key := r.Header.Get("X-Api-Key"); key != "" {
		return key
	}
	return "anonymous"
}

func invokeResultBody(result ports.InvokeResult) map[string]any {
	body := map[string]any{
		"success":    result.Success,
		"serverId":   result.ServerID,
		"toolName":   result.ToolName,
		"durationMs": result.DurationMs,
	}
	if result.Success {
		body["data"] = json.RawMessage(result.Data)
	} else {
		body["error"] = result.Error
	}
	if result.Circuit != nil {
		body["circuitBreaker"] = map[string]any{"state": result.Circuit.State, "retryAfterMs": result.Circuit.RetryAfterMs}
	}
	if result.RateLimit != nil {
		body["rateLimit"] = map[string]any{
			"minuteRemaining": result.RateLimit.MinuteRemaining,
			"dayRemaining":    result.RateLimit.DayRemaining,
		}
	}
	return body
}

func writeInvokeResult(w http.ResponseWriter, result ports.InvokeResult) {
	if result.RateLimit != nil {
		w.Header().Set("X-RateLimit-Remaining-Minute", strconv.Itoa(result.RateLimit.MinuteRemaining))
		w.Header().Set("X-RateLimit-Remaining-Day", strconv.Itoa(result.RateLimit.DayRemaining))
	}

	status := http.StatusOK
	if !result.Success {
		status = httpStatusForKind(result.Kind)
		retryAfterMs := int64(0)
		if result.Circuit != nil {
			retryAfterMs = result.Circuit.RetryAfterMs
		} else if result.RateLimit != nil {
			retryAfterMs = result.RateLimit.RetryAfterMs
		}
		if retryAfterMs > 0 {
			w.Header().Set("Retry-After", strconv.FormatInt(retryAfterMs/1000, 10))
		}
	}
	writeJSON(w, status, invokeResultBody(result))
}

func httpStatusForKind(kind gatewayerr.Kind) int {
	switch kind {
	case gatewayerr.KindNotFound:
		return http.StatusNotFound
	case gatewayerr.KindCircuitOpen, gatewayerr.KindNotConnected:
		return http.StatusServiceUnavailable
	case gatewayerr.KindRateLimited:
		return http.StatusTooManyRequests
	case gatewayerr.KindTimeout:
		return http.StatusGatewayTimeout
	case gatewayerr.KindValidation:
		return http.StatusBadRequest
	case gatewayerr.KindAuth:
		return http.StatusUnauthorized
	case gatewayerr.KindUpstreamFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleProcessStats(w http.ResponseWriter, r *http.Request) {
	stats := nerdstats.Snapshot(s.startedAt)
	writeJSON(w, http.StatusOK, map[string]any{
		"heapAlloc":       format.Bytes(stats.HeapAlloc),
		"heapInUse":       format.Bytes(stats.HeapInuse),
		"goroutines":      stats.NumGoroutines,
		"numGC":           stats.NumGC,
		"avgGCPause":      nerdstats.CalculateAverageGCPause(stats),
		"memoryPressure":  stats.GetMemoryPressure(),
		"goroutineHealth": stats.GetGoroutineHealthStatus(),
		"uptime":          format.Duration(stats.Uptime),
		"goVersion":       stats.GoVersion,
		"numCPU":          stats.NumCPU,
		"draining":        s.c.Shutdown.Draining(),
	})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    version.Name,
		"version": version.Version,
		"commit":  version.Commit,
		"date":    version.Date,
	})
}
