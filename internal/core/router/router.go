// Package router implements C9: the invocation orchestrator that stitches
// C4 (resolve) -> C7 (breaker) -> C6 (rate limit) -> C5 (cache) -> C3
// (dispatch) -> C5/C7/C4/C8 (record outcome) into one call.
package router

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/arcbridge/toolgate/internal/core/domain"
	"github.com/arcbridge/toolgate/internal/core/domain/gatewayerr"
	"github.com/arcbridge/toolgate/internal/core/ports"
)

// MetricsRecorder is the narrow seam the router needs onto the Prometheus
// exposition layer; nil is a valid Router field and every call is a no-op.
type MetricsRecorder interface {
	ObserveInvoke(server, tool string, success bool, durationMs int64)
	ObserveCacheHit(server, tool string)
	ObserveRateLimited(server string)
	ObserveCircuitOpen(server string)
}

type Router struct {
	servers  ports.ServerRegistry
	tools    ports.ToolRegistry
	breakers ports.CircuitBreakerRegistry
	limiters ports.RateLimiter
	cache    ports.ResponseCache
	pool     ports.ConnectionPool
	bus      ports.EventBus
	metrics  MetricsRecorder

	defaultCacheTTL      time.Duration
	downstreamTimeoutKFold int
}

func New(
	servers ports.ServerRegistry,
	tools ports.ToolRegistry,
	breakers ports.CircuitBreakerRegistry,
	limiters ports.RateLimiter,
	cache ports.ResponseCache,
	pool ports.ConnectionPool,
	bus ports.EventBus,
	metrics MetricsRecorder,
	defaultCacheTTL time.Duration,
	downstreamTimeoutKFold int,
) *Router {
	return &Router{
		servers: servers, tools: tools, breakers: breakers, limiters: limiters,
		cache: cache, pool: pool, bus: bus, metrics: metrics,
		defaultCacheTTL: defaultCacheTTL, downstreamTimeoutKFold: downstreamTimeoutKFold,
	}
}

func (r *Router) recordInvoke(serverID, tool string, success bool, durationMs int64) {
	if r.metrics != nil {
		r.metrics.ObserveInvoke(serverID, tool, success, durationMs)
	}
}

func (r *Router) Invoke(ctx context.Context, req ports.InvokeRequest) ports.InvokeResult {
	start := time.Now()

	entry, ok := r.tools.Resolve(req.ToolName)
	if !ok {
		return ports.InvokeResult{
			Success: false, ToolName: req.ToolName, Error: fmt.Sprintf("Tool not found: %s", req.ToolName),
			Kind:       gatewayerr.KindNotFound,
			DurationMs: time.Since(start).Milliseconds(),
		}
	}

	cfg, err := r.servers.Get(ctx, entry.ServerID)
	if err != nil {
		return r.fail(start, entry, fmt.Sprintf("server configuration missing for %s: %v", entry.ServerID, err))
	}

	if !r.breakers.CanExecute(entry.ServerID) {
		retryAfter := r.breakers.GetTimeUntilRetry(entry.ServerID)
		if r.metrics != nil {
			r.metrics.ObserveCircuitOpen(entry.ServerID)
		}
		return ports.InvokeResult{
			Success: false, ServerID: entry.ServerID, ToolName: entry.QualifiedName,
			Error:      fmt.Sprintf("circuit open for %s, retry after %dms", cfg.Name, retryAfter),
			Kind:       gatewayerr.KindCircuitOpen,
			DurationMs: time.Since(start).Milliseconds(),
			Circuit:    &ports.CircuitInfo{State: domain.BreakerOpen, RetryAfterMs: retryAfter},
		}
	}

	rateCfg := domain.RateLimitConfig{PerMinute: cfg.RateLimits.PerMinute, PerDay: cfg.RateLimits.PerDay}
	limiterKey := req.CallerID
	rateResult := r.limiters.CheckLimit(ctx, limiterKey, entry.ServerID, rateCfg)
	if !rateResult.Allowed {
		if r.metrics != nil {
			r.metrics.ObserveRateLimited(entry.ServerID)
		}
		return ports.InvokeResult{
			Success: false, ServerID: entry.ServerID, ToolName: entry.QualifiedName,
			Error:      "rate limit exceeded",
			Kind:       gatewayerr.KindRateLimited,
			DurationMs: time.Since(start).Milliseconds(),
			RateLimit:  &rateResult,
		}
	}

	shortName := strings.TrimPrefix(entry.QualifiedName, entry.ServerName+"/")

	if data, hit := r.cache.Get(ctx, domain.ToolCacheType, entry.ServerID, shortName, req.Params); hit {
		r.breakers.RecordSuccess(entry.ServerID)
		r.tools.RecordUsage(entry.QualifiedName)
		durationMs := time.Since(start).Milliseconds()
		if r.metrics != nil {
			r.metrics.ObserveCacheHit(entry.ServerID, entry.QualifiedName)
			r.recordInvoke(entry.ServerID, entry.QualifiedName, true, durationMs)
		}
		return ports.InvokeResult{
			Success: true, ServerID: entry.ServerID, ToolName: entry.QualifiedName,
			Data: data, DurationMs: durationMs, RateLimit: &rateResult,
		}
	}

	client, ok := r.pool.GetClient(entry.ServerID)
	if !ok {
		return ports.InvokeResult{
			Success: false, ServerID: entry.ServerID, ToolName: entry.QualifiedName,
			Error:      fmt.Sprintf("not connected to %s", cfg.Name),
			Kind:       gatewayerr.KindNotConnected,
			DurationMs: time.Since(start).Milliseconds(), RateLimit: &rateResult,
		}
	}

	timeout := r.downstreamTimeout(cfg)
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	data, callErr := client.CallTool(callCtx, shortName, req.Params)

	if ctx.Err() != nil && callErr != nil {
		// caller cancellation: counts toward neither success nor failure.
	} else if callErr != nil {
		r.breakers.RecordFailure(entry.ServerID)
		r.emit(domain.EventToolError, entry.ServerID, map[string]any{"tool": entry.QualifiedName, "error": callErr.Error()})
		r.emit(domain.EventToolInvoked, entry.ServerID, map[string]any{"tool": entry.QualifiedName, "success": false, "durationMs": time.Since(start).Milliseconds()})
		r.recordInvoke(entry.ServerID, entry.QualifiedName, false, time.Since(start).Milliseconds())
	} else {
		ttl := cfg.Metadata.CacheTTL
		if ttl <= 0 {
			ttl = r.defaultCacheTTL
		}
		if err := r.cache.Set(ctx, domain.ToolCacheType, entry.ServerID, shortName, req.Params, data, int(ttl.Seconds())); err != nil {
			r.emit(domain.EventToolError, entry.ServerID, map[string]any{"tool": entry.QualifiedName, "error": "cache write failed: " + err.Error()})
		}
		r.breakers.RecordSuccess(entry.ServerID)
		r.tools.RecordUsage(entry.QualifiedName)
		r.emit(domain.EventToolInvoked, entry.ServerID, map[string]any{
			"tool": entry.QualifiedName, "success": true, "durationMs": time.Since(start).Milliseconds(), "callerId": req.CallerID,
		})
		r.recordInvoke(entry.ServerID, entry.QualifiedName, true, time.Since(start).Milliseconds())
	}

	if callErr != nil {
		kind := gatewayerr.KindUpstreamFailure
		if callCtx.Err() != nil {
			kind = gatewayerr.KindTimeout
		}
		return ports.InvokeResult{
			Success: false, ServerID: entry.ServerID, ToolName: entry.QualifiedName,
			Error: callErr.Error(), Kind: kind, DurationMs: time.Since(start).Milliseconds(), RateLimit: &rateResult,
		}
	}
	return ports.InvokeResult{
		Success: true, ServerID: entry.ServerID, ToolName: entry.QualifiedName,
		Data: data, DurationMs: time.Since(start).Milliseconds(), RateLimit: &rateResult,
	}
}

// InvokeBatch runs every invocation independently and concurrently; one
// invocation's failure never aborts the others.
func (r *Router) InvokeBatch(ctx context.Context, reqs []ports.InvokeRequest) []ports.InvokeResult {
	results := make([]ports.InvokeResult, len(reqs))
	g, gctx := errgroup.WithContext(context.Background())
	_ = gctx // each invocation gets its own downstream timeout, not the shared batch context

	for i, req := range reqs {
		i, req := i, req
		g.Go(func() error {
			results[i] = r.Invoke(ctx, req)
			return nil
		})
	}
	_ = g.Wait() // Invoke never returns an error to the group; wait only for completion
	return results
}

func (r *Router) downstreamTimeout(cfg *domain.ServerConfig) time.Duration {
	if cfg.HealthCheck.TimeoutMs <= 0 {
		return 30 * time.Second
	}
	kfold := r.downstreamTimeoutKFold
	if kfold <= 0 {
		kfold = 4
	}
	return time.Duration(cfg.HealthCheck.TimeoutMs) * time.Millisecond * time.Duration(kfold)
}

func (r *Router) fail(start time.Time, entry *domain.ToolEntry, msg string) ports.InvokeResult {
	return ports.InvokeResult{
		Success: false, ServerID: entry.ServerID, ToolName: entry.QualifiedName,
		Error: msg, Kind: gatewayerr.KindInternal, DurationMs: time.Since(start).Milliseconds(),
	}
}

func (r *Router) emit(evt domain.EventType, serverID string, data map[string]any) {
	if r.bus == nil {
		return
	}
	r.bus.Publish(domain.Event{Type: evt, Timestamp: time.Now(), ServerID: serverID, Data: data})
}
