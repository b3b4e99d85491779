// Package metrics exposes the gateway's Prometheus text exposition, fed by
// the router's per-invocation outcomes and the breaker's state-change events.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/arcbridge/toolgate/internal/core/domain"
)

// Recorder is the concrete Prometheus-backed implementation of
// router.MetricsRecorder, plus a handful of gauges the rest of the
// container feeds directly.
type Recorder struct {
	registry *prometheus.Registry

	invocations  *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	cacheHits    *prometheus.CounterVec
	rateLimited  *prometheus.CounterVec
	circuitOpens *prometheus.CounterVec
	breakerState *prometheus.GaugeVec
}

func New() *Recorder {
	reg := prometheus.NewRegistry()
	r := &Recorder{
		registry: reg,
		invocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "toolgate", Name: "tool_invocations_total",
			Help: "Total tool invocations by server, tool and outcome.",
		}, []string{"server", "tool", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "toolgate", Name: "tool_invocation_duration_seconds",
			Help: "Tool invocation latency in seconds, including cache hits.",
			Buckets: prometheus.DefBuckets,
		}, []string{"server", "tool"}),
		cacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "toolgate", Name: "cache_hits_total",
			Help: "Response cache hits by server and tool.",
		}, []string{"server", "tool"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "toolgate", Name: "rate_limited_total",
			Help: "Invocations rejected by the rate limiter, by server.",
		}, []string{"server"}),
		circuitOpens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "toolgate", Name: "circuit_open_rejections_total",
			Help: "Invocations short-circuited by an open breaker, by server.",
		}, []string{"server"}),
		breakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "toolgate", Name: "circuit_breaker_state",
			Help: "Current breaker state per server (1 = active state, 0 otherwise), labeled by state.",
		}, []string{"server", "state"}),
	}

	reg.MustRegister(
		r.invocations, r.duration, r.cacheHits, r.rateLimited, r.circuitOpens, r.breakerState,
		prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	return r
}

func (r *Recorder) ObserveInvoke(server, tool string, success bool, durationMs int64) {
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	r.invocations.WithLabelValues(server, tool, outcome).Inc()
	r.duration.WithLabelValues(server, tool).Observe(float64(durationMs) / 1000.0)
}

func (r *Recorder) ObserveCacheHit(server, tool string) {
	r.cacheHits.WithLabelValues(server, tool).Inc()
}

func (r *Recorder) ObserveRateLimited(server string) {
	r.rateLimited.WithLabelValues(server).Inc()
}

func (r *Recorder) ObserveCircuitOpen(server string) {
	r.circuitOpens.WithLabelValues(server).Inc()
}

// SetBreakerState zeroes the other two state gauges for server so exactly
// one state label reads 1 at a time.
func (r *Recorder) SetBreakerState(server string, state domain.BreakerStateKind) {
	for _, s := range []domain.BreakerStateKind{domain.BreakerClosed, domain.BreakerOpen, domain.BreakerHalfOpen} {
		v := 0.0
		if s == state {
			v = 1.0
		}
		r.breakerState.WithLabelValues(server, string(s)).Set(v)
	}
}

// RegisterGaugeFunc wires an externally-computed gauge (e.g. active SSE
// client count) into the same registry.
func (r *Recorder) RegisterGaugeFunc(name, help string, fn func() float64) {
	r.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "toolgate", Name: name, Help: help,
	}, fn))
}

func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
