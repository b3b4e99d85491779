// Package app wires the constructed service container (config, adapters,
// router, HTTP control surface, shutdown coordinator) the way SPEC_FULL.md
// §9's singleton-rework note asks for: no module-level globals, every
// dependency passed by reference so tests can substitute fakes and shutdown
// is deterministic.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/arcbridge/toolgate/internal/adapter/breaker"
	"github.com/arcbridge/toolgate/internal/adapter/cache"
	"github.com/arcbridge/toolgate/internal/adapter/events"
	"github.com/arcbridge/toolgate/internal/adapter/pool"
	"github.com/arcbridge/toolgate/internal/adapter/ratelimit"
	"github.com/arcbridge/toolgate/internal/adapter/registry"
	"github.com/arcbridge/toolgate/internal/adapter/sse"
	"github.com/arcbridge/toolgate/internal/adapter/tokencache"
	"github.com/arcbridge/toolgate/internal/adapter/webhook"
	"github.com/arcbridge/toolgate/internal/config"
	"github.com/arcbridge/toolgate/internal/core/domain"
	"github.com/arcbridge/toolgate/internal/core/router"
	"github.com/arcbridge/toolgate/internal/logger"
	"github.com/arcbridge/toolgate/internal/metrics"
	"github.com/arcbridge/toolgate/internal/shutdown"
	"github.com/arcbridge/toolgate/internal/store"
)

// Container holds every constructed dependency the HTTP layer and the
// shutdown coordinator need. Nothing here is a package-level singleton.
type Container struct {
	cfg *config.Config
	log *logger.StyledLogger

	db *sqlx.DB

	Servers  *registry.ServerRegistry
	Tools    *registry.ToolCatalog
	Tokens   *tokencache.Cache
	Pool     *pool.Pool
	Cache    *cache.Cache
	Limiter  *ratelimit.Limiter
	Breakers *breaker.Registry
	Bus      *events.Bus
	Router   *router.Router
	Webhooks *webhook.Dispatcher
	SSE      *sse.Handler
	Metrics  *metrics.Recorder

	Shutdown *shutdown.Coordinator
}

// NewContainer constructs every adapter (registry, tool catalog, token cache,
// pool, cache, rate limiter, breaker) and wires them into the router.
func NewContainer(cfg *config.Config, log *logger.StyledLogger) (*Container, error) {
	db, err := store.Open(cfg.Registry.DSN)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	bus := events.New()

	serverRegistry, err := registry.NewServerRegistry(store.NewRegistryStore(db))
	if err != nil {
		return nil, fmt.Errorf("load server registry: %w", err)
	}
	tools := registry.NewToolCatalog()

	tokens := tokencache.New()

	connPool := pool.New(tokens, log, bus)

	respCache, err := cache.New(cfg.Cache.MemoryCapacity, store.NewCacheStore(db), cfg.Cache.DefaultTTL, cfg.Cache.PurgeInterval)
	if err != nil {
		return nil, fmt.Errorf("construct response cache: %w", err)
	}

	limiter := ratelimit.New(store.NewRateLimitStore(db), cfg.RateLimit.FlushInterval, log)

	breakerCfg := breaker.Config{
		FailureThreshold: cfg.CircuitBreaker.FailureThreshold,
		SuccessThreshold: cfg.CircuitBreaker.SuccessThreshold,
		Timeout:          cfg.CircuitBreaker.Timeout,
		VolumeThreshold:  cfg.CircuitBreaker.VolumeThreshold,
	}
	breakers := breaker.NewRegistry(breakerCfg, store.NewBreakerStore(db), bus, log)

	recorder := metrics.New()

	rt := router.New(serverRegistry, tools, breakers, limiter, respCache, connPool, bus, recorder,
		cfg.Cache.DefaultTTL, cfg.Registry.DefaultInvokeKFold)

	webhooks := webhook.New(store.NewWebhookStore(db), log)
	sseHandler := sse.New(bus, cfg.SSE.KeepaliveInterval)
	recorder.RegisterGaugeFunc("sse_active_clients", "Currently connected SSE clients.", func() float64 {
		return float64(sseHandler.ActiveClients())
	})

	c := &Container{
		cfg: cfg, log: log, db: db,
		Servers: serverRegistry, Tools: tools, Tokens: tokens, Pool: connPool,
		Cache: respCache, Limiter: limiter, Breakers: breakers, Bus: bus,
		Router: rt, Webhooks: webhooks, SSE: sseHandler, Metrics: recorder,
	}

	c.bridgeEventsToWebhooksAndMetrics()
	c.Shutdown = c.buildShutdownCoordinator()
	return c, nil
}

// bridgeEventsToWebhooksAndMetrics subscribes a single internal consumer to
// the bus that fans every event out to the webhook dispatcher and keeps the
// breaker-state gauge current; SSE subscribes independently per client.
func (c *Container) bridgeEventsToWebhooksAndMetrics() {
	ch, _ := c.Bus.Subscribe(context.Background())
	go func() {
		for evt := range ch {
			c.Webhooks.Dispatch(context.Background(), evt)
			switch evt.Type {
			case domain.EventCircuitOpened:
				c.Metrics.SetBreakerState(evt.ServerID, domain.BreakerOpen)
			case domain.EventCircuitClosed:
				c.Metrics.SetBreakerState(evt.ServerID, domain.BreakerClosed)
			case domain.EventCircuitHalfOpen:
				c.Metrics.SetBreakerState(evt.ServerID, domain.BreakerHalfOpen)
			}
		}
	}()
}

// ReconcileSeeds connects every enabled ServerSeed from config, diffing
// against the persisted registry the way a config-driven manager reloads
// its server set (SPEC_FULL.md §11).
func (c *Container) ReconcileSeeds(ctx context.Context) error {
	if len(c.cfg.Registry.Servers) == 0 {
		return nil
	}
	desired := make([]*domain.ServerConfig, 0, len(c.cfg.Registry.Servers))
	for _, seed := range c.cfg.Registry.Servers {
		desired = append(desired, seedToServerConfig(seed))
	}
	if err := c.Servers.Reconcile(ctx, desired, c.Pool); err != nil {
		return fmt.Errorf("reconcile seeded servers: %w", err)
	}

	servers, err := c.Servers.List(ctx)
	if err != nil {
		return err
	}
	for _, cfg := range servers {
		if !cfg.Enabled {
			continue
		}
		if _, connected := c.Pool.GetConnectionStatus(cfg.ID); connected {
			continue
		}
		if err := c.Pool.Connect(ctx, cfg); err != nil {
			c.log.WarnWithServer("failed to connect seeded server", cfg.Name, "error", err)
			continue
		}
		client, ok := c.Pool.GetClient(cfg.ID)
		if !ok {
			continue
		}
		toolList, err := client.ListTools(ctx)
		if err != nil {
			c.log.WarnWithServer("failed to list tools", cfg.Name, "error", err)
			continue
		}
		if err := c.Tools.RegisterServerTools(cfg.ID, cfg.Name, toolList); err != nil {
			c.log.WarnWithServer("failed to register tools", cfg.Name, "error", err)
		}
	}
	return nil
}

func seedToServerConfig(s config.ServerSeed) *domain.ServerConfig {
	transport := domain.TransportDescriptor{Kind: domain.TransportKind(s.Transport), Command: s.Command, Args: s.Args, Env: s.Env, URL: s.URL, Headers: s.Headers}
	auth := domain.AuthDescriptor{Kind: domain.AuthKind(s.AuthType), Header: s.APIKeyHeader, Prefix: s.APIKeyPrefix, Key: s.APIKeyValue,
		ClientID: s.OAuth2ClientID, ClientSecret: s.OAuth2ClientSecret, TokenURL: s.OAuth2TokenURL, Scopes: s.OAuth2Scopes}
	return &domain.ServerConfig{
		Name:      s.Name,
		Transport: transport,
		Auth:      auth,
		HealthCheck: domain.HealthCheckConfig{
			Enabled: s.HealthCheckEnabled, IntervalMs: s.HealthCheckIntervalMs, TimeoutMs: s.HealthCheckTimeoutMs,
		},
		RateLimits: domain.RateLimitConfig{PerMinute: s.RateLimitPerMinute, PerDay: s.RateLimitPerDay},
		Metadata: domain.ServerMetadata{
			Tags: s.Tags, Category: s.Category, CacheTTL: time.Duration(s.CacheTTLSeconds) * time.Second,
		},
		Enabled: s.Enabled,
	}
}

func (c *Container) buildShutdownCoordinator() *shutdown.Coordinator {
	coord := shutdown.NewCoordinator(c.log)

	coord.Register(shutdown.Handler{Name: "webhook retries", Priority: 10, Timeout: 5 * time.Second, Run: func(context.Context) error {
		c.Webhooks.Stop()
		return nil
	}})
	coord.Register(shutdown.Handler{Name: "rate limiter flush", Priority: 20, Timeout: 5 * time.Second, Run: func(context.Context) error {
		return c.Limiter.Close()
	}})
	coord.Register(shutdown.Handler{Name: "response cache", Priority: 30, Timeout: 5 * time.Second, Run: func(context.Context) error {
		return c.Cache.Close()
	}})
	coord.Register(shutdown.Handler{Name: "connection pool", Priority: 40, Timeout: 10 * time.Second, Run: func(context.Context) error {
		return c.Pool.Close()
	}})
	coord.Register(shutdown.Handler{Name: "event bus", Priority: 50, Timeout: 5 * time.Second, Run: func(context.Context) error {
		c.Bus.Shutdown()
		return nil
	}})
	coord.Register(shutdown.Handler{Name: "persistent store", Priority: 60, Timeout: 5 * time.Second, Run: func(context.Context) error {
		return c.db.Close()
	}})

	return coord
}
