// Package ports defines the interfaces the dataplane is built from, so the
// constructed service container (see SPEC_FULL.md §9 singleton rework) can
// wire either real adapters or test fakes behind the same seams.
package ports

import (
	"context"

	"github.com/arcbridge/toolgate/internal/core/domain"
	"github.com/arcbridge/toolgate/internal/core/domain/gatewayerr"
)

// ServerRegistry is C1: persisted server configuration.
type ServerRegistry interface {
	Create(ctx context.Context, cfg *domain.ServerConfig) error
	Update(ctx context.Context, cfg *domain.ServerConfig) error
	Get(ctx context.Context, id string) (*domain.ServerConfig, error)
	GetByName(ctx context.Context, name string) (*domain.ServerConfig, error)
	List(ctx context.Context) ([]*domain.ServerConfig, error)
	SetEnabled(ctx context.Context, id string, enabled bool) error
	Delete(ctx context.Context, id string) error
}

// TokenCache is C2: OAuth2 / API-key auth material per server.
type TokenCache interface {
	// AuthHeaders returns the headers to attach to a downstream request,
	// refreshing OAuth2 tokens as needed.
	AuthHeaders(ctx context.Context, cfg *domain.ServerConfig) (map[string]string, error)
	Invalidate(serverID string)
}

// ConnectionPool is C3: transport lifecycle and health checking.
type ConnectionPool interface {
	Connect(ctx context.Context, cfg *domain.ServerConfig) error
	Disconnect(serverID string) error
	GetClient(serverID string) (domain.TransportClient, bool)
	GetConnectionStatus(serverID string) (domain.ConnectionStatus, bool)
	GetAllConnections() []*domain.Connection
	Close() error
}

// ToolRegistry is C4: the qualified-name tool catalog.
type ToolRegistry interface {
	RegisterServerTools(serverID, serverName string, tools []domain.ToolDescriptor) error
	UnregisterServer(serverID string) error
	Resolve(nameOrShort string) (*domain.ToolEntry, bool)
	RecordUsage(qualifiedName string)
	List() []*domain.ToolEntry
	Stats() domain.RegistryStats
}

// ResponseCache is C5: the two-tier idempotent response cache.
type ResponseCache interface {
	Get(ctx context.Context, cacheType domain.CacheEntryType, serverID, toolName string, params map[string]any) ([]byte, bool)
	Set(ctx context.Context, cacheType domain.CacheEntryType, serverID, toolName string, params map[string]any, value []byte, ttl int) error
	Invalidate(ctx context.Context, serverID, cacheType, toolName string) error
	Close() error
}

// RateLimiter is C6: per-(caller,server) fixed-window limiting.
type RateLimiter interface {
	CheckLimit(ctx context.Context, apiKeyID, serverID string, cfg domain.RateLimitConfig) domain.RateLimitResult
	ResetLimits(ctx context.Context, apiKeyID, serverID string) error
	Close() error
}

// CircuitBreakerRegistry is C7: per-server three-state breakers.
type CircuitBreakerRegistry interface {
	CanExecute(serverID string) bool
	RecordSuccess(serverID string)
	RecordFailure(serverID string)
	GetState(serverID string) domain.BreakerState
	GetTimeUntilRetry(serverID string) int64
	ForceOpen(serverID string) error
	ForceClose(serverID string) error
}

// EventBus is C8: the closed tagged-variant publish/subscribe bus.
type EventBus interface {
	Publish(evt domain.Event)
	Subscribe(ctx context.Context) (<-chan domain.Event, func())
}

// InvokeRequest is one unit of work passed to Router.Invoke/InvokeBatch.
type InvokeRequest struct {
	ToolName string
	Params   map[string]any
	CallerID string
}

// InvokeResult is the router's uniform return shape.
type InvokeResult struct {
	Success    bool
	ServerID   string
	ToolName   string
	DurationMs int64
	Data       []byte
	Error      string
	Kind       gatewayerr.Kind
	RateLimit  *domain.RateLimitResult
	Circuit    *CircuitInfo
}

// CircuitInfo is attached to a result when the breaker influenced it.
type CircuitInfo struct {
	State        domain.BreakerStateKind
	RetryAfterMs int64
}

// Router is C9: the invocation orchestrator.
type Router interface {
	Invoke(ctx context.Context, req InvokeRequest) InvokeResult
	InvokeBatch(ctx context.Context, reqs []InvokeRequest) []InvokeResult
}

// WebhookDispatcher is C11: signed, retried webhook delivery.
type WebhookDispatcher interface {
	Dispatch(ctx context.Context, evt domain.Event)
	TestDelivery(ctx context.Context, sub *domain.WebhookSubscription) (*domain.DeliveryRecord, error)
	Stop()
}
