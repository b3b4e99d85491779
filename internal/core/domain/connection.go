package domain

import (
	"context"
	"time"
)

// ConnectionStatus is the lifecycle state of a pooled transport connection.
type ConnectionStatus string

const (
	StatusDisconnected ConnectionStatus = "disconnected"
	StatusConnecting   ConnectionStatus = "connecting"
	StatusConnected    ConnectionStatus = "connected"
	StatusError        ConnectionStatus = "error"
)

// TransportClient is the opaque handle C3 hands to the router for a
// connected server. Concrete transports (stdio/sse/http) implement it.
// Routers and registries hold only a serverId and must re-query the pool
// for this handle on every call; it is never cached by callers.
type TransportClient interface {
	CallTool(ctx context.Context, toolName string, params map[string]any) ([]byte, error)
	Ping(ctx context.Context) error
	ListTools(ctx context.Context) ([]ToolDescriptor, error)
	Close() error
}

// ToolDescriptor is what a downstream server reports for one of its tools,
// before the registry wraps it into a ToolEntry.
type ToolDescriptor struct {
	Name        string
	Description string
	InputSchema []byte // opaque JSON schema
}

// Connection is C3's in-memory record of one server's transport lifecycle.
type Connection struct {
	ServerID             string
	Status               ConnectionStatus
	Client               TransportClient
	LastHealthCheck      *time.Time
	Error                error
	ConsecutiveFailures  int
}
