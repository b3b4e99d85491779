package domain

import "time"

// TransportKind identifies how the gateway talks to a tool server.
type TransportKind string

const (
	TransportStdio TransportKind = "stdio"
	TransportSSE   TransportKind = "sse"
	TransportHTTP  TransportKind = "http"
)

// AuthKind identifies how the gateway authenticates to a tool server.
type AuthKind string

const (
	AuthNone   AuthKind = "none"
	AuthAPIKey AuthKind = "api_key"
	AuthOAuth2 AuthKind = "oauth2"
)

// TransportDescriptor is a tagged union over the three supported transports.
// Exactly one of the embedded descriptors is meaningful, selected by Kind.
type TransportDescriptor struct {
	Kind TransportKind

	// stdio
	Command string
	Args    []string
	Env     map[string]string

	// sse / http
	URL     string
	Headers map[string]string
}

// AuthDescriptor is a tagged union over the three supported auth modes.
type AuthDescriptor struct {
	Kind AuthKind

	// api_key
	Header string
	Prefix string
	Key    string

	// oauth2
	ClientID     string
	ClientSecret string
	TokenURL     string
	Scopes       []string
}

// HealthCheckConfig controls C3's periodic health probing of a server.
type HealthCheckConfig struct {
	Enabled    bool
	IntervalMs int64 // >= 1000
	TimeoutMs  int64 // >= 100
}

// RateLimitConfig is the per-server default applied by C6 when the caller
// has no more specific override.
type RateLimitConfig struct {
	PerMinute int
	PerDay    int
}

// ServerMetadata carries operator-facing classification plus the one field
// the router consults directly: CacheTTL.
type ServerMetadata struct {
	Tags     []string
	Category string
	CacheTTL time.Duration // 0 means "use the cache's default"
}

// ServerConfig is C1's persisted record: everything the gateway needs to
// connect to, authenticate against, and govern one downstream tool server.
type ServerConfig struct {
	ID          string
	Name        string // unique
	Transport   TransportDescriptor
	Auth        AuthDescriptor
	HealthCheck HealthCheckConfig
	RateLimits  RateLimitConfig
	Metadata    ServerMetadata
	Enabled     bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
