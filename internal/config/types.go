package config

import (
	"strconv"
	"time"
)

// Config holds all configuration for the gateway.
type Config struct {
	Logging        LoggingConfig        `yaml:"logging"`
	Server         ServerConfig         `yaml:"server"`
	Registry       RegistryConfig       `yaml:"registry"`
	Cache          CacheConfig          `yaml:"cache"`
	RateLimit      RateLimitConfig      `yaml:"rate_limit"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
	Webhooks       WebhooksConfig       `yaml:"webhooks"`
	SSE            SSEConfig            `yaml:"sse"`
	Telemetry      TelemetryConfig      `yaml:"telemetry"`
	Engineering    EngineeringConfig    `yaml:"engineering"`
}

// ServerConfig holds HTTP control-surface configuration.
type ServerConfig struct {
	Host            string              `yaml:"host"`
	Port            int                 `yaml:"port"`
	ReadTimeout     time.Duration       `yaml:"read_timeout"`
	WriteTimeout    time.Duration       `yaml:"write_timeout"`
	ShutdownTimeout time.Duration       `yaml:"shutdown_timeout"`
	RequestLimits   ServerRequestLimits `yaml:"request_limits"`
	RateLimits      ServerRateLimits    `yaml:"rate_limits"`
	CORS            CORSConfig          `yaml:"cors"`
}

// CORSConfig is a go-chi/cors-shaped allow-list for the control surface.
type CORSConfig struct {
	AllowedOrigins []string      `yaml:"allowed_origins"`
	AllowedMethods []string      `yaml:"allowed_methods"`
	AllowedHeaders []string      `yaml:"allowed_headers"`
	MaxAge         time.Duration `yaml:"max_age"`
}

func (s ServerConfig) GetAddress() string {
	return s.Host + ":" + strconv.Itoa(s.Port)
}

// ServerRequestLimits defines request size and validation limits.
type ServerRequestLimits struct {
	MaxBodySize   int64 `yaml:"max_body_size"`
	MaxHeaderSize int64 `yaml:"max_header_size"`
}

// ServerRateLimits bounds the control surface itself (distinct from C6's
// per-caller/per-server dataplane rate limiting).
type ServerRateLimits struct {
	GlobalRequestsPerMinute int           `yaml:"global_requests_per_minute"`
	PerIPRequestsPerMinute  int           `yaml:"per_ip_requests_per_minute"`
	BurstSize               int           `yaml:"burst_size"`
	HealthRequestsPerMinute int           `yaml:"health_requests_per_minute"`
	CleanupInterval         time.Duration `yaml:"cleanup_interval"`
	IPExtractionTrustProxy  bool          `yaml:"ip_extraction_trust_proxy"`
}

// RegistryConfig configures the persisted server/tool registry (C1/C4).
type RegistryConfig struct {
	DSN                string          `yaml:"dsn"`
	Servers            []ServerSeed    `yaml:"servers"`
	DefaultInvokeKFold int             `yaml:"default_invoke_timeout_kfold"`
	ReconcileInterval  time.Duration   `yaml:"reconcile_interval"`
}

// ServerSeed is the statically-configured form of a ServerConfig, loaded at
// startup and reconciled into the registry (see SPEC_FULL.md §11).
type ServerSeed struct {
	Name          string            `yaml:"name"`
	Transport     string            `yaml:"transport"` // stdio | sse | http
	Command       string            `yaml:"command"`
	Args          []string          `yaml:"args"`
	Env           map[string]string `yaml:"env"`
	URL           string            `yaml:"url"`
	Headers       map[string]string `yaml:"headers"`
	AuthType      string            `yaml:"auth_type"` // none | api_key | oauth2
	APIKeyHeader  string            `yaml:"api_key_header"`
	APIKeyPrefix  string            `yaml:"api_key_prefix"`
	APIKeyValue   string            `yaml:"api_key_value"`
	OAuth2ClientID     string        `yaml:"oauth2_client_id"`
	OAuth2ClientSecret string        `yaml:"oauth2_client_secret"`
	OAuth2TokenURL     string        `yaml:"oauth2_token_url"`
	OAuth2Scopes       []string      `yaml:"oauth2_scopes"`
	HealthCheckEnabled bool          `yaml:"health_check_enabled"`
	HealthCheckIntervalMs int64      `yaml:"health_check_interval_ms"`
	HealthCheckTimeoutMs  int64      `yaml:"health_check_timeout_ms"`
	RateLimitPerMinute int           `yaml:"rate_limit_per_minute"`
	RateLimitPerDay    int           `yaml:"rate_limit_per_day"`
	CacheTTLSeconds    int           `yaml:"cache_ttl_seconds"`
	Category           string        `yaml:"category"`
	Tags               []string      `yaml:"tags"`
	Enabled            bool          `yaml:"enabled"`
}

// CacheConfig configures C5's two-tier response cache.
type CacheConfig struct {
	MemoryCapacity int           `yaml:"memory_capacity"`
	DefaultTTL     time.Duration `yaml:"default_ttl"`
	PurgeInterval  time.Duration `yaml:"purge_interval"`
}

// RateLimitConfig configures C6's fixed-window limiter flush cadence.
type RateLimitConfig struct {
	FlushInterval   time.Duration `yaml:"flush_interval"`
	DefaultPerMinute int          `yaml:"default_per_minute"`
	DefaultPerDay    int          `yaml:"default_per_day"`
}

// CircuitBreakerConfig configures C7's default thresholds.
type CircuitBreakerConfig struct {
	FailureThreshold    int           `yaml:"failure_threshold"`
	SuccessThreshold    int           `yaml:"success_threshold"`
	Timeout             time.Duration `yaml:"timeout"`
	VolumeThreshold     int           `yaml:"volume_threshold"`
}

// WebhooksConfig configures C11.
type WebhooksConfig struct {
	DefaultTimeout    time.Duration `yaml:"default_timeout"`
	DefaultRetryCount int           `yaml:"default_retry_count"`
	DefaultRetryDelay time.Duration `yaml:"default_retry_delay"`
	MaxResponseBody   int           `yaml:"max_response_body_bytes"`
}

// SSEConfig configures C10.
type SSEConfig struct {
	KeepaliveInterval time.Duration `yaml:"keepalive_interval"`
}

// TelemetryConfig toggles the Prometheus exposition endpoint.
type TelemetryConfig struct {
	MetricsEnabled bool   `yaml:"metrics_enabled"`
	MetricsPath    string `yaml:"metrics_path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// EngineeringConfig holds development/debugging configuration.
type EngineeringConfig struct {
	ShowNerdStats   bool   `yaml:"show_nerdstats"`
	EnableProfiler  bool   `yaml:"enable_profiler"`
	ProfilerAddress string `yaml:"profiler_address"`
}
