package config

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

const (
	DefaultPort = 8842
	DefaultHost = "0.0.0.0"

	DefaultFileWriteDelay = 150 * time.Millisecond // ensures the file write settled before reload
)

var (
	lastReload  time.Time
	reloadMutex sync.Mutex
)

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            DefaultHost,
			Port:            DefaultPort,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			RequestLimits: ServerRequestLimits{
				MaxBodySize:   1 << 20,
				MaxHeaderSize: 1 << 16,
			},
			RateLimits: ServerRateLimits{
				GlobalRequestsPerMinute: 6000,
				PerIPRequestsPerMinute:  600,
				BurstSize:               50,
				HealthRequestsPerMinute: 600,
				CleanupInterval:         10 * time.Minute,
			},
			CORS: CORSConfig{
				AllowedOrigins: []string{"*"},
				AllowedMethods: []string{"GET", "POST", "OPTIONS"},
				AllowedHeaders: []string{"Content-Type", "Authorization", "X-Api-Key"},
				MaxAge:         10 * time.Minute,
			},
		},
		Registry: RegistryConfig{
			DSN:                "toolgate.db",
			DefaultInvokeKFold: 4,
			ReconcileInterval:  30 * time.Second,
		},
		Cache: CacheConfig{
			MemoryCapacity: 1000,
			DefaultTTL:     300 * time.Second,
			PurgeInterval:  5 * time.Minute,
		},
		RateLimit: RateLimitConfig{
			FlushInterval:    5 * time.Second,
			DefaultPerMinute: 60,
			DefaultPerDay:    10000,
		},
		CircuitBreaker: CircuitBreakerConfig{
			FailureThreshold: 5,
			SuccessThreshold: 2,
			Timeout:          60 * time.Second,
			VolumeThreshold:  10,
		},
		Webhooks: WebhooksConfig{
			DefaultTimeout:    10 * time.Second,
			DefaultRetryCount: 3,
			DefaultRetryDelay: time.Second,
			MaxResponseBody:   1024,
		},
		SSE: SSEConfig{
			KeepaliveInterval: 30 * time.Second,
		},
		Telemetry: TelemetryConfig{
			MetricsEnabled: true,
			MetricsPath:    "/metrics",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// Load loads configuration from file and environment variables, with an
// optional hot-reload callback invoked on debounced config-file changes.
func Load(onConfigChange func()) (*Config, error) {
	cfg := DefaultConfig()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	viper.SetEnvPrefix("GATEWAY")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		if configFile := os.Getenv("GATEWAY_CONFIG_FILE"); configFile != "" {
			viper.SetConfigFile(configFile)
			if err := viper.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
			}
		}
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	viper.WatchConfig()

	if onConfigChange != nil {
		viper.OnConfigChange(func(e fsnotify.Event) {
			reloadMutex.Lock()
			defer reloadMutex.Unlock()

			now := time.Now()
			if now.Sub(lastReload) < 500*time.Millisecond {
				return
			}
			lastReload = now

			time.Sleep(DefaultFileWriteDelay)
			onConfigChange()
		})
	}
	return cfg, nil
}
