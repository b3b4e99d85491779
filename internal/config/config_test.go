package config

import "testing"

func TestDefaultConfigSetsExpectedDefaults(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Server.Host != DefaultHost || cfg.Server.Port != DefaultPort {
		t.Fatalf("unexpected server address: %s:%d", cfg.Server.Host, cfg.Server.Port)
	}
	if cfg.Registry.DSN == "" {
		t.Fatal("expected a non-empty default DSN")
	}
	if cfg.Cache.MemoryCapacity != 1000 {
		t.Fatalf("expected default in-memory cache capacity 1000, got %d", cfg.Cache.MemoryCapacity)
	}
	if cfg.CircuitBreaker.FailureThreshold != 5 || cfg.CircuitBreaker.SuccessThreshold != 2 {
		t.Fatalf("unexpected circuit breaker defaults: %+v", cfg.CircuitBreaker)
	}
	if cfg.CircuitBreaker.VolumeThreshold != 10 {
		t.Fatalf("expected volume threshold 10, got %d", cfg.CircuitBreaker.VolumeThreshold)
	}
	if len(cfg.Server.CORS.AllowedOrigins) == 0 {
		t.Fatal("expected a default CORS allow-list")
	}
	if cfg.Telemetry.MetricsPath != "/metrics" {
		t.Fatalf("expected default metrics path /metrics, got %q", cfg.Telemetry.MetricsPath)
	}
}

func TestServerConfigGetAddress(t *testing.T) {
	s := ServerConfig{Host: "127.0.0.1", Port: 9090}
	if got, want := s.GetAddress(), "127.0.0.1:9090"; got != want {
		t.Fatalf("GetAddress() = %q, want %q", got, want)
	}
}
