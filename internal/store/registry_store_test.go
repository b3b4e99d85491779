package store

import (
	"context"
	"testing"
	"time"

	"github.com/arcbridge/toolgate/internal/core/domain"
)

func sampleServerConfig(name string) *domain.ServerConfig {
	now := time.UnixMilli(1_000)
	return &domain.ServerConfig{
		Name:        name,
		Transport:   domain.TransportDescriptor{Kind: domain.TransportHTTP, URL: "https://example.test/mcp"},
		Auth:        domain.AuthDescriptor{Kind: domain.AuthAPIKey, Header: "X-Api-Key", Key: "secret"},
		HealthCheck: domain.HealthCheckConfig{Enabled: true, IntervalMs: 30_000, TimeoutMs: 5_000},
		RateLimits:  domain.RateLimitConfig{PerMinute: 60, PerDay: 10_000},
		Metadata:    domain.ServerMetadata{Tags: []string{"prod"}, Category: "search"},
		Enabled:     true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestRegistryStoreCreateAssignsIDWhenAbsent(t *testing.T) {
	db := openTestDB(t)
	s := NewRegistryStore(db)
	cfg := sampleServerConfig("srv-one")

	if err := s.Create(context.Background(), cfg); err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if cfg.ID == "" {
		t.Fatal("expected Create() to assign a non-empty ID")
	}
}

func TestRegistryStoreGetAndGetByNameRoundTrip(t *testing.T) {
	db := openTestDB(t)
	s := NewRegistryStore(db)
	ctx := context.Background()
	cfg := sampleServerConfig("srv-two")

	if err := s.Create(ctx, cfg); err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	byID, err := s.Get(ctx, cfg.ID)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if byID.Name != "srv-two" || byID.Transport.URL != "https://example.test/mcp" {
		t.Fatalf("unexpected config by ID: %+v", byID)
	}

	byName, err := s.GetByName(ctx, "srv-two")
	if err != nil {
		t.Fatalf("GetByName() error: %v", err)
	}
	if byName.ID != cfg.ID {
		t.Fatalf("expected GetByName() to resolve the same server, got %+v", byName)
	}
}

func TestRegistryStoreGetUnknownIDFails(t *testing.T) {
	db := openTestDB(t)
	s := NewRegistryStore(db)

	if _, err := s.Get(context.Background(), "does-not-exist"); err == nil {
		t.Fatal("expected an error for an unknown server ID")
	}
}

func TestRegistryStoreUpdateAppliesChanges(t *testing.T) {
	db := openTestDB(t)
	s := NewRegistryStore(db)
	ctx := context.Background()
	cfg := sampleServerConfig("srv-three")
	if err := s.Create(ctx, cfg); err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	cfg.Transport.URL = "https://example.test/mcp-v2"
	cfg.Enabled = false
	if err := s.Update(ctx, cfg); err != nil {
		t.Fatalf("Update() error: %v", err)
	}

	got, err := s.Get(ctx, cfg.ID)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if got.Transport.URL != "https://example.test/mcp-v2" || got.Enabled {
		t.Fatalf("expected update to apply, got %+v", got)
	}
}

func TestRegistryStoreUpdateUnknownIDFails(t *testing.T) {
	db := openTestDB(t)
	s := NewRegistryStore(db)
	cfg := sampleServerConfig("ghost")
	cfg.ID = "does-not-exist"

	if err := s.Update(context.Background(), cfg); err == nil {
		t.Fatal("expected an error updating a server that was never created")
	}
}

func TestRegistryStoreListReturnsAllServersByName(t *testing.T) {
	db := openTestDB(t)
	s := NewRegistryStore(db)
	ctx := context.Background()

	for _, name := range []string{"srv-b", "srv-a", "srv-c"} {
		if err := s.Create(ctx, sampleServerConfig(name)); err != nil {
			t.Fatalf("Create(%s) error: %v", name, err)
		}
	}

	list, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("expected 3 servers, got %d", len(list))
	}
	if list[0].Name != "srv-a" || list[1].Name != "srv-b" || list[2].Name != "srv-c" {
		t.Fatalf("expected servers ordered by name, got %v", []string{list[0].Name, list[1].Name, list[2].Name})
	}
}

func TestRegistryStoreSetEnabledTogglesFlag(t *testing.T) {
	db := openTestDB(t)
	s := NewRegistryStore(db)
	ctx := context.Background()
	cfg := sampleServerConfig("srv-four")
	if err := s.Create(ctx, cfg); err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	if err := s.SetEnabled(ctx, cfg.ID, false); err != nil {
		t.Fatalf("SetEnabled() error: %v", err)
	}

	got, err := s.Get(ctx, cfg.ID)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if got.Enabled {
		t.Fatal("expected server to be disabled")
	}
}

func TestRegistryStoreSetEnabledUnknownIDFails(t *testing.T) {
	db := openTestDB(t)
	s := NewRegistryStore(db)

	if err := s.SetEnabled(context.Background(), "does-not-exist", true); err == nil {
		t.Fatal("expected an error enabling an unknown server")
	}
}

func TestRegistryStoreDeleteRemovesServer(t *testing.T) {
	db := openTestDB(t)
	s := NewRegistryStore(db)
	ctx := context.Background()
	cfg := sampleServerConfig("srv-five")
	if err := s.Create(ctx, cfg); err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	if err := s.Delete(ctx, cfg.ID); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if _, err := s.Get(ctx, cfg.ID); err == nil {
		t.Fatal("expected Get() to fail after Delete()")
	}
}

func TestRegistryStoreDeleteUnknownIDFails(t *testing.T) {
	db := openTestDB(t)
	s := NewRegistryStore(db)

	if err := s.Delete(context.Background(), "does-not-exist"); err == nil {
		t.Fatal("expected an error deleting an unknown server")
	}
}
