package store

import (
	"context"
	"testing"

	"github.com/arcbridge/toolgate/internal/core/domain"
)

func TestBreakerStoreLoadMissesWithoutAPriorSave(t *testing.T) {
	db := openTestDB(t)
	s := NewBreakerStore(db)

	if _, ok := s.Load(context.Background(), "srv-1"); ok {
		t.Fatal("expected Load() to miss for a server never saved")
	}
}

func TestBreakerStoreSaveThenLoadRoundTrips(t *testing.T) {
	db := openTestDB(t)
	s := NewBreakerStore(db)
	ctx := context.Background()

	failedAt := int64(5_000)
	st := domain.BreakerState{
		ServerID: "srv-1", State: domain.BreakerOpen, FailureCount: 5,
		ConsecutiveSuccesses: 0, LastFailureAt: &failedAt, OpenedAt: &failedAt,
		LastStateChange: 5_000, RequestCount: 42,
	}
	if err := s.Save(ctx, st); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	got, ok := s.Load(ctx, "srv-1")
	if !ok {
		t.Fatal("expected Load() to find the saved row")
	}
	if got.State != domain.BreakerOpen || got.FailureCount != 5 || got.RequestCount != 42 {
		t.Fatalf("unexpected breaker state: %+v", got)
	}
	if got.OpenedAt == nil || *got.OpenedAt != 5_000 {
		t.Fatalf("expected opened_at to round-trip, got %v", got.OpenedAt)
	}
}

func TestBreakerStoreSaveUpsertsOnConflict(t *testing.T) {
	db := openTestDB(t)
	s := NewBreakerStore(db)
	ctx := context.Background()

	open := domain.BreakerState{ServerID: "srv-1", State: domain.BreakerOpen, FailureCount: 5, LastStateChange: 1_000, RequestCount: 10}
	closed := domain.BreakerState{ServerID: "srv-1", State: domain.BreakerClosed, FailureCount: 0, ConsecutiveSuccesses: 3, LastStateChange: 2_000, RequestCount: 13}

	if err := s.Save(ctx, open); err != nil {
		t.Fatalf("first Save() error: %v", err)
	}
	if err := s.Save(ctx, closed); err != nil {
		t.Fatalf("second Save() error: %v", err)
	}

	got, ok := s.Load(ctx, "srv-1")
	if !ok {
		t.Fatal("expected a row after two saves")
	}
	if got.State != domain.BreakerClosed || got.ConsecutiveSuccesses != 3 || got.RequestCount != 13 {
		t.Fatalf("expected the second save to overwrite the first, got %+v", got)
	}
	if got.OpenedAt != nil {
		t.Fatalf("expected opened_at to clear on transition to closed, got %v", got.OpenedAt)
	}
}

func TestBreakerStoreHandlesMultipleServersIndependently(t *testing.T) {
	db := openTestDB(t)
	s := NewBreakerStore(db)
	ctx := context.Background()

	a := domain.BreakerState{ServerID: "srv-a", State: domain.BreakerClosed, LastStateChange: 1_000}
	b := domain.BreakerState{ServerID: "srv-b", State: domain.BreakerOpen, LastStateChange: 1_000}
	if err := s.Save(ctx, a); err != nil {
		t.Fatalf("Save(a) error: %v", err)
	}
	if err := s.Save(ctx, b); err != nil {
		t.Fatalf("Save(b) error: %v", err)
	}

	gotA, ok := s.Load(ctx, "srv-a")
	if !ok || gotA.State != domain.BreakerClosed {
		t.Fatalf("expected srv-a to stay closed, got %+v ok=%v", gotA, ok)
	}
	gotB, ok := s.Load(ctx, "srv-b")
	if !ok || gotB.State != domain.BreakerOpen {
		t.Fatalf("expected srv-b to stay open, got %+v ok=%v", gotB, ok)
	}
}
