package store

import (
	"context"
	"testing"

	"github.com/arcbridge/toolgate/internal/core/domain"
)

func TestRateLimitStoreLoadMissesWithoutAPriorFlush(t *testing.T) {
	db := openTestDB(t)
	s := NewRateLimitStore(db)

	if _, ok := s.Load(context.Background(), "key-1", "srv-1"); ok {
		t.Fatal("expected Load() to miss for a row never flushed")
	}
}

func TestRateLimitStoreFlushBatchThenLoadRoundTrips(t *testing.T) {
	db := openTestDB(t)
	s := NewRateLimitStore(db)
	ctx := context.Background()

	states := []domain.RateLimitState{
		{APIKeyID: "key-1", ServerID: "srv-1", MinuteCount: 3, MinuteResetAt: 60_000, DayCount: 10, DayResetAt: 86_400_000, UpdatedAt: 1_000},
		{APIKeyID: "key-1", ServerID: "", MinuteCount: 7, MinuteResetAt: 60_000, DayCount: 20, DayResetAt: 86_400_000, UpdatedAt: 1_000},
	}
	if err := s.FlushBatch(ctx, states); err != nil {
		t.Fatalf("FlushBatch() error: %v", err)
	}

	got, ok := s.Load(ctx, "key-1", "srv-1")
	if !ok {
		t.Fatal("expected Load() to find the per-server row")
	}
	if got.MinuteCount != 3 || got.DayCount != 10 {
		t.Fatalf("unexpected per-server state: %+v", got)
	}

	fallback, ok := s.Load(ctx, "key-1", "")
	if !ok {
		t.Fatal("expected Load() to find the caller-wide fallback row")
	}
	if fallback.MinuteCount != 7 {
		t.Fatalf("unexpected fallback state: %+v", fallback)
	}
}

func TestRateLimitStoreFlushBatchUpsertsOnConflict(t *testing.T) {
	db := openTestDB(t)
	s := NewRateLimitStore(db)
	ctx := context.Background()

	first := domain.RateLimitState{APIKeyID: "key-1", ServerID: "srv-1", MinuteCount: 1, MinuteResetAt: 60_000, DayCount: 1, DayResetAt: 86_400_000, UpdatedAt: 1_000}
	second := domain.RateLimitState{APIKeyID: "key-1", ServerID: "srv-1", MinuteCount: 2, MinuteResetAt: 120_000, DayCount: 2, DayResetAt: 86_400_000, UpdatedAt: 2_000}

	if err := s.FlushBatch(ctx, []domain.RateLimitState{first}); err != nil {
		t.Fatalf("first FlushBatch() error: %v", err)
	}
	if err := s.FlushBatch(ctx, []domain.RateLimitState{second}); err != nil {
		t.Fatalf("second FlushBatch() error: %v", err)
	}

	got, ok := s.Load(ctx, "key-1", "srv-1")
	if !ok {
		t.Fatal("expected a row after two flushes")
	}
	if got.MinuteCount != 2 || got.MinuteResetAt != 120_000 {
		t.Fatalf("expected the second flush to overwrite the first, got %+v", got)
	}
}

func TestRateLimitStoreFlushBatchIsNoopOnEmptyInput(t *testing.T) {
	db := openTestDB(t)
	s := NewRateLimitStore(db)

	if err := s.FlushBatch(context.Background(), nil); err != nil {
		t.Fatalf("expected a nil batch to be a no-op, got error: %v", err)
	}
}

func TestRateLimitStoreResetDeletesRow(t *testing.T) {
	db := openTestDB(t)
	s := NewRateLimitStore(db)
	ctx := context.Background()

	state := domain.RateLimitState{APIKeyID: "key-1", ServerID: "srv-1", MinuteCount: 5, DayCount: 5, UpdatedAt: 1_000}
	if err := s.FlushBatch(ctx, []domain.RateLimitState{state}); err != nil {
		t.Fatalf("FlushBatch() error: %v", err)
	}

	if err := s.Reset(ctx, "key-1", "srv-1"); err != nil {
		t.Fatalf("Reset() error: %v", err)
	}

	if _, ok := s.Load(ctx, "key-1", "srv-1"); ok {
		t.Fatal("expected Load() to miss after Reset()")
	}
}
