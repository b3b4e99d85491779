package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/arcbridge/toolgate/internal/core/domain"
)

type memStore struct {
	mu    sync.Mutex
	rows  map[string]domain.RateLimitState
	flushes int
}

func newMemStore() *memStore {
	return &memStore{rows: make(map[string]domain.RateLimitState)}
}

func (m *memStore) Load(_ context.Context, apiKeyID, serverID string) (*domain.RateLimitState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.rows[apiKeyID+"/"+serverID]
	if !ok {
		return nil, false
	}
	cp := st
	return &cp, true
}

func (m *memStore) FlushBatch(_ context.Context, states []domain.RateLimitState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flushes++
	for _, st := range states {
		m.rows[st.APIKeyID+"/"+st.ServerID] = st
	}
	return nil
}

func (m *memStore) Reset(_ context.Context, apiKeyID, serverID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, apiKeyID+"/"+serverID)
	return nil
}

func newTestLimiter() (*Limiter, *memStore) {
	store := newMemStore()
	l := New(store, time.Hour, nil) // flush loop parked; tests call flush() directly
	return l, store
}

func TestCheckLimitAllowsUntilMinuteThreshold(t *testing.T) {
	l, _ := newTestLimiter()
	defer l.Close()
	cfg := domain.RateLimitConfig{PerMinute: 3, PerDay: 100}

	for i := 0; i < 3; i++ {
		res := l.CheckLimit(context.Background(), "key-1", "srv-1", cfg)
		if !res.Allowed {
			t.Fatalf("request %d should be allowed", i)
		}
	}
	res := l.CheckLimit(context.Background(), "key-1", "srv-1", cfg)
	if res.Allowed {
		t.Fatalf("4th request should be rate limited")
	}
	if res.RetryAfterMs <= 0 {
		t.Fatalf("expected positive retry-after, got %d", res.RetryAfterMs)
	}
}

func TestCheckLimitResetsAfterWindowElapses(t *testing.T) {
	l, _ := newTestLimiter()
	defer l.Close()
	clock := time.Unix(0, 0)
	l.now = func() time.Time { return clock }

	cfg := domain.RateLimitConfig{PerMinute: 1, PerDay: 100}
	if !l.CheckLimit(context.Background(), "key-1", "srv-1", cfg).Allowed {
		t.Fatalf("first request should be allowed")
	}
	if l.CheckLimit(context.Background(), "key-1", "srv-1", cfg).Allowed {
		t.Fatalf("second request in same window should be denied")
	}

	clock = clock.Add(time.Minute + time.Second)
	if !l.CheckLimit(context.Background(), "key-1", "srv-1", cfg).Allowed {
		t.Fatalf("request after window reset should be allowed")
	}
}

func TestFlushWritesDirtyStatesToStore(t *testing.T) {
	l, store := newTestLimiter()
	defer l.Close()
	cfg := domain.RateLimitConfig{PerMinute: 10, PerDay: 100}
	l.CheckLimit(context.Background(), "key-1", "srv-1", cfg)

	l.flush()

	store.mu.Lock()
	defer store.mu.Unlock()
	if store.flushes != 1 {
		t.Fatalf("expected one flush, got %d", store.flushes)
	}
	if _, ok := store.rows["key-1/srv-1"]; !ok {
		t.Fatalf("expected flushed row for key-1/srv-1")
	}
}

func TestResetLimitsClearsInMemoryAndStore(t *testing.T) {
	l, store := newTestLimiter()
	defer l.Close()
	cfg := domain.RateLimitConfig{PerMinute: 1, PerDay: 100}
	l.CheckLimit(context.Background(), "key-1", "srv-1", cfg)

	if err := l.ResetLimits(context.Background(), "key-1", "srv-1"); err != nil {
		t.Fatalf("ResetLimits: %v", err)
	}
	if !l.CheckLimit(context.Background(), "key-1", "srv-1", cfg).Allowed {
		t.Fatalf("expected allowance after reset")
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	if _, ok := store.rows["key-1/srv-1"]; ok {
		t.Fatalf("expected store row removed after reset")
	}
}
