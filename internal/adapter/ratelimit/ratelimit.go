// Package ratelimit implements C6: fixed-window request limiting per
// (apiKeyId, serverId) pair, with an in-memory working set synchronously
// consulted on every check and a batched flush to the persistent store so
// the dataplane never blocks on a disk write per request.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/arcbridge/toolgate/internal/core/domain"
	"github.com/arcbridge/toolgate/internal/logger"
)

// Store is the persistence seam; internal/store.RateLimitStore implements it.
type Store interface {
	Load(ctx context.Context, apiKeyID, serverID string) (*domain.RateLimitState, bool)
	FlushBatch(ctx context.Context, states []domain.RateLimitState) error
	Reset(ctx context.Context, apiKeyID, serverID string) error
}

type Limiter struct {
	store Store
	log   *logger.StyledLogger
	now   func() time.Time

	mu     sync.Mutex
	states map[string]*domain.RateLimitState
	dirty  map[string]struct{}

	flushInterval time.Duration
	stop          chan struct{}
	stopped       sync.Once
}

func New(store Store, flushInterval time.Duration, log *logger.StyledLogger) *Limiter {
	l := &Limiter{
		store:         store,
		log:           log,
		now:           time.Now,
		states:        make(map[string]*domain.RateLimitState),
		dirty:         make(map[string]struct{}),
		flushInterval: flushInterval,
		stop:          make(chan struct{}),
	}
	go l.flushLoop()
	return l
}

func key(apiKeyID, serverID string) string { return apiKeyID + "\x00" + serverID }

func (l *Limiter) getOrLoad(apiKeyID, serverID string) *domain.RateLimitState {
	k := key(apiKeyID, serverID)
	if st, ok := l.states[k]; ok {
		return st
	}
	st := &domain.RateLimitState{APIKeyID: apiKeyID, ServerID: serverID}
	if persisted, found := l.store.Load(context.Background(), apiKeyID, serverID); found {
		st = persisted
	}
	l.states[k] = st
	return st
}

// CheckLimit atomically increments the minute/day counters and reports
// whether the request is allowed, resetting each window once its absolute
// deadline has passed. Windows are fixed, not sliding or token-bucket.
func (l *Limiter) CheckLimit(ctx context.Context, apiKeyID, serverID string, cfg domain.RateLimitConfig) domain.RateLimitResult {
	l.mu.Lock()
	defer l.mu.Unlock()

	st := l.getOrLoad(apiKeyID, serverID)
	now := l.now().UnixMilli()

	if now >= st.MinuteResetAt {
		st.MinuteCount = 0
		st.MinuteResetAt = now + time.Minute.Milliseconds()
	}
	if now >= st.DayResetAt {
		st.DayCount = 0
		st.DayResetAt = now + 24*time.Hour.Milliseconds()
	}

	perMinute, perDay := cfg.PerMinute, cfg.PerDay

	if st.MinuteCount >= perMinute {
		return domain.RateLimitResult{
			Allowed: false, MinuteRemaining: 0, MinuteResetAt: st.MinuteResetAt,
			DayRemaining: clampRemaining(perDay, st.DayCount), DayResetAt: st.DayResetAt,
			RetryAfterMs: st.MinuteResetAt - now,
		}
	}
	if st.DayCount >= perDay {
		return domain.RateLimitResult{
			Allowed: false, MinuteRemaining: clampRemaining(perMinute, st.MinuteCount), MinuteResetAt: st.MinuteResetAt,
			DayRemaining: 0, DayResetAt: st.DayResetAt,
			RetryAfterMs: st.DayResetAt - now,
		}
	}

	st.MinuteCount++
	st.DayCount++
	st.UpdatedAt = now
	l.dirty[key(apiKeyID, serverID)] = struct{}{}

	return domain.RateLimitResult{
		Allowed:         true,
		MinuteRemaining: clampRemaining(perMinute, st.MinuteCount),
		MinuteResetAt:   st.MinuteResetAt,
		DayRemaining:    clampRemaining(perDay, st.DayCount),
		DayResetAt:      st.DayResetAt,
	}
}

func clampRemaining(limit, used int) int {
	if r := limit - used; r > 0 {
		return r
	}
	return 0
}

func (l *Limiter) ResetLimits(ctx context.Context, apiKeyID, serverID string) error {
	l.mu.Lock()
	delete(l.states, key(apiKeyID, serverID))
	delete(l.dirty, key(apiKeyID, serverID))
	l.mu.Unlock()
	return l.store.Reset(ctx, apiKeyID, serverID)
}

func (l *Limiter) flushLoop() {
	ticker := time.NewTicker(l.flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.flush()
		case <-l.stop:
			return
		}
	}
}

func (l *Limiter) flush() {
	l.mu.Lock()
	if len(l.dirty) == 0 {
		l.mu.Unlock()
		return
	}
	batch := make([]domain.RateLimitState, 0, len(l.dirty))
	for k := range l.dirty {
		batch = append(batch, *l.states[k])
	}
	l.dirty = make(map[string]struct{})
	l.mu.Unlock()

	if err := l.store.FlushBatch(context.Background(), batch); err != nil && l.log != nil {
		l.log.Error("failed to flush rate limit state", "count", len(batch), "error", err)
	}
}

// Close stops the flush loop and performs one final flush so in-flight
// counters are not lost.
func (l *Limiter) Close() error {
	l.stopped.Do(func() {
		close(l.stop)
		l.flush()
	})
	return nil
}
