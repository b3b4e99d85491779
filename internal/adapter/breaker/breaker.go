// Package breaker implements C7: a per-server three-state circuit breaker
// whose state is always refreshed from and written to a persistent store,
// so a restarted gateway resumes with continuity (spec scenario S6).
package breaker

import (
	"context"
	"sync"
	"time"

	"github.com/arcbridge/toolgate/internal/core/domain"
	"github.com/arcbridge/toolgate/internal/logger"
)

// Store is the persistence seam; internal/store.BreakerStore implements it.
type Store interface {
	Load(ctx context.Context, serverID string) (*domain.BreakerState, bool)
	Save(ctx context.Context, st domain.BreakerState) error
}

type Config struct {
	FailureThreshold int
	SuccessThreshold int
	Timeout          time.Duration
	VolumeThreshold  int
}

func DefaultConfig() Config {
	return Config{FailureThreshold: 5, SuccessThreshold: 2, Timeout: 60 * time.Second, VolumeThreshold: 10}
}

// Registry is a lazy serverId -> breaker map, backed by per-server mutexes:
// each state transition upserts to the store while that server's mutex is
// held, so persistence never reorders relative to the in-memory state.
type Registry struct {
	cfg    Config
	store  Store
	log    *logger.StyledLogger
	bus    EventPublisher
	now    func() time.Time
	mu     sync.Mutex
	states map[string]*guardedState
}

// EventPublisher is the narrow slice of ports.EventBus the breaker needs;
// declared locally to avoid an import cycle with internal/core/ports.
type EventPublisher interface {
	Publish(evt domain.Event)
}

type guardedState struct {
	mu sync.Mutex
	st domain.BreakerState
}

func NewRegistry(cfg Config, store Store, bus EventPublisher, log *logger.StyledLogger) *Registry {
	return &Registry{
		cfg:    cfg,
		store:  store,
		bus:    bus,
		log:    log,
		now:    time.Now,
		states: make(map[string]*guardedState),
	}
}

func (r *Registry) getOrLoad(serverID string) *guardedState {
	r.mu.Lock()
	gs, ok := r.states[serverID]
	if !ok {
		gs = &guardedState{st: domain.BreakerState{ServerID: serverID, State: domain.BreakerClosed}}
		if persisted, found := r.store.Load(context.Background(), serverID); found {
			gs.st = *persisted
		}
		r.states[serverID] = gs
	}
	r.mu.Unlock()
	return gs
}

func (r *Registry) nowMs() int64 { return r.now().UnixNano() / int64(time.Millisecond) }

// CanExecute applies the OPEN -> HALF_OPEN timeout transition before
// answering.
func (r *Registry) CanExecute(serverID string) bool {
	gs := r.getOrLoad(serverID)
	gs.mu.Lock()
	defer gs.mu.Unlock()

	r.maybeTransitionToHalfOpen(gs)
	return gs.st.State != domain.BreakerOpen
}

func (r *Registry) maybeTransitionToHalfOpen(gs *guardedState) {
	if gs.st.State != domain.BreakerOpen || gs.st.OpenedAt == nil {
		return
	}
	if r.nowMs()-*gs.st.OpenedAt < r.cfg.Timeout.Milliseconds() {
		return
	}
	gs.st.State = domain.BreakerHalfOpen
	gs.st.ConsecutiveSuccesses = 0
	gs.st.LastStateChange = r.nowMs()
	r.persist(gs)
	r.emit(gs.st.ServerID, domain.EventCircuitHalfOpen)
	if r.log != nil {
		r.log.WarnCircuitState("circuit", gs.st.ServerID, logger.CircuitHalfOpen)
	}
}

func (r *Registry) RecordSuccess(serverID string) {
	gs := r.getOrLoad(serverID)
	gs.mu.Lock()
	defer gs.mu.Unlock()

	r.maybeTransitionToHalfOpen(gs)
	gs.st.RequestCount++

	switch gs.st.State {
	case domain.BreakerHalfOpen:
		gs.st.ConsecutiveSuccesses++
		if gs.st.ConsecutiveSuccesses >= r.cfg.SuccessThreshold {
			r.closeBreaker(gs)
			r.emit(serverID, domain.EventCircuitClosed)
			if r.log != nil {
				r.log.WarnCircuitState("circuit", serverID, logger.CircuitClosed)
			}
			return
		}
		r.persist(gs)
	case domain.BreakerClosed:
		r.persist(gs)
	}
}

func (r *Registry) RecordFailure(serverID string) {
	gs := r.getOrLoad(serverID)
	gs.mu.Lock()
	defer gs.mu.Unlock()

	r.maybeTransitionToHalfOpen(gs)
	gs.st.RequestCount++
	gs.st.FailureCount++
	now := r.nowMs()
	gs.st.LastFailureAt = &now

	switch gs.st.State {
	case domain.BreakerHalfOpen:
		r.openBreaker(gs)
		r.emit(serverID, domain.EventCircuitOpened)
	case domain.BreakerClosed:
		if gs.st.RequestCount >= r.cfg.VolumeThreshold && gs.st.FailureCount >= r.cfg.FailureThreshold {
			r.openBreaker(gs)
			r.emit(serverID, domain.EventCircuitOpened)
			if r.log != nil {
				r.log.WarnCircuitState("circuit", serverID, logger.CircuitOpen)
			}
			return
		}
		r.persist(gs)
	}
}

func (r *Registry) openBreaker(gs *guardedState) {
	now := r.nowMs()
	gs.st.State = domain.BreakerOpen
	gs.st.OpenedAt = &now
	gs.st.LastStateChange = now
	r.persist(gs)
}

func (r *Registry) closeBreaker(gs *guardedState) {
	gs.st.State = domain.BreakerClosed
	gs.st.FailureCount = 0
	gs.st.ConsecutiveSuccesses = 0
	gs.st.RequestCount = 0
	gs.st.OpenedAt = nil
	gs.st.LastFailureAt = nil
	gs.st.LastStateChange = r.nowMs()
	r.persist(gs)
}

func (r *Registry) persist(gs *guardedState) {
	if err := r.store.Save(context.Background(), gs.st); err != nil && r.log != nil {
		r.log.Error("failed to persist circuit breaker state", "server_id", gs.st.ServerID, "error", err)
	}
}

func (r *Registry) emit(serverID string, evt domain.EventType) {
	if r.bus == nil {
		return
	}
	r.bus.Publish(domain.Event{Type: evt, Timestamp: r.now(), ServerID: serverID, Data: map[string]any{"serverId": serverID}})
}

func (r *Registry) GetState(serverID string) domain.BreakerState {
	gs := r.getOrLoad(serverID)
	gs.mu.Lock()
	defer gs.mu.Unlock()
	r.maybeTransitionToHalfOpen(gs)
	return gs.st
}

func (r *Registry) GetTimeUntilRetry(serverID string) int64 {
	gs := r.getOrLoad(serverID)
	gs.mu.Lock()
	defer gs.mu.Unlock()
	if gs.st.State != domain.BreakerOpen || gs.st.OpenedAt == nil {
		return 0
	}
	remaining := r.cfg.Timeout.Milliseconds() - (r.nowMs() - *gs.st.OpenedAt)
	if remaining < 0 {
		return 0
	}
	return remaining
}

func (r *Registry) ForceOpen(serverID string) error {
	gs := r.getOrLoad(serverID)
	gs.mu.Lock()
	defer gs.mu.Unlock()
	r.openBreaker(gs)
	r.emit(serverID, domain.EventCircuitOpened)
	return nil
}

func (r *Registry) ForceClose(serverID string) error {
	gs := r.getOrLoad(serverID)
	gs.mu.Lock()
	defer gs.mu.Unlock()
	r.closeBreaker(gs)
	r.emit(serverID, domain.EventCircuitClosed)
	return nil
}
