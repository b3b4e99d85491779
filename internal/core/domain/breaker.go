package domain

// BreakerStateKind is one of the three circuit-breaker states.
type BreakerStateKind string

const (
	BreakerClosed   BreakerStateKind = "CLOSED"
	BreakerOpen     BreakerStateKind = "OPEN"
	BreakerHalfOpen BreakerStateKind = "HALF_OPEN"
)

// BreakerState is C7's per-server persisted row. OpenedAt is non-nil iff
// the breaker has been continuously OPEN since its last CLOSED transition.
type BreakerState struct {
	ServerID             string
	State                BreakerStateKind
	FailureCount         int
	ConsecutiveSuccesses int
	LastFailureAt        *int64
	OpenedAt             *int64
	LastStateChange      int64
	RequestCount         int
}
