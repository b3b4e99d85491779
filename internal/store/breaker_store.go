package store

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/arcbridge/toolgate/internal/core/domain"
)

// BreakerStore persists C7's per-server state row.
type BreakerStore struct {
	db *sqlx.DB
}

func NewBreakerStore(db *sqlx.DB) *BreakerStore { return &BreakerStore{db: db} }

type breakerRow struct {
	ServerID             string `db:"server_id"`
	State                string `db:"state"`
	FailureCount         int    `db:"failure_count"`
	ConsecutiveSuccesses int    `db:"consecutive_successes"`
	LastFailureAt        *int64 `db:"last_failure_at"`
	OpenedAt             *int64 `db:"opened_at"`
	LastStateChange      int64  `db:"last_state_change"`
	RequestCount         int    `db:"request_count"`
}

func (s *BreakerStore) Load(ctx context.Context, serverID string) (*domain.BreakerState, bool) {
	var row breakerRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM circuit_breaker_state WHERE server_id = ?`, serverID)
	if err != nil {
		return nil, false
	}
	return &domain.BreakerState{
		ServerID:             row.ServerID,
		State:                domain.BreakerStateKind(row.State),
		FailureCount:         row.FailureCount,
		ConsecutiveSuccesses: row.ConsecutiveSuccesses,
		LastFailureAt:        row.LastFailureAt,
		OpenedAt:             row.OpenedAt,
		LastStateChange:      row.LastStateChange,
		RequestCount:         row.RequestCount,
	}, true
}

func (s *BreakerStore) Save(ctx context.Context, st domain.BreakerState) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO circuit_breaker_state
			(server_id, state, failure_count, consecutive_successes, last_failure_at, opened_at, last_state_change, request_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(server_id) DO UPDATE SET
			state=excluded.state,
			failure_count=excluded.failure_count,
			consecutive_successes=excluded.consecutive_successes,
			last_failure_at=excluded.last_failure_at,
			opened_at=excluded.opened_at,
			last_state_change=excluded.last_state_change,
			request_count=excluded.request_count`,
		st.ServerID, string(st.State), st.FailureCount, st.ConsecutiveSuccesses,
		st.LastFailureAt, st.OpenedAt, st.LastStateChange, st.RequestCount)
	return err
}
