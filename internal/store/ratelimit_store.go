package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/arcbridge/toolgate/internal/core/domain"
)

// RateLimitStore is C6's persistence tier. The limiter keeps an in-memory
// working set and flushes here on a batched interval rather than per-check.
type RateLimitStore struct {
	db *sqlx.DB
}

func NewRateLimitStore(db *sqlx.DB) *RateLimitStore { return &RateLimitStore{db: db} }

type rateLimitRow struct {
	ID            string `db:"id"`
	APIKeyID      string `db:"api_key_id"`
	ServerID      string `db:"server_id"`
	MinuteCount   int    `db:"minute_count"`
	MinuteResetAt int64  `db:"minute_reset_at"`
	DayCount      int    `db:"day_count"`
	DayResetAt    int64  `db:"day_reset_at"`
	UpdatedAt     int64  `db:"updated_at"`
}

func rowKey(apiKeyID, serverID string) string { return apiKeyID + ":" + serverID }

func (s *RateLimitStore) Load(ctx context.Context, apiKeyID, serverID string) (*domain.RateLimitState, bool) {
	var row rateLimitRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM rate_limit_state WHERE api_key_id = ? AND server_id = ?`, apiKeyID, serverID)
	if err != nil {
		return nil, false
	}
	return &domain.RateLimitState{
		APIKeyID:      row.APIKeyID,
		ServerID:      row.ServerID,
		MinuteCount:   row.MinuteCount,
		MinuteResetAt: row.MinuteResetAt,
		DayCount:      row.DayCount,
		DayResetAt:    row.DayResetAt,
		UpdatedAt:     row.UpdatedAt,
	}, true
}

// FlushBatch upserts a batch of states inside one transaction, called every
// flush interval rather than synchronously per request.
func (s *RateLimitStore) FlushBatch(ctx context.Context, states []domain.RateLimitState) error {
	if len(states) == 0 {
		return nil
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin rate limit flush: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PreparexContext(ctx, `
		INSERT INTO rate_limit_state
			(id, api_key_id, server_id, minute_count, minute_reset_at, day_count, day_reset_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(api_key_id, server_id) DO UPDATE SET
			minute_count=excluded.minute_count,
			minute_reset_at=excluded.minute_reset_at,
			day_count=excluded.day_count,
			day_reset_at=excluded.day_reset_at,
			updated_at=excluded.updated_at`)
	if err != nil {
		return fmt.Errorf("prepare rate limit flush: %w", err)
	}
	defer stmt.Close()

	for _, st := range states {
		if _, err := stmt.ExecContext(ctx, rowKey(st.APIKeyID, st.ServerID), st.APIKeyID, st.ServerID,
			st.MinuteCount, st.MinuteResetAt, st.DayCount, st.DayResetAt, st.UpdatedAt); err != nil {
			return fmt.Errorf("flush rate limit state for %s/%s: %w", st.APIKeyID, st.ServerID, err)
		}
	}
	return tx.Commit()
}

func (s *RateLimitStore) Reset(ctx context.Context, apiKeyID, serverID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM rate_limit_state WHERE api_key_id = ? AND server_id = ?`, apiKeyID, serverID)
	return err
}
