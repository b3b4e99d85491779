package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/arcbridge/toolgate/internal/core/domain"
)

// CacheStore is C5's persistent tier, backing the in-memory LRU for entries
// that have aged out of it but not yet expired.
type CacheStore struct {
	db *sqlx.DB
}

func NewCacheStore(db *sqlx.DB) *CacheStore { return &CacheStore{db: db} }

type cacheRow struct {
	CacheKey     string `db:"cache_key"`
	CacheType    string `db:"cache_type"`
	ServerID     string `db:"server_id"`
	RequestHash  string `db:"request_hash"`
	ResponseJSON []byte `db:"response_json"`
	HitCount     int64  `db:"hit_count"`
	TTLSeconds   int    `db:"ttl_seconds"`
	ExpiresAt    int64  `db:"expires_at"`
	CreatedAt    int64  `db:"created_at"`
	LastHitAt    *int64 `db:"last_hit_at"`
}

func (r cacheRow) toEntry() domain.CacheEntry {
	return domain.CacheEntry{
		Key:        r.CacheKey,
		Type:       domain.CacheEntryType(r.CacheType),
		ServerID:   r.ServerID,
		ParamsHash: r.RequestHash,
		Value:      r.ResponseJSON,
		ExpiresAt:  r.ExpiresAt,
		TTLSeconds: r.TTLSeconds,
		HitCount:   r.HitCount,
		LastHitAt:  r.LastHitAt,
	}
}

// Get returns the entry if present and unexpired as of nowMs.
func (s *CacheStore) Get(ctx context.Context, key string, nowMs int64) (*domain.CacheEntry, bool) {
	var row cacheRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM response_cache WHERE cache_key = ? AND expires_at > ?`, key, nowMs)
	if err != nil {
		return nil, false
	}
	entry := row.toEntry()
	return &entry, true
}

func (s *CacheStore) Put(ctx context.Context, e domain.CacheEntry, createdAtMs int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO response_cache
			(cache_key, cache_type, server_id, request_hash, response_json, hit_count, ttl_seconds, expires_at, created_at, last_hit_at)
		VALUES (?, ?, ?, ?, ?, 0, ?, ?, ?, NULL)
		ON CONFLICT(cache_key) DO UPDATE SET
			response_json=excluded.response_json,
			ttl_seconds=excluded.ttl_seconds,
			expires_at=excluded.expires_at`,
		e.Key, string(e.Type), e.ServerID, e.ParamsHash, e.Value, e.TTLSeconds, e.ExpiresAt, createdAtMs)
	if err != nil {
		return fmt.Errorf("put cache entry: %w", err)
	}
	return nil
}

func (s *CacheStore) RecordHit(ctx context.Context, key string, nowMs int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE response_cache SET hit_count = hit_count + 1, last_hit_at = ? WHERE cache_key = ?`, nowMs, key)
	return err
}

// DeleteMatching deletes rows matching the given optional filters and
// reports how many were removed. An empty filter value imposes no
// constraint on that field; all three empty deletes every row. There is no
// dedicated tool-name column, so toolName is matched against the tool-name
// segment of cache_key with LIKE.
func (s *CacheStore) DeleteMatching(ctx context.Context, serverID, cacheType, toolName string) (int64, error) {
	query := `DELETE FROM response_cache WHERE 1 = 1`
	var args []any
	if cacheType != "" {
		query += ` AND cache_type = ?`
		args = append(args, cacheType)
	}
	if serverID != "" {
		query += ` AND server_id = ?`
		args = append(args, serverID)
	}
	if toolName != "" {
		query += ` AND cache_key LIKE ?`
		args = append(args, "%:"+toolName+":%")
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete matching cache entries: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (s *CacheStore) PurgeExpired(ctx context.Context, nowMs int64) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM response_cache WHERE expires_at <= ?`, nowMs)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}
