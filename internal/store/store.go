// Package store owns the gateway's SQLite-backed persistence: the handful
// of tables the dataplane reads/writes directly (servers, response_cache,
// rate_limit_state, circuit_breaker_state, webhook_subscriptions,
// webhook_deliveries). Broader CRUD surfaces (api_keys, audit_log,
// usage_metrics) belong to a management plane this gateway does not own.
package store

import (
	"fmt"

	"github.com/jmoiron/sqlx"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS servers (
	id TEXT PRIMARY KEY,
	name TEXT UNIQUE NOT NULL,
	transport_json TEXT NOT NULL,
	auth_json TEXT NOT NULL,
	health_check_json TEXT NOT NULL,
	rate_limits_json TEXT NOT NULL,
	metadata_json TEXT NOT NULL,
	enabled INTEGER NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS response_cache (
	cache_key TEXT PRIMARY KEY,
	cache_type TEXT NOT NULL,
	server_id TEXT NOT NULL,
	request_hash TEXT NOT NULL,
	response_json BLOB NOT NULL,
	hit_count INTEGER NOT NULL DEFAULT 0,
	ttl_seconds INTEGER NOT NULL,
	expires_at INTEGER NOT NULL,
	created_at INTEGER NOT NULL,
	last_hit_at INTEGER
);
CREATE INDEX IF NOT EXISTS idx_response_cache_server ON response_cache(server_id);
CREATE INDEX IF NOT EXISTS idx_response_cache_expires ON response_cache(expires_at);

CREATE TABLE IF NOT EXISTS rate_limit_state (
	id TEXT PRIMARY KEY,
	api_key_id TEXT NOT NULL,
	server_id TEXT NOT NULL,
	minute_count INTEGER NOT NULL,
	minute_reset_at INTEGER NOT NULL,
	day_count INTEGER NOT NULL,
	day_reset_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	UNIQUE(api_key_id, server_id)
);

CREATE TABLE IF NOT EXISTS circuit_breaker_state (
	server_id TEXT PRIMARY KEY,
	state TEXT NOT NULL,
	failure_count INTEGER NOT NULL,
	consecutive_successes INTEGER NOT NULL,
	last_failure_at INTEGER,
	opened_at INTEGER,
	last_state_change INTEGER NOT NULL,
	request_count INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS webhook_subscriptions (
	id TEXT PRIMARY KEY,
	url TEXT NOT NULL,
	secret TEXT,
	event_types_json TEXT NOT NULL,
	server_filter_json TEXT,
	retry_count INTEGER NOT NULL,
	retry_delay_ms INTEGER NOT NULL,
	timeout_ms INTEGER NOT NULL,
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS webhook_deliveries (
	id TEXT PRIMARY KEY,
	subscription_id TEXT NOT NULL,
	event_type TEXT NOT NULL,
	payload BLOB NOT NULL,
	status TEXT NOT NULL,
	status_code INTEGER,
	response_body TEXT,
	error TEXT,
	duration_ms INTEGER NOT NULL,
	attempt INTEGER NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_webhook_deliveries_sub ON webhook_deliveries(subscription_id);
`

// Open opens (creating if absent) the gateway's SQLite database and applies
// the schema. dsn is a sqlite3 filename, e.g. "toolgate.db" or ":memory:".
func Open(dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Connect("sqlite3", fmt.Sprintf("file:%s?_foreign_keys=on&_journal_mode=WAL", dsn))
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	db.SetMaxOpenConns(1) // sqlite3 driver is not safe for concurrent writers
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return db, nil
}
