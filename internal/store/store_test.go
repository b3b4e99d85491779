package store

import (
	"testing"

	"github.com/jmoiron/sqlx"
)

func openTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestOpenAppliesSchema(t *testing.T) {
	db := openTestDB(t)

	tables := []string{
		"servers", "response_cache", "rate_limit_state",
		"circuit_breaker_state", "webhook_subscriptions", "webhook_deliveries",
	}
	for _, tbl := range tables {
		var name string
		if err := db.Get(&name, `SELECT name FROM sqlite_master WHERE type='table' AND name=?`, tbl); err != nil {
			t.Fatalf("expected table %q to exist: %v", tbl, err)
		}
	}
}
