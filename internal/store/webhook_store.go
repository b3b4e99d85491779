package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/arcbridge/toolgate/internal/core/domain"
)

// WebhookStore persists C11's subscriptions and per-attempt delivery log.
type WebhookStore struct {
	db *sqlx.DB
}

func NewWebhookStore(db *sqlx.DB) *WebhookStore { return &WebhookStore{db: db} }

type subscriptionRow struct {
	ID               string `db:"id"`
	URL              string `db:"url"`
	Secret           string `db:"secret"`
	EventTypesJSON   string `db:"event_types_json"`
	ServerFilterJSON string `db:"server_filter_json"`
	RetryCount       int    `db:"retry_count"`
	RetryDelayMs     int64  `db:"retry_delay_ms"`
	TimeoutMs        int64  `db:"timeout_ms"`
	CreatedAt        int64  `db:"created_at"`
}

func (r subscriptionRow) toSubscription() (*domain.WebhookSubscription, error) {
	sub := &domain.WebhookSubscription{
		ID: r.ID, URL: r.URL, Secret: r.Secret,
		RetryCount: r.RetryCount, RetryDelayMs: r.RetryDelayMs, TimeoutMs: r.TimeoutMs,
		CreatedAt: time.UnixMilli(r.CreatedAt),
	}
	if err := json.Unmarshal([]byte(r.EventTypesJSON), &sub.EventTypes); err != nil {
		return nil, fmt.Errorf("unmarshal event types: %w", err)
	}
	if r.ServerFilterJSON != "" {
		if err := json.Unmarshal([]byte(r.ServerFilterJSON), &sub.ServerFilter); err != nil {
			return nil, fmt.Errorf("unmarshal server filter: %w", err)
		}
	}
	return sub, nil
}

func (s *WebhookStore) Create(ctx context.Context, sub *domain.WebhookSubscription) error {
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	eventTypes, err := json.Marshal(sub.EventTypes)
	if err != nil {
		return fmt.Errorf("marshal event types: %w", err)
	}
	var serverFilter []byte
	if len(sub.ServerFilter) > 0 {
		serverFilter, err = json.Marshal(sub.ServerFilter)
		if err != nil {
			return fmt.Errorf("marshal server filter: %w", err)
		}
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.UnixMilli(0)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO webhook_subscriptions
			(id, url, secret, event_types_json, server_filter_json, retry_count, retry_delay_ms, timeout_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sub.ID, sub.URL, sub.Secret, string(eventTypes), string(serverFilter),
		sub.RetryCount, sub.RetryDelayMs, sub.TimeoutMs, sub.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("insert webhook subscription: %w", err)
	}
	return nil
}

func (s *WebhookStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM webhook_subscriptions WHERE id = ?`, id)
	return err
}

func (s *WebhookStore) List(ctx context.Context) ([]*domain.WebhookSubscription, error) {
	var rows []subscriptionRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT * FROM webhook_subscriptions`); err != nil {
		return nil, fmt.Errorf("list webhook subscriptions: %w", err)
	}
	out := make([]*domain.WebhookSubscription, 0, len(rows))
	for _, row := range rows {
		sub, err := row.toSubscription()
		if err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, nil
}

func (s *WebhookStore) RecordDelivery(ctx context.Context, d domain.DeliveryRecord) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO webhook_deliveries
			(id, subscription_id, event_type, payload, status, status_code, response_body, error, duration_ms, attempt, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.SubscriptionID, d.EventType, d.Payload, string(d.Status), d.StatusCode,
		d.ResponseBody, d.Error, d.DurationMs, d.Attempt, d.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("record webhook delivery: %w", err)
	}
	return nil
}
