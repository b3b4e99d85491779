package store

import (
	"context"
	"testing"

	"github.com/arcbridge/toolgate/internal/core/domain"
)

func TestWebhookStoreCreateAssignsIDWhenAbsent(t *testing.T) {
	db := openTestDB(t)
	s := NewWebhookStore(db)
	sub := &domain.WebhookSubscription{
		URL: "https://hooks.example.test/a", EventTypes: []string{"circuit.opened"},
		RetryCount: 3, RetryDelayMs: 1_000, TimeoutMs: 5_000,
	}

	if err := s.Create(context.Background(), sub); err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if sub.ID == "" {
		t.Fatal("expected Create() to assign a non-empty ID")
	}
}

func TestWebhookStoreListReturnsSubscriptionsWithFilters(t *testing.T) {
	db := openTestDB(t)
	s := NewWebhookStore(db)
	ctx := context.Background()

	withFilter := &domain.WebhookSubscription{
		URL: "https://hooks.example.test/a", Secret: "shh",
		EventTypes: []string{"circuit.opened", "circuit.closed"}, ServerFilter: []string{"srv-prod-*"},
		RetryCount: 3, RetryDelayMs: 1_000, TimeoutMs: 5_000,
	}
	withoutFilter := &domain.WebhookSubscription{
		URL: "https://hooks.example.test/b", EventTypes: []string{"rate_limit.exceeded"},
		RetryCount: 1, RetryDelayMs: 500, TimeoutMs: 2_000,
	}
	if err := s.Create(ctx, withFilter); err != nil {
		t.Fatalf("Create(withFilter) error: %v", err)
	}
	if err := s.Create(ctx, withoutFilter); err != nil {
		t.Fatalf("Create(withoutFilter) error: %v", err)
	}

	subs, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(subs) != 2 {
		t.Fatalf("expected 2 subscriptions, got %d", len(subs))
	}

	byURL := make(map[string]*domain.WebhookSubscription, len(subs))
	for _, sub := range subs {
		byURL[sub.URL] = sub
	}

	got := byURL["https://hooks.example.test/a"]
	if got == nil {
		t.Fatal("expected the filtered subscription to be present")
	}
	if len(got.EventTypes) != 2 || got.EventTypes[0] != "circuit.opened" {
		t.Fatalf("unexpected event types: %v", got.EventTypes)
	}
	if len(got.ServerFilter) != 1 || got.ServerFilter[0] != "srv-prod-*" {
		t.Fatalf("unexpected server filter: %v", got.ServerFilter)
	}

	gotNoFilter := byURL["https://hooks.example.test/b"]
	if gotNoFilter == nil {
		t.Fatal("expected the unfiltered subscription to be present")
	}
	if len(gotNoFilter.ServerFilter) != 0 {
		t.Fatalf("expected an empty server filter, got %v", gotNoFilter.ServerFilter)
	}
}

func TestWebhookStoreDeleteRemovesSubscription(t *testing.T) {
	db := openTestDB(t)
	s := NewWebhookStore(db)
	ctx := context.Background()
	sub := &domain.WebhookSubscription{URL: "https://hooks.example.test/a", EventTypes: []string{"circuit.opened"}}
	if err := s.Create(ctx, sub); err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	if err := s.Delete(ctx, sub.ID); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}

	subs, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(subs) != 0 {
		t.Fatalf("expected no subscriptions after delete, got %d", len(subs))
	}
}

func TestWebhookStoreRecordDeliveryAssignsIDWhenAbsent(t *testing.T) {
	db := openTestDB(t)
	s := NewWebhookStore(db)
	ctx := context.Background()
	sub := &domain.WebhookSubscription{URL: "https://hooks.example.test/a", EventTypes: []string{"circuit.opened"}}
	if err := s.Create(ctx, sub); err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	code := 200
	record := domain.DeliveryRecord{
		SubscriptionID: sub.ID, EventType: "circuit.opened", Payload: []byte(`{}`),
		Status: domain.DeliverySuccess, StatusCode: &code, DurationMs: 42, Attempt: 1,
	}
	if err := s.RecordDelivery(ctx, record); err != nil {
		t.Fatalf("RecordDelivery() error: %v", err)
	}
}

func TestWebhookStoreRecordDeliveryAcceptsFailureWithoutStatusCode(t *testing.T) {
	db := openTestDB(t)
	s := NewWebhookStore(db)
	ctx := context.Background()
	sub := &domain.WebhookSubscription{URL: "https://hooks.example.test/a", EventTypes: []string{"circuit.opened"}}
	if err := s.Create(ctx, sub); err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	record := domain.DeliveryRecord{
		SubscriptionID: sub.ID, EventType: "circuit.opened", Payload: []byte(`{}`),
		Status: domain.DeliveryFailed, Error: "connection refused", DurationMs: 10, Attempt: 1,
	}
	if err := s.RecordDelivery(ctx, record); err != nil {
		t.Fatalf("RecordDelivery() error: %v", err)
	}
}
