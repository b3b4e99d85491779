package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/arcbridge/toolgate/internal/core/domain"
)

type fakeStore struct {
	mu        sync.Mutex
	subs      []*domain.WebhookSubscription
	deliveries []domain.DeliveryRecord
}

func (f *fakeStore) List(context.Context) ([]*domain.WebhookSubscription, error) {
	return f.subs, nil
}

func (f *fakeStore) RecordDelivery(_ context.Context, d domain.DeliveryRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deliveries = append(f.deliveries, d)
	return nil
}

func (f *fakeStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.deliveries)
}

func TestDispatchDeliversMatchingEventWithSignature(t *testing.T) {
	var gotSig string
	var gotBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get("X-Signature-256")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	store := &fakeStore{subs: []*domain.WebhookSubscription{
		{ID: "sub-1", URL: server.URL, Secret: "shh", EventTypes: []string{"circuit.opened"}, TimeoutMs: 1000},
	}}
	d := New(store, nil)
	defer d.Stop()

	d.Dispatch(context.Background(), domain.Event{Type: domain.EventCircuitOpened, ServerID: "srv-1", Timestamp: time.Now()})

	waitFor(t, func() bool { return store.count() == 1 })

	mac := hmac.New(sha256.New, []byte("shh"))
	mac.Write(gotBody)
	expected := "sha256=" + hex.EncodeToString(mac.Sum(nil))
	if gotSig != expected {
		t.Fatalf("expected signature %s, got %s", expected, gotSig)
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	if store.deliveries[0].Status != domain.DeliverySuccess {
		t.Fatalf("expected success, got %+v", store.deliveries[0])
	}
}

func TestDispatchSkipsNonMatchingEventType(t *testing.T) {
	var called atomic.Bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called.Store(true)
	}))
	defer server.Close()

	store := &fakeStore{subs: []*domain.WebhookSubscription{
		{ID: "sub-1", URL: server.URL, EventTypes: []string{"tool.invoked"}, TimeoutMs: 1000},
	}}
	d := New(store, nil)
	defer d.Stop()

	d.Dispatch(context.Background(), domain.Event{Type: domain.EventCircuitOpened})
	time.Sleep(50 * time.Millisecond)
	if called.Load() {
		t.Fatalf("expected no delivery for non-matching event type")
	}
}

func TestDispatchRetriesOnFailureThenStops(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	store := &fakeStore{subs: []*domain.WebhookSubscription{
		{ID: "sub-1", URL: server.URL, EventTypes: []string{"circuit.opened"}, RetryCount: 2, RetryDelayMs: 5, TimeoutMs: 1000},
	}}
	d := New(store, nil)
	defer d.Stop()

	d.Dispatch(context.Background(), domain.Event{Type: domain.EventCircuitOpened})

	waitFor(t, func() bool { return attempts.Load() >= 3 })
	if attempts.Load() != 3 {
		t.Fatalf("expected exactly 1 initial + 2 retries = 3 attempts, got %d", attempts.Load())
	}
}

func TestTestDeliveryBypassesSubscriptionMatching(t *testing.T) {
	var gotPayload map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotPayload)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	d := New(&fakeStore{}, nil)
	defer d.Stop()

	sub := &domain.WebhookSubscription{ID: "sub-1", URL: server.URL, TimeoutMs: 1000}
	record, err := d.TestDelivery(context.Background(), sub)
	if err != nil {
		t.Fatalf("TestDelivery: %v", err)
	}
	if record.Status != domain.DeliverySuccess {
		t.Fatalf("expected success, got %+v", record)
	}
	if gotPayload["event"] != "test" {
		t.Fatalf("expected synthetic test event, got %+v", gotPayload)
	}
}

func TestMatchesServerFilterSupportsGlobPatterns(t *testing.T) {
	sub := &domain.WebhookSubscription{EventTypes: []string{"circuit.opened"}, ServerFilter: []string{"srv-prod-*"}}

	if !matches(sub, domain.Event{Type: domain.EventCircuitOpened, ServerID: "srv-prod-1"}) {
		t.Fatal("expected a glob server filter to match a prefixed server ID")
	}
	if matches(sub, domain.Event{Type: domain.EventCircuitOpened, ServerID: "srv-staging-1"}) {
		t.Fatal("expected a glob server filter not to match a differently-prefixed server ID")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
