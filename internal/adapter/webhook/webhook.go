// Package webhook implements C11: signed, retried delivery of bus events to
// subscriber URLs.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/arcbridge/toolgate/internal/core/domain"
	"github.com/arcbridge/toolgate/internal/logger"
	"github.com/arcbridge/toolgate/internal/util"
	"github.com/arcbridge/toolgate/internal/util/pattern"
	"github.com/arcbridge/toolgate/internal/version"
)

const maxResponseBodyBytes = 1024

// Store is the persistence seam for subscriptions and delivery records.
type Store interface {
	List(ctx context.Context) ([]*domain.WebhookSubscription, error)
	RecordDelivery(ctx context.Context, d domain.DeliveryRecord) error
}

type Dispatcher struct {
	store  Store
	log    *logger.StyledLogger
	client *http.Client
	now    func() time.Time

	mu      sync.Mutex
	timers  map[string]*time.Timer
	stopped bool
}

func New(store Store, log *logger.StyledLogger) *Dispatcher {
	return &Dispatcher{
		store:  store,
		log:    log,
		client: &http.Client{},
		now:    time.Now,
		timers: make(map[string]*time.Timer),
	}
}

// Dispatch fans evt out to every matching subscription in parallel.
func (d *Dispatcher) Dispatch(ctx context.Context, evt domain.Event) {
	subs, err := d.store.List(ctx)
	if err != nil {
		if d.log != nil {
			d.log.Error("failed to list webhook subscriptions", "error", err)
		}
		return
	}
	for _, sub := range subs {
		if !matches(sub, evt) {
			continue
		}
		sub := sub
		go d.deliverWithRetry(sub, string(evt.Type), eventPayload(evt), 1)
	}
}

func matches(sub *domain.WebhookSubscription, evt domain.Event) bool {
	found := false
	for _, t := range sub.EventTypes {
		if t == string(evt.Type) {
			found = true
			break
		}
	}
	if !found {
		return false
	}
	if len(sub.ServerFilter) == 0 || evt.ServerID == "" {
		return true
	}
	for _, s := range sub.ServerFilter {
		if pattern.MatchesGlob(evt.ServerID, s) {
			return true
		}
	}
	return false
}

func eventPayload(evt domain.Event) map[string]any {
	data := make(map[string]any, len(evt.Data)+1)
	for k, v := range evt.Data {
		data[k] = v
	}
	if evt.ServerID != "" {
		data["serverId"] = evt.ServerID
	}
	return map[string]any{
		"event":     evt.Type,
		"timestamp": evt.Timestamp.UTC().Format(time.RFC3339),
		"data":      data,
	}
}

func (d *Dispatcher) deliverWithRetry(sub *domain.WebhookSubscription, eventType string, payload map[string]any, attempt int) {
	body, err := json.Marshal(payload)
	if err != nil {
		return
	}

	record := d.attempt(sub, eventType, body, attempt)
	_ = d.store.RecordDelivery(context.Background(), record)

	if record.Status == domain.DeliverySuccess || attempt > sub.RetryCount {
		return
	}

	delay := util.CalculateWebhookRetryDelay(sub.RetryDelayMs, attempt)
	d.scheduleRetry(sub, eventType, payload, attempt+1, delay)
}

func (d *Dispatcher) scheduleRetry(sub *domain.WebhookSubscription, eventType string, payload map[string]any, nextAttempt int, delay time.Duration) {
	key := fmt.Sprintf("%s-%d", sub.ID, d.now().UnixMilli())
	timer := time.AfterFunc(delay, func() {
		d.mu.Lock()
		delete(d.timers, key)
		stopped := d.stopped
		d.mu.Unlock()
		if stopped {
			return
		}
		d.deliverWithRetry(sub, eventType, payload, nextAttempt)
	})
	d.mu.Lock()
	d.timers[key] = timer
	d.mu.Unlock()
}

func (d *Dispatcher) attempt(sub *domain.WebhookSubscription, eventType string, body []byte, attemptNum int) domain.DeliveryRecord {
	start := d.now()
	timeout := time.Duration(sub.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.URL, bytes.NewReader(body))
	if err != nil {
		return d.failureRecord(sub, eventType, body, attemptNum, start, err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", version.Name+"/1")
	req.Header.Set("X-Webhook-ID", sub.ID)
	req.Header.Set("X-Event-Type", eventType)
	if sub.Secret != "" {
		req.Header.Set("X-Signature-256", "sha256="+sign(sub.Secret, body))
	}

	resp, err := d.client.Do(req)
	duration := time.Since(start).Milliseconds()
	if err != nil {
		msg := err.Error()
		if ctx.Err() != nil {
			msg = fmt.Sprintf("Request timeout after %dms", timeout.Milliseconds())
		}
		return domain.DeliveryRecord{
			SubscriptionID: sub.ID, EventType: eventType, Payload: body,
			Status: domain.DeliveryFailed, Error: msg, DurationMs: duration,
			Attempt: attemptNum, CreatedAt: start,
		}
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodyBytes))
	status := domain.DeliveryFailed
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		status = domain.DeliverySuccess
	}
	code := resp.StatusCode
	return domain.DeliveryRecord{
		SubscriptionID: sub.ID, EventType: eventType, Payload: body,
		Status: status, StatusCode: &code, ResponseBody: string(respBody),
		DurationMs: duration, Attempt: attemptNum, CreatedAt: start,
	}
}

func (d *Dispatcher) failureRecord(sub *domain.WebhookSubscription, eventType string, body []byte, attempt int, start time.Time, msg string) domain.DeliveryRecord {
	return domain.DeliveryRecord{
		SubscriptionID: sub.ID, EventType: eventType, Payload: body,
		Status: domain.DeliveryFailed, Error: msg, DurationMs: time.Since(start).Milliseconds(),
		Attempt: attempt, CreatedAt: start,
	}
}

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// TestDelivery bypasses the event bus and sends a synthetic test payload
// through the same delivery pipeline, without scheduling retries.
func (d *Dispatcher) TestDelivery(ctx context.Context, sub *domain.WebhookSubscription) (*domain.DeliveryRecord, error) {
	payload := map[string]any{"event": "test", "timestamp": d.now().UTC().Format(time.RFC3339), "data": map[string]any{}}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal test payload: %w", err)
	}
	record := d.attempt(sub, "test", body, 1)
	return &record, nil
}

// Stop cancels every pending retry timer so none fire after shutdown.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	d.stopped = true
	for key, timer := range d.timers {
		timer.Stop()
		delete(d.timers, key)
	}
	d.mu.Unlock()
}
