package util

import (
	"testing"
	"time"
)

func TestCalculateExponentialBackoffDoublesPerAttempt(t *testing.T) {
	base := 100 * time.Millisecond
	maxDelay := 10 * time.Second

	if got := CalculateExponentialBackoff(1, base, maxDelay, 0); got != base {
		t.Fatalf("attempt 1: expected %v, got %v", base, got)
	}
	if got := CalculateExponentialBackoff(2, base, maxDelay, 0); got != 200*time.Millisecond {
		t.Fatalf("attempt 2: expected 200ms, got %v", got)
	}
	if got := CalculateExponentialBackoff(3, base, maxDelay, 0); got != 400*time.Millisecond {
		t.Fatalf("attempt 3: expected 400ms, got %v", got)
	}
}

func TestCalculateExponentialBackoffCapsAtMaxDelay(t *testing.T) {
	got := CalculateExponentialBackoff(20, 100*time.Millisecond, 2*time.Second, 0)
	if got != 2*time.Second {
		t.Fatalf("expected the cap to apply, got %v", got)
	}
}

func TestCalculateExponentialBackoffZeroAttemptIsZero(t *testing.T) {
	if got := CalculateExponentialBackoff(0, time.Second, time.Minute, 0); got != 0 {
		t.Fatalf("expected zero delay for attempt 0, got %v", got)
	}
}

func TestCalculateExponentialBackoffJitterStaysWithinBounds(t *testing.T) {
	base := time.Second
	got := CalculateExponentialBackoff(1, base, time.Minute, 0.5)
	lower := base - base/2
	upper := base + base/2
	if got < lower || got > upper {
		t.Fatalf("expected jittered delay within [%v, %v], got %v", lower, upper, got)
	}
}

func TestCalculateWebhookRetryDelayDoublesPerAttempt(t *testing.T) {
	if got := CalculateWebhookRetryDelay(1000, 1); got != time.Second {
		t.Fatalf("attempt 1: expected 1s, got %v", got)
	}
	if got := CalculateWebhookRetryDelay(1000, 2); got != 2*time.Second {
		t.Fatalf("attempt 2: expected 2s, got %v", got)
	}
	if got := CalculateWebhookRetryDelay(1000, 3); got != 4*time.Second {
		t.Fatalf("attempt 3: expected 4s, got %v", got)
	}
}

func TestCalculateWebhookRetryDelayCapsAtDefaultMaxBackoff(t *testing.T) {
	got := CalculateWebhookRetryDelay(1000, 30)
	if got != DefaultMaxBackoff {
		t.Fatalf("expected the delay to cap at %v, got %v", DefaultMaxBackoff, got)
	}
}

func TestCalculateWebhookRetryDelayZeroAttemptIsZero(t *testing.T) {
	if got := CalculateWebhookRetryDelay(1000, 0); got != 0 {
		t.Fatalf("expected zero delay for attempt 0, got %v", got)
	}
}
