package util

import (
	"math"
	"time"
)

// DefaultMaxBackoff caps exponential backoff progressions across the
// gateway (health-check retries, webhook redelivery).
const DefaultMaxBackoff = 5 * time.Minute

// CalculateExponentialBackoff computes exponential backoff with optional jitter.
// Formula: baseDelay * 2^(attempt-1), capped at maxDelay
func CalculateExponentialBackoff(attempt int, baseDelay time.Duration, maxDelay time.Duration, jitterPercent float64) time.Duration {
	if attempt <= 0 {
		return 0
	}

	backoff := float64(baseDelay) * math.Pow(2, float64(attempt-1))

	if backoff > float64(maxDelay) {
		backoff = float64(maxDelay)
	}

	if jitterPercent > 0 {
		pseudoRandom := float64(time.Now().UnixNano()%1000) / 1000.0
		jitter := backoff * jitterPercent * (pseudoRandom - 0.5)
		backoff += jitter
	}

	return time.Duration(backoff)
}

// CalculateWebhookRetryDelay computes an exponential backoff delay:
// retryDelayMs * 2^(n-1) for the n-th retry attempt (n starts at 1).
func CalculateWebhookRetryDelay(retryDelayMs int64, attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	delay := float64(retryDelayMs) * math.Pow(2, float64(attempt-1))
	d := time.Duration(delay) * time.Millisecond
	if d > DefaultMaxBackoff {
		return DefaultMaxBackoff
	}
	return d
}
