package domain

// RateLimitState is C6's per-(apiKeyId, serverId|"") accounting row.
// ServerID is empty for the caller-wide fallback limiter.
type RateLimitState struct {
	APIKeyID      string
	ServerID      string
	MinuteCount   int
	MinuteResetAt int64 // unix-ms, absolute deadline
	DayCount      int
	DayResetAt    int64 // unix-ms, absolute deadline
	UpdatedAt     int64
}

// RateLimitResult is returned by the limiter on every check.
type RateLimitResult struct {
	Allowed         bool
	MinuteRemaining int
	MinuteResetAt   int64
	DayRemaining    int
	DayResetAt      int64
	RetryAfterMs    int64
}
