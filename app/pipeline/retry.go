package pipeline

import "time"

// RetryPolicy bounds the posting loop's retry behavior. Tests inject a
// zero-delay variant.
type RetryPolicy struct {
	MaxAttempts   int
	BaseDelay     time.Duration // linear backoff unit for non-rate-limit errors
	RateLimitWait time.Duration // fallback wait when no reset hint is given
}

// BackoffDelay returns the linear backoff for a failed attempt (0-based).
func (p RetryPolicy) BackoffDelay(attempt int) time.Duration {
	return p.BaseDelay * time.Duration(attempt+1)
}
