package poster

import (
	"fmt"
	"time"
)

// RateLimitError signals the posting API asked us to back off. ResetAt is
// the server-provided window reset when the response carried one; zero
// means the caller should apply its configured default wait.
type RateLimitError struct {
	ResetAt time.Time
}

func (e *RateLimitError) Error() string {
	if e.ResetAt.IsZero() {
		return "rate limited"
	}
	return fmt.Sprintf("rate limited until %s", e.ResetAt.Format(time.RFC3339))
}

// WaitFor returns how long to sleep before retrying: the server hint plus
// a safety margin when available, otherwise fallback.
func (e *RateLimitError) WaitFor(now time.Time, fallback time.Duration) time.Duration {
	if e.ResetAt.IsZero() {
		return fallback
	}
	wait := e.ResetAt.Sub(now) + 10*time.Second
	if wait < 0 {
		return fallback
	}
	return wait
}
