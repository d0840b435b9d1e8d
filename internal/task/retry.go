package task

import "time"

// Default retry policy values.
const (
	DefaultMaxRetries  = 3
	DefaultBackoffBase = 30 * time.Second

	// MaxBackoff caps the delay before any single retry.
	MaxBackoff = 24 * time.Hour
)

// RetryPolicy decides whether and when a failed task runs again.
type RetryPolicy struct {
	MaxRetries int
	Base       time.Duration
}

// DefaultRetryPolicy returns the policy with the default ceiling and base.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: DefaultMaxRetries, Base: DefaultBackoffBase}
}

// Next returns when a task that has already been retried retryCount times
// should run again, and false when the ceiling is reached. The delay is
// Base doubled per prior retry, capped at MaxBackoff.
func (p RetryPolicy) Next(retryCount int, now time.Time) (time.Time, bool) {
	if retryCount >= p.MaxRetries {
		return time.Time{}, false
	}
	delay := p.Base
	for i := 0; i < retryCount && delay < MaxBackoff; i++ {
		delay *= 2
	}
	if delay > MaxBackoff {
		delay = MaxBackoff
	}
	return now.Add(delay), true
}
