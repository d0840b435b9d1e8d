package task

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryPolicyNext(t *testing.T) {
	p := DefaultRetryPolicy()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		retryCount int
		wantDelay  time.Duration
		wantOK     bool
	}{
		{0, 30 * time.Second, true},
		{1, time.Minute, true},
		{2, 2 * time.Minute, true},
		{3, 0, false},
		{7, 0, false},
	}
	for _, tt := range tests {
		next, ok := p.Next(tt.retryCount, now)
		assert.Equal(t, tt.wantOK, ok, "retryCount=%d", tt.retryCount)
		if tt.wantOK {
			assert.Equal(t, now.Add(tt.wantDelay), next, "retryCount=%d", tt.retryCount)
		}
	}
}

func TestRetryPolicyZeroCeilingNeverRetries(t *testing.T) {
	_, ok := RetryPolicy{Base: time.Second}.Next(0, time.Now())

	assert.False(t, ok)
}

func TestRetryPolicyCapsDelay(t *testing.T) {
	p := RetryPolicy{MaxRetries: 100, Base: DefaultBackoffBase}
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	prev := now
	for retryCount := 0; retryCount < 100; retryCount++ {
		next, ok := p.Next(retryCount, now)
		assert.True(t, ok)
		assert.False(t, next.Before(prev), "retryCount=%d scheduled in the past", retryCount)
		assert.LessOrEqual(t, next.Sub(now), MaxBackoff, "retryCount=%d", retryCount)
		prev = next
	}

	next, _ := p.Next(63, now)
	assert.Equal(t, now.Add(MaxBackoff), next)

	huge := RetryPolicy{MaxRetries: 1, Base: 30 * 24 * time.Hour}
	next, _ = huge.Next(0, now)
	assert.Equal(t, now.Add(MaxBackoff), next)
}
