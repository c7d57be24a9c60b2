package provider

import (
	"context"
	"errors"
	"math/rand/v2"
	"strings"
	"time"
)

const (
	retryBaseDelay = 2 * time.Second
	retryMaxDelay  = 30 * time.Second
	jitterPercent  = 30 // ±30% jitter
)

// isRetryableError reports whether err is worth retrying: rate limits,
// overload, 5xx responses and transient network failures. Cancellation never is.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	msg := err.Error()

	// Rate limit (429)
	if strings.Contains(msg, "429") || strings.Contains(msg, "rate limit") || strings.Contains(msg, "rate_limit") {
		return true
	}
	// Anthropic overloaded (529)
	if strings.Contains(msg, "529") || strings.Contains(msg, "overloaded") {
		return true
	}
	for _, code := range []string{"500", "502", "503", "504"} {
		if strings.Contains(msg, code) {
			return true
		}
	}
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "EOF") ||
		strings.Contains(msg, "temporary failure")
}

// retryDelay returns the backoff for attempt n (0-indexed) with jitter.
func retryDelay(attempt int) time.Duration {
	delay := retryBaseDelay
	for range attempt {
		delay *= 2
		if delay >= retryMaxDelay {
			delay = retryMaxDelay
			break
		}
	}
	span := int64(delay) * jitterPercent * 2 / 100
	jitter := time.Duration(rand.Int64N(span+1)) - time.Duration(int64(delay)*jitterPercent/100)
	return delay + jitter
}

// sleepWithContext sleeps for d, but returns early if ctx is cancelled.
func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
