package utils

import (
	"context"
	"fmt"
	"time"
)

// Backoff returns how long to wait after the given failed attempt (1-based).
type Backoff func(attempt int) time.Duration

// JitteredBackoff waits base plus RetryJitter after every failure.
//
//	attempt 1 fails → wait base + 2..4s
//	attempt 2 fails → wait base + 2..4s
func JitteredBackoff(base time.Duration) Backoff {
	return func(int) time.Duration {
		return base + RetryJitter()
	}
}

// Retry runs fn up to maxRetries times and stops at the first nil error.
// The wait also follows the final failed attempt, so callers that loop over
// several URLs stay paced. Context cancellation ends the loop early.
//
// Usage:
//
//	err := utils.Retry(ctx, 3, utils.JitteredBackoff(2*time.Second), func(ctx context.Context) error {
//	    return fetch(ctx, url)
//	})
func Retry(ctx context.Context, maxRetries int, backoff Backoff, fn func(ctx context.Context) error) error {
	if maxRetries < 1 {
		maxRetries = 1
	}
	var lastErr error

	for attempt := 1; attempt <= maxRetries; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}

		wait := backoff(attempt)
		Warn("Attempt %d/%d failed: %v; waiting %v", attempt, maxRetries, lastErr, wait)
		if err := Sleep(ctx, wait); err != nil {
			return fmt.Errorf("retry aborted after attempt %d: %w", attempt, err)
		}
	}

	return fmt.Errorf("all %d attempts failed, last error: %w", maxRetries, lastErr)
}
