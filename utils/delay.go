package utils

import (
	"context"
	"math/rand"
	"time"
)

// RandomDelay returns a random duration in [min, max).
func RandomDelay(min, max time.Duration) time.Duration {
	diff := max - min
	if diff <= 0 {
		return min
	}
	return min + time.Duration(rand.Int63n(int64(diff)))
}

// RetryJitter picks a whole number of seconds between 2 and 4 inclusive.
func RetryJitter() time.Duration {
	return time.Duration(2+rand.Intn(3)) * time.Second
}

// Sleep waits for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
