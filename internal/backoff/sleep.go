package backoff

import (
	"context"
	"time"
)

// SleepWithContext sleeps for the specified duration, respecting context cancellation.
// Returns nil if the sleep completed, or ctx.Err() if the context was cancelled.
func SleepWithContext(ctx context.Context, duration time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if duration <= 0 {
		return nil
	}

	timer := time.NewTimer(duration)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// SleepWithBackoff computes the delay for the given attempt and sleeps.
// Returns the delay that was applied alongside any cancellation error.
func SleepWithBackoff(ctx context.Context, attempt int, base time.Duration, hint string) (time.Duration, error) {
	delay := Compute(attempt, base, hint)
	return delay, SleepWithContext(ctx, delay)
}
