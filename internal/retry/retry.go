// Package retry runs operations against flaky remote endpoints, retrying
// throttled and server-side failures with jittered exponential backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/haasonsaas/teamsbridge/internal/backoff"
)

const (
	// DefaultMaxRetries is the number of retries after the first attempt.
	DefaultMaxRetries = 3
	// DefaultBaseDelay seeds the exponential window.
	DefaultBaseDelay = time.Second
)

// Config configures retry behavior.
type Config struct {
	// MaxRetries is the number of retries after the first attempt. Negative
	// values are treated as zero.
	MaxRetries int
	// BaseDelay is the backoff window for the first retry. Zero or negative
	// uses DefaultBaseDelay.
	BaseDelay time.Duration
	// OnRetry is invoked before each wait with the 0-based attempt that just
	// failed, the delay about to be applied and the error that caused it.
	OnRetry func(attempt int, delay time.Duration, err error)
	// Sleep overrides the wait between attempts. Defaults to
	// backoff.SleepWithContext.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultConfig returns the default retry configuration.
func DefaultConfig() Config {
	return Config{
		MaxRetries: DefaultMaxRetries,
		BaseDelay:  DefaultBaseDelay,
	}
}

// StatusError tags a failure with the HTTP status and Retry-After hint of the
// response that produced it. Transport code builds it once at the boundary so
// classification never inspects error strings.
type StatusError struct {
	Status     int
	RetryAfter string
	Err        error
}

func (e *StatusError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("status %d: %v", e.Status, e.Err)
	}
	return fmt.Sprintf("status %d: %s", e.Status, http.StatusText(e.Status))
}

func (e *StatusError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the status is worth retrying.
func (e *StatusError) Retryable() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}

// StatusOf extracts the HTTP status carried by err, if any.
func StatusOf(err error) (int, bool) {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Status, true
	}
	return 0, false
}

// IsRetryable reports whether err is a 429 or 5xx StatusError. Errors that
// carry no status are not retried.
func IsRetryable(err error) bool {
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		return false
	}
	return statusErr.Retryable()
}

func retryAfterOf(err error) string {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.RetryAfter
	}
	return ""
}

// Do runs op until it succeeds, fails with a non-retryable error, or
// MaxRetries retries have been spent. At most MaxRetries+1 calls are made.
// The last error is returned unchanged. If ctx is cancelled during a wait the
// context error is returned joined with the last operation error.
func Do[T any](ctx context.Context, config Config, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	if config.BaseDelay <= 0 {
		config.BaseDelay = DefaultBaseDelay
	}
	sleep := config.Sleep
	if sleep == nil {
		sleep = backoff.SleepWithContext
	}

	if err := ctx.Err(); err != nil {
		return zero, err
	}

	for attempt := 0; ; attempt++ {
		value, err := op(ctx)
		if err == nil {
			return value, nil
		}
		if attempt >= config.MaxRetries || !IsRetryable(err) {
			return zero, err
		}

		delay := backoff.Compute(attempt, config.BaseDelay, retryAfterOf(err))
		if config.OnRetry != nil {
			config.OnRetry(attempt, delay, err)
		}
		if sleepErr := sleep(ctx, delay); sleepErr != nil {
			return zero, errors.Join(sleepErr, err)
		}
	}
}

// DoErr is Do for operations that produce no value.
func DoErr(ctx context.Context, config Config, op func(ctx context.Context) error) error {
	_, err := Do(ctx, config, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}
