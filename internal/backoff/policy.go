// Package backoff computes retry delays using exponential backoff with full
// jitter, optionally stretched by a server-supplied Retry-After hint.
package backoff

import (
	"math"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// MaxDelay caps the exponential component so large attempt counts cannot
// overflow time.Duration.
const MaxDelay = time.Hour

// Compute returns the delay to wait before retrying after the given 0-based
// attempt. The exponential window is base * 2^attempt and the actual wait is
// drawn uniformly from [0, window). When hint is a valid Retry-After value the
// larger of the jittered delay and the hinted delay is returned.
func Compute(attempt int, base time.Duration, hint string) time.Duration {
	return ComputeWithRand(attempt, base, hint, rand.Float64(), time.Now()) // #nosec G404 -- jitter does not require cryptographic randomness
}

// ComputeWithRand is Compute with an explicit random value in [0.0, 1.0) and
// reference time, for deterministic tests.
func ComputeWithRand(attempt int, base time.Duration, hint string, randomValue float64, now time.Time) time.Duration {
	jittered := time.Duration(float64(Window(attempt, base)) * clampUnit(randomValue))
	if jittered < 0 {
		jittered = 0
	}

	hinted := ParseRetryAfter(hint, now)
	if hinted > jittered {
		return hinted
	}
	return jittered
}

// Window returns the exclusive upper bound of the jittered delay for an
// attempt: base * 2^attempt, clamped to MaxDelay.
func Window(attempt int, base time.Duration) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if base <= 0 {
		return 0
	}
	window := float64(base) * math.Pow(2, float64(attempt))
	if window > float64(MaxDelay) || math.IsInf(window, 0) {
		return MaxDelay
	}
	return time.Duration(window)
}

// ParseRetryAfter converts a Retry-After header value into a wait duration.
// The value is read first as a non-negative number of seconds, then as an
// HTTP date. Dates in the past and unparseable values yield 0.
func ParseRetryAfter(hint string, now time.Time) time.Duration {
	hint = strings.TrimSpace(hint)
	if hint == "" {
		return 0
	}

	if secs, err := strconv.ParseFloat(hint, 64); err == nil {
		if secs < 0 || math.IsNaN(secs) || math.IsInf(secs, 0) {
			return 0
		}
		d := secs * float64(time.Second)
		if d > float64(math.MaxInt64) {
			return time.Duration(math.MaxInt64)
		}
		return time.Duration(d)
	}

	when, err := http.ParseTime(hint)
	if err != nil {
		return 0
	}
	if d := when.Sub(now); d > 0 {
		return d
	}
	return 0
}

func clampUnit(v float64) float64 {
	switch {
	case v < 0 || math.IsNaN(v):
		return 0
	case v >= 1:
		return math.Nextafter(1, 0)
	default:
		return v
	}
}
