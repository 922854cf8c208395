package backoff

import (
	"net/http"
	"testing"
	"time"
)

func TestComputeWithRand(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	tests := []struct {
		name        string
		attempt     int
		base        time.Duration
		hint        string
		randomValue float64
		expected    time.Duration
	}{
		{
			name:        "zero random value yields zero without hint",
			attempt:     0,
			base:        time.Second,
			randomValue: 0,
			expected:    0,
		},
		{
			name:        "half of first window",
			attempt:     0,
			base:        time.Second,
			randomValue: 0.5,
			expected:    500 * time.Millisecond,
		},
		{
			name:        "window doubles per attempt",
			attempt:     3,
			base:        100 * time.Millisecond,
			randomValue: 0.5,
			expected:    400 * time.Millisecond,
		},
		{
			name:        "seconds hint wins over smaller jitter",
			attempt:     0,
			base:        time.Second,
			hint:        "120",
			randomValue: 0.9,
			expected:    120 * time.Second,
		},
		{
			name:        "jitter wins over smaller hint",
			attempt:     4,
			base:        time.Second,
			hint:        "1",
			randomValue: 0.5,
			expected:    8 * time.Second,
		},
		{
			name:        "unparseable hint contributes nothing",
			attempt:     1,
			base:        time.Second,
			hint:        "soon",
			randomValue: 0.25,
			expected:    500 * time.Millisecond,
		},
		{
			name:        "http date hint",
			attempt:     0,
			base:        time.Millisecond,
			hint:        now.Add(30 * time.Second).Format(http.TimeFormat),
			randomValue: 0.5,
			expected:    30 * time.Second,
		},
		{
			name:        "past http date clamps to zero",
			attempt:     0,
			base:        time.Second,
			hint:        now.Add(-time.Minute).Format(http.TimeFormat),
			randomValue: 0,
			expected:    0,
		},
		{
			name:        "zero base",
			attempt:     5,
			base:        0,
			randomValue: 0.5,
			expected:    0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeWithRand(tt.attempt, tt.base, tt.hint, tt.randomValue, now)
			if got != tt.expected {
				t.Errorf("ComputeWithRand() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestCompute_BoundedByWindow(t *testing.T) {
	base := 50 * time.Millisecond
	for attempt := 0; attempt < 8; attempt++ {
		window := Window(attempt, base)
		for i := 0; i < 200; i++ {
			got := Compute(attempt, base, "")
			if got < 0 {
				t.Fatalf("Compute(%d) = %v, want non-negative", attempt, got)
			}
			if got >= window {
				t.Fatalf("Compute(%d) = %v, want < %v", attempt, got, window)
			}
		}
	}
}

func TestComputeWithRand_RandomValueNearOne(t *testing.T) {
	got := ComputeWithRand(0, time.Second, "", 1.0, time.Now())
	if got >= time.Second {
		t.Errorf("ComputeWithRand() = %v, want < 1s", got)
	}
}

func TestWindow(t *testing.T) {
	tests := []struct {
		attempt  int
		base     time.Duration
		expected time.Duration
	}{
		{attempt: 0, base: time.Second, expected: time.Second},
		{attempt: 1, base: time.Second, expected: 2 * time.Second},
		{attempt: 3, base: 1000 * time.Millisecond, expected: 8 * time.Second},
		{attempt: -1, base: time.Second, expected: time.Second},
		{attempt: 200, base: time.Second, expected: MaxDelay},
	}

	for _, tt := range tests {
		if got := Window(tt.attempt, tt.base); got != tt.expected {
			t.Errorf("Window(%d, %v) = %v, want %v", tt.attempt, tt.base, got, tt.expected)
		}
	}
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		hint     string
		expected time.Duration
	}{
		{name: "empty", hint: "", expected: 0},
		{name: "integer seconds", hint: "120", expected: 120000 * time.Millisecond},
		{name: "padded seconds", hint: "  3 ", expected: 3 * time.Second},
		{name: "fractional seconds", hint: "1.5", expected: 1500 * time.Millisecond},
		{name: "zero seconds", hint: "0", expected: 0},
		{name: "negative seconds", hint: "-5", expected: 0},
		{name: "garbage", hint: "not-a-date", expected: 0},
		{name: "future date", hint: now.Add(90 * time.Second).Format(http.TimeFormat), expected: 90 * time.Second},
		{name: "past date", hint: now.Add(-90 * time.Second).Format(http.TimeFormat), expected: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseRetryAfter(tt.hint, now); got != tt.expected {
				t.Errorf("ParseRetryAfter(%q) = %v, want %v", tt.hint, got, tt.expected)
			}
		})
	}
}
