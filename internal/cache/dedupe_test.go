package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestDeduper(opts DedupeOptions) (*Deduper, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	d := NewDeduper(opts)
	d.now = clock.Now
	return d, clock
}

func TestNewDeduper_Defaults(t *testing.T) {
	d := NewDeduper(DedupeOptions{TTL: -time.Second, MaxSize: -1})
	if d.ttl != DefaultDedupeTTL {
		t.Errorf("ttl = %v, want %v", d.ttl, DefaultDedupeTTL)
	}
	if d.maxSize != DefaultDedupeMaxSize {
		t.Errorf("maxSize = %d, want %d", d.maxSize, DefaultDedupeMaxSize)
	}
}

func TestDeduper_Seen(t *testing.T) {
	d, clock := newTestDeduper(DedupeOptions{TTL: 10 * time.Minute})

	if d.Seen("a") {
		t.Fatal("first sighting reported as duplicate")
	}
	if !d.Seen("a") {
		t.Fatal("second sighting within TTL not reported as duplicate")
	}

	clock.Advance(10 * time.Minute)
	if d.Seen("a") {
		t.Fatal("sighting after TTL reported as duplicate")
	}
}

func TestDeduper_EmptyKey(t *testing.T) {
	d, _ := newTestDeduper(DedupeOptions{})
	if d.Seen("") || d.Seen("") {
		t.Fatal("empty key must never be a duplicate")
	}
	if d.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", d.Len())
	}
}

func TestDeduper_Sweep(t *testing.T) {
	d, clock := newTestDeduper(DedupeOptions{TTL: time.Minute})
	d.Seen("old")
	clock.Advance(30 * time.Second)
	d.Seen("new")
	clock.Advance(45 * time.Second)

	if removed := d.Sweep(); removed != 1 {
		t.Fatalf("Sweep() removed %d, want 1", removed)
	}
	if d.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", d.Len())
	}
}

func TestDeduper_MaxSizeEvictsOldest(t *testing.T) {
	d, clock := newTestDeduper(DedupeOptions{TTL: time.Hour, MaxSize: 3})
	for i := 0; i < 4; i++ {
		d.Seen(fmt.Sprintf("k%d", i))
		clock.Advance(time.Second)
	}
	if d.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", d.Len())
	}
	if d.Seen("k0") {
		t.Error("oldest key should have been evicted")
	}
}

func TestDeduper_Clear(t *testing.T) {
	d, _ := newTestDeduper(DedupeOptions{})
	d.Seen("a")
	d.Clear()
	if d.Seen("a") {
		t.Error("key survived Clear()")
	}
}

func TestDeduper_Concurrent(t *testing.T) {
	d := NewDeduper(DedupeOptions{})
	var wg sync.WaitGroup
	var mu sync.Mutex
	firsts := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if !d.Seen("same") {
				mu.Lock()
				firsts++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if firsts != 1 {
		t.Fatalf("%d goroutines saw the key first, want 1", firsts)
	}
}

func TestActivityKey(t *testing.T) {
	tests := []struct {
		conversation, activity, want string
	}{
		{"19:abc", "1700000000000", "19:abc:1700000000000"},
		{"", "act-1", "act-1"},
		{"19:abc", "", ""},
	}
	for _, tt := range tests {
		if got := ActivityKey(tt.conversation, tt.activity); got != tt.want {
			t.Errorf("ActivityKey(%q, %q) = %q, want %q", tt.conversation, tt.activity, got, tt.want)
		}
	}
}
