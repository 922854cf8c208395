// Package cache holds small in-process caches used on the inbound path.
package cache

import (
	"sync"
	"time"
)

// DefaultDedupeTTL is how long an inbound activity id is remembered.
const DefaultDedupeTTL = 10 * time.Minute

// DefaultDedupeMaxSize bounds memory when a burst of unique ids arrives.
const DefaultDedupeMaxSize = 10000

// Deduper remembers keys for a fixed TTL so redelivered webhook activities
// are acknowledged without being processed twice.
type Deduper struct {
	mu      sync.Mutex
	seen    map[string]time.Time
	ttl     time.Duration
	maxSize int
	now     func() time.Time
}

// DedupeOptions configures a Deduper.
type DedupeOptions struct {
	TTL     time.Duration
	MaxSize int
}

// NewDeduper creates a Deduper. Zero options take the defaults.
func NewDeduper(opts DedupeOptions) *Deduper {
	if opts.TTL <= 0 {
		opts.TTL = DefaultDedupeTTL
	}
	if opts.MaxSize <= 0 {
		opts.MaxSize = DefaultDedupeMaxSize
	}
	return &Deduper{
		seen:    make(map[string]time.Time),
		ttl:     opts.TTL,
		maxSize: opts.MaxSize,
		now:     time.Now,
	}
}

// Seen reports whether key was recorded within the TTL, and records it.
// The first sighting of a key returns false. Empty keys are never duplicates.
func (d *Deduper) Seen(key string) bool {
	if key == "" {
		return false
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if at, ok := d.seen[key]; ok && now.Sub(at) < d.ttl {
		return true
	}
	d.seen[key] = now
	if len(d.seen) > d.maxSize {
		d.sweepLocked(now)
		d.evictOldestLocked()
	}
	return false
}

// Sweep drops expired keys and returns how many were removed.
func (d *Deduper) Sweep() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sweepLocked(d.now())
}

func (d *Deduper) sweepLocked(now time.Time) int {
	removed := 0
	for key, at := range d.seen {
		if now.Sub(at) >= d.ttl {
			delete(d.seen, key)
			removed++
		}
	}
	return removed
}

func (d *Deduper) evictOldestLocked() {
	for len(d.seen) > d.maxSize {
		var oldestKey string
		var oldest time.Time
		for key, at := range d.seen {
			if oldestKey == "" || at.Before(oldest) {
				oldestKey, oldest = key, at
			}
		}
		delete(d.seen, oldestKey)
	}
}

// Len returns the number of remembered keys, expired or not.
func (d *Deduper) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}

// Clear forgets every key.
func (d *Deduper) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seen = make(map[string]time.Time)
}

// ActivityKey builds the dedupe key for an inbound activity. Activity ids are
// only unique within a conversation.
func ActivityKey(conversationID, activityID string) string {
	if activityID == "" {
		return ""
	}
	if conversationID == "" {
		return activityID
	}
	return conversationID + ":" + activityID
}
