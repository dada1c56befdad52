package bus

import (
	"sync"
	"time"
)

// DedupeCache remembers gateway message IDs so a replayed message (gateway
// resume, double delivery) is spoken once. Entries expire after TTL and are
// pruned lazily on each check.
type DedupeCache struct {
	mu      sync.Mutex
	entries map[string]int64 // message id → unix millis
	ttl     time.Duration
	maxSize int
	now     func() time.Time
}

// NewDedupeCache creates a new dedup cache. Typical values: ttl=10min, maxSize=5000.
func NewDedupeCache(ttl time.Duration, maxSize int) *DedupeCache {
	return &DedupeCache{
		entries: make(map[string]int64, 256),
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
	}
}

// IsDuplicate returns true if key was already seen within the TTL window.
// If not a duplicate, records the key for future checks. Empty keys are never
// duplicates.
func (d *DedupeCache) IsDuplicate(key string) bool {
	if key == "" {
		return false
	}
	now := d.now().UnixMilli()
	cutoff := now - d.ttl.Milliseconds()

	d.mu.Lock()
	defer d.mu.Unlock()

	// Check if key exists and is still valid
	if ts, ok := d.entries[key]; ok && ts >= cutoff {
		return true
	}

	// Prune expired entries
	d.cleanup(cutoff)

	// Record this key
	d.entries[key] = now
	return false
}

// cleanup removes expired entries and evicts oldest if over maxSize.
// Must be called with d.mu held.
func (d *DedupeCache) cleanup(cutoff int64) {
	// Remove expired
	for k, ts := range d.entries {
		if ts < cutoff {
			delete(d.entries, k)
		}
	}

	// Still over max: evict arbitrary entries (map order)
	if d.maxSize > 0 && len(d.entries) >= d.maxSize {
		excess := len(d.entries) - d.maxSize + 1
		for k := range d.entries {
			if excess <= 0 {
				break
			}
			delete(d.entries, k)
			excess--
		}
	}
}

// Len returns the number of remembered keys.
func (d *DedupeCache) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries)
}
