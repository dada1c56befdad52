// Package ratelimit holds the per-speaker cooldown gate used by the dispatch
// pipeline and the token-bucket limiter used by the HTTP API.
package ratelimit

import (
	"sync"
	"time"
)

// Cooldown rejects a speaker's utterance when their previous accepted one in
// the same room is younger than the cooldown. The clock starts at acceptance,
// not at playback.
type Cooldown struct {
	mu       sync.Mutex
	last     map[string]map[string]time.Time // room → source → last accepted
	cooldown time.Duration
	now      func() time.Time
}

// NewCooldown creates a cooldown gate. A cooldown <= 0 disables it and
// Allow always returns true.
func NewCooldown(cooldown time.Duration) *Cooldown {
	return &Cooldown{
		last:     make(map[string]map[string]time.Time),
		cooldown: cooldown,
		now:      time.Now,
	}
}

// Allow reports whether source may speak in room now, recording the
// acceptance when it may. Expired entries for the room are pruned on each call.
func (c *Cooldown) Allow(room, source string) bool {
	if c == nil || c.cooldown <= 0 {
		return true
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	cutoff := now.Add(-c.cooldown)

	sources := c.last[room]
	if sources == nil {
		sources = make(map[string]time.Time)
		c.last[room] = sources
	}

	for src, ts := range sources {
		if !ts.After(cutoff) {
			delete(sources, src)
		}
	}

	if _, blocked := sources[source]; blocked {
		return false
	}
	sources[source] = now
	return true
}

// Refund withdraws source's last acceptance in room, for an utterance that
// was accepted but never admitted.
func (c *Cooldown) Refund(room, source string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	if sources := c.last[room]; sources != nil {
		delete(sources, source)
	}
	c.mu.Unlock()
}

// ForgetRoom drops all state for a room. Called on room teardown.
func (c *Cooldown) ForgetRoom(room string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	delete(c.last, room)
	c.mu.Unlock()
}

// Len returns the number of tracked (room, source) pairs.
func (c *Cooldown) Len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, sources := range c.last {
		n += len(sources)
	}
	return n
}
