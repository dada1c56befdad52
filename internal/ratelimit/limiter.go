package ratelimit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter enforces per-key (token/IP) request rates for the HTTP API using a
// token bucket per key.
type Limiter struct {
	limiters sync.Map   // key → *limiterEntry
	r        rate.Limit // refill rate (requests per second)
	burst    int
}

type limiterEntry struct {
	limiter  *rate.Limiter
	mu       sync.Mutex
	lastSeen time.Time
}

// NewLimiter creates a limiter. rpm is requests per minute; rpm <= 0
// disables limiting. Stale keys are swept until ctx is done.
func NewLimiter(ctx context.Context, rpm, burst int) *Limiter {
	if burst <= 0 {
		burst = 5
	}
	r := rate.Limit(0)
	if rpm > 0 {
		r = rate.Limit(float64(rpm) / 60.0)
	}
	l := &Limiter{r: r, burst: burst}
	if r > 0 {
		go l.cleanupLoop(ctx)
	}
	return l
}

// Allow reports whether a request for key may proceed.
func (l *Limiter) Allow(key string) bool {
	if l.r == 0 {
		return true
	}
	entry := l.getOrCreate(key)
	entry.mu.Lock()
	entry.lastSeen = time.Now()
	entry.mu.Unlock()
	if !entry.limiter.Allow() {
		slog.Warn("security.rate_limited", "key", key)
		return false
	}
	return true
}

// Enabled returns true if the limiter is active.
func (l *Limiter) Enabled() bool {
	return l.r > 0
}

func (l *Limiter) getOrCreate(key string) *limiterEntry {
	if v, ok := l.limiters.Load(key); ok {
		return v.(*limiterEntry)
	}
	entry := &limiterEntry{
		limiter:  rate.NewLimiter(l.r, l.burst),
		lastSeen: time.Now(),
	}
	actual, _ := l.limiters.LoadOrStore(key, entry)
	return actual.(*limiterEntry)
}

func (l *Limiter) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.sweep(time.Now().Add(-10 * time.Minute))
		}
	}
}

func (l *Limiter) sweep(cutoff time.Time) {
	l.limiters.Range(func(key, value any) bool {
		entry := value.(*limiterEntry)
		entry.mu.Lock()
		stale := entry.lastSeen.Before(cutoff)
		entry.mu.Unlock()
		if stale {
			l.limiters.Delete(key)
		}
		return true
	})
}
