package tts

import (
	"sync"
	"time"
)

// BreakerConfig configures a provider's circuit breaker.
type BreakerConfig struct {
	Threshold int           `json:"threshold" yaml:"threshold"` // consecutive failures before opening
	Cooldown  time.Duration `json:"cooldown" yaml:"cooldown"`   // how long the breaker stays open
}

// Breaker stops calling a provider after repeated consecutive failures and
// lets it try again once the cooldown has passed.
type Breaker struct {
	mu        sync.Mutex
	failures  int
	threshold int
	openUntil time.Time
	cooldown  time.Duration
	now       func() time.Time
}

// NewBreaker creates a breaker. Zero values default to 3 failures / 30s.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	return &Breaker{threshold: cfg.Threshold, cooldown: cfg.Cooldown, now: time.Now}
}

// Allow reports whether a call may go through.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return !b.now().Before(b.openUntil)
}

// OnSuccess closes the breaker.
func (b *Breaker) OnSuccess() {
	b.mu.Lock()
	b.failures = 0
	b.openUntil = time.Time{}
	b.mu.Unlock()
}

// OnFailure counts a failure and opens the breaker at the threshold.
// It returns true when this failure opened it.
func (b *Breaker) OnFailure() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	if b.failures >= b.threshold {
		wasOpen := b.now().Before(b.openUntil)
		b.openUntil = b.now().Add(b.cooldown)
		return !wasOpen
	}
	return false
}

// Open reports whether the breaker is currently open.
func (b *Breaker) Open() bool { return !b.Allow() }
