package source

import (
	"sync"
	"time"
)

// DefaultBreakerCooldown is how long an open breaker fails fast before letting a trial call through
const DefaultBreakerCooldown = 30 * time.Second

// BreakerState is the observable state of a Breaker
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half_open"
)

// Breaker is a consecutive-failure circuit breaker. It opens after threshold
// consecutive failures and, once the cooldown has elapsed, lets calls through
// again; the first failure after that reopens it.
type Breaker struct {
	mu        sync.Mutex
	threshold int
	cooldown  time.Duration
	failures  int
	openedAt  time.Time
	now       func() time.Time
}

// NewBreaker creates a breaker. A non-positive threshold disables it.
func NewBreaker(threshold int, cooldown time.Duration) *Breaker {
	if cooldown <= 0 {
		cooldown = DefaultBreakerCooldown
	}
	return &Breaker{
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
	}
}

// Allow reports whether a call may proceed
func (b *Breaker) Allow() bool {
	return b.State() != BreakerOpen
}

// State returns the current state
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.threshold <= 0 || b.failures < b.threshold {
		return BreakerClosed
	}
	if b.now().Sub(b.openedAt) >= b.cooldown {
		return BreakerHalfOpen
	}
	return BreakerOpen
}

// Success closes the breaker
func (b *Breaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
}

// Failure records a failed call
func (b *Breaker) Failure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	if b.threshold > 0 && b.failures >= b.threshold {
		// (re)open; a half-open trial that fails restarts the cooldown
		b.openedAt = b.now()
	}
}
