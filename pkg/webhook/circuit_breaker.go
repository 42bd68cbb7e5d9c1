package webhook

import (
	"sync"
	"time"
)

// Breaker states as persisted on endpoints and reported in admin views.
const (
	BreakerClosed   = "closed"
	BreakerOpen     = "open"
	BreakerHalfOpen = "half_open"
)

// Breaker shields a misbehaving endpoint from further traffic. After
// threshold consecutive failures it refuses requests until the cooldown
// elapses, then admits a single trial request: trial success closes it, trial
// failure restarts the cooldown.
type Breaker struct {
	threshold int
	cooldown  time.Duration
	now       func() time.Time

	mu       sync.Mutex
	failures int
	openedAt time.Time
	trialing  bool
}

// NewBreaker creates a closed breaker.
func NewBreaker(threshold int, cooldown time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 1
	}
	return &Breaker{threshold: threshold, cooldown: cooldown, now: time.Now}
}

// Allow reports whether a delivery attempt may proceed. While open it
// returns true exactly once per cooldown window, for the trial request.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.failures < b.threshold {
		return true
	}
	if b.trialing {
		return true
	}
	if b.now().Sub(b.openedAt) >= b.cooldown {
		b.trialing = true
		return true
	}
	return false
}

// Success records a delivered request and closes the breaker.
func (b *Breaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.trialing = false
}

// Failure records a failed request. A failed trial restarts the cooldown
// from now.
func (b *Breaker) Failure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.trialing {
		b.trialing = false
		b.openedAt = b.now()
		return
	}
	b.failures++
	if b.failures == b.threshold {
		b.openedAt = b.now()
	}
}

// State derives the breaker state for persistence and reporting.
func (b *Breaker) State() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch {
	case b.failures < b.threshold:
		return BreakerClosed
	case b.trialing || b.now().Sub(b.openedAt) >= b.cooldown:
		return BreakerHalfOpen
	default:
		return BreakerOpen
	}
}
