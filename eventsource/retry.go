package eventsource

import (
	"sync"
	"time"
)

// DefaultReconnectDelay is used until the server sends a retry hint.
const DefaultReconnectDelay = 3 * time.Second

// retryPolicy holds the reconnect delay state. The persistent delay is
// whatever the server last sent in a retry field; an override from a 503
// Retry-After applies to the next attempt only.
type retryPolicy struct {
	mu          sync.Mutex
	delay       time.Duration
	override    time.Duration
	hasOverride bool
	maxRetries  int
	failures    int
}

func newRetryPolicy(delay time.Duration, maxRetries int) *retryPolicy {
	if delay <= 0 {
		delay = DefaultReconnectDelay
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &retryPolicy{delay: delay, maxRetries: maxRetries}
}

// setDelay replaces the persistent delay.
func (p *retryPolicy) setDelay(d time.Duration) {
	if d <= 0 {
		return
	}
	p.mu.Lock()
	p.delay = d
	p.mu.Unlock()
}

// overrideOnce makes the next call to next return d.
func (p *retryPolicy) overrideOnce(d time.Duration) {
	if d <= 0 {
		return
	}
	p.mu.Lock()
	p.override = d
	p.hasOverride = true
	p.mu.Unlock()
}

// next returns the delay before the coming attempt, consuming any
// one-shot override.
func (p *retryPolicy) next() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.hasOverride {
		p.hasOverride = false
		return p.override
	}
	return p.delay
}

// current returns the persistent delay.
func (p *retryPolicy) current() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.delay
}

// failed records a failed connection attempt and reports whether the
// retry budget is spent.
func (p *retryPolicy) failed() (failures int, exhausted bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures++
	return p.failures, p.maxRetries > 0 && p.failures >= p.maxRetries
}

// connected resets the failure count.
func (p *retryPolicy) connected() {
	p.mu.Lock()
	p.failures = 0
	p.mu.Unlock()
}
