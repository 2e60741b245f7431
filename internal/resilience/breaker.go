// Package resilience keeps provider outages from taking down the whole
// assistant.
//
// A [Breaker] watches consecutive failures of a single upstream and stops
// calling it for a cooldown period once it trips. A [Chain] lines up several
// providers of the same kind, each behind its own breaker, and serves every
// request from the first healthy one. [LLMFallback] and [EmbeddingsFallback]
// are the provider-shaped faces of a chain; the application registers the
// offline simulated provider as the last link, so losing an upstream degrades
// answers instead of refusing them.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrBreakerOpen is returned by [Breaker.Do] while the breaker is open and
// the cooldown has not elapsed.
var ErrBreakerOpen = errors.New("resilience: breaker open")

// BreakerState is the operating mode of a [Breaker].
type BreakerState int

const (
	// BreakerClosed forwards every call.
	BreakerClosed BreakerState = iota

	// BreakerOpen rejects every call with [ErrBreakerOpen]. Entered after
	// TripAfter consecutive failures, left when the cooldown elapses.
	BreakerOpen

	// BreakerProbing lets a limited number of calls through to test whether
	// the upstream has recovered. All probes succeeding closes the breaker;
	// a single probe failing reopens it.
	BreakerProbing
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerProbing:
		return "probing"
	default:
		return "unknown"
	}
}

// BreakerConfig tunes a [Breaker]. The zero value gets usable defaults.
type BreakerConfig struct {
	// Name labels the breaker in log output.
	Name string

	// TripAfter is how many consecutive failures open the breaker.
	// Default: 5.
	TripAfter int

	// Cooldown is how long an open breaker rejects calls before probing the
	// upstream again. Default: 30s.
	Cooldown time.Duration

	// ProbeQuota is how many calls may pass while probing. Default: 3.
	ProbeQuota int
}

// Breaker guards one upstream with the classic closed / open / probing cycle.
type Breaker struct {
	name       string
	tripAfter  int
	cooldown   time.Duration
	probeQuota int

	mu         sync.Mutex
	state      BreakerState
	failures   int
	openedAt   time.Time
	probesUsed int
	probeFails int
}

// NewBreaker builds a [Breaker], filling zero config fields with defaults.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.TripAfter <= 0 {
		cfg.TripAfter = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.ProbeQuota <= 0 {
		cfg.ProbeQuota = 3
	}
	return &Breaker{
		name:       cfg.Name,
		tripAfter:  cfg.TripAfter,
		cooldown:   cfg.Cooldown,
		probeQuota: cfg.ProbeQuota,
	}
}

// Do runs fn unless the breaker is open. The error from fn is returned
// unchanged so callers can inspect it; rejected calls get [ErrBreakerOpen]
// and fn is never invoked.
func (b *Breaker) Do(fn func() error) error {
	b.mu.Lock()
	switch b.state {
	case BreakerOpen:
		if time.Since(b.openedAt) < b.cooldown {
			b.mu.Unlock()
			return ErrBreakerOpen
		}
		b.state = BreakerProbing
		b.probesUsed = 0
		b.probeFails = 0
		slog.Info("breaker cooled down, probing upstream", "name", b.name)

	case BreakerProbing:
		if b.probesUsed >= b.probeQuota {
			// Quota spent, verdict pending from in-flight probes.
			b.mu.Unlock()
			return ErrBreakerOpen
		}
	}

	probing := b.state == BreakerProbing
	if probing {
		b.probesUsed++
	}
	b.mu.Unlock()

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.fail(probing)
	} else {
		b.ok(probing)
	}
	return err
}

// fail records a failed call. Caller holds b.mu.
func (b *Breaker) fail(probing bool) {
	if probing {
		b.probeFails++
		b.state = BreakerOpen
		b.openedAt = time.Now()
		b.failures = b.tripAfter
		slog.Warn("breaker reopened, probe failed", "name", b.name)
		return
	}

	b.failures++
	if b.failures >= b.tripAfter {
		b.state = BreakerOpen
		b.openedAt = time.Now()
		slog.Warn("breaker opened", "name", b.name, "failures", b.failures)
	}
}

// ok records a successful call. Caller holds b.mu.
func (b *Breaker) ok(probing bool) {
	if probing {
		if b.probesUsed-b.probeFails >= b.probeQuota {
			b.state = BreakerClosed
			b.failures = 0
			b.probesUsed = 0
			b.probeFails = 0
			slog.Info("breaker closed, upstream recovered", "name", b.name)
		}
		return
	}
	b.failures = 0
}

// State reports the current mode. An open breaker whose cooldown has elapsed
// reports [BreakerProbing] even though the transition itself happens on the
// next [Breaker.Do] call.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == BreakerOpen && time.Since(b.openedAt) >= b.cooldown {
		return BreakerProbing
	}
	return b.state
}

// Reset forces the breaker closed and clears all counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = BreakerClosed
	b.failures = 0
	b.probesUsed = 0
	b.probeFails = 0
	slog.Info("breaker reset", "name", b.name)
}
