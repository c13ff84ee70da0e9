// Package resilience provides circuit breaking and provider failover.
//
// A [Breaker] is a three-state circuit breaker (closed → open → half-open)
// that shields callers from a backend that keeps failing. A [Chain] composes
// a primary provider with ordered fallbacks, each behind its own breaker, so
// a session survives a hosted provider outage: the wrappers in this package
// ([LLMFailover], [STTFailover], [TTSFailover]) satisfy the provider
// interfaces and can be dropped in wherever a single provider is expected.
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
// the cooldown has not yet elapsed.
var ErrBreakerOpen = errors.New("resilience: breaker open")

// State is the operating mode of a [Breaker].
type State int

const (
	// Closed is normal operation; calls pass through.
	Closed State = iota

	// Open means the backend tripped the failure threshold. Calls fail fast
	// with [ErrBreakerOpen] until the cooldown elapses.
	Open

	// HalfOpen is the probing state after the cooldown: a handful of calls
	// are let through to test whether the backend recovered.
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig tunes a [Breaker]. Zero fields take defaults.
type BreakerConfig struct {
	// Name labels the breaker in logs.
	Name string

	// Threshold is how many consecutive failures open the breaker. Default 5.
	Threshold int

	// Cooldown is how long the breaker stays open before probing. Default 30s.
	Cooldown time.Duration

	// Probes is how many half-open calls must succeed to close. Default 3.
	Probes int
}

// Breaker is a three-state circuit breaker.
type Breaker struct {
	name      string
	threshold int
	cooldown  time.Duration
	probes    int

	mu          sync.Mutex
	state       State
	failures    int
	lastFailure time.Time
	probeCalls  int
	probeFails  int
}

// NewBreaker creates a Breaker, filling zero config fields with defaults.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.Probes <= 0 {
		cfg.Probes = 3
	}
	return &Breaker{
		name:      cfg.Name,
		threshold: cfg.Threshold,
		cooldown:  cfg.Cooldown,
		probes:    cfg.Probes,
	}
}

// Do runs fn if the breaker allows it. While open it returns [ErrBreakerOpen]
// without calling fn; half-open admits a limited number of probes.
func (b *Breaker) Do(fn func() error) error {
	b.mu.Lock()
	switch b.state {
	case Open:
		if time.Since(b.lastFailure) < b.cooldown {
			b.mu.Unlock()
			return ErrBreakerOpen
		}
		b.state = HalfOpen
		b.probeCalls = 0
		b.probeFails = 0
		slog.Info("breaker half-open", "name", b.name)

	case HalfOpen:
		if b.probeCalls >= b.probes {
			// Probe budget spent; wait for a verdict.
			b.mu.Unlock()
			return ErrBreakerOpen
		}
	}

	probing := b.state == HalfOpen
	if probing {
		b.probeCalls++
	}
	b.mu.Unlock()

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.onFailure(probing)
	} else {
		b.onSuccess(probing)
	}
	return err
}

// onFailure updates counters after a failed call. Caller holds b.mu.
func (b *Breaker) onFailure(probing bool) {
	b.lastFailure = time.Now()

	if probing {
		b.probeFails++
		// One bad probe re-opens immediately.
		b.state = Open
		b.failures = b.threshold
		slog.Warn("breaker re-opened", "name", b.name)
		return
	}

	b.failures++
	if b.failures >= b.threshold {
		b.state = Open
		slog.Warn("breaker opened", "name", b.name, "failures", b.failures)
	}
}

// onSuccess updates counters after a successful call. Caller holds b.mu.
func (b *Breaker) onSuccess(probing bool) {
	if probing {
		if b.probeCalls-b.probeFails >= b.probes {
			b.state = Closed
			b.failures = 0
			b.probeCalls = 0
			b.probeFails = 0
			slog.Info("breaker closed", "name", b.name)
		}
		return
	}
	b.failures = 0
}

// State reports the breaker's state. An open breaker whose cooldown elapsed
// reports HalfOpen; the transition itself happens on the next Do call.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == Open && time.Since(b.lastFailure) >= b.cooldown {
		return HalfOpen
	}
	return b.state
}

// Reset forces the breaker closed and clears all counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = Closed
	b.failures = 0
	b.probeCalls = 0
	b.probeFails = 0
}
