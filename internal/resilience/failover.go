package resilience

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllBackendsFailed is returned when every backend in a [Chain] either
// failed or had an open breaker.
var ErrAllBackendsFailed = errors.New("resilience: all backends failed")

// backend pairs a provider value with its dedicated breaker.
type backend[T any] struct {
	name    string
	value   T
	breaker *Breaker
}

// Chain tries a primary and then ordered fallbacks of the same provider type.
// Each backend sits behind its own [Breaker]; open-breaker backends are
// skipped without a call.
//
// Chain is safe for concurrent use once assembled. Add is not safe to call
// concurrently with Try.
type Chain[T any] struct {
	backends []backend[T]
	breaker  BreakerConfig
}

// NewChain creates a Chain with primary as the first backend. breaker is the
// per-backend breaker template; its Name field is replaced per backend.
func NewChain[T any](primaryName string, primary T, breaker BreakerConfig) *Chain[T] {
	c := &Chain[T]{breaker: breaker}
	c.Add(primaryName, primary)
	return c
}

// Add appends a fallback backend. Backends are tried in insertion order.
func (c *Chain[T]) Add(name string, value T) {
	cfg := c.breaker
	cfg.Name = name
	c.backends = append(c.backends, backend[T]{
		name:    name,
		value:   value,
		breaker: NewBreaker(cfg),
	})
}

// Names returns the backend names in try order.
func (c *Chain[T]) Names() []string {
	names := make([]string, len(c.backends))
	for i, b := range c.backends {
		names[i] = b.name
	}
	return names
}

// primary returns the first backend's value.
func (c *Chain[T]) primary() T {
	return c.backends[0].value
}

// Try runs fn against each backend in order until one succeeds. Generic
// results need a package-level function because Go methods cannot introduce
// type parameters.
func Try[T, R any](c *Chain[T], fn func(T) (R, error)) (R, error) {
	var (
		lastErr error
		zero    R
	)
	for i := range c.backends {
		b := &c.backends[i]
		var result R
		err := b.breaker.Do(func() error {
			var callErr error
			result, callErr = fn(b.value)
			return callErr
		})
		if err == nil {
			return result, nil
		}
		lastErr = err
		if errors.Is(err, ErrBreakerOpen) {
			slog.Debug("skipping backend, breaker open", "backend", b.name)
		} else {
			slog.Warn("backend failed, trying next", "backend", b.name, "err", err)
		}
	}
	return zero, fmt.Errorf("%w: %v", ErrAllBackendsFailed, lastErr)
}
