package resilience

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllBackendsFailed is returned when every backend in a [FallbackChain]
// failed or had an open circuit breaker.
var ErrAllBackendsFailed = errors.New("resilience: all backends failed")

// chainEntry pairs one backend with its dedicated circuit breaker.
type chainEntry[T any] struct {
	name    string
	backend T
	breaker *CircuitBreaker
}

// FallbackChain holds the primary backend and its stand-ins for one pipeline
// stage. Calls go to the first entry whose breaker admits them; a failure
// moves on to the next. Each backend trips its own breaker, so a flapping
// primary is bypassed without burning the stand-ins' failure budgets.
//
// A chain is safe for concurrent use once assembled; Add must not race with
// Try.
type FallbackChain[T any] struct {
	stage   string
	log     *slog.Logger
	cb      CircuitBreakerConfig
	entries []chainEntry[T]
}

// NewFallbackChain creates a chain for stage with primary as the preferred
// backend. cb seeds every entry's breaker; log may be nil.
func NewFallbackChain[T any](stage, primaryName string, primary T, cb CircuitBreakerConfig, log *slog.Logger) *FallbackChain[T] {
	if log == nil {
		log = slog.Default()
	}
	c := &FallbackChain[T]{stage: stage, log: log, cb: cb}
	c.Add(primaryName, primary)
	return c
}

// Add appends a stand-in backend. Stand-ins are tried in insertion order,
// after the primary.
func (c *FallbackChain[T]) Add(name string, backend T) {
	cb := c.cb
	cb.Name = c.stage + "/" + name
	c.entries = append(c.entries, chainEntry[T]{
		name:    name,
		backend: backend,
		breaker: NewCircuitBreaker(cb),
	})
}

// Len reports the number of backends in the chain.
func (c *FallbackChain[T]) Len() int { return len(c.entries) }

// Try runs fn against each backend in order until one succeeds. Entries with
// an open breaker are skipped. The exhausted-chain error wraps both
// [ErrAllBackendsFailed] and the last backend error, so provider sentinels
// (quota, auth) stay visible to errors.Is. This is a package function because
// methods cannot introduce type parameters.
func Try[T, R any](c *FallbackChain[T], fn func(T) (R, error)) (R, error) {
	var lastErr error
	for i := range c.entries {
		e := &c.entries[i]
		var result R
		err := e.breaker.Execute(func() error {
			var callErr error
			result, callErr = fn(e.backend)
			return callErr
		})
		if err == nil {
			return result, nil
		}
		lastErr = err
		if errors.Is(err, ErrCircuitOpen) {
			c.log.Debug("backend skipped, circuit open", "stage", c.stage, "backend", e.name)
			continue
		}
		c.log.Warn("backend failed, trying next", "stage", c.stage, "backend", e.name, "err", err)
	}
	var zero R
	return zero, fmt.Errorf("%s: %w: %w", c.stage, ErrAllBackendsFailed, lastErr)
}
