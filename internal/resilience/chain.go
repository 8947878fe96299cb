package resilience

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrChainExhausted is returned when every link of a [Chain] fails or is
// skipped because its breaker is open.
var ErrChainExhausted = errors.New("resilience: all providers failed")

// link pairs one provider value with its dedicated breaker.
type link[T any] struct {
	name    string
	value   T
	breaker *Breaker
}

// Chain is an ordered list of interchangeable providers. Attempts run in
// registration order; the first success wins. Each link carries its own
// breaker so a repeatedly failing provider is skipped without probing it on
// every call.
//
// Chain is safe for concurrent use after all Add calls have completed.
type Chain[T any] struct {
	links []link[T]
	cfg   BreakerConfig
}

// NewChain creates a chain whose per-link breakers share cfg (the Name field
// is replaced by each link's own name).
func NewChain[T any](cfg BreakerConfig) *Chain[T] {
	return &Chain[T]{cfg: cfg}
}

// Add appends a provider to the chain and returns the chain for chaining
// construction calls.
func (c *Chain[T]) Add(name string, value T) *Chain[T] {
	cfg := c.cfg
	cfg.Name = name
	c.links = append(c.links, link[T]{
		name:    name,
		value:   value,
		breaker: NewBreaker(cfg),
	})
	return c
}

// Len returns the number of registered providers.
func (c *Chain[T]) Len() int { return len(c.links) }

// Try runs fn against each provider in order until one succeeds. Links with
// open breakers are skipped. On total failure the last error is wrapped in
// [ErrChainExhausted].
func (c *Chain[T]) Try(fn func(name string, v T) error) error {
	var lastErr error
	for i := range c.links {
		l := &c.links[i]
		err := l.breaker.Do(func() error { return fn(l.name, l.value) })
		if err == nil {
			return nil
		}
		lastErr = err
		if errors.Is(err, ErrBreakerOpen) {
			slog.Debug("skipping provider, breaker open", "provider", l.name)
		} else {
			slog.Warn("provider failed, trying next", "provider", l.name, "error", err)
		}
	}
	return fmt.Errorf("%w: %v", ErrChainExhausted, lastErr)
}

// TryResult runs fn against each provider in the chain until one succeeds,
// returning the produced value. A package-level function because Go does not
// allow method-level type parameters.
func TryResult[T, R any](c *Chain[T], fn func(name string, v T) (R, error)) (R, error) {
	var (
		zero    R
		lastErr error
	)
	for i := range c.links {
		l := &c.links[i]
		var out R
		err := l.breaker.Do(func() error {
			var inner error
			out, inner = fn(l.name, l.value)
			return inner
		})
		if err == nil {
			return out, nil
		}
		lastErr = err
		if errors.Is(err, ErrBreakerOpen) {
			slog.Debug("skipping provider, breaker open", "provider", l.name)
		} else {
			slog.Warn("provider failed, trying next", "provider", l.name, "error", err)
		}
	}
	return zero, fmt.Errorf("%w: %v", ErrChainExhausted, lastErr)
}
