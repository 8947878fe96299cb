// Package resilience provides the failure-handling primitives shared by the
// pipeline stages: a circuit breaker, an ordered provider fallback chain,
// and a retry helper with exponential backoff.
//
// Every network-facing stage (ingest, transcription, translation, synthesis)
// composes its providers through a [Chain] so that a degraded upstream is
// bypassed instead of stalling a whole session.
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
// the cool-down has not yet elapsed.
var ErrBreakerOpen = errors.New("resilience: breaker is open")

// BreakerState is the operating mode of a [Breaker].
type BreakerState int

const (
	// BreakerClosed forwards all calls.
	BreakerClosed BreakerState = iota

	// BreakerOpen rejects calls until the cool-down elapses.
	BreakerOpen

	// BreakerProbing allows a single trial call after the cool-down; success
	// closes the breaker, failure re-opens it.
	BreakerProbing
)

// String returns the human-readable name of the state.
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

// BreakerConfig holds tuning knobs for a [Breaker]. Zero-value fields are
// replaced with defaults by [NewBreaker].
type BreakerConfig struct {
	// Name labels the breaker in log messages.
	Name string

	// Trip is the number of consecutive failures that opens the breaker.
	// Default: 3.
	Trip int

	// CoolDown is how long the breaker stays open before allowing a probe.
	// Default: 20s.
	CoolDown time.Duration
}

// Breaker is a three-state circuit breaker (closed → open → probing). Unlike
// a counted half-open window, it admits exactly one probe call after the
// cool-down; the batch pipeline has no latency pressure that would justify
// more.
type Breaker struct {
	name     string
	trip     int
	coolDown time.Duration

	mu       sync.Mutex
	state    BreakerState
	failures int
	openedAt time.Time
}

// NewBreaker creates a [Breaker] from cfg, filling defaults for zero fields.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.Trip <= 0 {
		cfg.Trip = 3
	}
	if cfg.CoolDown <= 0 {
		cfg.CoolDown = 20 * time.Second
	}
	return &Breaker{
		name:     cfg.Name,
		trip:     cfg.Trip,
		coolDown: cfg.CoolDown,
	}
}

// Do runs fn if the breaker allows it, returning [ErrBreakerOpen] otherwise.
func (b *Breaker) Do(fn func() error) error {
	b.mu.Lock()
	switch b.state {
	case BreakerOpen:
		if time.Since(b.openedAt) < b.coolDown {
			b.mu.Unlock()
			return ErrBreakerOpen
		}
		b.state = BreakerProbing
		slog.Debug("breaker probing", "name", b.name)
	case BreakerProbing:
		// One probe at a time.
		b.mu.Unlock()
		return ErrBreakerOpen
	}
	probing := b.state == BreakerProbing
	b.mu.Unlock()

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.failures++
		b.openedAt = time.Now()
		if probing || b.failures >= b.trip {
			if b.state != BreakerOpen {
				slog.Warn("breaker opened", "name", b.name, "failures", b.failures)
			}
			b.state = BreakerOpen
		}
		return err
	}
	if probing {
		slog.Info("breaker closed after probe", "name", b.name)
	}
	b.state = BreakerClosed
	b.failures = 0
	return nil
}

// State reports the breaker state, accounting for an elapsed cool-down.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == BreakerOpen && time.Since(b.openedAt) >= b.coolDown {
		return BreakerProbing
	}
	return b.state
}

// Reset forces the breaker back to closed and clears the failure count.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = BreakerClosed
	b.failures = 0
}
