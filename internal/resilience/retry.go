package resilience

import (
	"context"
	"fmt"
	"time"
)

// RetryPolicy describes a bounded exponential backoff.
type RetryPolicy struct {
	// Attempts is the total number of tries, including the first. Values
	// below 1 behave as 1.
	Attempts int

	// Initial is the delay before the second attempt. Default 500ms.
	Initial time.Duration

	// Multiplier scales the delay after each failure. Default 2.
	Multiplier float64

	// Max caps the delay between attempts. Zero means uncapped.
	Max time.Duration
}

// Retry runs fn up to p.Attempts times, sleeping with exponential backoff
// between failures. It stops early when ctx is cancelled, returning the
// context error wrapped with the last attempt's error if any.
func Retry(ctx context.Context, p RetryPolicy, fn func(attempt int) error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	delay := p.Initial
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}
	mult := p.Multiplier
	if mult <= 1 {
		mult = 2
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return fmt.Errorf("resilience: retry cancelled: %w (last error: %v)", ctx.Err(), lastErr)
			case <-timer.C:
			}
			delay = time.Duration(float64(delay) * mult)
			if p.Max > 0 && delay > p.Max {
				delay = p.Max
			}
		}
		if err := fn(attempt); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return lastErr
}
