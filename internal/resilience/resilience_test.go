package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errBoom = errors.New("boom")

func TestBreakerTripsAfterConsecutiveFailures(t *testing.T) {
	t.Parallel()

	b := NewBreaker(BreakerConfig{Name: "test", Trip: 3, CoolDown: time.Hour})
	fail := func() error { return errBoom }

	for i := 0; i < 3; i++ {
		if err := b.Do(fail); !errors.Is(err, errBoom) {
			t.Fatalf("attempt %d: err = %v", i, err)
		}
	}
	if b.State() != BreakerOpen {
		t.Fatalf("state = %v, want open", b.State())
	}
	if err := b.Do(fail); !errors.Is(err, ErrBreakerOpen) {
		t.Errorf("open breaker returned %v, want ErrBreakerOpen", err)
	}
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	t.Parallel()

	b := NewBreaker(BreakerConfig{Trip: 3, CoolDown: time.Hour})
	b.Do(func() error { return errBoom })
	b.Do(func() error { return errBoom })
	b.Do(func() error { return nil })
	b.Do(func() error { return errBoom })
	b.Do(func() error { return errBoom })
	if b.State() != BreakerClosed {
		t.Errorf("state = %v, want closed (success should reset the count)", b.State())
	}
}

func TestBreakerProbesAfterCoolDown(t *testing.T) {
	t.Parallel()

	b := NewBreaker(BreakerConfig{Trip: 1, CoolDown: 10 * time.Millisecond})
	b.Do(func() error { return errBoom })
	if b.State() != BreakerOpen {
		t.Fatalf("state = %v, want open", b.State())
	}

	time.Sleep(20 * time.Millisecond)
	if err := b.Do(func() error { return nil }); err != nil {
		t.Fatalf("probe call failed: %v", err)
	}
	if b.State() != BreakerClosed {
		t.Errorf("state after successful probe = %v, want closed", b.State())
	}
}

func TestBreakerReset(t *testing.T) {
	t.Parallel()

	b := NewBreaker(BreakerConfig{Trip: 1, CoolDown: time.Hour})
	b.Do(func() error { return errBoom })
	b.Reset()
	if b.State() != BreakerClosed {
		t.Errorf("state after Reset = %v, want closed", b.State())
	}
}

func TestChainFallsBackInOrder(t *testing.T) {
	t.Parallel()

	chain := NewChain[string](BreakerConfig{CoolDown: time.Hour}).
		Add("primary", "a").
		Add("secondary", "b")

	var tried []string
	err := chain.Try(func(name string, v string) error {
		tried = append(tried, name)
		if name == "primary" {
			return errBoom
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Try: %v", err)
	}
	if len(tried) != 2 || tried[0] != "primary" || tried[1] != "secondary" {
		t.Errorf("tried = %v, want [primary secondary]", tried)
	}
}

func TestChainExhausted(t *testing.T) {
	t.Parallel()

	chain := NewChain[int](BreakerConfig{CoolDown: time.Hour}).Add("only", 1)
	err := chain.Try(func(string, int) error { return errBoom })
	if !errors.Is(err, ErrChainExhausted) {
		t.Errorf("err = %v, want ErrChainExhausted", err)
	}
}

func TestChainSkipsOpenBreakers(t *testing.T) {
	t.Parallel()

	chain := NewChain[string](BreakerConfig{Trip: 1, CoolDown: time.Hour}).
		Add("flaky", "a").
		Add("steady", "b")

	// Trip the first link.
	chain.Try(func(name string, v string) error {
		if name == "flaky" {
			return errBoom
		}
		return nil
	})

	var tried []string
	err := chain.Try(func(name string, v string) error {
		tried = append(tried, name)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(tried) != 1 || tried[0] != "steady" {
		t.Errorf("tried = %v, want [steady] (flaky breaker is open)", tried)
	}
}

func TestTryResult(t *testing.T) {
	t.Parallel()

	chain := NewChain[int](BreakerConfig{CoolDown: time.Hour}).
		Add("bad", 0).
		Add("good", 42)

	got, err := TryResult(chain, func(name string, v int) (int, error) {
		if v == 0 {
			return 0, errBoom
		}
		return v * 2, nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if got != 84 {
		t.Errorf("got %d, want 84", got)
	}
}

func TestRetry(t *testing.T) {
	t.Parallel()

	calls := 0
	err := Retry(context.Background(), RetryPolicy{Attempts: 3, Initial: time.Millisecond}, func(attempt int) error {
		calls++
		if attempt < 2 {
			return errBoom
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetryExhaustsAndReturnsLastError(t *testing.T) {
	t.Parallel()

	calls := 0
	err := Retry(context.Background(), RetryPolicy{Attempts: 2, Initial: time.Millisecond}, func(int) error {
		calls++
		return errBoom
	})
	if !errors.Is(err, errBoom) {
		t.Errorf("err = %v, want errBoom", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestRetryStopsOnCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	err := Retry(ctx, RetryPolicy{Attempts: 5, Initial: time.Millisecond}, func(int) error {
		calls++
		return errBoom
	})
	if err == nil {
		t.Fatal("expected cancellation error")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (no retries after cancel)", calls)
	}
}
