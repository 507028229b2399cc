package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dp-pcs/ttv-pipeline/internal/backend"
)

// noSleep records requested delays without waiting.
func noSleep(delays *[]time.Duration) func(ctx context.Context, d time.Duration) error {
	return func(ctx context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return nil
	}
}

// TestDoSucceedsAfterTransientFailures checks k failures then success.
func TestDoSucceedsAfterTransientFailures(t *testing.T) {
	var delays []time.Duration
	c := NewForTests(DefaultPolicy(), noSleep(&delays), nil)

	calls := 0
	attempts, err := c.Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls <= 2 {
			return backend.APIError(500, "transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if attempts != 3 {
		t.Fatalf("attempts = %d, want 3", attempts)
	}
	if len(delays) != 2 {
		t.Fatalf("sleeps = %d, want 2", len(delays))
	}
	if delays[0] != time.Second || delays[1] != 2*time.Second {
		t.Fatalf("delays = %v, want [1s 2s]", delays)
	}
}

// TestDoExhaustsBudgetAndPropagates checks attempt exhaustion behavior.
func TestDoExhaustsBudgetAndPropagates(t *testing.T) {
	var delays []time.Duration
	c := NewForTests(DefaultPolicy(), noSleep(&delays), nil)

	final := backend.APIError(503, "still down")
	attempts, err := c.Do(context.Background(), func(ctx context.Context) error {
		return final
	})
	if attempts != 3 {
		t.Fatalf("attempts = %d, want 3", attempts)
	}
	if !errors.Is(err, final) {
		t.Fatalf("error = %v, want final error propagated", err)
	}
	if len(delays) != 2 {
		t.Fatalf("sleeps = %d, want 2 (no sleep after the last attempt)", len(delays))
	}
}

// TestDoStopsImmediatelyOnNonRetryable checks invalid input short-circuits.
func TestDoStopsImmediatelyOnNonRetryable(t *testing.T) {
	var delays []time.Duration
	c := NewForTests(DefaultPolicy(), noSleep(&delays), nil)

	calls := 0
	attempts, err := c.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return backend.InvalidInput("empty prompt")
	})
	if attempts != 1 || calls != 1 {
		t.Fatalf("attempts = %d calls = %d, want 1/1", attempts, calls)
	}
	if backend.KindOf(err) != backend.KindInvalidInput {
		t.Fatalf("kind = %s, want invalid_input", backend.KindOf(err))
	}
	if len(delays) != 0 {
		t.Fatalf("expected no sleeps, got %v", delays)
	}
}

// TestQuotaErrorsUseExtendedDelay checks the extended multiplier path.
func TestQuotaErrorsUseExtendedDelay(t *testing.T) {
	var delays []time.Duration
	c := NewForTests(DefaultPolicy(), noSleep(&delays), nil)

	_, err := c.Do(context.Background(), func(ctx context.Context) error {
		return backend.QuotaExceeded("rate limited")
	})
	if backend.KindOf(err) != backend.KindQuotaExceeded {
		t.Fatalf("kind = %s, want quota_exceeded", backend.KindOf(err))
	}
	// base 1s * quota multiplier 4, then doubled.
	if delays[0] != 4*time.Second || delays[1] != 8*time.Second {
		t.Fatalf("delays = %v, want [4s 8s]", delays)
	}
}

// TestClassify verifies the error-kind to retry-class mapping.
func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Class
	}{
		{"invalid input", backend.InvalidInput("x"), NonRetryable},
		{"configuration", backend.ConfigError("x"), NonRetryable},
		{"quota", backend.QuotaExceeded("x"), RetryableExtended},
		{"api 429", backend.APIError(429, "x"), RetryableExtended},
		{"api 400", backend.APIError(400, "x"), NonRetryable},
		{"api 500", backend.APIError(500, "x"), Retryable},
		{"api no status", backend.APIError(0, "x"), Retryable},
		{"timeout", backend.Timeout("x"), Retryable},
		{"storage", backend.StorageFailure(nil, "x"), Retryable},
		{"untyped", errors.New("x"), Retryable},
	}
	for _, tc := range cases {
		if got := Classify(tc.err); got != tc.want {
			t.Fatalf("%s: class = %d, want %d", tc.name, got, tc.want)
		}
	}
}

// TestDelayRespectsCapAndJitter checks cap and jitter envelope.
func TestDelayRespectsCapAndJitter(t *testing.T) {
	policy := DefaultPolicy()
	policy.Jitter = 0.5
	c := NewForTests(policy, nil, func() float64 { return 1 })

	// attempt 10 would be 512s unjittered; cap is 60s.
	if got := c.Delay(10, Retryable); got != 60*time.Second {
		t.Fatalf("capped delay = %s, want 60s", got)
	}

	// rand()=1 pushes delay to 1.5x base.
	if got := c.Delay(1, Retryable); got != 1500*time.Millisecond {
		t.Fatalf("jittered delay = %s, want 1.5s", got)
	}
}

// TestDoHonorsContextCancellation checks sleep interruption.
func TestDoHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	c := NewForTests(DefaultPolicy(), func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}, nil)

	attempts, err := c.Do(ctx, func(ctx context.Context) error {
		return backend.APIError(500, "transient")
	})
	if attempts != 1 {
		t.Fatalf("attempts = %d, want 1", attempts)
	}
	if err == nil {
		t.Fatal("expected the last error to propagate after canceled sleep")
	}
}
