// Package retry wraps a single external call with bounded exponential
// backoff and error-class-aware retry decisions.
package retry

import (
	"context"
	"errors"
	"log"
	"math"
	"math/rand"
	"time"

	"github.com/dp-pcs/ttv-pipeline/internal/backend"
)

// Class tells the coordinator how to treat a failed attempt.
type Class int

const (
	NonRetryable Class = iota
	Retryable
	RetryableExtended
)

// Policy configures backoff for one external call. Immutable per backend.
type Policy struct {
	MaxAttempts     int
	BaseDelay       time.Duration
	MaxDelay        time.Duration
	Multiplier      float64
	QuotaMultiplier float64
	Jitter          float64 // fraction of the delay, 0 disables
}

// DefaultPolicy mirrors the generation defaults: 3 attempts, 1s base,
// doubling, capped at 60s, quota errors waiting 4x longer.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:     3,
		BaseDelay:       time.Second,
		MaxDelay:        60 * time.Second,
		Multiplier:      2,
		QuotaMultiplier: 4,
	}
}

// Classify maps an error to a retry class. Quota and 429 responses use the
// extended delay; client errors and invalid input never retry.
func Classify(err error) Class {
	var typed *backend.Error
	if !errors.As(err, &typed) {
		return Retryable
	}

	switch typed.Kind {
	case backend.KindInvalidInput, backend.KindConfiguration:
		return NonRetryable
	case backend.KindQuotaExceeded:
		return RetryableExtended
	case backend.KindAPIError:
		if typed.StatusCode == 429 {
			return RetryableExtended
		}
		if typed.StatusCode >= 400 && typed.StatusCode < 500 {
			return NonRetryable
		}
		return Retryable
	default:
		// generation_timeout and storage_failure are transient.
		return Retryable
	}
}

// Coordinator retries one external call. It is stateless across calls: each
// Do invocation starts a fresh attempt counter.
type Coordinator struct {
	policy Policy
	sleep  func(ctx context.Context, d time.Duration) error
	randf  func() float64
}

// New builds a coordinator with real timers.
func New(policy Policy) *Coordinator {
	return &Coordinator{
		policy: policy,
		sleep:  sleepContext,
		randf:  rand.Float64,
	}
}

// NewForTests builds a coordinator with injectable sleep and randomness.
func NewForTests(policy Policy, sleep func(ctx context.Context, d time.Duration) error, randf func() float64) *Coordinator {
	return &Coordinator{policy: policy, sleep: sleep, randf: randf}
}

// Do runs op until success, a non-retryable failure, or attempt exhaustion.
// It returns the number of attempts consumed and the final error.
func (c *Coordinator) Do(ctx context.Context, op func(ctx context.Context) error) (int, error) {
	maxAttempts := c.policy.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		lastErr = op(ctx)
		if lastErr == nil {
			return attempt, nil
		}

		class := Classify(lastErr)
		if class == NonRetryable || attempt == maxAttempts {
			return attempt, lastErr
		}

		delay := c.Delay(attempt, class)
		log.Printf("retry: attempt %d/%d failed: %v (next attempt in %s)", attempt, maxAttempts, lastErr, delay)
		if err := c.sleep(ctx, delay); err != nil {
			return attempt, lastErr
		}
	}
	return maxAttempts, lastErr
}

// Delay computes the backoff before the next attempt after a failure on
// the given attempt number.
func (c *Coordinator) Delay(attempt int, class Class) time.Duration {
	base := c.policy.BaseDelay
	if base <= 0 {
		base = time.Second
	}
	multiplier := c.policy.Multiplier
	if multiplier <= 0 {
		multiplier = 2
	}

	delay := float64(base) * math.Pow(multiplier, float64(attempt-1))
	if class == RetryableExtended && c.policy.QuotaMultiplier > 0 {
		delay *= c.policy.QuotaMultiplier
	}
	if c.policy.Jitter > 0 && c.randf != nil {
		delay *= 1 + c.policy.Jitter*(2*c.randf()-1)
	}
	if max := float64(c.policy.MaxDelay); max > 0 && delay > max {
		delay = max
	}
	return time.Duration(delay)
}

// sleepContext waits for the duration or until the context is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
