// Package progress provides a monotonic progress sink for a single
// long-running operation and a fixed-interval, time-bounded poller for
// backends that expose a done flag.
package progress

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/dp-pcs/ttv-pipeline/internal/backend"
)

// Tracker is a single-writer, multi-reader progress sink bounded to
// [0,100]. Percentage updates are monotonically non-decreasing: a
// regression is clamped to the current value and logged, not rejected.
type Tracker struct {
	mu      sync.RWMutex
	percent int
	message string
	started time.Time
	now     func() time.Time
}

// NewTracker creates a tracker starting at zero.
func NewTracker() *Tracker {
	return newTracker(time.Now)
}

// NewTrackerWithClock creates a tracker with an injectable clock.
func NewTrackerWithClock(now func() time.Time) *Tracker {
	return newTracker(now)
}

func newTracker(now func() time.Time) *Tracker {
	return &Tracker{started: now().UTC(), now: now}
}

// Update records a new percentage and status message.
func (t *Tracker) Update(percent int, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if percent > 100 {
		percent = 100
	}
	if percent < t.percent {
		log.Printf("progress: ignoring regression %d%% -> %d%% (%s)", t.percent, percent, message)
		percent = t.percent
	}
	t.percent = percent
	t.message = message
}

// Snapshot returns the current percentage and message.
func (t *Tracker) Snapshot() (int, string) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.percent, t.message
}

// Elapsed reports wall-clock time since the tracker was created.
func (t *Tracker) Elapsed() time.Duration {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.now().UTC().Sub(t.started)
}

// Poller drives a fixed-interval check until it reports done or the overall
// wall-clock budget elapses, at which point the operation is treated as a
// generation timeout.
type Poller struct {
	interval time.Duration
	budget   time.Duration
	sleep    func(ctx context.Context, d time.Duration) error
	now      func() time.Time
}

// NewPoller builds a poller with real timers.
func NewPoller(interval, budget time.Duration) *Poller {
	return &Poller{interval: interval, budget: budget, sleep: sleepContext, now: time.Now}
}

// NewPollerForTests builds a poller with injectable sleep and clock so tests
// can simulate elapsed time without real delay.
func NewPollerForTests(interval, budget time.Duration, sleep func(ctx context.Context, d time.Duration) error, now func() time.Time) *Poller {
	return &Poller{interval: interval, budget: budget, sleep: sleep, now: now}
}

// Wait polls check until done. It returns the check's error verbatim, a
// typed timeout error when the budget elapses, or the context error when
// the caller cancels.
func (p *Poller) Wait(ctx context.Context, check func(ctx context.Context) (bool, error)) error {
	deadline := p.now().Add(p.budget)
	for {
		done, err := check(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		if p.budget > 0 && !p.now().Before(deadline) {
			return backend.Timeout("operation exceeded %s budget", p.budget)
		}
		if err := p.sleep(ctx, p.interval); err != nil {
			return err
		}
	}
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
