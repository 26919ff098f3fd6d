// Package timer implements the rate-controlled wait used by a Path's
// send goroutine, grounded on timerfd_wait/timerfd_create_rate in
// lib/path.c. Go has no timerfd; the tick-count-since-last-Wait semantics
// are reproduced with a time.Ticker plus an atomic expiration counter, so
// overruns (missed wakeups while the caller was busy) are still detected
// instead of silently collapsing into a single tick.
package timer

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"
)

// Timer fires at a fixed rate and reports, on each Wait, how many periods
// elapsed since the previous call — exactly one under normal operation,
// more than one if the caller fell behind.
type Timer struct {
	ticker *time.Ticker
	period time.Duration

	expirations atomic.Uint64
	done        chan struct{}
}

// New creates a Timer firing `rate` times per second. rate must be > 0; a
// rate of 0 (inline/unrated forwarding) is handled by the caller, not here.
func New(rate float64) (*Timer, error) {
	if rate <= 0 {
		return nil, fmt.Errorf("timer: rate must be > 0, got %v", rate)
	}
	period := time.Duration(float64(time.Second) / rate)
	t := &Timer{
		ticker: time.NewTicker(period),
		period: period,
		done:   make(chan struct{}),
	}
	go t.count()
	return t, nil
}

func (t *Timer) count() {
	for {
		select {
		case <-t.ticker.C:
			t.expirations.Add(1)
		case <-t.done:
			return
		}
	}
}

// Wait blocks until at least one period has elapsed since the last Wait (or
// since New, for the first call), then returns the number of periods that
// elapsed — 1 under normal operation, >1 on an overrun. Returns ctx.Err()
// if ctx is cancelled first.
func (t *Timer) Wait(ctx context.Context) (uint64, error) {
	tick := time.NewTicker(t.period / 4)
	defer tick.Stop()
	for {
		if n := t.expirations.Swap(0); n > 0 {
			return n, nil
		}
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-tick.C:
		}
	}
}

// Stop releases the Timer's underlying ticker and background goroutine.
func (t *Timer) Stop() {
	t.ticker.Stop()
	close(t.done)
}
