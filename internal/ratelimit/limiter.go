// SPDX-License-Identifier: MIT

// Package ratelimit enforces a process-global ceiling on outbound requests
// using a sliding window over the timestamps of the last admitted calls.
// The limiter is shared across all tenants; FIFO is not guaranteed, but
// starvation is bounded by the window length.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/ticketd/ticketd/internal/metrics"
)

// Defaults match the upstream contract: 60 requests per rolling minute.
const (
	DefaultLimit  = 60
	DefaultWindow = time.Minute
)

// Limiter is a thread-safe sliding-window rate limiter.
type Limiter struct {
	mu        sync.Mutex
	limit     int
	window    time.Duration
	admitted  []time.Time // timestamps of the last up-to-limit admissions
	now       func() time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock injects a time source for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// New creates a limiter admitting at most limit calls per window.
func New(limit int, window time.Duration, opts ...Option) *Limiter {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if window <= 0 {
		window = DefaultWindow
	}
	l := &Limiter{
		limit:  limit,
		window: window,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// prune drops admissions older than the window. Caller must hold mu.
func (l *Limiter) prune(now time.Time) {
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(l.admitted) && !l.admitted[i].After(cutoff) {
		i++
	}
	if i > 0 {
		l.admitted = append(l.admitted[:0], l.admitted[i:]...)
	}
}

// tryAdmit admits the call if a slot is free, otherwise returns how long to
// wait for the oldest admission to leave the window.
func (l *Limiter) tryAdmit() (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.prune(now)

	if len(l.admitted) < l.limit {
		l.admitted = append(l.admitted, now)
		return true, 0
	}
	return false, l.admitted[0].Add(l.window).Sub(now)
}

// Acquire blocks until a window slot is free or ctx is done. A cancelled
// acquire does not consume a slot.
func (l *Limiter) Acquire(ctx context.Context) error {
	waited := time.Duration(0)
	for {
		ok, wait := l.tryAdmit()
		if ok {
			if waited > 0 {
				metrics.RecordRateLimiterWait(waited.Seconds())
			}
			return nil
		}
		if wait <= 0 {
			// Oldest slot already left the window; recheck immediately.
			continue
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			waited += wait
		}
	}
}

// Status reports current window usage.
type Status struct {
	Limit           int `json:"limit"`
	WindowSeconds   int `json:"window_seconds"`
	CurrentRequests int `json:"current_requests"`
	Remaining       int `json:"remaining"`
}

// Status returns a snapshot of the window.
func (l *Limiter) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.prune(l.now())
	current := len(l.admitted)
	remaining := l.limit - current
	if remaining < 0 {
		remaining = 0
	}
	return Status{
		Limit:           l.limit,
		WindowSeconds:   int(l.window / time.Second),
		CurrentRequests: current,
		Remaining:       remaining,
	}
}
