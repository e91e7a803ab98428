// SPDX-License-Identifier: MIT

package resilience

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestBreaker(t *testing.T) (*CircuitBreaker, *fakeClock) {
	t.Helper()
	clk := &fakeClock{now: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)}
	return New("test", WithClock(clk)), clk
}

func fill(cb *CircuitBreaker, failures, successes int) {
	for i := 0; i < failures; i++ {
		cb.RecordFailure()
	}
	for i := 0; i < successes; i++ {
		cb.RecordSuccess()
	}
}

func TestClosedPassesThrough(t *testing.T) {
	cb, _ := newTestBreaker(t)
	assert.NoError(t, cb.Allow())
	assert.Equal(t, StateClosed, cb.State())
}

func TestOpensOnFullWindowWithThresholdFailures(t *testing.T) {
	cb, _ := newTestBreaker(t)

	// 5 failures in a full window of 10 outcomes trips the breaker.
	fill(cb, 4, 5)
	assert.Equal(t, StateClosed, cb.State())

	cb.RecordFailure()
	assert.Equal(t, StateOpen, cb.State())
	assert.ErrorIs(t, cb.Allow(), ErrCircuitOpen)
}

func TestDoesNotOpenOnPartialWindow(t *testing.T) {
	cb, _ := newTestBreaker(t)

	// 5 failures but only 5 outcomes recorded: window not full yet.
	fill(cb, 5, 0)
	assert.Equal(t, StateClosed, cb.State())
}

func TestDecisionDependsOnlyOnLastTenOutcomes(t *testing.T) {
	cb, _ := newTestBreaker(t)

	// 4 failures then 6 successes: full window, below threshold.
	fill(cb, 4, 6)
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, 4, cb.Status().FailureCount)

	// One more failure slides the oldest failure out: still 4 in window.
	cb.RecordFailure()
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, 4, cb.Status().FailureCount)
}

func TestOpenRejectsUntilTimeoutThenAdmitsOneProbe(t *testing.T) {
	cb, clk := newTestBreaker(t)
	fill(cb, 5, 5)
	require.Equal(t, StateOpen, cb.State())

	clk.advance(29 * time.Second)
	assert.ErrorIs(t, cb.Allow(), ErrCircuitOpen)

	clk.advance(2 * time.Second)
	require.NoError(t, cb.Allow(), "first call after cool-down is the trial")
	assert.Equal(t, StateHalfOpen, cb.State())

	// Only one trial is admitted while it is in flight.
	assert.ErrorIs(t, cb.Allow(), ErrCircuitOpen)
}

func TestHalfOpenSuccessClosesAndResetsWindow(t *testing.T) {
	cb, clk := newTestBreaker(t)
	fill(cb, 5, 5)
	clk.advance(31 * time.Second)
	require.NoError(t, cb.Allow())

	cb.RecordSuccess()
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, 0, cb.Status().FailureCount)

	// Window was reset: a single failure must not retrip.
	cb.RecordFailure()
	assert.Equal(t, StateClosed, cb.State())
}

func TestHalfOpenFailureReopensWithFreshTimer(t *testing.T) {
	cb, clk := newTestBreaker(t)
	fill(cb, 5, 5)
	clk.advance(31 * time.Second)
	require.NoError(t, cb.Allow())

	cb.RecordFailure()
	require.Equal(t, StateOpen, cb.State())

	// The 30s timer restarted at the probe failure.
	clk.advance(29 * time.Second)
	assert.ErrorIs(t, cb.Allow(), ErrCircuitOpen)
	clk.advance(2 * time.Second)
	assert.NoError(t, cb.Allow())
}

func TestExecuteReportsOutcomes(t *testing.T) {
	cb, _ := newTestBreaker(t)

	boom := errors.New("boom")
	for i := 0; i < 5; i++ {
		require.ErrorIs(t, cb.Execute(func() error { return boom }), boom)
	}
	for i := 0; i < 4; i++ {
		require.NoError(t, cb.Execute(func() error { return nil }))
	}
	assert.Equal(t, StateClosed, cb.State())

	require.ErrorIs(t, cb.Execute(func() error { return boom }), boom)
	assert.Equal(t, StateOpen, cb.State())
	assert.ErrorIs(t, cb.Execute(func() error { return nil }), ErrCircuitOpen)
}

func TestManualReset(t *testing.T) {
	cb, _ := newTestBreaker(t)
	fill(cb, 5, 5)
	require.Equal(t, StateOpen, cb.State())

	cb.Reset()
	assert.Equal(t, StateClosed, cb.State())
	assert.NoError(t, cb.Allow())
	assert.Equal(t, 0, cb.Status().FailureCount)
}

func TestStatusExposesTimeSinceOpen(t *testing.T) {
	cb, clk := newTestBreaker(t)
	fill(cb, 6, 4)
	require.Equal(t, StateOpen, cb.State())

	clk.advance(12 * time.Second)
	st := cb.Status()
	assert.Equal(t, StateOpen, st.State)
	assert.InDelta(t, 12, st.TimeSinceOpenSec, 0.001)
	assert.Equal(t, 10, st.WindowSize)
}

func TestRegistryReturnsSameInstance(t *testing.T) {
	a := Get("registry-test")
	b := Get("registry-test")
	assert.Same(t, a, b)
	assert.Nil(t, Lookup("never-registered"))
}
