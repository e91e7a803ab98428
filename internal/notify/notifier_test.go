// SPDX-License-Identifier: MIT

package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type nopLimiter struct{ acquires atomic.Int32 }

func (l *nopLimiter) Acquire(ctx context.Context) error {
	l.acquires.Add(1)
	return ctx.Err()
}

// recordingBreaker counts outcome reports and can simulate an open circuit.
type recordingBreaker struct {
	mu        sync.Mutex
	open      bool
	successes int
	failures  int
}

func (b *recordingBreaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.open {
		return context.DeadlineExceeded // any non-nil error means rejected
	}
	return nil
}

func (b *recordingBreaker) RecordSuccess() {
	b.mu.Lock()
	b.successes++
	b.mu.Unlock()
}

func (b *recordingBreaker) RecordFailure() {
	b.mu.Lock()
	b.failures++
	b.mu.Unlock()
}

func (b *recordingBreaker) counts() (int, int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.successes, b.failures
}

func newTestNotifier(t *testing.T, handler http.HandlerFunc, breaker *recordingBreaker) (*Notifier, *nopLimiter) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	limiter := &nopLimiter{}
	n := New(Config{URL: srv.URL, Workers: 1, QueueSize: 16}, limiter, breaker)
	n.sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }
	n.randN = func(int64) int64 { return 0 }
	t.Cleanup(n.Stop)
	return n, limiter
}

func TestDeliverPostsPayload(t *testing.T) {
	var got atomic.Value
	breaker := &recordingBreaker{}
	n, limiter := newTestNotifier(t, func(w http.ResponseWriter, r *http.Request) {
		var task Task
		require.NoError(t, json.NewDecoder(r.Body).Decode(&task))
		got.Store(task)
	}, breaker)
	n.Start()

	ok := n.Enqueue(Task{TicketID: "t-1", TenantID: "acme", Urgency: "high", Reason: "High urgency ticket detected"})
	require.True(t, ok)
	n.Stop()

	task, _ := got.Load().(Task)
	assert.Equal(t, "t-1", task.TicketID)
	assert.Equal(t, "acme", task.TenantID)
	assert.Equal(t, "high", task.Urgency)

	successes, failures := breaker.counts()
	assert.Equal(t, 1, successes)
	assert.Zero(t, failures)
	assert.Equal(t, int32(1), limiter.acquires.Load())
}

func TestOpenCircuitSkipsWithoutCalling(t *testing.T) {
	var calls atomic.Int32
	breaker := &recordingBreaker{open: true}
	n, limiter := newTestNotifier(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}, breaker)
	n.Start()

	n.Enqueue(Task{TicketID: "t-1", TenantID: "acme"})
	n.Stop()

	assert.Zero(t, calls.Load())
	assert.Zero(t, limiter.acquires.Load())
}

func TestTransientFailuresRetryThenGiveUp(t *testing.T) {
	var calls atomic.Int32
	breaker := &recordingBreaker{}
	n, _ := newTestNotifier(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}, breaker)
	n.Start()

	n.Enqueue(Task{TicketID: "t-1", TenantID: "acme"})
	n.Stop()

	assert.Equal(t, int32(3), calls.Load())
	successes, failures := breaker.counts()
	assert.Zero(t, successes)
	assert.Equal(t, 3, failures)
}

func TestRateLimitedResponseIsNotABreakerFailure(t *testing.T) {
	var calls atomic.Int32
	breaker := &recordingBreaker{}
	n, _ := newTestNotifier(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
	}, breaker)
	n.Start()

	n.Enqueue(Task{TicketID: "t-1", TenantID: "acme"})
	n.Stop()

	assert.Equal(t, int32(2), calls.Load())
	successes, failures := breaker.counts()
	assert.Equal(t, 2, successes) // the 429 and the final 200
	assert.Zero(t, failures)
}

func TestRejectedResponseIsFinal(t *testing.T) {
	var calls atomic.Int32
	breaker := &recordingBreaker{}
	n, _ := newTestNotifier(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}, breaker)
	n.Start()

	n.Enqueue(Task{TicketID: "t-1", TenantID: "acme"})
	n.Stop()

	// A non-429 4xx is never retried and never marks the breaker.
	assert.Equal(t, int32(1), calls.Load())
	successes, failures := breaker.counts()
	assert.Equal(t, 1, successes)
	assert.Zero(t, failures)
}

func TestEnqueueDropsWhenQueueFull(t *testing.T) {
	breaker := &recordingBreaker{}
	limiter := &nopLimiter{}
	n := New(Config{URL: "http://127.0.0.1:0", Workers: 1, QueueSize: 1}, limiter, breaker)
	// Pool not started: the queue cannot drain.

	assert.True(t, n.Enqueue(Task{TicketID: "t-1"}))
	assert.False(t, n.Enqueue(Task{TicketID: "t-2"}))

	n.Stop()
}

func TestStopDrainsQueue(t *testing.T) {
	var calls atomic.Int32
	breaker := &recordingBreaker{}
	n, _ := newTestNotifier(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}, breaker)

	for i := 0; i < 5; i++ {
		require.True(t, n.Enqueue(Task{TicketID: "t"}))
	}
	n.Start()
	n.Stop()

	assert.Equal(t, int32(5), calls.Load())
}

func TestBackoffIsBoundedWithJitter(t *testing.T) {
	n := New(Config{URL: "http://example.invalid"}, &nopLimiter{}, &recordingBreaker{})
	defer n.Stop()
	n.randN = func(max int64) int64 { return max - 1 }

	// attempt 0: base 1s, jitter just under 1s
	d := n.backoff(0)
	assert.GreaterOrEqual(t, d, time.Second)
	assert.Less(t, d, 2*time.Second)

	// attempt 1: base 2s, jitter just under 2s
	d = n.backoff(1)
	assert.GreaterOrEqual(t, d, 2*time.Second)
	assert.Less(t, d, 4*time.Second)
}
