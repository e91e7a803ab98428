// SPDX-License-Identifier: MIT

// Package notify delivers best-effort webhooks for high-urgency tickets
// through a bounded worker pool. Callers fire and forget: enqueueing never
// blocks, failures never propagate, delivery is not durable.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/ticketd/ticketd/internal/log"
	"github.com/ticketd/ticketd/internal/metrics"
)

// Defaults for the delivery pool.
const (
	DefaultWorkers   = 4
	DefaultQueueSize = 256
	DefaultTimeout   = 10 * time.Second

	maxAttempts = 3
	backoffCap  = 30 * time.Second
)

// Task is one pending notification.
type Task struct {
	TicketID string `json:"ticket_id"`
	TenantID string `json:"tenant_id"`
	Urgency  string `json:"urgency"`
	Reason   string `json:"reason"`
}

// Limiter gates outbound calls. Acquire blocks until a slot is free or the
// context is done.
type Limiter interface {
	Acquire(ctx context.Context) error
}

// Breaker is the circuit consulted before every delivery attempt.
type Breaker interface {
	Allow() error
	RecordSuccess()
	RecordFailure()
}

// Config defines pool sizing for a Notifier.
type Config struct {
	URL       string
	Workers   int
	QueueSize int
	Timeout   time.Duration
}

// Notifier owns the delivery pool. It lives for the lifetime of the server;
// Stop drains the queue before returning.
type Notifier struct {
	url     string
	client  *http.Client
	limiter Limiter
	breaker Breaker

	tasks   chan Task
	workers int

	ctx    context.Context
	cancel context.CancelFunc

	wg       sync.WaitGroup
	once     sync.Once
	stopOnce sync.Once

	log   zerolog.Logger
	sleep func(ctx context.Context, d time.Duration) error
	randN func(n int64) int64
}

func New(cfg Config, limiter Limiter, breaker Breaker) *Notifier {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Notifier{
		url: cfg.URL,
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		limiter: limiter,
		breaker: breaker,
		tasks:   make(chan Task, cfg.QueueSize),
		workers: cfg.Workers,
		ctx:     ctx,
		cancel:  cancel,
		log:     log.WithComponent("notify"),
		sleep:   sleepCtx,
		randN:   rand.Int63n,
	}
}

// Start launches the workers. Safe to call more than once.
func (n *Notifier) Start() {
	n.once.Do(func() {
		for i := 0; i < n.workers; i++ {
			n.wg.Add(1)
			go func() {
				defer n.wg.Done()
				for task := range n.tasks {
					n.deliver(n.ctx, task)
				}
			}()
		}
		n.log.Info().
			Str("event", "notify.pool_started").
			Int("workers", n.workers).
			Int("queue_size", cap(n.tasks)).
			Msg("notification pool started")
	})
}

// Stop closes the queue, waits for workers to drain it, then cancels the
// pool context. Queued tasks get their normal delivery attempt; retry
// backoff for a draining task is bounded by the attempt budget.
func (n *Notifier) Stop() {
	n.stopOnce.Do(func() {
		close(n.tasks)
		n.wg.Wait()
		n.cancel()
	})
}

// Enqueue submits a task without blocking. A full queue drops the task;
// the ticket itself is already persisted, only the webhook is lost.
func (n *Notifier) Enqueue(task Task) bool {
	select {
	case n.tasks <- task:
		return true
	default:
		metrics.IncNotification("dropped")
		n.log.Warn().
			Str("event", "notify.queue_full").
			Str("ticket_id", task.TicketID).
			Str("tenant_id", task.TenantID).
			Msg("notification queue full, dropping task")
		return false
	}
}

// deliver runs the retry loop for a single task. Only transient failures
// (timeouts, transport errors, 5xx) count against the breaker and are
// retried; a 429 is retried without a breaker mark, any other 4xx is final.
func (n *Notifier) deliver(ctx context.Context, task Task) {
	logger := n.log.With().
		Str("ticket_id", task.TicketID).
		Str("tenant_id", task.TenantID).
		Logger()

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := n.breaker.Allow(); err != nil {
			metrics.IncNotification("skipped")
			logger.Warn().
				Str("event", "notify.circuit_open").
				Msg("circuit open, skipping notification")
			return
		}

		status, err := n.post(ctx, task)
		switch {
		case err == nil && status < 300:
			n.breaker.RecordSuccess()
			metrics.IncNotification("sent")
			logger.Info().Str("event", "notify.sent").Msg("notification delivered")
			return
		case err == nil && status == http.StatusTooManyRequests:
			// The receiver throttled us. Not a breaker failure.
			n.breaker.RecordSuccess()
		case status >= 400 && status < 500:
			// The receiver rejected the payload. The endpoint is healthy and
			// retrying the same request cannot succeed.
			n.breaker.RecordSuccess()
			metrics.IncNotification("failed")
			logger.Error().
				Str("event", "notify.rejected").
				Int("status", status).
				Msg("notification rejected, not retrying")
			return
		default:
			n.breaker.RecordFailure()
		}

		if attempt == maxAttempts-1 {
			break
		}
		delay := n.backoff(attempt)
		logger.Warn().
			Err(err).
			Str("event", "notify.retry").
			Int("attempt", attempt+1).
			Int("status", status).
			Dur("backoff", delay).
			Msg("notification attempt failed")
		if err := n.sleep(ctx, delay); err != nil {
			metrics.IncNotification("abandoned")
			return
		}
	}

	metrics.IncNotification("failed")
	logger.Error().
		Str("event", "notify.exhausted").
		Int("attempts", maxAttempts).
		Msg("all notification attempts failed")
}

// post performs one rate-limited HTTP delivery. A non-nil error means the
// request never produced a status (transport failure or timeout).
func (n *Notifier) post(ctx context.Context, task Task) (int, error) {
	if err := n.limiter.Acquire(ctx); err != nil {
		return 0, err
	}

	body, err := json.Marshal(task)
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := n.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer res.Body.Close()

	if res.StatusCode >= 300 && res.StatusCode != http.StatusTooManyRequests {
		return res.StatusCode, errors.New(res.Status)
	}
	return res.StatusCode, nil
}

// backoff returns min(2^attempt, cap) + jitter in [0, 2^attempt) seconds.
func (n *Notifier) backoff(attempt int) time.Duration {
	base := time.Duration(1<<uint(attempt)) * time.Second
	delay := base
	if delay > backoffCap {
		delay = backoffCap
	}
	if jitterRange := int64(base); jitterRange > 0 {
		delay += time.Duration(n.randN(jitterRange))
	}
	return delay
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
