// SPDX-License-Identifier: MIT

// Package source is the client for the external paginated ticket API.
// Fetching a page is a single-attempt operation; FetchPageWithRetry adds
// the retry policy the ingestion loop depends on: 429 waits for Retry-After
// without consuming the retry budget, transient failures back off
// exponentially up to three attempts.
package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/ticketd/ticketd/internal/log"
	"github.com/ticketd/ticketd/internal/metrics"
)

// DefaultTimeout bounds a single page fetch.
const DefaultTimeout = 15 * time.Second

// maxAttempts is the transient-failure retry budget per page.
const maxAttempts = 3

// Ticket is the external API's ticket payload.
type Ticket struct {
	ID         string    `json:"id"`
	CustomerID string    `json:"customer_id"`
	Source     string    `json:"source"`
	Subject    string    `json:"subject"`
	Message    string    `json:"message"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Page is one page of the upstream listing.
type Page struct {
	Tickets    []Ticket
	Page       int
	TotalPages int
}

// Limiter gates outbound calls. Acquire blocks until a slot is free or the
// context is done.
type Limiter interface {
	Acquire(ctx context.Context) error
}

type Client struct {
	base    string
	http    *http.Client
	limiter Limiter
	log     zerolog.Logger
	sleep   func(ctx context.Context, d time.Duration) error
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout overrides the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func New(base string, limiter Limiter, opts ...Option) *Client {
	c := &Client{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{
			Timeout:   DefaultTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		limiter: limiter,
		log:     log.WithComponent("source"),
		sleep:   sleepCtx,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchPage performs a single rate-limited attempt at fetching one page for
// a tenant. Every attempt consumes a limiter slot, including the retries
// issued by FetchPageWithRetry. Errors are *APIError values wrapping the
// package sentinels.
func (c *Client) FetchPage(ctx context.Context, tenantID string, page int) (*Page, error) {
	op := fmt.Sprintf("fetch page %d", page)

	if err := c.limiter.Acquire(ctx); err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("tenant_id", tenantID)
	q.Set("page", strconv.Itoa(page))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"?"+q.Encode(), nil)
	if err != nil {
		return nil, &APIError{Sentinel: ErrUpstreamBadResponse, Operation: op, Err: err}
	}

	res, err := c.http.Do(req)
	if err != nil {
		sentinel := ErrUpstreamUnavailable
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			sentinel = ErrTimeout
		}
		return nil, &APIError{Sentinel: sentinel, Operation: op, Err: err}
	}
	defer res.Body.Close()

	switch {
	case res.StatusCode == http.StatusTooManyRequests:
		return nil, &APIError{
			Sentinel:   ErrRateLimited,
			Operation:  op,
			Status:     res.StatusCode,
			RetryAfter: retryAfter(res),
		}
	case res.StatusCode >= 500:
		return nil, &APIError{
			Sentinel:  ErrUpstreamError,
			Operation: op,
			Status:    res.StatusCode,
			Body:      bodySnippet(res.Body),
		}
	case res.StatusCode != http.StatusOK:
		return nil, &APIError{
			Sentinel:  ErrUpstreamBadResponse,
			Operation: op,
			Status:    res.StatusCode,
			Body:      bodySnippet(res.Body),
		}
	}

	var payload struct {
		Tickets    []Ticket `json:"tickets"`
		Page       int      `json:"page"`
		TotalPages int      `json:"total_pages"`
	}
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		return nil, &APIError{Sentinel: ErrUpstreamBadResponse, Operation: op, Err: err}
	}

	metrics.IncPageFetched()
	return &Page{
		Tickets:    payload.Tickets,
		Page:       payload.Page,
		TotalPages: payload.TotalPages,
	}, nil
}

// FetchPageWithRetry fetches one page, retrying per the ingestion contract.
// A 429 waits out Retry-After (1s when the header is absent) and retries the
// same page without touching the attempt budget. Transient failures (5xx,
// timeout, transport) back off 1s, 2s and fail after three attempts.
// Malformed responses fail immediately: re-reading them cannot help.
func (c *Client) FetchPageWithRetry(ctx context.Context, tenantID string, page int) (*Page, error) {
	attempt := 0
	for {
		p, err := c.FetchPage(ctx, tenantID, page)
		if err == nil {
			return p, nil
		}

		var apiErr *APIError
		if errors.As(err, &apiErr) && errors.Is(err, ErrRateLimited) {
			wait := apiErr.RetryAfter
			if wait <= 0 {
				wait = time.Second
			}
			c.log.Warn().
				Str("event", "source.rate_limited").
				Int("page", page).
				Dur("retry_after", wait).
				Msg("upstream rate limited, waiting")
			if err := c.sleep(ctx, wait); err != nil {
				return nil, err
			}
			continue
		}

		if errors.Is(err, ErrUpstreamBadResponse) {
			return nil, err
		}

		attempt++
		if attempt >= maxAttempts {
			return nil, err
		}
		backoff := time.Duration(1<<uint(attempt-1)) * time.Second
		c.log.Warn().
			Err(err).
			Str("event", "source.fetch_retry").
			Int("page", page).
			Int("attempt", attempt).
			Dur("backoff", backoff).
			Msg("page fetch failed, retrying")
		if err := c.sleep(ctx, backoff); err != nil {
			return nil, err
		}
	}
}

func retryAfter(res *http.Response) time.Duration {
	raw := res.Header.Get("Retry-After")
	if raw == "" {
		return 0
	}
	secs, err := strconv.Atoi(raw)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

func bodySnippet(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 512))
	return strings.TrimSpace(string(b))
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
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
