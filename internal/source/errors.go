// SPDX-License-Identifier: MIT

package source

import (
	"errors"
	"fmt"
	"time"
)

var (
	// Sentinel errors for errors.Is checks at the boundary.
	ErrUpstreamUnavailable = errors.New("source: host unreachable or transport failure")
	ErrUpstreamError       = errors.New("source: internal error (5xx)")
	ErrUpstreamBadResponse = errors.New("source: invalid response format or malformed data")
	ErrRateLimited         = errors.New("source: rate limited (429)")
	ErrTimeout             = errors.New("source: request timed out")
)

// APIError wraps the sentinel errors with request context.
type APIError struct {
	Sentinel   error
	Operation  string
	Status     int
	Body       string
	RetryAfter time.Duration // set on 429 responses
	Err        error         // nested lower-level error (e.g. net.Error)
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("source: %s: %v", e.Operation, e.Sentinel)
	if e.Status > 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.Status)
	}
	if e.Body != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Body)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *APIError) Unwrap() error {
	return e.Sentinel
}
