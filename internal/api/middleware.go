// SPDX-License-Identifier: MIT

package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/google/uuid"

	"github.com/ticketd/ticketd/internal/log"
	"github.com/ticketd/ticketd/internal/metrics"
)

// Inbound API ceiling, distinct from the outbound upstream limiter.
const (
	apiRateLimitRequests = 600
	apiRateLimitWindow   = time.Minute
)

const requestIDHeader = "X-Request-Id"

// requestID assigns every request a correlation ID, honoring one supplied by
// the caller, and echoes it back in the response.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(log.ContextWithRequestID(r.Context(), id)))
	})
}

// accessLog emits one structured line per request and feeds the HTTP metrics.
func accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		elapsed := time.Since(start)
		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		metrics.RecordHTTPRequest(r.Method, route, strconv.Itoa(ww.Status()), elapsed.Seconds())

		logger := log.WithComponentFromContext(r.Context(), "api")
		logger.Info().
			Str("event", "http.request").
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", elapsed).
			Str("remote", r.RemoteAddr).
			Msg("request handled")
	})
}

// apiRateLimit caps inbound requests per client IP.
func apiRateLimit() func(http.Handler) http.Handler {
	return httprate.Limit(
		apiRateLimitRequests,
		apiRateLimitWindow,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", strconv.Itoa(int(apiRateLimitWindow/time.Second)))
			writeError(w, r, http.StatusTooManyRequests, "rate_limit_exceeded")
		}),
	)
}
