// SPDX-License-Identifier: MIT
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ingestion metrics
	ingestionRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ticketd_ingestion_runs_total",
		Help: "Total number of ingestion runs by outcome",
	}, []string{"outcome"}) // outcome=completed|cancelled|failed|conflict

	ingestionPagesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ticketd_ingestion_pages_total",
		Help: "Total number of upstream pages fetched",
	})

	ticketsSyncedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ticketd_tickets_synced_total",
		Help: "Tickets processed by sync action",
	}, []string{"action"}) // action=created|updated|unchanged|deleted|error

	ingestionDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ticketd_ingestion_duration_seconds",
		Help:    "Wall time of complete ingestion runs",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	})

	// Notification metrics
	notificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ticketd_notifications_total",
		Help: "Notification delivery attempts by outcome",
	}, []string{"outcome"}) // outcome=sent|retried|skipped|failed

	// Circuit breaker metrics
	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ticketd_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"name"})

	circuitBreakerTrips = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ticketd_circuit_breaker_trips_total",
		Help: "Circuit breaker transitions to open by reason",
	}, []string{"name", "reason"}) // reason=window_threshold|half_open_failure

	// Rate limiter metrics
	rateLimiterWaits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ticketd_rate_limiter_waits_total",
		Help: "Acquisitions that had to wait for a free window slot",
	})

	rateLimiterWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ticketd_rate_limiter_wait_seconds",
		Help:    "Time spent waiting for the outbound rate limiter",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	})

	// Analytics metrics
	statsDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ticketd_stats_duration_seconds",
		Help:    "Latency of the tenant stats aggregation pipeline",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	})

	// Lock metrics
	lockAcquisitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ticketd_lock_acquisitions_total",
		Help: "Distributed lock acquisition attempts by outcome",
	}, []string{"outcome"}) // outcome=acquired|conflict

	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ticketd_http_requests_total",
		Help: "HTTP requests by method, route pattern and status code",
	}, []string{"method", "path", "status"})

	httpRequestSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ticketd_http_request_duration_seconds",
		Help:    "HTTP request latency by route pattern",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"method", "path"})
)

func RecordIngestionRun(outcome string, seconds float64) {
	ingestionRunsTotal.WithLabelValues(outcome).Inc()
	ingestionDurationSeconds.Observe(seconds)
}

func IncIngestionConflict() { ingestionRunsTotal.WithLabelValues("conflict").Inc() }

func IncPageFetched() { ingestionPagesTotal.Inc() }

func IncTicketSynced(action string) { ticketsSyncedTotal.WithLabelValues(action).Inc() }

func IncNotification(outcome string) { notificationsTotal.WithLabelValues(outcome).Inc() }

// SetCircuitBreakerState maps the textual state onto the gauge encoding.
func SetCircuitBreakerState(name, state string) {
	v := 0.0
	switch state {
	case "open":
		v = 1
	case "half-open":
		v = 2
	}
	circuitBreakerState.WithLabelValues(name).Set(v)
}

func RecordCircuitBreakerTrip(name, reason string) {
	circuitBreakerTrips.WithLabelValues(name, reason).Inc()
}

func RecordRateLimiterWait(seconds float64) {
	rateLimiterWaits.Inc()
	rateLimiterWaitSeconds.Observe(seconds)
}

func RecordStatsDuration(seconds float64) { statsDurationSeconds.Observe(seconds) }

func RecordHTTPRequest(method, path, status string, seconds float64) {
	httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	httpRequestSeconds.WithLabelValues(method, path).Observe(seconds)
}

func IncLockAcquisition(acquired bool) {
	outcome := "conflict"
	if acquired {
		outcome = "acquired"
	}
	lockAcquisitionsTotal.WithLabelValues(outcome).Inc()
}
