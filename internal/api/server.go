// SPDX-License-Identifier: MIT

// Package api provides the HTTP surface of the ticket ingestion service.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ticketd/ticketd/internal/analytics"
	"github.com/ticketd/ticketd/internal/health"
	"github.com/ticketd/ticketd/internal/ingest"
	"github.com/ticketd/ticketd/internal/lock"
	"github.com/ticketd/ticketd/internal/ratelimit"
	"github.com/ticketd/ticketd/internal/resilience"
	"github.com/ticketd/ticketd/internal/store"
)

// Ingestor drives ingestion runs.
type Ingestor interface {
	Run(ctx context.Context, tenantID string) (*ingest.Summary, error)
	RequestCancel(ctx context.Context, jobID string) error
	Progress(ctx context.Context, jobID string) (*store.IngestionJob, error)
	RunningJob(ctx context.Context, tenantID string) (*store.IngestionJob, error)
}

// LockInspector exposes lock state for the inspection endpoint.
type LockInspector interface {
	Inspect(ctx context.Context, resourceID string) (*lock.Status, error)
}

// TicketReader serves tenant-scoped ticket reads.
type TicketReader interface {
	List(ctx context.Context, f store.ListFilter) ([]store.Ticket, error)
	ListUrgent(ctx context.Context, tenantID string) ([]store.Ticket, error)
	Get(ctx context.Context, tenantID, externalID string) (*store.Ticket, error)
}

// HistoryReader serves per-ticket change history.
type HistoryReader interface {
	List(ctx context.Context, tenantID, ticketID string, limit int) ([]store.TicketHistory, error)
}

// LogReader serves the per-tenant ingestion audit trail.
type LogReader interface {
	ListByTenant(ctx context.Context, tenantID string, limit int) ([]store.IngestionLog, error)
}

// StatsProvider computes the tenant dashboard.
type StatsProvider interface {
	ComputeStats(ctx context.Context, tenantID string, from, to time.Time) (*analytics.Stats, error)
}

// LimiterStatus reports outbound rate limiter usage.
type LimiterStatus interface {
	Status() ratelimit.Status
}

// Deps bundles the server's collaborators.
type Deps struct {
	Ingest  Ingestor
	Locks   LockInspector
	Tickets TicketReader
	History HistoryReader
	Logs    LogReader
	Stats   StatsProvider
	Limiter LimiterStatus
	Health  *health.Manager

	// Breaker resolves a named circuit breaker; defaults to the process
	// registry.
	Breaker func(name string) *resilience.CircuitBreaker
}

// Server is the HTTP boundary.
type Server struct {
	deps Deps
}

func NewServer(deps Deps) *Server {
	if deps.Breaker == nil {
		deps.Breaker = resilience.Lookup
	}
	return &Server{deps: deps}
}

// Router assembles the chi router with the canonical middleware stack.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.Recoverer)
	r.Use(requestID)
	r.Use(accessLog)
	r.Use(apiRateLimit())

	r.Route("/ingest", func(r chi.Router) {
		r.Post("/run", s.handleIngestRun)
		r.Get("/status", s.handleIngestStatus)
		r.Get("/progress/{jobID}", s.handleIngestProgress)
		r.Delete("/{jobID}", s.handleIngestCancel)
		r.Get("/lock/{tenantID}", s.handleLockStatus)
		r.Get("/logs", s.handleIngestLogs)
	})

	r.Route("/tickets", func(r chi.Router) {
		r.Get("/", s.handleTicketList)
		r.Get("/urgent", s.handleTicketUrgent)
		r.Get("/{externalID}", s.handleTicketGet)
		r.Get("/{externalID}/history", s.handleTicketHistory)
	})

	r.Get("/tenants/{tenantID}/stats", s.handleStats)

	r.Get("/circuit/{name}/status", s.handleCircuitStatus)
	r.Post("/circuit/{name}/reset", s.handleCircuitReset)
	r.Get("/rate-limiter/status", s.handleLimiterStatus)

	if s.deps.Health != nil {
		r.Get("/health", s.deps.Health.ServeHealth)
		r.Get("/healthz", s.deps.Health.ServeLiveness)
	}
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	return r
}
