// SPDX-License-Identifier: MIT

// Package ingest runs the per-tenant ingestion state machine: lock-first
// admission, paginated fetching, concurrent per-page ticket sync, cooperative
// cancellation, and a guaranteed teardown that always writes the audit row
// and releases the lock. Outbound rate limiting lives in the source client,
// which charges every HTTP attempt against the global window.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ticketd/ticketd/internal/classify"
	"github.com/ticketd/ticketd/internal/log"
	"github.com/ticketd/ticketd/internal/metrics"
	"github.com/ticketd/ticketd/internal/notify"
	"github.com/ticketd/ticketd/internal/source"
	"github.com/ticketd/ticketd/internal/store"
	"github.com/ticketd/ticketd/internal/syncengine"
)

// ErrNotRunning is returned when a cancellation targets a job that is not
// currently running in this process.
var ErrNotRunning = errors.New("ingest: job is not running")

// Defaults for the run machinery.
const (
	DefaultRefreshInterval = 30 * time.Second
	DefaultPageWorkers     = 8

	teardownTimeout = 10 * time.Second
)

// Orchestrator coordinates ingestion runs. One instance serves the process;
// per-tenant serialization comes from the distributed lock, not from the
// orchestrator itself.
type Orchestrator struct {
	deps         Deps
	cancels      *cancelRegistry
	refreshEvery time.Duration
	pageWorkers  int
	now          func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithRefreshInterval overrides the lease refresh cadence.
func WithRefreshInterval(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.refreshEvery = d
		}
	}
}

// WithPageWorkers bounds concurrent ticket syncs within a page.
func WithPageWorkers(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.pageWorkers = n
		}
	}
}

// WithClock injects a time source for tests.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

func New(deps Deps, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		deps:         deps,
		cancels:      newCancelRegistry(),
		refreshEvery: DefaultRefreshInterval,
		pageWorkers:  DefaultPageWorkers,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// runState accumulates the outcome of one run.
type runState struct {
	jobID    string
	tenantID string

	mu          sync.Mutex
	newIngested int
	updated     int
	errors      int

	seen       []string
	minCreated time.Time
	maxCreated time.Time

	status string
	errMsg string
}

// Run executes one ingestion run for the tenant and blocks until it reaches
// a terminal state. A held lock surfaces ErrConflict without writing a job
// row. The returned Summary is non-nil whenever a job row was created.
func (o *Orchestrator) Run(ctx context.Context, tenantID string) (*Summary, error) {
	jobID := uuid.NewString()
	resource := "ingest:" + tenantID

	acquired, err := o.deps.Locks.Acquire(ctx, resource, jobID)
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !acquired {
		metrics.IncIngestionConflict()
		return nil, ErrConflict
	}

	startedAt := o.now().UTC()
	ctx = log.ContextWithJobID(log.ContextWithTenant(ctx, tenantID), jobID)
	logger := log.WithComponentFromContext(ctx, "ingest")
	logger.Info().
		Str("event", "ingest.start").
		Str("tenant_id", tenantID).
		Str("job_id", jobID).
		Msg("ingestion run started")

	run := &runState{jobID: jobID, tenantID: tenantID, status: store.JobFailed}
	o.cancels.register(jobID)

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	var leaseLost atomic.Bool
	var wg sync.WaitGroup
	wg.Add(1)
	go o.refreshLease(runCtx, &wg, resource, jobID, &leaseLost, cancelRun)

	if err := o.deps.Jobs.Insert(runCtx, store.IngestionJob{
		JobID:     jobID,
		TenantID:  tenantID,
		Status:    store.JobRunning,
		StartedAt: startedAt,
	}); err != nil {
		run.errMsg = fmt.Sprintf("insert job: %v", err)
	} else {
		o.execute(runCtx, run)
	}

	cancelRun()
	wg.Wait()

	if leaseLost.Load() && run.status != store.JobCancelled {
		run.status = store.JobFailed
		if run.errMsg == "" {
			run.errMsg = "lock lease lost"
		}
	}

	o.teardown(ctx, run, resource, startedAt)

	summary := &Summary{
		JobID:       jobID,
		Status:      run.status,
		NewIngested: run.newIngested,
		Updated:     run.updated,
		Errors:      run.errors,
	}
	if run.status == store.JobFailed {
		return summary, fmt.Errorf("ingestion run failed: %s", run.errMsg)
	}
	return summary, nil
}

// execute drives the fetch loop. It sets run.status to the terminal state
// and run.errMsg on failure.
func (o *Orchestrator) execute(ctx context.Context, run *runState) {
	logger := log.WithComponentFromContext(ctx, "ingest")

	page := 1
	totalPages := 1
	for {
		if o.cancels.isCancelled(run.jobID) {
			logger.Info().Str("event", "ingest.cancelled").Int("page", page).Msg("cancellation requested, stopping")
			run.status = store.JobCancelled
			return
		}

		pg, err := o.deps.Source.FetchPageWithRetry(ctx, run.tenantID, page)
		if err != nil {
			logger.Error().Err(err).Str("event", "ingest.fetch_failed").Int("page", page).Msg("page fetch failed")
			run.errMsg = fmt.Sprintf("fetch page %d: %v", page, err)
			return
		}
		if pg.TotalPages > 0 {
			totalPages = pg.TotalPages
		}

		o.processPage(ctx, run, pg)

		progress := 100 * page / max(totalPages, 1)
		if progress > 99 {
			progress = 99
		}
		if err := o.deps.Jobs.UpdateProgress(ctx, run.jobID, totalPages, page, progress); err != nil {
			logger.Warn().Err(err).Str("event", "ingest.progress_write_failed").Msg("progress update failed")
		}

		if page >= totalPages {
			break
		}
		page++
	}

	// The flag may have been set while the last page was processing.
	if o.cancels.isCancelled(run.jobID) {
		run.status = store.JobCancelled
		return
	}

	if err := o.sweep(ctx, run); err != nil {
		logger.Error().Err(err).Str("event", "ingest.sweep_failed").Msg("deletion sweep failed")
		run.errMsg = fmt.Sprintf("deletion sweep: %v", err)
		return
	}
	run.status = store.JobCompleted
}

// processPage syncs the page's tickets concurrently. Per-ticket failures are
// counted, never fatal: partial ingestion is acceptable and idempotent.
func (o *Orchestrator) processPage(ctx context.Context, run *runState, pg *source.Page) {
	logger := log.WithComponentFromContext(ctx, "ingest")

	for _, t := range pg.Tickets {
		run.seen = append(run.seen, t.ID)
		if !t.CreatedAt.IsZero() {
			if run.minCreated.IsZero() || t.CreatedAt.Before(run.minCreated) {
				run.minCreated = t.CreatedAt
			}
			if t.CreatedAt.After(run.maxCreated) {
				run.maxCreated = t.CreatedAt
			}
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.pageWorkers)
	for _, t := range pg.Tickets {
		t := t
		g.Go(func() error {
			res, err := o.deps.Sync.Sync(gctx, run.tenantID, t)
			if err != nil {
				metrics.IncTicketSynced("error")
				logger.Error().Err(err).
					Str("event", "ingest.ticket_failed").
					Str("external_id", t.ID).
					Msg("ticket sync failed")
				run.mu.Lock()
				run.errors++
				run.mu.Unlock()
				return nil
			}

			run.mu.Lock()
			switch res.Action {
			case syncengine.ActionCreated:
				run.newIngested++
			case syncengine.ActionUpdated:
				run.updated++
			}
			run.mu.Unlock()

			if res.Urgency == classify.UrgencyHigh && res.Action != syncengine.ActionUnchanged {
				o.deps.Notifier.Enqueue(notify.Task{
					TicketID: res.TicketID,
					TenantID: run.tenantID,
					Urgency:  res.Urgency,
					Reason:   "High urgency ticket detected",
				})
			}
			return nil
		})
	}
	_ = g.Wait()
}

// sweep soft-deletes tickets missing upstream, scoped to the created_at
// window actually served this run. A run that saw no tickets sweeps nothing.
func (o *Orchestrator) sweep(ctx context.Context, run *runState) error {
	if len(run.seen) == 0 || run.minCreated.IsZero() {
		return nil
	}
	_, err := o.deps.Sync.SweepDeleted(ctx, run.tenantID, run.seen, run.minCreated, run.maxCreated)
	return err
}

// refreshLease extends the lock until the run context ends. Losing the
// lease aborts the run: another owner may already be ingesting.
func (o *Orchestrator) refreshLease(ctx context.Context, wg *sync.WaitGroup, resource, jobID string, lost *atomic.Bool, abort context.CancelFunc) {
	defer wg.Done()

	ticker := time.NewTicker(o.refreshEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ok, err := o.deps.Locks.Refresh(ctx, resource, jobID)
			if err != nil || !ok {
				logger := log.WithComponentFromContext(ctx, "ingest")
				logger.Error().
					Err(err).
					Str("event", "ingest.lease_lost").
					Str("job_id", jobID).
					Msg("lease refresh failed, aborting run")
				lost.Store(true)
				abort()
				return
			}
		}
	}
}

// teardown is the guaranteed-release scope: finalize the job row, write the
// audit record, release the lock, drop the cancellation flag. It runs on a
// detached context so a cancelled request cannot starve it.
func (o *Orchestrator) teardown(ctx context.Context, run *runState, resource string, startedAt time.Time) {
	logger := log.WithComponentFromContext(ctx, "ingest")
	endedAt := o.now().UTC()

	tctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), teardownTimeout)
	defer cancel()

	if err := o.deps.Jobs.Finalize(tctx, run.jobID, run.status, endedAt); err != nil {
		logger.Error().Err(err).Str("event", "ingest.finalize_failed").Msg("job finalize failed")
	}

	o.deps.Audit.Record(tctx, store.IngestionLog{
		TenantID:    run.tenantID,
		JobID:       run.jobID,
		Status:      auditStatus(run),
		StartedAt:   startedAt,
		EndedAt:     endedAt,
		NewIngested: run.newIngested,
		Updated:     run.updated,
		Errors:      run.errors,
		Error:       run.errMsg,
	})

	if err := o.deps.Locks.Release(tctx, resource, run.jobID); err != nil {
		logger.Error().Err(err).Str("event", "ingest.release_failed").Msg("lock release failed")
	}
	o.cancels.remove(run.jobID)

	metrics.RecordIngestionRun(run.status, endedAt.Sub(startedAt).Seconds())
	logger.Info().
		Str("event", "ingest.done").
		Str("status", run.status).
		Int("new_ingested", run.newIngested).
		Int("updated", run.updated).
		Int("errors", run.errors).
		Dur("duration", endedAt.Sub(startedAt)).
		Msg("ingestion run finished")
}

func auditStatus(run *runState) string {
	switch run.status {
	case store.JobCompleted:
		if run.errors > 0 {
			return store.LogPartial
		}
		return store.LogSuccess
	case store.JobCancelled:
		return store.LogCancelled
	default:
		return store.LogFailed
	}
}

// RequestCancel flags a running job for cooperative cancellation. The
// orchestrator notices between pages; already-ingested tickets remain.
func (o *Orchestrator) RequestCancel(ctx context.Context, jobID string) error {
	job, err := o.deps.Jobs.FindByJobID(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status != store.JobRunning {
		return ErrNotRunning
	}
	if !o.cancels.requestCancel(jobID) {
		return ErrNotRunning
	}
	return nil
}

// Progress returns the job row for progress reporting.
func (o *Orchestrator) Progress(ctx context.Context, jobID string) (*store.IngestionJob, error) {
	return o.deps.Jobs.FindByJobID(ctx, jobID)
}

// RunningJob returns the newest running job for a tenant, or
// store.ErrNotFound when the tenant is idle.
func (o *Orchestrator) RunningJob(ctx context.Context, tenantID string) (*store.IngestionJob, error) {
	return o.deps.Jobs.FindRunningByTenant(ctx, tenantID)
}
