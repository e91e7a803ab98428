// SPDX-License-Identifier: MIT

package ingest

import (
	"context"
	"errors"
	"time"

	"github.com/ticketd/ticketd/internal/notify"
	"github.com/ticketd/ticketd/internal/source"
	"github.com/ticketd/ticketd/internal/store"
	"github.com/ticketd/ticketd/internal/syncengine"
)

// ErrConflict is returned when another run holds the tenant's ingest lock.
var ErrConflict = errors.New("ingest: run already in progress for tenant")

// Locker is the mutual-exclusion surface the orchestrator drives.
type Locker interface {
	Acquire(ctx context.Context, resourceID, ownerID string) (bool, error)
	Refresh(ctx context.Context, resourceID, ownerID string) (bool, error)
	Release(ctx context.Context, resourceID, ownerID string) error
}

// Fetcher pulls pages from the external source. Implementations own the
// outbound rate limit: every HTTP attempt behind a fetch consumes a slot.
type Fetcher interface {
	FetchPageWithRetry(ctx context.Context, tenantID string, page int) (*source.Page, error)
}

// Syncer converges tickets and runs the deletion sweep.
type Syncer interface {
	Sync(ctx context.Context, tenantID string, ext source.Ticket) (syncengine.Result, error)
	SweepDeleted(ctx context.Context, tenantID string, seen []string, from, to time.Time) ([]string, error)
}

// Enqueuer schedules best-effort notifications.
type Enqueuer interface {
	Enqueue(task notify.Task) bool
}

// JobStore persists run metadata.
type JobStore interface {
	Insert(ctx context.Context, job store.IngestionJob) error
	UpdateProgress(ctx context.Context, jobID string, totalPages, processedPages, progress int) error
	Finalize(ctx context.Context, jobID, status string, endedAt time.Time) error
	FindByJobID(ctx context.Context, jobID string) (*store.IngestionJob, error)
	FindRunningByTenant(ctx context.Context, tenantID string) (*store.IngestionJob, error)
}

// Auditor writes the per-run audit record. It must not fail the caller.
type Auditor interface {
	Record(ctx context.Context, entry store.IngestionLog)
}

// Deps bundles everything a run needs. All fields are required.
type Deps struct {
	Locks    Locker
	Source   Fetcher
	Sync     Syncer
	Notifier Enqueuer
	Jobs     JobStore
	Audit    Auditor
}

// Summary is the synchronous result of a completed run.
type Summary struct {
	JobID       string `json:"job_id"`
	Status      string `json:"status"`
	NewIngested int    `json:"new_ingested"`
	Updated     int    `json:"updated"`
	Errors      int    `json:"errors"`
}
