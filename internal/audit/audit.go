// SPDX-License-Identifier: MIT

// Package audit records the ingestion audit trail: one durable log row per
// run that acquired the lock, mirrored as a structured log event. The trail
// is the system's compliance record; the caller's teardown path must never
// fail because of it.
package audit

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/ticketd/ticketd/internal/log"
	"github.com/ticketd/ticketd/internal/store"
)

// Sink persists audit rows.
type Sink interface {
	Append(ctx context.Context, entry store.IngestionLog) error
}

// Recorder writes ingestion audit records.
type Recorder struct {
	sink   Sink
	logger zerolog.Logger
}

func NewRecorder(sink Sink) *Recorder {
	return &Recorder{
		sink: sink,
		logger: log.WithComponent("audit").With().
			Str("log_type", "audit").
			Logger(),
	}
}

// Record persists one run's audit row and emits the matching log event.
// A failed write is logged and swallowed: the teardown scope it runs in
// must complete regardless.
func (r *Recorder) Record(ctx context.Context, entry store.IngestionLog) {
	if entry.EndedAt.IsZero() {
		entry.EndedAt = time.Now().UTC()
	}

	evt := r.logger.Info().
		Str("event", "ingest.audit").
		Str("tenant_id", entry.TenantID).
		Str("job_id", entry.JobID).
		Str("status", entry.Status).
		Time("started_at", entry.StartedAt).
		Time("ended_at", entry.EndedAt).
		Int("new_ingested", entry.NewIngested).
		Int("updated", entry.Updated).
		Int("errors", entry.Errors)
	if entry.Error != "" {
		evt = evt.Str("error", entry.Error)
	}
	evt.Msg("ingestion run audited")

	if err := r.sink.Append(ctx, entry); err != nil {
		r.logger.Error().
			Err(err).
			Str("event", "ingest.audit_write_failed").
			Str("job_id", entry.JobID).
			Msg("audit row write failed")
	}
}
