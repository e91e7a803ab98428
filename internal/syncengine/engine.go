// SPDX-License-Identifier: MIT

// Package syncengine converges fetched external tickets with their stored
// copies: change detection gated on updated_at, field-level history, and the
// windowed soft-delete sweep.
package syncengine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ticketd/ticketd/internal/classify"
	"github.com/ticketd/ticketd/internal/log"
	"github.com/ticketd/ticketd/internal/metrics"
	"github.com/ticketd/ticketd/internal/source"
	"github.com/ticketd/ticketd/internal/store"
)

// Sync actions.
const (
	ActionCreated   = "created"
	ActionUpdated   = "updated"
	ActionUnchanged = "unchanged"
)

// Result is the outcome of syncing one external ticket.
type Result struct {
	Action   string
	TicketID string
	Urgency  string
	Changes  []string
}

// TicketStore is the slice of the ticket gateway the engine needs.
type TicketStore interface {
	FindByExternalID(ctx context.Context, tenantID, externalID string) (*store.Ticket, error)
	Upsert(ctx context.Context, ticket store.Ticket) (bool, error)
	SoftDeleteMissing(ctx context.Context, tenantID string, seen []string, from, to, now time.Time) ([]string, error)
}

// HistoryStore records append-only change rows.
type HistoryStore interface {
	Append(ctx context.Context, entry store.TicketHistory) error
}

// Engine performs per-ticket synchronization for one deployment.
type Engine struct {
	tickets TicketStore
	history HistoryStore
	now     func() time.Time
	log     zerolog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock injects a time source for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func New(tickets TicketStore, history HistoryStore, opts ...Option) *Engine {
	e := &Engine{
		tickets: tickets,
		history: history,
		now:     time.Now,
		log:     log.WithComponent("syncengine"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Sync converges one external ticket. A ticket unseen before is created; a
// known ticket is rewritten only when the external updated_at is strictly
// newer than the stored one, with the field diff recorded in history.
func (e *Engine) Sync(ctx context.Context, tenantID string, ext source.Ticket) (Result, error) {
	cls := classify.Classify(ext.Subject, ext.Message)
	incoming := e.buildTicket(tenantID, ext, cls)

	existing, err := e.tickets.FindByExternalID(ctx, tenantID, ext.ID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return e.create(ctx, incoming)
	case err != nil:
		return Result{}, fmt.Errorf("sync lookup: %w", err)
	}

	if !incoming.UpdatedAt.After(existing.UpdatedAt) {
		return Result{Action: ActionUnchanged, TicketID: ext.ID, Urgency: existing.Urgency}, nil
	}
	return e.update(ctx, *existing, incoming)
}

func (e *Engine) create(ctx context.Context, ticket store.Ticket) (Result, error) {
	if _, err := e.tickets.Upsert(ctx, ticket); err != nil {
		return Result{}, fmt.Errorf("sync create: %w", err)
	}
	entry := store.TicketHistory{
		TicketID:   ticket.ExternalID,
		TenantID:   ticket.TenantID,
		Action:     store.ActionCreated,
		RecordedAt: e.now(),
	}
	if err := e.history.Append(ctx, entry); err != nil {
		return Result{}, fmt.Errorf("sync create history: %w", err)
	}

	metrics.IncTicketSynced("created")
	e.log.Debug().
		Str("event", "sync.created").
		Str("tenant_id", ticket.TenantID).
		Str("external_id", ticket.ExternalID).
		Msg("ticket created")
	return Result{Action: ActionCreated, TicketID: ticket.ExternalID, Urgency: ticket.Urgency}, nil
}

func (e *Engine) update(ctx context.Context, existing, incoming store.Ticket) (Result, error) {
	changes := diff(existing, incoming)

	if _, err := e.tickets.Upsert(ctx, incoming); err != nil {
		return Result{}, fmt.Errorf("sync update: %w", err)
	}
	if len(changes) > 0 {
		entry := store.TicketHistory{
			TicketID:   incoming.ExternalID,
			TenantID:   incoming.TenantID,
			Action:     store.ActionUpdated,
			Changes:    changes,
			RecordedAt: e.now(),
		}
		if err := e.history.Append(ctx, entry); err != nil {
			return Result{}, fmt.Errorf("sync update history: %w", err)
		}
	}

	fields := make([]string, 0, len(changes))
	for f := range changes {
		fields = append(fields, f)
	}
	metrics.IncTicketSynced("updated")
	e.log.Debug().
		Str("event", "sync.updated").
		Str("tenant_id", incoming.TenantID).
		Str("external_id", incoming.ExternalID).
		Strs("fields", fields).
		Msg("ticket updated")
	return Result{Action: ActionUpdated, TicketID: incoming.ExternalID, Urgency: incoming.Urgency, Changes: fields}, nil
}

// SweepDeleted soft-deletes tickets created inside [from, to] that are
// absent from seen, recording a deleted history row per ticket. Returns the
// external IDs that were marked.
func (e *Engine) SweepDeleted(ctx context.Context, tenantID string, seen []string, from, to time.Time) ([]string, error) {
	now := e.now()
	ids, err := e.tickets.SoftDeleteMissing(ctx, tenantID, seen, from, to, now)
	if err != nil {
		return nil, fmt.Errorf("deletion sweep: %w", err)
	}

	for _, id := range ids {
		entry := store.TicketHistory{
			TicketID:   id,
			TenantID:   tenantID,
			Action:     store.ActionDeleted,
			RecordedAt: now,
		}
		if err := e.history.Append(ctx, entry); err != nil {
			return ids, fmt.Errorf("sweep history: %w", err)
		}
		metrics.IncTicketSynced("deleted")
	}

	if len(ids) > 0 {
		e.log.Info().
			Str("event", "sync.swept").
			Str("tenant_id", tenantID).
			Int("count", len(ids)).
			Msg("soft-deleted tickets missing upstream")
	}
	return ids, nil
}

func (e *Engine) buildTicket(tenantID string, ext source.Ticket, cls classify.Result) store.Ticket {
	createdAt := ext.CreatedAt
	if createdAt.IsZero() {
		createdAt = e.now()
	}
	updatedAt := ext.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = e.now()
	}
	return store.Ticket{
		ExternalID:     ext.ID,
		TenantID:       tenantID,
		CustomerID:     ext.CustomerID,
		Source:         ext.Source,
		Subject:        ext.Subject,
		Message:        ext.Message,
		Status:         ext.Status,
		Urgency:        cls.Urgency,
		Sentiment:      cls.Sentiment,
		RequiresAction: cls.RequiresAction,
		CreatedAt:      createdAt,
		UpdatedAt:      updatedAt,
	}
}

// diff compares the externally derived fields of two ticket states.
func diff(prev, next store.Ticket) map[string]store.FieldChange {
	changes := make(map[string]store.FieldChange)
	add := func(field string, oldV, newV any) {
		if oldV != newV {
			changes[field] = store.FieldChange{Old: oldV, New: newV}
		}
	}
	add("subject", prev.Subject, next.Subject)
	add("message", prev.Message, next.Message)
	add("status", prev.Status, next.Status)
	add("urgency", prev.Urgency, next.Urgency)
	add("sentiment", prev.Sentiment, next.Sentiment)
	add("requires_action", prev.RequiresAction, next.RequiresAction)
	add("customer_id", prev.CustomerID, next.CustomerID)
	add("source", prev.Source, next.Source)
	return changes
}
