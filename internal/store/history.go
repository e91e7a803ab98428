// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// HistoryStore is the typed gateway to the ticket_history collection.
type HistoryStore struct {
	col *mongo.Collection
}

// Append writes one change-log row. History is append-only.
func (h *HistoryStore) Append(ctx context.Context, entry TicketHistory) error {
	if _, err := h.col.InsertOne(ctx, entry); err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	return nil
}

// List returns up to limit history rows for a ticket, newest first.
func (h *HistoryStore) List(ctx context.Context, tenantID, ticketID string, limit int) ([]TicketHistory, error) {
	if limit < 1 || limit > 200 {
		limit = 50
	}
	filter := bson.D{
		{Key: "ticket_id", Value: ticketID},
		{Key: "tenant_id", Value: tenantID},
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "recorded_at", Value: -1}}).
		SetLimit(int64(limit))

	cur, err := h.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer cur.Close(ctx)

	entries := make([]TicketHistory, 0, limit)
	if err := cur.All(ctx, &entries); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}
	return entries, nil
}
