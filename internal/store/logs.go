// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// LogStore is the typed gateway to the ingestion_logs collection.
type LogStore struct {
	col *mongo.Collection
}

// Append writes one audit row. Logs are append-only.
func (l *LogStore) Append(ctx context.Context, entry IngestionLog) error {
	if _, err := l.col.InsertOne(ctx, entry); err != nil {
		return fmt.Errorf("append ingestion log: %w", err)
	}
	return nil
}

// ListByTenant returns up to limit log rows for a tenant, newest first.
func (l *LogStore) ListByTenant(ctx context.Context, tenantID string, limit int) ([]IngestionLog, error) {
	if limit < 1 || limit > 200 {
		limit = 50
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "started_at", Value: -1}}).
		SetLimit(int64(limit))

	cur, err := l.col.Find(ctx, bson.D{{Key: "tenant_id", Value: tenantID}}, opts)
	if err != nil {
		return nil, fmt.Errorf("list ingestion logs: %w", err)
	}
	defer cur.Close(ctx)

	logs := make([]IngestionLog, 0, limit)
	if err := cur.All(ctx, &logs); err != nil {
		return nil, fmt.Errorf("decode ingestion logs: %w", err)
	}
	return logs, nil
}
