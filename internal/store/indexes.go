// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// EnsureIndexes provisions the fixed index set. Every production query is
// tenant-scoped, so tenant_id leads each compound index.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	ticketIndexes := []mongo.IndexModel{
		{
			// Idempotency: one document per (tenant, external id).
			Keys:    bson.D{{Key: "tenant_id", Value: 1}, {Key: "external_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("unique_tenant_external_id"),
		},
		{
			Keys:    bson.D{{Key: "tenant_id", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetName("tenant_created_at"),
		},
		{
			Keys: bson.D{
				{Key: "tenant_id", Value: 1},
				{Key: "status", Value: 1},
				{Key: "created_at", Value: -1},
			},
			Options: options.Index().SetName("tenant_status_created"),
		},
		{
			Keys: bson.D{
				{Key: "tenant_id", Value: 1},
				{Key: "urgency", Value: 1},
				{Key: "created_at", Value: -1},
			},
			Options: options.Index().SetName("tenant_urgency_created"),
		},
		{
			Keys:    bson.D{{Key: "tenant_id", Value: 1}, {Key: "deleted_at", Value: 1}},
			Options: options.Index().SetName("tenant_deleted_at"),
		},
		{
			// Covers the match+group phase of the stats pipeline.
			Keys: bson.D{
				{Key: "tenant_id", Value: 1},
				{Key: "deleted_at", Value: 1},
				{Key: "created_at", Value: -1},
				{Key: "status", Value: 1},
				{Key: "urgency", Value: 1},
			},
			Options: options.Index().SetName("stats_optimized"),
		},
	}
	if _, err := s.db.Collection(colTickets).Indexes().CreateMany(ctx, ticketIndexes); err != nil {
		return fmt.Errorf("tickets indexes: %w", err)
	}

	jobIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "job_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("job_id_unique"),
		},
		{
			Keys:    bson.D{{Key: "tenant_id", Value: 1}, {Key: "status", Value: 1}},
			Options: options.Index().SetName("tenant_status"),
		},
		{
			Keys:    bson.D{{Key: "started_at", Value: -1}},
			Options: options.Index().SetName("started_at"),
		},
	}
	if _, err := s.db.Collection(colJobs).Indexes().CreateMany(ctx, jobIndexes); err != nil {
		return fmt.Errorf("jobs indexes: %w", err)
	}

	logIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "tenant_id", Value: 1}, {Key: "started_at", Value: -1}},
			Options: options.Index().SetName("tenant_started"),
		},
		{
			Keys:    bson.D{{Key: "job_id", Value: 1}},
			Options: options.Index().SetName("job_id"),
		},
	}
	if _, err := s.db.Collection(colLogs).Indexes().CreateMany(ctx, logIndexes); err != nil {
		return fmt.Errorf("logs indexes: %w", err)
	}

	historyIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "ticket_id", Value: 1}, {Key: "recorded_at", Value: -1}},
			Options: options.Index().SetName("ticket_recorded"),
		},
		{
			Keys:    bson.D{{Key: "tenant_id", Value: 1}, {Key: "recorded_at", Value: -1}},
			Options: options.Index().SetName("tenant_recorded"),
		},
	}
	if _, err := s.db.Collection(colHistory).Indexes().CreateMany(ctx, historyIndexes); err != nil {
		return fmt.Errorf("history indexes: %w", err)
	}

	lockIndexes := []mongo.IndexModel{
		{
			// The unique index is the serialization point for acquisition.
			Keys:    bson.D{{Key: "resource_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("resource_id_unique"),
		},
		{
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetName("expires_at"),
		},
	}
	if _, err := s.db.Collection(colLocks).Indexes().CreateMany(ctx, lockIndexes); err != nil {
		return fmt.Errorf("locks indexes: %w", err)
	}

	return nil
}
