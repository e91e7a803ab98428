// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ErrNotFound is returned when a lookup matches no document.
var ErrNotFound = errors.New("store: not found")

// TicketStore is the typed gateway to the tickets collection.
type TicketStore struct {
	col *mongo.Collection
}

// ListFilter narrows a tenant-scoped ticket listing.
type ListFilter struct {
	TenantID string
	Status   string
	Urgency  string
	Source   string
	Page     int
	PageSize int
}

func notDeleted() bson.E {
	return bson.E{Key: "deleted_at", Value: bson.D{{Key: "$exists", Value: false}}}
}

// FindByExternalID returns the stored ticket regardless of soft-delete
// state. This is the sync engine's change-detection lookup.
func (t *TicketStore) FindByExternalID(ctx context.Context, tenantID, externalID string) (*Ticket, error) {
	filter := bson.D{
		{Key: "tenant_id", Value: tenantID},
		{Key: "external_id", Value: externalID},
	}
	var doc Ticket
	err := t.col.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find ticket: %w", err)
	}
	return &doc, nil
}

// Upsert converges the (tenant_id, external_id) document to the given state.
// Returns true when a new document was inserted. A lost upsert race against
// the unique index is resolved by a single retry, which then matches the
// winner's document.
func (t *TicketStore) Upsert(ctx context.Context, ticket Ticket) (bool, error) {
	filter := bson.D{
		{Key: "tenant_id", Value: ticket.TenantID},
		{Key: "external_id", Value: ticket.ExternalID},
	}
	update := bson.D{
		{Key: "$set", Value: bson.D{
			{Key: "customer_id", Value: ticket.CustomerID},
			{Key: "source", Value: ticket.Source},
			{Key: "subject", Value: ticket.Subject},
			{Key: "message", Value: ticket.Message},
			{Key: "status", Value: ticket.Status},
			{Key: "urgency", Value: ticket.Urgency},
			{Key: "sentiment", Value: ticket.Sentiment},
			{Key: "requires_action", Value: ticket.RequiresAction},
			{Key: "updated_at", Value: ticket.UpdatedAt},
		}},
		{Key: "$setOnInsert", Value: bson.D{
			{Key: "tenant_id", Value: ticket.TenantID},
			{Key: "external_id", Value: ticket.ExternalID},
			{Key: "created_at", Value: ticket.CreatedAt},
		}},
	}

	res, err := t.col.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if mongo.IsDuplicateKeyError(err) {
		res, err = t.col.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	}
	if err != nil {
		return false, fmt.Errorf("upsert ticket: %w", err)
	}
	return res.UpsertedCount > 0, nil
}

// Get returns a single non-deleted ticket.
func (t *TicketStore) Get(ctx context.Context, tenantID, externalID string) (*Ticket, error) {
	filter := bson.D{
		{Key: "tenant_id", Value: tenantID},
		{Key: "external_id", Value: externalID},
		notDeleted(),
	}
	var doc Ticket
	err := t.col.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get ticket: %w", err)
	}
	return &doc, nil
}

func listQuery(f ListFilter) bson.D {
	query := bson.D{
		{Key: "tenant_id", Value: f.TenantID},
		notDeleted(),
	}
	if f.Status != "" {
		query = append(query, bson.E{Key: "status", Value: f.Status})
	}
	if f.Urgency != "" {
		query = append(query, bson.E{Key: "urgency", Value: f.Urgency})
	}
	if f.Source != "" {
		query = append(query, bson.E{Key: "source", Value: f.Source})
	}
	return query
}

// List returns a page of non-deleted tickets, newest first.
func (t *TicketStore) List(ctx context.Context, f ListFilter) ([]Ticket, error) {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 || f.PageSize > 100 {
		f.PageSize = 20
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetSkip(int64((f.Page - 1) * f.PageSize)).
		SetLimit(int64(f.PageSize))

	cur, err := t.col.Find(ctx, listQuery(f), opts)
	if err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}
	defer cur.Close(ctx)

	tickets := make([]Ticket, 0, f.PageSize)
	if err := cur.All(ctx, &tickets); err != nil {
		return nil, fmt.Errorf("decode tickets: %w", err)
	}
	return tickets, nil
}

// ListUrgent returns up to 100 high-urgency non-deleted tickets, newest first.
func (t *TicketStore) ListUrgent(ctx context.Context, tenantID string) ([]Ticket, error) {
	filter := bson.D{
		{Key: "tenant_id", Value: tenantID},
		{Key: "urgency", Value: "high"},
		notDeleted(),
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(100)

	cur, err := t.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("list urgent tickets: %w", err)
	}
	defer cur.Close(ctx)

	var tickets []Ticket
	if err := cur.All(ctx, &tickets); err != nil {
		return nil, fmt.Errorf("decode urgent tickets: %w", err)
	}
	return tickets, nil
}

// SoftDeleteMissing marks non-deleted tickets inside the given time window
// whose external IDs are absent from seen, setting deleted_at to now.
// Returns the external IDs that were marked.
func (t *TicketStore) SoftDeleteMissing(ctx context.Context, tenantID string, seen []string, from, to, now time.Time) ([]string, error) {
	if seen == nil {
		seen = []string{}
	}
	filter := bson.D{
		{Key: "tenant_id", Value: tenantID},
		{Key: "external_id", Value: bson.D{{Key: "$nin", Value: seen}}},
		notDeleted(),
		{Key: "created_at", Value: bson.D{
			{Key: "$gte", Value: from},
			{Key: "$lte", Value: to},
		}},
	}

	opts := options.Find().SetProjection(bson.D{{Key: "external_id", Value: 1}})
	cur, err := t.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find sweep candidates: %w", err)
	}
	defer cur.Close(ctx)

	var rows []struct {
		ExternalID string `bson:"external_id"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("decode sweep candidates: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ExternalID)
	}

	updateFilter := bson.D{
		{Key: "tenant_id", Value: tenantID},
		{Key: "external_id", Value: bson.D{{Key: "$in", Value: ids}}},
		notDeleted(),
	}
	update := bson.D{{Key: "$set", Value: bson.D{{Key: "deleted_at", Value: now}}}}
	if _, err := t.col.UpdateMany(ctx, updateFilter, update); err != nil {
		return nil, fmt.Errorf("soft delete: %w", err)
	}
	return ids, nil
}

// Aggregate runs an aggregation pipeline on the tickets collection and
// decodes the single result document into out.
func (t *TicketStore) Aggregate(ctx context.Context, pipeline mongo.Pipeline, out any) error {
	cur, err := t.col.Aggregate(ctx, pipeline)
	if err != nil {
		return fmt.Errorf("aggregate: %w", err)
	}
	defer cur.Close(ctx)

	if !cur.Next(ctx) {
		if err := cur.Err(); err != nil {
			return fmt.Errorf("aggregate cursor: %w", err)
		}
		return ErrNotFound
	}
	if err := cur.Decode(out); err != nil {
		return fmt.Errorf("decode aggregate result: %w", err)
	}
	return nil
}
