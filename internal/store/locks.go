// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// ErrLockHeld is returned when a lock insert loses against the unique index.
var ErrLockHeld = errors.New("store: lock already held")

// LockStore is the typed gateway to the distributed_locks collection. It
// exposes only the atomic primitives the lock manager composes; all policy
// (TTL, ownership) lives above.
type LockStore struct {
	col *mongo.Collection
}

// TakeoverExpired atomically claims an existing lock document whose lease
// has expired. Returns true when the takeover succeeded.
func (l *LockStore) TakeoverExpired(ctx context.Context, resourceID, ownerID string, now, expiresAt time.Time) (bool, error) {
	filter := bson.D{
		{Key: "resource_id", Value: resourceID},
		{Key: "expires_at", Value: bson.D{{Key: "$lt", Value: now}}},
	}
	update := bson.D{{Key: "$set", Value: bson.D{
		{Key: "owner_id", Value: ownerID},
		{Key: "acquired_at", Value: now},
		{Key: "expires_at", Value: expiresAt},
	}}}

	err := l.col.FindOneAndUpdate(ctx, filter, update).Err()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("takeover lock: %w", err)
	}
	return true, nil
}

// Insert creates a fresh lock document. The unique index on resource_id
// guarantees only one insert wins; a lost race returns ErrLockHeld.
func (l *LockStore) Insert(ctx context.Context, lock Lock) error {
	_, err := l.col.InsertOne(ctx, lock)
	if mongo.IsDuplicateKeyError(err) {
		return ErrLockHeld
	}
	if err != nil {
		return fmt.Errorf("insert lock: %w", err)
	}
	return nil
}

// RefreshOwned extends the lease iff ownerID still owns the lock. Returns
// whether the refresh took effect.
func (l *LockStore) RefreshOwned(ctx context.Context, resourceID, ownerID string, expiresAt time.Time) (bool, error) {
	filter := bson.D{
		{Key: "resource_id", Value: resourceID},
		{Key: "owner_id", Value: ownerID},
	}
	update := bson.D{{Key: "$set", Value: bson.D{{Key: "expires_at", Value: expiresAt}}}}

	res, err := l.col.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, fmt.Errorf("refresh lock: %w", err)
	}
	return res.MatchedCount > 0, nil
}

// DeleteOwned removes the lock iff ownerID owns it. Idempotent.
func (l *LockStore) DeleteOwned(ctx context.Context, resourceID, ownerID string) error {
	filter := bson.D{
		{Key: "resource_id", Value: resourceID},
		{Key: "owner_id", Value: ownerID},
	}
	if _, err := l.col.DeleteOne(ctx, filter); err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	return nil
}

// Get returns the lock document for a resource, or ErrNotFound.
func (l *LockStore) Get(ctx context.Context, resourceID string) (*Lock, error) {
	var lock Lock
	err := l.col.FindOne(ctx, bson.D{{Key: "resource_id", Value: resourceID}}).Decode(&lock)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get lock: %w", err)
	}
	return &lock, nil
}

// DeleteExpired removes all expired lock documents and returns the count.
func (l *LockStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	filter := bson.D{{Key: "expires_at", Value: bson.D{{Key: "$lt", Value: now}}}}
	res, err := l.col.DeleteMany(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("cleanup locks: %w", err)
	}
	return res.DeletedCount, nil
}
