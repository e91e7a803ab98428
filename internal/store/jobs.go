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

// JobStore is the typed gateway to the ingestion_jobs collection.
type JobStore struct {
	col *mongo.Collection
}

// Insert writes a new job row.
func (j *JobStore) Insert(ctx context.Context, job IngestionJob) error {
	if _, err := j.col.InsertOne(ctx, job); err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// UpdateProgress records paging progress for a running job.
func (j *JobStore) UpdateProgress(ctx context.Context, jobID string, totalPages, processedPages, progress int) error {
	update := bson.D{{Key: "$set", Value: bson.D{
		{Key: "total_pages", Value: totalPages},
		{Key: "processed_pages", Value: processedPages},
		{Key: "progress", Value: progress},
	}}}
	if _, err := j.col.UpdateOne(ctx, bson.D{{Key: "job_id", Value: jobID}}, update); err != nil {
		return fmt.Errorf("update job progress: %w", err)
	}
	return nil
}

// Finalize moves a running job to a terminal state. Terminal states are
// immutable: the filter only matches jobs still in running state.
func (j *JobStore) Finalize(ctx context.Context, jobID, status string, endedAt time.Time) error {
	progressUpdate := bson.D{
		{Key: "status", Value: status},
		{Key: "ended_at", Value: endedAt},
	}
	if status == JobCompleted {
		progressUpdate = append(progressUpdate, bson.E{Key: "progress", Value: 100})
	}
	filter := bson.D{
		{Key: "job_id", Value: jobID},
		{Key: "status", Value: JobRunning},
	}
	if _, err := j.col.UpdateOne(ctx, filter, bson.D{{Key: "$set", Value: progressUpdate}}); err != nil {
		return fmt.Errorf("finalize job: %w", err)
	}
	return nil
}

// FindByJobID returns the job row or ErrNotFound.
func (j *JobStore) FindByJobID(ctx context.Context, jobID string) (*IngestionJob, error) {
	var job IngestionJob
	err := j.col.FindOne(ctx, bson.D{{Key: "job_id", Value: jobID}}).Decode(&job)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find job: %w", err)
	}
	return &job, nil
}

// FindRunningByTenant returns the newest running job for the tenant, or
// ErrNotFound when the tenant is idle.
func (j *JobStore) FindRunningByTenant(ctx context.Context, tenantID string) (*IngestionJob, error) {
	filter := bson.D{
		{Key: "tenant_id", Value: tenantID},
		{Key: "status", Value: JobRunning},
	}
	opts := options.FindOne().SetSort(bson.D{{Key: "started_at", Value: -1}})

	var job IngestionJob
	err := j.col.FindOne(ctx, filter, opts).Decode(&job)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find running job: %w", err)
	}
	return &job, nil
}
