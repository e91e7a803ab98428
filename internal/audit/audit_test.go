// SPDX-License-Identifier: MIT

package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ticketd/ticketd/internal/store"
)

type fakeSink struct {
	entries []store.IngestionLog
	err     error
}

func (s *fakeSink) Append(_ context.Context, entry store.IngestionLog) error {
	if s.err != nil {
		return s.err
	}
	s.entries = append(s.entries, entry)
	return nil
}

func TestRecordPersistsRow(t *testing.T) {
	sink := &fakeSink{}
	rec := NewRecorder(sink)

	started := time.Date(2026, 8, 10, 9, 0, 0, 0, time.UTC)
	rec.Record(context.Background(), store.IngestionLog{
		TenantID:    "acme",
		JobID:       "job-1",
		Status:      store.LogPartial,
		StartedAt:   started,
		EndedAt:     started.Add(time.Minute),
		NewIngested: 12,
		Updated:     3,
		Errors:      1,
	})

	require.Len(t, sink.entries, 1)
	entry := sink.entries[0]
	assert.Equal(t, "job-1", entry.JobID)
	assert.Equal(t, store.LogPartial, entry.Status)
	assert.Equal(t, 12, entry.NewIngested)
}

func TestRecordFillsEndedAt(t *testing.T) {
	sink := &fakeSink{}
	rec := NewRecorder(sink)

	rec.Record(context.Background(), store.IngestionLog{JobID: "job-2", Status: store.LogFailed})

	require.Len(t, sink.entries, 1)
	assert.False(t, sink.entries[0].EndedAt.IsZero())
}

func TestRecordSwallowsSinkFailure(t *testing.T) {
	sink := &fakeSink{err: errors.New("db down")}
	rec := NewRecorder(sink)

	// Must not panic or propagate: teardown depends on it.
	rec.Record(context.Background(), store.IngestionLog{JobID: "job-3", Status: store.LogFailed})
	assert.Empty(t, sink.entries)
}
