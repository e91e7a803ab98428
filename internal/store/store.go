// SPDX-License-Identifier: MIT

// Package store is the document-store gateway: it owns the single long-lived
// connection pool, provisions the index set on startup, and exposes typed
// collection access. Raw documents never cross this package's boundary.
package store

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/ticketd/ticketd/internal/log"
)

// Collection names.
const (
	colTickets = "tickets"
	colJobs    = "ingestion_jobs"
	colLogs    = "ingestion_logs"
	colHistory = "ticket_history"
	colLocks   = "distributed_locks"
)

// Options configures the connection pool.
type Options struct {
	URL           string
	Database      string
	SocketTimeout time.Duration
}

// Store owns the Mongo client and database handle.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

// Connect establishes the connection pool and verifies reachability.
func Connect(ctx context.Context, opts Options) (*Store, error) {
	socketTimeout := opts.SocketTimeout
	if socketTimeout <= 0 {
		socketTimeout = 5 * time.Second
	}

	clientOpts := options.Client().
		ApplyURI(opts.URL).
		SetMinPoolSize(10).
		SetMaxPoolSize(50).
		SetMaxConnIdleTime(45 * time.Second).
		SetServerSelectionTimeout(5 * time.Second).
		SetConnectTimeout(10 * time.Second).
		SetSocketTimeout(socketTimeout)

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping: %w", err)
	}

	logger := log.WithComponent("store")
	logger.Info().
		Str("event", "store.connected").
		Str("database", opts.Database).
		Msg("document store connected")

	return &Store{
		client: client,
		db:     client.Database(opts.Database),
	}, nil
}

// Close drains in-flight work and releases the pool.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Ping verifies the store is reachable; used by health checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

// Tickets returns the tickets collection gateway.
func (s *Store) Tickets() *TicketStore { return &TicketStore{col: s.db.Collection(colTickets)} }

// Jobs returns the ingestion jobs collection gateway.
func (s *Store) Jobs() *JobStore { return &JobStore{col: s.db.Collection(colJobs)} }

// Logs returns the ingestion logs collection gateway.
func (s *Store) Logs() *LogStore { return &LogStore{col: s.db.Collection(colLogs)} }

// History returns the ticket history collection gateway.
func (s *Store) History() *HistoryStore { return &HistoryStore{col: s.db.Collection(colHistory)} }

// Locks returns the distributed locks collection gateway.
func (s *Store) Locks() *LockStore { return &LockStore{col: s.db.Collection(colLocks)} }
