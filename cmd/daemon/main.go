// SPDX-License-Identifier: MIT

// Command daemon runs the ticket ingestion and analytics service.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ticketd/ticketd/internal/analytics"
	"github.com/ticketd/ticketd/internal/api"
	"github.com/ticketd/ticketd/internal/audit"
	"github.com/ticketd/ticketd/internal/config"
	"github.com/ticketd/ticketd/internal/health"
	"github.com/ticketd/ticketd/internal/ingest"
	"github.com/ticketd/ticketd/internal/lock"
	"github.com/ticketd/ticketd/internal/log"
	"github.com/ticketd/ticketd/internal/notify"
	"github.com/ticketd/ticketd/internal/ratelimit"
	"github.com/ticketd/ticketd/internal/resilience"
	"github.com/ticketd/ticketd/internal/source"
	"github.com/ticketd/ticketd/internal/store"
	"github.com/ticketd/ticketd/internal/syncengine"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "ticketd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.FromEnv()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log.Configure(log.Config{Level: cfg.LogLevel})
	logger := log.WithComponent("daemon")
	logger.Info().
		Str("event", "daemon.start").
		Str("version", version).
		Str("commit", commit).
		Str("listen", cfg.ListenAddr).
		Msg("starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.Connect(ctx, store.Options{
		URL:           cfg.MongoURL,
		Database:      cfg.DatabaseName,
		SocketTimeout: cfg.StoreTimeout,
	})
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := st.Close(closeCtx); err != nil {
			logger.Warn().Str("event", "daemon.store_close_failed").Err(err).Msg("store close failed")
		}
	}()

	// Index provisioning is a startup precondition: idempotency and lock
	// correctness depend on the unique indexes.
	if err := st.EnsureIndexes(ctx); err != nil {
		return fmt.Errorf("indexes: %w", err)
	}

	locks := lock.NewManager(st.Locks(), lock.WithTTL(cfg.LockTTL))
	limiter := ratelimit.New(cfg.RateLimitPerMinute, ratelimit.DefaultWindow)
	breaker := resilience.Get("notify")

	fetcher := source.New(cfg.SourceBaseURL, limiter, source.WithTimeout(cfg.FetchTimeout))

	notifier := notify.New(notify.Config{
		URL:       cfg.NotifyURL,
		Workers:   cfg.NotifyWorkers,
		QueueSize: cfg.NotifyQueueSize,
		Timeout:   cfg.NotifyTimeout,
	}, limiter, breaker)
	notifier.Start()
	defer notifier.Stop()

	engine := syncengine.New(st.Tickets(), st.History())
	recorder := audit.NewRecorder(st.Logs())

	orchestrator := ingest.New(ingest.Deps{
		Locks:    locks,
		Source:   fetcher,
		Sync:     engine,
		Notifier: notifier,
		Jobs:     st.Jobs(),
		Audit:    recorder,
	})

	stats := analytics.New(st.Tickets())

	healthMgr := health.NewManager(version)
	healthMgr.RegisterChecker(health.NewStoreChecker(st.Ping))
	healthMgr.RegisterChecker(health.NewSourceChecker(cfg.SourceBaseURL))

	server := api.NewServer(api.Deps{
		Ingest:  orchestrator,
		Locks:   locks,
		Tickets: st.Tickets(),
		History: st.History(),
		Logs:    st.Logs(),
		Stats:   stats,
		Limiter: limiter,
		Health:  healthMgr,
	})

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Expired lock documents are logically free but still occupy the
	// collection; sweep them periodically.
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n, err := locks.CleanupExpired(ctx); err != nil {
					logger.Warn().Str("event", "daemon.lock_cleanup_failed").Err(err).Msg("lock cleanup failed")
				} else if n > 0 {
					logger.Debug().Str("event", "daemon.lock_cleanup").Int64("removed", n).Msg("expired locks removed")
				}
			}
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("event", "daemon.listening").Str("addr", cfg.ListenAddr).Msg("http server up")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info().Str("event", "daemon.shutdown").Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
