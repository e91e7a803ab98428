// SPDX-License-Identifier: MIT

// Package config loads service configuration from the environment with
// validated defaults. Precedence: environment > defaults.
package config

import (
	"fmt"
	"net/url"
	"time"
)

// Config holds the full runtime configuration of the daemon.
type Config struct {
	// HTTP server
	ListenAddr string

	// Document store
	MongoURL     string
	DatabaseName string

	// External collaborators
	SourceBaseURL string // paginated ticket source
	NotifyURL     string // notification egress

	// Outbound budget and resilience
	RateLimitPerMinute int
	LockTTL            time.Duration
	FetchTimeout       time.Duration
	NotifyTimeout      time.Duration
	StoreTimeout       time.Duration
	NotifyWorkers      int
	NotifyQueueSize    int

	// Logging
	LogLevel string
}

// FromEnv builds a Config from environment variables and defaults.
func FromEnv() Config {
	return Config{
		ListenAddr:         ParseString("TICKETD_LISTEN", ":8080"),
		MongoURL:           ParseString("TICKETD_MONGO_URL", "mongodb://localhost:27017"),
		DatabaseName:       ParseString("TICKETD_DB_NAME", "support_saas"),
		SourceBaseURL:      ParseString("TICKETD_SOURCE_URL", "http://localhost:9000/external/support-tickets"),
		NotifyURL:          ParseString("TICKETD_NOTIFY_URL", "http://localhost:9000/notify"),
		RateLimitPerMinute: ParseInt("TICKETD_RATE_LIMIT", 60),
		LockTTL:            ParseDuration("TICKETD_LOCK_TTL", 60*time.Second),
		FetchTimeout:       ParseDuration("TICKETD_FETCH_TIMEOUT", 15*time.Second),
		NotifyTimeout:      ParseDuration("TICKETD_NOTIFY_TIMEOUT", 10*time.Second),
		StoreTimeout:       ParseDuration("TICKETD_STORE_TIMEOUT", 5*time.Second),
		NotifyWorkers:      ParseInt("TICKETD_NOTIFY_WORKERS", 4),
		NotifyQueueSize:    ParseInt("TICKETD_NOTIFY_QUEUE", 256),
		LogLevel:           ParseString("LOG_LEVEL", "info"),
	}
}

// Validate fails fast on configuration the daemon cannot start with.
func (c Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen address is empty")
	}
	if c.DatabaseName == "" {
		return fmt.Errorf("database name is empty")
	}
	for name, raw := range map[string]string{
		"mongo URL":  c.MongoURL,
		"source URL": c.SourceBaseURL,
		"notify URL": c.NotifyURL,
	} {
		if raw == "" {
			return fmt.Errorf("%s is empty", name)
		}
	}
	for name, raw := range map[string]string{
		"source URL": c.SourceBaseURL,
		"notify URL": c.NotifyURL,
	} {
		u, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", name, raw, err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("unsupported %s scheme %q", name, u.Scheme)
		}
		if u.Host == "" {
			return fmt.Errorf("%s %q is missing host", name, raw)
		}
	}
	if c.RateLimitPerMinute <= 0 {
		return fmt.Errorf("rate limit must be positive, got %d", c.RateLimitPerMinute)
	}
	if c.LockTTL <= 0 {
		return fmt.Errorf("lock TTL must be positive, got %s", c.LockTTL)
	}
	if c.NotifyWorkers <= 0 {
		return fmt.Errorf("notify workers must be positive, got %d", c.NotifyWorkers)
	}
	if c.NotifyQueueSize <= 0 {
		return fmt.Errorf("notify queue size must be positive, got %d", c.NotifyQueueSize)
	}
	return nil
}
