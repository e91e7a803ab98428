// SPDX-License-Identifier: MIT

// Package analytics computes the tenant dashboard in a single database-side
// aggregation. The contract is zero application-side iteration over ticket
// documents: one $facet round-trip produces every metric.
package analytics

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.mongodb.org/mongo-driver/mongo"

	"github.com/ticketd/ticketd/internal/log"
	"github.com/ticketd/ticketd/internal/metrics"
	"github.com/ticketd/ticketd/internal/store"
)

// DefaultWindow is applied when the caller gives no date range.
const DefaultWindow = 60 * 24 * time.Hour

// SlowThreshold marks a pipeline execution as over budget.
const SlowThreshold = 2 * time.Second

// Aggregator runs one pipeline and decodes the single result document.
type Aggregator interface {
	Aggregate(ctx context.Context, pipeline mongo.Pipeline, out any) error
}

// HourBucket is one hour of the trailing-24h trend.
type HourBucket struct {
	Hour  string `json:"hour"`
	Count int    `json:"count"`
}

// AtRiskCustomer is a customer with repeated high-urgency tickets in window.
type AtRiskCustomer struct {
	CustomerID       string   `json:"customer_id"`
	HighUrgencyCount int      `json:"high_urgency_count"`
	TicketIDs        []string `json:"ticket_ids"`
}

// Stats is the full dashboard payload.
type Stats struct {
	TotalTickets           int              `json:"total_tickets"`
	ByStatus               map[string]int   `json:"by_status"`
	UrgencyHighRatio       float64          `json:"urgency_high_ratio"`
	NegativeSentimentRatio float64          `json:"negative_sentiment_ratio"`
	HourlyTrend            []HourBucket     `json:"hourly_trend"`
	TopKeywords            []string         `json:"top_keywords"`
	AtRiskCustomers        []AtRiskCustomer `json:"at_risk_customers"`
	Elapsed                time.Duration    `json:"-"`
}

// Service computes tenant statistics.
type Service struct {
	agg Aggregator
	now func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock injects a time source for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func New(agg Aggregator, opts ...Option) *Service {
	s := &Service{agg: agg, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// facet sub-document shapes as Mongo returns them.
type countByKey struct {
	ID    string `bson:"_id"`
	Count int    `bson:"count"`
}

type facetResult struct {
	Total []struct {
		Count int `bson:"count"`
	} `bson:"total"`
	ByStatus       []countByKey `bson:"by_status"`
	UrgencyStats   []countByKey `bson:"urgency_stats"`
	SentimentStats []countByKey `bson:"sentiment_stats"`
	HourlyTrend    []countByKey `bson:"hourly_trend"`
	Keywords       []countByKey `bson:"keywords"`
	AtRisk         []struct {
		ID               string   `bson:"_id"`
		HighUrgencyCount int      `bson:"high_urgency_count"`
		TicketIDs        []string `bson:"ticket_ids"`
	} `bson:"at_risk"`
}

// ComputeStats runs the dashboard pipeline for a tenant. Zero from/to values
// default to the trailing 60 days; the hourly trend is always the trailing
// 24 hours regardless of window. An empty result set yields zeros.
func (s *Service) ComputeStats(ctx context.Context, tenantID string, from, to time.Time) (*Stats, error) {
	now := s.now().UTC()
	if to.IsZero() {
		to = now
	}
	if from.IsZero() {
		from = to.Add(-DefaultWindow)
	}

	start := time.Now()
	pipeline := buildPipeline(tenantID, from, to, now)

	var result facetResult
	err := s.agg.Aggregate(ctx, pipeline, &result)
	elapsed := time.Since(start)
	metrics.RecordStatsDuration(elapsed.Seconds())

	if errors.Is(err, store.ErrNotFound) {
		return emptyStats(elapsed), nil
	}
	if err != nil {
		return nil, fmt.Errorf("stats pipeline: %w", err)
	}
	if elapsed > SlowThreshold {
		logger := log.WithComponentFromContext(ctx, "analytics")
		logger.Warn().
			Str("event", "stats.slow").
			Str("tenant_id", tenantID).
			Dur("elapsed", elapsed).
			Msg("stats pipeline exceeded latency budget")
	}

	return shapeStats(&result, elapsed), nil
}

func shapeStats(result *facetResult, elapsed time.Duration) *Stats {
	stats := emptyStats(elapsed)

	if len(result.Total) > 0 {
		stats.TotalTickets = result.Total[0].Count
	}
	for _, row := range result.ByStatus {
		stats.ByStatus[row.ID] = row.Count
	}

	if stats.TotalTickets > 0 {
		for _, row := range result.UrgencyStats {
			if row.ID == "high" {
				stats.UrgencyHighRatio = round3(float64(row.Count) / float64(stats.TotalTickets))
			}
		}
		for _, row := range result.SentimentStats {
			if row.ID == "negative" {
				stats.NegativeSentimentRatio = round3(float64(row.Count) / float64(stats.TotalTickets))
			}
		}
	}

	for _, row := range result.HourlyTrend {
		stats.HourlyTrend = append(stats.HourlyTrend, HourBucket{Hour: row.ID, Count: row.Count})
	}
	for _, row := range result.Keywords {
		stats.TopKeywords = append(stats.TopKeywords, row.ID)
	}
	for _, row := range result.AtRisk {
		stats.AtRiskCustomers = append(stats.AtRiskCustomers, AtRiskCustomer{
			CustomerID:       row.ID,
			HighUrgencyCount: row.HighUrgencyCount,
			TicketIDs:        row.TicketIDs,
		})
	}
	return stats
}

func emptyStats(elapsed time.Duration) *Stats {
	return &Stats{
		ByStatus:        map[string]int{},
		HourlyTrend:     []HourBucket{},
		TopKeywords:     []string{},
		AtRiskCustomers: []AtRiskCustomer{},
		Elapsed:         elapsed,
	}
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
