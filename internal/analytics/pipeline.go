// SPDX-License-Identifier: MIT

package analytics

import (
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// Keyword extraction parameters.
const (
	keywordPattern = "^[a-z]{4,}$"
	topKeywords    = 10
	atRiskMinHigh  = 2
	atRiskLimit    = 10
	trendHours     = 24
)

var stopwords = bson.A{
	"the", "a", "an", "and", "or", "but", "in", "on", "at", "to",
	"for", "of", "with", "is", "are", "was", "were", "this", "that",
	"have", "has", "",
}

// buildPipeline assembles the single $match + $facet dashboard pipeline.
// The match stage is shaped to be covered by the stats index
// (tenant_id, deleted_at, created_at, status, urgency).
func buildPipeline(tenantID string, from, to, now time.Time) mongo.Pipeline {
	match := bson.D{{Key: "$match", Value: bson.D{
		{Key: "tenant_id", Value: tenantID},
		{Key: "deleted_at", Value: bson.D{{Key: "$exists", Value: false}}},
		{Key: "created_at", Value: bson.D{
			{Key: "$gte", Value: from},
			{Key: "$lte", Value: to},
		}},
	}}}

	facet := bson.D{{Key: "$facet", Value: bson.D{
		{Key: "total", Value: bson.A{
			bson.D{{Key: "$count", Value: "count"}},
		}},
		{Key: "by_status", Value: countGroup("$status")},
		{Key: "urgency_stats", Value: countGroup("$urgency")},
		{Key: "sentiment_stats", Value: countGroup("$sentiment")},
		{Key: "hourly_trend", Value: hourlyTrend(now)},
		{Key: "keywords", Value: keywordFacet()},
		{Key: "at_risk", Value: atRiskFacet()},
	}}}

	return mongo.Pipeline{match, facet}
}

func countGroup(field string) bson.A {
	return bson.A{
		bson.D{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: field},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
	}
}

// hourlyTrend buckets the trailing 24 hours by hour, independent of the
// caller's window.
func hourlyTrend(now time.Time) bson.A {
	return bson.A{
		bson.D{{Key: "$match", Value: bson.D{
			{Key: "created_at", Value: bson.D{{Key: "$gte", Value: now.Add(-trendHours * time.Hour)}}},
		}}},
		bson.D{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: bson.D{{Key: "$dateToString", Value: bson.D{
				{Key: "format", Value: "%Y-%m-%d %H:00:00"},
				{Key: "date", Value: "$created_at"},
			}}}},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
		bson.D{{Key: "$sort", Value: bson.D{{Key: "_id", Value: 1}}}},
		bson.D{{Key: "$limit", Value: trendHours}},
	}
}

// keywordFacet tokenizes subject and message together, keeps lower-case
// words of at least four letters that are not stopwords, and returns the
// ten most frequent.
func keywordFacet() bson.A {
	return bson.A{
		bson.D{{Key: "$project", Value: bson.D{
			{Key: "words", Value: bson.D{{Key: "$split", Value: bson.A{
				bson.D{{Key: "$toLower", Value: bson.D{{Key: "$concat", Value: bson.A{
					"$subject", " ", "$message",
				}}}}},
				" ",
			}}}},
		}}},
		bson.D{{Key: "$unwind", Value: "$words"}},
		bson.D{{Key: "$match", Value: bson.D{
			{Key: "words", Value: bson.D{
				{Key: "$nin", Value: stopwords},
				{Key: "$regex", Value: keywordPattern},
			}},
		}}},
		bson.D{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$words"},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
		bson.D{{Key: "$sort", Value: bson.D{{Key: "count", Value: -1}}}},
		bson.D{{Key: "$limit", Value: topKeywords}},
	}
}

// atRiskFacet finds customers with at least two high-urgency tickets in
// window, most affected first, with the offending ticket IDs.
func atRiskFacet() bson.A {
	return bson.A{
		bson.D{{Key: "$match", Value: bson.D{{Key: "urgency", Value: "high"}}}},
		bson.D{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$customer_id"},
			{Key: "high_urgency_count", Value: bson.D{{Key: "$sum", Value: 1}}},
			{Key: "ticket_ids", Value: bson.D{{Key: "$push", Value: "$external_id"}}},
		}}},
		bson.D{{Key: "$match", Value: bson.D{
			{Key: "high_urgency_count", Value: bson.D{{Key: "$gte", Value: atRiskMinHigh}}},
		}}},
		bson.D{{Key: "$sort", Value: bson.D{{Key: "high_urgency_count", Value: -1}}}},
		bson.D{{Key: "$limit", Value: atRiskLimit}},
	}
}
