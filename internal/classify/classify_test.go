// SPDX-License-Identifier: MIT

package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		subject string
		message string
		want    Result
	}{
		{
			name:    "high urgency from subject",
			subject: "URGENT: account locked",
			message: "please look at this",
			want:    Result{Urgency: UrgencyHigh, Sentiment: SentimentNeutral, RequiresAction: true},
		},
		{
			name:    "high urgency from message",
			subject: "question",
			message: "we will file a lawsuit unless this is resolved",
			want:    Result{Urgency: UrgencyHigh, Sentiment: SentimentNeutral, RequiresAction: true},
		},
		{
			name:    "medium urgency",
			subject: "billing problem",
			message: "the invoice amount shows an error",
			want:    Result{Urgency: UrgencyMedium, Sentiment: SentimentNeutral, RequiresAction: true},
		},
		{
			name:    "medium urgency without action keyword",
			subject: "billing problem",
			message: "the invoice amount looks off",
			want:    Result{Urgency: UrgencyMedium, Sentiment: SentimentNeutral, RequiresAction: false},
		},
		{
			name:    "low urgency neutral",
			subject: "feature request",
			message: "could you add a dark theme",
			want:    Result{Urgency: UrgencyLow, Sentiment: SentimentNeutral, RequiresAction: false},
		},
		{
			name:    "negative sentiment",
			subject: "disappointed with support",
			message: "this is terrible service",
			want:    Result{Urgency: UrgencyMedium, Sentiment: SentimentNegative, RequiresAction: false},
		},
		{
			name:    "positive sentiment",
			subject: "thanks",
			message: "great product, love it",
			want:    Result{Urgency: UrgencyLow, Sentiment: SentimentPositive, RequiresAction: false},
		},
		{
			name:    "negative wins over positive",
			subject: "thanks for nothing",
			message: "this is awful but thanks anyway",
			want:    Result{Urgency: UrgencyLow, Sentiment: SentimentNegative, RequiresAction: false},
		},
		{
			name:    "action keyword without urgency",
			subject: "please cancel my subscription",
			message: "no longer needed",
			want:    Result{Urgency: UrgencyLow, Sentiment: SentimentNeutral, RequiresAction: true},
		},
		{
			name:    "case folding",
			subject: "Data BREACH detected",
			message: "",
			want:    Result{Urgency: UrgencyHigh, Sentiment: SentimentNeutral, RequiresAction: true},
		},
		{
			name:    "empty input",
			subject: "",
			message: "",
			want:    Result{Urgency: UrgencyLow, Sentiment: SentimentNeutral, RequiresAction: false},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.subject, tt.message))
		})
	}
}

func TestHighUrgencyAlwaysRequiresAction(t *testing.T) {
	for _, kw := range highUrgencyKeywords {
		got := Classify(kw, "")
		assert.Equal(t, UrgencyHigh, got.Urgency, "keyword %q", kw)
		assert.True(t, got.RequiresAction, "high urgency must imply requires_action, keyword %q", kw)
	}
}
