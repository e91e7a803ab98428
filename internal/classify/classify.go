// SPDX-License-Identifier: MIT

// Package classify assigns urgency, sentiment and actionability to tickets
// using keyword rules over the case-folded subject and message. It is pure
// and never fails; the keyword lists are data, not design.
package classify

import "strings"

// Urgency levels.
const (
	UrgencyHigh   = "high"
	UrgencyMedium = "medium"
	UrgencyLow    = "low"
)

// Sentiment values.
const (
	SentimentNegative = "negative"
	SentimentNeutral  = "neutral"
	SentimentPositive = "positive"
)

// Result is the classifier output for one ticket.
type Result struct {
	Urgency        string
	Sentiment      string
	RequiresAction bool
}

// Classify derives classification from subject and message. High urgency
// always implies requires_action.
func Classify(subject, message string) Result {
	text := strings.ToLower(subject + " " + message)

	urgency := UrgencyLow
	switch {
	case containsAny(text, highUrgencyKeywords):
		urgency = UrgencyHigh
	case containsAny(text, mediumUrgencyKeywords):
		urgency = UrgencyMedium
	}

	sentiment := SentimentNeutral
	switch {
	case containsAny(text, negativeKeywords):
		sentiment = SentimentNegative
	case containsAny(text, positiveKeywords):
		sentiment = SentimentPositive
	}

	requiresAction := urgency == UrgencyHigh || containsAny(text, actionKeywords)

	return Result{
		Urgency:        urgency,
		Sentiment:      sentiment,
		RequiresAction: requiresAction,
	}
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}
