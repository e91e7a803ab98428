// SPDX-License-Identifier: MIT

package classify

// Keyword lists are domain data. Matching is substring-based on the
// case-folded concatenation of subject and message.
var (
	highUrgencyKeywords = []string{
		"urgent", "critical", "emergency", "asap", "immediately",
		"lawsuit", "legal", "lawyer", "attorney", "court",
		"refund", "chargeback", "fraud", "security breach",
		"data breach", "gdpr", "compliance", "violation",
		"outage", "down", "not working", "broken", "crashed",
	}

	mediumUrgencyKeywords = []string{
		"issue", "problem", "error", "bug", "concern",
		"complaint", "unhappy", "dissatisfied", "disappointed",
	}

	negativeKeywords = []string{
		"angry", "frustrated", "terrible", "awful", "horrible",
		"worst", "hate", "useless", "broken", "disappointed",
		"unacceptable", "poor", "bad", "annoyed", "upset",
	}

	positiveKeywords = []string{
		"thank", "thanks", "appreciate", "great", "excellent",
		"good", "happy", "satisfied", "wonderful", "love",
	}

	actionKeywords = []string{
		"refund", "cancel", "delete", "remove", "fix",
		"help", "urgent", "asap", "immediately",
		"lawsuit", "legal", "gdpr", "compliance",
		"broken", "not working", "error", "issue",
	}
)
