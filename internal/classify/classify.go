// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package classify maps raw user text to a query intent category used to
// decide whether a turn warrants web search.
package classify

import "regexp"

// =============================================================================
// QUERY TYPES
// =============================================================================

// QueryType is the closed set of query intent categories.
type QueryType int

const (
	// ExplicitSearch - the user literally asked to search.
	ExplicitSearch QueryType = iota

	// RealTimeData - weather, stocks, scores; data that changes constantly.
	RealTimeData

	// VeryRecentEvent - events from roughly the past 24-48 hours.
	VeryRecentEvent

	// CurrentEvent - recent developments, the past week.
	CurrentEvent

	// GeneralCurrent - current state of things, past month or year.
	GeneralCurrent

	// CreativeTask - writing and brainstorming; no external info needed.
	CreativeTask

	// Conceptual - how/why questions, definitions, explanations.
	Conceptual

	// Conversational - greetings and self-referential chat.
	Conversational

	// Factual - general knowledge, the default when nothing else matches.
	Factual
)

// String returns the category name.
func (t QueryType) String() string {
	switch t {
	case ExplicitSearch:
		return "explicit-search"
	case RealTimeData:
		return "real-time-data"
	case VeryRecentEvent:
		return "very-recent-event"
	case CurrentEvent:
		return "current-event"
	case GeneralCurrent:
		return "general-current"
	case CreativeTask:
		return "creative"
	case Conceptual:
		return "conceptual"
	case Conversational:
		return "conversational"
	case Factual:
		return "factual"
	default:
		return "unknown"
	}
}

// Describe returns a human-readable description for debug output.
func Describe(t QueryType) string {
	switch t {
	case ExplicitSearch:
		return "Explicit search request"
	case RealTimeData:
		return "Real-time data query"
	case VeryRecentEvent:
		return "Very recent event (24-48 hours)"
	case CurrentEvent:
		return "Current event (past week)"
	case GeneralCurrent:
		return "General current information"
	case CreativeTask:
		return "Creative task"
	case Conceptual:
		return "Conceptual question"
	case Conversational:
		return "Conversational"
	case Factual:
		return "Factual question"
	default:
		return "Unknown"
	}
}

// =============================================================================
// RULE TABLE
// =============================================================================

// rule pairs a category with its trigger pattern. Rules are evaluated in
// slice order and the first match wins, so the table is a priority list:
// a query containing both a creative verb and a recency keyword always
// resolves to whichever rule sits higher. Keep this a slice, never a map.
type rule struct {
	queryType QueryType
	pattern   *regexp.Regexp
}

var rules = []rule{
	{ExplicitSearch, regexp.MustCompile(`(?i)\b(search|look\s*up|find|google)\s+(for|about|information)?\b`)},
	{RealTimeData, regexp.MustCompile(`(?i)\b(weather|temperature|forecast|stock\s*price|score|game\s*result)\b`)},
	{VeryRecentEvent, regexp.MustCompile(`(?i)\b(today|yesterday|tonight|this\s*morning|breaking|just\s*announced)\b`)},
	{CurrentEvent, regexp.MustCompile(`(?i)\b(latest|recent|new|this\s*week|currently)\b`)},
	{GeneralCurrent, regexp.MustCompile(`(?i)\b(current|now|nowadays|2025)\b`)},
	{CreativeTask, regexp.MustCompile(`(?i)\b(write|create|generate|compose|draft|brainstorm|imagine)\b`)},
	{Conceptual, regexp.MustCompile(`(?i)\b(how\s+does|how\s+do|what\s+is|why\s+is|why\s+do|explain|define|difference\s+between)\b`)},
	{Conversational, regexp.MustCompile(`(?i)\b(hello|hi|hey|what\s+can\s+you|who\s+are\s+you|help\s+me|thank|thanks)\b`)},
}

// =============================================================================
// CLASSIFICATION
// =============================================================================

// Classify returns the intent category for a query. Evaluation is a
// single pass over the ordered rule table; no rule matching means Factual.
func Classify(query string) QueryType {
	for _, r := range rules {
		if r.pattern.MatchString(query) {
			return r.queryType
		}
	}
	return Factual
}

// ShouldForceSearch reports whether the category definitely needs current
// web information.
func ShouldForceSearch(t QueryType) bool {
	switch t {
	case ExplicitSearch, RealTimeData, VeryRecentEvent:
		return true
	}
	return false
}

// ShouldDisableSearch reports whether the category definitely does not
// need web search. CurrentEvent and GeneralCurrent are deliberately in
// neither set; policy for those is left to the caller.
func ShouldDisableSearch(t QueryType) bool {
	switch t {
	case Conceptual, CreativeTask, Conversational, Factual:
		return true
	}
	return false
}
