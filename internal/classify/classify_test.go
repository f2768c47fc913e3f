// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package classify

import "testing"

// =============================================================================
// CLASSIFICATION
// =============================================================================

func TestClassify(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  QueryType
	}{
		// Explicit search requests
		{"search for", "search for latest AI news", ExplicitSearch},
		{"can you search", "can you search for iPhone 16 reviews", ExplicitSearch},
		{"look up", "look up information about quantum computing", ExplicitSearch},
		{"find information", "find information about Tesla", ExplicitSearch},
		{"please find", "please find articles about climate change", ExplicitSearch},

		// Real-time data
		{"weather", "What's the weather in Tokyo?", RealTimeData},
		{"forecast", "weather forecast for London", RealTimeData},
		{"temperature", "current temperature in Paris", RealTimeData},
		{"stock price", "What's Apple stock price?", RealTimeData},
		{"game score", "Lakers game score", RealTimeData},
		{"game result", "game result for Warriors", RealTimeData},

		// Very recent events
		{"yesterday", "Who won the game yesterday?", VeryRecentEvent},
		{"today", "what happened today in parliament", VeryRecentEvent},
		{"breaking", "breaking news about the merger", VeryRecentEvent},
		{"just announced", "what was just announced at the keynote", VeryRecentEvent},

		// Current events (past week)
		{"latest", "latest developments in fusion research", CurrentEvent},
		{"this week", "what changed this week in the markets", CurrentEvent},

		// General current
		{"nowadays", "what do people eat nowadays", GeneralCurrent},
		{"year", "best laptops 2025", GeneralCurrent},

		// Creative tasks
		{"write", "write a poem about autumn", CreativeTask},
		{"brainstorm", "brainstorm names for a coffee shop", CreativeTask},
		{"compose", "compose a short melody description", CreativeTask},

		// Conceptual questions
		{"how does", "how does photosynthesis work", Conceptual},
		{"what is", "what is a monad", Conceptual},
		{"explain", "explain general relativity", Conceptual},
		{"difference", "difference between TCP and UDP", Conceptual},

		// Conversational
		{"hello", "hello there", Conversational},
		{"who are you", "who are you exactly", Conversational},
		{"thanks", "ok thanks", Conversational},

		// Default
		{"empty string", "", Factual},
		{"plain fact", "capital of France", Factual},
		{"history", "when did the Roman empire fall", Factual},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.query); got != tt.want {
				t.Errorf("Classify(%q) = %v, want %v", tt.query, got, tt.want)
			}
		})
	}
}

// Priority ties must always resolve to the rule scanned first.
func TestClassifyPriorityOrder(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  QueryType
	}{
		// search verb beats creative verb
		{"search beats creative", "search for ideas to write a novel", ExplicitSearch},
		// real-time keyword beats recency keyword
		{"weather beats today", "weather today in Berlin", RealTimeData},
		// very-recent beats current-event
		{"yesterday beats latest", "latest scores from yesterday", VeryRecentEvent},
		// recency keyword beats creative verb
		{"latest beats write", "write about the latest space mission", CurrentEvent},
		// explicit search beats conceptual phrasing
		{"search beats what is", "search for what is quantum entanglement", ExplicitSearch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.query); got != tt.want {
				t.Errorf("Classify(%q) = %v, want %v", tt.query, got, tt.want)
			}
		})
	}
}

// =============================================================================
// POLICY PREDICATES
// =============================================================================

func TestSearchPolicyPredicates(t *testing.T) {
	tests := []struct {
		queryType   QueryType
		wantForce   bool
		wantDisable bool
	}{
		{ExplicitSearch, true, false},
		{RealTimeData, true, false},
		{VeryRecentEvent, true, false},
		{CurrentEvent, false, false},
		{GeneralCurrent, false, false},
		{CreativeTask, false, true},
		{Conceptual, false, true},
		{Conversational, false, true},
		{Factual, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.queryType.String(), func(t *testing.T) {
			if got := ShouldForceSearch(tt.queryType); got != tt.wantForce {
				t.Errorf("ShouldForceSearch(%v) = %v, want %v", tt.queryType, got, tt.wantForce)
			}
			if got := ShouldDisableSearch(tt.queryType); got != tt.wantDisable {
				t.Errorf("ShouldDisableSearch(%v) = %v, want %v", tt.queryType, got, tt.wantDisable)
			}
		})
	}
}

// A type can never be both forced and disabled.
func TestForceDisableMutuallyExclusive(t *testing.T) {
	for qt := ExplicitSearch; qt <= Factual; qt++ {
		if ShouldForceSearch(qt) && ShouldDisableSearch(qt) {
			t.Errorf("%v is both forced and disabled", qt)
		}
	}
}

func TestDescribe(t *testing.T) {
	if got := Describe(VeryRecentEvent); got != "Very recent event (24-48 hours)" {
		t.Errorf("Describe(VeryRecentEvent) = %q", got)
	}
	if got := Describe(Factual); got != "Factual question" {
		t.Errorf("Describe(Factual) = %q", got)
	}
}
