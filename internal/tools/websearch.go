// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tools

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/jeranaias/convoke/internal/search"
)

// =============================================================================
// WEB SEARCH TOOL
// =============================================================================

// WebSearchToolName is the registry name of the web search tool.
const WebSearchToolName = "web_search"

// DefaultMaxResults is used when the model omits max_results. Eight
// results gives the model enough sources for citation coverage without
// flooding the context window.
const DefaultMaxResults = 8

const webSearchDescription = "Search the web ONLY when you need information about: " +
	"(1) Real-time data that changes minute-to-minute (weather, stocks, sports scores), " +
	"(2) Events from the past 48 hours, " +
	"(3) Explicit user requests to search. " +
	"DO NOT use for general knowledge, historical facts, conceptual explanations, or creative tasks."

// NewWebSearchTool builds the web_search tool over a search provider.
func NewWebSearchTool(provider search.Provider) *Tool {
	return &Tool{
		Name:        WebSearchToolName,
		Description: webSearchDescription,
		Schema: Schema{
			Parameters: []Parameter{
				{
					Name:        "query",
					Type:        "string",
					Required:    true,
					Description: "The search query to look up on the web",
				},
				{
					Name:        "max_results",
					Type:        "integer",
					Required:    false,
					Default:     DefaultMaxResults,
					Description: "Maximum number of search results to return (default: 8, max: 10)",
				},
			},
		},
		Executor: &webSearchExecutor{provider: provider},
	}
}

type webSearchExecutor struct {
	provider search.Provider
}

// Execute validates arguments, delegates to the search provider, and
// formats results for model consumption.
func (w *webSearchExecutor) Execute(ctx context.Context, params map[string]interface{}) (Result, error) {
	query, _ := params["query"].(string)
	if strings.TrimSpace(query) == "" {
		return Result{Success: false, Error: "query parameter is required"}, nil
	}

	maxResults := intParam(params, "max_results", DefaultMaxResults)
	if maxResults < 1 {
		maxResults = 1
	} else if maxResults > 10 {
		maxResults = 10
	}

	log.Printf("WEB_SEARCH | query=%q max_results=%d", query, maxResults)

	results, err := w.provider.Search(ctx, query, maxResults)
	if err != nil {
		return Result{Success: false, Error: err.Error()}, nil
	}

	if len(results) == 0 {
		return Result{
			Success: true,
			Data: map[string]interface{}{
				"query":   query,
				"results": []search.Result{},
				"message": "No search results found",
			},
		}, nil
	}

	return Result{
		Success: true,
		Data: map[string]interface{}{
			"query":     query,
			"results":   results,
			"formatted": FormatResultsForModel(results),
			"count":     len(results),
		},
	}, nil
}

// FormatResultsForModel renders search results as a numbered block the
// model can cite inline, with an explicit warning against citing indices
// beyond the returned count.
func FormatResultsForModel(results []search.Result) string {
	var b strings.Builder
	b.WriteString("\n=== Web Search Results ===\n\n")

	for i, r := range results {
		fmt.Fprintf(&b, "[%d] %s\n", i+1, r.Title)
		b.WriteString(r.Snippet)
		b.WriteString("\nSource: ")
		b.WriteString(r.URL)
		b.WriteString("\n\n")
	}

	fmt.Fprintf(&b, "=== End of %d Results ===\n\n", len(results))
	fmt.Fprintf(&b,
		"Use the above information to provide a comprehensive answer. "+
			"Cite sources inline using [1], [2], etc. after relevant facts. "+
			"Only cite sources [1]-[%d] that actually exist above.\n", len(results))

	return b.String()
}

// intParam reads a numeric parameter that may arrive as float64 (JSON
// numbers), int, or a numeric string.
func intParam(params map[string]interface{}, name string, fallback int) int {
	switch v := params[name].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case string:
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil {
			return n
		}
	}
	return fallback
}
