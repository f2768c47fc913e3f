// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tools

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jeranaias/convoke/internal/search"
)

func fixedResults(n int) []search.Result {
	results := make([]search.Result, n)
	for i := range results {
		results[i] = search.Result{
			Title:   "Result Title",
			URL:     "https://example.com/page",
			Snippet: "A short snippet.",
		}
	}
	return results
}

func TestWebSearchRequiresQuery(t *testing.T) {
	tool := NewWebSearchTool(search.FuncProvider(func(ctx context.Context, query string, maxResults int) ([]search.Result, error) {
		t.Fatal("provider should not be called without a query")
		return nil, nil
	}))

	tests := []map[string]interface{}{
		{},
		{"query": ""},
		{"query": "   "},
		{"query": 42},
	}

	for _, params := range tests {
		result, err := tool.Executor.Execute(context.Background(), params)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Success {
			t.Errorf("params %v: Success = true, want failure", params)
		}
		if !strings.Contains(result.Error, "query parameter is required") {
			t.Errorf("params %v: Error = %q", params, result.Error)
		}
	}
}

func TestSetParameterDefaultRetunesMaxResults(t *testing.T) {
	var gotMax int
	provider := search.FuncProvider(func(ctx context.Context, query string, maxResults int) ([]search.Result, error) {
		gotMax = maxResults
		return fixedResults(1), nil
	})

	registry := NewRegistry()
	registry.Register(NewWebSearchTool(provider))
	registry.Get(WebSearchToolName).SetParameterDefault("max_results", 3)

	executor := NewExecutor(registry)
	result := executor.Execute(context.Background(), WebSearchToolName, map[string]interface{}{
		"query": "go generics",
	})
	if !result.Success {
		t.Fatalf("execute failed: %s", result.Error)
	}
	if gotMax != 3 {
		t.Errorf("max_results = %d, want retuned default 3", gotMax)
	}

	// An explicit model argument still wins over the default.
	executor.Execute(context.Background(), WebSearchToolName, map[string]interface{}{
		"query":       "go generics",
		"max_results": float64(5),
	})
	if gotMax != 5 {
		t.Errorf("max_results = %d, want explicit 5", gotMax)
	}
}

func TestWebSearchMaxResultsHandling(t *testing.T) {
	tests := []struct {
		name   string
		params map[string]interface{}
		want   int
	}{
		{"default when omitted", map[string]interface{}{"query": "go"}, 8},
		{"json number", map[string]interface{}{"query": "go", "max_results": float64(3)}, 3},
		{"string number", map[string]interface{}{"query": "go", "max_results": "5"}, 5},
		{"clamped high", map[string]interface{}{"query": "go", "max_results": float64(50)}, 10},
		{"clamped low", map[string]interface{}{"query": "go", "max_results": float64(0)}, 1},
		{"garbage falls back", map[string]interface{}{"query": "go", "max_results": "lots"}, 8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got int
			tool := NewWebSearchTool(search.FuncProvider(func(ctx context.Context, query string, maxResults int) ([]search.Result, error) {
				got = maxResults
				return fixedResults(1), nil
			}))

			result, err := tool.Executor.Execute(context.Background(), tt.params)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !result.Success {
				t.Fatalf("Execute failed: %s", result.Error)
			}
			if got != tt.want {
				t.Errorf("provider received max_results = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestWebSearchFormatsResults(t *testing.T) {
	tool := NewWebSearchTool(search.FuncProvider(func(ctx context.Context, query string, maxResults int) ([]search.Result, error) {
		return []search.Result{
			{Title: "First Page", URL: "https://a.example.com", Snippet: "Alpha snippet."},
			{Title: "Second Page", URL: "https://b.example.com", Snippet: "Beta snippet."},
		}, nil
	}))

	result, err := tool.Executor.Execute(context.Background(), map[string]interface{}{"query": "pages"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success {
		t.Fatalf("Execute failed: %s", result.Error)
	}

	if result.Data["count"] != 2 {
		t.Errorf("count = %v, want 2", result.Data["count"])
	}

	formatted, _ := result.Data["formatted"].(string)
	for _, want := range []string{
		"=== Web Search Results ===",
		"[1] First Page",
		"Alpha snippet.",
		"Source: https://a.example.com",
		"[2] Second Page",
		"=== End of 2 Results ===",
		"Only cite sources [1]-[2] that actually exist above.",
	} {
		if !strings.Contains(formatted, want) {
			t.Errorf("formatted block missing %q\n%s", want, formatted)
		}
	}

	// The formatted block is also what flows into the conversation.
	if result.MessageContent() != formatted {
		t.Error("MessageContent does not return the formatted block")
	}
}

func TestWebSearchEmptyResultsIsSuccess(t *testing.T) {
	tool := NewWebSearchTool(search.FuncProvider(func(ctx context.Context, query string, maxResults int) ([]search.Result, error) {
		return nil, nil
	}))

	result, err := tool.Executor.Execute(context.Background(), map[string]interface{}{"query": "obscure"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success {
		t.Errorf("Success = false for empty results: %s", result.Error)
	}
	if result.Data["message"] != "No search results found" {
		t.Errorf("message = %v", result.Data["message"])
	}
}

func TestWebSearchProviderErrorBecomesFailure(t *testing.T) {
	tool := NewWebSearchTool(search.FuncProvider(func(ctx context.Context, query string, maxResults int) ([]search.Result, error) {
		return nil, errors.New("search request failed: status 502")
	}))

	result, err := tool.Executor.Execute(context.Background(), map[string]interface{}{"query": "down"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Success {
		t.Error("Success = true, want failure")
	}
	if !strings.Contains(result.Error, "status 502") {
		t.Errorf("Error = %q", result.Error)
	}
}

func TestWebSearchThroughExecutor(t *testing.T) {
	registry := NewRegistry()
	registry.Register(NewWebSearchTool(search.FuncProvider(func(ctx context.Context, query string, maxResults int) ([]search.Result, error) {
		return fixedResults(1), nil
	})))
	executor := NewExecutor(registry)

	result := executor.Execute(context.Background(), "web_search", map[string]interface{}{"query": "go"})
	if !result.Success {
		t.Fatalf("Execute failed: %s", result.Error)
	}

	// Missing query is caught by schema validation before the tool runs.
	result = executor.Execute(context.Background(), "web_search", map[string]interface{}{})
	if result.Success {
		t.Error("Success = true, want validation failure")
	}
	if !strings.Contains(result.Error, "query") {
		t.Errorf("Error = %q, want mention of query", result.Error)
	}
}
