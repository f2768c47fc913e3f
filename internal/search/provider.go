// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package search provides the web search capability behind the web_search
// tool. Two equivalent transports exist: an in-process bridge for callers
// that already have a search function, and an HTTP provider that forwards
// queries to the Ollama web search API with a bearer credential.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// SnippetBudget bounds the characters kept per result snippet before it
// is handed to the model. 400 chars is roughly 100 tokens.
const SnippetBudget = 400

// DefaultEndpoint is the hosted Ollama web search API.
const DefaultEndpoint = "https://ollama.com/api/web_search"

// Result is one web search hit.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// Provider performs a web search. Implementations return an empty slice,
// not an error, for queries that simply have no hits.
type Provider interface {
	Search(ctx context.Context, query string, maxResults int) ([]Result, error)
}

// =============================================================================
// IN-PROCESS BRIDGE
// =============================================================================

// FuncProvider adapts a plain function into a Provider. Used when the
// host application already has a search capability in process.
type FuncProvider func(ctx context.Context, query string, maxResults int) ([]Result, error)

// Search invokes the wrapped function.
func (f FuncProvider) Search(ctx context.Context, query string, maxResults int) ([]Result, error) {
	return f(ctx, query, maxResults)
}

// =============================================================================
// HTTP PROVIDER
// =============================================================================

// HTTPConfig configures the HTTP search provider.
type HTTPConfig struct {
	// Endpoint to POST queries to (default: DefaultEndpoint).
	Endpoint string

	// APIKey is forwarded as a bearer credential. The provider does not
	// manage or validate it.
	APIKey string

	// Timeout per search request (default: 15s).
	Timeout time.Duration

	// RequestsPerSecond caps the upstream call rate (default: 1, burst 3).
	// A misbehaving tool loop must not hammer the search API.
	RequestsPerSecond float64
}

// HTTPProvider forwards searches to a remote search endpoint.
type HTTPProvider struct {
	config     HTTPConfig
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewHTTPProvider creates an HTTP search provider.
func NewHTTPProvider(config HTTPConfig) *HTTPProvider {
	if config.Endpoint == "" {
		config.Endpoint = DefaultEndpoint
	}
	if config.Timeout == 0 {
		config.Timeout = 15 * time.Second
	}
	if config.RequestsPerSecond == 0 {
		config.RequestsPerSecond = 1
	}

	return &HTTPProvider{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(config.RequestsPerSecond), 3),
	}
}

type searchRequest struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
}

// rawResult tolerates the differing snippet field names across upstream
// search backends.
type rawResult struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Snippet     string `json:"snippet"`
	Description string `json:"description"`
	Content     string `json:"content"`
}

type searchResponse struct {
	Results []rawResult `json:"results"`
}

// Search posts the query upstream and normalizes the results. Results
// missing a URL or title are dropped; snippets are clamped to
// SnippetBudget characters.
func (p *HTTPProvider) Search(ctx context.Context, query string, maxResults int) ([]Result, error) {
	if maxResults < 1 {
		maxResults = 1
	} else if maxResults > 10 {
		maxResults = 10
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	body, err := json.Marshal(searchRequest{Query: query, MaxResults: maxResults})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if p.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.config.APIKey)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, context.Canceled
		}
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search endpoint returned %s", resp.Status)
	}

	var decoded searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	results := make([]Result, 0, maxResults)
	for _, r := range decoded.Results {
		if r.URL == "" || r.Title == "" {
			continue
		}
		results = append(results, Result{
			Title:   r.Title,
			URL:     r.URL,
			Snippet: normalizeSnippet(r),
		})
		if len(results) == maxResults {
			break
		}
	}

	return results, nil
}

// normalizeSnippet picks the best available snippet field, clamps it to
// the budget, and falls back to the title when everything is empty.
func normalizeSnippet(r rawResult) string {
	snippet := r.Snippet
	if snippet == "" {
		snippet = r.Description
	}
	if snippet == "" {
		snippet = r.Content
	}

	if runes := []rune(snippet); len(runes) > SnippetBudget {
		snippet = strings.TrimSpace(string(runes[:SnippetBudget])) + "..."
	}

	if snippet == "" {
		snippet = r.Title
	}
	return snippet
}
