// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package search

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHTTPProviderSearch(t *testing.T) {
	var gotAuth string
	var gotReq searchRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&gotReq)

		json.NewEncoder(w).Encode(map[string]interface{}{
			"results": []map[string]string{
				{"title": "First", "url": "https://a.example", "snippet": "short snippet"},
				{"title": "Second", "url": "https://b.example", "content": "content field used"},
				{"title": "No URL", "snippet": "dropped"},
				{"title": "Third", "url": "https://c.example"},
			},
		})
	}))
	defer server.Close()

	provider := NewHTTPProvider(HTTPConfig{
		Endpoint:          server.URL,
		APIKey:            "test-key",
		RequestsPerSecond: 100,
	})

	results, err := provider.Search(context.Background(), "anything", 8)
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}

	if gotAuth != "Bearer test-key" {
		t.Errorf("Authorization = %q, want %q", gotAuth, "Bearer test-key")
	}
	if gotReq.Query != "anything" || gotReq.MaxResults != 8 {
		t.Errorf("upstream request = %+v, want query=anything max_results=8", gotReq)
	}

	if len(results) != 3 {
		t.Fatalf("got %d results, want 3 (entry without URL dropped)", len(results))
	}
	if results[0].Snippet != "short snippet" {
		t.Errorf("snippet = %q, want %q", results[0].Snippet, "short snippet")
	}
	if results[1].Snippet != "content field used" {
		t.Errorf("content fallback snippet = %q", results[1].Snippet)
	}
	if results[2].Snippet != "Third" {
		t.Errorf("title fallback snippet = %q, want %q", results[2].Snippet, "Third")
	}
}

func TestHTTPProviderClampsMaxResults(t *testing.T) {
	var gotReq searchRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotReq)
		json.NewEncoder(w).Encode(map[string]interface{}{"results": []map[string]string{}})
	}))
	defer server.Close()

	provider := NewHTTPProvider(HTTPConfig{Endpoint: server.URL, RequestsPerSecond: 100})

	if _, err := provider.Search(context.Background(), "q", 25); err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if gotReq.MaxResults != 10 {
		t.Errorf("max_results = %d, want clamped to 10", gotReq.MaxResults)
	}

	if _, err := provider.Search(context.Background(), "q", 0); err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if gotReq.MaxResults != 1 {
		t.Errorf("max_results = %d, want clamped to 1", gotReq.MaxResults)
	}
}

func TestHTTPProviderTruncatesSnippets(t *testing.T) {
	long := strings.Repeat("x", 1200)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"results": []map[string]string{
				{"title": "Long", "url": "https://long.example", "snippet": long},
			},
		})
	}))
	defer server.Close()

	provider := NewHTTPProvider(HTTPConfig{Endpoint: server.URL, RequestsPerSecond: 100})
	results, err := provider.Search(context.Background(), "q", 3)
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}

	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	want := SnippetBudget + len("...")
	if len(results[0].Snippet) != want {
		t.Errorf("snippet length = %d, want %d", len(results[0].Snippet), want)
	}
	if !strings.HasSuffix(results[0].Snippet, "...") {
		t.Error("truncated snippet missing ellipsis")
	}
}

func TestHTTPProviderNonOKStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	provider := NewHTTPProvider(HTTPConfig{Endpoint: server.URL, RequestsPerSecond: 100})
	if _, err := provider.Search(context.Background(), "q", 3); err == nil {
		t.Fatal("Search() error = nil, want failure on 502")
	}
}

func TestFuncProvider(t *testing.T) {
	provider := FuncProvider(func(ctx context.Context, query string, maxResults int) ([]Result, error) {
		return []Result{{Title: query, URL: "https://x.example", Snippet: "s"}}, nil
	})

	results, err := provider.Search(context.Background(), "bridge", 5)
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if len(results) != 1 || results[0].Title != "bridge" {
		t.Errorf("results = %+v, want the bridged result", results)
	}
}
