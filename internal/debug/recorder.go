// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package debug records per-turn search diagnostics in a bounded ring,
// with optional SQLite persistence.
package debug

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jeranaias/convoke/internal/search"
)

// MaxLogs is the ring capacity. Oldest entries are evicted first.
const MaxLogs = 100

// =============================================================================
// SEARCH LOG
// =============================================================================

// ErrorType classifies a failed turn.
type ErrorType string

const (
	ErrorSearchFailed ErrorType = "search_failed"
	ErrorModelError   ErrorType = "model_error"
	ErrorTimeout      ErrorType = "timeout"
	ErrorRateLimit    ErrorType = "rate_limit"
	ErrorNetwork      ErrorType = "network"
)

// SearchLog is one turn's diagnostic record. Created at turn start and
// updated in place as the turn progresses.
type SearchLog struct {
	ID           string    `json:"id"`
	Timestamp    time.Time `json:"timestamp"`
	Query        string    `json:"query"`
	SearchMode   string    `json:"search_mode"`
	ForcedSearch bool      `json:"forced_search"`
	ModelName    string    `json:"model_name"`

	// Search execution
	SearchTriggered   bool            `json:"search_triggered"`
	SearchQuery       string          `json:"search_query,omitempty"`
	SearchDuration    time.Duration   `json:"search_duration_ms,omitempty"`
	SearchResultCount int             `json:"search_result_count,omitempty"`
	SearchResults     []search.Result `json:"search_results,omitempty"`

	// Response
	ModelResponse    string        `json:"model_response,omitempty"`
	ResponseDuration time.Duration `json:"response_duration_ms,omitempty"`
	CitationsUsed    []int         `json:"citations_used,omitempty"`

	// Errors
	Error     string    `json:"error,omitempty"`
	ErrorType ErrorType `json:"error_type,omitempty"`

	// Performance
	TotalDuration time.Duration `json:"total_duration_ms,omitempty"`
	TokenCount    int           `json:"token_count,omitempty"`
}

// citationPattern matches inline citation markers like [1].
var citationPattern = regexp.MustCompile(`\[(\d+)\]`)

// extractCitations returns the distinct citation numbers referenced in a
// response, in first-seen order.
func extractCitations(response string) []int {
	matches := citationPattern.FindAllStringSubmatch(response, -1)
	if len(matches) == 0 {
		return nil
	}

	seen := make(map[int]bool)
	var citations []int
	for _, m := range matches {
		n, err := strconv.Atoi(m[1])
		if err != nil || seen[n] {
			continue
		}
		seen[n] = true
		citations = append(citations, n)
	}
	return citations
}

// =============================================================================
// STATS AND FILTERS
// =============================================================================

// Stats aggregates the retained logs.
type Stats struct {
	TotalQueries            int           `json:"total_queries"`
	SearchQueries           int           `json:"search_queries"`
	SuccessfulSearches      int           `json:"successful_searches"`
	FailedSearches          int           `json:"failed_searches"`
	AverageSearchDuration   time.Duration `json:"average_search_duration_ms"`
	AverageResponseDuration time.Duration `json:"average_response_duration_ms"`
	TotalTokensUsed         int           `json:"total_tokens_used"`
}

// Filter narrows a log query. Zero values mean "no constraint".
type Filter struct {
	SearchOnly bool
	ErrorsOnly bool
	ModelName  string
	Since      time.Time
}

func (f Filter) matches(log *SearchLog) bool {
	if f.SearchOnly && !log.SearchTriggered {
		return false
	}
	if f.ErrorsOnly && log.Error == "" {
		return false
	}
	if f.ModelName != "" && log.ModelName != f.ModelName {
		return false
	}
	if !f.Since.IsZero() && log.Timestamp.Before(f.Since) {
		return false
	}
	return true
}

// =============================================================================
// RECORDER
// =============================================================================

// Store persists logs beyond process lifetime. Implemented by the
// SQLite-backed store in this package.
type Store interface {
	Save(log *SearchLog) error
	Recent(limit int) ([]*SearchLog, error)
	Clear() error
}

// Recorder keeps the most recent MaxLogs turn diagnostics, newest first.
// Safe for concurrent use; the engine writes while the UI reads.
type Recorder struct {
	mu    sync.Mutex
	logs  []*SearchLog
	store Store
}

// NewRecorder creates an in-memory recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// NewRecorderWithStore creates a recorder that writes through to a
// persistent store, seeded with the store's most recent entries.
func NewRecorderWithStore(store Store) *Recorder {
	r := &Recorder{store: store}
	if logs, err := store.Recent(MaxLogs); err == nil {
		r.logs = logs
	}
	return r
}

// Start opens a log entry for a turn and returns its ID.
func (r *Recorder) Start(query, searchMode string, forced bool, modelName string) string {
	log := &SearchLog{
		ID:           uuid.NewString(),
		Timestamp:    time.Now(),
		Query:        query,
		SearchMode:   searchMode,
		ForcedSearch: forced,
		ModelName:    modelName,
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.logs = append([]*SearchLog{log}, r.logs...)
	if len(r.logs) > MaxLogs {
		r.logs = r.logs[:MaxLogs]
	}
	r.persist(log)
	return log.ID
}

// SearchStarted marks the turn as having triggered a search.
func (r *Recorder) SearchStarted(id, searchQuery string) {
	r.update(id, func(log *SearchLog) {
		log.SearchTriggered = true
		log.SearchQuery = searchQuery
	})
}

// SearchCompleted records the search results and duration.
func (r *Recorder) SearchCompleted(id string, results []search.Result, duration time.Duration) {
	r.update(id, func(log *SearchLog) {
		log.SearchResults = append([]search.Result(nil), results...)
		log.SearchResultCount = len(results)
		log.SearchDuration = duration
	})
}

// SearchFailed records a search error.
func (r *Recorder) SearchFailed(id, errMsg string, errType ErrorType) {
	r.update(id, func(log *SearchLog) {
		log.Error = errMsg
		log.ErrorType = errType
	})
}

// ResponseCompleted records the model's final answer, extracting the
// citation numbers it referenced.
func (r *Recorder) ResponseCompleted(id, response string, duration time.Duration, tokenCount int) {
	r.update(id, func(log *SearchLog) {
		log.ModelResponse = response
		log.ResponseDuration = duration
		log.TokenCount = tokenCount
		log.TotalDuration = log.SearchDuration + duration
		log.CitationsUsed = extractCitations(response)
	})
}

// TurnFailed records a non-search turn error.
func (r *Recorder) TurnFailed(id, errMsg string, errType ErrorType) {
	r.update(id, func(log *SearchLog) {
		log.Error = errMsg
		log.ErrorType = errType
	})
}

func (r *Recorder) update(id string, fn func(*SearchLog)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, log := range r.logs {
		if log.ID == id {
			fn(log)
			r.persist(log)
			return
		}
	}
}

// persist writes through to the store. Called with the mutex held.
func (r *Recorder) persist(log *SearchLog) {
	if r.store != nil {
		// Store failures are not allowed to break the turn.
		_ = r.store.Save(log)
	}
}

// Logs returns a snapshot of the retained logs, newest first.
func (r *Recorder) Logs() []*SearchLog {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*SearchLog, len(r.logs))
	for i, log := range r.logs {
		cp := *log
		out[i] = &cp
	}
	return out
}

// Filtered returns the logs matching the filter, newest first.
func (r *Recorder) Filtered(filter Filter) []*SearchLog {
	var out []*SearchLog
	for _, log := range r.Logs() {
		if filter.matches(log) {
			out = append(out, log)
		}
	}
	return out
}

// Clear drops all retained logs, including persisted ones.
func (r *Recorder) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.logs = nil
	if r.store != nil {
		_ = r.store.Clear()
	}
}

// Stats aggregates the retained logs.
func (r *Recorder) Stats() Stats {
	logs := r.Logs()

	stats := Stats{TotalQueries: len(logs)}
	var searchDurationSum, responseDurationSum time.Duration
	for _, log := range logs {
		if log.SearchTriggered {
			stats.SearchQueries++
			searchDurationSum += log.SearchDuration
			if log.SearchResultCount > 0 {
				stats.SuccessfulSearches++
			}
			if log.Error != "" {
				stats.FailedSearches++
			}
		}
		responseDurationSum += log.ResponseDuration
		stats.TotalTokensUsed += log.TokenCount
	}

	if stats.SearchQueries > 0 {
		stats.AverageSearchDuration = searchDurationSum / time.Duration(stats.SearchQueries)
	}
	if len(logs) > 0 {
		stats.AverageResponseDuration = responseDurationSum / time.Duration(len(logs))
	}
	return stats
}

// =============================================================================
// EXPORT
// =============================================================================

// ExportJSON renders the retained logs with stats as an indented JSON
// document.
func (r *Recorder) ExportJSON() ([]byte, error) {
	payload := struct {
		Exported time.Time    `json:"exported"`
		Version  string       `json:"version"`
		Stats    Stats        `json:"stats"`
		Logs     []*SearchLog `json:"logs"`
	}{
		Exported: time.Now(),
		Version:  "1.0",
		Stats:    r.Stats(),
		Logs:     r.Logs(),
	}
	return json.MarshalIndent(payload, "", "  ")
}

// csvHeaders are the ExportCSV column names.
var csvHeaders = []string{
	"Timestamp", "Query", "Model", "Search Mode", "Forced",
	"Search Triggered", "Search Query", "Result Count",
	"Search Duration (ms)", "Response Duration (ms)", "Total Duration (ms)",
	"Citations", "Error",
}

// ExportCSV renders the retained logs as CSV with quoted free-text
// fields.
func (r *Recorder) ExportCSV() string {
	var b strings.Builder
	b.WriteString(strings.Join(csvHeaders, ","))
	b.WriteByte('\n')

	for _, log := range r.Logs() {
		citations := make([]string, len(log.CitationsUsed))
		for i, n := range log.CitationsUsed {
			citations[i] = strconv.Itoa(n)
		}

		row := []string{
			log.Timestamp.UTC().Format(time.RFC3339),
			csvQuote(log.Query),
			log.ModelName,
			log.SearchMode,
			yesNo(log.ForcedSearch),
			yesNo(log.SearchTriggered),
			csvQuote(log.SearchQuery),
			strconv.Itoa(log.SearchResultCount),
			strconv.FormatInt(log.SearchDuration.Milliseconds(), 10),
			strconv.FormatInt(log.ResponseDuration.Milliseconds(), 10),
			strconv.FormatInt(log.TotalDuration.Milliseconds(), 10),
			csvQuote(strings.Join(citations, ",")),
			csvQuote(log.Error),
		}
		b.WriteString(strings.Join(row, ","))
		b.WriteByte('\n')
	}
	return b.String()
}

// csvQuote wraps a free-text field in quotes, doubling embedded quotes.
func csvQuote(s string) string {
	if s == "" {
		return ""
	}
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func yesNo(v bool) string {
	if v {
		return "Yes"
	}
	return "No"
}
