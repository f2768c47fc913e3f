// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package engine

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jeranaias/convoke/internal/debug"
	"github.com/jeranaias/convoke/internal/model"
	"github.com/jeranaias/convoke/internal/ollama"
	"github.com/jeranaias/convoke/internal/search"
	"github.com/jeranaias/convoke/internal/tools"
)

// ===== TEST DOUBLES =====

// fakeTransport scripts probe responses and stream chunks.
type fakeTransport struct {
	probes       []*ollama.ChatResponse
	probeErr     error
	probeCalls   int
	streamChunks []ollama.StreamChunk
	streamCalls  int
	streamErr    error

	// streamCancelAfter > 0 delivers that many chunks before reporting
	// the stream as cancelled.
	streamCancelAfter int

	lastProbeTools []ollama.Tool
}

func (f *fakeTransport) Chat(ctx context.Context, modelName string, messages []ollama.Message, toolDefs []ollama.Tool, opts *ollama.Options) (*ollama.ChatResponse, error) {
	f.lastProbeTools = toolDefs
	f.probeCalls++
	if f.probeErr != nil {
		return nil, f.probeErr
	}
	if f.probeCalls > len(f.probes) {
		return &ollama.ChatResponse{Done: true}, nil
	}
	return f.probes[f.probeCalls-1], nil
}

func (f *fakeTransport) ChatStream(ctx context.Context, modelName string, messages []ollama.Message, opts *ollama.Options, callback ollama.StreamCallback) error {
	f.streamCalls++
	if f.streamErr != nil {
		return f.streamErr
	}
	for i, chunk := range f.streamChunks {
		if f.streamCancelAfter > 0 && i >= f.streamCancelAfter {
			return context.Canceled
		}
		callback(chunk)
	}
	return nil
}

// fakeStore counts persistence calls.
type fakeStore struct {
	saves int
}

func (s *fakeStore) Save(conv *model.Conversation) (string, error) {
	s.saves++
	return conv.ID, nil
}

func toolCallResponse(args string) *ollama.ChatResponse {
	return &ollama.ChatResponse{
		Message: ollama.Message{
			Role: "assistant",
			ToolCalls: []ollama.ToolCall{
				{
					Type: "function",
					Function: ollama.ToolFunction{
						Name:      tools.WebSearchToolName,
						Arguments: json.RawMessage(args),
					},
				},
			},
		},
		Done: true,
	}
}

func textResponse(content string) *ollama.ChatResponse {
	return &ollama.ChatResponse{
		Message: ollama.Message{Role: "assistant", Content: content},
		Done:    true,
	}
}

func contentChunks(parts ...string) []ollama.StreamChunk {
	chunks := make([]ollama.StreamChunk, 0, len(parts)+1)
	for _, p := range parts {
		chunks = append(chunks, ollama.StreamChunk{Content: p})
	}
	chunks = append(chunks, ollama.StreamChunk{Done: true, CompletionTokens: 12})
	return chunks
}

type capturedSearch struct {
	query      string
	maxResults int
	called     bool
}

func newTestEngine(transport *fakeTransport, captured *capturedSearch, mode model.SearchMode) (*Engine, *fakeStore) {
	provider := search.FuncProvider(func(ctx context.Context, query string, maxResults int) ([]search.Result, error) {
		if captured != nil {
			captured.query = query
			captured.maxResults = maxResults
			captured.called = true
		}
		return []search.Result{
			{Title: "Tokyo Weather", URL: "https://weather.example.com", Snippet: "sunny, 24C"},
		}, nil
	})

	registry := tools.NewRegistry()
	registry.Register(tools.NewWebSearchTool(provider))

	settings := model.DefaultChatSettings()
	settings.SearchMode = mode

	store := &fakeStore{}
	eng := New(Config{
		Transport: transport,
		Executor:  tools.NewExecutor(registry),
		Store:     store,
		Model:     "llama3.2",
		Settings:  settings,
	})
	return eng, store
}

// ===== SEARCH POLICY =====

func TestSmartModeTriggersWebSearch(t *testing.T) {
	transport := &fakeTransport{
		probes: []*ollama.ChatResponse{
			toolCallResponse(`{"query": "weather in Tokyo"}`),
			textResponse(""),
		},
		streamChunks: contentChunks("Sunny, 24C ", "[1]"),
	}
	captured := &capturedSearch{}
	eng, _ := newTestEngine(transport, captured, model.SearchModeSmart)

	final, err := eng.SendMessage(context.Background(), "What's the weather in Tokyo?", false, Callbacks{})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	if !captured.called {
		t.Fatal("web search never invoked")
	}
	if !strings.Contains(captured.query, "weather") {
		t.Errorf("search query = %q, want weather query", captured.query)
	}
	if captured.maxResults != 8 {
		t.Errorf("max_results = %d, want default 8", captured.maxResults)
	}
	if final.Content != "Sunny, 24C [1]" {
		t.Errorf("final content = %q", final.Content)
	}
	if len(final.SearchResults) != 1 {
		t.Errorf("got %d attached search results, want 1", len(final.SearchResults))
	}
}

func TestOffModeNeverSearches(t *testing.T) {
	transport := &fakeTransport{streamChunks: contentChunks("From memory.")}
	captured := &capturedSearch{}
	eng, _ := newTestEngine(transport, captured, model.SearchModeOff)

	// Real-time-data phrasing would force tools in smart mode.
	_, err := eng.SendMessage(context.Background(), "What's the weather in Tokyo?", false, Callbacks{})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	if captured.called {
		t.Error("web search invoked with search mode off")
	}
	if transport.probeCalls != 0 {
		t.Errorf("probe calls = %d, want 0", transport.probeCalls)
	}
	if transport.streamCalls != 1 {
		t.Errorf("stream calls = %d, want 1", transport.streamCalls)
	}
}

func TestSmartModeSkipsToolsForConceptual(t *testing.T) {
	transport := &fakeTransport{streamChunks: contentChunks("Recursion is...")}
	captured := &capturedSearch{}
	eng, _ := newTestEngine(transport, captured, model.SearchModeSmart)

	_, err := eng.SendMessage(context.Background(), "Explain how recursion works", false, Callbacks{})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	if transport.probeCalls != 0 {
		t.Errorf("probe calls = %d, want 0 for conceptual query", transport.probeCalls)
	}
}

func TestCapabilityDowngradeWarnsAndStreams(t *testing.T) {
	transport := &fakeTransport{streamChunks: contentChunks("plain answer")}
	captured := &capturedSearch{}
	eng, _ := newTestEngine(transport, captured, model.SearchModeSmart)
	eng.SetModel("gemma2:9b")

	var warning string
	_, err := eng.SendMessage(context.Background(), "What's the weather in Tokyo?", true, Callbacks{
		OnWarning: func(msg string) { warning = msg },
	})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	if warning == "" {
		t.Error("expected capability downgrade warning")
	}
	if !strings.Contains(warning, "does not support tool calling") {
		t.Errorf("warning = %q", warning)
	}
	if transport.probeCalls != 0 {
		t.Error("probe issued despite downgrade")
	}
	if transport.streamCalls != 1 {
		t.Error("turn did not fall back to plain streaming")
	}
}

func TestConfiguredMaxResultsReachesTool(t *testing.T) {
	transport := &fakeTransport{
		probes: []*ollama.ChatResponse{
			toolCallResponse(`{"query": "weather in Tokyo"}`),
			textResponse(""),
		},
		streamChunks: contentChunks("Sunny"),
	}
	captured := &capturedSearch{}
	eng, _ := newTestEngine(transport, captured, model.SearchModeSmart)

	settings := eng.Settings()
	settings.MaxSearchResults = 3
	eng.SetSettings(settings)

	if _, err := eng.SendMessage(context.Background(), "What's the weather in Tokyo?", false, Callbacks{}); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	if !captured.called {
		t.Fatal("web search never invoked")
	}
	if captured.maxResults != 3 {
		t.Errorf("max_results = %d, want configured 3", captured.maxResults)
	}
}

// ===== CANCELLATION =====

func TestCancelDuringProbeCompletesTurn(t *testing.T) {
	transport := &fakeTransport{probeErr: context.Canceled}

	provider := search.FuncProvider(func(ctx context.Context, query string, maxResults int) ([]search.Result, error) {
		return nil, nil
	})
	registry := tools.NewRegistry()
	registry.Register(tools.NewWebSearchTool(provider))

	settings := model.DefaultChatSettings()
	settings.DebugMode = true

	recorder := debug.NewRecorder()
	store := &fakeStore{}
	eng := New(Config{
		Transport: transport,
		Executor:  tools.NewExecutor(registry),
		Recorder:  recorder,
		Store:     store,
		Model:     "llama3.2",
		Settings:  settings,
	})

	final, err := eng.SendMessage(context.Background(), "What's the weather in Tokyo?", false, Callbacks{})
	if err != nil {
		t.Fatalf("cancellation surfaced as error: %v", err)
	}
	if final == nil {
		t.Fatal("no final message after cancelled turn")
	}
	if final.Status != model.StatusNone {
		t.Errorf("final status = %q, want cleared", final.Status)
	}

	conv := eng.Conversation()
	if conv.MessageCount() != 2 {
		t.Fatalf("message count = %d, want user + assistant", conv.MessageCount())
	}

	logs := recorder.Logs()
	if len(logs) != 1 {
		t.Fatalf("got %d debug logs, want 1", len(logs))
	}
	if logs[0].Error != "" {
		t.Errorf("cancelled turn recorded as failed: %q", logs[0].Error)
	}
}

func TestCancelMidStreamKeepsPartialContent(t *testing.T) {
	transport := &fakeTransport{
		streamChunks:      contentChunks("Hello ", "wor", "ld, never sent"),
		streamCancelAfter: 2,
	}
	eng, _ := newTestEngine(transport, nil, model.SearchModeOff)

	final, err := eng.SendMessage(context.Background(), "hi", false, Callbacks{})
	if err != nil {
		t.Fatalf("cancellation surfaced as error: %v", err)
	}
	if final.Content != "Hello wor" {
		t.Errorf("final content = %q, want the delivered chunks", final.Content)
	}
	if final.Streaming() {
		t.Error("message still streaming after cancelled turn")
	}
	if final.Status != model.StatusNone {
		t.Errorf("final status = %q, want cleared", final.Status)
	}
}

// ===== CONVERSATION STATE =====

func TestTurnAppendsUserAndAssistantMessages(t *testing.T) {
	transport := &fakeTransport{streamChunks: contentChunks("hello there")}
	eng, store := newTestEngine(transport, nil, model.SearchModeOff)

	var statuses []model.Status
	final, err := eng.SendMessage(context.Background(), "hi", false, Callbacks{
		OnStatus: func(s model.Status) { statuses = append(statuses, s) },
	})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	conv := eng.Conversation()
	if conv.MessageCount() != 2 {
		t.Fatalf("message count = %d, want 2", conv.MessageCount())
	}
	if conv.Messages[0].Role != model.RoleUser || conv.Messages[0].Content != "hi" {
		t.Errorf("first message = %+v", conv.Messages[0])
	}
	if conv.Messages[1] != final {
		t.Error("last message is not the finalized assistant message")
	}
	if final.Status != model.StatusNone {
		t.Errorf("final status = %q, want cleared", final.Status)
	}
	if final.Content != "hello there" {
		t.Errorf("final content = %q", final.Content)
	}

	// Once before the request, once after completion.
	if store.saves < 2 {
		t.Errorf("save calls = %d, want at least 2", store.saves)
	}

	if len(statuses) == 0 || statuses[0] != model.StatusThinking {
		t.Errorf("statuses = %v, want thinking first", statuses)
	}
	if statuses[len(statuses)-1] != model.StatusNone {
		t.Errorf("statuses = %v, want cleared last", statuses)
	}
}

func TestToolTrafficEntersHistory(t *testing.T) {
	transport := &fakeTransport{
		probes: []*ollama.ChatResponse{
			toolCallResponse(`{"query": "weather in Tokyo"}`),
			textResponse(""),
		},
		streamChunks: contentChunks("Sunny, 24C [1]"),
	}
	captured := &capturedSearch{}
	eng, _ := newTestEngine(transport, captured, model.SearchModeSmart)

	final, err := eng.SendMessage(context.Background(), "What's the weather in Tokyo?", false, Callbacks{})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	// user, assistant tool call, tool result, final answer
	conv := eng.Conversation()
	if conv.MessageCount() != 4 {
		t.Fatalf("message count = %d, want 4", conv.MessageCount())
	}

	call := conv.Messages[1]
	if !call.HasToolCalls() {
		t.Fatal("second message does not carry the tool call")
	}
	if call.Content != "" {
		t.Errorf("tool call message content = %q, want empty", call.Content)
	}
	if got := call.ToolCalls[0].Function.Name; got != tools.WebSearchToolName {
		t.Errorf("tool call name = %q", got)
	}

	toolMsg := conv.Messages[2]
	if toolMsg.Role != model.RoleTool || toolMsg.ToolName != tools.WebSearchToolName {
		t.Errorf("third message = role %q tool %q, want tool result", toolMsg.Role, toolMsg.ToolName)
	}
	if !toolMsg.IsSuccess {
		t.Error("tool result not marked successful")
	}
	if conv.Messages[3] != final {
		t.Error("last message is not the finalized assistant message")
	}

	// The next turn's wire context must carry the exchange.
	wire := conv.ToWire()
	var sawCall, sawResult bool
	for _, msg := range wire {
		if msg.Role == "assistant" && len(msg.ToolCalls) > 0 {
			sawCall = true
		}
		if msg.Role == "tool" && strings.Contains(msg.Content, "Tokyo Weather") {
			sawResult = true
		}
	}
	if !sawCall || !sawResult {
		t.Errorf("wire context missing tool traffic: call=%v result=%v", sawCall, sawResult)
	}
}

func TestTurnErrorKeepsHistory(t *testing.T) {
	transport := &fakeTransport{streamErr: ollama.ErrNotRunning}
	eng, _ := newTestEngine(transport, nil, model.SearchModeOff)

	_, err := eng.SendMessage(context.Background(), "hi", false, Callbacks{})
	if err == nil {
		t.Fatal("expected transport error")
	}
	if !ollama.IsNotRunning(err) {
		t.Errorf("unexpected error: %v", err)
	}

	conv := eng.Conversation()
	if conv.MessageCount() != 2 {
		t.Fatalf("message count = %d, want user message kept", conv.MessageCount())
	}
	if conv.Messages[0].Content != "hi" {
		t.Error("user message lost after failed turn")
	}
	if conv.Messages[1].Status != model.StatusNone {
		t.Error("placeholder status not cleared after failure")
	}
}

func TestEmptyMessageRejected(t *testing.T) {
	transport := &fakeTransport{}
	eng, _ := newTestEngine(transport, nil, model.SearchModeOff)

	if _, err := eng.SendMessage(context.Background(), "   ", false, Callbacks{}); err != ErrEmptyMessage {
		t.Errorf("err = %v, want ErrEmptyMessage", err)
	}
}

// ===== SYSTEM PROMPTS =====

func TestSystemPromptSelection(t *testing.T) {
	if got := systemPromptFor(true, ""); !strings.Contains(got, "CITATION REQUIREMENTS") {
		t.Error("tool turns should get the citation prompt")
	}
	if got := systemPromptFor(false, ""); strings.Contains(got, "CITATION") {
		t.Error("plain turns should get the standard prompt")
	}
	if got := systemPromptFor(true, "custom"); got != "custom" {
		t.Errorf("override ignored, got %q", got)
	}
}

// ===== DEBUG RECORDING =====

func TestDebugRecorderCapturesTurn(t *testing.T) {
	transport := &fakeTransport{
		probes: []*ollama.ChatResponse{
			toolCallResponse(`{"query": "weather in Tokyo"}`),
			textResponse(""),
		},
		streamChunks: contentChunks("Sunny ", "[1]"),
	}
	captured := &capturedSearch{}

	provider := search.FuncProvider(func(ctx context.Context, query string, maxResults int) ([]search.Result, error) {
		captured.called = true
		return []search.Result{{Title: "Tokyo Weather", URL: "https://weather.example.com"}}, nil
	})
	registry := tools.NewRegistry()
	registry.Register(tools.NewWebSearchTool(provider))

	settings := model.DefaultChatSettings()
	settings.DebugMode = true

	recorder := debug.NewRecorder()
	eng := New(Config{
		Transport: transport,
		Executor:  tools.NewExecutor(registry),
		Recorder:  recorder,
		Model:     "llama3.2",
		Settings:  settings,
	})

	if _, err := eng.SendMessage(context.Background(), "What's the weather in Tokyo?", false, Callbacks{}); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	logs := recorder.Logs()
	if len(logs) != 1 {
		t.Fatalf("got %d debug logs, want 1", len(logs))
	}
	entry := logs[0]
	if !entry.SearchTriggered {
		t.Error("search not marked triggered")
	}
	if entry.SearchResultCount != 1 {
		t.Errorf("result count = %d, want 1", entry.SearchResultCount)
	}
	if len(entry.CitationsUsed) != 1 || entry.CitationsUsed[0] != 1 {
		t.Errorf("citations = %v, want [1]", entry.CitationsUsed)
	}
	if entry.ModelResponse != "Sunny [1]" {
		t.Errorf("recorded response = %q", entry.ModelResponse)
	}
}

// ===== MODEL STATUS =====

func TestStatusReportsLoadingDuringWarmUp(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	var once sync.Once

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/api/generate", func(w http.ResponseWriter, r *http.Request) {
		once.Do(func() { close(started) })
		<-release
		w.WriteHeader(http.StatusOK)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := ollama.NewClientWithConfig(&ollama.ClientConfig{
		BaseURL:      server.URL,
		Timeout:      5 * time.Second,
		DefaultModel: "llama3.2",
	})
	eng := New(Config{
		Transport: client,
		Executor:  tools.NewExecutor(tools.NewRegistry()),
		Model:     "llama3.2",
	})

	done := make(chan error, 1)
	go func() { done <- eng.WarmUp(context.Background()) }()

	<-started
	if got := eng.Status(context.Background()); got != ollama.StatusLoading {
		t.Errorf("status during warm-up = %v, want loading", got)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("WarmUp: %v", err)
	}
	if got := eng.Status(context.Background()); got != ollama.StatusReady {
		t.Errorf("status after warm-up = %v, want ready", got)
	}
}
