// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package loop

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/jeranaias/convoke/internal/ollama"
	"github.com/jeranaias/convoke/internal/tools"
)

// fakeTransport scripts probe responses and streaming chunks.
type fakeTransport struct {
	probes       []*ollama.ChatResponse
	probeCalls   int
	probeHistory [][]ollama.Message

	streamChunks  []ollama.StreamChunk
	streamCalls   int
	streamHistory []ollama.Message
	streamErr     error
}

func (f *fakeTransport) Chat(ctx context.Context, model string, messages []ollama.Message, toolDefs []ollama.Tool, opts *ollama.Options) (*ollama.ChatResponse, error) {
	f.probeHistory = append(f.probeHistory, append([]ollama.Message(nil), messages...))
	if f.probeCalls >= len(f.probes) {
		return nil, fmt.Errorf("unexpected probe %d", f.probeCalls+1)
	}
	resp := f.probes[f.probeCalls]
	f.probeCalls++
	return resp, nil
}

func (f *fakeTransport) ChatStream(ctx context.Context, model string, messages []ollama.Message, opts *ollama.Options, callback ollama.StreamCallback) error {
	f.streamCalls++
	f.streamHistory = append([]ollama.Message(nil), messages...)
	if f.streamErr != nil {
		return f.streamErr
	}
	for _, chunk := range f.streamChunks {
		callback(chunk)
	}
	return nil
}

func textResponse(content string) *ollama.ChatResponse {
	return &ollama.ChatResponse{
		Message: ollama.Message{Role: "assistant", Content: content},
		Done:    true,
	}
}

func toolCallResponse(name, args string) *ollama.ChatResponse {
	return &ollama.ChatResponse{
		Message: ollama.Message{
			Role: "assistant",
			ToolCalls: []ollama.ToolCall{{
				Function: ollama.ToolFunction{
					Name:      name,
					Arguments: json.RawMessage(args),
				},
			}},
		},
		Done: true,
	}
}

func contentChunks(parts ...string) []ollama.StreamChunk {
	chunks := make([]ollama.StreamChunk, 0, len(parts)+1)
	for _, p := range parts {
		chunks = append(chunks, ollama.StreamChunk{Content: p})
	}
	return append(chunks, ollama.StreamChunk{Done: true, CompletionTokens: len(parts)})
}

// lookupTool requires a "query" string and echoes it back.
func lookupTool() *tools.Tool {
	return &tools.Tool{
		Name: "lookup",
		Schema: tools.Schema{
			Parameters: []tools.Parameter{
				{Name: "query", Type: "string", Required: true},
			},
		},
		Executor: lookupExec{},
	}
}

type lookupExec struct{}

func (lookupExec) Execute(ctx context.Context, params map[string]interface{}) (tools.Result, error) {
	query, _ := params["query"].(string)
	return tools.Result{
		Success: true,
		Data:    map[string]interface{}{"formatted": "looked up: " + query},
	}, nil
}

func newController(transport *fakeTransport) (*Controller, []ollama.Tool) {
	registry := tools.NewRegistry()
	registry.Register(lookupTool())
	return NewController(transport, tools.NewExecutor(registry)), registry.Definitions()
}

func TestRunWithoutToolsStreamsDirectly(t *testing.T) {
	transport := &fakeTransport{streamChunks: contentChunks("Hello, ", "world")}
	controller, _ := newController(transport)

	outcome, err := controller.Run(context.Background(), Request{
		Model:    "llama3.2",
		Messages: []ollama.Message{ollama.NewUserMessage("hi")},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if transport.probeCalls != 0 {
		t.Errorf("probe calls = %d, want 0 when no tools offered", transport.probeCalls)
	}
	if outcome.Content != "Hello, world" {
		t.Errorf("content = %q", outcome.Content)
	}
	if outcome.Iterations != 0 || outcome.UsedTools() {
		t.Errorf("iterations = %d, used tools = %v", outcome.Iterations, outcome.UsedTools())
	}
}

func TestRunProbeDeclinesTools(t *testing.T) {
	transport := &fakeTransport{
		probes:       []*ollama.ChatResponse{textResponse("direct answer")},
		streamChunks: contentChunks("final answer"),
	}
	controller, defs := newController(transport)

	var tokens []string
	outcome, err := controller.Run(context.Background(), Request{
		Model:    "llama3.2",
		Messages: []ollama.Message{ollama.NewUserMessage("2+2?")},
		Tools:    defs,
		OnToken:  func(tok string) { tokens = append(tokens, tok) },
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	// The probe's content is discarded; the answer comes from the stream.
	if outcome.Content != "final answer" {
		t.Errorf("content = %q", outcome.Content)
	}
	if len(tokens) != 1 || tokens[0] != "final answer" {
		t.Errorf("tokens = %v", tokens)
	}
	if outcome.Iterations != 1 {
		t.Errorf("iterations = %d, want 1", outcome.Iterations)
	}
	if outcome.UsedTools() {
		t.Error("UsedTools() = true, want false")
	}
}

func TestRunExecutesToolThenStreams(t *testing.T) {
	transport := &fakeTransport{
		probes: []*ollama.ChatResponse{
			toolCallResponse("lookup", `{"query":"Tokyo weather"}`),
			textResponse(""),
		},
		streamChunks: contentChunks("It is sunny. [1]"),
	}
	controller, defs := newController(transport)

	outcome, err := controller.Run(context.Background(), Request{
		Model:    "llama3.2",
		Messages: []ollama.Message{ollama.NewUserMessage("weather in Tokyo?")},
		Tools:    defs,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if outcome.Iterations != 2 {
		t.Errorf("iterations = %d, want 2", outcome.Iterations)
	}
	if len(outcome.Steps) != 1 {
		t.Fatalf("steps = %d, want 1", len(outcome.Steps))
	}
	step := outcome.Steps[0]
	if step.ToolName != "lookup" {
		t.Errorf("step tool = %q", step.ToolName)
	}
	if step.Arguments["query"] != "Tokyo weather" {
		t.Errorf("step args = %v", step.Arguments)
	}
	if !step.Result.Success {
		t.Errorf("step failed: %s", step.Result.Error)
	}

	// The second probe and the final stream see the tool traffic.
	history := transport.streamHistory
	if len(history) != 3 {
		t.Fatalf("stream history length = %d, want 3", len(history))
	}
	if history[1].Role != "assistant" || history[1].Content != "" || len(history[1].ToolCalls) != 1 {
		t.Errorf("history[1] = %+v, want empty-content assistant tool call", history[1])
	}
	if history[2].Role != "tool" || !strings.Contains(history[2].Content, "looked up: Tokyo weather") {
		t.Errorf("history[2] = %+v", history[2])
	}
}

func TestRunMalformedArgumentsBecomeToolError(t *testing.T) {
	transport := &fakeTransport{
		probes: []*ollama.ChatResponse{
			toolCallResponse("lookup", `not json at all`),
			textResponse(""),
		},
		streamChunks: contentChunks("I could not look that up."),
	}
	controller, defs := newController(transport)

	outcome, err := controller.Run(context.Background(), Request{
		Model:    "llama3.2",
		Messages: []ollama.Message{ollama.NewUserMessage("weather?")},
		Tools:    defs,
	})
	if err != nil {
		t.Fatalf("Run: %v, want validation fed back as tool message", err)
	}

	if len(outcome.Steps) != 1 {
		t.Fatalf("steps = %d, want 1", len(outcome.Steps))
	}
	if outcome.Steps[0].Result.Success {
		t.Error("tool succeeded with malformed arguments")
	}
	if history := transport.streamHistory; !strings.Contains(history[2].Content, "Error:") {
		t.Errorf("tool message = %q, want error content", history[2].Content)
	}
}

func TestRunIterationExhaustion(t *testing.T) {
	probes := make([]*ollama.ChatResponse, MaxIterations)
	for i := range probes {
		probes[i] = toolCallResponse("lookup", `{"query":"again"}`)
	}
	transport := &fakeTransport{probes: probes}
	controller, defs := newController(transport)

	_, err := controller.Run(context.Background(), Request{
		Model:    "llama3.2",
		Messages: []ollama.Message{ollama.NewUserMessage("loop forever")},
		Tools:    defs,
	})
	if !errors.Is(err, ErrMaxIterations) {
		t.Fatalf("err = %v, want ErrMaxIterations", err)
	}
	if err.Error() != "maximum tool iterations reached" {
		t.Errorf("err text = %q", err.Error())
	}
	if transport.probeCalls != MaxIterations {
		t.Errorf("probe calls = %d, want %d", transport.probeCalls, MaxIterations)
	}
	if transport.streamCalls != 0 {
		t.Error("stream ran despite exhaustion")
	}
}

func TestRunPhaseHooks(t *testing.T) {
	transport := &fakeTransport{
		probes: []*ollama.ChatResponse{
			toolCallResponse("lookup", `{"query":"x"}`),
			textResponse(""),
		},
		streamChunks: contentChunks("done"),
	}
	controller, defs := newController(transport)

	var phases []Phase
	var executed []string
	controller.SetHooks(Hooks{
		OnPhase:        func(p Phase, iteration int) { phases = append(phases, p) },
		OnToolExecuted: func(name string, result tools.Result) { executed = append(executed, name) },
	})

	if _, err := controller.Run(context.Background(), Request{
		Model:    "llama3.2",
		Messages: []ollama.Message{ollama.NewUserMessage("q")},
		Tools:    defs,
	}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := []Phase{PhaseDeciding, PhaseExecuting, PhaseDeciding, PhaseFinalizing}
	if len(phases) != len(want) {
		t.Fatalf("phases = %v, want %v", phases, want)
	}
	for i := range want {
		if phases[i] != want[i] {
			t.Fatalf("phases = %v, want %v", phases, want)
		}
	}
	if len(executed) != 1 || executed[0] != "lookup" {
		t.Errorf("executed = %v", executed)
	}
}

func TestRunTransportErrorIsFatal(t *testing.T) {
	transport := &fakeTransport{streamErr: ollama.ErrNotRunning}
	controller, _ := newController(transport)

	_, err := controller.Run(context.Background(), Request{
		Model:    "llama3.2",
		Messages: []ollama.Message{ollama.NewUserMessage("hi")},
	})
	if !ollama.IsNotRunning(err) {
		t.Errorf("err = %v, want not-running", err)
	}
}
