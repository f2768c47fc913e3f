// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"encoding/json"
	"strconv"
	"time"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// Message represents a chat message on the wire.
type Message struct {
	Role      string     `json:"role"` // "user", "assistant", "system", "tool"
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	ToolName  string     `json:"tool_name,omitempty"`
}

// ToolCall represents a tool invocation requested by the model.
type ToolCall struct {
	ID       string       `json:"id,omitempty"`
	Type     string       `json:"type,omitempty"` // "function" when set
	Function ToolFunction `json:"function"`
}

// ToolFunction carries the function name and raw arguments. Arguments are
// kept as raw JSON because some models emit a structured object and others
// emit a JSON-encoded string of that object.
type ToolFunction struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// ArgumentsMap decodes the call arguments into a map, tolerating both
// structured and string-encoded forms. Malformed arguments decode to an
// empty map rather than an error, so a sloppy model cannot abort the turn.
func (tc *ToolCall) ArgumentsMap() map[string]interface{} {
	raw := tc.Function.Arguments
	if len(raw) == 0 {
		return map[string]interface{}{}
	}

	var args map[string]interface{}
	if err := json.Unmarshal(raw, &args); err == nil {
		return args
	}

	// Second form: the object arrives wrapped in a JSON string.
	var encoded string
	if err := json.Unmarshal(raw, &encoded); err == nil {
		if err := json.Unmarshal([]byte(encoded), &args); err == nil && args != nil {
			return args
		}
	}

	return map[string]interface{}{}
}

// ChatRequest is the request body for /api/chat.
type ChatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
	Options  *Options  `json:"options,omitempty"`
	Tools    []Tool    `json:"tools,omitempty"`
}

// Tool is the model-facing function-calling definition.
type Tool struct {
	Type     string     `json:"type"` // always "function"
	Function ToolSchema `json:"function"`
}

// ToolSchema defines a tool's interface.
type ToolSchema struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  ToolParameters `json:"parameters"`
}

// ToolParameters is the JSON Schema object describing tool parameters.
type ToolParameters struct {
	Type       string                  `json:"type"` // "object"
	Properties map[string]ToolProperty `json:"properties"`
	Required   []string                `json:"required,omitempty"`
}

// ToolProperty defines a single parameter property.
type ToolProperty struct {
	Type        string   `json:"type"`
	Description string   `json:"description"`
	Enum        []string `json:"enum,omitempty"`
	Default     any      `json:"default,omitempty"`
}

// Options contains model inference parameters.
type Options struct {
	Temperature float64  `json:"temperature,omitempty"` // 0.0-2.0
	TopK        int      `json:"top_k,omitempty"`
	TopP        float64  `json:"top_p,omitempty"` // 0.0-1.0
	NumCtx      int      `json:"num_ctx,omitempty"`
	NumPredict  int      `json:"num_predict,omitempty"` // max tokens, -1 unlimited
	Stop        []string `json:"stop,omitempty"`
	Seed        int      `json:"seed,omitempty"`
}

// GenerateRequest is the request body for /api/generate, used for warm-up.
type GenerateRequest struct {
	Model   string   `json:"model"`
	Prompt  string   `json:"prompt"`
	Stream  bool     `json:"stream"`
	Options *Options `json:"options,omitempty"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// ChatResponse is the non-streaming response from /api/chat.
type ChatResponse struct {
	Model              string    `json:"model"`
	CreatedAt          time.Time `json:"created_at"`
	Message            Message   `json:"message"`
	Done               bool      `json:"done"`
	DoneReason         string    `json:"done_reason,omitempty"`
	TotalDuration      int64     `json:"total_duration,omitempty"` // nanoseconds
	LoadDuration       int64     `json:"load_duration,omitempty"`
	PromptEvalCount    int       `json:"prompt_eval_count,omitempty"`
	PromptEvalDuration int64     `json:"prompt_eval_duration,omitempty"`
	EvalCount          int       `json:"eval_count,omitempty"`
	EvalDuration       int64     `json:"eval_duration,omitempty"`
}

// GenerateResponse is the response from /api/generate.
type GenerateResponse struct {
	Model     string    `json:"model"`
	CreatedAt time.Time `json:"created_at"`
	Response  string    `json:"response"`
	Done      bool      `json:"done"`
}

// ModelInfo describes one locally available model.
type ModelInfo struct {
	Name       string       `json:"name"`
	ModifiedAt time.Time    `json:"modified_at"`
	Size       int64        `json:"size"`
	Digest     string       `json:"digest"`
	Details    ModelDetails `json:"details,omitempty"`
}

// ModelDetails contains model metadata from /api/tags.
type ModelDetails struct {
	Format            string   `json:"format"`
	Family            string   `json:"family"`
	Families          []string `json:"families"`
	ParameterSize     string   `json:"parameter_size"`
	QuantizationLevel string   `json:"quantization_level"`
}

// ListModelsResponse is the response from /api/tags.
type ListModelsResponse struct {
	Models []ModelInfo `json:"models"`
}

// =============================================================================
// STREAMING TYPES
// =============================================================================

// StreamChunk is a single decoded frame from a streaming response.
type StreamChunk struct {
	Content   string
	ToolCalls []ToolCall

	Done       bool
	DoneReason string

	// Timing, populated on the final frame only.
	TotalDuration      time.Duration
	LoadDuration       time.Duration
	PromptEvalDuration time.Duration
	EvalDuration       time.Duration
	PromptTokens       int
	CompletionTokens   int

	Model string

	// Error, delivered only through channel-based streaming.
	Error error
}

// apiError is the error body Ollama returns on non-2xx responses.
type apiError struct {
	Error string `json:"error"`
}

// =============================================================================
// HELPER METHODS
// =============================================================================

// NewUserMessage creates a user message.
func NewUserMessage(content string) Message {
	return Message{Role: "user", Content: content}
}

// NewAssistantMessage creates an assistant message.
func NewAssistantMessage(content string) Message {
	return Message{Role: "assistant", Content: content}
}

// NewSystemMessage creates a system message.
func NewSystemMessage(content string) Message {
	return Message{Role: "system", Content: content}
}

// NewToolResultMessage creates a tool result message.
func NewToolResultMessage(toolName, content string) Message {
	return Message{Role: "tool", Content: content, ToolName: toolName}
}

// NewAssistantToolCallMessage creates the assistant message that records a
// batch of tool calls. Content stays empty so intermediate model reasoning
// never reaches the user.
func NewAssistantToolCallMessage(toolCalls []ToolCall) Message {
	return Message{Role: "assistant", Content: "", ToolCalls: toolCalls}
}

// HasToolCalls reports whether the message carries tool calls.
func (m *Message) HasToolCalls() bool {
	return len(m.ToolCalls) > 0
}

// TokensPerSecond calculates generation speed from a response.
func (r *ChatResponse) TokensPerSecond() float64 {
	if r.EvalDuration == 0 {
		return 0
	}
	return float64(r.EvalCount) / (float64(r.EvalDuration) / 1e9)
}

// TotalTime returns the total generation time.
func (r *ChatResponse) TotalTime() time.Duration {
	return time.Duration(r.TotalDuration)
}

// FormatSize formats the model size in human-readable form.
func (m *ModelInfo) FormatSize() string {
	const (
		kb = 1024
		mb = kb * 1024
		gb = mb * 1024
	)

	format := func(v float64) string {
		return strconv.FormatFloat(v, 'f', 1, 64)
	}

	switch {
	case m.Size >= gb:
		return format(float64(m.Size)/gb) + " GB"
	case m.Size >= mb:
		return format(float64(m.Size)/mb) + " MB"
	case m.Size >= kb:
		return format(float64(m.Size)/kb) + " KB"
	default:
		return strconv.FormatInt(m.Size, 10) + " B"
	}
}
