// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
package model

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/jeranaias/convoke/internal/ollama"
	"github.com/jeranaias/convoke/internal/search"
)

// ToolCall is the wire-level tool invocation attached to assistant
// messages.
type ToolCall = ollama.ToolCall

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

var roleTitle = cases.Title(language.English)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	if r == RoleUser {
		return "You"
	}
	return roleTitle.String(string(r))
}

// =============================================================================
// STATUS TYPE
// =============================================================================

// Status marks what an in-flight assistant message is doing. It is
// transient display state and clears when the message completes.
type Status string

const (
	StatusNone      Status = ""
	StatusThinking  Status = "thinking"
	StatusSearching Status = "searching"
)

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message represents a single message in a conversation.
type Message struct {
	// Identity
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Timestamp time.Time `json:"timestamp"`

	// Content
	Content string `json:"content"`
	Status  Status `json:"status,omitempty"`

	// Streaming state (not persisted). The mutex guards the builder and
	// flag: the engine goroutine appends tokens while observers read
	// mid-stream content.
	// PERFORMANCE: strings.Builder avoids quadratic allocations during streaming
	streamMu      sync.RWMutex
	streaming     bool
	streamContent strings.Builder

	// Token statistics
	TokenCount int `json:"token_count,omitempty"`

	// Tool calling. ToolCalls is set on assistant messages that request
	// tool execution; ToolCallID and ToolName on the tool-role results.
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolName   string     `json:"tool_name,omitempty"`
	IsSuccess  bool       `json:"is_success,omitempty"`

	// Search results backing the citations in Content.
	SearchResults []search.Result `json:"search_results,omitempty"`

	// Performance metrics (for assistant messages)
	TTFT          time.Duration `json:"ttft_ns,omitempty"`
	TotalDuration time.Duration `json:"total_duration_ns,omitempty"`
	TokensPerSec  float64       `json:"tokens_per_sec,omitempty"`
}

// NewMessage creates a new message with a generated ID.
func NewMessage(role Role, content string) *Message {
	return &Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// NewUserMessage creates a new user message.
func NewUserMessage(content string) *Message {
	return NewMessage(RoleUser, content)
}

// NewAssistantMessage creates a new streaming assistant message.
func NewAssistantMessage() *Message {
	return &Message{
		ID:        uuid.NewString(),
		Role:      RoleAssistant,
		Timestamp: time.Now(),
		streaming: true,
	}
}

// NewAssistantPlaceholder creates the pending assistant message shown
// while a reply is being produced.
func NewAssistantPlaceholder() *Message {
	msg := NewAssistantMessage()
	msg.Status = StatusThinking
	return msg
}

// NewSystemMessage creates a new system message.
func NewSystemMessage(content string) *Message {
	return NewMessage(RoleSystem, content)
}

// NewToolCallMessage creates the assistant message that carries tool
// invocation requests. Content stays empty; the calls themselves are the
// payload.
func NewToolCallMessage(calls []ToolCall) *Message {
	msg := NewMessage(RoleAssistant, "")
	msg.ToolCalls = calls
	return msg
}

// NewToolMessage creates a new tool result message.
func NewToolMessage(toolName string, result string, success bool) *Message {
	msg := NewMessage(RoleTool, result)
	msg.ToolName = toolName
	msg.IsSuccess = success
	return msg
}

// =============================================================================
// MESSAGE METHODS
// =============================================================================

// AppendToken appends a token to a streaming message.
func (m *Message) AppendToken(token string) {
	m.streamMu.Lock()
	defer m.streamMu.Unlock()
	if m.streaming {
		m.streamContent.WriteString(token)
	}
}

// FinalizeStream completes streaming and sets statistics. The accumulated
// content is kept even when the stream was cut short.
func (m *Message) FinalizeStream(stats *Statistics) {
	m.streamMu.Lock()
	defer m.streamMu.Unlock()
	if !m.streaming {
		return
	}

	m.Content = m.streamContent.String()
	m.streamContent.Reset()
	m.streaming = false
	m.Status = StatusNone

	if stats != nil {
		m.TTFT = stats.TTFT
		m.TotalDuration = stats.TotalDuration
		m.TokenCount = stats.CompletionTokens
		m.TokensPerSec = stats.TokensPerSecond
	}
}

// Streaming reports whether the message is still accumulating tokens.
func (m *Message) Streaming() bool {
	m.streamMu.RLock()
	defer m.streamMu.RUnlock()
	return m.streaming
}

// GetDisplayContent returns the content to display (streaming or final).
func (m *Message) GetDisplayContent() string {
	m.streamMu.RLock()
	defer m.streamMu.RUnlock()
	if m.streaming {
		return m.streamContent.String()
	}
	return m.Content
}

// HasToolCalls reports whether the message requests tool execution.
func (m *Message) HasToolCalls() bool {
	return len(m.ToolCalls) > 0
}

// clone copies the exported state of a message. The streaming builder is
// deliberately left behind; clones are always sealed snapshots.
func (m *Message) clone() *Message {
	cp := &Message{
		ID:            m.ID,
		Role:          m.Role,
		Timestamp:     m.Timestamp,
		Content:       m.GetDisplayContent(),
		Status:        m.Status,
		TokenCount:    m.TokenCount,
		ToolCallID:    m.ToolCallID,
		ToolName:      m.ToolName,
		IsSuccess:     m.IsSuccess,
		TTFT:          m.TTFT,
		TotalDuration: m.TotalDuration,
		TokensPerSec:  m.TokensPerSec,
	}
	if len(m.ToolCalls) > 0 {
		cp.ToolCalls = append([]ToolCall(nil), m.ToolCalls...)
	}
	if len(m.SearchResults) > 0 {
		cp.SearchResults = append([]search.Result(nil), m.SearchResults...)
	}
	return cp
}

// WithContent returns a copy of the message with new content.
func (m *Message) WithContent(content string) *Message {
	cp := m.clone()
	cp.Content = content
	return cp
}

// WithStatus returns a copy of the message with a new status.
func (m *Message) WithStatus(status Status) *Message {
	cp := m.clone()
	cp.Status = status
	return cp
}

// WithSearchResults returns a copy of the message carrying search results.
func (m *Message) WithSearchResults(results []search.Result) *Message {
	cp := m.clone()
	cp.SearchResults = append([]search.Result(nil), results...)
	return cp
}

// Preview returns a truncated preview of the message content.
// Uses rune-based truncation to handle Unicode correctly.
func (m *Message) Preview(maxLen int) string {
	content := m.GetDisplayContent()
	runes := []rune(content)
	if len(runes) <= maxLen {
		return content
	}
	return string(runes[:maxLen-3]) + "..."
}

// IsEmpty returns true if the message has no content.
func (m *Message) IsEmpty() bool {
	m.streamMu.RLock()
	defer m.streamMu.RUnlock()
	return len(m.Content) == 0 && m.streamContent.Len() == 0
}

// EstimateTokens gives a rough estimate of token count.
// Uses the approximation of ~4 characters per token.
func (m *Message) EstimateTokens() int {
	content := m.GetDisplayContent()
	return (len(content) + 3) / 4
}

// FormatStats returns a formatted string of message statistics.
func (m *Message) FormatStats() string {
	if m.Role != RoleAssistant || m.TotalDuration == 0 {
		return ""
	}
	return fmt.Sprintf("%s | %d tokens | %.1f tok/s | TTFT %dms",
		formatDuration(m.TotalDuration),
		m.TokenCount,
		m.TokensPerSec,
		m.TTFT.Milliseconds())
}

// =============================================================================
// STATISTICS TYPE
// =============================================================================

// Statistics holds timing and token count information for a generation.
type Statistics struct {
	// Timestamps
	StartTime      time.Time
	FirstTokenTime time.Time
	EndTime        time.Time

	// Token counts
	PromptTokens     int
	CompletionTokens int

	// Derived metrics (computed on Finalize)
	TTFT            time.Duration
	TotalDuration   time.Duration
	TokensPerSecond float64
}

// NewStatistics creates a new Statistics with the start time set.
func NewStatistics() *Statistics {
	return &Statistics{
		StartTime: time.Now(),
	}
}

// RecordFirstToken records when the first token was received.
func (s *Statistics) RecordFirstToken() {
	if s.FirstTokenTime.IsZero() {
		s.FirstTokenTime = time.Now()
		s.TTFT = s.FirstTokenTime.Sub(s.StartTime)
	}
}

// Finalize computes the final statistics.
func (s *Statistics) Finalize(tokenCount int) {
	s.EndTime = time.Now()
	s.CompletionTokens = tokenCount
	s.TotalDuration = s.EndTime.Sub(s.StartTime)

	if s.TotalDuration > 0 {
		s.TokensPerSecond = float64(tokenCount) / s.TotalDuration.Seconds()
	}
}

// Format returns a formatted string of the statistics.
func (s *Statistics) Format() string {
	return fmt.Sprintf("%s | %d tokens | %.1f tok/s | TTFT %dms",
		formatDuration(s.TotalDuration),
		s.CompletionTokens,
		s.TokensPerSecond,
		s.TTFT.Milliseconds())
}

// formatDuration renders sub-second durations in milliseconds and longer
// ones in seconds with one decimal.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}
