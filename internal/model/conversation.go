// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
package model

import (
	"time"

	"github.com/google/uuid"

	"github.com/jeranaias/convoke/internal/ollama"
)

// MaxMessages is the maximum number of messages to keep in conversation history.
// When exceeded, old messages are pruned to prevent unbounded memory growth.
const MaxMessages = 1000

// titlePreviewLen is how much of the first user message becomes the
// auto-generated title.
const titlePreviewLen = 50

// =============================================================================
// CONVERSATION TYPE
// =============================================================================

// Conversation holds a complete chat conversation with history and metadata.
type Conversation struct {
	// Identity
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Messages
	Messages []*Message `json:"messages"`

	// Model configuration
	Model string `json:"model"`

	// Context tracking
	TokensUsed     int     `json:"tokens_used"`
	MaxTokens      int     `json:"max_tokens"`
	ContextPercent float64 `json:"-"` // Computed, not persisted

	// System prompt (optional)
	SystemPrompt string `json:"system_prompt,omitempty"`
}

// NewConversation creates a new conversation with a generated ID.
func NewConversation() *Conversation {
	now := time.Now()
	return &Conversation{
		ID:        uuid.NewString(),
		CreatedAt: now,
		UpdatedAt: now,
		Messages:  make([]*Message, 0),
		MaxTokens: DefaultContextWindow,
	}
}

// NewConversationWithModel creates a new conversation with a specific model.
func NewConversationWithModel(model string) *Conversation {
	conv := NewConversation()
	conv.Model = model
	conv.MaxTokens = ContextWindowFor(model)
	return conv
}

// =============================================================================
// MESSAGE MANAGEMENT
// =============================================================================

// AddMessage adds a message to the conversation.
func (c *Conversation) AddMessage(msg *Message) {
	c.Messages = append(c.Messages, msg)
	c.touch()
	c.updateTokenEstimate()
	c.updateTitle()
	c.pruneOldMessages()
}

// AddUserMessage creates and adds a user message.
func (c *Conversation) AddUserMessage(content string) *Message {
	msg := NewUserMessage(content)
	c.AddMessage(msg)
	return msg
}

// AddAssistantMessage creates and adds a streaming assistant message.
func (c *Conversation) AddAssistantMessage() *Message {
	msg := NewAssistantMessage()
	c.AddMessage(msg)
	return msg
}

// AddToolMessage creates and adds a tool result message.
func (c *Conversation) AddToolMessage(toolName string, result string, success bool) *Message {
	msg := NewToolMessage(toolName, result, success)
	c.AddMessage(msg)
	return msg
}

// ReplaceLast swaps the most recent message for the given one. Used for
// copy-on-write updates of the in-flight assistant message. No-op on an
// empty conversation.
func (c *Conversation) ReplaceLast(msg *Message) {
	if len(c.Messages) == 0 {
		return
	}
	c.Messages[len(c.Messages)-1] = msg
	c.touch()
	c.updateTokenEstimate()
}

// InsertBeforeLast inserts messages just ahead of the most recent one.
// Used to slot tool traffic into history before the open assistant
// message. Appends when the conversation is empty.
func (c *Conversation) InsertBeforeLast(msgs ...*Message) {
	if len(msgs) == 0 {
		return
	}
	if len(c.Messages) == 0 {
		c.Messages = append(c.Messages, msgs...)
	} else {
		last := c.Messages[len(c.Messages)-1]
		c.Messages = append(c.Messages[:len(c.Messages)-1], append(msgs, last)...)
	}
	c.touch()
	c.updateTokenEstimate()
}

// GetLastMessage returns the most recent message, or nil if empty.
func (c *Conversation) GetLastMessage() *Message {
	if len(c.Messages) == 0 {
		return nil
	}
	return c.Messages[len(c.Messages)-1]
}

// GetLastAssistantMessage returns the most recent assistant message.
func (c *Conversation) GetLastAssistantMessage() *Message {
	for i := len(c.Messages) - 1; i >= 0; i-- {
		if c.Messages[i].Role == RoleAssistant {
			return c.Messages[i]
		}
	}
	return nil
}

// GetLastUserMessage returns the most recent user message.
func (c *Conversation) GetLastUserMessage() *Message {
	for i := len(c.Messages) - 1; i >= 0; i-- {
		if c.Messages[i].Role == RoleUser {
			return c.Messages[i]
		}
	}
	return nil
}

// AppendToLast appends a token to the last (streaming) message.
func (c *Conversation) AppendToLast(token string) {
	last := c.GetLastMessage()
	if last != nil && last.Streaming() {
		last.AppendToken(token)
	}
}

// FinalizeLast finalizes the last streaming message with statistics.
func (c *Conversation) FinalizeLast(stats *Statistics) {
	last := c.GetLastMessage()
	if last != nil && last.Streaming() {
		last.FinalizeStream(stats)
		c.updateTokenEstimate()
	}
}

// ClearHistory removes all messages from the conversation.
func (c *Conversation) ClearHistory() {
	c.Messages = make([]*Message, 0)
	c.TokensUsed = 0
	c.ContextPercent = 0
	c.touch()
}

// GetMessageByID returns a message by its ID.
func (c *Conversation) GetMessageByID(id string) *Message {
	for _, msg := range c.Messages {
		if msg.ID == id {
			return msg
		}
	}
	return nil
}

// MessageCount returns the number of messages.
func (c *Conversation) MessageCount() int {
	return len(c.Messages)
}

// IsEmpty returns true if there are no messages.
func (c *Conversation) IsEmpty() bool {
	return len(c.Messages) == 0
}

// touch advances UpdatedAt, keeping it monotone even if the wall clock
// steps backwards.
func (c *Conversation) touch() {
	now := time.Now()
	if now.After(c.UpdatedAt) {
		c.UpdatedAt = now
	}
}

// =============================================================================
// WIRE CONVERSION
// =============================================================================

// ToWire converts the conversation to the chat API message format. The
// system prompt leads, and tool traffic (assistant tool_calls plus
// tool-role results) is forwarded so multi-step tool loops keep their
// full context.
func (c *Conversation) ToWire() []ollama.Message {
	messages := make([]ollama.Message, 0, len(c.Messages)+1)

	if c.SystemPrompt != "" {
		messages = append(messages, ollama.NewSystemMessage(c.SystemPrompt))
	}

	for _, msg := range c.Messages {
		switch msg.Role {
		case RoleUser:
			messages = append(messages, ollama.NewUserMessage(msg.GetDisplayContent()))
		case RoleAssistant:
			if msg.HasToolCalls() {
				messages = append(messages, ollama.NewAssistantToolCallMessage(msg.ToolCalls))
				continue
			}
			if content := msg.GetDisplayContent(); content != "" {
				messages = append(messages, ollama.NewAssistantMessage(content))
			}
		case RoleSystem:
			messages = append(messages, ollama.NewSystemMessage(msg.GetDisplayContent()))
		case RoleTool:
			messages = append(messages, ollama.NewToolResultMessage(msg.ToolName, msg.Content))
		}
	}

	return messages
}

// GetHistory returns the message history for display.
func (c *Conversation) GetHistory() []*Message {
	return c.Messages
}

// =============================================================================
// TOKEN TRACKING
// =============================================================================

// EstimateTokens estimates the total token count of the conversation.
func (c *Conversation) EstimateTokens() int {
	total := 0

	if c.SystemPrompt != "" {
		total += (len(c.SystemPrompt) + 3) / 4
	}

	for _, msg := range c.Messages {
		total += msg.EstimateTokens()
		// Overhead for message structure (~4 tokens per message)
		total += 4
	}

	return total
}

// updateTokenEstimate updates the token usage and context percentage.
func (c *Conversation) updateTokenEstimate() {
	c.TokensUsed = c.EstimateTokens()
	if c.MaxTokens > 0 {
		c.ContextPercent = float64(c.TokensUsed) / float64(c.MaxTokens) * 100
	}
}

// Budget returns the context budget state for the conversation.
func (c *Conversation) Budget() ContextBudget {
	return ContextBudget{Used: c.TokensUsed, Window: c.MaxTokens}
}

// SetMaxTokens updates the maximum context window.
func (c *Conversation) SetMaxTokens(max int) {
	c.MaxTokens = max
	c.updateTokenEstimate()
}

// =============================================================================
// TITLE MANAGEMENT
// =============================================================================

// updateTitle auto-generates a title from the first user message if not set.
func (c *Conversation) updateTitle() {
	if c.Title != "" {
		return
	}

	for _, msg := range c.Messages {
		if msg.Role == RoleUser {
			c.Title = msg.Preview(titlePreviewLen)
			return
		}
	}
}

// SetTitle manually sets the conversation title.
func (c *Conversation) SetTitle(title string) {
	c.Title = title
	c.touch()
}

// GetTitle returns the conversation title or a default.
func (c *Conversation) GetTitle() string {
	if c.Title != "" {
		return c.Title
	}
	return "New Conversation"
}

// =============================================================================
// SERIALIZATION HELPERS
// =============================================================================

// Preview returns a short preview of the conversation.
func (c *Conversation) Preview() string {
	if len(c.Messages) == 0 {
		return "Empty conversation"
	}

	first := c.GetLastUserMessage()
	if first == nil {
		first = c.Messages[0]
	}

	return first.Preview(100)
}

// GetMeta returns metadata about the conversation.
func (c *Conversation) GetMeta() ConversationMeta {
	return ConversationMeta{
		ID:           c.ID,
		Title:        c.GetTitle(),
		Model:        c.Model,
		MessageCount: len(c.Messages),
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
		Preview:      c.Preview(),
	}
}

// ConversationMeta holds lightweight metadata for listing.
type ConversationMeta struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Model        string    `json:"model"`
	MessageCount int       `json:"message_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	Preview      string    `json:"preview"`
}

// Clone creates a deep copy of the conversation.
func (c *Conversation) Clone() *Conversation {
	clone := &Conversation{
		ID:           c.ID,
		Title:        c.Title,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
		Model:        c.Model,
		TokensUsed:   c.TokensUsed,
		MaxTokens:    c.MaxTokens,
		SystemPrompt: c.SystemPrompt,
		Messages:     make([]*Message, len(c.Messages)),
	}

	for i, msg := range c.Messages {
		clone.Messages[i] = msg.clone()
	}

	return clone
}

// pruneOldMessages removes old messages when conversation history exceeds MaxMessages.
// Keeps the system prompt message (if any) and the most recent MaxMessages messages.
func (c *Conversation) pruneOldMessages() {
	if len(c.Messages) <= MaxMessages {
		return
	}

	var systemMessages []*Message
	var otherMessages []*Message
	for _, msg := range c.Messages {
		if msg.Role == RoleSystem {
			systemMessages = append(systemMessages, msg)
		} else {
			otherMessages = append(otherMessages, msg)
		}
	}

	if len(otherMessages) > MaxMessages {
		otherMessages = otherMessages[len(otherMessages)-MaxMessages:]
	}

	c.Messages = make([]*Message, 0, len(systemMessages)+len(otherMessages))
	c.Messages = append(c.Messages, systemMessages...)
	c.Messages = append(c.Messages, otherMessages...)
}
