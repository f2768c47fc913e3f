// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
//
// This package defines the core domain types used throughout the application
// for representing chat conversations, messages, settings, and context
// budget tracking.
//
// # Key Types
//
//   - Conversation: Container for a chat session with messages and metadata
//   - Message: Single message with role, content, status, and optional tool calls
//   - ChatSettings: Per-turn generation and search settings
//   - ContextBudget: Estimated token usage against the model's context window
//   - Role: Message role enumeration (user, assistant, system, tool)
//
// # Usage
//
// Create a new conversation and add a message:
//
//	conv := model.NewConversationWithModel("llama3.2")
//	conv.AddUserMessage("Hello!")
//
// Messages being streamed accumulate tokens and are sealed once:
//
//	msg := conv.AddAssistantMessage()
//	msg.AppendToken("Hi")
//	conv.FinalizeLast(stats)
package model
