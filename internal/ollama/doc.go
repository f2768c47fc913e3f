// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ollama provides the HTTP transport for the Ollama API.
//
// The client supports two request shapes against /api/chat: a streaming
// mode that decodes newline-delimited JSON frames and delivers content
// chunks in arrival order, and a non-streaming tool-aware mode used to
// probe for tool calls before committing to a stream. Cancellation of an
// in-flight stream is a normal completion, not an error; content already
// delivered stands.
//
// The package also carries the tool-capability table for local model
// families and derived model status (offline/loading/ready).
package ollama
