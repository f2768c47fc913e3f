// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package tools provides the tool system the model invokes during a
// conversation turn.
//
// The Registry maps tool names to definitions and exposes model-facing
// function-calling schemas. The Executor runs calls with validation,
// timeouts, and panic recovery; every failure mode is returned as a
// structured Result so it can flow back into the conversation as a
// tool-role message rather than aborting the turn.
package tools
