// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small shared helpers for convoke.
//
// String helpers are UTF-8 safe: truncation counts runes or display
// columns, never bytes. AtomicWriteFile gives crash-safe persistence for
// the conversation store and configuration.
package util
