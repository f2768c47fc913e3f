// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export renders conversations to portable formats.
//
// Two formats are supported: JSON (verbatim, round-trippable) and
// Markdown (a role-labelled transcript with tool output folded into
// collapsible sections). Exporters are pure transforms; ExportToFile
// adds filename generation and sanitization on top.
package export
