// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config loads, validates, and persists convoke configuration.
//
// Configuration is read from ~/.convoke/config.toml (preferred) or
// config.json, merged over built-in defaults, then overridden by
// CONVOKE_* environment variables. A Watcher hot-reloads the file for
// long-lived sessions.
package config
