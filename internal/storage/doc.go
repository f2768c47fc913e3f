// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides conversation persistence.
//
// This package handles saving and loading conversations to/from disk,
// with support for search, listing, and pruning.
//
// # Key Types
//
//   - Store: JSON-file-per-conversation persistence
//   - StoreError: typed error with errors.Is support
//
// # Usage
//
// Create a store and save a conversation:
//
//	store, err := storage.NewStore()
//	id, err := store.Save(conversation)
//
// List and load conversations:
//
//	metas, err := store.List()
//	conv, err := store.Load(metas[0].ID)
//
// Search conversations:
//
//	results, err := store.Search("query text")
//
// # Storage Location
//
// Conversations are stored in ~/.convoke/conversations/ as JSON files.
package storage
