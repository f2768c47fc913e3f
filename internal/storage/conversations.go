// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides conversation persistence.
package storage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/jeranaias/convoke/internal/model"
	"github.com/jeranaias/convoke/internal/util"
)

// =============================================================================
// CONVERSATION STORE
// =============================================================================

// Store persists conversations as one JSON file each.
type Store struct {
	// BaseDir is the directory for storing conversations
	// Default: ~/.convoke/conversations/
	BaseDir string

	// MaxConversations limits stored conversations (0 = unlimited)
	MaxConversations int
}

// NewStore creates a store under the user's home directory.
func NewStore() (*Store, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	return NewStoreWithDir(filepath.Join(homeDir, ".convoke", "conversations"))
}

// NewStoreWithDir creates a store with a custom directory.
func NewStoreWithDir(baseDir string) (*Store, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, err
	}

	return &Store{
		BaseDir:          baseDir,
		MaxConversations: 100,
	}, nil
}

// =============================================================================
// SAVE OPERATIONS
// =============================================================================

// Save persists a conversation and returns its ID. A missing ID or title
// is filled in before writing.
func (s *Store) Save(conv *model.Conversation) (string, error) {
	if conv.ID == "" {
		conv.ID = uuid.NewString()
	}
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = conv.UpdatedAt
	}

	data, err := json.MarshalIndent(conv, "", "  ")
	if err != nil {
		return "", err
	}

	// RELIABILITY: Atomic write with fsync prevents data loss on crash
	if err := util.AtomicWriteFile(s.filePath(conv.ID), data, 0644); err != nil {
		return "", err
	}

	if s.MaxConversations > 0 {
		s.enforceLimit()
	}

	return conv.ID, nil
}

// enforceLimit removes oldest conversations if over limit.
func (s *Store) enforceLimit() {
	metas, err := s.List()
	if err != nil || len(metas) <= s.MaxConversations {
		return
	}

	// Oldest first for deletion.
	sort.Slice(metas, func(i, j int) bool {
		return metas[i].UpdatedAt.Before(metas[j].UpdatedAt)
	})

	excess := len(metas) - s.MaxConversations
	for i := 0; i < excess; i++ {
		s.Delete(metas[i].ID)
	}
}

// =============================================================================
// LOAD OPERATIONS
// =============================================================================

// Load retrieves a conversation by ID.
func (s *Store) Load(id string) (*model.Conversation, error) {
	data, err := os.ReadFile(s.filePath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConversationNotFound
		}
		return nil, err
	}

	var conv model.Conversation
	if err := json.Unmarshal(data, &conv); err != nil {
		return nil, err
	}

	return &conv, nil
}

// LoadByIndex loads a conversation by its index in the list (0 = most recent).
func (s *Store) LoadByIndex(index int) (*model.Conversation, error) {
	metas, err := s.List()
	if err != nil {
		return nil, err
	}

	if index < 0 || index >= len(metas) {
		return nil, ErrConversationNotFound
	}

	return s.Load(metas[index].ID)
}

// =============================================================================
// LIST OPERATIONS
// =============================================================================

// List returns all saved conversations (most recent first). Corrupt
// files are skipped rather than failing the listing.
func (s *Store) List() ([]model.ConversationMeta, error) {
	entries, err := os.ReadDir(s.BaseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []model.ConversationMeta{}, nil
		}
		return nil, err
	}

	var metas []model.ConversationMeta
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		conv, err := s.Load(strings.TrimSuffix(entry.Name(), ".json"))
		if err != nil {
			continue
		}

		metas = append(metas, conv.GetMeta())
	}

	sort.Slice(metas, func(i, j int) bool {
		return metas[i].UpdatedAt.After(metas[j].UpdatedAt)
	})

	return metas, nil
}

// Search finds conversations whose title or preview matches a query
// string (case-insensitive).
func (s *Store) Search(query string) ([]model.ConversationMeta, error) {
	all, err := s.List()
	if err != nil {
		return nil, err
	}

	query = strings.ToLower(query)
	var results []model.ConversationMeta
	for _, meta := range all {
		if strings.Contains(strings.ToLower(meta.Title), query) ||
			strings.Contains(strings.ToLower(meta.Preview), query) {
			results = append(results, meta)
		}
	}

	return results, nil
}

// SearchMessages searches conversations by message content
// (case-insensitive).
func (s *Store) SearchMessages(query string) ([]model.ConversationMeta, error) {
	if query == "" {
		return s.List()
	}

	all, err := s.List()
	if err != nil {
		return nil, err
	}

	query = strings.ToLower(query)
	var results []model.ConversationMeta
	for _, meta := range all {
		conv, err := s.Load(meta.ID)
		if err != nil {
			continue
		}

		for _, msg := range conv.Messages {
			if strings.Contains(strings.ToLower(msg.Content), query) {
				results = append(results, meta)
				break
			}
		}
	}

	return results, nil
}

// =============================================================================
// DELETE OPERATIONS
// =============================================================================

// Delete removes a conversation by ID.
func (s *Store) Delete(id string) error {
	if err := os.Remove(s.filePath(id)); err != nil {
		if os.IsNotExist(err) {
			return ErrConversationNotFound
		}
		return err
	}
	return nil
}

// Clear removes all saved conversations.
func (s *Store) Clear() error {
	entries, err := os.ReadDir(s.BaseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".json") {
			os.Remove(filepath.Join(s.BaseDir, entry.Name()))
		}
	}

	return nil
}

// filePath returns the file path for a conversation ID.
func (s *Store) filePath(id string) string {
	return filepath.Join(s.BaseDir, id+".json")
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrConversationNotFound is returned when a conversation doesn't exist.
// Use errors.Is(err, ErrConversationNotFound) to check for this error.
var ErrConversationNotFound = &StoreError{Message: "conversation not found"}

// StoreError represents a persistence error.
type StoreError struct {
	Message string
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	return e.Message
}

// Is implements errors.Is support for comparing store errors.
func (e *StoreError) Is(target error) bool {
	t, ok := target.(*StoreError)
	if !ok {
		return false
	}
	return e.Message == t.Message
}

// =============================================================================
// LISTING FORMAT
// =============================================================================

// FormatList renders conversation metadata as a plain-text table for the
// list subcommand.
func FormatList(metas []model.ConversationMeta) string {
	if len(metas) == 0 {
		return "No conversations found."
	}

	var sb strings.Builder
	sb.WriteString("Conversations:\n")
	sb.WriteString("-----------------------------------------------------\n")
	sb.WriteString(pad("ID", 12) + " " + pad("Updated", 20) + " " + pad("Messages", 8) + " Title\n")
	sb.WriteString("-----------------------------------------------------\n")

	for _, m := range metas {
		id := m.ID
		if len(id) > 12 {
			id = id[:12]
		}
		sb.WriteString(pad(id, 12) + " " +
			pad(m.UpdatedAt.Format("2006-01-02 15:04"), 20) + " " +
			pad(strconv.Itoa(m.MessageCount), 8) + " " +
			util.TruncateRunes(m.Title, 40) + "\n")
	}
	return sb.String()
}

// pad right-pads a string to the given width.
func pad(s string, width int) string {
	runes := []rune(s)
	if len(runes) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(runes))
}
