// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import "time"

// =============================================================================
// SEARCH MODE
// =============================================================================

// SearchMode controls when web search is offered to the model.
type SearchMode string

const (
	// SearchModeOff never enables tools.
	SearchModeOff SearchMode = "off"

	// SearchModeAuto enables tools whenever the model supports them and
	// lets the model decide.
	SearchModeAuto SearchMode = "auto"

	// SearchModeSmart classifies the query first and only enables tools
	// when the query plausibly needs fresh information.
	SearchModeSmart SearchMode = "smart"
)

// Valid reports whether the mode is one of the known values.
func (m SearchMode) Valid() bool {
	switch m {
	case SearchModeOff, SearchModeAuto, SearchModeSmart:
		return true
	}
	return false
}

// =============================================================================
// CHAT SETTINGS
// =============================================================================

// ChatSettings holds the per-turn generation settings. A turn reads a
// snapshot; changing settings mid-turn affects the next turn only.
type ChatSettings struct {
	Temperature      float64       `json:"temperature"`
	MaxTokens        int           `json:"max_tokens"`
	TopP             float64       `json:"top_p"`
	SearchMode       SearchMode    `json:"search_mode"`
	MaxSearchResults int           `json:"max_search_results"`
	SearchTimeout    time.Duration `json:"search_timeout"`
	SystemPrompt     string        `json:"system_prompt,omitempty"`
	DebugMode        bool          `json:"debug_mode"`
}

// DefaultChatSettings returns the standard settings for a new session.
func DefaultChatSettings() ChatSettings {
	return ChatSettings{
		Temperature:      0.7,
		MaxTokens:        2048,
		TopP:             0.9,
		SearchMode:       SearchModeSmart,
		MaxSearchResults: 8,
		SearchTimeout:    15 * time.Second,
	}
}

// Normalize clamps out-of-range values back to safe defaults.
func (s ChatSettings) Normalize() ChatSettings {
	if s.Temperature < 0 || s.Temperature > 2 {
		s.Temperature = 0.7
	}
	if s.MaxTokens <= 0 {
		s.MaxTokens = 2048
	}
	if s.TopP <= 0 || s.TopP > 1 {
		s.TopP = 0.9
	}
	if !s.SearchMode.Valid() {
		s.SearchMode = SearchModeSmart
	}
	if s.MaxSearchResults < 1 {
		s.MaxSearchResults = 1
	} else if s.MaxSearchResults > 10 {
		s.MaxSearchResults = 10
	}
	if s.SearchTimeout <= 0 {
		s.SearchTimeout = 15 * time.Second
	}
	return s
}
