// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ui provides the terminal front-end for convoke: a Bubble Tea
// chat view and a line-oriented fallback REPL. The front-end only
// consumes engine APIs; no orchestration logic lives here.
package ui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// =============================================================================
// COLORS
// =============================================================================

// All colors use AdaptiveColor for automatic light/dark detection.
var (
	// Purple - assistant accent
	purple = lipgloss.AdaptiveColor{Light: "#7C3AED", Dark: "#A78BFA"}

	// Cyan - user accent, commands
	cyan = lipgloss.AdaptiveColor{Light: "#0891B2", Dark: "#22D3EE"}

	// Emerald - success, ready state
	emerald = lipgloss.AdaptiveColor{Light: "#059669", Dark: "#34D399"}

	// Rose - errors
	rose = lipgloss.AdaptiveColor{Light: "#E11D48", Dark: "#FB7185"}

	// Amber - warnings, searching state
	amber = lipgloss.AdaptiveColor{Light: "#D97706", Dark: "#FBBF24"}

	// Text hierarchy
	textPrimary   = lipgloss.AdaptiveColor{Light: "#1F2937", Dark: "#CDD6F4"}
	textSecondary = lipgloss.AdaptiveColor{Light: "#6B7280", Dark: "#A6ADC8"}
	textMuted     = lipgloss.AdaptiveColor{Light: "#9CA3AF", Dark: "#6C7086"}

	// Overlay - borders, separators
	overlay = lipgloss.AdaptiveColor{Light: "#E5E5E5", Dark: "#313244"}
)

// =============================================================================
// THEME
// =============================================================================

// Theme holds the styled components for the chat view.
type Theme struct {
	ColorProfile termenv.Profile

	Header      lipgloss.Style
	HeaderTitle lipgloss.Style
	HeaderMeta  lipgloss.Style

	UserLabel      lipgloss.Style
	AssistantLabel lipgloss.Style
	MessageBody    lipgloss.Style
	SourceList     lipgloss.Style

	StatusLine    lipgloss.Style
	StatusReady   lipgloss.Style
	StatusWorking lipgloss.Style
	Warning       lipgloss.Style
	ErrorText     lipgloss.Style

	InputPrompt lipgloss.Style
	HelpText    lipgloss.Style
}

// NewTheme builds the theme, detecting the terminal color profile.
func NewTheme() *Theme {
	return &Theme{
		ColorProfile: termenv.ColorProfile(),

		Header: lipgloss.NewStyle().
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			BorderForeground(overlay).
			Padding(0, 1),
		HeaderTitle: lipgloss.NewStyle().
			Foreground(purple).
			Bold(true),
		HeaderMeta: lipgloss.NewStyle().
			Foreground(textMuted),

		UserLabel: lipgloss.NewStyle().
			Foreground(cyan).
			Bold(true),
		AssistantLabel: lipgloss.NewStyle().
			Foreground(purple).
			Bold(true),
		MessageBody: lipgloss.NewStyle().
			Foreground(textPrimary),
		SourceList: lipgloss.NewStyle().
			Foreground(textSecondary),

		StatusLine: lipgloss.NewStyle().
			Foreground(textMuted).
			Padding(0, 1),
		StatusReady: lipgloss.NewStyle().
			Foreground(emerald),
		StatusWorking: lipgloss.NewStyle().
			Foreground(amber),
		Warning: lipgloss.NewStyle().
			Foreground(amber),
		ErrorText: lipgloss.NewStyle().
			Foreground(rose),

		InputPrompt: lipgloss.NewStyle().
			Foreground(cyan).
			Bold(true),
		HelpText: lipgloss.NewStyle().
			Foreground(textMuted),
	}
}
