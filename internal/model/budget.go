// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

// =============================================================================
// CONTEXT BUDGET
// =============================================================================

// Budget thresholds. Estimation uses the rough ~4 chars/token heuristic,
// so the thresholds leave headroom for estimation error.
const (
	NearLimitPercent = 75
	CriticalPercent  = 90
)

// DefaultContextWindow is assumed when the model's window is unknown.
const DefaultContextWindow = 128000

// contextWindows maps known local model families to their context window
// sizes. Prefix-matched against the normalized model name.
var contextWindows = map[string]int{
	"llama3":        8192,
	"llama3.1":      128000,
	"llama3.2":      128000,
	"llama3.3":      128000,
	"qwen2.5":       32768,
	"qwen2.5-coder": 32768,
	"qwen3":         32768,
	"mistral":       32768,
	"mixtral":       32768,
	"gemma2":        8192,
	"phi3":          128000,
	"deepseek-r1":   64000,
	"command-r":     128000,
}

// ContextWindowFor returns the context window for a model name, falling
// back to DefaultContextWindow. The name may carry a tag suffix
// ("llama3.2:3b").
func ContextWindowFor(name string) int {
	base := name
	for i := 0; i < len(name); i++ {
		if name[i] == ':' {
			base = name[:i]
			break
		}
	}

	if window, ok := contextWindows[base]; ok {
		return window
	}

	// Longest-prefix match so "qwen2.5-coder" beats "qwen2.5".
	best := 0
	window := DefaultContextWindow
	for family, w := range contextWindows {
		if len(family) > best && len(base) >= len(family) && base[:len(family)] == family {
			best = len(family)
			window = w
		}
	}
	return window
}

// EstimateTokens approximates the token count of a text using the
// ~4 chars/token heuristic.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}

// ContextBudget tracks estimated token usage against a model's context
// window.
type ContextBudget struct {
	Used   int
	Window int
}

// Percent returns the fraction of the window consumed, as a percentage.
func (b ContextBudget) Percent() float64 {
	if b.Window <= 0 {
		return 0
	}
	return float64(b.Used) / float64(b.Window) * 100
}

// NearLimit reports usage at or above 75% of the window.
func (b ContextBudget) NearLimit() bool {
	return b.Percent() >= NearLimitPercent
}

// Critical reports usage at or above 90% of the window.
func (b ContextBudget) Critical() bool {
	return b.Percent() >= CriticalPercent
}
