// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"sort"
	"strings"
)

// =============================================================================
// TOOL-CAPABLE MODELS
// =============================================================================
// Based on Ollama's official documentation and models page:
// https://ollama.com/search?c=tools
//
// Families are listed by base name without size/quantization suffix;
// SupportsTools handles matching the variants.

// toolCapableFamilies maps model family names to short capability notes.
var toolCapableFamilies = map[string]string{
	// Llama family
	"llama3.1": "best overall choice for function calling",
	"llama3.2": "3B handles basic tools, 8B+ for multi-step",
	"llama3.3": "70B, full tool capability",
	"llama4":   "latest Llama generation",

	// Qwen family
	"qwen2":         "reliable tool support at 7B+",
	"qwen2.5":       "excellent tool support from 3B up",
	"qwen2.5-coder": "strong for code-oriented tool use",
	"qwen3":         "streaming tool support",
	"qwen3-vl":      "vision variant with tool support",
	"qwq":           "reasoning model with tool support",

	// Mistral family
	"mistral":       "7B with good function calling",
	"mistral-nemo":  "12B optimized for tool use",
	"mistral-small": "22-24B, very reliable",
	"mistral-large": "flagship Mistral",
	"mixtral":       "MoE, fast inference",
	"ministral":     "small variants, basic tool use",

	// Cohere
	"command-r":      "35B optimized for RAG and tools",
	"command-r-plus": "104B",
	"command-r7b":    "compact Command variant",

	// IBM Granite
	"granite3-dense":   "IBM Granite dense models",
	"granite3.1-dense": "IBM Granite 3.1",
	"granite3.2":       "IBM Granite 3.2",
	"granite3.3":       "IBM Granite 3.3",

	// Others
	"deepseek-r1":     "reasoning model, tool support varies by size",
	"hermes3":         "tuned for function calling",
	"nemotron":        "NVIDIA tuned Llama",
	"firefunction-v2": "specialized function-calling model",
	"gpt-oss":         "open-weight OpenAI models",
	"smollm2":         "small models with basic tool support",
	"devstral":        "agentic coding model",
}

// RecommendedToolModels are suggested to users whose active model cannot
// call tools.
var RecommendedToolModels = []string{
	"llama3.1",
	"llama3.2",
	"qwen2.5",
	"mistral-nemo",
}

// SupportsTools checks if a model supports tool calling. Handles names
// with size suffixes such as "llama3.1:8b" or "qwen2.5-coder:14b-q4_K_M".
func SupportsTools(modelName string) bool {
	normalized := NormalizeModelName(modelName)
	if normalized == "" {
		return false
	}

	if _, ok := toolCapableFamilies[normalized]; ok {
		return true
	}

	// Prefix match covers variants like "llama3.1-instruct".
	for family := range toolCapableFamilies {
		if strings.HasPrefix(normalized, family) {
			return true
		}
	}

	return false
}

// NormalizeModelName extracts the base family name from a full model name:
// "llama3.1:8b" becomes "llama3.1".
func NormalizeModelName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if idx := strings.Index(name, ":"); idx != -1 {
		name = name[:idx]
	}
	return name
}

// ToolCapableFamilies returns the sorted list of known tool-capable
// model families.
func ToolCapableFamilies() []string {
	families := make([]string, 0, len(toolCapableFamilies))
	for name := range toolCapableFamilies {
		families = append(families, name)
	}
	sort.Strings(families)
	return families
}

// ToolSupportMessage returns a user-facing explanation of a model's tool
// support, including suggestions when the model lacks it.
func ToolSupportMessage(modelName string) string {
	if SupportsTools(modelName) {
		if note, ok := toolCapableFamilies[NormalizeModelName(modelName)]; ok {
			return modelName + " supports tool calling (" + note + ")"
		}
		return modelName + " supports tool calling"
	}
	return modelName + " does not support tool calling. Web search will be unavailable. " +
		"Try one of: " + strings.Join(RecommendedToolModels, ", ")
}

// ToolCallingOptions returns inference options tuned for reliable tool
// selection: low temperature and a wide context window.
func ToolCallingOptions() *Options {
	return &Options{
		Temperature: 0.1,
		NumCtx:      32768,
		TopP:        0.9,
		TopK:        40,
	}
}
