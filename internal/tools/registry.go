// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tools

import (
	"log"
	"sort"
	"sync"

	"github.com/jeranaias/convoke/internal/ollama"
)

// =============================================================================
// TOOL REGISTRY
// =============================================================================

// Registry holds all available tools, keyed by name. Safe for concurrent
// use.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*Tool
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]*Tool),
	}
}

// Register adds a tool to the registry. Registering a name twice
// overwrites the earlier tool and logs a warning.
func (r *Registry) Register(tool *Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[tool.Name]; exists {
		log.Printf("REGISTRY_WARN | tool=%s reason=already_registered action=overwrite", tool.Name)
	}
	r.tools[tool.Name] = tool
}

// Get retrieves a tool by name, or nil if unknown.
func (r *Registry) Get(name string) *Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// All returns all registered tools sorted by name.
func (r *Registry) All() []*Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*Tool, 0, len(r.tools))
	for _, tool := range r.tools {
		result = append(result, tool)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// Names returns the sorted names of all registered tools.
func (r *Registry) Names() []string {
	all := r.All()
	names := make([]string, len(all))
	for i, tool := range all {
		names[i] = tool.Name
	}
	return names
}

// =============================================================================
// SCHEMA CONVERSION
// =============================================================================

// Definitions returns the model-facing function-calling schemas for all
// registered tools, sorted by name for deterministic requests.
func (r *Registry) Definitions() []ollama.Tool {
	all := r.All()
	result := make([]ollama.Tool, 0, len(all))
	for _, tool := range all {
		result = append(result, ToolToSchema(tool))
	}
	return result
}

// ToolToSchema converts a single Tool to the wire schema shape:
//
//	{
//	  "type": "function",
//	  "function": {
//	    "name": "...",
//	    "description": "...",
//	    "parameters": {"type": "object", "properties": {...}, "required": [...]}
//	  }
//	}
func ToolToSchema(tool *Tool) ollama.Tool {
	properties := make(map[string]ollama.ToolProperty)
	var required []string

	for _, param := range tool.Schema.Parameters {
		prop := ollama.ToolProperty{
			Type:        param.Type,
			Description: param.Description,
		}
		if param.Default != nil {
			prop.Default = param.Default
		}
		if len(param.Enum) > 0 {
			prop.Enum = param.Enum
		}
		properties[param.Name] = prop

		if param.Required {
			required = append(required, param.Name)
		}
	}

	return ollama.Tool{
		Type: "function",
		Function: ollama.ToolSchema{
			Name:        tool.Name,
			Description: tool.GetShortDescription(),
			Parameters: ollama.ToolParameters{
				Type:       "object",
				Properties: properties,
				Required:   required,
			},
		},
	}
}
