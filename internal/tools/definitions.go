// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tools

import (
	"context"
	"encoding/json"
	"strings"
	"time"
)

// =============================================================================
// TOOL DEFINITION
// =============================================================================

// Tool represents an executable tool the model can invoke.
type Tool struct {
	// Name is the tool identifier (e.g. "web_search").
	Name string

	// Description explains what the tool does and when the model should
	// reach for it. This is what steers tool selection, so it carries the
	// full usage guidance.
	Description string

	// ShortDescription is a concise description for schemas when the full
	// Description is too long. If empty, the first line of Description is
	// used.
	ShortDescription string

	// Schema defines the tool's parameters.
	Schema Schema

	// Executor handles the actual execution.
	Executor ToolExecutor
}

// GetShortDescription returns the schema-facing description.
func (t *Tool) GetShortDescription() string {
	if t.ShortDescription != "" {
		return t.ShortDescription
	}
	if idx := strings.Index(t.Description, "\n"); idx != -1 {
		return t.Description[:idx]
	}
	return t.Description
}

// SetParameterDefault overrides the default of a schema parameter.
// Unknown names are ignored. Lets callers retune a registered tool from
// settings without rebuilding it.
func (t *Tool) SetParameterDefault(name string, value interface{}) {
	for i := range t.Schema.Parameters {
		if t.Schema.Parameters[i].Name == name {
			t.Schema.Parameters[i].Default = value
		}
	}
}

// Schema defines a tool's parameters.
type Schema struct {
	Parameters []Parameter
}

// Parameter defines a single tool parameter.
type Parameter struct {
	// Name of the parameter.
	Name string

	// Type is the JSON Schema type ("string", "integer", "number", "boolean").
	Type string

	// Required indicates if the parameter must be provided.
	Required bool

	// Description explains the parameter.
	Description string

	// Default is the value used when the model omits the parameter.
	Default interface{}

	// Enum constrains string parameters to a fixed set of values.
	Enum []string
}

// =============================================================================
// TOOL EXECUTOR INTERFACE
// =============================================================================

// ToolExecutor is the interface individual tools implement. A failed
// execution is reported through the Result, not through a Go error; the
// error return is reserved for process-level faults.
type ToolExecutor interface {
	Execute(ctx context.Context, params map[string]interface{}) (Result, error)
}

// Result holds the outcome of a tool execution. Results flow back into
// the conversation as tool-role messages, so even failures must be
// representable as content the model can react to.
type Result struct {
	// Success indicates if the tool executed successfully.
	Success bool

	// Data carries structured output. A "formatted" string entry, when
	// present, is the preferred model-facing rendering.
	Data map[string]interface{}

	// Error is the failure message when Success is false.
	Error string

	// Duration is how long execution took.
	Duration time.Duration
}

// MessageContent renders the result as tool-message content: the
// formatted data when available, else a JSON dump of the data, else the
// error text.
func (r Result) MessageContent() string {
	if !r.Success {
		if r.Error != "" {
			return "Error: " + r.Error
		}
		return "Error: tool execution failed"
	}

	if formatted, ok := r.Data["formatted"].(string); ok && formatted != "" {
		return formatted
	}

	if len(r.Data) > 0 {
		if dump, err := json.Marshal(r.Data); err == nil {
			return string(dump)
		}
	}

	return ""
}
