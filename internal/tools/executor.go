// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tools

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// =============================================================================
// EXECUTION RECORD
// =============================================================================

// ExecutionRecord tracks one tool execution for diagnostics.
type ExecutionRecord struct {
	ToolName  string
	Params    map[string]interface{}
	Result    Result
	Timestamp time.Time
	Duration  time.Duration
}

// ExecutionStats aggregates executor activity.
type ExecutionStats struct {
	Total     int
	Succeeded int
	Failed    int
	ByTool    map[string]int
}

// =============================================================================
// EXECUTOR
// =============================================================================

// DefaultToolTimeout applies when the caller's context has no deadline.
const DefaultToolTimeout = 30 * time.Second

// maxHistory caps the retained execution records.
const maxHistory = 1000

// Executor runs tool calls from the registry. Every failure mode becomes
// a structured Result; Execute never panics and never returns a Go error,
// so a misbehaving tool cannot crash the turn.
type Executor struct {
	registry *Registry

	mu      sync.Mutex
	history []ExecutionRecord
}

// NewExecutor creates a new tool executor over the given registry.
func NewExecutor(registry *Registry) *Executor {
	return &Executor{
		registry: registry,
		history:  make([]ExecutionRecord, 0),
	}
}

// Registry returns the underlying tool registry.
func (e *Executor) Registry() *Registry {
	return e.registry
}

// Execute looks up and runs a tool. Unknown names, validation failures,
// tool errors, panics, and timeouts all come back as failed Results.
func (e *Executor) Execute(ctx context.Context, name string, params map[string]interface{}) Result {
	start := time.Now()
	if params == nil {
		params = map[string]interface{}{}
	}

	tool := e.registry.Get(name)
	if tool == nil {
		result := Result{
			Success:  false,
			Error:    fmt.Sprintf("tool %q not found in registry", name),
			Duration: time.Since(start),
		}
		e.record(name, params, result, start)
		return result
	}

	if err := validateParams(tool, params); err != nil {
		result := Result{
			Success:  false,
			Error:    err.Error(),
			Duration: time.Since(start),
		}
		e.record(name, params, result, start)
		return result
	}

	applyDefaults(tool, params)

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultToolTimeout)
		defer cancel()
	}

	resultCh := make(chan Result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				resultCh <- Result{
					Success: false,
					Error:   fmt.Sprintf("tool %q panicked: %v", name, r),
				}
			}
		}()

		result, err := tool.Executor.Execute(ctx, params)
		if err != nil {
			result = Result{Success: false, Error: err.Error()}
		}
		resultCh <- result
	}()

	var result Result
	select {
	case result = <-resultCh:
	case <-ctx.Done():
		result = Result{
			Success: false,
			Error:   "tool execution timed out: " + ctx.Err().Error(),
		}
	}

	result.Duration = time.Since(start)
	e.record(name, params, result, start)
	return result
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError reports a missing or mistyped tool parameter.
type ValidationError struct {
	Param   string
	Message string
}

func (e *ValidationError) Error() string {
	return "parameter " + e.Param + ": " + e.Message
}

// validateParams checks required parameters against the tool schema.
func validateParams(tool *Tool, params map[string]interface{}) error {
	for _, param := range tool.Schema.Parameters {
		if !param.Required {
			continue
		}
		value, ok := params[param.Name]
		if !ok || value == nil {
			return &ValidationError{Param: param.Name, Message: "is required"}
		}
		if s, isString := value.(string); isString && s == "" && param.Type == "string" {
			return &ValidationError{Param: param.Name, Message: "is required"}
		}
	}
	return nil
}

// applyDefaults fills in schema defaults for omitted parameters.
func applyDefaults(tool *Tool, params map[string]interface{}) {
	for _, param := range tool.Schema.Parameters {
		if param.Default == nil {
			continue
		}
		if _, ok := params[param.Name]; !ok {
			params[param.Name] = param.Default
		}
	}
}

// =============================================================================
// HISTORY AND STATS
// =============================================================================

func (e *Executor) record(name string, params map[string]interface{}, result Result, start time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.history = append(e.history, ExecutionRecord{
		ToolName:  name,
		Params:    params,
		Result:    result,
		Timestamp: start,
		Duration:  result.Duration,
	})
	if len(e.history) > maxHistory {
		e.history = e.history[len(e.history)-maxHistory:]
	}
}

// History returns a copy of the execution history.
func (e *Executor) History() []ExecutionRecord {
	e.mu.Lock()
	defer e.mu.Unlock()

	result := make([]ExecutionRecord, len(e.history))
	copy(result, e.history)
	return result
}

// ClearHistory clears the execution history.
func (e *Executor) ClearHistory() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.history = e.history[:0]
}

// Stats aggregates the retained history.
func (e *Executor) Stats() ExecutionStats {
	e.mu.Lock()
	defer e.mu.Unlock()

	stats := ExecutionStats{ByTool: make(map[string]int)}
	for _, rec := range e.history {
		stats.Total++
		if rec.Result.Success {
			stats.Succeeded++
		} else {
			stats.Failed++
		}
		stats.ByTool[rec.ToolName]++
	}
	return stats
}
