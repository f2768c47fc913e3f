// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package loop drives the multi-step tool calling cycle for a single
// conversation turn.
package loop

import (
	"context"
	"errors"
	"log"
	"strings"

	"github.com/jeranaias/convoke/internal/ollama"
	"github.com/jeranaias/convoke/internal/tools"
)

// MaxIterations caps how many probe/execute rounds one turn may take. A
// model stuck re-requesting the same tool fails the turn instead of
// burning the context window.
const MaxIterations = 5

// ErrMaxIterations fails the turn when the model never stops requesting
// tools.
var ErrMaxIterations = errors.New("maximum tool iterations reached")

// =============================================================================
// PHASES
// =============================================================================

// Phase identifies what the controller is doing.
type Phase int

const (
	// PhaseDeciding is the non-streaming probe that asks the model
	// whether it wants tools.
	PhaseDeciding Phase = iota

	// PhaseExecuting runs the requested tool calls.
	PhaseExecuting

	// PhaseFinalizing streams the user-visible answer.
	PhaseFinalizing
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case PhaseDeciding:
		return "deciding"
	case PhaseExecuting:
		return "executing"
	case PhaseFinalizing:
		return "finalizing"
	default:
		return "unknown"
	}
}

// =============================================================================
// TRANSPORT AND HOOKS
// =============================================================================

// Transport is the chat client surface the controller needs. Satisfied
// by *ollama.Client.
type Transport interface {
	Chat(ctx context.Context, model string, messages []ollama.Message, tools []ollama.Tool, opts *ollama.Options) (*ollama.ChatResponse, error)
	ChatStream(ctx context.Context, model string, messages []ollama.Message, opts *ollama.Options, callback ollama.StreamCallback) error
}

// Hooks are optional observer callbacks. They inform the debug recorder
// and UI without altering control flow; a nil hook is skipped.
type Hooks struct {
	OnPhase        func(phase Phase, iteration int)
	OnToolCall     func(name string, args map[string]interface{})
	OnToolExecuted func(name string, result tools.Result)
}

func (h Hooks) phase(p Phase, iteration int) {
	if h.OnPhase != nil {
		h.OnPhase(p, iteration)
	}
}

func (h Hooks) toolCall(name string, args map[string]interface{}) {
	if h.OnToolCall != nil {
		h.OnToolCall(name, args)
	}
}

func (h Hooks) toolExecuted(name string, result tools.Result) {
	if h.OnToolExecuted != nil {
		h.OnToolExecuted(name, result)
	}
}

// =============================================================================
// REQUEST AND OUTCOME
// =============================================================================

// Request describes one turn.
type Request struct {
	Model    string
	Messages []ollama.Message
	Tools    []ollama.Tool
	Options  *ollama.Options

	// OnToken receives content tokens during the finalizing stream.
	OnToken func(token string)
}

// Step records one executed tool call. Call keeps the wire-level
// invocation so callers can persist the traffic into history.
type Step struct {
	ToolName  string
	Arguments map[string]interface{}
	Call      ollama.ToolCall
	Result    tools.Result
}

// Outcome is the completed turn.
type Outcome struct {
	// Content is the final streamed answer. Partial on cancellation.
	Content string

	// Steps are the tool executions that informed the answer, in order.
	Steps []Step

	// Iterations is how many probe rounds ran. Zero when tools were
	// never offered.
	Iterations int

	// Stats covers the finalizing stream.
	Stats *ollama.StreamStats
}

// UsedTools reports whether any tool executed during the turn.
func (o *Outcome) UsedTools() bool {
	return len(o.Steps) > 0
}

// =============================================================================
// CONTROLLER
// =============================================================================

// Controller runs the deciding/executing/finalizing cycle. One Run per
// turn; the controller itself is stateless between runs.
type Controller struct {
	transport     Transport
	executor      *tools.Executor
	maxIterations int
	hooks         Hooks
}

// NewController creates a controller over a transport and tool executor.
func NewController(transport Transport, executor *tools.Executor) *Controller {
	return &Controller{
		transport:     transport,
		executor:      executor,
		maxIterations: MaxIterations,
	}
}

// SetHooks installs observer callbacks.
func (c *Controller) SetHooks(hooks Hooks) {
	c.hooks = hooks
}

// SetMaxIterations overrides the iteration cap. Values below 1 keep the
// default.
func (c *Controller) SetMaxIterations(n int) {
	if n >= 1 {
		c.maxIterations = n
	}
}

// Run executes one turn. With no tools offered it streams directly;
// otherwise it probes, executes requested tools, and loops until the
// model answers or the iteration cap trips. The returned message history
// in the outcome's Steps lets the caller persist the tool traffic.
func (c *Controller) Run(ctx context.Context, req Request) (*Outcome, error) {
	outcome := &Outcome{}
	messages := append([]ollama.Message(nil), req.Messages...)

	if len(req.Tools) > 0 {
		for {
			if outcome.Iterations >= c.maxIterations {
				log.Printf("TOOL_LOOP | iterations=%d status=exhausted", outcome.Iterations)
				return nil, ErrMaxIterations
			}
			outcome.Iterations++

			c.hooks.phase(PhaseDeciding, outcome.Iterations)
			resp, err := c.transport.Chat(ctx, req.Model, messages, req.Tools, req.Options)
			if err != nil {
				return nil, err
			}

			if !resp.Message.HasToolCalls() {
				break
			}

			// The assistant's request goes into the history verbatim,
			// content empty, so the model sees its own calls next round.
			messages = append(messages, ollama.NewAssistantToolCallMessage(resp.Message.ToolCalls))

			c.hooks.phase(PhaseExecuting, outcome.Iterations)
			for _, call := range resp.Message.ToolCalls {
				name := call.Function.Name
				args := call.ArgumentsMap()
				c.hooks.toolCall(name, args)

				result := c.executor.Execute(ctx, name, args)
				c.hooks.toolExecuted(name, result)

				outcome.Steps = append(outcome.Steps, Step{
					ToolName:  name,
					Arguments: args,
					Call:      call,
					Result:    result,
				})
				messages = append(messages, ollama.NewToolResultMessage(name, result.MessageContent()))
			}
		}
	}

	c.hooks.phase(PhaseFinalizing, outcome.Iterations)

	var content strings.Builder
	stats := ollama.NewStreamStats()
	err := c.transport.ChatStream(ctx, req.Model, messages, req.Options, func(chunk ollama.StreamChunk) {
		if chunk.Content != "" {
			stats.RecordFirstToken()
			content.WriteString(chunk.Content)
			if req.OnToken != nil {
				req.OnToken(chunk.Content)
			}
		}
		if chunk.Done {
			stats.Finalize(chunk)
		}
	})
	if err != nil {
		return nil, err
	}

	outcome.Content = content.String()
	outcome.Stats = stats
	return outcome, nil
}
