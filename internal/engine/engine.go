// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package engine orchestrates conversation turns: search policy
// resolution, tool loop routing, streaming into the open assistant
// message, and persistence.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/jeranaias/convoke/internal/classify"
	"github.com/jeranaias/convoke/internal/debug"
	"github.com/jeranaias/convoke/internal/loop"
	"github.com/jeranaias/convoke/internal/model"
	"github.com/jeranaias/convoke/internal/ollama"
	"github.com/jeranaias/convoke/internal/search"
	"github.com/jeranaias/convoke/internal/tools"
)

// ErrTurnInFlight is returned when a send overlaps an active turn.
var ErrTurnInFlight = errors.New("a turn is already in flight")

// ErrEmptyMessage is returned for blank user input.
var ErrEmptyMessage = errors.New("message is empty")

// =============================================================================
// COLLABORATORS
// =============================================================================

// ConversationStore persists conversations. Satisfied by *storage.Store.
type ConversationStore interface {
	Save(conv *model.Conversation) (string, error)
}

// Callbacks are optional per-turn observers. The UI uses them to redraw
// incrementally; all of them may be nil.
type Callbacks struct {
	// OnToken receives each streamed content token of the final answer.
	OnToken func(token string)

	// OnStatus fires when the open assistant message changes status.
	OnStatus func(status model.Status)

	// OnWarning surfaces non-fatal conditions such as a capability
	// downgrade.
	OnWarning func(message string)

	// OnToolExecuted fires after each tool call completes.
	OnToolExecuted func(name string, result tools.Result)
}

func (cb Callbacks) status(s model.Status) {
	if cb.OnStatus != nil {
		cb.OnStatus(s)
	}
}

func (cb Callbacks) warn(msg string) {
	if cb.OnWarning != nil {
		cb.OnWarning(msg)
	}
}

// Config assembles an engine from its collaborators.
type Config struct {
	Transport loop.Transport
	Executor  *tools.Executor
	Recorder  *debug.Recorder
	Store     ConversationStore

	Model    string
	Settings model.ChatSettings
}

// =============================================================================
// ENGINE
// =============================================================================

// Engine owns one conversation and runs one turn at a time. Multiple
// engines are independent; nothing is process-global.
// modelLoadTimeout bounds background warm-ups; model loads can take far
// longer than a chat request.
const modelLoadTimeout = 2 * time.Minute

type Engine struct {
	transport  loop.Transport
	executor   *tools.Executor
	controller *loop.Controller
	recorder   *debug.Recorder
	store      ConversationStore
	monitor    *ollama.StatusMonitor

	mu         sync.Mutex
	turnActive bool
	modelName  string
	settings   model.ChatSettings
	conv       *model.Conversation
}

// New creates an engine. Transport and Executor are required; Recorder
// and Store may be nil for callers that do not observe or persist.
func New(cfg Config) *Engine {
	if cfg.Model == "" {
		cfg.Model = "llama3.2"
	}

	e := &Engine{
		transport:  cfg.Transport,
		executor:   cfg.Executor,
		controller: loop.NewController(cfg.Transport, cfg.Executor),
		recorder:   cfg.Recorder,
		store:      cfg.Store,
		modelName:  cfg.Model,
		settings:   cfg.Settings.Normalize(),
		conv:       model.NewConversationWithModel(cfg.Model),
	}
	if client, ok := cfg.Transport.(*ollama.Client); ok {
		e.monitor = ollama.NewStatusMonitor(client)
	}
	return e
}

// Conversation returns the active conversation.
func (e *Engine) Conversation() *model.Conversation {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.conv
}

// SetConversation swaps in a previously loaded conversation.
func (e *Engine) SetConversation(conv *model.Conversation) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.conv = conv
	if conv.Model != "" {
		e.modelName = conv.Model
	}
}

// NewConversation starts a fresh conversation with the active model.
func (e *Engine) NewConversation() *model.Conversation {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.conv = model.NewConversationWithModel(e.modelName)
	return e.conv
}

// Model returns the active model name.
func (e *Engine) Model() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.modelName
}

// SetModel switches the active model for subsequent turns. Warms the
// new model in the background; Status reports loading until the server
// has it resident.
func (e *Engine) SetModel(name string) {
	e.mu.Lock()
	e.modelName = name
	e.conv.Model = name
	e.conv.SetMaxTokens(model.ContextWindowFor(name))
	e.mu.Unlock()

	if e.monitor != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), modelLoadTimeout)
			defer cancel()
			if err := e.monitor.WarmUp(ctx, name); err != nil {
				log.Printf("ENGINE | model=%s status=warmup_failed err=%v", name, err)
			}
		}()
	}
}

// WarmUp preloads the active model so the first turn skips the load
// latency. Status reports loading while it runs.
func (e *Engine) WarmUp(ctx context.Context) error {
	if e.monitor == nil {
		return nil
	}
	return e.monitor.WarmUp(ctx, e.Model())
}

// Settings returns the current chat settings.
func (e *Engine) Settings() model.ChatSettings {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.settings
}

// SetSettings replaces the chat settings, normalizing out-of-range
// values. Applies from the next turn.
func (e *Engine) SetSettings(s model.ChatSettings) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.settings = s.Normalize()
}

// Budget reports the context budget of the active conversation.
func (e *Engine) Budget() model.ContextBudget {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.conv.Budget()
}

// =============================================================================
// TURN EXECUTION
// =============================================================================

// SendMessage runs one turn: appends the user message and an assistant
// placeholder, resolves the search policy, routes through the tool loop
// or the plain streaming path, and finalizes the assistant message.
// Cancelling ctx at any point completes the turn with whatever content
// streamed; cancellation is never a turn failure.
func (e *Engine) SendMessage(ctx context.Context, text string, forceSearch bool, cb Callbacks) (*model.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}

	e.mu.Lock()
	if e.turnActive {
		e.mu.Unlock()
		return nil, ErrTurnInFlight
	}
	e.turnActive = true
	conv := e.conv
	modelName := e.modelName
	settings := e.settings
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.turnActive = false
		e.mu.Unlock()
	}()

	toolsEnabled, forced := e.resolveSearchPolicy(modelName, settings, text, forceSearch, cb)

	var logID string
	if settings.DebugMode && e.recorder != nil {
		logID = e.recorder.Start(text, string(settings.SearchMode), forced, modelName)
	}

	// The user message and the thinking placeholder go to disk before
	// any network I/O so a crash mid-turn cannot lose the input.
	conv.SystemPrompt = systemPromptFor(toolsEnabled, settings.SystemPrompt)
	conv.AddUserMessage(text)
	placeholder := model.NewAssistantPlaceholder()
	conv.AddMessage(placeholder)
	e.persist(conv)
	cb.status(model.StatusThinking)

	wire := conv.ToWire()
	opts := optionsFor(settings, toolsEnabled)
	stats := model.NewStatistics()

	onToken := func(token string) {
		stats.RecordFirstToken()
		placeholder.AppendToken(token)
		if cb.OnToken != nil {
			cb.OnToken(token)
		}
	}

	var outcome *loop.Outcome
	var err error
	var state *turnState
	if toolsEnabled {
		if tool := e.executor.Registry().Get(tools.WebSearchToolName); tool != nil {
			tool.SetParameterDefault("max_results", settings.MaxSearchResults)
		}
		state = &turnState{engine: e, conv: conv, placeholder: placeholder, logID: logID, cb: cb}
		e.controller.SetHooks(state.hooks())
		outcome, err = e.controller.Run(ctx, loop.Request{
			Model:    modelName,
			Messages: wire,
			Tools:    e.executor.Registry().Definitions(),
			Options:  opts,
			OnToken:  onToken,
		})
	} else {
		outcome, err = e.streamDirect(ctx, modelName, wire, opts, onToken)
	}

	if err != nil {
		if !errors.Is(err, context.Canceled) {
			e.failTurn(conv, placeholder, logID, err)
			return nil, err
		}
		// Cancellation completes the turn; keep the partial content.
		outcome = &loop.Outcome{Content: placeholder.GetDisplayContent()}
	}

	if state != nil {
		state.recordResults()
	}
	if outcome.UsedTools() {
		conv.InsertBeforeLast(toolTraffic(outcome.Steps)...)
	}

	if outcome.Stats != nil && outcome.Stats.CompletionTokens > 0 {
		stats.PromptTokens = outcome.Stats.PromptTokens
		stats.Finalize(outcome.Stats.CompletionTokens)
	} else {
		stats.Finalize(model.EstimateTokens(outcome.Content))
	}

	final := e.finalize(conv, placeholder, stats)

	if logID != "" {
		e.recorder.ResponseCompleted(logID, final.Content, stats.TotalDuration, stats.CompletionTokens)
	}
	cb.status(model.StatusNone)
	e.persist(conv)

	return final, nil
}

// resolveSearchPolicy decides whether this turn offers tools, applying
// the capability downgrade when the model cannot call them.
func (e *Engine) resolveSearchPolicy(modelName string, settings model.ChatSettings, text string, forceSearch bool, cb Callbacks) (enabled, forced bool) {
	wanted := false

	switch {
	case forceSearch:
		wanted, forced = true, true
	case settings.SearchMode == model.SearchModeOff:
		wanted = false
	case settings.SearchMode == model.SearchModeAuto:
		wanted = true
	default: // smart
		queryType := classify.Classify(text)
		switch {
		case classify.ShouldForceSearch(queryType):
			wanted = true
		case classify.ShouldDisableSearch(queryType):
			wanted = false
		default:
			// Borderline categories get tools; the model decides.
			wanted = true
		}
	}

	if wanted && !ollama.SupportsTools(modelName) {
		log.Printf("ENGINE | model=%s status=tool_downgrade", modelName)
		cb.warn(ollama.ToolSupportMessage(modelName))
		wanted = false
	}

	return wanted, forced
}

// streamDirect is the tools-off path: one streaming request, no probe.
func (e *Engine) streamDirect(ctx context.Context, modelName string, messages []ollama.Message, opts *ollama.Options, onToken func(string)) (*loop.Outcome, error) {
	streamStats := ollama.NewStreamStats()
	var content strings.Builder

	err := e.transport.ChatStream(ctx, modelName, messages, opts, func(chunk ollama.StreamChunk) {
		if chunk.Content != "" {
			streamStats.RecordFirstToken()
			content.WriteString(chunk.Content)
			onToken(chunk.Content)
		}
		if chunk.Done {
			streamStats.Finalize(chunk)
		}
	})
	if err != nil {
		return nil, err
	}

	return &loop.Outcome{Content: content.String(), Stats: streamStats}, nil
}

// finalize seals the placeholder and publishes the finished message via
// copy-on-write replacement.
func (e *Engine) finalize(conv *model.Conversation, placeholder *model.Message, stats *model.Statistics) *model.Message {
	placeholder.FinalizeStream(stats)
	final := placeholder.WithStatus(model.StatusNone)
	conv.ReplaceLast(final)
	return final
}

// failTurn records the error and seals the placeholder with whatever
// partial content streamed. The user message stays; no rollback.
func (e *Engine) failTurn(conv *model.Conversation, placeholder *model.Message, logID string, err error) {
	log.Printf("ENGINE | status=turn_failed err=%v", err)

	if logID != "" {
		e.recorder.TurnFailed(logID, err.Error(), classifyError(err))
	}

	placeholder.FinalizeStream(nil)
	conv.ReplaceLast(placeholder.WithStatus(model.StatusNone))
	e.persist(conv)
}

// toolTraffic converts executed loop steps into history messages, each
// assistant call followed by its tool result, so the next turn's wire
// context carries the tool exchange.
func toolTraffic(steps []loop.Step) []*model.Message {
	msgs := make([]*model.Message, 0, len(steps)*2)
	for _, step := range steps {
		msgs = append(msgs,
			model.NewToolCallMessage([]model.ToolCall{step.Call}),
			model.NewToolMessage(step.ToolName, step.Result.MessageContent(), step.Result.Success),
		)
	}
	return msgs
}

// persist saves the conversation, logging failures without aborting the
// turn.
func (e *Engine) persist(conv *model.Conversation) {
	if e.store == nil {
		return
	}
	if _, err := e.store.Save(conv); err != nil {
		log.Printf("ENGINE | conversation=%s status=persist_failed err=%v", conv.ID, err)
	}
}

// optionsFor maps chat settings onto inference options. Tool turns start
// from the tool-calling profile so tool selection stays reliable.
func optionsFor(settings model.ChatSettings, toolsEnabled bool) *ollama.Options {
	if toolsEnabled {
		opts := ollama.ToolCallingOptions()
		opts.NumPredict = settings.MaxTokens
		return opts
	}
	return &ollama.Options{
		Temperature: settings.Temperature,
		TopP:        settings.TopP,
		NumPredict:  settings.MaxTokens,
	}
}

// classifyError maps a turn error onto a debug error type.
func classifyError(err error) debug.ErrorType {
	switch {
	case ollama.IsTimeout(err):
		return debug.ErrorTimeout
	case ollama.IsNotRunning(err):
		return debug.ErrorNetwork
	default:
		return debug.ErrorModelError
	}
}

// =============================================================================
// TURN STATE (TOOL PATH OBSERVERS)
// =============================================================================

// turnState carries per-turn wiring between loop hooks, the debug
// recorder, and the open assistant message.
type turnState struct {
	engine      *Engine
	conv        *model.Conversation
	placeholder *model.Message
	logID       string
	cb          Callbacks

	searchStart time.Time
	results     []search.Result
}

// hooks bridges loop events into status updates and debug records
// without altering loop control flow.
func (s *turnState) hooks() loop.Hooks {
	return loop.Hooks{
		OnPhase: func(phase loop.Phase, iteration int) {
			switch phase {
			case loop.PhaseExecuting:
				s.setStatus(model.StatusSearching)
			case loop.PhaseFinalizing:
				s.setStatus(model.StatusThinking)
			}
		},
		OnToolCall: func(name string, args map[string]interface{}) {
			if name != tools.WebSearchToolName {
				return
			}
			s.searchStart = time.Now()
			if s.logID != "" {
				query, _ := args["query"].(string)
				s.engine.recorder.SearchStarted(s.logID, query)
			}
		},
		OnToolExecuted: func(name string, result tools.Result) {
			if s.cb.OnToolExecuted != nil {
				s.cb.OnToolExecuted(name, result)
			}
			if name != tools.WebSearchToolName {
				return
			}

			duration := time.Since(s.searchStart)
			if result.Success {
				results := searchResultsFrom(result)
				s.results = append(s.results, results...)
				if s.logID != "" {
					s.engine.recorder.SearchCompleted(s.logID, results, duration)
				}
			} else if s.logID != "" {
				s.engine.recorder.SearchFailed(s.logID, result.Error, debug.ErrorSearchFailed)
			}
		},
	}
}

// setStatus publishes a status change on the open assistant message.
func (s *turnState) setStatus(status model.Status) {
	s.placeholder.Status = status
	s.cb.status(status)
}

// recordResults attaches accumulated search results to the open message
// so the UI can render sources next to the answer.
func (s *turnState) recordResults() {
	if len(s.results) > 0 {
		s.placeholder.SearchResults = append([]search.Result(nil), s.results...)
	}
}

// searchResultsFrom digs the typed result slice out of a tool result.
func searchResultsFrom(result tools.Result) []search.Result {
	raw, ok := result.Data["results"]
	if !ok {
		return nil
	}
	results, ok := raw.([]search.Result)
	if !ok {
		return nil
	}
	return results
}

// =============================================================================
// MODEL STATUS
// =============================================================================

// Status derives the model server state for display. Never stored.
// Warm-ups routed through the engine surface as loading.
func (e *Engine) Status(ctx context.Context) ollama.ModelStatus {
	if e.monitor == nil {
		return ollama.StatusReady
	}
	return e.monitor.Status(ctx)
}

// TurnError renders a turn failure for display.
func TurnError(err error) string {
	switch {
	case ollama.IsNotRunning(err):
		return "Ollama is not running. Start it with: ollama serve"
	case errors.Is(err, loop.ErrMaxIterations):
		return err.Error()
	default:
		return fmt.Sprintf("Turn failed: %v", err)
	}
}
