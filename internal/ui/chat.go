// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ui

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"golang.org/x/term"

	"github.com/jeranaias/convoke/internal/engine"
	"github.com/jeranaias/convoke/internal/export"
	"github.com/jeranaias/convoke/internal/model"
)

// =============================================================================
// CHAT STATE
// =============================================================================

// State is the chat view state.
type State int

const (
	StateReady     State = iota // Ready for input
	StateStreaming              // Turn in flight
)

// turnEvent crosses from the engine goroutine into the Bubble Tea loop.
type turnEvent struct {
	token   string
	status  model.Status
	warning string
	done    bool
	err     error
}

type turnEventMsg turnEvent

// =============================================================================
// CHAT MODEL
// =============================================================================

// Chat is the Bubble Tea model for the chat view.
type Chat struct {
	engine *engine.Engine
	theme  *Theme

	viewport viewport.Model
	input    textinput.Model
	spin     spinner.Model
	renderer *glamour.TermRenderer

	width  int
	height int
	ready  bool

	state      State
	statusText string
	warning    string
	errText    string
	exportDir  string

	events chan turnEvent
	cancel context.CancelFunc
}

// NewChat creates the chat view over an engine.
func NewChat(eng *engine.Engine, exportDir string) *Chat {
	input := textinput.New()
	input.Placeholder = "Type a message, /help for commands"
	input.Focus()
	input.CharLimit = 4000

	spin := spinner.New()
	spin.Spinner = spinner.Dot

	// Window size arrives as the first message; the syscall is the
	// fallback for terminals that never send one.
	width, height, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		width, height = 80, 24
	}

	return &Chat{
		engine:    eng,
		theme:     NewTheme(),
		input:     input,
		spin:      spin,
		width:     width,
		height:    height,
		exportDir: exportDir,
		renderer:  newMarkdownRenderer(width - 2),
		events:    make(chan turnEvent, 64),
	}
}

// Init starts input blinking.
func (c *Chat) Init() tea.Cmd {
	return textinput.Blink
}

// =============================================================================
// UPDATE
// =============================================================================

// Update handles Bubble Tea messages.
func (c *Chat) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		c.resize(msg.Width, msg.Height)

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			if c.state == StateStreaming {
				c.cancelTurn()
				return c, nil
			}
			return c, tea.Quit

		case "esc":
			if c.state == StateStreaming {
				c.cancelTurn()
				return c, nil
			}

		case "enter":
			if c.state == StateReady {
				if cmd := c.submit(); cmd != nil {
					cmds = append(cmds, cmd)
				}
			}

		case "pgup":
			c.viewport.HalfViewUp()

		case "pgdown":
			c.viewport.HalfViewDown()
		}

	case turnEventMsg:
		cmd := c.handleTurnEvent(turnEvent(msg))
		if cmd != nil {
			cmds = append(cmds, cmd)
		}

	case spinner.TickMsg:
		if c.state == StateStreaming {
			var cmd tea.Cmd
			c.spin, cmd = c.spin.Update(msg)
			cmds = append(cmds, cmd)
		}
	}

	var cmd tea.Cmd
	c.input, cmd = c.input.Update(msg)
	cmds = append(cmds, cmd)

	c.viewport, cmd = c.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return c, tea.Batch(cmds...)
}

func (c *Chat) resize(width, height int) {
	c.width = width
	c.height = height
	c.renderer = newMarkdownRenderer(width - 2)

	headerHeight := 2
	footerHeight := 3
	if !c.ready {
		c.viewport = viewport.New(width, height-headerHeight-footerHeight)
		c.ready = true
	} else {
		c.viewport.Width = width
		c.viewport.Height = height - headerHeight - footerHeight
	}
	c.refresh()
}

// submit sends the input line: either a slash command or a chat turn.
func (c *Chat) submit() tea.Cmd {
	text := strings.TrimSpace(c.input.Value())
	if text == "" {
		return nil
	}
	c.input.Reset()
	c.warning = ""
	c.errText = ""

	if strings.HasPrefix(text, "/") {
		return c.runCommand(text)
	}

	return c.startTurn(text, false)
}

// startTurn launches the engine turn on its own goroutine; events come
// back through the channel one Update at a time.
func (c *Chat) startTurn(text string, forceSearch bool) tea.Cmd {
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.state = StateStreaming
	c.statusText = "thinking"

	events := c.events
	eng := c.engine

	go func() {
		_, err := eng.SendMessage(ctx, text, forceSearch, engine.Callbacks{
			OnToken: func(token string) {
				events <- turnEvent{token: token}
			},
			OnStatus: func(status model.Status) {
				events <- turnEvent{status: status}
			},
			OnWarning: func(msg string) {
				events <- turnEvent{warning: msg}
			},
		})
		events <- turnEvent{done: true, err: err}
	}()

	return tea.Batch(c.listen(), c.spin.Tick)
}

// listen waits for the next turn event.
func (c *Chat) listen() tea.Cmd {
	return func() tea.Msg {
		return turnEventMsg(<-c.events)
	}
}

// handleTurnEvent folds one event into the view.
func (c *Chat) handleTurnEvent(ev turnEvent) tea.Cmd {
	if ev.done {
		c.state = StateReady
		c.statusText = ""
		c.cancel = nil
		if ev.err != nil && !errors.Is(ev.err, context.Canceled) {
			c.errText = engine.TurnError(ev.err)
		}
		c.refresh()
		return nil
	}

	if ev.warning != "" {
		c.warning = ev.warning
	}
	if ev.status != "" {
		c.statusText = string(ev.status)
	}
	if ev.token != "" {
		c.refresh()
	}

	return c.listen()
}

// cancelTurn stops the in-flight turn; partial content stays.
func (c *Chat) cancelTurn() {
	if c.cancel != nil {
		c.cancel()
	}
}

// refresh re-renders the transcript and follows the tail.
func (c *Chat) refresh() {
	if !c.ready {
		return
	}
	c.viewport.SetContent(c.renderTranscript())
	c.viewport.GotoBottom()
}

// =============================================================================
// COMMANDS
// =============================================================================

// runCommand executes a slash command.
func (c *Chat) runCommand(text string) tea.Cmd {
	fields := strings.Fields(text)
	name := fields[0]
	args := fields[1:]

	switch name {
	case "/quit", "/exit":
		return tea.Quit

	case "/new":
		c.engine.NewConversation()
		c.refresh()

	case "/search":
		if len(args) == 1 && model.SearchMode(args[0]).Valid() {
			settings := c.engine.Settings()
			settings.SearchMode = model.SearchMode(args[0])
			c.engine.SetSettings(settings)
			c.warning = "search mode: " + args[0]
			return nil
		}
		// Anything else after /search is a query with tools forced on.
		if len(args) >= 1 {
			return c.startTurn(strings.Join(args, " "), true)
		}
		c.errText = "usage: /search <off|auto|smart> or /search <query>"

	case "/export":
		format := "markdown"
		if len(args) > 0 {
			format = args[0]
		}
		exporter, err := export.ForFormat(format)
		if err != nil {
			c.errText = err.Error()
			return nil
		}
		path, err := export.ExportToFile(c.engine.Conversation(), exporter, c.exportDir)
		if err != nil {
			c.errText = err.Error()
			return nil
		}
		c.warning = "exported to " + path

	case "/help":
		c.warning = "/new  /search <mode|query>  /export [json|markdown]  /quit"

	default:
		c.errText = fmt.Sprintf("unknown command %q", name)
	}

	return nil
}

// =============================================================================
// VIEW
// =============================================================================

// View renders the full chat screen.
func (c *Chat) View() string {
	if !c.ready {
		return "starting..."
	}

	var sb strings.Builder
	sb.WriteString(c.header())
	sb.WriteString("\n")
	sb.WriteString(c.viewport.View())
	sb.WriteString("\n")
	sb.WriteString(c.footer())
	return sb.String()
}

func (c *Chat) header() string {
	title := c.theme.HeaderTitle.Render("convoke")
	budget := c.engine.Budget()
	meta := fmt.Sprintf("%s | context %.0f%%", c.engine.Model(), budget.Percent())
	if budget.Critical() {
		meta += " (critical)"
	} else if budget.NearLimit() {
		meta += " (near limit)"
	}
	line := title + "  " + c.theme.HeaderMeta.Render(truncateLine(meta, c.width-12))
	return c.theme.Header.Width(c.width).Render(line)
}

func (c *Chat) footer() string {
	var status string
	switch {
	case c.state == StateStreaming:
		status = c.theme.StatusWorking.Render(c.spin.View() + c.statusText + " (esc to cancel)")
	case c.errText != "":
		status = c.theme.ErrorText.Render(c.errText)
	case c.warning != "":
		status = c.theme.Warning.Render(c.warning)
	default:
		status = c.theme.StatusReady.Render("ready")
	}

	prompt := c.theme.InputPrompt.Render("> ") + c.input.View()
	return prompt + "\n" + c.theme.StatusLine.Render(status)
}

// Run starts the Bubble Tea program.
func Run(eng *engine.Engine, exportDir string) error {
	program := tea.NewProgram(NewChat(eng, exportDir), tea.WithAltScreen())
	_, err := program.Run()
	return err
}
