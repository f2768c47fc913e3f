// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/peterh/liner"

	"github.com/jeranaias/convoke/internal/engine"
	"github.com/jeranaias/convoke/internal/export"
	"github.com/jeranaias/convoke/internal/model"
)

// =============================================================================
// PLAIN REPL
// =============================================================================

// RunPlain runs the line-oriented fallback for dumb terminals and
// pipes. Tokens print as they stream; Ctrl-C cancels the in-flight
// turn and keeps partial content.
func RunPlain(eng *engine.Engine, exportDir string) error {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	fmt.Printf("convoke | model %s | /help for commands\n", eng.Model())

	for {
		input, err := line.Prompt("> ")
		if err != nil {
			if err == liner.ErrPromptAborted || err == io.EOF {
				return nil
			}
			return err
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)

		if strings.HasPrefix(input, "/") {
			if quit := plainCommand(eng, exportDir, input); quit {
				return nil
			}
			continue
		}

		runPlainTurn(eng, input, false)
	}
}

// runPlainTurn executes a turn, streaming tokens to stdout. SIGINT
// cancels the turn without exiting the REPL.
func runPlainTurn(eng *engine.Engine, text string, forceSearch bool) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	defer signal.Stop(interrupt)
	go func() {
		select {
		case <-interrupt:
			cancel()
		case <-ctx.Done():
		}
	}()

	final, err := eng.SendMessage(ctx, text, forceSearch, engine.Callbacks{
		OnToken: func(token string) {
			fmt.Print(token)
		},
		OnStatus: func(status model.Status) {
			if status == model.StatusSearching {
				fmt.Println("[searching the web...]")
			}
		},
		OnWarning: func(msg string) {
			fmt.Printf("[warning] %s\n", msg)
		},
	})
	fmt.Println()

	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, engine.TurnError(err))
		return
	}

	if final != nil && len(final.SearchResults) > 0 {
		fmt.Println("Sources:")
		for i, r := range final.SearchResults {
			fmt.Printf("  [%d] %s\n", i+1, r.URL)
		}
	}
}

// plainCommand handles slash commands; returns true to quit.
func plainCommand(eng *engine.Engine, exportDir, input string) bool {
	fields := strings.Fields(input)
	args := fields[1:]

	switch fields[0] {
	case "/quit", "/exit":
		return true

	case "/new":
		eng.NewConversation()
		fmt.Println("started a new conversation")

	case "/search":
		if len(args) == 1 && model.SearchMode(args[0]).Valid() {
			settings := eng.Settings()
			settings.SearchMode = model.SearchMode(args[0])
			eng.SetSettings(settings)
			fmt.Println("search mode:", args[0])
			return false
		}
		if len(args) >= 1 {
			runPlainTurn(eng, strings.Join(args, " "), true)
			return false
		}
		fmt.Println("usage: /search <off|auto|smart> or /search <query>")

	case "/export":
		format := "markdown"
		if len(args) > 0 {
			format = args[0]
		}
		exporter, err := export.ForFormat(format)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return false
		}
		path, err := export.ExportToFile(eng.Conversation(), exporter, exportDir)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return false
		}
		fmt.Println("exported to", path)

	case "/help":
		fmt.Println("/new  /search <mode|query>  /export [json|markdown]  /quit")

	default:
		fmt.Printf("unknown command %q\n", fields[0])
	}

	return false
}
