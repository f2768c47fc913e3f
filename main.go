// convoke - streaming chat with tool-calling orchestration for local
// Ollama models.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/jeranaias/convoke/internal/config"
	"github.com/jeranaias/convoke/internal/debug"
	"github.com/jeranaias/convoke/internal/engine"
	"github.com/jeranaias/convoke/internal/export"
	"github.com/jeranaias/convoke/internal/ollama"
	"github.com/jeranaias/convoke/internal/search"
	"github.com/jeranaias/convoke/internal/storage"
	"github.com/jeranaias/convoke/internal/tools"
	"github.com/jeranaias/convoke/internal/ui"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
)

func usage() {
	fmt.Fprintf(os.Stderr, `convoke %s - local LLM chat with web search tool calling

Usage:
  convoke [flags]                start the chat TUI
  convoke list                   list saved conversations
  convoke export <id> [format]   export a conversation (json, markdown)
  convoke debug-log [format]     dump the debug log (json, csv)

Flags:
`, Version)
	flag.PrintDefaults()
}

func main() {
	modelFlag := flag.String("model", "", "model to chat with (overrides config)")
	plainFlag := flag.Bool("plain", false, "line-oriented REPL instead of the TUI")
	searchFlag := flag.String("search", "", "search mode: off, auto, smart")
	debugFlag := flag.Bool("debug", false, "record per-turn debug logs")
	flag.Usage = usage
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v (using defaults)\n", err)
		cfg = config.Default()
	}
	if *modelFlag != "" {
		cfg.DefaultModel = *modelFlag
	}
	if *searchFlag != "" {
		cfg.Chat.SearchMode = *searchFlag
	}
	if *debugFlag {
		cfg.Debug.Enabled = true
	}

	switch flag.Arg(0) {
	case "":
		if err := runChat(cfg, *plainFlag); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "list":
		if err := runList(cfg); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "export":
		if err := runExport(cfg, flag.Arg(1), flag.Arg(2)); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "debug-log":
		if err := runDebugLog(cfg, flag.Arg(1)); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	default:
		usage()
		os.Exit(2)
	}
}

// buildEngine wires the collaborators from configuration.
func buildEngine(cfg *config.Config) (*engine.Engine, string, error) {
	client := ollama.NewClientWithConfig(&ollama.ClientConfig{
		BaseURL:      cfg.Ollama.BaseURL,
		Timeout:      cfg.OllamaTimeout(),
		DefaultModel: cfg.DefaultModel,
	})

	provider := search.NewHTTPProvider(search.HTTPConfig{
		Endpoint:          cfg.Search.Endpoint,
		APIKey:            cfg.SearchAPIKey(),
		Timeout:           time.Duration(cfg.Search.TimeoutSecs) * time.Second,
		RequestsPerSecond: cfg.Search.RequestsPerSecond,
	})
	registry := tools.NewRegistry()
	registry.Register(tools.NewWebSearchTool(provider))

	recorder, err := buildRecorder(cfg)
	if err != nil {
		return nil, "", err
	}

	convDir, err := cfg.ConversationsDir()
	if err != nil {
		return nil, "", err
	}
	store, err := storage.NewStoreWithDir(convDir)
	if err != nil {
		return nil, "", err
	}
	store.MaxConversations = cfg.Storage.MaxConversations

	eng := engine.New(engine.Config{
		Transport: client,
		Executor:  tools.NewExecutor(registry),
		Recorder:  recorder,
		Store:     store,
		Model:     cfg.DefaultModel,
		Settings:  cfg.ChatSettings(),
	})

	exportDir := filepath.Join(filepath.Dir(convDir), "exports")
	return eng, exportDir, nil
}

// buildRecorder sets up debug recording, with the SQLite sink when
// persistence is configured.
func buildRecorder(cfg *config.Config) (*debug.Recorder, error) {
	if !cfg.Debug.Enabled {
		return nil, nil
	}
	if !cfg.Debug.Persist {
		return debug.NewRecorder(), nil
	}

	dbPath, err := cfg.DebugDBPath()
	if err != nil {
		return nil, err
	}
	store, err := debug.OpenStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open debug store: %w", err)
	}
	return debug.NewRecorderWithStore(store), nil
}

func runChat(cfg *config.Config, plain bool) error {
	eng, exportDir, err := buildEngine(cfg)
	if err != nil {
		return err
	}

	// Preload the model so the first turn does not pay the load latency.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if err := eng.WarmUp(ctx); err != nil {
			log.Printf("MAIN | status=warmup_failed err=%v", err)
		}
	}()

	// Hot-reload settings while a session is open; model and transport
	// changes still require a restart.
	if path, err := config.ConfigPathTOML(); err == nil {
		if watcher, werr := config.NewWatcher(path, 0, func(next *config.Config) {
			eng.SetSettings(next.ChatSettings())
		}); werr == nil {
			if werr := watcher.Watch(); werr == nil {
				defer watcher.Close()
			}
		}
	}

	if plain {
		return ui.RunPlain(eng, exportDir)
	}

	// The TUI owns the terminal; keep engine event lines out of it.
	log.SetOutput(io.Discard)
	return ui.Run(eng, exportDir)
}

func runList(cfg *config.Config) error {
	convDir, err := cfg.ConversationsDir()
	if err != nil {
		return err
	}
	store, err := storage.NewStoreWithDir(convDir)
	if err != nil {
		return err
	}

	list, err := store.List()
	if err != nil {
		return err
	}
	fmt.Print(storage.FormatList(list))
	return nil
}

func runExport(cfg *config.Config, id, format string) error {
	if id == "" {
		return fmt.Errorf("usage: convoke export <conversation-id> [json|markdown]")
	}
	if format == "" {
		format = "markdown"
	}

	convDir, err := cfg.ConversationsDir()
	if err != nil {
		return err
	}
	store, err := storage.NewStoreWithDir(convDir)
	if err != nil {
		return err
	}

	conv, err := store.Load(id)
	if err != nil {
		return err
	}

	exporter, err := export.ForFormat(format)
	if err != nil {
		return err
	}
	path, err := export.ExportToFile(conv, exporter, filepath.Join(filepath.Dir(convDir), "exports"))
	if err != nil {
		return err
	}
	fmt.Println(path)
	return nil
}

func runDebugLog(cfg *config.Config, format string) error {
	dbPath, err := cfg.DebugDBPath()
	if err != nil {
		return err
	}
	if _, err := os.Stat(dbPath); err != nil {
		return fmt.Errorf("no debug log at %s (run with --debug and debug.persist enabled)", dbPath)
	}

	store, err := debug.OpenStore(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	recorder := debug.NewRecorderWithStore(store)

	switch format {
	case "", "json":
		data, err := recorder.ExportJSON()
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(data)
		return err
	case "csv":
		_, err := os.Stdout.WriteString(recorder.ExportCSV())
		return err
	default:
		return fmt.Errorf("unknown debug log format %q (json, csv)", format)
	}
}
