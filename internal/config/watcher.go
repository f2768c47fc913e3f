// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// =============================================================================
// CONFIG FILE WATCHER
// =============================================================================

// ReloadFunc receives the freshly loaded config after a change on disk.
type ReloadFunc func(cfg *Config)

// Watcher hot-reloads a config file when it changes on disk. Editors
// often replace files via rename, so the parent directory is watched
// and events are filtered by name.
type Watcher struct {
	path     string
	onReload ReloadFunc
	debounce time.Duration

	watcher *fsnotify.Watcher
	mu      sync.Mutex
	pending time.Time
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewWatcher creates a watcher for the config file at path. The reload
// callback runs on the watcher goroutine after each debounced change.
func NewWatcher(path string, debounce time.Duration, onReload ReloadFunc) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if debounce <= 0 {
		debounce = 200 * time.Millisecond
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Watcher{
		path:     path,
		onReload: onReload,
		debounce: debounce,
		watcher:  fw,
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Watch starts watching for config file changes.
func (w *Watcher) Watch() error {
	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return err
	}

	go w.processEvents()
	go w.processPending()

	return nil
}

// processEvents filters directory events down to the config file.
func (w *Watcher) processEvents() {
	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				w.mu.Lock()
				w.pending = time.Now()
				w.mu.Unlock()
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("CONFIG_WATCH | error=%v", err)
		}
	}
}

// processPending fires the reload once changes settle past the debounce
// window.
func (w *Watcher) processPending() {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return

		case <-ticker.C:
			w.mu.Lock()
			ready := !w.pending.IsZero() && time.Since(w.pending) >= w.debounce
			if ready {
				w.pending = time.Time{}
			}
			w.mu.Unlock()

			if ready {
				w.reload()
			}
		}
	}
}

// reload re-reads the config file and hands the result to the callback.
func (w *Watcher) reload() {
	if _, err := os.Stat(w.path); err != nil {
		// File replaced or mid-rename; the next event retries.
		return
	}

	cfg, err := LoadFromPath(w.path)
	if err != nil {
		log.Printf("CONFIG_WATCH | path=%s status=invalid err=%v", w.path, err)
		return
	}

	log.Printf("CONFIG_WATCH | path=%s status=reloaded", w.path)
	if w.onReload != nil {
		w.onReload(cfg)
	}
}

// Close stops watching and releases resources.
func (w *Watcher) Close() error {
	w.cancel()
	if w.watcher != nil {
		return w.watcher.Close()
	}
	return nil
}
