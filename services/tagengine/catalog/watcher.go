// Copyright (C) 2025 Tribo (eng@tribo.social)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads the catalog when the seed file changes on disk.
//
// # Description
//
// Watches the directory containing the catalog file and re-runs LoadFile
// after a short debounce window when the file is written or replaced
// (editors and config pushes commonly rename-over). A reload that fails
// validation keeps the previous definitions and logs a warning, so a bad
// push never leaves the engine without a catalog.
//
// # Thread Safety
//
// Start and Stop are safe for concurrent use. Reloads happen on a single
// goroutine.
type Watcher struct {
	catalog  *Catalog
	path     string
	debounce time.Duration

	watcher  *fsnotify.Watcher
	done     chan struct{}
	stopOnce sync.Once

	mu       sync.Mutex
	watching bool
}

// NewWatcher creates a watcher for the given catalog file path.
func NewWatcher(c *Catalog, path string) *Watcher {
	return &Watcher{
		catalog:  c,
		path:     path,
		debounce: 250 * time.Millisecond,
		done:     make(chan struct{}),
	}
}

// Start begins watching. The context cancels the watch loop.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.watching {
		return fmt.Errorf("catalog watcher already started")
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	// Watch the directory, not the file: rename-over replaces the inode
	// and a file-level watch would go stale after the first push.
	if err := fsw.Add(filepath.Dir(w.path)); err != nil {
		fsw.Close()
		return fmt.Errorf("watch catalog dir: %w", err)
	}

	w.watcher = fsw
	w.watching = true

	go w.loop(ctx)

	slog.Info("catalog watcher started", "path", w.path)
	return nil
}

// Stop stops watching. Safe to call multiple times.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
	})
}

func (w *Watcher) loop(ctx context.Context) {
	defer w.watcher.Close()

	var timer *time.Timer
	var timerC <-chan time.Time

	target := filepath.Clean(w.path)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			timerC = timer.C
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("catalog watcher error", "error", err)
		case <-timerC:
			timerC = nil
			w.reload()
		}
	}
}

func (w *Watcher) reload() {
	if err := w.catalog.LoadFile(w.path); err != nil {
		slog.Warn("catalog reload failed, keeping previous definitions",
			"path", w.path, "error", err)
		return
	}
	slog.Info("catalog reloaded", "path", w.path, "tags", w.catalog.Len())
}
