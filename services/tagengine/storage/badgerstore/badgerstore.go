// Copyright (C) 2025 Tribo (eng@tribo.social)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package badgerstore persists user/tag assignments in an embedded
// BadgerDB.
//
// Keys are "assignment/<userID>/<tagID>", values the RFC3339 assignedAt
// timestamp. One key per assignment gives the (userId, tagId) uniqueness
// invariant for free and makes insert-or-ignore and delete-if-exists
// single-key transactions.
//
// License: BadgerDB is Apache 2.0 licensed (github.com/dgraph-io/badger).
package badgerstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
)

const keyPrefix = "assignment/"

// Config holds configuration for the assignment store.
type Config struct {
	// Path is the directory for BadgerDB files. Required unless
	// InMemory is true.
	Path string

	// InMemory enables in-memory mode (no disk persistence). For tests.
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool

	// Logger receives BadgerDB's internal logging. Nil disables it.
	Logger *slog.Logger
}

// DefaultConfig returns production defaults: durable synchronous writes.
func DefaultConfig(path string) Config {
	return Config{
		Path:       path,
		SyncWrites: true,
	}
}

// InMemoryConfig returns a configuration for tests: no disk I/O, no sync.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// Store is the BadgerDB-backed assignment store.
//
// # Thread Safety
//
// Safe for concurrent use; BadgerDB transactions provide the per-key
// atomicity the reconciler's insert-or-ignore / delete-if-exists contract
// relies on.
type Store struct {
	db *badger.DB
}

// Open creates and opens an assignment store.
//
// # Inputs
//
//   - cfg: Store configuration. Path is required unless InMemory is true.
//
// # Outputs
//
//   - *Store: The opened store. Caller must call Close when done.
//   - error: Non-nil if the path is invalid or the database cannot open.
func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent store")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create store directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open assignment store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// ListAssignments returns the user's assignments keyed by tag ID.
func (s *Store) ListAssignments(ctx context.Context, userID string) (map[string]time.Time, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	prefix := []byte(keyPrefix + userID + "/")
	result := make(map[string]time.Time)

	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix, PrefetchValues: true})
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			tagID := strings.TrimPrefix(string(item.Key()), string(prefix))
			err := item.Value(func(val []byte) error {
				at, err := time.Parse(time.RFC3339, string(val))
				if err != nil {
					return fmt.Errorf("corrupt assignedAt for %s/%s: %w", userID, tagID, err)
				}
				result[tagID] = at
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list assignments for %s: %w", userID, err)
	}
	return result, nil
}

// InsertAssignment records an assignment. Returns true only if the key was
// newly written; inserting an existing assignment is a no-op.
func (s *Store) InsertAssignment(ctx context.Context, userID, tagID string, assignedAt time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	key := assignmentKey(userID, tagID)
	inserted := false

	err := s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		if err == nil {
			return nil // already assigned
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := txn.Set(key, []byte(assignedAt.UTC().Format(time.RFC3339))); err != nil {
			return err
		}
		inserted = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("insert assignment %s/%s: %w", userID, tagID, err)
	}
	return inserted, nil
}

// DeleteAssignment removes an assignment. Returns true only if a key
// existed and was deleted; removing an absent assignment is a no-op.
func (s *Store) DeleteAssignment(ctx context.Context, userID, tagID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	key := assignmentKey(userID, tagID)
	deleted := false

	err := s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil // nothing to delete
		}
		if err != nil {
			return err
		}
		if err := txn.Delete(key); err != nil {
			return err
		}
		deleted = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("delete assignment %s/%s: %w", userID, tagID, err)
	}
	return deleted, nil
}

func assignmentKey(userID, tagID string) []byte {
	return []byte(keyPrefix + userID + "/" + tagID)
}
