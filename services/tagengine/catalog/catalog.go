// Copyright (C) 2025 Tribo (eng@tribo.social)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package catalog

import (
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Catalog is the in-memory registry of tag definitions.
//
// # Description
//
// Holds an ordered list of TagDefinition entries. The order is the file
// (or seed) order and is the order the evaluator emits transitions in,
// which keeps evaluation output reproducible.
//
// # Thread Safety
//
// Safe for concurrent use after construction. Reads copy the definition
// slice so a reload during a run cannot mutate a run's view.
type Catalog struct {
	mu   sync.RWMutex
	defs []TagDefinition
}

// New creates an empty catalog.
func New() *Catalog {
	return &Catalog{defs: make([]TagDefinition, 0)}
}

// LoadFile loads definitions from a YAML seed file, replacing the current
// set on success.
//
// # Inputs
//
//   - path: Path to the catalog file (e.g. configs/catalog.yaml).
//
// # Outputs
//
//   - error: Non-nil if reading, decoding, or validation failed. The
//     previously loaded definitions are kept untouched on failure.
func (c *Catalog) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read catalog file: %w", err)
	}

	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse catalog: %w", err)
	}

	if err := validateDefinitions(file.Tags); err != nil {
		return fmt.Errorf("validate catalog: %w", err)
	}

	c.Replace(file.Tags)
	return nil
}

// Replace swaps in a new ordered definition set.
func (c *Catalog) Replace(defs []TagDefinition) {
	copied := make([]TagDefinition, len(defs))
	copy(copied, defs)

	c.mu.Lock()
	c.defs = copied
	c.mu.Unlock()
}

// Definitions returns a copy of the current definitions in stable order.
func (c *Catalog) Definitions() []TagDefinition {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make([]TagDefinition, len(c.defs))
	copy(result, c.defs)
	return result
}

// Lookup returns the definition for a tag ID, or false if unknown.
func (c *Catalog) Lookup(tagID string) (TagDefinition, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, d := range c.defs {
		if d.ID == tagID {
			return d, true
		}
	}
	return TagDefinition{}, false
}

// Len returns the number of loaded definitions.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.defs)
}

// validateDefinitions checks structural validity of a definition set.
func validateDefinitions(defs []TagDefinition) error {
	validate := validator.New()

	seen := make(map[string]bool, len(defs))
	for i := range defs {
		d := &defs[i]
		if err := validate.Struct(d); err != nil {
			return fmt.Errorf("tag %q: %w", d.ID, err)
		}
		if seen[d.ID] {
			return fmt.Errorf("duplicate tag id %q", d.ID)
		}
		seen[d.ID] = true

		if d.Acquire.IsEmpty() {
			return fmt.Errorf("tag %q: acquisition predicate constrains nothing", d.ID)
		}
		if d.Remove != nil && d.Remove.Manual {
			// Removal is either predicate-driven or an administrative
			// revoke; a manual removal predicate is meaningless.
			return fmt.Errorf("tag %q: removal predicate must not be manual", d.ID)
		}
		if d.Remove != nil && d.Remove.IsEmpty() {
			slog.Warn("catalog: removal predicate constrains nothing, treating as absent",
				"tag_id", d.ID)
			defs[i].Remove = nil
		}
	}
	return nil
}

// DefaultDefinitions returns the seed tag set used when no catalog file is
// configured. This mirrors the production seed.
func DefaultDefinitions() []TagDefinition {
	return []TagDefinition{
		{
			ID:         "recem-chegado",
			Name:       "Recém-chegado",
			Category:   CategoryTime,
			Visibility: VisibilityPublic,
			Acquire:    &Predicate{MaxAccountAgeDays: intPtr(7)},
			Remove:     &Predicate{MinAccountAgeDays: intPtr(8)},
		},
		{
			ID:              "veterano",
			Name:            "Veterano",
			Category:        CategoryPositive,
			Visibility:      VisibilityPublic,
			Acquire:         &Predicate{MinAccountAgeDays: intPtr(365)},
			NotifyOnAcquire: true,
		},
		{
			ID:              "querido",
			Name:            "Querido pela comunidade",
			Category:        CategoryPositive,
			Visibility:      VisibilityPublic,
			Acquire:         &Predicate{MinReactions: int64Ptr(1000)},
			NotifyOnAcquire: true,
		},
		{
			ID:              "verificado",
			Name:            "Verificado",
			Category:        CategoryPositive,
			Visibility:      VisibilityPublic,
			Acquire:         &Predicate{Manual: true},
			NotifyOnAcquire: true,
		},
		{
			ID:         "advertido",
			Name:       "Advertido",
			Category:   CategoryModeration,
			Visibility: VisibilityInternal,
			Acquire:    &Predicate{Manual: true},
			// Clears after 30 days without further infractions.
			Remove:         &Predicate{MinDaysSinceWarning: intPtr(30)},
			NotifyOnRemove: true,
		},
		{
			ID:              "silenciado",
			Name:            "Silenciado",
			Category:        CategoryModeration,
			Visibility:      VisibilityInternal,
			Acquire:         &Predicate{Silenced: boolPtr(true)},
			Remove:          &Predicate{Silenced: boolPtr(false)},
			NotifyOnAcquire: true,
		},
	}
}

// intPtr returns a pointer to an int.
func intPtr(i int) *int { return &i }

// int64Ptr returns a pointer to an int64.
func int64Ptr(i int64) *int64 { return &i }

// boolPtr returns a pointer to a bool.
func boolPtr(b bool) *bool { return &b }
