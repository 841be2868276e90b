// Copyright (C) 2025 Tribo (eng@tribo.social)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package catalog holds the declarative tag definitions that drive the
// reconciliation engine. Definitions are data, not code: each tag carries
// structured acquisition and removal predicates so the evaluator stays pure
// and testable.
package catalog

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Category classifies a tag by intent.
type Category string

const (
	// CategoryPositive marks achievement-style tags (e.g. querido, veterano).
	CategoryPositive Category = "positive"

	// CategoryTime marks tags bound to a time window (e.g. recem-chegado).
	CategoryTime Category = "time"

	// CategoryModeration marks tags attached by moderation activity.
	CategoryModeration Category = "moderation"
)

// Visibility controls whether a tag is shown on public profiles.
type Visibility string

const (
	VisibilityPublic   Visibility = "public"
	VisibilityInternal Visibility = "internal"
)

// UnmarshalYAML validates Category values at decode time.
func (c *Category) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	incoming := Category(s)
	switch incoming {
	case CategoryPositive, CategoryTime, CategoryModeration:
		*c = incoming
		return nil
	default:
		return fmt.Errorf("invalid value for Category: %q", incoming)
	}
}

// UnmarshalYAML validates Visibility values at decode time.
func (v *Visibility) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	incoming := Visibility(s)
	switch incoming {
	case VisibilityPublic, VisibilityInternal:
		*v = incoming
		return nil
	default:
		return fmt.Errorf("invalid value for Visibility: %q", incoming)
	}
}

// Predicate is a structured condition over a user metrics snapshot.
//
// # Description
//
// All set fields must hold for the predicate to match (logical AND).
// There is intentionally no OR and no nesting: none of the current tags
// need it, and keeping the condition flat keeps the evaluator trivial.
// Do not add composition here without a tag that actually requires it.
//
// A nil optional field means "no constraint on that metric". A predicate
// with Manual set is satisfied only by explicit administrative action,
// never by the evaluator, regardless of the other fields.
type Predicate struct {
	// Manual means the predicate is satisfied only by an administrative
	// grant or revoke, never automatically.
	Manual bool `yaml:"manual" json:"manual"`

	// MinAccountAgeDays matches when account age in days is >= this.
	MinAccountAgeDays *int `yaml:"min_account_age_days" json:"min_account_age_days,omitempty"`

	// MaxAccountAgeDays matches when account age in days is <= this.
	MaxAccountAgeDays *int `yaml:"max_account_age_days" json:"max_account_age_days,omitempty"`

	// MinReactions matches when lifetime reactions received is >= this.
	MinReactions *int64 `yaml:"min_reactions" json:"min_reactions,omitempty"`

	// MinWarnings matches when the official warning count is >= this.
	MinWarnings *int `yaml:"min_warnings" json:"min_warnings,omitempty"`

	// MinDaysSinceWarning matches when the last official warning is at
	// least this many days old. Never matches for users with no warnings.
	MinDaysSinceWarning *int `yaml:"min_days_since_warning" json:"min_days_since_warning,omitempty"`

	// Silenced matches when the user's silencing state equals this value.
	Silenced *bool `yaml:"silenced" json:"silenced,omitempty"`

	// Verified matches when the user's verification state equals this value.
	Verified *bool `yaml:"verified" json:"verified,omitempty"`
}

// IsEmpty reports whether the predicate constrains nothing and is not
// manual. Such a predicate can never fire and indicates a catalog
// authoring mistake.
func (p *Predicate) IsEmpty() bool {
	if p == nil {
		return true
	}
	return !p.Manual &&
		p.MinAccountAgeDays == nil &&
		p.MaxAccountAgeDays == nil &&
		p.MinReactions == nil &&
		p.MinWarnings == nil &&
		p.MinDaysSinceWarning == nil &&
		p.Silenced == nil &&
		p.Verified == nil
}

// TagDefinition is one immutable catalog entry.
//
// Definitions are created at catalog seed time and mutated only through
// the administrative edit path; they are never deleted while referenced
// by an assignment.
type TagDefinition struct {
	// ID is the stable identifier referenced by assignments and
	// notifications.
	ID string `yaml:"id" json:"id" validate:"required"`

	// Name is the display name.
	Name string `yaml:"name" json:"name" validate:"required"`

	// Category classifies the tag (positive, time, moderation).
	Category Category `yaml:"category" json:"category" validate:"required"`

	// Visibility controls public profile display.
	Visibility Visibility `yaml:"visibility" json:"visibility" validate:"required"`

	// Acquire is the acquisition predicate. Required; use Manual for
	// tags granted only by administrators.
	Acquire *Predicate `yaml:"acquire" json:"acquire" validate:"required"`

	// Remove is the explicit removal predicate. Nil disables only the
	// explicit rule: non-manual tags are still removed when their
	// acquisition predicate stops holding. Manual tags with a nil
	// Remove are removed only by administrative revoke.
	Remove *Predicate `yaml:"remove" json:"remove,omitempty"`

	// NotifyOnAcquire emits a notification when the tag is committed.
	NotifyOnAcquire bool `yaml:"notify_on_acquire" json:"notify_on_acquire"`

	// NotifyOnRemove emits a notification when the tag is removed.
	NotifyOnRemove bool `yaml:"notify_on_remove" json:"notify_on_remove"`
}

// ManualOnly reports whether the tag can only ever be granted by an
// administrator.
func (d *TagDefinition) ManualOnly() bool {
	return d.Acquire != nil && d.Acquire.Manual
}

// catalogFile is the on-disk YAML shape of a catalog seed file.
type catalogFile struct {
	Tags []TagDefinition `yaml:"tags"`
}
