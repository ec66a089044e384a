/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package catalog

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"matlib/internal/domain"
)

// CheckAddCategory splits comma-delimited text into tokens and appends the new ones
// to the category vocabulary. It returns the tokens that were added; applying the
// same text twice adds nothing the second time.
func (c *Catalog) CheckAddCategory(text string) ([]string, error) {
	return c.checkAdd(&c.categories, text, "category")
}

// CheckAddTag is CheckAddCategory for the tag vocabulary.
func (c *Catalog) CheckAddTag(text string) ([]string, error) {
	return c.checkAdd(&c.tags, text, "tag")
}

func (c *Catalog) checkAdd(vocab *[]string, text, what string) ([]string, error) {
	tokens := domain.SplitTokens(text)
	c.mu.Lock()
	prev := *vocab
	var added []string
	for _, t := range tokens {
		if !slices.Contains(*vocab, t) {
			*vocab = append(slices.Clone(*vocab), t)
			added = append(added, t)
		}
	}
	if len(added) == 0 {
		c.mu.Unlock()
		return nil, nil
	}
	if err := c.saveLocked(); err != nil {
		*vocab = prev
		c.mu.Unlock()
		return nil, err
	}
	c.mu.Unlock()
	c.log.Debug("vocabulary extended", slog.String("kind", what), slog.Any("added", added))
	return added, nil
}

// extendLocked appends the missing tokens to *vocab without touching the old
// backing array, so callers can roll back by restoring the previous slice. It
// reports whether anything was added. c.mu must be held.
func extendLocked(vocab *[]string, tokens []string) bool {
	grown := false
	for _, t := range tokens {
		if !slices.Contains(*vocab, t) {
			*vocab = append(slices.Clone(*vocab), t)
			grown = true
		}
	}
	return grown
}

// RenameCategory renames a category in the vocabulary and on every asset. When
// repl already exists the two categories merge.
func (c *Catalog) RenameCategory(old, repl string) error {
	return c.rename(&c.categories, old, repl, "category", func(a *domain.Asset) *[]string { return &a.Categories })
}

// RenameTag renames a tag in the vocabulary and on every asset.
func (c *Catalog) RenameTag(old, repl string) error {
	return c.rename(&c.tags, old, repl, "tag", func(a *domain.Asset) *[]string { return &a.Tags })
}

func (c *Catalog) rename(vocab *[]string, old, repl, what string, field func(*domain.Asset) *[]string) error {
	repl = strings.TrimSpace(repl)
	if repl == "" {
		return fmt.Errorf("rename %s %q: empty name", what, old)
	}
	if strings.Contains(repl, ",") {
		return fmt.Errorf("rename %s %q: %q contains a comma", what, old, repl)
	}
	if old == repl {
		return nil
	}
	c.mu.Lock()
	if !slices.Contains(*vocab, old) {
		c.mu.Unlock()
		return fmt.Errorf("%s %q: %w", what, old, domain.ErrNotFound)
	}
	prevVocab := *vocab
	prevAssets := c.snapshotLocked()
	*vocab = domain.Replace(*vocab, old, repl)
	changed := c.rewriteLocked(old, field, func(set []string) []string { return domain.Replace(set, old, repl) })
	if err := c.saveLocked(); err != nil {
		*vocab, c.assets = prevVocab, prevAssets
		c.mu.Unlock()
		return err
	}
	c.mu.Unlock()
	c.log.Info(what+" renamed", slog.String("from", old), slog.String("to", repl), slog.Int("assets", len(changed)))
	c.emit(changed...)
	return nil
}

// RemoveCategory drops a category from the vocabulary and from every asset.
func (c *Catalog) RemoveCategory(old string) error {
	c.mu.Lock()
	if !slices.Contains(c.categories, old) && !c.referencedLocked(old) {
		c.mu.Unlock()
		return nil
	}
	prevVocab := c.categories
	prevAssets := c.snapshotLocked()
	c.categories = domain.Without(c.categories, old)
	changed := c.rewriteLocked(old, func(a *domain.Asset) *[]string { return &a.Categories },
		func(set []string) []string { return domain.Without(set, old) })
	if err := c.saveLocked(); err != nil {
		c.categories, c.assets = prevVocab, prevAssets
		c.mu.Unlock()
		return err
	}
	c.mu.Unlock()
	c.log.Info("category removed", slog.String("category", old), slog.Int("assets", len(changed)))
	c.emit(changed...)
	return nil
}

// RemoveTag drops a tag from the vocabulary only; assets keep it.
func (c *Catalog) RemoveTag(old string) error {
	c.mu.Lock()
	if !slices.Contains(c.tags, old) {
		c.mu.Unlock()
		return nil
	}
	prev := c.tags
	c.tags = domain.Without(c.tags, old)
	if err := c.saveLocked(); err != nil {
		c.tags = prev
		c.mu.Unlock()
		return err
	}
	c.mu.Unlock()
	return nil
}

func (c *Catalog) referencedLocked(category string) bool {
	for _, a := range c.assets {
		if a.HasCategory(category) {
			return true
		}
	}
	return false
}

// snapshotLocked deep-copies the rows for rollback.
func (c *Catalog) snapshotLocked() []domain.Asset {
	out := make([]domain.Asset, len(c.assets))
	for i, a := range c.assets {
		out[i] = a.Clone()
	}
	return out
}

// rewriteLocked applies fn to the set selected by field on every asset holding
// token and returns the change events.
func (c *Catalog) rewriteLocked(token string, field func(*domain.Asset) *[]string, fn func([]string) []string) []Event {
	var events []Event
	for i := range c.assets {
		set := field(&c.assets[i])
		if !slices.Contains(*set, token) {
			continue
		}
		*set = fn(*set)
		events = append(events, Event{Kind: Changed, ID: c.assets[i].ID, Row: i})
	}
	return events
}
