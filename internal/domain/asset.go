/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package domain holds the value types of the material library: assets, renderer
// kinds, the catalog document and the preferences document.
package domain

import (
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Asset is one catalog row.
// ID is assigned once at creation and never changes. Categories and Tags behave as
// sets; their order is kept only for display.
type Asset struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Categories  []string  `json:"categories"`
	Tags        []string  `json:"tags"`
	Favorite    bool      `json:"favorite"`
	Renderer    Renderer  `json:"renderer"`
	BuilderKind bool      `json:"builder"`
	Date        time.Time `json:"date"`
	USD         bool      `json:"usd"`
	Hash        string    `json:"hash,omitempty"` // blake3 of the network artifact
}

// NewAssetID mints a time-ordered unique id (UUIDv7). Ids minted later sort after
// earlier ones, also within the same millisecond.
func NewAssetID() string {
	id, err := uuid.NewV7()
	if err != nil {
		// NewV7 only fails when the random source fails.
		return uuid.NewString()
	}
	return id.String()
}

// Now returns the timestamp stored in Asset.Date: UTC without monotonic reading,
// so it survives a JSON round trip unchanged.
func Now() time.Time { return time.Now().UTC().Round(0) }

// Clone returns a deep copy of a.
func (a Asset) Clone() Asset {
	a.Categories = slices.Clone(a.Categories)
	a.Tags = slices.Clone(a.Tags)
	return a
}

// HasCategory reports exact (case-sensitive) category membership.
func (a Asset) HasCategory(c string) bool { return slices.Contains(a.Categories, c) }

// HasTag reports exact tag membership.
func (a Asset) HasTag(t string) bool { return slices.Contains(a.Tags, t) }

// CategoryLabel joins the categories for display.
func (a Asset) CategoryLabel() string { return strings.Join(a.Categories, ",") }

// TagLabel joins the tags for display.
func (a Asset) TagLabel() string { return strings.Join(a.Tags, ",") }
