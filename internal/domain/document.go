/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package domain

import (
	"encoding/json"
	"fmt"
)

// Default layout values for a freshly seeded library.
const (
	DefaultThumbSize  = 128
	DefaultRenderSize = 512
)

// Document is the catalog document: one JSON file per library root.
// Top-level fields this version does not know are kept in Extra and written back
// on save.
type Document struct {
	Assets         []Asset
	Categories     []string
	Tags           []string
	ThumbSize      int
	RenderSize     int
	RenderOnImport bool

	Extra map[string]json.RawMessage
}

// NewDocument returns an empty document with default layout values.
func NewDocument() Document {
	return Document{
		Assets:     []Asset{},
		Categories: []string{},
		Tags:       []string{},
		ThumbSize:  DefaultThumbSize,
		RenderSize: DefaultRenderSize,
	}
}

type documentJSON struct {
	Assets         []Asset  `json:"assets"`
	Categories     []string `json:"categories"`
	Tags           []string `json:"tags"`
	ThumbSize      int      `json:"thumbsize"`
	RenderSize     int      `json:"rendersize"`
	RenderOnImport bool     `json:"renderOnImport"`
}

var documentKeys = []string{"assets", "categories", "tags", "thumbsize", "rendersize", "renderOnImport"}

func (d Document) MarshalJSON() ([]byte, error) {
	known, err := json.Marshal(documentJSON{
		Assets:         nonNil(d.Assets),
		Categories:     nonNil(d.Categories),
		Tags:           nonNil(d.Tags),
		ThumbSize:      d.ThumbSize,
		RenderSize:     d.RenderSize,
		RenderOnImport: d.RenderOnImport,
	})
	if err != nil || len(d.Extra) == 0 {
		return known, err
	}
	var merged map[string]json.RawMessage
	if err := json.Unmarshal(known, &merged); err != nil {
		return nil, err
	}
	for k, v := range d.Extra {
		if _, clash := merged[k]; !clash {
			merged[k] = v
		}
	}
	return json.Marshal(merged)
}

func (d *Document) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	var dj documentJSON
	if err := json.Unmarshal(b, &dj); err != nil {
		return err
	}
	for _, k := range documentKeys {
		delete(raw, k)
	}
	*d = Document{
		Assets:         nonNil(dj.Assets),
		Categories:     nonNil(dj.Categories),
		Tags:           nonNil(dj.Tags),
		ThumbSize:      dj.ThumbSize,
		RenderSize:     dj.RenderSize,
		RenderOnImport: dj.RenderOnImport,
	}
	if len(raw) > 0 {
		d.Extra = raw
	}
	return nil
}

// Validate checks the invariants that the JSON schema cannot express.
func (d Document) Validate() error {
	seen := make(map[string]struct{}, len(d.Assets))
	for i, a := range d.Assets {
		if a.ID == "" {
			return fmt.Errorf("asset %d: empty id", i)
		}
		if _, dup := seen[a.ID]; dup {
			return fmt.Errorf("asset %d: duplicate id %q", i, a.ID)
		}
		seen[a.ID] = struct{}{}
	}
	for _, c := range d.Categories {
		if c == "" {
			return fmt.Errorf("empty category in vocabulary")
		}
	}
	for _, t := range d.Tags {
		if t == "" {
			return fmt.Errorf("empty tag in vocabulary")
		}
	}
	return nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// Preferences is the per-user preferences document: where the library lives and how
// artifacts are named inside it.
type Preferences struct {
	Directory    string `json:"directory"`
	Extension    string `json:"extension"`
	ImgExtension string `json:"imgExtension"`
	DoneFile     string `json:"doneFile"`
	ImgDir       string `json:"imgDir"`
	AssetDir     string `json:"assetDir"`
}

// DefaultPreferences returns the values written when no preferences document exists.
func DefaultPreferences() Preferences {
	return Preferences{
		Extension:    "mat",
		ImgExtension: "png",
		DoneFile:     "render.done",
		ImgDir:       "img",
		AssetDir:     "assets",
	}
}

// WithDefaults fills empty fields from DefaultPreferences.
func (p Preferences) WithDefaults() Preferences {
	def := DefaultPreferences()
	if p.Extension == "" {
		p.Extension = def.Extension
	}
	if p.ImgExtension == "" {
		p.ImgExtension = def.ImgExtension
	}
	if p.DoneFile == "" {
		p.DoneFile = def.DoneFile
	}
	if p.ImgDir == "" {
		p.ImgDir = def.ImgDir
	}
	if p.AssetDir == "" {
		p.AssetDir = def.AssetDir
	}
	return p
}
