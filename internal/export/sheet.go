/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package export renders contact sheets of catalog assets: a grid of preview
// thumbnails with name, renderer and categories underneath, as PDF or PNG.
package export

import (
	"matlib/internal/domain"
)

// Entry is one cell of a contact sheet. Image is the preview path; a missing
// file draws a placeholder.
type Entry struct {
	Asset domain.Asset
	Image string
}

// ImagePaths locates preview images. *storage.Store implements it.
type ImagePaths interface {
	ImagePath(id string) string
}

// Entries pairs assets with their preview images, keeping the order of assets.
func Entries(paths ImagePaths, assets []domain.Asset) []Entry {
	out := make([]Entry, len(assets))
	for i, a := range assets {
		out[i] = Entry{Asset: a, Image: paths.ImagePath(a.ID)}
	}
	return out
}

// SheetOptions controls the grid. Zero values get defaults.
type SheetOptions struct {
	Title   string
	Columns int
	// Thumb is the thumbnail edge in pixels (PNG) or the resolution images are
	// embedded with (PDF).
	Thumb int
}

func (o SheetOptions) withDefaults() SheetOptions {
	if o.Columns <= 0 {
		o.Columns = 4
	}
	if o.Thumb <= 0 {
		o.Thumb = domain.DefaultThumbSize
	}
	if o.Title == "" {
		o.Title = "Material Library"
	}
	return o
}

func caption(a domain.Asset) string {
	if len(a.Categories) == 0 {
		return string(a.Renderer)
	}
	return string(a.Renderer) + " | " + a.CategoryLabel()
}
