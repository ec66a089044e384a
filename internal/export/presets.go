/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package export

import (
	"fmt"
	"path/filepath"
	"strings"
)

// PresetName represents a named export preset.
type PresetName string

const (
	PresetWeb   PresetName = "web"
	PresetPrint PresetName = "print"
)

// BatchOptions controls a batch export of one contact sheet per format.
//
// Path semantics:
//   - If OutDir is empty or relative, it is created under <root>/exports/<preset>/.
//   - Files are named contact-sheet.<format> inside OutDir.
type BatchOptions struct {
	Preset  PresetName
	Formats []string // allowed: pdf, png; empty means preset defaults
	OutDir  string
	Sheet   SheetOptions
}

// BatchExport writes the contact sheets of the preset and returns their paths.
func BatchExport(root string, entries []Entry, opt BatchOptions) ([]string, error) {
	formats := opt.Formats
	if len(formats) == 0 {
		formats = presetDefaultFormats(opt.Preset)
	}
	baseOut := opt.OutDir
	if baseOut == "" {
		baseOut = string(opt.Preset)
		if baseOut == "" {
			baseOut = "default"
		}
	}
	if !filepath.IsAbs(baseOut) {
		baseOut = filepath.Join(root, "exports", baseOut)
	}
	sheet := presetSheet(opt.Preset, opt.Sheet)

	var out []string
	for _, f := range formats {
		f = strings.ToLower(strings.TrimSpace(f))
		path := filepath.Join(baseOut, "contact-sheet."+f)
		switch f {
		case "pdf":
			if err := ContactSheetPDF(entries, path, sheet); err != nil {
				return out, fmt.Errorf("pdf: %w", err)
			}
		case "png":
			if err := ContactSheetPNG(entries, path, sheet); err != nil {
				return out, fmt.Errorf("png: %w", err)
			}
		default:
			return out, fmt.Errorf("unknown format: %s", f)
		}
		out = append(out, path)
	}
	return out, nil
}

func presetDefaultFormats(p PresetName) []string {
	switch p {
	case PresetWeb:
		return []string{"png"}
	case PresetPrint:
		return []string{"pdf", "png"}
	default:
		return []string{"pdf"}
	}
}

// presetSheet fills what the caller left open: print uses more, larger cells.
func presetSheet(p PresetName, o SheetOptions) SheetOptions {
	switch p {
	case PresetWeb:
		if o.Thumb == 0 {
			o.Thumb = 128
		}
	case PresetPrint:
		if o.Columns == 0 {
			o.Columns = 5
		}
		if o.Thumb == 0 {
			o.Thumb = 512
		}
	}
	return o
}
