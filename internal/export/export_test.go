/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package export

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"matlib/internal/domain"
)

type dirPaths string

func (d dirPaths) ImagePath(id string) string { return filepath.Join(string(d), id+".png") }

func writePreview(t *testing.T, p string) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 64, 48))
	for y := 0; y < 48; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, color.RGBA{R: 180, G: 90, B: 40, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
}

func sampleEntries(t *testing.T) []Entry {
	t.Helper()
	dir := t.TempDir()
	assets := []domain.Asset{
		{ID: "a", Name: "Brick01", Renderer: domain.Redshift, Categories: []string{"Wood", "Stone"}, Favorite: true},
		{ID: "b", Name: "A rather long material name that cannot fit", Renderer: domain.Arnold},
		{ID: "c", Name: "Ünïcode Glass", Renderer: domain.Mantra},
	}
	writePreview(t, filepath.Join(dir, "a.png"))
	writePreview(t, filepath.Join(dir, "c.png"))
	// b has no preview and gets a placeholder
	return Entries(dirPaths(dir), assets)
}

func TestEntriesKeepOrder(t *testing.T) {
	es := Entries(dirPaths("/lib/img"), []domain.Asset{{ID: "x"}, {ID: "y"}})
	if len(es) != 2 || es[0].Asset.ID != "x" || es[1].Image != filepath.Join("/lib/img", "y.png") {
		t.Fatalf("entries = %+v", es)
	}
}

func TestContactSheetPDF(t *testing.T) {
	out := filepath.Join(t.TempDir(), "sheets", "lib.pdf")
	if err := ContactSheetPDF(sampleEntries(t), out, SheetOptions{Title: "Test"}); err != nil {
		t.Fatalf("export: %v", err)
	}
	b, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.HasPrefix(b, []byte("%PDF-")) {
		t.Fatalf("not a pdf")
	}
}

func TestContactSheetPDFPaginates(t *testing.T) {
	var entries []Entry
	for i := 0; i < 40; i++ {
		entries = append(entries, Entry{Asset: domain.Asset{ID: string(rune('a' + i%26)), Name: "m", Renderer: domain.Octane}})
	}
	out := filepath.Join(t.TempDir(), "many.pdf")
	if err := ContactSheetPDF(entries, out, SheetOptions{Columns: 4}); err != nil {
		t.Fatalf("export: %v", err)
	}
	b, _ := os.ReadFile(out)
	if n := bytes.Count(b, []byte("/Type /Page\n")); n < 2 {
		t.Fatalf("pages = %d, want several", n)
	}
}

func TestContactSheetPNG(t *testing.T) {
	out := filepath.Join(t.TempDir(), "lib.png")
	if err := ContactSheetPNG(sampleEntries(t), out, SheetOptions{Columns: 2, Thumb: 32}); err != nil {
		t.Fatalf("export: %v", err)
	}
	f, err := os.Open(out)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	cell := 32 + 2*cellPad
	if b := img.Bounds(); b.Dx() != 2*cell || b.Dy() != pngTitleH+2*(cell+2*lineH) {
		t.Fatalf("size = %v", b)
	}
	// the first thumbnail is scaled to 32x24 and centred vertically in its cell
	x, y := cellPad+16, pngTitleH+cellPad+16
	if r, g, _, _ := img.At(x, y).RGBA(); r>>8 < 150 || g>>8 > 120 {
		t.Fatalf("thumbnail pixel = %v", img.At(x, y))
	}
}

func TestBatchExportPresets(t *testing.T) {
	root := t.TempDir()
	entries := sampleEntries(t)
	paths, err := BatchExport(root, entries, BatchOptions{Preset: PresetPrint})
	if err != nil {
		t.Fatalf("batch export print: %v", err)
	}
	want := []string{
		filepath.Join(root, "exports", "print", "contact-sheet.pdf"),
		filepath.Join(root, "exports", "print", "contact-sheet.png"),
	}
	if len(paths) != len(want) {
		t.Fatalf("paths = %v", paths)
	}
	for i, p := range want {
		if paths[i] != p {
			t.Fatalf("path %d = %s, want %s", i, paths[i], p)
		}
		st, err := os.Stat(p)
		if err != nil || st.Size() == 0 {
			t.Fatalf("missing %s: %v", p, err)
		}
	}
	if _, err := BatchExport(root, entries, BatchOptions{Formats: []string{"svg"}}); err == nil {
		t.Fatalf("unknown format must fail")
	}
}
