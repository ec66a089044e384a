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
	"fmt"
	"os"
	"path/filepath"

	"github.com/jung-kurt/gofpdf"

	"matlib/internal/thumbnail"
)

// A4 portrait in points.
const (
	pageW  = 595.0
	pageH  = 842.0
	margin = 36.0
	gutter = 8.0
	labelH = 22.0
	titleH = 28.0
)

// ContactSheetPDF writes a multi-page PDF contact sheet of entries to outPath.
// Text uses the built-in Helvetica so nothing is embedded except the thumbnails.
func ContactSheetPDF(entries []Entry, outPath string, opt SheetOptions) error {
	opt = opt.withDefaults()
	pdf := gofpdf.NewCustom(&gofpdf.InitType{
		UnitStr: "pt",
		Size:    gofpdf.SizeType{Wd: pageW, Ht: pageH},
	})
	pdf.SetTitle(opt.Title, true)
	pdf.SetAuthor("matlib", false)
	pdf.SetAutoPageBreak(false, margin)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	cellW := (pageW - 2*margin) / float64(opt.Columns)
	imgW := cellW - gutter
	rowH := cellW + labelH

	var y float64
	newPage := func() {
		pdf.AddPage()
		pdf.SetFont("Helvetica", "B", 14)
		pdf.Text(margin, margin+12, tr(opt.Title))
		y = margin + titleH
	}
	newPage()

	for i, e := range entries {
		col := i % opt.Columns
		if i > 0 && col == 0 {
			y += rowH
			if y+rowH > pageH-margin {
				newPage()
			}
		}
		x := margin + float64(col)*cellW

		if !embed(pdf, e, x, y, imgW, opt.Thumb) {
			pdf.SetDrawColor(160, 160, 160)
			pdf.SetFillColor(235, 235, 235)
			pdf.SetLineWidth(0.5)
			pdf.Rect(x, y, imgW, imgW, "FD")
		}
		pdf.SetFont("Helvetica", "B", 9)
		pdf.Text(x, y+imgW+10, fit(pdf, tr(e.Asset.Name), imgW))
		pdf.SetFont("Helvetica", "", 7)
		pdf.Text(x, y+imgW+19, fit(pdf, tr(caption(e.Asset)), imgW))
	}

	if dir := filepath.Dir(outPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("ensure out dir: %w", err)
		}
	}
	if err := pdf.OutputFileAndClose(outPath); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}

// embed draws the thumbnail of e. The preview is decoded and scaled first so every
// format the pipeline reads ends up as PNG in the document.
func embed(pdf *gofpdf.Fpdf, e Entry, x, y, w float64, px int) bool {
	if e.Image == "" {
		return false
	}
	if _, err := os.Stat(e.Image); err != nil {
		return false
	}
	_, data, err := thumbnail.Render(e.Image, px, e.Asset.Favorite)
	if err != nil {
		return false
	}
	name := "thumb-" + e.Asset.ID
	opts := gofpdf.ImageOptions{ImageType: "PNG"}
	info := pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(data))
	if pdf.Err() || info == nil {
		pdf.ClearError()
		return false
	}
	// keep the aspect ratio inside the square cell
	iw, ih := info.Width(), info.Height()
	dw, dh := w, w
	if iw > ih {
		dh = w * ih / iw
	} else if ih > iw {
		dw = w * iw / ih
	}
	pdf.ImageOptions(name, x+(w-dw)/2, y+(w-dh)/2, dw, dh, false, opts, 0, "")
	return true
}

// fit shortens s with an ellipsis until it is at most w wide in the current font.
func fit(pdf *gofpdf.Fpdf, s string, w float64) string {
	if pdf.GetStringWidth(s) <= w {
		return s
	}
	r := []rune(s)
	for len(r) > 0 && pdf.GetStringWidth(string(r)+"...") > w {
		r = r[:len(r)-1]
	}
	return string(r) + "..."
}
