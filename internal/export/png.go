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
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os"
	"path/filepath"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"matlib/internal/thumbnail"
)

const (
	cellPad   = 8
	lineH     = 14
	pngTitleH = 28
)

// ContactSheetPNG writes a single PNG contact sheet of entries to outPath.
func ContactSheetPNG(entries []Entry, outPath string, opt SheetOptions) error {
	opt = opt.withDefaults()
	cell := opt.Thumb + 2*cellPad
	rows := (len(entries) + opt.Columns - 1) / opt.Columns
	rowH := cell + 2*lineH
	w := opt.Columns * cell
	h := pngTitleH + max(rows, 1)*rowH

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.RGBA{255, 255, 255, 255}}, image.Point{}, draw.Src)
	text(img, cellPad, 18, opt.Title, w-2*cellPad, color.RGBA{0, 0, 0, 255})

	grey := color.RGBA{160, 160, 160, 255}
	for i, e := range entries {
		x := (i%opt.Columns)*cell + cellPad
		y := pngTitleH + (i/opt.Columns)*rowH + cellPad
		if thumb := load(e, opt.Thumb); thumb != nil {
			b := thumb.Bounds()
			off := image.Pt(x+(opt.Thumb-b.Dx())/2, y+(opt.Thumb-b.Dy())/2)
			draw.Draw(img, image.Rectangle{Min: off, Max: off.Add(b.Size())}, thumb, b.Min, draw.Over)
		} else {
			fillRect(img, x, y, x+opt.Thumb-1, y+opt.Thumb-1, color.RGBA{235, 235, 235, 255})
			strokeRect(img, x, y, x+opt.Thumb-1, y+opt.Thumb-1, grey)
		}
		text(img, x, y+opt.Thumb+lineH-2, e.Asset.Name, opt.Thumb, color.RGBA{0, 0, 0, 255})
		text(img, x, y+opt.Thumb+2*lineH-2, caption(e.Asset), opt.Thumb, color.RGBA{90, 90, 90, 255})
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("ensure out dir: %w", err)
	}
	f, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("create png: %w", err)
	}
	if err := png.Encode(f, img); err != nil {
		_ = f.Close()
		return fmt.Errorf("encode png: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close png: %w", err)
	}
	return nil
}

func load(e Entry, size int) image.Image {
	if e.Image == "" {
		return nil
	}
	if _, err := os.Stat(e.Image); err != nil {
		return nil
	}
	img, _, err := thumbnail.Render(e.Image, size, e.Asset.Favorite)
	if err != nil {
		return nil
	}
	return img
}

// text draws s with its baseline at y, cut to maxW pixels.
func text(img *image.RGBA, x, y int, s string, maxW int, col color.RGBA) {
	face := basicfont.Face7x13
	d := &font.Drawer{Dst: img, Src: image.NewUniform(col), Face: face, Dot: fixed.P(x, y)}
	if d.MeasureString(s).Ceil() > maxW {
		r := []rune(s)
		for len(r) > 0 && d.MeasureString(string(r)+"...").Ceil() > maxW {
			r = r[:len(r)-1]
		}
		s = string(r) + "..."
	}
	d.DrawString(s)
}

// strokeRect draws a 1px axis-aligned rectangle border inclusive of endpoints.
func strokeRect(img *image.RGBA, x0, y0, x1, y1 int, col color.RGBA) {
	// top and bottom
	for x := x0; x <= x1; x++ {
		img.SetRGBA(x, y0, col)
		img.SetRGBA(x, y1, col)
	}
	// left and right
	for y := y0; y <= y1; y++ {
		img.SetRGBA(x0, y, col)
		img.SetRGBA(x1, y, col)
	}
}

func fillRect(img *image.RGBA, x0, y0, x1, y1 int, col color.RGBA) {
	if x1 < x0 {
		x0, x1 = x1, x0
	}
	if y1 < y0 {
		y0, y1 = y1, y0
	}
	for y := y0; y <= y1; y++ {
		for x := x0; x <= x1; x++ {
			img.SetRGBA(x, y, col)
		}
	}
}
