/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package thumbnail

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	"image/png"
	"math"
	"os"

	"github.com/fogleman/gg"
	"github.com/h2non/filetype"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"

	"matlib/internal/domain"
)

// Decode reads a rendered preview. The content is sniffed first so that renderers
// writing TIFF or BMP under a .png name are still accepted.
func Decode(path string) (image.Image, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, domain.IOError("read preview", err)
	}
	if !filetype.IsImage(b) {
		return nil, fmt.Errorf("preview %s is not an image", path)
	}
	img, _, err := image.Decode(bytes.NewReader(b))
	if err != nil {
		kind, _ := filetype.Match(b)
		return nil, fmt.Errorf("decode %s preview %s: %w", kind.Extension, path, err)
	}
	return img, nil
}

// Scale fits img into a size x size square, keeping its aspect ratio.
func Scale(img image.Image, size int) image.Image {
	sb := img.Bounds()
	w, h := sb.Dx(), sb.Dy()
	if size <= 0 || w == 0 || h == 0 {
		return img
	}
	f := math.Min(float64(size)/float64(w), float64(size)/float64(h))
	dw, dh := max(1, int(math.Round(float64(w)*f))), max(1, int(math.Round(float64(h)*f)))
	dst := image.NewRGBA(image.Rect(0, 0, dw, dh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, sb, draw.Over, nil)
	return dst
}

var (
	badgeFill    = color.RGBA{R: 255, G: 196, B: 0, A: 255}
	badgeOutline = color.RGBA{R: 40, G: 30, B: 0, A: 200}
)

// Badge composites the favourite star into the top right corner of img.
func Badge(img image.Image) image.Image {
	dc := gg.NewContextForImage(img)
	w, h := float64(dc.Width()), float64(dc.Height())
	r := math.Max(4, math.Min(w, h)*0.12)
	cx, cy := w-r*1.3, r*1.3
	starPath(dc, cx, cy, r, r*0.45)
	dc.SetColor(badgeFill)
	dc.FillPreserve()
	dc.SetColor(badgeOutline)
	dc.SetLineWidth(math.Max(1, r*0.12))
	dc.Stroke()
	return dc.Image()
}

func starPath(dc *gg.Context, cx, cy, outer, inner float64) {
	for i := 0; i < 10; i++ {
		rad := outer
		if i%2 == 1 {
			rad = inner
		}
		a := -math.Pi/2 + float64(i)*math.Pi/5
		x, y := cx+rad*math.Cos(a), cy+rad*math.Sin(a)
		if i == 0 {
			dc.MoveTo(x, y)
		} else {
			dc.LineTo(x, y)
		}
	}
	dc.ClosePath()
}

// Render turns a preview file into the final thumbnail and its PNG encoding.
func Render(path string, size int, badge bool) (image.Image, []byte, error) {
	img, err := Decode(path)
	if err != nil {
		return nil, nil, err
	}
	img = Scale(img, size)
	if badge {
		img = Badge(img)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, nil, fmt.Errorf("encode thumbnail: %w", err)
	}
	return img, buf.Bytes(), nil
}
