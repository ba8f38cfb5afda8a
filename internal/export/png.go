/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package export

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"
	"os"
	"path/filepath"

	"annotate/internal/domain"
	"annotate/internal/render"

	"github.com/golang/geo/r2"
	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// pointArm is the half length of the cross drawn for point markers, in image pixels.
const pointArm = 5

// OverlayOptions controls PNG and SVG overlays.
//   - Labels: draw marker names next to the first point
//   - Width/Height: canvas size when there is no base image
type OverlayOptions struct {
	Labels bool
	Width  int
	Height int
	// ImageHref is referenced as the SVG background when set.
	ImageHref string
}

// PNGRenderer is a render.Renderer writing every frame to Path on top of Base.
type PNGRenderer struct {
	Path string
	Base image.Image
	Opt  OverlayOptions
}

// Render implements render.Renderer.
func (r PNGRenderer) Render(f render.Frame) error { return WritePNGOverlay(r.Path, r.Base, f, r.Opt) }

// WritePNGOverlay draws the frame in image coordinates onto a copy of base and writes a PNG.
// A nil base gives a transparent canvas of opt.Width x opt.Height.
func WritePNGOverlay(path string, base image.Image, f render.Frame, opt OverlayOptions) error {
	img := OverlayImage(base, f, opt)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("ensure out dir: %w", err)
	}
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create png: %w", err)
	}
	if err := png.Encode(out, img); err != nil {
		_ = out.Close()
		return fmt.Errorf("encode png: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close png: %w", err)
	}
	return nil
}

// OverlayImage returns the composited overlay without writing it.
func OverlayImage(base image.Image, f render.Frame, opt OverlayOptions) *image.RGBA {
	var img *image.RGBA
	if base != nil {
		b := base.Bounds()
		img = image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(img, img.Bounds(), base, b.Min, draw.Src)
	} else {
		img = image.NewRGBA(image.Rect(0, 0, max(opt.Width, 1), max(opt.Height, 1)))
	}

	for _, it := range f.Items {
		col := toRGBA(it.Color)
		switch g := it.Marker.Geom.(type) {
		case domain.PointGeom:
			x, y := ipt(g.P)
			strokeLine(img, x-pointArm, y, x+pointArm, y, col)
			strokeLine(img, x, y-pointArm, x, y+pointArm, col)
			if it.Selected {
				strokeRect(img, x-pointArm, y-pointArm, x+pointArm, y+pointArm, col)
			}
		case domain.LineGeom:
			x0, y0 := ipt(g.P1)
			x1, y1 := ipt(g.P2)
			strokeLine(img, x0, y0, x1, y1, col)
			if it.Selected {
				fillRect(img, x0-2, y0-2, x0+2, y0+2, col)
				fillRect(img, x1-2, y1-2, x1+2, y1+2, col)
			}
		case domain.RectGeom:
			x0, y0 := ipt(g.P1)
			x1, y1 := ipt(g.P2)
			strokeRect(img, x0, y0, x1, y1, col)
			if it.Selected {
				strokeRect(img, x0+1, y0+1, x1-1, y1-1, col)
			}
		}
		if opt.Labels && it.Marker.Name != "" {
			p := it.Marker.Geom.Points()[0]
			x, y := ipt(p)
			label(img, x+pointArm+2, y-pointArm-2, it.Marker.Name, col)
		}
	}
	if pv := f.Preview; pv != nil {
		col := color.RGBA{R: 255, G: 255, B: 255, A: 255}
		x0, y0 := ipt(pv.Anchor)
		x1, y1 := ipt(pv.Cursor)
		if pv.Kind == domain.KindRect {
			strokeRect(img, x0, y0, x1, y1, col)
		} else {
			strokeLine(img, x0, y0, x1, y1, col)
		}
	}
	return img
}

func ipt(p r2.Point) (int, int) {
	return int(math.Round(p.X)), int(math.Round(p.Y))
}

func toRGBA(hex string) color.RGBA {
	c, err := colorful.Hex(domain.SanitizeColor(hex))
	if err != nil {
		return color.RGBA{R: 255, G: 204, A: 255}
	}
	r, g, b := c.Clamped().RGB255()
	return color.RGBA{R: r, G: g, B: b, A: 255}
}

func label(img *image.RGBA, x, y int, s string, col color.RGBA) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(col),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}

// strokeLine draws a 1px line with Bresenham's algorithm. Pixels outside img are skipped.
func strokeLine(img *image.RGBA, x0, y0, x1, y1 int, col color.RGBA) {
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	e := dx + dy
	for {
		img.SetRGBA(x0, y0, col)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			x0 += sx
		}
		if e2 <= dx {
			e += dx
			y0 += sy
		}
	}
}

// strokeRect draws a 1px axis-aligned rectangle border inclusive of endpoints.
func strokeRect(img *image.RGBA, x0, y0, x1, y1 int, col color.RGBA) {
	if x1 < x0 {
		x0, x1 = x1, x0
	}
	if y1 < y0 {
		y0, y1 = y1, y0
	}
	for x := x0; x <= x1; x++ {
		img.SetRGBA(x, y0, col)
		img.SetRGBA(x, y1, col)
	}
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

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
