/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package geom

import (
	"math"

	"github.com/golang/geo/r2"
)

// DefaultMaxScale is the upper zoom bound used when none is configured.
const DefaultMaxScale = 20.0

// Viewport maps between image, canvas and client space.
// Scale is canvas px per image px; Scroll is the canvas offset of the client origin.
type Viewport struct {
	Scale    float64
	Scroll   r2.Point
	ImageW   float64
	ImageH   float64
	ViewW    float64
	ViewH    float64
	MaxScale float64
}

// NewViewport returns a viewport fitted to the view.
func NewViewport(imageW, imageH, viewW, viewH float64) Viewport {
	v := Viewport{ImageW: imageW, ImageH: imageH, ViewW: viewW, ViewH: viewH, MaxScale: DefaultMaxScale}
	v.Fit()
	return v
}

func (v Viewport) ImageToViewport(p r2.Point) r2.Point { return p.Mul(v.Scale) }

func (v Viewport) ViewportToImage(p r2.Point) r2.Point {
	if v.Scale == 0 {
		return p
	}
	return p.Mul(1 / v.Scale)
}

func (v Viewport) ClientToCanvas(p r2.Point) r2.Point { return p.Add(v.Scroll) }
func (v Viewport) CanvasToClient(p r2.Point) r2.Point { return p.Sub(v.Scroll) }

func (v Viewport) ClientToImage(p r2.Point) r2.Point {
	return v.ViewportToImage(v.ClientToCanvas(p))
}

func (v Viewport) ImageToClient(p r2.Point) r2.Point {
	return v.CanvasToClient(v.ImageToViewport(p))
}

// MinScale is the fit scale, never above 1 so small images are shown at natural size.
func (v Viewport) MinScale() float64 {
	s := 1.0
	if v.ImageW > 0 && v.ViewW > 0 {
		s = math.Min(s, v.ViewW/v.ImageW)
	}
	if v.ImageH > 0 && v.ViewH > 0 {
		s = math.Min(s, v.ViewH/v.ImageH)
	}
	return s
}

func (v Viewport) maxScale() float64 {
	m := v.MaxScale
	if m <= 0 {
		m = DefaultMaxScale
	}
	return math.Max(m, v.MinScale())
}

// Clamp bounds s to [MinScale, MaxScale].
func (v Viewport) Clamp(s float64) float64 {
	return math.Max(v.MinScale(), math.Min(v.maxScale(), s))
}

// Fit resets scale to the fit scale and scroll to the origin.
func (v *Viewport) Fit() {
	v.Scale = v.MinScale()
	v.Scroll = r2.Point{}
}

// Resize updates the view size and re-clamps the scale.
func (v *Viewport) Resize(viewW, viewH float64) {
	v.ViewW, v.ViewH = viewW, viewH
	v.Scale = v.Clamp(v.Scale)
}

// ZoomAt multiplies the scale by factor keeping the image point under pivot (client space)
// fixed. It reports false and leaves the viewport untouched when the clamped scale equals
// the current one.
func (v *Viewport) ZoomAt(factor float64, pivot r2.Point) bool {
	return v.ZoomTo(v.Scale*factor, v.ClientToImage(pivot), pivot)
}

// ZoomTo sets the scale (clamped) and scrolls so imagePt is shown at pivot (client space).
// Scroll is not clamped to the canvas; the host does that.
func (v *Viewport) ZoomTo(scale float64, imagePt, pivot r2.Point) bool {
	s := v.Clamp(scale)
	if s == v.Scale {
		return false
	}
	v.Scale = s
	v.Scroll = imagePt.Mul(s).Sub(pivot)
	return true
}

// Pan moves the content by delta client px: scroll -= delta.
func (v *Viewport) Pan(delta r2.Point) {
	v.Scroll = v.Scroll.Sub(delta)
}

// CanvasSize is the size of the scrollable surface at the current scale.
func (v Viewport) CanvasSize() r2.Point {
	return r2.Point{X: v.ImageW * v.Scale, Y: v.ImageH * v.Scale}
}
