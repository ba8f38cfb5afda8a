/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package geom holds the 2D primitives and the image/viewport coordinate transform.
//
// Three spaces are involved. Image space is the natural pixel grid of the loaded raster
// (origin top-left, y down). Canvas space is image space multiplied by the zoom scale; it is
// the scrollable surface. Client space is the visible window: client = canvas - scroll.
// Markers are always stored in image space.
package geom

import (
	"math"

	"github.com/golang/geo/r2"
)

// Pt is shorthand for r2.Point{X: x, Y: y}.
func Pt(x, y float64) r2.Point { return r2.Point{X: x, Y: y} }

// Dist returns the Euclidean distance between a and b.
func Dist(a, b r2.Point) float64 { return a.Sub(b).Norm() }

// DistancePointToSegment returns the distance from p to the closed segment ab.
// A zero-length segment collapses to the distance from p to a.
func DistancePointToSegment(p, a, b r2.Point) float64 {
	ab := b.Sub(a)
	l2 := ab.Dot(ab)
	if l2 == 0 {
		return p.Sub(a).Norm()
	}
	t := p.Sub(a).Dot(ab) / l2
	t = math.Max(0, math.Min(1, t))
	return p.Sub(a.Add(ab.Mul(t))).Norm()
}

// ConstrainAxis snaps free onto the horizontal or vertical line through fixed,
// whichever the dominant delta points along. Ties favour horizontal.
func ConstrainAxis(fixed, free r2.Point) r2.Point {
	d := free.Sub(fixed)
	if math.Abs(d.X) >= math.Abs(d.Y) {
		return r2.Point{X: free.X, Y: fixed.Y}
	}
	return r2.Point{X: fixed.X, Y: free.Y}
}

// RectFromPoints returns the axis-ordered corners (min, max) of the rectangle spanned by a and b.
func RectFromPoints(a, b r2.Point) (lo, hi r2.Point) {
	r := r2.RectFromPoints(a, b)
	return r.Lo(), r.Hi()
}

// Lerp returns a + (b-a)*t.
func Lerp(a, b r2.Point, t float64) r2.Point { return a.Add(b.Sub(a).Mul(t)) }
