/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package domain

import (
	"math"

	"annotate/internal/geom"

	"github.com/golang/geo/r2"
)

// DegenerateEpsilon is the extent (image px) at or below which a freshly drawn line or
// rectangle is rejected.
const DegenerateEpsilon = 2.0

// Part identifies what of a marker was grabbed.
type Part int

const (
	PartWhole Part = iota
	PartP1
	PartP2
)

func (p Part) String() string {
	switch p {
	case PartP1:
		return "p1"
	case PartP2:
		return "p2"
	default:
		return "whole"
	}
}

// Geometry is the closed set of marker shapes. Implementations live in this package only.
type Geometry interface {
	Kind() Kind
	// Points returns the stored points: one for a point, p1 and p2 otherwise.
	Points() []r2.Point
	// Translate returns the geometry moved by d.
	Translate(d r2.Point) Geometry
	// DragHandle returns the geometry with the given handle placed at p. The receiver is the
	// geometry at drag start; for rectangles the opposite stored corner stays anchored.
	DragHandle(part Part, p r2.Point) Geometry
	// Degenerate reports whether the shape is too small to be committed as a new marker.
	Degenerate() bool
	sealed()
}

type PointGeom struct{ P r2.Point }

type LineGeom struct{ P1, P2 r2.Point }

// RectGeom holds axis-ordered corners: P1 is the minimum, P2 the maximum.
type RectGeom struct{ P1, P2 r2.Point }

// NewRect orders the two corners.
func NewRect(a, b r2.Point) RectGeom {
	lo, hi := geom.RectFromPoints(a, b)
	return RectGeom{P1: lo, P2: hi}
}

func (PointGeom) Kind() Kind { return KindPoint }
func (LineGeom) Kind() Kind  { return KindLine }
func (RectGeom) Kind() Kind  { return KindRect }

func (g PointGeom) Points() []r2.Point { return []r2.Point{g.P} }
func (g LineGeom) Points() []r2.Point  { return []r2.Point{g.P1, g.P2} }
func (g RectGeom) Points() []r2.Point  { return []r2.Point{g.P1, g.P2} }

func (g PointGeom) Translate(d r2.Point) Geometry { return PointGeom{P: g.P.Add(d)} }
func (g LineGeom) Translate(d r2.Point) Geometry {
	return LineGeom{P1: g.P1.Add(d), P2: g.P2.Add(d)}
}
func (g RectGeom) Translate(d r2.Point) Geometry {
	return RectGeom{P1: g.P1.Add(d), P2: g.P2.Add(d)}
}

func (g PointGeom) DragHandle(_ Part, p r2.Point) Geometry { return PointGeom{P: p} }

func (g LineGeom) DragHandle(part Part, p r2.Point) Geometry {
	switch part {
	case PartP1:
		g.P1 = p
	case PartP2:
		g.P2 = p
	}
	return g
}

func (g RectGeom) DragHandle(part Part, p r2.Point) Geometry {
	switch part {
	case PartP1:
		return NewRect(g.P2, p)
	case PartP2:
		return NewRect(g.P1, p)
	}
	return g
}

func (PointGeom) Degenerate() bool  { return false }
func (g LineGeom) Degenerate() bool { return g.Length() <= DegenerateEpsilon }
func (g RectGeom) Degenerate() bool {
	return g.Width() <= DegenerateEpsilon || g.Height() <= DegenerateEpsilon
}

// Length is the pixel length of the segment.
func (g LineGeom) Length() float64 { return geom.Dist(g.P1, g.P2) }

// Delta is P2 - P1.
func (g LineGeom) Delta() r2.Point { return g.P2.Sub(g.P1) }

func (g RectGeom) Width() float64  { return math.Abs(g.P2.X - g.P1.X) }
func (g RectGeom) Height() float64 { return math.Abs(g.P2.Y - g.P1.Y) }

func (PointGeom) sealed() {}
func (LineGeom) sealed()  {}
func (RectGeom) sealed()  {}

// Handle returns the stored point addressed by part, or false for PartWhole on
// two-point shapes.
func Handle(g Geometry, part Part) (r2.Point, bool) {
	pts := g.Points()
	switch {
	case len(pts) == 1:
		return pts[0], true
	case part == PartP1:
		return pts[0], true
	case part == PartP2:
		return pts[1], true
	}
	return r2.Point{}, false
}
