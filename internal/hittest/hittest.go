/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package hittest resolves a canvas-space point to the marker, and the part of it, under the cursor.
package hittest

import (
	"math"

	"annotate/internal/domain"
	"annotate/internal/geom"

	"github.com/golang/geo/r2"
)

// Radius is the pick tolerance in canvas (zoomed) pixels.
const Radius = 8.0

// Hit is the result of a successful pick.
type Hit struct {
	Marker domain.Marker
	Part   domain.Part
}

// HitTest returns the topmost visible marker near p. Markers are scanned in reverse
// creation order; hidden(m) excludes a marker. scale converts image to canvas px.
func HitTest(markers []domain.Marker, hidden func(domain.Marker) bool, scale float64, p r2.Point) (domain.Marker, bool) {
	h, ok := HitTestWithPart(markers, hidden, scale, p)
	return h.Marker, ok
}

// HitTestWithPart is HitTest that also reports the grabbed part. For lines and rectangles
// endpoint proximity wins over body proximity.
func HitTestWithPart(markers []domain.Marker, hidden func(domain.Marker) bool, scale float64, p r2.Point) (Hit, bool) {
	for i := len(markers) - 1; i >= 0; i-- {
		m := markers[i]
		if hidden != nil && hidden(m) {
			continue
		}
		if part, ok := testMarker(m.Geom, scale, p); ok {
			return Hit{Marker: m, Part: part}, true
		}
	}
	return Hit{}, false
}

func testMarker(g domain.Geometry, scale float64, p r2.Point) (domain.Part, bool) {
	switch g := g.(type) {
	case domain.PointGeom:
		return domain.PartWhole, geom.Dist(g.P.Mul(scale), p) <= Radius
	case domain.LineGeom:
		a, b := g.P1.Mul(scale), g.P2.Mul(scale)
		if part, ok := endpoint(a, b, p); ok {
			return part, true
		}
		return domain.PartWhole, geom.DistancePointToSegment(p, a, b) <= Radius
	case domain.RectGeom:
		a, b := g.P1.Mul(scale), g.P2.Mul(scale)
		if part, ok := endpoint(a, b, p); ok {
			return part, true
		}
		return domain.PartWhole, nearRectEdge(a, b, p)
	}
	return domain.PartWhole, false
}

func endpoint(a, b, p r2.Point) (domain.Part, bool) {
	da, db := geom.Dist(a, p), geom.Dist(b, p)
	switch {
	case da <= Radius && da <= db:
		return domain.PartP1, true
	case db <= Radius:
		return domain.PartP2, true
	}
	return domain.PartWhole, false
}

// nearRectEdge tests p against four axis-aligned bands, one per edge, each Radius wide on
// both sides of the edge and extended by Radius past the corners.
func nearRectEdge(a, b, p r2.Point) bool {
	lo, hi := geom.RectFromPoints(a, b)
	inX := p.X >= lo.X-Radius && p.X <= hi.X+Radius
	inY := p.Y >= lo.Y-Radius && p.Y <= hi.Y+Radius
	nearVert := math.Abs(p.X-lo.X) <= Radius || math.Abs(p.X-hi.X) <= Radius
	nearHorz := math.Abs(p.Y-lo.Y) <= Radius || math.Abs(p.Y-hi.Y) <= Radius
	return (nearVert && inY) || (nearHorz && inX)
}
