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

// This file defines the annotation data model: markers (points, lines, rectangles) placed on
// a raster image and the coloured tags attached to them. All coordinates are image space.

import (
	"slices"

	"github.com/google/uuid"
)

// Kind is the fixed shape category of a marker.
type Kind int

const (
	KindPoint Kind = iota
	KindLine
	KindRect
)

// Kinds lists every kind in declaration order.
var Kinds = []Kind{KindPoint, KindLine, KindRect}

// String returns the lower-case document name: point, line or rect.
func (k Kind) String() string {
	switch k {
	case KindPoint:
		return "point"
	case KindLine:
		return "line"
	case KindRect:
		return "rect"
	default:
		return "unknown"
	}
}

// Title is the prefix used for default marker names ("Point 3").
func (k Kind) Title() string {
	switch k {
	case KindPoint:
		return "Point"
	case KindLine:
		return "Line"
	case KindRect:
		return "Rect"
	default:
		return "Marker"
	}
}

// ParseKind maps a document type string to a Kind.
func ParseKind(s string) (Kind, bool) {
	for _, k := range Kinds {
		if k.String() == s {
			return k, true
		}
	}
	return 0, false
}

// Marker is a single annotation.
type Marker struct {
	ID     string
	Name   string
	Geom   Geometry
	TagIDs []string // ordered; index 0 decides the display colour
}

// Kind is the kind of the marker's geometry.
func (m Marker) Kind() Kind { return m.Geom.Kind() }

// HasTag reports whether tagID is attached.
func (m Marker) HasTag(tagID string) bool { return slices.Contains(m.TagIDs, tagID) }

// Clone returns a copy that shares no slices with m.
func (m Marker) Clone() Marker {
	m.TagIDs = slices.Clone(m.TagIDs)
	return m
}

// Tag is a named, coloured label. Color is always canonical #rrggbb.
type Tag struct {
	ID    string
	Name  string
	Color string
}

// NewID returns a fresh opaque identifier.
func NewID() string { return uuid.NewString() }
