/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package render computes what to draw for the current session state. It produces a
// display list; turning it into pixels is the job of a Renderer.
package render

import (
	"annotate/internal/domain"

	"github.com/golang/geo/r2"
)

// DefaultNeutralColor is used for markers without tags.
const DefaultNeutralColor = "#ffcc00"

// SelectedLighten is the Lab blend factor toward white applied to selected markers.
const SelectedLighten = 0.45

// Item is one marker to draw.
type Item struct {
	Marker   domain.Marker
	Color    string // #rrggbb, already lightened when selected
	Selected bool
	Primary  bool
	Hovered  bool
}

// Preview is an in-progress draw: the anchor and the live (possibly constrained) cursor.
type Preview struct {
	Kind   domain.Kind
	Anchor r2.Point
	Cursor r2.Point
}

// Frame is a complete display list in image space plus the view scale.
type Frame struct {
	Items   []Item
	Preview *Preview
	Scale   float64
}

// Renderer draws frames. Hosts implement it; the overlay exporters are file-backed ones.
type Renderer interface {
	Render(Frame) error
}

// Input is the state a frame is built from.
type Input struct {
	Markers  []domain.Marker
	Tags     []domain.Tag
	Hidden   func(domain.Marker) bool
	Selected map[string]bool
	Primary  string
	Hovered  string
	Preview  *Preview
	Scale    float64
	Neutral  string
}

// Build returns the display list in creation order, skipping hidden markers.
func Build(in Input) Frame {
	colors := make(map[string]string, len(in.Tags))
	for _, t := range in.Tags {
		colors[t.ID] = t.Color
	}
	neutral := in.Neutral
	if neutral == "" {
		neutral = DefaultNeutralColor
	}
	f := Frame{Preview: in.Preview, Scale: in.Scale}
	for _, m := range in.Markers {
		if in.Hidden != nil && in.Hidden(m) {
			continue
		}
		sel := in.Selected[m.ID]
		it := Item{
			Marker:   m,
			Color:    MarkerColor(m, colors, neutral),
			Selected: sel,
			Primary:  m.ID == in.Primary,
			Hovered:  m.ID == in.Hovered,
		}
		if sel {
			it.Color = domain.Lighten(it.Color, SelectedLighten)
		}
		f.Items = append(f.Items, it)
	}
	return f
}

// MarkerColor resolves the display colour: the first tag's colour, or neutral.
func MarkerColor(m domain.Marker, tagColors map[string]string, neutral string) string {
	if len(m.TagIDs) > 0 {
		if c, ok := tagColors[m.TagIDs[0]]; ok {
			return c
		}
	}
	return domain.SanitizeColor(neutral)
}
