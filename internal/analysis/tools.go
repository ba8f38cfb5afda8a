/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package analysis

import (
	"errors"
	"fmt"
	"math"

	"annotate/internal/domain"
	"annotate/internal/geom"
	"annotate/internal/raster"

	"gonum.org/v1/gonum/floats"
)

// Tool names.
const (
	ToolExtract   = "extract"
	ToolMeasure   = "measure"
	ToolProfile   = "profile"
	ToolAngle     = "angle"
	ToolDistances = "distances"
	ToolArea      = "area"
)

// Tools lists every tool in presentation order.
var Tools = []string{ToolExtract, ToolMeasure, ToolProfile, ToolAngle, ToolDistances, ToolArea}

// MaxProfileSamples caps the samples taken along one line.
const MaxProfileSamples = 10000

// Options narrows and feeds a tool run.
type Options struct {
	// TagID, when set, keeps only subjects carrying this tag. References are never filtered.
	TagID string
	// Raster is required by Profile.
	Raster raster.Source
}

// Func is the signature shared by all tools.
type Func func(markers []domain.Marker, opts Options) (*Table, error)

var registry = map[string]Func{
	ToolExtract:   Extract,
	ToolMeasure:   Measure,
	ToolProfile:   Profile,
	ToolAngle:     Angle,
	ToolDistances: Distances,
	ToolArea:      Area,
}

// Run dispatches to the named tool.
func Run(tool string, markers []domain.Marker, opts Options) (*Table, error) {
	f, ok := registry[tool]
	if !ok {
		return nil, fmt.Errorf("%q: %w", tool, ErrUnknownTool)
	}
	return f(markers, opts)
}

func subjects(markers []domain.Marker, kind domain.Kind, tagID string) []domain.Marker {
	var out []domain.Marker
	for _, m := range markers {
		if m.Kind() != kind {
			continue
		}
		if tagID != "" && !m.HasTag(tagID) {
			continue
		}
		out = append(out, m)
	}
	return out
}

func noSubjects(tool string, kind domain.Kind, opts Options) *ToolError {
	if opts.TagID != "" {
		return toolErr(tool, ErrNoSubject, "no %s markers carry the selected tag", kind)
	}
	return toolErr(tool, ErrNoSubject, "no %s markers found", kind)
}

func requireScales(tool string, refs References) *ToolError {
	if len(refs.Scales) == 0 {
		return toolErr(tool, ErrNoReference, `no scale line found; name a line like "s: 50" to state its length`)
	}
	return nil
}

// Extract projects every point onto every axis.
// Columns: name, then one column per axis.
func Extract(markers []domain.Marker, opts Options) (*Table, error) {
	refs := FindReferences(markers)
	if len(refs.Axes) == 0 {
		return nil, toolErr(ToolExtract, ErrNoReference, `no axis line found; name a line like "X: 0 100" or "Y: 1 1000 L"`)
	}
	pts := subjects(markers, domain.KindPoint, opts.TagID)
	if len(pts) == 0 {
		return nil, noSubjects(ToolExtract, domain.KindPoint, opts)
	}
	t := &Table{Tool: ToolExtract, Columns: []string{"name"}}
	for _, a := range refs.Axes {
		t.addColumn(a.Name)
	}
	for _, m := range pts {
		p := m.Geom.(domain.PointGeom)
		row := []any{m.Name}
		for _, a := range refs.Axes {
			row = append(row, a.Value(p))
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

// Measure reports the length of every line in pixels and in each scale's units.
// Scale lines are measured too and report their own stated length.
func Measure(markers []domain.Marker, opts Options) (*Table, error) {
	refs := FindReferences(markers)
	if err := requireScales(ToolMeasure, refs); err != nil {
		return nil, err
	}
	lines := subjects(markers, domain.KindLine, opts.TagID)
	if len(lines) == 0 {
		return nil, noSubjects(ToolMeasure, domain.KindLine, opts)
	}
	t := &Table{Tool: ToolMeasure, Columns: []string{"name", "length_px"}}
	for _, s := range refs.Scales {
		t.addColumn(s.Name)
	}
	for _, m := range lines {
		l := m.Geom.(domain.LineGeom).Length()
		row := []any{m.Name, l}
		for _, s := range refs.Scales {
			row = append(row, l*s.UnitsPerPx)
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

// Profile samples pixel colour along every line, one sample per pixel of length.
// Samples falling outside the raster keep their coordinates but leave the colour cells empty.
func Profile(markers []domain.Marker, opts Options) (*Table, error) {
	if opts.Raster == nil {
		return nil, toolErr(ToolProfile, ErrNoPixels, "no image loaded")
	}
	if _, err := opts.Raster.At(0, 0); errors.Is(err, raster.ErrTainted) {
		return nil, toolErr(ToolProfile, ErrNoPixels, "image pixels cannot be read")
	}
	refs := FindReferences(markers)
	lines := subjects(markers, domain.KindLine, opts.TagID)
	if len(lines) == 0 {
		return nil, noSubjects(ToolProfile, domain.KindLine, opts)
	}
	t := &Table{Tool: ToolProfile, Columns: []string{"line", "index", "x", "y", "r", "g", "b", "luminance"}}
	for _, s := range refs.Scales {
		for _, suffix := range []string{"_position", "_x", "_y"} {
			t.addColumn(s.Name + suffix)
		}
	}
	for _, m := range lines {
		l := m.Geom.(domain.LineGeom)
		length := l.Length()
		n := int(math.Min(math.Floor(length)+1, MaxProfileSamples))
		if n < 2 {
			n = 2
		}
		ts := floats.Span(make([]float64, n), 0, 1)
		for i, f := range ts {
			p := geom.Lerp(l.P1, l.P2, f)
			row := []any{m.Name, i, p.X, p.Y}
			c, err := opts.Raster.At(int(math.Floor(p.X)), int(math.Floor(p.Y)))
			switch {
			case err == nil:
				row = append(row, int(c.R), int(c.G), int(c.B), raster.Luminance(c))
			case errors.Is(err, raster.ErrTainted):
				return nil, toolErr(ToolProfile, ErrNoPixels, "image pixels cannot be read")
			default:
				row = append(row, nil, nil, nil, nil)
			}
			for _, s := range refs.Scales {
				row = append(row, f*length*s.UnitsPerPx, p.X*s.UnitsPerPx, p.Y*s.UnitsPerPx)
			}
			t.Rows = append(t.Rows, row)
		}
	}
	return t, nil
}

// LineAngle returns the orientation of a line in degrees within [0,180). Lines are
// undirected, so swapping the endpoints gives the same angle.
func LineAngle(l domain.LineGeom) float64 {
	d := l.Delta()
	a := math.Atan2(d.Y, d.X) * 180 / math.Pi
	a = math.Mod(a, 180)
	if a < 0 {
		a += 180
	}
	if a >= 180 {
		a -= 180
	}
	return a
}

// Angle reports the orientation of every line.
func Angle(markers []domain.Marker, opts Options) (*Table, error) {
	lines := subjects(markers, domain.KindLine, opts.TagID)
	if len(lines) == 0 {
		return nil, noSubjects(ToolAngle, domain.KindLine, opts)
	}
	t := &Table{Tool: ToolAngle, Columns: []string{"name", "angle_deg"}}
	for _, m := range lines {
		t.Rows = append(t.Rows, []any{m.Name, LineAngle(m.Geom.(domain.LineGeom))})
	}
	return t, nil
}

// Distances reports the distance of every unordered pair of points, in creation order.
func Distances(markers []domain.Marker, opts Options) (*Table, error) {
	refs := FindReferences(markers)
	if err := requireScales(ToolDistances, refs); err != nil {
		return nil, err
	}
	pts := subjects(markers, domain.KindPoint, opts.TagID)
	if len(pts) < 2 {
		return nil, toolErr(ToolDistances, ErrNoSubject, "at least two point markers are needed, found %d", len(pts))
	}
	t := &Table{Tool: ToolDistances, Columns: []string{"from", "to", "distance_px"}}
	for _, s := range refs.Scales {
		t.addColumn(s.Name)
	}
	for i := 0; i < len(pts); i++ {
		a := pts[i].Geom.(domain.PointGeom).P
		for j := i + 1; j < len(pts); j++ {
			b := pts[j].Geom.(domain.PointGeom).P
			d := floats.Distance([]float64{a.X, a.Y}, []float64{b.X, b.Y}, 2)
			row := []any{pts[i].Name, pts[j].Name, d}
			for _, s := range refs.Scales {
				row = append(row, d*s.UnitsPerPx)
			}
			t.Rows = append(t.Rows, row)
		}
	}
	return t, nil
}

// Area reports size and aspect ratio of every rectangle. The aspect ratio is empty for
// zero-height rectangles.
func Area(markers []domain.Marker, opts Options) (*Table, error) {
	refs := FindReferences(markers)
	if err := requireScales(ToolArea, refs); err != nil {
		return nil, err
	}
	rects := subjects(markers, domain.KindRect, opts.TagID)
	if len(rects) == 0 {
		return nil, noSubjects(ToolArea, domain.KindRect, opts)
	}
	t := &Table{Tool: ToolArea, Columns: []string{"name", "width_px", "height_px", "aspect_ratio"}}
	for _, s := range refs.Scales {
		for _, suffix := range []string{"_width", "_height", "_area"} {
			t.addColumn(s.Name + suffix)
		}
	}
	for _, m := range rects {
		r := m.Geom.(domain.RectGeom)
		w, h := r.Width(), r.Height()
		var aspect any
		if h != 0 {
			aspect = w / h
		}
		row := []any{m.Name, w, h, aspect}
		for _, s := range refs.Scales {
			u := s.UnitsPerPx
			row = append(row, w*u, h*u, w*h*u*u)
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}
