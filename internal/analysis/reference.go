/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package analysis derives tabular measurements from the markers of one image.
//
// Calibration is read from line marker names. A line named "X: 0 100" is an axis mapping its
// start point to 0 and its end point to 100 ("X: 1 1000 L" maps logarithmically). A line named
// "s: 50" is a scale stating that the line is 50 units long. References apply to every subject
// regardless of tag filters. All functions are read-only over the markers they receive.
package analysis

import (
	"math"
	"regexp"
	"sort"
	"strconv"

	"annotate/internal/domain"
	"annotate/internal/log"
)

const number = `[-+]?(?:\d+\.?\d*|\.\d+)(?:[eE][-+]?\d+)?`

var (
	axisPattern  = regexp.MustCompile(`^\s*(\w+):\s*(` + number + `)\s+(` + number + `)\s*(L?)\s*$`)
	scalePattern = regexp.MustCompile(`^\s*(\w+):\s*(` + number + `)\s*$`)
)

// RefKind tells axes from scales.
type RefKind int

const (
	RefNone RefKind = iota
	RefAxis
	RefScale
)

// Reference is the parsed form of a line name.
type Reference struct {
	Kind RefKind
	Name string
	// Axis: values at the start and end of the line. Scale: A is the physical length.
	A, B float64
	Log  bool
}

// ParseReference parses a marker name against the axis and scale grammar.
// Log axes with a non-positive end value are rejected.
func ParseReference(name string) (Reference, bool) {
	if m := axisPattern.FindStringSubmatch(name); m != nil {
		a, errA := strconv.ParseFloat(m[2], 64)
		b, errB := strconv.ParseFloat(m[3], 64)
		if errA != nil || errB != nil {
			return Reference{}, false
		}
		isLog := m[4] == "L"
		if isLog && (a <= 0 || b <= 0) {
			return Reference{}, false
		}
		return Reference{Kind: RefAxis, Name: m[1], A: a, B: b, Log: isLog}, true
	}
	if m := scalePattern.FindStringSubmatch(name); m != nil {
		l, err := strconv.ParseFloat(m[2], 64)
		if err != nil {
			return Reference{}, false
		}
		return Reference{Kind: RefScale, Name: m[1], A: l}, true
	}
	return Reference{}, false
}

// Axis projects image points onto a calibrated line.
type Axis struct {
	Name string
	Line domain.LineGeom
	A, B float64
	Log  bool
}

// Value maps the scalar projection of p onto the axis line to the axis range.
// The projection is not clamped to the segment.
func (a Axis) Value(p domain.PointGeom) float64 {
	d := a.Line.Delta()
	t := p.P.Sub(a.Line.P1).Dot(d) / d.Dot(d)
	if a.Log {
		la, lb := math.Log(a.A), math.Log(a.B)
		return math.Exp(la + (lb-la)*t)
	}
	return a.A + (a.B-a.A)*t
}

// Scale converts pixel lengths into physical units.
type Scale struct {
	Name       string
	Line       domain.LineGeom
	Length     float64
	UnitsPerPx float64
}

// References holds the axes and scales found in a marker set, each sorted by name.
type References struct {
	Axes   []Axis
	Scales []Scale
}

// FindReferences collects axis and scale lines. Zero-length lines are skipped; when two
// axes or two scales share a name the first one in creation order wins. An axis and a
// scale may share a name.
func FindReferences(markers []domain.Marker) References {
	var refs References
	// axes and scales feed different tools, so a name is unique within its own kind only
	seen := map[RefKind]map[string]string{RefAxis: {}, RefScale: {}}
	for _, m := range markers {
		l, ok := m.Geom.(domain.LineGeom)
		if !ok {
			continue
		}
		r, ok := ParseReference(m.Name)
		if !ok {
			continue
		}
		length := l.Length()
		if length == 0 {
			continue
		}
		if first, dup := seen[r.Kind][r.Name]; dup {
			log.WithComponent("analysis").Warn("duplicate reference name ignored",
				"name", r.Name, "kept", first, "ignored", m.ID)
			continue
		}
		seen[r.Kind][r.Name] = m.ID
		switch r.Kind {
		case RefAxis:
			refs.Axes = append(refs.Axes, Axis{Name: r.Name, Line: l, A: r.A, B: r.B, Log: r.Log})
		case RefScale:
			refs.Scales = append(refs.Scales, Scale{Name: r.Name, Line: l, Length: r.A, UnitsPerPx: r.A / length})
		}
	}
	sort.SliceStable(refs.Axes, func(i, j int) bool { return refs.Axes[i].Name < refs.Axes[j].Name })
	sort.SliceStable(refs.Scales, func(i, j int) bool { return refs.Scales[i].Name < refs.Scales[j].Name })
	return refs
}
