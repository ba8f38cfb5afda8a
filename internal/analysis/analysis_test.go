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
	"encoding/json"
	"image"
	"image/color"
	"testing"

	"annotate/internal/domain"
	"annotate/internal/geom"
	"annotate/internal/raster"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pt(id, name string, x, y float64, tags ...string) domain.Marker {
	return domain.Marker{ID: id, Name: name, Geom: domain.PointGeom{P: geom.Pt(x, y)}, TagIDs: tags}
}

func ln(id, name string, x1, y1, x2, y2 float64, tags ...string) domain.Marker {
	return domain.Marker{ID: id, Name: name, Geom: domain.LineGeom{P1: geom.Pt(x1, y1), P2: geom.Pt(x2, y2)}, TagIDs: tags}
}

func rc(id, name string, x1, y1, x2, y2 float64, tags ...string) domain.Marker {
	return domain.Marker{ID: id, Name: name, Geom: domain.NewRect(geom.Pt(x1, y1), geom.Pt(x2, y2)), TagIDs: tags}
}

func TestParseReference(t *testing.T) {
	cases := []struct {
		in   string
		ok   bool
		want Reference
	}{
		{"X: 0 100", true, Reference{Kind: RefAxis, Name: "X", A: 0, B: 100}},
		{"Y: 1 1e3 L", true, Reference{Kind: RefAxis, Name: "Y", A: 1, B: 1000, Log: true}},
		{"time:-2.5 .5", true, Reference{Kind: RefAxis, Name: "time", A: -2.5, B: 0.5}},
		{"s: 50", true, Reference{Kind: RefScale, Name: "s", A: 50}},
		{"mm:  0.25 ", true, Reference{Kind: RefScale, Name: "mm", A: 0.25}},
		{"Y: 0 100 L", false, Reference{}},
		{"Line 1", false, Reference{}},
		{"X: a b", false, Reference{}},
		{"s: 50 mm", false, Reference{}},
	}
	for _, c := range cases {
		got, ok := ParseReference(c.in)
		assert.Equal(t, c.ok, ok, c.in)
		assert.Equal(t, c.want, got, c.in)
	}
}

func TestExtractLinearAndLog(t *testing.T) {
	ms := []domain.Marker{
		ln("ax", "X: 0 100", 0, 50, 200, 50),
		ln("ay", "Y: 1 100 L", 0, 0, 0, 100),
		pt("p1", "Point 1", 100, 50),
	}
	tab, err := Extract(ms, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"name", "X", "Y"}, tab.Columns)
	require.Len(t, tab.Rows, 1)
	assert.Equal(t, "Point 1", tab.Rows[0][0])
	assert.InDelta(t, 50, tab.Rows[0][1], 1e-9)
	assert.InDelta(t, 10, tab.Rows[0][2], 1e-9)
}

func TestExtractProjectionNotClamped(t *testing.T) {
	ms := []domain.Marker{ln("ax", "X: 0 10", 0, 0, 10, 0), pt("p", "P", 15, 3)}
	tab, err := Extract(ms, Options{})
	require.NoError(t, err)
	assert.InDelta(t, 15, tab.Rows[0][1], 1e-9)
}

func TestExtractErrors(t *testing.T) {
	_, err := Extract([]domain.Marker{pt("p", "P", 1, 1)}, Options{})
	var te *ToolError
	require.ErrorAs(t, err, &te)
	assert.ErrorIs(t, err, ErrNoReference)
	assert.Equal(t, ToolExtract, te.Tool)

	_, err = Extract([]domain.Marker{ln("ax", "X: 0 1", 0, 0, 10, 0)}, Options{})
	assert.ErrorIs(t, err, ErrNoSubject)

	// zero-length lines never count as references
	_, err = Extract([]domain.Marker{ln("ax", "X: 0 1", 5, 5, 5, 5), pt("p", "P", 1, 1)}, Options{})
	assert.ErrorIs(t, err, ErrNoReference)
}

func TestTagFilterSkipsSubjectsNotReferences(t *testing.T) {
	ms := []domain.Marker{
		ln("ax", "X: 0 100", 0, 0, 100, 0, "other"),
		pt("a", "A", 10, 0, "keep"),
		pt("b", "B", 20, 0),
	}
	tab, err := Extract(ms, Options{TagID: "keep"})
	require.NoError(t, err)
	require.Len(t, tab.Rows, 1)
	assert.Equal(t, "A", tab.Rows[0][0])

	_, err = Extract(ms, Options{TagID: "missing"})
	assert.ErrorIs(t, err, ErrNoSubject)
}

func TestMeasure(t *testing.T) {
	ms := []domain.Marker{
		ln("s", "s: 50", 0, 0, 100, 0),
		ln("l", "Line 2", 0, 0, 0, 40),
	}
	tab, err := Measure(ms, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"name", "length_px", "s"}, tab.Columns)
	require.Len(t, tab.Rows, 2)
	assert.InDelta(t, 50, tab.Rows[0][2], 1e-9, "scale line measures its own length")
	assert.InDelta(t, 40, tab.Rows[1][1], 1e-9)
	assert.InDelta(t, 20, tab.Rows[1][2], 1e-9)

	_, err = Measure([]domain.Marker{ln("l", "Line", 0, 0, 9, 9)}, Options{})
	assert.ErrorIs(t, err, ErrNoReference)
}

func TestReferencesSortedAndFirstWins(t *testing.T) {
	ms := []domain.Marker{
		ln("b", "b: 10", 0, 0, 10, 0),
		ln("a1", "a: 1", 0, 0, 10, 0),
		ln("a2", "a: 1000", 0, 0, 10, 0),
	}
	refs := FindReferences(ms)
	require.Len(t, refs.Scales, 2)
	assert.Equal(t, "a", refs.Scales[0].Name)
	assert.InDelta(t, 0.1, refs.Scales[0].UnitsPerPx, 1e-12)
	assert.Equal(t, "b", refs.Scales[1].Name)
}

func TestAxisAndScaleMayShareName(t *testing.T) {
	ms := []domain.Marker{
		ln("a", "X: 0 100", 0, 0, 100, 0),
		ln("s", "X: 50", 0, 0, 10, 0),
		ln("l", "Line", 0, 0, 0, 20),
	}
	refs := FindReferences(ms)
	require.Len(t, refs.Axes, 1)
	require.Len(t, refs.Scales, 1)
	assert.Equal(t, "X", refs.Scales[0].Name)

	tab, err := Measure(ms, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"name", "length_px", "X"}, tab.Columns)
	assert.InDelta(t, 100.0, tab.Rows[2][2], 1e-9)
}

func TestReferenceColumnsStayUniqueAndOrdered(t *testing.T) {
	ms := []domain.Marker{
		ln("z", "zeta: 0 10", 0, 0, 10, 0),
		ln("n", "name: 0 100", 0, 0, 10, 0),
		pt("p", "P", 5, 0),
	}
	tab, err := Extract(ms, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"name", "name_2", "zeta"}, tab.Columns)

	js, err := json.Marshal(tab.Objects())
	require.NoError(t, err)
	assert.Equal(t, `[{"name":"P","name_2":50,"zeta":5}]`, string(js))
}

func TestAngle(t *testing.T) {
	cases := []struct {
		x2, y2, want float64
	}{
		{10, 0, 0},
		{0, 10, 90},
		{10, 10, 45},
		{-10, 0, 0},
	}
	for _, c := range cases {
		got := LineAngle(domain.LineGeom{P1: geom.Pt(0, 0), P2: geom.Pt(c.x2, c.y2)})
		assert.InDelta(t, c.want, got, 1e-9, "(%v,%v)", c.x2, c.y2)
	}
	// undirected
	a := LineAngle(domain.LineGeom{P1: geom.Pt(3, 7), P2: geom.Pt(11, 2)})
	b := LineAngle(domain.LineGeom{P1: geom.Pt(11, 2), P2: geom.Pt(3, 7)})
	assert.InDelta(t, a, b, 1e-9)

	tab, err := Angle([]domain.Marker{ln("l", "L", 0, 0, 0, 10)}, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"name", "angle_deg"}, tab.Columns)
	_, err = Angle(nil, Options{})
	assert.ErrorIs(t, err, ErrNoSubject)
}

func TestDistances(t *testing.T) {
	ms := []domain.Marker{
		ln("s", "px: 10", 0, 0, 10, 0),
		pt("a", "A", 0, 0),
		pt("b", "B", 3, 4),
		pt("c", "C", 6, 8),
	}
	tab, err := Distances(ms, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"from", "to", "distance_px", "px"}, tab.Columns)
	require.Len(t, tab.Rows, 3)
	assert.Equal(t, []any{"A", "B"}, tab.Rows[0][:2])
	assert.InDelta(t, 5, tab.Rows[0][2], 1e-9)
	assert.Equal(t, []any{"A", "C"}, tab.Rows[1][:2])
	assert.InDelta(t, 10, tab.Rows[1][3], 1e-9)

	_, err = Distances(ms[:2], Options{})
	assert.ErrorIs(t, err, ErrNoSubject)
	_, err = Distances(ms[1:], Options{})
	assert.ErrorIs(t, err, ErrNoReference)
}

func TestArea(t *testing.T) {
	ms := []domain.Marker{
		ln("s", "cm: 5", 0, 0, 10, 0),
		rc("r", "Rect 1", 10, 10, 30, 20),
	}
	tab, err := Area(ms, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"name", "width_px", "height_px", "aspect_ratio", "cm_width", "cm_height", "cm_area"}, tab.Columns)
	row := tab.Rows[0]
	assert.InDelta(t, 20, row[1], 1e-9)
	assert.InDelta(t, 10, row[2], 1e-9)
	assert.InDelta(t, 2, row[3], 1e-9)
	assert.InDelta(t, 10, row[4], 1e-9)
	assert.InDelta(t, 5, row[5], 1e-9)
	assert.InDelta(t, 50, row[6], 1e-9)

	flat := []domain.Marker{ms[0], rc("f", "Flat", 0, 0, 10, 0)}
	tab, err = Area(flat, Options{})
	require.NoError(t, err)
	assert.Nil(t, tab.Rows[0][3])

	_, err = Area(ms[:1], Options{})
	assert.ErrorIs(t, err, ErrNoSubject)
}

func TestProfile(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 5, 1))
	for x := 0; x < 5; x++ {
		img.Set(x, 0, color.NRGBA{R: uint8(x * 50), G: 0, B: 0, A: 255})
	}
	ms := []domain.Marker{
		ln("s", "u: 2", 0, 0, 4, 0),
		ln("l", "trace", 0.5, 0.5, 6.5, 0.5),
	}
	tab, err := Profile(ms[1:], Options{Raster: raster.FromImage(img)})
	require.NoError(t, err)
	// length 6 gives 7 samples
	require.Len(t, tab.Rows, 7)
	assert.Equal(t, []string{"line", "index", "x", "y", "r", "g", "b", "luminance"}, tab.Columns)
	assert.Equal(t, 100, tab.Rows[2][4])
	assert.Nil(t, tab.Rows[6][4], "samples outside the raster have no colour")

	tab, err = Profile(ms, Options{Raster: raster.FromImage(img)})
	require.NoError(t, err)
	assert.Contains(t, tab.Columns, "u_position")
	// scale line itself: 5 samples, then the trace: 7 samples
	require.Len(t, tab.Rows, 12)
	last := tab.Rows[len(tab.Rows)-1]
	assert.InDelta(t, 3, last[8], 1e-9) // 6 px * 0.5 units/px
	assert.InDelta(t, 3.25, last[9], 1e-9)
}

func TestProfileRequiresPixels(t *testing.T) {
	ms := []domain.Marker{ln("l", "trace", 0, 0, 10, 0)}
	_, err := Profile(ms, Options{})
	assert.ErrorIs(t, err, ErrNoPixels)
	_, err = Profile(ms, Options{Raster: raster.Tainted{W: 10, H: 10}})
	assert.ErrorIs(t, err, ErrNoPixels)
}

func TestProfileSampleCap(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 1, 1))
	ms := []domain.Marker{ln("l", "long", 0, 0, 50000, 0)}
	tab, err := Profile(ms, Options{Raster: raster.FromImage(img)})
	require.NoError(t, err)
	assert.Len(t, tab.Rows, MaxProfileSamples)
}

func TestRunAndRecords(t *testing.T) {
	ms := []domain.Marker{ln("l", "a,b", 0, 0, 10, 0)}
	tab, err := Run(ToolAngle, ms, Options{})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"name", "angle_deg"}, {"a,b", "0"}}, tab.Records())
	js, err := json.Marshal(tab.Objects())
	require.NoError(t, err)
	assert.JSONEq(t, `[{"name":"a,b","angle_deg":0}]`, string(js))

	_, err = Run("nope", ms, Options{})
	assert.ErrorIs(t, err, ErrUnknownTool)
	assert.Len(t, Tools, 6)
}
