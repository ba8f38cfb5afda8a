/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package interact

import (
	"image"
	"image/color"
	"testing"

	"annotate/internal/analysis"
	"annotate/internal/domain"
	"annotate/internal/geom"
	"annotate/internal/raster"

	"github.com/golang/geo/r2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recHost struct {
	redraws      int
	storeChanges int
	frames       int
	scroll       r2.Point
	selection    []string
	primary      string
}

func (h *recHost) Redraw()       { h.redraws++ }
func (h *recHost) StoreChanged() { h.storeChanges++ }
func (h *recHost) RequestFrame() { h.frames++ }
func (h *recHost) ScrollTo(p r2.Point) {
	h.scroll = p
}
func (h *recHost) SelectionChanged(ids []string, primary string) {
	h.selection, h.primary = ids, primary
}

// newSession returns a session at scale 1 over a 100x100 image, so client == image space.
func newSession(t *testing.T) (*Session, *recHost) {
	t.Helper()
	h := &recHost{}
	s := New(h, Options{ViewW: 100, ViewH: 100})
	s.Reset(raster.Tainted{W: 100, H: 100})
	require.Equal(t, 1.0, s.Viewport().Scale)
	return s, h
}

func down(s *Session, x, y float64, mods ...Mods) {
	s.PointerDown(PointerEvent{Pos: geom.Pt(x, y), Mods: joinMods(mods)})
}

func move(s *Session, x, y float64, mods ...Mods) {
	s.PointerMove(PointerEvent{Pos: geom.Pt(x, y), Mods: joinMods(mods)})
}

func up(s *Session, x, y float64, mods ...Mods) {
	s.PointerUp(PointerEvent{Pos: geom.Pt(x, y), Mods: joinMods(mods)})
}

func click(s *Session, x, y float64, mods ...Mods) {
	down(s, x, y, mods...)
	up(s, x, y, mods...)
}

func joinMods(ms []Mods) Mods {
	var m Mods
	for _, v := range ms {
		m |= v
	}
	return m
}

func undoDepth(s *Session) int {
	u, _ := s.HistoryDepth()
	return u
}

func only(t *testing.T, s *Session) domain.Marker {
	t.Helper()
	ms := s.Markers()
	require.Len(t, ms, 1)
	return ms[0]
}

func TestDrawPointCommitsOnPress(t *testing.T) {
	s, h := newSession(t)
	s.SetMode(ModeDrawPoint)
	down(s, 10, 20)

	m := only(t, s)
	assert.Equal(t, "Point 1", m.Name)
	assert.Equal(t, domain.PointGeom{P: geom.Pt(10, 20)}, m.Geom)
	assert.Equal(t, []string{m.ID}, s.Selection())
	assert.Equal(t, m.ID, h.primary)
	assert.Equal(t, 1, undoDepth(s))
	assert.Equal(t, 2, h.storeChanges) // Reset and the commit
}

func TestDrawLineClickClick(t *testing.T) {
	s, _ := newSession(t)
	s.SetMode(ModeDrawLine)
	click(s, 10, 10)
	require.True(t, s.Drawing())
	assert.Empty(t, s.Markers())

	move(s, 30, 12)
	f := s.Frame()
	require.NotNil(t, f.Preview)
	assert.Equal(t, geom.Pt(30, 12), f.Preview.Cursor)

	click(s, 50, 10)
	assert.False(t, s.Drawing())
	m := only(t, s)
	assert.Equal(t, domain.LineGeom{P1: geom.Pt(10, 10), P2: geom.Pt(50, 10)}, m.Geom)
	assert.Equal(t, 1, undoDepth(s))
}

func TestDrawLinePressDragRelease(t *testing.T) {
	s, _ := newSession(t)
	s.SetMode(ModeDrawLine)
	down(s, 10, 10)
	move(s, 40, 40)
	up(s, 40, 40)

	m := only(t, s)
	assert.Equal(t, domain.LineGeom{P1: geom.Pt(10, 10), P2: geom.Pt(40, 40)}, m.Geom)
}

func TestDrawLineShiftConstrains(t *testing.T) {
	s, _ := newSession(t)
	s.SetMode(ModeDrawLine)
	click(s, 10, 10)
	click(s, 40, 12, ModShift)

	m := only(t, s)
	assert.Equal(t, domain.LineGeom{P1: geom.Pt(10, 10), P2: geom.Pt(40, 10)}, m.Geom)
}

func TestDegenerateRectDiscarded(t *testing.T) {
	s, h := newSession(t)
	s.SetMode(ModeDrawRect)
	click(s, 10, 10)
	click(s, 11, 30)

	assert.Empty(t, s.Markers())
	assert.False(t, s.Drawing())
	assert.Equal(t, 0, undoDepth(s))
	assert.Equal(t, 1, h.storeChanges) // from Reset only
}

func TestDrawRect(t *testing.T) {
	s, _ := newSession(t)
	s.SetMode(ModeDrawRect)
	click(s, 40, 30)
	click(s, 10, 10)

	m := only(t, s)
	r := m.Geom.(domain.RectGeom)
	assert.Equal(t, 30.0, r.Width())
	assert.Equal(t, 20.0, r.Height())
	assert.Equal(t, "Rect 1", m.Name)
}

func TestBodyDragIsThresholdGated(t *testing.T) {
	s, h := newSession(t)
	id, err := s.CreateMarker(domain.LineGeom{P1: geom.Pt(10, 10), P2: geom.Pt(50, 10)}, "")
	require.NoError(t, err)
	require.Equal(t, 1, undoDepth(s))
	changes := h.storeChanges

	down(s, 30, 10)
	move(s, 31, 10)
	assert.Equal(t, 1, undoDepth(s), "sub-threshold motion must not record")

	move(s, 35, 12)
	move(s, 40, 15)
	assert.Equal(t, 2, undoDepth(s), "exactly one snapshot per drag")
	up(s, 40, 15)
	assert.Equal(t, changes+1, h.storeChanges)

	m, _ := s.Store().Marker(id)
	assert.Equal(t, domain.LineGeom{P1: geom.Pt(20, 15), P2: geom.Pt(60, 15)}, m.Geom)

	require.True(t, s.Undo())
	m, _ = s.Store().Marker(id)
	assert.Equal(t, domain.LineGeom{P1: geom.Pt(10, 10), P2: geom.Pt(50, 10)}, m.Geom)
	assert.Empty(t, s.Selection())
}

func TestClickSelectsWithoutHistory(t *testing.T) {
	s, _ := newSession(t)
	id, err := s.CreateMarker(domain.LineGeom{P1: geom.Pt(10, 10), P2: geom.Pt(50, 10)}, "")
	require.NoError(t, err)
	s.ClearSelection()

	click(s, 30, 11)
	assert.Equal(t, []string{id}, s.Selection())
	assert.Equal(t, 1, undoDepth(s))

	click(s, 90, 90)
	assert.Empty(t, s.Selection())
}

func TestHandleDragSnapsAndEscapeReverts(t *testing.T) {
	s, _ := newSession(t)
	id, err := s.CreateMarker(domain.LineGeom{P1: geom.Pt(10, 10), P2: geom.Pt(50, 10)}, "")
	require.NoError(t, err)

	down(s, 12, 11)
	m, _ := s.Store().Marker(id)
	assert.Equal(t, geom.Pt(12, 11), m.Geom.(domain.LineGeom).P1, "handle snaps on press")
	assert.Equal(t, 2, undoDepth(s))

	move(s, 5, 30)
	m, _ = s.Store().Marker(id)
	assert.Equal(t, geom.Pt(5, 30), m.Geom.(domain.LineGeom).P1)

	s.Escape()
	m, _ = s.Store().Marker(id)
	assert.Equal(t, geom.Pt(10, 10), m.Geom.(domain.LineGeom).P1)
	assert.Equal(t, 1, undoDepth(s))
	assert.Equal(t, []string{id}, s.Selection(), "escape during a drag keeps the selection")
}

func TestEscapedHandlePressKeepsRedo(t *testing.T) {
	s, _ := newSession(t)
	a, err := s.CreateMarker(domain.PointGeom{P: geom.Pt(50, 50)}, "")
	require.NoError(t, err)
	_, err = s.CreateMarker(domain.PointGeom{P: geom.Pt(80, 80)}, "")
	require.NoError(t, err)
	require.True(t, s.Undo())
	require.True(t, s.CanRedo())

	down(s, 51, 51)
	assert.False(t, s.CanRedo(), "a handle press records a snapshot")
	s.Escape()

	assert.True(t, s.CanRedo(), "a cancelled press leaves redo intact")
	assert.Equal(t, 1, undoDepth(s))
	m, _ := s.Store().Marker(a)
	assert.Equal(t, geom.Pt(50, 50), m.Geom.(domain.PointGeom).P)

	require.True(t, s.Redo())
	assert.Len(t, s.Markers(), 2)
}

func TestShiftClickMultiSelectAndDelete(t *testing.T) {
	s, h := newSession(t)
	a, _ := s.CreateMarker(domain.PointGeom{P: geom.Pt(10, 10)}, "")
	b, _ := s.CreateMarker(domain.PointGeom{P: geom.Pt(50, 50)}, "")
	c, _ := s.CreateMarker(domain.PointGeom{P: geom.Pt(80, 80)}, "")

	click(s, 10, 10)
	click(s, 50, 50, ModShift)
	assert.Equal(t, []string{a, b}, s.Selection())
	assert.Equal(t, b, s.Primary())

	click(s, 50, 50, ModShift)
	assert.Equal(t, []string{a}, s.Selection())
	assert.Equal(t, a, h.primary)
	click(s, 50, 50, ModShift)

	depth := undoDepth(s)
	require.True(t, s.Key(KeyEvent{Key: "Delete"}))
	assert.Equal(t, depth+1, undoDepth(s))
	assert.Equal(t, []string{c}, ids(s.Markers()))
	assert.Empty(t, s.Selection())

	require.True(t, s.Key(KeyEvent{Key: "z", Mods: ModCtrl}))
	assert.Equal(t, []string{a, b, c}, ids(s.Markers()))
	require.True(t, s.Key(KeyEvent{Key: "Z", Mods: ModCtrl | ModShift}))
	assert.Equal(t, []string{c}, ids(s.Markers()))
	require.True(t, s.Key(KeyEvent{Key: "z", Mods: ModMeta}))
	require.True(t, s.Key(KeyEvent{Key: "y", Mods: ModCtrl}))
	assert.Equal(t, []string{c}, ids(s.Markers()))
}

func ids(ms []domain.Marker) []string {
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = m.ID
	}
	return out
}

func TestPanTakesPriority(t *testing.T) {
	s, h := newSession(t)
	id, _ := s.CreateMarker(domain.PointGeom{P: geom.Pt(10, 10)}, "")

	s.PointerDown(PointerEvent{Pos: geom.Pt(10, 10), Button: ButtonSecondary})
	s.PointerMove(PointerEvent{Pos: geom.Pt(20, 15)})
	s.PointerUp(PointerEvent{Pos: geom.Pt(20, 15), Button: ButtonSecondary})

	assert.Equal(t, geom.Pt(-10, -5), s.Viewport().Scroll)
	assert.Equal(t, geom.Pt(-10, -5), h.scroll)
	m, _ := s.Store().Marker(id)
	assert.Equal(t, domain.PointGeom{P: geom.Pt(10, 10)}, m.Geom)
	assert.Equal(t, 1.0, s.Viewport().Scale)

	down(s, 20, 15, ModCtrl)
	move(s, 25, 15)
	up(s, 25, 15)
	assert.Equal(t, geom.Pt(-15, -5), s.Viewport().Scroll)
}

func TestWheelCoalescesIntoOneZoom(t *testing.T) {
	h := &recHost{}
	s := New(h, Options{ViewW: 100, ViewH: 100})
	s.Reset(raster.Tainted{W: 1000, H: 1000})
	require.InDelta(t, 0.1, s.Viewport().Scale, 1e-12)
	pivot := geom.Pt(50, 50)
	before := s.Viewport().ClientToImage(pivot)

	s.Wheel(WheelEvent{Pos: pivot, DY: -100})
	s.Wheel(WheelEvent{Pos: pivot, DY: -100})
	assert.Equal(t, 1, h.frames)
	assert.InDelta(t, 0.1, s.Viewport().Scale, 1e-12, "no zoom before the frame")

	s.Frame()
	v := s.Viewport()
	assert.InDelta(t, 0.1*1.3498588075760032, v.Scale, 1e-9)
	after := v.ClientToImage(pivot)
	assert.InDelta(t, before.X, after.X, 1e-9)
	assert.InDelta(t, before.Y, after.Y, 1e-9)

	s.Wheel(WheelEvent{Pos: pivot, DX: 10, DY: 1})
	assert.Equal(t, 1, h.frames, "lateral-dominant wheel is ignored")

	s.Wheel(WheelEvent{Pos: pivot, DY: 1, Mode: WheelLines})
	assert.Equal(t, 2, h.frames)
	s.Frame()
	assert.Less(t, s.Viewport().Scale, v.Scale)
}

func TestPinchKeepsMidpointFixed(t *testing.T) {
	s := New(nil, Options{ViewW: 100, ViewH: 100})
	s.Reset(raster.Tainted{W: 1000, H: 1000})
	mid := geom.Pt(50, 50)
	before := s.Viewport().ClientToImage(mid)

	s.TouchStart([]Touch{{ID: 1, Pos: geom.Pt(40, 50)}})
	s.TouchStart([]Touch{{ID: 2, Pos: geom.Pt(60, 50)}})
	s.TouchMove([]Touch{{ID: 1, Pos: geom.Pt(30, 50)}, {ID: 2, Pos: geom.Pt(70, 50)}})

	v := s.Viewport()
	assert.InDelta(t, 0.2, v.Scale, 1e-12)
	after := v.ClientToImage(mid)
	assert.InDelta(t, before.X, after.X, 1e-9)
	assert.InDelta(t, before.Y, after.Y, 1e-9)

	s.TouchEnd([]Touch{{ID: 2}})
	s.TouchEnd([]Touch{{ID: 1}})
	assert.Empty(t, s.Markers())
}

func TestEscapeLadder(t *testing.T) {
	s, _ := newSession(t)
	_, _ = s.CreateMarker(domain.PointGeom{P: geom.Pt(80, 80)}, "")
	s.SetMode(ModeDrawLine)
	click(s, 10, 10)
	require.True(t, s.Drawing())
	require.NotEmpty(t, s.Selection())

	s.Key(KeyEvent{Key: "Escape"})
	assert.False(t, s.Drawing())
	assert.NotEmpty(t, s.Selection())
	assert.Equal(t, ModeDrawLine, s.Mode())

	s.Key(KeyEvent{Key: "Escape"})
	assert.Empty(t, s.Selection())
	assert.Equal(t, ModeDrawLine, s.Mode())

	s.Key(KeyEvent{Key: "Escape"})
	assert.Equal(t, ModeSelect, s.Mode())
}

func TestTabCyclesWithWrap(t *testing.T) {
	s, _ := newSession(t)
	a, _ := s.CreateMarker(domain.PointGeom{P: geom.Pt(10, 10)}, "")
	b, _ := s.CreateMarker(domain.PointGeom{P: geom.Pt(20, 20)}, "")
	c, _ := s.CreateMarker(domain.PointGeom{P: geom.Pt(30, 30)}, "")
	s.ClearSelection()

	tab := KeyEvent{Key: "Tab"}
	back := KeyEvent{Key: "Tab", Mods: ModShift}
	s.Key(tab)
	assert.Equal(t, a, s.Primary())
	s.Key(tab)
	s.Key(tab)
	assert.Equal(t, c, s.Primary())
	s.Key(tab)
	assert.Equal(t, a, s.Primary())
	s.Key(back)
	assert.Equal(t, c, s.Primary())
	s.Key(back)
	assert.Equal(t, b, s.Primary())
	assert.Equal(t, []string{b}, s.Selection())
}

func TestHiddenTagExcludesFromPickingAndSelectAll(t *testing.T) {
	s, _ := newSession(t)
	tag := s.AddTag("hide me", "")
	a, _ := s.CreateMarker(domain.PointGeom{P: geom.Pt(10, 10)}, "")
	b, _ := s.CreateMarker(domain.PointGeom{P: geom.Pt(50, 50)}, "")
	require.NoError(t, s.ToggleMarkerTag(a, tag))
	depth := undoDepth(s)

	require.NoError(t, s.ToggleHiddenTag(tag))
	assert.Equal(t, depth, undoDepth(s), "visibility is not recorded")

	click(s, 10, 10)
	assert.Empty(t, s.Selection())

	s.Key(KeyEvent{Key: "a", Mods: ModCtrl})
	assert.Equal(t, []string{b}, s.Selection())
	assert.Len(t, s.Frame().Items, 1)
}

func TestCommandsRecordOnce(t *testing.T) {
	s, _ := newSession(t)
	id, _ := s.CreateMarker(domain.PointGeom{P: geom.Pt(10, 10)}, "")
	tag := s.AddTag("a", "#00ff00")
	steps := []func() error{
		func() error { return s.RenameMarker(id, "renamed") },
		func() error { return s.ToggleMarkerTag(id, tag) },
		func() error { return s.RenameTag(tag, "b") },
		func() error { return s.SetTagColor(tag, "#0000ff") },
		func() error { return s.DeleteTag(tag) },
	}
	for i, step := range steps {
		before := undoDepth(s)
		require.NoError(t, step(), "step %d", i)
		assert.Equal(t, before+1, undoDepth(s), "step %d", i)
	}

	before := undoDepth(s)
	require.Error(t, s.RenameMarker("missing", "x"))
	require.Error(t, s.ToggleMarkerTag(id, "missing"))
	assert.Equal(t, before, undoDepth(s), "rejected commands record nothing")

	s.ClearAll()
	assert.Empty(t, s.Markers())
	require.True(t, s.Undo())
	assert.Len(t, s.Markers(), 1)
}

func TestImportIsTransactional(t *testing.T) {
	s, _ := newSession(t)
	_, _ = s.CreateMarker(domain.PointGeom{P: geom.Pt(1, 1)}, "")

	err := s.ImportJSON([]byte(`{"annotations":[{"type":"line","coords":[1,2]}]}`))
	require.Error(t, err)
	assert.Len(t, s.Markers(), 1)
	assert.Equal(t, 1, undoDepth(s))

	doc := `{"tags":[{"name":"t","color":"#112233"}],"annotations":[
		{"type":"point","name":"Point 7","coords":[3,4],"tags":["t","nope"]},
		{"type":"rect","name":"box","coords":[[0,0],[10,10]]}]}`
	require.NoError(t, s.ImportJSON([]byte(doc)))
	ms := s.Markers()
	require.Len(t, ms, 2)
	require.Len(t, ms[0].TagIDs, 1)
	assert.Equal(t, 2, undoDepth(s))
	assert.Equal(t, 7, s.Store().Counter(domain.KindPoint))

	require.True(t, s.Undo())
	assert.Len(t, s.Markers(), 1)
	assert.Empty(t, s.Tags())
}

func TestInspect(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.SetRGBA(2, 1, color.RGBA{R: 10, G: 20, B: 30, A: 255})
	s := New(nil, Options{ViewW: 4, ViewH: 4})
	s.Reset(raster.FromImage(img))

	p := s.Inspect(geom.Pt(2.5, 1.9))
	assert.Equal(t, image.Pt(2, 1), p.Pixel)
	assert.True(t, p.InBounds)
	assert.True(t, p.HasColor)
	assert.Equal(t, color.RGBA{R: 10, G: 20, B: 30, A: 255}, p.Color)

	p = s.Inspect(geom.Pt(9, 9))
	assert.False(t, p.InBounds)
	assert.False(t, p.HasColor)

	s.Reset(raster.Tainted{W: 4, H: 4})
	p = s.Inspect(geom.Pt(1, 1))
	assert.True(t, p.InBounds)
	assert.False(t, p.HasColor)
}

func TestAnalyzeUsesSessionMarkers(t *testing.T) {
	s, _ := newSession(t)
	_, _ = s.CreateMarker(domain.LineGeom{P1: geom.Pt(0, 0), P2: geom.Pt(10, 0)}, "")
	tbl, err := s.Analyze(analysis.ToolAngle, "")
	require.NoError(t, err)
	require.Len(t, tbl.Rows, 1)

	_, err = s.Analyze(analysis.ToolArea, "")
	require.ErrorIs(t, err, analysis.ErrNoReference)
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("Line")
	require.NoError(t, err)
	assert.Equal(t, ModeDrawLine, m)
	_, err = ParseMode("lasso")
	assert.Error(t, err)
}
