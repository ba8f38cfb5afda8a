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
	"log/slog"
	"math"
	"slices"
	"strings"

	"annotate/internal/domain"
	"annotate/internal/geom"
	"annotate/internal/hittest"

	"github.com/golang/geo/r2"
)

// PointerDown handles a button press. Pan wins over drag, drag over draw.
func (s *Session) PointerDown(e PointerEvent) {
	if s.gesture.kind != gestureNone {
		return
	}
	if e.Button != ButtonPrimary || e.Mods.Command() {
		s.gesture = gesture{kind: gesturePan, last: e.Pos}
		s.log.Debug("pan start", slog.Any("button", e.Button))
		return
	}
	p := s.view.ClientToImage(e.Pos)
	switch s.mode {
	case ModeSelect:
		s.pressSelect(e, p)
	case ModeDrawPoint:
		if _, err := s.CreateMarker(domain.PointGeom{P: p}, ""); err != nil {
			s.log.Debug("point rejected", slog.Any("err", err))
		}
	case ModeDrawLine, ModeDrawRect:
		if s.draw == nil {
			s.draw = &pendingDraw{anchor: p, cursor: p, press: e.Pos, pressed: true}
			s.host.Redraw()
			return
		}
		s.draw.cursor = s.constrain(p, e.Mods)
		s.commitDraw()
	}
}

func (s *Session) pressSelect(e PointerEvent, p r2.Point) {
	hit, ok := hittest.HitTestWithPart(s.store.Markers(), s.store.IsHidden, s.view.Scale, s.view.ClientToCanvas(e.Pos))
	if !ok {
		if !e.Mods.Shift() {
			s.ClearSelection()
		}
		return
	}
	id := hit.Marker.ID
	if e.Mods.Shift() {
		s.toggleSelected(id)
		return
	}
	s.setSelection([]string{id}, id)

	g := gesture{kind: gestureDrag, id: id, part: hit.Part, orig: hit.Marker.Geom, start: e.Pos}
	g.handle = hit.Marker.Kind() == domain.KindPoint || hit.Part != domain.PartWhole
	if g.handle {
		// Handles snap to the pointer on press so the view stays accurate under the cursor.
		s.history.Record(s.store)
		g.recorded = true
		_ = s.store.SetMarkerGeometry(id, g.orig.DragHandle(hit.Part, p))
		s.host.Redraw()
	}
	s.gesture = g
	s.log.Debug("drag start", slog.String("id", id), slog.String("part", hit.Part.String()), slog.Bool("handle", g.handle))
}

// PointerMove handles cursor motion.
func (s *Session) PointerMove(e PointerEvent) {
	switch s.gesture.kind {
	case gesturePan:
		s.panBy(e.Pos.Sub(s.gesture.last))
		s.gesture.last = e.Pos
		return
	case gestureDrag:
		s.dragTo(e.Pos)
		return
	case gesturePinch:
		return
	}
	p := s.view.ClientToImage(e.Pos)
	if s.draw != nil {
		s.draw.cursor = s.constrain(p, e.Mods)
		s.host.Redraw()
		return
	}
	if s.mode != ModeSelect {
		return
	}
	hover := ""
	if m, ok := hittest.HitTest(s.store.Markers(), s.store.IsHidden, s.view.Scale, s.view.ClientToCanvas(e.Pos)); ok {
		hover = m.ID
	}
	if hover != s.hover {
		s.hover = hover
		s.host.Redraw()
	}
}

func (s *Session) dragTo(client r2.Point) {
	g := &s.gesture
	if g.handle {
		_ = s.store.SetMarkerGeometry(g.id, g.orig.DragHandle(g.part, s.view.ClientToImage(client)))
		s.host.Redraw()
		return
	}
	delta := client.Sub(g.start)
	if !g.recorded {
		if delta.Norm() <= DragThreshold {
			return
		}
		s.history.Record(s.store)
		g.recorded = true
	}
	// Always offset the original geometry so rounding never accumulates.
	_ = s.store.SetMarkerGeometry(g.id, g.orig.Translate(delta.Mul(1/s.view.Scale)))
	s.host.Redraw()
}

// PointerUp ends a pan or drag, or completes a press-drag-release draw.
func (s *Session) PointerUp(e PointerEvent) {
	switch s.gesture.kind {
	case gesturePan, gestureDrag:
		s.endGesture()
		return
	case gesturePinch:
		return
	}
	if e.Button != ButtonPrimary || s.draw == nil || !s.draw.pressed {
		return
	}
	s.draw.pressed = false
	if geom.Dist(e.Pos, s.draw.press) > DragThreshold {
		s.draw.cursor = s.constrain(s.view.ClientToImage(e.Pos), e.Mods)
		s.commitDraw()
	}
}

// constrain snaps the free end of a line to the dominant axis when Shift is held.
func (s *Session) constrain(p r2.Point, m Mods) r2.Point {
	if s.mode == ModeDrawLine && m.Shift() && s.draw != nil {
		return geom.ConstrainAxis(s.draw.anchor, p)
	}
	return p
}

func (s *Session) commitDraw() {
	d := s.draw
	s.draw = nil
	var g domain.Geometry
	switch s.mode {
	case ModeDrawLine:
		g = domain.LineGeom{P1: d.anchor, P2: d.cursor}
	case ModeDrawRect:
		g = domain.NewRect(d.anchor, d.cursor)
	default:
		return
	}
	if g.Degenerate() {
		s.log.Debug("draw discarded", slog.String("kind", g.Kind().String()))
		s.host.Redraw()
		return
	}
	if _, err := s.CreateMarker(g, ""); err != nil {
		s.log.Debug("draw rejected", slog.Any("err", err))
	}
}

// endGesture finishes the current gesture, keeping any changes it made.
func (s *Session) endGesture() {
	g := s.gesture
	s.gesture = gesture{}
	switch g.kind {
	case gestureDrag:
		if g.recorded {
			s.log.Info("commit", slog.String("op", "drag"), slog.String("id", g.id))
			s.host.StoreChanged()
		}
	case gesturePan:
		s.log.Debug("pan end")
	case gesturePinch:
		s.log.Debug("pinch end", slog.Float64("scale", s.view.Scale))
	}
}

// cancelGesture abandons the current gesture. A drag that already recorded a snapshot is
// rolled back to it.
func (s *Session) cancelGesture() bool {
	g := s.gesture
	if g.kind == gestureNone {
		return false
	}
	s.gesture = gesture{}
	if g.kind == gestureDrag && g.recorded {
		s.history.Revert(s.store)
	}
	s.log.Debug("gesture cancelled")
	s.host.Redraw()
	return true
}

func (s *Session) panBy(delta r2.Point) {
	if delta.X == 0 && delta.Y == 0 {
		return
	}
	s.view.Pan(delta)
	s.host.ScrollTo(s.view.Scroll)
	s.host.Redraw()
}

// Wheel accumulates vertical deltas until the next Frame. Lateral-dominant events are ignored.
func (s *Session) Wheel(e WheelEvent) {
	if math.Abs(e.DX) > math.Abs(e.DY) {
		return
	}
	dy := e.DY
	switch e.Mode {
	case WheelLines:
		dy *= LineHeight
	case WheelPages:
		dy *= math.Max(s.view.ViewH, 1)
	}
	s.wheelAccum += dy
	s.wheelPivot = e.Pos
	if !s.wheelPending {
		s.wheelPending = true
		s.host.RequestFrame()
	}
}

func (s *Session) flushWheel() {
	if !s.wheelPending {
		return
	}
	acc := s.wheelAccum
	s.wheelPending = false
	s.wheelAccum = 0
	if acc == 0 {
		return
	}
	if s.view.ZoomAt(math.Exp(-acc*s.opt.WheelZoomRate), s.wheelPivot) {
		s.host.ScrollTo(s.view.Scroll)
	}
}

// TouchStart registers new contacts. A second contact turns any gesture into a pinch.
func (s *Session) TouchStart(ts []Touch) {
	for _, t := range ts {
		s.touches[t.ID] = t.Pos
	}
	if len(s.touches) >= 2 {
		if s.gesture.kind != gesturePinch {
			s.cancelGesture()
			if s.draw != nil {
				s.draw.pressed = false
			}
			s.startPinch()
		}
		return
	}
	if len(ts) == 1 {
		s.PointerDown(PointerEvent{Pos: ts[0].Pos})
	}
}

// TouchMove updates contacts; a pinch rescales about its starting midpoint.
func (s *Session) TouchMove(ts []Touch) {
	for _, t := range ts {
		if _, ok := s.touches[t.ID]; ok {
			s.touches[t.ID] = t.Pos
		}
	}
	if s.gesture.kind == gesturePinch {
		a, b, ok := s.pinchPair()
		if !ok || s.gesture.startDist == 0 {
			return
		}
		scale := s.gesture.startScale * geom.Dist(a, b) / s.gesture.startDist
		if s.view.ZoomTo(scale, s.gesture.anchor, s.gesture.mid) {
			s.host.ScrollTo(s.view.Scroll)
			s.host.Redraw()
		}
		return
	}
	if len(ts) == 1 {
		s.PointerMove(PointerEvent{Pos: ts[0].Pos})
	}
}

// TouchEnd removes contacts. The pinch ends when fewer than two remain.
func (s *Session) TouchEnd(ts []Touch) {
	for _, t := range ts {
		delete(s.touches, t.ID)
	}
	if s.gesture.kind == gesturePinch {
		if len(s.touches) < 2 {
			s.endGesture()
		}
		return
	}
	if len(ts) == 1 {
		s.PointerUp(PointerEvent{Pos: ts[0].Pos})
	}
}

func (s *Session) startPinch() {
	a, b, _ := s.pinchPair()
	mid := geom.Lerp(a, b, 0.5)
	s.gesture = gesture{
		kind:       gesturePinch,
		startDist:  geom.Dist(a, b),
		startScale: s.view.Scale,
		mid:        mid,
		anchor:     s.view.ClientToImage(mid),
	}
	s.log.Debug("pinch start", slog.Float64("dist", s.gesture.startDist))
}

// pinchPair returns the two lowest-id contacts.
func (s *Session) pinchPair() (r2.Point, r2.Point, bool) {
	ids := make([]int, 0, len(s.touches))
	for id := range s.touches {
		ids = append(ids, id)
	}
	if len(ids) < 2 {
		return r2.Point{}, r2.Point{}, false
	}
	slices.Sort(ids)
	return s.touches[ids[0]], s.touches[ids[1]], true
}

// Key handles keyboard shortcuts and reports whether the key was consumed.
func (s *Session) Key(e KeyEvent) bool {
	key := e.Key
	if e.Mods.Command() {
		switch strings.ToLower(key) {
		case "z":
			if e.Mods.Shift() {
				return s.Redo()
			}
			return s.Undo()
		case "y":
			return s.Redo()
		case "a":
			s.SelectAll()
			return true
		}
		return false
	}
	switch key {
	case "Escape":
		s.Escape()
		return true
	case "Tab":
		s.Cycle(e.Mods.Shift())
		return true
	case "Delete", "Backspace":
		return s.DeleteSelected() > 0
	}
	return false
}

// Escape cancels a gesture or pending draw, else clears the selection, else returns to Select.
func (s *Session) Escape() {
	switch {
	case s.gesture.kind != gestureNone:
		s.cancelGesture()
	case s.draw != nil:
		s.draw = nil
		s.host.Redraw()
	case len(s.selection) > 0:
		s.ClearSelection()
	default:
		s.SetMode(ModeSelect)
	}
}
