/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package interact is the annotation session: it turns pointer, key, wheel and touch
// events into store mutations, selection and viewport changes, with every mutation
// recorded in the undo history.
package interact

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strings"
	"time"

	"annotate/internal/analysis"
	"annotate/internal/domain"
	"annotate/internal/geom"
	applog "annotate/internal/log"
	"annotate/internal/raster"
	"annotate/internal/render"
	"annotate/internal/storage"
	"annotate/internal/store"
	"annotate/internal/undo"

	"github.com/golang/geo/r2"
)

// DragThreshold is the pointer travel in viewport px after which a press counts as a drag.
const DragThreshold = 2.0

// DefaultWheelZoomRate converts accumulated wheel pixels to a zoom exponent.
const DefaultWheelZoomRate = 0.0015

// Mode is the active tool.
type Mode int

const (
	ModeSelect Mode = iota
	ModeDrawPoint
	ModeDrawLine
	ModeDrawRect
)

func (m Mode) String() string {
	switch m {
	case ModeDrawPoint:
		return "point"
	case ModeDrawLine:
		return "line"
	case ModeDrawRect:
		return "rect"
	default:
		return "select"
	}
}

// ParseMode accepts the String forms.
func ParseMode(s string) (Mode, error) {
	for _, m := range []Mode{ModeSelect, ModeDrawPoint, ModeDrawLine, ModeDrawRect} {
		if strings.EqualFold(s, m.String()) {
			return m, nil
		}
	}
	return ModeSelect, fmt.Errorf("unknown mode %q", s)
}

// Options configures a session. Zero values pick defaults.
type Options struct {
	MaxScale        float64
	HistoryCapacity int
	WheelZoomRate   float64
	NeutralColor    string
	// TagColor is used by AddTag when no colour is given; empty cycles the palette.
	TagColor     string
	ViewW, ViewH float64
}

type pendingDraw struct {
	anchor  r2.Point // image space
	cursor  r2.Point // image space, constrained when requested
	press   r2.Point // client position of the anchoring press
	pressed bool     // the anchoring button is still down
}

type gestureKind int

const (
	gestureNone gestureKind = iota
	gestureDrag
	gesturePan
	gesturePinch
)

type gesture struct {
	kind gestureKind

	// drag
	id       string
	part     domain.Part
	handle   bool
	orig     domain.Geometry
	start    r2.Point // client
	recorded bool

	// pan
	last r2.Point

	// pinch
	startDist  float64
	startScale float64
	mid        r2.Point // client midpoint at gesture start
	anchor     r2.Point // image point under mid
}

// Session owns the annotation store and all interaction state for one image.
// It is not safe for concurrent use; events must be delivered from one goroutine.
type Session struct {
	store   *store.Store
	history *undo.History[store.State]
	view    geom.Viewport
	raster  raster.Source
	host    Host
	opt     Options
	log     *slog.Logger

	mode      Mode
	selection []string
	primary   string
	hover     string
	draw      *pendingDraw
	gesture   gesture
	touches   map[int]r2.Point

	wheelAccum   float64
	wheelPivot   r2.Point
	wheelPending bool
}

// New returns a session without an image. Call Reset to load one.
func New(host Host, opt Options) *Session {
	if host == nil {
		host = NopHost{}
	}
	if opt.WheelZoomRate <= 0 {
		opt.WheelZoomRate = DefaultWheelZoomRate
	}
	if opt.NeutralColor == "" {
		opt.NeutralColor = render.DefaultNeutralColor
	}
	s := &Session{
		store:   store.New(),
		history: undo.New[store.State](opt.HistoryCapacity),
		host:    host,
		opt:     opt,
		log:     applog.WithComponent("interact"),
		touches: map[int]r2.Point{},
	}
	s.view = geom.Viewport{Scale: 1, ViewW: opt.ViewW, ViewH: opt.ViewH, MaxScale: opt.MaxScale}
	return s
}

// Reset starts over for a new image: empty store and history, fitted viewport.
func (s *Session) Reset(src raster.Source) {
	s.store.Reset()
	s.history.Clear()
	s.raster = src
	w, h := 0, 0
	if src != nil {
		w, h = src.Size()
	}
	s.view = geom.NewViewport(float64(w), float64(h), s.opt.ViewW, s.opt.ViewH)
	if s.opt.MaxScale > 0 {
		s.view.MaxScale = s.opt.MaxScale
	}
	s.clearTransient()
	s.mode = ModeSelect
	s.log.Info("session reset", slog.Int("width", w), slog.Int("height", h), slog.Float64("scale", s.view.Scale))
	s.host.ScrollTo(s.view.Scroll)
	s.host.StoreChanged()
	s.notifySelection()
	s.host.Redraw()
}

func (s *Session) clearTransient() {
	s.selection = nil
	s.primary = ""
	s.hover = ""
	s.draw = nil
	s.gesture = gesture{}
	clear(s.touches)
	s.wheelAccum = 0
	s.wheelPending = false
}

// Accessors.

func (s *Session) Mode() Mode                { return s.mode }
func (s *Session) Store() *store.Store       { return s.store }
func (s *Session) Markers() []domain.Marker  { return s.store.Markers() }
func (s *Session) Tags() []domain.Tag        { return s.store.Tags() }
func (s *Session) Viewport() geom.Viewport   { return s.view }
func (s *Session) Raster() raster.Source     { return s.raster }
func (s *Session) Selection() []string       { return slices.Clone(s.selection) }
func (s *Session) Primary() string           { return s.primary }
func (s *Session) Hovered() string           { return s.hover }
func (s *Session) CanUndo() bool             { return s.history.CanUndo() }
func (s *Session) CanRedo() bool             { return s.history.CanRedo() }
func (s *Session) Drawing() bool             { return s.draw != nil }
func (s *Session) IsSelected(id string) bool { return slices.Contains(s.selection, id) }
func (s *Session) HistoryDepth() (undo, redo int) {
	u, r, _ := s.history.Stats()
	return u, r
}

// SetMode switches the tool, dropping any pending draw or gesture.
func (s *Session) SetMode(m Mode) {
	s.endGesture()
	s.draw = nil
	s.mode = m
	s.log.Debug("mode", slog.String("mode", m.String()))
	s.host.Redraw()
}

// Resize updates the view size and re-clamps the scale.
func (s *Session) Resize(viewW, viewH float64) {
	s.opt.ViewW, s.opt.ViewH = viewW, viewH
	s.view.Resize(viewW, viewH)
	s.host.Redraw()
}

// ZoomAt multiplies the scale keeping the image point under pivot (client space) fixed.
func (s *Session) ZoomAt(factor float64, pivot r2.Point) bool {
	if !s.view.ZoomAt(factor, pivot) {
		return false
	}
	s.host.ScrollTo(s.view.Scroll)
	s.host.Redraw()
	return true
}

// Frame returns the display list for the renderer and flushes any coalesced wheel zoom.
func (s *Session) Frame() render.Frame {
	s.flushWheel()
	sel := make(map[string]bool, len(s.selection))
	for _, id := range s.selection {
		sel[id] = true
	}
	var pv *render.Preview
	if s.draw != nil {
		k := domain.KindLine
		if s.mode == ModeDrawRect {
			k = domain.KindRect
		}
		pv = &render.Preview{Kind: k, Anchor: s.draw.anchor, Cursor: s.draw.cursor}
	}
	return render.Build(render.Input{
		Markers:  s.store.Markers(),
		Tags:     s.store.Tags(),
		Hidden:   s.store.HiddenFunc(),
		Selected: sel,
		Primary:  s.primary,
		Hovered:  s.hover,
		Preview:  pv,
		Scale:    s.view.Scale,
		Neutral:  s.opt.NeutralColor,
	})
}

// Inspect reads the pixel under a client position.
func (s *Session) Inspect(client r2.Point) Probe {
	p := s.view.ClientToImage(client)
	pr := Probe{Image: p}
	pr.Pixel.X, pr.Pixel.Y = int(math.Floor(p.X)), int(math.Floor(p.Y))
	if s.raster == nil {
		return pr
	}
	w, h := s.raster.Size()
	pr.InBounds = pr.Pixel.X >= 0 && pr.Pixel.Y >= 0 && pr.Pixel.X < w && pr.Pixel.Y < h
	if c, err := s.raster.At(pr.Pixel.X, pr.Pixel.Y); err == nil {
		pr.Color, pr.HasColor = c, true
	}
	return pr
}

// Analyze runs an analysis tool over the current markers and raster.
func (s *Session) Analyze(tool, tagID string) (*analysis.Table, error) {
	t, err := analysis.Run(tool, s.store.Markers(), analysis.Options{TagID: tagID, Raster: s.raster})
	if err != nil {
		s.log.Warn("tool failed", slog.String("tool", tool), slog.Any("err", err))
	}
	return t, err
}

// Selection.

func (s *Session) setSelection(ids []string, primary string) {
	s.selection = ids
	s.primary = primary
	s.notifySelection()
	s.host.Redraw()
}

func (s *Session) notifySelection() {
	s.host.SelectionChanged(slices.Clone(s.selection), s.primary)
}

// Select replaces the selection. Unknown ids are dropped; the last id becomes primary.
func (s *Session) Select(ids ...string) {
	var keep []string
	for _, id := range ids {
		if _, ok := s.store.Marker(id); ok && !slices.Contains(keep, id) {
			keep = append(keep, id)
		}
	}
	primary := ""
	if len(keep) > 0 {
		primary = keep[len(keep)-1]
	}
	s.setSelection(keep, primary)
}

func (s *Session) ClearSelection() {
	if len(s.selection) == 0 && s.primary == "" {
		return
	}
	s.setSelection(nil, "")
}

// SelectAll selects every visible marker.
func (s *Session) SelectAll() {
	var ids []string
	for _, m := range s.visible() {
		ids = append(ids, m.ID)
	}
	primary := s.primary
	if !slices.Contains(ids, primary) {
		primary = ""
		if len(ids) > 0 {
			primary = ids[len(ids)-1]
		}
	}
	s.setSelection(ids, primary)
}

func (s *Session) toggleSelected(id string) {
	if i := slices.Index(s.selection, id); i >= 0 {
		sel := slices.Delete(slices.Clone(s.selection), i, i+1)
		primary := s.primary
		if primary == id {
			primary = ""
			if len(sel) > 0 {
				primary = sel[len(sel)-1]
			}
		}
		s.setSelection(sel, primary)
		return
	}
	s.setSelection(append(slices.Clone(s.selection), id), id)
}

// Cycle moves the primary selection through visible markers in creation order, wrapping.
func (s *Session) Cycle(backward bool) {
	vis := s.visible()
	if len(vis) == 0 {
		return
	}
	i := slices.IndexFunc(vis, func(m domain.Marker) bool { return m.ID == s.primary })
	switch {
	case i < 0 && backward:
		i = len(vis) - 1
	case i < 0:
		i = 0
	case backward:
		i = (i - 1 + len(vis)) % len(vis)
	default:
		i = (i + 1) % len(vis)
	}
	s.setSelection([]string{vis[i].ID}, vis[i].ID)
}

func (s *Session) visible() []domain.Marker {
	return slices.DeleteFunc(s.store.Markers(), s.store.IsHidden)
}

// pruneSelection drops ids that no longer exist or are hidden.
func (s *Session) pruneSelection() {
	sel := slices.DeleteFunc(slices.Clone(s.selection), func(id string) bool {
		m, ok := s.store.Marker(id)
		return !ok || s.store.IsHidden(m)
	})
	primary := s.primary
	if !slices.Contains(sel, primary) {
		primary = ""
		if len(sel) > 0 {
			primary = sel[len(sel)-1]
		}
	}
	if len(sel) != len(s.selection) || primary != s.primary {
		s.setSelection(sel, primary)
	}
}

// Commands. Each mutation records exactly one history entry.

// mutate validates, records a snapshot and applies fn. A failing fn is reverted.
func (s *Session) mutate(op string, fn func() error) error {
	s.history.Record(s.store)
	if err := fn(); err != nil {
		s.history.Revert(s.store)
		return fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("commit", slog.String("op", op), slog.Int("markers", s.store.Len()))
	s.pruneSelection()
	s.host.StoreChanged()
	s.host.Redraw()
	return nil
}

func (s *Session) requireMarker(id string) error {
	if _, ok := s.store.Marker(id); !ok {
		return fmt.Errorf("marker %s: %w", id, store.ErrNotFound)
	}
	return nil
}

func (s *Session) requireTag(id string) error {
	if _, ok := s.store.Tag(id); !ok {
		return fmt.Errorf("tag %s: %w", id, store.ErrNotFound)
	}
	return nil
}

// CreateMarker adds a marker and makes it the primary selection.
// Degenerate geometry is rejected with store.ErrDegenerate and nothing is recorded.
func (s *Session) CreateMarker(g domain.Geometry, name string) (string, error) {
	if g == nil || g.Degenerate() {
		return "", fmt.Errorf("create marker: %w", store.ErrDegenerate)
	}
	var id string
	err := s.mutate("create", func() error {
		var err error
		id, err = s.store.CreateMarker(g, name)
		return err
	})
	if err != nil {
		return "", err
	}
	s.setSelection([]string{id}, id)
	return id, nil
}

func (s *Session) RenameMarker(id, name string) error {
	if err := s.requireMarker(id); err != nil {
		return err
	}
	return s.mutate("rename", func() error { return s.store.RenameMarker(id, name) })
}

// SetMarkerGeometry replaces a marker's geometry as one history entry.
func (s *Session) SetMarkerGeometry(id string, g domain.Geometry) error {
	m, ok := s.store.Marker(id)
	if !ok {
		return fmt.Errorf("marker %s: %w", id, store.ErrNotFound)
	}
	if g == nil || g.Kind() != m.Kind() {
		return fmt.Errorf("marker %s: %w", id, store.ErrKindMismatch)
	}
	return s.mutate("geometry", func() error { return s.store.SetMarkerGeometry(id, g) })
}

func (s *Session) ToggleMarkerTag(id, tagID string) error {
	if err := errors.Join(s.requireMarker(id), s.requireTag(tagID)); err != nil {
		return err
	}
	return s.mutate("toggle tag", func() error { return s.store.ToggleMarkerTag(id, tagID) })
}

// DeleteSelected removes every selected marker as one history entry and returns the count.
func (s *Session) DeleteSelected() int {
	if len(s.selection) == 0 {
		return 0
	}
	ids := slices.Clone(s.selection)
	n := 0
	_ = s.mutate("delete", func() error {
		n = s.store.DeleteMarkers(ids)
		return nil
	})
	return n
}

// ClearAll removes all markers. Tags are kept.
func (s *Session) ClearAll() {
	if s.store.Len() == 0 {
		return
	}
	_ = s.mutate("clear", func() error {
		s.store.Clear()
		return nil
	})
}

// AddTag creates a tag; an empty colour falls back to Options.TagColor, then the palette.
func (s *Session) AddTag(name, color string) string {
	if color == "" {
		color = s.opt.TagColor
	}
	var id string
	_ = s.mutate("add tag", func() error {
		id = s.store.AddTag(name, color)
		return nil
	})
	return id
}

func (s *Session) RenameTag(id, name string) error {
	if err := s.requireTag(id); err != nil {
		return err
	}
	return s.mutate("rename tag", func() error { return s.store.RenameTag(id, name) })
}

func (s *Session) SetTagColor(id, color string) error {
	if err := s.requireTag(id); err != nil {
		return err
	}
	return s.mutate("tag color", func() error { return s.store.SetTagColor(id, color) })
}

// DeleteTag removes the tag and detaches it from every marker.
func (s *Session) DeleteTag(id string) error {
	if err := s.requireTag(id); err != nil {
		return err
	}
	return s.mutate("delete tag", func() error { return s.store.DeleteTag(id) })
}

// ToggleActiveTag changes the tags given to new markers. Not recorded in history.
func (s *Session) ToggleActiveTag(id string) error {
	return s.store.ToggleActiveTag(id)
}

// ToggleHiddenTag shows or hides markers carrying the tag. Not recorded in history.
func (s *Session) ToggleHiddenTag(id string) error {
	if err := s.store.ToggleHiddenTag(id); err != nil {
		return err
	}
	s.pruneSelection()
	s.host.Redraw()
	return nil
}

// ImportDocument replaces markers and tags as one history entry. The document is fully
// resolved first; on error the store is untouched.
func (s *Session) ImportDocument(doc *storage.Document) error {
	markers, tags, err := doc.Build()
	if err != nil {
		return fmt.Errorf("import: %w", err)
	}
	s.endGesture()
	s.draw = nil
	if err := s.mutate("import", func() error {
		s.store.Replace(markers, tags)
		return nil
	}); err != nil {
		return err
	}
	s.setSelection(nil, "")
	return nil
}

// ImportJSON decodes, validates and imports a serialized document.
func (s *Session) ImportJSON(data []byte) error {
	doc, err := storage.Decode(data)
	if err != nil {
		return fmt.Errorf("import: %w", err)
	}
	return s.ImportDocument(doc)
}

// Export serializes the current markers and tags.
func (s *Session) Export(image string, now time.Time) (*storage.Document, error) {
	return storage.Encode(s.store.Markers(), s.store.Tags(), image, now)
}

// Undo restores the previous state and clears the selection.
func (s *Session) Undo() bool { return s.restore("undo", s.history.Undo) }

// Redo reapplies an undone state and clears the selection.
func (s *Session) Redo() bool { return s.restore("redo", s.history.Redo) }

func (s *Session) restore(op string, fn func(undo.Source[store.State]) bool) bool {
	s.endGesture()
	s.draw = nil
	if !fn(s.store) {
		return false
	}
	s.log.Info(op, slog.Int("markers", s.store.Len()))
	s.hover = ""
	s.setSelection(nil, "")
	s.host.StoreChanged()
	return true
}
