/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"annotate/internal/interact"
	"annotate/internal/raster"
	"annotate/internal/storage"

	"github.com/golang/geo/r2"
)

// replayEvent is one JSON line of a recording. Coordinates are client space.
type replayEvent struct {
	Type    string        `json:"type"`
	X       float64       `json:"x"`
	Y       float64       `json:"y"`
	Button  int           `json:"button"`
	Mods    []string      `json:"mods"`
	Key     string        `json:"key"`
	DX      float64       `json:"dx"`
	DY      float64       `json:"dy"`
	Unit    string        `json:"unit"` // wheel: pixels, lines, pages
	Mode    string        `json:"mode"`
	Touches []replayTouch `json:"touches"`
	Name    string        `json:"name"`
	Tag     string        `json:"tag"`
	Color   string        `json:"color"`
	W       float64       `json:"w"`
	H       float64       `json:"h"`
}

type replayTouch struct {
	ID int     `json:"id"`
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
}

// replayHost journals every committed change and emulates animation frames.
type replayHost struct {
	interact.NopHost
	ctx      context.Context
	session  *interact.Session
	journal  *storage.Journal
	image    string
	ready    bool
	frame    bool
	appended int
	log      *slog.Logger
}

func (h *replayHost) RequestFrame() { h.frame = true }

func (h *replayHost) StoreChanged() {
	if !h.ready || h.journal == nil {
		return
	}
	doc, err := h.session.Export(h.image, time.Now())
	if err != nil {
		h.log.Warn("journal encode failed", slog.Any("err", err))
		return
	}
	if _, err := h.journal.Append(h.ctx, h.image, doc, time.Now()); err != nil {
		h.log.Warn("journal append failed", slog.Any("err", err))
		return
	}
	h.appended++
}

type replayCmd struct {
	Events    string `arg:"" help:"Recorded events, one JSON object per line." type:"path"`
	Image     string `required:"" help:"Image the events were recorded on." type:"path"`
	Doc       string `help:"Annotation document loaded before the first event." type:"path"`
	Output    string `short:"o" help:"Write the resulting document here; stdout when empty." type:"path"`
	View      string `default:"1280x800" help:"Viewport size as WxH."`
	NoJournal bool   `help:"Do not record changes in the autosave journal."`
}

func (c *replayCmd) Run(env *runEnv) error {
	l := env.log("replay")
	viewW, viewH, err := parseSize(c.View)
	if err != nil {
		return err
	}
	src, err := raster.Load(c.Image)
	if err != nil {
		return err
	}
	imageName := filepath.Base(c.Image)

	host := &replayHost{ctx: env.ctx, image: imageName, log: l}
	if env.cfg.Journal.Enabled && !c.NoJournal {
		j, err := storage.OpenJournal(env.ctx, filepath.Dir(c.Image))
		if err != nil {
			return err
		}
		defer func() { _ = j.Close() }()
		host.journal = j
	}

	s := interact.New(host, interact.Options{
		MaxScale:        env.cfg.Viewer.MaxScale,
		HistoryCapacity: env.cfg.Viewer.HistoryCapacity,
		WheelZoomRate:   env.cfg.Viewer.WheelZoomRate,
		NeutralColor:    env.cfg.Tags.NeutralColor,
		TagColor:        env.cfg.Tags.DefaultColor,
		ViewW:           viewW,
		ViewH:           viewH,
	})
	host.session = s
	s.Reset(src)
	if c.Doc != "" {
		data, err := os.ReadFile(c.Doc)
		if err != nil {
			return err
		}
		if err := s.ImportJSON(data); err != nil {
			return err
		}
	}
	host.ready = true
	env.target.Path = c.Output
	env.target.Snapshot = func() (*storage.Document, error) { return s.Export(imageName, time.Now()) }

	f, err := os.Open(c.Events)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	n, lineNo := 0, 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		var ev replayEvent
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			return fmt.Errorf("%s:%d: %w", c.Events, lineNo, err)
		}
		if err := applyEvent(s, host, ev); err != nil {
			l.Warn("event rejected", slog.Int("line", lineNo), slog.String("type", ev.Type), slog.Any("err", err))
		}
		n++
	}
	if err := sc.Err(); err != nil {
		return err
	}
	if host.frame {
		s.Frame()
	}

	doc, err := s.Export(imageName, time.Now())
	if err != nil {
		return err
	}
	if host.journal != nil {
		if _, err := host.journal.Prune(env.ctx, imageName, env.cfg.Journal.KeepLast); err != nil {
			l.Warn("journal prune failed", slog.Any("err", err))
		}
	}
	l.Info("replay done", slog.Int("events", n), slog.Int("markers", len(doc.Annotations)), slog.Int("journaled", host.appended))
	if c.Output == "" {
		data, err := doc.Marshal()
		if err != nil {
			return err
		}
		_, err = env.out.Write(data)
		return err
	}
	if err := storage.SaveFile(c.Output, doc); err != nil {
		return err
	}
	_, err = fmt.Fprintf(env.out, "replayed %d events: %d markers, %d journal entries\n", n, len(doc.Annotations), host.appended)
	return err
}

func applyEvent(s *interact.Session, host *replayHost, ev replayEvent) error {
	pos := r2.Point{X: ev.X, Y: ev.Y}
	mods := parseMods(ev.Mods)
	switch ev.Type {
	case "mode":
		m, err := interact.ParseMode(ev.Mode)
		if err != nil {
			return err
		}
		s.SetMode(m)
	case "down":
		s.PointerDown(interact.PointerEvent{Pos: pos, Button: interact.Button(ev.Button), Mods: mods})
	case "move":
		s.PointerMove(interact.PointerEvent{Pos: pos, Button: interact.Button(ev.Button), Mods: mods})
	case "up":
		s.PointerUp(interact.PointerEvent{Pos: pos, Button: interact.Button(ev.Button), Mods: mods})
	case "key":
		s.Key(interact.KeyEvent{Key: ev.Key, Mods: mods})
	case "wheel":
		s.Wheel(interact.WheelEvent{Pos: pos, DX: ev.DX, DY: ev.DY, Mode: wheelMode(ev.Unit)})
	case "frame":
		host.frame = false
		s.Frame()
	case "touchstart":
		s.TouchStart(touches(ev.Touches))
	case "touchmove":
		s.TouchMove(touches(ev.Touches))
	case "touchend":
		s.TouchEnd(touches(ev.Touches))
	case "resize":
		s.Resize(ev.W, ev.H)
	case "undo":
		s.Undo()
	case "redo":
		s.Redo()
	case "delete":
		s.DeleteSelected()
	case "clear":
		s.ClearAll()
	case "select":
		for _, m := range s.Markers() {
			if m.Name == ev.Name {
				s.Select(m.ID)
				return nil
			}
		}
		return fmt.Errorf("no marker named %q", ev.Name)
	case "rename":
		return s.RenameMarker(s.Primary(), ev.Name)
	case "add_tag":
		s.AddTag(ev.Name, ev.Color)
	default:
		return tagEvent(s, ev)
	}
	return nil
}

// tagEvent handles the events addressing a tag by name.
func tagEvent(s *interact.Session, ev replayEvent) error {
	t, ok := s.Store().TagByName(ev.Tag)
	if !ok {
		return fmt.Errorf("%s: unknown tag %q", ev.Type, ev.Tag)
	}
	switch ev.Type {
	case "toggle_tag":
		return s.ToggleMarkerTag(s.Primary(), t.ID)
	case "active_tag":
		return s.ToggleActiveTag(t.ID)
	case "hide_tag":
		return s.ToggleHiddenTag(t.ID)
	case "rename_tag":
		return s.RenameTag(t.ID, ev.Name)
	case "tag_color":
		return s.SetTagColor(t.ID, ev.Color)
	case "delete_tag":
		return s.DeleteTag(t.ID)
	}
	return fmt.Errorf("unknown event type %q", ev.Type)
}

func parseMods(names []string) interact.Mods {
	var m interact.Mods
	for _, n := range names {
		switch strings.ToLower(n) {
		case "shift":
			m |= interact.ModShift
		case "ctrl", "control":
			m |= interact.ModCtrl
		case "alt":
			m |= interact.ModAlt
		case "meta", "cmd":
			m |= interact.ModMeta
		}
	}
	return m
}

func wheelMode(unit string) interact.WheelMode {
	switch unit {
	case "lines":
		return interact.WheelLines
	case "pages":
		return interact.WheelPages
	}
	return interact.WheelPixels
}

func touches(ts []replayTouch) []interact.Touch {
	out := make([]interact.Touch, len(ts))
	for i, t := range ts {
		out[i] = interact.Touch{ID: t.ID, Pos: r2.Point{X: t.X, Y: t.Y}}
	}
	return out
}

func parseSize(s string) (float64, float64, error) {
	w, h, ok := strings.Cut(strings.ToLower(s), "x")
	if !ok {
		return 0, 0, fmt.Errorf("size %q: want WxH", s)
	}
	fw, err := strconv.ParseFloat(w, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("size %q: %w", s, err)
	}
	fh, err := strconv.ParseFloat(h, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("size %q: %w", s, err)
	}
	if fw <= 0 || fh <= 0 {
		return 0, 0, fmt.Errorf("size %q: must be positive", s)
	}
	return fw, fh, nil
}
