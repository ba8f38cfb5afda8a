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
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"annotate/internal/export"
	"annotate/internal/raster"
	"annotate/internal/render"
	"annotate/internal/store"
)

type renderCmd struct {
	Doc    docFlags `embed:""`
	Output string   `short:"o" required:"" help:"Output file; the extension selects PNG or SVG." type:"path"`
	Labels bool     `help:"Draw marker names."`
	Hidden []string `help:"Tag names to hide."`
}

func (c *renderCmd) Run(env *runEnv) error {
	doc, err := loadDocument(c.Doc.Doc)
	if err != nil {
		return err
	}
	img := doc.imagePath(c.Doc.Image)
	if img == "" {
		return fmt.Errorf("no image: pass --image or set metadata.image")
	}

	st := store.New()
	st.Replace(doc.markers, doc.tags)
	for _, name := range c.Hidden {
		id, err := doc.tagID(name)
		if err != nil {
			return err
		}
		if !st.IsTagHidden(id) {
			_ = st.ToggleHiddenTag(id)
		}
	}
	frame := render.Build(render.Input{
		Markers: st.Markers(),
		Tags:    st.Tags(),
		Hidden:  st.HiddenFunc(),
		Scale:   1,
		Neutral: env.cfg.Tags.NeutralColor,
	})

	opt := export.OverlayOptions{Labels: c.Labels}
	var r render.Renderer
	switch strings.ToLower(filepath.Ext(c.Output)) {
	case ".svg":
		w, h, err := raster.DecodeConfig(img)
		if err != nil {
			return err
		}
		opt.Width, opt.Height = w, h
		opt.ImageHref = img
		if rel, err := filepath.Rel(filepath.Dir(c.Output), img); err == nil {
			opt.ImageHref = filepath.ToSlash(rel)
		}
		r = export.SVGRenderer{Path: c.Output, Opt: opt}
	case ".png":
		src, err := raster.Load(img)
		if err != nil {
			return err
		}
		base, _ := raster.Image(src)
		r = export.PNGRenderer{Path: c.Output, Base: base, Opt: opt}
	default:
		return fmt.Errorf("unsupported output %q: use .png or .svg", c.Output)
	}
	if err := r.Render(frame); err != nil {
		return err
	}
	env.log("render").Info("overlay written", slog.String("path", c.Output), slog.Int("items", len(frame.Items)))
	_, err = fmt.Fprintln(env.out, "wrote", c.Output)
	return err
}
