/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package export

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"annotate/internal/domain"
	"annotate/internal/render"
)

// SVGRenderer is a render.Renderer writing every frame to Path.
type SVGRenderer struct {
	Path string
	Opt  OverlayOptions
}

// Render implements render.Renderer.
func (r SVGRenderer) Render(f render.Frame) error { return WriteSVGOverlay(r.Path, f, r.Opt) }

// WriteSVGOverlay writes the frame as SVG in image coordinates, sized opt.Width x opt.Height.
func WriteSVGOverlay(path string, f render.Frame, opt OverlayOptions) error {
	data, err := BuildSVG(f, opt)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("ensure out dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write svg: %w", err)
	}
	return nil
}

// BuildSVG returns the SVG document for the frame.
func BuildSVG(f render.Frame, opt OverlayOptions) ([]byte, error) {
	var buf bytes.Buffer
	var werr error
	wf := func(format string, args ...any) {
		if werr != nil {
			return
		}
		_, werr = fmt.Fprintf(&buf, format, args...)
	}

	w, h := max(opt.Width, 1), max(opt.Height, 1)
	wf("<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n")
	wf("<svg xmlns=\"http://www.w3.org/2000/svg\" xmlns:xlink=\"http://www.w3.org/1999/xlink\" version=\"1.1\" width=\"%dpx\" height=\"%dpx\" viewBox=\"0 0 %d %d\">\n", w, h, w, h)
	if opt.ImageHref != "" {
		wf("  <image x=\"0\" y=\"0\" width=\"%d\" height=\"%d\" xlink:href=\"%s\"/>\n", w, h, escAttr(opt.ImageHref))
	}

	for _, it := range f.Items {
		col := domain.SanitizeColor(it.Color)
		sw := 1.0
		if it.Selected {
			sw = 2
		}
		wf("  <g id=\"%s\" data-kind=\"%s\">\n", escAttr(it.Marker.ID), it.Marker.Kind())
		switch g := it.Marker.Geom.(type) {
		case domain.PointGeom:
			wf("    <circle cx=\"%g\" cy=\"%g\" r=\"%d\" fill=\"%s\" stroke=\"none\"/>\n", g.P.X, g.P.Y, 3, col)
		case domain.LineGeom:
			wf("    <line x1=\"%g\" y1=\"%g\" x2=\"%g\" y2=\"%g\" stroke=\"%s\" stroke-width=\"%g\"/>\n", g.P1.X, g.P1.Y, g.P2.X, g.P2.Y, col, sw)
		case domain.RectGeom:
			r := domain.NewRect(g.P1, g.P2)
			wf("    <rect x=\"%g\" y=\"%g\" width=\"%g\" height=\"%g\" fill=\"none\" stroke=\"%s\" stroke-width=\"%g\"/>\n", r.P1.X, r.P1.Y, r.Width(), r.Height(), col, sw)
		}
		if opt.Labels && it.Marker.Name != "" {
			p := it.Marker.Geom.Points()[0]
			wf("    <text x=\"%g\" y=\"%g\" font-family=\"Helvetica, Arial, sans-serif\" font-size=\"12\" fill=\"%s\">%s</text>\n", p.X+pointArm+2, p.Y-pointArm-2, col, escText(it.Marker.Name))
		}
		wf("  </g>\n")
	}
	if pv := f.Preview; pv != nil {
		if pv.Kind == domain.KindRect {
			r := domain.NewRect(pv.Anchor, pv.Cursor)
			wf("  <rect class=\"preview\" x=\"%g\" y=\"%g\" width=\"%g\" height=\"%g\" fill=\"none\" stroke=\"#ffffff\" stroke-dasharray=\"4 2\"/>\n", r.P1.X, r.P1.Y, r.Width(), r.Height())
		} else {
			wf("  <line class=\"preview\" x1=\"%g\" y1=\"%g\" x2=\"%g\" y2=\"%g\" stroke=\"#ffffff\" stroke-dasharray=\"4 2\"/>\n", pv.Anchor.X, pv.Anchor.Y, pv.Cursor.X, pv.Cursor.Y)
		}
	}
	wf("</svg>\n")
	if werr != nil {
		return nil, fmt.Errorf("build svg: %w", werr)
	}
	return buf.Bytes(), nil
}

func escAttr(s string) string {
	r := strings.NewReplacer("&", "&amp;", "\"", "&quot;", "<", "&lt;", "\n", " ", "\r", "")
	return r.Replace(s)
}

func escText(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	return r.Replace(s)
}
