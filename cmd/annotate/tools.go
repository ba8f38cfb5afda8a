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
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"annotate/internal/analysis"
	"annotate/internal/domain"
	"annotate/internal/export"
	"annotate/internal/raster"
	"annotate/internal/storage"

	"golang.org/x/sync/errgroup"
)

// docFlags are shared by every command that reads an annotation document.
type docFlags struct {
	Doc   string `arg:"" help:"Annotation document (JSON)." type:"path"`
	Image string `help:"Image file; defaults to the document's metadata.image next to the document." type:"path"`
}

type toolFlags struct {
	Tag    string `help:"Only analyse markers carrying this tag name."`
	Output string `short:"o" help:"Output file; stdout when empty." type:"path"`
	Format string `help:"Table format: csv or json. Defaults to the configured export format."`
}

// loaded is a decoded document resolved into markers and tags.
type loaded struct {
	path    string
	doc     *storage.Document
	markers []domain.Marker
	tags    []domain.Tag
}

func loadDocument(path string) (*loaded, error) {
	doc, err := storage.OpenFile(path)
	if err != nil {
		return nil, err
	}
	markers, tags, err := doc.Build()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &loaded{path: path, doc: doc, markers: markers, tags: tags}, nil
}

// tagID resolves a tag name; an empty name means no filter.
func (l *loaded) tagID(name string) (string, error) {
	if name == "" {
		return "", nil
	}
	for _, t := range l.tags {
		if t.Name == name {
			return t.ID, nil
		}
	}
	return "", fmt.Errorf("unknown tag %q", name)
}

// imagePath returns override, or metadata.image resolved against the document directory.
func (l *loaded) imagePath(override string) string {
	if override != "" {
		return override
	}
	img := l.doc.Metadata.Image
	if img == "" {
		return ""
	}
	if filepath.IsAbs(img) {
		return img
	}
	return filepath.Join(filepath.Dir(l.path), img)
}

// baseName is the image name used for output files, falling back to the document name.
func (l *loaded) baseName(override string) string {
	if p := l.imagePath(override); p != "" {
		return p
	}
	return l.path
}

// loadRaster decodes the image. A missing or unreadable image yields nil so that
// tools not needing pixels still run.
func loadRaster(env *runEnv, path string) raster.Source {
	if path == "" {
		return nil
	}
	src, err := raster.Load(path)
	if err != nil {
		env.log("raster").Warn("image unavailable", slog.String("path", path), slog.Any("err", err))
		return nil
	}
	return src
}

func (e *runEnv) format(f string) string {
	if f != "" {
		return f
	}
	if e.cfg.Export.Format != "" {
		return e.cfg.Export.Format
	}
	return export.FormatCSV
}

func runTool(env *runEnv, tool string, d docFlags, f toolFlags) error {
	l := env.log(tool)
	doc, err := loadDocument(d.Doc)
	if err != nil {
		return err
	}
	tagID, err := doc.tagID(f.Tag)
	if err != nil {
		return err
	}
	opts := analysis.Options{TagID: tagID}
	if tool == analysis.ToolProfile {
		opts.Raster = loadRaster(env, doc.imagePath(d.Image))
	}
	t, err := analysis.Run(tool, doc.markers, opts)
	if err != nil {
		return err
	}
	format := env.format(f.Format)
	if f.Output == "" {
		return export.WriteTable(env.out, t, format)
	}
	if err := export.WriteTableFile(f.Output, t, format); err != nil {
		return err
	}
	l.Info("table written", slog.String("path", f.Output), slog.Int("rows", len(t.Rows)))
	return nil
}

type extractCmd struct {
	Doc   docFlags  `embed:""`
	Flags toolFlags `embed:""`
}

func (c *extractCmd) Run(env *runEnv) error {
	return runTool(env, analysis.ToolExtract, c.Doc, c.Flags)
}

type measureCmd struct {
	Doc   docFlags  `embed:""`
	Flags toolFlags `embed:""`
}

func (c *measureCmd) Run(env *runEnv) error {
	return runTool(env, analysis.ToolMeasure, c.Doc, c.Flags)
}

type profileCmd struct {
	Doc   docFlags  `embed:""`
	Flags toolFlags `embed:""`
}

func (c *profileCmd) Run(env *runEnv) error {
	return runTool(env, analysis.ToolProfile, c.Doc, c.Flags)
}

type angleCmd struct {
	Doc   docFlags  `embed:""`
	Flags toolFlags `embed:""`
}

func (c *angleCmd) Run(env *runEnv) error { return runTool(env, analysis.ToolAngle, c.Doc, c.Flags) }

type distancesCmd struct {
	Doc   docFlags  `embed:""`
	Flags toolFlags `embed:""`
}

func (c *distancesCmd) Run(env *runEnv) error {
	return runTool(env, analysis.ToolDistances, c.Doc, c.Flags)
}

type areaCmd struct {
	Doc   docFlags  `embed:""`
	Flags toolFlags `embed:""`
}

func (c *areaCmd) Run(env *runEnv) error { return runTool(env, analysis.ToolArea, c.Doc, c.Flags) }

// batch is the outcome of running every tool: tables in tool order and skipped tools.
type batch struct {
	tables  []*analysis.Table
	skipped []error
}

// runAll runs the tools concurrently. Precondition failures are collected, not returned.
func runAll(env *runEnv, doc *loaded, opts analysis.Options, each func(*analysis.Table) error) (*batch, error) {
	results := make([]*analysis.Table, len(analysis.Tools))
	var mu sync.Mutex
	var skipped []error

	g, gctx := errgroup.WithContext(env.ctx)
	g.SetLimit(runtime.NumCPU())
	for i, tool := range analysis.Tools {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			t, err := analysis.Run(tool, doc.markers, opts)
			var te *analysis.ToolError
			if errors.As(err, &te) {
				mu.Lock()
				skipped = append(skipped, te)
				mu.Unlock()
				return nil
			}
			if err != nil {
				return err
			}
			results[i] = t
			if each != nil {
				return each(t)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	b := &batch{skipped: skipped}
	for _, t := range results {
		if t != nil {
			b.tables = append(b.tables, t)
		}
	}
	return b, nil
}

type allCmd struct {
	Doc    docFlags `embed:""`
	Tag    string   `help:"Only analyse markers carrying this tag name."`
	OutDir string   `help:"Output directory; defaults to the configured out_dir, then the document directory." type:"path"`
	Format string   `help:"Table format: csv or json."`
}

func (c *allCmd) Run(env *runEnv) error {
	l := env.log("all")
	doc, err := loadDocument(c.Doc.Doc)
	if err != nil {
		return err
	}
	tagID, err := doc.tagID(c.Tag)
	if err != nil {
		return err
	}
	outDir := c.OutDir
	if outDir == "" {
		outDir = env.cfg.Export.OutDir
	}
	if outDir == "" {
		outDir = filepath.Dir(c.Doc.Doc)
	}
	format := env.format(c.Format)
	base := doc.baseName(c.Doc.Image)
	opts := analysis.Options{TagID: tagID, Raster: loadRaster(env, doc.imagePath(c.Doc.Image))}

	var mu sync.Mutex
	var written []string
	b, err := runAll(env, doc, opts, func(t *analysis.Table) error {
		path := filepath.Join(outDir, export.FileName(base, t.Tool, format))
		if err := export.WriteTableFile(path, t, format); err != nil {
			return err
		}
		mu.Lock()
		written = append(written, path)
		mu.Unlock()
		return nil
	})
	if err != nil {
		return err
	}
	for _, p := range written {
		fmt.Fprintln(env.out, "wrote", p)
	}
	for _, e := range b.skipped {
		fmt.Fprintln(env.out, "skipped", e)
	}
	l.Info("batch done", slog.Int("written", len(written)), slog.Int("skipped", len(b.skipped)))
	return nil
}

type reportCmd struct {
	Doc    docFlags `embed:""`
	Tag    string   `help:"Only analyse markers carrying this tag name."`
	Output string   `short:"o" help:"PDF path; defaults to <image>_report.pdf next to the document." type:"path"`
	Title  string   `help:"Report title."`
}

func (c *reportCmd) Run(env *runEnv) error {
	doc, err := loadDocument(c.Doc.Doc)
	if err != nil {
		return err
	}
	tagID, err := doc.tagID(c.Tag)
	if err != nil {
		return err
	}
	img := doc.imagePath(c.Doc.Image)
	b, err := runAll(env, doc, analysis.Options{TagID: tagID, Raster: loadRaster(env, img)}, nil)
	if err != nil {
		return err
	}
	out := c.Output
	if out == "" {
		base := filepath.Base(doc.baseName(c.Doc.Image))
		out = filepath.Join(filepath.Dir(c.Doc.Doc), strings.TrimSuffix(base, filepath.Ext(base))+"_report.pdf")
	}
	if err := export.WritePDFReport(out, b.tables, export.ReportOptions{Title: c.Title, Image: img, Failures: b.skipped}); err != nil {
		return err
	}
	env.log("report").Info("report written", slog.String("path", out), slog.Int("tables", len(b.tables)))
	_, err = fmt.Fprintln(env.out, "wrote", out)
	return err
}

type validateCmd struct {
	Doc string `arg:"" help:"Annotation document (JSON)." type:"path"`
}

func (c *validateCmd) Run(env *runEnv) error {
	data, err := os.ReadFile(c.Doc)
	if err != nil {
		return err
	}
	doc, err := storage.Decode(data)
	if err != nil {
		return err
	}
	markers, tags, err := doc.Build()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(env.out, "ok: %d annotations, %d tags\n", len(markers), len(tags))
	return err
}
