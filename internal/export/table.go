/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package export writes analysis tables and annotation overlays to files: CSV and JSON
// tables, a PDF report of several tables, and PNG or SVG overlays of the display list.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"annotate/internal/analysis"
)

// Formats accepted for table output.
const (
	FormatCSV  = "csv"
	FormatJSON = "json"
)

// FileName returns "<imageBaseName>_<tool>.<ext>" for the given image path.
func FileName(image, tool, format string) string {
	base := filepath.Base(image)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	if base == "" || base == "." || base == string(filepath.Separator) {
		base = "annotations"
	}
	if format == "" {
		format = FormatCSV
	}
	return fmt.Sprintf("%s_%s.%s", base, tool, format)
}

// WriteCSV writes the table with RFC 4180 quoting, header first.
func WriteCSV(w io.Writer, t *analysis.Table) error {
	cw := csv.NewWriter(w)
	if err := cw.WriteAll(t.Records()); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}

// WriteJSON writes the table as an array of objects whose keys follow the column order.
func WriteJSON(w io.Writer, t *analysis.Table) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(t.Objects()); err != nil {
		return fmt.Errorf("write json: %w", err)
	}
	return nil
}

// WriteTable writes the table in the requested format.
func WriteTable(w io.Writer, t *analysis.Table, format string) error {
	switch strings.ToLower(format) {
	case "", FormatCSV:
		return WriteCSV(w, t)
	case FormatJSON:
		return WriteJSON(w, t)
	default:
		return fmt.Errorf("unsupported format %q", format)
	}
}

// WriteTableFile writes the table to path, creating parent directories.
func WriteTableFile(path string, t *analysis.Table, format string) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("ensure out dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return WriteTable(f, t, format)
}
