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
	"fmt"
	"os"
	"path/filepath"
	"time"

	"annotate/internal/analysis"

	"github.com/jung-kurt/gofpdf"
)

// MaxReportRows limits the rows printed per table; the remainder is summarised.
const MaxReportRows = 400

// ReportOptions controls the PDF report.
type ReportOptions struct {
	Title string
	Image string
	// Failures lists tools that could not run, shown on the first page.
	Failures []error
	Now      time.Time
}

// WritePDFReport renders every table into one A4 PDF at outPath. Units are points.
func WritePDFReport(outPath string, tables []*analysis.Table, opt ReportOptions) error {
	pdf := gofpdf.NewCustom(&gofpdf.InitType{UnitStr: "pt", Size: gofpdf.SizeType{Wd: 595, Ht: 842}})
	title := opt.Title
	if title == "" {
		title = "Annotation report"
	}
	pdf.SetTitle(title, false)
	pdf.SetAuthor("annotate", false)
	pdf.SetMargins(36, 36, 36)
	pdf.SetAutoPageBreak(true, 36)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(0, 22, title, "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	now := opt.Now
	if now.IsZero() {
		now = time.Now()
	}
	if opt.Image != "" {
		pdf.CellFormat(0, 14, "Image: "+opt.Image, "", 1, "L", false, 0, "")
	}
	pdf.CellFormat(0, 14, "Generated: "+now.Format(time.RFC3339), "", 1, "L", false, 0, "")
	for _, f := range opt.Failures {
		pdf.SetTextColor(170, 0, 0)
		pdf.MultiCell(0, 14, "Skipped "+f.Error(), "", "L", false)
		pdf.SetTextColor(0, 0, 0)
	}

	for _, t := range tables {
		writeTablePDF(pdf, t)
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("ensure out dir: %w", err)
	}
	if err := pdf.OutputFileAndClose(outPath); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}

func writeTablePDF(pdf *gofpdf.Fpdf, t *analysis.Table) {
	pdf.Ln(10)
	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(0, 18, fmt.Sprintf("%s (%d rows)", t.Tool, len(t.Rows)), "", 1, "L", false, 0, "")

	pageW, _ := pdf.GetPageSize()
	left, _, right, _ := pdf.GetMargins()
	colW := (pageW - left - right) / float64(max(len(t.Columns), 1))
	fontSize := 8.0
	if len(t.Columns) > 8 {
		fontSize = 6
	}

	header := func() {
		pdf.SetFont("Helvetica", "B", fontSize)
		pdf.SetFillColor(230, 230, 230)
		for _, c := range t.Columns {
			pdf.CellFormat(colW, fontSize+6, fit(pdf, c, colW), "1", 0, "C", true, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont("Helvetica", "", fontSize)
	}
	header()
	_, pageH := pdf.GetPageSize()
	_, _, _, bottom := pdf.GetMargins()
	for i, row := range t.Rows {
		if i == MaxReportRows {
			pdf.SetFont("Helvetica", "I", fontSize)
			pdf.CellFormat(0, fontSize+6, fmt.Sprintf("... %d more rows", len(t.Rows)-MaxReportRows), "", 1, "L", false, 0, "")
			break
		}
		if pdf.GetY()+fontSize+6 > pageH-bottom {
			pdf.AddPage()
			header()
		}
		for _, v := range row {
			s := analysis.FormatCell(v)
			if f, ok := v.(float64); ok {
				s = fmt.Sprintf("%.6g", f)
			}
			pdf.CellFormat(colW, fontSize+6, fit(pdf, s, colW), "1", 0, "R", false, 0, "")
		}
		pdf.Ln(-1)
	}
}

// fit shortens s until it fits into w with a small padding.
func fit(pdf *gofpdf.Fpdf, s string, w float64) string {
	for len(s) > 1 && pdf.GetStringWidth(s) > w-4 {
		s = s[:len(s)-1]
	}
	return s
}
