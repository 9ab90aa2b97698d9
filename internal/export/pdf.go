// Package export renders report views to files: PDF for sharing, CSV and
// XLSX for spreadsheets. Every writer works from the view model alone, so
// the three formats can never disagree about a value or a tier.
package export

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-pdf/fpdf"
	"github.com/rotisserie/eris"

	"github.com/sitemetrics/perfhub/internal/report"
	"github.com/sitemetrics/perfhub/internal/vitals"
)

// Filename returns the download name for a report in the given format.
func Filename(view *report.View, format string) string {
	return fmt.Sprintf("%s-analysis-%s.%s", view.Kind.AnalyzerKey(), view.ReportID, format)
}

// WritePDF renders view as a paginated PDF under dir, creating dir on
// demand, and returns the file path. The document goes to a temp file first
// and is renamed into place so readers never see a partial PDF.
func WritePDF(view *report.View, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", eris.Wrap(err, "export: create reports dir")
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(view.Title, true)
	pdf.AliasNbPages("")
	pdf.SetFooterFunc(func() {
		pdf.SetY(-15)
		pdf.SetFont("Helvetica", "I", 8)
		pdf.SetTextColor(128, 128, 128)
		pdf.CellFormat(0, 10, fmt.Sprintf("Page %d/{nb}", pdf.PageNo()), "", 0, "C", false, 0, "")
	})
	pdf.AddPage()

	writeHeader(pdf, view)
	for _, section := range view.Sections {
		writeSection(pdf, view, section)
	}

	path := filepath.Join(dir, Filename(view, "pdf"))
	tmp := path + ".tmp"
	if err := pdf.OutputFileAndClose(tmp); err != nil {
		_ = os.Remove(tmp)
		return "", eris.Wrapf(err, "export: write pdf %s", path)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", eris.Wrapf(err, "export: rename pdf %s", path)
	}
	return path, nil
}

func writeHeader(pdf *fpdf.Fpdf, view *report.View) {
	pdf.SetFont("Helvetica", "B", 18)
	pdf.SetTextColor(33, 33, 33)
	pdf.CellFormat(0, 10, view.Title, "", 1, "L", false, 0, "")

	pdf.SetFont("Helvetica", "", 10)
	pdf.SetTextColor(100, 100, 100)
	pdf.CellFormat(0, 6, view.URL, "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 6, "Generated "+view.GeneratedAt.UTC().Format("2006-01-02 15:04 MST")+"  ·  Report "+view.ReportID, "", 1, "L", false, 0, "")
	pdf.Ln(2)

	// Headline dial.
	pdf.SetFont("Helvetica", "B", 13)
	r, g, b := view.OverallTier.RGB()
	pdf.SetTextColor(r, g, b)
	overall := vitals.Placeholder
	if view.Overall != nil {
		overall = fmt.Sprintf("%d", *view.Overall)
	}
	pdf.CellFormat(0, 9, "Overall score: "+overall, "", 1, "L", false, 0, "")

	if len(view.Risk) > 0 {
		pdf.SetFont("Helvetica", "B", 10)
		rr, rg, rb := vitals.TierFail.RGB()
		pdf.SetTextColor(rr, rg, rb)
		banner := "At risk: "
		for i, name := range view.Risk {
			if i > 0 {
				banner += ", "
			}
			banner += name
		}
		pdf.CellFormat(0, 7, banner, "", 1, "L", false, 0, "")
	}
	pdf.Ln(3)
}

func writeSection(pdf *fpdf.Fpdf, view *report.View, section report.Section) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.SetTextColor(33, 33, 33)
	pdf.CellFormat(0, 8, section.Title, "", 1, "L", false, 0, "")

	if section.Premium && view.Locked {
		pdf.SetFont("Helvetica", "I", 10)
		pdf.SetTextColor(100, 100, 100)
		pdf.CellFormat(0, 6, "Locked. Purchase the full report to view this section.", "", 1, "L", false, 0, "")
		pdf.Ln(3)
		return
	}

	if section.Note != "" {
		pdf.SetFont("Helvetica", "I", 9)
		pdf.SetTextColor(100, 100, 100)
		pdf.MultiCell(0, 5, section.Note, "", "L", false)
		pdf.Ln(1)
	}

	writeScores(pdf, section.Scores)
	writeRows(pdf, section.Rows)
	writeItems(pdf, section.Items)
	pdf.Ln(3)
}

func writeScores(pdf *fpdf.Fpdf, scores []report.ScoreCell) {
	if len(scores) == 0 {
		return
	}
	cellW := 190.0 / float64(len(scores))
	pdf.SetFont("Helvetica", "", 9)
	pdf.SetTextColor(60, 60, 60)
	for _, cell := range scores {
		pdf.CellFormat(cellW, 6, cell.Label, "", 0, "C", false, 0, "")
	}
	pdf.Ln(6)
	pdf.SetFont("Helvetica", "B", 14)
	for _, cell := range scores {
		r, g, b := cell.Tier.RGB()
		pdf.SetTextColor(r, g, b)
		pdf.CellFormat(cellW, 8, cell.Value(), "", 0, "C", false, 0, "")
	}
	pdf.Ln(10)
}

func writeRows(pdf *fpdf.Fpdf, rows []report.MetricRow) {
	if len(rows) == 0 {
		return
	}

	const (
		deviceW = 30.0
		labelW  = 75.0
		valueW  = 45.0
		tierW   = 40.0
	)

	pdf.SetFont("Helvetica", "B", 9)
	pdf.SetFillColor(245, 245, 245)
	pdf.SetTextColor(33, 33, 33)
	pdf.CellFormat(deviceW, 7, "Device", "1", 0, "L", true, 0, "")
	pdf.CellFormat(labelW, 7, "Metric", "1", 0, "L", true, 0, "")
	pdf.CellFormat(valueW, 7, "Value", "1", 0, "L", true, 0, "")
	pdf.CellFormat(tierW, 7, "Rating", "1", 1, "L", true, 0, "")

	pdf.SetFont("Helvetica", "", 9)
	for _, row := range rows {
		pdf.SetTextColor(33, 33, 33)
		pdf.CellFormat(deviceW, 7, row.Device, "1", 0, "L", false, 0, "")
		pdf.CellFormat(labelW, 7, row.Label, "1", 0, "L", false, 0, "")
		pdf.CellFormat(valueW, 7, row.Value, "1", 0, "L", false, 0, "")
		r, g, b := row.Tier.RGB()
		pdf.SetTextColor(r, g, b)
		pdf.CellFormat(tierW, 7, row.Tier.Label(), "1", 1, "L", false, 0, "")
	}
	pdf.Ln(2)
}

func writeItems(pdf *fpdf.Fpdf, items []report.Accordion) {
	for _, item := range items {
		pdf.SetFont("Helvetica", "B", 10)
		r, g, b := item.Tier.RGB()
		pdf.SetTextColor(r, g, b)
		title := item.Title
		if item.Value != "" {
			title += "  ·  " + item.Value
		}
		pdf.CellFormat(0, 6, title, "", 1, "L", false, 0, "")

		if item.Detail != "" {
			pdf.SetFont("Helvetica", "", 9)
			pdf.SetTextColor(80, 80, 80)
			pdf.MultiCell(0, 5, item.Detail, "", "L", false)
		}
		pdf.Ln(1)
	}
}
