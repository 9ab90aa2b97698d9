package export

import (
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sitemetrics/perfhub/internal/report"
	"github.com/sitemetrics/perfhub/internal/vitals"
)

// WriteXLSX renders the view as a workbook: a Summary sheet with the scan
// metadata, score dials and findings, plus one sheet per device holding its
// metric rows. Premium sections are omitted while the view is locked, same
// as the other writers.
func WriteXLSX(view *report.View, w io.Writer) error {
	f := xlsx.NewFile()

	summary, err := f.AddSheet("Summary")
	if err != nil {
		return eris.Wrap(err, "export: add summary sheet")
	}

	addRow(summary, "URL", view.URL)
	addRow(summary, "Report", view.ReportID)
	addRow(summary, "Type", view.Title)
	addRow(summary, "Generated", view.GeneratedAt.UTC().Format(time.RFC3339))

	overall := vitals.Placeholder
	if view.Overall != nil {
		overall = strconv.Itoa(*view.Overall)
	}
	addRow(summary, "Overall Score", overall, view.OverallTier.Label())
	if len(view.Risk) > 0 {
		addRow(summary, "At Risk", strings.Join(view.Risk, ", "))
	}

	for _, section := range view.Sections {
		if section.Premium && view.Locked {
			continue
		}
		cells := summaryCells(section)
		if len(cells) == 0 {
			continue
		}
		summary.AddRow()
		addRow(summary, section.Title)
		for _, c := range cells {
			addRow(summary, c...)
		}
	}

	for _, device := range deviceNames(view) {
		sheet, err := f.AddSheet(device)
		if err != nil {
			return eris.Wrapf(err, "export: add %s sheet", device)
		}
		addRow(sheet, "Metric", "Value", "Rating", "Guidance")
		for _, section := range view.Sections {
			if section.Premium && view.Locked {
				continue
			}
			for _, row := range section.Rows {
				if row.Device == device {
					addRow(sheet, row.Label, row.Value, row.Tier.Label(), row.Hint)
				}
			}
		}
	}

	return eris.Wrap(f.Write(w), "export: write xlsx")
}

// summaryCells flattens everything in a section that is not tied to a
// device: score dials, plain metric rows and accordion findings.
func summaryCells(section report.Section) [][]string {
	var cells [][]string
	for _, cell := range section.Scores {
		cells = append(cells, []string{cell.Label, cell.Value(), cell.Tier.Label()})
	}
	for _, row := range section.Rows {
		if row.Device == "" {
			cells = append(cells, []string{row.Label, row.Value, row.Tier.Label(), row.Hint})
		}
	}
	for _, item := range section.Items {
		cells = append(cells, []string{item.Title, item.Value, item.Tier.Label(), item.Detail})
	}
	return cells
}

// deviceNames returns the device labels in first-seen order so sheet order
// is stable across exports of the same view. Locked premium sections
// contribute no names; a locked workbook must not carry empty device sheets.
func deviceNames(view *report.View) []string {
	seen := make(map[string]bool)
	var names []string
	for _, section := range view.Sections {
		if section.Premium && view.Locked {
			continue
		}
		for _, row := range section.Rows {
			if row.Device != "" && !seen[row.Device] {
				seen[row.Device] = true
				names = append(names, row.Device)
			}
		}
	}
	return names
}

func addRow(sheet *xlsx.Sheet, values ...string) {
	row := sheet.AddRow()
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}
