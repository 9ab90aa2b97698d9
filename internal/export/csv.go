package export

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/sitemetrics/perfhub/internal/report"
	"github.com/sitemetrics/perfhub/internal/vitals"
)

// WriteCSV flattens the view into one table: score dials, metric rows and
// findings all become rows so the file loads clean in any spreadsheet.
func WriteCSV(view *report.View, w io.Writer) error {
	cw := csv.NewWriter(w)

	if err := cw.Write([]string{"section", "device", "metric", "value", "rating", "detail"}); err != nil {
		return eris.Wrap(err, "export: write csv header")
	}

	overall := vitals.Placeholder
	if view.Overall != nil {
		overall = strconv.Itoa(*view.Overall)
	}
	if err := cw.Write([]string{"overall", "", "Overall Score", overall, view.OverallTier.Label(), ""}); err != nil {
		return eris.Wrap(err, "export: write csv row")
	}

	for _, section := range view.Sections {
		if section.Premium && view.Locked {
			continue
		}
		for _, cell := range section.Scores {
			if err := cw.Write([]string{section.ID, "", cell.Label, cell.Value(), cell.Tier.Label(), ""}); err != nil {
				return eris.Wrap(err, "export: write csv row")
			}
		}
		for _, row := range section.Rows {
			if err := cw.Write([]string{section.ID, row.Device, row.Label, row.Value, row.Tier.Label(), row.Hint}); err != nil {
				return eris.Wrap(err, "export: write csv row")
			}
		}
		for _, item := range section.Items {
			if err := cw.Write([]string{section.ID, "", item.Title, item.Value, item.Tier.Label(), item.Detail}); err != nil {
				return eris.Wrap(err, "export: write csv row")
			}
		}
	}

	cw.Flush()
	return eris.Wrap(cw.Error(), "export: flush csv")
}
