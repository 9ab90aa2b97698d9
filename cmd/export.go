package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sitemetrics/perfhub/internal/export"
	"github.com/sitemetrics/perfhub/internal/payload"
	"github.com/sitemetrics/perfhub/internal/report"
)

var (
	exportFormat string
	exportDir    string
)

var exportCmd = &cobra.Command{
	Use:   "export <report-id>",
	Short: "Export a stored report as pdf, csv, or xlsx",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("export"); err != nil {
			return err
		}
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		stored, err := st.GetReport(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "load report")
		}
		if stored == nil {
			return eris.Errorf("report %s not found", args[0])
		}

		catalog, err := initCatalog()
		if err != nil {
			return err
		}

		parsed := payload.Parse(stored.Payload)
		view := report.Build(parsed, report.Meta{
			URL:         stored.URL,
			StartedAt:   stored.StartedAt,
			GeneratedAt: stored.CreatedAt,
		}, catalog)
		view.ReportID = stored.ID

		dir := exportDir
		if dir == "" {
			dir = cfg.Export.ReportsDir
		}

		switch exportFormat {
		case "pdf":
			path, err := export.WritePDF(&view, dir)
			if err != nil {
				return err
			}
			fmt.Println(path)
			return nil
		case "csv", "xlsx":
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return eris.Wrap(err, "create export dir")
			}
			path := filepath.Join(dir, export.Filename(&view, exportFormat))
			f, err := os.Create(path)
			if err != nil {
				return eris.Wrap(err, "create export file")
			}
			defer f.Close() //nolint:errcheck

			if exportFormat == "csv" {
				err = export.WriteCSV(&view, f)
			} else {
				err = export.WriteXLSX(&view, f)
			}
			if err != nil {
				return err
			}
			fmt.Println(path)
			return nil
		default:
			return eris.Errorf("unsupported export format: %s", exportFormat)
		}
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportFormat, "format", "pdf", "export format: pdf, csv, or xlsx")
	exportCmd.Flags().StringVar(&exportDir, "out", "", "output directory (default from config)")
	rootCmd.AddCommand(exportCmd)
}
