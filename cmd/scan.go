package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sitemetrics/perfhub/internal/analyzer"
	"github.com/sitemetrics/perfhub/internal/payload"
	"github.com/sitemetrics/perfhub/internal/report"
	"github.com/sitemetrics/perfhub/internal/store"
	"github.com/sitemetrics/perfhub/internal/vitals"
)

var (
	scanURL  string
	scanMode string
	scanJSON bool
	scanSave bool
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run a performance scan against one URL",
	Long:  "Runs a quick, cwv, or full scan from the terminal. The paywall only applies to hub sessions; scans from the CLI always render the complete report.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("scan"); err != nil {
			return err
		}
		ctx := cmd.Context()

		normURL, err := report.NormalizeURL(scanURL)
		if err != nil {
			return err
		}
		kind, err := payload.ParseKind(scanMode)
		if err != nil {
			return err
		}

		catalog, err := initCatalog()
		if err != nil {
			return err
		}

		client := analyzer.NewClient(cfg.Analyzer.BaseURL)
		startedAt := time.Now().UTC()
		reportID := report.MakeID(kind.AnalyzerKey(), normURL, startedAt)

		zap.L().Info("starting scan",
			zap.String("url", normURL),
			zap.String("mode", string(kind)),
			zap.String("report_id", reportID),
		)

		raw, err := client.Run(ctx, kind, analyzer.NewRequest(normURL, kind, startedAt))
		if err != nil {
			if errors.Is(err, analyzer.ErrScanTimeout) {
				return eris.Wrap(err, "the full analysis timed out, try --mode quick")
			}
			return eris.Wrap(err, "run scan")
		}

		parsed := payload.Parse(raw)
		view := report.Build(parsed, report.Meta{URL: normURL, StartedAt: startedAt}, catalog)
		view.ReportID = reportID

		if scanSave {
			st, err := initStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close() //nolint:errcheck
			if err := st.Migrate(ctx); err != nil {
				return eris.Wrap(err, "migrate store")
			}
			if err := st.SaveReport(ctx, &store.StoredReport{
				ID:        reportID,
				URL:       normURL,
				Kind:      parsed.Kind,
				StartedAt: startedAt,
				Payload:   raw,
			}); err != nil {
				return eris.Wrap(err, "save report")
			}
			zap.L().Info("report saved", zap.String("report_id", reportID))
		}

		if scanJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(view)
		}

		formatView(os.Stdout, &view)
		return nil
	},
}

func init() {
	scanCmd.Flags().StringVar(&scanURL, "url", "", "website URL to scan (required)")
	scanCmd.Flags().StringVar(&scanMode, "mode", "quick", "scan mode: quick, cwv, or full")
	scanCmd.Flags().BoolVar(&scanJSON, "json", false, "print the raw view model as JSON")
	scanCmd.Flags().BoolVar(&scanSave, "save", false, "persist the report to the store")
	_ = scanCmd.MarkFlagRequired("url")
	rootCmd.AddCommand(scanCmd)
}

// formatView writes a report view as aligned text tables.
func formatView(out io.Writer, view *report.View) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Report:\t%s\n", view.ReportID)
	_, _ = fmt.Fprintf(w, "URL:\t%s\n", view.URL)
	_, _ = fmt.Fprintf(w, "Type:\t%s\n", view.Title)
	_, _ = fmt.Fprintf(w, "Generated:\t%s\n", view.GeneratedAt.Format("2006-01-02 15:04 MST"))

	overall := vitals.Placeholder
	if view.Overall != nil {
		overall = strconv.Itoa(*view.Overall) + " (" + view.OverallTier.Label() + ")"
	}
	_, _ = fmt.Fprintf(w, "Overall:\t%s\n", overall)
	if len(view.Risk) > 0 {
		_, _ = fmt.Fprintf(w, "At risk:\t%s\n", strings.Join(view.Risk, ", "))
	}
	_ = w.Flush()

	for _, section := range view.Sections {
		if section.Premium && view.Locked {
			continue
		}
		_, _ = fmt.Fprintf(out, "\n%s\n", section.Title)
		if section.Note != "" {
			_, _ = fmt.Fprintln(out, section.Note)
		}

		sw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		for _, sc := range section.Scores {
			_, _ = fmt.Fprintf(sw, "%s\t%s\t%s\n", sc.Label, sc.Value(), sc.Tier.Label())
		}
		for _, row := range section.Rows {
			label := row.Label
			if row.Device != "" {
				label = row.Device + " " + row.Label
			}
			_, _ = fmt.Fprintf(sw, "%s\t%s\t%s\n", label, row.Value, row.Tier.Label())
		}
		for _, item := range section.Items {
			_, _ = fmt.Fprintf(sw, "%s\t%s\t%s\n", item.Title, item.Value, item.Tier.Label())
		}
		_ = sw.Flush()
	}
}
