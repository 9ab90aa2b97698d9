package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sitemetrics/perfhub/internal/payload"
	"github.com/sitemetrics/perfhub/internal/report"
	"github.com/sitemetrics/perfhub/internal/store"
)

var reportsCmd = &cobra.Command{
	Use:   "reports",
	Short: "Inspect stored reports",
	Long:  "Commands for listing, viewing, and pruning persisted scan reports.",
}

// -- reports list --

var reportsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored reports",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("reports"); err != nil {
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

		kind, _ := cmd.Flags().GetString("kind")
		url, _ := cmd.Flags().GetString("url")
		limit, _ := cmd.Flags().GetInt("limit")

		filter := store.ReportFilter{
			Kind:  payload.Kind(kind),
			URL:   url,
			Limit: limit,
		}

		reports, err := st.ListReports(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "reports list")
		}

		if len(reports) == 0 {
			fmt.Fprintln(os.Stderr, "No reports found.")
			return nil
		}

		formatReportsList(os.Stdout, reports)
		return nil
	},
}

// -- reports show --

var reportsShowCmd = &cobra.Command{
	Use:   "show <report-id>",
	Short: "Show the rendered view of a stored report",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("reports"); err != nil {
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
			return eris.Wrap(err, "reports show")
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

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(view)
	},
}

// -- reports purge --

var reportsPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete reports older than a cutoff",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("reports"); err != nil {
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

		olderThan, _ := cmd.Flags().GetDuration("older-than")
		cutoff := time.Now().Add(-olderThan)

		removed, err := st.DeleteOlderThan(ctx, cutoff)
		if err != nil {
			return eris.Wrap(err, "reports purge")
		}

		zap.L().Info("reports purged",
			zap.Int("removed", removed),
			zap.Time("cutoff", cutoff),
		)
		return nil
	},
}

func init() {
	reportsListCmd.Flags().String("kind", "", "filter by report kind (quick, cwv, full)")
	reportsListCmd.Flags().String("url", "", "filter by scanned URL")
	reportsListCmd.Flags().Int("limit", 50, "max number of reports to display")

	reportsPurgeCmd.Flags().Duration("older-than", 720*time.Hour, "age cutoff (e.g. 24h, 168h, 720h)")

	reportsCmd.AddCommand(reportsListCmd)
	reportsCmd.AddCommand(reportsShowCmd)
	reportsCmd.AddCommand(reportsPurgeCmd)
	rootCmd.AddCommand(reportsCmd)
}

// formatReportsList writes a tabular list of stored reports to w.
func formatReportsList(out io.Writer, reports []store.StoredReport) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tURL\tKIND\tSTARTED\tSAVED")
	_, _ = fmt.Fprintln(w, "--\t---\t----\t-------\t-----")

	for _, r := range reports {
		url := r.URL
		if len(url) > 40 {
			url = url[:37] + "..."
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			r.ID,
			url,
			r.Kind,
			r.StartedAt.Format("2006-01-02 15:04"),
			r.CreatedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}
