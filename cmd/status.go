package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/sitemetrics/perfhub/internal/analyzer"
	"github.com/sitemetrics/perfhub/internal/billing"
)

const healthTimeout = 10 * time.Second

type componentStatus struct {
	Name string
	Err  error
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check analyzer, billing, and store health",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("status"); err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), healthTimeout)
		defer cancel()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		analyzerClient := analyzer.NewClient(cfg.Analyzer.BaseURL)
		billingClient := billing.NewClient(cfg.Billing.BaseURL)

		checks := []componentStatus{
			{Name: "analyzer"},
			{Name: "billing"},
			{Name: "store"},
		}

		// Each check records its own result; one slow or failing
		// component never hides the others.
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error { checks[0].Err = analyzerClient.Health(gctx); return nil })
		g.Go(func() error { checks[1].Err = billingClient.Health(gctx); return nil })
		g.Go(func() error { checks[2].Err = st.Ping(gctx); return nil })
		_ = g.Wait()

		formatStatus(os.Stdout, checks)

		for _, c := range checks {
			if c.Err != nil {
				return eris.New("one or more components are unhealthy")
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

// formatStatus writes one line per component to w.
func formatStatus(out io.Writer, checks []componentStatus) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "COMPONENT\tSTATUS\tDETAIL")

	for _, c := range checks {
		status, detail := "ok", ""
		if c.Err != nil {
			status = "down"
			detail = c.Err.Error()
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", c.Name, status, detail)
	}
	_ = w.Flush()
}
