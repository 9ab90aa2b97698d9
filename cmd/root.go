package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sitemetrics/perfhub/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "perfhub",
	Short: "Website performance report hub",
	Long:  "Runs quick, Core Web Vitals, and full Lighthouse scans against the analyzer backend, renders scored reports, gates premium report types behind billing, and exports results.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
