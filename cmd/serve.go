package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sitemetrics/perfhub/internal/analyzer"
	"github.com/sitemetrics/perfhub/internal/billing"
	"github.com/sitemetrics/perfhub/internal/paywall"
	"github.com/sitemetrics/perfhub/internal/server"
	"github.com/sitemetrics/perfhub/internal/session"
)

// sessionRetention is how long a finished scan stays recallable in memory
// before the sweeper drops it.
const sessionRetention = 30 * time.Minute

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the performance hub HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if cfg.Sentry.DSN != "" {
			if err := sentry.Init(sentry.ClientOptions{
				Dsn:         cfg.Sentry.DSN,
				Environment: cfg.Sentry.Environment,
			}); err != nil {
				return eris.Wrap(err, "init sentry")
			}
			defer sentry.Flush(2 * time.Second)
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		catalog, err := initCatalog()
		if err != nil {
			return err
		}

		analyzerClient := analyzer.NewClient(cfg.Analyzer.BaseURL)
		billingClient := billing.NewClient(cfg.Billing.BaseURL)
		gate := paywall.NewGate(billingClient, st)
		sessions := session.NewManager()

		// Sweep finished scans so anonymous sessions cannot grow memory
		// without bound.
		go func() {
			ticker := time.NewTicker(10 * time.Minute)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if n := sessions.Sweep(time.Now().Add(-sessionRetention)); n > 0 {
						zap.L().Debug("swept stale sessions", zap.Int("removed", n))
					}
				}
			}
		}()

		hub := server.New(analyzerClient, billingClient, gate, st, sessions, catalog, server.Config{
			ReportsDir:     cfg.Export.ReportsDir,
			AllowedOrigins: cfg.Server.AllowedOrigins,
			RateLimitRPS:   cfg.Server.RateLimitRPS,
			RateLimitBurst: cfg.Server.RateLimitBurst,
		})

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: hub.Router(),
		}

		// Graceful shutdown. The signal context is already canceled by the
		// time we get here, so the drain runs on its own deadline.
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				zap.L().Warn("server shutdown", zap.Error(err))
			}
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
