package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/kylerisse/hostboard/pkg/mount"
	"github.com/kylerisse/hostboard/pkg/server"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(g *globalFlags) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Poll the endpoint and serve the live dashboard",
		Long: `Start the monitor widget and the dashboard server.

The table is refreshed every interval and pushed to open dashboards over a
websocket. Stop with Ctrl+C.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(g)
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.Listen = listen
			}

			logger, closeLog, err := setupLogging(cfg.Log, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer closeLog()

			hub := mount.NewHub(logger)
			w, err := newWidget(cfg, hub, logger)
			if err != nil {
				return err
			}

			opts := []server.Option{server.WithEndpoint(cfg.Endpoint)}
			if cfg.ServerRate.Enabled() {
				opts = append(opts, server.WithRateLimit(cfg.ServerRate.PerSecond, cfg.ServerRate.Burst))
			}
			srv, err := server.NewServer(cfg.Listen, w, hub, logger, opts...)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			errCh := srv.Start()
			w.Start()
			logger.WithFields(logrus.Fields{
				"endpoint": cfg.Endpoint,
				"interval": cfg.Interval,
				"listen":   cfg.Listen,
			}).Info("Dashboard is running. Press Ctrl+C to stop.")

			var serveErr error
			select {
			case <-ctx.Done():
				logger.Info("Shutting down...")
			case serveErr = <-errCh:
				logger.Errorf("Dashboard server failed: %v", serveErr)
			}

			w.Stop()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Errorf("Dashboard server shutdown: %v", err)
			}
			logger.Info("Stopped.")
			return serveErr
		},
	}

	cmd.Flags().StringVarP(&listen, "listen", "l", "", "dashboard listen address (overrides config)")
	return cmd
}
