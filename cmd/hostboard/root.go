package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/kylerisse/hostboard/pkg/config"
	"github.com/kylerisse/hostboard/pkg/fetch"
	"github.com/kylerisse/hostboard/pkg/render"
	"github.com/kylerisse/hostboard/pkg/resolve"
	"github.com/kylerisse/hostboard/pkg/widget"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"
)

// flags shared by every subcommand.
type globalFlags struct {
	configPath string
	endpoint   string
}

func newRootCmd() *cobra.Command {
	var g globalFlags

	root := &cobra.Command{
		Use:   "hostboard",
		Short: "Live host status table for a monitoring endpoint",
		Long: `hostboard polls a host monitoring endpoint and keeps a status table
(IP address, status, CPU, memory, last update) current.

Examples:
  hostboard serve
  hostboard serve --listen :8080 --endpoint http://monitor.lan:5000/api/monitor/data
  hostboard once`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "path to a YAML config file")
	root.PersistentFlags().StringVar(&g.endpoint, "endpoint", "", "monitoring data URL (overrides config)")

	root.AddCommand(newServeCmd(&g))
	root.AddCommand(newOnceCmd(&g))
	return root
}

// loadConfig reads the config file and applies command line overrides.
func loadConfig(g *globalFlags) (config.Config, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return config.Config{}, err
	}
	if g.endpoint != "" {
		cfg.Endpoint = g.endpoint
		if err := cfg.Validate(); err != nil {
			return config.Config{}, err
		}
	}
	return cfg, nil
}

// setupLogging builds the logger described by cfg. The returned closer
// releases the log file, if any.
func setupLogging(cfg config.Log, stderr io.Writer) (*logrus.Logger, func() error, error) {
	logger := logrus.New()
	logger.SetOutput(stderr)
	closer := func() error { return nil }

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, fmt.Errorf("log level: %w", err)
	}
	logger.SetLevel(level)

	switch cfg.Format {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	default:
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	if cfg.File != "" {
		logFile, err := os.OpenFile(cfg.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file: %w", err)
		}
		logger.SetOutput(logFile)
		closer = logFile.Close
	}
	return logger, closer, nil
}

// newFetcher builds the HTTP client for the configured endpoint.
func newFetcher(cfg config.Config, logger *logrus.Logger) (*fetch.Client, error) {
	opts := []fetch.Option{
		fetch.WithTimeout(cfg.FetchTimeout),
		fetch.WithUserAgent("hostboard/" + version),
	}
	if cfg.FetchRate.Enabled() {
		opts = append(opts, fetch.WithLimiter(rate.NewLimiter(rate.Limit(cfg.FetchRate.PerSecond), cfg.FetchRate.Burst)))
	}
	if cfg.Resolver != "" {
		r, err := resolve.New(cfg.Resolver)
		if err != nil {
			return nil, err
		}
		logger.Infof("Resolving endpoint host via %s", r.Server())
		opts = append(opts, fetch.WithDialer(r.DialContext))
	}
	return fetch.New(cfg.Endpoint, opts...)
}

// newWidget assembles the widget for the given mount point.
func newWidget(cfg config.Config, mount widget.MountPoint, logger *logrus.Logger) (*widget.Widget, error) {
	fetcher, err := newFetcher(cfg, logger)
	if err != nil {
		return nil, err
	}
	renderer, err := render.New(cfg.Labels)
	if err != nil {
		return nil, err
	}
	return widget.New(fetcher, mount,
		widget.WithInterval(cfg.Interval),
		widget.WithRenderer(renderer),
		widget.WithLogger(logger),
		widget.WithSkipOverlapping(cfg.SkipOverlapping),
	)
}
