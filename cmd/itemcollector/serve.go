package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jpalmerr/itemcollector"
	"github.com/jpalmerr/itemcollector/config"
	"github.com/jpalmerr/itemcollector/internal/gateway"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const (
	shutdownTimeout = 10 * time.Second
)

// newLogger creates a JSON logger for CLI use.
func newLogger(level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		return nil, fmt.Errorf("invalid log level %q", level)
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: lvl,
	})), nil
}

// serveCmd starts the collector against a session gateway.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start collecting drops",
	Long: `Start the item collector.

The server will:
  - Load configuration from the specified YAML file
  - Poll the gateway for sessions and register each one
  - Start idling automatically when enabled and a session can idle
  - Serve the HTTP API and Prometheus metrics on the configured port

The server runs until interrupted (Ctrl+C) or receives SIGTERM.

Example:
  itemcollector serve -c config.yaml
  itemcollector serve --config /etc/itemcollector/config.yaml --log-level debug`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	serveCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	_ = serveCmd.MarkFlagRequired("config")
}

func runServe(cmd *cobra.Command, args []string) error {
	level, _ := cmd.Flags().GetString("log-level")
	logger, err := newLogger(level)
	if err != nil {
		return err
	}

	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.ItemCollectorErr != nil {
		logger.Error("invalid item_collector section, collection disabled", "error", cfg.ItemCollectorErr)
	}

	logger.Info("config loaded",
		"apps", len(cfg.ItemCollector.Apps),
		"enabled", cfg.ItemCollector.Enabled,
		"drop_check_interval", cfg.ItemCollector.Interval().String(),
		"gateway", cfg.Gateway.URL,
	)

	opts, err := config.BuildOptions(cfg)
	if err != nil {
		return fmt.Errorf("failed to build options: %w", err)
	}
	opts = append(opts,
		itemcollector.WithLogger(logger),
		itemcollector.WithDropCallback(func(e itemcollector.DropEvent) {
			logger.Info("drop collected",
				"session", e.Session,
				"app_id", e.AppID,
				"item_def_id", e.ItemDefID,
			)
		}),
	)

	collector, err := itemcollector.New(opts...)
	if err != nil {
		return fmt.Errorf("failed to create collector: %w", err)
	}

	client, err := gateway.NewClient(config.BuildGatewayClientConfig(cfg.Gateway))
	if err != nil {
		return fmt.Errorf("failed to create gateway client: %w", err)
	}
	defer client.Close()

	gw := gateway.New(client, cfg.Gateway.StatePollInterval.Duration(), nil, hooksFor(collector, logger), logger)

	// set up context with signal handling - cancel on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return collector.Start(gctx)
	})
	g.Go(func() error {
		return gw.Run(gctx)
	})

	errChan := make(chan error, 1)
	go func() {
		errChan <- g.Wait()
	}()

	select {
	case err := <-errChan:
		return finish(err, logger)

	case <-ctx.Done():
		// signal received, wait for graceful shutdown with timeout
		select {
		case err := <-errChan:
			return finish(err, logger)
		case <-time.After(shutdownTimeout):
			logger.Warn("shutdown timed out",
				"timeout", shutdownTimeout.String(),
				"action", "forcing exit",
			)
			return nil
		}
	}
}

func finish(err error, logger *slog.Logger) error {
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("server error: %w", err)
	}
	logger.Info("shutdown complete")
	return nil
}

// hooksFor forwards gateway session lifecycle events to the collector.
func hooksFor(c *itemcollector.Collector, logger *slog.Logger) gateway.Hooks {
	return gateway.Hooks{
		Added: func(s *gateway.Session) {
			if err := c.Register(s, s, s); err != nil {
				logger.Warn("failed to register session", "session", s.Name(), "error", err)
			}
		},
		Removed: func(name string) {
			if err := c.Unregister(name); err != nil {
				logger.Debug("failed to unregister session", "session", name, "error", err)
			}
		},
		FarmingStarted: c.OnFarmingStarted,
		FarmingStopped: c.OnFarmingStopped,
		Disconnected:   c.OnDisconnected,
	}
}
