package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/trackboard"
	"github.com/jpalmerr/trackboard/config"
)

const (
	shutdownTimeout = 10 * time.Second
)

// serveCmd starts the Trackboard dashboard server.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the dashboard server",
	Long: `Start the Trackboard dashboard server.

The server will:
  - Load configuration from the specified YAML file
  - Log in to the backend unless a stored session exists
  - Start polling the dashboard and locations views
  - Serve the dashboard UI on the configured port

The server runs until interrupted (Ctrl+C) or receives SIGTERM.

Example:
  trackboard serve -c config.yaml
  trackboard serve --config /etc/trackboard/config.yaml`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = serveCmd.MarkFlagRequired("config")
}

// loadBoard loads the config named by --config and builds a board from it.
func loadBoard(cmd *cobra.Command, extra ...trackboard.Option) (*trackboard.Board, *config.Config, *slog.Logger, error) {
	logger, err := newLogger(cmd)
	if err != nil {
		return nil, nil, nil, err
	}

	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger.Debug("config loaded", "path", configFile, "backend", cfg.Backend.URL)

	opts := append(config.BuildOptions(cfg, logger), extra...)
	b, err := trackboard.New(opts...)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create Trackboard: %w", err)
	}
	return b, cfg, logger, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	b, cfg, logger, err := loadBoard(cmd)
	if err != nil {
		return err
	}

	logger.Info("starting server",
		"port", cfg.Port,
		"poll_interval", cfg.PollInterval.Duration().String(),
	)

	// set up context with signal handling - cancel on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// start server - blocks until context cancelled
	errChan := make(chan error, 1)
	go func() {
		errChan <- b.Start(ctx)
	}()

	return awaitShutdown(ctx, errChan, logger)
}

// awaitShutdown waits for a blocking run to return, allowing it
// shutdownTimeout to finish once ctx is cancelled.
func awaitShutdown(ctx context.Context, errChan <-chan error, logger *slog.Logger) error {
	select {
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		logger.Info("shutdown complete")
		return nil

	case <-ctx.Done():
		// signal received, wait for graceful shutdown with timeout
		select {
		case err := <-errChan:
			if err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			logger.Info("shutdown complete")
			return nil
		case <-time.After(shutdownTimeout):
			logger.Warn("shutdown timed out",
				"timeout", shutdownTimeout.String(),
				"action", "forcing exit",
			)
			return nil
		}
	}
}
