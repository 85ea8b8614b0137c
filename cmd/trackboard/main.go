// Package main is the entry point for the trackboard CLI.
//
// Trackboard can be run either as a library (SDK) or as a standalone binary
// with YAML configuration. This CLI provides the standalone binary approach.
//
// Usage:
//
//	trackboard serve -c config.yaml                   # Start the dashboard
//	trackboard validate -c config.yaml                # Validate configuration
//	trackboard watch -c config.yaml --view locations  # Stream view updates to stdout
//	trackboard export -c config.yaml --format csv     # Download matching locations
//	trackboard login -c config.yaml                   # Store a session in the token file
//	trackboard version                                # Show version info
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// Version information - set by GoReleaser at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// rootCmd is the base command when called without subcommands.
// It just displays help - actual functionality is in subcommands.
var rootCmd = &cobra.Command{
	Use:   "trackboard",
	Short: "A live dashboard for a location tracking backend",
	Long: `Trackboard is a live dashboard for a location tracking backend.

It logs in to the backend REST API, polls the dashboard statistics and
the filtered locations listing at configurable intervals, and serves the
results in a web UI with Server-Sent Events for live updates.

Quick start:
  1. Create a config file (trackboard.yaml)
  2. Run: trackboard serve -c trackboard.yaml
  3. Open http://localhost:8080 in your browser

Example config:
  port: 8080
  poll_interval: 10s
  backend:
    url: https://tracker.example.com/api
  auth:
    email: ${TRACKER_EMAIL}
    password: ${TRACKER_PASSWORD}`,
	SilenceUsage: true,
	// No Run/RunE means this just shows help when called without subcommands
}

// Execute runs the root command.
// This is the main entry point called from main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		// Cobra already prints the error, just exit with code 1
		os.Exit(1)
	}
}

func main() {
	Execute()
}

// versionCmd prints version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the version, commit hash, and build date of this trackboard binary.`,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "trackboard %s\n", version)
		fmt.Fprintf(out, "  commit: %s\n", commit)
		fmt.Fprintf(out, "  built:  %s\n", date)
	},
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "info", "log level: debug, info, warn or error")

	// Register subcommands with root
	rootCmd.AddCommand(versionCmd)
}

// newLogger creates a JSON logger on stderr at the level chosen with
// --log-level.
func newLogger(cmd *cobra.Command) (*slog.Logger, error) {
	name, _ := cmd.Flags().GetString("log-level")

	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(name))); err != nil {
		return nil, fmt.Errorf("invalid --log-level %q: must be debug, info, warn or error", name)
	}

	return slog.New(slog.NewJSONHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: level,
	})), nil
}
