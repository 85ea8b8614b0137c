package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/trackboard/config"
)

// validateCmd validates a config file without starting the server.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a config file",
	Long: `Validate a Trackboard configuration file without starting the server.

This command parses the YAML, expands environment variables, and validates
all fields including the initial locations filter. It does not contact the
backend. It's useful for CI/CD pipelines or pre-deployment checks.

Exit codes:
  0 - Config is valid
  1 - Config is invalid (error details printed to stderr)

Example:
  trackboard validate -c config.yaml
  trackboard validate --config /etc/trackboard/config.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = validateCmd.MarkFlagRequired("config")
}

func runValidate(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	auth := "none (stored session required)"
	if cfg.Auth.Email != "" {
		auth = cfg.Auth.Email
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Config is valid!\n")
	fmt.Fprintf(out, "  Port:          %d\n", cfg.Port)
	fmt.Fprintf(out, "  Backend:       %s\n", cfg.Backend.URL)
	fmt.Fprintf(out, "  Login:         %s\n", auth)
	fmt.Fprintf(out, "  Poll interval: %s\n", cfg.PollInterval.Duration())
	fmt.Fprintf(out, "  Dashboard:     %s\n", describeView(cfg.Views.Dashboard, cfg.PollInterval))
	fmt.Fprintf(out, "  Locations:     %s\n", describeView(cfg.Views.Locations.ViewConfig, cfg.PollInterval))

	return nil
}

// describeView summarises a view's schedule.
func describeView(vc config.ViewConfig, fallback config.Duration) string {
	interval := fallback
	if vc.Interval != 0 {
		interval = vc.Interval
	}
	if vc.Enabled != nil && !*vc.Enabled {
		return fmt.Sprintf("every %s (paused)", interval.Duration())
	}
	return fmt.Sprintf("every %s", interval.Duration())
}
