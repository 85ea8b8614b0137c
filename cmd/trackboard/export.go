package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/trackboard"
)

// exportCmd downloads every location matching the configured filter.
var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export locations as CSV or JSON",
	Long: `Download every location matching the configured locations filter,
ordered by its sort and order fields.

Without --output the file is named after the format and the current time,
e.g. locations-2024-05-01T10:04:05.678Z.csv. Use --output - for stdout.

Example:
  trackboard export -c config.yaml
  trackboard export -c config.yaml --format json -o locations.json`,
	RunE: runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	exportCmd.Flags().String("format", string(trackboard.ExportCSV), "export format: csv or json")
	exportCmd.Flags().StringP("output", "o", "", "output file, - for stdout (default: generated name)")
	_ = exportCmd.MarkFlagRequired("config")
}

func runExport(cmd *cobra.Command, args []string) error {
	name, _ := cmd.Flags().GetString("format")
	format, err := trackboard.ParseExportFormat(name)
	if err != nil {
		return err
	}

	b, _, logger, err := loadBoard(cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if !b.Authenticated() {
		if err := b.Login(ctx); err != nil {
			return err
		}
	}

	output, _ := cmd.Flags().GetString("output")
	if output == "" {
		output = trackboard.ExportFilename(format, time.Now())
	}

	var w io.Writer = cmd.OutOrStdout()
	if output != "-" {
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	n, err := b.Export(ctx, format, w)
	if err != nil {
		if output != "-" {
			_ = os.Remove(output)
		}
		return err
	}

	logger.Info("export written", "path", output, "bytes", n)
	if output != "-" {
		fmt.Fprintf(cmd.OutOrStdout(), "Exported %d bytes to %s\n", n, output)
	}
	return nil
}
