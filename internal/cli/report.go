package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/chainlace/burnbridge/internal/report"
	"github.com/chainlace/burnbridge/internal/store"
)

// ReportOptions holds flags for the report command.
type ReportOptions struct {
	*RootOptions
	Output string
}

// NewReportCommand creates the report command.
func NewReportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Render the settlement state as an HTML page",
		Long: `Render every burn record, per-wallet totals, and overall statistics
into a static HTML report.

Example:
  burnbridge report
  burnbridge report --output /var/www/burns/index.html`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReport(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "report output path (overrides config)")

	return cmd
}

func runReport(opts *ReportOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	cfg, err := loadConfig(opts.RootOptions, formatter)
	if err != nil {
		return err
	}

	output := opts.Output
	if output == "" {
		output = cfg.ReportOutput
	}

	st, err := store.Open(cfg.Database)
	if err != nil {
		return outputCommandError(formatter, ErrCodeStore, ExitCommandError, "failed to open settlement store", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("error closing settlement store", "error", closeErr)
		}
	}()

	gen := report.New(st)
	if err := gen.Write(cmd.Context(), output); err != nil {
		return outputCommandError(formatter, ErrCodeReport, ExitFailure, "failed to write report", err)
	}

	if formatter.JSON() {
		return formatter.Success(struct {
			Output string `json:"output"`
		}{Output: output})
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Report written to %s\n", output)
	return nil
}
