package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/chainlace/burnbridge/internal/migrate"
	"github.com/chainlace/burnbridge/internal/mint"
	"github.com/chainlace/burnbridge/internal/report"
	"github.com/chainlace/burnbridge/internal/source"
	"github.com/chainlace/burnbridge/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Burner   string
	Simulate bool
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the whole pipeline: migrate, mint, report",
		Long: `Run migration, settlement, and report generation in sequence.

Migration failures abort the run; settlement and report failures are
logged and leave the affected records pending for the next run.

Example:
  burnbridge run
  burnbridge run --burner 7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Burner, "burner", "", "migrate only this wallet's latest new burn")
	cmd.Flags().BoolVar(&opts.Simulate, "simulate", false, "do not submit or settle anything")

	return cmd
}

func runPipeline(opts *RunOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	cfg, err := loadConfig(opts.RootOptions, formatter)
	if err != nil {
		return err
	}

	// Setup signal handling for graceful shutdown
	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	src, err := source.Open(cfg.SourceDB)
	if err != nil {
		return outputCommandError(formatter, ErrCodeSource, ExitCommandError, "failed to open source burn log", err)
	}
	defer src.Close()

	st, err := store.Open(cfg.Database)
	if err != nil {
		return outputCommandError(formatter, ErrCodeStore, ExitCommandError, "failed to open settlement store", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("error closing settlement store", "error", closeErr)
		}
	}()

	migSummary, err := migrate.New(src, st, cfg.MinBurnAmount).Run(ctx, opts.Burner)
	if err != nil {
		return outputCommandError(formatter, ErrCodeMigration, ExitFailure, "migration failed", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(),
		"Migrated %d burns (%d already present, %d below minimum)\n",
		migSummary.Migrated, migSummary.SkippedExisting, migSummary.BelowMinimum)

	// Settlement failures leave records pending; the next run picks them up.
	mintOpts := &MintOptions{
		RootOptions: opts.RootOptions,
		Simulate:    opts.Simulate,
	}
	ledger, simulate, err := buildLedger(ctx, mintOpts, cfg, formatter)
	if err != nil {
		return err
	}

	m := mint.New(st, ledger, cfg.MinBurnAmount,
		mint.WithInterval(cfg.SubmitInterval.Std()),
		mint.WithSimulation(simulate),
	)
	mintSummary, err := m.Run(ctx)
	if err != nil {
		if ctx.Err() != nil {
			slog.Info("settlement interrupted", "minted", mintSummary.Minted)
		} else {
			slog.Error("settlement run failed", "error", err)
		}
	} else {
		fmt.Fprintf(cmd.OutOrStdout(),
			"Settled %d of %d pending burns (%d failed, %d simulated)\n",
			mintSummary.Minted, mintSummary.Pending, mintSummary.Failed, mintSummary.Simulated)
	}

	if err := report.New(st).Write(ctx, cfg.ReportOutput); err != nil {
		slog.Error("report generation failed", "error", err)
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "Report written to %s\n", cfg.ReportOutput)
	}

	return nil
}
