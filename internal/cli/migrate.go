package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/chainlace/burnbridge/internal/migrate"
	"github.com/chainlace/burnbridge/internal/source"
	"github.com/chainlace/burnbridge/internal/store"
)

// MigrateOptions holds flags for the migrate command.
type MigrateOptions struct {
	*RootOptions
	Burner string
}

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MigrateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Copy qualifying burn events into the settlement store",
		Long: `Read burn events from the source log and insert the qualifying ones
into the settlement store as pending records. Already-migrated burns are
skipped, so re-running is always safe.

With --burner, only that wallet's burns are scanned, newest first, and
the run stops after the first new qualifying burn.

Example:
  burnbridge migrate
  burnbridge migrate --burner 7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Burner, "burner", "", "migrate only this wallet's latest new burn")

	return cmd
}

func runMigrate(opts *MigrateOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	cfg, err := loadConfig(opts.RootOptions, formatter)
	if err != nil {
		return err
	}

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

	m := migrate.New(src, st, cfg.MinBurnAmount)
	summary, err := m.Run(cmd.Context(), opts.Burner)
	if err != nil {
		return outputCommandError(formatter, ErrCodeMigration, ExitFailure, "migration failed", err)
	}

	if formatter.JSON() {
		return formatter.Success(summary)
	}

	fmt.Fprintf(cmd.OutOrStdout(),
		"Migrated %d burns (%d already present, %d below minimum, %d unreadable)\n",
		summary.Migrated, summary.SkippedExisting, summary.BelowMinimum, summary.SkippedRows)
	return nil
}
