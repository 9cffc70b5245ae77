package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/chainlace/burnbridge/internal/config"
	"github.com/chainlace/burnbridge/internal/mint"
	"github.com/chainlace/burnbridge/internal/store"
)

// MintOptions holds flags for the mint command.
type MintOptions struct {
	*RootOptions
	Simulate bool
}

// NewMintCommand creates the mint command.
func NewMintCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MintOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "mint",
		Short: "Settle pending burns by minting on the ledger",
		Long: `Mint tokens for every pending burn record at or above the minimum
amount, oldest first. Each settlement is recorded durably before it is
broadcast, so an interrupted run resumes without double-crediting.

When the mint authority keypair is missing, or with --simulate, the run
only pretends to mint and writes nothing.

Example:
  burnbridge mint
  burnbridge mint --simulate`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMint(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Simulate, "simulate", false, "do not submit or settle anything")

	return cmd
}

func runMint(opts *MintOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	cfg, err := loadConfig(opts.RootOptions, formatter)
	if err != nil {
		return err
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

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	ledger, simulate, err := buildLedger(ctx, opts, cfg, formatter)
	if err != nil {
		return err
	}

	m := mint.New(st, ledger, cfg.MinBurnAmount,
		mint.WithInterval(cfg.SubmitInterval.Std()),
		mint.WithSimulation(simulate),
	)
	summary, err := m.Run(ctx)
	if err != nil {
		return outputCommandError(formatter, ErrCodeSettlement, ExitFailure, "settlement run failed", err)
	}

	if formatter.JSON() {
		if err := formatter.Success(summary); err != nil {
			return err
		}
	} else if simulate {
		fmt.Fprintf(cmd.OutOrStdout(), "Simulated %d of %d pending mints\n",
			summary.Simulated, summary.Pending)
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "Minted %d of %d pending burns (%d failed)\n",
			summary.Minted, summary.Pending, summary.Failed)
	}

	if summary.Failed > 0 {
		return NewExitError(ExitFailure,
			fmt.Sprintf("%d records failed to settle and remain pending", summary.Failed))
	}
	return nil
}

// buildLedger picks the real ledger when the authority keypair is present
// and simulation was not requested, the simulated one otherwise.
func buildLedger(ctx context.Context, opts *MintOptions, cfg config.Config, formatter *OutputFormatter) (mint.Ledger, bool, error) {
	if opts.Simulate {
		slog.Warn("simulation requested, nothing will be submitted or settled")
		return mint.NewSimulatedLedger(), true, nil
	}

	authority, ok, err := mint.LoadAuthority(config.ExpandHome(cfg.Keypair))
	if err != nil {
		return nil, false, outputCommandError(formatter, ErrCodeLedger, ExitCommandError, "failed to load mint authority keypair", err)
	}
	if !ok {
		slog.Warn("mint authority keypair not found, running in simulation",
			"keypair", cfg.Keypair)
		return mint.NewSimulatedLedger(), true, nil
	}

	ledger, err := mint.NewSolanaLedger(ctx, cfg.RPCURL, cfg.TokenMint, authority)
	if err != nil {
		return nil, false, outputCommandError(formatter, ErrCodeLedger, ExitCommandError, "failed to connect to ledger", err)
	}
	return ledger, false, nil
}
