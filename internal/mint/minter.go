package mint

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/chainlace/burnbridge/internal/amount"
	"github.com/chainlace/burnbridge/internal/store"
)

// DefaultSubmitInterval is the pause between consecutive submissions,
// keeping a batch from hammering the ledger endpoint.
const DefaultSubmitInterval = 2 * time.Second

// Summary reports what a settlement run did.
type Summary struct {
	Pending   int `json:"pending"`
	Minted    int `json:"minted"`
	Failed    int `json:"failed"`
	Simulated int `json:"simulated"`
}

// Minter settles pending burn records against a ledger.
type Minter struct {
	store     *store.Store
	ledger    Ledger
	minAmount uint64
	interval  time.Duration
	simulate  bool
	runGen    RunTokenGenerator
	now       func() time.Time
}

// Option configures a Minter.
type Option func(*Minter)

// WithInterval overrides the pause between submissions.
func WithInterval(d time.Duration) Option {
	return func(m *Minter) { m.interval = d }
}

// WithSimulation marks the run as simulated: submissions go to the ledger
// (typically a SimulatedLedger) but nothing is written to the store.
func WithSimulation(sim bool) Option {
	return func(m *Minter) { m.simulate = sim }
}

// WithRunTokenGenerator overrides run token generation, for tests.
func WithRunTokenGenerator(g RunTokenGenerator) Option {
	return func(m *Minter) { m.runGen = g }
}

// WithNow overrides the clock, for tests.
func WithNow(now func() time.Time) Option {
	return func(m *Minter) { m.now = now }
}

// New returns a Minter that settles records with amount >= minAmount.
func New(st *store.Store, ledger Ledger, minAmount uint64, opts ...Option) *Minter {
	m := &Minter{
		store:     st,
		ledger:    ledger,
		minAmount: minAmount,
		interval:  DefaultSubmitInterval,
		runGen:    UUIDv7Generator{},
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run settles every qualifying pending record, oldest first.
//
// Each record settles independently: a failure is logged and counted, and
// the batch moves on. Context cancellation stops the batch between
// records; a record that already broadcast still settles or keeps its
// intent, never both.
func (m *Minter) Run(ctx context.Context) (Summary, error) {
	token := m.runGen.Generate()
	log := slog.With("run", token)

	pending, err := m.store.ListPending(ctx, m.minAmount)
	if err != nil {
		return Summary{}, fmt.Errorf("list pending records: %w", err)
	}

	summary := Summary{Pending: len(pending)}
	log.Info("starting settlement run",
		"pending", len(pending),
		"simulated", m.simulate,
	)

	for i, rec := range pending {
		if i > 0 {
			select {
			case <-ctx.Done():
				return summary, ctx.Err()
			case <-time.After(m.interval):
			}
		}

		if err := m.settle(ctx, log, rec); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return summary, err
			}
			summary.Failed++
			log.Error("settlement failed, record stays pending",
				"burn_signature", rec.Signature,
				"error", err,
			)
			continue
		}

		if m.simulate {
			summary.Simulated++
		} else {
			summary.Minted++
		}
	}

	m.logStatistics(ctx, log)
	return summary, nil
}

// settle mints one record. On success the record is marked minted; on
// failure it stays pending with its intent preserved unless the
// submission is known dead.
func (m *Minter) settle(ctx context.Context, log *slog.Logger, rec store.Record) error {
	if !m.simulate {
		done, err := m.recoverIntent(ctx, log, rec)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}

	receiving, err := m.ledger.ReceivingAccount(rec.Burner)
	if err != nil {
		return err
	}
	exists, err := m.ledger.AccountExists(ctx, receiving)
	if err != nil {
		return err
	}

	req := MintRequest{
		BurnSignature:    rec.Signature,
		Wallet:           rec.Burner,
		ReceivingAccount: receiving,
		CreateAccount:    !exists,
		Amount:           rec.Amount,
	}

	prepared, err := m.ledger.PrepareMint(ctx, req)
	if err != nil {
		return err
	}
	txSig := prepared.TxSignature()

	if m.simulate {
		if err := m.ledger.Broadcast(ctx, prepared); err != nil {
			return err
		}
		log.Info("simulated mint",
			"burn_signature", rec.Signature,
			"tx_signature", txSig,
			"amount", amount.Format(rec.Amount),
		)
		return nil
	}

	// The intent must be durable before anything reaches the network.
	if err := m.store.RecordIntent(ctx, rec.Signature, txSig, m.now()); err != nil {
		return err
	}

	if err := m.ledger.Broadcast(ctx, prepared); err != nil {
		var lerr *LedgerError
		if errors.As(err, &lerr) && lerr.Code == CodeRejected {
			// Never reached the ledger; the intent is dead.
			if cerr := m.store.ClearIntent(ctx, rec.Signature); cerr != nil {
				return errors.Join(err, cerr)
			}
		}
		return err
	}

	if err := m.ledger.Confirm(ctx, txSig); err != nil {
		// The submission may still land; the intent stays so the next
		// run can classify it instead of re-crediting.
		return err
	}

	if err := m.store.MarkMinted(ctx, rec.Signature, txSig, m.now()); err != nil {
		return err
	}

	log.Info("minted",
		"burn_signature", rec.Signature,
		"tx_signature", txSig,
		"burner", rec.Burner,
		"amount", amount.Format(rec.Amount),
	)
	return nil
}

// recoverIntent resolves a leftover intent from an interrupted run.
// Returns done=true when the intent turned out to be confirmed and the
// record is now settled.
func (m *Minter) recoverIntent(ctx context.Context, log *slog.Logger, rec store.Record) (bool, error) {
	intent, open, err := m.store.OpenIntent(ctx, rec.Signature)
	if err != nil {
		return false, err
	}
	if !open {
		return false, nil
	}

	status, err := m.ledger.Status(ctx, intent.TxSignature)
	if err != nil {
		// Cannot classify; leave the intent so nothing is re-credited.
		return false, err
	}

	switch status {
	case TxConfirmed:
		log.Info("recovered interrupted submission",
			"burn_signature", rec.Signature,
			"tx_signature", intent.TxSignature,
		)
		if err := m.store.MarkMinted(ctx, rec.Signature, intent.TxSignature, m.now()); err != nil {
			return false, err
		}
		return true, nil
	case TxFailed, TxUnknown:
		log.Warn("discarding dead submission intent",
			"burn_signature", rec.Signature,
			"tx_signature", intent.TxSignature,
			"status", status.String(),
		)
		if err := m.store.ClearIntent(ctx, rec.Signature); err != nil {
			return false, err
		}
		return false, nil
	}
	return false, nil
}

// logStatistics reports store-wide aggregates after a batch, matching the
// operator's mental model of progress.
func (m *Minter) logStatistics(ctx context.Context, log *slog.Logger) {
	stats, err := m.store.Statistics(ctx)
	if err != nil {
		log.Warn("failed to read statistics after run", "error", err)
		return
	}
	log.Info("settlement statistics",
		"total_records", stats.TotalRecords,
		"minted_records", stats.MintedRecords,
		"total_burned", stats.TotalBurned.String(),
		"total_minted", stats.TotalMinted.String(),
		"unique_burners", stats.UniqueBurners,
	)
}
