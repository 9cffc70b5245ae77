// Package migrate moves burn events from the source log into the
// destination store.
//
// Migration is a pure filter-and-copy: it never settles anything and
// never mutates the source. Re-running it against the same source is
// safe; the store's signature constraint absorbs duplicates.
package migrate

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/chainlace/burnbridge/internal/amount"
	"github.com/chainlace/burnbridge/internal/source"
	"github.com/chainlace/burnbridge/internal/store"
)

// Summary reports what a migration run did.
type Summary struct {
	Migrated        int `json:"migrated"`
	SkippedExisting int `json:"skipped_existing"`
	BelowMinimum    int `json:"below_minimum"`
	SkippedRows     int `json:"skipped_rows"`
}

// Migrator copies qualifying burn events into the store.
type Migrator struct {
	src       *source.Reader
	dst       *store.Store
	minAmount uint64
}

// New returns a Migrator that admits events with amount >= minAmount.
func New(src *source.Reader, dst *store.Store, minAmount uint64) *Migrator {
	return &Migrator{src: src, dst: dst, minAmount: minAmount}
}

// Run migrates burn events and returns a summary of the outcome.
//
// With an empty burner it processes every source event: each is checked
// against the minimum amount, then inserted conditionally so a concurrent
// or earlier copy of the same signature counts as skipped rather than
// migrated.
//
// With a burner set it runs in catch-up mode: events are walked newest
// first and the run stops after the first event that is both new and at
// or above the minimum. Older events are assumed already migrated.
func (m *Migrator) Run(ctx context.Context, burner string) (Summary, error) {
	if burner != "" {
		return m.runSingleBurner(ctx, burner)
	}
	return m.runBulk(ctx)
}

func (m *Migrator) runBulk(ctx context.Context) (Summary, error) {
	events, skipped, err := m.src.Burns(ctx, "")
	if err != nil {
		return Summary{}, fmt.Errorf("read source burns: %w", err)
	}

	summary := Summary{SkippedRows: skipped}
	for _, ev := range events {
		if ev.Amount < m.minAmount {
			summary.BelowMinimum++
			continue
		}

		inserted, err := m.dst.InsertPending(ctx, ev)
		if err != nil {
			return summary, fmt.Errorf("migrate %s: %w", ev.Signature, err)
		}
		if inserted {
			summary.Migrated++
		} else {
			summary.SkippedExisting++
		}
	}

	slog.Info("migration complete",
		"migrated", summary.Migrated,
		"skipped_existing", summary.SkippedExisting,
		"below_minimum", summary.BelowMinimum,
		"skipped_rows", summary.SkippedRows,
	)
	return summary, nil
}

func (m *Migrator) runSingleBurner(ctx context.Context, burner string) (Summary, error) {
	count, err := m.src.CountForBurner(ctx, burner)
	if err != nil {
		return Summary{}, fmt.Errorf("count source burns: %w", err)
	}
	if count == 0 {
		slog.Warn("no burns found for burner", "burner", burner)
		return Summary{}, nil
	}

	events, skipped, err := m.src.Burns(ctx, burner)
	if err != nil {
		return Summary{}, fmt.Errorf("read source burns: %w", err)
	}

	summary := Summary{SkippedRows: skipped}
	for _, ev := range events {
		exists, err := m.dst.Exists(ctx, ev.Signature)
		if err != nil {
			return summary, fmt.Errorf("check %s: %w", ev.Signature, err)
		}
		if exists {
			summary.SkippedExisting++
			continue
		}

		if ev.Amount < m.minAmount {
			summary.BelowMinimum++
			continue
		}

		inserted, err := m.dst.InsertPending(ctx, ev)
		if err != nil {
			return summary, fmt.Errorf("migrate %s: %w", ev.Signature, err)
		}
		if !inserted {
			// Lost a race with another writer; the burn is recorded either way.
			summary.SkippedExisting++
			continue
		}

		summary.Migrated++
		slog.Info("migrated latest burn for burner",
			"burner", burner,
			"signature", ev.Signature,
			"amount", amount.Format(ev.Amount),
		)
		break
	}

	if summary.Migrated == 0 {
		slog.Warn("no new qualifying burn for burner", "burner", burner)
	}
	return summary, nil
}
