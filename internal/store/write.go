package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/chainlace/burnbridge/internal/source"
)

// ErrNotFound reports that no burn record exists for a signature.
var ErrNotFound = errors.New("burn record not found")

// InsertPending inserts a burn event as a pending record.
// Uses ON CONFLICT(signature) DO NOTHING so concurrent or repeated inserts
// of the same burn are silently ignored; the boolean reports whether this
// call actually inserted the row. Settlement fields start empty and are
// never set here.
func (s *Store) InsertPending(ctx context.Context, ev source.BurnEvent) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO burn_records
		(signature, burner, amount, memo, token, memo_checked, observed_at, created_at, is_minted)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, FALSE)
		ON CONFLICT(signature) DO NOTHING
	`,
		ev.Signature,
		ev.Burner,
		int64(ev.Amount),
		ev.Memo,
		ev.Token,
		ev.MemoChecked,
		ev.ObservedAt,
		ev.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert pending record: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert pending record: %w", err)
	}

	return affected > 0, nil
}

// MarkMinted settles a burn record: sets minted_time and minted_signature
// and clears any open intent, in one transaction. The update is conditional
// on the record still being pending, so settling an already-minted record
// is a no-op (its original settlement fields are preserved). Returns
// ErrNotFound if no record exists for the signature.
func (s *Store) MarkMinted(ctx context.Context, signature, mintSignature string, at time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("mark minted: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE burn_records
		SET is_minted = TRUE, minted_time = ?, minted_signature = ?
		WHERE signature = ? AND is_minted = FALSE
	`, at, mintSignature, signature)
	if err != nil {
		return fmt.Errorf("mark minted: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark minted: %w", err)
	}

	if affected == 0 {
		// Either the record is already settled (fine) or it does not exist.
		var exists bool
		err := tx.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM burn_records WHERE signature = ?)`, signature,
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("mark minted: %w", err)
		}
		if !exists {
			return fmt.Errorf("mark minted %s: %w", signature, ErrNotFound)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM mint_intents WHERE burn_signature = ?`, signature,
	); err != nil {
		return fmt.Errorf("mark minted: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("mark minted: %w", err)
	}
	return nil
}

// RecordIntent durably records a signed submission before it is broadcast.
// Re-recording an intent for the same burn replaces the previous one,
// which covers re-signing after a dead submission.
func (s *Store) RecordIntent(ctx context.Context, burnSignature, txSignature string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO mint_intents (burn_signature, tx_signature, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(burn_signature) DO UPDATE SET
			tx_signature = excluded.tx_signature,
			created_at = excluded.created_at
	`, burnSignature, txSignature, at)
	if err != nil {
		return fmt.Errorf("record intent: %w", err)
	}
	return nil
}

// ClearIntent removes the open intent for a burn, if any.
// Used when a submission is confirmed dead and will be re-prepared.
func (s *Store) ClearIntent(ctx context.Context, burnSignature string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM mint_intents WHERE burn_signature = ?`, burnSignature,
	)
	if err != nil {
		return fmt.Errorf("clear intent: %w", err)
	}
	return nil
}

// OpenIntent returns the open intent for a burn, if one exists.
func (s *Store) OpenIntent(ctx context.Context, burnSignature string) (Intent, bool, error) {
	var in Intent
	err := s.db.QueryRowContext(ctx, `
		SELECT burn_signature, tx_signature, created_at
		FROM mint_intents
		WHERE burn_signature = ?
	`, burnSignature).Scan(&in.BurnSignature, &in.TxSignature, &in.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Intent{}, false, nil
	}
	if err != nil {
		return Intent{}, false, fmt.Errorf("read intent: %w", err)
	}
	in.CreatedAt = in.CreatedAt.UTC()
	return in, true, nil
}
