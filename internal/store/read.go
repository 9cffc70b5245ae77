package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/chainlace/burnbridge/internal/amount"
)

// Get returns the burn record for a signature.
// Returns ErrNotFound if no record exists.
func (s *Store) Get(ctx context.Context, signature string) (Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, signature, burner, amount, memo, token, memo_checked,
		       observed_at, created_at, minted_time, minted_signature
		FROM burn_records
		WHERE signature = ?
	`, signature)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, fmt.Errorf("get %s: %w", signature, ErrNotFound)
	}
	if err != nil {
		return Record{}, fmt.Errorf("get %s: %w", signature, err)
	}
	return rec, nil
}

// Exists reports whether a burn record exists for the signature.
func (s *Store) Exists(ctx context.Context, signature string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM burn_records WHERE signature = ?)`, signature,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check record exists: %w", err)
	}
	return exists, nil
}

// ListPending returns unsettled records at or above minAmount, oldest
// observation first so settlement proceeds in burn order. Records with no
// observation time sort first.
func (s *Store) ListPending(ctx context.Context, minAmount uint64) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, signature, burner, amount, memo, token, memo_checked,
		       observed_at, created_at, minted_time, minted_signature
		FROM burn_records
		WHERE is_minted = FALSE AND amount >= ?
		ORDER BY observed_at ASC, id ASC
	`, int64(minAmount))
	if err != nil {
		return nil, fmt.Errorf("list pending records: %w", err)
	}
	defer rows.Close()

	return collectRecords(rows)
}

// ListAll returns every burn record, newest observation first.
func (s *Store) ListAll(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, signature, burner, amount, memo, token, memo_checked,
		       observed_at, created_at, minted_time, minted_signature
		FROM burn_records
		ORDER BY observed_at DESC, id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	return collectRecords(rows)
}

// WalletSummary aggregates a burner's records.
type WalletSummary struct {
	Burner      string
	BurnCount   int64
	TotalAmount decimal.Decimal // display units
	MintedCount int64
}

// WalletSummaries returns per-burner aggregates ordered by total burned
// descending.
func (s *Store) WalletSummaries(ctx context.Context) ([]WalletSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT burner,
		       COUNT(*),
		       SUM(amount),
		       SUM(CASE WHEN is_minted THEN 1 ELSE 0 END)
		FROM burn_records
		GROUP BY burner
		ORDER BY SUM(amount) DESC, burner ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("wallet summaries: %w", err)
	}
	defer rows.Close()

	var summaries []WalletSummary
	for rows.Next() {
		var (
			ws    WalletSummary
			total int64
		)
		if err := rows.Scan(&ws.Burner, &ws.BurnCount, &total, &ws.MintedCount); err != nil {
			return nil, fmt.Errorf("scan wallet summary: %w", err)
		}
		ws.TotalAmount = amount.Display(uint64(total))
		summaries = append(summaries, ws)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate wallet summaries: %w", err)
	}

	if summaries == nil {
		summaries = []WalletSummary{}
	}
	return summaries, nil
}

// Statistics aggregates the whole store.
type Statistics struct {
	TotalRecords  int64
	MintedRecords int64
	TotalBurned   decimal.Decimal // display units
	TotalMinted   decimal.Decimal // display units
	UniqueBurners int64
}

// Statistics returns store-wide aggregates.
func (s *Store) Statistics(ctx context.Context) (Statistics, error) {
	var (
		stats                    Statistics
		totalBurned, totalMinted sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN is_minted THEN 1 ELSE 0 END), 0),
		       SUM(amount),
		       SUM(CASE WHEN is_minted THEN amount ELSE 0 END),
		       COUNT(DISTINCT burner)
		FROM burn_records
	`).Scan(&stats.TotalRecords, &stats.MintedRecords, &totalBurned, &totalMinted, &stats.UniqueBurners)
	if err != nil {
		return Statistics{}, fmt.Errorf("statistics: %w", err)
	}

	stats.TotalBurned = amount.Display(uint64(totalBurned.Int64))
	stats.TotalMinted = amount.Display(uint64(totalMinted.Int64))
	return stats, nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(sc scanner) (Record, error) {
	var (
		rec    Record
		amt    int64
		memo   sql.NullString
		token  sql.NullString
		mc     sql.NullString
		obs    sql.NullTime
		minted sql.NullTime
		msig   sql.NullString
	)
	err := sc.Scan(
		&rec.ID, &rec.Signature, &rec.Burner, &amt, &memo, &token, &mc,
		&obs, &rec.CreatedAt, &minted, &msig,
	)
	if err != nil {
		return Record{}, err
	}

	rec.Amount = uint64(amt)
	rec.CreatedAt = rec.CreatedAt.UTC()
	if memo.Valid {
		rec.Memo = &memo.String
	}
	if token.Valid {
		rec.Token = &token.String
	}
	if mc.Valid {
		rec.MemoChecked = &mc.String
	}
	if obs.Valid {
		t := obs.Time.UTC()
		rec.ObservedAt = &t
	}
	if minted.Valid {
		t := minted.Time.UTC()
		rec.MintedAt = &t
	}
	if msig.Valid {
		rec.MintSignature = &msig.String
	}
	return rec, nil
}

func collectRecords(rows *sql.Rows) ([]Record, error) {
	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}

	if records == nil {
		records = []Record{}
	}
	return records, nil
}
