// Package source reads the upstream burn log.
//
// The burn log is an externally owned SQLite database. It is opened
// read-only and this package performs no writes, ever. The upstream schema
// has drifted over time, so the amount column may be stored as TEXT, REAL,
// or INTEGER, and timestamps may be unix epochs or strings in several
// layouts. All rows are normalized to canonical types here so the rest of
// the pipeline never sees the drift.
package source

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
)

// ErrUnavailable reports that the source burn log cannot be reached.
// Migration treats this as fatal before any write is attempted.
var ErrUnavailable = errors.New("source burn log unavailable")

// BurnEvent is a normalized row from the source burn log.
// Events are immutable once observed; optional fields are nil when the
// upstream row lacks them or they fail to decode.
type BurnEvent struct {
	Signature   string
	Burner      string
	Amount      uint64 // raw units, six implied decimal places
	Memo        *string
	Token       *string
	MemoChecked *string
	ObservedAt  *time.Time
	CreatedAt   time.Time
}

// Reader is a read-only adapter over the source burn log.
type Reader struct {
	db *sql.DB
}

// Open opens the burn log at path in read-only mode.
// Returns an error wrapping ErrUnavailable if the file does not exist or
// the database cannot be reached.
func Open(path string) (*Reader, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnavailable, path, err)
	}

	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrUnavailable, path, err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: connect %s: %v", ErrUnavailable, path, err)
	}

	return &Reader{db: db}, nil
}

// Close closes the underlying database handle.
func (r *Reader) Close() error {
	if r.db == nil {
		return nil
	}
	return r.db.Close()
}

// Burns returns burn events ordered newest-first by timestamp.
// An empty burner returns every event; otherwise only that burner's.
//
// Rows whose signature or burner cannot be decoded are skipped with a
// warning and counted in the second return value; they never abort the
// read. Optional fields that fail to decode simply become absent.
func (r *Reader) Burns(ctx context.Context, burner string) ([]BurnEvent, int, error) {
	query := `
		SELECT signature, burner, amount, memo, token, timestamp, memo_checked, created_at
		FROM burns
		ORDER BY timestamp DESC
	`
	var args []any
	if burner != "" {
		query = `
			SELECT signature, burner, amount, memo, token, timestamp, memo_checked, created_at
			FROM burns
			WHERE burner = ?
			ORDER BY timestamp DESC
		`
		args = append(args, burner)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query burns: %w", err)
	}
	defer rows.Close()

	var (
		events  []BurnEvent
		skipped int
	)
	for rows.Next() {
		var (
			sig, brn          sql.NullString
			memo, token, mc   sql.NullString
			rawAmount, ts, ca any
		)
		if err := rows.Scan(&sig, &brn, &rawAmount, &memo, &token, &ts, &mc, &ca); err != nil {
			skipped++
			slog.Warn("skipping undecodable burn row", "error", err)
			continue
		}

		// Signature and burner identify the row; without them it cannot
		// be migrated or deduplicated.
		if !sig.Valid || sig.String == "" || !brn.Valid || brn.String == "" {
			skipped++
			slog.Warn("skipping burn row with missing identity",
				"signature_present", sig.Valid && sig.String != "",
				"burner_present", brn.Valid && brn.String != "",
			)
			continue
		}

		ev := BurnEvent{
			Signature:   sig.String,
			Burner:      brn.String,
			Amount:      decodeAmount(rawAmount, sig.String),
			Memo:        optString(memo),
			Token:       optString(token),
			MemoChecked: optString(mc),
			ObservedAt:  decodeOptionalTime(ts),
			CreatedAt:   decodeCreatedAt(ca),
		}
		events = append(events, ev)
	}

	if err := rows.Err(); err != nil {
		return nil, skipped, fmt.Errorf("iterate burns: %w", err)
	}

	return events, skipped, nil
}

// CountForBurner returns the total number of burn rows for a burner.
func (r *Reader) CountForBurner(ctx context.Context, burner string) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM burns WHERE burner = ?`, burner,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count burns for %s: %w", burner, err)
	}
	return count, nil
}

// decodeAmount normalizes the amount column across its three physical
// encodings: decimal TEXT, REAL, or INTEGER. The stored value is already in
// raw units. Undecodable amounts become zero, which the threshold filter
// then rejects.
func decodeAmount(v any, signature string) uint64 {
	var d decimal.Decimal
	switch val := v.(type) {
	case int64:
		if val < 0 {
			slog.Warn("negative burn amount treated as zero", "signature", signature)
			return 0
		}
		return uint64(val)
	case float64:
		d = decimal.NewFromFloat(val)
	case []byte:
		parsed, err := decimal.NewFromString(string(val))
		if err != nil {
			slog.Warn("unparseable burn amount treated as zero", "signature", signature, "value", string(val))
			return 0
		}
		d = parsed
	case string:
		parsed, err := decimal.NewFromString(val)
		if err != nil {
			slog.Warn("unparseable burn amount treated as zero", "signature", signature, "value", val)
			return 0
		}
		d = parsed
	default:
		slog.Warn("unknown burn amount encoding treated as zero", "signature", signature)
		return 0
	}

	if d.IsNegative() {
		slog.Warn("negative burn amount treated as zero", "signature", signature)
		return 0
	}
	// Drop any fractional residue from REAL encodings; raw units are integral.
	bi := d.Truncate(0).BigInt()
	if !bi.IsUint64() {
		slog.Warn("oversized burn amount treated as zero", "signature", signature)
		return 0
	}
	return bi.Uint64()
}

// decodeOptionalTime normalizes an optional timestamp column that may hold
// a unix epoch integer, a string in one of the known layouts, a native
// time value, or NULL.
func decodeOptionalTime(v any) *time.Time {
	switch val := v.(type) {
	case nil:
		return nil
	case time.Time:
		t := val.UTC()
		return &t
	case int64:
		t := time.Unix(val, 0).UTC()
		return &t
	case []byte:
		return parseTimestamp(string(val))
	case string:
		return parseTimestamp(val)
	default:
		return nil
	}
}

// decodeCreatedAt is decodeOptionalTime for a required column; decode
// failure falls back to the current time rather than dropping the row.
func decodeCreatedAt(v any) time.Time {
	if t := decodeOptionalTime(v); t != nil {
		return *t
	}
	return time.Now().UTC()
}

// timestampLayouts are the string encodings observed in the upstream store.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

func parseTimestamp(s string) *time.Time {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			u := t.UTC()
			return &u
		}
	}
	return nil
}

func optString(v sql.NullString) *string {
	if !v.Valid || v.String == "" {
		return nil
	}
	s := v.String
	return &s
}
