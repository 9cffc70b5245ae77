package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestGet_MissingRecord(t *testing.T) {
	s := openTestStore(t)

	_, err := s.Get(context.Background(), "ghost")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestExists(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	exists, err := s.Exists(ctx, "sig1")
	if err != nil {
		t.Fatalf("Exists() failed: %v", err)
	}
	if exists {
		t.Error("Exists() = true before insert")
	}

	if _, err := s.InsertPending(ctx, testEvent("sig1", "wallet1", 100)); err != nil {
		t.Fatalf("InsertPending() failed: %v", err)
	}

	exists, err = s.Exists(ctx, "sig1")
	if err != nil {
		t.Fatalf("Exists() failed: %v", err)
	}
	if !exists {
		t.Error("Exists() = false after insert")
	}
}

func TestListPending_FiltersAndOrders(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	insert := func(sig string, amount uint64, observed time.Time) {
		t.Helper()
		ev := testEvent(sig, "wallet1", amount)
		ev.ObservedAt = &observed
		if _, err := s.InsertPending(ctx, ev); err != nil {
			t.Fatalf("InsertPending(%s) failed: %v", sig, err)
		}
	}

	insert("later", 500000000, base.Add(2*time.Hour))
	insert("earlier", 600000000, base)
	insert("small", 100, base.Add(time.Hour))
	insert("settled", 700000000, base.Add(30*time.Minute))

	if err := s.MarkMinted(ctx, "settled", "mintsig", base.Add(3*time.Hour)); err != nil {
		t.Fatalf("MarkMinted() failed: %v", err)
	}

	pending, err := s.ListPending(ctx, 420000000)
	if err != nil {
		t.Fatalf("ListPending() failed: %v", err)
	}

	var got []string
	for _, rec := range pending {
		got = append(got, rec.Signature)
	}
	want := []string{"earlier", "later"}
	if len(got) != len(want) {
		t.Fatalf("pending = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("pending = %v, want %v", got, want)
		}
	}
}

func TestListPending_Empty(t *testing.T) {
	s := openTestStore(t)

	pending, err := s.ListPending(context.Background(), 0)
	if err != nil {
		t.Fatalf("ListPending() failed: %v", err)
	}
	if pending == nil {
		t.Error("expected empty slice, got nil")
	}
	if len(pending) != 0 {
		t.Errorf("expected no pending records, got %d", len(pending))
	}
}

func TestListAll_NewestFirst(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	for i, sig := range []string{"first", "second", "third"} {
		ev := testEvent(sig, "wallet1", 100)
		observed := base.Add(time.Duration(i) * time.Hour)
		ev.ObservedAt = &observed
		if _, err := s.InsertPending(ctx, ev); err != nil {
			t.Fatalf("InsertPending(%s) failed: %v", sig, err)
		}
	}

	all, err := s.ListAll(ctx)
	if err != nil {
		t.Fatalf("ListAll() failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 records, got %d", len(all))
	}
	if all[0].Signature != "third" || all[2].Signature != "first" {
		t.Errorf("unexpected order: %s, %s, %s",
			all[0].Signature, all[1].Signature, all[2].Signature)
	}
}

func TestWalletSummaries(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	inserts := []struct {
		sig    string
		burner string
		amount uint64
	}{
		{"a1", "whale", 600000000},
		{"a2", "whale", 400000000},
		{"b1", "minnow", 420000000},
	}
	for _, in := range inserts {
		if _, err := s.InsertPending(ctx, testEvent(in.sig, in.burner, in.amount)); err != nil {
			t.Fatalf("InsertPending(%s) failed: %v", in.sig, err)
		}
	}
	if err := s.MarkMinted(ctx, "a1", "mintsig", time.Now()); err != nil {
		t.Fatalf("MarkMinted() failed: %v", err)
	}

	summaries, err := s.WalletSummaries(ctx)
	if err != nil {
		t.Fatalf("WalletSummaries() failed: %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("expected 2 summaries, got %d", len(summaries))
	}

	whale := summaries[0]
	if whale.Burner != "whale" {
		t.Fatalf("expected whale first (largest total), got %q", whale.Burner)
	}
	if whale.BurnCount != 2 || whale.MintedCount != 1 {
		t.Errorf("whale counts = %d/%d, want 2/1", whale.BurnCount, whale.MintedCount)
	}
	if !whale.TotalAmount.Equal(decimal.RequireFromString("1000")) {
		t.Errorf("whale total = %s, want 1000", whale.TotalAmount)
	}

	minnow := summaries[1]
	if !minnow.TotalAmount.Equal(decimal.RequireFromString("420")) {
		t.Errorf("minnow total = %s, want 420", minnow.TotalAmount)
	}
}

func TestStatistics(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.InsertPending(ctx, testEvent("a1", "whale", 600000000)); err != nil {
		t.Fatalf("InsertPending() failed: %v", err)
	}
	if _, err := s.InsertPending(ctx, testEvent("b1", "minnow", 400000000)); err != nil {
		t.Fatalf("InsertPending() failed: %v", err)
	}
	if err := s.MarkMinted(ctx, "a1", "mintsig", time.Now()); err != nil {
		t.Fatalf("MarkMinted() failed: %v", err)
	}

	stats, err := s.Statistics(ctx)
	if err != nil {
		t.Fatalf("Statistics() failed: %v", err)
	}

	if stats.TotalRecords != 2 || stats.MintedRecords != 1 || stats.UniqueBurners != 2 {
		t.Errorf("counts = %d/%d/%d, want 2/1/2",
			stats.TotalRecords, stats.MintedRecords, stats.UniqueBurners)
	}
	if !stats.TotalBurned.Equal(decimal.RequireFromString("1000")) {
		t.Errorf("TotalBurned = %s, want 1000", stats.TotalBurned)
	}
	if !stats.TotalMinted.Equal(decimal.RequireFromString("600")) {
		t.Errorf("TotalMinted = %s, want 600", stats.TotalMinted)
	}
}

func TestStatistics_EmptyStore(t *testing.T) {
	s := openTestStore(t)

	stats, err := s.Statistics(context.Background())
	if err != nil {
		t.Fatalf("Statistics() failed: %v", err)
	}
	if stats.TotalRecords != 0 {
		t.Errorf("TotalRecords = %d, want 0", stats.TotalRecords)
	}
	if !stats.TotalBurned.IsZero() {
		t.Errorf("TotalBurned = %s, want 0", stats.TotalBurned)
	}
}
