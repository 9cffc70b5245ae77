// Package report renders the settlement state as a static HTML page.
package report

import (
	"context"
	_ "embed"
	"fmt"
	"html/template"
	"io"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/chainlace/burnbridge/internal/amount"
	"github.com/chainlace/burnbridge/internal/store"
)

//go:embed template.html
var pageTemplate string

// Generator renders reports from a store.
type Generator struct {
	st  *store.Store
	now func() time.Time
}

// Option configures a Generator.
type Option func(*Generator)

// WithNow overrides the clock, for tests.
func WithNow(now func() time.Time) Option {
	return func(g *Generator) { g.now = now }
}

// New returns a report Generator over the store.
func New(st *store.Store, opts ...Option) *Generator {
	g := &Generator{st: st, now: time.Now}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// pageData is the fully stringified view model. Formatting happens here,
// not in the template, so the template stays a plain layout.
type pageData struct {
	GeneratedAt string
	Stats       statsView
	Wallets     []walletView
	Records     []recordView
}

type statsView struct {
	TotalRecords  string
	MintedRecords string
	PendingCount  string
	TotalBurned   string
	TotalMinted   string
	UniqueBurners string
}

type walletView struct {
	Burner      string
	BurnCount   string
	Total       string
	MintedCount string
}

type recordView struct {
	Signature     string
	Burner        string
	Amount        string
	ObservedAt    string
	Status        string
	Complete      bool
	MintSignature string
}

// Write renders the report to path, creating parent directories as needed.
func (g *Generator) Write(ctx context.Context, path string) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create report directory: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report file: %w", err)
	}
	defer f.Close()

	if err := g.Render(ctx, f); err != nil {
		return err
	}
	return f.Close()
}

// Render writes the report HTML to w.
func (g *Generator) Render(ctx context.Context, w io.Writer) error {
	stats, err := g.st.Statistics(ctx)
	if err != nil {
		return fmt.Errorf("render report: %w", err)
	}
	wallets, err := g.st.WalletSummaries(ctx)
	if err != nil {
		return fmt.Errorf("render report: %w", err)
	}
	records, err := g.st.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("render report: %w", err)
	}

	p := message.NewPrinter(language.English)
	data := pageData{
		GeneratedAt: g.now().UTC().Format("2006-01-02 15:04:05 UTC"),
		Stats: statsView{
			TotalRecords:  p.Sprintf("%d", stats.TotalRecords),
			MintedRecords: p.Sprintf("%d", stats.MintedRecords),
			PendingCount:  p.Sprintf("%d", stats.TotalRecords-stats.MintedRecords),
			TotalBurned:   stats.TotalBurned.StringFixed(amount.Decimals),
			TotalMinted:   stats.TotalMinted.StringFixed(amount.Decimals),
			UniqueBurners: p.Sprintf("%d", stats.UniqueBurners),
		},
	}

	for _, ws := range wallets {
		data.Wallets = append(data.Wallets, walletView{
			Burner:      ws.Burner,
			BurnCount:   p.Sprintf("%d", ws.BurnCount),
			Total:       ws.TotalAmount.StringFixed(amount.Decimals),
			MintedCount: p.Sprintf("%d", ws.MintedCount),
		})
	}

	for _, rec := range records {
		rv := recordView{
			Signature: rec.Signature,
			Burner:    rec.Burner,
			Amount:    amount.Format(rec.Amount),
			Status:    string(rec.Status()),
			Complete:  rec.Status() == store.StatusMinted,
		}
		if rec.ObservedAt != nil {
			rv.ObservedAt = rec.ObservedAt.Format("2006-01-02 15:04:05")
		}
		if rec.MintSignature != nil {
			rv.MintSignature = *rec.MintSignature
		}
		data.Records = append(data.Records, rv)
	}

	tmpl, err := template.New("report").Parse(pageTemplate)
	if err != nil {
		return fmt.Errorf("parse report template: %w", err)
	}
	if err := tmpl.Execute(w, data); err != nil {
		return fmt.Errorf("execute report template: %w", err)
	}
	return nil
}
