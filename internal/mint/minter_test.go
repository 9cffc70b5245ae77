package mint

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainlace/burnbridge/internal/source"
	"github.com/chainlace/burnbridge/internal/store"
	"github.com/chainlace/burnbridge/internal/testutil"
)

const minBurn = 420000000

// fakeLedger is a scripted in-memory ledger. Behavior is keyed by burn
// signature so tests can fail specific records inside a batch.
type fakeLedger struct {
	rejectBroadcast map[string]bool     // burn signature -> reject on broadcast
	timeoutConfirm  map[string]bool     // burn signature -> confirmation window elapses
	statuses        map[string]TxStatus // tx signature -> recovery status
	statusErr       error

	broadcasts []string // tx signatures broadcast, in order
	prepared   []string // burn signatures prepared, in order
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		rejectBroadcast: map[string]bool{},
		timeoutConfirm:  map[string]bool{},
		statuses:        map[string]TxStatus{},
	}
}

func (l *fakeLedger) ReceivingAccount(wallet string) (string, error) {
	return "ata-" + wallet, nil
}

func (l *fakeLedger) AccountExists(ctx context.Context, account string) (bool, error) {
	return true, nil
}

type fakeMint struct {
	burnSig string
	txSig   string
}

func (m *fakeMint) TxSignature() string { return m.txSig }

func (l *fakeLedger) PrepareMint(ctx context.Context, req MintRequest) (PreparedMint, error) {
	l.prepared = append(l.prepared, req.BurnSignature)
	return &fakeMint{burnSig: req.BurnSignature, txSig: "tx-" + req.BurnSignature}, nil
}

func (l *fakeLedger) Broadcast(ctx context.Context, p PreparedMint) error {
	m := p.(*fakeMint)
	if l.rejectBroadcast[m.burnSig] {
		return &LedgerError{Code: CodeRejected, Message: "scripted rejection"}
	}
	l.broadcasts = append(l.broadcasts, m.txSig)
	return nil
}

func (l *fakeLedger) Confirm(ctx context.Context, txSignature string) error {
	for burnSig := range l.timeoutConfirm {
		if txSignature == "tx-"+burnSig {
			return &LedgerError{Code: CodeConfirmTimeout, Message: "scripted timeout"}
		}
	}
	return nil
}

func (l *fakeLedger) Status(ctx context.Context, txSignature string) (TxStatus, error) {
	if l.statusErr != nil {
		return TxUnknown, l.statusErr
	}
	return l.statuses[txSignature], nil
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func insertPending(t *testing.T, s *store.Store, sig, burner string, amt uint64, observed time.Time) {
	t.Helper()
	inserted, err := s.InsertPending(context.Background(), source.BurnEvent{
		Signature:  sig,
		Burner:     burner,
		Amount:     amt,
		ObservedAt: &observed,
		CreatedAt:  observed,
	})
	require.NoError(t, err)
	require.True(t, inserted)
}

func newTestMinter(s *store.Store, ledger Ledger, opts ...Option) *Minter {
	clock := testutil.NewFixedClock(time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC))
	base := []Option{
		WithInterval(0),
		WithRunTokenGenerator(NewFixedGenerator("run-1", "run-2", "run-3")),
		WithNow(clock.Now),
	}
	return New(s, ledger, minBurn, append(base, opts...)...)
}

func TestRun_SettlesPendingRecords(t *testing.T) {
	s := newTestStore(t)
	ledger := newFakeLedger()
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	insertPending(t, s, "burn1", "wallet1", 500000000, base)
	insertPending(t, s, "burn2", "wallet2", 600000000, base.Add(time.Hour))

	m := newTestMinter(s, ledger)
	summary, err := m.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, Summary{Pending: 2, Minted: 2}, summary)
	assert.Equal(t, []string{"tx-burn1", "tx-burn2"}, ledger.broadcasts,
		"oldest burn settles first")

	for _, sig := range []string{"burn1", "burn2"} {
		rec, err := s.Get(context.Background(), sig)
		require.NoError(t, err)
		assert.Equal(t, store.StatusMinted, rec.Status())
		require.NotNil(t, rec.MintSignature)
		assert.Equal(t, "tx-"+sig, *rec.MintSignature)

		_, open, err := s.OpenIntent(context.Background(), sig)
		require.NoError(t, err)
		assert.False(t, open, "intent must be cleared on settlement")
	}
}

func TestRun_SkipsBelowMinimum(t *testing.T) {
	s := newTestStore(t)
	ledger := newFakeLedger()
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	insertPending(t, s, "dust", "wallet1", 100, base)
	insertPending(t, s, "big", "wallet1", 500000000, base.Add(time.Hour))

	m := newTestMinter(s, ledger)
	summary, err := m.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, Summary{Pending: 1, Minted: 1}, summary)
	assert.Equal(t, []string{"tx-big"}, ledger.broadcasts)

	rec, err := s.Get(context.Background(), "dust")
	require.NoError(t, err)
	assert.Equal(t, store.StatusPending, rec.Status())
}

func TestRun_FailureKeepsRecordPendingAndBatchContinues(t *testing.T) {
	s := newTestStore(t)
	ledger := newFakeLedger()
	ledger.rejectBroadcast["burn1"] = true
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	insertPending(t, s, "burn1", "wallet1", 500000000, base)
	insertPending(t, s, "burn2", "wallet2", 600000000, base.Add(time.Hour))

	m := newTestMinter(s, ledger)
	summary, err := m.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, Summary{Pending: 2, Minted: 1, Failed: 1}, summary)

	rec, err := s.Get(context.Background(), "burn1")
	require.NoError(t, err)
	assert.Equal(t, store.StatusPending, rec.Status())

	// A rejected submission never reached the ledger, so no intent survives.
	_, open, err := s.OpenIntent(context.Background(), "burn1")
	require.NoError(t, err)
	assert.False(t, open)

	rec, err = s.Get(context.Background(), "burn2")
	require.NoError(t, err)
	assert.Equal(t, store.StatusMinted, rec.Status())
}

func TestRun_ConfirmTimeoutKeepsIntent(t *testing.T) {
	s := newTestStore(t)
	ledger := newFakeLedger()
	ledger.timeoutConfirm["burn1"] = true
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	insertPending(t, s, "burn1", "wallet1", 500000000, base)

	m := newTestMinter(s, ledger)
	summary, err := m.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, Summary{Pending: 1, Failed: 1}, summary)

	rec, err := s.Get(context.Background(), "burn1")
	require.NoError(t, err)
	assert.Equal(t, store.StatusPending, rec.Status())

	// The submission may still land, so its intent must survive the run.
	intent, open, err := s.OpenIntent(context.Background(), "burn1")
	require.NoError(t, err)
	require.True(t, open)
	assert.Equal(t, "tx-burn1", intent.TxSignature)
}

func TestRun_MintedRecordsAreTerminal(t *testing.T) {
	s := newTestStore(t)
	ledger := newFakeLedger()
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	insertPending(t, s, "burn1", "wallet1", 500000000, base)

	m := newTestMinter(s, ledger)
	_, err := m.Run(context.Background())
	require.NoError(t, err)

	second, err := m.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, Summary{}, second, "settled records must not be revisited")
	assert.Len(t, ledger.broadcasts, 1, "no second submission for a settled burn")
}

func TestRun_RecoversConfirmedIntentWithoutResubmitting(t *testing.T) {
	s := newTestStore(t)
	ledger := newFakeLedger()
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	insertPending(t, s, "burn1", "wallet1", 500000000, base)

	// A previous run signed and broadcast tx-old, then died before
	// settling. The ledger says it confirmed.
	ctx := context.Background()
	require.NoError(t, s.RecordIntent(ctx, "burn1", "tx-old", base))
	ledger.statuses["tx-old"] = TxConfirmed

	m := newTestMinter(s, ledger)
	summary, err := m.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, Summary{Pending: 1, Minted: 1}, summary)
	assert.Empty(t, ledger.broadcasts, "confirmed intent must not be resubmitted")
	assert.Empty(t, ledger.prepared, "confirmed intent must not be re-prepared")

	rec, err := s.Get(ctx, "burn1")
	require.NoError(t, err)
	require.NotNil(t, rec.MintSignature)
	assert.Equal(t, "tx-old", *rec.MintSignature, "settles under the recovered signature")
}

func TestRun_DeadIntentIsClearedAndResubmitted(t *testing.T) {
	s := newTestStore(t)
	ledger := newFakeLedger()
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	insertPending(t, s, "burn1", "wallet1", 500000000, base)

	ctx := context.Background()
	require.NoError(t, s.RecordIntent(ctx, "burn1", "tx-dead", base))
	ledger.statuses["tx-dead"] = TxFailed

	m := newTestMinter(s, ledger)
	summary, err := m.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, Summary{Pending: 1, Minted: 1}, summary)
	assert.Equal(t, []string{"tx-burn1"}, ledger.broadcasts, "dead intent resubmits fresh")

	rec, err := s.Get(ctx, "burn1")
	require.NoError(t, err)
	assert.Equal(t, "tx-burn1", *rec.MintSignature)
}

func TestRun_UnclassifiableIntentLeavesRecordUntouched(t *testing.T) {
	s := newTestStore(t)
	ledger := newFakeLedger()
	ledger.statusErr = &LedgerError{Code: CodeUnavailable, Message: "scripted outage"}
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	insertPending(t, s, "burn1", "wallet1", 500000000, base)

	ctx := context.Background()
	require.NoError(t, s.RecordIntent(ctx, "burn1", "tx-limbo", base))

	m := newTestMinter(s, ledger)
	summary, err := m.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, Summary{Pending: 1, Failed: 1}, summary)
	assert.Empty(t, ledger.broadcasts, "nothing submits while the old intent is unclassifiable")

	intent, open, err := s.OpenIntent(ctx, "burn1")
	require.NoError(t, err)
	require.True(t, open, "intent survives an outage")
	assert.Equal(t, "tx-limbo", intent.TxSignature)
}

func TestRun_SimulationWritesNothing(t *testing.T) {
	s := newTestStore(t)
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	insertPending(t, s, "burn1", "wallet1", 500000000, base)

	m := New(s, NewSimulatedLedger(), minBurn,
		WithInterval(0),
		WithSimulation(true),
		WithRunTokenGenerator(NewFixedGenerator("run-1")),
	)
	summary, err := m.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, Summary{Pending: 1, Simulated: 1}, summary)

	rec, err := s.Get(context.Background(), "burn1")
	require.NoError(t, err)
	assert.Equal(t, store.StatusPending, rec.Status(), "simulation must not settle records")

	_, open, err := s.OpenIntent(context.Background(), "burn1")
	require.NoError(t, err)
	assert.False(t, open, "simulation must not record intents")
}

func TestRun_CancellationStopsBetweenRecords(t *testing.T) {
	s := newTestStore(t)
	ledger := newFakeLedger()
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	insertPending(t, s, "burn1", "wallet1", 500000000, base)
	insertPending(t, s, "burn2", "wallet2", 600000000, base.Add(time.Hour))

	// First record settles immediately (no pacing before it); the batch
	// then blocks in the pacing wait, where cancellation lands.
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	m := newTestMinter(s, ledger, WithInterval(time.Hour))
	summary, err := m.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, summary.Minted)
	assert.Len(t, ledger.broadcasts, 1)
}
