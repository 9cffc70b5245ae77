package mint

import (
	"context"
	"fmt"
	"hash/fnv"
	"time"
)

// simDelay approximates a real submission round-trip so simulated runs
// pace like live ones.
const simDelay = 500 * time.Millisecond

// SimulatedLedger stands in for the real ledger when no mint authority
// keypair is available. It accepts every submission, produces a
// deterministic placeholder signature derived from the burn signature,
// wallet, and amount, and never touches the network.
type SimulatedLedger struct{}

// NewSimulatedLedger returns a ledger that only pretends to mint.
func NewSimulatedLedger() *SimulatedLedger {
	return &SimulatedLedger{}
}

// ReceivingAccount derives a placeholder token account from the wallet.
func (l *SimulatedLedger) ReceivingAccount(wallet string) (string, error) {
	h := fnv.New64a()
	h.Write([]byte(wallet))
	return fmt.Sprintf("simata%x", h.Sum64()), nil
}

// AccountExists always reports true; simulation never creates accounts.
func (l *SimulatedLedger) AccountExists(ctx context.Context, account string) (bool, error) {
	return true, nil
}

type simulatedMint struct {
	sig string
}

func (m *simulatedMint) TxSignature() string {
	return m.sig
}

// PrepareMint produces a deterministic placeholder signature so repeated
// simulations of the same burn are recognizable in logs.
func (l *SimulatedLedger) PrepareMint(ctx context.Context, req MintRequest) (PreparedMint, error) {
	h := fnv.New64a()
	h.Write([]byte(req.BurnSignature))
	h.Write([]byte(req.Wallet))
	sig := fmt.Sprintf("sim%xmock%xburn", h.Sum64(), req.Amount)
	return &simulatedMint{sig: sig}, nil
}

// Broadcast sleeps for the simulated round-trip and succeeds.
func (l *SimulatedLedger) Broadcast(ctx context.Context, p PreparedMint) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(simDelay):
		return nil
	}
}

// Confirm succeeds immediately; simulated submissions never fail.
func (l *SimulatedLedger) Confirm(ctx context.Context, txSignature string) error {
	return nil
}

// Status reports every transaction as unknown; nothing was ever broadcast.
func (l *SimulatedLedger) Status(ctx context.Context, txSignature string) (TxStatus, error) {
	return TxUnknown, nil
}
