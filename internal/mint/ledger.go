// Package mint settles pending burn records by issuing mint transactions
// against an external token ledger.
//
// The settlement loop is deliberately conservative: a signed transaction
// is recorded durably before it is broadcast, so a crash at any point
// leaves enough state behind to resume without crediting a burn twice.
package mint

import (
	"context"
	"fmt"
)

// Ledger error codes. These classify failures by what the caller should
// do next, not by transport detail.
const (
	// CodeUnavailable means the ledger endpoint cannot be reached or is
	// unhealthy. Nothing was submitted.
	CodeUnavailable = "LEDGER_UNAVAILABLE"
	// CodeRejected means the ledger refused the submission outright.
	CodeRejected = "SUBMISSION_REJECTED"
	// CodeConfirmTimeout means the submission was broadcast but its fate
	// is unknown within the confirmation window.
	CodeConfirmTimeout = "CONFIRMATION_TIMEOUT"
)

// LedgerError wraps a ledger failure with a classification code.
type LedgerError struct {
	Code    string
	Message string
	Err     error
}

func (e *LedgerError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *LedgerError) Unwrap() error {
	return e.Err
}

// TxStatus is the ledger's view of a previously broadcast transaction.
type TxStatus int

const (
	// TxUnknown means the ledger has no trace of the transaction.
	TxUnknown TxStatus = iota
	// TxConfirmed means the transaction landed and will not be rolled back.
	TxConfirmed
	// TxFailed means the transaction landed but its execution failed.
	TxFailed
)

func (s TxStatus) String() string {
	switch s {
	case TxConfirmed:
		return "confirmed"
	case TxFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// MintRequest describes one mint submission.
type MintRequest struct {
	// BurnSignature identifies the burn being settled.
	BurnSignature string
	// Wallet is the burner's wallet address receiving the mint.
	Wallet string
	// ReceivingAccount is the token account credited. Resolved by the
	// ledger from Wallet before preparation.
	ReceivingAccount string
	// CreateAccount indicates the receiving account does not exist yet
	// and must be created in the same transaction.
	CreateAccount bool
	// Amount is the mint amount in raw units.
	Amount uint64
}

// PreparedMint is a fully signed submission whose transaction signature is
// known before broadcast. Implementations carry whatever opaque payload
// their ledger needs.
type PreparedMint interface {
	// TxSignature returns the transaction signature the submission will
	// have on the ledger.
	TxSignature() string
}

// Ledger is the external token ledger the settlement loop mints against.
type Ledger interface {
	// ReceivingAccount resolves the token account for a wallet address.
	ReceivingAccount(wallet string) (string, error)

	// AccountExists reports whether the token account exists on the ledger.
	AccountExists(ctx context.Context, account string) (bool, error)

	// PrepareMint builds and signs a mint transaction without submitting
	// it. The returned submission's signature is stable across broadcast.
	PrepareMint(ctx context.Context, req MintRequest) (PreparedMint, error)

	// Broadcast submits a prepared transaction to the ledger.
	Broadcast(ctx context.Context, p PreparedMint) error

	// Confirm blocks until the broadcast transaction is confirmed, fails,
	// or the confirmation window elapses.
	Confirm(ctx context.Context, txSignature string) error

	// Status looks up a past transaction, searching ledger history, so an
	// interrupted submission can be classified during recovery.
	Status(ctx context.Context, txSignature string) (TxStatus, error)
}
