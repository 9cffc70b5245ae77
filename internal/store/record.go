package store

import "time"

// SettlementStatus describes where a burn record is in its lifecycle.
type SettlementStatus string

const (
	// StatusPending means the burn is recorded but not yet settled.
	StatusPending SettlementStatus = "pending"
	// StatusMinted means the mint settled and the record is terminal.
	StatusMinted SettlementStatus = "minted"
)

// Record is a burn record as stored in the destination ledger.
// The immutable fields come from the source event; MintedAt and
// MintSignature are set exactly once, atomically, when the burn settles.
type Record struct {
	ID            int64
	Signature     string
	Burner        string
	Amount        uint64
	Memo          *string
	Token         *string
	MemoChecked   *string
	ObservedAt    *time.Time
	CreatedAt     time.Time
	MintedAt      *time.Time
	MintSignature *string
}

// Status derives the record's lifecycle state from its settlement fields.
func (r Record) Status() SettlementStatus {
	if r.MintedAt != nil && r.MintSignature != nil {
		return StatusMinted
	}
	return StatusPending
}

// Intent is a durable note that a signed mint transaction exists for a
// burn and may have reached the ledger. It is written before broadcast
// and cleared when the burn settles or the submission is known dead.
type Intent struct {
	BurnSignature string
	TxSignature   string
	CreatedAt     time.Time
}
