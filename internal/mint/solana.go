package mint

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/gagliardetto/solana-go"
	associatedtokenaccount "github.com/gagliardetto/solana-go/programs/associated-token-account"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/chainlace/burnbridge/internal/amount"
)

const (
	// confirmPoll is how often Confirm re-checks a broadcast transaction.
	confirmPoll = 2 * time.Second
	// confirmWindow bounds how long Confirm waits before giving up.
	confirmWindow = 60 * time.Second
	// lowBalanceLamports is the authority balance below which fee
	// exhaustion is likely within a batch.
	lowBalanceLamports = 10_000_000
)

// SolanaLedger mints SPL tokens through a Solana RPC endpoint.
// It holds the mint authority keypair and signs every submission locally.
type SolanaLedger struct {
	client    *rpc.Client
	mint      solana.PublicKey
	authority solana.PrivateKey
}

// LoadAuthority reads the mint authority keypair from a Solana keygen
// file. A missing file is not an error: it returns ok=false so the caller
// can fall back to simulation.
func LoadAuthority(path string) (solana.PrivateKey, bool, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("stat keypair %s: %w", path, err)
	}

	key, err := solana.PrivateKeyFromSolanaKeygenFile(path)
	if err != nil {
		return nil, false, fmt.Errorf("load keypair %s: %w", path, err)
	}
	return key, true, nil
}

// NewSolanaLedger connects to the RPC endpoint and verifies it is usable:
// the node answers, the token mint account exists, and the authority has
// some fee balance (low balance only warns).
func NewSolanaLedger(ctx context.Context, rpcURL, tokenMint string, authority solana.PrivateKey) (*SolanaLedger, error) {
	mintKey, err := solana.PublicKeyFromBase58(tokenMint)
	if err != nil {
		return nil, fmt.Errorf("invalid token mint address %q: %w", tokenMint, err)
	}

	client := rpc.New(rpcURL)

	version, err := client.GetVersion(ctx)
	if err != nil {
		return nil, &LedgerError{
			Code:    CodeUnavailable,
			Message: fmt.Sprintf("rpc endpoint %s unreachable", rpcURL),
			Err:     err,
		}
	}
	slog.Debug("connected to rpc endpoint", "url", rpcURL, "solana_core", version.SolanaCore)

	if _, err := client.GetAccountInfo(ctx, mintKey); err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return nil, &LedgerError{
				Code:    CodeUnavailable,
				Message: fmt.Sprintf("token mint %s does not exist on this cluster", tokenMint),
			}
		}
		return nil, &LedgerError{
			Code:    CodeUnavailable,
			Message: "failed to verify token mint",
			Err:     err,
		}
	}

	balance, err := client.GetBalance(ctx, authority.PublicKey(), rpc.CommitmentConfirmed)
	if err != nil {
		return nil, &LedgerError{
			Code:    CodeUnavailable,
			Message: "failed to read authority balance",
			Err:     err,
		}
	}
	if balance.Value < lowBalanceLamports {
		slog.Warn("mint authority balance is low",
			"authority", authority.PublicKey().String(),
			"lamports", balance.Value,
		)
	}

	return &SolanaLedger{client: client, mint: mintKey, authority: authority}, nil
}

// ReceivingAccount resolves the associated token account for a wallet.
func (l *SolanaLedger) ReceivingAccount(wallet string) (string, error) {
	owner, err := solana.PublicKeyFromBase58(wallet)
	if err != nil {
		return "", fmt.Errorf("invalid wallet address %q: %w", wallet, err)
	}
	ata, _, err := solana.FindAssociatedTokenAddress(owner, l.mint)
	if err != nil {
		return "", fmt.Errorf("derive token account for %s: %w", wallet, err)
	}
	return ata.String(), nil
}

// AccountExists reports whether the token account exists on the ledger.
func (l *SolanaLedger) AccountExists(ctx context.Context, account string) (bool, error) {
	key, err := solana.PublicKeyFromBase58(account)
	if err != nil {
		return false, fmt.Errorf("invalid account address %q: %w", account, err)
	}

	_, err = l.client.GetAccountInfo(ctx, key)
	if errors.Is(err, rpc.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, &LedgerError{
			Code:    CodeUnavailable,
			Message: fmt.Sprintf("failed to look up account %s", account),
			Err:     err,
		}
	}
	return true, nil
}

// solanaMint is a signed transaction ready to broadcast.
type solanaMint struct {
	tx  *solana.Transaction
	sig solana.Signature
}

func (m *solanaMint) TxSignature() string {
	return m.sig.String()
}

// PrepareMint builds and signs the mint transaction. Signing happens here,
// before any network submission, so the transaction signature is durable
// knowledge the moment this returns.
func (l *SolanaLedger) PrepareMint(ctx context.Context, req MintRequest) (PreparedMint, error) {
	wallet, err := solana.PublicKeyFromBase58(req.Wallet)
	if err != nil {
		return nil, fmt.Errorf("invalid wallet address %q: %w", req.Wallet, err)
	}
	dest, err := solana.PublicKeyFromBase58(req.ReceivingAccount)
	if err != nil {
		return nil, fmt.Errorf("invalid receiving account %q: %w", req.ReceivingAccount, err)
	}

	var instrs []solana.Instruction
	if req.CreateAccount {
		createIx, err := associatedtokenaccount.NewCreateInstruction(
			l.authority.PublicKey(),
			wallet,
			l.mint,
		).ValidateAndBuild()
		if err != nil {
			return nil, fmt.Errorf("build account creation for %s: %w", req.Wallet, err)
		}
		instrs = append(instrs, createIx)
	}

	mintIx, err := token.NewMintToInstruction(
		req.Amount,
		l.mint,
		dest,
		l.authority.PublicKey(),
		nil,
	).ValidateAndBuild()
	if err != nil {
		return nil, fmt.Errorf("build mint instruction for %s: %w", req.BurnSignature, err)
	}
	instrs = append(instrs, mintIx)

	recent, err := l.client.GetLatestBlockhash(ctx, rpc.CommitmentConfirmed)
	if err != nil {
		return nil, &LedgerError{
			Code:    CodeUnavailable,
			Message: "failed to fetch recent blockhash",
			Err:     err,
		}
	}

	tx, err := solana.NewTransaction(
		instrs,
		recent.Value.Blockhash,
		solana.TransactionPayer(l.authority.PublicKey()),
	)
	if err != nil {
		return nil, fmt.Errorf("build transaction for %s: %w", req.BurnSignature, err)
	}

	_, err = tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(l.authority.PublicKey()) {
			return &l.authority
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("sign transaction for %s: %w", req.BurnSignature, err)
	}

	slog.Debug("prepared mint transaction",
		"burn_signature", req.BurnSignature,
		"tx_signature", tx.Signatures[0].String(),
		"amount", amount.Format(req.Amount),
		"create_account", req.CreateAccount,
	)

	return &solanaMint{tx: tx, sig: tx.Signatures[0]}, nil
}

// Broadcast submits a prepared transaction.
func (l *SolanaLedger) Broadcast(ctx context.Context, p PreparedMint) error {
	m, ok := p.(*solanaMint)
	if !ok {
		return fmt.Errorf("broadcast: not a solana submission: %T", p)
	}

	_, err := l.client.SendTransactionWithOpts(ctx, m.tx, rpc.TransactionOpts{
		PreflightCommitment: rpc.CommitmentConfirmed,
	})
	if err != nil {
		return &LedgerError{
			Code:    CodeRejected,
			Message: fmt.Sprintf("submission %s rejected", m.sig),
			Err:     err,
		}
	}
	return nil
}

// Confirm polls the transaction status until it confirms, fails, or the
// confirmation window elapses.
func (l *SolanaLedger) Confirm(ctx context.Context, txSignature string) error {
	sig, err := solana.SignatureFromBase58(txSignature)
	if err != nil {
		return fmt.Errorf("invalid transaction signature %q: %w", txSignature, err)
	}

	deadline := time.Now().Add(confirmWindow)
	ticker := time.NewTicker(confirmPoll)
	defer ticker.Stop()

	for {
		out, err := l.client.GetSignatureStatuses(ctx, false, sig)
		if err == nil && len(out.Value) > 0 && out.Value[0] != nil {
			st := out.Value[0]
			if st.Err != nil {
				return &LedgerError{
					Code:    CodeRejected,
					Message: fmt.Sprintf("transaction %s failed on ledger: %v", txSignature, st.Err),
				}
			}
			switch st.ConfirmationStatus {
			case rpc.ConfirmationStatusConfirmed, rpc.ConfirmationStatusFinalized:
				return nil
			}
		}

		if time.Now().After(deadline) {
			return &LedgerError{
				Code:    CodeConfirmTimeout,
				Message: fmt.Sprintf("transaction %s not confirmed within %s", txSignature, confirmWindow),
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Status classifies a past transaction, searching ledger history so old
// submissions are still found.
func (l *SolanaLedger) Status(ctx context.Context, txSignature string) (TxStatus, error) {
	sig, err := solana.SignatureFromBase58(txSignature)
	if err != nil {
		return TxUnknown, fmt.Errorf("invalid transaction signature %q: %w", txSignature, err)
	}

	out, err := l.client.GetSignatureStatuses(ctx, true, sig)
	if err != nil {
		return TxUnknown, &LedgerError{
			Code:    CodeUnavailable,
			Message: fmt.Sprintf("failed to look up transaction %s", txSignature),
			Err:     err,
		}
	}

	if len(out.Value) == 0 || out.Value[0] == nil {
		return TxUnknown, nil
	}
	st := out.Value[0]
	if st.Err != nil {
		return TxFailed, nil
	}
	switch st.ConfirmationStatus {
	case rpc.ConfirmationStatusConfirmed, rpc.ConfirmationStatusFinalized:
		return TxConfirmed, nil
	}
	return TxUnknown, nil
}
