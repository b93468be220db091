package domain

import (
	"context"

	"github.com/gagliardetto/solana-go"
)

// AccountReader reads ledger records by address.
// Missing records are reported with an error wrapping ErrAccountNotFound.
type AccountReader interface {
	// GetAuthorityRecord retrieves the authority record stored at addr
	GetAuthorityRecord(ctx context.Context, addr solana.PublicKey) (*AuthorityRecord, error)

	// GetMint retrieves the asset descriptor at addr
	GetMint(ctx context.Context, addr solana.PublicKey) (*Mint, error)

	// GetTokenAccount retrieves the token balance record at addr
	GetTokenAccount(ctx context.Context, addr solana.PublicKey) (*TokenAccount, error)

	// GetSystemAccount retrieves the lamport balance record at addr
	GetSystemAccount(ctx context.Context, addr solana.PublicKey) (*SystemAccount, error)
}

// LedgerTx is the view one atomic invocation has of the ledger
type LedgerTx interface {
	AccountReader

	// CreateAuthorityRecord allocates rec, charging payer the rent for space bytes
	CreateAuthorityRecord(ctx context.Context, payer solana.PublicKey, rec *AuthorityRecord, space int) error

	// CreateTokenAccount allocates acct, charging payer the token account rent
	CreateTokenAccount(ctx context.Context, payer solana.PublicKey, acct *TokenAccount) error

	// TransferChecked executes the token program's checked transfer
	TransferChecked(ctx context.Context, ix TransferChecked, signers SignerSet) error
}

// Ledger is the host that executes vault invocations.
// Atomically commits every effect of fn or, when fn returns an error, none.
// Invocations touching the same records are serialized by the ledger.
type Ledger interface {
	Atomically(ctx context.Context, fn func(ctx context.Context, tx LedgerTx) error) error

	// View runs fn against a consistent read-only snapshot
	View(ctx context.Context, fn func(ctx context.Context, r AccountReader) error) error
}

// FixtureWriter installs records the vault never creates itself
// (mints, payers, user token accounts) for development ledgers
type FixtureWriter interface {
	PutMint(ctx context.Context, mint *Mint) error
	PutSystemAccount(ctx context.Context, acct *SystemAccount) error
	PutTokenAccount(ctx context.Context, acct *TokenAccount) error
}

// TransferJournal lists committed transfers
type TransferJournal interface {
	// RecentTransfers returns up to limit transfers of mint, newest first
	RecentTransfers(ctx context.Context, mint solana.PublicKey, limit int) ([]TransferChecked, error)
}
