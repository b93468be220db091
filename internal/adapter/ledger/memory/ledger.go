// Package memory provides an in-process ledger used by tests and the
// development server.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/gagliardetto/solana-go"
	"github.com/piyushhsainii/rugs.fun/internal/adapter/ledger/runtime"
	"github.com/piyushhsainii/rugs.fun/internal/domain"
)

type state struct {
	authorities map[solana.PublicKey]domain.AuthorityRecord
	mints       map[solana.PublicKey]domain.Mint
	tokens      map[solana.PublicKey]domain.TokenAccount
	systems     map[solana.PublicKey]domain.SystemAccount
}

func newState() *state {
	return &state{
		authorities: make(map[solana.PublicKey]domain.AuthorityRecord),
		mints:       make(map[solana.PublicKey]domain.Mint),
		tokens:      make(map[solana.PublicKey]domain.TokenAccount),
		systems:     make(map[solana.PublicKey]domain.SystemAccount),
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.authorities {
		c.authorities[k] = v
	}
	for k, v := range s.mints {
		c.mints[k] = v
	}
	for k, v := range s.tokens {
		c.tokens[k] = v
	}
	for k, v := range s.systems {
		c.systems[k] = v
	}
	return c
}

func (s *state) inUse(addr solana.PublicKey) bool {
	if _, ok := s.authorities[addr]; ok {
		return true
	}
	if _, ok := s.mints[addr]; ok {
		return true
	}
	if _, ok := s.tokens[addr]; ok {
		return true
	}
	_, ok := s.systems[addr]
	return ok
}

// Ledger is a map-backed ledger. Invocations run one at a time against a
// private copy of the state which replaces the committed state only when the
// invocation succeeds.
type Ledger struct {
	mu      sync.Mutex
	state   *state
	journal []domain.TransferChecked
}

// NewLedger creates an empty ledger
func NewLedger() *Ledger {
	return &Ledger{state: newState()}
}

// Atomically implements domain.Ledger
func (l *Ledger) Atomically(ctx context.Context, fn func(ctx context.Context, tx domain.LedgerTx) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &ledgerTx{state: l.state.clone()}
	if err := fn(ctx, tx); err != nil {
		return err
	}

	l.state = tx.state
	l.journal = append(l.journal, tx.journal...)
	return nil
}

// View implements domain.Ledger
func (l *Ledger) View(ctx context.Context, fn func(ctx context.Context, r domain.AccountReader) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	return fn(ctx, &ledgerTx{state: l.state})
}

// RecentTransfers implements domain.TransferJournal
func (l *Ledger) RecentTransfers(ctx context.Context, mint solana.PublicKey, limit int) ([]domain.TransferChecked, error) {
	if limit <= 0 {
		return nil, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]domain.TransferChecked, 0, limit)
	for i := len(l.journal) - 1; i >= 0 && len(out) < limit; i-- {
		if l.journal[i].Mint.Equals(mint) {
			out = append(out, l.journal[i])
		}
	}
	return out, nil
}

// PutMint implements domain.FixtureWriter
func (l *Ledger) PutMint(ctx context.Context, mint *domain.Mint) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.state.mints[mint.Address] = *mint
	return nil
}

// PutSystemAccount implements domain.FixtureWriter
func (l *Ledger) PutSystemAccount(ctx context.Context, acct *domain.SystemAccount) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.state.systems[acct.Address] = *acct
	return nil
}

// PutTokenAccount implements domain.FixtureWriter
func (l *Ledger) PutTokenAccount(ctx context.Context, acct *domain.TokenAccount) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.state.tokens[acct.Address] = *acct
	return nil
}

type ledgerTx struct {
	state   *state
	journal []domain.TransferChecked
}

func (t *ledgerTx) GetAuthorityRecord(ctx context.Context, addr solana.PublicKey) (*domain.AuthorityRecord, error) {
	rec, ok := t.state.authorities[addr]
	if !ok {
		return nil, fmt.Errorf("authority record %s: %w", addr, domain.ErrAccountNotFound)
	}
	return &rec, nil
}

func (t *ledgerTx) GetMint(ctx context.Context, addr solana.PublicKey) (*domain.Mint, error) {
	mint, ok := t.state.mints[addr]
	if !ok {
		return nil, fmt.Errorf("mint %s: %w", addr, domain.ErrAccountNotFound)
	}
	return &mint, nil
}

func (t *ledgerTx) GetTokenAccount(ctx context.Context, addr solana.PublicKey) (*domain.TokenAccount, error) {
	acct, ok := t.state.tokens[addr]
	if !ok {
		return nil, fmt.Errorf("token account %s: %w", addr, domain.ErrAccountNotFound)
	}
	return &acct, nil
}

func (t *ledgerTx) GetSystemAccount(ctx context.Context, addr solana.PublicKey) (*domain.SystemAccount, error) {
	acct, ok := t.state.systems[addr]
	if !ok {
		return nil, fmt.Errorf("system account %s: %w", addr, domain.ErrAccountNotFound)
	}
	return &acct, nil
}

func (t *ledgerTx) payer(addr solana.PublicKey) (*domain.SystemAccount, error) {
	payer, ok := t.state.systems[addr]
	if !ok {
		return nil, domain.WrapError(domain.KindAccountMismatch, domain.ErrAccountNotFound, "payer %s", addr)
	}
	return &payer, nil
}

func (t *ledgerTx) CreateAuthorityRecord(ctx context.Context, payerAddr solana.PublicKey, rec *domain.AuthorityRecord, space int) error {
	if t.state.inUse(rec.Address) {
		return domain.NewError(domain.KindAlreadyInitialized, "account %s already in use", rec.Address)
	}
	payer, err := t.payer(payerAddr)
	if err != nil {
		return err
	}
	funded, err := runtime.ChargeRent(payer, space)
	if err != nil {
		return err
	}

	stored := *rec
	stored.Lamports = funded
	t.state.systems[payer.Address] = *payer
	t.state.authorities[rec.Address] = stored
	rec.Lamports = funded
	return nil
}

func (t *ledgerTx) CreateTokenAccount(ctx context.Context, payerAddr solana.PublicKey, acct *domain.TokenAccount) error {
	if t.state.inUse(acct.Address) {
		return domain.NewError(domain.KindAlreadyInitialized, "account %s already in use", acct.Address)
	}
	payer, err := t.payer(payerAddr)
	if err != nil {
		return err
	}
	if _, err := runtime.ChargeRent(payer, domain.TokenAccountSpace); err != nil {
		return err
	}

	t.state.systems[payer.Address] = *payer
	t.state.tokens[acct.Address] = *acct
	return nil
}

func (t *ledgerTx) TransferChecked(ctx context.Context, ix domain.TransferChecked, signers domain.SignerSet) error {
	mint, err := t.GetMint(ctx, ix.Mint)
	if err != nil {
		return domain.WrapError(domain.KindAccountMismatch, err, "transfer mint")
	}
	src, err := t.GetTokenAccount(ctx, ix.Source)
	if err != nil {
		return domain.WrapError(domain.KindAccountMismatch, err, "transfer source")
	}
	dst, err := t.GetTokenAccount(ctx, ix.Destination)
	if err != nil {
		return domain.WrapError(domain.KindAccountMismatch, err, "transfer destination")
	}
	if src.Address.Equals(dst.Address) {
		dst = src
	}

	if err := runtime.ApplyTransferChecked(src, dst, mint, ix, signers); err != nil {
		return err
	}

	t.state.tokens[src.Address] = *src
	t.state.tokens[dst.Address] = *dst
	t.journal = append(t.journal, ix)
	return nil
}
