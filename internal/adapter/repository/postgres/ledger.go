package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/piyushhsainii/rugs.fun/internal/adapter/ledger/runtime"
	"github.com/piyushhsainii/rugs.fun/internal/domain"
)

// Ledger implements domain.Ledger and domain.FixtureWriter on PostgreSQL.
// Each invocation is one SQL transaction; records it reads for writing are
// locked with SELECT ... FOR UPDATE until commit.
type Ledger struct {
	db *DB
}

// NewLedger creates a new PostgreSQL ledger
func NewLedger(db *DB) *Ledger {
	return &Ledger{db: db}
}

// Atomically implements domain.Ledger
func (l *Ledger) Atomically(ctx context.Context, fn func(ctx context.Context, tx domain.LedgerTx) error) error {
	dbTx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer dbTx.Rollback()

	if err := fn(ctx, &ledgerTx{tx: dbTx, lock: true}); err != nil {
		return err
	}

	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// View implements domain.Ledger
func (l *Ledger) View(ctx context.Context, fn func(ctx context.Context, r domain.AccountReader) error) error {
	dbTx, err := l.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return fmt.Errorf("failed to begin read transaction: %w", err)
	}
	defer dbTx.Rollback()

	if err := fn(ctx, &ledgerTx{tx: dbTx}); err != nil {
		return err
	}

	return dbTx.Commit()
}

// PutMint implements domain.FixtureWriter
func (l *Ledger) PutMint(ctx context.Context, mint *domain.Mint) error {
	query := `
		INSERT INTO mints (address, decimals, mint_authority, supply, is_initialized, token_program)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (address) DO UPDATE SET
			decimals = EXCLUDED.decimals,
			mint_authority = EXCLUDED.mint_authority,
			supply = EXCLUDED.supply,
			is_initialized = EXCLUDED.is_initialized,
			token_program = EXCLUDED.token_program
	`

	var mintAuthority interface{}
	if mint.MintAuthority != nil {
		mintAuthority = mint.MintAuthority.String()
	}

	_, err := l.db.ExecContext(ctx, query,
		mint.Address.String(),
		int16(mint.Decimals),
		mintAuthority,
		formatUnits(mint.Supply),
		mint.IsInitialized,
		mint.TokenProgram.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to put mint: %w", err)
	}

	return nil
}

// PutSystemAccount implements domain.FixtureWriter
func (l *Ledger) PutSystemAccount(ctx context.Context, acct *domain.SystemAccount) error {
	query := `
		INSERT INTO system_accounts (address, lamports)
		VALUES ($1, $2)
		ON CONFLICT (address) DO UPDATE SET lamports = EXCLUDED.lamports
	`

	_, err := l.db.ExecContext(ctx, query, acct.Address.String(), formatUnits(acct.Lamports))
	if err != nil {
		return fmt.Errorf("failed to put system account: %w", err)
	}

	return nil
}

// PutTokenAccount implements domain.FixtureWriter
func (l *Ledger) PutTokenAccount(ctx context.Context, acct *domain.TokenAccount) error {
	query := `
		INSERT INTO token_accounts (address, mint, owner, amount, token_program)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (address) DO UPDATE SET
			mint = EXCLUDED.mint,
			owner = EXCLUDED.owner,
			amount = EXCLUDED.amount,
			token_program = EXCLUDED.token_program
	`

	_, err := l.db.ExecContext(ctx, query,
		acct.Address.String(),
		acct.Mint.String(),
		acct.Owner.String(),
		formatUnits(acct.Amount),
		acct.TokenProgram.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to put token account: %w", err)
	}

	return nil
}

// RecentTransfers implements domain.TransferJournal
func (l *Ledger) RecentTransfers(ctx context.Context, mint solana.PublicKey, limit int) ([]domain.TransferChecked, error) {
	if limit <= 0 {
		return nil, nil
	}

	query := `
		SELECT id, source, destination, mint, authority, amount, decimals
		FROM transfers
		WHERE mint = $1
		ORDER BY executed_at DESC, id
		LIMIT $2
	`

	rows, err := l.db.QueryContext(ctx, query, mint.String(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query transfers: %w", err)
	}
	defer rows.Close()

	var transfers []domain.TransferChecked
	for rows.Next() {
		var ix domain.TransferChecked
		var source, destination, mintAddr, authority, amount string
		var decimals int16

		if err := rows.Scan(&ix.ID, &source, &destination, &mintAddr, &authority, &amount, &decimals); err != nil {
			return nil, fmt.Errorf("failed to scan transfer: %w", err)
		}
		if ix.Source, err = parseKey("source", source); err != nil {
			return nil, err
		}
		if ix.Destination, err = parseKey("destination", destination); err != nil {
			return nil, err
		}
		if ix.Mint, err = parseKey("mint", mintAddr); err != nil {
			return nil, err
		}
		if ix.Authority, err = parseKey("authority", authority); err != nil {
			return nil, err
		}
		if ix.Amount, err = parseUnits("amount", amount); err != nil {
			return nil, err
		}
		ix.Decimals = uint8(decimals)

		transfers = append(transfers, ix)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transfers: %w", err)
	}

	return transfers, nil
}

// ledgerTx implements domain.LedgerTx over one SQL transaction
type ledgerTx struct {
	tx   *sql.Tx
	lock bool
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (t *ledgerTx) forUpdate() string {
	if t.lock {
		return " FOR UPDATE"
	}
	return ""
}

// GetAuthorityRecord retrieves the authority record stored at addr
func (t *ledgerTx) GetAuthorityRecord(ctx context.Context, addr solana.PublicKey) (*domain.AuthorityRecord, error) {
	query := `
		SELECT address, owner, label, bump, lamports
		FROM authority_records
		WHERE address = $1` + t.forUpdate()

	var address, owner, lamports string
	var rec domain.AuthorityRecord
	var bump int16

	err := t.tx.QueryRowContext(ctx, query, addr.String()).Scan(
		&address,
		&owner,
		&rec.Label,
		&bump,
		&lamports,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("authority record %s: %w", addr, domain.ErrAccountNotFound)
		}
		return nil, fmt.Errorf("failed to get authority record: %w", err)
	}

	if rec.Address, err = parseKey("address", address); err != nil {
		return nil, err
	}
	if rec.Owner, err = parseKey("owner", owner); err != nil {
		return nil, err
	}
	if rec.Lamports, err = parseUnits("lamports", lamports); err != nil {
		return nil, err
	}
	rec.Bump = uint8(bump)

	return &rec, nil
}

// GetMint retrieves the asset descriptor at addr
func (t *ledgerTx) GetMint(ctx context.Context, addr solana.PublicKey) (*domain.Mint, error) {
	query := `
		SELECT address, decimals, mint_authority, supply, is_initialized, token_program
		FROM mints
		WHERE address = $1
	`

	var address, supply, tokenProgram string
	var mintAuthority sql.NullString
	var decimals int16
	var mint domain.Mint

	err := t.tx.QueryRowContext(ctx, query, addr.String()).Scan(
		&address,
		&decimals,
		&mintAuthority,
		&supply,
		&mint.IsInitialized,
		&tokenProgram,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("mint %s: %w", addr, domain.ErrAccountNotFound)
		}
		return nil, fmt.Errorf("failed to get mint: %w", err)
	}

	if mint.Address, err = parseKey("address", address); err != nil {
		return nil, err
	}
	if mint.TokenProgram, err = parseKey("token_program", tokenProgram); err != nil {
		return nil, err
	}
	if mint.Supply, err = parseUnits("supply", supply); err != nil {
		return nil, err
	}
	// Parse mint_authority (nullable)
	if mintAuthority.Valid {
		authority, err := parseKey("mint_authority", mintAuthority.String)
		if err != nil {
			return nil, err
		}
		mint.MintAuthority = &authority
	}
	mint.Decimals = uint8(decimals)

	return &mint, nil
}

// GetTokenAccount retrieves the token balance record at addr
func (t *ledgerTx) GetTokenAccount(ctx context.Context, addr solana.PublicKey) (*domain.TokenAccount, error) {
	query := `
		SELECT address, mint, owner, amount, token_program
		FROM token_accounts
		WHERE address = $1` + t.forUpdate()

	acct, err := scanTokenAccount(t.tx.QueryRowContext(ctx, query, addr.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("token account %s: %w", addr, domain.ErrAccountNotFound)
		}
		return nil, fmt.Errorf("failed to get token account: %w", err)
	}

	return acct, nil
}

// GetSystemAccount retrieves the lamport balance record at addr
func (t *ledgerTx) GetSystemAccount(ctx context.Context, addr solana.PublicKey) (*domain.SystemAccount, error) {
	query := `
		SELECT lamports
		FROM system_accounts
		WHERE address = $1` + t.forUpdate()

	var lamports string
	err := t.tx.QueryRowContext(ctx, query, addr.String()).Scan(&lamports)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("system account %s: %w", addr, domain.ErrAccountNotFound)
		}
		return nil, fmt.Errorf("failed to get system account: %w", err)
	}

	acct := &domain.SystemAccount{Address: addr}
	if acct.Lamports, err = parseUnits("lamports", lamports); err != nil {
		return nil, err
	}

	return acct, nil
}

// CreateAuthorityRecord allocates rec, charging payer the rent for space bytes
func (t *ledgerTx) CreateAuthorityRecord(ctx context.Context, payerAddr solana.PublicKey, rec *domain.AuthorityRecord, space int) error {
	payer, err := t.allocate(ctx, payerAddr, rec.Address)
	if err != nil {
		return err
	}
	funded, err := runtime.ChargeRent(payer, space)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO authority_records (address, owner, label, bump, lamports)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (address) DO NOTHING
	`

	res, err := t.tx.ExecContext(ctx, query,
		rec.Address.String(),
		rec.Owner.String(),
		rec.Label,
		int16(rec.Bump),
		formatUnits(funded),
	)
	if err != nil {
		return fmt.Errorf("failed to insert authority record: %w", err)
	}
	if err := claimed(res, rec.Address); err != nil {
		return err
	}

	if err := t.setLamports(ctx, payer); err != nil {
		return err
	}

	rec.Lamports = funded
	return nil
}

// CreateTokenAccount allocates acct, charging payer the token account rent
func (t *ledgerTx) CreateTokenAccount(ctx context.Context, payerAddr solana.PublicKey, acct *domain.TokenAccount) error {
	payer, err := t.allocate(ctx, payerAddr, acct.Address)
	if err != nil {
		return err
	}
	if _, err := runtime.ChargeRent(payer, domain.TokenAccountSpace); err != nil {
		return err
	}

	query := `
		INSERT INTO token_accounts (address, mint, owner, amount, token_program)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (address) DO NOTHING
	`

	res, err := t.tx.ExecContext(ctx, query,
		acct.Address.String(),
		acct.Mint.String(),
		acct.Owner.String(),
		formatUnits(acct.Amount),
		acct.TokenProgram.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert token account: %w", err)
	}
	if err := claimed(res, acct.Address); err != nil {
		return err
	}

	return t.setLamports(ctx, payer)
}

// TransferChecked executes the token program's checked transfer
// Logic:
//  1. Load the mint, then lock both token accounts in address order
//  2. Apply the token program rules to the locked rows
//  3. Persist both balances and journal the instruction
func (t *ledgerTx) TransferChecked(ctx context.Context, ix domain.TransferChecked, signers domain.SignerSet) error {
	mint, err := t.GetMint(ctx, ix.Mint)
	if err != nil {
		return domain.WrapError(domain.KindAccountMismatch, err, "transfer mint")
	}

	locked, err := t.lockTokenAccounts(ctx, ix.Source, ix.Destination)
	if err != nil {
		return err
	}
	src, ok := locked[ix.Source]
	if !ok {
		return domain.WrapError(domain.KindAccountMismatch, fmt.Errorf("token account %s: %w", ix.Source, domain.ErrAccountNotFound), "transfer source")
	}
	dst, ok := locked[ix.Destination]
	if !ok {
		return domain.WrapError(domain.KindAccountMismatch, fmt.Errorf("token account %s: %w", ix.Destination, domain.ErrAccountNotFound), "transfer destination")
	}

	if err := runtime.ApplyTransferChecked(src, dst, mint, ix, signers); err != nil {
		return err
	}

	if err := t.setAmount(ctx, src); err != nil {
		return err
	}
	if !dst.Address.Equals(src.Address) {
		if err := t.setAmount(ctx, dst); err != nil {
			return err
		}
	}

	id := ix.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	insertQuery := `
		INSERT INTO transfers (id, source, destination, mint, authority, amount, decimals)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err = t.tx.ExecContext(ctx, insertQuery,
		id,
		ix.Source.String(),
		ix.Destination.String(),
		ix.Mint.String(),
		ix.Authority.String(),
		formatUnits(ix.Amount),
		int16(ix.Decimals),
	)
	if err != nil {
		return fmt.Errorf("failed to insert transfer: %w", err)
	}

	return nil
}

// lockTokenAccounts loads and locks the given accounts in one statement.
// Vault invocations already hold these locks, taken pool first then user by
// the transfer engine; that order is what keeps them from deadlocking.
// Source and destination may be the same account.
func (t *ledgerTx) lockTokenAccounts(ctx context.Context, addrs ...solana.PublicKey) (map[solana.PublicKey]*domain.TokenAccount, error) {
	keys := make([]string, len(addrs))
	for i, a := range addrs {
		keys[i] = a.String()
	}

	query := `
		SELECT address, mint, owner, amount, token_program
		FROM token_accounts
		WHERE address = ANY($1)
		ORDER BY address
		FOR UPDATE
	`

	rows, err := t.tx.QueryContext(ctx, query, pq.Array(keys))
	if err != nil {
		return nil, fmt.Errorf("failed to lock token accounts: %w", err)
	}
	defer rows.Close()

	locked := make(map[solana.PublicKey]*domain.TokenAccount, len(addrs))
	for rows.Next() {
		acct, err := scanTokenAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan token account: %w", err)
		}
		locked[acct.Address] = acct
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate token accounts: %w", err)
	}

	return locked, nil
}

// allocate verifies addr is unused and returns the locked payer
func (t *ledgerTx) allocate(ctx context.Context, payerAddr, addr solana.PublicKey) (*domain.SystemAccount, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM authority_records WHERE address = $1
			UNION ALL SELECT 1 FROM mints WHERE address = $1
			UNION ALL SELECT 1 FROM token_accounts WHERE address = $1
			UNION ALL SELECT 1 FROM system_accounts WHERE address = $1
		)
	`

	var inUse bool
	if err := t.tx.QueryRowContext(ctx, query, addr.String()).Scan(&inUse); err != nil {
		return nil, fmt.Errorf("failed to check address %s: %w", addr, err)
	}
	if inUse {
		return nil, domain.NewError(domain.KindAlreadyInitialized, "account %s already in use", addr)
	}

	payer, err := t.GetSystemAccount(ctx, payerAddr)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			return nil, domain.WrapError(domain.KindAccountMismatch, err, "payer %s", payerAddr)
		}
		return nil, err
	}

	return payer, nil
}

func (t *ledgerTx) setLamports(ctx context.Context, acct *domain.SystemAccount) error {
	query := `UPDATE system_accounts SET lamports = $2 WHERE address = $1`

	if _, err := t.tx.ExecContext(ctx, query, acct.Address.String(), formatUnits(acct.Lamports)); err != nil {
		return fmt.Errorf("failed to update system account: %w", err)
	}
	return nil
}

func (t *ledgerTx) setAmount(ctx context.Context, acct *domain.TokenAccount) error {
	query := `UPDATE token_accounts SET amount = $2 WHERE address = $1`

	if _, err := t.tx.ExecContext(ctx, query, acct.Address.String(), formatUnits(acct.Amount)); err != nil {
		return fmt.Errorf("failed to update token account: %w", err)
	}
	return nil
}

// claimed maps a conflicting insert, lost to a concurrent invocation, to
// AlreadyInitialized
func claimed(res sql.Result, addr solana.PublicKey) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return domain.NewError(domain.KindAlreadyInitialized, "account %s already in use", addr)
	}
	return nil
}

func scanTokenAccount(row rowScanner) (*domain.TokenAccount, error) {
	var address, mint, owner, amount, tokenProgram string
	if err := row.Scan(&address, &mint, &owner, &amount, &tokenProgram); err != nil {
		return nil, err
	}

	var acct domain.TokenAccount
	var err error
	if acct.Address, err = parseKey("address", address); err != nil {
		return nil, err
	}
	if acct.Mint, err = parseKey("mint", mint); err != nil {
		return nil, err
	}
	if acct.Owner, err = parseKey("owner", owner); err != nil {
		return nil, err
	}
	if acct.TokenProgram, err = parseKey("token_program", tokenProgram); err != nil {
		return nil, err
	}
	if acct.Amount, err = parseUnits("amount", amount); err != nil {
		return nil, err
	}

	return &acct, nil
}

func parseKey(column, s string) (solana.PublicKey, error) {
	key, err := solana.PublicKeyFromBase58(s)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to parse %s: %w", column, err)
	}
	return key, nil
}

// NUMERIC(20,0) holds the full uint64 range
func parseUnits(column, s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse %s: %w", column, err)
	}
	return v, nil
}

func formatUnits(v uint64) string {
	return strconv.FormatUint(v, 10)
}
