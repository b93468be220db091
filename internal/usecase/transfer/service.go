package transfer

import (
	"context"
	"errors"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/piyushhsainii/rugs.fun/internal/domain"
	"github.com/piyushhsainii/rugs.fun/internal/usecase/authority"
)

// TransferInput names the accounts of a deposit or withdraw request.
// Signer is an identity whose signature the host already verified.
type TransferInput struct {
	Signer       solana.PublicKey
	Authority    solana.PublicKey
	PoolAccount  solana.PublicKey
	UserAccount  solana.PublicKey
	Mint         solana.PublicKey
	TokenProgram solana.PublicKey
	Amount       uint64
	Decimals     uint8
}

// TransferService moves tokens between user accounts and the pool.
// It keeps no state of its own: every invocation re-reads and re-verifies
// the accounts it touches.
type TransferService struct {
	Ledger  domain.Ledger
	Deriver *authority.Deriver
	log     *zap.Logger
	now     func() time.Time
}

// NewTransferService creates a new TransferService instance
func NewTransferService(ledger domain.Ledger, deriver *authority.Deriver, log *zap.Logger) *TransferService {
	if log == nil {
		log = zap.NewNop()
	}
	return &TransferService{
		Ledger:  ledger,
		Deriver: deriver,
		log:     log,
		now:     time.Now,
	}
}

// accounts are the verified records of one invocation
type accounts struct {
	mint *domain.Mint
	pool *domain.TokenAccount
	user *domain.TokenAccount
}

// Deposit moves Amount from the signer's account into the pool
// Logic:
//  1. Derive the authority; the supplied authority must match
//  2. Verify mint, decimals, pool and user account relationships
//  3. Check the user balance as it stands now
//  4. Transfer, authorized by the signer's own signature
func (s *TransferService) Deposit(ctx context.Context, input TransferInput) (*domain.TransferReceipt, error) {
	auth, err := s.derive(input)
	if err != nil {
		return nil, s.reject(domain.DirectionDeposit, input, err)
	}

	var receipt *domain.TransferReceipt
	err = s.Ledger.Atomically(ctx, func(ctx context.Context, tx domain.LedgerTx) error {
		accts, err := loadAccounts(ctx, tx, input, auth)
		if err != nil {
			return err
		}

		if err := domain.CheckSufficientFunds(accts.user, input.Amount); err != nil {
			return err
		}

		ix := domain.TransferChecked{
			ID:          uuid.New(),
			Source:      accts.user.Address,
			Destination: accts.pool.Address,
			Mint:        accts.mint.Address,
			Authority:   input.Signer,
			Amount:      input.Amount,
			Decimals:    input.Decimals,
		}
		signers := domain.SignerSet{Keys: []solana.PublicKey{input.Signer}}
		if err := tx.TransferChecked(ctx, ix, signers); err != nil {
			return err
		}

		receipt, err = s.receipt(ctx, tx, ix, domain.DirectionDeposit, input)
		return err
	})
	if err != nil {
		return nil, s.reject(domain.DirectionDeposit, input, err)
	}

	s.accept(receipt)
	return receipt, nil
}

// Withdraw moves Amount from the pool into the signer's account
// Logic:
//  1. Derive the authority; the supplied authority must match
//  2. Load the authority record (absent means the vault is not initialized)
//  3. Verify mint, decimals, pool and user account relationships
//  4. Recompute the authority from the stored bump; it must equal the pool owner
//  5. Check the pool balance as it stands now
//  6. Transfer, authorized by the recomputed derivation seeds
func (s *TransferService) Withdraw(ctx context.Context, input TransferInput) (*domain.TransferReceipt, error) {
	auth, err := s.derive(input)
	if err != nil {
		return nil, s.reject(domain.DirectionWithdraw, input, err)
	}

	var receipt *domain.TransferReceipt
	err = s.Ledger.Atomically(ctx, func(ctx context.Context, tx domain.LedgerTx) error {
		// 2. Authority record
		rec, err := tx.GetAuthorityRecord(ctx, auth.Address)
		if err != nil {
			if errors.Is(err, domain.ErrAccountNotFound) {
				return domain.WrapError(domain.KindAccountMismatch, err, "vault not initialized")
			}
			return err
		}
		if !rec.Owner.Equals(s.Deriver.ProgramID) {
			return domain.NewError(domain.KindAccountMismatch, "authority record %s is owned by %s, not this program", rec.Address, rec.Owner)
		}

		// 3. Account relationships
		accts, err := loadAccounts(ctx, tx, input, auth)
		if err != nil {
			return err
		}

		// 4. Derivation proof from stored data
		proof, err := s.Deriver.Recompute(rec.Label, rec.Bump)
		if err != nil {
			return err
		}
		if !proof.Address.Equals(accts.pool.Owner) {
			return domain.NewError(domain.KindAuthorityMismatch, "stored derivation yields %s, pool is owned by %s", proof.Address, accts.pool.Owner)
		}

		// 5. Pool balance
		if err := domain.CheckSufficientFunds(accts.pool, input.Amount); err != nil {
			return err
		}

		// 6. Transfer signed by derivation seeds
		ix := domain.TransferChecked{
			ID:          uuid.New(),
			Source:      accts.pool.Address,
			Destination: accts.user.Address,
			Mint:        accts.mint.Address,
			Authority:   proof.Address,
			Amount:      input.Amount,
			Decimals:    input.Decimals,
		}
		signers := domain.SignerSet{
			Seeds:     [][][]byte{proof.SignerSeeds()},
			ProgramID: proof.ProgramID,
		}
		if err := tx.TransferChecked(ctx, ix, signers); err != nil {
			return err
		}

		receipt, err = s.receipt(ctx, tx, ix, domain.DirectionWithdraw, input)
		return err
	})
	if err != nil {
		return nil, s.reject(domain.DirectionWithdraw, input, err)
	}

	s.accept(receipt)
	return receipt, nil
}

// derive computes the vault authority and checks the supplied address
func (s *TransferService) derive(input TransferInput) (domain.Authority, error) {
	auth, err := s.Deriver.Vault()
	if err != nil {
		return domain.Authority{}, err
	}
	if !input.Authority.Equals(auth.Address) {
		return domain.Authority{}, domain.NewError(domain.KindAccountMismatch, "authority %s does not match derived %s", input.Authority, auth.Address)
	}
	return auth, nil
}

// loadAccounts reads mint, pool and user account and verifies every
// relationship both directions require
func loadAccounts(ctx context.Context, tx domain.AccountReader, input TransferInput, auth domain.Authority) (*accounts, error) {
	mint, err := tx.GetMint(ctx, input.Mint)
	if err != nil {
		return nil, notFoundAsMismatch(err, "mint")
	}
	if !mint.TokenProgram.Equals(input.TokenProgram) || !domain.IsSupportedTokenProgram(input.TokenProgram) {
		return nil, domain.NewError(domain.KindAccountMismatch, "mint %s is not owned by token program %s", mint.Address, input.TokenProgram)
	}
	if err := domain.CheckDecimals(mint, input.Decimals); err != nil {
		return nil, err
	}

	pool, err := tx.GetTokenAccount(ctx, input.PoolAccount)
	if err != nil {
		return nil, notFoundAsMismatch(err, "pool account")
	}
	if err := domain.CheckAssociatedAccount(pool, auth.Address, mint); err != nil {
		return nil, err
	}

	user, err := tx.GetTokenAccount(ctx, input.UserAccount)
	if err != nil {
		return nil, notFoundAsMismatch(err, "user account")
	}
	if err := domain.CheckAssociatedAccount(user, input.Signer, mint); err != nil {
		return nil, err
	}

	return &accounts{mint: mint, pool: pool, user: user}, nil
}

func notFoundAsMismatch(err error, what string) error {
	if errors.Is(err, domain.ErrAccountNotFound) {
		return domain.WrapError(domain.KindAccountMismatch, err, "%s", what)
	}
	return err
}

// receipt re-reads both balances after the transfer
func (s *TransferService) receipt(ctx context.Context, tx domain.AccountReader, ix domain.TransferChecked, dir domain.Direction, input TransferInput) (*domain.TransferReceipt, error) {
	pool, err := tx.GetTokenAccount(ctx, input.PoolAccount)
	if err != nil {
		return nil, err
	}
	user, err := tx.GetTokenAccount(ctx, input.UserAccount)
	if err != nil {
		return nil, err
	}
	return &domain.TransferReceipt{
		ID:          ix.ID,
		Direction:   dir,
		Signer:      input.Signer,
		Mint:        ix.Mint,
		Amount:      ix.Amount,
		UIAmount:    domain.ToUIAmount(ix.Amount, ix.Decimals),
		PoolBalance: pool.Amount,
		UserBalance: user.Amount,
		ExecutedAt:  s.now(),
	}, nil
}

func (s *TransferService) accept(r *domain.TransferReceipt) {
	s.log.Info("vault transfer committed",
		zap.String("direction", string(r.Direction)),
		zap.Stringer("receipt_id", r.ID),
		zap.Stringer("signer", r.Signer),
		zap.Stringer("mint", r.Mint),
		zap.String("amount", r.UIAmount.String()),
		zap.Uint64("pool_balance", r.PoolBalance),
	)
}

func (s *TransferService) reject(dir domain.Direction, input TransferInput, err error) error {
	s.log.Warn("vault transfer rejected",
		zap.String("direction", string(dir)),
		zap.Stringer("signer", input.Signer),
		zap.Stringer("mint", input.Mint),
		zap.Uint64("amount", input.Amount),
		zap.String("kind", string(domain.KindOf(err))),
		zap.Error(err),
	)
	return err
}
