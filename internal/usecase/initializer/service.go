package initializer

import (
	"context"
	"errors"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/piyushhsainii/rugs.fun/internal/domain"
	"github.com/piyushhsainii/rugs.fun/internal/usecase/authority"
)

// InitializeInput names the accounts of an initialize_vault request.
// Payer is a verified signer and pays for both allocations.
type InitializeInput struct {
	Payer        solana.PublicKey
	Authority    solana.PublicKey
	Mint         solana.PublicKey
	TokenProgram solana.PublicKey
}

// InitializeResult reports the records created by InitializeVault
type InitializeResult struct {
	Authority   domain.Authority
	PoolAccount solana.PublicKey
	RentPaid    uint64
}

// InitializerService performs the one-time vault setup per asset type
type InitializerService struct {
	Ledger  domain.Ledger
	Deriver *authority.Deriver
	log     *zap.Logger
}

// NewInitializerService creates a new InitializerService instance
func NewInitializerService(ledger domain.Ledger, deriver *authority.Deriver, log *zap.Logger) *InitializerService {
	if log == nil {
		log = zap.NewNop()
	}
	return &InitializerService{
		Ledger:  ledger,
		Deriver: deriver,
		log:     log,
	}
}

// InitializeVault creates the authority record and the pooled funds account
// for one asset type
// Logic:
//  1. Derive the authority and check the supplied address against it
//  2. Validate the mint and its token program
//  3. Refuse when the pool account (or a foreign authority record) exists
//  4. Allocate the authority record, owned by the program, unless a matching
//     one was created for an earlier asset type
//  5. Allocate the pool account owned by the authority
//
// Repeated calls for the same asset type fail with AlreadyInitialized.
func (s *InitializerService) InitializeVault(ctx context.Context, input InitializeInput) (*InitializeResult, error) {
	// 1. Derive the authority
	auth, err := s.Deriver.Vault()
	if err != nil {
		return nil, err
	}
	if !input.Authority.Equals(auth.Address) {
		return nil, domain.NewError(domain.KindAccountMismatch, "authority %s does not match derived %s", input.Authority, auth.Address)
	}

	result := &InitializeResult{Authority: auth}

	err = s.Ledger.Atomically(ctx, func(ctx context.Context, tx domain.LedgerTx) error {
		// 2. Validate the mint
		mint, err := tx.GetMint(ctx, input.Mint)
		if err != nil {
			if errors.Is(err, domain.ErrAccountNotFound) {
				return domain.WrapError(domain.KindInvalidAssetType, err, "mint %s", input.Mint)
			}
			return err
		}
		if err := domain.CheckMint(mint, input.TokenProgram); err != nil {
			return err
		}

		poolAddr, err := domain.AssociatedTokenAddress(auth.Address, mint.Address, mint.TokenProgram)
		if err != nil {
			return err
		}
		result.PoolAccount = poolAddr

		// 3. Pool account must not exist yet
		if _, err := tx.GetTokenAccount(ctx, poolAddr); err == nil {
			return domain.NewError(domain.KindAlreadyInitialized, "pool account %s already exists for mint %s", poolAddr, mint.Address)
		} else if !errors.Is(err, domain.ErrAccountNotFound) {
			return err
		}

		// 4. Authority record
		created, err := s.ensureAuthorityRecord(ctx, tx, input.Payer, auth)
		if err != nil {
			return err
		}
		if created {
			result.RentPaid += domain.RentExemptMinimum(domain.AuthorityRecordSpace)
		}

		// 5. Pool account owned by the authority
		pool := &domain.TokenAccount{
			Address:      poolAddr,
			Mint:         mint.Address,
			Owner:        auth.Address,
			Amount:       0,
			TokenProgram: mint.TokenProgram,
		}
		if err := tx.CreateTokenAccount(ctx, input.Payer, pool); err != nil {
			return err
		}
		result.RentPaid += domain.RentExemptMinimum(domain.TokenAccountSpace)

		return nil
	})
	if err != nil {
		s.log.Warn("initialize vault rejected",
			zap.Stringer("payer", input.Payer),
			zap.Stringer("mint", input.Mint),
			zap.String("kind", string(domain.KindOf(err))),
			zap.Error(err),
		)
		return nil, err
	}

	s.log.Info("vault initialized",
		zap.Stringer("authority", auth.Address),
		zap.Uint8("bump", auth.Bump),
		zap.Stringer("pool", result.PoolAccount),
		zap.Stringer("mint", input.Mint),
		zap.Uint64("rent_paid", result.RentPaid),
	)
	return result, nil
}

// ensureAuthorityRecord creates the authority record, or accepts an existing
// one that reproduces the same derivation. Reports whether it allocated.
func (s *InitializerService) ensureAuthorityRecord(ctx context.Context, tx domain.LedgerTx, payer solana.PublicKey, auth domain.Authority) (bool, error) {
	existing, err := tx.GetAuthorityRecord(ctx, auth.Address)
	if err == nil {
		if !existing.Owner.Equals(auth.ProgramID) || existing.Label != auth.Label || existing.Bump != auth.Bump {
			return false, domain.NewError(domain.KindAlreadyInitialized, "authority record %s exists with foreign derivation data", auth.Address)
		}
		return false, nil
	}
	if !errors.Is(err, domain.ErrAccountNotFound) {
		return false, err
	}

	rec := &domain.AuthorityRecord{
		Address: auth.Address,
		Owner:   auth.ProgramID,
		Label:   auth.Label,
		Bump:    auth.Bump,
	}
	if err := tx.CreateAuthorityRecord(ctx, payer, rec, domain.AuthorityRecordSpace); err != nil {
		return false, err
	}
	return true, nil
}
