package overview

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"

	"github.com/piyushhsainii/rugs.fun/internal/domain"
	"github.com/piyushhsainii/rugs.fun/internal/usecase/authority"
)

// VaultStatus represents the state of the vault for one asset type
type VaultStatus struct {
	Authority     domain.Authority
	Initialized   bool
	PoolAccount   solana.PublicKey
	Mint          solana.PublicKey
	Decimals      uint8
	PoolBalance   uint64
	PoolUIBalance decimal.Decimal
}

// MaxRecentTransfers bounds one RecentTransfers page
const MaxRecentTransfers = 100

// OverviewService answers read-only questions about the vault
type OverviewService struct {
	Ledger  domain.Ledger
	Journal domain.TransferJournal
	Deriver *authority.Deriver
}

// NewOverviewService creates a new OverviewService instance
func NewOverviewService(ledger domain.Ledger, journal domain.TransferJournal, deriver *authority.Deriver) *OverviewService {
	return &OverviewService{
		Ledger:  ledger,
		Journal: journal,
		Deriver: deriver,
	}
}

// GetVault reports the authority and pool state for mint
// Logic:
//   - Authority: derived, never read from storage
//   - Initialized: authority record and pool account both exist
//   - Balances: read from the pool account, rendered with the mint's decimals
func (s *OverviewService) GetVault(ctx context.Context, mintAddr solana.PublicKey) (*VaultStatus, error) {
	auth, err := s.Deriver.Vault()
	if err != nil {
		return nil, err
	}

	status := &VaultStatus{
		Authority:     auth,
		Mint:          mintAddr,
		PoolUIBalance: decimal.Zero,
	}

	err = s.Ledger.View(ctx, func(ctx context.Context, r domain.AccountReader) error {
		mint, err := r.GetMint(ctx, mintAddr)
		if err != nil {
			return fmt.Errorf("failed to get mint: %w", err)
		}
		status.Decimals = mint.Decimals

		status.PoolAccount, err = domain.AssociatedTokenAddress(auth.Address, mint.Address, mint.TokenProgram)
		if err != nil {
			return err
		}

		if _, err := r.GetAuthorityRecord(ctx, auth.Address); err != nil {
			if errors.Is(err, domain.ErrAccountNotFound) {
				return nil
			}
			return fmt.Errorf("failed to get authority record: %w", err)
		}

		pool, err := r.GetTokenAccount(ctx, status.PoolAccount)
		if err != nil {
			if errors.Is(err, domain.ErrAccountNotFound) {
				return nil
			}
			return fmt.Errorf("failed to get pool account: %w", err)
		}

		status.Initialized = true
		status.PoolBalance = pool.Amount
		status.PoolUIBalance = domain.ToUIAmount(pool.Amount, mint.Decimals)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return status, nil
}

// RecentTransfers lists the newest vault transfers of mint. A limit outside
// (0, MaxRecentTransfers] asks for a full page.
func (s *OverviewService) RecentTransfers(ctx context.Context, mint solana.PublicKey, limit int) ([]domain.TransferChecked, error) {
	if limit <= 0 || limit > MaxRecentTransfers {
		limit = MaxRecentTransfers
	}

	transfers, err := s.Journal.RecentTransfers(ctx, mint, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list transfers: %w", err)
	}
	return transfers, nil
}
