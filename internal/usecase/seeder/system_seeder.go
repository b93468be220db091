package seeder

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/gagliardetto/solana-go"

	"github.com/piyushhsainii/rugs.fun/internal/domain"
)

// Fixed devnet test mints (immutable; issued under Token-2022 with 9 decimals)
var (
	MINT_TEST_USDC = solana.MustPublicKeyFromBase58("9SFMpR2owdeZpGRLomHsDtx5rEf2bVuo3XCgSjyAVUf4")
	MINT_TEST_SOL  = solana.MustPublicKeyFromBase58("J8NDF3RxtfZ5E2vks2NdchwE3PXNMNwUngCpEbMoLaoL")
)

const fixtureDecimals = 9

// AirdropLamports is the balance an airdrop tops its recipient up to, enough
// to pay rent for a vault initialization
const AirdropLamports = 1_000_000_000

// FixtureMint defines the structure for a mint to be seeded
type FixtureMint struct {
	Symbol   string
	Address  solana.PublicKey
	Decimals uint8
}

// FixtureMints lists the mints every development ledger starts with
var FixtureMints = []FixtureMint{
	{Symbol: "USDC", Address: MINT_TEST_USDC, Decimals: fixtureDecimals},
	{Symbol: "SOL", Address: MINT_TEST_SOL, Decimals: fixtureDecimals},
}

// Store is what the seeder needs from a development ledger
type Store interface {
	domain.Ledger
	domain.FixtureWriter
}

// SystemSeeder handles seeding of development fixtures
type SystemSeeder struct {
	store         Store
	mintAuthority solana.PublicKey
}

// NewSystemSeeder creates a new SystemSeeder instance.
// mintAuthority is recorded as the supply-control identity of seeded mints.
func NewSystemSeeder(store Store, mintAuthority solana.PublicKey) *SystemSeeder {
	return &SystemSeeder{
		store:         store,
		mintAuthority: mintAuthority,
	}
}

// Seed ensures all fixture mints exist, and that payer holds at least
// lamports when payer is set. Existing records are left untouched.
func (s *SystemSeeder) Seed(ctx context.Context, payer *solana.PublicKey, lamports uint64) error {
	for _, fm := range FixtureMints {
		exists, err := s.exists(ctx, func(r domain.AccountReader) error {
			_, err := r.GetMint(ctx, fm.Address)
			return err
		})
		if err != nil {
			return err
		}
		if exists {
			continue
		}

		authority := s.mintAuthority
		mint := &domain.Mint{
			Address:       fm.Address,
			Decimals:      fm.Decimals,
			MintAuthority: &authority,
			IsInitialized: true,
			TokenProgram:  domain.Token2022ProgramID,
		}
		if err := domain.CheckMint(mint, mint.TokenProgram); err != nil {
			return err
		}
		if err := s.store.PutMint(ctx, mint); err != nil {
			return fmt.Errorf("failed to seed mint %s: %w", fm.Symbol, err)
		}
	}

	if payer == nil {
		return nil
	}
	return s.ensureLamports(ctx, *payer, lamports)
}

// ensureLamports raises addr's balance to lamports when it holds less
func (s *SystemSeeder) ensureLamports(ctx context.Context, addr solana.PublicKey, lamports uint64) error {
	var current *domain.SystemAccount
	err := s.store.View(ctx, func(ctx context.Context, r domain.AccountReader) error {
		acct, err := r.GetSystemAccount(ctx, addr)
		if err != nil {
			return err
		}
		current = acct
		return nil
	})
	if err != nil && !errors.Is(err, domain.ErrAccountNotFound) {
		return err
	}
	if current != nil && current.Lamports >= lamports {
		return nil
	}

	return s.store.PutSystemAccount(ctx, &domain.SystemAccount{Address: addr, Lamports: lamports})
}

// AirdropResult reports the account an airdrop credited
type AirdropResult struct {
	Account  *domain.TokenAccount
	Credited uint64
	Decimals uint8
}

// Airdrop mints amount, a decimal in the mint's units, to owner and tops up
// owner's lamports so it can pay rent
// Logic:
//  1. The mint's supply must be controlled by this seeder's mint authority
//  2. The amount must be positive and fit the mint's precision
//  3. Top up lamports, then credit the owner's associated token account
func (s *SystemSeeder) Airdrop(ctx context.Context, owner, mintAddr solana.PublicKey, amount string) (*AirdropResult, error) {
	var mint *domain.Mint
	err := s.store.View(ctx, func(ctx context.Context, r domain.AccountReader) error {
		m, err := r.GetMint(ctx, mintAddr)
		if err != nil {
			return err
		}
		mint = m
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get mint: %w", err)
	}

	if mint.MintAuthority == nil || !mint.MintAuthority.Equals(s.mintAuthority) {
		return nil, domain.NewError(domain.KindAuthorityMismatch, "mint %s is not issued by %s", mint.Address, s.mintAuthority)
	}

	units, err := domain.ParseUIAmount(amount, mint.Decimals)
	if err != nil {
		return nil, err
	}
	if units == 0 {
		return nil, fmt.Errorf("%w %q: airdrop must be positive", domain.ErrInvalidAmount, amount)
	}

	if err := s.ensureLamports(ctx, owner, AirdropLamports); err != nil {
		return nil, err
	}

	acct, err := s.FundUser(ctx, owner, mint.Address, units)
	if err != nil {
		return nil, err
	}

	return &AirdropResult{Account: acct, Credited: units, Decimals: mint.Decimals}, nil
}

// FundUser credits amount base units of mint to owner's associated token
// account, creating the account when missing, and grows the mint supply
func (s *SystemSeeder) FundUser(ctx context.Context, owner, mintAddr solana.PublicKey, amount uint64) (*domain.TokenAccount, error) {
	var mint *domain.Mint
	var acct *domain.TokenAccount

	err := s.store.View(ctx, func(ctx context.Context, r domain.AccountReader) error {
		m, err := r.GetMint(ctx, mintAddr)
		if err != nil {
			return err
		}
		mint = m

		addr, err := domain.AssociatedTokenAddress(owner, m.Address, m.TokenProgram)
		if err != nil {
			return err
		}
		a, err := r.GetTokenAccount(ctx, addr)
		if err != nil {
			if !errors.Is(err, domain.ErrAccountNotFound) {
				return err
			}
			a = &domain.TokenAccount{
				Address:      addr,
				Mint:         m.Address,
				Owner:        owner,
				TokenProgram: m.TokenProgram,
			}
		}
		acct = a
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load fixture accounts: %w", err)
	}

	if acct.Amount > math.MaxUint64-amount || mint.Supply > math.MaxUint64-amount {
		return nil, fmt.Errorf("funding %d would overflow account %s", amount, acct.Address)
	}
	acct.Amount += amount
	mint.Supply += amount

	if err := s.store.PutTokenAccount(ctx, acct); err != nil {
		return nil, err
	}
	if err := s.store.PutMint(ctx, mint); err != nil {
		return nil, err
	}
	return acct, nil
}

func (s *SystemSeeder) exists(ctx context.Context, get func(r domain.AccountReader) error) (bool, error) {
	err := s.store.View(ctx, func(ctx context.Context, r domain.AccountReader) error {
		return get(r)
	})
	if err == nil {
		return true, nil
	}
	if errors.Is(err, domain.ErrAccountNotFound) {
		return false, nil
	}
	return false, err
}
