package initializer

import (
	"context"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/piyushhsainii/rugs.fun/internal/adapter/ledger/memory"
	"github.com/piyushhsainii/rugs.fun/internal/domain"
	"github.com/piyushhsainii/rugs.fun/internal/usecase/authority"
)

var testProgramID = solana.MustPublicKeyFromBase58("5gs6aaY9ELfjVHKa7s8swkjLdAZgfnYMsGhm862rmkgN")

type fixture struct {
	ledger  *memory.Ledger
	service *InitializerService
	auth    domain.Authority
	payer   solana.PublicKey
}

func newFixture(t *testing.T, lamports uint64) *fixture {
	t.Helper()
	ledger := memory.NewLedger()
	deriver := authority.NewDeriver(testProgramID)
	auth, err := deriver.Vault()
	require.NoError(t, err)

	payer := solana.NewWallet().PublicKey()
	require.NoError(t, ledger.PutSystemAccount(context.Background(), &domain.SystemAccount{Address: payer, Lamports: lamports}))

	return &fixture{
		ledger:  ledger,
		service: NewInitializerService(ledger, deriver, nil),
		auth:    auth,
		payer:   payer,
	}
}

func (f *fixture) mint(t *testing.T, program solana.PublicKey, decimals uint8) *domain.Mint {
	t.Helper()
	m := &domain.Mint{
		Address:       solana.NewWallet().PublicKey(),
		Decimals:      decimals,
		IsInitialized: true,
		TokenProgram:  program,
	}
	require.NoError(t, f.ledger.PutMint(context.Background(), m))
	return m
}

func (f *fixture) input(m *domain.Mint) InitializeInput {
	return InitializeInput{
		Payer:        f.payer,
		Authority:    f.auth.Address,
		Mint:         m.Address,
		TokenProgram: m.TokenProgram,
	}
}

func TestInitializeVault_CreatesAuthorityAndPool(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 10_000_000)
	m := f.mint(t, domain.Token2022ProgramID, 9)

	res, err := f.service.InitializeVault(ctx, f.input(m))
	require.NoError(t, err)

	expectedPool, err := domain.AssociatedTokenAddress(f.auth.Address, m.Address, m.TokenProgram)
	require.NoError(t, err)
	assert.Equal(t, expectedPool, res.PoolAccount)
	assert.Equal(t, f.auth, res.Authority)

	wantRent := domain.RentExemptMinimum(domain.AuthorityRecordSpace) + domain.RentExemptMinimum(domain.TokenAccountSpace)
	assert.Equal(t, wantRent, res.RentPaid)

	err = f.ledger.View(ctx, func(ctx context.Context, r domain.AccountReader) error {
		rec, err := r.GetAuthorityRecord(ctx, f.auth.Address)
		require.NoError(t, err)
		assert.Equal(t, testProgramID, rec.Owner)
		assert.Equal(t, domain.AuthoritySeed, rec.Label)
		assert.Equal(t, f.auth.Bump, rec.Bump)
		assert.Equal(t, domain.RentExemptMinimum(domain.AuthorityRecordSpace), rec.Lamports)

		pool, err := r.GetTokenAccount(ctx, expectedPool)
		require.NoError(t, err)
		assert.Equal(t, f.auth.Address, pool.Owner)
		assert.Equal(t, m.Address, pool.Mint)
		assert.Equal(t, uint64(0), pool.Amount)

		payer, err := r.GetSystemAccount(ctx, f.payer)
		require.NoError(t, err)
		assert.Equal(t, 10_000_000-wantRent, payer.Lamports)
		return nil
	})
	require.NoError(t, err)
}

func TestInitializeVault_RepeatedCallsFail(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 100_000_000)
	m := f.mint(t, solana.TokenProgramID, 6)

	_, err := f.service.InitializeVault(ctx, f.input(m))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := f.service.InitializeVault(ctx, f.input(m))
		assert.ErrorIs(t, err, domain.ErrAlreadyInitialized)
	}
}

func TestInitializeVault_SecondAssetSharesAuthority(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 100_000_000)
	usdc := f.mint(t, domain.Token2022ProgramID, 9)
	sol := f.mint(t, domain.Token2022ProgramID, 9)

	first, err := f.service.InitializeVault(ctx, f.input(usdc))
	require.NoError(t, err)
	second, err := f.service.InitializeVault(ctx, f.input(sol))
	require.NoError(t, err)

	assert.Equal(t, first.Authority, second.Authority)
	assert.NotEqual(t, first.PoolAccount, second.PoolAccount)
	assert.Equal(t, domain.RentExemptMinimum(domain.TokenAccountSpace), second.RentPaid)
}

func TestInitializeVault_ForeignAuthorityRecord(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 100_000_000)
	m := f.mint(t, solana.TokenProgramID, 6)
	err := f.ledger.Atomically(ctx, func(ctx context.Context, tx domain.LedgerTx) error {
		return tx.CreateAuthorityRecord(ctx, f.payer, &domain.AuthorityRecord{
			Address: f.auth.Address,
			Owner:   solana.SystemProgramID,
			Label:   domain.AuthoritySeed,
			Bump:    f.auth.Bump,
		}, domain.AuthorityRecordSpace)
	})
	require.NoError(t, err)

	_, err = f.service.InitializeVault(ctx, f.input(m))

	assert.ErrorIs(t, err, domain.ErrAlreadyInitialized)
}

func TestInitializeVault_InvalidAssetType(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(f *fixture, in *InitializeInput)
	}{
		{
			name: "mint does not exist",
			mutate: func(f *fixture, in *InitializeInput) {
				in.Mint = solana.NewWallet().PublicKey()
			},
		},
		{
			name: "unsupported token program",
			mutate: func(f *fixture, in *InitializeInput) {
				in.TokenProgram = solana.SystemProgramID
			},
		},
		{
			name: "mint owned by the other token program",
			mutate: func(f *fixture, in *InitializeInput) {
				in.TokenProgram = domain.Token2022ProgramID
			},
		},
		{
			name: "uninitialized mint",
			mutate: func(f *fixture, in *InitializeInput) {
				m := &domain.Mint{Address: solana.NewWallet().PublicKey(), Decimals: 6, TokenProgram: solana.TokenProgramID}
				require.NoError(t, f.ledger.PutMint(ctx, m))
				in.Mint = m.Address
			},
		},
		{
			name: "absurd precision",
			mutate: func(f *fixture, in *InitializeInput) {
				m := f.mint(t, solana.TokenProgramID, domain.MaxDecimals+1)
				in.Mint = m.Address
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, 100_000_000)
			m := f.mint(t, solana.TokenProgramID, 6)
			in := f.input(m)
			tt.mutate(f, &in)

			_, err := f.service.InitializeVault(ctx, in)

			assert.ErrorIs(t, err, domain.ErrInvalidAssetType)
			err = f.ledger.View(ctx, func(ctx context.Context, r domain.AccountReader) error {
				_, err := r.GetAuthorityRecord(ctx, f.auth.Address)
				assert.ErrorIs(t, err, domain.ErrAccountNotFound)
				return nil
			})
			require.NoError(t, err)
		})
	}
}

func TestInitializeVault_PayerCannotCoverRent(t *testing.T) {
	ctx := context.Background()
	// enough for the authority record, not for the pool account
	f := newFixture(t, domain.RentExemptMinimum(domain.AuthorityRecordSpace)+1)
	m := f.mint(t, solana.TokenProgramID, 6)

	_, err := f.service.InitializeVault(ctx, f.input(m))

	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
	err = f.ledger.View(ctx, func(ctx context.Context, r domain.AccountReader) error {
		_, err := r.GetAuthorityRecord(ctx, f.auth.Address)
		assert.ErrorIs(t, err, domain.ErrAccountNotFound, "authority record must roll back")
		payer, err := r.GetSystemAccount(ctx, f.payer)
		require.NoError(t, err)
		assert.Equal(t, domain.RentExemptMinimum(domain.AuthorityRecordSpace)+1, payer.Lamports)
		return nil
	})
	require.NoError(t, err)
}

func TestInitializeVault_WrongAuthority(t *testing.T) {
	f := newFixture(t, 100_000_000)
	m := f.mint(t, solana.TokenProgramID, 6)
	in := f.input(m)
	in.Authority = solana.NewWallet().PublicKey()

	_, err := f.service.InitializeVault(context.Background(), in)

	assert.ErrorIs(t, err, domain.ErrAccountMismatch)
}
