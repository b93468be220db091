package authority

import (
	"errors"
	"strings"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/piyushhsainii/rugs.fun/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testProgramID = solana.MustPublicKeyFromBase58("5gs6aaY9ELfjVHKa7s8swkjLdAZgfnYMsGhm862rmkgN")

func TestDeriver_Find_Deterministic(t *testing.T) {
	d := NewDeriver(testProgramID)

	first, err := d.Vault()
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		again, err := NewDeriver(testProgramID).Find(domain.AuthoritySeed)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}

	assert.Equal(t, domain.AuthoritySeed, first.Label)
	assert.Equal(t, testProgramID, first.ProgramID)
	assert.False(t, solana.IsOnCurve(first.Address[:]), "derived authority must be off curve")
}

func TestDeriver_Find_MatchesLibrarySearch(t *testing.T) {
	d := NewDeriver(testProgramID)

	got, err := d.Vault()
	require.NoError(t, err)

	addr, bump, err := solana.FindProgramAddress([][]byte{[]byte(domain.AuthoritySeed)}, testProgramID)
	require.NoError(t, err)

	assert.Equal(t, addr, got.Address)
	assert.Equal(t, bump, got.Bump)
}

func TestDeriver_Find_DependsOnProgramAndLabel(t *testing.T) {
	other := solana.NewWallet().PublicKey()

	a, err := NewDeriver(testProgramID).Vault()
	require.NoError(t, err)
	b, err := NewDeriver(other).Vault()
	require.NoError(t, err)
	c, err := NewDeriver(testProgramID).Find("another_label")
	require.NoError(t, err)

	assert.NotEqual(t, a.Address, b.Address)
	assert.NotEqual(t, a.Address, c.Address)
}

func TestDeriver_Find_Exhausted(t *testing.T) {
	d := NewDeriver(testProgramID)
	calls := 0
	d.createAddress = func(seeds [][]byte, programID solana.PublicKey) (solana.PublicKey, error) {
		calls++
		return solana.PublicKey{}, errors.New("invalid seeds; address must fall off the curve")
	}

	_, err := d.Vault()

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrDerivationExhausted)
	assert.Equal(t, 255, calls)
}

func TestDeriver_Find_LabelTooLong(t *testing.T) {
	d := NewDeriver(testProgramID)

	_, err := d.Find(strings.Repeat("x", solana.MaxSeedLength+1))

	assert.ErrorIs(t, err, domain.ErrDerivationExhausted)
}

func TestDeriver_Find_SkipsOnCurveBumps(t *testing.T) {
	d := NewDeriver(testProgramID)
	want := solana.NewWallet().PublicKey()
	d.createAddress = func(seeds [][]byte, programID solana.PublicKey) (solana.PublicKey, error) {
		if seeds[1][0] > 250 {
			return solana.PublicKey{}, errors.New("on curve")
		}
		return want, nil
	}

	got, err := d.Vault()

	require.NoError(t, err)
	assert.Equal(t, uint8(250), got.Bump)
	assert.Equal(t, want, got.Address)
}

func TestDeriver_Recompute(t *testing.T) {
	d := NewDeriver(testProgramID)
	found, err := d.Vault()
	require.NoError(t, err)

	again, err := d.Recompute(found.Label, found.Bump)
	require.NoError(t, err)
	assert.Equal(t, found, again)

	seeds := found.SignerSeeds()
	proved, err := solana.CreateProgramAddress(seeds, testProgramID)
	require.NoError(t, err)
	assert.Equal(t, found.Address, proved)
}

func TestDeriver_Recompute_WrongBump(t *testing.T) {
	d := NewDeriver(testProgramID)
	found, err := d.Vault()
	require.NoError(t, err)

	// every other bump either lands on the curve or yields a different address
	for bump := 0; bump < 256; bump++ {
		if uint8(bump) == found.Bump {
			continue
		}
		other, err := d.Recompute(found.Label, uint8(bump))
		if err != nil {
			assert.ErrorIs(t, err, domain.ErrAuthorityMismatch)
			continue
		}
		assert.NotEqual(t, found.Address, other.Address)
	}
}
