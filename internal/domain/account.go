package domain

import (
	"github.com/gagliardetto/solana-go"
)

const (
	// TokenAccountSpace is the size of an SPL token account
	TokenAccountSpace = 165

	// MaxDecimals bounds the precision a mint may declare
	MaxDecimals = 18

	accountStorageOverhead = 128
	lamportsPerByteYear    = 3480
	exemptionThreshold     = 2
)

// Token2022ProgramID is the Token Extensions program
var Token2022ProgramID = solana.Token2022ProgramID

// Mint is the asset descriptor for one fungible token
type Mint struct {
	Address       solana.PublicKey
	Decimals      uint8
	MintAuthority *solana.PublicKey // nil when supply is fixed
	Supply        uint64
	IsInitialized bool
	TokenProgram  solana.PublicKey
}

// TokenAccount is a balance record for one (owner, mint) pair
type TokenAccount struct {
	Address      solana.PublicKey
	Mint         solana.PublicKey
	Owner        solana.PublicKey
	Amount       uint64 // base units
	TokenProgram solana.PublicKey
}

// SystemAccount holds lamports used to pay for allocations
type SystemAccount struct {
	Address  solana.PublicKey
	Lamports uint64
}

// IsSupportedTokenProgram reports whether id is a token program the vault
// can hold balances under
func IsSupportedTokenProgram(id solana.PublicKey) bool {
	return id.Equals(solana.TokenProgramID) || id.Equals(Token2022ProgramID)
}

// AssociatedTokenAddress derives the canonical token account address for
// (owner, mint) under tokenProgram
func AssociatedTokenAddress(owner, mint, tokenProgram solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress(
		[][]byte{owner[:], tokenProgram[:], mint[:]},
		solana.SPLAssociatedTokenAccountProgramID,
	)
	if err != nil {
		return solana.PublicKey{}, WrapError(KindDerivationExhausted, err, "associated token address for owner %s", owner)
	}
	return addr, nil
}

// RentExemptMinimum returns the lamports a record of space bytes must hold
func RentExemptMinimum(space int) uint64 {
	return uint64(accountStorageOverhead+space) * lamportsPerByteYear * exemptionThreshold
}
