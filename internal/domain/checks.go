package domain

import (
	"github.com/gagliardetto/solana-go"
)

// CheckMint verifies that mint describes an asset the vault can hold under
// tokenProgram
func CheckMint(mint *Mint, tokenProgram solana.PublicKey) error {
	if !IsSupportedTokenProgram(tokenProgram) {
		return NewError(KindInvalidAssetType, "token program %s is not supported", tokenProgram)
	}
	if !mint.IsInitialized {
		return NewError(KindInvalidAssetType, "mint %s is not initialized", mint.Address)
	}
	if !mint.TokenProgram.Equals(tokenProgram) {
		return NewError(KindInvalidAssetType, "mint %s is owned by %s, not %s", mint.Address, mint.TokenProgram, tokenProgram)
	}
	if mint.Decimals > MaxDecimals {
		return NewError(KindInvalidAssetType, "mint %s declares %d decimals", mint.Address, mint.Decimals)
	}
	return nil
}

// CheckDecimals verifies the caller's declared precision against the mint
func CheckDecimals(mint *Mint, decimals uint8) error {
	if mint.Decimals != decimals {
		return NewError(KindPrecisionMismatch, "mint %s has %d decimals, request declared %d", mint.Address, mint.Decimals, decimals)
	}
	return nil
}

// CheckAssociatedAccount verifies that acct is the associated token account
// of owner for mint: canonical address, owner field and mint field
func CheckAssociatedAccount(acct *TokenAccount, owner solana.PublicKey, mint *Mint) error {
	expected, err := AssociatedTokenAddress(owner, mint.Address, mint.TokenProgram)
	if err != nil {
		return err
	}
	if !acct.Address.Equals(expected) {
		return NewError(KindAccountMismatch, "account %s is not the associated account of %s for mint %s", acct.Address, owner, mint.Address)
	}
	if !acct.Owner.Equals(owner) {
		return NewError(KindAccountMismatch, "account %s is owned by %s, expected %s", acct.Address, acct.Owner, owner)
	}
	if !acct.Mint.Equals(mint.Address) {
		return NewError(KindAccountMismatch, "account %s holds mint %s, expected %s", acct.Address, acct.Mint, mint.Address)
	}
	if !acct.TokenProgram.Equals(mint.TokenProgram) {
		return NewError(KindAccountMismatch, "account %s is owned by token program %s, expected %s", acct.Address, acct.TokenProgram, mint.TokenProgram)
	}
	return nil
}

// CheckSufficientFunds verifies acct can be debited by amount
func CheckSufficientFunds(acct *TokenAccount, amount uint64) error {
	if acct.Amount < amount {
		return NewError(KindInsufficientFunds, "account %s holds %d, debit of %d requested", acct.Address, acct.Amount, amount)
	}
	return nil
}
