// Package runtime holds the rules the host ledger enforces on behalf of the
// system and token programs. Both ledger adapters apply them so that the
// vault core sees identical semantics regardless of storage.
package runtime

import (
	"math"

	"github.com/piyushhsainii/rugs.fun/internal/domain"
)

// ApplyTransferChecked validates ix against the loaded records and, when
// every check passes, moves the balance in place. On error src and dst are
// left untouched.
func ApplyTransferChecked(src, dst *domain.TokenAccount, mint *domain.Mint, ix domain.TransferChecked, signers domain.SignerSet) error {
	if !src.Mint.Equals(mint.Address) || !dst.Mint.Equals(mint.Address) {
		return domain.NewError(domain.KindAccountMismatch, "transfer between %s and %s does not match mint %s", src.Address, dst.Address, mint.Address)
	}
	if !src.TokenProgram.Equals(mint.TokenProgram) || !dst.TokenProgram.Equals(mint.TokenProgram) {
		return domain.NewError(domain.KindAccountMismatch, "transfer accounts are not owned by token program %s", mint.TokenProgram)
	}
	if !ix.Authority.Equals(src.Owner) {
		return domain.NewError(domain.KindAccountMismatch, "authority %s does not own source %s", ix.Authority, src.Address)
	}
	if !signers.Authorizes(ix.Authority) {
		return domain.NewError(domain.KindAuthorityMismatch, "missing signature or derivation proof for %s", ix.Authority)
	}
	if ix.Decimals != mint.Decimals {
		return domain.NewError(domain.KindPrecisionMismatch, "instruction declares %d decimals, mint has %d", ix.Decimals, mint.Decimals)
	}
	if src.Amount < ix.Amount {
		return domain.NewError(domain.KindInsufficientFunds, "source %s holds %d, transfer of %d requested", src.Address, src.Amount, ix.Amount)
	}
	if src.Address.Equals(dst.Address) {
		return nil
	}
	if dst.Amount > math.MaxUint64-ix.Amount {
		return domain.NewError(domain.KindAccountMismatch, "destination %s would overflow", dst.Address)
	}

	src.Amount -= ix.Amount
	dst.Amount += ix.Amount
	return nil
}

// ChargeRent debits the rent-exempt minimum for space bytes from payer and
// returns the lamports the new record is funded with
func ChargeRent(payer *domain.SystemAccount, space int) (uint64, error) {
	rent := domain.RentExemptMinimum(space)
	if payer.Lamports < rent {
		return 0, domain.NewError(domain.KindInsufficientFunds, "payer %s holds %d lamports, allocation needs %d", payer.Address, payer.Lamports, rent)
	}
	payer.Lamports -= rent
	return rent, nil
}
