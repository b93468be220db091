package authority

import (
	"errors"
	"math"

	"github.com/gagliardetto/solana-go"
	"github.com/piyushhsainii/rugs.fun/internal/domain"
)

// AddressFunc hashes seeds under a program into an off-curve address,
// failing when the result lies on the ed25519 curve
type AddressFunc func(seeds [][]byte, programID solana.PublicKey) (solana.PublicKey, error)

// Deriver computes program-derived authorities for one program
type Deriver struct {
	ProgramID     solana.PublicKey
	createAddress AddressFunc
}

// NewDeriver creates a Deriver scoped to programID
func NewDeriver(programID solana.PublicKey) *Deriver {
	return &Deriver{
		ProgramID:     programID,
		createAddress: solana.CreateProgramAddress,
	}
}

// Find searches bumps from 255 down to 1 and returns the first one whose
// address falls off the curve. The search is a pure function of the
// program ID and label; nothing is persisted.
func (d *Deriver) Find(label string) (domain.Authority, error) {
	if len(label) > solana.MaxSeedLength {
		return domain.Authority{}, domain.NewError(domain.KindDerivationExhausted, "label %q exceeds %d bytes", label, solana.MaxSeedLength)
	}

	for bump := uint8(math.MaxUint8); bump != 0; bump-- {
		addr, err := d.createAddress([][]byte{[]byte(label), {bump}}, d.ProgramID)
		if err != nil {
			if errors.Is(err, solana.ErrMaxSeedLengthExceeded) {
				return domain.Authority{}, domain.WrapError(domain.KindDerivationExhausted, err, "label %q", label)
			}
			// on curve, try the next bump
			continue
		}
		return domain.Authority{
			Label:     label,
			Bump:      bump,
			Address:   addr,
			ProgramID: d.ProgramID,
		}, nil
	}

	return domain.Authority{}, domain.NewError(domain.KindDerivationExhausted, "no off-curve address for label %q under program %s", label, d.ProgramID)
}

// Recompute rebuilds the authority from a stored label and bump.
// A bump that lands on the curve is an AuthorityMismatch: the stored data can
// no longer prove control of any address.
func (d *Deriver) Recompute(label string, bump uint8) (domain.Authority, error) {
	addr, err := d.createAddress([][]byte{[]byte(label), {bump}}, d.ProgramID)
	if err != nil {
		return domain.Authority{}, domain.WrapError(domain.KindAuthorityMismatch, err, "recompute %q with bump %d", label, bump)
	}
	return domain.Authority{
		Label:     label,
		Bump:      bump,
		Address:   addr,
		ProgramID: d.ProgramID,
	}, nil
}

// Vault returns the vault authority derived from AuthoritySeed
func (d *Deriver) Vault() (domain.Authority, error) {
	return d.Find(domain.AuthoritySeed)
}
