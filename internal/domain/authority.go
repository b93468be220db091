package domain

import (
	"github.com/gagliardetto/solana-go"
)

// AuthoritySeed is the fixed derivation label of the vault authority
const AuthoritySeed = "bank_authority"

// AuthorityRecordSpace is the allocated size of the authority record:
// an 8 byte discriminator followed by the bump padded to 8 bytes
const AuthorityRecordSpace = 8 + 8

// Authority is a derived program address together with everything needed to
// reproduce it. It carries no secret: holding the value is not authority,
// presenting its seeds to a program-scoped SignerSet is.
type Authority struct {
	Label     string
	Bump      uint8
	Address   solana.PublicKey
	ProgramID solana.PublicKey
}

// SignerSeeds returns the seeds the token program hashes to re-derive Address
func (a Authority) SignerSeeds() [][]byte {
	return [][]byte{[]byte(a.Label), {a.Bump}}
}

// AuthorityRecord is the on-ledger identity record created at initialization
type AuthorityRecord struct {
	Address  solana.PublicKey
	Owner    solana.PublicKey // executing program
	Label    string
	Bump     uint8
	Lamports uint64
}

// Authority rebuilds the value type from the stored record
func (r *AuthorityRecord) Authority() Authority {
	return Authority{
		Label:     r.Label,
		Bump:      r.Bump,
		Address:   r.Address,
		ProgramID: r.Owner,
	}
}
