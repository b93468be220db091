package domain

import (
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Direction of a vault transfer relative to the pool
type Direction string

const (
	DirectionDeposit  Direction = "DEPOSIT"
	DirectionWithdraw Direction = "WITHDRAW"
)

// TransferChecked is the instruction handed to the token program: move
// Amount from Source to Destination, validated against Decimals
type TransferChecked struct {
	ID          uuid.UUID
	Source      solana.PublicKey
	Destination solana.PublicKey
	Mint        solana.PublicKey
	Authority   solana.PublicKey
	Amount      uint64
	Decimals    uint8
}

// SignerSet is the authorization presented with an instruction.
// Keys are identities whose signatures the host already verified.
// Seeds are program-derived signer seeds; each one authorizes the address
// it derives to under ProgramID, standing in for a signature.
type SignerSet struct {
	Keys      []solana.PublicKey
	Seeds     [][][]byte
	ProgramID solana.PublicKey
}

// Authorizes reports whether addr signed, directly or by derivation proof
func (s SignerSet) Authorizes(addr solana.PublicKey) bool {
	for _, k := range s.Keys {
		if k.Equals(addr) {
			return true
		}
	}
	for _, seeds := range s.Seeds {
		derived, err := solana.CreateProgramAddress(seeds, s.ProgramID)
		if err != nil {
			continue
		}
		if derived.Equals(addr) {
			return true
		}
	}
	return false
}

// TransferReceipt describes a committed vault transfer
type TransferReceipt struct {
	ID          uuid.UUID
	Direction   Direction
	Signer      solana.PublicKey
	Mint        solana.PublicKey
	Amount      uint64
	UIAmount    decimal.Decimal
	PoolBalance uint64
	UserBalance uint64
	ExecutedAt  time.Time
}
