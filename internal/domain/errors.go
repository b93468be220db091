package domain

import (
	"errors"
	"fmt"
)

// ErrorKind tags a vault failure with its taxonomy entry
type ErrorKind string

const (
	KindAlreadyInitialized  ErrorKind = "AlreadyInitialized"
	KindInvalidAssetType    ErrorKind = "InvalidAssetType"
	KindAccountMismatch     ErrorKind = "AccountMismatch"
	KindPrecisionMismatch   ErrorKind = "PrecisionMismatch"
	KindInsufficientFunds   ErrorKind = "InsufficientFunds"
	KindAuthorityMismatch   ErrorKind = "AuthorityMismatch"
	KindDerivationExhausted ErrorKind = "DerivationExhausted"
)

// ErrAccountNotFound is returned by ledgers when an address holds no record
var ErrAccountNotFound = errors.New("account not found")

// ErrInvalidAmount reports an amount that is not a non-negative decimal
// representable in base units
var ErrInvalidAmount = errors.New("invalid amount")

// VaultError is the tagged result every precondition and operation returns
// on failure. Two VaultErrors match under errors.Is when their kinds match.
type VaultError struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

func (e *VaultError) Error() string {
	if e.Msg == "" {
		return string(e.Kind)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *VaultError) Unwrap() error {
	return e.Err
}

// Is reports kind equality so callers can match against the sentinels below
func (e *VaultError) Is(target error) bool {
	var t *VaultError
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinels for errors.Is matching
var (
	ErrAlreadyInitialized  = &VaultError{Kind: KindAlreadyInitialized}
	ErrInvalidAssetType    = &VaultError{Kind: KindInvalidAssetType}
	ErrAccountMismatch     = &VaultError{Kind: KindAccountMismatch}
	ErrPrecisionMismatch   = &VaultError{Kind: KindPrecisionMismatch}
	ErrInsufficientFunds   = &VaultError{Kind: KindInsufficientFunds}
	ErrAuthorityMismatch   = &VaultError{Kind: KindAuthorityMismatch}
	ErrDerivationExhausted = &VaultError{Kind: KindDerivationExhausted}
)

// NewError builds a VaultError with a formatted message
func NewError(kind ErrorKind, format string, args ...interface{}) error {
	return &VaultError{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// WrapError builds a VaultError that keeps cause reachable through errors.Is
func WrapError(kind ErrorKind, cause error, format string, args ...interface{}) error {
	return &VaultError{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: cause}
}

// KindOf returns the taxonomy entry of err, or "" when err is not a VaultError
func KindOf(err error) ErrorKind {
	var ve *VaultError
	if errors.As(err, &ve) {
		return ve.Kind
	}
	return ""
}
