package domain

import "errors"

// Error kinds surfaced by the payment subsystem. Handlers match these with
// errors.Is to pick a status code; ErrDuplicateKey stays internal to the
// transfer engine and is never returned to a caller.
var (
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrWalletNotFound      = errors.New("wallet not found")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrDuplicateKey        = errors.New("duplicate idempotency key")
	ErrSelfTransfer        = errors.New("cannot transfer to yourself")
	ErrTransferTimeout     = errors.New("timed out waiting for wallet lock")
)
