package domain

import "errors"

// Failure reasons surfaced to callers. Validation errors are detected before
// any mutation; ErrConcurrencyConflict is surfaced only after bounded internal
// retries.
var (
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrSelfTransfer        = errors.New("sender and recipient are the same account")
	ErrSelfRequest         = errors.New("requester and payer are the same account")
	ErrNotAuthorized       = errors.New("not authorized")
	ErrAlreadyResolved     = errors.New("request already resolved")
	ErrMissingReason       = errors.New("withdrawal reason is required")
	ErrAccountNotFound     = errors.New("account not found")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrRequestNotFound     = errors.New("payment request not found")
	ErrChainNotFound       = errors.New("chain entry not found")
	ErrInvalidChainID      = errors.New("malformed chain id")
	ErrConcurrencyConflict = errors.New("concurrent update conflict, retry")
)
