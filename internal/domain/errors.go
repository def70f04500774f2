package domain

import "errors"

var (
	ErrNotFound             = errors.New("not found")
	ErrInvalidPrice         = errors.New("price must be positive")
	ErrInvalidQuantity      = errors.New("quantity must be positive")
	ErrTransferUnauthorized = errors.New("caller does not hold the asset")
	ErrAlreadySold          = errors.New("listing already sold")
	ErrInsufficientPayment  = errors.New("offered value below price")
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrRateLimited          = errors.New("rate limited")
	ErrLockHeld             = errors.New("lock already held")
)
