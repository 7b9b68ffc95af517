package store

import "errors"

// ErrNotFound is returned when a record does not exist or is not visible.
var ErrNotFound = errors.New("not found")

// ErrInsufficientFunds is returned by ExecuteTransfer when the sender's
// balance is below the requested amount. Balances are left untouched.
var ErrInsufficientFunds = errors.New("insufficient funds")
