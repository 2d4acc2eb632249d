// Package bank defines the currency transfer primitive the ledger moves funds
// through. A Transferer is all-or-nothing: a failed transfer leaves every
// balance it touched unchanged.
package bank

import (
	"context"
	"errors"

	"github.com/xraph/fundme/types"
)

var (
	// ErrInsufficientFunds is returned when the sender cannot cover the amount.
	ErrInsufficientFunds = errors.New("bank: insufficient funds")

	// ErrRejected is returned when the recipient refuses incoming funds.
	ErrRejected = errors.New("bank: recipient rejected transfer")
)

// Transferer moves amount from one account to another.
type Transferer interface {
	Transfer(ctx context.Context, from, to types.Address, amount types.Amount) error
}

// TransfererFunc adapts a plain function to a Transferer.
type TransfererFunc func(ctx context.Context, from, to types.Address, amount types.Amount) error

// Transfer implements Transferer.
func (f TransfererFunc) Transfer(ctx context.Context, from, to types.Address, amount types.Amount) error {
	return f(ctx, from, to, amount)
}
