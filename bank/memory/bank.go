// Package memory provides an in-memory account book implementing
// bank.Transferer. Useful for testing and local development.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/xraph/fundme/bank"
	"github.com/xraph/fundme/types"
)

var _ bank.Transferer = (*Bank)(nil)

// Bank holds balances per address.
type Bank struct {
	mu        sync.RWMutex
	balances  map[types.Address]types.Amount
	rejecting map[types.Address]bool
	transfers int
}

// New creates an empty Bank.
func New() *Bank {
	return &Bank{
		balances:  make(map[types.Address]types.Amount),
		rejecting: make(map[types.Address]bool),
	}
}

// Mint credits amount to addr out of thin air.
func (b *Bank) Mint(addr types.Address, amount types.Amount) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.balances[addr] = b.balances[addr].Add(amount)
}

// BalanceOf returns the balance held by addr.
func (b *Bank) BalanceOf(addr types.Address) types.Amount {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.balances[addr]
}

// Reject makes addr refuse (or accept again) incoming transfers.
func (b *Bank) Reject(addr types.Address, reject bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if reject {
		b.rejecting[addr] = true
		return
	}
	delete(b.rejecting, addr)
}

// Transfers returns how many transfers completed successfully.
func (b *Bank) Transfers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.transfers
}

// Transfer implements bank.Transferer.
func (b *Bank) Transfer(ctx context.Context, from, to types.Address, amount types.Amount) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.rejecting[to] {
		return fmt.Errorf("%w: %s", bank.ErrRejected, to)
	}
	have := b.balances[from]
	if have.LessThan(amount) {
		return fmt.Errorf("%w: %s has %s, needs %s", bank.ErrInsufficientFunds, from, have, amount)
	}

	b.balances[from] = have.Sub(amount)
	b.balances[to] = b.balances[to].Add(amount)
	b.transfers++
	return nil
}
