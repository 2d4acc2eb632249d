// Package journal models the durable record of ledger mutations. Every
// successful contribution and withdrawal is one Entry; replaying a ledger's
// entries in Sequence order rebuilds its state.
package journal

import (
	"context"
	"slices"
	"time"

	"github.com/xraph/fundme/id"
	"github.com/xraph/fundme/types"
)

// Kind distinguishes journal entries.
type Kind string

const (
	KindFund     Kind = "fund"
	KindWithdraw Kind = "withdraw"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k == KindFund || k == KindWithdraw
}

// Entry is one committed ledger mutation.
//
// For KindFund, Address is the contributor, Amount the contribution and
// USDValue its converted value. For KindWithdraw, Address is the owner that
// received the sweep, Amount the swept balance and Funders the list that was
// cleared.
type Entry struct {
	ID        id.EntryID      `json:"id"`
	LedgerID  id.LedgerID     `json:"ledger_id"`
	Sequence  uint64          `json:"sequence"`
	Kind      Kind            `json:"kind"`
	Address   types.Address   `json:"address"`
	Amount    types.Amount    `json:"amount"`
	USDValue  types.Amount    `json:"usd_value"`
	Funders   []types.Address `json:"funders,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// Clone returns a deep copy safe to hand to callers.
func (e *Entry) Clone() *Entry {
	if e == nil {
		return nil
	}
	c := *e
	c.Funders = slices.Clone(e.Funders)
	return &c
}

// ListOpts filters and pages journal listings. Results are always ordered by
// ascending Sequence.
type ListOpts struct {
	Kind   Kind
	Limit  int
	Offset int
}

// Apply filters and pages entries that are already ordered by Sequence.
// Backends without native filtering use it.
func (o ListOpts) Apply(entries []*Entry) []*Entry {
	out := make([]*Entry, 0, len(entries))
	for _, e := range entries {
		if o.Kind != "" && e.Kind != o.Kind {
			continue
		}
		out = append(out, e)
	}
	if o.Offset > 0 {
		if o.Offset >= len(out) {
			return []*Entry{}
		}
		out = out[o.Offset:]
	}
	if o.Limit > 0 && o.Limit < len(out) {
		out = out[:o.Limit]
	}
	return out
}

// Store persists journal entries.
type Store interface {
	// AppendEntry stages e. It must fail if e.ID or (e.LedgerID, e.Sequence)
	// is already present.
	AppendEntry(ctx context.Context, e *Entry) error

	// DiscardEntry removes a staged entry whose effects never happened.
	DiscardEntry(ctx context.Context, entryID id.EntryID) error

	// ListEntries returns a ledger's entries by ascending Sequence.
	ListEntries(ctx context.Context, ledgerID id.LedgerID, opts ListOpts) ([]*Entry, error)
}
