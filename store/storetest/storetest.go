// Package storetest is a conformance suite every store.Store backend runs
// from its own tests.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/xraph/fundme"
	"github.com/xraph/fundme/id"
	"github.com/xraph/fundme/journal"
	"github.com/xraph/fundme/store"
	"github.com/xraph/fundme/types"
)

// Factory opens a fresh, migrated store for one subtest.
type Factory func(t *testing.T) store.Store

// Entry builds a journal entry for ledgerID with the given sequence.
func Entry(ledgerID id.LedgerID, seq uint64, kind journal.Kind) *journal.Entry {
	e := &journal.Entry{
		ID:        id.NewEntryID(),
		LedgerID:  ledgerID,
		Sequence:  seq,
		Kind:      kind,
		Address:   types.Address("0xfunder"),
		Amount:    types.MustParseUnits("0.03", types.NativeDecimals),
		USDValue:  types.Units(60, types.USDDecimals),
		Timestamp: time.Date(2024, 1, 1, 0, 0, int(seq), 0, time.UTC),
	}
	if kind == journal.KindWithdraw {
		e.Address = "0xowner"
		e.USDValue = types.Zero()
		e.Funders = []types.Address{"0xa", "0xb"}
	}
	return e
}

// Run exercises the journal contract against stores produced by open.
func Run(t *testing.T, open Factory) {
	t.Helper()

	t.Run("AppendAndList", func(t *testing.T) {
		ctx := context.Background()
		s := open(t)
		ledgerID := id.NewLedgerID()

		// Appended out of order on purpose.
		for _, seq := range []uint64{2, 1, 3} {
			kind := journal.KindFund
			if seq == 3 {
				kind = journal.KindWithdraw
			}
			if err := s.AppendEntry(ctx, Entry(ledgerID, seq, kind)); err != nil {
				t.Fatalf("append %d: %v", seq, err)
			}
		}

		got, err := s.ListEntries(ctx, ledgerID, journal.ListOpts{})
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(got) != 3 {
			t.Fatalf("got %d entries, want 3", len(got))
		}
		for i, e := range got {
			if e.Sequence != uint64(i+1) {
				t.Errorf("entry %d: sequence %d", i, e.Sequence)
			}
		}

		w := got[2]
		if w.Kind != journal.KindWithdraw || w.Address != "0xowner" {
			t.Errorf("withdraw entry: %+v", w)
		}
		if len(w.Funders) != 2 || w.Funders[0] != "0xa" || w.Funders[1] != "0xb" {
			t.Errorf("funders: %v", w.Funders)
		}
		if !got[0].Amount.Equal(types.MustParseUnits("0.03", types.NativeDecimals)) {
			t.Errorf("amount: %s", got[0].Amount)
		}
		if !got[0].USDValue.Equal(types.Units(60, types.USDDecimals)) {
			t.Errorf("usd value: %s", got[0].USDValue)
		}
		if got[0].LedgerID.String() != ledgerID.String() {
			t.Errorf("ledger id: %s", got[0].LedgerID)
		}
	})

	t.Run("ListFiltersAndPages", func(t *testing.T) {
		ctx := context.Background()
		s := open(t)
		ledgerID := id.NewLedgerID()

		kinds := []journal.Kind{journal.KindFund, journal.KindFund, journal.KindWithdraw, journal.KindFund}
		for i, k := range kinds {
			if err := s.AppendEntry(ctx, Entry(ledgerID, uint64(i+1), k)); err != nil {
				t.Fatal(err)
			}
		}

		funds, err := s.ListEntries(ctx, ledgerID, journal.ListOpts{Kind: journal.KindFund})
		if err != nil {
			t.Fatal(err)
		}
		if len(funds) != 3 {
			t.Errorf("fund entries: got %d, want 3", len(funds))
		}

		page, err := s.ListEntries(ctx, ledgerID, journal.ListOpts{Offset: 1, Limit: 2})
		if err != nil {
			t.Fatal(err)
		}
		if len(page) != 2 || page[0].Sequence != 2 || page[1].Sequence != 3 {
			t.Errorf("page: %v", page)
		}
	})

	t.Run("LedgersAreIsolated", func(t *testing.T) {
		ctx := context.Background()
		s := open(t)
		a, b := id.NewLedgerID(), id.NewLedgerID()

		if err := s.AppendEntry(ctx, Entry(a, 1, journal.KindFund)); err != nil {
			t.Fatal(err)
		}
		if err := s.AppendEntry(ctx, Entry(b, 1, journal.KindFund)); err != nil {
			t.Fatalf("same sequence on another ledger: %v", err)
		}

		got, err := s.ListEntries(ctx, a, journal.ListOpts{})
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 1 {
			t.Errorf("ledger a: got %d entries, want 1", len(got))
		}
	})

	t.Run("DuplicateSequenceRejected", func(t *testing.T) {
		ctx := context.Background()
		s := open(t)
		ledgerID := id.NewLedgerID()

		if err := s.AppendEntry(ctx, Entry(ledgerID, 1, journal.KindFund)); err != nil {
			t.Fatal(err)
		}
		if err := s.AppendEntry(ctx, Entry(ledgerID, 1, journal.KindFund)); err == nil {
			t.Error("expected duplicate sequence to fail")
		}
	})

	t.Run("Discard", func(t *testing.T) {
		ctx := context.Background()
		s := open(t)
		ledgerID := id.NewLedgerID()

		keep := Entry(ledgerID, 1, journal.KindFund)
		drop := Entry(ledgerID, 2, journal.KindFund)
		for _, e := range []*journal.Entry{keep, drop} {
			if err := s.AppendEntry(ctx, e); err != nil {
				t.Fatal(err)
			}
		}

		if err := s.DiscardEntry(ctx, drop.ID); err != nil {
			t.Fatalf("discard: %v", err)
		}
		if err := s.DiscardEntry(ctx, drop.ID); !errors.Is(err, fundme.ErrEntryNotFound) {
			t.Errorf("second discard: expected ErrEntryNotFound, got %v", err)
		}

		got, err := s.ListEntries(ctx, ledgerID, journal.ListOpts{})
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 1 || got[0].ID.String() != keep.ID.String() {
			t.Errorf("after discard: %v", got)
		}

		// A discarded sequence can be reused.
		if err := s.AppendEntry(ctx, Entry(ledgerID, 2, journal.KindFund)); err != nil {
			t.Errorf("reuse sequence: %v", err)
		}
	})

	t.Run("EmptyLedger", func(t *testing.T) {
		s := open(t)
		got, err := s.ListEntries(context.Background(), id.NewLedgerID(), journal.ListOpts{})
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 0 {
			t.Errorf("expected no entries, got %d", len(got))
		}
	})

	t.Run("Ping", func(t *testing.T) {
		if err := open(t).Ping(context.Background()); err != nil {
			t.Errorf("ping: %v", err)
		}
	})
}
