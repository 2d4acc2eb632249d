package fundme_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"testing"

	"github.com/xraph/fundme"
	"github.com/xraph/fundme/bank"
	bankmem "github.com/xraph/fundme/bank/memory"
	"github.com/xraph/fundme/id"
	"github.com/xraph/fundme/journal"
	"github.com/xraph/fundme/oracle/mock"
	storemem "github.com/xraph/fundme/store/memory"
	"github.com/xraph/fundme/store/storetest"
	"github.com/xraph/fundme/types"
)

const owner types.Address = "0xowner"

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func units(s string) types.Amount {
	return types.MustParseUnits(s, types.NativeDecimals)
}

type fixture struct {
	ledger *fundme.Ledger
	vault  *bankmem.Bank
	feed   *mock.Aggregator
	store  *storemem.Store
}

// newFixture builds a started ledger over a 2000 USD mock feed with every
// address in rich holding 10 units.
func newFixture(t *testing.T, rich []types.Address, opts ...fundme.Option) *fixture {
	t.Helper()

	f := &fixture{
		vault: bankmem.New(),
		feed:  mock.NewDefault(),
		store: storemem.New(),
	}
	for _, addr := range rich {
		f.vault.Mint(addr, units("10"))
	}

	opts = append([]fundme.Option{fundme.WithLogger(quiet), fundme.WithStore(f.store)}, opts...)
	f.ledger = fundme.New(owner, f.feed, f.vault, opts...)
	if err := f.ledger.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	return f
}

// snapshot captures every observable piece of ledger state.
type snapshot struct {
	funders  []types.Address
	amounts  map[types.Address]string
	balance  string
	vault    map[types.Address]string
	journals int
}

func (f *fixture) snapshot(t *testing.T, addrs ...types.Address) snapshot {
	t.Helper()

	s := snapshot{
		funders: f.ledger.Funders(),
		amounts: map[types.Address]string{},
		balance: f.ledger.Balance().String(),
		vault:   map[types.Address]string{},
	}
	for _, a := range append(addrs, owner, f.ledger.Address()) {
		s.amounts[a] = f.ledger.AddressToAmountFunded(a).String()
		s.vault[a] = f.vault.BalanceOf(a).String()
	}
	entries, err := f.store.ListEntries(context.Background(), f.ledger.ID(), journal.ListOpts{})
	if err != nil {
		t.Fatal(err)
	}
	s.journals = len(entries)
	return s
}

func assertUnchanged(t *testing.T, before, after snapshot) {
	t.Helper()
	if fmt.Sprint(before) != fmt.Sprint(after) {
		t.Errorf("state changed:\nbefore %+v\nafter  %+v", before, after)
	}
}

func TestNewLedgerIsEmpty(t *testing.T) {
	feed := mock.NewDefault()
	l := fundme.New(owner, feed, bankmem.New(), fundme.WithLogger(quiet))

	if l.Owner() != owner {
		t.Errorf("owner: got %s", l.Owner())
	}
	if l.PriceFeed() != feed {
		t.Error("price feed not stored")
	}
	if l.FunderCount() != 0 || !l.Balance().IsZero() {
		t.Errorf("expected empty ledger, got %d funders and balance %s", l.FunderCount(), l.Balance())
	}
	if _, err := l.Funder(0); !errors.Is(err, fundme.ErrIndexOutOfRange) {
		t.Errorf("Funder(0): expected ErrIndexOutOfRange, got %v", err)
	}
	if !l.AddressToAmountFunded("0xnobody").IsZero() {
		t.Error("unknown address should have funded zero")
	}
	if !l.MinimumUSD().Equal(fundme.MinimumUSD) {
		t.Errorf("minimum: got %s", l.MinimumUSD())
	}
	if l.Address() != types.Address(l.ID().String()) {
		t.Errorf("address should default to ledger id, got %s", l.Address())
	}
	if l.ID().Prefix() != id.PrefixLedger {
		t.Errorf("id prefix: %s", l.ID().Prefix())
	}
}

func TestMinimumUSDConstant(t *testing.T) {
	want, _ := new(big.Int).SetString("50000000000000000000", 10)
	if fundme.MinimumUSD.Big().Cmp(want) != 0 {
		t.Errorf("MinimumUSD: got %s", fundme.MinimumUSD)
	}
}

func TestFundThreshold(t *testing.T) {
	tests := []struct {
		name    string
		amount  string
		wantErr error
		wantUSD string
	}{
		{"0.03 units is 60 USD", "0.03", nil, "60"},
		{"0.001 units is 2 USD", "0.001", fundme.ErrInsufficientContribution, ""},
		{"exactly 50 USD", "0.025", nil, "50"},
		{"one wei below 50 USD", "0.024999999999999999", fundme.ErrInsufficientContribution, ""},
		{"zero", "0", fundme.ErrInsufficientContribution, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			f := newFixture(t, []types.Address{"0xalice"})
			before := f.snapshot(t, "0xalice")

			entry, err := f.ledger.Fund(ctx, "0xalice", units(tt.amount))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				if entry != nil {
					t.Error("failed fund returned an entry")
				}
				assertUnchanged(t, before, f.snapshot(t, "0xalice"))
				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := f.ledger.AddressToAmountFunded("0xalice"); !got.Equal(units(tt.amount)) {
				t.Errorf("ledger[alice]: got %s", got.FormatUnits(18))
			}
			if got := entry.USDValue.FormatUnits(types.USDDecimals); got != tt.wantUSD {
				t.Errorf("usd value: got %s, want %s", got, tt.wantUSD)
			}
			if entry.Kind != journal.KindFund || entry.Sequence != 1 || entry.Address != "0xalice" {
				t.Errorf("entry: %+v", entry)
			}
			if got := f.vault.BalanceOf(f.ledger.Address()); !got.Equal(units(tt.amount)) {
				t.Errorf("held in bank: %s", got)
			}
		})
	}
}

func TestFundReadsOracleDecimals(t *testing.T) {
	ctx := context.Background()
	answer, _ := new(big.Int).SetString("2000000000000000000000", 10)
	vault := bankmem.New()
	vault.Mint("0xalice", units("1"))

	l := fundme.New(owner, mock.New(18, answer), vault, fundme.WithLogger(quiet))

	entry, err := l.Fund(ctx, "0xalice", units("0.03"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entry.USDValue.FormatUnits(18) != "60" {
		t.Errorf("usd value: %s", entry.USDValue.FormatUnits(18))
	}
	if _, err := l.Fund(ctx, "0xalice", units("0.001")); !errors.Is(err, fundme.ErrInsufficientContribution) {
		t.Errorf("expected ErrInsufficientContribution, got %v", err)
	}
}

func TestFundPriceUnavailable(t *testing.T) {
	ctx := context.Background()

	t.Run("feed error", func(t *testing.T) {
		f := newFixture(t, []types.Address{"0xalice"})
		f.feed.FailWith(errors.New("stale round"))
		before := f.snapshot(t, "0xalice")

		_, err := f.ledger.Fund(ctx, "0xalice", units("1"))
		if !errors.Is(err, fundme.ErrPriceUnavailable) {
			t.Fatalf("expected ErrPriceUnavailable, got %v", err)
		}
		if !fundme.IsRecoverable(err) {
			t.Error("price outage should be recoverable")
		}
		assertUnchanged(t, before, f.snapshot(t, "0xalice"))
	})

	t.Run("non-positive answer", func(t *testing.T) {
		f := newFixture(t, []types.Address{"0xalice"})
		f.feed.UpdateAnswer(big.NewInt(0))

		if _, err := f.ledger.Fund(ctx, "0xalice", units("1")); !errors.Is(err, fundme.ErrPriceUnavailable) {
			t.Fatalf("expected ErrPriceUnavailable, got %v", err)
		}
	})
}

func TestFundInvalidAddress(t *testing.T) {
	f := newFixture(t, nil)
	if _, err := f.ledger.Fund(context.Background(), "", units("1")); !errors.Is(err, fundme.ErrInvalidAddress) {
		t.Fatalf("expected ErrInvalidAddress, got %v", err)
	}
	if f.feed.Reads() != 0 {
		t.Error("oracle consulted for an invalid contributor")
	}
}

func TestLedgerRejectsOwnAccount(t *testing.T) {
	ctx := context.Background()

	t.Run("contributor is the ledger", func(t *testing.T) {
		f := newFixture(t, []types.Address{"0xalice"})
		if _, err := f.ledger.Fund(ctx, "0xalice", units("1")); err != nil {
			t.Fatal(err)
		}
		before := f.snapshot(t, "0xalice")
		reads := f.feed.Reads()

		for _, call := range []func(context.Context, types.Address, types.Amount) (*journal.Entry, error){
			f.ledger.Fund, f.ledger.Receive,
		} {
			if _, err := call(ctx, f.ledger.Address(), units("1")); !errors.Is(err, fundme.ErrInvalidAddress) {
				t.Fatalf("expected ErrInvalidAddress, got %v", err)
			}
		}
		assertUnchanged(t, before, f.snapshot(t, "0xalice"))
		if f.feed.Reads() != reads {
			t.Error("oracle consulted for the ledger's own account")
		}

		if _, err := f.ledger.Withdraw(ctx, owner); err != nil {
			t.Fatalf("withdraw: %v", err)
		}
		if !f.vault.BalanceOf(owner).Equal(units("1")) {
			t.Errorf("owner received %s", f.vault.BalanceOf(owner))
		}
	})

	t.Run("owner is the ledger", func(t *testing.T) {
		vault := bankmem.New()
		vault.Mint("0xalice", units("1"))
		l := fundme.New("0xvault", mock.NewDefault(), vault,
			fundme.WithLogger(quiet),
			fundme.WithAddress("0xvault"),
		)

		if err := l.Start(ctx); !errors.Is(err, fundme.ErrInvalidAddress) {
			t.Errorf("start: expected ErrInvalidAddress, got %v", err)
		}
		if _, err := l.Fund(ctx, "0xalice", units("1")); !errors.Is(err, fundme.ErrInvalidAddress) {
			t.Fatalf("fund: expected ErrInvalidAddress, got %v", err)
		}
		if _, err := l.Withdraw(ctx, "0xvault"); !errors.Is(err, fundme.ErrInvalidAddress) {
			t.Errorf("withdraw: expected ErrInvalidAddress, got %v", err)
		}
	})
}

func TestFundTransferFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, []types.Address{"0xalice"})
	if _, err := f.ledger.Fund(ctx, "0xalice", units("1")); err != nil {
		t.Fatal(err)
	}
	before := f.snapshot(t, "0xalice", "0xpauper")

	_, err := f.ledger.Fund(ctx, "0xpauper", units("1"))
	if !errors.Is(err, fundme.ErrTransferFailed) {
		t.Fatalf("expected ErrTransferFailed, got %v", err)
	}
	if !errors.Is(err, bank.ErrInsufficientFunds) {
		t.Errorf("bank cause not wrapped: %v", err)
	}
	assertUnchanged(t, before, f.snapshot(t, "0xalice", "0xpauper"))

	// The discarded sequence is reused by the next success.
	entry, err := f.ledger.Fund(ctx, "0xalice", units("1"))
	if err != nil {
		t.Fatal(err)
	}
	if entry.Sequence != 2 {
		t.Errorf("sequence: got %d, want 2", entry.Sequence)
	}
}

func TestRepeatContributionsDoNotDuplicateFunders(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, []types.Address{"0xalice", "0xbob"})

	for _, c := range []types.Address{"0xalice", "0xbob", "0xalice", "0xalice"} {
		if _, err := f.ledger.Fund(ctx, c, units("0.5")); err != nil {
			t.Fatal(err)
		}
	}

	funders := f.ledger.Funders()
	if len(funders) != 2 || funders[0] != "0xalice" || funders[1] != "0xbob" {
		t.Errorf("funders: %v", funders)
	}
	if got := f.ledger.AddressToAmountFunded("0xalice"); !got.Equal(units("1.5")) {
		t.Errorf("alice: %s", got.FormatUnits(18))
	}
}

func TestSumOfContributionsEqualsBalance(t *testing.T) {
	ctx := context.Background()
	addrs := []types.Address{"0xa", "0xb", "0xc", "0xd"}
	f := newFixture(t, addrs)

	amounts := []string{"0.03", "1", "0.5", "0.001", "2.25", "0.025", "0.75"}
	for i, amt := range amounts {
		_, _ = f.ledger.Fund(ctx, addrs[i%len(addrs)], units(amt))

		total := types.Zero()
		for _, funder := range f.ledger.Funders() {
			total = total.Add(f.ledger.AddressToAmountFunded(funder))
		}
		if !total.Equal(f.ledger.Balance()) {
			t.Fatalf("step %d: ledger sums to %s but balance is %s", i, total, f.ledger.Balance())
		}
		if !f.ledger.Balance().Equal(f.vault.BalanceOf(f.ledger.Address())) {
			t.Fatalf("step %d: balance %s but bank holds %s", i, f.ledger.Balance(), f.vault.BalanceOf(f.ledger.Address()))
		}
	}
}

type withdrawFunc func(*fundme.Ledger, context.Context, types.Address) (*journal.Entry, error)

var withdrawVariants = []struct {
	name string
	fn   withdrawFunc
}{
	{"Withdraw", (*fundme.Ledger).Withdraw},
	{"CheaperWithdraw", (*fundme.Ledger).CheaperWithdraw},
}

func TestWithdrawFiveFunders(t *testing.T) {
	for _, v := range withdrawVariants {
		t.Run(v.name, func(t *testing.T) {
			ctx := context.Background()
			addrs := []types.Address{"0x1", "0x2", "0x3", "0x4", "0x5"}
			f := newFixture(t, addrs)

			for _, a := range addrs {
				if _, err := f.ledger.Fund(ctx, a, units("1")); err != nil {
					t.Fatal(err)
				}
			}
			ownerBefore := f.vault.BalanceOf(owner)

			entry, err := v.fn(f.ledger, ctx, owner)
			if err != nil {
				t.Fatalf("withdraw: %v", err)
			}

			for _, a := range addrs {
				if !f.ledger.AddressToAmountFunded(a).IsZero() {
					t.Errorf("%s still funded", a)
				}
			}
			if f.ledger.FunderCount() != 0 {
				t.Errorf("funders not cleared: %v", f.ledger.Funders())
			}
			if !f.ledger.Balance().IsZero() || !f.vault.BalanceOf(f.ledger.Address()).IsZero() {
				t.Errorf("balance not zero: %s", f.ledger.Balance())
			}
			if got := f.vault.BalanceOf(owner).Sub(ownerBefore); !got.Equal(units("5")) {
				t.Errorf("owner gained %s, want 5", got.FormatUnits(18))
			}
			if _, err := f.ledger.Funder(0); !errors.Is(err, fundme.ErrIndexOutOfRange) {
				t.Errorf("Funder(0) after withdraw: %v", err)
			}

			if entry.Kind != journal.KindWithdraw || !entry.Amount.Equal(units("5")) || entry.Address != owner {
				t.Errorf("entry: %+v", entry)
			}
			if fmt.Sprint(entry.Funders) != fmt.Sprint(addrs) {
				t.Errorf("cleared funders: %v", entry.Funders)
			}
		})
	}
}

func TestWithdrawNotOwner(t *testing.T) {
	for _, v := range withdrawVariants {
		t.Run(v.name, func(t *testing.T) {
			ctx := context.Background()
			f := newFixture(t, []types.Address{"0xalice"})
			if _, err := f.ledger.Fund(ctx, "0xalice", units("1")); err != nil {
				t.Fatal(err)
			}
			before := f.snapshot(t, "0xalice")

			_, err := v.fn(f.ledger, ctx, "0xalice")
			if !errors.Is(err, fundme.ErrNotAuthorized) {
				t.Fatalf("expected ErrNotAuthorized, got %v", err)
			}
			if !fundme.IsAuthorizationError(err) {
				t.Error("IsAuthorizationError should match")
			}
			assertUnchanged(t, before, f.snapshot(t, "0xalice"))
		})
	}
}

func TestWithdrawRollsBackWhenOwnerRejects(t *testing.T) {
	for _, v := range withdrawVariants {
		t.Run(v.name, func(t *testing.T) {
			ctx := context.Background()
			f := newFixture(t, []types.Address{"0xalice", "0xbob"})
			for _, a := range []types.Address{"0xalice", "0xbob"} {
				if _, err := f.ledger.Fund(ctx, a, units("1")); err != nil {
					t.Fatal(err)
				}
			}
			before := f.snapshot(t, "0xalice", "0xbob")

			f.vault.Reject(owner, true)
			_, err := v.fn(f.ledger, ctx, owner)
			if !errors.Is(err, fundme.ErrTransferFailed) || !errors.Is(err, bank.ErrRejected) {
				t.Fatalf("expected ErrTransferFailed wrapping ErrRejected, got %v", err)
			}
			assertUnchanged(t, before, f.snapshot(t, "0xalice", "0xbob"))

			f.vault.Reject(owner, false)
			if _, err := v.fn(f.ledger, ctx, owner); err != nil {
				t.Fatalf("withdraw after recovery: %v", err)
			}
			if !f.vault.BalanceOf(owner).Equal(units("2")) {
				t.Errorf("owner: %s", f.vault.BalanceOf(owner))
			}
		})
	}
}

func TestWithdrawEmptyLedger(t *testing.T) {
	f := newFixture(t, nil)
	entry, err := f.ledger.Withdraw(context.Background(), owner)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !entry.Amount.IsZero() || len(entry.Funders) != 0 {
		t.Errorf("entry: %+v", entry)
	}
}

func TestFundAfterWithdrawStartsFresh(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, []types.Address{"0xalice", "0xbob"})

	_, _ = f.ledger.Fund(ctx, "0xalice", units("1"))
	_, _ = f.ledger.Fund(ctx, "0xbob", units("1"))
	if _, err := f.ledger.CheaperWithdraw(ctx, owner); err != nil {
		t.Fatal(err)
	}
	if _, err := f.ledger.Fund(ctx, "0xbob", units("0.5")); err != nil {
		t.Fatal(err)
	}

	first, err := f.ledger.Funder(0)
	if err != nil || first != "0xbob" {
		t.Errorf("Funder(0): got %s, %v", first, err)
	}
	if _, err := f.ledger.Funder(1); !errors.Is(err, fundme.ErrIndexOutOfRange) {
		t.Errorf("Funder(1): %v", err)
	}
	if _, err := f.ledger.Funder(-1); !errors.Is(err, fundme.ErrIndexOutOfRange) {
		t.Errorf("Funder(-1): %v", err)
	}
}

func TestReceiveRoutesToFund(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, []types.Address{"0xalice"})

	if _, err := f.ledger.Receive(ctx, "0xalice", units("0.001")); !errors.Is(err, fundme.ErrInsufficientContribution) {
		t.Errorf("small receive: %v", err)
	}
	entry, err := f.ledger.Receive(ctx, "0xalice", units("0.03"))
	if err != nil {
		t.Fatal(err)
	}
	if entry.Kind != journal.KindFund || f.ledger.FunderCount() != 1 {
		t.Errorf("receive did not fund: %+v", entry)
	}
}

func TestWithMinimumUSD(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, []types.Address{"0xalice"}, fundme.WithMinimumUSD(types.Units(1, types.USDDecimals)))

	// 0.001 units at 2000 USD is 2 USD.
	if _, err := f.ledger.Fund(ctx, "0xalice", units("0.001")); err != nil {
		t.Errorf("2 USD should clear a 1 USD minimum: %v", err)
	}
	if _, err := f.ledger.Fund(ctx, "0xalice", units("0.0001")); !errors.Is(err, fundme.ErrInsufficientContribution) {
		t.Errorf("0.2 USD should not: %v", err)
	}
}

func TestJournalReplay(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, []types.Address{"0xalice", "0xbob", "0xcarol"})

	steps := []func() error{
		func() error { _, err := f.ledger.Fund(ctx, "0xalice", units("1")); return err },
		func() error { _, err := f.ledger.Fund(ctx, "0xbob", units("2")); return err },
		func() error { _, err := f.ledger.Withdraw(ctx, owner); return err },
		func() error { _, err := f.ledger.Fund(ctx, "0xcarol", units("0.5")); return err },
		func() error { _, err := f.ledger.Fund(ctx, "0xalice", units("0.25")); return err },
	}
	for i, step := range steps {
		if err := step(); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}

	restored := fundme.New(owner, f.feed, f.vault,
		fundme.WithLogger(quiet),
		fundme.WithStore(f.store),
		fundme.WithID(f.ledger.ID()),
	)
	if err := restored.Start(ctx); err != nil {
		t.Fatalf("restart: %v", err)
	}

	if fmt.Sprint(restored.Funders()) != fmt.Sprint(f.ledger.Funders()) {
		t.Errorf("funders: got %v, want %v", restored.Funders(), f.ledger.Funders())
	}
	if !restored.Balance().Equal(units("0.75")) {
		t.Errorf("balance: %s", restored.Balance().FormatUnits(18))
	}
	if !restored.AddressToAmountFunded("0xbob").IsZero() {
		t.Error("bob was swept before the restart")
	}
	if restored.Address() != f.ledger.Address() {
		t.Errorf("address: %s", restored.Address())
	}

	// The restored ledger continues the sequence.
	entry, err := restored.Fund(ctx, "0xbob", units("1"))
	if err != nil {
		t.Fatal(err)
	}
	if entry.Sequence != 6 {
		t.Errorf("sequence after replay: %d", entry.Sequence)
	}

	withdrawals, err := restored.History(ctx, journal.ListOpts{Kind: journal.KindWithdraw})
	if err != nil {
		t.Fatal(err)
	}
	if len(withdrawals) != 1 || withdrawals[0].Sequence != 3 {
		t.Errorf("withdrawals: %v", withdrawals)
	}
}

func TestReplayRejectsCorruptJournal(t *testing.T) {
	tests := []struct {
		name    string
		entries func(id.LedgerID) []*journal.Entry
	}{
		{
			name: "sequence gap",
			entries: func(l id.LedgerID) []*journal.Entry {
				return []*journal.Entry{
					storetest.Entry(l, 1, journal.KindFund),
					storetest.Entry(l, 3, journal.KindFund),
				}
			},
		},
		{
			name: "withdrawal amount disagrees",
			entries: func(l id.LedgerID) []*journal.Entry {
				w := storetest.Entry(l, 2, journal.KindWithdraw)
				w.Amount = units("9")
				return []*journal.Entry{storetest.Entry(l, 1, journal.KindFund), w}
			},
		},
		{
			name: "unknown kind",
			entries: func(l id.LedgerID) []*journal.Entry {
				return []*journal.Entry{storetest.Entry(l, 1, journal.Kind("refund"))}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			s := storemem.New()
			ledgerID := id.NewLedgerID()
			for _, e := range tt.entries(ledgerID) {
				if err := s.AppendEntry(ctx, e); err != nil {
					t.Fatal(err)
				}
			}

			l := fundme.New(owner, mock.NewDefault(), bankmem.New(),
				fundme.WithLogger(quiet),
				fundme.WithStore(s),
				fundme.WithID(ledgerID),
			)
			if err := l.Start(ctx); !errors.Is(err, fundme.ErrJournalCorrupt) {
				t.Fatalf("expected ErrJournalCorrupt, got %v", err)
			}
			if l.FunderCount() != 0 || !l.Balance().IsZero() {
				t.Error("partial replay left state behind")
			}
		})
	}
}

// flakyStore fails selected journal operations. Discards fail
// discardFails times with discardErr, then go through.
type flakyStore struct {
	*storemem.Store
	appendErr    error
	discardErr   error
	discardFails int
	discarded    []id.EntryID
}

func (s *flakyStore) AppendEntry(ctx context.Context, e *journal.Entry) error {
	if s.appendErr != nil {
		return s.appendErr
	}
	return s.Store.AppendEntry(ctx, e)
}

func (s *flakyStore) DiscardEntry(ctx context.Context, entryID id.EntryID) error {
	if s.discardFails > 0 {
		s.discardFails--
		return s.discardErr
	}
	if err := s.Store.DiscardEntry(ctx, entryID); err != nil {
		return err
	}
	s.discarded = append(s.discarded, entryID)
	return nil
}

func TestStageFailureMovesNoFunds(t *testing.T) {
	ctx := context.Background()
	vault := bankmem.New()
	vault.Mint("0xalice", units("1"))
	s := &flakyStore{Store: storemem.New(), appendErr: fundme.ErrStoreNotReady}

	l := fundme.New(owner, mock.NewDefault(), vault, fundme.WithLogger(quiet), fundme.WithStore(s))

	if _, err := l.Fund(ctx, "0xalice", units("1")); !errors.Is(err, fundme.ErrStoreNotReady) {
		t.Fatalf("expected ErrStoreNotReady, got %v", err)
	}
	if vault.Transfers() != 0 || !vault.BalanceOf("0xalice").Equal(units("1")) {
		t.Error("funds moved although staging failed")
	}
	if l.FunderCount() != 0 {
		t.Error("ledger changed although staging failed")
	}
}

func TestDiscardFailureIsReported(t *testing.T) {
	ctx := context.Background()
	vault := bankmem.New()
	vault.Mint("0xalice", units("2"))
	discardErr := errors.New("disk full")
	journalStore := storemem.New()
	s := &flakyStore{Store: journalStore, discardErr: discardErr, discardFails: 1}

	l := fundme.New(owner, mock.NewDefault(), vault, fundme.WithLogger(quiet), fundme.WithStore(s))

	_, err := l.Fund(ctx, "0xpauper", units("1"))
	if !errors.Is(err, fundme.ErrTransferFailed) {
		t.Errorf("expected ErrTransferFailed, got %v", err)
	}
	if !errors.Is(err, discardErr) {
		t.Errorf("discard failure not joined: %v", err)
	}
	if l.FunderCount() != 0 {
		t.Error("ledger changed")
	}

	// The store recovered: the orphan is discarded and its sequence reused.
	entry, err := l.Fund(ctx, "0xalice", units("1"))
	if err != nil {
		t.Fatalf("fund after discard failure: %v", err)
	}
	if entry.Sequence != 1 {
		t.Errorf("sequence: got %d, want 1", entry.Sequence)
	}
	if _, err := l.Withdraw(ctx, owner); err != nil {
		t.Fatalf("withdraw after discard failure: %v", err)
	}
	if _, err := l.Fund(ctx, "0xalice", units("1")); err != nil {
		t.Fatal(err)
	}

	restored := fundme.New(owner, mock.NewDefault(), vault,
		fundme.WithLogger(quiet),
		fundme.WithStore(journalStore),
		fundme.WithID(l.ID()),
	)
	if err := restored.Start(ctx); err != nil {
		t.Fatalf("restart: %v", err)
	}
	if !restored.AddressToAmountFunded("0xpauper").IsZero() {
		t.Error("restart credited a contribution that was never paid")
	}
	if fmt.Sprint(restored.Funders()) != "[0xalice]" || !restored.Balance().Equal(units("1")) {
		t.Errorf("restored: funders %v balance %s", restored.Funders(), restored.Balance())
	}
	if !restored.Balance().Equal(vault.BalanceOf(restored.Address())) {
		t.Errorf("restored balance %s, bank holds %s", restored.Balance(), vault.BalanceOf(restored.Address()))
	}
}

func TestOrphanBlocksStagingUntilDiscarded(t *testing.T) {
	ctx := context.Background()
	vault := bankmem.New()
	vault.Mint("0xalice", units("1"))
	discardErr := errors.New("disk full")
	s := &flakyStore{Store: storemem.New(), discardErr: discardErr, discardFails: 2}

	l := fundme.New(owner, mock.NewDefault(), vault, fundme.WithLogger(quiet), fundme.WithStore(s))

	if _, err := l.Fund(ctx, "0xpauper", units("1")); !errors.Is(err, discardErr) {
		t.Fatalf("expected discard failure, got %v", err)
	}

	// Still failing: the next mutation reports the store error and moves nothing.
	_, err := l.Fund(ctx, "0xalice", units("1"))
	if !errors.Is(err, discardErr) || errors.Is(err, fundme.ErrDuplicateEntry) {
		t.Fatalf("expected the pending discard error, got %v", err)
	}
	if !vault.BalanceOf("0xalice").Equal(units("1")) {
		t.Error("funds moved while the journal held an orphan")
	}

	if _, err := l.Fund(ctx, "0xalice", units("1")); err != nil {
		t.Fatalf("fund after recovery: %v", err)
	}
	entries, err := l.History(ctx, journal.ListOpts{})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Address != "0xalice" {
		t.Errorf("journal: %v", entries)
	}
}

func TestStopDiscardsOrphan(t *testing.T) {
	ctx := context.Background()
	journalStore := storemem.New()
	s := &flakyStore{Store: journalStore, discardErr: errors.New("disk full"), discardFails: 1}

	l := fundme.New(owner, mock.NewDefault(), bankmem.New(), fundme.WithLogger(quiet), fundme.WithStore(s))
	if _, err := l.Fund(ctx, "0xpauper", units("1")); !errors.Is(err, fundme.ErrTransferFailed) {
		t.Fatalf("expected ErrTransferFailed, got %v", err)
	}

	// Read the journal before Stop closes the store.
	entries, _ := journalStore.ListEntries(ctx, l.ID(), journal.ListOpts{})
	if len(entries) != 1 {
		t.Fatalf("orphan not left behind: %v", entries)
	}

	if err := l.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if len(s.discarded) != 1 || s.discarded[0] != entries[0].ID {
		t.Errorf("discarded %v, want %s", s.discarded, entries[0].ID)
	}
}

func TestHistoryRequiresStore(t *testing.T) {
	l := fundme.New(owner, mock.NewDefault(), bankmem.New(), fundme.WithLogger(quiet))
	if _, err := l.History(context.Background(), journal.ListOpts{}); !errors.Is(err, fundme.ErrStoreNotReady) {
		t.Errorf("expected ErrStoreNotReady, got %v", err)
	}
}

func TestLedgerWithoutStore(t *testing.T) {
	ctx := context.Background()
	vault := bankmem.New()
	vault.Mint("0xalice", units("1"))
	l := fundme.New(owner, mock.NewDefault(), vault, fundme.WithLogger(quiet))

	if err := l.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := l.Fund(ctx, "0xalice", units("1")); err != nil {
		t.Fatal(err)
	}
	if _, err := l.Withdraw(ctx, owner); err != nil {
		t.Fatal(err)
	}
	if err := l.Stop(); err != nil {
		t.Fatal(err)
	}
}

type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (e *eventLog) Name() string { return "event-log" }

func (e *eventLog) add(s string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, s)
}

func (e *eventLog) OnInit(context.Context, any) error { e.add("init"); return nil }

func (e *eventLog) OnFunded(_ context.Context, entry *journal.Entry) error {
	e.add("funded:" + entry.Address.String())
	return nil
}

func (e *eventLog) OnFundRejected(_ context.Context, c types.Address, _ types.Amount, _ error) error {
	e.add("rejected:" + c.String())
	return nil
}

func (e *eventLog) OnWithdrawn(_ context.Context, entry *journal.Entry) error {
	e.add(fmt.Sprintf("withdrawn:%d", len(entry.Funders)))
	return nil
}

func (e *eventLog) OnWithdrawFailed(_ context.Context, caller types.Address, _ error) error {
	e.add("withdraw_failed:" + caller.String())
	return nil
}

func TestPluginsObserveLedger(t *testing.T) {
	ctx := context.Background()
	log := &eventLog{}
	f := newFixture(t, []types.Address{"0xalice"}, fundme.WithPlugin(log))

	_, _ = f.ledger.Fund(ctx, "0xalice", units("1"))
	_, _ = f.ledger.Fund(ctx, "0xalice", units("0.001"))
	_, _ = f.ledger.Withdraw(ctx, "0xalice")
	_, _ = f.ledger.Withdraw(ctx, owner)

	want := []string{"init", "funded:0xalice", "rejected:0xalice", "withdraw_failed:0xalice", "withdrawn:1"}
	if fmt.Sprint(log.events) != fmt.Sprint(want) {
		t.Errorf("events: got %v, want %v", log.events, want)
	}
}

func TestConcurrentContributions(t *testing.T) {
	ctx := context.Background()
	var addrs []types.Address
	for i := range 20 {
		addrs = append(addrs, types.Address(fmt.Sprintf("0x%02d", i)))
	}
	f := newFixture(t, addrs)

	var wg sync.WaitGroup
	for _, a := range addrs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 3 {
				if _, err := f.ledger.Fund(ctx, a, units("0.1")); err != nil {
					t.Errorf("fund %s: %v", a, err)
				}
			}
		}()
	}
	wg.Wait()

	if f.ledger.FunderCount() != len(addrs) {
		t.Errorf("funders: got %d, want %d", f.ledger.FunderCount(), len(addrs))
	}
	if !f.ledger.Balance().Equal(units("6")) {
		t.Errorf("balance: %s", f.ledger.Balance().FormatUnits(18))
	}
	entries, _ := f.ledger.History(ctx, journal.ListOpts{})
	for i, e := range entries {
		if e.Sequence != uint64(i+1) {
			t.Fatalf("journal sequence %d at position %d", e.Sequence, i)
		}
	}
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		err         error
		recoverable bool
		auth        bool
	}{
		{fundme.ErrPriceUnavailable, true, false},
		{fundme.ErrTransferFailed, true, false},
		{fundme.ErrStoreNotReady, true, false},
		{fundme.ErrNotAuthorized, false, true},
		{fundme.ErrInsufficientContribution, false, false},
		{fundme.ErrJournalCorrupt, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			wrapped := fmt.Errorf("context: %w", tt.err)
			if got := fundme.IsRecoverable(wrapped); got != tt.recoverable {
				t.Errorf("IsRecoverable: got %v", got)
			}
			if got := fundme.IsAuthorizationError(wrapped); got != tt.auth {
				t.Errorf("IsAuthorizationError: got %v", got)
			}
		})
	}
}
