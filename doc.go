// Package fundme provides an oracle-gated crowdfunding ledger for Go applications.
//
// Fundme is designed as a library, not a service. Import it directly into your
// Go application and construct as many independent ledgers as you need. It
// provides:
//
//   - A minimum contribution expressed in USD and checked against a price oracle
//   - Exact fixed-point conversion with no intermediate truncation
//   - Owner-only withdrawal that sweeps the balance and resets every contribution
//   - All-or-nothing mutations backed by a durable journal
//   - Pluggable journal stores (memory, SQLite, PostgreSQL, MongoDB, Redis, LevelDB)
//   - Lifecycle hooks for audit trails and metrics
//
// # Quick Start
//
//	import (
//	    "github.com/xraph/fundme"
//	    "github.com/xraph/fundme/bank/memory"
//	    "github.com/xraph/fundme/oracle/mock"
//	    "github.com/xraph/fundme/store/leveldb"
//	)
//
//	journal, err := leveldb.Open("/var/lib/fundme")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	l := fundme.New("0xowner", mock.NewDefault(), memory.New(),
//	    fundme.WithStore(journal),
//	)
//
//	// Start replays the journal
//	if err := l.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer l.Stop()
//
// # Core Concepts
//
// Contributions are accepted when their USD value reaches the minimum
// (50 USD unless overridden with WithMinimumUSD):
//
//	entry, err := l.Fund(ctx, "0xalice", fundme.MustParseUnits("0.03", 18))
//	if errors.Is(err, fundme.ErrInsufficientContribution) {
//	    // too small at the current price
//	}
//
// Repeat contributions accumulate; an address appears in the funders list
// once, in order of its first contribution.
//
// The owner withdraws everything at once:
//
//	entry, err := l.Withdraw(ctx, "0xowner")
//
// CheaperWithdraw has identical observable behavior and walks a local copy of
// the funders list instead of the live one.
//
// # Amounts
//
// All amounts are unsigned integers in the smallest unit. Native amounts and
// USD values both carry 18 fractional digits. The oracle declares its own
// precision, which is read on every conversion:
//
//	usd = amount * answer / 10^decimals
//
// # Atomicity
//
// Every mutation stages a journal entry, moves funds through the bank and
// only then commits in memory. If the bank refuses the transfer the staged
// entry is discarded and the call returns ErrTransferFailed with the ledger
// unchanged.
//
// # TypeID
//
// Ledgers and journal entries use TypeID for globally unique, type-safe
// identifiers:
//
//	fundme_01h2xcejqtf2nbrexx3vqjhp41  // Ledger ID
//	jrnl_01h455vb4pex5vsknk084sn02q    // Journal entry ID
package fundme
