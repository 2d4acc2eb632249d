package fundme

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/xraph/fundme/bank"
	"github.com/xraph/fundme/id"
	"github.com/xraph/fundme/journal"
	"github.com/xraph/fundme/oracle"
	"github.com/xraph/fundme/plugin"
	"github.com/xraph/fundme/store"
	"github.com/xraph/fundme/types"
)

// MinimumUSD is the default smallest accepted contribution: 50 USD at
// types.USDDecimals fractional digits.
var MinimumUSD = types.Units(50, types.USDDecimals)

// Ledger is a funding ledger: contributors fund it with at least a minimum
// USD-equivalent value and only the owner may sweep the held balance.
//
// All operations on one Ledger are serialised. Mutations stage a journal
// entry, move funds through the bank, then commit in memory; a failure at
// any step leaves the ledger exactly as it was.
type Ledger struct {
	mu sync.Mutex

	id         id.LedgerID
	address    types.Address
	owner      types.Address
	feed       oracle.PriceFeed
	vault      bank.Transferer
	store      store.Store
	plugins    *plugin.Registry
	logger     *slog.Logger
	minimumUSD types.Amount

	// Ledger state
	funded   map[types.Address]types.Amount
	funders  []types.Address
	balance  types.Amount
	sequence uint64

	// Staged entry whose discard failed; removed before the next stage.
	orphan *journal.Entry
}

// New creates an empty Ledger owned by owner that converts contributions
// with feed and holds funds in vault.
func New(owner types.Address, feed oracle.PriceFeed, vault bank.Transferer, opts ...Option) *Ledger {
	l := &Ledger{
		id:         id.NewLedgerID(),
		owner:      owner,
		feed:       feed,
		vault:      vault,
		plugins:    plugin.NewRegistry(),
		logger:     slog.Default(),
		minimumUSD: MinimumUSD,
		funded:     make(map[types.Address]types.Amount),
	}

	for _, opt := range opts {
		opt(l)
	}

	if l.address.IsZero() {
		l.address = types.Address(l.id.String())
	}

	return l
}

// Option configures a Ledger instance.
type Option func(*Ledger)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		l.logger = logger
		l.plugins.WithLogger(logger)
	}
}

// WithStore persists the journal so the ledger survives restarts.
func WithStore(s store.Store) Option {
	return func(l *Ledger) {
		l.store = s
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(l *Ledger) {
		_ = l.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithPluginTimeout bounds each plugin hook call.
func WithPluginTimeout(d time.Duration) Option {
	return func(l *Ledger) {
		l.plugins.WithTimeout(d)
	}
}

// WithMinimumUSD overrides MinimumUSD for this ledger.
func WithMinimumUSD(minimum types.Amount) Option {
	return func(l *Ledger) {
		l.minimumUSD = minimum
	}
}

// WithID reattaches the ledger to an existing journal.
func WithID(ledgerID id.LedgerID) Option {
	return func(l *Ledger) {
		l.id = ledgerID
	}
}

// WithAddress sets the account the ledger holds funds under.
// Defaults to the ledger ID.
func WithAddress(addr types.Address) Option {
	return func(l *Ledger) {
		l.address = addr
	}
}

// Start migrates the store, rebuilds state from the journal and
// initializes plugins.
func (l *Ledger) Start(ctx context.Context) error {
	if err := l.checkAccounts(); err != nil {
		return err
	}
	if l.store != nil {
		if err := l.store.Migrate(ctx); err != nil {
			return err
		}
		if err := l.replay(ctx); err != nil {
			return err
		}
	}

	l.plugins.EmitInit(ctx, l)

	l.logger.Info("fundme ledger started",
		"ledger_id", l.id.String(),
		"owner", l.owner,
		"address", l.address,
		"minimum_usd", l.minimumUSD.FormatUnits(types.USDDecimals),
		"funders", l.FunderCount(),
		"balance", l.Balance().String(),
	)

	return nil
}

// Stop shuts down plugins, discards any orphaned staged entry and closes
// the store.
func (l *Ledger) Stop() error {
	ctx := context.Background()
	l.plugins.EmitShutdown(ctx)

	if l.store == nil {
		return nil
	}

	l.mu.Lock()
	err := l.reconcile(ctx)
	l.mu.Unlock()

	return errors.Join(err, l.store.Close())
}

// checkAccounts rejects an owner that is the ledger's own account: a sweep
// would move nothing while resetting every contribution.
func (l *Ledger) checkAccounts() error {
	if l.owner == l.address {
		return fmt.Errorf("%w: owner %s is the ledger's own account", ErrInvalidAddress, l.owner)
	}
	return nil
}

// replay rebuilds ledger state from the journal in sequence order.
func (l *Ledger) replay(ctx context.Context) error {
	start := time.Now()

	entries, err := l.store.ListEntries(ctx, l.id, journal.ListOpts{})
	if err != nil {
		return fmt.Errorf("fundme: load journal: %w", err)
	}

	if err := l.rebuild(entries); err != nil {
		return err
	}

	elapsed := time.Since(start)
	l.plugins.EmitReplayed(ctx, l.id, len(entries), elapsed)
	l.logger.Debug("replayed journal",
		"ledger_id", l.id.String(),
		"entries", len(entries),
		"elapsed_ms", elapsed.Milliseconds(),
	)
	return nil
}

func (l *Ledger) rebuild(entries []*journal.Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.reset()
	l.sequence = 0
	for _, e := range entries {
		if err := l.checkReplay(e); err != nil {
			l.reset()
			l.sequence = 0
			return err
		}
		l.apply(e)
		l.logger.Debug("replayed journal entry",
			"ledger_id", l.id.String(),
			"sequence", e.Sequence,
			"kind", e.Kind,
		)
	}
	return nil
}

// checkReplay rejects an entry that cannot follow the current state.
func (l *Ledger) checkReplay(e *journal.Entry) error {
	switch {
	case e.Sequence != l.sequence+1:
		return fmt.Errorf("%w: expected sequence %d, found %d", ErrJournalCorrupt, l.sequence+1, e.Sequence)
	case !e.Kind.Valid():
		return fmt.Errorf("%w: entry %s has kind %q", ErrJournalCorrupt, e.ID, e.Kind)
	case e.Kind == journal.KindWithdraw && !e.Amount.Equal(l.balance):
		return fmt.Errorf("%w: withdrawal %s swept %s of %s", ErrJournalCorrupt, e.ID, e.Amount, l.balance)
	}
	return nil
}

// ──────────────────────────────────────────────────
// Contributions
// ──────────────────────────────────────────────────

// Fund accepts amount from contributor if its USD value at the oracle's
// latest price reaches the minimum. On success the contribution is added to
// the contributor's running total and the returned entry records it.
func (l *Ledger) Fund(ctx context.Context, contributor types.Address, amount types.Amount) (*journal.Entry, error) {
	entry, err := l.fund(ctx, contributor, amount)
	if err != nil {
		l.logger.Warn("contribution rejected",
			"ledger_id", l.id.String(),
			"contributor", contributor,
			"amount", amount.String(),
			"error", err,
		)
		l.plugins.EmitFundRejected(ctx, contributor, amount, err)
		return nil, err
	}

	l.logger.Info("contribution accepted",
		"ledger_id", l.id.String(),
		"contributor", contributor,
		"amount", amount.String(),
		"usd_value", entry.USDValue.FormatUnits(types.USDDecimals),
		"sequence", entry.Sequence,
	)
	l.plugins.EmitFunded(ctx, entry)
	return entry.Clone(), nil
}

// Receive accepts a plain transfer into the ledger under the same rules as Fund.
func (l *Ledger) Receive(ctx context.Context, from types.Address, amount types.Amount) (*journal.Entry, error) {
	return l.Fund(ctx, from, amount)
}

func (l *Ledger) fund(ctx context.Context, contributor types.Address, amount types.Amount) (*journal.Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if contributor.IsZero() {
		return nil, fmt.Errorf("%w: empty contributor", ErrInvalidAddress)
	}
	if err := l.checkAccounts(); err != nil {
		return nil, err
	}
	if contributor == l.address {
		return nil, fmt.Errorf("%w: ledger cannot fund itself", ErrInvalidAddress)
	}

	usd, price, err := oracle.ConversionRate(ctx, l.feed, amount)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPriceUnavailable, err)
	}
	if usd.LessThan(l.minimumUSD) {
		return nil, fmt.Errorf("%w: %s USD at round %d, need %s USD",
			ErrInsufficientContribution,
			usd.FormatUnits(types.USDDecimals),
			price.RoundID,
			l.minimumUSD.FormatUnits(types.USDDecimals),
		)
	}

	entry := l.newEntry(journal.KindFund, contributor, amount)
	entry.USDValue = usd

	if err := l.stage(ctx, entry); err != nil {
		return nil, err
	}
	if err := l.vault.Transfer(ctx, contributor, l.address, amount); err != nil {
		return nil, l.rollback(ctx, entry, err)
	}

	l.apply(entry)
	return entry, nil
}

// ──────────────────────────────────────────────────
// Withdrawals
// ──────────────────────────────────────────────────

// Withdraw sweeps the held balance to the owner and resets every
// contribution. Only the owner may call it.
func (l *Ledger) Withdraw(ctx context.Context, caller types.Address) (*journal.Entry, error) {
	return l.withdraw(ctx, caller, "reference", l.collectLive)
}

// CheaperWithdraw behaves exactly like Withdraw but walks a local copy of
// the funders list instead of the live one.
func (l *Ledger) CheaperWithdraw(ctx context.Context, caller types.Address) (*journal.Entry, error) {
	return l.withdraw(ctx, caller, "cheaper", l.collectCopy)
}

// collectLive walks the live funders list by index, re-reading its length
// on every iteration, and sums what each funder is owed back.
func (l *Ledger) collectLive() ([]types.Address, types.Amount) {
	cleared := make([]types.Address, 0, len(l.funders))
	total := types.Zero()
	for funderIndex := 0; funderIndex < len(l.funders); funderIndex++ {
		funder := l.funders[funderIndex]
		cleared = append(cleared, funder)
		total = total.Add(l.funded[funder])
	}
	return cleared, total
}

// collectCopy reads the funders list once into a fixed-length local slice
// and walks that.
func (l *Ledger) collectCopy() ([]types.Address, types.Amount) {
	funders := slices.Clone(l.funders)
	total := types.Zero()
	for _, funder := range funders {
		total = total.Add(l.funded[funder])
	}
	return funders, total
}

func (l *Ledger) withdraw(
	ctx context.Context,
	caller types.Address,
	variant string,
	collect func() ([]types.Address, types.Amount),
) (*journal.Entry, error) {
	entry, err := l.sweep(ctx, caller, collect)
	if err != nil {
		l.logger.Warn("withdrawal failed",
			"ledger_id", l.id.String(),
			"caller", caller,
			"variant", variant,
			"error", err,
		)
		l.plugins.EmitWithdrawFailed(ctx, caller, err)
		return nil, err
	}

	l.logger.Info("withdrawal completed",
		"ledger_id", l.id.String(),
		"owner", entry.Address,
		"amount", entry.Amount.String(),
		"funders_cleared", len(entry.Funders),
		"variant", variant,
		"sequence", entry.Sequence,
	)
	l.plugins.EmitWithdrawn(ctx, entry)
	return entry.Clone(), nil
}

func (l *Ledger) sweep(
	ctx context.Context,
	caller types.Address,
	collect func() ([]types.Address, types.Amount),
) (*journal.Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if caller != l.owner {
		return nil, fmt.Errorf("%w: %s", ErrNotAuthorized, caller)
	}
	if err := l.checkAccounts(); err != nil {
		return nil, err
	}

	cleared, total := collect()
	if !total.Equal(l.balance) {
		return nil, fmt.Errorf("%w: contributions total %s but balance is %s", ErrJournalCorrupt, total, l.balance)
	}

	entry := l.newEntry(journal.KindWithdraw, l.owner, l.balance)
	entry.Funders = cleared

	if err := l.stage(ctx, entry); err != nil {
		return nil, err
	}
	if err := l.vault.Transfer(ctx, l.address, l.owner, l.balance); err != nil {
		return nil, l.rollback(ctx, entry, err)
	}

	l.apply(entry)
	return entry, nil
}

// ──────────────────────────────────────────────────
// Two-phase commit helpers. Callers hold l.mu.
// ──────────────────────────────────────────────────

func (l *Ledger) newEntry(kind journal.Kind, addr types.Address, amount types.Amount) *journal.Entry {
	return &journal.Entry{
		ID:        id.NewEntryID(),
		LedgerID:  l.id,
		Sequence:  l.sequence + 1,
		Kind:      kind,
		Address:   addr,
		Amount:    amount,
		Timestamp: time.Now().UTC(),
	}
}

// stage writes entry to the journal before any funds move.
func (l *Ledger) stage(ctx context.Context, entry *journal.Entry) error {
	if l.store == nil {
		return nil
	}
	if err := l.reconcile(ctx); err != nil {
		return err
	}
	if err := l.store.AppendEntry(ctx, entry); err != nil {
		return fmt.Errorf("fundme: stage journal entry: %w", err)
	}
	return nil
}

// rollback discards a staged entry after its transfer failed.
func (l *Ledger) rollback(ctx context.Context, entry *journal.Entry, cause error) error {
	err := fmt.Errorf("%w: %w", ErrTransferFailed, cause)
	if l.store == nil {
		return err
	}

	if derr := l.store.DiscardEntry(context.WithoutCancel(ctx), entry.ID); derr != nil {
		l.logger.Error("failed to discard staged journal entry",
			"ledger_id", l.id.String(),
			"entry_id", entry.ID.String(),
			"sequence", entry.Sequence,
			"error", derr,
		)
		l.orphan = entry
		return errors.Join(err, fmt.Errorf("fundme: discard entry %s: %w", entry.ID, derr))
	}
	return err
}

// reconcile retries the discard of an orphaned staged entry. Until it
// succeeds the orphan holds the next sequence, so nothing else may stage.
func (l *Ledger) reconcile(ctx context.Context) error {
	if l.orphan == nil {
		return nil
	}

	err := l.store.DiscardEntry(context.WithoutCancel(ctx), l.orphan.ID)
	if err != nil && !errors.Is(err, ErrEntryNotFound) {
		return fmt.Errorf("fundme: discard orphaned entry %s: %w", l.orphan.ID, err)
	}

	l.logger.Info("discarded orphaned journal entry",
		"ledger_id", l.id.String(),
		"entry_id", l.orphan.ID.String(),
		"sequence", l.orphan.Sequence,
	)
	l.orphan = nil
	return nil
}

// apply commits entry to in-memory state.
func (l *Ledger) apply(e *journal.Entry) {
	switch e.Kind {
	case journal.KindFund:
		prev, seen := l.funded[e.Address]
		if !seen {
			l.funders = append(l.funders, e.Address)
		}
		l.funded[e.Address] = prev.Add(e.Amount)
		l.balance = l.balance.Add(e.Amount)
	case journal.KindWithdraw:
		l.reset()
	}
	l.sequence = e.Sequence
}

func (l *Ledger) reset() {
	clear(l.funded)
	l.funders = nil
	l.balance = types.Zero()
}

// ──────────────────────────────────────────────────
// Accessors
// ──────────────────────────────────────────────────

// PriceFeed returns the oracle the ledger converts contributions with.
func (l *Ledger) PriceFeed() oracle.PriceFeed { return l.feed }

// Owner returns the only address allowed to withdraw.
func (l *Ledger) Owner() types.Address { return l.owner }

// ID returns the ledger's identity.
func (l *Ledger) ID() id.LedgerID { return l.id }

// Address returns the account the ledger holds funds under.
func (l *Ledger) Address() types.Address { return l.address }

// MinimumUSD returns the minimum contribution value for this ledger.
func (l *Ledger) MinimumUSD() types.Amount { return l.minimumUSD }

// AddressToAmountFunded returns how much addr has contributed since the
// last withdrawal. Unknown addresses have contributed zero.
func (l *Ledger) AddressToAmountFunded(addr types.Address) types.Amount {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.funded[addr]
}

// Funder returns the funder at index in first-contribution order.
func (l *Ledger) Funder(index int) (types.Address, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if index < 0 || index >= len(l.funders) {
		return "", fmt.Errorf("%w: %d of %d", ErrIndexOutOfRange, index, len(l.funders))
	}
	return l.funders[index], nil
}

// Funders returns a copy of the funders list.
func (l *Ledger) Funders() []types.Address {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.funders)
}

// FunderCount returns the length of the funders list.
func (l *Ledger) FunderCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.funders)
}

// Balance returns the held balance.
func (l *Ledger) Balance() types.Amount {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balance
}

// History lists the ledger's journal. It requires a store.
func (l *Ledger) History(ctx context.Context, opts journal.ListOpts) ([]*journal.Entry, error) {
	if l.store == nil {
		return nil, fmt.Errorf("%w: no journal store configured", ErrStoreNotReady)
	}
	return l.store.ListEntries(ctx, l.id, opts)
}
