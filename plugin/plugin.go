// Package plugin provides an extensible plugin system for fundme.
// Plugins can hook into ledger lifecycle events to extend functionality.
package plugin

import (
	"context"
	"time"

	"github.com/xraph/fundme/id"
	"github.com/xraph/fundme/journal"
	"github.com/xraph/fundme/types"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the ledger starts. l is the *fundme.Ledger.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, l any) error
}

// OnShutdown is called when the ledger stops.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// OnReplayed is called after a ledger rebuilt its state from the journal.
type OnReplayed interface {
	Plugin
	OnReplayed(ctx context.Context, ledgerID id.LedgerID, entries int, elapsed time.Duration) error
}

// ──────────────────────────────────────────────────
// Contribution hooks
// ──────────────────────────────────────────────────

// OnFunded is called after a contribution is committed.
type OnFunded interface {
	Plugin
	OnFunded(ctx context.Context, entry *journal.Entry) error
}

// OnFundRejected is called when a contribution is refused and nothing changed.
type OnFundRejected interface {
	Plugin
	OnFundRejected(ctx context.Context, contributor types.Address, amount types.Amount, reason error) error
}

// ──────────────────────────────────────────────────
// Withdrawal hooks
// ──────────────────────────────────────────────────

// OnWithdrawn is called after the held balance is swept to the owner.
type OnWithdrawn interface {
	Plugin
	OnWithdrawn(ctx context.Context, entry *journal.Entry) error
}

// OnWithdrawFailed is called when a withdrawal is refused or rolled back.
type OnWithdrawFailed interface {
	Plugin
	OnWithdrawFailed(ctx context.Context, caller types.Address, reason error) error
}
