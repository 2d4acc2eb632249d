package extension

import (
	"github.com/xraph/fundme"
	"github.com/xraph/fundme/bank"
	"github.com/xraph/fundme/oracle"
	"github.com/xraph/fundme/plugin"
	"github.com/xraph/fundme/store"
)

// Option configures the fundme Forge extension.
type Option func(*Extension)

// WithPriceFeed sets the oracle contributions are converted with. Required.
func WithPriceFeed(feed oracle.PriceFeed) Option {
	return func(e *Extension) {
		e.feed = feed
	}
}

// WithBank sets the transfer primitive funds move through. Required.
func WithBank(vault bank.Transferer) Option {
	return func(e *Extension) {
		e.vault = vault
	}
}

// WithStore sets the journal store, overriding the configured backend.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithLedgerOption passes a fundme.Option through to the underlying ledger.
func WithLedgerOption(opt fundme.Option) Option {
	return func(e *Extension) {
		e.ledgerOpts = append(e.ledgerOpts, opt)
	}
}

// WithPlugin registers a ledger plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.ledgerOpts = append(e.ledgerOpts, fundme.WithPlugin(p))
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithOwner sets the withdrawing owner.
func WithOwner(owner string) Option {
	return func(e *Extension) { e.config.Owner = owner }
}

// WithDisableMigrate skips store migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}
