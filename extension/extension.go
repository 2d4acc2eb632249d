// Package extension provides the Forge extension adapter for fundme.
//
// It implements the forge.Extension interface to integrate a funding ledger
// into a Forge application with DI registration and lifecycle management.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.fundme" or "fundme" keys.
package extension

import (
	"context"
	"errors"
	"fmt"

	"github.com/xraph/forge"
	"github.com/xraph/vessel"

	"github.com/xraph/fundme"
	"github.com/xraph/fundme/bank"
	"github.com/xraph/fundme/id"
	"github.com/xraph/fundme/oracle"
	"github.com/xraph/fundme/store"
	"github.com/xraph/fundme/store/leveldb"
	"github.com/xraph/fundme/store/memory"
	"github.com/xraph/fundme/store/redis"
	"github.com/xraph/fundme/types"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "fundme"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Oracle-gated crowdfunding ledger"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts a fundme.Ledger as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config     Config
	ledger     *fundme.Ledger
	feed       oracle.PriceFeed
	vault      bank.Transferer
	store      store.Store
	ledgerOpts []fundme.Option
}

// New creates a new fundme Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Ledger returns the underlying ledger.
// This is nil until Register is called.
func (e *Extension) Ledger() *fundme.Ledger { return e.ledger }

// Store returns the journal store the ledger was built with.
// This is nil until Register is called.
func (e *Extension) Store() store.Store { return e.store }

// Register implements [forge.Extension]. It loads configuration,
// builds the ledger, and registers it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	l, err := e.build(context.Background())
	if err != nil {
		return err
	}
	e.ledger = l

	if err := vessel.Provide(fapp.Container(), func() (*fundme.Ledger, error) {
		return e.ledger, nil
	}); err != nil {
		return err
	}
	return vessel.Provide(fapp.Container(), func() (store.Store, error) {
		return e.store, nil
	})
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.ledger == nil {
		return errors.New("fundme: extension not initialized")
	}

	if err := e.ledger.Start(ctx); err != nil {
		return err
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(_ context.Context) error {
	if e.ledger != nil {
		if err := e.ledger.Stop(); err != nil {
			e.MarkStopped()
			return err
		}
	}
	e.MarkStopped()
	return nil
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return errors.New("fundme: store not initialized")
	}
	return e.store.Ping(ctx)
}

// build validates the resolved config, opens the store and constructs the ledger.
func (e *Extension) build(ctx context.Context) (*fundme.Ledger, error) {
	if e.feed == nil {
		return nil, errors.New("fundme: a price feed is required; use extension.WithPriceFeed")
	}
	if e.vault == nil {
		return nil, errors.New("fundme: a bank is required; use extension.WithBank")
	}
	owner, err := types.ParseAddress(e.config.Owner)
	if err != nil {
		return nil, fmt.Errorf("fundme: owner: %w", err)
	}

	opts, err := e.buildLedgerOpts()
	if err != nil {
		return nil, err
	}

	if e.store == nil {
		s, err := e.openStore(ctx)
		if err != nil {
			return nil, err
		}
		e.store = s
	}

	var journal store.Store = e.store
	if e.config.DisableMigrate {
		journal = unmigrated{e.store}
	}
	opts = append([]fundme.Option{fundme.WithStore(journal)}, opts...)

	l := fundme.New(owner, e.feed, e.vault, opts...)
	if l.Owner() == l.Address() {
		return nil, fmt.Errorf("fundme: owner %s cannot be the ledger address", owner)
	}
	return l, nil
}

// buildLedgerOpts constructs fundme.Option values from the resolved config.
func (e *Extension) buildLedgerOpts() ([]fundme.Option, error) {
	opts := make([]fundme.Option, 0, len(e.ledgerOpts)+4)

	if e.config.MinimumUSD != "" {
		minimum, err := types.ParseUnits(e.config.MinimumUSD, types.USDDecimals)
		if err != nil {
			return nil, fmt.Errorf("fundme: minimum_usd: %w", err)
		}
		opts = append(opts, fundme.WithMinimumUSD(minimum))
	}

	if e.config.LedgerID != "" {
		ledgerID, err := id.ParseLedgerID(e.config.LedgerID)
		if err != nil {
			return nil, fmt.Errorf("fundme: ledger_id: %w", err)
		}
		opts = append(opts, fundme.WithID(ledgerID))
	}

	if e.config.Address != "" {
		opts = append(opts, fundme.WithAddress(types.Address(e.config.Address)))
	}

	if e.config.PluginTimeout > 0 {
		opts = append(opts, fundme.WithPluginTimeout(e.config.PluginTimeout))
	}

	// Append any pass-through ledger options.
	opts = append(opts, e.ledgerOpts...)

	return opts, nil
}

// openStore opens the configured journal backend.
func (e *Extension) openStore(ctx context.Context) (store.Store, error) {
	switch e.config.Store {
	case "", StoreMemory:
		return memory.New(), nil
	case StoreLevelDB:
		return leveldb.Open(e.config.LevelDBPath)
	case StoreRedis:
		if e.config.RedisURL == "" {
			return nil, errors.New("fundme: redis_url is required for the redis store")
		}
		return redis.Open(ctx, e.config.RedisURL, redis.WithPrefix(e.config.RedisPrefix))
	default:
		return nil, fmt.Errorf("fundme: unknown store %q", e.config.Store)
	}
}

// unmigrated hides Migrate from the ledger when migrations run elsewhere.
type unmigrated struct {
	store.Store
}

func (unmigrated) Migrate(context.Context) error { return nil }

// --- Config Loading (mirrors grove/shield extension pattern) ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	// Try loading from config file.
	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("fundme: configuration is required but not found in config files; " +
				"ensure 'extensions.fundme' or 'fundme' key exists in your config")
		}

		// Use programmatic config merged with defaults.
		e.config = e.mergeWithDefaults(programmaticConfig)
	} else {
		// Config loaded from YAML -- merge with programmatic options.
		e.config = e.mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("fundme: configuration loaded",
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("owner", e.config.Owner),
		forge.F("minimum_usd", e.config.MinimumUSD),
		forge.F("ledger_id", e.config.LedgerID),
		forge.F("store", e.config.Store),
		forge.F("plugin_timeout", e.config.PluginTimeout),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()
	var cfg Config

	// Try "extensions.fundme" first (namespaced pattern).
	if cm.IsSet("extensions.fundme") {
		if err := cm.Bind("extensions.fundme", &cfg); err == nil {
			e.Logger().Debug("fundme: loaded config from file",
				forge.F("key", "extensions.fundme"),
			)
			return cfg, true
		}
		e.Logger().Warn("fundme: failed to bind extensions.fundme config",
			forge.F("error", "bind failed"),
		)
	}

	// Try short "fundme" key.
	if cm.IsSet("fundme") {
		if err := cm.Bind("fundme", &cfg); err == nil {
			e.Logger().Debug("fundme: loaded config from file",
				forge.F("key", "fundme"),
			)
			return cfg, true
		}
		e.Logger().Warn("fundme: failed to bind fundme config",
			forge.F("error", "bind failed"),
		)
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func (e *Extension) mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.MinimumUSD == "" {
		cfg.MinimumUSD = defaults.MinimumUSD
	}
	if cfg.Store == "" {
		cfg.Store = defaults.Store
	}
	if cfg.LevelDBPath == "" {
		cfg.LevelDBPath = defaults.LevelDBPath
	}
	if cfg.RedisPrefix == "" {
		cfg.RedisPrefix = defaults.RedisPrefix
	}
	if cfg.PluginTimeout == 0 {
		cfg.PluginTimeout = defaults.PluginTimeout
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence for most fields; programmatic bool flags fill gaps.
func (e *Extension) mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	// Programmatic bool flags override when true.
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}

	// String fields: YAML takes precedence.
	fill := func(dst *string, src string) {
		if *dst == "" && src != "" {
			*dst = src
		}
	}
	fill(&yamlConfig.Owner, programmaticConfig.Owner)
	fill(&yamlConfig.MinimumUSD, programmaticConfig.MinimumUSD)
	fill(&yamlConfig.LedgerID, programmaticConfig.LedgerID)
	fill(&yamlConfig.Address, programmaticConfig.Address)
	fill(&yamlConfig.Store, programmaticConfig.Store)
	fill(&yamlConfig.LevelDBPath, programmaticConfig.LevelDBPath)
	fill(&yamlConfig.RedisURL, programmaticConfig.RedisURL)
	fill(&yamlConfig.RedisPrefix, programmaticConfig.RedisPrefix)

	// Duration fields: YAML takes precedence, programmatic fills gaps.
	if yamlConfig.PluginTimeout == 0 && programmaticConfig.PluginTimeout != 0 {
		yamlConfig.PluginTimeout = programmaticConfig.PluginTimeout
	}

	// Fill remaining zeros with defaults.
	return e.mergeWithDefaults(yamlConfig)
}
