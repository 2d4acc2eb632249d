package extension

import "time"

// Store backends the extension can open from configuration.
const (
	StoreMemory  = "memory"
	StoreLevelDB = "leveldb"
	StoreRedis   = "redis"
)

// Config holds the fundme extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.fundme" or "fundme" keys).
type Config struct {
	// DisableMigrate skips store migration on start. The journal is still replayed.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// Owner is the only address allowed to withdraw. Required.
	Owner string `json:"owner" mapstructure:"owner" yaml:"owner"`

	// MinimumUSD is the smallest accepted contribution in whole USD,
	// e.g. "50" or "12.5" (default: "50").
	MinimumUSD string `json:"minimum_usd" mapstructure:"minimum_usd" yaml:"minimum_usd"`

	// LedgerID reattaches to an existing journal. A new ledger is created when empty.
	LedgerID string `json:"ledger_id" mapstructure:"ledger_id" yaml:"ledger_id"`

	// Address is the bank account the ledger holds funds under
	// (default: the ledger ID).
	Address string `json:"address" mapstructure:"address" yaml:"address"`

	// Store selects the journal backend when none is set programmatically:
	// "memory", "leveldb" or "redis" (default: "memory").
	Store string `json:"store" mapstructure:"store" yaml:"store"`

	// LevelDBPath is the database directory for the leveldb store
	// (default: "data/fundme").
	LevelDBPath string `json:"leveldb_path" mapstructure:"leveldb_path" yaml:"leveldb_path"`

	// RedisURL is the connection URL for the redis store.
	RedisURL string `json:"redis_url" mapstructure:"redis_url" yaml:"redis_url"`

	// RedisPrefix namespaces every redis key (default: "fundme").
	RedisPrefix string `json:"redis_prefix" mapstructure:"redis_prefix" yaml:"redis_prefix"`

	// PluginTimeout bounds each plugin hook call (default: 5s).
	PluginTimeout time.Duration `json:"plugin_timeout" mapstructure:"plugin_timeout" yaml:"plugin_timeout"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		MinimumUSD:    "50",
		Store:         StoreMemory,
		LevelDBPath:   "data/fundme",
		RedisPrefix:   "fundme",
		PluginTimeout: 5 * time.Second,
	}
}
