package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/xraph/fundme/id"
	"github.com/xraph/fundme/journal"
	"github.com/xraph/fundme/types"
)

// DefaultTimeout bounds each hook call.
const DefaultTimeout = 5 * time.Second

// Registry manages all registered plugins and provides efficient dispatch.
// It uses type-cached discovery for O(1) dispatch performance.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger
	timeout time.Duration

	// Type-cached plugin lists for efficient dispatch
	onInit           []OnInit
	onShutdown       []OnShutdown
	onReplayed       []OnReplayed
	onFunded         []OnFunded
	onFundRejected   []OnFundRejected
	onWithdrawn      []OnWithdrawn
	onWithdrawFailed []OnWithdrawFailed
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger:  slog.Default(),
		timeout: DefaultTimeout,
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// WithTimeout sets how long a single hook may run.
func (r *Registry) WithTimeout(d time.Duration) *Registry {
	r.timeout = d
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Check for duplicate
	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	// Type-switch to cache interfaces
	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnReplayed); ok {
		r.onReplayed = append(r.onReplayed, v)
	}
	if v, ok := p.(OnFunded); ok {
		r.onFunded = append(r.onFunded, v)
	}
	if v, ok := p.(OnFundRejected); ok {
		r.onFundRejected = append(r.onFundRejected, v)
	}
	if v, ok := p.(OnWithdrawn); ok {
		r.onWithdrawn = append(r.onWithdrawn, v)
	}
	if v, ok := p.(OnWithdrawFailed); ok {
		r.onWithdrawFailed = append(r.onWithdrawFailed, v)
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", implementedInterfaces(p),
	)

	return nil
}

var hookTypes = []struct {
	name string
	typ  reflect.Type
}{
	{"OnInit", reflect.TypeFor[OnInit]()},
	{"OnShutdown", reflect.TypeFor[OnShutdown]()},
	{"OnReplayed", reflect.TypeFor[OnReplayed]()},
	{"OnFunded", reflect.TypeFor[OnFunded]()},
	{"OnFundRejected", reflect.TypeFor[OnFundRejected]()},
	{"OnWithdrawn", reflect.TypeFor[OnWithdrawn]()},
	{"OnWithdrawFailed", reflect.TypeFor[OnWithdrawFailed]()},
}

// implementedInterfaces returns the hook names p implements.
func implementedInterfaces(p Plugin) []string {
	var interfaces []string
	v := reflect.TypeOf(p)
	for _, h := range hookTypes {
		if v.Implements(h.typ) {
			interfaces = append(interfaces, h.name)
		}
	}
	return interfaces
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// emit runs call for each hook implementation, logging failures.
func emit[T Plugin](ctx context.Context, r *Registry, hook string, plugins []T, call func(T) error) {
	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return call(p)
		}); err != nil {
			r.logger.Warn("plugin "+hook+" failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, ledger any) {
	r.mu.RLock()
	plugins := r.onInit
	r.mu.RUnlock()

	emit(ctx, r, "OnInit", plugins, func(p OnInit) error {
		return p.OnInit(ctx, ledger)
	})
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	r.mu.RLock()
	plugins := r.onShutdown
	r.mu.RUnlock()

	emit(ctx, r, "OnShutdown", plugins, func(p OnShutdown) error {
		return p.OnShutdown(ctx)
	})
}

// EmitReplayed emits a journal replay event.
func (r *Registry) EmitReplayed(ctx context.Context, ledgerID id.LedgerID, entries int, elapsed time.Duration) {
	r.mu.RLock()
	plugins := r.onReplayed
	r.mu.RUnlock()

	emit(ctx, r, "OnReplayed", plugins, func(p OnReplayed) error {
		return p.OnReplayed(ctx, ledgerID, entries, elapsed)
	})
}

// EmitFunded emits a committed contribution. Each plugin gets its own copy.
func (r *Registry) EmitFunded(ctx context.Context, entry *journal.Entry) {
	r.mu.RLock()
	plugins := r.onFunded
	r.mu.RUnlock()

	emit(ctx, r, "OnFunded", plugins, func(p OnFunded) error {
		return p.OnFunded(ctx, entry.Clone())
	})
}

// EmitFundRejected emits a refused contribution.
func (r *Registry) EmitFundRejected(ctx context.Context, contributor types.Address, amount types.Amount, reason error) {
	r.mu.RLock()
	plugins := r.onFundRejected
	r.mu.RUnlock()

	emit(ctx, r, "OnFundRejected", plugins, func(p OnFundRejected) error {
		return p.OnFundRejected(ctx, contributor, amount, reason)
	})
}

// EmitWithdrawn emits a committed withdrawal. Each plugin gets its own copy.
func (r *Registry) EmitWithdrawn(ctx context.Context, entry *journal.Entry) {
	r.mu.RLock()
	plugins := r.onWithdrawn
	r.mu.RUnlock()

	emit(ctx, r, "OnWithdrawn", plugins, func(p OnWithdrawn) error {
		return p.OnWithdrawn(ctx, entry.Clone())
	})
}

// EmitWithdrawFailed emits a refused or rolled back withdrawal.
func (r *Registry) EmitWithdrawFailed(ctx context.Context, caller types.Address, reason error) {
	r.mu.RLock()
	plugins := r.onWithdrawFailed
	r.mu.RUnlock()

	emit(ctx, r, "OnWithdrawFailed", plugins, func(p OnWithdrawFailed) error {
		return p.OnWithdrawFailed(ctx, caller, reason)
	})
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins should never block the funding pipeline.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(r.timeout):
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
