package store

import (
	"context"

	"github.com/xraph/fundme/journal"
)

// Store is the unified storage interface for fundme. Backends persist the
// journal and manage their own schema and connection.
type Store interface {
	journal.Store

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
