// Package memory provides an in-memory journal store. Useful for testing
// and for ledgers that do not need to survive a restart.
package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/xraph/fundme"
	"github.com/xraph/fundme/id"
	"github.com/xraph/fundme/journal"
	fundmestore "github.com/xraph/fundme/store"
)

var _ fundmestore.Store = (*Store)(nil)

type Store struct {
	mu sync.RWMutex

	// Entries by ID
	entries map[string]*journal.Entry

	// Entry IDs by ledger, in sequence order
	byLedger map[string][]string

	closed bool
}

func New() *Store {
	return &Store{
		entries:  make(map[string]*journal.Entry),
		byLedger: make(map[string][]string),
	}
}

// Journal Store implementation
func (s *Store) AppendEntry(_ context.Context, e *journal.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fundme.ErrStoreClosed
	}
	if _, exists := s.entries[e.ID.String()]; exists {
		return fmt.Errorf("%w: %s", fundme.ErrDuplicateEntry, e.ID)
	}

	ledgerKey := e.LedgerID.String()
	ids := s.byLedger[ledgerKey]
	for _, existing := range ids {
		if s.entries[existing].Sequence == e.Sequence {
			return fmt.Errorf("%w: sequence %d", fundme.ErrDuplicateEntry, e.Sequence)
		}
	}

	s.entries[e.ID.String()] = e.Clone()
	ids = append(ids, e.ID.String())
	slices.SortFunc(ids, func(a, b string) int {
		return cmp.Compare(s.entries[a].Sequence, s.entries[b].Sequence)
	})
	s.byLedger[ledgerKey] = ids
	return nil
}

func (s *Store) DiscardEntry(_ context.Context, entryID id.EntryID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fundme.ErrStoreClosed
	}
	e, ok := s.entries[entryID.String()]
	if !ok {
		return fundme.ErrEntryNotFound
	}

	delete(s.entries, entryID.String())
	ledgerKey := e.LedgerID.String()
	s.byLedger[ledgerKey] = slices.DeleteFunc(s.byLedger[ledgerKey], func(v string) bool {
		return v == entryID.String()
	})
	return nil
}

func (s *Store) ListEntries(_ context.Context, ledgerID id.LedgerID, opts journal.ListOpts) ([]*journal.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fundme.ErrStoreClosed
	}

	ids := s.byLedger[ledgerID.String()]
	all := make([]*journal.Entry, 0, len(ids))
	for _, entryID := range ids {
		all = append(all, s.entries[entryID].Clone())
	}
	return opts.Apply(all), nil
}

// Core methods
func (s *Store) Migrate(_ context.Context) error {
	return nil
}

func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return fundme.ErrStoreClosed
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
