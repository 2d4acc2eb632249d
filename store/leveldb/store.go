// Package leveldb implements store.Store on an embedded LevelDB database.
// Entries are JSON documents keyed so that a prefix scan over one ledger
// yields them in sequence order.
package leveldb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/xraph/fundme"
	"github.com/xraph/fundme/id"
	"github.com/xraph/fundme/journal"
	fundmestore "github.com/xraph/fundme/store"
)

// compile-time interface check
var _ fundmestore.Store = (*Store)(nil)

// Store implements store.Store using LevelDB.
type Store struct {
	// Serialises the existence checks and batch writes of AppendEntry.
	mu sync.Mutex
	db *leveldb.DB
}

// Open opens (or creates) a LevelDB database at path.
func Open(path string) (*Store, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("fundme/leveldb: open %s: %w", path, err)
	}
	return New(db), nil
}

// New wraps an already opened database.
func New(db *leveldb.DB) *Store {
	return &Store{db: db}
}

// DB returns the underlying database for direct access.
func (s *Store) DB() *leveldb.DB { return s.db }

func ledgerPrefix(ledgerID id.LedgerID) []byte {
	return []byte("entry/" + ledgerID.String() + "/")
}

func entryKey(ledgerID id.LedgerID, seq uint64) []byte {
	return fmt.Appendf(ledgerPrefix(ledgerID), "%020d", seq)
}

func indexKey(entryID id.EntryID) []byte {
	return []byte("id/" + entryID.String())
}

// ==================== Journal Store ====================

func (s *Store) AppendEntry(_ context.Context, e *journal.Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("fundme/leveldb: encode entry: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := entryKey(e.LedgerID, e.Sequence)
	for _, k := range [][]byte{indexKey(e.ID), key} {
		exists, err := s.db.Has(k, nil)
		if err != nil {
			return mapErr(err)
		}
		if exists {
			return fmt.Errorf("%w: %s", fundme.ErrDuplicateEntry, k)
		}
	}

	batch := new(leveldb.Batch)
	batch.Put(key, data)
	batch.Put(indexKey(e.ID), key)
	return mapErr(s.db.Write(batch, nil))
}

func (s *Store) DiscardEntry(_ context.Context, entryID id.EntryID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, err := s.db.Get(indexKey(entryID), nil)
	if err != nil {
		return mapErr(err)
	}

	batch := new(leveldb.Batch)
	batch.Delete(key)
	batch.Delete(indexKey(entryID))
	return mapErr(s.db.Write(batch, nil))
}

func (s *Store) ListEntries(_ context.Context, ledgerID id.LedgerID, opts journal.ListOpts) ([]*journal.Entry, error) {
	iter := s.db.NewIterator(util.BytesPrefix(ledgerPrefix(ledgerID)), nil)
	defer iter.Release()

	var entries []*journal.Entry
	for iter.Next() {
		e := new(journal.Entry)
		if err := json.Unmarshal(iter.Value(), e); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", fundme.ErrJournalCorrupt, iter.Key(), err)
		}
		entries = append(entries, e)
	}
	if err := iter.Error(); err != nil {
		return nil, mapErr(err)
	}
	return opts.Apply(entries), nil
}

// ==================== Core ====================

// Migrate is a no-op: LevelDB is schemaless.
func (s *Store) Migrate(_ context.Context) error {
	return nil
}

// Ping checks that the database is open.
func (s *Store) Ping(_ context.Context) error {
	snap, err := s.db.GetSnapshot()
	if err != nil {
		return mapErr(err)
	}
	snap.Release()
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, leveldb.ErrNotFound):
		return fundme.ErrEntryNotFound
	case errors.Is(err, leveldb.ErrClosed):
		return fundme.ErrStoreClosed
	default:
		return err
	}
}
