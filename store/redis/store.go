// Package redis implements store.Store on Redis. Each entry is a JSON string
// key; a sorted set per ledger scored by sequence orders them and a hash per
// ledger guards sequence uniqueness.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/xraph/fundme"
	"github.com/xraph/fundme/id"
	"github.com/xraph/fundme/journal"
	fundmestore "github.com/xraph/fundme/store"
)

// compile-time interface check
var _ fundmestore.Store = (*Store)(nil)

// DefaultPrefix namespaces every key the store writes.
const DefaultPrefix = "fundme"

// maxTxRetries bounds optimistic transaction retries under contention.
const maxTxRetries = 5

// Store implements store.Store using Redis.
type Store struct {
	client redis.UniversalClient
	prefix string
}

// Option configures a Store.
type Option func(*Store)

// WithPrefix overrides DefaultPrefix.
func WithPrefix(prefix string) Option {
	return func(s *Store) { s.prefix = prefix }
}

// Open parses a redis:// URL, connects and verifies the connection.
func Open(ctx context.Context, redisURL string, opts ...Option) (*Store, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("fundme/redis: parse url: %w", err)
	}

	// Connection pool settings
	opt.PoolSize = 10
	opt.MinIdleConns = 2
	opt.PoolTimeout = 4 * time.Second
	opt.ConnMaxIdleTime = 5 * time.Minute

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("fundme/redis: ping: %w", err)
	}
	return New(client, opts...), nil
}

// New wraps an existing client.
func New(client redis.UniversalClient, opts ...Option) *Store {
	s := &Store{client: client, prefix: DefaultPrefix}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Client returns the underlying Redis client.
func (s *Store) Client() redis.UniversalClient { return s.client }

func (s *Store) entryKey(entryID id.EntryID) string {
	return s.prefix + ":entry:" + entryID.String()
}

func (s *Store) journalKey(ledgerID id.LedgerID) string {
	return s.prefix + ":journal:" + ledgerID.String()
}

func (s *Store) sequenceKey(ledgerID id.LedgerID) string {
	return s.prefix + ":seq:" + ledgerID.String()
}

// ==================== Journal Store ====================

func (s *Store) AppendEntry(ctx context.Context, e *journal.Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("fundme/redis: encode entry: %w", err)
	}

	entryKey := s.entryKey(e.ID)
	seqKey := s.sequenceKey(e.LedgerID)
	seqField := strconv.FormatUint(e.Sequence, 10)

	return s.withRetry(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, entryKey).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("%w: %s", fundme.ErrDuplicateEntry, e.ID)
		}
		taken, err := tx.HExists(ctx, seqKey, seqField).Result()
		if err != nil {
			return err
		}
		if taken {
			return fmt.Errorf("%w: sequence %d", fundme.ErrDuplicateEntry, e.Sequence)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, entryKey, data, 0)
			pipe.HSet(ctx, seqKey, seqField, e.ID.String())
			pipe.ZAdd(ctx, s.journalKey(e.LedgerID), redis.Z{
				Score:  float64(e.Sequence),
				Member: e.ID.String(),
			})
			return nil
		})
		return err
	}, entryKey, seqKey)
}

func (s *Store) DiscardEntry(ctx context.Context, entryID id.EntryID) error {
	entryKey := s.entryKey(entryID)

	return s.withRetry(ctx, func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, entryKey).Bytes()
		if err != nil {
			return err
		}
		e := new(journal.Entry)
		if err := json.Unmarshal(data, e); err != nil {
			return fmt.Errorf("%w: %s: %w", fundme.ErrJournalCorrupt, entryKey, err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, entryKey)
			pipe.HDel(ctx, s.sequenceKey(e.LedgerID), strconv.FormatUint(e.Sequence, 10))
			pipe.ZRem(ctx, s.journalKey(e.LedgerID), entryID.String())
			return nil
		})
		return err
	}, entryKey)
}

func (s *Store) ListEntries(ctx context.Context, ledgerID id.LedgerID, opts journal.ListOpts) ([]*journal.Entry, error) {
	ids, err := s.client.ZRange(ctx, s.journalKey(ledgerID), 0, -1).Result()
	if err != nil {
		return nil, mapErr(err)
	}
	if len(ids) == 0 {
		return []*journal.Entry{}, nil
	}

	keys := make([]string, len(ids))
	for i, entryID := range ids {
		keys[i] = s.prefix + ":entry:" + entryID
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, mapErr(err)
	}

	entries := make([]*journal.Entry, 0, len(values))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%w: %s indexed but missing", fundme.ErrJournalCorrupt, keys[i])
		}
		e := new(journal.Entry)
		if err := json.Unmarshal([]byte(raw), e); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", fundme.ErrJournalCorrupt, keys[i], err)
		}
		entries = append(entries, e)
	}
	return opts.Apply(entries), nil
}

// ==================== Core ====================

// Migrate is a no-op: Redis is schemaless.
func (s *Store) Migrate(_ context.Context) error {
	return nil
}

// Ping checks Redis connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return mapErr(s.client.Ping(ctx).Err())
}

// Close closes the Redis client.
func (s *Store) Close() error {
	return s.client.Close()
}

// withRetry runs fn as an optimistic transaction watching keys, retrying
// when a concurrent writer touches them first.
func (s *Store) withRetry(ctx context.Context, fn func(*redis.Tx) error, keys ...string) error {
	for range maxTxRetries {
		err := s.client.Watch(ctx, fn, keys...)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return mapErr(err)
	}
	return fmt.Errorf("%w: transaction retries exhausted", fundme.ErrStoreNotReady)
}

func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, redis.Nil):
		return fundme.ErrEntryNotFound
	case errors.Is(err, redis.ErrClosed):
		return fundme.ErrStoreClosed
	default:
		return err
	}
}
