package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/okian/sessiond/internal/domain/model"
	"github.com/okian/sessiond/pkg/metrics"
)

// BadgerStore keeps both session tables in one Badger database and relies on
// Badger's per-entry TTL for expiry.
type BadgerStore struct {
	db        *badger.DB
	closeOnce sync.Once
	closeErr  error
}

// NewBadgerStore opens the database at dir. An empty dir opens an in-memory store.
func NewBadgerStore(dir string, opts ...Option) (*BadgerStore, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	bopts := badger.DefaultOptions(dir).WithLogger(nil).WithSyncWrites(o.syncWrites)
	if dir == "" {
		bopts = bopts.WithInMemory(true)
	}
	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open badger %q: %w", dir, err)
	}
	return &BadgerStore{db: db}, nil
}

// Close closes the database. Later calls return the first result.
func (s *BadgerStore) Close() error {
	s.closeOnce.Do(func() { s.closeErr = s.db.Close() })
	return s.closeErr
}

func isConflict(err error) bool {
	return errors.Is(err, badger.ErrConflict)
}

// update runs fn in a read-write transaction, retrying on conflicts.
func (s *BadgerStore) update(ctx context.Context, op string, fn func(txn *badger.Txn) error) error {
	start := time.Now()
	err := retryOp(ctx, defaultRetryConfig, isConflict, func() error {
		return s.db.Update(fn)
	})
	observe(op, start, err)
	return err
}

// UpsertIncomplete implements Backend.
func (s *BadgerStore) UpsertIncomplete(ctx context.Context, key model.SessionKey, patch model.IncompletePatch, ttl time.Duration) error {
	k, err := incompleteKey(key)
	if err != nil {
		return err
	}
	return s.update(ctx, "upsert_incomplete", func(txn *badger.Txn) error {
		rec, _, err := getIncomplete(txn, k, key)
		if err != nil {
			return err
		}
		rec = rec.Merge(patch)
		val, err := encodeIncomplete(rec)
		if err != nil {
			return fmt.Errorf("encode staging row: %w", err)
		}
		return txn.SetEntry(badger.NewEntry(k, val).WithTTL(ttl))
	})
}

// ReadIncomplete implements Backend.
func (s *BadgerStore) ReadIncomplete(_ context.Context, key model.SessionKey) (model.IncompleteRecord, bool, error) {
	k, err := incompleteKey(key)
	if err != nil {
		return model.IncompleteRecord{}, false, err
	}
	start := time.Now()
	var (
		rec   model.IncompleteRecord
		found bool
	)
	err = s.db.View(func(txn *badger.Txn) error {
		var err error
		rec, found, err = getIncomplete(txn, k, key)
		return err
	})
	observe("read_incomplete", start, err)
	return rec, found, err
}

// DeleteIncomplete implements Backend.
func (s *BadgerStore) DeleteIncomplete(ctx context.Context, key model.SessionKey) error {
	k, err := incompleteKey(key)
	if err != nil {
		return err
	}
	return s.update(ctx, "delete_incomplete", func(txn *badger.Txn) error {
		return txn.Delete(k)
	})
}

// InsertCompleted implements Backend.
func (s *BadgerStore) InsertCompleted(ctx context.Context, rec model.CompletedRecord, ttl time.Duration) error {
	return s.update(ctx, "insert_completed", func(txn *badger.Txn) error {
		return putCompleted(txn, rec, ttl)
	})
}

// Promote implements Promoter.
func (s *BadgerStore) Promote(ctx context.Context, rec model.CompletedRecord, ttl time.Duration) error {
	k, err := incompleteKey(rec.Key())
	if err != nil {
		return err
	}
	return s.update(ctx, "promote", func(txn *badger.Txn) error {
		if _, err := txn.Get(k); errors.Is(err, badger.ErrKeyNotFound) {
			// already promoted by an earlier handle
			return nil
		} else if err != nil {
			return err
		}
		if err := putCompleted(txn, rec, ttl); err != nil {
			return err
		}
		return txn.Delete(k)
	})
}

// QueryCompleted implements Backend.
func (s *BadgerStore) QueryCompleted(_ context.Context, playerID string, limit int) ([]model.CompletedRecord, error) {
	if limit < 1 {
		return nil, ErrInvalidLimit
	}
	prefix, err := playerPrefix(prefixCompleted, playerID)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	out := make([]model.CompletedRecord, 0, limit)
	err = s.db.View(func(txn *badger.Txn) error {
		iopts := badger.DefaultIteratorOptions
		iopts.Prefix = prefix
		iopts.PrefetchSize = limit
		it := txn.NewIterator(iopts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix) && len(out) < limit; it.Next() {
			item := it.Item()
			sid, err := sessionFromCompletedKey(item.Key())
			if err != nil {
				return err
			}
			key := model.SessionKey{PlayerID: playerID, SessionID: sid}
			err = item.Value(func(val []byte) error {
				rec, err := decodeCompleted(key, val)
				if err != nil {
					return fmt.Errorf("%w: %s: %w", ErrCorruptRow, key, err)
				}
				out = append(out, rec)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	observe("query_completed", start, err)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func getIncomplete(txn *badger.Txn, k []byte, key model.SessionKey) (model.IncompleteRecord, bool, error) {
	item, err := txn.Get(k)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return model.IncompleteRecord{Key: key}, false, nil
	}
	if err != nil {
		return model.IncompleteRecord{}, false, err
	}
	var rec model.IncompleteRecord
	err = item.Value(func(val []byte) error {
		var err error
		rec, err = decodeIncomplete(key, val)
		return err
	})
	if err != nil {
		return model.IncompleteRecord{}, false, fmt.Errorf("%w: %s: %w", ErrCorruptRow, key, err)
	}
	return rec, true, nil
}

// putCompleted writes rec and its index entry, replacing an earlier row of
// the same session whose end time differs.
func putCompleted(txn *badger.Txn, rec model.CompletedRecord, ttl time.Duration) error {
	ck, err := completedKey(rec)
	if err != nil {
		return err
	}
	xk, err := indexKey(rec.Key())
	if err != nil {
		return err
	}

	item, err := txn.Get(xk)
	switch {
	case errors.Is(err, badger.ErrKeyNotFound):
	case err != nil:
		return err
	default:
		old, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		if string(old) != string(ck) {
			if err := txn.Delete(old); err != nil {
				return err
			}
		}
	}

	val, err := encodeCompleted(rec)
	if err != nil {
		return fmt.Errorf("encode completed row: %w", err)
	}
	if err := txn.SetEntry(badger.NewEntry(ck, val).WithTTL(ttl)); err != nil {
		return err
	}
	return txn.SetEntry(badger.NewEntry(xk, ck).WithTTL(ttl))
}

func observe(op string, start time.Time, err error) {
	metrics.RecordStoreLatency(op, float64(time.Since(start).Microseconds())/1000)
	if err != nil {
		metrics.RecordStoreError(op)
	}
}
