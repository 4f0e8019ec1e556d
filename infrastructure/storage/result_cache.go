package storage

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"

	"ocr-lab/domain"
)

// ResultCache keeps completed recognitions keyed by document digest and
// normalized options. Entries expire after ttl so a changed engine roster
// eventually re-processes old documents.
type ResultCache struct {
	db  *badger.DB
	log *slog.Logger
	ttl time.Duration
}

func NewResultCache(db *badger.DB, log *slog.Logger, ttl time.Duration) *ResultCache {
	return &ResultCache{db: db, log: log, ttl: ttl}
}

func cacheKey(key string) []byte {
	return []byte(fmt.Sprintf("result:%s", key))
}

func (r *ResultCache) Lookup(_ context.Context, key string) (*domain.CompleteResult, bool, error) {
	var raw []byte
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(cacheKey(key))
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache lookup: %w", err)
	}

	var result domain.CompleteResult
	if err := json.Unmarshal(raw, &result); err != nil {
		// A decode failure means a stale schema; treat it as a miss.
		r.log.Warn("Dropping undecodable cache entry", "key", key, "error", err)
		return nil, false, nil
	}
	return &result, true, nil
}

func (r *ResultCache) Store(_ context.Context, key string, result *domain.CompleteResult) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("cache encode: %w", err)
	}
	return r.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry(cacheKey(key), raw)
		if r.ttl > 0 {
			entry = entry.WithTTL(r.ttl)
		}
		return txn.SetEntry(entry)
	})
}
