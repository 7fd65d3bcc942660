// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"

	"github.com/prospectiq/enrich/services/enrich/module"
	"github.com/prospectiq/enrich/services/enrich/storage/badger"
)

// Key prefixes keep results and watermarks in disjoint ranges of the
// same database.
const (
	resultPrefix    = "result\x00"
	watermarkPrefix = "wm\x00"
)

// Store is a BadgerDB-backed CacheStore and WatermarkStore.
//
// Description:
//
//	Results are stored as JSON under result-prefixed keys with a Badger
//	entry TTL as a disk-space bound; freshness at read time is judged
//	against the caller's TTL and the entry's FetchedAt, so the on-disk
//	TTL never has to match the catalog's. Watermarks are plain RFC 3339
//	timestamps and never expire.
//
// Thread Safety: Safe for concurrent use.
type Store struct {
	db  *badger.DB
	now func() time.Time
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithClock overrides the freshness clock.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore wraps an open database. The caller retains ownership of db
// and closes it after the store is no longer used.
func NewStore(db *badger.DB, opts ...StoreOption) (*Store, error) {
	if db == nil {
		return nil, errors.New("db must not be nil")
	}
	s := &Store{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// storedResult is the on-disk form of a module.Result. Data survives a
// JSON round-trip with the usual type loosening (numbers come back as
// float64), which is acceptable for cached payloads.
type storedResult struct {
	ModuleID  string            `json:"module_id"`
	Domain    string            `json:"domain"`
	Data      any               `json:"data"`
	Source    module.SourceInfo `json:"source"`
	FetchedAt time.Time         `json:"fetched_at"`
}

// Get implements module.CacheStore.
func (s *Store) Get(ctx context.Context, moduleID, domain string, ttl time.Duration) (module.Result, bool, error) {
	key := []byte(resultPrefix + cacheKey(moduleID, domain))

	var stored storedResult
	found := false
	err := s.db.WithReadTxn(ctx, func(txn *badgerdb.Txn) error {
		item, err := txn.Get(key)
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &stored)
		})
	})
	if err != nil {
		return module.Result{}, false, fmt.Errorf("cache get %s/%s: %w", moduleID, domain, err)
	}
	if !found {
		cacheMissesTotal.WithLabelValues(moduleID, "absent").Inc()
		return module.Result{}, false, nil
	}
	// Fresh means strictly younger than the TTL, matching the memory
	// store.
	if ttl > 0 && s.now().Sub(stored.FetchedAt) >= ttl {
		cacheMissesTotal.WithLabelValues(moduleID, "expired").Inc()
		return module.Result{}, false, nil
	}

	cacheHitsTotal.WithLabelValues(moduleID).Inc()
	return module.Result{
		ModuleID:  stored.ModuleID,
		Domain:    stored.Domain,
		Data:      stored.Data,
		Source:    stored.Source,
		FetchedAt: stored.FetchedAt,
	}, true, nil
}

// Put implements module.CacheStore.
func (s *Store) Put(ctx context.Context, res module.Result, ttl time.Duration) error {
	val, err := json.Marshal(storedResult{
		ModuleID:  res.ModuleID,
		Domain:    res.Domain,
		Data:      res.Data,
		Source:    res.Source,
		FetchedAt: res.FetchedAt,
	})
	if err != nil {
		return fmt.Errorf("cache encode %s/%s: %w", res.ModuleID, res.Domain, err)
	}

	key := []byte(resultPrefix + cacheKey(res.ModuleID, res.Domain))
	err = s.db.WithTxn(ctx, func(txn *badgerdb.Txn) error {
		entry := badgerdb.NewEntry(key, val)
		if ttl > 0 {
			// Keep expired entries on disk a little past their read-time
			// expiry so a TTL raised in the catalog can still find them.
			entry = entry.WithTTL(2 * ttl)
		}
		return txn.SetEntry(entry)
	})
	if err != nil {
		return fmt.Errorf("cache put %s/%s: %w", res.ModuleID, res.Domain, err)
	}
	cacheWritesTotal.WithLabelValues(res.ModuleID).Inc()
	return nil
}

// LastSuccess implements module.WatermarkStore.
func (s *Store) LastSuccess(ctx context.Context, moduleID, domain string) (time.Time, bool, error) {
	key := []byte(watermarkPrefix + cacheKey(moduleID, domain))

	var ts time.Time
	found := false
	err := s.db.WithReadTxn(ctx, func(txn *badgerdb.Txn) error {
		item, err := txn.Get(key)
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			parsed, err := time.Parse(time.RFC3339Nano, string(val))
			if err != nil {
				return fmt.Errorf("corrupt watermark: %w", err)
			}
			ts = parsed
			found = true
			return nil
		})
	})
	if err != nil {
		return time.Time{}, false, fmt.Errorf("watermark get %s/%s: %w", moduleID, domain, err)
	}
	return ts, found, nil
}

// MarkSuccess implements module.WatermarkStore.
func (s *Store) MarkSuccess(ctx context.Context, moduleID, domain string, ts time.Time) error {
	key := []byte(watermarkPrefix + cacheKey(moduleID, domain))
	err := s.db.WithTxn(ctx, func(txn *badgerdb.Txn) error {
		return txn.Set(key, []byte(ts.UTC().Format(time.RFC3339Nano)))
	})
	if err != nil {
		return fmt.Errorf("watermark put %s/%s: %w", moduleID, domain, err)
	}
	return nil
}

// Invalidate drops any cached result for (moduleID, domain). The
// watermark is kept; it records history, not freshness.
func (s *Store) Invalidate(ctx context.Context, moduleID, domain string) error {
	key := []byte(resultPrefix + cacheKey(moduleID, domain))
	err := s.db.WithTxn(ctx, func(txn *badgerdb.Txn) error {
		return txn.Delete(key)
	})
	if err != nil {
		return fmt.Errorf("cache invalidate %s/%s: %w", moduleID, domain, err)
	}
	return nil
}
