// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package cache provides the enrichment result cache and the success
// watermarks behind the runner's write-through behavior.
//
// Two implementations exist: MemoryStore for tests and fixture runs,
// and Store (BadgerDB-backed) for deployments where cached results and
// watermarks must survive restarts. Freshness is always judged at read
// time against the TTL the caller supplies, so a module's TTL can
// change without invalidating what is on disk.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/prospectiq/enrich/services/enrich/module"
)

// MemoryStore is an in-process CacheStore and WatermarkStore.
//
// Thread Safety: Safe for concurrent use.
type MemoryStore struct {
	mu         sync.RWMutex
	results    map[string]module.Result
	watermarks map[string]time.Time
	now        func() time.Time
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithMemoryClock overrides the freshness clock. Tests use this to pin
// expiry behavior.
func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) {
		s.now = now
	}
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		results:    make(map[string]module.Result),
		watermarks: make(map[string]time.Time),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func cacheKey(moduleID, domain string) string {
	return moduleID + "\x00" + domain
}

// Get implements module.CacheStore.
func (s *MemoryStore) Get(_ context.Context, moduleID, domain string, ttl time.Duration) (module.Result, bool, error) {
	s.mu.RLock()
	res, ok := s.results[cacheKey(moduleID, domain)]
	s.mu.RUnlock()

	if !ok {
		cacheMissesTotal.WithLabelValues(moduleID, "absent").Inc()
		return module.Result{}, false, nil
	}
	// Fresh means strictly younger than the TTL; an entry exactly at
	// the TTL has expired.
	if ttl > 0 && s.now().Sub(res.FetchedAt) >= ttl {
		cacheMissesTotal.WithLabelValues(moduleID, "expired").Inc()
		return module.Result{}, false, nil
	}
	cacheHitsTotal.WithLabelValues(moduleID).Inc()
	return res, true, nil
}

// Put implements module.CacheStore.
func (s *MemoryStore) Put(_ context.Context, res module.Result, _ time.Duration) error {
	s.mu.Lock()
	s.results[cacheKey(res.ModuleID, res.Domain)] = res
	s.mu.Unlock()
	cacheWritesTotal.WithLabelValues(res.ModuleID).Inc()
	return nil
}

// LastSuccess implements module.WatermarkStore.
func (s *MemoryStore) LastSuccess(_ context.Context, moduleID, domain string) (time.Time, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ts, ok := s.watermarks[cacheKey(moduleID, domain)]
	return ts, ok, nil
}

// MarkSuccess implements module.WatermarkStore.
func (s *MemoryStore) MarkSuccess(_ context.Context, moduleID, domain string, ts time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watermarks[cacheKey(moduleID, domain)] = ts
	return nil
}

// Invalidate drops any cached result for (moduleID, domain). Missing
// entries are not an error.
func (s *MemoryStore) Invalidate(_ context.Context, moduleID, domain string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.results, cacheKey(moduleID, domain))
	return nil
}

// Len returns the number of cached results.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.results)
}
