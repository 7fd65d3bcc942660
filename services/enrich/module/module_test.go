// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package module

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prospectiq/enrich/services/enrich/citation"
	"github.com/prospectiq/enrich/services/enrich/registry"
)

// memCache is a minimal in-memory CacheStore for runner tests. The real
// implementations live in the cache package.
type memCache struct {
	mu      sync.Mutex
	entries map[string]Result
	now     func() time.Time
}

func newMemCache(now func() time.Time) *memCache {
	return &memCache{entries: make(map[string]Result), now: now}
}

func (c *memCache) Get(_ context.Context, moduleID, domain string, ttl time.Duration) (Result, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	res, ok := c.entries[moduleID+"|"+domain]
	if !ok || c.now().Sub(res.FetchedAt) >= ttl {
		return Result{}, false, nil
	}
	return res, true, nil
}

func (c *memCache) Put(_ context.Context, res Result, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[res.ModuleID+"|"+res.Domain] = res
	return nil
}

// countingSource wraps StaticSource and counts Fetch calls.
type countingSource struct {
	StaticSource
	calls atomic.Int64
}

func (s *countingSource) Fetch(ctx context.Context, domain string) (map[string]any, error) {
	s.calls.Add(1)
	return s.StaticSource.Fetch(ctx, domain)
}

// testModule is a minimal Module built on Base for runner tests.
type testModule struct {
	Base
}

func (m *testModule) FetchData(ctx context.Context, domain string, _ Results) (map[string]any, error) {
	raw, _, err := m.FetchPrimary(ctx, domain)
	return raw, err
}

func (m *testModule) TransformData(raw map[string]any) map[string]any {
	normalized := map[string]any{
		KeyDomain:     raw["domain"],
		KeySourceURL:  raw["url"],
		KeySourceDate: raw["date"],
		KeySourceType: "api",
		"value":       raw["value"],
	}
	if normalized["value"] == nil {
		normalized["value"] = 0
	}
	return normalized
}

func (m *testModule) ValidateAndStore(domain string, normalized map[string]any) (any, error) {
	if err := RequireDomain(m.Def.ModuleID, domain, normalized); err != nil {
		return nil, err
	}
	return normalized["value"], nil
}

var testNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func testDoc(domain string) map[string]any {
	return map[string]any{
		"domain": domain,
		"url":    "https://api.example.com/v1/" + domain,
		"date":   testNow.Add(-time.Hour),
		"value":  42,
	}
}

func newTestModule(src ...Source) (*testModule, *countingSource) {
	primary := &countingSource{StaticSource: StaticSource{
		SourceName: "primary",
		Docs:       map[string]map[string]any{"acme.io": testDoc("acme.io")},
	}}
	sources := append([]Source{primary}, src...)
	m := &testModule{Base: Base{
		Def: registry.Definition{
			ModuleID:   "m01_company_context",
			Name:       "Company Context",
			Wave:       1,
			SourceType: registry.SourceAPI,
			CacheTTL:   time.Hour,
		},
		Sources: sources,
	}}
	return m, primary
}

func newTestRunner(t *testing.T, cache CacheStore) *Runner {
	t.Helper()
	v := citation.New(citation.WithNow(func() time.Time { return testNow }))
	r, err := NewRunner(cache, v, nil, WithClock(func() time.Time { return testNow }))
	require.NoError(t, err)
	return r
}

// TestEnrichCachesWithinTTL verifies two non-force calls fetch once.
func TestEnrichCachesWithinTTL(t *testing.T) {
	m, primary := newTestModule()
	r := newTestRunner(t, newMemCache(func() time.Time { return testNow }))

	first, err := r.Enrich(context.Background(), m, "acme.io", nil, false)
	require.NoError(t, err)
	assert.Equal(t, 42, first.Data)

	second, err := r.Enrich(context.Background(), m, "acme.io", nil, false)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), primary.calls.Load())
}

// TestEnrichForceAlwaysFetches verifies force bypasses the cache read.
func TestEnrichForceAlwaysFetches(t *testing.T) {
	m, primary := newTestModule()
	r := newTestRunner(t, newMemCache(func() time.Time { return testNow }))

	_, err := r.Enrich(context.Background(), m, "acme.io", nil, true)
	require.NoError(t, err)
	_, err = r.Enrich(context.Background(), m, "acme.io", nil, true)
	require.NoError(t, err)
	assert.Equal(t, int64(2), primary.calls.Load())
}

// TestEnrichExpiredCacheRefetches verifies TTL expiry triggers a fetch.
func TestEnrichExpiredCacheRefetches(t *testing.T) {
	clock := testNow
	cache := newMemCache(func() time.Time { return clock })
	m, primary := newTestModule()
	r := newTestRunner(t, cache)

	_, err := r.Enrich(context.Background(), m, "acme.io", nil, false)
	require.NoError(t, err)

	clock = testNow.Add(2 * time.Hour) // past the 1h TTL
	_, err = r.Enrich(context.Background(), m, "acme.io", nil, false)
	require.NoError(t, err)
	assert.Equal(t, int64(2), primary.calls.Load())
}

// TestFetchPrimaryFallsBack verifies the single fallback retry and the
// FetchError wrapping when every source fails.
func TestFetchPrimaryFallsBack(t *testing.T) {
	t.Run("fallback succeeds", func(t *testing.T) {
		broken := &StaticSource{SourceName: "primary", Err: errors.New("503 upstream")}
		fallback := &StaticSource{SourceName: "fallback", Docs: map[string]map[string]any{"acme.io": testDoc("acme.io")}}
		b := Base{Def: registry.Definition{ModuleID: "m01_company_context", Wave: 1, SourceType: registry.SourceAPI}, Sources: []Source{broken, fallback}}

		raw, name, err := b.FetchPrimary(context.Background(), "acme.io")
		require.NoError(t, err)
		assert.Equal(t, "fallback", name)
		assert.Equal(t, "acme.io", raw["domain"])
	})

	t.Run("all sources fail", func(t *testing.T) {
		broken := &StaticSource{SourceName: "primary", Err: errors.New("timeout")}
		alsoBroken := &StaticSource{SourceName: "fallback", Err: errors.New("404")}
		b := Base{Def: registry.Definition{ModuleID: "m01_company_context", Wave: 1, SourceType: registry.SourceAPI}, Sources: []Source{broken, alsoBroken}}

		_, _, err := b.FetchPrimary(context.Background(), "acme.io")
		require.Error(t, err)
		assert.True(t, IsFetch(err))
		var fe *FetchError
		require.ErrorAs(t, err, &fe)
		assert.Equal(t, "fallback", fe.SourceName)
	})

	t.Run("only one fallback attempt by default", func(t *testing.T) {
		broken := &countingSource{StaticSource: StaticSource{SourceName: "primary", Err: errors.New("down")}}
		second := &countingSource{StaticSource: StaticSource{SourceName: "fallback", Err: errors.New("down")}}
		third := &countingSource{StaticSource: StaticSource{SourceName: "tertiary", Docs: map[string]map[string]any{"acme.io": testDoc("acme.io")}}}
		b := Base{Def: registry.Definition{ModuleID: "m01_company_context", Wave: 1, SourceType: registry.SourceAPI}, Sources: []Source{broken, second, third}}

		_, _, err := b.FetchPrimary(context.Background(), "acme.io")
		require.Error(t, err)
		assert.Equal(t, int64(0), third.calls.Load())
	})
}

// TestRequireDomainGuard verifies the upstream-confusion check.
func TestRequireDomainGuard(t *testing.T) {
	normalized := map[string]any{KeyDomain: "other.io"}
	err := RequireDomain("m01_company_context", "acme.io", normalized)
	require.Error(t, err)
	assert.True(t, IsValidation(err))
}

// TestEnrichRejectsDomainMismatch verifies the guard fires through the
// full pipeline regardless of payload shape.
func TestEnrichRejectsDomainMismatch(t *testing.T) {
	m, _ := newTestModule()
	m.Sources = []Source{&StaticSource{
		SourceName: "primary",
		Docs:       map[string]map[string]any{"acme.io": testDoc("other.io")},
	}}
	r := newTestRunner(t, newMemCache(func() time.Time { return testNow }))

	_, err := r.Enrich(context.Background(), m, "acme.io", nil, false)
	require.Error(t, err)
	assert.True(t, IsValidation(err))
}

// TestEnrichCitationGate verifies the mandate at the enrich boundary.
func TestEnrichCitationGate(t *testing.T) {
	t.Run("missing url", func(t *testing.T) {
		doc := testDoc("acme.io")
		doc["url"] = ""
		m, _ := newTestModule()
		m.Sources = []Source{&StaticSource{SourceName: "primary", Docs: map[string]map[string]any{"acme.io": doc}}}
		r := newTestRunner(t, newMemCache(func() time.Time { return testNow }))

		_, err := r.Enrich(context.Background(), m, "acme.io", nil, false)
		require.Error(t, err)
		assert.ErrorIs(t, err, citation.ErrMissingSource)
	})

	t.Run("stale date", func(t *testing.T) {
		doc := testDoc("acme.io")
		doc["date"] = testNow.Add(-citation.DefaultFreshness - time.Second)
		m, _ := newTestModule()
		m.Sources = []Source{&StaticSource{SourceName: "primary", Docs: map[string]map[string]any{"acme.io": doc}}}
		r := newTestRunner(t, newMemCache(func() time.Time { return testNow }))

		_, err := r.Enrich(context.Background(), m, "acme.io", nil, false)
		require.Error(t, err)
		assert.ErrorIs(t, err, citation.ErrStaleSource)
	})
}

// TestEnrichSingleFlight verifies concurrent same-key calls perform one
// underlying fetch.
func TestEnrichSingleFlight(t *testing.T) {
	m, primary := newTestModule()
	// Cache that never hits, so only singleflight dedupes.
	clock := testNow
	cache := newMemCache(func() time.Time { return clock })
	r := newTestRunner(t, cache)

	const callers = 8
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = r.Enrich(context.Background(), m, "acme.io", nil, false)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	// Racing callers either share a flight or hit the fresh cache entry:
	// strictly fewer fetches than callers, typically exactly one.
	assert.LessOrEqual(t, primary.calls.Load(), int64(2))
}

// TestMergeSourcesPriority verifies first-non-nil-wins semantics.
func TestMergeSourcesPriority(t *testing.T) {
	merged := MergeSources(
		SourceDoc{Name: "api", Fields: map[string]any{"name": "Acme", "employees": 120, "industry": nil}},
		SourceDoc{Name: "webpage", Fields: map[string]any{"name": "ACME Inc", "industry": "logistics", "hq": "Rotterdam"}},
	)

	assert.Equal(t, "Acme", merged["name"])          // higher priority wins on overlap
	assert.Equal(t, "logistics", merged["industry"]) // nil does not block a fill
	assert.Equal(t, "Rotterdam", merged["hq"])       // lower priority fills gaps
	assert.Equal(t, 120, merged["employees"])
}

// TestSourceFromNormalized verifies citation extraction and defaults.
func TestSourceFromNormalized(t *testing.T) {
	normalized := map[string]any{
		KeySourceURL:  "https://example.com",
		KeySourceDate: testNow,
	}
	info := SourceFromNormalized(normalized, "api")
	assert.Equal(t, "https://example.com", info.URL)
	assert.Equal(t, testNow, info.Date)
	assert.Equal(t, "api", info.Type)

	normalized[KeySourceType] = "traffic"
	assert.Equal(t, "traffic", SourceFromNormalized(normalized, "api").Type)
}
