// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package module defines the contract every enrichment module satisfies
// and the runner that drives a single enrich call through it.
//
// The contract splits a module into three hooks: FetchData (the only
// I/O), TransformData (pure normalization), and ValidateAndStore (typed
// payload construction with the domain guard). The Runner owns
// everything that must hold uniformly across all modules — cache gate,
// per-key fetch dedup, rate limiting, the citation mandate, and the
// write-through — so no module can opt out of them.
package module

import (
	"context"
	"fmt"
	"time"

	"github.com/prospectiq/enrich/services/enrich/registry"
)

// Results maps module id to the (immutable) result of an earlier wave.
// The orchestrator passes it read-only; modules must not mutate it.
type Results map[string]Result

// SourceInfo cites where a result's data came from.
type SourceInfo struct {
	// URL is the origin of the data. Never empty on a stored result.
	URL string `json:"url"`

	// Date is when the source produced the data.
	Date time.Time `json:"date"`

	// Type keys the freshness threshold (e.g. "api", "traffic").
	Type string `json:"type"`
}

// Result is the outcome of one successful enrich call.
//
// Thread Safety:
//
//	Results are immutable once returned by the runner. Later waves read
//	them without locking.
type Result struct {
	// ModuleID identifies the producing module.
	ModuleID string `json:"module_id"`

	// Domain is the business domain the result describes.
	Domain string `json:"domain"`

	// Data is the module-specific typed payload.
	Data any `json:"data"`

	// Source cites the origin of the data.
	Source SourceInfo `json:"source"`

	// FetchedAt is when the enrichment ran; cache freshness is measured
	// from this instant.
	FetchedAt time.Time `json:"fetched_at"`
}

// Module is implemented by every enrichment unit.
//
// FetchData and the runner's Enrich are the only methods that perform
// I/O; TransformData and ValidateAndStore must stay pure.
type Module interface {
	// Definition returns the module's catalog metadata.
	Definition() registry.Definition

	// FetchData calls the module's external collaborators and returns
	// the merged raw mapping. deps carries the accumulated results of
	// earlier waves; a required upstream that failed this run is simply
	// absent from the map.
	FetchData(ctx context.Context, domain string, deps Results) (map[string]any, error)

	// TransformData normalizes raw data synchronously, with no I/O.
	// Missing optional fields are replaced by documented defaults,
	// never by failing.
	TransformData(raw map[string]any) map[string]any

	// ValidateAndStore builds the module's typed payload from the
	// normalized mapping. It fails with a *ValidationError when the
	// payload's domain differs from the requested one.
	ValidateAndStore(domain string, normalized map[string]any) (any, error)
}

// Normalized payload keys every module populates during TransformData.
// The runner reads them to assemble SourceInfo and run the domain guard.
const (
	KeyDomain     = "domain"
	KeySourceURL  = "source_url"
	KeySourceDate = "source_date"
	KeySourceType = "source_type"
)

// SourceFromNormalized extracts the citation fields from a normalized
// payload. Absent fields yield zero values; the citation validator
// rejects those downstream.
func SourceFromNormalized(normalized map[string]any, fallbackType string) SourceInfo {
	info := SourceInfo{Type: fallbackType}
	if u, ok := normalized[KeySourceURL].(string); ok {
		info.URL = u
	}
	if d, ok := normalized[KeySourceDate].(time.Time); ok {
		info.Date = d
	}
	if t, ok := normalized[KeySourceType].(string); ok && t != "" {
		info.Type = t
	}
	return info
}

// RequireDomain is the shared upstream-confusion guard. Every module
// calls it first in ValidateAndStore; it is never skipped.
func RequireDomain(moduleID, domain string, normalized map[string]any) error {
	got, _ := normalized[KeyDomain].(string)
	if got != domain {
		return &ValidationError{
			ModuleID: moduleID,
			Field:    KeyDomain,
			Reason:   fmt.Sprintf("payload describes %q, expected %q", got, domain),
		}
	}
	return nil
}

// Base provides the common plumbing concrete modules embed: catalog
// metadata plus the ordered source list with fallback semantics.
type Base struct {
	Def     registry.Definition
	Sources []Source
	Retry   RetryPolicy
}

// Definition implements Module.Definition.
func (b *Base) Definition() registry.Definition {
	return b.Def
}

// SetRetry overrides the fetch retry policy. Callers apply deployment
// configuration here after construction.
func (b *Base) SetRetry(p RetryPolicy) {
	b.Retry = p
}

// RetryPolicy bounds how fetch failures are retried. The default is a
// single retry against the first fallback source; the knobs exist
// because the thresholds are deployment configuration, not module
// logic.
type RetryPolicy struct {
	// FallbackAttempts is how many fallback sources may be tried after
	// the primary fails. Zero or negative means one.
	FallbackAttempts int

	// Delay is slept between attempts. Zero means none.
	Delay time.Duration
}

func (p RetryPolicy) attempts() int {
	if p.FallbackAttempts < 1 {
		return 1
	}
	return p.FallbackAttempts
}

// Source is a data-source collaborator consumed by FetchData.
//
// Implementations live outside this repository; on success they must
// return a mapping that includes a source URL and timestamp, or the
// enrich call will be rejected by the citation gate.
type Source interface {
	// Name identifies the source for logs and merge priority.
	Name() string

	// Fetch returns the raw mapping for a domain. Transport failures
	// surface as plain errors; the caller decides about fallbacks.
	Fetch(ctx context.Context, domain string) (map[string]any, error)
}

// FetchPrimary fetches from the module's sources in declared priority
// order: the primary first, then — on failure — up to
// Retry.FallbackAttempts fallback sources. When every attempt fails the
// last error is wrapped in a *FetchError.
func (b *Base) FetchPrimary(ctx context.Context, domain string) (map[string]any, string, error) {
	if len(b.Sources) == 0 {
		return nil, "", &FetchError{ModuleID: b.Def.ModuleID, Err: fmt.Errorf("no sources configured")}
	}

	limit := 1 + b.Retry.attempts()
	if limit > len(b.Sources) {
		limit = len(b.Sources)
	}

	var lastErr error
	var lastSource string
	for i := 0; i < limit; i++ {
		if i > 0 && b.Retry.Delay > 0 {
			select {
			case <-ctx.Done():
				return nil, lastSource, &FetchError{ModuleID: b.Def.ModuleID, SourceName: lastSource, Err: ctx.Err()}
			case <-time.After(b.Retry.Delay):
			}
		}
		src := b.Sources[i]
		raw, err := src.Fetch(ctx, domain)
		if err == nil {
			return raw, src.Name(), nil
		}
		lastErr = err
		lastSource = src.Name()
	}
	return nil, lastSource, &FetchError{ModuleID: b.Def.ModuleID, SourceName: lastSource, Err: lastErr}
}

// StaticSource is a fixture-backed Source for tests and offline runs.
// It returns a copy of the configured document for known domains and a
// not-found error otherwise.
type StaticSource struct {
	// SourceName identifies the source.
	SourceName string

	// Docs maps domain to the raw payload returned by Fetch.
	Docs map[string]map[string]any

	// Err, when set, is returned for every Fetch call.
	Err error
}

// Name implements Source.
func (s *StaticSource) Name() string {
	return s.SourceName
}

// Fetch implements Source.
func (s *StaticSource) Fetch(_ context.Context, domain string) (map[string]any, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	doc, ok := s.Docs[domain]
	if !ok {
		return nil, fmt.Errorf("source %s: no document for domain %q", s.SourceName, domain)
	}
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	return out, nil
}
