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
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/prospectiq/enrich/services/enrich/citation"
	"github.com/prospectiq/enrich/services/enrich/registry"
)

var tracer = otel.Tracer("enrich.module")

// CacheStore is the keyed result cache consumed by the runner.
//
// Implementations must distinguish absence from error and must be safe
// for concurrent use. The runner passes the module's cache TTL on every
// call so stores don't need their own view of the catalog.
type CacheStore interface {
	// Get returns the cached result for (moduleID, domain) if one exists
	// and is younger than ttl.
	Get(ctx context.Context, moduleID, domain string, ttl time.Duration) (Result, bool, error)

	// Put stores a result write-through. ttl bounds its freshness.
	Put(ctx context.Context, res Result, ttl time.Duration) error
}

// WatermarkStore persists the last successful enrichment timestamp per
// (module, domain) so staleness checks survive process restarts.
// Persistence of anything beyond this watermark belongs to external
// collaborators.
type WatermarkStore interface {
	// LastSuccess returns the recorded timestamp, if any.
	LastSuccess(ctx context.Context, moduleID, domain string) (time.Time, bool, error)

	// MarkSuccess records a successful enrichment at ts.
	MarkSuccess(ctx context.Context, moduleID, domain string, ts time.Time) error
}

// Runner drives single enrich calls through the module contract.
//
// Description:
//
//	Enrich implements the uniform pipeline: cache gate → deduplicated,
//	rate-limited fetch → transform → validate → citation mandate →
//	write-through. All cross-cutting behavior lives here so the fifteen
//	heterogeneous producers cannot diverge on it.
//
// Thread Safety:
//
//	Safe for concurrent use. Concurrent Enrich calls for the same
//	(module, domain) key collapse into a single in-flight execution.
type Runner struct {
	cache      CacheStore
	citations  *citation.Validator
	watermarks WatermarkStore
	limiter    *rate.Limiter
	logger     *slog.Logger
	now        func() time.Time

	group singleflight.Group
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithWatermarks attaches a persistent watermark store.
func WithWatermarks(ws WatermarkStore) RunnerOption {
	return func(r *Runner) {
		r.watermarks = ws
	}
}

// WithLimiter caps concurrent external-API pressure. A nil limiter
// disables rate limiting.
func WithLimiter(l *rate.Limiter) RunnerOption {
	return func(r *Runner) {
		r.limiter = l
	}
}

// WithClock injects the clock used for FetchedAt stamps.
func WithClock(now func() time.Time) RunnerOption {
	return func(r *Runner) {
		r.now = now
	}
}

// NewRunner builds a Runner.
//
// Inputs:
//
//	cache - Result cache. Must not be nil.
//	citations - Citation validator. Must not be nil.
//	logger - Structured logger. nil falls back to slog.Default().
func NewRunner(cache CacheStore, citations *citation.Validator, logger *slog.Logger, opts ...RunnerOption) (*Runner, error) {
	if cache == nil {
		return nil, fmt.Errorf("module: runner requires a cache store")
	}
	if citations == nil {
		return nil, fmt.Errorf("module: runner requires a citation validator")
	}
	if logger == nil {
		logger = slog.Default()
	}
	r := &Runner{
		cache:     cache,
		citations: citations,
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Enrich runs one module against one domain.
//
// Description:
//
//	With force false, a cache hit within the module's TTL returns
//	immediately without touching FetchData. Otherwise the pipeline runs
//	end to end and the result is written through to the cache. Citation
//	and validation failures abort the call and are never retried here;
//	fetch fallback is the module's own single retry.
//
// Inputs:
//
//	ctx - Context for cancellation. Must not be nil.
//	m - The module to run.
//	domain - Target business domain.
//	deps - Accumulated results of earlier waves. Read-only.
//	force - Bypass the cache read; always write through.
//
// Outputs:
//
//	Result - The enriched, cited result.
//	error - *FetchError, *ValidationError, or a citation error.
func (r *Runner) Enrich(ctx context.Context, m Module, domain string, deps Results, force bool) (Result, error) {
	def := m.Definition()

	ctx, span := tracer.Start(ctx, "module.Enrich",
		trace.WithAttributes(
			attribute.String("module.id", def.ModuleID),
			attribute.String("module.domain", domain),
			attribute.Bool("module.force", force),
		),
	)
	defer span.End()

	if !force {
		cached, ok, err := r.cache.Get(ctx, def.ModuleID, domain, def.CacheTTL)
		if err != nil {
			r.logger.Warn("cache read failed, falling through to fetch",
				slog.String("module", def.ModuleID),
				slog.String("domain", domain),
				slog.String("error", err.Error()),
			)
		} else if ok {
			span.SetAttributes(attribute.Bool("module.cache_hit", true))
			return cached, nil
		}
	}

	// At most one in-flight fetch per (module, domain): concurrent
	// callers share the winner's result instead of double-billing the
	// external API.
	key := def.ModuleID + "\x00" + domain
	v, err, shared := r.group.Do(key, func() (any, error) {
		return r.enrichOnce(ctx, m, def, domain, deps, force)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Result{}, err
	}
	span.SetAttributes(attribute.Bool("module.flight_shared", shared))
	return v.(Result), nil
}

func (r *Runner) enrichOnce(ctx context.Context, m Module, def registry.Definition, domain string, deps Results, force bool) (Result, error) {
	// Late duplicate: a call that lost the singleflight race re-checks
	// the cache the winner just populated.
	if !force {
		if cached, ok, err := r.cache.Get(ctx, def.ModuleID, domain, def.CacheTTL); err == nil && ok {
			return cached, nil
		}
	}

	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return Result{}, &FetchError{ModuleID: def.ModuleID, Err: err}
		}
	}

	start := r.now()
	raw, err := m.FetchData(ctx, domain, deps)
	if err != nil {
		return Result{}, err
	}

	normalized := m.TransformData(raw)

	payload, err := m.ValidateAndStore(domain, normalized)
	if err != nil {
		return Result{}, err
	}

	source := SourceFromNormalized(normalized, string(def.SourceType))
	if err := r.citations.Validate(source.URL, source.Date, source.Type); err != nil {
		return Result{}, fmt.Errorf("module %s: %w", def.ModuleID, err)
	}

	res := Result{
		ModuleID:  def.ModuleID,
		Domain:    domain,
		Data:      payload,
		Source:    source,
		FetchedAt: start,
	}

	if err := r.cache.Put(ctx, res, def.CacheTTL); err != nil {
		// A failed write-through degrades caching, not correctness.
		r.logger.Warn("cache write-through failed",
			slog.String("module", def.ModuleID),
			slog.String("domain", domain),
			slog.String("error", err.Error()),
		)
	}
	if r.watermarks != nil {
		if err := r.watermarks.MarkSuccess(ctx, def.ModuleID, domain, res.FetchedAt); err != nil {
			r.logger.Warn("watermark update failed",
				slog.String("module", def.ModuleID),
				slog.String("domain", domain),
				slog.String("error", err.Error()),
			)
		}
	}

	r.logger.Debug("module enriched",
		slog.String("module", def.ModuleID),
		slog.String("domain", domain),
		slog.Duration("duration", r.now().Sub(start)),
	)
	return res, nil
}
