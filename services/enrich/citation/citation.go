// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package citation enforces the source citation mandate.
//
// Every module result must carry a non-empty origin URL and a source
// date no older than the freshness threshold for its source type. The
// validator is applied uniformly at the boundary of every enrich call;
// it knows nothing about individual modules. Citation failures are data
// integrity violations and are never retried.
package citation

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Sentinel errors for citation violations.
var (
	// ErrMissingSource indicates a result with an empty or absent
	// source URL.
	ErrMissingSource = errors.New("missing source url")

	// ErrStaleSource indicates a source date older than the freshness
	// threshold for its type.
	ErrStaleSource = errors.New("source date exceeds freshness threshold")
)

// DefaultFreshness is the threshold applied when no per-type override
// exists: twelve months, counted as 365 days so the boundary check does
// not shift with the calendar.
const DefaultFreshness = 365 * 24 * time.Hour

// TypeTraffic is the freshness key for traffic estimates, which decay
// much faster than firmographic data.
const TypeTraffic = "traffic"

// TrafficFreshness is the default threshold for TypeTraffic sources.
const TrafficFreshness = 30 * 24 * time.Hour

// Prometheus metrics for citation checks.
var (
	citationChecksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "enrich_citation_checks_total",
		Help: "Total citation validations performed",
	})

	citationRejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "enrich_citation_rejections_total",
		Help: "Citation validations rejected, by reason",
	}, []string{"reason"})
)

// Validator checks source citations against freshness thresholds.
//
// Thread Safety:
//
//	Safe for concurrent use after construction. The overrides map is
//	fixed at New time.
type Validator struct {
	defaultThreshold time.Duration
	overrides        map[string]time.Duration
	now              func() time.Time
}

// Option configures a Validator.
type Option func(*Validator)

// WithDefaultThreshold replaces the default freshness threshold.
func WithDefaultThreshold(d time.Duration) Option {
	return func(v *Validator) {
		v.defaultThreshold = d
	}
}

// WithThreshold sets a per-source-type freshness override.
func WithThreshold(sourceType string, d time.Duration) Option {
	return func(v *Validator) {
		v.overrides[sourceType] = d
	}
}

// WithNow injects the clock, for deterministic boundary tests.
func WithNow(now func() time.Time) Option {
	return func(v *Validator) {
		v.now = now
	}
}

// New builds a Validator. Without options it applies the 365-day default
// everywhere except traffic data, which goes stale after 30 days.
func New(opts ...Option) *Validator {
	v := &Validator{
		defaultThreshold: DefaultFreshness,
		overrides: map[string]time.Duration{
			TypeTraffic: TrafficFreshness,
		},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Threshold returns the freshness threshold for a source type.
func (v *Validator) Threshold(sourceType string) time.Duration {
	if d, ok := v.overrides[sourceType]; ok {
		return d
	}
	return v.defaultThreshold
}

// Validate checks one citation.
//
// Description:
//
//	Rejects an empty URL with ErrMissingSource and a date older than the
//	type's threshold with ErrStaleSource. The boundary is inclusive: a
//	source aged exactly at the threshold passes, one unit past fails.
//
// Inputs:
//
//	sourceURL - The origin URL. Whitespace-only counts as empty.
//	sourceDate - When the source was produced. The zero value counts
//	             as missing.
//	sourceType - Freshness threshold key (e.g. "api", "traffic").
//
// Outputs:
//
//	error - nil when the citation satisfies the mandate.
func (v *Validator) Validate(sourceURL string, sourceDate time.Time, sourceType string) error {
	citationChecksTotal.Inc()

	if strings.TrimSpace(sourceURL) == "" {
		citationRejectionsTotal.WithLabelValues("missing_url").Inc()
		return fmt.Errorf("citation: %w", ErrMissingSource)
	}
	if sourceDate.IsZero() {
		citationRejectionsTotal.WithLabelValues("missing_date").Inc()
		return fmt.Errorf("citation: source date is unset: %w", ErrMissingSource)
	}

	threshold := v.Threshold(sourceType)
	age := v.now().Sub(sourceDate)
	if age > threshold {
		citationRejectionsTotal.WithLabelValues("stale").Inc()
		return fmt.Errorf("citation: %s source aged %s with threshold %s: %w",
			sourceType, age.Round(time.Second), threshold, ErrStaleSource)
	}
	return nil
}
