// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package modules

import (
	"context"
	"time"

	"github.com/prospectiq/enrich/services/enrich/citation"
	"github.com/prospectiq/enrich/services/enrich/module"
	"github.com/prospectiq/enrich/services/enrich/registry"
)

// WebTraffic summarizes a domain's visitor volume. Traffic estimates
// decay fast, so the citation validator holds this module's sources to
// the 30-day freshness window and the cache TTL is a single day.
type WebTraffic struct {
	MonthlyVisits  int     `json:"monthly_visits"`
	BounceRate     float64 `json:"bounce_rate"`
	TopReferrer    string  `json:"top_referrer"`
	PaidSharePct   float64 `json:"paid_share_pct"`
	SampledAtMonth string  `json:"sampled_at_month"`
}

type webTraffic struct {
	module.Base
}

// NewWebTraffic constructs the web traffic module.
func NewWebTraffic(sources ...module.Source) module.Module {
	return &webTraffic{Base: module.Base{
		Def: registry.Definition{
			ModuleID:   IDWebTraffic,
			Name:       "Web Traffic",
			Wave:       1,
			SourceType: registry.SourceAPI,
			CacheTTL:   24 * time.Hour,
		},
		Sources: sources,
	}}
}

func (m *webTraffic) FetchData(ctx context.Context, domain string, _ module.Results) (map[string]any, error) {
	raw, _, err := m.FetchPrimary(ctx, domain)
	return raw, err
}

// TransformData normalizes the raw payload. Missing numeric fields
// default to zero; an absent referrer defaults to "direct".
func (m *webTraffic) TransformData(raw map[string]any) map[string]any {
	referrer := asString(raw["top_referrer"])
	if referrer == "" {
		referrer = "direct"
	}
	return map[string]any{
		module.KeyDomain:     asString(raw["domain"]),
		module.KeySourceURL:  asString(raw["source_url"]),
		module.KeySourceDate: asTime(raw["source_date"]),
		module.KeySourceType: citation.TypeTraffic,
		"monthly_visits":     asInt(raw["monthly_visits"]),
		"bounce_rate":        asFloat(raw["bounce_rate"]),
		"top_referrer":       referrer,
		"paid_share_pct":     asFloat(raw["paid_share_pct"]),
		"sampled_at_month":   asString(raw["sampled_at_month"]),
	}
}

func (m *webTraffic) ValidateAndStore(domain string, normalized map[string]any) (any, error) {
	if err := module.RequireDomain(IDWebTraffic, domain, normalized); err != nil {
		return nil, err
	}
	return WebTraffic{
		MonthlyVisits:  asInt(normalized["monthly_visits"]),
		BounceRate:     asFloat(normalized["bounce_rate"]),
		TopReferrer:    asString(normalized["top_referrer"]),
		PaidSharePct:   asFloat(normalized["paid_share_pct"]),
		SampledAtMonth: asString(normalized["sampled_at_month"]),
	}, nil
}
