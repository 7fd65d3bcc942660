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
	"fmt"
	"time"

	"github.com/prospectiq/enrich/services/enrich/module"
	"github.com/prospectiq/enrich/services/enrich/registry"
)

// ICP scoring weights. The four components sum to 100.
const (
	scoreIndustry   = 40
	scoreTraffic    = 30
	scoreExecutives = 20
	scorePersonas   = 10

	// trafficFloor is the monthly-visits level worth the full traffic
	// component.
	trafficFloor = 10_000
)

// ICPScore is the final synthesized fit score with its component
// breakdown.
type ICPScore struct {
	Score      int            `json:"score"`
	Components map[string]int `json:"components"`
	// Missing lists upstream modules that contributed nothing, so a
	// low score is distinguishable from a poor fit.
	Missing []string `json:"missing,omitempty"`
}

// icpScoring is the wave-4 synthesis module. It performs no external
// I/O: its raw payload is assembled entirely from upstream results,
// and its citation points at the company-context source the score is
// anchored on.
type icpScoring struct {
	module.Base
}

// NewICPScoring constructs the ICP scoring module.
func NewICPScoring(_ ...module.Source) module.Module {
	return &icpScoring{Base: module.Base{
		Def: registry.Definition{
			ModuleID:   IDICPScoring,
			Name:       "ICP Scoring",
			Wave:       4,
			DependsOn:  []string{IDCompanyContext, IDWebTraffic, IDExecIntel, IDBuyerMap},
			SourceType: registry.SourceSynthesis,
			CacheTTL:   24 * time.Hour,
		},
	}}
}

// FetchData collects upstream payloads. Company context is mandatory —
// the score is meaningless without an identified company and the
// citation is anchored on its source. Every other upstream is optional
// and simply scores zero when absent.
func (m *icpScoring) FetchData(_ context.Context, domain string, deps module.Results) (map[string]any, error) {
	ctxRes, err := upstream(deps, IDICPScoring, IDCompanyContext)
	if err != nil {
		return nil, err
	}
	company, err := decodePayload[CompanyContext](ctxRes)
	if err != nil {
		return nil, fmt.Errorf("module %s: %w", IDICPScoring, err)
	}

	raw := map[string]any{
		"domain":      domain,
		"company":     company,
		"source_url":  ctxRes.Source.URL,
		"source_date": ctxRes.Source.Date,
	}

	if res, ok := deps[IDWebTraffic]; ok {
		traffic, err := decodePayload[WebTraffic](res)
		if err != nil {
			return nil, fmt.Errorf("module %s: %w", IDICPScoring, err)
		}
		raw["traffic"] = traffic
	}
	if res, ok := deps[IDExecIntel]; ok {
		intel, err := decodePayload[ExecIntel](res)
		if err != nil {
			return nil, fmt.Errorf("module %s: %w", IDICPScoring, err)
		}
		raw["exec_intel"] = intel
	}
	if res, ok := deps[IDBuyerMap]; ok {
		buyers, err := decodePayload[BuyerMap](res)
		if err != nil {
			return nil, fmt.Errorf("module %s: %w", IDICPScoring, err)
		}
		raw["buyer_map"] = buyers
	}
	return raw, nil
}

// TransformData computes the weighted component sum. Absent upstreams
// contribute zero and are listed under "missing".
func (m *icpScoring) TransformData(raw map[string]any) map[string]any {
	components := map[string]int{
		"industry":   0,
		"traffic":    0,
		"executives": 0,
		"personas":   0,
	}
	var missing []string

	if company, ok := raw["company"].(CompanyContext); ok && company.Industry != "" {
		components["industry"] = scoreIndustry
	}

	if traffic, ok := raw["traffic"].(WebTraffic); ok {
		if traffic.MonthlyVisits >= trafficFloor {
			components["traffic"] = scoreTraffic
		}
	} else {
		missing = append(missing, IDWebTraffic)
	}

	if intel, ok := raw["exec_intel"].(ExecIntel); ok {
		if len(intel.Executives) > 0 {
			components["executives"] = scoreExecutives
		}
	} else {
		missing = append(missing, IDExecIntel)
	}

	if buyers, ok := raw["buyer_map"].(BuyerMap); ok {
		if len(buyers.Personas) > 0 {
			components["personas"] = scorePersonas
		}
	} else {
		missing = append(missing, IDBuyerMap)
	}

	total := 0
	for _, pts := range components {
		total += pts
	}

	return map[string]any{
		module.KeyDomain:     asString(raw["domain"]),
		module.KeySourceURL:  asString(raw["source_url"]),
		module.KeySourceDate: asTime(raw["source_date"]),
		module.KeySourceType: string(registry.SourceSynthesis),
		"score":              total,
		"components":         components,
		"missing":            missing,
	}
}

func (m *icpScoring) ValidateAndStore(domain string, normalized map[string]any) (any, error) {
	if err := module.RequireDomain(IDICPScoring, domain, normalized); err != nil {
		return nil, err
	}
	components, _ := normalized["components"].(map[string]int)
	missing, _ := normalized["missing"].([]string)
	return ICPScore{
		Score:      asInt(normalized["score"]),
		Components: components,
		Missing:    missing,
	}, nil
}
