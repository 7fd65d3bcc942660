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
	"strings"
	"time"

	"github.com/prospectiq/enrich/services/enrich/module"
	"github.com/prospectiq/enrich/services/enrich/registry"
)

// BuyerPersona is one likely buying role at the target company.
type BuyerPersona struct {
	Role      string `json:"role"`
	Seniority string `json:"seniority"`
	// Named is set when a wave-2 executive matched the role; otherwise
	// the persona is inferred from firmographics alone.
	Named string `json:"named,omitempty"`
}

// BuyerMap is the wave-3 buying-committee model.
type BuyerMap struct {
	Personas []BuyerPersona `json:"personas"`
	// Inferred is true when the map was built from company context
	// alone because executive intelligence was unavailable.
	Inferred bool `json:"inferred"`
}

// buyerMap derives buying roles from the executive roster, falling
// back to a firmographics-only inference when wave 2 produced nothing
// for this domain.
type buyerMap struct {
	module.Base
}

// NewBuyerMap constructs the buyer map module. It performs no external
// I/O; sources are accepted for interface uniformity and ignored.
func NewBuyerMap(_ ...module.Source) module.Module {
	return &buyerMap{Base: module.Base{
		Def: registry.Definition{
			ModuleID:   IDBuyerMap,
			Name:       "Buyer Map",
			Wave:       3,
			DependsOn:  []string{IDExecIntel},
			SourceType: registry.SourceComputed,
			CacheTTL:   7 * 24 * time.Hour,
		},
	}}
}

// buyingTitles maps title keywords to the persona they indicate.
var buyingTitles = []struct {
	keyword   string
	role      string
	seniority string
}{
	{"chief executive", "economic buyer", "c-level"},
	{"ceo", "economic buyer", "c-level"},
	{"chief revenue", "champion", "c-level"},
	{"cro", "champion", "c-level"},
	{"chief technology", "technical evaluator", "c-level"},
	{"cto", "technical evaluator", "c-level"},
	{"vp", "champion", "vp"},
	{"head of", "influencer", "director"},
	{"director", "influencer", "director"},
}

// FetchData assembles the working set from upstream results. The
// executive roster is preferred; when wave 2 has no entry for this
// domain the company context alone still yields an inferred map, and
// only the absence of both fails the module.
func (m *buyerMap) FetchData(_ context.Context, domain string, deps module.Results) (map[string]any, error) {
	raw := map[string]any{"domain": domain}

	if execRes, ok := deps[IDExecIntel]; ok {
		intel, err := decodePayload[ExecIntel](execRes)
		if err != nil {
			return nil, fmt.Errorf("module %s: %w", IDBuyerMap, err)
		}
		raw["executives"] = intel.Executives
		raw["source_url"] = execRes.Source.URL
		raw["source_date"] = execRes.Source.Date
		return raw, nil
	}

	ctxRes, ok := deps[IDCompanyContext]
	if !ok {
		return nil, fmt.Errorf("module %s: neither %s nor %s available: %w",
			IDBuyerMap, IDExecIntel, IDCompanyContext, module.ErrDependencyUnavailable)
	}
	company, err := decodePayload[CompanyContext](ctxRes)
	if err != nil {
		return nil, fmt.Errorf("module %s: %w", IDBuyerMap, err)
	}
	raw["company"] = company
	raw["source_url"] = ctxRes.Source.URL
	raw["source_date"] = ctxRes.Source.Date
	return raw, nil
}

// TransformData builds personas. With a roster, each matching title
// yields a named persona; without one, firmographics produce a default
// inferred committee.
func (m *buyerMap) TransformData(raw map[string]any) map[string]any {
	var personas []BuyerPersona
	inferred := false

	if execs, ok := raw["executives"].([]Executive); ok {
		for _, exec := range execs {
			title := strings.ToLower(exec.Title)
			for _, bt := range buyingTitles {
				if strings.Contains(title, bt.keyword) {
					personas = append(personas, BuyerPersona{
						Role:      bt.role,
						Seniority: bt.seniority,
						Named:     exec.Name,
					})
					break
				}
			}
		}
	}

	if len(personas) == 0 {
		inferred = true
		personas = []BuyerPersona{
			{Role: "economic buyer", Seniority: "c-level"},
			{Role: "champion", Seniority: "vp"},
		}
	}

	return map[string]any{
		module.KeyDomain:     asString(raw["domain"]),
		module.KeySourceURL:  asString(raw["source_url"]),
		module.KeySourceDate: asTime(raw["source_date"]),
		module.KeySourceType: string(registry.SourceComputed),
		"personas":           personas,
		"inferred":           inferred,
	}
}

func (m *buyerMap) ValidateAndStore(domain string, normalized map[string]any) (any, error) {
	if err := module.RequireDomain(IDBuyerMap, domain, normalized); err != nil {
		return nil, err
	}
	personas, _ := normalized["personas"].([]BuyerPersona)
	inferred, _ := normalized["inferred"].(bool)
	return BuyerMap{Personas: personas, Inferred: inferred}, nil
}
