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

	"github.com/prospectiq/enrich/services/enrich/module"
	"github.com/prospectiq/enrich/services/enrich/registry"
)

// CompanyContext is the firmographic profile every later wave builds
// on.
type CompanyContext struct {
	Name      string `json:"name"`
	Industry  string `json:"industry"`
	Employees int    `json:"employees"`
	HQ        string `json:"hq"`
}

// companyContext is the wave-1 firmographics producer. The primary
// source is a company-data API; a webpage scrape of the company's own
// site serves as the fallback.
type companyContext struct {
	module.Base
}

// NewCompanyContext constructs the company context module.
func NewCompanyContext(sources ...module.Source) module.Module {
	return &companyContext{Base: module.Base{
		Def: registry.Definition{
			ModuleID:   IDCompanyContext,
			Name:       "Company Context",
			Wave:       1,
			SourceType: registry.SourceAPI,
			CacheTTL:   7 * 24 * time.Hour,
		},
		Sources: sources,
	}}
}

// FetchData fetches the company-data API document and, when it leaves
// profile gaps, the homepage scrape as well, merging the two with the
// serving source winning on overlap. Gap filling is best effort: a
// failing secondary source never fails the module.
func (m *companyContext) FetchData(ctx context.Context, domain string, _ module.Results) (map[string]any, error) {
	raw, served, err := m.FetchPrimary(ctx, domain)
	if err != nil {
		return nil, err
	}
	if !profileGaps(raw) {
		return raw, nil
	}
	for _, src := range m.Sources {
		if src.Name() == served {
			continue
		}
		fill, err := src.Fetch(ctx, domain)
		if err != nil {
			continue
		}
		return module.MergeSources(
			module.SourceDoc{Name: served, Fields: raw},
			module.SourceDoc{Name: src.Name(), Fields: fill},
		), nil
	}
	return raw, nil
}

// profileGaps reports whether the document is missing a profile field
// the transform would otherwise default away.
func profileGaps(raw map[string]any) bool {
	for _, key := range []string{"name", "industry", "hq"} {
		if asString(raw[key]) == "" {
			return true
		}
	}
	return asInt(raw["employees"]) == 0
}

// TransformData normalizes the raw payload. Missing fields default:
// industry and hq to empty, employees to 0, name to the domain itself.
func (m *companyContext) TransformData(raw map[string]any) map[string]any {
	domain := asString(raw["domain"])
	name := asString(raw["name"])
	if name == "" {
		name = domain
	}
	return map[string]any{
		module.KeyDomain:     domain,
		module.KeySourceURL:  asString(raw["source_url"]),
		module.KeySourceDate: asTime(raw["source_date"]),
		module.KeySourceType: string(registry.SourceAPI),
		"name":               name,
		"industry":           asString(raw["industry"]),
		"employees":          asInt(raw["employees"]),
		"hq":                 asString(raw["hq"]),
	}
}

func (m *companyContext) ValidateAndStore(domain string, normalized map[string]any) (any, error) {
	if err := module.RequireDomain(IDCompanyContext, domain, normalized); err != nil {
		return nil, err
	}
	return CompanyContext{
		Name:      asString(normalized["name"]),
		Industry:  asString(normalized["industry"]),
		Employees: asInt(normalized["employees"]),
		HQ:        asString(normalized["hq"]),
	}, nil
}
