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

// Executive is one named leader at the target company.
type Executive struct {
	Name     string `json:"name"`
	Title    string `json:"title"`
	LinkedIn string `json:"linkedin,omitempty"`
}

// ExecIntel is the wave-2 leadership roster, scoped to the company
// identified in wave 1.
type ExecIntel struct {
	CompanyName string      `json:"company_name"`
	Executives  []Executive `json:"executives"`
}

type execIntel struct {
	module.Base
}

// NewExecIntel constructs the executive intelligence module.
func NewExecIntel(sources ...module.Source) module.Module {
	return &execIntel{Base: module.Base{
		Def: registry.Definition{
			ModuleID:   IDExecIntel,
			Name:       "Executive Intelligence",
			Wave:       2,
			DependsOn:  []string{IDCompanyContext},
			SourceType: registry.SourceAPI,
			CacheTTL:   7 * 24 * time.Hour,
		},
		Sources: sources,
	}}
}

// FetchData queries the people source, seeded with the company name
// from wave 1 so the roster matches the right legal entity.
func (m *execIntel) FetchData(ctx context.Context, domain string, deps module.Results) (map[string]any, error) {
	ctxRes, err := upstream(deps, IDExecIntel, IDCompanyContext)
	if err != nil {
		return nil, err
	}
	company, err := decodePayload[CompanyContext](ctxRes)
	if err != nil {
		return nil, fmt.Errorf("module %s: %w", IDExecIntel, err)
	}

	raw, _, err := m.FetchPrimary(ctx, domain)
	if err != nil {
		return nil, err
	}
	raw["company_name"] = company.Name
	return raw, nil
}

// TransformData normalizes the raw payload. A missing executives list
// defaults to empty; entries without a name are dropped.
func (m *execIntel) TransformData(raw map[string]any) map[string]any {
	var execs []Executive
	if list, ok := raw["executives"].([]any); ok {
		for _, entry := range list {
			fields, ok := entry.(map[string]any)
			if !ok {
				continue
			}
			exec := Executive{
				Name:     asString(fields["name"]),
				Title:    asString(fields["title"]),
				LinkedIn: asString(fields["linkedin"]),
			}
			if exec.Name == "" {
				continue
			}
			execs = append(execs, exec)
		}
	}
	return map[string]any{
		module.KeyDomain:     asString(raw["domain"]),
		module.KeySourceURL:  asString(raw["source_url"]),
		module.KeySourceDate: asTime(raw["source_date"]),
		module.KeySourceType: string(registry.SourceAPI),
		"company_name":       asString(raw["company_name"]),
		"executives":         execs,
	}
}

func (m *execIntel) ValidateAndStore(domain string, normalized map[string]any) (any, error) {
	if err := module.RequireDomain(IDExecIntel, domain, normalized); err != nil {
		return nil, err
	}
	execs, _ := normalized["executives"].([]Executive)
	return ExecIntel{
		CompanyName: asString(normalized["company_name"]),
		Executives:  execs,
	}, nil
}
