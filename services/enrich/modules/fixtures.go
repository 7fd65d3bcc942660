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
	"time"

	"github.com/prospectiq/enrich/services/enrich/module"
)

// FixtureSources returns canned data sources for id, keyed to the
// fixture domains acme.io and globex.com. The CLI's fixture mode and
// the end-to-end tests run the whole pipeline against these instead of
// live collaborators. Source dates are relative to now so the citation
// gate behaves the same whenever the fixtures run.
func FixtureSources(id string) []module.Source {
	now := time.Now().UTC()
	switch id {
	case IDCompanyContext:
		return []module.Source{
			&module.StaticSource{
				SourceName: "companies-api",
				Docs: map[string]map[string]any{
					"acme.io": {
						"domain":      "acme.io",
						"name":        "Acme Logistics",
						"industry":    "logistics",
						"employees":   340,
						"hq":          "Rotterdam",
						"source_url":  "https://api.companies.example/v1/acme.io",
						"source_date": now.Add(-48 * time.Hour),
					},
					"globex.com": {
						"domain":      "globex.com",
						"name":        "Globex",
						"industry":    "manufacturing",
						"employees":   5200,
						"hq":          "Springfield",
						"source_url":  "https://api.companies.example/v1/globex.com",
						"source_date": now.Add(-72 * time.Hour),
					},
				},
			},
			&module.StaticSource{
				SourceName: "homepage-scrape",
				Docs: map[string]map[string]any{
					"acme.io": {
						"domain":      "acme.io",
						"name":        "Acme",
						"source_url":  "https://acme.io/about",
						"source_date": now.Add(-24 * time.Hour),
					},
				},
			},
		}
	case IDWebTraffic:
		return []module.Source{
			&module.StaticSource{
				SourceName: "traffic-panel",
				Docs: map[string]map[string]any{
					"acme.io": {
						"domain":           "acme.io",
						"monthly_visits":   48_000,
						"bounce_rate":      0.41,
						"top_referrer":     "linkedin.com",
						"paid_share_pct":   12.5,
						"sampled_at_month": now.AddDate(0, -1, 0).Format("2006-01"),
						"source_url":       "https://traffic.example/acme.io",
						"source_date":      now.Add(-5 * 24 * time.Hour),
					},
					"globex.com": {
						"domain":         "globex.com",
						"monthly_visits": 3_200,
						"source_url":     "https://traffic.example/globex.com",
						"source_date":    now.Add(-10 * 24 * time.Hour),
					},
				},
			},
		}
	case IDExecIntel:
		return []module.Source{
			&module.StaticSource{
				SourceName: "people-api",
				Docs: map[string]map[string]any{
					"acme.io": {
						"domain": "acme.io",
						"executives": []any{
							map[string]any{"name": "J. Vermeer", "title": "Chief Executive Officer", "linkedin": "jvermeer"},
							map[string]any{"name": "R. Okafor", "title": "VP Sales"},
							map[string]any{"title": "orphan entry without a name"},
						},
						"source_url":  "https://people.example/acme.io",
						"source_date": now.Add(-96 * time.Hour),
					},
					"globex.com": {
						"domain":      "globex.com",
						"executives":  []any{},
						"source_url":  "https://people.example/globex.com",
						"source_date": now.Add(-96 * time.Hour),
					},
				},
			},
		}
	default:
		// Computed and synthesis modules take no external sources.
		return nil
	}
}
