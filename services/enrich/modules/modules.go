// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package modules holds the concrete enrichment producers and the
// closed factory table that maps module ids to constructors.
//
// The table is populated at package initialization; an unknown id is
// an error from New, never a nil module. Adding a producer means
// adding a constructor here and a catalog entry in the graph config.
package modules

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/prospectiq/enrich/services/enrich/module"
	"github.com/prospectiq/enrich/services/enrich/registry"
)

// Module ids for the built-in producers.
const (
	IDCompanyContext = "m01_company_context"
	IDWebTraffic     = "m03_web_traffic"
	IDExecIntel      = "m05_exec_intel"
	IDBuyerMap       = "m10_buyer_map"
	IDICPScoring     = "m15_icp_scoring"
)

// Constructor builds a module wired to the given data sources. Modules
// that perform no external I/O ignore the sources.
type Constructor func(sources ...module.Source) module.Module

// factories is the closed table. Keys are module ids.
var factories = map[string]Constructor{
	IDCompanyContext: NewCompanyContext,
	IDWebTraffic:     NewWebTraffic,
	IDExecIntel:      NewExecIntel,
	IDBuyerMap:       NewBuyerMap,
	IDICPScoring:     NewICPScoring,
}

// New constructs the module registered under id.
//
// Outputs:
//
//	module.Module - The constructed module.
//	error - Non-nil when id has no constructor.
func New(id string, sources ...module.Source) (module.Module, error) {
	ctor, ok := factories[id]
	if !ok {
		return nil, fmt.Errorf("no module constructor registered for %q", id)
	}
	return ctor(sources...), nil
}

// IDs returns the known module ids in lexicographic order.
func IDs() []string {
	ids := make([]string, 0, len(factories))
	for id := range factories {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// BuildRegistry registers every built-in module's definition and
// finalizes the registry.
//
// Description:
//
//	Convenience for tests and fixture runs. Production deployments
//	build the registry from the yaml graph config instead, which may
//	cover modules this binary does not construct.
func BuildRegistry() (*registry.Registry, error) {
	reg := registry.New()
	for _, id := range IDs() {
		m, err := New(id)
		if err != nil {
			return nil, err
		}
		if err := reg.Register(m.Definition()); err != nil {
			return nil, fmt.Errorf("register %s: %w", id, err)
		}
	}
	if err := reg.Finalize(); err != nil {
		return nil, err
	}
	return reg, nil
}

// decodePayload converts an upstream result's data into T.
//
// Fresh results carry the typed payload directly; results read back
// from the persistent cache carry the JSON-loosened map form. Both
// decode the same way here.
func decodePayload[T any](res module.Result) (T, error) {
	var out T
	if typed, ok := res.Data.(T); ok {
		return typed, nil
	}
	raw, err := json.Marshal(res.Data)
	if err != nil {
		return out, fmt.Errorf("encode %s payload: %w", res.ModuleID, err)
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("decode %s payload: %w", res.ModuleID, err)
	}
	return out, nil
}

// upstream returns the dependency result for id, or an
// ErrDependencyUnavailable-wrapping error when the entry is absent.
func upstream(deps module.Results, moduleID, depID string) (module.Result, error) {
	res, ok := deps[depID]
	if !ok {
		return module.Result{}, fmt.Errorf("module %s: dependency %s: %w",
			moduleID, depID, module.ErrDependencyUnavailable)
	}
	return res, nil
}

// Raw payloads arrive from heterogeneous sources, and numbers that
// crossed a JSON boundary come back as float64. The coercions below
// keep TransformData implementations total: a missing or mistyped
// field yields the zero value, never an error.

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}

func asFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	default:
		return 0
	}
}

func asTime(v any) time.Time {
	switch ts := v.(type) {
	case time.Time:
		return ts
	case string:
		parsed, err := time.Parse(time.RFC3339, ts)
		if err != nil {
			return time.Time{}
		}
		return parsed
	default:
		return time.Time{}
	}
}
