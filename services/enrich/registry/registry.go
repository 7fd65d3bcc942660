// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package registry holds the static catalog of enrichment modules.
//
// The registry is an explicit object with a two-phase lifecycle: populate
// it with Register, then seal it with Finalize. Finalize validates the
// whole dependency graph (unknown references, cycles, wave consistency)
// so that a malformed catalog fails at startup rather than mid-run.
// After Finalize the registry is read-only and safe for concurrent use.
//
// Multiple independent registries may coexist in one process; nothing in
// this package is a singleton.
package registry

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// SourceType classifies where a module's data originates.
type SourceType string

const (
	// SourceAPI marks modules backed by a third-party API.
	SourceAPI SourceType = "api"

	// SourceWebpage marks modules backed by page scraping.
	SourceWebpage SourceType = "webpage"

	// SourceSynthesis marks modules that synthesize upstream results.
	SourceSynthesis SourceType = "synthesis"

	// SourceComputed marks modules that derive values locally.
	SourceComputed SourceType = "computed"
)

// Definition describes one module's identity, placement, and caching.
//
// Description:
//
//	Definitions are pure metadata. The executable counterpart lives in
//	the modules package; the orchestrator joins the two by module id.
//
// Thread Safety:
//
//	Definitions are value types and treated as immutable.
type Definition struct {
	// ModuleID uniquely identifies the module (e.g. "m01_company_context").
	ModuleID string

	// Name is the human-readable module name.
	Name string

	// Wave is the declared execution wave. Must be >= 1 and strictly
	// greater than the wave of every dependency.
	Wave int

	// DependsOn lists module ids whose results this module consumes.
	DependsOn []string

	// SourceType classifies the module's primary data origin.
	SourceType SourceType

	// CacheTTL bounds how long a cached result stays fresh.
	CacheTTL time.Duration
}

// Validate checks that a single definition is well-formed in isolation.
func (d Definition) Validate() error {
	if strings.TrimSpace(d.ModuleID) == "" {
		return fmt.Errorf("registry: module id is required")
	}
	if d.Wave < 1 {
		return &GraphError{ModuleID: d.ModuleID, Reason: fmt.Sprintf("wave must be >= 1, got %d", d.Wave)}
	}
	for _, dep := range d.DependsOn {
		if dep == d.ModuleID {
			return &GraphError{ModuleID: d.ModuleID, Reason: "module depends on itself"}
		}
	}
	switch d.SourceType {
	case SourceAPI, SourceWebpage, SourceSynthesis, SourceComputed:
	default:
		return fmt.Errorf("registry: %s has unknown source type %q", d.ModuleID, d.SourceType)
	}
	if d.CacheTTL < 0 {
		return fmt.Errorf("registry: %s has negative cache ttl", d.ModuleID)
	}
	return nil
}

// Registry is the catalog of module definitions and dependency edges.
//
// Thread Safety:
//
//	Safe for concurrent use. Register and Finalize serialize on an
//	internal mutex; all lookups after Finalize are lock-free reads of
//	immutable state guarded by the same mutex.
type Registry struct {
	mu        sync.RWMutex
	defs      map[string]Definition
	finalized bool
}

// New returns an empty, unfinalized registry.
func New() *Registry {
	return &Registry{defs: make(map[string]Definition)}
}

// Register adds a definition to the catalog.
//
// Inputs:
//
//	def - The module definition. ModuleID must be unique.
//
// Outputs:
//
//	error - ErrDuplicateModule if the id exists, ErrFinalized if the
//	        registry is sealed, or a validation error.
func (r *Registry) Register(def Definition) error {
	if err := def.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finalized {
		return fmt.Errorf("registry: register %s: %w", def.ModuleID, ErrFinalized)
	}
	if _, exists := r.defs[def.ModuleID]; exists {
		return fmt.Errorf("registry: %s: %w", def.ModuleID, ErrDuplicateModule)
	}
	// Defensive copy so callers can't mutate edges after registration.
	def.DependsOn = append([]string(nil), def.DependsOn...)
	r.defs[def.ModuleID] = def
	return nil
}

// Finalize seals the registry after validating the whole graph.
//
// Description:
//
//	Three checks run in order: every DependsOn entry refers to a
//	registered module, the graph is acyclic, and every module's declared
//	wave is strictly greater than the wave of each of its dependencies.
//	The first violation is returned as a *GraphError naming the
//	offending module (and, for cycles, the full cycle path).
//
// Outputs:
//
//	error - Non-nil if the graph is inconsistent. The registry stays
//	        unfinalized in that case.
func (r *Registry) Finalize() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finalized {
		return ErrFinalized
	}
	for _, id := range sortedIDs(r.defs) {
		def := r.defs[id]
		for _, dep := range def.DependsOn {
			if _, ok := r.defs[dep]; !ok {
				return &GraphError{ModuleID: id, Reason: fmt.Sprintf("depends on unregistered module %q", dep)}
			}
		}
	}
	if err := detectCycle(r.defs); err != nil {
		return err
	}
	for _, id := range sortedIDs(r.defs) {
		def := r.defs[id]
		for _, dep := range def.DependsOn {
			if def.Wave <= r.defs[dep].Wave {
				return &GraphError{
					ModuleID: id,
					Reason: fmt.Sprintf("declared wave %d is not greater than wave %d of dependency %s",
						def.Wave, r.defs[dep].Wave, dep),
				}
			}
		}
	}
	r.finalized = true
	return nil
}

// Finalized reports whether the registry has been sealed.
func (r *Registry) Finalized() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.finalized
}

// Get returns the definition for a module id.
//
// Outputs:
//
//	Definition - The definition, zero value on error.
//	error - ErrNotFinalized before Finalize, ErrUnknownModule otherwise.
func (r *Registry) Get(id string) (Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.finalized {
		return Definition{}, ErrNotFinalized
	}
	def, ok := r.defs[id]
	if !ok {
		return Definition{}, fmt.Errorf("registry: %s: %w", id, ErrUnknownModule)
	}
	return def, nil
}

// ByWave returns all definitions declared for wave n, sorted by id.
func (r *Registry) ByWave(n int) ([]Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.finalized {
		return nil, ErrNotFinalized
	}
	var out []Definition
	for _, id := range sortedIDs(r.defs) {
		if r.defs[id].Wave == n {
			out = append(out, r.defs[id])
		}
	}
	return out, nil
}

// IDs returns the sorted list of registered module ids. Usable before
// Finalize so callers can report what was registered so far.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedIDs(r.defs)
}

// Len returns the number of registered modules.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.defs)
}

func sortedIDs(defs map[string]Definition) []string {
	ids := make([]string, 0, len(defs))
	for id := range defs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// detectCycle runs DFS over the dependency edges and reports the first
// cycle found, including the path, for actionable startup errors.
func detectCycle(defs map[string]Definition) error {
	visited := make(map[string]bool, len(defs))
	inStack := make(map[string]bool, len(defs))
	path := make([]string, 0, len(defs))

	var dfs func(id string) error
	dfs = func(id string) error {
		visited[id] = true
		inStack[id] = true
		path = append(path, id)

		for _, dep := range defs[id].DependsOn {
			if !visited[dep] {
				if err := dfs(dep); err != nil {
					return err
				}
			} else if inStack[dep] {
				start := 0
				for i, n := range path {
					if n == dep {
						start = i
						break
					}
				}
				cycle := append(append([]string(nil), path[start:]...), dep)
				return &GraphError{ModuleID: dep, Cycle: cycle, Reason: "dependency cycle"}
			}
		}

		path = path[:len(path)-1]
		inStack[id] = false
		return nil
	}

	for _, id := range sortedIDs(defs) {
		if !visited[id] {
			if err := dfs(id); err != nil {
				return err
			}
		}
	}
	return nil
}
