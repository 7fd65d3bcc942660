// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package waves turns the module dependency graph into an ordered
// sequence of parallel-execution groups.
//
// The grouping is computed from actual dependency depth (Kahn-style
// peeling of zero-indegree nodes), not from the declared wave numbers in
// the registry. The registry already enforces that declared waves are
// consistent with the edges; computing from depth here means a
// mis-declared catalog can never reorder execution.
//
// Plans are computed fresh per run and are cheap: O(V+E).
package waves

import (
	"fmt"
	"sort"

	"github.com/prospectiq/enrich/services/enrich/registry"
)

// Plan is an ordered list of waves. Each wave is a lexicographically
// sorted set of module ids whose dependencies are all satisfied by
// earlier waves. Plans are immutable once returned.
type Plan struct {
	Waves [][]string
}

// Modules returns every module id in the plan, in wave-then-id order.
func (p Plan) Modules() []string {
	var out []string
	for _, w := range p.Waves {
		out = append(out, w...)
	}
	return out
}

// Len returns the number of waves.
func (p Plan) Len() int {
	return len(p.Waves)
}

// Contains reports whether the plan schedules the given module.
func (p Plan) Contains(id string) bool {
	for _, w := range p.Waves {
		for _, m := range w {
			if m == id {
				return true
			}
		}
	}
	return false
}

// Resolve computes the wave execution plan for a finalized registry.
//
// Description:
//
//	With no targets, the plan covers every registered module. With
//	targets, it covers exactly the transitive dependency closure of the
//	targets — the minimal wave sequence that can produce them. Two
//	modules connected by a dependency edge never share a wave, and the
//	union of all waves equals the covered set with no duplicates.
//
// Inputs:
//
//	reg - A finalized registry. ErrNotFinalized otherwise.
//	targets - Optional module ids to narrow the plan to.
//
// Outputs:
//
//	Plan - The ordered wave groups.
//	error - Unknown target or unfinalized registry.
func Resolve(reg *registry.Registry, targets ...string) (Plan, error) {
	if !reg.Finalized() {
		return Plan{}, registry.ErrNotFinalized
	}

	selected, err := closure(reg, targets)
	if err != nil {
		return Plan{}, err
	}

	// Peel zero-indegree layers. Depth within the selected set equals
	// depth in the full graph because a dependency closure is closed
	// under DependsOn.
	indegree := make(map[string]int, len(selected))
	dependents := make(map[string][]string, len(selected))
	for id := range selected {
		def, err := reg.Get(id)
		if err != nil {
			return Plan{}, err
		}
		indegree[id] = len(def.DependsOn)
		for _, dep := range def.DependsOn {
			dependents[dep] = append(dependents[dep], id)
		}
	}

	var plan Plan
	current := make([]string, 0, len(selected))
	for id, deg := range indegree {
		if deg == 0 {
			current = append(current, id)
		}
	}

	placed := 0
	for len(current) > 0 {
		sort.Strings(current)
		plan.Waves = append(plan.Waves, current)
		placed += len(current)

		var next []string
		for _, id := range current {
			for _, dependent := range dependents[id] {
				indegree[dependent]--
				if indegree[dependent] == 0 {
					next = append(next, dependent)
				}
			}
		}
		current = next
	}

	// Finalize rejects cycles, so every selected module must be placed.
	if placed != len(selected) {
		return Plan{}, fmt.Errorf("waves: %d of %d modules unreachable in plan", len(selected)-placed, len(selected))
	}
	return plan, nil
}

// closure returns the target set plus every transitive dependency. With
// no targets it returns the full registered set.
func closure(reg *registry.Registry, targets []string) (map[string]struct{}, error) {
	selected := make(map[string]struct{})
	if len(targets) == 0 {
		for _, id := range reg.IDs() {
			selected[id] = struct{}{}
		}
		return selected, nil
	}

	var visit func(id string) error
	visit = func(id string) error {
		if _, seen := selected[id]; seen {
			return nil
		}
		def, err := reg.Get(id)
		if err != nil {
			return err
		}
		selected[id] = struct{}{}
		for _, dep := range def.DependsOn {
			if err := visit(dep); err != nil {
				return err
			}
		}
		return nil
	}
	for _, id := range targets {
		if err := visit(id); err != nil {
			return nil, err
		}
	}
	return selected, nil
}
