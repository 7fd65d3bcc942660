// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prospectiq/enrich/services/enrich/registry"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// TestLoadDefaultsAndOverrides verifies the empty-path defaults and
// partial-file overlay behavior.
func TestLoadDefaultsAndOverrides(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Concurrency.MaxConcurrency)
	assert.True(t, cfg.Cache.InMemory)

	path := writeFile(t, "engine.yaml", `
concurrency:
  max_concurrency: 8
cache:
  in_memory: false
  dir: /var/lib/enrich
`)
	cfg, err = Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Concurrency.MaxConcurrency)
	assert.Equal(t, "/var/lib/enrich", cfg.Cache.Dir)
	// Untouched sections keep their defaults.
	assert.Equal(t, 10, cfg.Fetch.Burst)
}

// TestLoadRejectsInvalid covers field validation and the cache dir
// cross-field rule.
func TestLoadRejectsInvalid(t *testing.T) {
	t.Run("bad rate", func(t *testing.T) {
		path := writeFile(t, "engine.yaml", "fetch:\n  rate_per_second: -1\n")
		_, err := Load(path)
		require.Error(t, err)
	})

	t.Run("persistent cache without dir", func(t *testing.T) {
		path := writeFile(t, "engine.yaml", "cache:\n  in_memory: false\n")
		_, err := Load(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cache.dir")
	})
}

const sampleGraph = `
modules:
  - id: m01_company_context
    name: Company Context
    wave: 1
    source_type: api
    cache_ttl: 168h
  - id: m05_exec_intel
    name: Executive Intelligence
    wave: 2
    depends_on: [m01_company_context]
    source_type: api
    cache_ttl: 168h
`

// TestLoadGraphBuildsRegistry verifies parse, validation, and the
// conversion into a finalized registry.
func TestLoadGraphBuildsRegistry(t *testing.T) {
	path := writeFile(t, "modules.yaml", sampleGraph)

	graph, err := LoadGraph(path)
	require.NoError(t, err)
	require.Len(t, graph.Modules, 2)
	assert.Equal(t, 7*24*time.Hour, graph.Modules[0].CacheTTL.Std())

	reg, err := graph.BuildRegistry()
	require.NoError(t, err)
	assert.True(t, reg.Finalized())

	def, err := reg.Get("m05_exec_intel")
	require.NoError(t, err)
	assert.Equal(t, registry.SourceAPI, def.SourceType)
	assert.Equal(t, []string{"m01_company_context"}, def.DependsOn)
}

// TestLoadGraphRejectsBadIDs verifies the custom module_id rule.
func TestLoadGraphRejectsBadIDs(t *testing.T) {
	path := writeFile(t, "modules.yaml", `
modules:
  - id: CompanyContext
    name: Company Context
    wave: 1
    source_type: api
    cache_ttl: 1h
`)
	_, err := LoadGraph(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "module_id")
}

// TestLoadGraphSurfacesGraphViolations verifies registry-level checks
// still fire through the config path.
func TestLoadGraphSurfacesGraphViolations(t *testing.T) {
	path := writeFile(t, "modules.yaml", `
modules:
  - id: m01_company_context
    name: Company Context
    wave: 1
    depends_on: [m05_exec_intel]
    source_type: api
    cache_ttl: 1h
  - id: m05_exec_intel
    name: Executive Intelligence
    wave: 2
    depends_on: [m01_company_context]
    source_type: api
    cache_ttl: 1h
`)
	graph, err := LoadGraph(path)
	require.NoError(t, err)

	_, err = graph.BuildRegistry()
	require.Error(t, err)
	var gerr *registry.GraphError
	assert.ErrorAs(t, err, &gerr)
}
