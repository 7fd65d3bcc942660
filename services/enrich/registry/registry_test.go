// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package registry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func def(id string, wave int, deps ...string) Definition {
	return Definition{
		ModuleID:   id,
		Name:       id,
		Wave:       wave,
		DependsOn:  deps,
		SourceType: SourceAPI,
		CacheTTL:   time.Hour,
	}
}

// TestRegisterRejectsDuplicates verifies duplicate ids are refused.
func TestRegisterRejectsDuplicates(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(def("m01_company_context", 1)))

	err := r.Register(def("m01_company_context", 1))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicateModule)
}

// TestRegisterValidatesDefinition verifies per-definition checks.
func TestRegisterValidatesDefinition(t *testing.T) {
	r := New()

	t.Run("empty id", func(t *testing.T) {
		assert.Error(t, r.Register(def("", 1)))
	})

	t.Run("wave below one", func(t *testing.T) {
		err := r.Register(def("m01_company_context", 0))
		require.Error(t, err)
		_, ok := AsGraphError(err)
		assert.True(t, ok)
	})

	t.Run("self dependency", func(t *testing.T) {
		err := r.Register(def("m02_loop", 2, "m02_loop"))
		require.Error(t, err)
	})

	t.Run("unknown source type", func(t *testing.T) {
		d := def("m03_bad", 1)
		d.SourceType = "carrier-pigeon"
		assert.Error(t, r.Register(d))
	})
}

// TestFinalizeRejectsUnregisteredDependency verifies dangling edges fail.
func TestFinalizeRejectsUnregisteredDependency(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(def("m05_exec_intel", 2, "m01_company_context")))

	err := r.Finalize()
	require.Error(t, err)
	ge, ok := AsGraphError(err)
	require.True(t, ok)
	assert.Equal(t, "m05_exec_intel", ge.ModuleID)
	assert.False(t, r.Finalized())
}

// TestFinalizeRejectsCycle verifies the cycle path is reported.
func TestFinalizeRejectsCycle(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(def("m01_a", 1, "m03_c")))
	require.NoError(t, r.Register(def("m02_b", 2, "m01_a")))
	require.NoError(t, r.Register(def("m03_c", 3, "m02_b")))

	err := r.Finalize()
	require.Error(t, err)
	ge, ok := AsGraphError(err)
	require.True(t, ok)
	assert.NotEmpty(t, ge.Cycle)
	// The cycle closes on its first element.
	assert.Equal(t, ge.Cycle[0], ge.Cycle[len(ge.Cycle)-1])
}

// TestFinalizeEnforcesWaveInvariant verifies wave(m) > wave(dep) for all m.
func TestFinalizeEnforcesWaveInvariant(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(def("m01_company_context", 2)))
	require.NoError(t, r.Register(def("m05_exec_intel", 2, "m01_company_context")))

	err := r.Finalize()
	require.Error(t, err)
	ge, ok := AsGraphError(err)
	require.True(t, ok)
	assert.Equal(t, "m05_exec_intel", ge.ModuleID)
}

// TestLookupsAfterFinalize verifies Get and ByWave behavior.
func TestLookupsAfterFinalize(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(def("m01_company_context", 1)))
	require.NoError(t, r.Register(def("m03_web_traffic", 1)))
	require.NoError(t, r.Register(def("m05_exec_intel", 2, "m01_company_context")))

	// Lookups before finalize are refused.
	_, err := r.Get("m01_company_context")
	assert.ErrorIs(t, err, ErrNotFinalized)

	require.NoError(t, r.Finalize())

	got, err := r.Get("m05_exec_intel")
	require.NoError(t, err)
	assert.Equal(t, []string{"m01_company_context"}, got.DependsOn)

	_, err = r.Get("m99_missing")
	assert.ErrorIs(t, err, ErrUnknownModule)

	wave1, err := r.ByWave(1)
	require.NoError(t, err)
	require.Len(t, wave1, 2)
	assert.Equal(t, "m01_company_context", wave1[0].ModuleID)
	assert.Equal(t, "m03_web_traffic", wave1[1].ModuleID)

	// Registration after finalize is refused.
	err = r.Register(def("m09_late", 3))
	assert.ErrorIs(t, err, ErrFinalized)
}
