// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prospectiq/enrich/services/enrich/cache"
	"github.com/prospectiq/enrich/services/enrich/citation"
	"github.com/prospectiq/enrich/services/enrich/events"
	"github.com/prospectiq/enrich/services/enrich/module"
	"github.com/prospectiq/enrich/services/enrich/modules"
)

// fixtureService wires a full service over fixture sources, with
// per-module source overrides for failure scenarios.
func fixtureService(t *testing.T, overrides map[string][]module.Source) *Service {
	t.Helper()

	reg, err := modules.BuildRegistry()
	require.NoError(t, err)

	var mods []module.Module
	for _, id := range modules.IDs() {
		sources, ok := overrides[id]
		if !ok {
			sources = modules.FixtureSources(id)
		}
		m, err := modules.New(id, sources...)
		require.NoError(t, err)
		mods = append(mods, m)
	}

	runner, err := module.NewRunner(cache.NewMemoryStore(), citation.New(), nil)
	require.NoError(t, err)

	svc, err := NewService(reg, runner, mods, events.NewTracker(), nil, WithMaxConcurrency(2))
	require.NoError(t, err)
	return svc
}

func brokenSource(name string) []module.Source {
	return []module.Source{&module.StaticSource{SourceName: name, Err: errors.New("upstream 503")}}
}

// TestRunCompletesAndSynthesizesScore runs the whole catalog against
// the acme.io fixtures and checks the synthesized score lands at the
// full 100 points.
func TestRunCompletesAndSynthesizesScore(t *testing.T) {
	svc := fixtureService(t, nil)

	j, err := svc.Submit("acme.io")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, j.Status)

	done, err := svc.Run(context.Background(), j.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, done.Status)
	assert.Empty(t, done.Errors)

	for id, st := range done.ModuleStatuses {
		assert.Equal(t, ModuleSucceeded, st.State, id)
	}

	res, ok := done.Results[modules.IDICPScoring]
	require.True(t, ok)
	score, ok := res.Data.(modules.ICPScore)
	require.True(t, ok)
	assert.Equal(t, 100, score.Score)
	assert.Empty(t, score.Missing)
	// Synthesis cites the company-context source it is anchored on.
	assert.Equal(t, "https://api.companies.example/v1/acme.io", res.Source.URL)
}

// TestRunPartialOnSiblingFailure breaks one wave-1 module and checks
// its sibling, and everything not depending on it, still completes.
func TestRunPartialOnSiblingFailure(t *testing.T) {
	svc := fixtureService(t, map[string][]module.Source{
		modules.IDWebTraffic: brokenSource("traffic-panel"),
	})

	j, err := svc.Submit("acme.io")
	require.NoError(t, err)
	done, err := svc.Run(context.Background(), j.ID)
	require.NoError(t, err)

	assert.Equal(t, StatusPartial, done.Status)
	assert.Equal(t, ModuleFailed, done.ModuleStatuses[modules.IDWebTraffic].State)
	assert.Equal(t, ModuleSucceeded, done.ModuleStatuses[modules.IDCompanyContext].State)
	assert.Equal(t, ModuleSucceeded, done.ModuleStatuses[modules.IDExecIntel].State)

	require.Len(t, done.Errors, 1)
	assert.Equal(t, modules.IDWebTraffic, done.Errors[0].ModuleID)

	// Downstream synthesis ran with the traffic component absent.
	res, ok := done.Results[modules.IDICPScoring]
	require.True(t, ok)
	score, ok := res.Data.(modules.ICPScore)
	require.True(t, ok)
	assert.Equal(t, 70, score.Score)
	assert.Contains(t, score.Missing, modules.IDWebTraffic)
}

// TestRunFailedWhenNothingSucceeds breaks all of wave 1, which starves
// every later wave.
func TestRunFailedWhenNothingSucceeds(t *testing.T) {
	svc := fixtureService(t, map[string][]module.Source{
		modules.IDCompanyContext: brokenSource("companies-api"),
		modules.IDWebTraffic:     brokenSource("traffic-panel"),
	})

	j, err := svc.Submit("acme.io")
	require.NoError(t, err)
	done, err := svc.Run(context.Background(), j.ID)
	require.NoError(t, err)

	assert.Equal(t, StatusFailed, done.Status)
	assert.Empty(t, done.Results)
	for id, st := range done.ModuleStatuses {
		assert.Equal(t, ModuleFailed, st.State, id)
	}

	// Starved downstream modules fail with the dependency sentinel.
	found := false
	for _, jobErr := range done.Errors {
		if jobErr.ModuleID == modules.IDExecIntel {
			assert.Contains(t, jobErr.Err, module.ErrDependencyUnavailable.Error())
			found = true
		}
	}
	assert.True(t, found)
}

// TestCancelObservedAtWaveBoundary cancels while wave 2 is announced;
// that wave still finishes and everything after is skipped.
func TestCancelObservedAtWaveBoundary(t *testing.T) {
	svc := fixtureService(t, nil)

	j, err := svc.Submit("acme.io")
	require.NoError(t, err)

	svc.Tracker().Subscribe(func(event *events.Event) {
		data, ok := event.Data.(events.WaveData)
		if ok && data.Index == 1 {
			require.NoError(t, svc.Cancel(j.ID))
		}
	}, events.TypeWaveStarted)

	done, err := svc.Run(context.Background(), j.ID)
	require.NoError(t, err)

	assert.Equal(t, StatusCancelled, done.Status)
	// Wave 1 (index 1) holds the executive module; it ran to completion.
	assert.Equal(t, ModuleSucceeded, done.ModuleStatuses[modules.IDExecIntel].State)
	// Waves after the boundary never started.
	assert.Equal(t, ModuleSkipped, done.ModuleStatuses[modules.IDBuyerMap].State)
	assert.Equal(t, ModuleSkipped, done.ModuleStatuses[modules.IDICPScoring].State)
	assert.NotContains(t, done.Results, modules.IDBuyerMap)
}

// TestTargetedSubmitRunsClosure verifies target expansion to the
// dependency closure and nothing more.
func TestTargetedSubmitRunsClosure(t *testing.T) {
	svc := fixtureService(t, nil)

	j, err := svc.Submit("acme.io", WithModules(modules.IDExecIntel))
	require.NoError(t, err)
	done, err := svc.Run(context.Background(), j.ID)
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, done.Status)
	assert.Contains(t, done.ModuleStatuses, modules.IDCompanyContext)
	assert.Contains(t, done.ModuleStatuses, modules.IDExecIntel)
	assert.NotContains(t, done.ModuleStatuses, modules.IDWebTraffic)
	assert.NotContains(t, done.ModuleStatuses, modules.IDICPScoring)
}

// TestJobLifecycleGuards covers the not-found and double-run paths.
func TestJobLifecycleGuards(t *testing.T) {
	svc := fixtureService(t, nil)

	t.Run("unknown job", func(t *testing.T) {
		_, err := svc.Status("nope")
		assert.ErrorIs(t, err, ErrJobNotFound)
		_, err = svc.Run(context.Background(), "nope")
		assert.ErrorIs(t, err, ErrJobNotFound)
		assert.ErrorIs(t, svc.Cancel("nope"), ErrJobNotFound)
	})

	t.Run("unknown target module", func(t *testing.T) {
		_, err := svc.Submit("acme.io", WithModules("m99_unknown"))
		require.Error(t, err)
	})

	t.Run("run twice", func(t *testing.T) {
		j, err := svc.Submit("acme.io")
		require.NoError(t, err)
		_, err = svc.Run(context.Background(), j.ID)
		require.NoError(t, err)
		_, err = svc.Run(context.Background(), j.ID)
		assert.ErrorIs(t, err, ErrJobNotPending)
	})

	t.Run("cancel finished job", func(t *testing.T) {
		j, err := svc.Submit("acme.io")
		require.NoError(t, err)
		_, err = svc.Run(context.Background(), j.ID)
		require.NoError(t, err)
		assert.ErrorIs(t, svc.Cancel(j.ID), ErrJobFinished)
	})
}

// TestSubscribeStreamsJobEvents verifies the per-job stream sees the
// lifecycle in order.
func TestSubscribeStreamsJobEvents(t *testing.T) {
	svc := fixtureService(t, nil)

	j, err := svc.Submit("acme.io", WithModules(modules.IDCompanyContext))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := svc.Subscribe(ctx, j.ID)
	require.NoError(t, err)

	_, err = svc.Run(context.Background(), j.ID)
	require.NoError(t, err)
	cancel()

	var types []events.Type
	for event := range ch {
		types = append(types, event.Type)
	}
	require.NotEmpty(t, types)
	assert.Equal(t, events.TypeJobStarted, types[0])
	assert.Equal(t, events.TypeJobCompleted, types[len(types)-1])
	assert.Contains(t, types, events.TypeModuleCompleted)
}
