// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/prospectiq/enrich/services/enrich/cache"
	"github.com/prospectiq/enrich/services/enrich/citation"
	"github.com/prospectiq/enrich/services/enrich/config"
	"github.com/prospectiq/enrich/services/enrich/events"
	"github.com/prospectiq/enrich/services/enrich/module"
	"github.com/prospectiq/enrich/services/enrich/modules"
	"github.com/prospectiq/enrich/services/enrich/orchestrator"
	badgerstore "github.com/prospectiq/enrich/services/enrich/storage/badger"
)

var (
	runModules []string // Target module ids (closure is added automatically)
	runForce   bool     // Bypass cache reads
	runJSON    bool     // Print the terminal job as JSON
)

// runCmd enriches one domain end to end against the built-in catalog.
//
// Data sources are the packaged fixtures; live collaborators plug in
// behind the module.Source interface outside this binary.
var runCmd = &cobra.Command{
	Use:   "run <domain>",
	Short: "Run an enrichment job for a domain",
	Args:  cobra.ExactArgs(1),
	RunE:  runEnrichJob,
}

func init() {
	runCmd.Flags().StringSliceVarP(&runModules, "modules", "m", nil,
		"Target module ids; dependencies are scheduled automatically")
	runCmd.Flags().BoolVar(&runForce, "force", false,
		"Bypass cache reads and refetch every module")
	runCmd.Flags().BoolVar(&runJSON, "json", false,
		"Print the finished job as JSON")
}

func runEnrichJob(cmd *cobra.Command, args []string) error {
	domain := args[0]

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	svc, watermarks, cleanup, err := buildService(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := []orchestrator.SubmitOption{}
	if len(runModules) > 0 {
		opts = append(opts, orchestrator.WithModules(runModules...))
	}
	if runForce {
		opts = append(opts, orchestrator.WithForce())
	}

	j, err := svc.Submit(domain, opts...)
	if err != nil {
		return err
	}

	// Cancel at the next wave boundary on the first signal; the second
	// signal kills the context outright.
	go func() {
		<-ctx.Done()
		_ = svc.Cancel(j.ID)
	}()

	done, err := svc.Run(context.Background(), j.ID)
	if err != nil {
		return err
	}

	if runJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(done)
	}

	fmt.Printf("job %s: %s\n", done.ID, done.Status)
	for _, id := range modules.IDs() {
		st, ok := done.ModuleStatuses[id]
		if !ok {
			continue
		}
		line := fmt.Sprintf("  %-24s %s", id, st.State)
		if st.FromCache {
			line += " (cached)"
		}
		if last, ok, err := watermarks.LastSuccess(context.Background(), id, domain); err == nil && ok {
			line += fmt.Sprintf("  last success %s", last.UTC().Format("2006-01-02T15:04:05Z"))
		}
		if st.Error != "" {
			line += "  " + st.Error
		}
		fmt.Println(line)
	}
	if res, ok := done.Results[modules.IDICPScoring]; ok {
		if score, ok := res.Data.(modules.ICPScore); ok {
			fmt.Printf("icp score: %d\n", score.Score)
		}
	}
	return nil
}

// buildService wires the full engine from config: store, citation
// gate, runner, fixture-backed modules, orchestrator. The watermark
// store is returned so the command can report each module's last
// successful enrichment alongside the job summary.
func buildService(cfg config.Config) (*orchestrator.Service, module.WatermarkStore, func(), error) {
	cleanup := func() {}

	var store module.CacheStore
	var watermarks module.WatermarkStore
	if cfg.Cache.InMemory {
		mem := cache.NewMemoryStore()
		store, watermarks = mem, mem
	} else {
		dbCfg := badgerstore.DefaultConfig()
		dbCfg.Path = cfg.Cache.Dir
		dbCfg.Logger = slog.Default()
		db, err := badgerstore.OpenDB(dbCfg)
		if err != nil {
			return nil, nil, nil, err
		}
		cleanup = func() { _ = db.Close() }
		persistent, err := cache.NewStore(db)
		if err != nil {
			cleanup()
			return nil, nil, nil, err
		}
		store, watermarks = persistent, persistent
	}

	limiter := rate.NewLimiter(rate.Limit(cfg.Fetch.RatePerSecond), cfg.Fetch.Burst)
	runner, err := module.NewRunner(store, citation.New(), slog.Default(),
		module.WithLimiter(limiter),
		module.WithWatermarks(watermarks),
	)
	if err != nil {
		cleanup()
		return nil, nil, nil, err
	}

	reg, err := modules.BuildRegistry()
	if err != nil {
		cleanup()
		return nil, nil, nil, err
	}

	retry := module.RetryPolicy{Delay: cfg.Fetch.FallbackDelay.Std()}
	var mods []module.Module
	for _, id := range modules.IDs() {
		m, err := modules.New(id, modules.FixtureSources(id)...)
		if err != nil {
			cleanup()
			return nil, nil, nil, err
		}
		if rc, ok := m.(interface{ SetRetry(module.RetryPolicy) }); ok {
			rc.SetRetry(retry)
		}
		mods = append(mods, m)
	}

	svc, err := orchestrator.NewService(reg, runner, mods, events.NewTracker(), slog.Default(),
		orchestrator.WithMaxConcurrency(cfg.Concurrency.MaxConcurrency))
	if err != nil {
		cleanup()
		return nil, nil, nil, err
	}
	return svc, watermarks, cleanup, nil
}
