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
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/prospectiq/enrich/services/enrich/config"
	"github.com/prospectiq/enrich/services/enrich/modules"
	"github.com/prospectiq/enrich/services/enrich/registry"
	"github.com/prospectiq/enrich/services/enrich/waves"
)

var (
	planGraphPath string   // External catalog yaml; built-ins when empty
	planTargets   []string // Target module ids
)

// planCmd prints the wave plan without running anything. With --graph
// it validates an external catalog, which is how a deployment checks a
// new module file before shipping it.
var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show the wave execution plan",
	RunE:  runPlanCommand,
}

func init() {
	planCmd.Flags().StringVar(&planGraphPath, "graph", "",
		"Module graph yaml; the built-in catalog when omitted")
	planCmd.Flags().StringSliceVarP(&planTargets, "modules", "m", nil,
		"Plan only these targets and their dependency closure")
}

func runPlanCommand(cmd *cobra.Command, args []string) error {
	var reg *registry.Registry
	if planGraphPath != "" {
		graph, err := config.LoadGraph(planGraphPath)
		if err != nil {
			return err
		}
		reg, err = graph.BuildRegistry()
		if err != nil {
			return err
		}
	} else {
		var err error
		reg, err = modules.BuildRegistry()
		if err != nil {
			return err
		}
	}

	plan, err := waves.Resolve(reg, planTargets...)
	if err != nil {
		return err
	}

	for i, wave := range plan.Waves {
		fmt.Printf("wave %d: %s\n", i+1, strings.Join(wave, ", "))
	}
	return nil
}
