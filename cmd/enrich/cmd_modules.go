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

	"github.com/prospectiq/enrich/services/enrich/modules"
)

// modulesCmd lists the built-in module catalog with placement and
// caching details.
var modulesCmd = &cobra.Command{
	Use:   "modules",
	Short: "List the built-in module catalog",
	RunE:  runModulesCommand,
}

func runModulesCommand(cmd *cobra.Command, args []string) error {
	for _, id := range modules.IDs() {
		m, err := modules.New(id)
		if err != nil {
			return err
		}
		def := m.Definition()
		deps := "-"
		if len(def.DependsOn) > 0 {
			deps = strings.Join(def.DependsOn, ", ")
		}
		fmt.Printf("%-24s wave %d  %-10s ttl %-8s deps: %s\n",
			def.ModuleID, def.Wave, def.SourceType, def.CacheTTL, deps)
	}
	return nil
}
