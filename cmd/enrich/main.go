// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command enrich runs domain enrichment jobs from the terminal.
//
// Usage:
//
//	enrich modules                      # list the built-in catalog
//	enrich plan --graph modules.yaml    # show the wave plan for a graph
//	enrich run acme.io                  # enrich a domain end to end
//	enrich run acme.io -m m05_exec_intel --force
package main

import (
	"log/slog"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
