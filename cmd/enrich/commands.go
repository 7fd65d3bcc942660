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
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Persistent flags shared by all subcommands.
var (
	configPath string // Engine config file (optional)
	logLevel   string // slog level: debug, info, warn, error
)

// rootCmd is the enrich CLI entry point.
var rootCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Wave-ordered domain enrichment engine",
	Long: `Runs dependency-ordered enrichment modules against business domains.

Modules are grouped into waves by their dependency graph; each wave runs
concurrently, later waves read the results of earlier ones, and every
result must carry a fresh source citation before it is accepted.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		switch logLevel {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
		slog.SetDefault(logger)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"Engine config file (yaml); defaults apply when omitted")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info",
		"Log level: debug, info, warn, error")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(modulesCmd)
}
