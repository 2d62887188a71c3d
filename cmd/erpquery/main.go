// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command erpquery resolves natural-language business questions against an
// Odoo backend from the terminal.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Flag values shared by the subcommands.
var (
	odooURL      string
	odooDatabase string
	odooUsername string
	odooPassword string
	jsonOutput   bool
	verbose      bool
	interactive  bool
	requestRate  float64
	cacheDir     string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "erpquery",
		Short: "Resolve natural-language queries against an Odoo backend",
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		},
	}

	rootCmd.PersistentFlags().StringVar(&odooURL, "url", envOr("ODOO_URL", "http://localhost:8069"), "Odoo server base URL")
	rootCmd.PersistentFlags().StringVar(&odooDatabase, "db", envOr("ODOO_DB", ""), "Odoo database name")
	rootCmd.PersistentFlags().StringVar(&odooUsername, "user", envOr("ODOO_USER", ""), "Odoo username")
	rootCmd.PersistentFlags().StringVar(&odooPassword, "password", envOr("ODOO_PASSWORD", ""), "Odoo password or API key")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	resolveCmd := &cobra.Command{
		Use:   "resolve [query]",
		Short: "Resolve a query and print the result",
		Run:   runResolveCommand,
	}
	resolveCmd.Flags().BoolVar(&jsonOutput, "json", false, "print the raw result as JSON")
	resolveCmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "read queries from stdin until EOF")
	resolveCmd.Flags().Float64Var(&requestRate, "rps", 0, "cap outbound backend requests per second (0 disables)")
	resolveCmd.Flags().StringVar(&cacheDir, "cache-dir", envOr("ERPQUERY_CACHE_DIR", ""), "directory for the persistent result cache (empty keeps results in memory only)")
	rootCmd.AddCommand(resolveCmd)

	statsCmd := &cobra.Command{
		Use:   "models",
		Short: "List the models the engine may query",
		Run:   runModelsCommand,
	}
	rootCmd.AddCommand(statsCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
