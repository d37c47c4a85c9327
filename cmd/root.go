// Package cmd implements the lifeos CLI command tree.
// This file defines the root command and registers all global persistent flags.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/lifeos/internal/app"
	"github.com/derickschaefer/lifeos/internal/config"
)

// globalFlags holds the parsed values of all persistent (global) flags.
// Commands read from this struct via the deps they receive.
var globalFlags struct {
	DBPath  string
	Format  string
	Out     string
	Quiet   bool
	Verbose bool
	Debug   bool
}

// rootCmd is the base command. Running `lifeos` with no subcommand
// prints help.
var rootCmd = &cobra.Command{
	Use:   "lifeos",
	Short: "lifeos: find patterns in daily health metrics and forecast energy",
	Long: `lifeos analyzes daily health metrics (sleep, readiness, activity, meetings)
and self-reported energy. It detects correlations, trends, day-of-week effects
and recent changes, forecasts tomorrow's energy with a regression model, and
scores those forecasts against an alternative source.

Data lives in a local bbolt database. Input is JSONL, one record or journal
entry per line:

  {"date":"2024-03-01","type":"sleep","value":7.4,"metadata":{"deep_sleep_hours":1.3}}
  {"date":"2024-03-01","energy":4,"notes":"slow afternoon"}

Quick start:
  lifeos records ingest < export.jsonl   # load metrics and journal
  lifeos patterns detect                 # find and store patterns
  lifeos energy train                    # fit the energy model
  lifeos energy predict                  # forecast today's energy`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute is the entry point called by main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// buildDeps resolves config and constructs the dependency container.
// Called at the start of each command's RunE.
func buildDeps() (*app.Deps, error) {
	cfg, err := config.Load(globalFlags.DBPath)
	if err != nil {
		return nil, err
	}

	// Apply CLI flag overrides
	cfg.Quiet = globalFlags.Quiet
	cfg.Verbose = globalFlags.Verbose
	cfg.Debug = globalFlags.Debug

	if globalFlags.Format != "" {
		cfg.Format = globalFlags.Format
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return app.New(cfg), nil
}

func init() {
	pf := rootCmd.PersistentFlags()

	pf.StringVar(&globalFlags.DBPath, "db", "",
		"database path (overrides env LIFEOS_DB_PATH and config.json)")
	pf.StringVar(&globalFlags.Format, "format", "",
		"output format: table|json|jsonl|csv|tsv|md (default: table)")
	pf.StringVar(&globalFlags.Out, "out", "",
		"write output to file instead of stdout")
	pf.BoolVar(&globalFlags.Quiet, "quiet", false,
		"suppress all non-error output")
	pf.BoolVar(&globalFlags.Verbose, "verbose", false,
		"show progress logs and timing stats after output")
	pf.BoolVar(&globalFlags.Debug, "debug", false,
		"log skipped candidates and solver details")
}
