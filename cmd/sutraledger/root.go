package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "sutraledger",
	Short: "Sutra Ledger - budget enforcement and cost tracking for LLM workloads",
	Long: `Sutra Ledger is a budget enforcement and cost-tracking engine for
multi-tenant LLM workloads.

It meters every LLM call against a per-model pricing table, aggregates spend
into calendar-aligned budget periods, and decides before each call whether it
may execute:
  - Per-request cost calculation with exact decimal arithmetic
  - Budgets scoped to users, organizations and providers
  - Graduated threshold actions (warn, restrict, require approval, block)
  - Linear end-of-period spend forecasting
  - Temporary admin overrides with automatic expiry

For more information, visit: https://github.com/vedprakash-m/sutra-ledger`,
	Version: Version,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Global persistent flags (available to all subcommands)
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
