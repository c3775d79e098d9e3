// Sutra Ledger is the budget enforcement and cost-tracking engine for LLM
// workloads.
//
// It meters per-request LLM spend, aggregates it against multi-scope budgets
// (user, team, organization), and enforces graduated actions (warn, restrict,
// require approval, block) as spend approaches configured thresholds, with
// temporary admin overrides and linear spend forecasting.
//
// Usage:
//
//	# Start the engine with default configuration
//	sutraledger run
//
//	# Start with a custom configuration file
//	sutraledger run --config /path/to/config.yaml
//
//	# Print a budget report for a user
//	sutraledger report --user user-123
//
//	# Validate a configuration file
//	sutraledger validate --config config.yaml
//
//	# Show version information
//	sutraledger version
package main

func main() {
	Execute()
}
