package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/vedprakash-m/sutra-ledger/pkg/config"
	"github.com/vedprakash-m/sutra-ledger/pkg/pricing"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration",
	Long: `Validate the configuration file and, if one is configured, the pricing file.

The command loads the configuration exactly as the run command would,
including environment overrides, and reports the first problem it finds.

Examples:
  # Validate the default config
  sutraledger validate

  # Validate a specific config file
  sutraledger validate --config /etc/sutraledger/config.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := validateConfigFile(cfgFile); err != nil {
			return err
		}
		fmt.Println("✓ Configuration valid")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

// validateConfigFile loads and validates a config file, including a parse of
// the pricing file when one is configured.
func validateConfigFile(path string) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	if cfg.Pricing.File != "" {
		table := pricing.New(slog.New(slog.NewTextHandler(io.Discard, nil)))
		if err := table.LoadFile(cfg.Pricing.File); err != nil {
			return fmt.Errorf("pricing file invalid: %w", err)
		}
	}

	return nil
}
