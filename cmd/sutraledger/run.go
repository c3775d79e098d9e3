package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/vedprakash-m/sutra-ledger/pkg/budget"
	"github.com/vedprakash-m/sutra-ledger/pkg/cli"
	"github.com/vedprakash-m/sutra-ledger/pkg/pricing"
)

var runFlags struct {
	logLevel string
	dryRun   bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the Sutra Ledger engine",
	Long: `Start the Sutra Ledger engine with the specified configuration.

The engine opens the configured storage backend, loads the pricing table,
starts the budget monitor and serves Prometheus metrics until interrupted.

Examples:
  # Start with default config
  sutraledger run

  # Start with custom config
  sutraledger run --config /etc/sutraledger/config.yaml

  # Validate config without starting the engine
  sutraledger run --dry-run`,
	RunE: runEngine,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting the engine")
}

func runEngine(cmd *cobra.Command, args []string) error {
	if runFlags.logLevel != "" {
		if err := setLogLevelOverride(runFlags.logLevel); err != nil {
			return err
		}
	}

	if runFlags.dryRun {
		if err := validateConfigFile(cfgFile); err != nil {
			return err
		}
		fmt.Println("✓ Configuration valid")
		return nil
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	eng, err := buildEngine(reg)
	if err != nil {
		return cli.NewCommandError("run", err)
	}
	defer eng.Close()

	fmt.Printf("Sutra Ledger v%s\n", Version)
	fmt.Printf("Loading configuration from: %s\n", cfgFile)
	fmt.Println("✓ Configuration loaded")
	fmt.Printf("✓ Storage initialized (%s)\n", eng.cfg.Storage.Driver)

	// Hot-reload the pricing file on change.
	if eng.cfg.Pricing.Watch {
		watcher := pricing.NewWatcher(eng.table, pricing.WatcherConfig{
			Path: eng.cfg.Pricing.File,
		})
		if err := watcher.Start(); err != nil {
			return cli.NewCommandError("run", fmt.Errorf("failed to watch pricing file: %w", err))
		}
		defer watcher.Stop()
		fmt.Printf("✓ Pricing file watched (%s)\n", eng.cfg.Pricing.File)
	}

	// Periodic budget gauge refresh.
	if eng.cfg.Monitor.Enabled {
		monitor := budget.NewMonitor(eng.manager)
		if err := monitor.Start(budget.MonitorConfig{Schedule: eng.cfg.Monitor.Schedule}); err != nil {
			return cli.NewCommandError("run", err)
		}
		defer monitor.Stop()
		fmt.Println("✓ Budget monitor started")
	}

	errChan := make(chan error, 1)

	var metricsSrv *http.Server
	if eng.cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		metricsSrv = &http.Server{
			Addr:              eng.cfg.Metrics.Listen,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errChan <- fmt.Errorf("metrics server error: %w", err)
			}
		}()
		fmt.Printf("✓ Metrics endpoint: http://%s/metrics\n", eng.cfg.Metrics.Listen)
	}

	fmt.Println("\nPress Ctrl+C to stop")

	sigChan := cli.WaitForShutdown()

	select {
	case err := <-errChan:
		return cli.NewCommandError("run", err)
	case sig := <-sigChan:
		fmt.Printf("\nReceived signal %s, shutting down gracefully...\n", sig)

		if metricsSrv != nil {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()
			if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
				eng.logger.Error("metrics server shutdown failed", "error", err)
			}
		}

		fmt.Println("✓ Engine stopped")
		return nil
	}
}

// setLogLevelOverride propagates the --log-level flag through the environment
// so config.Load picks it up like any other deployment override.
func setLogLevelOverride(level string) error {
	switch level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", level)
	}
	return os.Setenv("SUTRA_LEDGER_LOG_LEVEL", level)
}
