package main

import (
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vedprakash-m/sutra-ledger/pkg/budget"
	"github.com/vedprakash-m/sutra-ledger/pkg/config"
	"github.com/vedprakash-m/sutra-ledger/pkg/costs"
	"github.com/vedprakash-m/sutra-ledger/pkg/enforcement"
	"github.com/vedprakash-m/sutra-ledger/pkg/pricing"
	"github.com/vedprakash-m/sutra-ledger/pkg/storage"
	"github.com/vedprakash-m/sutra-ledger/pkg/telemetry/logging"
)

// engine bundles the wired components the commands share: storage, pricing,
// cost tracking, budget management and the enforcement gate.
type engine struct {
	cfg     *config.Config
	logger  *slog.Logger
	backend storage.Backend
	table   *pricing.Table
	tracker *costs.Tracker
	manager *budget.Manager
	gate    *enforcement.Gate
}

// buildEngine loads the configuration and wires the component graph. A nil
// registerer skips metric registration; the one-shot commands use that to
// avoid exposing collectors they never serve.
func buildEngine(reg prometheus.Registerer) (*engine, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logLevel := cfg.Logging.Level
	if verbose {
		logLevel = "debug"
	}
	logger, err := logging.Setup(logging.Config{
		Level:  logLevel,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		return nil, err
	}

	var backend storage.Backend
	switch cfg.Storage.Driver {
	case "sqlite":
		backend, err = storage.NewSQLiteBackend(cfg.Storage.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite storage: %w", err)
		}
	case "memory":
		backend = storage.NewMemoryBackend()
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", cfg.Storage.Driver)
	}

	table := pricing.New(logger)
	if cfg.Pricing.File != "" {
		if err := table.LoadFile(cfg.Pricing.File); err != nil {
			backend.Close()
			return nil, fmt.Errorf("failed to load pricing file: %w", err)
		}
	}

	var costMetrics *costs.Metrics
	var budgetMetrics *budget.Metrics
	if reg != nil {
		costMetrics = costs.NewMetrics(reg)
		budgetMetrics = budget.NewMetrics(reg)
	}

	tracker := costs.NewTracker(costs.TrackerConfig{
		Store:   backend,
		Pricing: table,
		Logger:  logger,
		Metrics: costMetrics,
	})

	manager := budget.NewManager(budget.Config{
		Store:   backend,
		Spend:   tracker,
		Logger:  logger,
		Metrics: budgetMetrics,
	})

	gate := enforcement.NewGate(enforcement.GateConfig{
		Pricing: table,
		Budgets: manager,
		Tracker: tracker,
		Logger:  logger,
	})

	return &engine{
		cfg:     cfg,
		logger:  logger,
		backend: backend,
		table:   table,
		tracker: tracker,
		manager: manager,
		gate:    gate,
	}, nil
}

// Close releases the storage backend.
func (e *engine) Close() error {
	return e.backend.Close()
}
