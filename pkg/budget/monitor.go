package budget

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"
)

// Monitor periodically refreshes the budget usage and forecast gauges for
// every active limit, aggregated across all users the limit applies to.
//
// The monitor is observability only: status derivation and override expiry
// stay lazy, computed at query time. Nothing here mutates budget state.
type Monitor struct {
	manager *Manager
	cron    *cron.Cron
	logger  *slog.Logger

	mu      sync.Mutex
	running bool
}

// MonitorConfig configures the refresh schedule.
type MonitorConfig struct {
	// Schedule is a cron expression, e.g. "*/5 * * * *" for every 5 minutes.
	Schedule string
}

// DefaultMonitorSchedule refreshes gauges every five minutes.
const DefaultMonitorSchedule = "*/5 * * * *"

// NewMonitor creates a monitor for the given manager.
func NewMonitor(manager *Manager) *Monitor {
	return &Monitor{
		manager: manager,
		cron:    cron.New(),
		logger:  slog.Default().With("component", "budget.monitor"),
	}
}

// Start schedules the periodic refresh and runs one immediate refresh so
// gauges are populated at startup.
func (m *Monitor) Start(cfg MonitorConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return fmt.Errorf("budget monitor already running")
	}

	schedule := cfg.Schedule
	if schedule == "" {
		schedule = DefaultMonitorSchedule
	}

	_, err := m.cron.AddFunc(schedule, func() {
		if err := m.Refresh(context.Background()); err != nil {
			m.logger.Error("budget gauge refresh failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid monitor schedule %q: %w", schedule, err)
	}

	m.cron.Start()
	m.running = true
	m.logger.Info("budget monitor started", "schedule", schedule)

	go func() {
		if err := m.Refresh(context.Background()); err != nil {
			m.logger.Error("initial budget gauge refresh failed", "error", err)
		}
	}()

	return nil
}

// Stop halts the scheduled refresh. Safe to call multiple times.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}
	ctx := m.cron.Stop()
	<-ctx.Done()
	m.running = false
	m.logger.Info("budget monitor stopped")
}

// Refresh recomputes and publishes gauges for all active limits.
func (m *Monitor) Refresh(ctx context.Context) error {
	limits, err := m.manager.store.ListLimits(ctx, true)
	if err != nil {
		return fmt.Errorf("failed to list budget limits: %w", err)
	}

	for _, limit := range limits {
		// Empty user aggregates spend across everyone the limit covers.
		usage, err := m.manager.usageForLimit(ctx, limit, "")
		if err != nil {
			return err
		}

		percent, _ := usage.UsagePercent.Float64()
		forecast, _ := usage.ForecastEndSpend.Float64()
		m.manager.metrics.SetBudgetUsage(limit.Name, string(limit.Period), percent)
		m.manager.metrics.SetBudgetForecast(limit.Name, string(limit.Period), forecast)
	}

	m.logger.Debug("budget gauges refreshed", "limits", len(limits))
	return nil
}
