package budget

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains Prometheus collectors for the budget engine. A nil
// *Metrics is valid and turns every recording method into a no-op, so
// callers never need to guard metric calls.
type Metrics struct {
	enforcementChecks  *prometheus.CounterVec
	enforcementActions *prometheus.CounterVec
	overridesApplied   *prometheus.CounterVec
	budgetUsage        *prometheus.GaugeVec
	budgetForecast     *prometheus.GaugeVec
	checkDuration      prometheus.Histogram
}

// NewMetrics creates budget metrics registered against the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		enforcementChecks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sutra_budget_enforcement_checks_total",
				Help: "Total number of budget enforcement checks performed",
			},
			[]string{"result"},
		),

		enforcementActions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sutra_budget_enforcement_actions_total",
				Help: "Total number of enforcement actions selected, by action",
			},
			[]string{"action"},
		),

		overridesApplied: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sutra_budget_overrides_applied_total",
				Help: "Total number of enforcement checks where an admin override substituted the limit",
			},
			[]string{"budget"},
		),

		budgetUsage: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sutra_budget_usage_percent",
				Help: "Current budget usage percentage per budget (all matching users)",
			},
			[]string{"budget", "period"},
		),

		budgetForecast: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sutra_budget_forecast_end_spend_usd",
				Help: "Linear projection of period-end spend in USD per budget",
			},
			[]string{"budget", "period"},
		),

		checkDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "sutra_budget_check_duration_seconds",
				Help:    "Duration of budget enforcement checks in seconds",
				Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14), // 100µs to ~1.6s
			},
		),
	}
}

// RecordEnforcementCheck records one enforcement decision.
func (m *Metrics) RecordEnforcementCheck(allowed bool) {
	if m == nil {
		return
	}
	result := "allowed"
	if !allowed {
		result = "blocked"
	}
	m.enforcementChecks.WithLabelValues(result).Inc()
}

// RecordEnforcementAction records the worst action selected by a check.
func (m *Metrics) RecordEnforcementAction(action string) {
	if m == nil {
		return
	}
	m.enforcementActions.WithLabelValues(action).Inc()
}

// RecordOverrideApplied records an enforcement check that used an override.
func (m *Metrics) RecordOverrideApplied(budget string) {
	if m == nil {
		return
	}
	m.overridesApplied.WithLabelValues(budget).Inc()
}

// SetBudgetUsage publishes the usage percentage gauge for a budget.
func (m *Metrics) SetBudgetUsage(budget, period string, percent float64) {
	if m == nil {
		return
	}
	m.budgetUsage.WithLabelValues(budget, period).Set(percent)
}

// SetBudgetForecast publishes the forecast gauge for a budget.
func (m *Metrics) SetBudgetForecast(budget, period string, usd float64) {
	if m == nil {
		return
	}
	m.budgetForecast.WithLabelValues(budget, period).Set(usd)
}

// ObserveCheckDuration records the latency of one enforcement check.
func (m *Metrics) ObserveCheckDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.checkDuration.Observe(d.Seconds())
}
