package costs

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"
)

// Metrics contains Prometheus collectors for cost tracking. A nil *Metrics
// is valid and disables recording.
type Metrics struct {
	entriesTracked *prometheus.CounterVec
	costTotal      *prometheus.CounterVec
}

// NewMetrics creates cost metrics registered against the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		entriesTracked: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sutra_costs_entries_total",
				Help: "Total number of cost entries recorded",
			},
			[]string{"provider", "model"},
		),

		costTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sutra_costs_usd_total",
				Help: "Total recorded spend in USD (float approximation; the store holds exact decimals)",
			},
			[]string{"provider", "model"},
		),
	}
}

// RecordEntry records one tracked entry and its cost.
func (m *Metrics) RecordEntry(provider, model string, total decimal.Decimal) {
	if m == nil {
		return
	}
	m.entriesTracked.WithLabelValues(provider, model).Inc()
	usd, _ := total.Float64()
	m.costTotal.WithLabelValues(provider, model).Add(usd)
}
