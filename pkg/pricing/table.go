// Package pricing provides the per-provider, per-model token price table.
//
// Prices are decimal USD per 1K tokens. The table is process-wide, mutable at
// runtime (admin updates and file reloads take effect immediately for
// subsequent calculations, never retroactively), and never fails a lookup:
// unknown models fall back to the provider default, then the global default,
// with a logged warning. Mispricing a request is acceptable; blocking one on
// a missing price entry is not.
package pricing

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
)

// Price holds input/output token prices in USD per 1K tokens.
type Price struct {
	// InputPer1K is the prompt token price per 1000 tokens.
	InputPer1K decimal.Decimal

	// OutputPer1K is the completion token price per 1000 tokens.
	OutputPer1K decimal.Decimal
}

// Table is the runtime price lookup. It is safe for concurrent use; reads
// dominate and updates are rare admin actions, last-write-wins.
type Table struct {
	mu sync.RWMutex

	// models maps provider -> model -> price.
	models map[string]map[string]Price

	// providerDefaults maps provider -> fallback price for unknown models.
	providerDefaults map[string]Price

	// fallback is the global default used when the provider is unknown too.
	fallback Price

	logger *slog.Logger
}

// New creates a table seeded with the built-in default pricing.
func New(logger *slog.Logger) *Table {
	if logger == nil {
		logger = slog.Default()
	}

	t := &Table{
		models:           make(map[string]map[string]Price),
		providerDefaults: make(map[string]Price),
		fallback:         builtinFallback,
		logger:           logger.With("component", "pricing.table"),
	}

	for provider, models := range builtinPricing {
		for model, price := range models {
			t.setLocked(provider, model, price)
		}
	}
	for provider, price := range builtinProviderDefaults {
		t.providerDefaults[provider] = price
	}

	return t
}

// Get returns the price for (provider, model). Resolution order: exact model,
// model prefix (so "gpt-4o-2024-11-20" matches a "gpt-4o" entry), provider
// default, global default. Lookups never fail; fallbacks log a warning.
func (t *Table) Get(provider, model string) Price {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if models, ok := t.models[provider]; ok {
		if price, ok := models[model]; ok {
			return price
		}

		// Prefix match covers dated model variants.
		bestLen := 0
		var best Price
		for pattern, price := range models {
			if strings.HasPrefix(model, pattern) && len(pattern) > bestLen {
				bestLen = len(pattern)
				best = price
			}
		}
		if bestLen > 0 {
			return best
		}
	}

	if price, ok := t.providerDefaults[provider]; ok {
		t.logger.Warn("unknown model, using provider default pricing",
			"provider", provider, "model", model)
		return price
	}

	t.logger.Warn("unknown provider, using global default pricing",
		"provider", provider, "model", model)
	return t.fallback
}

// Update atomically replaces the entry for (provider, model). No history is
// retained; the new price is effective for all subsequent calculations.
func (t *Table) Update(provider, model string, inputPer1K, outputPer1K decimal.Decimal) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.setLocked(provider, model, Price{InputPer1K: inputPer1K, OutputPer1K: outputPer1K})
	t.logger.Info("pricing updated",
		"provider", provider,
		"model", model,
		"input_per_1k", inputPer1K.String(),
		"output_per_1k", outputPer1K.String())
}

// SetProviderDefault sets the fallback price for unknown models of a provider.
func (t *Table) SetProviderDefault(provider string, price Price) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.providerDefaults[provider] = price
}

// SetFallback sets the global default price.
func (t *Table) SetFallback(price Price) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.fallback = price
}

// Providers returns the providers with at least one model entry.
func (t *Table) Providers() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	providers := make([]string, 0, len(t.models))
	for provider := range t.models {
		providers = append(providers, provider)
	}
	return providers
}

func (t *Table) setLocked(provider, model string, price Price) {
	models, ok := t.models[provider]
	if !ok {
		models = make(map[string]Price)
		t.models[provider] = models
	}
	models[model] = price
}

// replace swaps in an entirely new price set. Used by file reloads so a
// reload is atomic from the perspective of concurrent readers.
func (t *Table) replace(models map[string]map[string]Price, providerDefaults map[string]Price, fallback Price) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.models = models
	t.providerDefaults = providerDefaults
	if !fallback.InputPer1K.IsZero() || !fallback.OutputPer1K.IsZero() {
		t.fallback = fallback
	}
}
