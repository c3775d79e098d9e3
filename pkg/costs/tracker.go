// Package costs computes, records and aggregates per-call LLM spend.
//
// The tracker is the only write path for cost data: one entry per completed
// LLM invocation, appended to the store, never mutated. Summaries and
// analytics are derived from entries on demand. All money arithmetic is
// decimal; binary floating point never touches a cost figure.
package costs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/vedprakash-m/sutra-ledger/pkg/pricing"
)

// Tracker records per-call cost entries and aggregates them.
type Tracker struct {
	store   Store
	pricing *pricing.Table
	logger  *slog.Logger
	metrics *Metrics

	// now is injectable for deterministic timestamps in tests.
	now func() time.Time
}

// TrackerConfig contains the tracker's dependencies. Store and Pricing are
// required.
type TrackerConfig struct {
	// Store persists cost entries.
	Store Store

	// Pricing resolves per-model token prices.
	Pricing *pricing.Table

	// Logger receives structured diagnostics. Optional.
	Logger *slog.Logger

	// Metrics receives cost counters. Optional.
	Metrics *Metrics

	// Now overrides the clock. Optional, used in tests.
	Now func() time.Time
}

// NewTracker creates a cost tracker with the given dependencies.
func NewTracker(cfg TrackerConfig) *Tracker {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Tracker{
		store:   cfg.Store,
		pricing: cfg.Pricing,
		logger:  logger.With("component", "costs.tracker"),
		metrics: cfg.Metrics,
		now:     now,
	}
}

// UsageParams describes one completed LLM invocation.
type UsageParams struct {
	UserID           string
	SessionID        string
	Provider         string
	Model            string
	PromptTokens     int
	CompletionTokens int
	ExecutionTimeMS  int64
	RequestID        string
	Metadata         map[string]any
}

// TrackUsage computes the cost of a completed call, constructs a cost entry
// and appends it to the store. Must be called exactly once per completed
// invocation; the tracker itself performs no deduplication.
func (t *Tracker) TrackUsage(ctx context.Context, params UsageParams) (*Entry, error) {
	cost := t.Calculate(params.Provider, params.Model, params.PromptTokens, params.CompletionTokens)

	entry := &Entry{
		ID:               uuid.NewString(),
		UserID:           params.UserID,
		SessionID:        params.SessionID,
		Provider:         params.Provider,
		Model:            params.Model,
		PromptTokens:     params.PromptTokens,
		CompletionTokens: params.CompletionTokens,
		TotalTokens:      params.PromptTokens + params.CompletionTokens,
		InputCost:        cost.Input,
		OutputCost:       cost.Output,
		TotalCost:        cost.Total,
		ExecutionTimeMS:  params.ExecutionTimeMS,
		RequestID:        params.RequestID,
		Metadata:         params.Metadata,
		CreatedAt:        t.now().UTC(),
	}

	if err := t.store.InsertEntry(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to persist cost entry: %w", err)
	}

	t.metrics.RecordEntry(params.Provider, params.Model, cost.Total)

	t.logger.Debug("usage tracked",
		"user_id", params.UserID,
		"provider", params.Provider,
		"model", params.Model,
		"total_tokens", entry.TotalTokens,
		"total_cost", entry.TotalCost.String(),
		"request_id", params.RequestID)

	return entry, nil
}

// GetSummary aggregates a user's entries over [start, end). An empty window
// yields a zero-valued summary, never an error.
func (t *Tracker) GetSummary(ctx context.Context, userID string, start, end time.Time) (*Summary, error) {
	entries, err := t.store.QueryEntries(ctx, EntryFilter{UserID: userID, Start: start, End: end})
	if err != nil {
		return nil, fmt.Errorf("failed to query cost entries: %w", err)
	}
	return summarize(userID, start, end, entries), nil
}

// GetAnalytics builds a summary over the trailing number of days plus a
// zero-filled daily breakdown and efficiency metrics. Safe on empty data.
func (t *Tracker) GetAnalytics(ctx context.Context, userID string, days int) (*Analytics, error) {
	if days <= 0 {
		days = 30
	}

	now := t.now().UTC()
	end := now
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, -(days - 1))

	entries, err := t.store.QueryEntries(ctx, EntryFilter{UserID: userID, Start: start, End: end})
	if err != nil {
		return nil, fmt.Errorf("failed to query cost entries: %w", err)
	}

	summary := summarize(userID, start, end, entries)

	// Bucket entries per UTC day, then zero-fill the full range in order.
	type dayAgg struct {
		requests int
		tokens   int64
		cost     decimal.Decimal
	}
	byDay := make(map[string]*dayAgg)
	for _, e := range entries {
		key := e.CreatedAt.UTC().Format("2006-01-02")
		agg, ok := byDay[key]
		if !ok {
			agg = &dayAgg{cost: decimal.Zero}
			byDay[key] = agg
		}
		agg.requests++
		agg.tokens += int64(e.TotalTokens)
		agg.cost = agg.cost.Add(e.TotalCost)
	}

	daily := make([]DailyCost, 0, days)
	for day := start; day.Before(end); day = day.AddDate(0, 0, 1) {
		key := day.Format("2006-01-02")
		dc := DailyCost{Date: key, Cost: decimal.Zero}
		if agg, ok := byDay[key]; ok {
			dc.Requests = agg.requests
			dc.Tokens = agg.tokens
			dc.Cost = agg.cost
		}
		daily = append(daily, dc)
	}

	return &Analytics{
		Summary:    summary,
		Daily:      daily,
		Efficiency: efficiencyFor(summary),
	}, nil
}

// SpendBetween sums total cost for a user in [start, end), optionally
// restricted to a provider set. This is the aggregation hook the budget
// manager uses; an empty user ID matches all users.
func (t *Tracker) SpendBetween(ctx context.Context, userID string, providers []string, start, end time.Time) (decimal.Decimal, error) {
	entries, err := t.store.QueryEntries(ctx, EntryFilter{
		UserID:    userID,
		Providers: providers,
		Start:     start,
		End:       end,
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to query cost entries: %w", err)
	}

	total := decimal.Zero
	for _, e := range entries {
		total = total.Add(e.TotalCost)
	}
	return total, nil
}

func summarize(userID string, start, end time.Time, entries []*Entry) *Summary {
	summary := &Summary{
		UserID:                userID,
		Start:                 start,
		End:                   end,
		TotalCost:             decimal.Zero,
		AverageCostPerRequest: decimal.Zero,
		CostByProvider:        make(map[string]decimal.Decimal),
	}

	for _, e := range entries {
		summary.TotalRequests++
		summary.TotalTokens += int64(e.TotalTokens)
		summary.TotalCost = summary.TotalCost.Add(e.TotalCost)

		current, ok := summary.CostByProvider[e.Provider]
		if !ok {
			current = decimal.Zero
		}
		summary.CostByProvider[e.Provider] = current.Add(e.TotalCost)
	}

	if summary.TotalRequests > 0 {
		summary.AverageCostPerRequest = summary.TotalCost.Div(decimal.NewFromInt(int64(summary.TotalRequests)))
	}

	return summary
}

// Efficiency rule thresholds. Deliberately coarse: the recommendations are
// hints, not billing guidance.
var (
	expensivePerToken = decimal.RequireFromString("0.00003") // ~$0.03 per 1K blended
	longRequestTokens = decimal.NewFromInt(8000)
)

func efficiencyFor(summary *Summary) EfficiencyMetrics {
	metrics := EfficiencyMetrics{
		AverageCostPerToken:     decimal.Zero,
		AverageTokensPerRequest: decimal.Zero,
	}

	if summary.TotalTokens > 0 {
		metrics.AverageCostPerToken = summary.TotalCost.Div(decimal.NewFromInt(summary.TotalTokens))
	}
	if summary.TotalRequests > 0 {
		metrics.AverageTokensPerRequest = decimal.NewFromInt(summary.TotalTokens).
			Div(decimal.NewFromInt(int64(summary.TotalRequests)))
	}

	if metrics.AverageCostPerToken.GreaterThan(expensivePerToken) {
		metrics.Recommendations = append(metrics.Recommendations,
			"average cost per token is high — consider a cheaper model for routine requests")
	}
	if metrics.AverageTokensPerRequest.GreaterThan(longRequestTokens) {
		metrics.Recommendations = append(metrics.Recommendations,
			"requests are large on average — consider trimming prompt context")
	}

	return metrics
}
