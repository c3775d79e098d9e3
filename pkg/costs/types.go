package costs

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Entry is the immutable record of one LLM invocation's cost. Entries are
// created exactly once per completed call by the tracker, appended to the
// store, and never mutated. The tracker does not dedup; request IDs exist so
// downstream consumers can dedup an at-least-once caller if they need to.
type Entry struct {
	// ID is the unique entry identifier (UUID v4).
	ID string `json:"id"`

	// UserID is the user the call was executed for.
	UserID string `json:"user_id"`

	// SessionID groups entries within one user session.
	SessionID string `json:"session_id"`

	// Provider is the LLM provider (openai, anthropic, etc.).
	Provider string `json:"provider"`

	// Model is the model invoked.
	Model string `json:"model"`

	// PromptTokens is the actual prompt token count.
	PromptTokens int `json:"prompt_tokens"`

	// CompletionTokens is the actual completion token count.
	CompletionTokens int `json:"completion_tokens"`

	// TotalTokens is PromptTokens + CompletionTokens.
	TotalTokens int `json:"total_tokens"`

	// InputCost is the prompt cost in USD.
	InputCost decimal.Decimal `json:"input_cost"`

	// OutputCost is the completion cost in USD.
	OutputCost decimal.Decimal `json:"output_cost"`

	// TotalCost is InputCost + OutputCost.
	TotalCost decimal.Decimal `json:"total_cost"`

	// ExecutionTimeMS is the provider round-trip time in milliseconds.
	ExecutionTimeMS int64 `json:"execution_time_ms"`

	// RequestID correlates the entry with the originating request.
	RequestID string `json:"request_id"`

	// Metadata carries arbitrary caller-supplied context.
	Metadata map[string]any `json:"metadata,omitempty"`

	// CreatedAt is when the entry was recorded.
	CreatedAt time.Time `json:"created_at"`
}

// Cost is the decimal breakdown of one calculation.
type Cost struct {
	// Input is the prompt token cost in USD.
	Input decimal.Decimal `json:"input_cost"`

	// Output is the completion token cost in USD.
	Output decimal.Decimal `json:"output_cost"`

	// Total is Input + Output.
	Total decimal.Decimal `json:"total_cost"`
}

// Summary aggregates entries over a (user, time range). It is derived on
// demand, never stored. An empty range yields a zero-valued summary.
type Summary struct {
	// UserID is the user the summary covers. Empty means all users.
	UserID string `json:"user_id"`

	// Start is the inclusive window start.
	Start time.Time `json:"start"`

	// End is the exclusive window end.
	End time.Time `json:"end"`

	// TotalRequests is the number of entries in the window.
	TotalRequests int `json:"total_requests"`

	// TotalTokens is the token sum across entries.
	TotalTokens int64 `json:"total_tokens"`

	// TotalCost is the cost sum across entries.
	TotalCost decimal.Decimal `json:"total_cost"`

	// AverageCostPerRequest is TotalCost / TotalRequests, zero when empty.
	AverageCostPerRequest decimal.Decimal `json:"average_cost_per_request"`

	// CostByProvider breaks TotalCost down per provider.
	CostByProvider map[string]decimal.Decimal `json:"cost_by_provider"`
}

// DailyCost is one day's activity in an analytics breakdown.
type DailyCost struct {
	// Date is the UTC day in YYYY-MM-DD form.
	Date string `json:"date"`

	// Requests is the number of entries that day.
	Requests int `json:"requests"`

	// Tokens is the token sum that day.
	Tokens int64 `json:"tokens"`

	// Cost is the cost sum that day.
	Cost decimal.Decimal `json:"cost"`
}

// EfficiencyMetrics are simple rule-derived indicators and suggestions.
type EfficiencyMetrics struct {
	// AverageCostPerToken is TotalCost / TotalTokens, zero when no tokens.
	AverageCostPerToken decimal.Decimal `json:"average_cost_per_token"`

	// AverageTokensPerRequest is TotalTokens / TotalRequests.
	AverageTokensPerRequest decimal.Decimal `json:"average_tokens_per_request"`

	// Recommendations are textual suggestions, possibly empty.
	Recommendations []string `json:"recommendations,omitempty"`
}

// Analytics combines a trailing-window summary with a zero-filled daily
// breakdown and efficiency metrics.
type Analytics struct {
	// Summary covers the trailing window.
	Summary *Summary `json:"summary"`

	// Daily is ordered by date, one element per day, zero-filled for days
	// with no activity.
	Daily []DailyCost `json:"daily_breakdown"`

	// Efficiency holds derived indicators and recommendations.
	Efficiency EfficiencyMetrics `json:"efficiency_metrics"`
}

// EntryFilter selects entries for a query. Zero values widen the filter:
// empty user matches all users, empty provider set matches all providers,
// zero times unbound the window. The window is half-open, [Start, End).
type EntryFilter struct {
	UserID    string
	Providers []string
	Start     time.Time
	End       time.Time
}

// Store is the persistence interface the tracker depends on. The underlying
// document store is append-only for entries. Implementations live in
// pkg/storage.
type Store interface {
	// InsertEntry appends a cost entry. Entries are never updated.
	InsertEntry(ctx context.Context, entry *Entry) error

	// QueryEntries returns entries matching the filter, ordered by creation
	// time ascending.
	QueryEntries(ctx context.Context, filter EntryFilter) ([]*Entry, error)
}
