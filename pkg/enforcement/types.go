package enforcement

import (
	"github.com/shopspring/decimal"

	"github.com/vedprakash-m/sutra-ledger/pkg/budget"
)

// CheckRequest describes the LLM call about to be dispatched.
type CheckRequest struct {
	// UserID is the user requesting execution.
	UserID string

	// OrganizationID is the user's organization, if known.
	OrganizationID string

	// Provider is the LLM provider about to be called.
	Provider string

	// Model is the model about to be called.
	Model string

	// RequestID correlates the decision with the request.
	RequestID string

	// EstimatedPromptTokens is the caller's token estimate for the prompt.
	// When zero and PromptText is set, the gate estimates from the text.
	EstimatedPromptTokens int

	// EstimatedCompletionTokens is the caller's completion estimate. When
	// zero, the gate derives one from the prompt estimate.
	EstimatedCompletionTokens int

	// PromptText optionally carries the raw prompt for token estimation.
	PromptText string
}

// Decision is the structured allow/deny outcome of a pre-call check. A
// denial is a normal decision, never an error: errors are reserved for store
// I/O failures.
type Decision struct {
	// Allowed indicates whether the call may proceed.
	Allowed bool `json:"allowed"`

	// StatusCode is the suggested HTTP status for a denial: 403 when
	// approval is required, 429 when the budget blocks execution. Zero when
	// allowed.
	StatusCode int `json:"status_code,omitempty"`

	// Action is the most restrictive enforcement action selected.
	Action budget.Action `json:"action,omitempty"`

	// Reason is a user-facing explanation for a denial.
	Reason string `json:"reason,omitempty"`

	// Triggered lists every budget that crossed a threshold, including the
	// one that caused a denial.
	Triggered []budget.TriggeredAction `json:"triggered,omitempty"`

	// Warnings carries informational messages for sub-blocking actions.
	Warnings []string `json:"warnings,omitempty"`

	// EstimatedCost is the projected cost used for the check.
	EstimatedCost decimal.Decimal `json:"estimated_cost"`

	// RetryGuidance tells a denied caller what to do next: wait for the
	// period reset or escalate to an admin.
	RetryGuidance string `json:"retry_guidance,omitempty"`
}

// Outcome describes a completed LLM invocation with actual token counts,
// which may differ from the pre-call estimate.
type Outcome struct {
	UserID           string
	SessionID        string
	Provider         string
	Model            string
	RequestID        string
	PromptTokens     int
	CompletionTokens int
	ExecutionTimeMS  int64
	Metadata         map[string]any
}
