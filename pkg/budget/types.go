package budget

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Wildcard matches any value in an applicability dimension.
const Wildcard = "all"

// Period is a recurring calendar window over which a spending cap is measured.
type Period string

const (
	// PeriodWeekly measures spend per calendar week (Monday 00:00 UTC anchor).
	PeriodWeekly Period = "weekly"

	// PeriodMonthly measures spend per calendar month.
	PeriodMonthly Period = "monthly"

	// PeriodQuarterly measures spend per calendar quarter (Jan/Apr/Jul/Oct).
	PeriodQuarterly Period = "quarterly"
)

// Valid reports whether the period is one of the supported values.
func (p Period) Valid() bool {
	switch p {
	case PeriodWeekly, PeriodMonthly, PeriodQuarterly:
		return true
	}
	return false
}

// Action defines the enforcement response bound to a usage threshold.
type Action string

const (
	// ActionNone means no threshold has been crossed.
	ActionNone Action = ""

	// ActionWarnOnly surfaces a warning but allows the request.
	ActionWarnOnly Action = "warn_only"

	// ActionRestrictExpensive allows the request but asks the caller to
	// route to a cheaper model.
	ActionRestrictExpensive Action = "restrict_expensive"

	// ActionRequireApproval blocks automatic execution pending an admin decision.
	ActionRequireApproval Action = "require_approval"

	// ActionBlockExecution rejects the request outright.
	ActionBlockExecution Action = "block_execution"
)

// Severity returns the ordinal severity of an action. Higher is more
// restrictive. Comparison between actions always goes through this ordinal,
// never through string comparison.
func (a Action) Severity() int {
	switch a {
	case ActionWarnOnly:
		return 1
	case ActionRestrictExpensive:
		return 2
	case ActionRequireApproval:
		return 3
	case ActionBlockExecution:
		return 4
	default:
		return 0
	}
}

// Valid reports whether the action is a known enforcement action.
func (a Action) Valid() bool {
	return a.Severity() > 0
}

// Blocking reports whether the action prevents automatic execution.
// ActionRequireApproval blocks at this layer because approval is a human
// decision, not something the enforcement check can grant.
func (a Action) Blocking() bool {
	return a.Severity() >= ActionRequireApproval.Severity()
}

// Status classifies current budget usage. It is derived fresh from spend on
// every query and is never persisted, so it cannot drift.
type Status string

const (
	// StatusOK means usage is below every alerting threshold.
	StatusOK Status = "ok"

	// StatusWarning means usage has crossed the lowest configured threshold.
	StatusWarning Status = "warning"

	// StatusCritical means usage is at or above 90%.
	StatusCritical Status = "critical"

	// StatusExceeded means usage is at or above 100%.
	StatusExceeded Status = "exceeded"
)

// rank orders statuses by severity for overall-status aggregation.
func (s Status) rank() int {
	switch s {
	case StatusWarning:
		return 1
	case StatusCritical:
		return 2
	case StatusExceeded:
		return 3
	default:
		return 0
	}
}

// Applicability is the filter deciding which (user, organization, provider)
// tuples a budget constrains. An empty dimension or one containing Wildcard
// matches every value in that dimension.
type Applicability struct {
	// Users is the set of user IDs the budget applies to.
	Users []string `json:"users,omitempty" yaml:"users,omitempty"`

	// Organizations is the set of organization IDs the budget applies to.
	Organizations []string `json:"organizations,omitempty" yaml:"organizations,omitempty"`

	// Providers is the set of LLM providers the budget applies to.
	Providers []string `json:"providers,omitempty" yaml:"providers,omitempty"`
}

// Matches reports whether the filter matches the given concrete values.
// Every specified dimension must either be a wildcard or contain the value.
func (a Applicability) Matches(userID, organizationID, provider string) bool {
	return dimensionMatches(a.Users, userID) &&
		dimensionMatches(a.Organizations, organizationID) &&
		dimensionMatches(a.Providers, provider)
}

// ProviderFilter returns the concrete provider set to restrict spend queries
// to, or nil when the provider dimension is a wildcard.
func (a Applicability) ProviderFilter() []string {
	if isWildcard(a.Providers) {
		return nil
	}
	return a.Providers
}

func dimensionMatches(set []string, value string) bool {
	if isWildcard(set) {
		return true
	}
	for _, v := range set {
		if v == value {
			return true
		}
	}
	return false
}

func isWildcard(set []string) bool {
	if len(set) == 0 {
		return true
	}
	for _, v := range set {
		if v == Wildcard {
			return true
		}
	}
	return false
}

// Limit is an admin-defined spending ceiling. Limits are never hard-deleted;
// deactivation preserves historical usage reports.
type Limit struct {
	// ID is the unique limit identifier (UUID v4).
	ID string `json:"id"`

	// Name is the human-readable limit name.
	Name string `json:"name"`

	// Amount is the spending ceiling in USD for one period.
	Amount decimal.Decimal `json:"amount"`

	// Period is the recurring window the ceiling applies to.
	Period Period `json:"period"`

	// AppliesTo filters which users/organizations/providers are constrained.
	AppliesTo Applicability `json:"applies_to"`

	// Thresholds is the ascending list of usage percentages that trigger actions.
	Thresholds []int `json:"thresholds"`

	// Actions maps each threshold percentage to its enforcement action.
	Actions map[int]Action `json:"actions"`

	// CreatedBy is the admin user who created the limit.
	CreatedBy string `json:"created_by"`

	// CreatedAt is when the limit was created.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the limit was last modified.
	UpdatedAt time.Time `json:"updated_at"`

	// Active is false for soft-deleted limits.
	Active bool `json:"active"`
}

// ActionAt returns the action for the highest threshold at or below the given
// projected usage percentage. Thresholds are evaluated in ascending order, so
// the most restrictive crossed threshold wins.
func (l *Limit) ActionAt(projectedPercent decimal.Decimal) (Action, int) {
	action := ActionNone
	crossed := 0
	for _, threshold := range l.Thresholds {
		if projectedPercent.GreaterThanOrEqual(decimal.NewFromInt(int64(threshold))) {
			action = l.Actions[threshold]
			crossed = threshold
		}
	}
	return action, crossed
}

// Usage is the derived view of one limit for one user in the current period.
// All fields are recomputed from cost entries on every query.
type Usage struct {
	// BudgetID identifies the limit this usage is measured against.
	BudgetID string `json:"budget_id"`

	// BudgetName is a copy of the limit name for reporting.
	BudgetName string `json:"budget_name"`

	// PeriodStart is the inclusive start of the current period.
	PeriodStart time.Time `json:"period_start"`

	// PeriodEnd is the exclusive end of the current period.
	PeriodEnd time.Time `json:"period_end"`

	// TotalSpent is the sum of applicable cost entries in the period.
	TotalSpent decimal.Decimal `json:"total_spent"`

	// BudgetLimit is a copy of the limit amount.
	BudgetLimit decimal.Decimal `json:"budget_limit"`

	// Remaining is BudgetLimit minus TotalSpent. May be negative.
	Remaining decimal.Decimal `json:"remaining"`

	// UsagePercent is TotalSpent / BudgetLimit * 100.
	UsagePercent decimal.Decimal `json:"usage_percent"`

	// Status classifies the usage percentage.
	Status Status `json:"status"`

	// ForecastEndSpend is the linear projection of spend to period end.
	ForecastEndSpend decimal.Decimal `json:"forecast_end_spend"`

	// DaysRemaining is the number of whole days left in the period.
	DaysRemaining int `json:"days_remaining"`

	// TriggeredThresholds lists thresholds already crossed this period.
	TriggeredThresholds []int `json:"triggered_thresholds"`
}

// Override is a time-boxed, admin-granted exception that substitutes a new
// limit amount for one (budget, user) pair. Expiry is evaluated lazily at
// read time; there is no background sweep.
type Override struct {
	// ID is the unique override identifier (UUID v4).
	ID string `json:"id"`

	// BudgetID is the limit the override relaxes.
	BudgetID string `json:"budget_id"`

	// UserID is the user the override applies to.
	UserID string `json:"user_id"`

	// AdminUserID is the admin who granted the override.
	AdminUserID string `json:"admin_user_id"`

	// Type is a free-text classification, e.g. "temporary_increase".
	Type string `json:"override_type"`

	// OriginalLimit is the limit amount at grant time.
	OriginalLimit decimal.Decimal `json:"original_limit"`

	// NewLimit is the substituted limit amount.
	NewLimit decimal.Decimal `json:"new_limit"`

	// Reason records why the override was granted.
	Reason string `json:"reason"`

	// CreatedAt is when the override was granted.
	CreatedAt time.Time `json:"created_at"`

	// ExpiresAt is when the override lapses. Nil means it never expires.
	ExpiresAt *time.Time `json:"expires_at,omitempty"`

	// Active is false once an admin explicitly revokes the override.
	Active bool `json:"active"`
}

// Expired reports whether the override has lapsed at the given instant.
func (o *Override) Expired(now time.Time) bool {
	return o.ExpiresAt != nil && now.After(*o.ExpiresAt)
}

// InEffect reports whether the override currently substitutes the limit.
func (o *Override) InEffect(now time.Time) bool {
	return o.Active && !o.Expired(now)
}

// TriggeredAction describes the action selected for one budget during an
// enforcement check.
type TriggeredAction struct {
	// BudgetID identifies the budget that triggered the action.
	BudgetID string `json:"budget_id"`

	// BudgetName is the budget name for user-facing messages.
	BudgetName string `json:"budget_name"`

	// Threshold is the highest crossed threshold percentage.
	Threshold int `json:"threshold"`

	// Action is the enforcement action mapped to that threshold.
	Action Action `json:"action"`

	// ProjectedPercent is the projected usage percentage for this budget,
	// including the estimated cost of the call under evaluation.
	ProjectedPercent decimal.Decimal `json:"projected_percent"`

	// OverrideApplied is true when an admin override substituted the limit.
	OverrideApplied bool `json:"override_applied"`
}

// EnforcementResult is the pure decision returned by CheckEnforcement.
// A denial is a normal outcome, never an error.
type EnforcementResult struct {
	// CanExecute is false when the most restrictive action blocks execution.
	CanExecute bool `json:"can_execute"`

	// MostRestrictive is the worst action across all applicable budgets.
	MostRestrictive Action `json:"most_restrictive_action"`

	// Triggered lists the selected action per budget that crossed a threshold.
	Triggered []TriggeredAction `json:"enforcement_actions"`

	// Warnings carries informational messages for sub-blocking actions.
	Warnings []string `json:"warnings"`
}

// BudgetReport is a usage snapshot plus recommendations for one budget.
type BudgetReport struct {
	// Usage is the current-period snapshot.
	Usage *Usage `json:"usage"`

	// Override is the authoritative active override, if any.
	Override *Override `json:"override,omitempty"`

	// Recommendations are textual suggestions derived from the snapshot.
	Recommendations []string `json:"recommendations,omitempty"`
}

// Report aggregates usage across every budget applicable to a user.
type Report struct {
	// UserID is the user the report covers.
	UserID string `json:"user_id"`

	// GeneratedAt is when the report was computed.
	GeneratedAt time.Time `json:"generated_at"`

	// Budgets contains one entry per applicable budget.
	Budgets []BudgetReport `json:"budgets"`

	// OverallStatus is the most severe status across all budgets.
	OverallStatus Status `json:"overall_status"`
}

// Store is the persistence interface the manager depends on. The document
// store behind it is the system of record; in-process values are transient
// views. Implementations live in pkg/storage.
type Store interface {
	// SaveLimit inserts or replaces a budget limit.
	SaveLimit(ctx context.Context, limit *Limit) error

	// GetLimit returns the limit with the given ID, or nil if absent.
	GetLimit(ctx context.Context, id string) (*Limit, error)

	// ListLimits returns all limits, optionally only active ones.
	ListLimits(ctx context.Context, activeOnly bool) ([]*Limit, error)

	// SaveOverride inserts or replaces an admin override.
	SaveOverride(ctx context.Context, override *Override) error

	// ListOverrides returns all overrides for a (budget, user) pair,
	// including inactive and expired ones.
	ListOverrides(ctx context.Context, budgetID, userID string) ([]*Override, error)
}

// SpendQuerier aggregates persisted cost entries. Implemented by the cost
// tracker so the budget manager never touches entry records directly.
type SpendQuerier interface {
	// SpendBetween sums total cost for a user in [start, end), optionally
	// restricted to a provider set. An empty user ID matches all users.
	SpendBetween(ctx context.Context, userID string, providers []string, start, end time.Time) (decimal.Decimal, error)
}

// Validation and lookup errors.
var (
	// ErrInvalidAmount is returned when a limit amount is not positive.
	ErrInvalidAmount = errors.New("budget amount must be positive")

	// ErrInvalidPeriod is returned for an unknown budget period.
	ErrInvalidPeriod = errors.New("invalid budget period")

	// ErrInvalidThresholds is returned when thresholds are empty, not
	// ascending, out of range, or missing a mapped action.
	ErrInvalidThresholds = errors.New("invalid budget thresholds")

	// ErrLimitNotFound is returned when an operation requires a limit that
	// does not exist. A missing limit during usage queries is not an error.
	ErrLimitNotFound = errors.New("budget limit not found")
)

// ValidationError wraps a validation failure with the offending field.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid budget definition: %s: %s", e.Field, e.Message)
}

// Unwrap returns the sentinel error for errors.Is checks.
func (e *ValidationError) Unwrap() error {
	return e.Err
}
