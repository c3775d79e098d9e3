package budget

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// defaultCriticalPercent is the usage percentage at which status becomes
// critical regardless of configured thresholds.
const defaultCriticalPercent = 90

// Manager is the budget policy engine. It defines spending limits, derives
// current-period usage from persisted cost entries, evaluates enforcement
// actions against configured thresholds, and manages admin overrides.
//
// The manager holds no mutable aggregate state of its own: usage and status
// are recomputed from the store on every query, so concurrent checks may read
// slightly stale totals. Enforcement is best-effort by design; the store is
// the sole synchronization point.
type Manager struct {
	store   Store
	spend   SpendQuerier
	logger  *slog.Logger
	metrics *Metrics

	// now is injectable for deterministic period boundaries in tests.
	now func() time.Time
}

// Config contains the manager's dependencies. Store and Spend are required;
// Logger, Metrics and Now fall back to sensible defaults.
type Config struct {
	// Store persists limits and overrides.
	Store Store

	// Spend aggregates persisted cost entries (the cost tracker).
	Spend SpendQuerier

	// Logger receives structured diagnostics.
	Logger *slog.Logger

	// Metrics receives enforcement counters and usage gauges. Optional.
	Metrics *Metrics

	// Now overrides the clock. Optional, used in tests.
	Now func() time.Time
}

// NewManager creates a budget manager with the given dependencies.
func NewManager(cfg Config) *Manager {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Manager{
		store:   cfg.Store,
		spend:   cfg.Spend,
		logger:  logger.With("component", "budget.manager"),
		metrics: cfg.Metrics,
		now:     now,
	}
}

// CreateLimitParams contains the admin-supplied fields for a new limit.
type CreateLimitParams struct {
	Name        string
	Amount      decimal.Decimal
	Period      Period
	AppliesTo   Applicability
	Thresholds  []int
	Actions     map[int]Action
	AdminUserID string
}

// CreateLimit validates and persists a new budget limit. Configuration errors
// are rejected synchronously and never silently corrected.
func (m *Manager) CreateLimit(ctx context.Context, params CreateLimitParams) (*Limit, error) {
	if err := validateLimitParams(params); err != nil {
		return nil, err
	}

	now := m.now().UTC()
	limit := &Limit{
		ID:         uuid.NewString(),
		Name:       params.Name,
		Amount:     params.Amount,
		Period:     params.Period,
		AppliesTo:  params.AppliesTo,
		Thresholds: append([]int(nil), params.Thresholds...),
		Actions:    cloneActions(params.Actions),
		CreatedBy:  params.AdminUserID,
		CreatedAt:  now,
		UpdatedAt:  now,
		Active:     true,
	}

	if err := m.store.SaveLimit(ctx, limit); err != nil {
		return nil, fmt.Errorf("failed to save budget limit: %w", err)
	}

	m.logger.Info("budget limit created",
		"budget_id", limit.ID,
		"name", limit.Name,
		"amount", limit.Amount.String(),
		"period", limit.Period,
		"created_by", limit.CreatedBy)

	return limit, nil
}

// DeactivateLimit soft-deletes a limit. The limit remains in the store so
// historical usage reports stay intact.
func (m *Manager) DeactivateLimit(ctx context.Context, budgetID string) error {
	limit, err := m.store.GetLimit(ctx, budgetID)
	if err != nil {
		return fmt.Errorf("failed to load budget limit: %w", err)
	}
	if limit == nil {
		return fmt.Errorf("%w: %s", ErrLimitNotFound, budgetID)
	}

	limit.Active = false
	limit.UpdatedAt = m.now().UTC()
	if err := m.store.SaveLimit(ctx, limit); err != nil {
		return fmt.Errorf("failed to deactivate budget limit: %w", err)
	}

	m.logger.Info("budget limit deactivated", "budget_id", budgetID)
	return nil
}

// ApplicableLimits returns all active limits whose applicability filter
// matches the given user, provider and organization. Zero matches is a valid,
// common state meaning unrestricted usage.
func (m *Manager) ApplicableLimits(ctx context.Context, userID, provider, organizationID string) ([]*Limit, error) {
	limits, err := m.store.ListLimits(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("failed to list budget limits: %w", err)
	}

	var applicable []*Limit
	for _, limit := range limits {
		if limit.AppliesTo.Matches(userID, organizationID, provider) {
			applicable = append(applicable, limit)
		}
	}
	return applicable, nil
}

// CurrentUsage computes the usage snapshot for one (budget, user) pair in the
// period containing now. Returns (nil, nil) when the budget does not exist.
func (m *Manager) CurrentUsage(ctx context.Context, budgetID, userID string) (*Usage, error) {
	limit, err := m.store.GetLimit(ctx, budgetID)
	if err != nil {
		return nil, fmt.Errorf("failed to load budget limit: %w", err)
	}
	if limit == nil {
		return nil, nil
	}
	return m.usageForLimit(ctx, limit, userID)
}

// usageForLimit derives all usage fields for a limit restricted to one user.
// An empty userID aggregates across all users the limit applies to.
func (m *Manager) usageForLimit(ctx context.Context, limit *Limit, userID string) (*Usage, error) {
	now := m.now().UTC()
	start, end := limit.Period.Bounds(now)

	spent, err := m.spend.SpendBetween(ctx, userID, limit.AppliesTo.ProviderFilter(), start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to sum period spend for budget %s: %w", limit.ID, err)
	}

	percent := usagePercent(spent, limit.Amount)

	var triggered []int
	for _, threshold := range limit.Thresholds {
		if percent.GreaterThanOrEqual(decimal.NewFromInt(int64(threshold))) {
			triggered = append(triggered, threshold)
		}
	}

	return &Usage{
		BudgetID:            limit.ID,
		BudgetName:          limit.Name,
		PeriodStart:         start,
		PeriodEnd:           end,
		TotalSpent:          spent,
		BudgetLimit:         limit.Amount,
		Remaining:           limit.Amount.Sub(spent),
		UsagePercent:        percent,
		Status:              statusFor(percent, limit.Thresholds),
		ForecastEndSpend:    forecastEndSpend(spent, start, end, now),
		DaysRemaining:       daysRemaining(end, now),
		TriggeredThresholds: triggered,
	}, nil
}

// CheckParams identifies the call under evaluation.
type CheckParams struct {
	// UserID is the user about to execute an LLM call.
	UserID string

	// OrganizationID is the user's organization, if known.
	OrganizationID string

	// Provider is the LLM provider about to be called.
	Provider string

	// Model is the model about to be called. Informational only.
	Model string

	// EstimatedCost is the projected cost of the call in USD.
	EstimatedCost decimal.Decimal
}

// CheckEnforcement evaluates every applicable budget against the projected
// spend (current period spend plus estimated cost) and aggregates the worst
// action. It has no side effects: callers record actual spend through the
// cost tracker after the LLM call completes.
//
// A denial is a normal decision outcome, never an error. Errors are reserved
// for store I/O failures.
func (m *Manager) CheckEnforcement(ctx context.Context, params CheckParams) (*EnforcementResult, error) {
	started := time.Now()
	defer func() {
		m.metrics.ObserveCheckDuration(time.Since(started))
	}()

	limits, err := m.ApplicableLimits(ctx, params.UserID, params.Provider, params.OrganizationID)
	if err != nil {
		return nil, err
	}

	result := &EnforcementResult{CanExecute: true}
	now := m.now().UTC()

	for _, limit := range limits {
		usage, err := m.usageForLimit(ctx, limit, params.UserID)
		if err != nil {
			return nil, err
		}

		effectiveLimit := limit.Amount
		overrideApplied := false
		override, err := m.ActiveOverride(ctx, limit.ID, params.UserID)
		if err != nil {
			return nil, err
		}
		if override != nil && override.InEffect(now) {
			effectiveLimit = override.NewLimit
			overrideApplied = true
			m.metrics.RecordOverrideApplied(limit.Name)
		}

		projected := usagePercent(usage.TotalSpent.Add(params.EstimatedCost), effectiveLimit)

		action, threshold := limit.ActionAt(projected)
		if action == ActionNone {
			continue
		}

		result.Triggered = append(result.Triggered, TriggeredAction{
			BudgetID:         limit.ID,
			BudgetName:       limit.Name,
			Threshold:        threshold,
			Action:           action,
			ProjectedPercent: projected,
			OverrideApplied:  overrideApplied,
		})

		if action.Severity() > result.MostRestrictive.Severity() {
			result.MostRestrictive = action
		}

		if !action.Blocking() {
			result.Warnings = append(result.Warnings, fmt.Sprintf(
				"budget %q at %s%% of limit (threshold %d%%, action %s)",
				limit.Name, projected.Round(1).String(), threshold, action))
		}
	}

	result.CanExecute = !result.MostRestrictive.Blocking()

	m.metrics.RecordEnforcementCheck(result.CanExecute)
	if result.MostRestrictive != ActionNone {
		m.metrics.RecordEnforcementAction(string(result.MostRestrictive))
	}

	if !result.CanExecute {
		m.logger.Warn("execution blocked by budget enforcement",
			"user_id", params.UserID,
			"provider", params.Provider,
			"model", params.Model,
			"action", result.MostRestrictive,
			"estimated_cost", params.EstimatedCost.String())
	}

	return result, nil
}

// CreateOverrideParams contains the admin-supplied fields for an override.
type CreateOverrideParams struct {
	BudgetID    string
	UserID      string
	AdminUserID string
	Type        string
	NewLimit    decimal.Decimal
	Reason      string

	// ExpiresIn bounds the override lifetime. Nil means it never expires.
	ExpiresIn *time.Duration
}

// CreateOverride grants a temporary limit substitution for one (budget, user)
// pair. Expiry is evaluated lazily when the override is read back.
func (m *Manager) CreateOverride(ctx context.Context, params CreateOverrideParams) (*Override, error) {
	limit, err := m.store.GetLimit(ctx, params.BudgetID)
	if err != nil {
		return nil, fmt.Errorf("failed to load budget limit: %w", err)
	}
	if limit == nil {
		return nil, fmt.Errorf("%w: %s", ErrLimitNotFound, params.BudgetID)
	}
	if !params.NewLimit.IsPositive() {
		return nil, &ValidationError{Field: "new_limit", Message: "must be positive", Err: ErrInvalidAmount}
	}

	now := m.now().UTC()
	override := &Override{
		ID:            uuid.NewString(),
		BudgetID:      params.BudgetID,
		UserID:        params.UserID,
		AdminUserID:   params.AdminUserID,
		Type:          params.Type,
		OriginalLimit: limit.Amount,
		NewLimit:      params.NewLimit,
		Reason:        params.Reason,
		CreatedAt:     now,
		Active:        true,
	}
	if params.ExpiresIn != nil {
		expires := now.Add(*params.ExpiresIn)
		override.ExpiresAt = &expires
	}

	if err := m.store.SaveOverride(ctx, override); err != nil {
		return nil, fmt.Errorf("failed to save admin override: %w", err)
	}

	m.logger.Info("admin override created",
		"override_id", override.ID,
		"budget_id", override.BudgetID,
		"user_id", override.UserID,
		"admin_user_id", override.AdminUserID,
		"new_limit", override.NewLimit.String(),
		"expires_at", override.ExpiresAt)

	return override, nil
}

// ActiveOverride returns the authoritative override for a (budget, user)
// pair, or nil when none is in effect. When multiple overrides are active and
// unexpired, the most recently created one wins.
func (m *Manager) ActiveOverride(ctx context.Context, budgetID, userID string) (*Override, error) {
	overrides, err := m.store.ListOverrides(ctx, budgetID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list admin overrides: %w", err)
	}

	now := m.now().UTC()
	var latest *Override
	for _, o := range overrides {
		if !o.InEffect(now) {
			continue
		}
		if latest == nil || o.CreatedAt.After(latest.CreatedAt) {
			latest = o
		}
	}
	return latest, nil
}

// RevokeOverride explicitly deactivates every in-effect override for a
// (budget, user) pair.
func (m *Manager) RevokeOverride(ctx context.Context, budgetID, userID string) error {
	overrides, err := m.store.ListOverrides(ctx, budgetID, userID)
	if err != nil {
		return fmt.Errorf("failed to list admin overrides: %w", err)
	}

	now := m.now().UTC()
	for _, o := range overrides {
		if !o.InEffect(now) {
			continue
		}
		o.Active = false
		if err := m.store.SaveOverride(ctx, o); err != nil {
			return fmt.Errorf("failed to revoke admin override %s: %w", o.ID, err)
		}
		m.logger.Info("admin override revoked", "override_id", o.ID, "budget_id", budgetID, "user_id", userID)
	}
	return nil
}

// Report builds a usage snapshot for every budget applicable to the user,
// regardless of provider, with textual recommendations per budget. The
// overall status is the most severe status across all budgets.
func (m *Manager) Report(ctx context.Context, userID string) (*Report, error) {
	limits, err := m.store.ListLimits(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("failed to list budget limits: %w", err)
	}

	report := &Report{
		UserID:        userID,
		GeneratedAt:   m.now().UTC(),
		OverallStatus: StatusOK,
	}

	for _, limit := range limits {
		// The provider dimension is ignored here: a report covers every
		// budget that can constrain this user on any provider.
		if !dimensionMatches(limit.AppliesTo.Users, userID) {
			continue
		}

		usage, err := m.usageForLimit(ctx, limit, userID)
		if err != nil {
			return nil, err
		}

		override, err := m.ActiveOverride(ctx, limit.ID, userID)
		if err != nil {
			return nil, err
		}

		report.Budgets = append(report.Budgets, BudgetReport{
			Usage:           usage,
			Override:        override,
			Recommendations: recommendationsFor(usage),
		})

		if usage.Status.rank() > report.OverallStatus.rank() {
			report.OverallStatus = usage.Status
		}
	}

	sort.Slice(report.Budgets, func(i, j int) bool {
		return report.Budgets[i].Usage.BudgetName < report.Budgets[j].Usage.BudgetName
	})

	return report, nil
}

// recommendationsFor derives textual guidance from a usage snapshot.
func recommendationsFor(usage *Usage) []string {
	var recs []string

	switch usage.Status {
	case StatusExceeded:
		recs = append(recs, fmt.Sprintf(
			"budget %q is exceeded (%s%% used); further requests may be blocked until the period resets in %d day(s)",
			usage.BudgetName, usage.UsagePercent.Round(1).String(), usage.DaysRemaining))
	case StatusCritical:
		recs = append(recs, fmt.Sprintf(
			"budget %q is above %d%% — consider requesting a temporary increase",
			usage.BudgetName, defaultCriticalPercent))
	case StatusWarning:
		recs = append(recs, fmt.Sprintf(
			"budget %q usage is trending high (%s%%); review recent spend",
			usage.BudgetName, usage.UsagePercent.Round(1).String()))
	}

	if usage.ForecastEndSpend.GreaterThan(usage.BudgetLimit) && usage.Status != StatusExceeded {
		recs = append(recs, fmt.Sprintf(
			"current pace projects %s by period end, over the %s limit — consider a cheaper model for routine calls",
			usage.ForecastEndSpend.StringFixed(2), usage.BudgetLimit.StringFixed(2)))
	}

	return recs
}

// usagePercent computes spent / limit * 100, guarding division by zero.
func usagePercent(spent, limit decimal.Decimal) decimal.Decimal {
	if !limit.IsPositive() {
		return decimal.Zero
	}
	return spent.Div(limit).Mul(decimal.NewFromInt(100))
}

// statusFor classifies a usage percentage. Exceeded at 100%, critical at 90%,
// warning at the lowest configured threshold below that.
func statusFor(percent decimal.Decimal, thresholds []int) Status {
	if percent.GreaterThanOrEqual(decimal.NewFromInt(100)) {
		return StatusExceeded
	}
	if percent.GreaterThanOrEqual(decimal.NewFromInt(defaultCriticalPercent)) {
		return StatusCritical
	}
	if len(thresholds) > 0 {
		lowest := decimal.NewFromInt(int64(thresholds[0]))
		if percent.GreaterThanOrEqual(lowest) {
			return StatusWarning
		}
	}
	return StatusOK
}

// validateLimitParams enforces the configuration invariants: a positive
// amount, a known period, strictly ascending thresholds in (0, 200], and a
// one-to-one mapping between thresholds and valid actions.
func validateLimitParams(params CreateLimitParams) error {
	if params.Name == "" {
		return &ValidationError{Field: "name", Message: "must not be empty"}
	}
	if !params.Amount.IsPositive() {
		return &ValidationError{Field: "amount", Message: "must be positive", Err: ErrInvalidAmount}
	}
	if !params.Period.Valid() {
		return &ValidationError{Field: "period", Message: fmt.Sprintf("unknown period %q", params.Period), Err: ErrInvalidPeriod}
	}
	if len(params.Thresholds) == 0 {
		return &ValidationError{Field: "thresholds", Message: "must not be empty", Err: ErrInvalidThresholds}
	}

	prev := 0
	for _, threshold := range params.Thresholds {
		if threshold <= 0 || threshold > 200 {
			return &ValidationError{Field: "thresholds", Message: fmt.Sprintf("threshold %d out of range (0, 200]", threshold), Err: ErrInvalidThresholds}
		}
		if threshold <= prev {
			return &ValidationError{Field: "thresholds", Message: "must be strictly ascending", Err: ErrInvalidThresholds}
		}
		prev = threshold
	}

	if len(params.Actions) != len(params.Thresholds) {
		return &ValidationError{Field: "actions", Message: "must map every threshold exactly once", Err: ErrInvalidThresholds}
	}
	for _, threshold := range params.Thresholds {
		action, ok := params.Actions[threshold]
		if !ok {
			return &ValidationError{Field: "actions", Message: fmt.Sprintf("missing action for threshold %d", threshold), Err: ErrInvalidThresholds}
		}
		if !action.Valid() {
			return &ValidationError{Field: "actions", Message: fmt.Sprintf("unknown action %q", action), Err: ErrInvalidThresholds}
		}
	}

	return nil
}

func cloneActions(actions map[int]Action) map[int]Action {
	cloned := make(map[int]Action, len(actions))
	for k, v := range actions {
		cloned[k] = v
	}
	return cloned
}
