// Package enforcement is the decision point called immediately before an LLM
// call is dispatched. It combines a pre-call cost estimate with the budget
// manager's enforcement check to produce a structured allow/deny decision,
// and records actual spend through the cost tracker after the call completes.
package enforcement

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/vedprakash-m/sutra-ledger/pkg/budget"
	"github.com/vedprakash-m/sutra-ledger/pkg/costs"
	"github.com/vedprakash-m/sutra-ledger/pkg/pricing"
)

// Gate orchestrates the pre-call check and post-call recording. It holds no
// state of its own; every decision is derived fresh from the store.
type Gate struct {
	pricing   *pricing.Table
	budgets   *budget.Manager
	tracker   *costs.Tracker
	estimator *Estimator
	logger    *slog.Logger
}

// GateConfig contains the gate's collaborators. All but Logger are required.
type GateConfig struct {
	// Pricing resolves per-model token prices for the estimate.
	Pricing *pricing.Table

	// Budgets evaluates enforcement against applicable budgets.
	Budgets *budget.Manager

	// Tracker records actual spend after execution.
	Tracker *costs.Tracker

	// Estimator converts prompt text to token estimates. Optional; a
	// default estimator is used when nil.
	Estimator *Estimator

	// Logger receives structured diagnostics. Optional.
	Logger *slog.Logger
}

// NewGate creates an enforcement gate.
func NewGate(cfg GateConfig) *Gate {
	estimator := cfg.Estimator
	if estimator == nil {
		estimator = NewEstimator()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Gate{
		pricing:   cfg.Pricing,
		budgets:   cfg.Budgets,
		tracker:   cfg.Tracker,
		estimator: estimator,
		logger:    logger.With("component", "enforcement.gate"),
	}
}

// Authorize decides whether the described call may execute. It estimates the
// call's cost, asks the budget manager for an enforcement decision, and maps
// the result to a structured Decision. It never mutates spend: callers must
// invoke RecordOutcome after a successful LLM response.
func (g *Gate) Authorize(ctx context.Context, req CheckRequest) (*Decision, error) {
	promptTokens := req.EstimatedPromptTokens
	if promptTokens == 0 && req.PromptText != "" {
		promptTokens = g.estimator.EstimateText(req.PromptText, req.Model)
	}
	completionTokens := req.EstimatedCompletionTokens
	if completionTokens == 0 {
		completionTokens = g.estimator.EstimateCompletion(promptTokens)
	}

	estimated := costs.CalculateWithPrice(
		g.pricing.Get(req.Provider, req.Model), promptTokens, completionTokens)

	result, err := g.budgets.CheckEnforcement(ctx, budget.CheckParams{
		UserID:         req.UserID,
		OrganizationID: req.OrganizationID,
		Provider:       req.Provider,
		Model:          req.Model,
		EstimatedCost:  estimated.Total,
	})
	if err != nil {
		return nil, fmt.Errorf("budget enforcement check failed: %w", err)
	}

	decision := &Decision{
		Allowed:       result.CanExecute,
		Action:        result.MostRestrictive,
		Triggered:     result.Triggered,
		Warnings:      result.Warnings,
		EstimatedCost: estimated.Total,
	}

	if !result.CanExecute {
		g.fillDenial(decision, result)
	}

	g.logger.Debug("enforcement decision",
		"user_id", req.UserID,
		"provider", req.Provider,
		"model", req.Model,
		"request_id", req.RequestID,
		"allowed", decision.Allowed,
		"action", decision.Action,
		"estimated_cost", decision.EstimatedCost.String())

	return decision, nil
}

// fillDenial populates the user-facing fields of a denied decision from the
// budget that selected the blocking action.
func (g *Gate) fillDenial(decision *Decision, result *budget.EnforcementResult) {
	var blocking *budget.TriggeredAction
	for i := range result.Triggered {
		t := &result.Triggered[i]
		if t.Action != result.MostRestrictive {
			continue
		}
		if blocking == nil || t.ProjectedPercent.GreaterThan(blocking.ProjectedPercent) {
			blocking = t
		}
	}

	switch result.MostRestrictive {
	case budget.ActionRequireApproval:
		decision.StatusCode = http.StatusForbidden
		decision.RetryGuidance = "request approval or a temporary limit increase from an administrator"
	default:
		decision.StatusCode = http.StatusTooManyRequests
		decision.RetryGuidance = "wait for the budget period to reset or request an admin override"
	}

	if blocking != nil {
		decision.Reason = fmt.Sprintf(
			"budget %q would reach %s%% of its limit (threshold %d%%, action %s)",
			blocking.BudgetName,
			blocking.ProjectedPercent.Round(1).String(),
			blocking.Threshold,
			blocking.Action)
	} else {
		decision.Reason = "budget enforcement denied execution"
	}
}

// RecordOutcome records the actual cost of a completed call through the cost
// tracker. Actual token counts may differ from the pre-call estimate; the
// recorded entry is what subsequent usage queries reflect.
func (g *Gate) RecordOutcome(ctx context.Context, outcome Outcome) (*costs.Entry, error) {
	entry, err := g.tracker.TrackUsage(ctx, costs.UsageParams{
		UserID:           outcome.UserID,
		SessionID:        outcome.SessionID,
		Provider:         outcome.Provider,
		Model:            outcome.Model,
		PromptTokens:     outcome.PromptTokens,
		CompletionTokens: outcome.CompletionTokens,
		ExecutionTimeMS:  outcome.ExecutionTimeMS,
		RequestID:        outcome.RequestID,
		Metadata:         outcome.Metadata,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to record call outcome: %w", err)
	}
	return entry, nil
}
