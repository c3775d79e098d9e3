package enforcement

import "strings"

// Estimator implements character-based token estimation for pre-call cost
// projection. It uses model-family characters-per-token ratios; accuracy in
// the few-percent range is plenty for budget projection, where the recorded
// cost after the call uses actual token counts anyway.
type Estimator struct {
	// defaultCharsPerToken is used when no family ratio matches.
	defaultCharsPerToken float64

	// familyRatios maps a model name prefix to its chars-per-token ratio.
	familyRatios map[string]float64

	// completionRatio derives a completion estimate from the prompt
	// estimate when the caller provides none.
	completionRatio float64
}

// NewEstimator creates an estimator with built-in family ratios.
func NewEstimator() *Estimator {
	return &Estimator{
		defaultCharsPerToken: 4.0,
		familyRatios: map[string]float64{
			"gpt-4":    3.8,
			"gpt-3.5":  4.0,
			"claude":   3.5,
			"gemini":   4.0,
		},
		completionRatio: 1.0,
	}
}

// EstimateText estimates the token count of a text for a model. Non-empty
// text always estimates at least one token.
func (e *Estimator) EstimateText(text, model string) int {
	if text == "" {
		return 0
	}

	ratio := e.defaultCharsPerToken
	for family, familyRatio := range e.familyRatios {
		if strings.HasPrefix(model, family) {
			ratio = familyRatio
			break
		}
	}

	tokens := int(float64(len(text))/ratio + 0.5)
	if tokens < 1 {
		tokens = 1
	}
	return tokens
}

// EstimateCompletion derives a completion token estimate from a prompt
// estimate. Budget projection errs toward overestimating, so a blocked
// request is blocked before the spend, not after.
func (e *Estimator) EstimateCompletion(promptTokens int) int {
	return int(float64(promptTokens) * e.completionRatio)
}
