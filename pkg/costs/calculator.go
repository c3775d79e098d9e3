package costs

import (
	"github.com/shopspring/decimal"

	"github.com/vedprakash-m/sutra-ledger/pkg/pricing"
)

// CalculateWithPrice computes the cost of a call from token counts and an
// explicit price. It is a pure function over decimals: the same inputs
// always produce identical outputs, with no float drift across repeated
// calls.
//
//	input  = input_price  * prompt_tokens / 1000
//	output = output_price * completion_tokens / 1000
func CalculateWithPrice(price pricing.Price, promptTokens, completionTokens int) Cost {
	// decimal.New(n, -3) is n/1000 exactly, no division rounding involved.
	input := price.InputPer1K.Mul(decimal.New(int64(promptTokens), -3))
	output := price.OutputPer1K.Mul(decimal.New(int64(completionTokens), -3))

	return Cost{
		Input:  input,
		Output: output,
		Total:  input.Add(output),
	}
}

// Calculate computes the cost of a call using the tracker's price table.
// Unknown models are priced by the table's fallback chain and never fail.
func (t *Tracker) Calculate(provider, model string, promptTokens, completionTokens int) Cost {
	return CalculateWithPrice(t.pricing.Get(provider, model), promptTokens, completionTokens)
}
