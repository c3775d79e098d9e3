package pricing

import "github.com/shopspring/decimal"

// d is a shorthand for exact decimal literals in the builtin table.
func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func p(input, output string) Price {
	return Price{InputPer1K: d(input), OutputPer1K: d(output)}
}

// builtinPricing is the shipped price table, USD per 1K tokens. It is a
// starting point only; deployments override it via the pricing file or
// runtime updates.
var builtinPricing = map[string]map[string]Price{
	"openai": {
		"gpt-4o":        p("0.0025", "0.01"),
		"gpt-4o-mini":   p("0.00015", "0.0006"),
		"gpt-4.1":       p("0.002", "0.008"),
		"gpt-4.1-mini":  p("0.0004", "0.0016"),
		"gpt-4-turbo":   p("0.01", "0.03"),
		"gpt-3.5-turbo": p("0.0005", "0.0015"),
		"o3-mini":       p("0.0011", "0.0044"),
	},
	"anthropic": {
		"claude-3-opus":     p("0.015", "0.075"),
		"claude-3-5-sonnet": p("0.003", "0.015"),
		"claude-3-5-haiku":  p("0.0008", "0.004"),
		"claude-3-haiku":    p("0.00025", "0.00125"),
	},
	"google": {
		"gemini-1.5-pro":   p("0.00125", "0.005"),
		"gemini-1.5-flash": p("0.000075", "0.0003"),
		"gemini-2.0-flash": p("0.0001", "0.0004"),
	},
}

// builtinProviderDefaults price unknown models of a known provider at
// roughly the provider's mid-tier rate.
var builtinProviderDefaults = map[string]Price{
	"openai":    p("0.0025", "0.01"),
	"anthropic": p("0.003", "0.015"),
	"google":    p("0.00125", "0.005"),
}

// builtinFallback prices calls to entirely unknown providers.
var builtinFallback = p("0.002", "0.008")
