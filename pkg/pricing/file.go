package pricing

import (
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// File schema:
//
//	default:
//	  input_per_1k: 0.002
//	  output_per_1k: 0.008
//	providers:
//	  openai:
//	    default:
//	      input_per_1k: 0.0025
//	      output_per_1k: 0.01
//	    models:
//	      gpt-4o:
//	        input_per_1k: 0.0025
//	        output_per_1k: 0.01
//
// Prices are parsed from the literal YAML scalar text, so "0.0025" and 0.0025
// both load exactly with no float round-trip.

type fileSchema struct {
	Default   *modelPriceYAML          `yaml:"default"`
	Providers map[string]providerYAML `yaml:"providers"`
}

type providerYAML struct {
	Default *modelPriceYAML           `yaml:"default"`
	Models  map[string]modelPriceYAML `yaml:"models"`
}

type modelPriceYAML struct {
	InputPer1K  decimalScalar `yaml:"input_per_1k"`
	OutputPer1K decimalScalar `yaml:"output_per_1k"`
}

// decimalScalar parses a YAML scalar into a decimal from its literal text.
type decimalScalar struct {
	decimal.Decimal
}

func (s *decimalScalar) UnmarshalYAML(node *yaml.Node) error {
	d, err := decimal.NewFromString(node.Value)
	if err != nil {
		return fmt.Errorf("invalid price %q: %w", node.Value, err)
	}
	s.Decimal = d
	return nil
}

// LoadFile replaces the table contents from a YAML pricing file. On parse
// failure the existing table is left untouched.
func (t *Table) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read pricing file: %w", err)
	}

	var schema fileSchema
	if err := yaml.Unmarshal(data, &schema); err != nil {
		return fmt.Errorf("failed to parse pricing file %s: %w", path, err)
	}

	models := make(map[string]map[string]Price)
	providerDefaults := make(map[string]Price)
	var fallback Price

	if schema.Default != nil {
		fallback = Price{
			InputPer1K:  schema.Default.InputPer1K.Decimal,
			OutputPer1K: schema.Default.OutputPer1K.Decimal,
		}
	}

	for provider, pv := range schema.Providers {
		if pv.Default != nil {
			providerDefaults[provider] = Price{
				InputPer1K:  pv.Default.InputPer1K.Decimal,
				OutputPer1K: pv.Default.OutputPer1K.Decimal,
			}
		}
		for model, mp := range pv.Models {
			if models[provider] == nil {
				models[provider] = make(map[string]Price)
			}
			models[provider][model] = Price{
				InputPer1K:  mp.InputPer1K.Decimal,
				OutputPer1K: mp.OutputPer1K.Decimal,
			}
		}
	}

	t.replace(models, providerDefaults, fallback)
	t.logger.Info("pricing file loaded", "path", path, "providers", len(models))
	return nil
}
