// Package catalog implements the Model Catalog (C2): per-provider static
// configuration of allowed model names and per-model token pricing, loaded
// once at startup and read-only thereafter.
package catalog

import (
	"fmt"

	"github.com/dispatchlab/llmengine/internal/apierr"
)

// CostSpec is either a flat cost-per-token or an ordered sequence of tiered
// ranges, mirroring the spec's `input_token_cost`/`output_token_cost`
// one-of shape.
type CostSpec struct {
	Scalar *float64
	Tiers  []CostRange
}

// CostRange is one tier of a tiered CostSpec. High of nil means unbounded
// (the spec's `hi|∞`).
type CostRange struct {
	Low  int
	High *int
	Cost float64
}

// Calculate applies the spec's cost rule: scalar multiplies tokens
// directly; tiered selects the first range containing tokens and applies
// its cost, or 0 if none matches.
func (c CostSpec) Calculate(tokens int) float64 {
	if c.Scalar != nil {
		return float64(tokens) * *c.Scalar
	}
	for _, r := range c.Tiers {
		if tokens >= r.Low && (r.High == nil || tokens <= *r.High) {
			return float64(tokens) * r.Cost
		}
	}
	return 0
}

// ModelConfig is one entry in a provider's model list.
type ModelConfig struct {
	Name            string
	Deployment      string
	InputTokenCost  CostSpec
	OutputTokenCost CostSpec
}

// ProviderConfig holds everything the catalog knows about one provider:
// its credential material and its allowed models.
type ProviderConfig struct {
	ProviderID  string
	APIKey      string
	APIEndpoint string
	APIVersion  string
	BaseURL     string
	Models      map[string]ModelConfig
}

// Catalog is the read-only, process-wide view over one or more
// ProviderConfigs, keyed by provider id.
type Catalog struct {
	providers map[string]ProviderConfig
}

// New builds a Catalog from a fully-loaded set of provider configs. It is
// read-only after construction — callers never mutate the returned value.
func New(providers map[string]ProviderConfig) *Catalog {
	return &Catalog{providers: providers}
}

// Provider returns the ProviderConfig for a given provider id.
func (c *Catalog) Provider(providerID string) (ProviderConfig, error) {
	p, ok := c.providers[providerID]
	if !ok {
		return ProviderConfig{}, &apierr.UnknownProviderError{ProviderID: providerID}
	}
	return p, nil
}

// Lookup resolves a model within a provider's catalog, failing with
// UnsupportedModelError when the model isn't registered for that provider.
func (c *Catalog) Lookup(providerID, model string) (ModelConfig, error) {
	p, err := c.Provider(providerID)
	if err != nil {
		return ModelConfig{}, err
	}
	m, ok := p.Models[model]
	if !ok {
		return ModelConfig{}, &apierr.UnsupportedModelError{Provider: providerID, Model: model}
	}
	return m, nil
}

func (c CostRange) String() string {
	if c.High == nil {
		return fmt.Sprintf("[%d, inf) @ %v", c.Low, c.Cost)
	}
	return fmt.Sprintf("[%d, %d] @ %v", c.Low, *c.High, c.Cost)
}
