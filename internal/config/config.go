// Package config loads the engine's static configuration: per-provider
// credential material and the model catalog (allowed models, flat or
// tiered token pricing).
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/dispatchlab/llmengine/internal/catalog"
)

// Load decodes straight from koanf's raw map rather than unmarshaling into
// a mirrored struct, since the cost fields' one-of shape (scalar vs
// tiered) isn't representable as a plain struct tag.

// Load reads configuration from a YAML file, layers `LLMENGINE_`-prefixed
// environment variable overrides on top, and returns a populated Catalog.
// LLMENGINE_PROVIDERS_<ID>_<FIELD> overrides providers.<id>.<field>; the
// field part keeps its underscores (e.g. base_url), so keys nested below a
// provider's own fields, such as per-model costs, are not reachable this way.
func Load(path string) (*catalog.Catalog, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("loading config file: %w", err)
	}

	if err := k.Load(env.Provider("LLMENGINE_", ".", func(s string) string {
		return strings.Join(strings.SplitN(strings.ToLower(strings.TrimPrefix(s, "LLMENGINE_")), "_", 3), ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("loading env vars: %w", err)
	}

	providers := make(map[string]catalog.ProviderConfig)
	rawProviders := k.Get("providers")
	m, ok := rawProviders.(map[string]any)
	if !ok {
		return catalog.New(providers), nil
	}

	for name, v := range m {
		entry, ok := v.(map[string]any)
		if !ok {
			continue
		}
		pc := catalog.ProviderConfig{
			ProviderID:  name,
			APIKey:      expandEnv(stringField(entry, "api_key")),
			APIEndpoint: expandEnv(stringField(entry, "api_endpoint")),
			APIVersion:  stringField(entry, "api_version"),
			BaseURL:     stringField(entry, "base_url"),
			Models:      make(map[string]catalog.ModelConfig),
		}

		if modelsRaw, ok := entry["models"].(map[string]any); ok {
			for modelName, mv := range modelsRaw {
				modelEntry, ok := mv.(map[string]any)
				if !ok {
					continue
				}
				pc.Models[modelName] = catalog.ModelConfig{
					Name:            modelName,
					Deployment:      stringField(modelEntry, "deployment"),
					InputTokenCost:  decodeCostSpec(modelEntry["input_token_cost"]),
					OutputTokenCost: decodeCostSpec(modelEntry["output_token_cost"]),
				}
			}
		}

		providers[name] = pc
	}

	return catalog.New(providers), nil
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

// expandEnv resolves a `${VAR_NAME}` placeholder against the process
// environment, the same convention the teacher's config loader uses for
// API keys that shouldn't live in the YAML file itself.
func expandEnv(v string) string {
	if strings.HasPrefix(v, "${") && strings.HasSuffix(v, "}") {
		return os.Getenv(v[2 : len(v)-1])
	}
	return v
}

// decodeCostSpec decodes the spec's `input_token_cost`/`output_token_cost`
// one-of shape: a bare number for a scalar cost-per-token, or a list of
// `{range: [lo, hi|"inf"], cost}` maps for tiered pricing.
func decodeCostSpec(v any) catalog.CostSpec {
	switch val := v.(type) {
	case float64:
		f := val
		return catalog.CostSpec{Scalar: &f}
	case int:
		f := float64(val)
		return catalog.CostSpec{Scalar: &f}
	case []any:
		tiers := make([]catalog.CostRange, 0, len(val))
		for _, item := range val {
			entry, ok := item.(map[string]any)
			if !ok {
				continue
			}
			tiers = append(tiers, decodeCostRange(entry))
		}
		return catalog.CostSpec{Tiers: tiers}
	default:
		return catalog.CostSpec{}
	}
}

func decodeCostRange(entry map[string]any) catalog.CostRange {
	var r catalog.CostRange
	if rangeVal, ok := entry["range"].([]any); ok && len(rangeVal) == 2 {
		r.Low = toInt(rangeVal[0])
		if hi, isInf := isUnbounded(rangeVal[1]); !isInf {
			r.High = &hi
		}
	}
	if cost, ok := entry["cost"].(float64); ok {
		r.Cost = cost
	}
	return r
}

func toInt(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	default:
		return 0
	}
}

// isUnbounded reports whether the high end of a range is the spec's `∞`
// sentinel, represented in YAML as the string "inf" or "infinity".
func isUnbounded(v any) (int, bool) {
	switch n := v.(type) {
	case string:
		return 0, strings.EqualFold(n, "inf") || strings.EqualFold(n, "infinity")
	case float64:
		return int(n), false
	case int:
		return n, false
	default:
		return 0, true
	}
}
