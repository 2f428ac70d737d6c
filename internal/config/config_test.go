package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
providers:
  openai:
    api_key: ${TEST_API_KEY}
    base_url: https://example.com/v1
    models:
      gpt-4o:
        input_token_cost: 0.001
        output_token_cost: 0.002
`
	err := os.WriteFile(configPath, []byte(yamlContent), 0644)
	require.NoError(t, err)

	t.Setenv("TEST_API_KEY", "my-secret-key")

	cat, err := Load(configPath)
	require.NoError(t, err)

	pc, err := cat.Provider("openai")
	require.NoError(t, err)
	assert.Equal(t, "my-secret-key", pc.APIKey)
	assert.Equal(t, "https://example.com/v1", pc.BaseURL)

	model, err := cat.Lookup("openai", "gpt-4o")
	require.NoError(t, err)
	assert.Equal(t, 0.001, model.InputTokenCost.Calculate(1))
}

func TestLoadEnvOverride(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
providers:
  openai:
    base_url: https://example.com/v1
    models:
      gpt-4o:
        input_token_cost: 0.001
        output_token_cost: 0.002
`
	err := os.WriteFile(configPath, []byte(yamlContent), 0644)
	require.NoError(t, err)

	t.Setenv("LLMENGINE_PROVIDERS_OPENAI_BASE_URL", "https://override.example.com/v1")

	cat, err := Load(configPath)
	require.NoError(t, err)

	pc, err := cat.Provider("openai")
	require.NoError(t, err)
	assert.Equal(t, "https://override.example.com/v1", pc.BaseURL)
}

func TestLoadTieredCost(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
providers:
  openai:
    models:
      gpt-4o:
        input_token_cost:
          - range: [0, 1000]
            cost: 0.001
          - range: [1001, inf]
            cost: 0.0005
        output_token_cost: 0.002
`
	err := os.WriteFile(configPath, []byte(yamlContent), 0644)
	require.NoError(t, err)

	cat, err := Load(configPath)
	require.NoError(t, err)

	model, err := cat.Lookup("openai", "gpt-4o")
	require.NoError(t, err)
	assert.InDelta(t, 0.75, model.InputTokenCost.Calculate(1500), 1e-9)
}

func TestLoadUnknownModel(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	err := os.WriteFile(configPath, []byte("providers:\n  openai:\n    models: {}\n"), 0644)
	require.NoError(t, err)

	cat, err := Load(configPath)
	require.NoError(t, err)

	_, err = cat.Lookup("openai", "no-such-model")
	assert.Error(t, err)
}
