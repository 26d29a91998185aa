package llmfactory_test

import (
	"context"
	"testing"

	"github.com/convoke-ai/convoke/llmfactory"
	"github.com/convoke-ai/convoke/pkg/llms"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_LoadConfig(t *testing.T) {
	cfg, err := llmfactory.LoadConfig("testdata/llm.yaml")
	require.NoError(t, err)
	require.Len(t, cfg.Backends, 3)
	assert.Equal(t, "default", cfg.Backends[0].Name)
	assert.Equal(t, "openai", cfg.Backends[0].Provider)
	assert.Equal(t, "gpt-4o", cfg.Backends[0].Model)

	// Empty location yields an empty config.
	cfg, err = llmfactory.LoadConfig("")
	require.NoError(t, err)
	assert.Empty(t, cfg.Backends)

	_, err = llmfactory.LoadConfig("testdata/non-existent.yaml")
	require.Error(t, err)

	_, err = llmfactory.LoadConfig("testdata/invalid.yaml")
	require.Error(t, err)
}

func Test_Backend(t *testing.T) {
	cfg, err := llmfactory.LoadConfig("testdata/llm.yaml")
	require.NoError(t, err)

	// Empty name selects the first backend.
	bc := cfg.Backend("")
	require.NotNil(t, bc)
	assert.Equal(t, "default", bc.Name)

	bc = cfg.Backend("claude")
	require.NotNil(t, bc)
	assert.Equal(t, "anthropic", bc.Provider)

	assert.Nil(t, cfg.Backend("non-existent"))
	assert.Nil(t, (&llmfactory.Config{}).Backend(""))
}

func Test_CallOptions(t *testing.T) {
	cfg, err := llmfactory.LoadConfig("testdata/llm.yaml")
	require.NoError(t, err)

	bc := cfg.Backend("default")
	require.NotNil(t, bc)

	var resolved llms.CallOptions
	for _, opt := range bc.CallOptions() {
		opt(&resolved)
	}
	assert.InDelta(t, 0.1, resolved.Temperature, 1e-9)
	assert.Equal(t, 1000, resolved.MaxTokens)

	// Unset parameters produce no options, so backend defaults stay.
	bc = cfg.Backend("fast")
	require.NotNil(t, bc)
	assert.Empty(t, bc.CallOptions())
}

func Test_Load(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "fakekey")
	t.Setenv("ANTHROPIC_API_KEY", "fakekey")

	f, err := llmfactory.Load("testdata/llm.yaml")
	require.NoError(t, err)
	require.NotNil(t, f)

	_, err = llmfactory.Load("testdata/non-existent.yaml")
	require.Error(t, err)
}

func Test_Factory(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "fakekey")
	t.Setenv("ANTHROPIC_API_KEY", "fakekey")
	ctx := context.Background()

	cfg, err := llmfactory.LoadConfig("testdata/llm.yaml")
	require.NoError(t, err)

	f := llmfactory.New(cfg)

	model, err := f.DefaultModel(ctx)
	require.NoError(t, err)
	require.NotNil(t, model)
	assert.Equal(t, "gpt-4o", model.GetName())
	assert.Equal(t, llms.ProviderOpenAI, model.GetProviderType())

	model, err = f.ModelByName(ctx, "fast")
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", model.GetName())

	model, err = f.ModelByName(ctx, "claude")
	require.NoError(t, err)
	assert.Equal(t, "claude-sonnet-4-20250514", model.GetName())
	assert.Equal(t, llms.ProviderAnthropic, model.GetProviderType())

	_, err = f.ModelByName(ctx, "non-existent")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backend not found")
}

func Test_ModelCaching(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "fakekey")
	ctx := context.Background()

	cfg := &llmfactory.Config{
		Backends: []*llmfactory.BackendConfig{
			{Name: "default", Provider: "openai", Model: "gpt-4o"},
		},
	}
	f := llmfactory.New(cfg)

	model1, err := f.ModelByName(ctx, "default")
	require.NoError(t, err)
	model2, err := f.ModelByName(ctx, "default")
	require.NoError(t, err)
	assert.Same(t, model1, model2)
}

func Test_NewLLM(t *testing.T) {
	ctx := context.Background()

	model, err := llmfactory.NewLLM(ctx, &llmfactory.BackendConfig{
		Name:     "custom",
		Provider: "openai",
		Token:    "fakekey",
		Model:    "gpt-4o",
		BaseURL:  "https://proxy.example.com/v1",
	})
	require.NoError(t, err)
	require.NotNil(t, model)

	model, err = llmfactory.NewLLM(ctx, &llmfactory.BackendConfig{
		Name:     "claude",
		Provider: "Anthropic",
		Token:    "fakekey",
		Model:    "claude-sonnet-4-20250514",
	})
	require.NoError(t, err)
	require.NotNil(t, model)

	_, err = llmfactory.NewLLM(ctx, &llmfactory.BackendConfig{
		Name:     "bad",
		Provider: "bedrock",
		Model:    "whatever",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported provider")
}

func Test_EmptyConfig(t *testing.T) {
	f := llmfactory.New(&llmfactory.Config{})
	_, err := f.DefaultModel(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no backends configured")
}
