package config_test

import (
	"testing"

	"github.com/convoke-ai/convoke/config"
	"github.com/convoke-ai/convoke/llmfactory"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Load(t *testing.T) {
	cfg, err := config.Load("testdata/convoke.yaml")
	require.NoError(t, err)

	temperature := 0.1
	exp := &config.Config{
		LLM: llmfactory.Config{
			Backends: []*llmfactory.BackendConfig{
				{
					Name:        "default",
					Provider:    "openai",
					Model:       "gpt-4o",
					Temperature: &temperature,
					MaxTokens:   1000,
				},
			},
		},
		Providers: []*config.ProviderConfig{
			{
				Name:      "weather",
				Transport: "streamable_http",
				URL:       "http://localhost:8081/mcp",
				Headers:   map[string]string{"Authorization": "Bearer test-token"},
			},
			{
				Name:      "files",
				Transport: "stdio",
				Command:   "mcp-files",
				Args:      []string{"--root", "/tmp"},
				Env:       []string{"LOG_LEVEL=debug"},
			},
			{
				Name:      "builtin",
				Transport: "local",
			},
		},
		Orchestrator: config.OrchestratorConfig{
			MaxSteps:     8,
			HistoryLimit: 40,
			SystemPrompt: "Answer briefly.",
		},
		Redis: &config.RedisConfig{
			Addr:   "localhost:6379",
			Prefix: "convoke",
		},
	}
	assert.Empty(t, cmp.Diff(exp, cfg))
}

func Test_LoadMissing(t *testing.T) {
	_, err := config.Load("")
	require.Error(t, err)

	_, err = config.Load("testdata/non-existent.yaml")
	require.Error(t, err)
}

func Test_Validate(t *testing.T) {
	valid := func() *config.Config {
		return &config.Config{
			Providers: []*config.ProviderConfig{
				{Name: "weather", Transport: "streamable_http", URL: "http://localhost:8081/mcp"},
			},
		}
	}

	require.NoError(t, valid().Validate())

	cfg := valid()
	cfg.Providers[0].URL = ""
	require.Error(t, cfg.Validate())

	cfg = valid()
	cfg.Providers[0].Transport = "websocket"
	require.Error(t, cfg.Validate())

	cfg = valid()
	cfg.Providers = append(cfg.Providers, &config.ProviderConfig{
		Name:      "weather",
		Transport: "local",
	})
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate provider name")

	cfg = valid()
	cfg.Providers = append(cfg.Providers, &config.ProviderConfig{
		Name:      "files",
		Transport: "stdio",
	})
	// stdio without a command is rejected.
	require.Error(t, cfg.Validate())
}
