package llmfactory

import (
	"github.com/convoke-ai/convoke/pkg/llms"
	"github.com/effective-security/x/configloader"
)

// Config lists the configured model backends.
type Config struct {
	Backends []*BackendConfig `json:"backends" yaml:"backends"`
}

// BackendConfig describes one model backend.
type BackendConfig struct {
	// Name is the lookup key for ModelByName.
	Name string `json:"name" yaml:"name"`
	// Provider selects the adapter: openai, anthropic or googleai.
	Provider string `json:"provider" yaml:"provider"`
	// Token is the API key; when empty the adapter reads its provider
	// environment variable.
	Token string `json:"token,omitempty" yaml:"token,omitempty"`
	// Model is the backend model identifier.
	Model string `json:"model" yaml:"model"`
	// BaseURL overrides the provider endpoint.
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	// Temperature overrides the backend default sampling temperature.
	Temperature *float64 `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	// MaxTokens bounds the completion size; zero keeps the backend default.
	MaxTokens int `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
}

// CallOptions renders the configured sampling parameters as call options.
func (c *BackendConfig) CallOptions() []llms.CallOption {
	var opts []llms.CallOption
	if c.Temperature != nil {
		opts = append(opts, llms.WithTemperature(*c.Temperature))
	}
	if c.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(c.MaxTokens))
	}
	return opts
}

// Backend returns the named backend config; empty name selects the first.
func (c *Config) Backend(name string) *BackendConfig {
	if name == "" && len(c.Backends) > 0 {
		return c.Backends[0]
	}
	for _, b := range c.Backends {
		if b.Name == name {
			return b
		}
	}
	return nil
}

// LoadConfig from file
func LoadConfig(file string) (*Config, error) {
	cfg := new(Config)
	if file == "" {
		return cfg, nil
	}

	err := configloader.UnmarshalAndExpand(file, cfg)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}
