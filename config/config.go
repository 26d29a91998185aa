// Package config defines the application configuration.
package config

import (
	"github.com/cockroachdb/errors"
	"github.com/convoke-ai/convoke/llmfactory"
	"github.com/effective-security/x/configloader"
	"github.com/go-playground/validator/v10"
)

// Config is the top-level application configuration.
type Config struct {
	// LLM lists the model backends; the first one is the default.
	LLM llmfactory.Config `json:"llm" yaml:"llm"`

	// Providers lists the tool providers to connect.
	Providers []*ProviderConfig `json:"providers,omitempty" yaml:"providers,omitempty" validate:"dive"`

	// Orchestrator tunes the run loop.
	Orchestrator OrchestratorConfig `json:"orchestrator,omitempty" yaml:"orchestrator,omitempty"`

	// Redis enables persistent transcripts when set.
	Redis *RedisConfig `json:"redis,omitempty" yaml:"redis,omitempty"`
}

// ProviderConfig describes one tool provider connection.
type ProviderConfig struct {
	// Name identifies the provider; tool descriptors carry it.
	Name string `json:"name" yaml:"name" validate:"required"`
	// Transport selects the session type.
	Transport string `json:"transport" yaml:"transport" validate:"required,oneof=streamable_http stdio local"`
	// URL is the endpoint for streamable_http transports.
	URL string `json:"url,omitempty" yaml:"url,omitempty" validate:"required_if=Transport streamable_http"`
	// Headers are added to every streamable_http request.
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	// Command is the subprocess for stdio transports.
	Command string `json:"command,omitempty" yaml:"command,omitempty" validate:"required_if=Transport stdio"`
	// Args are passed to the subprocess.
	Args []string `json:"args,omitempty" yaml:"args,omitempty"`
	// Env is appended to the subprocess environment.
	Env []string `json:"env,omitempty" yaml:"env,omitempty"`
}

// OrchestratorConfig tunes the run loop.
type OrchestratorConfig struct {
	// MaxSteps bounds model turns per run; zero means the default.
	MaxSteps int `json:"max_steps,omitempty" yaml:"max_steps,omitempty" validate:"gte=0"`
	// HistoryLimit bounds transcript replay; zero replays everything.
	HistoryLimit int `json:"history_limit,omitempty" yaml:"history_limit,omitempty" validate:"gte=0"`
	// SystemPrompt is prepended to every model payload.
	SystemPrompt string `json:"system_prompt,omitempty" yaml:"system_prompt,omitempty"`
}

// RedisConfig configures the transcript store.
type RedisConfig struct {
	Addr     string `json:"addr" yaml:"addr" validate:"required"`
	Password string `json:"password,omitempty" yaml:"password,omitempty"`
	DB       int    `json:"db,omitempty" yaml:"db,omitempty"`
	Prefix   string `json:"prefix,omitempty" yaml:"prefix,omitempty"`
}

// Load reads, expands and validates the configuration file.
func Load(file string) (*Config, error) {
	cfg := new(Config)
	if file == "" {
		return nil, errors.New("config file is required")
	}
	if err := configloader.UnmarshalAndExpand(file, cfg); err != nil {
		return nil, errors.WithMessagef(err, "failed to load config: %s", file)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration invariants.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return errors.WithMessage(err, "invalid configuration")
	}
	seen := map[string]bool{}
	for _, p := range c.Providers {
		if seen[p.Name] {
			return errors.Newf("duplicate provider name: %s", p.Name)
		}
		seen[p.Name] = true
	}
	return nil
}
