// Package llmfactory builds Model clients from configuration.
package llmfactory

import (
	"context"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/convoke-ai/convoke/pkg/llms"
	"github.com/convoke-ai/convoke/pkg/llms/anthropic"
	"github.com/convoke-ai/convoke/pkg/llms/googleai"
	"github.com/convoke-ai/convoke/pkg/llms/openai"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/convoke-ai/convoke", "llmfactory")

type Factory interface {
	DefaultModel(ctx context.Context) (llms.Model, error)
	ModelByName(ctx context.Context, name string) (llms.Model, error)
}

// Load returns a factory from the config file at location.
func Load(location string) (Factory, error) {
	cfg, err := LoadConfig(location)
	if err != nil {
		return nil, err
	}
	return New(cfg), nil
}

type factory struct {
	cfg *Config

	byName map[string]llms.Model
	lock   sync.Mutex
}

// New creates a new LLM factory
func New(cfg *Config) Factory {
	return &factory{
		cfg:    cfg,
		byName: make(map[string]llms.Model),
	}
}

// NewLLM builds a model client from one backend config.
func NewLLM(ctx context.Context, cfg *BackendConfig) (llms.Model, error) {
	switch strings.ToLower(cfg.Provider) {
	case "openai":
		var opts []openai.Option
		if cfg.Token != "" {
			opts = append(opts, openai.WithToken(cfg.Token))
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		opts = append(opts, openai.WithModel(cfg.Model))
		return openai.New(opts...)

	case "anthropic":
		var opts []anthropic.Option
		if cfg.Token != "" {
			opts = append(opts, anthropic.WithToken(cfg.Token))
		}
		if cfg.BaseURL != "" {
			opts = append(opts, anthropic.WithBaseURL(cfg.BaseURL))
		}
		opts = append(opts, anthropic.WithModel(cfg.Model))
		return anthropic.New(opts...)

	case "googleai", "gemini":
		var opts []googleai.Option
		if cfg.Token != "" {
			opts = append(opts, googleai.WithAPIKey(cfg.Token))
		}
		opts = append(opts, googleai.WithModel(cfg.Model))
		return googleai.New(ctx, opts...)

	default:
		return nil, errors.Newf("unsupported provider: %s", cfg.Provider)
	}
}

// DefaultModel returns the first configured backend.
func (f *factory) DefaultModel(ctx context.Context) (llms.Model, error) {
	if len(f.cfg.Backends) == 0 {
		return nil, errors.New("no backends configured")
	}
	return f.ModelByName(ctx, f.cfg.Backends[0].Name)
}

func (f *factory) ModelByName(ctx context.Context, name string) (llms.Model, error) {
	f.lock.Lock()
	defer f.lock.Unlock()

	if client, ok := f.byName[name]; ok {
		return client, nil
	}

	for _, cfg := range f.cfg.Backends {
		if cfg.Name == name {
			model, err := NewLLM(ctx, cfg)
			if err != nil {
				return nil, err
			}

			logger.KV(xlog.DEBUG,
				"status", "created_llm",
				"provider", cfg.Provider,
				"model", cfg.Model,
				"name", cfg.Name)

			f.byName[name] = model
			return model, nil
		}
	}
	return nil, errors.Newf("backend not found for name: %s", name)
}
