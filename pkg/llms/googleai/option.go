package googleai

import (
	"net/http"
)

const (
	APIKeyEnvVarName = "GEMINI_API_KEY" //nolint:gosec
)

type Options struct {
	APIKey     string
	Model      string
	HTTPClient *http.Client
}

type Option func(*Options)

// WithAPIKey passes the Gemini API key to the client. If not set, the key
// is read from the GEMINI_API_KEY environment variable.
func WithAPIKey(apiKey string) Option {
	return func(opts *Options) {
		opts.APIKey = apiKey
	}
}

// WithModel passes the Gemini model to the client.
func WithModel(model string) Option {
	return func(opts *Options) {
		opts.Model = model
	}
}

// WithHTTPClient allows setting a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(opts *Options) {
		opts.HTTPClient = client
	}
}
