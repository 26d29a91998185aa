package orchestrator

import (
	"github.com/convoke-ai/convoke/store"
)

// DefaultMaxSteps bounds the number of model turns one run may take.
const DefaultMaxSteps = 10

type config struct {
	maxSteps     int
	historyLimit int
	systemPrompt string
	callback     Callback
	store        store.MessageStore
}

// Option configures an Orchestrator.
type Option func(*config)

// WithMaxSteps overrides the model-turn limit for a run.
func WithMaxSteps(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.maxSteps = n
		}
	}
}

// WithHistoryLimit bounds how many transcript messages are replayed to the
// model each turn. Zero replays the full transcript.
func WithHistoryLimit(n int) Option {
	return func(c *config) {
		c.historyLimit = n
	}
}

// WithSystemPrompt sets the system turn prepended to every model payload.
func WithSystemPrompt(prompt string) Option {
	return func(c *config) {
		c.systemPrompt = prompt
	}
}

// WithCallback sets the run event receiver.
func WithCallback(cb Callback) Option {
	return func(c *config) {
		c.callback = cb
	}
}

// WithStore persists the transcript after each run.
func WithStore(s store.MessageStore) Option {
	return func(c *config) {
		c.store = s
	}
}
