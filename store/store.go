// Package store persists conversation transcripts keyed by the chat ID
// carried in the context.
package store

import (
	"context"

	"github.com/convoke-ai/convoke/pkg/llms"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/convoke-ai/convoke", "store")

// MessageStore persists the transcript of one chat. The chat identity
// comes from the context, see chatmodel.WithChatContext.
type MessageStore interface {
	// Messages returns the stored transcript in append order.
	Messages(ctx context.Context) []llms.Message
	// Add appends messages to the transcript.
	Add(ctx context.Context, msgs ...llms.Message) error
	// Reset removes the transcript.
	Reset(ctx context.Context) error
}
