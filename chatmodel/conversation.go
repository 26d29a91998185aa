// Package chatmodel holds the conversation accumulator and the chat
// identity carried through contexts.
package chatmodel

import (
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/convoke-ai/convoke/pkg/llms"
)

var (
	// ErrSequence indicates an append that violates conversation ordering:
	// a tool result with no matching outstanding call, a duplicate result
	// for the same call, or a turn appended while results are still owed.
	ErrSequence = errors.New("conversation sequence violation")

	// ErrStateBusy indicates a mutation attempted while a tool round is in
	// flight.
	ErrStateBusy = errors.New("conversation is mid-round")
)

// Conversation is the ordered transcript of one session. Appends are
// validated so the transcript always replays as a coherent exchange:
// user and assistant turns alternate, and every requested tool call is
// answered before the next turn.
type Conversation struct {
	mu       sync.Mutex
	messages []llms.Message
	pending  map[string]bool
	order    []string
}

// NewConversation returns an empty conversation.
func NewConversation() *Conversation {
	return &Conversation{
		pending: make(map[string]bool),
	}
}

// AppendUserMessage adds a human turn.
func (c *Conversation) AppendUserMessage(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.pending) > 0 {
		return errors.WithMessage(ErrSequence, "tool results are still outstanding")
	}
	c.messages = append(c.messages, llms.MessageFromTextParts(llms.RoleHuman, text))
	return nil
}

// AppendModelTurn adds an assistant turn. When the turn carries tool calls,
// the conversation enters a round: every call ID must be answered through
// AppendToolResults before any other append.
func (c *Conversation) AppendModelTurn(msg llms.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if msg.Role != llms.RoleAI {
		return errors.WithMessagef(ErrSequence, "expected assistant turn, got %q", msg.Role)
	}
	if len(c.pending) > 0 {
		return errors.WithMessage(ErrSequence, "tool results are still outstanding")
	}

	calls := llms.ToolCallsOf(msg)
	for _, call := range calls {
		if call.ID == "" {
			return errors.WithMessage(ErrSequence, "tool call has no ID")
		}
		if c.pending[call.ID] {
			return errors.WithMessagef(ErrSequence, "duplicate tool call ID %q in one turn", call.ID)
		}
		c.pending[call.ID] = true
		c.order = append(c.order, call.ID)
	}
	c.messages = append(c.messages, msg)
	return nil
}

// AppendToolResults adds tool result turns for the open round. Each result
// must answer an outstanding call exactly once; the round closes when the
// last outstanding call is answered.
func (c *Conversation) AppendToolResults(msgs ...llms.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, msg := range msgs {
		res, ok := llms.ToolResponseOf(msg)
		if !ok {
			return errors.WithMessagef(ErrSequence, "expected tool result turn, got %q", msg.Role)
		}
		if !c.pending[res.ToolCallID] {
			return errors.WithMessagef(ErrSequence, "no outstanding call with ID %q", res.ToolCallID)
		}
		delete(c.pending, res.ToolCallID)
		c.messages = append(c.messages, msg)
	}
	if len(c.pending) == 0 {
		c.order = nil
	}
	return nil
}

// PendingCallIDs returns the call IDs still owed a result, in request
// order.
func (c *Conversation) PendingCallIDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, id := range c.order {
		if c.pending[id] {
			out = append(out, id)
		}
	}
	return out
}

// Messages returns a copy of the full transcript.
func (c *Conversation) Messages() []llms.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]llms.Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Snapshot returns up to limit most recent messages. The window never
// begins with a tool result, so the slice always replays cleanly.
// limit <= 0 returns the full transcript.
func (c *Conversation) Snapshot(limit int) []llms.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	start := 0
	if limit > 0 && len(c.messages) > limit {
		start = len(c.messages) - limit
	}
	for start < len(c.messages) {
		if _, isTool := llms.ToolResponseOf(c.messages[start]); !isTool {
			break
		}
		start++
	}
	out := make([]llms.Message, len(c.messages)-start)
	copy(out, c.messages[start:])
	return out
}

// Len returns the number of messages in the transcript.
func (c *Conversation) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.messages)
}

// Clear empties the transcript. A conversation mid-round cannot be
// cleared.
func (c *Conversation) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.pending) > 0 {
		return errors.WithMessage(ErrStateBusy, "tool results are still outstanding")
	}
	c.messages = nil
	c.order = nil
	return nil
}
