// Package gateway drives single model turns: it renders the callable tool
// set for the backend, executes one completion, and normalizes the result.
package gateway

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/convoke-ai/convoke/mcp"
	"github.com/convoke-ai/convoke/pkg/llms"
	"github.com/convoke-ai/convoke/pkg/llmutils"
	"github.com/convoke-ai/convoke/pkg/metricskey"
	"github.com/effective-security/xlog"
	"github.com/google/uuid"
)

var logger = xlog.NewPackageLogger("github.com/convoke-ai/convoke", "gateway")

var (
	// ErrBackend indicates the model backend call failed: transport, auth,
	// rate limit, or server error. The turn it belongs to fails as a whole.
	ErrBackend = errors.New("model backend failed")

	// ErrMalformedResponse indicates the backend answered but the payload
	// cannot be interpreted as a turn.
	ErrMalformedResponse = errors.New("malformed model response")
)

// ModelTurn is one normalized model reply. Exactly one of Content or
// ToolCalls drives the caller: a turn with tool calls opens a tool round,
// a turn without them is a final answer.
type ModelTurn struct {
	// Message is the assistant turn to append to the transcript.
	Message llms.Message
	// Content is the textual part of the reply.
	Content string
	// ToolCalls are the requested invocations, IDs filled and unique.
	ToolCalls []llms.ToolCall
	// StopReason is the backend's stated reason for ending the turn.
	StopReason string
}

// Gateway wraps one model with the turn-shaping rules.
type Gateway struct {
	model llms.Model
	opts  []llms.CallOption
}

// New creates a gateway over the model. The call options apply to every
// turn.
func New(model llms.Model, opts ...llms.CallOption) *Gateway {
	return &Gateway{
		model: model,
		opts:  opts,
	}
}

// ModelName returns the backing model identifier.
func (g *Gateway) ModelName() string {
	return g.model.GetName()
}

// ToolsFromDescriptors converts provider descriptors to the tool
// declarations the model consumes. Descriptors with no schema get an empty
// object schema.
func ToolsFromDescriptors(descs []mcp.ToolDescriptor) ([]llms.Tool, error) {
	out := make([]llms.Tool, 0, len(descs))
	for _, desc := range descs {
		params := map[string]any{"type": "object"}
		if len(desc.InputSchema) > 0 {
			params = map[string]any{}
			if err := json.Unmarshal(desc.InputSchema, &params); err != nil {
				return nil, errors.WithMessagef(err, "invalid schema for tool %q", desc.Name)
			}
		}
		out = append(out, llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        desc.Name,
				Description: desc.Description,
				Parameters:  params,
			},
		})
	}
	return out, nil
}

// Complete runs one model turn over the history with the given callable
// set. Tool calls naming a tool outside the callable set make the whole
// turn malformed; call IDs the backend omitted are filled in.
func (g *Gateway) Complete(ctx context.Context, history []llms.Message, descs []mcp.ToolDescriptor) (*ModelTurn, error) {
	tools, err := ToolsFromDescriptors(descs)
	if err != nil {
		return nil, errors.Mark(err, ErrMalformedResponse)
	}

	opts := g.opts
	if len(tools) > 0 {
		opts = append(append([]llms.CallOption{}, g.opts...), llms.WithTools(tools))
	}

	metricskey.StatsLLMMessagesSent.IncrCounter(float64(len(history)), g.model.GetName())
	metricskey.StatsLLMBytesSent.IncrCounter(float64(llmutils.CountMessagesContentSize(history)), g.model.GetName())

	started := time.Now()
	resp, err := g.model.GenerateContent(ctx, history, opts...)
	metricskey.PerfLLMCall.MeasureSince(started, g.model.GetName())
	if err != nil {
		if ctx.Err() != nil {
			return nil, errors.WithStack(ctx.Err())
		}
		return nil, errors.Mark(errors.WithMessagef(err, "completion failed on %q", g.model.GetName()), ErrBackend)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return nil, errors.WithMessagef(ErrMalformedResponse, "model %q returned no choices", g.model.GetName())
	}

	choice := resp.Choices[0]
	known := make(map[string]bool, len(descs))
	for _, desc := range descs {
		known[desc.Name] = true
	}

	calls := make([]llms.ToolCall, 0, len(choice.ToolCalls))
	seen := make(map[string]bool, len(choice.ToolCalls))
	for _, call := range choice.ToolCalls {
		if call.FunctionCall == nil || call.FunctionCall.Name == "" {
			return nil, errors.WithMessagef(ErrMalformedResponse, "model %q requested a call with no function", g.model.GetName())
		}
		if !known[call.FunctionCall.Name] {
			return nil, errors.WithMessagef(ErrMalformedResponse, "model %q requested unknown tool %q", g.model.GetName(), call.FunctionCall.Name)
		}
		if call.ID == "" || seen[call.ID] {
			call.ID = uuid.NewString()
		}
		seen[call.ID] = true
		calls = append(calls, call)
	}

	turn := &ModelTurn{
		Content:    choice.Content,
		ToolCalls:  calls,
		StopReason: choice.StopReason,
	}
	if len(calls) > 0 {
		turn.Message = llms.MessageFromToolCalls(llms.RoleAI, calls...)
		if choice.Content != "" {
			turn.Message.Parts = append([]llms.ContentPart{llms.TextContent{Text: choice.Content}}, turn.Message.Parts...)
		}
	} else {
		turn.Message = llms.MessageFromTextParts(llms.RoleAI, choice.Content)
	}

	logger.ContextKV(ctx, xlog.DEBUG,
		"model", g.model.GetName(),
		"stop_reason", choice.StopReason,
		"tool_calls", len(calls),
		"content_len", len(choice.Content),
	)
	return turn, nil
}
