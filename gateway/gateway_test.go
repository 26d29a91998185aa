package gateway_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/convoke-ai/convoke/gateway"
	"github.com/convoke-ai/convoke/mcp"
	"github.com/convoke-ai/convoke/pkg/llms"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeModel struct {
	name     string
	response *llms.ContentResponse
	err      error

	gotMessages []llms.Message
	gotOpts     llms.CallOptions
}

func (m *fakeModel) GetProviderType() llms.ProviderType { return llms.ProviderOpenAI }
func (m *fakeModel) GetName() string                    { return m.name }

func (m *fakeModel) GenerateContent(ctx context.Context, messages []llms.Message, options ...llms.CallOption) (*llms.ContentResponse, error) {
	m.gotMessages = messages
	m.gotOpts = llms.CallOptions{}
	for _, opt := range options {
		opt(&m.gotOpts)
	}
	return m.response, m.err
}

func weatherDescriptor() mcp.ToolDescriptor {
	return mcp.ToolDescriptor{
		Name:        "Weather",
		Description: "current weather",
		InputSchema: json.RawMessage(`{"type":"object","properties":{"city":{"type":"string"}},"required":["city"]}`),
		Provider:    "alpha",
	}
}

func textResponse(text string) *llms.ContentResponse {
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{
			{Content: text, StopReason: "stop"},
		},
	}
}

func toolCallResponse(calls ...llms.ToolCall) *llms.ContentResponse {
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{
			{ToolCalls: calls, StopReason: "tool_calls"},
		},
	}
}

func TestCompleteTextAnswer(t *testing.T) {
	model := &fakeModel{name: "gpt-test", response: textResponse("the answer is 4")}
	gw := gateway.New(model)

	history := []llms.Message{llms.MessageFromTextParts(llms.RoleHuman, "2+2?")}
	turn, err := gw.Complete(context.Background(), history, nil)
	require.NoError(t, err)

	assert.Equal(t, "the answer is 4", turn.Content)
	assert.Empty(t, turn.ToolCalls)
	assert.Equal(t, llms.RoleAI, turn.Message.Role)
	assert.Equal(t, "stop", turn.StopReason)
	assert.Empty(t, model.gotOpts.Tools)
}

func TestCompletePassesTools(t *testing.T) {
	model := &fakeModel{name: "gpt-test", response: textResponse("ok")}
	gw := gateway.New(model)

	_, err := gw.Complete(context.Background(), nil, []mcp.ToolDescriptor{weatherDescriptor()})
	require.NoError(t, err)

	require.Len(t, model.gotOpts.Tools, 1)
	tool := model.gotOpts.Tools[0]
	assert.Equal(t, "function", tool.Type)
	assert.Equal(t, "Weather", tool.Function.Name)

	params, ok := tool.Function.Parameters.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "object", params["type"])
}

func TestCompleteToolCalls(t *testing.T) {
	model := &fakeModel{name: "gpt-test", response: toolCallResponse(
		llms.ToolCall{
			ID:   "call_1",
			Type: "function",
			FunctionCall: &llms.FunctionCall{
				Name:      "Weather",
				Arguments: `{"city":"Oslo"}`,
			},
		},
	)}
	gw := gateway.New(model)

	turn, err := gw.Complete(context.Background(), nil, []mcp.ToolDescriptor{weatherDescriptor()})
	require.NoError(t, err)

	require.Len(t, turn.ToolCalls, 1)
	assert.Equal(t, "call_1", turn.ToolCalls[0].ID)
	assert.Equal(t, llms.RoleAI, turn.Message.Role)
	assert.Len(t, llms.ToolCallsOf(turn.Message), 1)
}

func TestCompleteFillsMissingCallIDs(t *testing.T) {
	model := &fakeModel{name: "gpt-test", response: toolCallResponse(
		llms.ToolCall{FunctionCall: &llms.FunctionCall{Name: "Weather", Arguments: `{}`}},
		llms.ToolCall{ID: "dup", FunctionCall: &llms.FunctionCall{Name: "Weather", Arguments: `{}`}},
		llms.ToolCall{ID: "dup", FunctionCall: &llms.FunctionCall{Name: "Weather", Arguments: `{}`}},
	)}
	gw := gateway.New(model)

	turn, err := gw.Complete(context.Background(), nil, []mcp.ToolDescriptor{weatherDescriptor()})
	require.NoError(t, err)
	require.Len(t, turn.ToolCalls, 3)

	seen := map[string]bool{}
	for _, call := range turn.ToolCalls {
		assert.NotEmpty(t, call.ID)
		assert.False(t, seen[call.ID], "call IDs must be unique")
		seen[call.ID] = true
	}
}

func TestCompleteRejectsUnknownTool(t *testing.T) {
	model := &fakeModel{name: "gpt-test", response: toolCallResponse(
		llms.ToolCall{ID: "call_1", FunctionCall: &llms.FunctionCall{Name: "Stock", Arguments: `{}`}},
	)}
	gw := gateway.New(model)

	_, err := gw.Complete(context.Background(), nil, []mcp.ToolDescriptor{weatherDescriptor()})
	require.Error(t, err)
	assert.True(t, errors.Is(err, gateway.ErrMalformedResponse))
}

func TestCompleteEmptyChoices(t *testing.T) {
	model := &fakeModel{name: "gpt-test", response: &llms.ContentResponse{}}
	gw := gateway.New(model)

	_, err := gw.Complete(context.Background(), nil, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, gateway.ErrMalformedResponse))
}

func TestCompleteBackendError(t *testing.T) {
	model := &fakeModel{name: "gpt-test", err: errors.New("rate limited")}
	gw := gateway.New(model)

	_, err := gw.Complete(context.Background(), nil, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, gateway.ErrBackend))
}

func TestToolsFromDescriptorsEmptySchema(t *testing.T) {
	tools, err := gateway.ToolsFromDescriptors([]mcp.ToolDescriptor{
		{Name: "Ping", Description: "no arguments"},
	})
	require.NoError(t, err)
	require.Len(t, tools, 1)

	params, ok := tools[0].Function.Parameters.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "object", params["type"])
}

func TestToolsFromDescriptorsInvalidSchema(t *testing.T) {
	_, err := gateway.ToolsFromDescriptors([]mcp.ToolDescriptor{
		{Name: "Bad", InputSchema: json.RawMessage(`not json`)},
	})
	require.Error(t, err)
}
