package chatmodel_test

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/convoke-ai/convoke/chatmodel"
	"github.com/convoke-ai/convoke/pkg/llms"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func modelTurnWithCalls(ids ...string) llms.Message {
	calls := make([]llms.ToolCall, 0, len(ids))
	for _, id := range ids {
		calls = append(calls, llms.ToolCall{
			ID:   id,
			Type: "function",
			FunctionCall: &llms.FunctionCall{
				Name:      "lookup",
				Arguments: `{}`,
			},
		})
	}
	return llms.MessageFromToolCalls(llms.RoleAI, calls...)
}

func toolResult(id string) llms.Message {
	return llms.MessageFromToolResponse(llms.RoleTool, llms.ToolCallResponse{
		ToolCallID: id,
		Name:       "lookup",
		Content:    "ok",
	})
}

func TestConversationBasicExchange(t *testing.T) {
	conv := chatmodel.NewConversation()

	require.NoError(t, conv.AppendUserMessage("what is 2+2?"))
	require.NoError(t, conv.AppendModelTurn(llms.MessageFromTextParts(llms.RoleAI, "4")))

	msgs := conv.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, llms.RoleHuman, msgs[0].Role)
	assert.Equal(t, llms.RoleAI, msgs[1].Role)
	assert.Empty(t, conv.PendingCallIDs())
}

func TestConversationToolRound(t *testing.T) {
	conv := chatmodel.NewConversation()

	require.NoError(t, conv.AppendUserMessage("look it up"))
	require.NoError(t, conv.AppendModelTurn(modelTurnWithCalls("call_1", "call_2")))
	assert.Equal(t, []string{"call_1", "call_2"}, conv.PendingCallIDs())

	// A new turn cannot start while results are owed.
	err := conv.AppendUserMessage("another")
	require.Error(t, err)
	assert.True(t, errors.Is(err, chatmodel.ErrSequence))
	err = conv.AppendModelTurn(llms.MessageFromTextParts(llms.RoleAI, "early"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, chatmodel.ErrSequence))

	require.NoError(t, conv.AppendToolResults(toolResult("call_1")))
	assert.Equal(t, []string{"call_2"}, conv.PendingCallIDs())
	require.NoError(t, conv.AppendToolResults(toolResult("call_2")))
	assert.Empty(t, conv.PendingCallIDs())

	require.NoError(t, conv.AppendModelTurn(llms.MessageFromTextParts(llms.RoleAI, "done")))
	assert.Equal(t, 5, conv.Len())
}

func TestConversationRejectsUnknownResult(t *testing.T) {
	conv := chatmodel.NewConversation()

	require.NoError(t, conv.AppendUserMessage("look it up"))
	require.NoError(t, conv.AppendModelTurn(modelTurnWithCalls("call_1")))

	err := conv.AppendToolResults(toolResult("call_9"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, chatmodel.ErrSequence))

	// A second result for the same call is rejected too.
	require.NoError(t, conv.AppendToolResults(toolResult("call_1")))
	err = conv.AppendToolResults(toolResult("call_1"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, chatmodel.ErrSequence))
}

func TestConversationRejectsCallWithoutID(t *testing.T) {
	conv := chatmodel.NewConversation()

	require.NoError(t, conv.AppendUserMessage("look it up"))
	err := conv.AppendModelTurn(modelTurnWithCalls(""))
	require.Error(t, err)
	assert.True(t, errors.Is(err, chatmodel.ErrSequence))
}

func TestConversationClear(t *testing.T) {
	conv := chatmodel.NewConversation()

	require.NoError(t, conv.AppendUserMessage("look it up"))
	require.NoError(t, conv.AppendModelTurn(modelTurnWithCalls("call_1")))

	err := conv.Clear()
	require.Error(t, err)
	assert.True(t, errors.Is(err, chatmodel.ErrStateBusy))

	require.NoError(t, conv.AppendToolResults(toolResult("call_1")))
	require.NoError(t, conv.Clear())
	assert.Equal(t, 0, conv.Len())
}

func TestConversationSnapshot(t *testing.T) {
	conv := chatmodel.NewConversation()

	require.NoError(t, conv.AppendUserMessage("look it up"))
	require.NoError(t, conv.AppendModelTurn(modelTurnWithCalls("call_1")))
	require.NoError(t, conv.AppendToolResults(toolResult("call_1")))
	require.NoError(t, conv.AppendModelTurn(llms.MessageFromTextParts(llms.RoleAI, "done")))

	full := conv.Snapshot(0)
	require.Len(t, full, 4)

	// A window that would begin with a tool result slides past it.
	window := conv.Snapshot(2)
	require.Len(t, window, 1)
	assert.Equal(t, llms.RoleAI, window[0].Role)

	window = conv.Snapshot(3)
	require.Len(t, window, 3)
	assert.Equal(t, llms.RoleAI, window[0].Role)
}

func TestChatContext(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, chatmodel.GetChatID(ctx))

	cc := chatmodel.NewChatContext("", nil)
	assert.NotEmpty(t, cc.GetChatID())

	ctx = chatmodel.WithChatContext(ctx, cc)
	assert.Equal(t, cc.GetChatID(), chatmodel.GetChatID(ctx))

	cc.SetMetadata("key", "value")
	v, ok := cc.GetMetadata("key")
	require.True(t, ok)
	assert.Equal(t, "value", v)

	named := chatmodel.NewChatContext("chat-42", nil)
	assert.Equal(t, "chat-42", named.GetChatID())
}
