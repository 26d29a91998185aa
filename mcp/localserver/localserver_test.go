package localserver_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/convoke-ai/convoke/mcp/localserver"
	"github.com/convoke-ai/convoke/mcp/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticTool struct {
	name   string
	output string
	err    error
}

func (t *staticTool) Name() string        { return t.name }
func (t *staticTool) Description() string { return "returns a fixed value" }
func (t *staticTool) Parameters() any {
	return map[string]any{"type": "object"}
}

func (t *staticTool) Call(ctx context.Context, input string) (string, error) {
	return t.output, t.err
}

func sendRequest(t *testing.T, tr transport.Transport, method string, params any) *transport.Response {
	t.Helper()
	resp, err := tr.SendRequest(context.Background(), &transport.Request{
		JSONRPC: transport.Version,
		ID:      1,
		Method:  method,
		Params:  params,
	})
	require.NoError(t, err)
	require.Equal(t, int64(1), resp.ID)
	return resp
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	srv := localserver.New("local")
	require.NoError(t, srv.Register(&staticTool{name: "Answer"}))
	err := srv.Register(&staticTool{name: "answer"})
	require.Error(t, err)
}

func TestInitialize(t *testing.T) {
	srv := localserver.New("local")
	resp := sendRequest(t, srv.Transport(), "initialize", nil)
	require.Nil(t, resp.Error)

	var res struct {
		ProtocolVersion string `json:"protocolVersion"`
		ServerInfo      struct {
			Name string `json:"name"`
		} `json:"serverInfo"`
	}
	require.NoError(t, json.Unmarshal(resp.Result, &res))
	assert.Equal(t, "local", res.ServerInfo.Name)
	assert.NotEmpty(t, res.ProtocolVersion)
}

func TestListTools(t *testing.T) {
	srv := localserver.New("local")
	require.NoError(t, srv.Register(
		&staticTool{name: "First"},
		&staticTool{name: "Second"},
	))

	resp := sendRequest(t, srv.Transport(), "tools/list", nil)
	require.Nil(t, resp.Error)

	var res struct {
		Tools []struct {
			Name        string          `json:"name"`
			InputSchema json.RawMessage `json:"inputSchema"`
		} `json:"tools"`
	}
	require.NoError(t, json.Unmarshal(resp.Result, &res))
	require.Len(t, res.Tools, 2)
	assert.Equal(t, "First", res.Tools[0].Name)
	assert.Equal(t, "Second", res.Tools[1].Name)
	assert.NotEmpty(t, res.Tools[0].InputSchema)
}

func TestCallTool(t *testing.T) {
	srv := localserver.New("local")
	require.NoError(t, srv.Register(&staticTool{name: "Answer", output: "42"}))

	resp := sendRequest(t, srv.Transport(), "tools/call", map[string]any{
		"name":      "Answer",
		"arguments": map[string]any{},
	})
	require.Nil(t, resp.Error)

	var res struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		IsError bool `json:"isError"`
	}
	require.NoError(t, json.Unmarshal(resp.Result, &res))
	require.False(t, res.IsError)
	require.Len(t, res.Content, 1)
	assert.Equal(t, "42", res.Content[0].Text)
}

func TestCallToolError(t *testing.T) {
	srv := localserver.New("local")
	require.NoError(t, srv.Register(&staticTool{name: "Broken", err: errors.New("no data")}))

	resp := sendRequest(t, srv.Transport(), "tools/call", map[string]any{
		"name": "Broken",
	})
	require.Nil(t, resp.Error)

	var res struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
		IsError bool `json:"isError"`
	}
	require.NoError(t, json.Unmarshal(resp.Result, &res))
	assert.True(t, res.IsError)
	require.Len(t, res.Content, 1)
	assert.Contains(t, res.Content[0].Text, "no data")
}

func TestCallUnknownTool(t *testing.T) {
	srv := localserver.New("local")
	resp := sendRequest(t, srv.Transport(), "tools/call", map[string]any{
		"name": "Nope",
	})
	require.NotNil(t, resp.Error)
	assert.Equal(t, -32602, resp.Error.Code)
}

func TestUnknownMethod(t *testing.T) {
	srv := localserver.New("local")
	resp := sendRequest(t, srv.Transport(), "resources/list", nil)
	require.NotNil(t, resp.Error)
	assert.Equal(t, -32601, resp.Error.Code)
}

func TestClosedTransport(t *testing.T) {
	srv := localserver.New("local")
	tr := srv.Transport()
	require.NoError(t, tr.Close())

	_, err := tr.SendRequest(context.Background(), &transport.Request{
		JSONRPC: transport.Version,
		ID:      1,
		Method:  "initialize",
	})
	require.Error(t, err)
}
