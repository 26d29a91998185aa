package registry_test

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/convoke-ai/convoke/mcp"
	"github.com/convoke-ai/convoke/mcp/localserver"
	"github.com/convoke-ai/convoke/pkg/llms"
	"github.com/convoke-ai/convoke/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type namedTool struct {
	name   string
	output string
	err    error
}

func (t *namedTool) Name() string        { return t.name }
func (t *namedTool) Description() string { return "test tool " + t.name }
func (t *namedTool) Parameters() any {
	return map[string]any{"type": "object"}
}

func (t *namedTool) Call(ctx context.Context, input string) (string, error) {
	return t.output, t.err
}

func connectedClient(t *testing.T, provider string, tools ...*namedTool) *mcp.Client {
	t.Helper()
	srv := localserver.New(provider)
	for _, tool := range tools {
		require.NoError(t, srv.Register(tool))
	}
	client := mcp.NewClient(provider, srv.Transport())
	require.NoError(t, client.Connect(context.Background()))
	return client
}

func call(name string) llms.ToolCall {
	return llms.ToolCall{
		ID:   "call_1",
		Type: "function",
		FunctionCall: &llms.FunctionCall{
			Name:      name,
			Arguments: `{}`,
		},
	}
}

func TestRefreshAggregates(t *testing.T) {
	ctx := context.Background()
	reg := registry.New(
		connectedClient(t, "alpha", &namedTool{name: "Weather", output: "sunny"}),
		connectedClient(t, "beta", &namedTool{name: "Stock", output: "100"}),
	)
	require.NoError(t, reg.Refresh(ctx))

	descs := reg.DescribeAll()
	require.Len(t, descs, 2)
	assert.Equal(t, "Stock", descs[0].Name)
	assert.Equal(t, "beta", descs[0].Provider)
	assert.Equal(t, "Weather", descs[1].Name)
	assert.Equal(t, "alpha", descs[1].Provider)
	assert.Empty(t, reg.Collisions())
	assert.NotZero(t, reg.Fingerprint())
}

func TestRefreshCollision(t *testing.T) {
	ctx := context.Background()
	reg := registry.New(
		connectedClient(t, "alpha", &namedTool{name: "Weather"}, &namedTool{name: "Time"}),
		connectedClient(t, "beta", &namedTool{name: "weather"}),
	)
	require.NoError(t, reg.Refresh(ctx))

	// Both colliding descriptors are rejected, the rest stay callable.
	descs := reg.DescribeAll()
	require.Len(t, descs, 1)
	assert.Equal(t, "Time", descs[0].Name)

	collisions := reg.Collisions()
	require.Len(t, collisions, 1)
	assert.Equal(t, []string{"alpha", "beta"}, collisions[0].Providers)

	_, err := reg.Dispatch(ctx, call("Weather"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, registry.ErrToolUnavailable))
}

func TestRefreshSkipsUnconnected(t *testing.T) {
	ctx := context.Background()
	srv := localserver.New("offline")
	require.NoError(t, srv.Register(&namedTool{name: "Hidden"}))
	offline := mcp.NewClient("offline", srv.Transport())

	reg := registry.New(
		connectedClient(t, "alpha", &namedTool{name: "Weather"}),
		offline,
	)
	require.NoError(t, reg.Refresh(ctx))

	descs := reg.DescribeAll()
	require.Len(t, descs, 1)
	assert.Equal(t, "Weather", descs[0].Name)
}

func TestDispatch(t *testing.T) {
	ctx := context.Background()
	reg := registry.New(connectedClient(t, "alpha", &namedTool{name: "Weather", output: "sunny"}))
	require.NoError(t, reg.Refresh(ctx))

	res, err := reg.Dispatch(ctx, call("Weather"))
	require.NoError(t, err)
	assert.Equal(t, "sunny", res)

	// Lookup is case-insensitive, the advertised name wins.
	res, err = reg.Dispatch(ctx, call("weather"))
	require.NoError(t, err)
	assert.Equal(t, "sunny", res)
}

func TestDispatchUnknownTool(t *testing.T) {
	ctx := context.Background()
	reg := registry.New(connectedClient(t, "alpha", &namedTool{name: "Weather"}))
	require.NoError(t, reg.Refresh(ctx))

	_, err := reg.Dispatch(ctx, call("Stock"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, registry.ErrToolUnavailable))
}

func TestDispatchNotReadyProvider(t *testing.T) {
	ctx := context.Background()
	conn := connectedClient(t, "alpha", &namedTool{name: "Weather", output: "sunny"})
	reg := registry.New(conn)
	require.NoError(t, reg.Refresh(ctx))

	require.NoError(t, conn.Close())

	_, err := reg.Dispatch(ctx, call("Weather"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, registry.ErrToolUnavailable))
}

func TestDispatchToolError(t *testing.T) {
	ctx := context.Background()
	reg := registry.New(connectedClient(t, "alpha", &namedTool{name: "Broken", err: errors.New("no data")}))
	require.NoError(t, reg.Refresh(ctx))

	_, err := reg.Dispatch(ctx, call("Broken"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, mcp.ErrToolExecution))
}

func TestInfo(t *testing.T) {
	ctx := context.Background()
	reg := registry.New(
		connectedClient(t, "alpha", &namedTool{name: "Weather"}, &namedTool{name: "Time"}),
	)
	require.NoError(t, reg.Refresh(ctx))

	info := reg.Info()
	require.Len(t, info, 1)
	assert.Equal(t, "alpha", info[0].Name)
	assert.Equal(t, "ready", info[0].State)
	assert.Equal(t, []string{"Time", "Weather"}, info[0].Tools)
}

func TestClose(t *testing.T) {
	ctx := context.Background()
	conn := connectedClient(t, "alpha", &namedTool{name: "Weather"})
	reg := registry.New(conn)
	require.NoError(t, reg.Refresh(ctx))

	require.NoError(t, reg.Close())
	assert.Equal(t, mcp.StateClosed, conn.State())
}
