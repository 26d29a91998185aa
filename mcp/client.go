package mcp

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/convoke-ai/convoke/mcp/transport"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/convoke-ai/convoke", "mcp")

// ProtocolVersion is the provider protocol revision this client speaks.
const ProtocolVersion = "2025-03-26"

// State is the liveness state of a provider connection.
type State int32

const (
	// StateConnecting is the initial state before Connect completes.
	StateConnecting State = iota
	// StateReady means the session is established and callable.
	StateReady
	// StateDegraded means the session saw a protocol-level invoke failure
	// and is quarantined until reconnect.
	StateDegraded
	// StateClosed means the session is released.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateReady:
		return "ready"
	case StateDegraded:
		return "degraded"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ToolDescriptor is the discovered metadata for one callable operation.
// Immutable once discovered; invalidated only by the owning connection's
// disconnect.
type ToolDescriptor struct {
	// Name of the tool, unique within its provider.
	Name string `json:"name"`
	// Description of the tool, advertised to the model.
	Description string `json:"description"`
	// InputSchema is the JSON schema of the tool arguments.
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
	// Provider is the name of the owning connection.
	Provider string `json:"provider,omitempty"`
}

// Client is one connection to a remote tool provider. It owns its transport
// session exclusively.
type Client struct {
	name string
	tr   transport.Transport

	state   atomic.Int32
	counter atomic.Int64

	mu            sync.Mutex
	serverName    string
	serverVersion string
}

// NewClient creates a connection for the named provider over the given
// transport. The transport must not be shared with another client.
func NewClient(name string, tr transport.Transport) *Client {
	c := &Client{
		name: name,
		tr:   tr,
	}
	c.state.Store(int32(StateConnecting))
	return c
}

// Name returns the provider name this connection was configured with.
func (c *Client) Name() string {
	return c.name
}

// State returns the current liveness state.
func (c *Client) State() State {
	return State(c.state.Load())
}

// ServerInfo returns the name and version the provider reported on
// initialize.
func (c *Client) ServerInfo() (name, version string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.serverName, c.serverVersion
}

type clientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type initializeParams struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities"`
	ClientInfo      clientInfo     `json:"clientInfo"`
}

type initializeResult struct {
	ProtocolVersion string     `json:"protocolVersion"`
	ServerInfo      clientInfo `json:"serverInfo"`
}

// Connect establishes the session and performs the initialize handshake.
func (c *Client) Connect(ctx context.Context) error {
	if c.State() == StateClosed {
		return errors.WithMessage(ErrConnection, "connection is closed")
	}
	c.state.Store(int32(StateConnecting))

	if err := c.tr.Start(ctx); err != nil {
		c.state.Store(int32(StateClosed))
		return errors.Mark(errors.WithMessagef(err, "failed to start transport for %q", c.name), ErrConnection)
	}

	resp, err := c.request(ctx, "initialize", initializeParams{
		ProtocolVersion: ProtocolVersion,
		Capabilities:    map[string]any{},
		ClientInfo:      clientInfo{Name: "convoke", Version: "1"},
	})
	if err != nil {
		c.state.Store(int32(StateClosed))
		return errors.Mark(errors.WithMessagef(err, "initialize failed for %q", c.name), ErrConnection)
	}

	var res initializeResult
	if err := json.Unmarshal(resp.Result, &res); err != nil {
		c.state.Store(int32(StateClosed))
		return errors.Mark(errors.WithMessagef(err, "malformed initialize result from %q", c.name), ErrProtocol)
	}

	c.mu.Lock()
	c.serverName = res.ServerInfo.Name
	c.serverVersion = res.ServerInfo.Version
	c.mu.Unlock()

	if err := c.tr.SendNotification(ctx, &transport.Notification{
		JSONRPC: transport.Version,
		Method:  "notifications/initialized",
	}); err != nil {
		c.state.Store(int32(StateClosed))
		return errors.Mark(errors.WithMessagef(err, "initialized notification failed for %q", c.name), ErrConnection)
	}

	c.state.Store(int32(StateReady))
	logger.ContextKV(ctx, xlog.DEBUG,
		"provider", c.name,
		"status", "connected",
		"server", res.ServerInfo.Name,
		"server_version", res.ServerInfo.Version,
	)
	return nil
}

type listToolsResult struct {
	Tools []ToolDescriptor `json:"tools"`
}

// ListTools returns the tool descriptors the provider currently advertises.
func (c *Client) ListTools(ctx context.Context) ([]ToolDescriptor, error) {
	resp, err := c.request(ctx, "tools/list", nil)
	if err != nil {
		return nil, err
	}

	var res listToolsResult
	if err := json.Unmarshal(resp.Result, &res); err != nil {
		return nil, errors.Mark(errors.WithMessagef(err, "malformed tools listing from %q", c.name), ErrProtocol)
	}
	for i := range res.Tools {
		if res.Tools[i].Name == "" {
			return nil, errors.WithMessagef(ErrProtocol, "provider %q advertised a tool with no name", c.name)
		}
		res.Tools[i].Provider = c.name
	}
	return res.Tools, nil
}

type callToolParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

type contentItem struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type callToolResult struct {
	Content []contentItem `json:"content"`
	IsError bool          `json:"isError,omitempty"`
}

// Invoke executes one remote tool call and returns the textual payload.
// A remote-reported failure is ErrToolExecution; a lost transport is
// ErrConnection and moves the connection to Closed; a call rejected at the
// provider protocol layer degrades the connection.
func (c *Client) Invoke(ctx context.Context, toolName string, arguments json.RawMessage) (string, error) {
	if len(arguments) == 0 {
		arguments = json.RawMessage(`{}`)
	}
	req := &transport.Request{
		JSONRPC: transport.Version,
		ID:      c.counter.Add(1),
		Method:  "tools/call",
		Params: callToolParams{
			Name:      toolName,
			Arguments: arguments,
		},
	}

	resp, err := c.tr.SendRequest(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return "", errors.WithStack(ctx.Err())
		}
		c.state.Store(int32(StateClosed))
		return "", errors.Mark(errors.WithMessagef(err, "transport lost calling %q on %q", toolName, c.name), ErrConnection)
	}
	if resp.Error != nil {
		// The session survived but the provider rejected the call at the
		// protocol layer; quarantine it until reconnect.
		c.state.CompareAndSwap(int32(StateReady), int32(StateDegraded))
		logger.ContextKV(ctx, xlog.WARNING,
			"provider", c.name,
			"tool", toolName,
			"status", "degraded",
			"rpc_code", resp.Error.Code,
			"err", resp.Error.Message,
		)
		return "", errors.WithMessagef(ErrToolExecution, "provider %q rejected %q: %s", c.name, toolName, resp.Error.Message)
	}

	var res callToolResult
	if err := json.Unmarshal(resp.Result, &res); err != nil {
		return "", errors.Mark(errors.WithMessagef(err, "malformed tool result from %q", c.name), ErrProtocol)
	}

	var sb strings.Builder
	for _, item := range res.Content {
		if item.Type != "text" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(item.Text)
	}
	if res.IsError {
		return "", errors.WithMessagef(ErrToolExecution, "tool %q failed: %s", toolName, sb.String())
	}
	return sb.String(), nil
}

// Close releases the session. It is idempotent.
func (c *Client) Close() error {
	if State(c.state.Swap(int32(StateClosed))) == StateClosed {
		return nil
	}
	return c.tr.Close()
}

func (c *Client) request(ctx context.Context, method string, params any) (*transport.Response, error) {
	req := &transport.Request{
		JSONRPC: transport.Version,
		ID:      c.counter.Add(1),
		Method:  method,
		Params:  params,
	}
	resp, err := c.tr.SendRequest(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errors.WithStack(ctx.Err())
		}
		return nil, errors.Mark(errors.WithMessagef(err, "%s failed for %q", method, c.name), ErrConnection)
	}
	if resp.Error != nil {
		return nil, errors.WithMessagef(ErrProtocol, "%s rejected by %q: %s", method, c.name, resp.Error.Message)
	}
	return resp, nil
}
