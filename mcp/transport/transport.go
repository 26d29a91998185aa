package transport

import (
	"context"
	"encoding/json"
	"fmt"
)

// JSON-RPC 2.0 envelope used by every provider transport. The concrete wire
// protocol behind a provider is a deployment choice; transports only promise
// request/response correlation and notification delivery.

// Version is the JSON-RPC protocol version sent on every message.
const Version = "2.0"

// Request is an outgoing JSON-RPC request.
type Request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// Notification is a one-way JSON-RPC message.
type Notification struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// Response is an incoming JSON-RPC response.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is the error member of a JSON-RPC response.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Transport is one session to a remote tool provider. Implementations own
// the underlying connection; a Transport is used by exactly one
// mcp.Client and is not shared.
type Transport interface {
	// Start establishes the session. It must be called before SendRequest.
	Start(ctx context.Context) error
	// SendRequest sends one request and blocks until its correlated
	// response arrives, the context is done, or the session fails.
	SendRequest(ctx context.Context, req *Request) (*Response, error)
	// SendNotification sends a one-way message.
	SendNotification(ctx context.Context, n *Notification) error
	// Close releases the session. It is idempotent.
	Close() error
}
