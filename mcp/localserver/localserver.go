// Package localserver serves in-process tools through the same provider
// surface as remote connections, so built-in tools ride the registry and
// dispatch path unchanged.
package localserver

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/convoke-ai/convoke/mcp/transport"
	"github.com/convoke-ai/convoke/tools"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/convoke-ai/convoke/mcp", "localserver")

// Server hosts a set of tools behind an in-memory transport.
type Server struct {
	name string

	mu    sync.RWMutex
	tools map[string]tools.ITool
	order []string
}

// New creates a local provider with the given name.
func New(name string) *Server {
	return &Server{
		name:  name,
		tools: make(map[string]tools.ITool),
	}
}

// Register adds tools to the server. Later registrations of the same name
// are rejected.
func (s *Server) Register(list ...tools.ITool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, tool := range list {
		key := strings.ToLower(tool.Name())
		if _, ok := s.tools[key]; ok {
			return errors.Newf("tool %q is already registered", tool.Name())
		}
		s.tools[key] = tool
		s.order = append(s.order, key)
	}
	return nil
}

// Transport returns a transport connected to this server. Each call returns
// an independent session.
func (s *Server) Transport() transport.Transport {
	return &localTransport{server: s}
}

type initializeResult struct {
	ProtocolVersion string `json:"protocolVersion"`
	ServerInfo      struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	} `json:"serverInfo"`
}

type toolEntry struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

type listToolsResult struct {
	Tools []toolEntry `json:"tools"`
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

func (s *Server) handle(ctx context.Context, req *transport.Request) *transport.Response {
	resp := &transport.Response{
		JSONRPC: transport.Version,
		ID:      req.ID,
	}

	switch req.Method {
	case "initialize":
		var res initializeResult
		res.ProtocolVersion = "2025-03-26"
		res.ServerInfo.Name = s.name
		res.ServerInfo.Version = "1"
		resp.Result = mustMarshal(res)

	case "tools/list":
		s.mu.RLock()
		var res listToolsResult
		for _, key := range s.order {
			tool := s.tools[key]
			schema := mustMarshal(tool.Parameters())
			res.Tools = append(res.Tools, toolEntry{
				Name:        tool.Name(),
				Description: tool.Description(),
				InputSchema: schema,
			})
		}
		s.mu.RUnlock()
		resp.Result = mustMarshal(res)

	case "tools/call":
		params, err := reencode[callToolParams](req.Params)
		if err != nil {
			resp.Error = &transport.RPCError{Code: -32602, Message: "invalid params"}
			break
		}
		s.mu.RLock()
		tool := s.tools[strings.ToLower(params.Name)]
		s.mu.RUnlock()
		if tool == nil {
			resp.Error = &transport.RPCError{Code: -32602, Message: "unknown tool: " + params.Name}
			break
		}
		out, err := tool.Call(ctx, string(params.Arguments))
		res := callToolResult{}
		if err != nil {
			logger.ContextKV(ctx, xlog.WARNING,
				"server", s.name,
				"tool", params.Name,
				"err", err.Error(),
			)
			res.IsError = true
			res.Content = []contentItem{{Type: "text", Text: err.Error()}}
		} else {
			res.Content = []contentItem{{Type: "text", Text: out}}
		}
		resp.Result = mustMarshal(res)

	default:
		resp.Error = &transport.RPCError{Code: -32601, Message: "method not found: " + req.Method}
	}

	return resp
}

func mustMarshal(v any) json.RawMessage {
	bs, _ := json.Marshal(v)
	return bs
}

// reencode converts the decoded params value back to the typed form.
func reencode[T any](v any) (*T, error) {
	bs, err := json.Marshal(v)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	var out T
	if err := json.Unmarshal(bs, &out); err != nil {
		return nil, errors.WithStack(err)
	}
	return &out, nil
}

// localTransport is a direct in-process session to the server.
type localTransport struct {
	server *Server
	mu     sync.Mutex
	closed bool
}

func (t *localTransport) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = false
	return nil
}

func (t *localTransport) SendRequest(ctx context.Context, req *transport.Request) (*transport.Response, error) {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return nil, errors.New("transport is closed")
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.WithStack(err)
	}
	return t.server.handle(ctx, req), nil
}

func (t *localTransport) SendNotification(ctx context.Context, n *transport.Notification) error {
	return nil
}

func (t *localTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}
