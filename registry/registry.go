// Package registry aggregates tool provider connections into a single
// namespace of callable tools.
package registry

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/errors"
	"github.com/convoke-ai/convoke/mcp"
	"github.com/convoke-ai/convoke/pkg/llms"
	"github.com/convoke-ai/convoke/pkg/metricskey"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/convoke-ai/convoke", "registry")

// ErrToolUnavailable indicates a dispatch against a tool whose owning
// connection is not Ready, or a tool absent from the callable set. Tool
// identity is provider-scoped; the registry never retries on another
// provider.
var ErrToolUnavailable = errors.New("tool unavailable")

// Collision is a reported tool-name conflict across providers. All
// conflicting descriptors are excluded from the callable set.
type Collision struct {
	Name      string   `json:"name" yaml:"name"`
	Providers []string `json:"providers" yaml:"providers"`
}

// ProviderInfo describes one connection for the info surface.
type ProviderInfo struct {
	Name   string   `json:"name" yaml:"name"`
	State  string   `json:"state" yaml:"state"`
	Tools  []string `json:"tools" yaml:"tools"`
	Server string   `json:"server,omitempty" yaml:"server,omitempty"`
}

type entry struct {
	desc mcp.ToolDescriptor
	conn *mcp.Client
}

// Registry owns the set of provider connections and the aggregated
// name→descriptor mapping. It is shared, read-mostly, across concurrent
// runs.
type Registry struct {
	conns []*mcp.Client

	mu          sync.RWMutex
	byName      map[string]*entry
	collisions  []Collision
	fingerprint uint64
	refreshedAt time.Time

	// refreshMu serializes Refresh; a dispatch started against a captured
	// connection is unaffected by a concurrent rebuild.
	refreshMu sync.Mutex
}

// New creates a registry over the given connections.
func New(conns ...*mcp.Client) *Registry {
	return &Registry{
		conns:  conns,
		byName: make(map[string]*entry),
	}
}

// AddConnection adds another provider connection. The callable set does not
// include its tools until the next Refresh.
func (r *Registry) AddConnection(conn *mcp.Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns = append(r.conns, conn)
}

// Connections returns the provider connections in registration order.
func (r *Registry) Connections() []*mcp.Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*mcp.Client, len(r.conns))
	copy(out, r.conns)
	return out
}

// Refresh re-queries every Ready connection and rebuilds the callable set.
// Name collisions are excluded and recorded; a provider listing failure
// skips that provider and is reported in the combined error while the rest
// of the rebuild proceeds.
func (r *Registry) Refresh(ctx context.Context) error {
	r.refreshMu.Lock()
	defer r.refreshMu.Unlock()

	metricskey.StatsRegistryRefreshes.IncrCounter(1)

	type listed struct {
		conn  *mcp.Client
		descs []mcp.ToolDescriptor
	}

	var lists []listed
	var listErr error
	for _, conn := range r.Connections() {
		if conn.State() != mcp.StateReady {
			logger.ContextKV(ctx, xlog.DEBUG,
				"provider", conn.Name(),
				"state", conn.State().String(),
				"status", "skipped",
			)
			continue
		}
		descs, err := conn.ListTools(ctx)
		if err != nil {
			logger.ContextKV(ctx, xlog.WARNING,
				"provider", conn.Name(),
				"reason", "list_tools",
				"err", err.Error(),
			)
			listErr = errors.CombineErrors(listErr, err)
			continue
		}
		lists = append(lists, listed{conn: conn, descs: descs})
	}

	byName := make(map[string]*entry)
	providersByName := make(map[string][]string)
	for _, l := range lists {
		for _, desc := range l.descs {
			key := strings.ToLower(desc.Name)
			providersByName[key] = append(providersByName[key], desc.Provider)
			if _, ok := byName[key]; !ok {
				byName[key] = &entry{desc: desc, conn: l.conn}
			}
		}
	}

	var collisions []Collision
	for key, providers := range providersByName {
		if len(providers) > 1 {
			// Reject all conflicting entries; last-write-wins would silently
			// misattribute calls.
			name := byName[key].desc.Name
			delete(byName, key)
			sort.Strings(providers)
			collisions = append(collisions, Collision{Name: name, Providers: providers})
			metricskey.StatsRegistryCollisions.IncrCounter(1, name)
			logger.ContextKV(ctx, xlog.WARNING,
				"tool", name,
				"providers", strings.Join(providers, ","),
				"status", "collision_rejected",
			)
		}
	}
	sort.Slice(collisions, func(i, j int) bool { return collisions[i].Name < collisions[j].Name })

	names := make([]string, 0, len(byName))
	for key := range byName {
		names = append(names, key)
	}
	sort.Strings(names)
	h := xxhash.New()
	for _, name := range names {
		_, _ = h.WriteString(name)
		_, _ = h.WriteString("\x00")
		_, _ = h.WriteString(byName[name].desc.Provider)
		_, _ = h.WriteString("\x00")
	}
	fingerprint := h.Sum64()

	r.mu.Lock()
	changed := fingerprint != r.fingerprint
	r.byName = byName
	r.collisions = collisions
	r.fingerprint = fingerprint
	r.refreshedAt = time.Now()
	r.mu.Unlock()

	if changed {
		logger.ContextKV(ctx, xlog.DEBUG,
			"status", "rebuilt",
			"tools", len(byName),
			"collisions", len(collisions),
		)
	}
	return listErr
}

// DescribeAll returns a read-only snapshot of the callable descriptor set,
// sorted by name.
func (r *Registry) DescribeAll() []mcp.ToolDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]mcp.ToolDescriptor, 0, len(r.byName))
	for _, e := range r.byName {
		out = append(out, e.desc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Collisions returns the conflicts recorded by the last Refresh.
func (r *Registry) Collisions() []Collision {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Collision, len(r.collisions))
	copy(out, r.collisions)
	return out
}

// Fingerprint identifies the current callable set; it changes when a
// Refresh rebuilds a different mapping.
func (r *Registry) Fingerprint() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.fingerprint
}

// RefreshedAt returns the time of the last completed Refresh.
func (r *Registry) RefreshedAt() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.refreshedAt
}

// Dispatch resolves the tool call to its owning connection and invokes it.
// The connection observation is captured before invoking, so a concurrent
// Refresh only affects subsequent lookups.
func (r *Registry) Dispatch(ctx context.Context, call llms.ToolCall) (string, error) {
	if call.FunctionCall == nil {
		return "", errors.WithMessage(ErrToolUnavailable, "tool call carries no function")
	}
	toolName := call.FunctionCall.Name

	r.mu.RLock()
	e := r.byName[strings.ToLower(toolName)]
	r.mu.RUnlock()

	if e == nil {
		return "", errors.WithMessagef(ErrToolUnavailable, "tool %q is not registered", toolName)
	}
	if state := e.conn.State(); state != mcp.StateReady {
		return "", errors.WithMessagef(ErrToolUnavailable, "tool %q provider %q is %s", toolName, e.conn.Name(), state)
	}

	started := time.Now()
	res, err := e.conn.Invoke(ctx, e.desc.Name, json.RawMessage(call.FunctionCall.Arguments))
	metricskey.PerfToolDispatch.MeasureSince(started, toolName)
	if err != nil {
		metricskey.StatsToolDispatchesFailed.IncrCounter(1, toolName, e.conn.Name())
		return "", err
	}
	metricskey.StatsToolDispatchesSucceeded.IncrCounter(1, toolName, e.conn.Name())
	return res, nil
}

// Info returns the provider view: connection states and owned tool names.
func (r *Registry) Info() []ProviderInfo {
	r.mu.RLock()
	toolsByProvider := make(map[string][]string)
	for _, e := range r.byName {
		toolsByProvider[e.conn.Name()] = append(toolsByProvider[e.conn.Name()], e.desc.Name)
	}
	r.mu.RUnlock()

	var out []ProviderInfo
	for _, conn := range r.Connections() {
		names := toolsByProvider[conn.Name()]
		sort.Strings(names)
		server, _ := conn.ServerInfo()
		out = append(out, ProviderInfo{
			Name:   conn.Name(),
			State:  conn.State().String(),
			Tools:  names,
			Server: server,
		})
	}
	return out
}

// Close closes every provider connection.
func (r *Registry) Close() error {
	var err error
	for _, conn := range r.Connections() {
		err = errors.CombineErrors(err, conn.Close())
	}
	return err
}
