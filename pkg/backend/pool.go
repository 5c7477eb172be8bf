package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"golang.org/x/sync/errgroup"

	"github.com/stacklok/mcp-aggregator/pkg/logger"
	"github.com/stacklok/mcp-aggregator/pkg/rpc"
)

// ListChangedFunc is invoked when a connected backend re-propagates a
// listChanged notification.
type ListChangedFunc func(backendID string)

// Pool owns every backend Instance for the process, keyed by id.
// Exclusively owns subprocess/remote lifecycles; never shared.
type Pool struct {
	mu          sync.RWMutex
	definitions DefinitionSet
	instances   map[string]*Instance

	onListChanged ListChangedFunc
}

// NewPool creates an empty Pool. SetDefinitions must be called (directly
// or via the Config Watcher) before backends can be connected.
func NewPool(onListChanged ListChangedFunc) *Pool {
	return &Pool{
		definitions:   DefinitionSet{},
		instances:     make(map[string]*Instance),
		onListChanged: onListChanged,
	}
}

// SetDefinitions replaces the in-memory backend definitions atomically.
// Instances for ids that disappeared are disposed; instances for ids that
// changed command/args/env/url keep running until next (re)connect.
func (p *Pool) SetDefinitions(defs DefinitionSet) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for id, inst := range p.instances {
		if _, ok := defs[id]; !ok {
			inst.Dispose()
			delete(p.instances, id)
		}
	}
	p.definitions = defs
}

// Definitions returns a copy of the currently known backend definitions.
func (p *Pool) Definitions() DefinitionSet {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(DefinitionSet, len(p.definitions))
	for k, v := range p.definitions {
		out[k] = v
	}
	return out
}

// Connect lazily creates and connects the instance for id if needed.
// A single backend's failure is reported but does not panic or corrupt
// pool state.
func (p *Pool) Connect(ctx context.Context, id string) error {
	inst, def, err := p.getOrCreate(id)
	if err != nil {
		return err
	}
	if inst.Status() == Connected {
		return nil
	}
	_ = def
	return inst.Connect(ctx)
}

func (p *Pool) getOrCreate(id string) (*Instance, Definition, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	def, ok := p.definitions[id]
	if !ok {
		return nil, Definition{}, fmt.Errorf("unknown backend %q", id)
	}
	inst, ok := p.instances[id]
	if ok && !reflect.DeepEqual(inst.def, def) {
		// A changed definition takes effect once the old instance is no
		// longer connected or connecting.
		if s := inst.Status(); s != Connected && s != Connecting {
			inst.Dispose()
			ok = false
		}
	}
	if !ok {
		inst = NewInstance(def, p.onListChanged)
		p.instances[id] = inst
	}
	return inst, def, nil
}

// ConnectAll opportunistically connects every id, logging (not failing
// the group on) individual errors: one broken backend never blocks the
// rest of the session from coming up.
func (p *Pool) ConnectAll(ctx context.Context, ids []string) {
	g, gctx := errgroup.WithContext(context.Background())
	_ = gctx
	for _, id := range ids {
		id := id
		g.Go(func() error {
			if err := p.Connect(ctx, id); err != nil {
				logger.Warnf("backend %s failed to connect: %v", id, err)
			}
			return nil
		})
	}
	_ = g.Wait()
}

// Disconnect disposes of a single backend instance, if present.
func (p *Pool) Disconnect(id string) {
	p.mu.Lock()
	inst, ok := p.instances[id]
	if ok {
		delete(p.instances, id)
	}
	p.mu.Unlock()
	if ok {
		inst.Dispose()
	}
}

func (p *Pool) instance(id string) (*Instance, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	inst, ok := p.instances[id]
	return inst, ok
}

// GetTools returns the namespaced, aggregated tool list across ids.
// Disconnected/errored instances contribute nothing but are not an error.
func (p *Pool) GetTools(ids []string) []rpc.Tool {
	var out []rpc.Tool
	for _, id := range ids {
		inst, ok := p.instance(id)
		if !ok || inst.Status() != Connected {
			continue
		}
		for _, t := range inst.Tools() {
			t.Name = rpc.Namespace(id, t.Name)
			out = append(out, t)
		}
	}
	return out
}

// GetResources returns the namespaced, aggregated resource list across ids.
func (p *Pool) GetResources(ids []string) []rpc.Resource {
	var out []rpc.Resource
	for _, id := range ids {
		inst, ok := p.instance(id)
		if !ok || inst.Status() != Connected {
			continue
		}
		for _, r := range inst.Resources() {
			r.URI = rpc.Namespace(id, r.URI)
			out = append(out, r)
		}
	}
	return out
}

// GetPrompts returns the namespaced, aggregated prompt list across ids.
func (p *Pool) GetPrompts(ids []string) []rpc.Prompt {
	var out []rpc.Prompt
	for _, id := range ids {
		inst, ok := p.instance(id)
		if !ok || inst.Status() != Connected {
			continue
		}
		for _, pr := range inst.Prompts() {
			pr.Name = rpc.Namespace(id, pr.Name)
			out = append(out, pr)
		}
	}
	return out
}

// CallToolParams is the decoded body of a tools/call request.
type CallToolParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// CallTool splits the namespaced name, routes to the owning backend, and
// returns the result. A missing separator or unconnected backend yields
// an MCP error-shaped *content* (isError:true), not a Go error: this is a
// backend-kind failure, not a transport failure.
func (p *Pool) CallTool(ctx context.Context, params CallToolParams) (*rpc.ToolCallResult, error) {
	backendID, name, ok := rpc.SplitNamespaced(params.Name)
	if !ok {
		return rpc.ErrorResult("tool name %q is not namespaced with '%s'", params.Name, rpc.NamespaceSeparator), nil
	}

	inst, found := p.instance(backendID)
	if !found || inst.Status() != Connected {
		return rpc.ErrorResult("backend %q is not connected", backendID), nil
	}

	result, err := inst.CallTool(ctx, name, params.Arguments)
	if err != nil {
		return rpc.ErrorResult("backend %q call failed: %v", backendID, err), nil
	}
	return result, nil
}

// ReadResource splits the namespaced URI and routes to the owning
// backend. Unlike CallTool, failures propagate as Go errors.
func (p *Pool) ReadResource(ctx context.Context, uri string) ([]mcp.ResourceContents, error) {
	backendID, original, ok := rpc.SplitNamespaced(uri)
	if !ok {
		return nil, fmt.Errorf("resource uri %q is not namespaced", uri)
	}

	inst, found := p.instance(backendID)
	if !found || inst.Status() != Connected {
		return nil, fmt.Errorf("backend %q is not connected", backendID)
	}
	return inst.ReadResource(ctx, original)
}

// GetPrompt forwards a prompts/get call to the named backend using its
// unnamespaced prompt name.
func (p *Pool) GetPrompt(ctx context.Context, backendID, name string, arguments map[string]string) (json.RawMessage, error) {
	inst, found := p.instance(backendID)
	if !found || inst.Status() != Connected {
		return nil, fmt.Errorf("backend %q is not connected", backendID)
	}
	return inst.GetPrompt(ctx, name, arguments)
}

// BackendStatus is a diagnostic snapshot of one instance.
type BackendStatus struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	LastError string `json:"lastError,omitempty"`
}

// ServerStatus returns a status snapshot for every known definition,
// including ones never connected.
func (p *Pool) ServerStatus() []BackendStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]BackendStatus, 0, len(p.definitions))
	for id := range p.definitions {
		inst, ok := p.instances[id]
		if !ok {
			out = append(out, BackendStatus{ID: id, Status: Disconnected.String()})
			continue
		}
		out = append(out, BackendStatus{ID: id, Status: inst.Status().String(), LastError: inst.LastError()})
	}
	return out
}

// Dispose tears down every instance, killing its process/connection
// regardless of current status.
func (p *Pool) Dispose() {
	p.mu.Lock()
	instances := p.instances
	p.instances = make(map[string]*Instance)
	p.mu.Unlock()

	for _, inst := range instances {
		inst.Dispose()
	}
}
