package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/stacklok/mcp-aggregator/pkg/logger"
	"github.com/stacklok/mcp-aggregator/pkg/rpc"
)

// Status is the lifecycle state of a backend Instance.
type Status int

const (
	Disconnected Status = iota
	Connecting
	Connected
	Error
)

func (s Status) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

const requestTimeout = 30 * time.Second

// pendingRequest is one outstanding correlation-id entry. Entries are
// added and removed under pendingMu: sendRequest registers its own waiter
// and removes it on send failure or cancellation, and the read loop, the
// timeout timer and onExit remove entries when they resolve them.
type pendingRequest struct {
	resolve chan *rpc.Response
	timer   *time.Timer
}

// Instance is the per-backend connection: one wireConn read by a single
// reader goroutine, a mutex-guarded pending-request table shared by that
// reader and the calling goroutines, and cached capability lists.
// Exclusively owned by the Pool.
type Instance struct {
	def Definition

	mu        sync.RWMutex
	status    Status
	lastError string
	tools     []rpc.Tool
	resources []rpc.Resource
	prompts   []rpc.Prompt

	conn      wireConn
	nextID    int64
	pendingMu sync.Mutex
	pending   map[int64]*pendingRequest

	onListChanged func(backendID string)

	cancel context.CancelFunc
	done   chan struct{}
}

// NewInstance creates an unconnected Instance for def.
func NewInstance(def Definition, onListChanged func(backendID string)) *Instance {
	return &Instance{
		def:           def,
		status:        Disconnected,
		pending:       make(map[int64]*pendingRequest),
		onListChanged: onListChanged,
	}
}

// ID returns the backend identifier.
func (in *Instance) ID() string { return in.def.ID }

// Status returns the current lifecycle state.
func (in *Instance) Status() Status {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return in.status
}

// LastError returns the last handshake/transport error, if any.
func (in *Instance) LastError() string {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return in.lastError
}

func (in *Instance) setStatus(s Status, lastErr error) {
	in.mu.Lock()
	in.status = s
	if lastErr != nil {
		in.lastError = lastErr.Error()
	}
	in.mu.Unlock()
}

// Connect spawns/dials the backend and performs the MCP handshake:
// initialize -> notifications/initialized -> tools/list, resources/list,
// prompts/list. It only transitions to Connected once initialize succeeds.
func (in *Instance) Connect(ctx context.Context) error {
	in.setStatus(Connecting, nil)

	var conn wireConn
	var err error
	if in.def.IsRemote() {
		conn, err = dialHTTP(in.def)
	} else {
		conn, err = dialProcess(in.def)
	}
	if err != nil {
		in.setStatus(Error, err)
		return err
	}
	in.conn = conn

	runCtx, cancel := context.WithCancel(context.Background())
	in.cancel = cancel
	in.done = make(chan struct{})
	go func() {
		defer close(in.done)
		conn.start(runCtx, in.onMessage, in.onExit)
	}()

	// Brief startup grace before the handshake.
	select {
	case <-time.After(150 * time.Millisecond):
	case <-ctx.Done():
		in.setStatus(Error, ctx.Err())
		return ctx.Err()
	}

	if err := in.handshake(ctx); err != nil {
		in.setStatus(Error, err)
		return err
	}

	in.setStatus(Connected, nil)
	return nil
}

func (in *Instance) handshake(ctx context.Context) error {
	initParams, _ := json.Marshal(map[string]any{
		"protocolVersion": rpc.ProtocolVersion,
		"capabilities":    map[string]any{},
		"clientInfo": map[string]any{
			"name":    "mcp-aggregator",
			"version": "dev",
		},
	})
	if _, err := in.sendRequest(ctx, "initialize", initParams); err != nil {
		return fmt.Errorf("initialize: %w", err)
	}

	if err := in.sendNotification("notifications/initialized", nil); err != nil {
		return fmt.Errorf("notifications/initialized: %w", err)
	}

	tools, err := in.listTools(ctx)
	if err != nil {
		return fmt.Errorf("tools/list: %w", err)
	}
	resources, err := in.listResources(ctx)
	if err != nil {
		return fmt.Errorf("resources/list: %w", err)
	}
	prompts, err := in.listPrompts(ctx)
	if err != nil {
		return fmt.Errorf("prompts/list: %w", err)
	}

	in.mu.Lock()
	in.tools, in.resources, in.prompts = tools, resources, prompts
	in.mu.Unlock()
	return nil
}

func (in *Instance) listTools(ctx context.Context) ([]rpc.Tool, error) {
	raw, err := in.sendRequest(ctx, "tools/list", nil)
	if err != nil {
		return nil, err
	}
	var body struct {
		Tools []rpc.Tool `json:"tools"`
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &body); err != nil {
			return nil, err
		}
	}
	return body.Tools, nil
}

func (in *Instance) listResources(ctx context.Context) ([]rpc.Resource, error) {
	raw, err := in.sendRequest(ctx, "resources/list", nil)
	if err != nil {
		return nil, err
	}
	var body struct {
		Resources []rpc.Resource `json:"resources"`
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &body); err != nil {
			return nil, err
		}
	}
	return body.Resources, nil
}

func (in *Instance) listPrompts(ctx context.Context) ([]rpc.Prompt, error) {
	raw, err := in.sendRequest(ctx, "prompts/list", nil)
	if err != nil {
		return nil, err
	}
	var body struct {
		Prompts []rpc.Prompt `json:"prompts"`
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &body); err != nil {
			return nil, err
		}
	}
	return body.Prompts, nil
}

// Tools returns a copy of the cached tool list (unnamespaced).
func (in *Instance) Tools() []rpc.Tool {
	in.mu.RLock()
	defer in.mu.RUnlock()
	out := make([]rpc.Tool, len(in.tools))
	copy(out, in.tools)
	return out
}

// Resources returns a copy of the cached resource list (unnamespaced).
func (in *Instance) Resources() []rpc.Resource {
	in.mu.RLock()
	defer in.mu.RUnlock()
	out := make([]rpc.Resource, len(in.resources))
	copy(out, in.resources)
	return out
}

// Prompts returns a copy of the cached prompt list (unnamespaced).
func (in *Instance) Prompts() []rpc.Prompt {
	in.mu.RLock()
	defer in.mu.RUnlock()
	out := make([]rpc.Prompt, len(in.prompts))
	copy(out, in.prompts)
	return out
}

// CallTool sends tools/call with the unnamespaced name and returns the
// backend's result shape unchanged.
func (in *Instance) CallTool(ctx context.Context, name string, args json.RawMessage) (*rpc.ToolCallResult, error) {
	params, err := json.Marshal(struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments,omitempty"`
	}{Name: name, Arguments: args})
	if err != nil {
		return nil, err
	}

	raw, err := in.sendRequest(ctx, "tools/call", params)
	if err != nil {
		return nil, err
	}

	var result rpc.ToolCallResult
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &result); err != nil {
			return nil, err
		}
	}
	return &result, nil
}

// ReadResource sends resources/read with the unnamespaced URI. Unlike
// CallTool, errors propagate as Go errors: the resources/read result
// shape has no isError sentinel.
func (in *Instance) ReadResource(ctx context.Context, uri string) ([]mcp.ResourceContents, error) {
	params, err := json.Marshal(struct {
		URI string `json:"uri"`
	}{URI: uri})
	if err != nil {
		return nil, err
	}

	raw, err := in.sendRequest(ctx, "resources/read", params)
	if err != nil {
		return nil, err
	}

	var body struct {
		Contents []mcp.ResourceContents `json:"contents"`
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &body); err != nil {
			return nil, err
		}
	}
	return body.Contents, nil
}

// GetPrompt forwards a prompts/get call to this backend with the
// unnamespaced prompt name, returning the raw MCP result.
func (in *Instance) GetPrompt(ctx context.Context, name string, arguments map[string]string) (json.RawMessage, error) {
	params, err := json.Marshal(struct {
		Name      string            `json:"name"`
		Arguments map[string]string `json:"arguments,omitempty"`
	}{Name: name, Arguments: arguments})
	if err != nil {
		return nil, err
	}
	return in.sendRequest(ctx, "prompts/get", params)
}

// sendRequest allocates a fresh correlation id, registers a waiter with a
// 30s timeout, writes the request, and blocks for the matching response.
// The wire id must stay a small monotonic int64 (the actor model relies
// on cheap map lookups under pendingMu), so request tracing uses a
// separate UUID correlation id logged alongside it rather than changing
// the wire format.
func (in *Instance) sendRequest(ctx context.Context, method string, params json.RawMessage) (json.RawMessage, error) {
	id := atomic.AddInt64(&in.nextID, 1)
	traceID := uuid.NewString()
	req := &rpc.Request{ID: id, Method: method, Params: params}
	line, err := req.Encode()
	if err != nil {
		return nil, err
	}

	logger.Debugf("backend %s: sending request id=%d trace=%s method=%s", in.def.ID, id, traceID, method)

	waiter := &pendingRequest{resolve: make(chan *rpc.Response, 1)}
	waiter.timer = time.AfterFunc(requestTimeout, func() {
		in.failPending(id, fmt.Errorf("request %d (%s, trace %s) timed out after %s", id, method, traceID, requestTimeout))
	})

	in.pendingMu.Lock()
	in.pending[id] = waiter
	in.pendingMu.Unlock()

	if err := in.conn.send(line); err != nil {
		in.removePending(id)
		waiter.timer.Stop()
		return nil, err
	}

	select {
	case resp := <-waiter.resolve:
		waiter.timer.Stop()
		if resp.Error != nil {
			return nil, resp.Error
		}
		return resp.Result, nil
	case <-ctx.Done():
		in.removePending(id)
		waiter.timer.Stop()
		return nil, ctx.Err()
	}
}

func (in *Instance) sendNotification(method string, params json.RawMessage) error {
	n := &rpc.Notification{Method: method, Params: params}
	line, err := n.Encode()
	if err != nil {
		return err
	}
	return in.conn.send(line)
}

func (in *Instance) removePending(id int64) *pendingRequest {
	in.pendingMu.Lock()
	defer in.pendingMu.Unlock()
	w := in.pending[id]
	delete(in.pending, id)
	return w
}

func (in *Instance) failPending(id int64, err error) {
	w := in.removePending(id)
	if w == nil {
		return
	}
	w.resolve <- &rpc.Response{ID: id, Error: rpc.NewError(rpc.CodeInternal, "%s", err.Error())}
}

// onMessage is invoked by the single reader goroutine for every complete
// line. Messages with a matching pending id resolve that waiter;
// everything else is a notification and is only acted on for listChanged
// re-propagation — all other notifications are discarded.
func (in *Instance) onMessage(line []byte) {
	msg, err := rpc.Parse(line)
	if err != nil {
		logger.Debugf("backend %s sent malformed line, dropping: %v", in.def.ID, err)
		return
	}

	switch {
	case msg.Response != nil:
		in.pendingMu.Lock()
		w, ok := in.pending[msg.Response.ID]
		if ok {
			delete(in.pending, msg.Response.ID)
		}
		in.pendingMu.Unlock()
		if ok {
			w.timer.Stop()
			w.resolve <- msg.Response
		}
	case msg.Notification != nil:
		in.handleNotification(msg.Notification)
	case msg.Request != nil:
		// Backends are not expected to issue requests to the proxy;
		// silently ignored, matching the "discarded" handling of
		// anything without a matching pending id.
	}
}

func (in *Instance) handleNotification(n *rpc.Notification) {
	switch n.Method {
	case "notifications/tools/list_changed",
		"notifications/resources/list_changed",
		"notifications/prompts/list_changed":
		if in.onListChanged != nil {
			in.onListChanged(in.def.ID)
		}
	}
}

// onExit is invoked exactly once when the wire connection's read loop
// ends (process exited or remote connection closed). Status flips to
// Disconnected and every pending waiter is drained with a transport
// error so no caller blocks forever on a backend that has already died.
func (in *Instance) onExit(err error) {
	in.setStatus(Disconnected, err)

	in.pendingMu.Lock()
	pending := in.pending
	in.pending = make(map[int64]*pendingRequest)
	in.pendingMu.Unlock()

	for id, w := range pending {
		w.timer.Stop()
		w.resolve <- &rpc.Response{ID: id, Error: rpc.NewError(rpc.CodeInternal, "backend %s exited", in.def.ID)}
	}
}

// Dispose terminates the backend's connection and releases resources.
func (in *Instance) Dispose() {
	if in.conn != nil {
		_ = in.conn.close()
	}
	if in.cancel != nil {
		in.cancel()
	}
	if in.done != nil {
		<-in.done
	}
}
