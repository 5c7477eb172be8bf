// Package session implements the Session Router: lazy per-workspace
// sessions binding a profile, backend set, and Context Injector, and the
// MCP method dispatch table that fans requests out to the Backend Pool,
// Context Injector, Result Cache, Cost Tracker, Analytics, Security
// Sandbox, Tool Filter, and Prompt Library.
package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/stacklok/mcp-aggregator/pkg/analytics"
	"github.com/stacklok/mcp-aggregator/pkg/backend"
	"github.com/stacklok/mcp-aggregator/pkg/cache"
	"github.com/stacklok/mcp-aggregator/pkg/cost"
	"github.com/stacklok/mcp-aggregator/pkg/logger"
	"github.com/stacklok/mcp-aggregator/pkg/metrics"
	"github.com/stacklok/mcp-aggregator/pkg/profile"
	"github.com/stacklok/mcp-aggregator/pkg/promptlibrary"
	"github.com/stacklok/mcp-aggregator/pkg/rpc"
	"github.com/stacklok/mcp-aggregator/pkg/security"
	"github.com/stacklok/mcp-aggregator/pkg/toolfilter"
	"github.com/stacklok/mcp-aggregator/pkg/workspace"
)

const (
	idleTTL       = 5 * time.Minute
	sweepInterval = 1 * time.Minute
)

// RequestContext carries the per-request identity extracted from
// transport-level headers.
type RequestContext struct {
	WorkspaceID   string
	WorkspacePath string
	ModelID       string
	SessionID     string
	UserMessage   string // optional, enables the Tool Filter when present
}

// workspaceSession binds one workspace to a resolved profile, connected
// backend set, and Context Injector.
type workspaceSession struct {
	id         string
	path       string
	profile    profile.Profile
	backendIDs []string
	injector   *workspace.Injector

	mu           sync.Mutex
	lastActivity time.Time
}

func (s *workspaceSession) touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

func (s *workspaceSession) idleSince() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.lastActivity)
}

// Router is the Session Router: it owns every active WorkspaceSession
// and dispatches JSON-RPC requests to the right combination of
// Backend Pool, Context Injector, and side-channel components.
type Router struct {
	pool      *backend.Pool
	profiles  *profile.Engine
	cache     *cache.Cache
	costs     *cost.Tracker
	analytics *analytics.Tracker
	sandbox   *security.Sandbox
	prompts   *promptlibrary.Library
	metrics   *metrics.Metrics

	mu       sync.Mutex
	sessions map[string]*workspaceSession
}

// New creates a Router wired to its side-channel components. m may be nil,
// in which case metric recording is skipped.
func New(pool *backend.Pool, profiles *profile.Engine, cache *cache.Cache, costs *cost.Tracker, an *analytics.Tracker, sandbox *security.Sandbox, prompts *promptlibrary.Library, m *metrics.Metrics) *Router {
	return &Router{
		pool:      pool,
		profiles:  profiles,
		cache:     cache,
		costs:     costs,
		analytics: an,
		sandbox:   sandbox,
		prompts:   prompts,
		metrics:   m,
		sessions:  make(map[string]*workspaceSession),
	}
}

// StartEvictionSweep evicts sessions idle past idleTTL every
// sweepInterval, until stop is closed.
func (r *Router) StartEvictionSweep(stop <-chan struct{}) {
	ticker := time.NewTicker(sweepInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				r.evictIdle()
			}
		}
	}()
}

func (r *Router) evictIdle() {
	r.mu.Lock()
	for id, s := range r.sessions {
		if s.idleSince() > idleTTL {
			delete(r.sessions, id)
			logger.Infof("session %s evicted after idle timeout", id)
		}
	}
	count := len(r.sessions)
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.SetActiveSessions(count)
	}
}

// ActiveSessions returns the workspace ids of every session currently
// tracked, regardless of idle time.
func (r *Router) ActiveSessions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		out = append(out, id)
	}
	return out
}

// Refresh re-resolves the profile for workspaceID and reconnects any
// backends newly required by it. A session that does not exist yet is a
// no-op: it will be created lazily on first request.
func (r *Router) Refresh(ctx context.Context, workspaceID string) {
	r.mu.Lock()
	s, ok := r.sessions[workspaceID]
	r.mu.Unlock()
	if !ok {
		return
	}
	r.bindProfile(ctx, s)
}

// getOrCreate returns the session for rc.WorkspaceID, creating it (and
// opportunistically connecting its backends) if this is the first
// request seen for that workspace.
func (r *Router) getOrCreate(ctx context.Context, rc RequestContext) *workspaceSession {
	r.mu.Lock()
	s, ok := r.sessions[rc.WorkspaceID]
	if !ok {
		s = &workspaceSession{
			id:       rc.WorkspaceID,
			path:     rc.WorkspacePath,
			injector: workspace.NewInjector(rc.WorkspaceID, rc.WorkspacePath),
		}
		r.sessions[rc.WorkspaceID] = s
	}
	r.mu.Unlock()

	s.touch()
	if !ok {
		r.bindProfile(ctx, s)
	}
	return s
}

func (r *Router) bindProfile(ctx context.Context, s *workspaceSession) {
	p, err := r.profiles.ProfileForWorkspace(s.path)
	if err != nil {
		logger.Warnf("session %s: profile resolution failed: %v", s.id, err)
		return
	}
	s.mu.Lock()
	s.profile = p
	s.backendIDs = append([]string(nil), p.Servers...)
	s.mu.Unlock()

	r.pool.ConnectAll(ctx, s.backendIDs)
}

func (s *workspaceSession) snapshotBackendIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.backendIDs...)
}

// Handle dispatches one JSON-RPC request to its method handler, routing
// through whichever of the Backend Pool, Context Injector, Result
// Cache, Cost Tracker, Analytics, Security Sandbox, Tool Filter, and
// Prompt Library the method requires.
func (r *Router) Handle(ctx context.Context, req *rpc.Request, rc RequestContext) *rpc.Response {
	session := r.getOrCreate(ctx, rc)

	var result json.RawMessage
	var rpcErr *rpc.Error

	switch req.Method {
	case "initialize":
		result, rpcErr = handleInitialize()
	case "tools/list":
		result, rpcErr = r.handleToolsList(session, rc)
	case "tools/call":
		result, rpcErr = r.handleToolsCall(ctx, session, rc, req.Params)
	case "resources/list":
		result, rpcErr = r.handleResourcesList(ctx, session)
	case "resources/read":
		result, rpcErr = r.handleResourcesRead(ctx, session, req.Params)
	case "prompts/list":
		result, rpcErr = r.handlePromptsList(session)
	case "prompts/get":
		result, rpcErr = r.handlePromptsGet(ctx, session, req.Params)
	default:
		rpcErr = rpc.NewError(rpc.CodeMethodNotFound, "method %q not found", req.Method)
	}

	return &rpc.Response{ID: req.ID, Result: result, Error: rpcErr}
}

func handleInitialize() (json.RawMessage, *rpc.Error) {
	doc := map[string]any{
		"protocolVersion": rpc.ProtocolVersion,
		"capabilities": map[string]any{
			"tools":     map[string]any{"listChanged": true},
			"resources": map[string]any{"listChanged": true},
			"prompts":   map[string]any{"listChanged": true},
		},
		"serverInfo": map[string]any{"name": "mcp-aggregator", "version": "dev"},
	}
	data, _ := json.Marshal(doc)
	return data, nil
}

func (r *Router) handleToolsList(session *workspaceSession, rc RequestContext) (json.RawMessage, *rpc.Error) {
	tools := r.pool.GetTools(session.snapshotBackendIDs())
	if rc.UserMessage != "" {
		tools = toolfilter.Filter(tools, rc.UserMessage)
	}
	data, _ := json.Marshal(map[string]any{"tools": tools})
	return data, nil
}

func (r *Router) handleToolsCall(ctx context.Context, session *workspaceSession, rc RequestContext, params json.RawMessage) (json.RawMessage, *rpc.Error) {
	var call backend.CallToolParams
	if err := json.Unmarshal(params, &call); err != nil {
		return nil, rpc.NewError(rpc.CodeInvalidParams, "invalid tools/call params: %v", err)
	}

	_, unnamespaced, _ := rpc.SplitNamespaced(call.Name)
	if reason := r.sandbox.Check(unnamespaced, call.Arguments); reason != "" {
		return nil, rpc.NewError(rpc.CodeSecurity, reason)
	}

	key := cache.Key(call.Name, call.Arguments)
	cacheable := cache.Cacheable(call.Name)
	if cacheable {
		cached, hit := r.cache.Get(key)
		if r.metrics != nil {
			r.metrics.RecordCacheLookup(hit)
		}
		if hit {
			return cached, nil
		}
	}

	start := time.Now()
	result, err := r.pool.CallTool(ctx, call)
	latency := time.Since(start)
	failed := err != nil || (result != nil && result.IsError)
	r.analytics.Record(rc.WorkspaceID, call.Name, latency, failed)
	if r.metrics != nil {
		r.metrics.RecordToolCall(failed)
	}

	if err != nil {
		return nil, rpc.NewError(rpc.CodeInternal, "tool call failed: %v", err)
	}

	data, marshalErr := json.Marshal(result)
	if marshalErr != nil {
		return nil, rpc.NewError(rpc.CodeInternal, "marshal tool result: %v", marshalErr)
	}

	inputTokens, outputTokens := cost.Estimate(unnamespaced, len(call.Arguments), len(data))
	r.costs.Record(rc.WorkspaceID, unnamespaced, inputTokens, outputTokens)

	if cacheable && !failed {
		r.cache.Set(key, data)
	}
	return data, nil
}

func (r *Router) handleResourcesList(ctx context.Context, session *workspaceSession) (json.RawMessage, *rpc.Error) {
	injected, err := session.injector.ListResources(ctx)
	if err != nil {
		return nil, rpc.NewError(rpc.CodeInternal, "list injected resources: %v", err)
	}

	resources := make([]any, 0, len(injected))
	for _, ir := range injected {
		resources = append(resources, map[string]any{
			"uri":         ir.URI,
			"name":        ir.Name,
			"description": ir.Description,
			"mimeType":    ir.MimeType,
		})
	}
	for _, br := range r.pool.GetResources(session.snapshotBackendIDs()) {
		resources = append(resources, br)
	}

	data, _ := json.Marshal(map[string]any{"resources": resources})
	return data, nil
}

func (r *Router) handleResourcesRead(ctx context.Context, session *workspaceSession, params json.RawMessage) (json.RawMessage, *rpc.Error) {
	var body struct {
		URI string `json:"uri"`
	}
	if err := json.Unmarshal(params, &body); err != nil {
		return nil, rpc.NewError(rpc.CodeInvalidParams, "invalid resources/read params: %v", err)
	}

	if rpc.IsWorkspaceURI(body.URI) {
		content, mime, err := session.injector.ReadResource(ctx, body.URI)
		if err != nil {
			return nil, rpc.NewError(rpc.CodeInternal, "read %s: %v", body.URI, err)
		}
		data, _ := json.Marshal(map[string]any{
			"contents": []map[string]any{{"uri": body.URI, "mimeType": mime, "text": content}},
		})
		return data, nil
	}

	contents, err := r.pool.ReadResource(ctx, body.URI)
	if err != nil {
		return nil, rpc.NewError(rpc.CodeInternal, "read %s: %v", body.URI, err)
	}
	data, _ := json.Marshal(map[string]any{"contents": contents})
	return data, nil
}

func (r *Router) handlePromptsList(session *workspaceSession) (json.RawMessage, *rpc.Error) {
	backendPrompts := r.pool.GetPrompts(session.snapshotBackendIDs())
	local := r.prompts.List(detectedType(session))

	all := make([]any, 0, len(backendPrompts)+len(local))
	for _, p := range backendPrompts {
		all = append(all, p)
	}
	for _, p := range local {
		all = append(all, p)
	}

	data, _ := json.Marshal(map[string]any{"prompts": all})
	return data, nil
}

func detectedType(session *workspaceSession) workspace.ProjectType {
	// The injector memoizes its own analysis; reuse it rather than
	// re-walking the workspace here.
	info, _, err := session.injector.ReadResource(context.Background(), "workspace://project-info")
	if err != nil {
		return workspace.ProjectUnknown
	}
	var parsed struct {
		Type workspace.ProjectType `json:"type"`
	}
	_ = json.Unmarshal([]byte(info), &parsed)
	return parsed.Type
}

// handlePromptsGet resolves a prompt name first against the local
// library, then (after stripping any "<backend-id>::" prefix) against
// exactly one connected backend: if more than one
// connected backend advertises the same unnamespaced prompt name, the
// call is ambiguous and fails with "method not found" rather than
// guessing.
func (r *Router) handlePromptsGet(ctx context.Context, session *workspaceSession, params json.RawMessage) (json.RawMessage, *rpc.Error) {
	var body struct {
		Name      string            `json:"name"`
		Arguments map[string]string `json:"arguments"`
	}
	if err := json.Unmarshal(params, &body); err != nil {
		return nil, rpc.NewError(rpc.CodeInvalidParams, "invalid prompts/get params: %v", err)
	}

	if content, ok := r.prompts.Get(body.Name, body.Arguments); ok {
		data, _ := json.Marshal(map[string]any{
			"messages": []map[string]any{
				{"role": "user", "content": map[string]any{"type": "text", "text": content}},
			},
		})
		return data, nil
	}

	wanted := body.Name
	if _, rest, ok := rpc.SplitNamespaced(wanted); ok {
		wanted = rest
	}

	ids := session.snapshotBackendIDs()
	var matches []string
	for _, id := range ids {
		for _, p := range r.pool.GetPrompts([]string{id}) {
			_, name, ok := rpc.SplitNamespaced(p.Name)
			if ok && name == wanted {
				matches = append(matches, id)
			}
		}
	}

	switch len(matches) {
	case 0:
		return nil, rpc.NewError(rpc.CodeMethodNotFound, "prompt %q not found", body.Name)
	case 1:
		result, err := r.pool.GetPrompt(ctx, matches[0], wanted, body.Arguments)
		if err != nil {
			return nil, rpc.NewError(rpc.CodeInternal, "prompt %q forwarding failed: %v", body.Name, err)
		}
		return result, nil
	default:
		return nil, rpc.NewError(rpc.CodeMethodNotFound, "prompt %q is ambiguous across %d connected backends", body.Name, len(matches))
	}
}
