// Package httpapi implements the HTTP/SSE Server: a JSON-RPC-over-HTTP
// front door plus a server-sent-events stream for config/backend change
// broadcasts and a set of diagnostic endpoints.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/stacklok/mcp-aggregator/pkg/analytics"
	"github.com/stacklok/mcp-aggregator/pkg/backend"
	"github.com/stacklok/mcp-aggregator/pkg/cache"
	"github.com/stacklok/mcp-aggregator/pkg/cost"
	"github.com/stacklok/mcp-aggregator/pkg/errorsx"
	"github.com/stacklok/mcp-aggregator/pkg/logger"
	"github.com/stacklok/mcp-aggregator/pkg/metrics"
	"github.com/stacklok/mcp-aggregator/pkg/rpc"
	"github.com/stacklok/mcp-aggregator/pkg/security"
	"github.com/stacklok/mcp-aggregator/pkg/session"
)

const (
	middlewareTimeout = 60 * time.Second
	readHeaderTimeout = 10 * time.Second
	maxPortRetries    = 10
)

// Server is the HTTP/SSE front door over a Session Router and its
// side-channel components.
type Server struct {
	router    *session.Router
	pool      *backend.Pool
	cache     *cache.Cache
	costs     *cost.Tracker
	analytics *analytics.Tracker
	sandbox   *security.Sandbox
	metrics   *metrics.Metrics

	clientsMu sync.Mutex
	clients   map[string]chan sseEvent
}

type sseEvent struct {
	event string
	data  any
}

// New creates a Server wired to its dependencies. m may be nil, in which
// case diagnostic endpoints omit the metrics snapshot.
func New(router *session.Router, pool *backend.Pool, c *cache.Cache, costs *cost.Tracker, an *analytics.Tracker, sandbox *security.Sandbox, m *metrics.Metrics) *Server {
	return &Server{
		router:    router,
		pool:      pool,
		cache:     c,
		costs:     costs,
		analytics: an,
		sandbox:   sandbox,
		metrics:   m,
		clients:   make(map[string]chan sseEvent),
	}
}

// Broadcast pushes event/data to every connected SSE client. Used by the
// Config Watcher ("config_change") and backend listChanged
// re-propagation ("backend_change").
func (s *Server) Broadcast(event string, data any) {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	for _, ch := range s.clients {
		select {
		case ch <- sseEvent{event: event, data: data}:
		default:
			// Slow client; drop rather than block the broadcaster.
		}
	}
}

func (s *Server) handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Timeout(middlewareTimeout))
	r.Use(corsMiddleware)

	r.Post("/", ErrorHandler(s.handleRPC))
	r.Get("/events", s.handleEvents)
	r.Get("/health", s.handleHealth)
	r.Get("/status", ErrorHandler(s.handleStatus))
	r.Get("/analytics", ErrorHandler(s.handleAnalytics))
	r.Get("/usage", ErrorHandler(s.handleUsage))
	r.Get("/cache", ErrorHandler(s.handleCache))
	r.Get("/security", ErrorHandler(s.handleSecurity))
	return r
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Workspace-ID, X-Workspace-Path, X-Model-ID, X-Session-ID")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) error {
	rc, err := requestContextFromHeaders(r)
	if err != nil {
		return errorsx.BadRequest(err)
	}

	defer r.Body.Close()
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return errorsx.BadRequest(err)
	}

	var req rpc.Request
	if err := json.Unmarshal(body, &req); err != nil {
		resp := &rpc.Response{Error: rpc.NewError(rpc.CodeParseError, "invalid JSON-RPC request: %v", err)}
		return writeJSON(w, http.StatusOK, resp)
	}

	resp := s.router.Handle(r.Context(), &req, rc)
	return writeJSON(w, http.StatusOK, resp)
}

func requestContextFromHeaders(r *http.Request) (session.RequestContext, error) {
	workspaceID := r.Header.Get("X-Workspace-ID")
	workspacePath := r.Header.Get("X-Workspace-Path")
	if workspaceID == "" || workspacePath == "" {
		return session.RequestContext{}, errors.New("X-Workspace-ID and X-Workspace-Path headers are required")
	}
	return session.RequestContext{
		WorkspaceID:   workspaceID,
		WorkspacePath: workspacePath,
		ModelID:       r.Header.Get("X-Model-ID"),
		SessionID:     r.Header.Get("X-Session-ID"),
	}, nil
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	clientID := r.Header.Get("X-Session-ID")
	if clientID == "" {
		clientID = r.RemoteAddr + "-" + strconv.FormatInt(time.Now().UnixNano(), 36)
	}

	ch := make(chan sseEvent, 8)
	s.clientsMu.Lock()
	s.clients[clientID] = ch
	s.clientsMu.Unlock()
	defer func() {
		s.clientsMu.Lock()
		delete(s.clients, clientID)
		s.clientsMu.Unlock()
	}()

	writeSSE(w, "connected", map[string]string{"clientId": clientID})
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case evt := <-ch:
			writeSSE(w, evt.event, evt.data)
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, event string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\n", event)
	fmt.Fprintf(w, "data: %s\n\n", payload)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	_ = writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) error {
	statuses := s.pool.ServerStatus()
	if s.metrics != nil {
		connected := 0
		for _, st := range statuses {
			if st.Status == "connected" {
				connected++
			}
		}
		s.metrics.SetConnectedBackends(connected)
	}

	body := map[string]any{
		"backends": statuses,
		"sessions": s.router.ActiveSessions(),
	}
	if s.metrics != nil {
		body["metrics"] = s.metrics.Snapshot()
	}
	return writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) error {
	workspaceID := r.URL.Query().Get("workspaceId")
	if workspaceID == "" {
		return errorsx.BadRequest(errors.New("workspaceId query parameter is required"))
	}
	return writeJSON(w, http.StatusOK, s.analytics.WorkspaceSummary(workspaceID))
}

func (s *Server) handleUsage(w http.ResponseWriter, _ *http.Request) error {
	return writeJSON(w, http.StatusOK, s.costs.Snapshot())
}

func (s *Server) handleCache(w http.ResponseWriter, _ *http.Request) error {
	return writeJSON(w, http.StatusOK, s.cache.Stats())
}

func (s *Server) handleSecurity(w http.ResponseWriter, _ *http.Request) error {
	return writeJSON(w, http.StatusOK, map[string]any{
		"enabled":    s.sandbox.Enabled(),
		"violations": s.sandbox.Violations(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

// Serve starts the HTTP server on host:port, retrying on later ports if
// the requested one is already in use, until ctx is canceled. port == 0
// lets the OS assign a free port.
func (s *Server) Serve(ctx context.Context, host string, port int) error {
	listener, actualPort, err := listenWithRetry(host, port)
	if err != nil {
		return err
	}

	srv := &http.Server{
		BaseContext:       func(net.Listener) context.Context { return ctx },
		Handler:           s.handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	logger.Infof("mcp-aggregator running on http://%s:%d", host, actualPort)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return srv.Shutdown(context.Background())
	case err := <-errCh:
		return err
	}
}

func listenWithRetry(host string, port int) (net.Listener, int, error) {
	if port != 0 {
		addr := net.JoinHostPort(host, strconv.Itoa(port))
		for attempt := 0; attempt < maxPortRetries; attempt++ {
			listener, err := net.Listen("tcp", addr)
			if err == nil {
				return listener, port, nil
			}
			if !strings.Contains(err.Error(), "address already in use") {
				return nil, 0, err
			}
			port++
			addr = net.JoinHostPort(host, strconv.Itoa(port))
		}
		return nil, 0, fmt.Errorf("no free port found after %d retries starting from the requested port", maxPortRetries)
	}

	listener, err := net.Listen("tcp", net.JoinHostPort(host, "0"))
	if err != nil {
		return nil, 0, err
	}
	return listener, listener.Addr().(*net.TCPAddr).Port, nil
}
