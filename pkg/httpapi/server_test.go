package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/mcp-aggregator/pkg/analytics"
	"github.com/stacklok/mcp-aggregator/pkg/backend"
	"github.com/stacklok/mcp-aggregator/pkg/cache"
	"github.com/stacklok/mcp-aggregator/pkg/cost"
	"github.com/stacklok/mcp-aggregator/pkg/profile"
	"github.com/stacklok/mcp-aggregator/pkg/promptlibrary"
	"github.com/stacklok/mcp-aggregator/pkg/security"
	"github.com/stacklok/mcp-aggregator/pkg/session"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	pool := backend.NewPool(nil)
	c := cache.New(0, 0)
	costs := cost.New("")
	an := analytics.New("", 0, false)
	sandbox := security.New()
	router := session.New(pool, profile.NewEngine(profile.Default()), c, costs, an, sandbox, promptlibrary.New(), nil)
	return New(router, pool, c, costs, an, sandbox, nil)
}

func TestHandleRPC_MissingWorkspaceHeadersIsBadRequest(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{}`))
	rec := httptest.NewRecorder()
	s.handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleRPC_MalformedBodyReturnsParseError(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`not json`))
	req.Header.Set("X-Workspace-ID", "ws-1")
	req.Header.Set("X-Workspace-Path", t.TempDir())
	rec := httptest.NewRecorder()
	s.handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Error *struct {
			Code int `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, -32700, resp.Error.Code)
}

func TestHandleRPC_ValidInitializeRequest(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)
	body, _ := json.Marshal(map[string]any{"jsonrpc": "2.0", "id": 1, "method": "initialize"})
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
	req.Header.Set("X-Workspace-ID", "ws-1")
	req.Header.Set("X-Workspace-Path", t.TempDir())
	rec := httptest.NewRecorder()
	s.handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Result map[string]any `json:"result"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Result)
}

func TestHandleHealth_ReturnsOK(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ok")
}

func TestHandleStatus_IncludesBackendsAndSessions(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	s.handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body, "backends")
	assert.Contains(t, body, "sessions")
	assert.NotContains(t, body, "metrics", "metrics key must be omitted when no Metrics is wired")
}

func TestHandleAnalytics_RequiresWorkspaceIDQueryParam(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/analytics", nil)
	rec := httptest.NewRecorder()
	s.handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCORSMiddleware_OptionsPreflight(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodOptions, "/", nil)
	rec := httptest.NewRecorder()
	s.handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestHandleEvents_SendsConnectedEventAndBroadcast(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		s.handler().ServeHTTP(rec, req)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return bytes.Contains(rec.Body.Bytes(), []byte("connected"))
	}, 2*time.Second, 5*time.Millisecond)

	s.Broadcast("config_change", map[string]int{"backendCount": 1})

	require.Eventually(t, func() bool {
		return bytes.Contains(rec.Body.Bytes(), []byte("config_change"))
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	<-done
}
