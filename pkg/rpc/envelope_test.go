package rpc

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	t.Parallel()

	t.Run("request", func(t *testing.T) {
		t.Parallel()
		msg, err := Parse([]byte(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`))
		require.NoError(t, err)
		require.NotNil(t, msg.Request)
		assert.Nil(t, msg.Response)
		assert.Nil(t, msg.Notification)
		assert.Equal(t, int64(1), msg.Request.ID)
		assert.Equal(t, "tools/list", msg.Request.Method)
	})

	t.Run("response with result", func(t *testing.T) {
		t.Parallel()
		msg, err := Parse([]byte(`{"jsonrpc":"2.0","id":7,"result":{"ok":true}}`))
		require.NoError(t, err)
		require.NotNil(t, msg.Response)
		assert.Equal(t, int64(7), msg.Response.ID)
		assert.Nil(t, msg.Response.Error)
	})

	t.Run("response with error", func(t *testing.T) {
		t.Parallel()
		msg, err := Parse([]byte(`{"jsonrpc":"2.0","id":7,"error":{"code":-32601,"message":"nope"}}`))
		require.NoError(t, err)
		require.NotNil(t, msg.Response)
		require.NotNil(t, msg.Response.Error)
		assert.Equal(t, -32601, msg.Response.Error.Code)
	})

	t.Run("notification has no id", func(t *testing.T) {
		t.Parallel()
		msg, err := Parse([]byte(`{"jsonrpc":"2.0","method":"notifications/tools/list_changed"}`))
		require.NoError(t, err)
		require.NotNil(t, msg.Notification)
		assert.Nil(t, msg.Request)
		assert.Nil(t, msg.Response)
	})

	t.Run("malformed json is an error", func(t *testing.T) {
		t.Parallel()
		_, err := Parse([]byte(`not json`))
		assert.Error(t, err)
	})
}

func TestRequestEncode(t *testing.T) {
	t.Parallel()

	req := &Request{ID: 42, Method: "tools/call", Params: json.RawMessage(`{"name":"x"}`)}
	data, err := req.Encode()
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "2.0", decoded["jsonrpc"])
	assert.Equal(t, float64(42), decoded["id"])
	assert.Equal(t, "tools/call", decoded["method"])
}

func TestNamespaceRoundtrip(t *testing.T) {
	t.Parallel()

	name := Namespace("server-git", "git_status")
	assert.Equal(t, "server-git::git_status", name)

	backendID, rest, ok := SplitNamespaced(name)
	require.True(t, ok)
	assert.Equal(t, "server-git", backendID)
	assert.Equal(t, "git_status", rest)
}

func TestSplitNamespaced_NoSeparator(t *testing.T) {
	t.Parallel()

	_, _, ok := SplitNamespaced("git_status")
	assert.False(t, ok)
}

func TestSplitNamespaced_FirstOccurrenceOnly(t *testing.T) {
	t.Parallel()

	// A tool name that itself happens to contain "::" must still split on
	// the FIRST occurrence, keeping the remainder intact.
	backendID, rest, ok := SplitNamespaced("server-git::weird::name")
	require.True(t, ok)
	assert.Equal(t, "server-git", backendID)
	assert.Equal(t, "weird::name", rest)
}

func TestIsWorkspaceURI(t *testing.T) {
	t.Parallel()

	assert.True(t, IsWorkspaceURI("workspace://project-info"))
	assert.False(t, IsWorkspaceURI("server-git::file:///a"))
}

func TestNewError(t *testing.T) {
	t.Parallel()

	err := NewError(CodeMethodNotFound, "method %q not found", "foo")
	assert.Equal(t, -32601, err.Code)
	assert.Contains(t, err.Error(), "foo")
}
