package app

import (
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/mcp-aggregator/pkg/backend"
)

func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	r, w, err := os.Pipe()
	require.NoError(t, err)

	orig := os.Stdout
	os.Stdout = w
	defer func() { os.Stdout = orig }()

	fn()

	require.NoError(t, w.Close())
	out, err := io.ReadAll(r)
	require.NoError(t, err)
	return string(out)
}

func TestRenderStatusTable_EmptyPrintsPlaceholder(t *testing.T) {
	out := captureStdout(t, func() {
		err := renderStatusTable(nil)
		require.NoError(t, err)
	})
	assert.Contains(t, out, "No backends configured.")
}

func TestRenderStatusTable_IncludesEveryBackendAndErrorColumn(t *testing.T) {
	statuses := []backend.BackendStatus{
		{ID: "server-git", Status: "connected"},
		{ID: "server-filesystem", Status: "disconnected", LastError: "spawn failed"},
	}

	out := captureStdout(t, func() {
		err := renderStatusTable(statuses)
		require.NoError(t, err)
	})

	assert.Contains(t, out, "server-git")
	assert.Contains(t, out, "server-filesystem")
	assert.Contains(t, out, "spawn failed")
}
