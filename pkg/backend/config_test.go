package backend

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefinitions_DecodesLocalAndRemoteEntries(t *testing.T) {
	t.Parallel()

	raw := []byte(`{
		"mcpServers": {
			"server-filesystem": {"command": "npx", "args": ["-y", "@modelcontextprotocol/server-filesystem"]},
			"remote-search": {"url": "https://example.com/mcp", "transport": "sse"}
		}
	}`)

	defs, err := ParseDefinitions(raw)
	require.NoError(t, err)
	require.Len(t, defs, 2)

	fs := defs["server-filesystem"]
	assert.Equal(t, "server-filesystem", fs.ID)
	assert.Equal(t, "npx", fs.Command)
	assert.False(t, fs.IsRemote())

	remote := defs["remote-search"]
	assert.Equal(t, "remote-search", remote.ID)
	assert.Equal(t, "https://example.com/mcp", remote.URL)
	assert.Equal(t, "sse", remote.Transport)
	assert.True(t, remote.IsRemote())
}

func TestParseDefinitions_FiltersSoftDisabledEntries(t *testing.T) {
	t.Parallel()

	raw := []byte(`{
		"mcpServers": {
			"server-git": {"command": "server-git"},
			"_disabled_server-old": {"command": "server-old"}
		}
	}`)

	defs, err := ParseDefinitions(raw)
	require.NoError(t, err)
	require.Len(t, defs, 1)
	_, ok := defs["_disabled_server-old"]
	assert.False(t, ok)
	_, ok = defs["server-git"]
	assert.True(t, ok)
}

func TestParseDefinitions_RejectsMalformedJSON(t *testing.T) {
	t.Parallel()

	_, err := ParseDefinitions([]byte(`{not json`))
	assert.Error(t, err)
}

func TestIsSoftDisabled(t *testing.T) {
	t.Parallel()

	assert.True(t, IsSoftDisabled("_disabled_server-git"))
	assert.False(t, IsSoftDisabled("server-git"))
}
