package workspace

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInjector_ListResources_AlwaysIncludesSystemContextAndProjectInfo(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	inj := NewInjector("ws-1", dir)

	resources, err := inj.ListResources(context.Background())
	require.NoError(t, err)

	uris := make(map[string]bool)
	for _, r := range resources {
		uris[r.URI] = true
	}
	assert.True(t, uris["workspace://system-context"])
	assert.True(t, uris["workspace://project-info"])
	assert.False(t, uris["workspace://readme"])
}

func TestInjector_ListResources_IncludesReadmeWhenPresent(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("hi"), 0o644))

	inj := NewInjector("ws-1", dir)
	resources, err := inj.ListResources(context.Background())
	require.NoError(t, err)

	found := false
	for _, r := range resources {
		if r.URI == "workspace://readme" {
			found = true
		}
	}
	assert.True(t, found)
}

// TestInjector_SystemContext_MatchesEndToEndScenario covers the literal
// spec scenario: resources/read on workspace://system-context returns a
// document whose currentDate parses as ISO 8601 and whose workspace.path
// equals the path the injector was bound to.
func TestInjector_SystemContext_MatchesEndToEndScenario(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	inj := NewInjector("ws-1", dir)

	content, mimeType, err := inj.ReadResource(context.Background(), "workspace://system-context")
	require.NoError(t, err)
	assert.Equal(t, "application/json", mimeType)

	var doc struct {
		CurrentDate string `json:"currentDate"`
		Workspace   struct {
			ID   string `json:"id"`
			Path string `json:"path"`
		} `json:"workspace"`
	}
	require.NoError(t, json.Unmarshal([]byte(content), &doc))

	_, parseErr := time.Parse(time.RFC3339, doc.CurrentDate)
	assert.NoError(t, parseErr)
	assert.Equal(t, dir, doc.Workspace.Path)
	assert.Equal(t, "ws-1", doc.Workspace.ID)
}

func TestInjector_ReadResource_UnknownURI(t *testing.T) {
	t.Parallel()

	inj := NewInjector("ws-1", t.TempDir())
	_, _, err := inj.ReadResource(context.Background(), "workspace://nope")
	assert.Error(t, err)
}

func TestInjector_Analyze_MemoizesWithinTTL(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	inj := NewInjector("ws-1", dir)

	first, err := inj.analyze(context.Background())
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("hi"), 0o644))

	second, err := inj.analyze(context.Background())
	require.NoError(t, err)
	assert.Same(t, first, second, "analysis within the TTL window must not recompute")
}
