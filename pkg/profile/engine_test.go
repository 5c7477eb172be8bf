package profile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFiles(t *testing.T, root string, names ...string) {
	t.Helper()
	for _, name := range names {
		full := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte("x"), 0o644))
	}
}

func TestEngine_ProfileForWorkspace_FlutterFirebaseProject(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFiles(t, root, "pubspec.yaml", "lib/main.dart", ".firebaserc")

	engine := NewEngine(Default())
	p, err := engine.ProfileForWorkspace(root)
	require.NoError(t, err)
	assert.Equal(t, "Flutter/Firebase Projects", p.Name)
	assert.Equal(t, []string{"firebase-mcp", "server-filesystem", "server-git"}, p.Servers)
}

func TestEngine_ProfileForWorkspace_DefaultMinimalWhenNothingMatches(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFiles(t, root, "README.md")

	engine := NewEngine(Default())
	p, err := engine.ProfileForWorkspace(root)
	require.NoError(t, err)
	assert.Equal(t, "Default (Minimal)", p.Name)
	assert.Equal(t, []string{"server-filesystem"}, p.Servers)
}

func TestEngine_ProfileForWorkspace_NodeProject(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFiles(t, root, "package.json", "src/index.ts")

	engine := NewEngine(Default())
	p, err := engine.ProfileForWorkspace(root)
	require.NoError(t, err)
	assert.Equal(t, "Node.js Projects", p.Name)
}

func TestEngine_ProfileForWorkspace_CaseInsensitiveMatch(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFiles(t, root, "PUBSPEC.YAML")

	engine := NewEngine(Default())
	p, err := engine.ProfileForWorkspace(root)
	require.NoError(t, err)
	assert.Equal(t, "Flutter/Firebase Projects", p.Name)
}

func TestEngine_ProfileForWorkspace_SkipsNodeModulesAndHiddenDirs(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFiles(t, root,
		"node_modules/some-pkg/pubspec.yaml",
		".git/pubspec.yaml",
		"package.json",
	)

	engine := NewEngine(Default())
	p, err := engine.ProfileForWorkspace(root)
	require.NoError(t, err)
	assert.Equal(t, "Node.js Projects", p.Name, "matches inside skipped dirs must not count")
}

func TestEngine_ProfileForWorkspace_CatchAllNeverWinsOnItsOwn(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFiles(t, root, "whatever.txt")

	doc := &Document{
		Version: 1,
		Profiles: []Profile{
			{Name: "Everything", Match: []string{CatchAllPattern}, Servers: []string{"should-not-win"}},
			{Name: "Default (Minimal)", Match: []string{CatchAllPattern}, Servers: []string{"server-filesystem"}},
		},
		DefaultProfile: "Default (Minimal)",
	}
	engine := NewEngine(doc)
	p, err := engine.ProfileForWorkspace(root)
	require.NoError(t, err)
	assert.Equal(t, "Default (Minimal)", p.Name)
}

func TestEngine_UpsertProfile_KeepsDefaultLast(t *testing.T) {
	t.Parallel()

	engine := NewEngine(Default())
	engine.UpsertProfile(Profile{Name: "Rust Projects", Match: []string{"Cargo.toml"}, Servers: []string{"rust-mcp"}})

	profiles := engine.ListProfiles()
	assert.Equal(t, "Default (Minimal)", profiles[len(profiles)-1].Name)

	found := false
	for _, p := range profiles {
		if p.Name == "Rust Projects" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestEngine_UpsertProfile_ReplacesExistingByName(t *testing.T) {
	t.Parallel()

	engine := NewEngine(Default())
	engine.UpsertProfile(Profile{Name: "Node.js Projects", Match: []string{"package.json"}, Servers: []string{"only-one"}})

	p, ok := engine.GetProfile("Node.js Projects")
	require.True(t, ok)
	assert.Equal(t, []string{"only-one"}, p.Servers)
}

func TestParseDocument_RejectsMissingDefaultProfile(t *testing.T) {
	t.Parallel()

	_, err := ParseDocument([]byte(`{"version":1,"profiles":[{"name":"a","match":["*"],"servers":["x"]}],"defaultProfile":"b"}`))
	assert.Error(t, err)
}

func TestParseDocument_RejectsEmptyDefaultProfile(t *testing.T) {
	t.Parallel()

	_, err := ParseDocument([]byte(`{"version":1,"profiles":[]}`))
	assert.Error(t, err)
}
