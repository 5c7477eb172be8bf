package workspace

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestAnalyzeWorkspace_ClassifiesFlutterProject(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "pubspec.yaml", "name: demo")
	writeFile(t, dir, "firebase.json", "{}")

	info, err := analyzeWorkspace(dir)
	require.NoError(t, err)
	assert.Equal(t, ProjectFlutter, info.Type)
	assert.Contains(t, info.Technologies, "flutter")
	assert.Contains(t, info.Technologies, "firebase")
}

func TestAnalyzeWorkspace_ClassifiesNodeProjectFromDependencies(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "package.json", `{"dependencies":{"react":"18.0.0"},"devDependencies":{"typescript":"5.0.0"}}`)

	info, err := analyzeWorkspace(dir)
	require.NoError(t, err)
	assert.Equal(t, ProjectNodeJS, info.Type)
	assert.Contains(t, info.Technologies, "react")
	assert.Contains(t, info.Technologies, "typescript")
	assert.Contains(t, info.Technologies, "node")
}

func TestAnalyzeWorkspace_ClassifiesPythonProject(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "requirements.txt", "flask\n")

	info, err := analyzeWorkspace(dir)
	require.NoError(t, err)
	assert.Equal(t, ProjectPython, info.Type)
	assert.Contains(t, info.Technologies, "python")
}

func TestAnalyzeWorkspace_UnknownWhenNoManifestPresent(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "notes.txt", "hi")

	info, err := analyzeWorkspace(dir)
	require.NoError(t, err)
	assert.Equal(t, ProjectUnknown, info.Type)
}

func TestAnalyzeWorkspace_FileCountsGroupedByExtension(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "a.go", "")
	writeFile(t, dir, "b.go", "")
	writeFile(t, dir, "c.md", "")
	writeFile(t, dir, "Makefile", "")

	info, err := analyzeWorkspace(dir)
	require.NoError(t, err)
	assert.Equal(t, 2, info.FileCounts[".go"])
	assert.Equal(t, 1, info.FileCounts[".md"])
	assert.Equal(t, 1, info.FileCounts["(none)"])
}

func TestProjectInfo_MarshalJSON_OmitsInternalPresenceFlags(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "README.md", "hello")

	info, err := analyzeWorkspace(dir)
	require.NoError(t, err)
	assert.True(t, info.HasReadme)

	data, err := info.MarshalJSON()
	require.NoError(t, err)
	assert.NotContains(t, string(data), "hasReadme")
	assert.NotContains(t, string(data), "HasReadme")
}

func TestReadBranch_DetachedHEAD(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	headPath := filepath.Join(dir, "HEAD")
	writeFile(t, dir, "HEAD", "abcdef0123456789\n")

	branch := readBranch(headPath)
	assert.Equal(t, "detached@abcdef0", branch)
}

func TestReadBranch_NamedRef(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	headPath := filepath.Join(dir, "HEAD")
	writeFile(t, dir, "HEAD", "ref: refs/heads/main\n")

	assert.Equal(t, "main", readBranch(headPath))
}

func TestReadOriginURL_ParsesRemoteOriginSection(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	config := `[core]
	repositoryformatversion = 0
[remote "origin"]
	url = git@github.com:example/repo.git
	fetch = +refs/heads/*:refs/remotes/origin/*
[branch "main"]
	remote = origin
`
	writeFile(t, dir, "config", config)

	url := readOriginURL(filepath.Join(dir, "config"))
	assert.Equal(t, "git@github.com:example/repo.git", url)
}

func TestReadGitInfo_NotARepo(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	info := readGitInfo(dir)
	assert.False(t, info.IsRepo)
}
