package configwatch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeString(data []byte) (string, error) {
	return string(data), nil
}

func TestWatcher_Load_SeedsBaselineAndDecodes(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0o644))

	w, err := New(path, decodeString)
	require.NoError(t, err)

	content, err := w.Load()
	require.NoError(t, err)
	assert.Equal(t, "v1", content)
}

// TestWatcher_ChangedBytesEmitExactlyOnce covers the literal spec
// scenario: a write that changes file bytes triggers exactly one
// config_change-equivalent emission; a write that leaves bytes unchanged
// triggers none.
func TestWatcher_ChangedBytesEmitExactlyOnce(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0o644))

	w, err := New(path, decodeString)
	require.NoError(t, err)
	_, err = w.Load()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	require.NoError(t, os.WriteFile(path, []byte("v2"), 0o644))

	select {
	case content := <-w.Changes:
		assert.Equal(t, "v2", content)
	case <-time.After(2 * time.Second):
		t.Fatal("expected a change event after file content changed")
	}

	select {
	case content := <-w.Changes:
		t.Fatalf("unexpected second change event: %v", content)
	case <-time.After(500 * time.Millisecond):
	}
}

func TestWatcher_UnchangedBytesEmitNothing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0o644))

	w, err := New(path, decodeString)
	require.NoError(t, err)
	_, err = w.Load()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	require.NoError(t, os.WriteFile(path, []byte("v1"), 0o644))

	select {
	case content := <-w.Changes:
		t.Fatalf("unexpected change event for identical bytes: %v", content)
	case <-time.After(800 * time.Millisecond):
	}
}
