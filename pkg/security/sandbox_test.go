package security

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSandbox_Check_BlockedToolAppliesRegardlessOfEnabled(t *testing.T) {
	t.Parallel()

	sb := New()
	reason := sb.Check("format_disk", json.RawMessage(`{}`))
	require.NotEmpty(t, reason)
	assert.Contains(t, reason, "Security:")
}

func TestSandbox_Check_DisabledAllowsEverythingElse(t *testing.T) {
	t.Parallel()

	sb := New()
	args, _ := json.Marshal(map[string]string{"cmd": "rm -rf /"})
	reason := sb.Check("run_command", args)
	assert.Empty(t, reason)
}

func TestSandbox_Check_DestructiveCommandBlockedWhenEnabled(t *testing.T) {
	t.Parallel()

	sb := New()
	sb.SetEnabled(true)
	args, _ := json.Marshal(map[string]string{"cmd": "rm -rf /"})

	reason := sb.Check("run_command", args)
	require.NotEmpty(t, reason)
	assert.Contains(t, reason, "Security:")
	assert.Len(t, sb.Violations(), 1)
}

func TestSandbox_Check_NonShellToolIgnoresPatternScan(t *testing.T) {
	t.Parallel()

	sb := New()
	sb.SetEnabled(true)
	args, _ := json.Marshal(map[string]string{"message": "rm -rf /"})

	reason := sb.Check("send_message", args)
	assert.Empty(t, reason)
}

func TestSandbox_Check_PathTraversalBlockedWhenEnabled(t *testing.T) {
	t.Parallel()

	sb := New()
	sb.SetEnabled(true)
	args, _ := json.Marshal(map[string]string{"path": "../../etc/passwd"})

	reason := sb.Check("read_file", args)
	assert.NotEmpty(t, reason)
}

func TestSandbox_Violations_CapsAt200Entries(t *testing.T) {
	t.Parallel()

	sb := New()
	sb.SetEnabled(true)
	args, _ := json.Marshal(map[string]string{"cmd": "sudo rm"})
	for i := 0; i < 250; i++ {
		sb.Check("run_command", args)
	}
	assert.Len(t, sb.Violations(), 200)
}
