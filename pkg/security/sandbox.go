// Package security implements the Security Sandbox: an opt-in tool-call
// gate matching argument content against destructive-command and
// path-traversal patterns before dispatch.
package security

import (
	"encoding/json"
	"regexp"
	"strings"
	"sync"
	"time"
)

// Violation records one blocked call for diagnostics.
type Violation struct {
	ToolName string    `json:"toolName"`
	Reason   string    `json:"reason"`
	At       time.Time `json:"at"`
}

// blockedTools is an unconditional deny list, checked regardless of
// whether the sandbox is enabled for pattern scanning.
var blockedTools = map[string]bool{
	"format_disk":     true,
	"system_shutdown": true,
}

// sensitivePatterns matches argument text shaped like destructive shell
// commands, privilege escalation, credential exfiltration, fork bombs,
// or remote-code-execution piping, across any tool whose name suggests
// shell execution.
var sensitivePatterns = []*regexp.Regexp{
	regexp.MustCompile(`rm\s+-rf\s+/`),
	regexp.MustCompile(`:\(\)\s*\{\s*:\s*\|\s*:\s*&\s*\}\s*;\s*:`),
	regexp.MustCompile(`sudo\s+`),
	regexp.MustCompile(`chmod\s+777`),
	regexp.MustCompile(`curl[^|]*\|\s*(sh|bash)`),
	regexp.MustCompile(`wget[^|]*\|\s*(sh|bash)`),
	regexp.MustCompile(`(?i)(aws_secret|api[_-]?key|password)\s*=.*\|\s*(curl|nc|ssh)`),
	regexp.MustCompile(`>\s*/dev/sd[a-z]`),
}

var shellToolHints = []string{"shell", "exec", "run_command", "bash", "terminal"}

var pathArgKeys = []string{"path", "file", "filepath", "filename", "dir", "directory"}

// Sandbox is disabled by default; enabling it turns on pattern and
// path-traversal scanning for every tool call routed through it. The
// deny list applies whether or not it is enabled.
type Sandbox struct {
	mu      sync.Mutex
	enabled bool

	violations []Violation
}

// New creates a disabled Sandbox.
func New() *Sandbox {
	return &Sandbox{}
}

// SetEnabled toggles pattern scanning. The unconditional block list
// always applies regardless of this setting.
func (s *Sandbox) SetEnabled(enabled bool) {
	s.mu.Lock()
	s.enabled = enabled
	s.mu.Unlock()
}

func (s *Sandbox) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

// Check inspects a tool call before dispatch, returning a non-empty
// reason if it must be blocked. The unnamespaced tool name is used for
// all lookups since backend identity is not a security boundary here.
func (s *Sandbox) Check(unnamespacedTool string, args json.RawMessage) string {
	if blockedTools[unnamespacedTool] {
		return s.record(unnamespacedTool, "tool is unconditionally blocked")
	}

	s.mu.Lock()
	enabled := s.enabled
	s.mu.Unlock()
	if !enabled {
		return ""
	}

	values := extractStrings(args)

	if isShellLike(unnamespacedTool) {
		for _, v := range values {
			for _, pat := range sensitivePatterns {
				if pat.MatchString(v) {
					return s.record(unnamespacedTool, "argument matches a destructive command pattern")
				}
			}
		}
	}

	if reason := checkPathTraversal(args); reason != "" {
		return s.record(unnamespacedTool, reason)
	}

	return ""
}

func isShellLike(toolName string) bool {
	lower := strings.ToLower(toolName)
	for _, hint := range shellToolHints {
		if strings.Contains(lower, hint) {
			return true
		}
	}
	return false
}

// checkPathTraversal scans path-like argument keys for any ".." in the
// value, which covers segments that could escape a workspace root.
func checkPathTraversal(args json.RawMessage) string {
	var obj map[string]any
	if err := json.Unmarshal(args, &obj); err != nil {
		return ""
	}
	for _, key := range pathArgKeys {
		v, ok := obj[key]
		if !ok {
			continue
		}
		s, ok := v.(string)
		if !ok {
			continue
		}
		if strings.Contains(s, "..") {
			return "path argument contains a traversal segment"
		}
	}
	return ""
}

func extractStrings(args json.RawMessage) []string {
	var obj map[string]any
	if err := json.Unmarshal(args, &obj); err != nil {
		return nil
	}
	var out []string
	for _, v := range obj {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func (s *Sandbox) record(toolName, reason string) string {
	s.mu.Lock()
	s.violations = append(s.violations, Violation{ToolName: toolName, Reason: reason, At: time.Now()})
	if len(s.violations) > 200 {
		s.violations = s.violations[len(s.violations)-200:]
	}
	s.mu.Unlock()
	return "Security: " + reason
}

// Violations returns a copy of the most recent recorded violations.
func (s *Sandbox) Violations() []Violation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Violation, len(s.violations))
	copy(out, s.violations)
	return out
}
