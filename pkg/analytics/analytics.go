// Package analytics implements the Analytics component: per-tool usage
// counters, moving-average latency, error rates, and unused-tool
// detection, persisted to disk.
package analytics

import (
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/stacklok/mcp-aggregator/pkg/logger"
)

const (
	flushInterval          = 30 * time.Second
	defaultUnusedThreshold = 30 * 24 * time.Hour
	latencyMovingAvgWeight = 0.2
)

// ToolStats is the accumulated usage record for one namespaced tool.
type ToolStats struct {
	ToolName     string    `json:"toolName"`
	Count        int64     `json:"count"`
	ErrorCount   int64     `json:"errorCount"`
	FirstUsed    time.Time `json:"firstUsed"`
	LastUsed     time.Time `json:"lastUsed"`
	AvgLatencyMs float64   `json:"avgLatencyMs"`
}

type workspaceStats struct {
	Tools map[string]*ToolStats `json:"tools"`
}

type state struct {
	Workspaces map[string]*workspaceStats `json:"workspaces"`
}

// Tracker accumulates per-tool, per-workspace usage statistics.
type Tracker struct {
	path               string
	unusedThreshold    time.Duration
	autoDisableEnabled bool

	mu    sync.Mutex
	st    state
	dirty bool
}

// New creates a Tracker backed by path. unusedThreshold defaults to 30
// days if zero. autoDisable gates an optional policy that is never
// enacted automatically by this package — callers decide what to do
// with UnusedTools, matching the "advisory, not enforced" default.
func New(path string, unusedThreshold time.Duration, autoDisable bool) *Tracker {
	if unusedThreshold <= 0 {
		unusedThreshold = defaultUnusedThreshold
	}
	t := &Tracker{
		path:               path,
		unusedThreshold:    unusedThreshold,
		autoDisableEnabled: autoDisable,
		st:                 state{Workspaces: make(map[string]*workspaceStats)},
	}
	t.load()
	return t
}

func (t *Tracker) load() {
	data, err := os.ReadFile(t.path)
	if err != nil {
		return
	}
	var st state
	if err := json.Unmarshal(data, &st); err != nil {
		logger.Warnf("analytics: discarding corrupt analytics file %s: %v", t.path, err)
		return
	}
	if st.Workspaces == nil {
		st.Workspaces = make(map[string]*workspaceStats)
	}
	t.st = st
}

// Record folds one tool invocation's outcome into the per-workspace,
// per-tool stats.
func (t *Tracker) Record(workspaceID, toolName string, latency time.Duration, failed bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	ws, ok := t.st.Workspaces[workspaceID]
	if !ok {
		ws = &workspaceStats{Tools: make(map[string]*ToolStats)}
		t.st.Workspaces[workspaceID] = ws
	}
	stats, ok := ws.Tools[toolName]
	now := time.Now()
	if !ok {
		stats = &ToolStats{ToolName: toolName, FirstUsed: now}
		ws.Tools[toolName] = stats
	}

	stats.Count++
	stats.LastUsed = now
	if failed {
		stats.ErrorCount++
	}

	ms := float64(latency.Milliseconds())
	if stats.Count == 1 {
		stats.AvgLatencyMs = ms
	} else {
		stats.AvgLatencyMs = stats.AvgLatencyMs*(1-latencyMovingAvgWeight) + ms*latencyMovingAvgWeight
	}
	t.dirty = true
}

// WorkspaceSummary returns every tool's stats for one workspace.
func (t *Tracker) WorkspaceSummary(workspaceID string) []ToolStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	ws, ok := t.st.Workspaces[workspaceID]
	if !ok {
		return nil
	}
	out := make([]ToolStats, 0, len(ws.Tools))
	for _, s := range ws.Tools {
		out = append(out, *s)
	}
	return out
}

// UnusedTools returns, for a given known tool set, the subset that has
// never been called (for this workspace) or whose last use predates the
// unused threshold.
func (t *Tracker) UnusedTools(workspaceID string, knownTools []string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	ws := t.st.Workspaces[workspaceID]
	cutoff := time.Now().Add(-t.unusedThreshold)

	var unused []string
	for _, name := range knownTools {
		if ws == nil {
			unused = append(unused, name)
			continue
		}
		stats, ok := ws.Tools[name]
		if !ok || stats.LastUsed.Before(cutoff) {
			unused = append(unused, name)
		}
	}
	return unused
}

// AutoDisableEnabled reports whether the optional auto-disable policy
// knob is turned on. This package never acts on it, and the session
// router assembles tools/list without consulting it.
func (t *Tracker) AutoDisableEnabled() bool {
	return t.autoDisableEnabled
}

// StartPersisting flushes dirty state to disk every flushInterval until
// stop is closed, with a final flush on return.
func (t *Tracker) StartPersisting(stop <-chan struct{}) {
	ticker := time.NewTicker(flushInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				t.flush()
				return
			case <-ticker.C:
				t.flush()
			}
		}
	}()
}

func (t *Tracker) flush() {
	t.mu.Lock()
	if !t.dirty {
		t.mu.Unlock()
		return
	}
	data, err := json.MarshalIndent(t.st, "", "  ")
	t.dirty = false
	t.mu.Unlock()

	if err != nil {
		logger.Warnf("analytics: marshal failed: %v", err)
		return
	}
	if err := os.WriteFile(t.path, data, 0o644); err != nil {
		logger.Warnf("analytics: write %s failed: %v", t.path, err)
	}
}
