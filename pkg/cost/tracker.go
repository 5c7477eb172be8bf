// Package cost implements the Cost Tracker: a static per-tool token
// estimator with global, per-day, per-workspace, and per-backend-tool
// accumulators, periodically flushed to disk.
package cost

import (
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/stacklok/mcp-aggregator/pkg/logger"
)

const (
	charsPerToken  = 4
	maxHistoryDays = 30
	flushInterval  = 30 * time.Second
)

// Pricing is a flat per-million-token rate used to turn a token count into
// an estimated dollar cost. There is no per-model pricing table here: every
// backend tool is billed at the same rate, since the proxy has no notion of
// which model (if any) produced a given tool result.
const (
	inputCostPerMillionTokens  = 0.15
	outputCostPerMillionTokens = 0.60
)

// baseTokenEstimate is a static per-tool-family estimate, adjusted by
// actual request/response size. Unmatched tool names fall back to
// defaultEstimate.
var baseTokenEstimate = map[string]int{
	"read_file":   200,
	"list_files":  150,
	"search_code": 400,
	"get_diff":    600,
	"write_file":  250,
	"run_command": 300,
	"git_log":     350,
	"fetch_url":   500,
}

const defaultEstimate = 200

// Estimate returns the estimated input and output token cost of a tool
// call given the request argument size and response size in bytes. The
// static per-tool base is attributed to input (it approximates the fixed
// overhead of describing the call), and the observed response bytes are
// attributed to output.
func Estimate(toolName string, argBytes, resultBytes int) (inputTokens, outputTokens int) {
	base, ok := baseTokenEstimate[toolName]
	if !ok {
		base = defaultEstimate
	}
	inputTokens = base + argBytes/charsPerToken
	outputTokens = resultBytes / charsPerToken
	return inputTokens, outputTokens
}

func estimatedCost(inputTokens, outputTokens int64) float64 {
	inputM := float64(inputTokens) / 1_000_000
	outputM := float64(outputTokens) / 1_000_000
	return inputM*inputCostPerMillionTokens + outputM*outputCostPerMillionTokens
}

// UsageRecord is the accumulator unit the Usage Record is built from:
// input/output/total token counts, their estimated dollar cost, and the
// number of calls folded into it. The same type backs the global, the
// per-workspace, and the per-backend-tool accumulators.
type UsageRecord struct {
	InputTokens   int64   `json:"inputTokens"`
	OutputTokens  int64   `json:"outputTokens"`
	TotalTokens   int64   `json:"totalTokens"`
	EstimatedCost float64 `json:"estimatedCost"`
	Calls         int64   `json:"calls"`
}

func (u *UsageRecord) add(inputTokens, outputTokens int64) {
	u.InputTokens += inputTokens
	u.OutputTokens += outputTokens
	u.TotalTokens += inputTokens + outputTokens
	u.EstimatedCost += estimatedCost(inputTokens, outputTokens)
	u.Calls++
}

// DayUsage accumulates token usage for a single calendar day.
type DayUsage struct {
	Date   string `json:"date"`
	Tokens int64  `json:"tokens"`
	Calls  int64  `json:"calls"`
}

// state is the on-disk persisted shape.
type state struct {
	Global       UsageRecord             `json:"global"`
	Today        DayUsage                `json:"today"`
	History      []DayUsage              `json:"history"`
	PerWorkspace map[string]*UsageRecord `json:"perWorkspace"`
	PerTool      map[string]*UsageRecord `json:"perTool"`
}

// Tracker accumulates token-usage estimates and persists them to a JSON
// file on a fixed interval, only writing when dirty.
type Tracker struct {
	path string

	mu    sync.Mutex
	st    state
	dirty bool
}

// New creates a Tracker backed by path, loading existing state if present.
func New(path string) *Tracker {
	t := &Tracker{
		path: path,
		st: state{
			Today:        DayUsage{Date: today()},
			PerWorkspace: make(map[string]*UsageRecord),
			PerTool:      make(map[string]*UsageRecord),
		},
	}
	t.load()
	return t
}

func today() string {
	return time.Now().UTC().Format("2006-01-02")
}

func (t *Tracker) load() {
	data, err := os.ReadFile(t.path)
	if err != nil {
		return
	}
	var st state
	if err := json.Unmarshal(data, &st); err != nil {
		logger.Warnf("cost tracker: discarding corrupt usage file %s: %v", t.path, err)
		return
	}
	if st.PerWorkspace == nil {
		st.PerWorkspace = make(map[string]*UsageRecord)
	}
	if st.PerTool == nil {
		st.PerTool = make(map[string]*UsageRecord)
	}
	t.st = st
}

// Record adds a call's estimated input/output token cost to the global,
// today, per-workspace and per-backend-tool accumulators, rolling the day
// bucket over if needed. toolName is the namespaced-stripped backend tool
// name (e.g. "read_file"), matching the key Estimate was given.
func (t *Tracker) Record(workspaceID, toolName string, inputTokens, outputTokens int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.rollDayLocked()

	in, out := int64(inputTokens), int64(outputTokens)
	total := in + out

	t.st.Global.add(in, out)
	t.st.Today.Tokens += total
	t.st.Today.Calls++

	ws, ok := t.st.PerWorkspace[workspaceID]
	if !ok {
		ws = &UsageRecord{}
		t.st.PerWorkspace[workspaceID] = ws
	}
	ws.add(in, out)

	tool, ok := t.st.PerTool[toolName]
	if !ok {
		tool = &UsageRecord{}
		t.st.PerTool[toolName] = tool
	}
	tool.add(in, out)

	t.dirty = true
}

func (t *Tracker) rollDayLocked() {
	d := today()
	if t.st.Today.Date == d {
		return
	}
	if t.st.Today.Calls > 0 || t.st.Today.Tokens > 0 {
		t.st.History = append(t.st.History, t.st.Today)
	}
	if len(t.st.History) > maxHistoryDays {
		t.st.History = t.st.History[len(t.st.History)-maxHistoryDays:]
	}
	t.st.Today = DayUsage{Date: d}
}

// Snapshot is the diagnostic view returned by the /usage endpoint.
type Snapshot struct {
	Global       UsageRecord             `json:"global"`
	Today        DayUsage                `json:"today"`
	History      []DayUsage              `json:"history"`
	PerWorkspace map[string]*UsageRecord `json:"perWorkspace"`
	PerTool      map[string]*UsageRecord `json:"perTool"`
}

// Snapshot returns a copy of the current usage state.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rollDayLocked()

	perWs := make(map[string]*UsageRecord, len(t.st.PerWorkspace))
	for k, v := range t.st.PerWorkspace {
		cp := *v
		perWs[k] = &cp
	}
	perTool := make(map[string]*UsageRecord, len(t.st.PerTool))
	for k, v := range t.st.PerTool {
		cp := *v
		perTool[k] = &cp
	}
	history := make([]DayUsage, len(t.st.History))
	copy(history, t.st.History)

	return Snapshot{
		Global:       t.st.Global,
		Today:        t.st.Today,
		History:      history,
		PerWorkspace: perWs,
		PerTool:      perTool,
	}
}

// StartPersisting flushes dirty state to disk every flushInterval until
// stop is closed, and performs one final flush on return.
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
		logger.Warnf("cost tracker: marshal failed: %v", err)
		return
	}
	if err := os.WriteFile(t.path, data, 0o644); err != nil {
		logger.Warnf("cost tracker: write %s failed: %v", t.path, err)
	}
}
