// Package promptlibrary implements the Prompt Library: a set of static
// prompts scoped by detected project type plus prompts loaded from a
// user-supplied directory.
package promptlibrary

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/stacklok/mcp-aggregator/pkg/logger"
	"github.com/stacklok/mcp-aggregator/pkg/rpc"
	"github.com/stacklok/mcp-aggregator/pkg/workspace"
)

type entry struct {
	prompt    rpc.Prompt
	generator func(args map[string]string) string
	content   string // used for file-loaded prompts
}

// Library holds the built-in prompts plus any loaded from disk.
type Library struct {
	mu      sync.RWMutex
	entries map[string]entry
}

// New creates a Library seeded with the general and project-type prompts.
func New() *Library {
	l := &Library{entries: make(map[string]entry)}
	l.registerBuiltins()
	return l
}

func (l *Library) registerBuiltins() {
	l.register("summarize_project", "Summarize the current project's purpose and structure.",
		nil, func(_ map[string]string) string {
			return "Read workspace://project-info and workspace://readme, then summarize the project's purpose, main technologies, and structure in a few sentences."
		})

	l.register("onboarding_checklist", "Produce an onboarding checklist for this project.",
		nil, func(_ map[string]string) string {
			return "Using workspace://project-info, list the steps a new contributor would need to get this project running locally."
		})

	l.register("flutter_widget_review", "Review a Flutter widget for common pitfalls.",
		[]mcp.PromptArgument{{Name: "widget_path", Required: true}},
		func(args map[string]string) string {
			return fmt.Sprintf("Review the Flutter widget at %s for rebuild-scope, state-management, and const-correctness issues.", args["widget_path"])
		})

	l.register("node_dependency_audit", "Audit Node.js dependencies for risk.",
		nil, func(_ map[string]string) string {
			return "Read workspace://manifest and flag outdated, unused, or high-risk dependencies."
		})

	l.register("python_lint_pass", "Suggest a lint/type-check pass for a Python project.",
		nil, func(_ map[string]string) string {
			return "Read workspace://project-info and recommend an appropriate lint and type-check setup for this Python project."
		})
}

func (l *Library) register(name, description string, args []mcp.PromptArgument, gen func(map[string]string) string) {
	l.entries[name] = entry{
		prompt:    rpc.Prompt{Name: name, Description: description, Arguments: args},
		generator: gen,
	}
}

// LoadDirectory adds one prompt per *.txt file found directly under dir,
// named after the file's base name (without extension). Existing
// built-ins are not overwritten.
func (l *Library) LoadDirectory(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".txt") {
			continue
		}
		name := strings.TrimSuffix(e.Name(), ".txt")
		if _, exists := l.entries[name]; exists {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			logger.Warnf("prompt library: skipping %s: %v", e.Name(), err)
			continue
		}
		l.entries[name] = entry{
			prompt:  rpc.Prompt{Name: name, Description: "Loaded from " + e.Name()},
			content: string(data),
		}
	}
	return nil
}

// List returns, for the given detected project type, the general
// prompts plus any prompts scoped to that type.
func (l *Library) List(projectType workspace.ProjectType) []rpc.Prompt {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []rpc.Prompt
	for name, e := range l.entries {
		if !scopedFor(name, projectType) {
			continue
		}
		out = append(out, e.prompt)
	}
	return out
}

func scopedFor(name string, projectType workspace.ProjectType) bool {
	switch {
	case strings.HasPrefix(name, "flutter_"):
		return projectType == workspace.ProjectFlutter
	case strings.HasPrefix(name, "node_"):
		return projectType == workspace.ProjectNodeJS
	case strings.HasPrefix(name, "python_"):
		return projectType == workspace.ProjectPython
	default:
		return true
	}
}

// Get renders the named prompt's content for the given arguments.
// ok is false for a name the library does not hold; no fallback content
// is produced for it.
func (l *Library) Get(name string, args map[string]string) (string, bool) {
	l.mu.RLock()
	e, ok := l.entries[name]
	l.mu.RUnlock()
	if !ok {
		return "", false
	}
	if e.generator != nil {
		return e.generator(args), true
	}
	return e.content, true
}
