// Package workspace implements the Context Injector: a per-session
// synthesizer of workspace-scoped MCP resources computed from the
// workspace directory, bypassing backend namespacing via the reserved
// workspace:// scheme.
package workspace

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

const analysisTTL = 30 * time.Second

// Resource is a context-injected resource advertisement.
type Resource struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType"`
	Priority    int    `json:"-"`
}

// Injector synthesizes workspace://... resources for one workspace path.
// Its cached analysis is meant to be owned by a single session router
// instance; the internal singleflight group only collapses concurrent
// recomputation within the TTL window, it does not serialize callers.
type Injector struct {
	workspaceID   string
	workspacePath string

	group singleflight.Group
	mu    sync.Mutex
	cache *ProjectInfo
	at    time.Time
}

// NewInjector creates an Injector bound to workspaceID/workspacePath.
func NewInjector(workspaceID, workspacePath string) *Injector {
	return &Injector{workspaceID: workspaceID, workspacePath: workspacePath}
}

// ListResources returns the fixed set of workspace:// URIs whose presence
// depends on what exists in the workspace.
func (inj *Injector) ListResources(ctx context.Context) ([]Resource, error) {
	info, err := inj.analyze(ctx)
	if err != nil {
		return nil, err
	}

	resources := []Resource{
		{URI: "workspace://system-context", Name: "System Context", MimeType: "application/json", Priority: 100},
		{URI: "workspace://project-info", Name: "Project Info", MimeType: "application/json", Priority: 90},
	}
	if info.HasReadme {
		resources = append(resources, Resource{URI: "workspace://readme", Name: "README", MimeType: "text/plain", Priority: 50})
	}
	if info.HasManifest {
		resources = append(resources, Resource{URI: "workspace://manifest", Name: "Manifest", MimeType: "application/json", Priority: 50})
	}
	if info.HasGitignore {
		resources = append(resources, Resource{URI: "workspace://gitignore", Name: ".gitignore", MimeType: "text/plain", Priority: 40})
	}
	return resources, nil
}

// ReadResource returns the content for a workspace:// URI.
func (inj *Injector) ReadResource(ctx context.Context, uri string) (string, string, error) {
	switch uri {
	case "workspace://system-context":
		doc, err := inj.systemContext()
		return doc, "application/json", err
	case "workspace://project-info":
		info, err := inj.analyze(ctx)
		if err != nil {
			return "", "", err
		}
		doc, err := info.MarshalJSON()
		return string(doc), "application/json", err
	case "workspace://readme":
		return inj.readFirstMatch(readmeCandidates())
	case "workspace://manifest":
		return inj.readFirstMatch(manifestCandidates())
	case "workspace://gitignore":
		return inj.readFile(".gitignore")
	default:
		return "", "", fmt.Errorf("unknown workspace resource %q", uri)
	}
}

// analyze returns the memoized project analysis, recomputing at most once
// per TTL window; concurrent callers within that window collapse onto one
// filesystem walk via singleflight.
func (inj *Injector) analyze(_ context.Context) (*ProjectInfo, error) {
	inj.mu.Lock()
	if inj.cache != nil && time.Since(inj.at) < analysisTTL {
		cached := inj.cache
		inj.mu.Unlock()
		return cached, nil
	}
	inj.mu.Unlock()

	v, err, _ := inj.group.Do("analyze", func() (any, error) {
		info, err := analyzeWorkspace(inj.workspacePath)
		if err != nil {
			return nil, err
		}
		inj.mu.Lock()
		inj.cache = info
		inj.at = time.Now()
		inj.mu.Unlock()
		return info, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*ProjectInfo), nil
}
