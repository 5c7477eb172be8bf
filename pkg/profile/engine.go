package profile

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// MaxScanDepth bounds the directory walk used for profile matching.
const MaxScanDepth = 3

var skippedDirs = map[string]bool{
	"node_modules": true,
	"build":        true,
	"dist":         true,
}

// hiddenDirAllow is the single exception to "skip hidden directories".
const hiddenDirAllow = ".firebaserc"

// Engine resolves workspace paths to profiles and reloads its document on
// file change via an externally-driven Reload call (wired to
// configwatch.Watcher by the caller).
type Engine struct {
	mu  sync.RWMutex
	doc *Document
}

// NewEngine creates an Engine seeded with doc (or the shipped default if
// doc is nil).
func NewEngine(doc *Document) *Engine {
	if doc == nil {
		doc = Default()
	}
	return &Engine{doc: doc}
}

// Reload atomically swaps the active profile document.
func (e *Engine) Reload(doc *Document) {
	e.mu.Lock()
	e.doc = doc
	e.mu.Unlock()
}

// ListProfiles returns a copy of every configured profile.
func (e *Engine) ListProfiles() []Profile {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Profile, len(e.doc.Profiles))
	copy(out, e.doc.Profiles)
	return out
}

// GetProfile returns the named profile, if present.
func (e *Engine) GetProfile(name string) (Profile, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, p := range e.doc.Profiles {
		if p.Name == name {
			return p, true
		}
	}
	return Profile{}, false
}

// UpsertProfile inserts or replaces a profile by name, preserving order
// for updates and inserting new ones before the default so the default
// profile always stays last.
func (e *Engine) UpsertProfile(p Profile) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, existing := range e.doc.Profiles {
		if existing.Name == p.Name {
			e.doc.Profiles[i] = p
			return
		}
	}
	// Insert before the default profile to preserve "default is always
	// last".
	defaultIdx := len(e.doc.Profiles)
	for i, existing := range e.doc.Profiles {
		if existing.Name == e.doc.DefaultProfile {
			defaultIdx = i
			break
		}
	}
	e.doc.Profiles = append(e.doc.Profiles[:defaultIdx], append([]Profile{p}, e.doc.Profiles[defaultIdx:]...)...)
}

// ProfileForWorkspace picks the first non-default profile whose any
// match pattern (other than the catch-all) matches any scanned file,
// falling back to the default profile. Profile order is deterministic:
// the same workspace contents always resolve to the same profile.
func (e *Engine) ProfileForWorkspace(path string) (Profile, error) {
	e.mu.RLock()
	doc := e.doc
	e.mu.RUnlock()

	files, err := scanWorkspace(path, MaxScanDepth)
	if err != nil {
		return Profile{}, fmt.Errorf("scan workspace %s: %w", path, err)
	}

	for _, p := range doc.Profiles {
		if p.Name == doc.DefaultProfile {
			continue
		}
		if profileMatches(p, files) {
			return p, nil
		}
	}

	for _, p := range doc.Profiles {
		if p.Name == doc.DefaultProfile {
			return p, nil
		}
	}
	return Profile{}, fmt.Errorf("no default profile configured")
}

func profileMatches(p Profile, files []string) bool {
	for _, pattern := range p.Match {
		if pattern == CatchAllPattern {
			continue
		}
		lowered := strings.ToLower(pattern)
		for _, f := range files {
			if globMatch(lowered, strings.ToLower(f)) {
				return true
			}
		}
	}
	return false
}

// globMatch matches relPath against pattern. Patterns of the form
// "**/*.ext" match any file with that extension at any depth; plain
// patterns match the base name or full relative path via filepath.Match.
func globMatch(pattern, relPath string) bool {
	if strings.HasPrefix(pattern, "**/") {
		suffix := strings.TrimPrefix(pattern, "**/")
		if ok, _ := filepath.Match(suffix, filepath.Base(relPath)); ok {
			return true
		}
		if ok, _ := filepath.Match(suffix, relPath); ok {
			return true
		}
		return false
	}
	if ok, _ := filepath.Match(pattern, relPath); ok {
		return true
	}
	if ok, _ := filepath.Match(pattern, filepath.Base(relPath)); ok {
		return true
	}
	return false
}

// scanWorkspace walks path up to maxDepth, skipping node_modules/build/
// dist and hidden directories (except .firebaserc), returning relative
// file paths (dot-files included).
func scanWorkspace(root string, maxDepth int) ([]string, error) {
	var out []string
	var walk func(dir string, depth int) error
	walk = func(dir string, depth int) error {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return err
		}
		for _, entry := range entries {
			name := entry.Name()
			full := filepath.Join(dir, name)
			rel, err := filepath.Rel(root, full)
			if err != nil {
				rel = name
			}

			if entry.IsDir() {
				if strings.HasPrefix(name, ".") && name != hiddenDirAllow {
					continue
				}
				if skippedDirs[name] {
					continue
				}
				if depth >= maxDepth {
					continue
				}
				if err := walk(full, depth+1); err != nil {
					return err
				}
				continue
			}
			out = append(out, rel)
		}
		return nil
	}

	if err := walk(root, 1); err != nil {
		return nil, err
	}
	return out, nil
}
