package workspace

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tidwall/gjson"
)

// ProjectType is the coarse project classification surfaced to backends
// and to profile matching diagnostics.
type ProjectType string

const (
	ProjectFlutter ProjectType = "flutter"
	ProjectNodeJS  ProjectType = "nodejs"
	ProjectPython  ProjectType = "python"
	ProjectUnknown ProjectType = "unknown"
)

// ProjectInfo is the synthesized content of workspace://project-info.
type ProjectInfo struct {
	Path         string         `json:"path"`
	Name         string         `json:"name"`
	Type         ProjectType    `json:"type"`
	Technologies []string       `json:"technologies"`
	FileCounts   map[string]int `json:"fileCounts"`
	Git          gitInfo        `json:"git"`

	HasReadme    bool `json:"-"`
	HasManifest  bool `json:"-"`
	HasGitignore bool `json:"-"`
}

func (p *ProjectInfo) MarshalJSON() ([]byte, error) {
	type alias ProjectInfo
	return json.Marshal((*alias)(p))
}

func readmeCandidates() []string {
	return []string{"README.md", "README.rst", "README.txt", "README"}
}

func manifestCandidates() []string {
	return []string{"package.json", "pubspec.yaml", "pyproject.toml"}
}

// analyzeWorkspace walks the top level of workspacePath, classifies the
// project type from well-known manifest files, scans package.json
// dependency keys when present, and counts files by extension.
func analyzeWorkspace(workspacePath string) (*ProjectInfo, error) {
	entries, err := os.ReadDir(workspacePath)
	if err != nil {
		return nil, err
	}

	present := make(map[string]bool, len(entries))
	fileCounts := map[string]int{}
	for _, e := range entries {
		present[e.Name()] = true
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if ext == "" {
			ext = "(none)"
		}
		fileCounts[ext]++
	}

	info := &ProjectInfo{
		Path:       workspacePath,
		Name:       filepath.Base(workspacePath),
		FileCounts: fileCounts,
		Git:        readGitInfo(workspacePath),
	}

	for _, c := range readmeCandidates() {
		if present[c] {
			info.HasReadme = true
			break
		}
	}
	for _, c := range manifestCandidates() {
		if present[c] {
			info.HasManifest = true
			break
		}
	}
	info.HasGitignore = present[".gitignore"]

	info.Type, info.Technologies = classify(workspacePath, present)
	sort.Strings(info.Technologies)
	return info, nil
}

func classify(workspacePath string, present map[string]bool) (ProjectType, []string) {
	var tech []string
	var projectType ProjectType = ProjectUnknown

	switch {
	case present["pubspec.yaml"]:
		projectType = ProjectFlutter
		tech = append(tech, "flutter", "dart")
		if present["firebase.json"] {
			tech = append(tech, "firebase")
		}
	case present["package.json"]:
		projectType = ProjectNodeJS
		tech = append(tech, "node")
		tech = append(tech, packageJSONDependencyTech(workspacePath)...)
	case present["pyproject.toml"] || present["requirements.txt"]:
		projectType = ProjectPython
		tech = append(tech, "python")
	}

	if present["Dockerfile"] {
		tech = append(tech, "docker")
	}
	if present[".git"] {
		tech = append(tech, "git")
	}

	return projectType, dedupe(tech)
}

// packageJSONDependencyTech scans package.json's dependencies and
// devDependencies keys for a short list of frameworks worth surfacing,
// using gjson rather than a full struct unmarshal since only a handful
// of keys are ever inspected.
func packageJSONDependencyTech(workspacePath string) []string {
	data, err := os.ReadFile(filepath.Join(workspacePath, "package.json"))
	if err != nil {
		return nil
	}

	deps := gjson.GetBytes(data, "dependencies")
	devDeps := gjson.GetBytes(data, "devDependencies")

	known := map[string]string{
		"react":       "react",
		"vue":         "vue",
		"@angular/core": "angular",
		"next":        "nextjs",
		"express":     "express",
		"typescript":  "typescript",
		"jest":        "jest",
		"vitest":      "vitest",
	}

	var found []string
	check := func(result gjson.Result) {
		result.ForEach(func(key, _ gjson.Result) bool {
			if tech, ok := known[key.String()]; ok {
				found = append(found, tech)
			}
			return true
		})
	}
	check(deps)
	check(devDeps)
	return found
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		if seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

func (inj *Injector) readFirstMatch(candidates []string) (string, string, error) {
	for _, name := range candidates {
		content, mime, err := inj.readFile(name)
		if err == nil {
			return content, mime, nil
		}
	}
	return "", "", os.ErrNotExist
}

func (inj *Injector) readFile(name string) (string, string, error) {
	data, err := os.ReadFile(filepath.Join(inj.workspacePath, name))
	if err != nil {
		return "", "", err
	}
	mime := "text/plain"
	if strings.HasSuffix(name, ".json") {
		mime = "application/json"
	}
	return string(data), mime, nil
}
