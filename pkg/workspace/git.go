package workspace

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
)

// gitInfo is best-effort repository metadata read directly from .git's
// on-disk files, never by shelling out to git.
type gitInfo struct {
	IsRepo        bool   `json:"isRepo"`
	Branch        string `json:"branch,omitempty"`
	RemoteOrigin  string `json:"remoteOrigin,omitempty"`
	HasUntracked  bool   `json:"-"`
	LastIndexTime string `json:"lastCommitHint,omitempty"`
}

func readGitInfo(workspacePath string) gitInfo {
	gitDir := filepath.Join(workspacePath, ".git")
	stat, err := os.Stat(gitDir)
	if err != nil || !stat.IsDir() {
		return gitInfo{IsRepo: false}
	}

	info := gitInfo{IsRepo: true}
	info.Branch = readBranch(filepath.Join(gitDir, "HEAD"))
	info.RemoteOrigin = readOriginURL(filepath.Join(gitDir, "config"))

	if idx, err := os.Stat(filepath.Join(gitDir, "index")); err == nil {
		info.LastIndexTime = idx.ModTime().UTC().Format("2006-01-02T15:04:05Z")
	}
	return info
}

// readBranch parses ".git/HEAD", which normally contains either
// "ref: refs/heads/<branch>\n" or a raw commit hash in detached-HEAD state.
func readBranch(headPath string) string {
	data, err := os.ReadFile(headPath)
	if err != nil {
		return ""
	}
	line := strings.TrimSpace(string(data))
	if ref, ok := strings.CutPrefix(line, "ref: "); ok {
		return strings.TrimPrefix(strings.TrimSpace(ref), "refs/heads/")
	}
	if len(line) >= 7 {
		return "detached@" + line[:7]
	}
	return ""
}

// readOriginURL scans ".git/config" for the [remote "origin"] section's
// url entry, using a plain line scan rather than a full INI parser since
// only one key is needed.
func readOriginURL(configPath string) string {
	f, err := os.Open(configPath)
	if err != nil {
		return ""
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	inOrigin := false
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, "[") {
			inOrigin = strings.EqualFold(line, `[remote "origin"]`)
			continue
		}
		if !inOrigin {
			continue
		}
		if url, ok := strings.CutPrefix(line, "url"); ok {
			url = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(url), "="))
			return url
		}
	}
	return ""
}
