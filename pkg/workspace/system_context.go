package workspace

import (
	"encoding/json"
	"fmt"
	"runtime"
	"time"
)

type workspaceIdentity struct {
	ID   string `json:"id"`
	Path string `json:"path"`
}

type systemContextDoc struct {
	CurrentDate string            `json:"currentDate"`
	LocalTime   string            `json:"localTime"`
	Timezone    string            `json:"timezone"`
	Platform    string            `json:"platform"`
	Workspace   workspaceIdentity `json:"workspace"`
}

// systemContext synthesizes workspace://system-context: a small document
// of ambient facts no backend can discover on its own (wall clock,
// timezone, host platform, workspace identity).
func (inj *Injector) systemContext() (string, error) {
	now := time.Now()

	doc := systemContextDoc{
		CurrentDate: now.UTC().Format(time.RFC3339),
		LocalTime:   now.Format(time.RFC3339),
		Timezone:    now.Location().String(),
		Platform:    fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
		Workspace:   workspaceIdentity{ID: inj.workspaceID, Path: inj.workspacePath},
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
