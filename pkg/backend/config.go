package backend

import (
	"encoding/json"
	"fmt"
)

// ParseDefinitions decodes an mcp_config.json-shaped document, discarding
// entries whose id carries the soft-disable prefix.
func ParseDefinitions(data []byte) (DefinitionSet, error) {
	var raw rawConfigFile
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode backend definitions: %w", err)
	}

	out := make(DefinitionSet, len(raw.MCPServers))
	for id, rd := range raw.MCPServers {
		if IsSoftDisabled(id) {
			continue
		}
		out[id] = Definition{
			ID:        id,
			Command:   rd.Command,
			Args:      rd.Args,
			Env:       rd.Env,
			URL:       rd.URL,
			Transport: rd.Transport,
		}
	}
	return out, nil
}
