// Package backend owns subprocess and remote-HTTP backend lifecycles and
// speaks MCP JSON-RPC to them, exposing the aggregated tool/resource/prompt
// surface and the tools/call and resources/read dispatch entry points.
package backend

import "strings"

// Definition is a backend as read from the watched mcp_config.json-shaped
// file. Exactly one of the local or remote fields is populated.
type Definition struct {
	ID string `json:"-"`

	// Local subprocess launch descriptor.
	Command string            `json:"command,omitempty"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`

	// Remote HTTP-based backend.
	URL       string `json:"url,omitempty"`
	Transport string `json:"transport,omitempty"`
}

// IsRemote reports whether this definition describes a remote backend
// rather than a local subprocess.
func (d Definition) IsRemote() bool {
	return d.URL != ""
}

// DisabledPrefix is the soft-disable convention: ids beginning with this
// literal prefix are filtered out by readers before reaching the Pool.
const DisabledPrefix = "_disabled_"

// IsSoftDisabled reports whether id uses the soft-disable convention.
func IsSoftDisabled(id string) bool {
	return strings.HasPrefix(id, DisabledPrefix)
}

// DefinitionSet is the decoded mcpServers document, keyed by backend id,
// with soft-disabled entries already filtered out.
type DefinitionSet map[string]Definition

// rawConfigFile mirrors the on-disk mcp_config.json shape.
type rawConfigFile struct {
	MCPServers map[string]rawDefinition `json:"mcpServers"`
}

type rawDefinition struct {
	Command   string            `json:"command,omitempty"`
	Args      []string          `json:"args,omitempty"`
	Env       map[string]string `json:"env,omitempty"`
	URL       string            `json:"url,omitempty"`
	Transport string            `json:"transport,omitempty"`
}
