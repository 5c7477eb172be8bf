package rpc

import (
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

// Tool is a namespaced, externally-visible tool. Name is already rewritten
// to "<backendID>::<originalName>" by the time it leaves the Backend Pool.
type Tool struct {
	Name        string              `json:"name"`
	Description string              `json:"description,omitempty"`
	InputSchema mcp.ToolInputSchema `json:"inputSchema"`
}

// Resource is a namespaced, externally-visible resource.
type Resource struct {
	URI         string `json:"uri"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

// Prompt is a namespaced, externally-visible prompt.
type Prompt struct {
	Name        string               `json:"name"`
	Description string               `json:"description,omitempty"`
	Arguments   []mcp.PromptArgument `json:"arguments,omitempty"`
}

// ToolCallResult is the MCP result shape for tools/call: content plus an
// isError sentinel, so backend-side failures can be represented as a
// successful RPC carrying a failed tool invocation.
type ToolCallResult struct {
	Content []mcp.Content `json:"content"`
	IsError bool          `json:"isError,omitempty"`
}

// TextResult builds a successful ToolCallResult from plain text.
func TextResult(text string) *ToolCallResult {
	return &ToolCallResult{Content: []mcp.Content{mcp.NewTextContent(text)}}
}

// ErrorResult builds a ToolCallResult representing a backend-side failure
// (not a transport failure): isError is set rather than returning a Go
// error.
func ErrorResult(format string, args ...any) *ToolCallResult {
	return &ToolCallResult{
		Content: []mcp.Content{mcp.NewTextContent(fmt.Sprintf(format, args...))},
		IsError: true,
	}
}
