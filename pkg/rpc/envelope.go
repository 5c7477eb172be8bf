// Package rpc models the JSON-RPC 2.0 envelope used both on the wire to
// backend subprocesses/HTTP endpoints and on the front door HTTP/SSE
// server, plus the namespacing convention applied to every tool, resource
// and prompt the proxy exposes.
//
// Per the design notes, the envelope is modeled as a tagged variant
// (request | response | notification) rather than one loosely-typed
// struct, so callers can switch on which variant is set instead of
// branching on ad-hoc field presence. The wire framing
// and the request/notification/response classification itself is
// delegated to golang.org/x/exp/jsonrpc2, which already models a
// JSON-RPC message the same way (a Request carries a valid ID only when
// it expects a reply); this package translates that union into the three
// concrete variants the rest of the proxy dispatches on.
package rpc

import (
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/exp/jsonrpc2"
)

// ProtocolVersion is the MCP protocol version this proxy speaks to backends.
const ProtocolVersion = "2024-11-05"

// Well-known JSON-RPC / MCP error codes.
const (
	CodeParseError     = -32700
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeSecurity       = -32000
	CodeInternal       = -32603
)

// Message is the tagged-variant envelope. Exactly one of Request, Response
// or Notification is non-nil after Parse.
type Message struct {
	Request      *Request
	Response     *Response
	Notification *Notification
}

// Request is an inbound or outbound JSON-RPC call expecting a response.
type Request struct {
	ID     int64           `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Response is a JSON-RPC reply correlated to a Request by ID.
type Response struct {
	ID     int64           `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *Error          `json:"error,omitempty"`
}

// Notification is a JSON-RPC message with no ID, expecting no reply.
type Notification struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Error is a JSON-RPC error object.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// NewError builds an Error value.
func NewError(code int, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// wireError recovers the standard JSON-RPC 2.0 error object's code/message/
// data fields from a raw Response line. jsonrpc2.Response.Error decodes to
// an opaque error value, so rather than reach into its unexported wire
// representation this re-reads the same bytes jsonrpc2 already validated.
type wireError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

type errorEnvelope struct {
	Error *wireError `json:"error,omitempty"`
}

// Parse decodes a single JSON-RPC line into a tagged Message, using
// golang.org/x/exp/jsonrpc2 for the wire framing and the request/
// notification/response classification.
func Parse(line []byte) (*Message, error) {
	msg, err := jsonrpc2.DecodeMessage(line)
	if err != nil {
		return nil, fmt.Errorf("invalid json-rpc message: %w", err)
	}

	switch m := msg.(type) {
	case *jsonrpc2.Request:
		if m.ID.IsValid() {
			return &Message{Request: &Request{
				ID:     idToInt64(m.ID),
				Method: m.Method,
				Params: json.RawMessage(m.Params),
			}}, nil
		}
		return &Message{Notification: &Notification{
			Method: m.Method,
			Params: json.RawMessage(m.Params),
		}}, nil
	case *jsonrpc2.Response:
		resp := &Response{ID: idToInt64(m.ID), Result: json.RawMessage(m.Result)}
		if m.Error != nil {
			var env errorEnvelope
			if jerr := json.Unmarshal(line, &env); jerr == nil && env.Error != nil {
				resp.Error = &Error{Code: env.Error.Code, Message: env.Error.Message, Data: env.Error.Data}
			} else {
				resp.Error = NewError(CodeInternal, "%s", m.Error.Error())
			}
		}
		return &Message{Response: resp}, nil
	default:
		return nil, fmt.Errorf("unsupported json-rpc message type %T", msg)
	}
}

// idToInt64 recovers the int64 this proxy always assigns as a request ID.
// Round-tripping through JSON rather than a type-asserting accessor keeps
// this independent of jsonrpc2.ID's internal representation.
func idToInt64(id jsonrpc2.ID) int64 {
	data, err := json.Marshal(id)
	if err != nil {
		return 0
	}
	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		return 0
	}
	return n
}

// paramsArg avoids forcing an explicit JSON "null" onto the wire when no
// arguments were supplied.
func paramsArg(p json.RawMessage) any {
	if len(p) == 0 {
		return nil
	}
	return p
}

// Encode serializes a Request for the wire, terminated with no trailing
// newline (callers append one when framing onto a stream).
func (r *Request) Encode() ([]byte, error) {
	call, err := jsonrpc2.NewCall(jsonrpc2.Int64ID(r.ID), r.Method, paramsArg(r.Params))
	if err != nil {
		return nil, fmt.Errorf("build json-rpc call: %w", err)
	}
	return jsonrpc2.EncodeMessage(call)
}

// Encode serializes a Notification for the wire.
func (n *Notification) Encode() ([]byte, error) {
	notif, err := jsonrpc2.NewNotification(n.Method, paramsArg(n.Params))
	if err != nil {
		return nil, fmt.Errorf("build json-rpc notification: %w", err)
	}
	return jsonrpc2.EncodeMessage(notif)
}

// Encode serializes a Response for the wire.
func (r *Response) Encode() ([]byte, error) {
	var rerr error
	if r.Error != nil {
		rerr = jsonrpc2.NewError(int64(r.Error.Code), r.Error.Message)
	}
	resp, err := jsonrpc2.NewResponse(jsonrpc2.Int64ID(r.ID), paramsArg(r.Result), rerr)
	if err != nil {
		return nil, fmt.Errorf("build json-rpc response: %w", err)
	}
	return jsonrpc2.EncodeMessage(resp)
}

// NamespaceSeparator is the reserved separator between a backend id and
// the original name/URI it advertised.
const NamespaceSeparator = "::"

// WorkspaceScheme is the reserved URI scheme for context-injected
// resources; these bypass namespacing entirely.
const WorkspaceScheme = "workspace://"

// Namespace rewrites name as "<backendID>::<name>".
func Namespace(backendID, name string) string {
	return backendID + NamespaceSeparator + name
}

// SplitNamespaced splits a namespaced identifier on the first occurrence
// of the reserved separator. ok is false if the separator is absent.
func SplitNamespaced(name string) (backendID, rest string, ok bool) {
	idx := strings.Index(name, NamespaceSeparator)
	if idx < 0 {
		return "", "", false
	}
	return name[:idx], name[idx+len(NamespaceSeparator):], true
}

// IsWorkspaceURI reports whether uri uses the reserved workspace:// scheme.
func IsWorkspaceURI(uri string) bool {
	return strings.HasPrefix(uri, WorkspaceScheme)
}
